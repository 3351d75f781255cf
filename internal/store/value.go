package store

import (
	"fmt"
	"math"
	"strconv"
)

// Kind identifies which variant a Value holds.
type Kind uint8

// Value kinds.
const (
	KindNull Kind = iota
	KindInteger
	KindReal
	KindBoolean
	KindText
	KindBlob
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInteger:
		return "integer"
	case KindReal:
		return "real"
	case KindBoolean:
		return "boolean"
	case KindText:
		return "text"
	case KindBlob:
		return "blob"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a single SQL value: NULL, integer, real, boolean, text or blob.
// The zero Value is NULL.
//
// Booleans are stored by the engine as integers 0 and 1, so a bound
// Boolean reads back as an Integer.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
	b    []byte
}

// Null returns the NULL value.
func Null() Value { return Value{} }

// Integer returns an integer value.
func Integer(v int64) Value { return Value{kind: KindInteger, i: v} }

// Real returns a floating point value.
func Real(v float64) Value { return Value{kind: KindReal, f: v} }

// Boolean returns a boolean value.
func Boolean(v bool) Value {
	if v {
		return Value{kind: KindBoolean, i: 1}
	}
	return Value{kind: KindBoolean}
}

// Text returns a text value.
func Text(v string) Value { return Value{kind: KindText, s: v} }

// Blob returns a blob value. A nil slice is NULL.
func Blob(v []byte) Value {
	if v == nil {
		return Value{}
	}
	return Value{kind: KindBlob, b: v}
}

// ValueOf converts a host value to a Value.
//
// Conversion is tried in a fixed order: text, integer, real, boolean, blob.
// Strings are text; signed integers and unsigned integers that fit in int64
// are integers; float32/float64 are reals; bool is boolean; []byte is blob.
// A Value is returned unchanged. Anything else, including nil, time.Time and
// out-of-range unsigned integers, becomes NULL.
func ValueOf(v any) Value {
	switch x := v.(type) {
	case Value:
		return x
	case string:
		return Text(x)
	case int:
		return Integer(int64(x))
	case int8:
		return Integer(int64(x))
	case int16:
		return Integer(int64(x))
	case int32:
		return Integer(int64(x))
	case int64:
		return Integer(x)
	case uint8:
		return Integer(int64(x))
	case uint16:
		return Integer(int64(x))
	case uint32:
		return Integer(int64(x))
	case uint:
		if uint64(x) > math.MaxInt64 {
			return Null()
		}
		return Integer(int64(x))
	case uint64:
		if x > math.MaxInt64 {
			return Null()
		}
		return Integer(int64(x))
	case float32:
		return Real(float64(x))
	case float64:
		return Real(x)
	case bool:
		return Boolean(x)
	case []byte:
		return Blob(x)
	default:
		return Null()
	}
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is NULL.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Int64 returns the integer held by v. Booleans convert to 0 or 1.
func (v Value) Int64() (int64, bool) {
	switch v.kind {
	case KindInteger, KindBoolean:
		return v.i, true
	default:
		return 0, false
	}
}

// Float64 returns the number held by v. Integers are converted.
func (v Value) Float64() (float64, bool) {
	switch v.kind {
	case KindReal:
		return v.f, true
	case KindInteger:
		return float64(v.i), true
	default:
		return 0, false
	}
}

// Bool returns the truth value held by v. Integers are true when non-zero.
func (v Value) Bool() (bool, bool) {
	switch v.kind {
	case KindBoolean, KindInteger:
		return v.i != 0, true
	default:
		return false, false
	}
}

// Text returns the string held by v.
func (v Value) Text() (string, bool) {
	if v.kind != KindText {
		return "", false
	}
	return v.s, true
}

// Bytes returns the blob held by v.
func (v Value) Bytes() ([]byte, bool) {
	if v.kind != KindBlob {
		return nil, false
	}
	return v.b, true
}

// Any returns v as a plain Go value: nil, int64, float64, bool, string or []byte.
func (v Value) Any() any {
	switch v.kind {
	case KindInteger:
		return v.i
	case KindReal:
		return v.f
	case KindBoolean:
		return v.i != 0
	case KindText:
		return v.s
	case KindBlob:
		return v.b
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindText:
		return strconv.Quote(v.s)
	case KindBlob:
		return fmt.Sprintf("x'%x'", v.b)
	default:
		return fmt.Sprint(v.Any())
	}
}
