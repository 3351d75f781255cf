package store

import (
	"bytes"
	"math"
	"testing"
	"time"
)

func TestValueOf(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name string
		in   any
		kind Kind
		want any
	}{
		{"string", "abc", KindText, "abc"},
		{"empty string", "", KindText, ""},
		{"time is not a value kind", ts, KindNull, nil},
		{"int", 7, KindInteger, int64(7)},
		{"int8", int8(-8), KindInteger, int64(-8)},
		{"int64", int64(math.MinInt64), KindInteger, int64(math.MinInt64)},
		{"uint32", uint32(42), KindInteger, int64(42)},
		{"uint64 in range", uint64(math.MaxInt64), KindInteger, int64(math.MaxInt64)},
		{"uint64 overflow", uint64(math.MaxUint64), KindNull, nil},
		{"float32", float32(0.5), KindReal, 0.5},
		{"float64", 1.25, KindReal, 1.25},
		{"bool true", true, KindBoolean, true},
		{"bool false", false, KindBoolean, false},
		{"blob", []byte{1, 2}, KindBlob, []byte{1, 2}},
		{"nil blob", []byte(nil), KindNull, nil},
		{"nil", nil, KindNull, nil},
		{"unsupported struct", struct{}{}, KindNull, nil},
		{"unsupported pointer", new(int), KindNull, nil},
		{"value passthrough", Real(3), KindReal, 3.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ValueOf(tt.in)
			if v.Kind() != tt.kind {
				t.Fatalf("ValueOf(%#v).Kind() = %v, want %v", tt.in, v.Kind(), tt.kind)
			}
			got := v.Any()
			if b, ok := tt.want.([]byte); ok {
				if !bytes.Equal(got.([]byte), b) {
					t.Errorf("Any() = %v, want %v", got, b)
				}
				return
			}
			if got != tt.want {
				t.Errorf("Any() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestValue_Accessors(t *testing.T) {
	if _, ok := Null().Int64(); ok {
		t.Error("Null().Int64() ok = true")
	}
	if _, ok := Null().Text(); ok {
		t.Error("Null().Text() ok = true")
	}
	if n, ok := Boolean(true).Int64(); !ok || n != 1 {
		t.Errorf("Boolean(true).Int64() = %d, %v; want 1, true", n, ok)
	}
	if f, ok := Integer(3).Float64(); !ok || f != 3 {
		t.Errorf("Integer(3).Float64() = %v, %v; want 3, true", f, ok)
	}
	if b, ok := Integer(0).Bool(); !ok || b {
		t.Errorf("Integer(0).Bool() = %v, %v; want false, true", b, ok)
	}
	if _, ok := Text("1").Int64(); ok {
		t.Error("Text(\"1\").Int64() ok = true, want false")
	}
	if Blob(nil).Kind() != KindNull {
		t.Error("Blob(nil) is not NULL")
	}
	if !(Value{}).IsNull() {
		t.Error("zero Value is not NULL")
	}
}

func TestValue_String(t *testing.T) {
	tests := map[string]Value{
		"NULL":    Null(),
		"42":      Integer(42),
		"true":    Boolean(true),
		`"a\"b"`:  Text(`a"b`),
		"x'00ff'": Blob([]byte{0x00, 0xff}),
	}
	for want, v := range tests {
		if got := v.String(); got != want {
			t.Errorf("String() = %s, want %s", got, want)
		}
	}
}

func TestValue_RoundTrip(t *testing.T) {
	c := openTestConn(t)

	tests := []struct {
		name string
		in   Value
		want Value
	}{
		{"null", Null(), Null()},
		{"integer", Integer(-9007199254740993), Integer(-9007199254740993)},
		{"real", Real(6.25), Real(6.25)},
		{"boolean true reads back as integer", Boolean(true), Integer(1)},
		{"boolean false reads back as integer", Boolean(false), Integer(0)},
		{"text", Text("ünïcode"), Text("ünïcode")},
		{"empty text", Text(""), Text("")},
		{"blob", Blob([]byte{0, 1, 0xff}), Blob([]byte{0, 1, 0xff})},
		{"empty blob", Blob([]byte{}), Blob([]byte{})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.WithStatement("SELECT ? AS v", func(s *Stmt) error {
				if err := s.Bind(1, tt.in); err != nil {
					return err
				}
				if _, err := s.Step(); err != nil {
					return err
				}
				got := s.Value(0)
				if got.Kind() != tt.want.Kind() {
					t.Fatalf("Kind() = %v, want %v", got.Kind(), tt.want.Kind())
				}
				if got.String() != tt.want.String() {
					t.Errorf("Value = %s, want %s", got, tt.want)
				}
				return nil
			})
			if err != nil {
				t.Fatalf("WithStatement() error = %v", err)
			}
		})
	}
}

func TestValue_BooleanColumn(t *testing.T) {
	c := openTestConn(t)
	mustExecute(t, c, "CREATE TABLE flags (flag BOOLEAN)")

	if err := c.Run("INSERT INTO flags VALUES (?)", Positional{Boolean(true)}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	err := c.WithStatement("SELECT flag FROM flags", func(s *Stmt) error {
		row, err := s.Step()
		if err != nil {
			return err
		}
		if !row {
			t.Fatal("Step() returned no row")
		}
		got := s.Value(0)
		if got.Kind() != KindInteger || got.String() != Integer(1).String() {
			t.Errorf("Value(0) = %s (%v), want %s", got, got.Kind(), Integer(1))
		}
		b, ok := s.Bool(0)
		if !ok || !b {
			t.Errorf("Bool(0) = (%v, %v), want (true, true)", b, ok)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithStatement() error = %v", err)
	}
}

func TestValueOf_TimeStoredAsNull(t *testing.T) {
	c := openTestConn(t)
	mustExecute(t, c, "CREATE TABLE stamps (v)")

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := c.Run("INSERT INTO stamps VALUES (?)", Positional{ts}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got, ok := Scalar[string](c, "SELECT typeof(v) FROM stamps", nil)
	if !ok || got != "null" {
		t.Errorf("typeof(v) = %q (%v), want null", got, ok)
	}
}
