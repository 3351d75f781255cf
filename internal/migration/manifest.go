package migration

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is the encoding of a manifest document.
type Format int

// Supported manifest encodings.
const (
	FormatJSON Format = iota
	FormatYAML
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// FormatForPath picks the format from a file extension: .yaml and .yml are
// YAML, anything else is JSON.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// decode reads a manifest document into maps keyed by string.
func decode(r io.Reader, format Format) (map[string]any, error) {
	var doc any

	switch format {
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: empty document", ErrInvalidManifest)
			}
			return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
		}
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: empty document", ErrInvalidManifest)
			}
			return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported format %s", ErrInvalidManifest, format)
	}

	m, ok := normalize(doc).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: top level is not an object", ErrInvalidManifest)
	}
	return m, nil
}

// normalize converts YAML's map[any]any (produced for non-string keys such
// as unquoted version numbers) into map[string]any, recursively.
func normalize(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, child := range x {
			x[k] = normalize(child)
		}
		return x
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, child := range x {
			m[fmt.Sprint(k)] = normalize(child)
		}
		return m
	case []any:
		for i, child := range x {
			x[i] = normalize(child)
		}
		return x
	default:
		return v
	}
}

// asInt accepts integral JSON numbers and YAML integers.
func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case int:
		return int64(n), true
	case int64:
		return n, true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	default:
		return 0, false
	}
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

// asStrings accepts a list whose every element is a string. An empty list is
// valid.
func asStrings(v any) ([]string, bool) {
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}
