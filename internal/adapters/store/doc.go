package store

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Normalize converts v into its JSON shape so that documents compare the
// same whether they came from memory or from disk.
func Normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeDoc(d Doc) (Doc, error) {
	n, err := Normalize(d)
	if err != nil {
		return nil, err
	}
	out, ok := n.(map[string]any)
	if !ok {
		return Doc{}, nil
	}
	return out, nil
}

// Get resolves a dotted path inside d.
func Get(d Doc, path string) (any, bool) {
	var cur any = d
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Set assigns v at a dotted path inside d, creating intermediate objects.
func Set(d Doc, path string, v any) {
	parts := strings.Split(path, ".")
	cur := d
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = v
}

// Int reads a numeric field as an int.
func Int(d Doc, path string) (int, bool) {
	v, ok := Get(d, path)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(math.Round(n)), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	}
	return 0, false
}

// Float reads a numeric or boolean field as a float64.
func Float(d Doc, path string) (float64, bool) {
	v, ok := Get(d, path)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Str reads a field as a string; numbers are formatted without exponent.
func Str(d Doc, path string) string {
	v, ok := Get(d, path)
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// Bool reads a boolean field; missing fields are false.
func Bool(d Doc, path string) bool {
	v, _ := Get(d, path)
	b, _ := v.(bool)
	return b
}

// Matches reports whether d satisfies every equality in q. A nil query
// value matches a missing field.
func Matches(d Doc, q Query) bool {
	for path, want := range q {
		got, ok := Get(d, path)
		if !ok {
			if want == nil {
				continue
			}
			return false
		}
		if !equalJSON(got, want) {
			return false
		}
	}
	return true
}

func equalJSON(a, b any) bool {
	if fa, ok := number(a); ok {
		fb, ok := number(b)
		return ok && fa == fb
	}
	if reflect.DeepEqual(a, b) {
		return true
	}
	na, errA := Normalize(a)
	nb, errB := Normalize(b)
	return errA == nil && errB == nil && reflect.DeepEqual(na, nb)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}

// keyOf renders the values of fields in d as a comparable string.
func keyOf(d Doc, fields []string) string {
	vals := make([]any, len(fields))
	for i, f := range fields {
		v, _ := Get(d, f)
		if n, ok := number(v); ok {
			v = n
		}
		vals[i] = v
	}
	raw, _ := json.Marshal(vals)
	return string(raw)
}

// applyFields returns a copy of base with each (dotted) field set.
func applyFields(base Doc, fields Doc) Doc {
	out := cloneDoc(base)
	for k, v := range fields {
		Set(out, k, v)
	}
	return out
}

func cloneDoc(d Doc) Doc {
	if d == nil {
		return Doc{}
	}
	out := make(Doc, len(d))
	for k, v := range d {
		if m, ok := v.(map[string]any); ok {
			out[k] = cloneDoc(m)
			continue
		}
		out[k] = v
	}
	return out
}

// Equal reports whether a and b hold the same JSON content.
func Equal(a, b Doc) bool {
	return equalJSON(map[string]any(a), map[string]any(b))
}
