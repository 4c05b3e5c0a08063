package schema

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"
)

// Kind is a declared value type.
type Kind string

// Value kinds.
const (
	KindInt   Kind = "int"
	KindFloat Kind = "float"
	KindStr   Kind = "str"
	KindBool  Kind = "bool"
	KindEnum  Kind = "Enum"
	KindList  Kind = "list"
	KindDict  Kind = "dict"
)

func (k Kind) scalar() bool {
	switch k {
	case KindInt, KindFloat, KindStr, KindBool, KindEnum:
		return true
	}
	return false
}

// Cast converts v to the declared output kind.
func Cast(k Kind, v any) any {
	switch k {
	case KindInt:
		f, _ := ToFloat(v)
		return int(math.Round(f))
	case KindFloat:
		f, _ := ToFloat(v)
		return f
	case KindStr:
		if v == nil {
			return ""
		}
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	case KindBool:
		switch b := v.(type) {
		case bool:
			return b
		case string:
			return strings.EqualFold(b, "true")
		}
		f, _ := ToFloat(v)
		return f != 0
	}
	return v
}

// ToFloat converts numeric and boolean values to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// Term is one weighted reference, e.g. obj_team.tele_avg_grid_points * 1.5.
type Term struct {
	Ref    string
	Weight float64
}

func sortedTerms(m map[string]float64) []Term {
	out := make([]Term, 0, len(m))
	for ref, w := range m {
		out = append(out, Term{Ref: ref, Weight: w})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref < out[j].Ref })
	return out
}

type entry struct {
	key  string
	node *yaml.Node
}

// entries returns the key/value pairs of a mapping node in document order.
func entries(n *yaml.Node) ([]entry, error) {
	if n == nil {
		return nil, nil
	}
	if n.Kind == yaml.DocumentNode {
		if len(n.Content) == 0 {
			return nil, nil
		}
		n = n.Content[0]
	}
	if n.Kind == yaml.ScalarNode && n.Tag == "!!null" {
		return nil, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: line %d: expected mapping", ErrInvalidSchema, n.Line)
	}
	out := make([]entry, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		out = append(out, entry{key: n.Content[i].Value, node: n.Content[i+1]})
	}
	return out, nil
}

// section returns the named top-level mapping, or nil.
func section(root *yaml.Node, name string) (*yaml.Node, error) {
	es, err := entries(root)
	if err != nil {
		return nil, err
	}
	for _, e := range es {
		if e.key == name {
			return e.node, nil
		}
	}
	return nil, nil
}

// decode maps a YAML node onto a typed struct, rejecting unknown keys.
func decode(n *yaml.Node, out any) error {
	var raw any
	if err := n.Decode(&raw); err != nil {
		return fmt.Errorf("%w: line %d: %v", ErrInvalidSchema, n.Line, err)
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      out,
		ErrorUnused: true,
		TagName:     "mapstructure",
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("%w: line %d: %v", ErrInvalidSchema, n.Line, err)
	}
	return nil
}

func outputKind(name, declared string, fallback Kind) (Kind, error) {
	if declared == "" {
		return fallback, nil
	}
	k := Kind(declared)
	switch k {
	case KindInt, KindFloat, KindStr, KindBool:
		return k, nil
	}
	return "", fmt.Errorf("%w: %s: unknown type %q", ErrInvalidSchema, name, declared)
}
