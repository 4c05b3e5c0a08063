// Package predicate implements the filter vocabulary used by calculation
// schemas: equality, negated equality, numeric ranges, substring matches,
// any-of lists and conjunctions, evaluated against a flat record.
package predicate

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Op is the kind of a predicate node.
type Op int

const (
	// OpTrue matches every record.
	OpTrue Op = iota
	// OpEq matches when the field equals Value.
	OpEq
	// OpNotEq matches when the field is present and equals none of Values.
	// A missing field counts as equal to the forbidden value.
	OpNotEq
	// OpInRange matches numeric fields within [Min, Max].
	OpInRange
	// OpSubstring matches string fields containing Substr.
	OpSubstring
	// OpAnyOf matches when the field equals one of Values.
	OpAnyOf
	// OpAnd matches when every child matches.
	OpAnd
)

func (o Op) String() string {
	switch o {
	case OpTrue:
		return "true"
	case OpEq:
		return "eq"
	case OpNotEq:
		return "not"
	case OpInRange:
		return "in_range"
	case OpSubstring:
		return "contains"
	case OpAnyOf:
		return "any_of"
	case OpAnd:
		return "and"
	default:
		return "op(" + strconv.Itoa(int(o)) + ")"
	}
}

// Predicate is a node of a predicate tree.
type Predicate struct {
	Op       Op
	Field    string
	Value    any
	Values   []any
	Min, Max float64
	Substr   string
	Children []Predicate
}

// True returns a predicate that matches everything.
func True() Predicate { return Predicate{Op: OpTrue} }

// Eq returns field == value.
func Eq(field string, value any) Predicate {
	return Predicate{Op: OpEq, Field: field, Value: value}
}

// NotEq returns "field present and not equal to any of values".
func NotEq(field string, values ...any) Predicate {
	return Predicate{Op: OpNotEq, Field: field, Values: values}
}

// InRange returns min <= field <= max.
func InRange(field string, lo, hi float64) Predicate {
	return Predicate{Op: OpInRange, Field: field, Min: lo, Max: hi}
}

// Contains returns "field is a string containing substr".
func Contains(field, substr string) Predicate {
	return Predicate{Op: OpSubstring, Field: field, Substr: substr}
}

// AnyOf returns "field equals one of values".
func AnyOf(field string, values ...any) Predicate {
	return Predicate{Op: OpAnyOf, Field: field, Values: values}
}

// And returns the conjunction of ps. Nested conjunctions and OpTrue nodes are flattened.
func And(ps ...Predicate) Predicate {
	children := make([]Predicate, 0, len(ps))
	for _, p := range ps {
		switch p.Op {
		case OpTrue:
		case OpAnd:
			children = append(children, p.Children...)
		default:
			children = append(children, p)
		}
	}
	switch len(children) {
	case 0:
		return True()
	case 1:
		return children[0]
	}
	return Predicate{Op: OpAnd, Children: children}
}

// Match evaluates p against rec.
func (p Predicate) Match(rec map[string]any) bool {
	switch p.Op {
	case OpTrue:
		return true
	case OpAnd:
		for _, c := range p.Children {
			if !c.Match(rec) {
				return false
			}
		}
		return true
	}

	v, ok := rec[p.Field]
	if !ok || v == nil {
		return false
	}
	switch p.Op {
	case OpEq:
		return Equal(v, p.Value)
	case OpNotEq:
		for _, forbidden := range p.Values {
			if Equal(v, forbidden) {
				return false
			}
		}
		return true
	case OpAnyOf:
		for _, allowed := range p.Values {
			if Equal(v, allowed) {
				return true
			}
		}
		return false
	case OpInRange:
		f, ok := toFloat(v)
		return ok && f >= p.Min && f <= p.Max
	case OpSubstring:
		s, ok := v.(string)
		return ok && strings.Contains(s, p.Substr)
	}
	return false
}

// Filter returns the records matched by p, in order.
func (p Predicate) Filter(recs []map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(recs))
	for _, r := range recs {
		if p.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// Count returns how many records p matches.
func (p Predicate) Count(recs []map[string]any) int {
	n := 0
	for _, r := range recs {
		if p.Match(r) {
			n++
		}
	}
	return n
}

func (p Predicate) String() string {
	switch p.Op {
	case OpTrue:
		return "true"
	case OpAnd:
		parts := make([]string, len(p.Children))
		for i, c := range p.Children {
			parts[i] = c.String()
		}
		return "(" + strings.Join(parts, " && ") + ")"
	case OpEq:
		return fmt.Sprintf("%s == %v", p.Field, p.Value)
	case OpNotEq:
		return fmt.Sprintf("%s not in %v", p.Field, p.Values)
	case OpAnyOf:
		return fmt.Sprintf("%s in %v", p.Field, p.Values)
	case OpInRange:
		return fmt.Sprintf("%v <= %s <= %v", p.Min, p.Field, p.Max)
	case OpSubstring:
		return fmt.Sprintf("%s contains %q", p.Field, p.Substr)
	}
	return p.Op.String()
}

// Parse builds a conjunction from a schema filter mapping. Each value is
// one of: a scalar (equality), a list (any-of), {not: v|[v...]},
// {min: a, max: b} or {contains: s}.
func Parse(filter map[string]any) (Predicate, error) {
	fields := make([]string, 0, len(filter))
	for f := range filter {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	ps := make([]Predicate, 0, len(fields))
	for _, f := range fields {
		p, err := parseField(f, filter[f])
		if err != nil {
			return Predicate{}, err
		}
		ps = append(ps, p)
	}
	return And(ps...), nil
}

// ParseNot builds the conjunction of "field must not equal value" clauses.
func ParseNot(not map[string]any) Predicate {
	fields := make([]string, 0, len(not))
	for f := range not {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	ps := make([]Predicate, 0, len(fields))
	for _, f := range fields {
		if list, ok := not[f].([]any); ok {
			ps = append(ps, NotEq(f, list...))
			continue
		}
		ps = append(ps, NotEq(f, not[f]))
	}
	return And(ps...)
}

func parseField(field string, raw any) (Predicate, error) {
	switch v := raw.(type) {
	case []any:
		return AnyOf(field, v...), nil
	case map[string]any:
		if forbidden, ok := v["not"]; ok {
			if len(v) != 1 {
				return Predicate{}, fmt.Errorf("filter %s: not cannot be combined", field)
			}
			if list, ok := forbidden.([]any); ok {
				return NotEq(field, list...), nil
			}
			return NotEq(field, forbidden), nil
		}
		if sub, ok := v["contains"]; ok {
			s, ok := sub.(string)
			if !ok || len(v) != 1 {
				return Predicate{}, fmt.Errorf("filter %s: contains needs a single string", field)
			}
			return Contains(field, s), nil
		}
		lo, hasMin := v["min"]
		hi, hasMax := v["max"]
		if hasMin || hasMax {
			p := InRange(field, math.Inf(-1), math.Inf(1))
			if hasMin {
				f, ok := toFloat(lo)
				if !ok {
					return Predicate{}, fmt.Errorf("filter %s: min is not numeric", field)
				}
				p.Min = f
			}
			if hasMax {
				f, ok := toFloat(hi)
				if !ok {
					return Predicate{}, fmt.Errorf("filter %s: max is not numeric", field)
				}
				p.Max = f
			}
			return p, nil
		}
		return Predicate{}, fmt.Errorf("filter %s: unknown operator", field)
	default:
		return Eq(field, v), nil
	}
}

// Equal compares two scalar values, treating all numeric kinds alike.
func Equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
