// Package consolidation fuses the reports of up to three scouts watching
// the same robot into one best estimate per field.
package consolidation

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/okian/scoutcalc/internal/domain/stats"
	"github.com/okian/scoutcalc/internal/schema"
)

// TieBreak selects how timeline consolidation picks among equally likely
// non-numeric values.
type TieBreak string

// Tie-break strategies.
const (
	TieLexical TieBreak = "lexical"
	TieRandom  TieBreak = "random"
)

// Numeric consolidates numeric reports. Agreement with the mean or a
// repeated value wins outright; otherwise each report is weighted by
// 1/z² so outliers are damped rather than dropped.
func Numeric(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	mu := stats.Mean(xs)
	if stats.Contains(xs, mu) {
		return math.Round(mu)
	}
	if modes := stats.Modes(xs); len(modes) < distinct(xs) {
		return Numeric(modes)
	}
	sigma := stats.PopStdDev(xs)
	var num, den float64
	for _, x := range xs {
		z := (x - mu) / sigma
		w := 1 / (z * z)
		num += w * x
		den += w
	}
	return math.Round(num / den)
}

func distinct(xs []float64) int {
	seen := make(map[float64]struct{}, len(xs))
	for _, x := range xs {
		seen[x] = struct{}{}
	}
	return len(seen)
}

// Bool returns the majority; ties resolve to false.
func Bool(bs []bool) bool {
	n := 0
	for _, b := range bs {
		if b {
			n++
		}
	}
	return n*2 > len(bs)
}

// Categorical consolidates long enum names. A single most common name
// wins; otherwise the mean ordinal position is rounded back to a name.
func Categorical(en *schema.Enum, names []string) string {
	counts := map[string]int{}
	var ordinals []float64
	for _, n := range names {
		i, ok := en.Ordinal(n)
		if !ok {
			continue
		}
		counts[n]++
		ordinals = append(ordinals, float64(i))
	}
	if len(ordinals) == 0 {
		return ""
	}
	best, top := 0, []string(nil)
	for n, c := range counts {
		switch {
		case c > best:
			best, top = c, []string{n}
		case c == best:
			top = append(top, n)
		}
	}
	if len(top) == 1 {
		return top[0]
	}
	idx := stats.Round(stats.Mean(ordinals))
	idx = max(0, min(idx, len(en.Names)-1))
	return en.Names[idx]
}

// Timeline aligns timelines by index and takes the per-field mode at each
// index. An index whose winning value is absent is omitted; all-integer
// ties round their mean; other ties go to pick.
func Timeline(timelines [][]map[string]any, pick func([]any) any) []map[string]any {
	length := 0
	for _, tl := range timelines {
		length = max(length, len(tl))
	}
	var out []map[string]any
	for i := 0; i < length; i++ {
		fields := fieldNames(timelines, i)
		action := map[string]any{}
		omit := false
		for _, f := range fields {
			vals := make([]any, len(timelines))
			for s, tl := range timelines {
				if i < len(tl) {
					vals[s] = tl[i][f]
				}
			}
			v := modeValue(vals, pick)
			if v == nil {
				omit = true
				break
			}
			action[f] = v
		}
		if !omit && len(action) > 0 {
			out = append(out, action)
		}
	}
	return out
}

// Picker returns the tie-break function for t. Random picks draw from rnd.
func Picker(t TieBreak, rnd *rand.Rand) func([]any) any {
	if t == TieRandom && rnd != nil {
		return func(vs []any) any { return vs[rnd.Intn(len(vs))] }
	}
	return func(vs []any) any {
		sort.Slice(vs, func(i, j int) bool { return fmt.Sprint(vs[i]) < fmt.Sprint(vs[j]) })
		return vs[0]
	}
}

func fieldNames(timelines [][]map[string]any, i int) []string {
	set := map[string]struct{}{}
	for _, tl := range timelines {
		if i < len(tl) {
			for k := range tl[i] {
				set[k] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// modeValue returns the most common value of vals; nil stands for absent.
func modeValue(vals []any, pick func([]any) any) any {
	type bucket struct {
		v any
		n int
	}
	var buckets []bucket
	for _, v := range vals {
		found := false
		for i := range buckets {
			if sameValue(buckets[i].v, v) {
				buckets[i].n++
				found = true
				break
			}
		}
		if !found {
			buckets = append(buckets, bucket{v: v, n: 1})
		}
	}
	best := 0
	for _, b := range buckets {
		best = max(best, b.n)
	}
	var top []any
	for _, b := range buckets {
		if b.n == best {
			top = append(top, b.v)
		}
	}
	if len(top) == 1 {
		return top[0]
	}

	present := top[:0:0]
	for _, v := range top {
		if v != nil {
			present = append(present, v)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if nums, ok := integers(present); ok {
		return stats.Round(stats.Mean(nums))
	}
	return pick(present)
}

func integers(vs []any) ([]float64, bool) {
	out := make([]float64, 0, len(vs))
	for _, v := range vs {
		if _, isBool := v.(bool); isBool {
			return nil, false
		}
		f, ok := schema.ToFloat(v)
		if _, isStr := v.(string); isStr || !ok || f != math.Trunc(f) {
			return nil, false
		}
		out = append(out, f)
	}
	return out, true
}

func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	fa, okA := schema.ToFloat(a)
	fb, okB := schema.ToFloat(b)
	_, strA := a.(string)
	_, strB := b.(string)
	if okA && okB && !strA && !strB {
		return fa == fb
	}
	return a == b
}

// Fields consolidates every per-scout field declared by s. Aggregates are
// not included; they are summed from the consolidated counts afterwards.
func Fields(s *schema.ObjTIM, scouts []map[string]any) map[string]any {
	out := make(map[string]any, len(s.TimelineCounts)+len(s.CycleTimes)+len(s.Categoricals))
	for _, tc := range s.TimelineCounts {
		out[tc.Name] = field(tc.Type, tc.Name, scouts)
	}
	for _, ct := range s.CycleTimes {
		out[ct.Name] = field(ct.Type, ct.Name, scouts)
	}
	for _, cat := range s.Categoricals {
		names := make([]string, 0, len(scouts))
		for _, sc := range scouts {
			if n, ok := sc[cat.Name].(string); ok {
				names = append(names, n)
			}
		}
		out[cat.Name] = schema.Cast(cat.Type, Categorical(cat.Enum, names))
	}
	return out
}

func field(k schema.Kind, name string, scouts []map[string]any) any {
	if k == schema.KindBool {
		bs := make([]bool, 0, len(scouts))
		for _, sc := range scouts {
			b, _ := schema.Cast(schema.KindBool, sc[name]).(bool)
			bs = append(bs, b)
		}
		return Bool(bs)
	}
	xs := make([]float64, 0, len(scouts))
	for _, sc := range scouts {
		if f, ok := schema.ToFloat(sc[name]); ok {
			xs = append(xs, f)
		}
	}
	return schema.Cast(k, Numeric(xs))
}
