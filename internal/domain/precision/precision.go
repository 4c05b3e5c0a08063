// Package precision measures how closely each scout's counts agree with
// the official score breakdown.
package precision

import (
	"sort"
	"strings"

	"github.com/okian/scoutcalc/internal/domain/stats"
	"github.com/okian/scoutcalc/internal/schema"
)

// AlliancePlaceholder in a TBA reference is replaced by the alliance color.
const AlliancePlaceholder = "{alliance}"

// Report is one scout's per-field counts for one robot.
type Report struct {
	Scout  string
	Team   string
	Fields map[string]any
}

// Alliance is a played alliance with every scout report on its robots.
// Match is the TBA match document; Color is "red" or "blue".
type Alliance struct {
	Teams   []string
	Color   string
	Match   map[string]any
	Reports []Report
}

// Sim computes, per scout, the mean alliance error of combinations that use
// the scout's report minus the mean error of combinations that use another
// scout's report for the same robot. A robot's only scout gets the plain
// mean error. Every calculation is keyed by name, and the headline field
// holds their sum. Alliances with an unscouted robot or no TBA value are
// skipped.
func Sim(s *schema.SimPrecision, a Alliance) map[string]map[string]float64 {
	byTeam := make([][]Report, len(a.Teams))
	for _, r := range a.Reports {
		for i, t := range a.Teams {
			if r.Team == t {
				byTeam[i] = append(byTeam[i], r)
			}
		}
	}
	for _, rs := range byTeam {
		if len(rs) == 0 {
			return nil
		}
		sort.Slice(rs, func(i, j int) bool { return rs[i].Scout < rs[j].Scout })
	}

	out := map[string]map[string]float64{}
	for _, c := range s.Calculations {
		actual, ok := tbaValue(c.TBA, a.Match, a.Color)
		if !ok {
			return nil
		}
		totals := make([][]float64, len(byTeam))
		for i, rs := range byTeam {
			for _, r := range rs {
				totals[i] = append(totals[i], weighted(c.Weights, r.Fields))
			}
		}
		for i, rs := range byTeam {
			for j, r := range rs {
				var with, without []float64
				combinations(totals, func(pick []int, sum float64) {
					if pick[i] == j {
						with = append(with, actual-sum)
					} else {
						without = append(without, actual-sum)
					}
				})
				v := stats.Mean(with)
				if len(without) > 0 {
					v -= stats.Mean(without)
				}
				if out[r.Scout] == nil {
					out[r.Scout] = map[string]float64{}
				}
				out[r.Scout][c.Name] = v
				out[r.Scout][s.Headline] += v
			}
		}
	}
	return out
}

// combinations calls fn with every choice of one total per robot.
func combinations(totals [][]float64, fn func(pick []int, sum float64)) {
	pick := make([]int, len(totals))
	var walk func(i int, sum float64)
	walk = func(i int, sum float64) {
		if i == len(totals) {
			fn(pick, sum)
			return
		}
		for k, v := range totals[i] {
			pick[i] = k
			walk(i+1, sum+v)
		}
	}
	walk(0, 0)
}

func weighted(terms []schema.Term, fields map[string]any) float64 {
	var sum float64
	for _, t := range terms {
		v, _ := schema.ToFloat(fields[t.Ref])
		sum += t.Weight * v
	}
	return sum
}

func tbaValue(terms []schema.Term, match map[string]any, color string) (float64, bool) {
	var sum float64
	for _, t := range terms {
		v, ok := lookup(match, strings.ReplaceAll(t.Ref, AlliancePlaceholder, color))
		if !ok {
			return 0, false
		}
		f, ok := schema.ToFloat(v)
		if !ok {
			return 0, false
		}
		sum += t.Weight * f
	}
	return sum, true
}

func lookup(doc map[string]any, path string) (any, bool) {
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}
