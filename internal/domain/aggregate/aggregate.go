// Package aggregate computes per-team statistics from a team's
// team-in-match rows as declared by a team calculation schema.
package aggregate

import (
	"fmt"
	"math"
	"sort"

	"github.com/okian/scoutcalc/internal/domain/stats"
	"github.com/okian/scoutcalc/internal/schema"
)

const fieldMatchNumber = "match_number"

// Team evaluates every category of s over tims, the rows of one team.
// Rows are ordered by match number first so last-four-matches windows and
// mode ties are stable. Calculated contributions are not evaluated here.
func Team(s *schema.Team, tims []map[string]any) map[string]any {
	sorted := append([]map[string]any(nil), tims...)
	sort.SliceStable(sorted, func(i, j int) bool { return matchNumber(sorted[i]) < matchNumber(sorted[j]) })
	lfm := sorted
	if len(lfm) > schema.LFMWindow {
		lfm = lfm[len(lfm)-schema.LFMWindow:]
	}
	window := func(name string) []map[string]any {
		if schema.IsLFM(name) {
			return lfm
		}
		return sorted
	}

	out := map[string]any{}
	for _, a := range s.Averages {
		out[a.Name] = schema.Cast(a.Type, stats.Mean(totals(window(a.Name), a.Fields)))
	}
	for _, c := range s.Counts {
		out[c.Name] = schema.Cast(c.Type, c.Where.Count(window(c.Name)))
	}
	for _, e := range s.Extrema {
		out[e.Name] = schema.Cast(e.Type, extremum(window(e.Name), e.Field, e.Max))
	}
	for _, m := range s.Modes {
		out[m.Name] = schema.Cast(m.Type, mode(window(m.Name), m.Fields))
	}
	for _, sd := range s.StandardDeviations {
		out[sd.Name] = schema.Cast(sd.Type, stats.PopStdDev(totals(window(sd.Name), sd.Fields)))
	}
	for _, p := range s.AveragePoints {
		rows := window(p.Name)
		pts := make([]float64, len(rows))
		for i, r := range rows {
			for _, t := range p.Weights {
				f, _ := schema.ToFloat(r[t.Ref])
				pts[i] += t.Weight * f
			}
		}
		out[p.Name] = schema.Cast(p.Type, stats.Mean(pts))
	}
	for _, r := range s.SuccessRates {
		out[r.Name] = schema.Cast(r.Type, Rate(sum(out, r.Successes), sum(out, r.Attempts)))
	}
	return out
}

// Rate divides successes by attempts, or returns 0 when nothing was attempted.
func Rate(successes, attempts float64) float64 {
	if attempts == 0 {
		return 0
	}
	return successes / attempts
}

func totals(rows []map[string]any, fields []string) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		for _, f := range fields {
			v, _ := schema.ToFloat(r[f])
			out[i] += v
		}
	}
	return out
}

func extremum(rows []map[string]any, field string, isMax bool) float64 {
	best := math.NaN()
	for _, r := range rows {
		v, ok := schema.ToFloat(r[field])
		if !ok {
			continue
		}
		if math.IsNaN(best) || (isMax && v > best) || (!isMax && v < best) {
			best = v
		}
	}
	if math.IsNaN(best) {
		return 0
	}
	return best
}

// mode returns the most common value across fields of rows. Ties go to the
// value seen first.
func mode(rows []map[string]any, fields []string) any {
	var (
		order  []string
		values = map[string]any{}
		counts = map[string]int{}
	)
	for _, r := range rows {
		for _, f := range fields {
			v, ok := r[f]
			if !ok || v == nil {
				continue
			}
			k := fmt.Sprint(v)
			if _, seen := counts[k]; !seen {
				order = append(order, k)
				values[k] = v
			}
			counts[k]++
		}
	}
	var (
		best  string
		found bool
	)
	for _, k := range order {
		if !found || counts[k] > counts[best] {
			best, found = k, true
		}
	}
	if !found {
		return nil
	}
	return values[best]
}

func sum(out map[string]any, names []string) float64 {
	var s float64
	for _, n := range names {
		f, _ := schema.ToFloat(out[n])
		s += f
	}
	return s
}

func matchNumber(r map[string]any) float64 {
	f, _ := schema.ToFloat(r[fieldMatchNumber])
	return f
}
