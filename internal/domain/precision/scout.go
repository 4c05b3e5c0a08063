package precision

import (
	"math"

	"github.com/okian/scoutcalc/internal/domain/stats"
	"github.com/okian/scoutcalc/internal/schema"
)

// FieldScoutPrecision is the headline field of a scout precision row.
const FieldScoutPrecision = "scout_precision"

// Scout averages a scout's per-match sim precision rows. Each calculation
// and the headline are averaged separately; with Absolute set the
// magnitudes are averaged.
func Scout(s *schema.SimPrecision, rows []map[string]any) map[string]any {
	out := map[string]any{"matches": len(rows)}
	names := make([]string, 0, len(s.Calculations)+1)
	for _, c := range s.Calculations {
		names = append(names, c.Name)
	}
	names = append(names, s.Headline)

	for _, name := range names {
		xs := make([]float64, 0, len(rows))
		for _, r := range rows {
			v, ok := schema.ToFloat(r[name])
			if !ok {
				continue
			}
			if s.Absolute {
				v = math.Abs(v)
			}
			xs = append(xs, v)
		}
		key := name
		if name == s.Headline {
			key = FieldScoutPrecision
		}
		out[key] = stats.Mean(xs)
	}
	return out
}
