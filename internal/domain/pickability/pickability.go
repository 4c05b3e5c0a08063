// Package pickability scores teams for alliance selection as weighted sums
// of fields from other team collections.
package pickability

import (
	"fmt"
	"math"

	"github.com/okian/scoutcalc/internal/schema"
)

// Input maps a collection name to one team's document in it.
type Input map[string]map[string]any

// Scorer computes the pickability calculations of a schema.
type Scorer struct {
	schema *schema.Pickability
}

// New creates a scorer for s.
func New(s *schema.Pickability) *Scorer {
	return &Scorer{schema: s}
}

// Score evaluates every calculation for one team. A calculation with a
// missing reference is left out of the result and reported in skipped; max
// calculations use whichever of their inputs were computed.
func (s *Scorer) Score(in Input) (out map[string]any, skipped []error) {
	out = map[string]any{}
	values := map[string]float64{}
	for _, c := range s.schema.Calculations {
		v, err := weighted(c.Weights, in)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("%s: %w", c.Name, err))
			continue
		}
		values[c.Name] = v
		out[c.Name] = schema.Cast(c.Type, v)
	}
	for _, m := range s.schema.Max {
		best := math.Inf(-1)
		for _, ref := range m.Of {
			if v, ok := values[ref]; ok {
				best = math.Max(best, v)
			}
		}
		if math.IsInf(best, -1) {
			skipped = append(skipped, fmt.Errorf("%s: %w: none of %v", m.Name, ErrMissingReference, m.Of))
			continue
		}
		values[m.Name] = best
		out[m.Name] = schema.Cast(m.Type, best)
	}
	return out, skipped
}

func weighted(terms []schema.Term, in Input) (float64, error) {
	var sum float64
	for _, t := range terms {
		coll, field, _ := schema.SplitRef(t.Ref)
		doc, ok := in[coll]
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrMissingReference, coll)
		}
		v, ok := schema.ToFloat(doc[field])
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrMissingReference, t.Ref)
		}
		sum += t.Weight * v
	}
	return sum, nil
}
