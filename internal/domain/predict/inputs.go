package predict

import (
	"fmt"

	"github.com/okian/scoutcalc/internal/schema"
)

// Resolve sums the referenced fields of each team_fields entry. docs maps a
// collection name to the team's document in it. Unknown collections and
// absent fields are reported by name.
func Resolve(s *schema.PredictedAIM, docs map[string]map[string]any) (Inputs, error) {
	out := make(Inputs, len(s.TeamFields))
	for name, refs := range s.TeamFields {
		var sum float64
		for _, ref := range refs {
			coll, field, _ := schema.SplitRef(ref)
			doc, ok := docs[coll]
			if !ok {
				return nil, fmt.Errorf("no %s document for %s", coll, name)
			}
			v, ok := schema.ToFloat(doc[field])
			if !ok {
				return nil, fmt.Errorf("%s has no numeric %s", coll, field)
			}
			sum += v
		}
		out[name] = sum
	}
	return out, nil
}
