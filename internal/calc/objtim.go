package calc

import (
	"context"

	"github.com/okian/scoutcalc/internal/adapters/store"
	"github.com/okian/scoutcalc/internal/domain/consolidation"
	"github.com/okian/scoutcalc/internal/domain/timcalc"
)

// StageObjTIM consolidates scout rows into one objective TIM.
const StageObjTIM = "obj_tim"

var timKey = []string{FieldTeamNumber, FieldMatchNumber}

// ObjTIM fuses every scout's report of a team in a match.
type ObjTIM struct {
	env  *Env
	calc *timcalc.Calculator
	pick func([]any) any
}

// NewObjTIM creates the stage. pick breaks ties between non-numeric
// timeline values.
func NewObjTIM(env *Env, pick func([]any) any) *ObjTIM {
	if pick == nil {
		pick = consolidation.Picker(consolidation.TieLexical, nil)
	}
	return &ObjTIM{env: env, calc: timcalc.New(env.Schemas.ObjTIM), pick: pick}
}

func (s *ObjTIM) Name() string      { return StageObjTIM }
func (s *ObjTIM) Watches() []string { return []string{store.UnconsolidatedObjTIM} }
func (s *ObjTIM) Outputs() []string { return []string{store.ObjTIM} }

func (s *ObjTIM) Keys(changes []store.Change) ([]Key, bool) {
	return keysFrom(changes, s.Watches(), timKey...), false
}

func (s *ObjTIM) Recompute(ctx context.Context, keys []Key) error {
	if keys == nil {
		var err error
		if keys, err = distinctKeys(ctx, s.env.Store, timKey, store.UnconsolidatedObjTIM, store.ObjTIM); err != nil {
			return err
		}
	}
	return each(ctx, s.env.logger(), s.Name(), keys, func(k Key) error {
		rows, err := s.env.Store.Find(ctx, store.UnconsolidatedObjTIM, k)
		if err != nil {
			return storeErr(err)
		}
		var desired []store.Doc
		if len(rows) > 0 {
			desired = append(desired, s.Consolidate(k, rows))
		}
		return storeErr(syncDocs(ctx, s.env.Store, store.ObjTIM, k, timKey, desired))
	})
}

func (s *ObjTIM) RecomputeAll(ctx context.Context) error {
	if err := clearOutputs(ctx, s.env.Store, s.Outputs()...); err != nil {
		return err
	}
	return s.Recompute(ctx, nil)
}

// Consolidate builds the objective TIM of key from its scout rows.
func (s *ObjTIM) Consolidate(k Key, rows []store.Doc) store.Doc {
	scouts := make([]map[string]any, len(rows))
	autos := make([][]map[string]any, len(rows))
	for i, r := range rows {
		scouts[i] = s.calc.Scout(r)
		autos[i] = timcalc.AutoTimeline(r)
	}
	out := store.Doc(consolidation.Fields(s.calc.Schema(), scouts))
	s.calc.Aggregates(out)
	out[FieldAutoTimeline] = consolidation.Timeline(autos, s.pick)
	out[FieldConfidence] = len(rows)
	for f, v := range k {
		out[f] = v
	}
	return out
}
