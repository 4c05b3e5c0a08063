package calc

import (
	"context"
	"fmt"

	"github.com/okian/scoutcalc/internal/adapters/store"
	"github.com/okian/scoutcalc/internal/adapters/tba"
	"github.com/okian/scoutcalc/internal/schema"
)

// StageTBATIM derives per-robot fields from TBA score breakdowns.
const StageTBATIM = "tba_tim"

// TBATIM reads each robot's slot of the alliance score breakdown.
type TBATIM struct {
	env *Env
}

// NewTBATIM creates the stage.
func NewTBATIM(env *Env) *TBATIM { return &TBATIM{env: env} }

func (s *TBATIM) Name() string      { return StageTBATIM }
func (s *TBATIM) Watches() []string { return []string{store.TBACache} }
func (s *TBATIM) Outputs() []string { return []string{store.TBATIM} }

// Keys asks for a full pass whenever the cached match list changed.
func (s *TBATIM) Keys(changes []store.Change) ([]Key, bool) {
	for _, ch := range changes {
		if ch.Collection == store.TBACache && store.Str(ch.Doc, "api_url") == tba.MatchesPath(s.env.Event) {
			return nil, true
		}
	}
	return nil, false
}

// Recompute rebuilds every TBA TIM; the match list is one cached document
// so there is nothing finer to key on.
func (s *TBATIM) Recompute(ctx context.Context, _ []Key) error {
	matches, err := s.env.Matches(ctx)
	if err != nil {
		return err
	}
	if matches == nil {
		return nil
	}
	var desired []store.Doc
	for _, m := range matches {
		if m.Qualification() && m.Played() {
			desired = append(desired, Robots(s.env.Schemas.TBATIM, m)...)
		}
	}
	return syncDocs(ctx, s.env.Store, store.TBATIM, store.Query{}, timKey, desired)
}

func (s *TBATIM) RecomputeAll(ctx context.Context) error {
	if err := clearOutputs(ctx, s.env.Store, s.Outputs()...); err != nil {
		return err
	}
	return s.Recompute(ctx, nil)
}

// Robots derives one TBA TIM per robot of a played match.
func Robots(s *schema.TBATIM, m tba.Match) []store.Doc {
	var out []store.Doc
	for _, color := range []string{tba.Red, tba.Blue} {
		breakdown := m.ScoreBreakdown[color]
		for i, team := range m.Teams(color) {
			doc := store.Doc{
				FieldTeamNumber:  team,
				FieldMatchNumber: m.MatchNumber,
				FieldAllianceRed: color == tba.Red,
			}
			for _, f := range s.Fields {
				got := fmt.Sprint(breakdown[fmt.Sprintf("%s%d", f.TBAKey, i+1)])
				doc[f.Name] = schema.Cast(f.Type, got == f.Value)
			}
			out = append(out, doc)
		}
	}
	return out
}
