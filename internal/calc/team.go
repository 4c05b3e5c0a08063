package calc

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/scoutcalc/internal/adapters/store"
	"github.com/okian/scoutcalc/internal/adapters/tba"
	"github.com/okian/scoutcalc/internal/domain/aggregate"
	"github.com/okian/scoutcalc/internal/domain/opr"
	"github.com/okian/scoutcalc/internal/schema"
	"github.com/okian/scoutcalc/pkg/logger"
)

// Team stage names.
const (
	StageObjTeam  = "obj_team"
	StageSubjTeam = "subj_team"
	StageTBATeam  = "tba_team"
)

var teamKey = []string{FieldTeamNumber}

// TeamAggregate aggregates a team's TIM rows into one team document.
type TeamAggregate struct {
	env    *Env
	name   string
	schema *schema.Team
	output string
	// contributions are solved once per run across every played match.
	contributions bool
}

// NewObjTeam aggregates objective TIMs.
func NewObjTeam(env *Env) *TeamAggregate {
	return &TeamAggregate{env: env, name: StageObjTeam, schema: env.Schemas.ObjTeam, output: store.ObjTeam}
}

// NewSubjTeam aggregates subjective TIMs.
func NewSubjTeam(env *Env) *TeamAggregate {
	return &TeamAggregate{env: env, name: StageSubjTeam, schema: env.Schemas.SubjTeam, output: store.SubjTeam}
}

// NewTBATeam aggregates TBA TIMs and solves calculated contributions.
func NewTBATeam(env *Env) *TeamAggregate {
	return &TeamAggregate{env: env, name: StageTBATeam, schema: env.Schemas.TBATeam, output: store.TBATeam, contributions: true}
}

func (s *TeamAggregate) Name() string { return s.name }

func (s *TeamAggregate) Watches() []string {
	if s.contributions {
		return []string{s.schema.Source, store.TBACache}
	}
	return []string{s.schema.Source}
}

func (s *TeamAggregate) Outputs() []string { return []string{s.output} }

func (s *TeamAggregate) Keys(changes []store.Change) ([]Key, bool) {
	if s.contributions {
		for _, ch := range changes {
			if ch.Collection == store.TBACache {
				return nil, true
			}
		}
	}
	return keysFrom(changes, []string{s.schema.Source}, teamKey...), false
}

func (s *TeamAggregate) Recompute(ctx context.Context, keys []Key) error {
	if keys == nil {
		var err error
		if keys, err = distinctKeys(ctx, s.env.Store, teamKey, s.schema.Source, s.output); err != nil {
			return err
		}
	}
	cc, err := s.solve(ctx)
	if err != nil {
		return err
	}
	return each(ctx, s.env.logger(), s.Name(), keys, func(k Key) error {
		rows, err := s.env.Store.Find(ctx, s.schema.Source, k)
		if err != nil {
			return storeErr(err)
		}
		var desired []store.Doc
		if len(rows) > 0 {
			out := store.Doc(aggregate.Team(s.schema, rows))
			team := fmt.Sprint(k[FieldTeamNumber])
			for name, values := range cc {
				if v, ok := values[team]; ok {
					out[name] = v
				}
			}
			out[FieldTeamNumber] = k[FieldTeamNumber]
			desired = append(desired, out)
		}
		return storeErr(syncDocs(ctx, s.env.Store, s.output, k, teamKey, desired))
	})
}

func (s *TeamAggregate) RecomputeAll(ctx context.Context) error {
	if err := clearOutputs(ctx, s.env.Store, s.Outputs()...); err != nil {
		return err
	}
	return s.Recompute(ctx, nil)
}

// solve computes every calculated contribution over played qualification
// matches. Contributions that cannot be solved are left out.
func (s *TeamAggregate) solve(ctx context.Context) (map[string]map[string]any, error) {
	if !s.contributions || len(s.schema.Contributions) == 0 {
		return nil, nil
	}
	matches, err := s.env.Matches(ctx)
	if err != nil {
		return nil, err
	}
	out := map[string]map[string]any{}
	for _, c := range s.schema.Contributions {
		eqs := Equations(matches, c)
		res, err := opr.Solve(eqs)
		if errors.Is(err, opr.ErrNoEquations) {
			continue
		}
		if err != nil {
			s.env.logger().Warn(ctx, "calculated contribution failed", logger.String("field", c.Name), logger.Error(err))
			continue
		}
		if len(res.Underdetermined) > 0 {
			s.env.logger().Warn(ctx, "calculated contribution underdetermined",
				logger.String("field", c.Name), logger.Any("teams", res.Underdetermined))
		}
		values := make(map[string]any, len(res.Contributions))
		for team, v := range res.Contributions {
			values[team] = schema.Cast(c.Type, v)
		}
		out[c.Name] = values
	}
	return out, nil
}

// Equations builds one equation per alliance of every played
// qualification match. Opposing contributions credit the alliance with
// the other alliance's value.
func Equations(matches []tba.Match, c schema.Contribution) []opr.Equation {
	var eqs []opr.Equation
	for _, m := range matches {
		if !m.Qualification() || !m.Played() {
			continue
		}
		for _, color := range []string{tba.Red, tba.Blue} {
			from := color
			if c.Opposing {
				from = tba.Opponent(color)
			}
			v, ok := schema.ToFloat(m.ScoreBreakdown[from][c.TBAKey])
			teams := m.Teams(color)
			if !ok || len(teams) == 0 {
				continue
			}
			eqs = append(eqs, opr.Equation{Teams: teams, Value: v})
		}
	}
	return eqs
}
