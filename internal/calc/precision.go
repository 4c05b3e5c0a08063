package calc

import (
	"context"
	"sort"

	"github.com/okian/scoutcalc/internal/adapters/store"
	"github.com/okian/scoutcalc/internal/adapters/tba"
	"github.com/okian/scoutcalc/internal/domain/precision"
	"github.com/okian/scoutcalc/internal/domain/timcalc"
)

// Precision stage names.
const (
	StageSimPrecision   = "sim_precision"
	StageScoutPrecision = "scout_precision"
)

var (
	matchKey        = []string{FieldMatchNumber}
	scoutKey        = []string{FieldScoutName}
	simPrecisionKey = []string{FieldScoutName, FieldMatchNumber}
)

// SimPrecision compares each scout's counts with the official breakdown of
// the alliance they scouted.
type SimPrecision struct {
	env  *Env
	calc *timcalc.Calculator
}

// NewSimPrecision creates the stage.
func NewSimPrecision(env *Env) *SimPrecision {
	return &SimPrecision{env: env, calc: timcalc.New(env.Schemas.ObjTIM)}
}

func (s *SimPrecision) Name() string { return StageSimPrecision }

func (s *SimPrecision) Watches() []string {
	return []string{store.UnconsolidatedObjTIM, store.TBACache}
}

func (s *SimPrecision) Outputs() []string { return []string{store.SimPrecision} }

func (s *SimPrecision) Keys(changes []store.Change) ([]Key, bool) {
	for _, ch := range changes {
		if ch.Collection == store.TBACache {
			return nil, true
		}
	}
	return keysFrom(changes, []string{store.UnconsolidatedObjTIM}, matchKey...), false
}

func (s *SimPrecision) Recompute(ctx context.Context, keys []Key) error {
	if keys == nil {
		var err error
		if keys, err = distinctKeys(ctx, s.env.Store, matchKey, store.UnconsolidatedObjTIM, store.SimPrecision); err != nil {
			return err
		}
	}
	matches, err := s.env.Matches(ctx)
	if err != nil {
		return err
	}
	played := map[int]tba.Match{}
	for _, m := range matches {
		if m.Qualification() && m.Played() {
			played[m.MatchNumber] = m
		}
	}
	return each(ctx, s.env.logger(), s.Name(), keys, func(k Key) error {
		var desired []store.Doc
		num, _ := store.Int(store.Doc(k), FieldMatchNumber)
		if m, ok := played[num]; ok {
			rows, err := s.env.Store.Find(ctx, store.UnconsolidatedObjTIM, k)
			if err != nil {
				return storeErr(err)
			}
			desired = s.Match(m, rows)
		}
		return storeErr(syncDocs(ctx, s.env.Store, store.SimPrecision, k, simPrecisionKey, desired))
	})
}

func (s *SimPrecision) RecomputeAll(ctx context.Context) error {
	if err := clearOutputs(ctx, s.env.Store, s.Outputs()...); err != nil {
		return err
	}
	return s.Recompute(ctx, nil)
}

// Match computes the sim precision rows of every scout of a played match.
func (s *SimPrecision) Match(m tba.Match, rows []store.Doc) []store.Doc {
	sp := s.env.Schemas.SimPrecision
	var out []store.Doc
	for _, color := range []string{tba.Red, tba.Blue} {
		a := precision.Alliance{Teams: m.Teams(color), Color: color, Match: m.Raw}
		teamOf := map[string]string{}
		for _, r := range rows {
			team := store.Str(r, FieldTeamNumber)
			if c, _, ok := m.Slot(team); !ok || c != color {
				continue
			}
			scout := store.Str(r, FieldScoutName)
			teamOf[scout] = team
			a.Reports = append(a.Reports, precision.Report{Scout: scout, Team: team, Fields: s.calc.Scout(r)})
		}
		for scout, values := range precision.Sim(sp, a) {
			doc := store.Doc{
				FieldScoutName:   scout,
				FieldMatchNumber: m.MatchNumber,
				FieldTeamNumber:  teamOf[scout],
				FieldAllianceRed: color == tba.Red,
			}
			for name, v := range values {
				doc[name] = v
			}
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return store.Str(out[i], FieldScoutName) < store.Str(out[j], FieldScoutName) })
	return out
}

// ScoutPrecision averages each scout's sim precision over their matches.
type ScoutPrecision struct {
	env *Env
}

// NewScoutPrecision creates the stage.
func NewScoutPrecision(env *Env) *ScoutPrecision { return &ScoutPrecision{env: env} }

func (s *ScoutPrecision) Name() string      { return StageScoutPrecision }
func (s *ScoutPrecision) Watches() []string { return []string{store.SimPrecision} }
func (s *ScoutPrecision) Outputs() []string { return []string{store.ScoutPrecision} }

func (s *ScoutPrecision) Keys(changes []store.Change) ([]Key, bool) {
	return keysFrom(changes, s.Watches(), scoutKey...), false
}

func (s *ScoutPrecision) Recompute(ctx context.Context, keys []Key) error {
	if keys == nil {
		var err error
		if keys, err = distinctKeys(ctx, s.env.Store, scoutKey, store.SimPrecision, store.ScoutPrecision); err != nil {
			return err
		}
	}
	return each(ctx, s.env.logger(), s.Name(), keys, func(k Key) error {
		rows, err := s.env.Store.Find(ctx, store.SimPrecision, k)
		if err != nil {
			return storeErr(err)
		}
		var desired []store.Doc
		if len(rows) > 0 {
			maps := make([]map[string]any, len(rows))
			for i, r := range rows {
				maps[i] = r
			}
			doc := store.Doc(precision.Scout(s.env.Schemas.SimPrecision, maps))
			doc[FieldScoutName] = k[FieldScoutName]
			desired = append(desired, doc)
		}
		return storeErr(syncDocs(ctx, s.env.Store, store.ScoutPrecision, k, scoutKey, desired))
	})
}

func (s *ScoutPrecision) RecomputeAll(ctx context.Context) error {
	if err := clearOutputs(ctx, s.env.Store, s.Outputs()...); err != nil {
		return err
	}
	return s.Recompute(ctx, nil)
}
