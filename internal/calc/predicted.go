package calc

import (
	"context"
	"fmt"
	"sort"

	"github.com/okian/scoutcalc/internal/adapters/store"
	"github.com/okian/scoutcalc/internal/adapters/tba"
	"github.com/okian/scoutcalc/internal/domain/predict"
	"github.com/okian/scoutcalc/internal/schema"
	"github.com/okian/scoutcalc/pkg/logger"
)

// Prediction stage names.
const (
	StagePredictedAIM  = "predicted_aim"
	StagePredictedTeam = "predicted_team"
)

// Predicted alliance-in-match fields.
const (
	FieldPredictedScore = "predicted_score"
	FieldPredictedRP1   = "predicted_rp1"
	FieldPredictedRP2   = "predicted_rp2"
	FieldPredictedRP    = "predicted_rp"
	FieldWinChance      = "win_chance"
	FieldHasTBAData     = "has_tba_data"
	FieldActualScore    = "actual_score"
	FieldActualRP1      = "actual_rp1"
	FieldActualRP2      = "actual_rp2"
	FieldActualRP       = "actual_rp"
	FieldWonMatch       = "won_match"
)

// Predicted team fields.
const (
	FieldPredictedRank    = "predicted_rank"
	FieldPredictedRPs     = "predicted_rps"
	FieldPredictedAvgRPs  = "predicted_avg_rps"
	FieldScheduledMatches = "scheduled_matches"
	FieldCurrentRank      = "current_rank"
	FieldCurrentRPs       = "current_rps"
	FieldCurrentAvgRPs    = "current_avg_rps"
)

var aimKey = []string{FieldMatchNumber, FieldAllianceRed}

// PredictedAIM predicts every scheduled qualification alliance. The win
// chance model is fitted across the whole event, so any input change
// recomputes every alliance.
type PredictedAIM struct {
	env        *Env
	minMatches int
}

// NewPredictedAIM creates the stage. The win chance stays at 0.5 until
// minMatches played matches are available.
func NewPredictedAIM(env *Env, minMatches int) *PredictedAIM {
	return &PredictedAIM{env: env, minMatches: minMatches}
}

func (s *PredictedAIM) Name() string { return StagePredictedAIM }

func (s *PredictedAIM) Watches() []string {
	return []string{store.ObjTeam, store.TBATeam, store.SubjTeam, store.TBACache}
}

func (s *PredictedAIM) Outputs() []string { return []string{store.PredictedAIM} }

func (s *PredictedAIM) Keys(changes []store.Change) ([]Key, bool) {
	for _, ch := range changes {
		for _, w := range s.Watches() {
			if ch.Collection == w {
				return nil, true
			}
		}
	}
	return nil, false
}

func (s *PredictedAIM) Recompute(ctx context.Context, _ []Key) error {
	sched, err := s.env.QualSchedule(ctx)
	if err != nil {
		return err
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

	inputs, err := s.teamInputs(ctx)
	if err != nil {
		return err
	}
	aims := s.env.Schemas.PredictedAIM
	xs, ys := margins(played)
	// Every played match contributes one sample per alliance.
	model := predict.FitLogistic(xs, ys, 2*s.minMatches)

	var desired []store.Doc
	for _, num := range sched.Matches() {
		alliances := sched[num]
		preds := map[string]*predict.Alliance{}
		for _, color := range []string{tba.Red, tba.Blue} {
			if a, ok := predictAlliance(aims, inputs, alliances.Teams(color)); ok {
				preds[color] = &a
			}
		}
		for _, color := range []string{tba.Red, tba.Blue} {
			pred := preds[color]
			if pred == nil {
				continue
			}
			win := 0.5
			if opp := preds[tba.Opponent(color)]; opp != nil {
				win = model.Chance(pred.Score - opp.Score)
			}
			doc := store.Doc{
				FieldMatchNumber:    num,
				FieldAllianceRed:    color == tba.Red,
				FieldTeamNumbers:    alliances.Teams(color),
				FieldPredictedScore: pred.Score,
				FieldPredictedRP1:   pred.Sustainability,
				FieldPredictedRP2:   pred.Activation,
				FieldWinChance:      win,
				FieldPredictedRP:    pred.RP(aims, win),
				FieldHasTBAData:     false,
			}
			if m, ok := played[num]; ok {
				actual(aims, m, color, doc)
			}
			desired = append(desired, doc)
		}
	}
	return syncDocs(ctx, s.env.Store, store.PredictedAIM, store.Query{}, aimKey, desired)
}

func (s *PredictedAIM) RecomputeAll(ctx context.Context) error {
	if err := clearOutputs(ctx, s.env.Store, s.Outputs()...); err != nil {
		return err
	}
	return s.Recompute(ctx, nil)
}

// teamInputs resolves predictor inputs for every team that has both
// objective and TBA aggregates. Other teams are absent from the result.
func (s *PredictedAIM) teamInputs(ctx context.Context) (map[string]predict.Inputs, error) {
	docs := map[string]map[string]map[string]any{}
	for _, coll := range []string{store.ObjTeam, store.TBATeam, store.SubjTeam} {
		found, err := s.env.Store.Find(ctx, coll, nil)
		if err != nil {
			return nil, fmt.Errorf("find %s: %w", coll, err)
		}
		for _, d := range found {
			team := store.Str(d, FieldTeamNumber)
			if docs[team] == nil {
				docs[team] = map[string]map[string]any{}
			}
			docs[team][coll] = d
		}
	}
	out := map[string]predict.Inputs{}
	for team, byColl := range docs {
		if byColl[store.ObjTeam] == nil || byColl[store.TBATeam] == nil {
			continue
		}
		in, err := predict.Resolve(s.env.Schemas.PredictedAIM, byColl)
		if err != nil {
			s.env.logger().Warn(ctx, "predictor inputs incomplete", logger.String("team", team), logger.Error(err))
			continue
		}
		out[team] = in
	}
	return out, nil
}

// predictAlliance predicts teams when every one of them has inputs.
func predictAlliance(s *schema.PredictedAIM, inputs map[string]predict.Inputs, teams []string) (predict.Alliance, bool) {
	if len(teams) == 0 {
		return predict.Alliance{}, false
	}
	in := make([]predict.Inputs, 0, len(teams))
	for _, t := range teams {
		ti, ok := inputs[t]
		if !ok {
			return predict.Alliance{}, false
		}
		in = append(in, ti)
	}
	return predict.Predict(s, in), true
}

// margins lists each alliance's actual score margin and whether it won.
// Ties count as losses. Matches are visited in number order so the fit is
// deterministic.
func margins(played map[int]tba.Match) ([]float64, []float64) {
	nums := make([]int, 0, len(played))
	for n := range played {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	var xs, ys []float64
	for _, n := range nums {
		m := played[n]
		for _, color := range []string{tba.Red, tba.Blue} {
			xs = append(xs, m.Alliances[color].Score-m.Alliances[tba.Opponent(color)].Score)
			won := 0.0
			if m.WinningAlliance == color {
				won = 1
			}
			ys = append(ys, won)
		}
	}
	return xs, ys
}

// actual copies the official outcome of a played match into doc.
func actual(s *schema.PredictedAIM, m tba.Match, color string, doc store.Doc) {
	breakdown := m.ScoreBreakdown[color]
	doc[FieldHasTBAData] = true
	doc[FieldActualScore] = m.Alliances[color].Score
	doc[FieldWonMatch] = m.WinningAlliance == color
	for field, key := range map[string]string{
		FieldActualRP1: s.Actual.RP1,
		FieldActualRP2: s.Actual.RP2,
		FieldActualRP:  s.Actual.RP,
	} {
		if key == "" {
			continue
		}
		if v, ok := schema.ToFloat(breakdown[key]); ok {
			doc[field] = v
		}
	}
}

// PredictedTeam ranks teams by the mean ranking points of their scheduled
// matches, using actual points where a match was played. Every team of the
// event's team list has a row, ranked or not.
type PredictedTeam struct {
	env *Env
}

// NewPredictedTeam creates the stage.
func NewPredictedTeam(env *Env) *PredictedTeam { return &PredictedTeam{env: env} }

func (s *PredictedTeam) Name() string { return StagePredictedTeam }

func (s *PredictedTeam) Watches() []string {
	return []string{store.PredictedAIM, store.TBACache}
}

func (s *PredictedTeam) Outputs() []string { return []string{store.PredictedTeam} }

func (s *PredictedTeam) Keys(changes []store.Change) ([]Key, bool) {
	for _, ch := range changes {
		if ch.Collection == store.PredictedAIM || ch.Collection == store.TBACache {
			return nil, true
		}
	}
	return nil, false
}

func (s *PredictedTeam) Recompute(ctx context.Context, _ []Key) error {
	aims, err := s.env.Store.Find(ctx, store.PredictedAIM, nil)
	if err != nil {
		return fmt.Errorf("find %s: %w", store.PredictedAIM, err)
	}
	rps := map[string][]float64{}
	for _, a := range aims {
		rp, ok := schema.ToFloat(a[FieldActualRP])
		if !ok {
			if rp, ok = schema.ToFloat(a[FieldPredictedRP]); !ok {
				continue
			}
		}
		teams, _ := a[FieldTeamNumbers].([]any)
		for _, t := range teams {
			team := fmt.Sprint(t)
			rps[team] = append(rps[team], rp)
		}
	}

	docs := map[string]store.Doc{}
	for _, st := range predict.Rank(rps) {
		docs[st.Team] = store.Doc{
			FieldTeamNumber:       st.Team,
			FieldPredictedRank:    st.Rank,
			FieldPredictedRPs:     st.TotalRPs,
			FieldPredictedAvgRPs:  st.AverageRPs,
			FieldScheduledMatches: st.Matches,
		}
	}
	if err := s.current(ctx, docs); err != nil {
		s.env.logger().Warn(ctx, "tba rankings unusable", logger.Error(err))
	}
	// Listed teams without any data still get a row.
	for _, team := range s.env.Teams {
		if _, ok := docs[team]; !ok {
			docs[team] = store.Doc{FieldTeamNumber: team, FieldScheduledMatches: 0}
		}
	}

	desired := make([]store.Doc, 0, len(docs))
	for _, d := range docs {
		desired = append(desired, d)
	}
	return syncDocs(ctx, s.env.Store, store.PredictedTeam, store.Query{}, teamKey, desired)
}

func (s *PredictedTeam) RecomputeAll(ctx context.Context) error {
	if err := clearOutputs(ctx, s.env.Store, s.Outputs()...); err != nil {
		return err
	}
	return s.Recompute(ctx, nil)
}

// current adds the official ranking of each team from cached TBA rankings.
func (s *PredictedTeam) current(ctx context.Context, docs map[string]store.Doc) error {
	if s.env.TBA == nil {
		return nil
	}
	data, ok, err := s.env.TBA.Cached(ctx, tba.RankingsPath(s.env.Event))
	if err != nil || !ok {
		return err
	}
	rankings, err := tba.DecodeRankings(data)
	if err != nil {
		return err
	}
	cfg := s.env.Schemas.PredictedTeam.Rankings
	for _, r := range rankings {
		team := tba.TeamNumber(r.TeamKey)
		d, ok := docs[team]
		if !ok {
			d = store.Doc{FieldTeamNumber: team}
			docs[team] = d
		}
		d[FieldCurrentRank] = r.Rank
		avg, hasAvg := at(r.SortOrders, cfg.AvgRPsSortOrder)
		if hasAvg {
			d[FieldCurrentAvgRPs] = avg
		}
		if total, ok := at(r.ExtraStats, cfg.TotalRPsExtraStat); ok {
			d[FieldCurrentRPs] = total
		} else if hasAvg {
			d[FieldCurrentRPs] = avg * float64(r.MatchesPlayed)
		}
	}
	return nil
}

func at(xs []float64, i int) (float64, bool) {
	if i < 0 || i >= len(xs) {
		return 0, false
	}
	return xs[i], true
}
