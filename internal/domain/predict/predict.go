// Package predict estimates alliance scores, ranking points and win chances
// for qualification matches from per-team averages.
package predict

import (
	"math"

	"github.com/okian/scoutcalc/internal/schema"
)

// Team input names resolved from team_fields.
const (
	FieldAutoDockedRate  = "auto_docked_rate"
	FieldAutoEngagedRate = "auto_engaged_rate"
	FieldTeleDockedRate  = "tele_docked_rate"
	FieldTeleEngagedRate = "tele_engaged_rate"
	FieldTeleParkedRate  = "tele_parked_rate"
	FieldMobilityRate    = "mobility_rate"
)

// Inputs are the predictor fields of one team, keyed by team_fields name.
type Inputs map[string]float64

// Alliance is the prediction for three teams playing together.
type Alliance struct {
	Score          float64
	GridPoints     float64
	Links          float64
	ChargePoints   float64
	Sustainability float64
	Activation     float64
}

// RP is the expected ranking points for a given win chance.
func (a Alliance) RP(s *schema.PredictedAIM, winChance float64) float64 {
	return winChance*s.RankingPoints.Win + a.Sustainability + a.Activation
}

// Predict scores an alliance. Grid rows are capped at their capacity with
// autonomous pieces placed first; only one robot is credited in auto on
// the charge station.
func Predict(s *schema.PredictedAIM, teams []Inputs) Alliance {
	var out Alliance
	for _, row := range s.Grid.Rows {
		var auto, tele float64
		for _, t := range teams {
			auto += t["auto_"+row]
			tele += t["tele_"+row]
		}
		auto = math.Min(auto, s.Grid.RowCapacity)
		tele = math.Min(tele, s.Grid.RowCapacity-auto)
		out.GridPoints += auto*s.Points.Auto[row] + tele*s.Points.Tele[row]
		out.Links += math.Floor((auto + tele) / s.Grid.LinkSize)
	}

	var mobility, autoCharge, teleCharge float64
	for _, t := range teams {
		mobility += clamp(t[FieldMobilityRate]) * s.Points.Mobility
		autoCharge = math.Max(autoCharge, autoExpected(s, t))
		teleCharge += clamp(t[FieldTeleDockedRate])*s.Points.TeleDocked +
			clamp(t[FieldTeleEngagedRate])*s.Points.TeleEngaged +
			clamp(t[FieldTeleParkedRate])*s.Points.Park
	}
	out.ChargePoints = autoCharge + teleCharge
	out.Score = out.GridPoints + out.Links*s.Points.Link + mobility + out.ChargePoints

	if s.RankingPoints.SustainabilityLinks > 0 {
		out.Sustainability = math.Min(1, out.Links/s.RankingPoints.SustainabilityLinks)
	}
	out.Activation = Activation(s, teams)
	return out
}

// Activation is the probability that charge station points from auto and
// endgame reach the activation threshold. Auto is credited to the team
// with the best expected auto charge; endgame outcomes are independent per
// team. Parking does not count.
func Activation(s *schema.PredictedAIM, teams []Inputs) float64 {
	if len(teams) == 0 {
		return 0
	}
	best := 0
	for i, t := range teams {
		if autoExpected(s, t) > autoExpected(s, teams[best]) {
			best = i
		}
	}
	auto := outcomes(teams[best][FieldAutoDockedRate], teams[best][FieldAutoEngagedRate], s.Points.AutoDocked, s.Points.AutoEngaged)

	dist := map[float64]float64{}
	for _, o := range auto {
		dist[o.points] += o.p
	}
	for _, t := range teams {
		next := map[float64]float64{}
		for pts, p := range dist {
			for _, o := range outcomes(t[FieldTeleDockedRate], t[FieldTeleEngagedRate], s.Points.TeleDocked, s.Points.TeleEngaged) {
				next[pts+o.points] += p * o.p
			}
		}
		dist = next
	}

	var p float64
	for pts, q := range dist {
		if pts >= s.RankingPoints.ActivationPoints {
			p += q
		}
	}
	return math.Min(1, p)
}

type outcome struct {
	points float64
	p      float64
}

func outcomes(docked, engaged, dockedPts, engagedPts float64) []outcome {
	docked, engaged = clamp(docked), clamp(engaged)
	if docked+engaged > 1 {
		total := docked + engaged
		docked, engaged = docked/total, engaged/total
	}
	return []outcome{
		{points: 0, p: 1 - docked - engaged},
		{points: dockedPts, p: docked},
		{points: engagedPts, p: engaged},
	}
}

func autoExpected(s *schema.PredictedAIM, t Inputs) float64 {
	return clamp(t[FieldAutoDockedRate])*s.Points.AutoDocked + clamp(t[FieldAutoEngagedRate])*s.Points.AutoEngaged
}

func clamp(p float64) float64 {
	return math.Max(0, math.Min(1, p))
}
