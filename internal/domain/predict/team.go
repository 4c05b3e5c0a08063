package predict

import (
	"sort"
	"strconv"
)

// Standing is a team's expected season outcome.
type Standing struct {
	Team       string
	Matches    int
	TotalRPs   float64
	AverageRPs float64
	Rank       int
}

// Rank averages the ranking points of each team's scheduled matches, played
// or predicted, and ranks teams by that average. Ties rank by team number.
func Rank(rps map[string][]float64) []Standing {
	out := make([]Standing, 0, len(rps))
	for team, xs := range rps {
		s := Standing{Team: team, Matches: len(xs)}
		for _, x := range xs {
			s.TotalRPs += x
		}
		if s.Matches > 0 {
			s.AverageRPs = s.TotalRPs / float64(s.Matches)
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AverageRPs != out[j].AverageRPs {
			return out[i].AverageRPs > out[j].AverageRPs
		}
		return teamLess(out[i].Team, out[j].Team)
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

func teamLess(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		return na < nb
	}
	return a < b
}
