package tba

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// Alliance colors as TBA names them.
const (
	Red  = "red"
	Blue = "blue"
)

// CompLevelQual is the comp_level of qualification matches.
const CompLevelQual = "qm"

const teamKeyPrefix = "frc"

// Alliance is one side of a match.
type Alliance struct {
	TeamKeys []string `mapstructure:"team_keys"`
	Score    float64  `mapstructure:"score"`
}

// Match is the subset of a TBA match the pipeline reads. Raw keeps the
// decoded document for expression lookups.
type Match struct {
	Key             string                    `mapstructure:"key"`
	CompLevel       string                    `mapstructure:"comp_level"`
	MatchNumber     int                       `mapstructure:"match_number"`
	Alliances       map[string]Alliance       `mapstructure:"alliances"`
	ScoreBreakdown  map[string]map[string]any `mapstructure:"score_breakdown"`
	WinningAlliance string                    `mapstructure:"winning_alliance"`
	Raw             map[string]any            `mapstructure:"-"`
}

// Qualification reports whether m is a qualification match.
func (m Match) Qualification() bool { return m.CompLevel == CompLevelQual }

// Played reports whether m has a score breakdown and posted scores.
func (m Match) Played() bool {
	if m.ScoreBreakdown == nil {
		return false
	}
	for _, color := range []string{Red, Blue} {
		if a, ok := m.Alliances[color]; !ok || a.Score < 0 {
			return false
		}
	}
	return true
}

// Teams returns the team numbers of color in slot order.
func (m Match) Teams(color string) []string {
	keys := m.Alliances[color].TeamKeys
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = TeamNumber(k)
	}
	return out
}

// Slot finds the alliance color and 1-based robot slot of team.
func (m Match) Slot(team string) (color string, slot int, ok bool) {
	for _, c := range []string{Red, Blue} {
		for i, t := range m.Teams(c) {
			if t == team {
				return c, i + 1, true
			}
		}
	}
	return "", 0, false
}

// Opponent returns the other alliance color.
func Opponent(color string) string {
	if color == Red {
		return Blue
	}
	return Red
}

// Outcome is 1 for a win of color, 0 for a loss and 0.5 for a tie.
func (m Match) Outcome(color string) float64 {
	switch m.WinningAlliance {
	case color:
		return 1
	case "":
		return 0.5
	default:
		return 0
	}
}

// TeamNumber strips the "frc" prefix of a team key.
func TeamNumber(key string) string {
	return strings.TrimPrefix(key, teamKeyPrefix)
}

// DecodeMatches decodes a cached matches response, sorted by level and
// number. Unknown fields are ignored.
func DecodeMatches(data any) ([]Match, error) {
	raw, ok := data.([]any)
	if !ok {
		return nil, fmt.Errorf("decode matches: want a list, got %T", data)
	}
	out := make([]Match, 0, len(raw))
	for _, item := range raw {
		doc, ok := item.(map[string]any)
		if !ok {
			continue
		}
		var m Match
		if err := decode(doc, &m); err != nil {
			return nil, fmt.Errorf("decode match: %w", err)
		}
		m.Raw = doc
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CompLevel != out[j].CompLevel {
			return out[i].CompLevel < out[j].CompLevel
		}
		return out[i].MatchNumber < out[j].MatchNumber
	})
	return out, nil
}

// Ranking is one row of the event ranking table.
type Ranking struct {
	TeamKey       string    `mapstructure:"team_key"`
	Rank          int       `mapstructure:"rank"`
	MatchesPlayed int       `mapstructure:"matches_played"`
	ExtraStats    []float64 `mapstructure:"extra_stats"`
	SortOrders    []float64 `mapstructure:"sort_orders"`
}

// DecodeRankings decodes a cached rankings response.
func DecodeRankings(data any) ([]Ranking, error) {
	var body struct {
		Rankings []Ranking `mapstructure:"rankings"`
	}
	if data == nil {
		return nil, nil
	}
	if err := decode(data, &body); err != nil {
		return nil, fmt.Errorf("decode rankings: %w", err)
	}
	return body.Rankings, nil
}

// Team is one row of the simple team list.
type Team struct {
	Key        string `mapstructure:"key"`
	TeamNumber int    `mapstructure:"team_number"`
	Nickname   string `mapstructure:"nickname"`
}

// DecodeTeams decodes a cached teams/simple response.
func DecodeTeams(data any) ([]Team, error) {
	var out []Team
	if err := decode(data, &out); err != nil {
		return nil, fmt.Errorf("decode teams: %w", err)
	}
	return out, nil
}

func decode(in, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}
