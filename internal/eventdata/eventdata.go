// Package eventdata reads the per-event files kept next to the store: the
// team list, the match schedule and key files.
package eventdata

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/okian/scoutcalc/internal/adapters/tba"
)

// File names under the data directory.
const (
	TeamListFile      = "team_list.json"
	MatchScheduleFile = "match_schedule.json"
)

// Alliance colors in the schedule file.
const (
	ColorRed  = "red"
	ColorBlue = "blue"
)

// Alliances are the team numbers of one match by color, in slot order.
type Alliances struct {
	Red  []string
	Blue []string
}

// Teams returns the teams of color.
func (a Alliances) Teams(color string) []string {
	if color == ColorRed {
		return a.Red
	}
	return a.Blue
}

// Schedule maps qualification match numbers to their alliances.
type Schedule map[int]Alliances

// Matches returns the scheduled match numbers in order.
func (s Schedule) Matches() []int {
	out := make([]int, 0, len(s))
	for m := range s {
		out = append(out, m)
	}
	sort.Ints(out)
	return out
}

// TeamMatches returns every scheduled match of team in order.
func (s Schedule) TeamMatches(team string) []int {
	var out []int
	for _, m := range s.Matches() {
		a := s[m]
		for _, t := range append(append([]string{}, a.Red...), a.Blue...) {
			if t == team {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

// ReadKey returns the trimmed first line of path.
func ReadKey(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrMissingKey, path, err)
	}
	key, _, _ := strings.Cut(strings.TrimSpace(string(b)), "\n")
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrMissingKey, path)
	}
	return key, nil
}

// LoadTeamList reads team_list.json, an array of team numbers written as
// numbers or strings.
func LoadTeamList(dir string) ([]string, error) {
	b, err := os.ReadFile(filepath.Join(dir, TeamListFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingTeamList, err)
	}
	var raw []json.Number
	if err := json.Unmarshal(b, &raw); err != nil {
		var strs []string
		if err2 := json.Unmarshal(b, &strs); err2 != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMissingTeamList, TeamListFile, err)
		}
		return strs, nil
	}
	out := make([]string, len(raw))
	for i, n := range raw {
		out[i] = n.String()
	}
	return out, nil
}

// LoadSchedule reads match_schedule.json. ok is false when the file does
// not exist.
func LoadSchedule(dir string) (Schedule, bool, error) {
	b, err := os.ReadFile(filepath.Join(dir, MatchScheduleFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read schedule: %w", err)
	}
	var raw map[string]struct {
		Teams []struct {
			Number json.Number `json:"number"`
			Color  string      `json:"color"`
		} `json:"teams"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, false, fmt.Errorf("parse schedule: %w", err)
	}
	out := make(Schedule, len(raw))
	for key, m := range raw {
		n, err := strconv.Atoi(key)
		if err != nil {
			return nil, false, fmt.Errorf("parse schedule: match %q: %w", key, err)
		}
		var a Alliances
		for _, t := range m.Teams {
			switch t.Color {
			case ColorRed:
				a.Red = append(a.Red, t.Number.String())
			case ColorBlue:
				a.Blue = append(a.Blue, t.Number.String())
			}
		}
		out[n] = a
	}
	return out, true, nil
}

// ScheduleFromMatches builds a schedule from TBA qualification matches.
func ScheduleFromMatches(ms []tba.Match) Schedule {
	out := Schedule{}
	for _, m := range ms {
		if !m.Qualification() {
			continue
		}
		out[m.MatchNumber] = Alliances{Red: m.Teams(tba.Red), Blue: m.Teams(tba.Blue)}
	}
	return out
}
