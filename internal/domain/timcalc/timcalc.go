// Package timcalc derives team-in-match fields from one scout's report:
// timeline counts, cycle times, categorical names and aggregates.
package timcalc

import (
	"math"
	"strings"

	"github.com/okian/scoutcalc/internal/domain/stats"
	"github.com/okian/scoutcalc/internal/schema"
)

// Action is one timeline entry.
type Action = map[string]any

const (
	fieldTimeline   = "timeline"
	fieldTime       = "time"
	fieldActionType = "action_type"
	fieldInTeleop   = "in_teleop"
)

// Calculator evaluates the objective TIM schema.
type Calculator struct {
	s *schema.ObjTIM
}

// New returns a calculator for s.
func New(s *schema.ObjTIM) *Calculator {
	return &Calculator{s: s}
}

// Schema returns the calculator's schema.
func (c *Calculator) Schema() *schema.ObjTIM { return c.s }

// Scout computes every per-scout field of row: timeline counts, cycle
// times and categorical names. Aggregates are left to Aggregates, which
// runs after consolidation.
func (c *Calculator) Scout(row map[string]any) map[string]any {
	tl := Timeline(row)
	out := make(map[string]any, len(c.s.TimelineCounts)+len(c.s.CycleTimes)+len(c.s.Categoricals))
	for _, tc := range c.s.TimelineCounts {
		n := tc.Filter.Count(tl)
		if tc.Type == schema.KindBool {
			out[tc.Name] = n > 0
			continue
		}
		out[tc.Name] = schema.Cast(tc.Type, n)
	}
	for _, ct := range c.s.CycleTimes {
		out[ct.Name] = schema.Cast(ct.Type, CycleTime(ct, tl))
	}
	for _, cat := range c.s.Categoricals {
		out[cat.Name] = LongName(cat.Enum, row[cat.Name])
	}
	return out
}

// Aggregates adds each aggregate field to fields, in declared order so
// later aggregates may sum earlier ones.
func (c *Calculator) Aggregates(fields map[string]any) {
	for _, agg := range c.s.Aggregates {
		var total float64
		for _, ref := range agg.Counts {
			f, _ := schema.ToFloat(fields[ref])
			total += f
		}
		fields[agg.Name] = schema.Cast(agg.Type, total)
	}
}

// CycleTime measures ct over a timeline. Scoring cycles report the median
// gap between consecutive scoring actions; paired cycles report the total
// of start/end gaps of at least MinimumTime. Times count down, so an open
// start closes at zero.
func CycleTime(ct schema.CycleTime, tl []Action) float64 {
	actions := ct.Filter.Filter(tl)
	if ct.MedianMode() {
		var times []float64
		for _, a := range actions {
			if strings.HasPrefix(actionType(a), ct.StartAction) {
				times = append(times, actionTime(a))
			}
		}
		if len(times) < 2 {
			return 0
		}
		gaps := make([]float64, 0, len(times)-1)
		for i := 1; i < len(times); i++ {
			gaps = append(gaps, math.Abs(times[i-1]-times[i]))
		}
		return stats.Median(gaps)
	}

	var (
		total float64
		start float64
		open  bool
	)
	closeAt := func(end float64) {
		if d := start - end; d >= float64(ct.MinimumTime) {
			total += d
		}
		open = false
	}
	for _, a := range actions {
		switch at := actionType(a); {
		case !open && at == ct.StartAction:
			start, open = actionTime(a), true
		case open && at == ct.EndAction:
			closeAt(actionTime(a))
		}
	}
	if open {
		closeAt(0)
	}
	return total
}

// LongName translates a short categorical code to its long name. Values
// that already are long names pass through; anything else is empty.
func LongName(en *schema.Enum, v any) string {
	code := fmtValue(v)
	if name, ok := en.Decode(code); ok {
		return name
	}
	if _, ok := en.Ordinal(code); ok {
		return code
	}
	return ""
}

// Timeline returns the timeline of a stored or decoded report.
func Timeline(row map[string]any) []Action {
	switch tl := row[fieldTimeline].(type) {
	case []Action:
		return tl
	case []any:
		out := make([]Action, 0, len(tl))
		for _, item := range tl {
			if a, ok := item.(map[string]any); ok {
				out = append(out, a)
			}
		}
		return out
	}
	return nil
}

// AutoTimeline returns the actions before the switch to teleop.
func AutoTimeline(row map[string]any) []Action {
	var out []Action
	for _, a := range Timeline(row) {
		if teleop, _ := a[fieldInTeleop].(bool); teleop {
			break
		}
		out = append(out, a)
	}
	return out
}

func actionType(a Action) string {
	s, _ := a[fieldActionType].(string)
	return s
}

func actionTime(a Action) float64 {
	f, _ := schema.ToFloat(a[fieldTime])
	return f
}

func fmtValue(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	}
	return schema.Cast(schema.KindStr, v).(string)
}
