package schema

import (
	"fmt"
	"strings"

	"github.com/okian/scoutcalc/internal/domain/predicate"
	"gopkg.in/yaml.v3"
)

// LFMPrefix marks calculations restricted to a team's last four matches.
const LFMPrefix = "lfm_"

// LFMWindow is the number of matches an LFM calculation considers.
const LFMWindow = 4

// IsLFM reports whether name is a last-four-matches calculation.
func IsLFM(name string) bool { return strings.HasPrefix(name, LFMPrefix) }

// ObjTIM is calc_obj_tim_schema.
type ObjTIM struct {
	TimelineCounts []TimelineCount
	CycleTimes     []CycleTime
	Categoricals   []Categorical
	Aggregates     []Aggregate
}

// TimelineCount counts timeline actions matching Filter. Bool outputs
// report whether any action matched.
type TimelineCount struct {
	Name   string
	Type   Kind
	Filter predicate.Predicate
}

// CycleTime measures time between StartAction and EndAction. A start
// action of "score" selects the median gap between scoring actions.
type CycleTime struct {
	Name        string
	Type        Kind
	StartAction string
	EndAction   string
	MinimumTime int
	Filter      predicate.Predicate
}

// MedianMode reports whether the cycle time is the median scoring interval.
func (c CycleTime) MedianMode() bool { return c.StartAction == "score" }

// Categorical maps a per-scout short code to a long name via Enum.
type Categorical struct {
	Name string
	Type Kind
	Enum *Enum
}

// Aggregate sums previously computed TIM fields.
type Aggregate struct {
	Name   string
	Type   Kind
	Counts []string
}

func parseObjTIM(root *yaml.Node) (*ObjTIM, error) {
	s := &ObjTIM{}

	n, err := section(root, "timeline_counts")
	if err != nil {
		return nil, err
	}
	es, err := entries(n)
	if err != nil {
		return nil, err
	}
	for _, e := range es {
		var raw struct {
			Type   string         `mapstructure:"type"`
			Filter map[string]any `mapstructure:"filter"`
		}
		if err := decode(e.node, &raw); err != nil {
			return nil, err
		}
		k, err := outputKind(e.key, raw.Type, KindInt)
		if err != nil {
			return nil, err
		}
		p, err := predicate.Parse(raw.Filter)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidSchema, e.key, err)
		}
		s.TimelineCounts = append(s.TimelineCounts, TimelineCount{Name: e.key, Type: k, Filter: p})
	}

	if n, err = section(root, "timeline_cycle_time"); err != nil {
		return nil, err
	}
	if es, err = entries(n); err != nil {
		return nil, err
	}
	for _, e := range es {
		var raw struct {
			Type        string         `mapstructure:"type"`
			StartAction string         `mapstructure:"start_action"`
			EndAction   string         `mapstructure:"end_action"`
			MinimumTime int            `mapstructure:"minimum_time"`
			Filter      map[string]any `mapstructure:"filter"`
		}
		if err := decode(e.node, &raw); err != nil {
			return nil, err
		}
		if raw.StartAction == "" || raw.EndAction == "" {
			return nil, fmt.Errorf("%w: %s needs start_action and end_action", ErrInvalidSchema, e.key)
		}
		k, err := outputKind(e.key, raw.Type, KindInt)
		if err != nil {
			return nil, err
		}
		p, err := predicate.Parse(raw.Filter)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidSchema, e.key, err)
		}
		s.CycleTimes = append(s.CycleTimes, CycleTime{
			Name: e.key, Type: k, StartAction: raw.StartAction, EndAction: raw.EndAction,
			MinimumTime: raw.MinimumTime, Filter: p,
		})
	}

	if n, err = section(root, "categorical_actions"); err != nil {
		return nil, err
	}
	if es, err = entries(n); err != nil {
		return nil, err
	}
	for _, e := range es {
		fields, err := entries(e.node)
		if err != nil {
			return nil, err
		}
		c := Categorical{Name: e.key, Type: KindStr}
		for _, f := range fields {
			switch f.key {
			case "type":
				if c.Type, err = outputKind(e.key, f.node.Value, KindStr); err != nil {
					return nil, err
				}
			case "enums":
				if c.Enum, err = parseCodeEnum(e.key, f.node); err != nil {
					return nil, err
				}
			default:
				return nil, fmt.Errorf("%w: %s: unknown key %s", ErrInvalidSchema, e.key, f.key)
			}
		}
		if c.Enum == nil {
			return nil, fmt.Errorf("%w: %s needs enums", ErrInvalidSchema, e.key)
		}
		s.Categoricals = append(s.Categoricals, c)
	}

	if n, err = section(root, "aggregates"); err != nil {
		return nil, err
	}
	if es, err = entries(n); err != nil {
		return nil, err
	}
	known := map[string]bool{}
	for _, c := range s.TimelineCounts {
		known[c.Name] = true
	}
	for _, c := range s.CycleTimes {
		known[c.Name] = true
	}
	for _, e := range es {
		var raw struct {
			Type   string   `mapstructure:"type"`
			Counts []string `mapstructure:"counts"`
		}
		if err := decode(e.node, &raw); err != nil {
			return nil, err
		}
		for _, ref := range raw.Counts {
			if !known[ref] {
				return nil, fmt.Errorf("%w: aggregate %s references unknown field %s", ErrInvalidSchema, e.key, ref)
			}
		}
		k, err := outputKind(e.key, raw.Type, KindInt)
		if err != nil {
			return nil, err
		}
		s.Aggregates = append(s.Aggregates, Aggregate{Name: e.key, Type: k, Counts: raw.Counts})
		known[e.key] = true
	}
	return s, nil
}

// Team is a per-team aggregation schema over a TIM-level Source collection.
type Team struct {
	Source             string
	Averages           []Average
	Counts             []Count
	Extrema            []Extremum
	Modes              []Mode
	StandardDeviations []Average
	AveragePoints      []Points
	SuccessRates       []Rate
	Contributions      []Contribution
}

// Average sums Fields per TIM, then averages across TIMs.
type Average struct {
	Name   string
	Type   Kind
	Fields []string
}

// Count counts TIMs matching Where.
type Count struct {
	Name  string
	Type  Kind
	Where predicate.Predicate
}

// Extremum is the max or min of Field across TIMs.
type Extremum struct {
	Name  string
	Type  Kind
	Field string
	Max   bool
}

// Mode is the most common value of Fields across TIMs.
type Mode struct {
	Name   string
	Type   Kind
	Fields []string
}

// Points averages a weighted sum of TIM fields.
type Points struct {
	Name    string
	Type    Kind
	Weights []Term
}

// Rate divides summed success counts by summed attempt counts.
type Rate struct {
	Name      string
	Type      Kind
	Successes []string
	Attempts  []string
}

// Contribution is a least-squares calculated contribution over a TBA score
// breakdown key.
type Contribution struct {
	Name     string
	Type     Kind
	TBAKey   string
	Opposing bool
}

func parseTeam(root *yaml.Node) (*Team, error) {
	t := &Team{}
	top, err := entries(root)
	if err != nil {
		return nil, err
	}
	counts := map[string]bool{}
	for _, sec := range top {
		if sec.key == "source" {
			t.Source = sec.node.Value
			continue
		}
		es, err := entries(sec.node)
		if err != nil {
			return nil, err
		}
		for _, e := range es {
			if err := t.parseEntry(sec.key, e, counts); err != nil {
				return nil, err
			}
		}
	}
	if t.Source == "" {
		return nil, fmt.Errorf("%w: team schema needs a source collection", ErrInvalidSchema)
	}
	return t, nil
}

func (t *Team) parseEntry(category string, e entry, counts map[string]bool) error {
	switch category {
	case "averages", "standard_deviations":
		var raw struct {
			Type      string   `mapstructure:"type"`
			TIMFields []string `mapstructure:"tim_fields"`
		}
		if err := decode(e.node, &raw); err != nil {
			return err
		}
		k, err := outputKind(e.key, raw.Type, KindFloat)
		if err != nil {
			return err
		}
		a := Average{Name: e.key, Type: k, Fields: raw.TIMFields}
		if category == "averages" {
			t.Averages = append(t.Averages, a)
		} else {
			t.StandardDeviations = append(t.StandardDeviations, a)
		}
	case "counts":
		var raw struct {
			Type      string         `mapstructure:"type"`
			TIMFields map[string]any `mapstructure:"tim_fields"`
			Not       map[string]any `mapstructure:"not"`
		}
		if err := decode(e.node, &raw); err != nil {
			return err
		}
		k, err := outputKind(e.key, raw.Type, KindInt)
		if err != nil {
			return err
		}
		where, err := predicate.Parse(raw.TIMFields)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidSchema, e.key, err)
		}
		t.Counts = append(t.Counts, Count{Name: e.key, Type: k, Where: predicate.And(where, predicate.ParseNot(raw.Not))})
		counts[e.key] = true
	case "extrema":
		var raw struct {
			Type        string `mapstructure:"type"`
			TIMField    string `mapstructure:"tim_field"`
			ExtremaType string `mapstructure:"extrema_type"`
		}
		if err := decode(e.node, &raw); err != nil {
			return err
		}
		if raw.ExtremaType != "max" && raw.ExtremaType != "min" {
			return fmt.Errorf("%w: %s: extrema_type must be max or min", ErrInvalidSchema, e.key)
		}
		k, err := outputKind(e.key, raw.Type, KindInt)
		if err != nil {
			return err
		}
		t.Extrema = append(t.Extrema, Extremum{Name: e.key, Type: k, Field: raw.TIMField, Max: raw.ExtremaType == "max"})
	case "modes":
		var raw struct {
			Type      string   `mapstructure:"type"`
			TIMFields []string `mapstructure:"tim_fields"`
		}
		if err := decode(e.node, &raw); err != nil {
			return err
		}
		k, err := outputKind(e.key, raw.Type, KindStr)
		if err != nil {
			return err
		}
		t.Modes = append(t.Modes, Mode{Name: e.key, Type: k, Fields: raw.TIMFields})
	case "average_points":
		var raw struct {
			Type    string             `mapstructure:"type"`
			Weights map[string]float64 `mapstructure:"weights"`
		}
		if err := decode(e.node, &raw); err != nil {
			return err
		}
		k, err := outputKind(e.key, raw.Type, KindFloat)
		if err != nil {
			return err
		}
		t.AveragePoints = append(t.AveragePoints, Points{Name: e.key, Type: k, Weights: sortedTerms(raw.Weights)})
	case "success_rates":
		var raw struct {
			Type      string   `mapstructure:"type"`
			Successes []string `mapstructure:"successes"`
			Attempts  []string `mapstructure:"attempts"`
		}
		if err := decode(e.node, &raw); err != nil {
			return err
		}
		for _, ref := range append(append([]string{}, raw.Successes...), raw.Attempts...) {
			if !counts[ref] {
				return fmt.Errorf("%w: success rate %s references unknown count %s", ErrInvalidSchema, e.key, ref)
			}
		}
		k, err := outputKind(e.key, raw.Type, KindFloat)
		if err != nil {
			return err
		}
		t.SuccessRates = append(t.SuccessRates, Rate{Name: e.key, Type: k, Successes: raw.Successes, Attempts: raw.Attempts})
	case "calculated_contributions":
		var raw struct {
			Type     string `mapstructure:"type"`
			TBAKey   string `mapstructure:"tba_key"`
			Opposing bool   `mapstructure:"opposing"`
		}
		if err := decode(e.node, &raw); err != nil {
			return err
		}
		if raw.TBAKey == "" {
			return fmt.Errorf("%w: %s needs tba_key", ErrInvalidSchema, e.key)
		}
		k, err := outputKind(e.key, raw.Type, KindFloat)
		if err != nil {
			return err
		}
		t.Contributions = append(t.Contributions, Contribution{Name: e.key, Type: k, TBAKey: raw.TBAKey, Opposing: raw.Opposing})
	default:
		return fmt.Errorf("%w: unknown team category %s", ErrInvalidSchema, category)
	}
	return nil
}

// TBAField derives a per-robot value from an alliance score breakdown.
type TBAField struct {
	Name   string
	Type   Kind
	TBAKey string
	Value  string
}

// TBATIM is calc_tba_tim_schema.
type TBATIM struct {
	Fields []TBAField
}

func parseTBATIM(root *yaml.Node) (*TBATIM, error) {
	es, err := entries(root)
	if err != nil {
		return nil, err
	}
	s := &TBATIM{}
	for _, e := range es {
		var raw struct {
			Type   string `mapstructure:"type"`
			TBAKey string `mapstructure:"tba_key"`
			Value  string `mapstructure:"value"`
		}
		if err := decode(e.node, &raw); err != nil {
			return nil, err
		}
		k, err := outputKind(e.key, raw.Type, KindBool)
		if err != nil {
			return nil, err
		}
		s.Fields = append(s.Fields, TBAField{Name: e.key, Type: k, TBAKey: raw.TBAKey, Value: raw.Value})
	}
	return s, nil
}

// PredictedAIM is calc_predicted_aim_schema.
type PredictedAIM struct {
	Grid struct {
		Rows        []string `mapstructure:"rows"`
		RowCapacity float64  `mapstructure:"row_capacity"`
		LinkSize    float64  `mapstructure:"link_size"`
	} `mapstructure:"grid"`
	Points struct {
		Auto        map[string]float64 `mapstructure:"auto"`
		Tele        map[string]float64 `mapstructure:"tele"`
		Link        float64            `mapstructure:"link"`
		Mobility    float64            `mapstructure:"mobility"`
		AutoDocked  float64            `mapstructure:"auto_docked"`
		AutoEngaged float64            `mapstructure:"auto_engaged"`
		TeleDocked  float64            `mapstructure:"tele_docked"`
		TeleEngaged float64            `mapstructure:"tele_engaged"`
		Park        float64            `mapstructure:"park"`
	} `mapstructure:"points"`
	RankingPoints struct {
		Win                 float64 `mapstructure:"win"`
		Tie                 float64 `mapstructure:"tie"`
		SustainabilityLinks float64 `mapstructure:"sustainability_links"`
		ActivationPoints    float64 `mapstructure:"activation_points"`
	} `mapstructure:"ranking_points"`
	TeamFields map[string][]string `mapstructure:"team_fields"`
	Actual     struct {
		RP1 string `mapstructure:"rp1"`
		RP2 string `mapstructure:"rp2"`
		RP  string `mapstructure:"rp"`
	} `mapstructure:"actual"`
}

func parsePredictedAIM(root *yaml.Node) (*PredictedAIM, error) {
	s := &PredictedAIM{}
	if err := decode(root, s); err != nil {
		return nil, err
	}
	if len(s.Grid.Rows) == 0 || s.Grid.RowCapacity <= 0 || s.Grid.LinkSize <= 0 {
		return nil, fmt.Errorf("%w: grid needs rows, row_capacity and link_size", ErrInvalidSchema)
	}
	for _, row := range s.Grid.Rows {
		if _, ok := s.Points.Auto[row]; !ok {
			return nil, fmt.Errorf("%w: no auto points for row %s", ErrInvalidSchema, row)
		}
		if _, ok := s.Points.Tele[row]; !ok {
			return nil, fmt.Errorf("%w: no tele points for row %s", ErrInvalidSchema, row)
		}
	}
	for name, refs := range s.TeamFields {
		for _, ref := range refs {
			if _, _, ok := SplitRef(ref); !ok {
				return nil, fmt.Errorf("%w: team field %s: bad reference %q", ErrInvalidSchema, name, ref)
			}
		}
	}
	return s, nil
}

// PredictedTeam is calc_predicted_team_schema.
type PredictedTeam struct {
	Rankings struct {
		AvgRPsSortOrder   int `mapstructure:"avg_rps_sort_order"`
		TotalRPsExtraStat int `mapstructure:"total_rps_extra_stat"`
	} `mapstructure:"rankings"`
}

func parsePredictedTeam(root *yaml.Node) (*PredictedTeam, error) {
	s := &PredictedTeam{}
	if err := decode(root, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Pickability is calc_pickability_schema.
type Pickability struct {
	Calculations []WeightedCalc
	Max          []MaxCalc
}

// WeightedCalc is Σ weight · <collection>.<field>.
type WeightedCalc struct {
	Name    string
	Type    Kind
	Weights []Term
}

// MaxCalc publishes the max of previously computed calculations.
type MaxCalc struct {
	Name string
	Type Kind
	Of   []string
}

func parsePickability(root *yaml.Node) (*Pickability, error) {
	s := &Pickability{}
	known := map[string]bool{}

	n, err := section(root, "calculations")
	if err != nil {
		return nil, err
	}
	es, err := entries(n)
	if err != nil {
		return nil, err
	}
	for _, e := range es {
		var raw struct {
			Type    string             `mapstructure:"type"`
			Weights map[string]float64 `mapstructure:"weights"`
		}
		if err := decode(e.node, &raw); err != nil {
			return nil, err
		}
		k, err := outputKind(e.key, raw.Type, KindFloat)
		if err != nil {
			return nil, err
		}
		terms := sortedTerms(raw.Weights)
		for _, term := range terms {
			if _, _, ok := SplitRef(term.Ref); !ok {
				return nil, fmt.Errorf("%w: %s: bad reference %q", ErrInvalidSchema, e.key, term.Ref)
			}
		}
		s.Calculations = append(s.Calculations, WeightedCalc{Name: e.key, Type: k, Weights: terms})
		known[e.key] = true
	}

	if n, err = section(root, "max_calculations"); err != nil {
		return nil, err
	}
	if es, err = entries(n); err != nil {
		return nil, err
	}
	for _, e := range es {
		var raw struct {
			Type string   `mapstructure:"type"`
			Of   []string `mapstructure:"of"`
		}
		if err := decode(e.node, &raw); err != nil {
			return nil, err
		}
		for _, ref := range raw.Of {
			if !known[ref] {
				return nil, fmt.Errorf("%w: max %s references unknown calculation %s", ErrInvalidSchema, e.key, ref)
			}
		}
		k, err := outputKind(e.key, raw.Type, KindFloat)
		if err != nil {
			return nil, err
		}
		s.Max = append(s.Max, MaxCalc{Name: e.key, Type: k, Of: raw.Of})
		known[e.key] = true
	}
	return s, nil
}

// SimCalc compares a TBA expression with a weighted sum of scout counts.
type SimCalc struct {
	Name    string
	TBA     []Term
	Weights []Term
}

// SimPrecision is calc_sim_precision_schema, shared by scout precision.
type SimPrecision struct {
	Calculations []SimCalc
	Headline     string
	Absolute     bool
}

func parseSimPrecision(root *yaml.Node) (*SimPrecision, error) {
	s := &SimPrecision{Headline: "sim_precision", Absolute: true}

	n, err := section(root, "calculations")
	if err != nil {
		return nil, err
	}
	es, err := entries(n)
	if err != nil {
		return nil, err
	}
	for _, e := range es {
		var raw struct {
			TBA     map[string]float64 `mapstructure:"tba"`
			Weights map[string]float64 `mapstructure:"weights"`
		}
		if err := decode(e.node, &raw); err != nil {
			return nil, err
		}
		if len(raw.TBA) == 0 || len(raw.Weights) == 0 {
			return nil, fmt.Errorf("%w: %s needs tba and weights", ErrInvalidSchema, e.key)
		}
		s.Calculations = append(s.Calculations, SimCalc{Name: e.key, TBA: sortedTerms(raw.TBA), Weights: sortedTerms(raw.Weights)})
	}

	if n, err = section(root, "scout_precision"); err != nil {
		return nil, err
	}
	if n != nil {
		var raw struct {
			Headline string `mapstructure:"headline"`
			Absolute bool   `mapstructure:"absolute"`
		}
		if err := decode(n, &raw); err != nil {
			return nil, err
		}
		if raw.Headline != "" {
			s.Headline = raw.Headline
		}
		s.Absolute = raw.Absolute
	}
	return s, nil
}

// SplitRef splits "<collection>.<field>".
func SplitRef(ref string) (collection, field string, ok bool) {
	collection, field, ok = strings.Cut(ref, ".")
	return collection, field, ok && collection != "" && field != ""
}
