package consolidation_test

import (
	"math/rand"
	"testing"

	"github.com/okian/scoutcalc/internal/domain/consolidation"
	"github.com/okian/scoutcalc/internal/schema"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNumeric(t *testing.T) {
	Convey("Numeric consolidation", t, func() {
		Convey("Agreeing scouts should keep their value", func() {
			So(consolidation.Numeric([]float64{2, 2, 2}), ShouldEqual, 2)
			So(consolidation.Numeric([]float64{7}), ShouldEqual, 7)
		})

		Convey("Two of three should win", func() {
			So(consolidation.Numeric([]float64{4, 4, 2}), ShouldEqual, 4)
			So(consolidation.Numeric([]float64{0, 9, 9}), ShouldEqual, 9)
		})

		Convey("A spread should be weighted by inverse squared z-scores", func() {
			So(consolidation.Numeric([]float64{1, 3, 8}), ShouldEqual, 3)
		})

		Convey("A mean that was reported should be returned", func() {
			So(consolidation.Numeric([]float64{1, 2, 3}), ShouldEqual, 2)
		})

		Convey("Two disagreeing scouts should meet in the middle", func() {
			So(consolidation.Numeric([]float64{2, 5}), ShouldEqual, 4)
		})

		Convey("No reports should be zero", func() {
			So(consolidation.Numeric(nil), ShouldEqual, 0)
		})
	})
}

func TestBool(t *testing.T) {
	Convey("Boolean consolidation should take the majority and break ties to false", t, func() {
		So(consolidation.Bool([]bool{true, true, false}), ShouldBeTrue)
		So(consolidation.Bool([]bool{true, false}), ShouldBeFalse)
		So(consolidation.Bool([]bool{true}), ShouldBeTrue)
		So(consolidation.Bool(nil), ShouldBeFalse)
	})
}

func TestCategorical(t *testing.T) {
	Convey("Given a charge level enum", t, func() {
		en := schema.NewEnum("auto_charge_level", []string{"None", "Failed", "Docked", "Engaged"}, []string{"N", "F", "D", "E"})

		Convey("A single mode should win", func() {
			So(consolidation.Categorical(en, []string{"Docked", "Docked", "None"}), ShouldEqual, "Docked")
		})

		Convey("Three different reports should average their positions", func() {
			So(consolidation.Categorical(en, []string{"None", "Docked", "Engaged"}), ShouldEqual, "Docked")
		})

		Convey("A two-way tie should round to the nearer admitted value", func() {
			So(consolidation.Categorical(en, []string{"Failed", "Engaged"}), ShouldEqual, "Docked")
		})

		Convey("Unknown names should be ignored", func() {
			So(consolidation.Categorical(en, []string{"Bogus"}), ShouldEqual, "")
		})
	})
}

func act(time int, action string) map[string]any {
	return map[string]any{"time": time, "action_type": action}
}

func TestTimeline(t *testing.T) {
	Convey("Given three auto timelines", t, func() {
		lexical := consolidation.Picker(consolidation.TieLexical, nil)

		Convey("Agreeing indexes should keep the mode", func() {
			out := consolidation.Timeline([][]map[string]any{
				{act(145, "score_cone_high"), act(138, "intake_ground")},
				{act(145, "score_cone_high"), act(137, "intake_ground")},
				{act(144, "score_cone_high")},
			}, lexical)
			So(out, ShouldHaveLength, 2)
			So(out[0], ShouldResemble, map[string]any{"time": 145, "action_type": "score_cone_high"})
			So(out[1]["action_type"], ShouldEqual, "intake_ground")
			So(out[1]["time"], ShouldEqual, 138)
		})

		Convey("An index most scouts lack should be omitted", func() {
			out := consolidation.Timeline([][]map[string]any{
				{act(145, "score_cone_high")},
				{act(145, "score_cone_high"), act(130, "intake_shelf")},
				{act(145, "score_cone_high")},
			}, lexical)
			So(out, ShouldHaveLength, 1)
		})

		Convey("Tied integers should round their mean and tied names pick lexically", func() {
			out := consolidation.Timeline([][]map[string]any{
				{act(140, "score_cube_low")},
				{act(143, "score_cone_low")},
			}, lexical)
			So(out, ShouldHaveLength, 1)
			So(out[0]["time"], ShouldEqual, 142)
			So(out[0]["action_type"], ShouldEqual, "score_cone_low")
		})

		Convey("Random tie-breaks should still pick a reported value", func() {
			pick := consolidation.Picker(consolidation.TieRandom, rand.New(rand.NewSource(1)))
			out := consolidation.Timeline([][]map[string]any{
				{act(140, "score_cube_low")},
				{act(140, "score_cone_low")},
			}, pick)
			So(out[0]["action_type"], ShouldBeIn, []any{"score_cube_low", "score_cone_low"})
		})
	})
}

func TestFields(t *testing.T) {
	Convey("Given per-scout fields from three scouts", t, func() {
		set, err := schema.Default()
		So(err, ShouldBeNil)

		scouts := []map[string]any{
			{"auto_cube_low": 4, "was_incap": true, "incap_time": 0, "auto_charge_level": "Docked"},
			{"auto_cube_low": 4, "was_incap": false, "incap_time": 10, "auto_charge_level": "Docked"},
			{"auto_cube_low": 2, "was_incap": false, "incap_time": 12, "auto_charge_level": "Engaged"},
		}
		out := consolidation.Fields(set.ObjTIM, scouts)

		So(out["auto_cube_low"], ShouldEqual, 4)
		So(out["was_incap"], ShouldEqual, false)
		So(out["incap_time"], ShouldEqual, 10)
		So(out["auto_charge_level"], ShouldEqual, "Docked")
		So(out["auto_cone_high"], ShouldEqual, 0)
	})
}
