package timcalc_test

import (
	"testing"

	"github.com/okian/scoutcalc/internal/domain/predicate"
	"github.com/okian/scoutcalc/internal/domain/timcalc"
	"github.com/okian/scoutcalc/internal/schema"
	. "github.com/smartystreets/goconvey/convey"
)

func act(time int, action string, teleop bool) map[string]any {
	return map[string]any{"time": time, "action_type": action, "in_teleop": teleop}
}

func TestScout(t *testing.T) {
	Convey("Given the default objective TIM schema", t, func() {
		set, err := schema.Default()
		So(err, ShouldBeNil)
		calc := timcalc.New(set.ObjTIM)

		row := map[string]any{
			"start_position":      "2",
			"preloaded_gamepiece": "O",
			"auto_charge_level":   "E",
			"tele_charge_level":   "Parked",
			"timeline": []any{
				act(145, "score_cone_high", false),
				act(140, "intake_ground", false),
				act(137, "score_cube_mid", false),
				act(135, "to_teleop", true),
				act(120, "score_cone_high", true),
				act(110, "score_cube_low", true),
				act(100, "score_fail", true),
				act(90, "score_cone_mid", true),
				act(80, "start_incap", true),
				act(60, "end_incap", true),
				act(30, "start_incap", true),
			},
		}

		out := calc.Scout(row)

		Convey("Timeline counts should split auto and teleop", func() {
			So(out["auto_cone_high"], ShouldEqual, 1)
			So(out["auto_cube_mid"], ShouldEqual, 1)
			So(out["auto_intakes"], ShouldEqual, 1)
			So(out["tele_cone_high"], ShouldEqual, 1)
			So(out["tele_cube_low"], ShouldEqual, 1)
			So(out["tele_score_fails"], ShouldEqual, 1)
			So(out["was_incap"], ShouldEqual, true)
		})

		Convey("Cycle times should follow their mode", func() {
			// incap: 80->60 = 20, 30->0 = 30
			So(out["incap_time"], ShouldEqual, 50)
			// teleop scores at 120, 110, 90 give gaps 10 and 20
			So(out["tele_cycle_time"], ShouldEqual, 15)
		})

		Convey("Categoricals should become long names", func() {
			So(out["start_position"], ShouldEqual, "Two")
			So(out["preloaded_gamepiece"], ShouldEqual, "Cone")
			So(out["auto_charge_level"], ShouldEqual, "Engaged")
			So(out["tele_charge_level"], ShouldEqual, "Parked")
		})

		Convey("Aggregates should sum earlier fields in order", func() {
			calc.Aggregates(out)
			So(out["auto_total_pieces"], ShouldEqual, 2)
			So(out["tele_total_pieces"], ShouldEqual, 3)
			So(out["total_pieces"], ShouldEqual, 5)
		})

		Convey("The auto timeline should stop at teleop", func() {
			auto := timcalc.AutoTimeline(row)
			So(auto, ShouldHaveLength, 3)
			So(auto[2]["action_type"], ShouldEqual, "score_cube_mid")
		})
	})
}

func TestCycleTimeEdges(t *testing.T) {
	Convey("Given a paired cycle with a minimum", t, func() {
		ct := schema.CycleTime{Name: "incap_time", StartAction: "start_incap", EndAction: "end_incap", MinimumTime: 8, Filter: predicate.True()}

		Convey("Short gaps should be ignored", func() {
			tl := []map[string]any{act(100, "start_incap", true), act(95, "end_incap", true)}
			So(timcalc.CycleTime(ct, tl), ShouldEqual, 0)
		})

		Convey("A stray end without a start should be ignored", func() {
			tl := []map[string]any{act(100, "end_incap", true)}
			So(timcalc.CycleTime(ct, tl), ShouldEqual, 0)
		})
	})

	Convey("A scoring cycle with one score should be zero", t, func() {
		ct := schema.CycleTime{StartAction: "score", EndAction: "score", Filter: predicate.True()}
		So(timcalc.CycleTime(ct, []map[string]any{act(50, "score_cone_low", true)}), ShouldEqual, 0)
	})

	Convey("Unknown categorical codes should be empty", t, func() {
		en := schema.NewEnum("x", []string{"None", "One"}, []string{"0", "1"})
		So(timcalc.LongName(en, "9"), ShouldEqual, "")
		So(timcalc.LongName(en, 1.0), ShouldEqual, "One")
	})
}
