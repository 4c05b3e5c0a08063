package predicate_test

import (
	"testing"

	"github.com/okian/scoutcalc/internal/domain/predicate"
	. "github.com/smartystreets/goconvey/convey"
)

func TestPredicateMatch(t *testing.T) {
	Convey("Given a timeline action", t, func() {
		action := map[string]any{"time": 135.0, "action_type": "score_cone_high", "in_teleop": false}

		Convey("Equality should compare numbers across kinds", func() {
			So(predicate.Eq("time", 135).Match(action), ShouldBeTrue)
			So(predicate.Eq("action_type", "score_cone_high").Match(action), ShouldBeTrue)
			So(predicate.Eq("in_teleop", true).Match(action), ShouldBeFalse)
		})

		Convey("Substring should match string fields only", func() {
			So(predicate.Contains("action_type", "score").Match(action), ShouldBeTrue)
			So(predicate.Contains("action_type", "intake").Match(action), ShouldBeFalse)
			So(predicate.Contains("time", "13").Match(action), ShouldBeFalse)
		})

		Convey("Ranges should be inclusive", func() {
			So(predicate.InRange("time", 135, 150).Match(action), ShouldBeTrue)
			So(predicate.InRange("time", 0, 134).Match(action), ShouldBeFalse)
		})

		Convey("Any-of should match one listed value", func() {
			So(predicate.AnyOf("action_type", "intake_ground", "score_cone_high").Match(action), ShouldBeTrue)
			So(predicate.AnyOf("action_type", "intake_ground").Match(action), ShouldBeFalse)
		})

		Convey("A missing field should count as equal to the forbidden value", func() {
			So(predicate.NotEq("auto_charge_level", "None").Match(action), ShouldBeFalse)
			So(predicate.NotEq("action_type", "score_fail").Match(action), ShouldBeTrue)
			So(predicate.NotEq("action_type", "score_fail", "score_cone_high").Match(action), ShouldBeFalse)
		})

		Convey("And should flatten and require every child", func() {
			p := predicate.And(predicate.True(), predicate.And(predicate.Eq("in_teleop", false), predicate.Contains("action_type", "cone")))
			So(p.Op, ShouldEqual, predicate.OpAnd)
			So(len(p.Children), ShouldEqual, 2)
			So(p.Match(action), ShouldBeTrue)
			So(predicate.And().Op, ShouldEqual, predicate.OpTrue)
		})
	})
}

func TestPredicateParse(t *testing.T) {
	Convey("Given a schema filter mapping", t, func() {
		filter := map[string]any{
			"action_type": map[string]any{"contains": "intake"},
			"in_teleop":   true,
			"time":        map[string]any{"min": 0, "max": 15},
		}

		Convey("When it is parsed", func() {
			p, err := predicate.Parse(filter)

			Convey("Then it should be a conjunction in field order", func() {
				So(err, ShouldBeNil)
				So(p.Op, ShouldEqual, predicate.OpAnd)
				So(p.Children[0].Op, ShouldEqual, predicate.OpSubstring)
				So(p.Children[1].Op, ShouldEqual, predicate.OpEq)
				So(p.Children[2].Op, ShouldEqual, predicate.OpInRange)
			})

			Convey("Then it should filter records", func() {
				recs := []map[string]any{
					{"action_type": "intake_ground", "in_teleop": true, "time": 12},
					{"action_type": "intake_ground", "in_teleop": true, "time": 40},
					{"action_type": "score_cube_low", "in_teleop": true, "time": 10},
				}
				So(p.Count(recs), ShouldEqual, 1)
				So(p.Filter(recs)[0]["time"], ShouldEqual, 12)
			})
		})

		Convey("When a list is given it should become any-of", func() {
			p, err := predicate.Parse(map[string]any{"tele_charge_level": []any{"Docked", "Engaged"}})
			So(err, ShouldBeNil)
			So(p.Match(map[string]any{"tele_charge_level": "Engaged"}), ShouldBeTrue)
			So(p.Match(map[string]any{"tele_charge_level": "Parked"}), ShouldBeFalse)
		})

		Convey("When an unknown operator is used it should fail", func() {
			_, err := predicate.Parse(map[string]any{"x": map[string]any{"regex": "a.*"}})
			So(err, ShouldNotBeNil)
		})

		Convey("When not clauses are parsed", func() {
			p := predicate.ParseNot(map[string]any{"tele_charge_level": []any{"None", "Parked"}})
			So(p.Match(map[string]any{"tele_charge_level": "Docked"}), ShouldBeTrue)
			So(p.Match(map[string]any{"tele_charge_level": "Parked"}), ShouldBeFalse)
			So(p.Match(map[string]any{}), ShouldBeFalse)
		})

		Convey("An empty filter should match everything", func() {
			p, err := predicate.Parse(nil)
			So(err, ShouldBeNil)
			So(p.Match(map[string]any{}), ShouldBeTrue)
		})
	})
}
