package pickability_test

import (
	"errors"
	"testing"

	"github.com/okian/scoutcalc/internal/domain/pickability"
	"github.com/okian/scoutcalc/internal/schema"
	. "github.com/smartystreets/goconvey/convey"
)

func TestScore(t *testing.T) {
	Convey("Given the default pickability schema", t, func() {
		set, err := schema.Default()
		So(err, ShouldBeNil)
		s := pickability.New(set.Pickability)

		in := pickability.Input{
			"obj_team": {
				"auto_avg_grid_points":     10.0,
				"tele_avg_grid_points":     20.0,
				"auto_charge_success_rate": 0.5,
				"tele_engaged_rate":        0.25,
				"tele_charge_success_rate": 1.0,
			},
			"tba_team": {"mobility_rate": 1.0, "foul_cc": 2.0},
			"subj_team": {
				"avg_quickness_score":       2.0,
				"avg_field_awareness_score": 2.0,
			},
		}

		Convey("Every calculation should be the weighted sum of its references", func() {
			out, skipped := s.Score(in)
			So(skipped, ShouldBeEmpty)
			So(out["first_pickability"], ShouldEqual, 10+20+5+2+3)
			So(out["second_pickability"], ShouldEqual, 20+8+3+3-2)
			So(out["overall_pickability"], ShouldEqual, 40)
		})

		Convey("A team without subjective data should skip only dependent calculations", func() {
			delete(in, "subj_team")
			out, skipped := s.Score(in)
			So(skipped, ShouldHaveLength, 1)
			So(errors.Is(skipped[0], pickability.ErrMissingReference), ShouldBeTrue)
			So(out, ShouldNotContainKey, "second_pickability")
			So(out["overall_pickability"], ShouldEqual, 40)
		})

		Convey("A team with no data should publish nothing", func() {
			out, skipped := s.Score(pickability.Input{})
			So(out, ShouldBeEmpty)
			So(skipped, ShouldHaveLength, 3)
		})
	})
}
