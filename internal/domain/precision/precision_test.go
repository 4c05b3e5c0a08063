package precision_test

import (
	"testing"

	"github.com/okian/scoutcalc/internal/domain/precision"
	"github.com/okian/scoutcalc/internal/schema"
	. "github.com/smartystreets/goconvey/convey"
)

func simSchema() *schema.SimPrecision {
	return &schema.SimPrecision{
		Calculations: []schema.SimCalc{{
			Name:    "auto_grid",
			TBA:     []schema.Term{{Ref: "score_breakdown.{alliance}.autoGamePiecePoints", Weight: 1}},
			Weights: []schema.Term{{Ref: "auto_cone_high", Weight: 6}},
		}},
		Headline: "sim_precision",
		Absolute: true,
	}
}

func report(scout, team string, cones int) precision.Report {
	return precision.Report{Scout: scout, Team: team, Fields: map[string]any{"auto_cone_high": cones}}
}

func played(points float64) map[string]any {
	return map[string]any{
		"score_breakdown": map[string]any{
			"red": map[string]any{"autoGamePiecePoints": points},
		},
	}
}

func TestSim(t *testing.T) {
	Convey("Given a red alliance worth 18 auto points", t, func() {
		s := simSchema()
		a := precision.Alliance{
			Teams: []string{"254", "1678", "971"},
			Color: "red",
			Match: played(18),
		}

		Convey("Sole scouts should get the plain alliance error", func() {
			a.Reports = []precision.Report{report("ann", "254", 1), report("bo", "1678", 1), report("cy", "971", 0)}
			out := precision.Sim(s, a)
			So(out, ShouldHaveLength, 3)
			So(out["ann"]["auto_grid"], ShouldEqual, 6)
			So(out["ann"]["sim_precision"], ShouldEqual, 6)
		})

		Convey("A scout who undercounts should be compared with the partner scout", func() {
			a.Reports = []precision.Report{
				report("ann", "254", 1), report("dee", "254", 2),
				report("bo", "1678", 1), report("cy", "971", 0),
			}
			out := precision.Sim(s, a)
			// ann: 18 - 12 = 6, dee: 18 - 18 = 0
			So(out["ann"]["auto_grid"], ShouldEqual, 6)
			So(out["dee"]["auto_grid"], ShouldEqual, -6)
			So(out["bo"]["auto_grid"], ShouldEqual, 3)
		})

		Convey("An unscouted robot should skip the alliance", func() {
			a.Reports = []precision.Report{report("ann", "254", 1), report("bo", "1678", 1)}
			So(precision.Sim(s, a), ShouldBeNil)
		})

		Convey("A match without a breakdown should skip the alliance", func() {
			a.Match = map[string]any{}
			a.Reports = []precision.Report{report("ann", "254", 1), report("bo", "1678", 1), report("cy", "971", 0)}
			So(precision.Sim(s, a), ShouldBeNil)
		})
	})
}

func TestScout(t *testing.T) {
	Convey("Scout precision should average magnitudes", t, func() {
		out := precision.Scout(simSchema(), []map[string]any{
			{"auto_grid": -6.0, "sim_precision": -6.0},
			{"auto_grid": 2.0, "sim_precision": 2.0},
		})
		So(out["matches"], ShouldEqual, 2)
		So(out["auto_grid"], ShouldEqual, 4)
		So(out[precision.FieldScoutPrecision], ShouldEqual, 4)
	})
}
