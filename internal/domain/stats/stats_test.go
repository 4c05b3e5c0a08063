package stats_test

import (
	"testing"

	"github.com/okian/scoutcalc/internal/domain/stats"
	. "github.com/smartystreets/goconvey/convey"
)

func TestStats(t *testing.T) {
	Convey("Given a sample", t, func() {
		xs := []float64{1, 3, 8}

		So(stats.Mean(xs), ShouldEqual, 4)
		So(stats.PopStdDev(xs), ShouldAlmostEqual, 2.944, 0.001)
		So(stats.Median(xs), ShouldEqual, 3)
		So(stats.Median([]float64{4, 1, 3, 2}), ShouldEqual, 2.5)
		So(stats.Modes([]float64{4, 2, 4, 2, 1}), ShouldResemble, []float64{2, 4})
		So(stats.Modes([]float64{5}), ShouldResemble, []float64{5})
		So(stats.Round(2.5), ShouldEqual, 3)
		So(stats.Round(-0.5), ShouldEqual, -1)
		So(stats.Sum(xs), ShouldEqual, 12)

		Convey("Empty samples should be zero", func() {
			So(stats.Mean(nil), ShouldEqual, 0)
			So(stats.PopStdDev([]float64{7}), ShouldEqual, 0)
			So(stats.Median(nil), ShouldEqual, 0)
			So(stats.Modes(nil), ShouldBeEmpty)
		})
	})
}
