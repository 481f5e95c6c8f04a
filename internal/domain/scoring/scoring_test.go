package scoring_test

import (
	"math"
	"testing"

	scoring "github.com/okian/motionscore/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func TestFromDistance(t *testing.T) {
	Convey("Given a ceiling of 16.97", t, func() {
		ceiling := 16.97

		Convey("When the distance is zero", func() {
			So(scoring.FromDistance(0, ceiling), ShouldEqual, 100)
		})

		Convey("When the distance is half the ceiling", func() {
			So(scoring.FromDistance(ceiling/2, ceiling), ShouldAlmostEqual, 50, 1e-9)
		})

		Convey("When the distance equals the ceiling", func() {
			So(scoring.FromDistance(ceiling, ceiling), ShouldEqual, 0)
		})

		Convey("When the distance exceeds the ceiling", func() {
			So(scoring.FromDistance(ceiling*3, ceiling), ShouldEqual, 0)
		})

		Convey("Then the score never increases with distance", func() {
			prev := 101.0
			for d := 0.0; d <= 2*ceiling; d += 0.37 {
				s := scoring.FromDistance(d, ceiling)
				So(s, ShouldBeLessThanOrEqualTo, prev)
				So(s, ShouldBeBetweenOrEqual, 0, 100)
				prev = s
			}
		})
	})

	Convey("Given degenerate inputs", t, func() {
		So(scoring.FromDistance(1, 0), ShouldEqual, 0)
		So(scoring.FromDistance(math.NaN(), 10), ShouldEqual, 0)
		So(scoring.FromDistance(math.Inf(1), 10), ShouldEqual, 0)
	})
}

func TestPolicy(t *testing.T) {
	Convey("Given a policy without a pass score", t, func() {
		p := scoring.NewPolicy()

		Convey("Then no grade is reported", func() {
			So(p.Grade(99), ShouldEqual, "")
			So(p.Score(0, 5), ShouldEqual, 100)
		})
	})

	Convey("Given a policy passing at 60", t, func() {
		p := scoring.NewPolicy(scoring.WithPassScore(60))

		Convey("Then the threshold is inclusive", func() {
			So(p.PassScore(), ShouldEqual, 60)
			So(p.Grade(60), ShouldEqual, scoring.GradePass)
			So(p.Grade(59.99), ShouldEqual, scoring.GradeFail)
		})
	})

	Convey("Given an out of range pass score", t, func() {
		p := scoring.NewPolicy(scoring.WithPassScore(120))
		So(p.Grade(10), ShouldEqual, "")
	})
}
