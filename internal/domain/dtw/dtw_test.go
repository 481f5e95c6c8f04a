package dtw_test

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/okian/motionscore/internal/domain/dtw"
	"github.com/okian/motionscore/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func randomMatrix(rng *rand.Rand, frames, width int) model.Matrix {
	m := make(model.Matrix, frames)
	for i := range m {
		m[i] = make([]float64, width)
		for j := range m[i] {
			m[i][j] = rng.Float64()*4 - 2
		}
	}
	return m
}

func TestDistance(t *testing.T) {
	Convey("Given hand-computable sequences", t, func() {
		Convey("When one sequence is constant", func() {
			a := model.Matrix{{0, 0}, {1, 1}, {2, 2}}
			b := model.Matrix{{5, 5}, {5, 5}, {5, 5}}
			d, err := dtw.Distance(a, b)

			Convey("Then the distance is the sum of the best path", func() {
				So(err, ShouldBeNil)
				So(d, ShouldAlmostEqual, 12*math.Sqrt2, 1e-9)
			})
		})

		Convey("When sequences are one dimensional", func() {
			d, err := dtw.Distance(model.Matrix{{1}, {2}, {3}}, model.Matrix{{2}, {2}, {4}})

			Convey("Then the warp aligns the middle frames", func() {
				So(err, ShouldBeNil)
				So(d, ShouldAlmostEqual, 2, 1e-12)
			})
		})

		Convey("When a frame is duplicated", func() {
			a := model.Matrix{{0, 1}, {1, 2}, {2, 3}}
			b := model.Matrix{{0, 1}, {1, 2}, {1, 2}, {2, 3}}
			d, err := dtw.Distance(a, b)

			Convey("Then the warp absorbs it completely", func() {
				So(err, ShouldBeNil)
				So(d, ShouldEqual, 0)
			})
		})

		Convey("When the lengths differ", func() {
			d, err := dtw.Distance(model.Matrix{{0}}, model.Matrix{{1}, {2}, {3}})
			So(err, ShouldBeNil)
			So(d, ShouldAlmostEqual, 6, 1e-12)
		})
	})

	Convey("Given random recordings", t, func() {
		rng := rand.New(rand.NewSource(7))

		Convey("Then distance is zero to itself, symmetric and non-negative", func() {
			for i := 0; i < 25; i++ {
				a := randomMatrix(rng, 1+rng.Intn(30), 6)
				b := randomMatrix(rng, 1+rng.Intn(30), 6)

				self, err := dtw.Distance(a, a)
				So(err, ShouldBeNil)
				So(self, ShouldEqual, 0)

				ab, err := dtw.Distance(a, b)
				So(err, ShouldBeNil)
				ba, err := dtw.Distance(b, a)
				So(err, ShouldBeNil)
				So(ab, ShouldAlmostEqual, ba, 1e-9)
				So(ab, ShouldBeGreaterThanOrEqualTo, 0)
			}
		})

		Convey("Then a value change that is not a time warp gives a positive distance", func() {
			a := randomMatrix(rng, 20, 3)
			b := a.Clone()
			b[10][1] += 0.5
			d, err := dtw.Distance(a, b)
			So(err, ShouldBeNil)
			So(d, ShouldBeGreaterThan, 0)
		})
	})

	Convey("Given invalid operands", t, func() {
		Convey("When either is empty", func() {
			_, err := dtw.Distance(nil, model.Matrix{{1}})
			So(errors.Is(err, dtw.ErrEmptySequence), ShouldBeTrue)
			_, err = dtw.Distance(model.Matrix{{1}}, model.Matrix{})
			So(errors.Is(err, dtw.ErrEmptySequence), ShouldBeTrue)
		})

		Convey("When widths differ", func() {
			_, err := dtw.Distance(model.Matrix{{1, 2}}, model.Matrix{{1, 2, 3}})
			So(errors.Is(err, dtw.ErrDimensionMismatch), ShouldBeTrue)
		})

		Convey("When rows are ragged", func() {
			_, err := dtw.Distance(model.Matrix{{1, 2}, {1}}, model.Matrix{{1, 2}})
			So(errors.Is(err, dtw.ErrDimensionMismatch), ShouldBeTrue)
		})
	})
}

func TestEngine(t *testing.T) {
	Convey("Given the metered engine", t, func() {
		e := dtw.NewEngine()
		d, err := e.Distance(model.Matrix{{0}, {1}}, model.Matrix{{0}, {1}})
		So(err, ShouldBeNil)
		So(d, ShouldEqual, 0)

		_, err = e.Distance(nil, nil)
		So(errors.Is(err, dtw.ErrEmptySequence), ShouldBeTrue)
	})
}

func BenchmarkDistance(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	x := randomMatrix(rng, 200, 6)
	y := randomMatrix(rng, 200, 6)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = dtw.Distance(x, y)
	}
}
