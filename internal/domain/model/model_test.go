package model_test

import (
	"encoding/json"
	"testing"

	"github.com/okian/motionscore/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestFrameJSON(t *testing.T) {
	Convey("Given sensorData frames in both forms", t, func() {
		raw := `[{"ax": 0.1, "ay": "x", "az": null}, [1, 2.5, true]]`

		Convey("When decoding", func() {
			var frames []model.Frame
			err := json.Unmarshal([]byte(raw), &frames)

			Convey("Then both forms are kept with raw value kinds", func() {
				So(err, ShouldBeNil)
				So(frames, ShouldHaveLength, 2)
				So(frames[0].IsPositional(), ShouldBeFalse)
				So(frames[0].Named["ax"], ShouldEqual, json.Number("0.1"))
				So(frames[0].Named["ay"], ShouldEqual, "x")
				So(frames[0].Named["az"], ShouldBeNil)
				So(frames[1].IsPositional(), ShouldBeTrue)
				So(frames[1].Positional[1], ShouldEqual, json.Number("2.5"))
				So(frames[1].Positional[2], ShouldEqual, true)
			})
		})

		Convey("When a frame is a scalar", func() {
			var frames []model.Frame
			err := json.Unmarshal([]byte(`[42]`), &frames)

			Convey("Then decoding fails", func() {
				So(err, ShouldNotBeNil)
			})
		})

		Convey("When encoding built frames", func() {
			out, err := json.Marshal([]model.Frame{
				model.PositionalFrame(1, 2),
				model.NamedFrame(map[string]float64{"ax": 3}),
			})

			Convey("Then each keeps its form", func() {
				So(err, ShouldBeNil)
				So(string(out), ShouldEqual, `[[1,2],{"ax":3}]`)
			})
		})
	})
}

func TestMatrixAndCategory(t *testing.T) {
	Convey("Given a matrix", t, func() {
		m := model.Matrix{{1, 2}, {3, 4}, {5, 6}}

		Convey("Then shape helpers describe it", func() {
			So(m.Frames(), ShouldEqual, 3)
			So(m.Width(), ShouldEqual, 2)
			So(model.Matrix{}.Width(), ShouldEqual, 0)
		})

		Convey("When cloned and the clone is mutated", func() {
			c := m.Clone()
			c[0][0] = 99

			Convey("Then the original is untouched", func() {
				So(m[0][0], ShouldEqual, 1)
			})
		})

		Convey("When converted to positional frames", func() {
			frames := model.FramesFromMatrix(m)
			So(frames, ShouldHaveLength, 3)
			So(frames[2].Positional, ShouldResemble, []any{5.0, 6.0})
		})
	})

	Convey("Given category names", t, func() {
		c, err := model.ParseCategory("reference")
		So(err, ShouldBeNil)
		So(c, ShouldEqual, model.CategoryReference)

		c, err = model.ParseCategory("zero_score")
		So(err, ShouldBeNil)
		So(c, ShouldEqual, model.CategoryZeroScore)

		_, err = model.ParseCategory("gold")
		So(err, ShouldNotBeNil)
	})
}
