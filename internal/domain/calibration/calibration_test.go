package calibration_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/okian/motionscore/internal/adapters/repository"
	"github.com/okian/motionscore/internal/domain/calibration"
	"github.com/okian/motionscore/internal/domain/dtw"
	"github.com/okian/motionscore/internal/domain/model"
	"github.com/okian/motionscore/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

// failingCeilingStore rejects ceiling writes.
type failingCeilingStore struct {
	*repository.MemoryStore
}

func (failingCeilingStore) UpdateCeiling(context.Context, string, float64) error {
	return errors.New("disk full")
}

func addRecording(ctx context.Context, s repository.Store, typeID string, cat model.Category, m model.Matrix) {
	if _, err := s.CreateRecording(ctx, model.MotionRecording{MotionTypeID: typeID, Category: cat, Frames: m}); err != nil {
		panic(err)
	}
}

func TestRecalibrate(t *testing.T) {
	Convey("Given a motion type with the default ceiling", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		mt, err := store.CreateMotionType(ctx, model.MotionType{Name: "lift_extinguisher", MaxDTWDistance: 1000})
		So(err, ShouldBeNil)
		m := calibration.New(store, dtw.NewEngine(), calibration.WithParallelism(2))

		ceiling := func() float64 {
			got, err := store.GetMotionType(ctx, mt.ID)
			So(err, ShouldBeNil)
			return got.MaxDTWDistance
		}

		Convey("When there are no recordings", func() {
			out, err := m.Recalibrate(ctx, mt.ID)

			Convey("Then the ceiling is unchanged with an incomplete warning", func() {
				So(errors.Is(err, calibration.ErrCalibrationIncomplete), ShouldBeTrue)
				So(calibration.IsWarning(err), ShouldBeTrue)
				So(out.Updated, ShouldBeFalse)
				So(ceiling(), ShouldEqual, 1000)
			})
		})

		Convey("When only references exist", func() {
			addRecording(ctx, store, mt.ID, model.CategoryReference, model.Matrix{{0, 0}, {1, 1}})
			out, err := m.Recalibrate(ctx, mt.ID)
			So(errors.Is(err, calibration.ErrCalibrationIncomplete), ShouldBeTrue)
			So(out.References, ShouldEqual, 1)
			So(out.ZeroScores, ShouldEqual, 0)
			So(ceiling(), ShouldEqual, 1000)
		})

		Convey("When one reference and one zero_score exist", func() {
			addRecording(ctx, store, mt.ID, model.CategoryReference, model.Matrix{{0, 0}, {1, 1}, {2, 2}})
			addRecording(ctx, store, mt.ID, model.CategoryZeroScore, model.Matrix{{5, 5}, {5, 5}, {5, 5}})
			out, err := m.Recalibrate(ctx, mt.ID)

			Convey("Then the ceiling becomes their DTW distance", func() {
				So(err, ShouldBeNil)
				So(out.Updated, ShouldBeTrue)
				So(out.Previous, ShouldEqual, 1000)
				So(out.Pairs, ShouldEqual, 1)
				So(out.Ceiling, ShouldAlmostEqual, 12*math.Sqrt2, 1e-9)
				So(ceiling(), ShouldAlmostEqual, 12*math.Sqrt2, 1e-9)
			})

			Convey("Then recalibrating again is idempotent", func() {
				again, err := m.Recalibrate(ctx, mt.ID)
				So(err, ShouldBeNil)
				So(again.Updated, ShouldBeFalse)
				So(again.Ceiling, ShouldEqual, out.Ceiling)
			})

			Convey("And a closer zero_score is added", func() {
				addRecording(ctx, store, mt.ID, model.CategoryZeroScore, model.Matrix{{1, 1}, {2, 2}, {3, 3}})
				out, err := m.Recalibrate(ctx, mt.ID)

				Convey("Then the minimum over all pairs wins", func() {
					So(err, ShouldBeNil)
					So(out.Pairs, ShouldEqual, 2)
					d, _ := dtw.Distance(model.Matrix{{0, 0}, {1, 1}, {2, 2}}, model.Matrix{{1, 1}, {2, 2}, {3, 3}})
					So(out.Ceiling, ShouldAlmostEqual, d, 1e-12)
					So(out.Ceiling, ShouldBeLessThan, 12*math.Sqrt2)
				})
			})

			Convey("And a zero_score identical to the reference is added", func() {
				before := ceiling()
				addRecording(ctx, store, mt.ID, model.CategoryZeroScore, model.Matrix{{0, 0}, {1, 1}, {2, 2}})
				_, err := m.Recalibrate(ctx, mt.ID)

				Convey("Then the corpus is degenerate and the ceiling stays positive", func() {
					So(errors.Is(err, calibration.ErrDegenerateCorpus), ShouldBeTrue)
					So(calibration.IsWarning(err), ShouldBeTrue)
					So(ceiling(), ShouldEqual, before)
				})
			})

			Convey("And a recording with another width is added", func() {
				addRecording(ctx, store, mt.ID, model.CategoryZeroScore, model.Matrix{{1, 1, 1}})
				_, err := m.Recalibrate(ctx, mt.ID)

				Convey("Then recalibration fails hard", func() {
					So(errors.Is(err, dtw.ErrDimensionMismatch), ShouldBeTrue)
					So(calibration.IsWarning(err), ShouldBeFalse)
				})
			})
		})

		Convey("When the motion type is unknown", func() {
			_, err := m.Recalibrate(ctx, "missing")
			So(errors.Is(err, repository.ErrMotionTypeNotFound), ShouldBeTrue)
			So(calibration.IsWarning(err), ShouldBeFalse)
		})

		Convey("When the ceiling write fails", func() {
			addRecording(ctx, store, mt.ID, model.CategoryReference, model.Matrix{{0}})
			addRecording(ctx, store, mt.ID, model.CategoryZeroScore, model.Matrix{{1}})
			failing := calibration.New(failingCeilingStore{store}, dtw.NewEngine())
			out, err := failing.Recalibrate(ctx, mt.ID)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "disk full")
			So(out.Updated, ShouldBeFalse)
		})

		Convey("When many recalibrations race on one motion type", func() {
			addRecording(ctx, store, mt.ID, model.CategoryReference, model.Matrix{{0, 0}, {1, 1}, {2, 2}})
			addRecording(ctx, store, mt.ID, model.CategoryZeroScore, model.Matrix{{5, 5}, {5, 5}, {5, 5}})
			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, _ = m.Recalibrate(ctx, mt.ID)
				}()
			}
			wg.Wait()

			Convey("Then the stored ceiling is the single correct value", func() {
				So(ceiling(), ShouldAlmostEqual, 12*math.Sqrt2, 1e-9)
			})
		})
	})
}

func TestRecalibrateAll(t *testing.T) {
	Convey("Given two motion types, one calibratable", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		ready, _ := store.CreateMotionType(ctx, model.MotionType{Name: "ready", MaxDTWDistance: 1000})
		_, _ = store.CreateMotionType(ctx, model.MotionType{Name: "empty", MaxDTWDistance: 1000})
		addRecording(ctx, store, ready.ID, model.CategoryReference, model.Matrix{{0}})
		addRecording(ctx, store, ready.ID, model.CategoryZeroScore, model.Matrix{{4}})

		outcomes, err := calibration.New(store, dtw.NewEngine()).RecalibrateAll(ctx)

		Convey("Then warnings do not fail the run", func() {
			So(err, ShouldBeNil)
			So(outcomes, ShouldHaveLength, 2)
			So(outcomes[0].MotionName, ShouldEqual, "empty")
			So(outcomes[0].Updated, ShouldBeFalse)
			So(outcomes[1].MotionName, ShouldEqual, "ready")
			So(outcomes[1].Ceiling, ShouldEqual, 4)
		})
	})
}
