package ingest_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/okian/motionscore/internal/adapters/repository"
	"github.com/okian/motionscore/internal/domain/calibration"
	"github.com/okian/motionscore/internal/domain/dedupe"
	"github.com/okian/motionscore/internal/domain/dtw"
	"github.com/okian/motionscore/internal/domain/evaluation"
	"github.com/okian/motionscore/internal/domain/ingest"
	"github.com/okian/motionscore/internal/domain/model"
	"github.com/okian/motionscore/internal/domain/normalize"
	"github.com/okian/motionscore/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

type spyInvalidator struct {
	calls []string
}

func (s *spyInvalidator) Invalidate(id string) { s.calls = append(s.calls, id) }

type failingCalibrator struct{}

func (failingCalibrator) Recalibrate(_ context.Context, id string) (calibration.Outcome, error) {
	return calibration.Outcome{MotionTypeID: id}, errors.New("database is locked")
}

var (
	reference = model.Matrix{{0, 0}, {1, 1}, {2, 2}}
	zeroScore = model.Matrix{{5, 5}, {5, 5}, {5, 5}}
)

func countRecordings(ctx context.Context, store repository.Store, id string) int {
	recs, err := store.ListRecordings(ctx, id, "")
	if err != nil {
		panic(err)
	}
	return len(recs)
}

func TestIngestLiftExtinguisher(t *testing.T) {
	Convey("Given an empty lift_extinguisher motion type", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		cache := evaluation.NewReferenceCache(store, 8)
		gw := ingest.New(store, normalize.New(), calibration.New(store, dtw.NewEngine()),
			ingest.WithInvalidator(cache),
			ingest.WithDefaultCeiling(1000),
		)
		mt, err := gw.CreateMotionType(ctx, ingest.MotionTypeSpec{Name: "lift_extinguisher", Channels: []string{"ax", "ay"}})
		So(err, ShouldBeNil)
		So(mt.MaxDTWDistance, ShouldEqual, 1000)

		Convey("When only a reference is ingested", func() {
			rc, err := gw.Ingest(ctx, ingest.Request{MotionName: "lift_extinguisher", Category: "reference", Frames: model.FramesFromMatrix(reference)})

			Convey("Then it is stored with an incomplete-calibration warning", func() {
				So(err, ShouldBeNil)
				So(rc.Recording.ID, ShouldNotBeEmpty)
				So(rc.Recording.DataFrames, ShouldEqual, 3)
				So(rc.Recording.Channels, ShouldResemble, []string{"ax", "ay"})
				So(errors.Is(rc.Warning, calibration.ErrCalibrationIncomplete), ShouldBeTrue)
				So(rc.Calibration.Updated, ShouldBeFalse)

				got, _ := gw.GetMotionType(ctx, "lift_extinguisher")
				So(got.MaxDTWDistance, ShouldEqual, 1000)
			})

			Convey("And a zero_score exemplar follows", func() {
				rc, err := gw.Ingest(ctx, ingest.Request{MotionName: "lift_extinguisher", Category: "zero_score", Frames: model.FramesFromMatrix(zeroScore)})

				Convey("Then the ceiling becomes 12*sqrt(2)", func() {
					So(err, ShouldBeNil)
					So(rc.Warning, ShouldBeNil)
					So(rc.Calibration.Updated, ShouldBeTrue)
					So(rc.Calibration.Ceiling, ShouldAlmostEqual, 12*math.Sqrt2, 1e-9)
					So(rc.Calibration.Pairs, ShouldEqual, 1)

					got, _ := gw.GetMotionType(ctx, "lift_extinguisher")
					So(got.MaxDTWDistance, ShouldAlmostEqual, 12*math.Sqrt2, 1e-9)
				})

				Convey("Then evaluations see the new corpus", func() {
					engine := evaluation.New(store, normalize.New(), dtw.NewEngine(), evaluation.WithReferenceCache(cache))
					good, err := engine.Evaluate(ctx, evaluation.Request{MotionName: "lift_extinguisher", Frames: model.FramesFromMatrix(reference)})
					So(err, ShouldBeNil)
					So(good.Score, ShouldEqual, 100)
					bad, err := engine.Evaluate(ctx, evaluation.Request{MotionName: "lift_extinguisher", Frames: model.FramesFromMatrix(zeroScore)})
					So(err, ShouldBeNil)
					So(bad.Score, ShouldAlmostEqual, 0, 1e-9)
				})

				Convey("Then deleting the zero_score exemplar keeps the ceiling", func() {
					del, err := gw.Delete(ctx, rc.Recording.ID)
					So(err, ShouldBeNil)
					So(del.Recording.Category, ShouldEqual, model.CategoryZeroScore)
					So(errors.Is(del.Warning, calibration.ErrCalibrationIncomplete), ShouldBeTrue)
					So(countRecordings(ctx, store, mt.ID), ShouldEqual, 1)

					got, _ := gw.GetMotionType(ctx, "lift_extinguisher")
					So(got.MaxDTWDistance, ShouldAlmostEqual, 12*math.Sqrt2, 1e-9)
				})
			})

			Convey("And a zero_score exemplar identical to it follows", func() {
				rc, err := gw.Ingest(ctx, ingest.Request{MotionName: "lift_extinguisher", Category: "zero_score", Frames: model.FramesFromMatrix(reference)})

				Convey("Then the corpus is degenerate and the ceiling stays positive", func() {
					So(err, ShouldBeNil)
					So(errors.Is(rc.Warning, calibration.ErrDegenerateCorpus), ShouldBeTrue)
					got, _ := gw.GetMotionType(ctx, "lift_extinguisher")
					So(got.MaxDTWDistance, ShouldEqual, 1000)
				})
			})
		})
	})
}

func TestIngestRejections(t *testing.T) {
	Convey("Given a gateway with one motion type", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		spy := &spyInvalidator{}
		gw := ingest.New(store, normalize.New(), calibration.New(store, dtw.NewEngine()),
			ingest.WithInvalidator(spy),
			ingest.WithDeduper(dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(16))),
		)
		mt, err := gw.CreateMotionType(ctx, ingest.MotionTypeSpec{Name: "squat", Channels: []string{"ax", "ay"}, MaxDTWDistance: 50})
		So(err, ShouldBeNil)

		Convey("When the category is unknown", func() {
			_, err := gw.Ingest(ctx, ingest.Request{MotionName: "squat", Category: "excellent", Frames: model.FramesFromMatrix(reference)})
			So(errors.Is(err, ingest.ErrInvalidCategory), ShouldBeTrue)
			So(ingest.IsClientError(err), ShouldBeTrue)
			So(countRecordings(ctx, store, mt.ID), ShouldEqual, 0)
			So(spy.calls, ShouldBeEmpty)
		})

		Convey("When the motion type is unknown", func() {
			_, err := gw.Ingest(ctx, ingest.Request{MotionName: "lunge", Category: "reference", Frames: model.FramesFromMatrix(reference)})
			So(errors.Is(err, repository.ErrMotionTypeNotFound), ShouldBeTrue)
		})

		Convey("When the recording is malformed", func() {
			bad := []model.Frame{model.NamedFrame(map[string]float64{"ax": 1})}
			_, err := gw.Ingest(ctx, ingest.Request{MotionName: "squat", Category: "reference", Frames: bad, RecordingKey: "k-1"})

			Convey("Then nothing is stored and the key can be retried", func() {
				var me *normalize.MalformedRecordingError
				So(errors.As(err, &me), ShouldBeTrue)
				So(me.Channel, ShouldEqual, "ay")
				So(countRecordings(ctx, store, mt.ID), ShouldEqual, 0)

				rc, err := gw.Ingest(ctx, ingest.Request{MotionName: "squat", Category: "reference", Frames: model.FramesFromMatrix(reference), RecordingKey: "k-1"})
				So(err, ShouldBeNil)
				So(rc.Duplicate, ShouldBeFalse)
				So(countRecordings(ctx, store, mt.ID), ShouldEqual, 1)
			})
		})

		Convey("When the same recording key arrives twice", func() {
			req := ingest.Request{MotionName: "squat", Category: "reference", Frames: model.FramesFromMatrix(reference), RecordingKey: "msg-42"}
			first, err := gw.Ingest(ctx, req)
			So(err, ShouldBeNil)
			second, err := gw.Ingest(ctx, req)
			So(err, ShouldBeNil)

			Convey("Then only the first is stored", func() {
				So(first.Duplicate, ShouldBeFalse)
				So(second.Duplicate, ShouldBeTrue)
				So(second.Recording.ID, ShouldBeEmpty)
				So(countRecordings(ctx, store, mt.ID), ShouldEqual, 1)
				So(spy.calls, ShouldResemble, []string{mt.ID})
			})
		})

		Convey("When deleting an unknown recording", func() {
			_, err := gw.Delete(ctx, "missing")
			So(errors.Is(err, repository.ErrRecordingNotFound), ShouldBeTrue)
		})

		Convey("When recalibrating by name", func() {
			rc, err := gw.Recalibrate(ctx, "squat")
			So(err, ShouldBeNil)
			So(errors.Is(rc.Warning, calibration.ErrCalibrationIncomplete), ShouldBeTrue)
			So(rc.Calibration.MotionName, ShouldEqual, "squat")

			_, err = gw.Recalibrate(ctx, "lunge")
			So(errors.Is(err, repository.ErrMotionTypeNotFound), ShouldBeTrue)
		})
	})
}

func TestIngestCalibrationFailure(t *testing.T) {
	Convey("Given a calibrator that fails", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		gw := ingest.New(store, normalize.New(), failingCalibrator{})
		mt, err := gw.CreateMotionType(ctx, ingest.MotionTypeSpec{Name: "squat", Channels: []string{"ax", "ay"}})
		So(err, ShouldBeNil)

		Convey("When a recording is ingested", func() {
			rc, err := gw.Ingest(ctx, ingest.Request{MotionName: "squat", Category: "zero_score", Frames: model.FramesFromMatrix(zeroScore)})

			Convey("Then the recording is kept and the failure is reported", func() {
				So(errors.Is(err, ingest.ErrRecalibrationFailed), ShouldBeTrue)
				So(rc.Recording.ID, ShouldNotBeEmpty)
				So(countRecordings(ctx, store, mt.ID), ShouldEqual, 1)
			})
		})
	})
}

func TestCreateMotionType(t *testing.T) {
	Convey("Given a gateway", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		gw := ingest.New(store, normalize.New(), calibration.New(store, dtw.NewEngine()))

		cases := []struct {
			name string
			spec ingest.MotionTypeSpec
		}{
			{"empty name", ingest.MotionTypeSpec{Name: "  "}},
			{"negative ceiling", ingest.MotionTypeSpec{Name: "a", MaxDTWDistance: -1}},
			{"blank channel", ingest.MotionTypeSpec{Name: "a", Channels: []string{"ax", ""}}},
			{"repeated channel", ingest.MotionTypeSpec{Name: "a", Channels: []string{"ax", "ax"}}},
		}
		for _, tc := range cases {
			Convey("When the motion type has "+tc.name, func() {
				_, err := gw.CreateMotionType(ctx, tc.spec)
				So(errors.Is(err, ingest.ErrInvalidMotionType), ShouldBeTrue)
			})
		}

		Convey("When names collide", func() {
			_, err := gw.CreateMotionType(ctx, ingest.MotionTypeSpec{Name: "plank"})
			So(err, ShouldBeNil)
			_, err = gw.CreateMotionType(ctx, ingest.MotionTypeSpec{Name: "plank"})
			So(errors.Is(err, repository.ErrDuplicateMotionType), ShouldBeTrue)
		})

		Convey("When listing", func() {
			for _, n := range []string{"squat", "lift_extinguisher", "plank"} {
				_, err := gw.CreateMotionType(ctx, ingest.MotionTypeSpec{Name: n})
				So(err, ShouldBeNil)
			}
			types, err := gw.ListMotionTypes(ctx)
			So(err, ShouldBeNil)
			So(types, ShouldHaveLength, 3)
			So(types[0].Name, ShouldEqual, "lift_extinguisher")
			So(types[2].Name, ShouldEqual, "squat")
		})
	})
}
