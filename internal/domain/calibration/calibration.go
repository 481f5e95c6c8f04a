// Package calibration maintains the per-motion-type ceiling (max DTW distance)
// that maps distances onto the 0-100 scale.
//
// The ceiling is the minimum DTW distance between any reference recording and
// any zero_score recording of the motion type: the closest a known-bad
// performance ever gets to a known-good one.
package calibration

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/okian/motionscore/internal/domain/model"
	"github.com/okian/motionscore/pkg/logger"
	"github.com/okian/motionscore/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// Store is the persistence the maintainer needs.
type Store interface {
	GetMotionType(ctx context.Context, id string) (model.MotionType, error)
	ListMotionTypes(ctx context.Context) ([]model.MotionType, error)
	ListRecordings(ctx context.Context, motionTypeID string, category model.Category) ([]model.MotionRecording, error)
	UpdateCeiling(ctx context.Context, id string, ceiling float64) error
}

// Measurer computes the distance between two recordings.
type Measurer interface {
	Distance(a, b model.Matrix) (float64, error)
}

// Outcome describes one recalibration.
type Outcome struct {
	MotionTypeID string
	MotionName   string
	Previous     float64
	Ceiling      float64
	Updated      bool
	References   int
	ZeroScores   int
	Pairs        int
}

// Maintainer recomputes ceilings. Recalibrate calls for the same motion type
// are serialised; different motion types proceed in parallel.
type Maintainer struct {
	store       Store
	measurer    Measurer
	log         logger.Logger
	parallelism int
	locks       *keyedMutex
}

// Option configures a Maintainer.
type Option func(*Maintainer)

// WithParallelism bounds concurrent distance computations per recalibration.
func WithParallelism(n int) Option {
	return func(m *Maintainer) {
		if n > 0 {
			m.parallelism = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Maintainer) {
		if l != nil {
			m.log = l
		}
	}
}

// New creates a Maintainer.
func New(store Store, measurer Measurer, opts ...Option) *Maintainer {
	m := &Maintainer{
		store:       store,
		measurer:    measurer,
		parallelism: runtime.NumCPU(),
		locks:       newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = logger.Named("calibration")
	}
	return m
}

// Recalibrate recomputes and stores the ceiling of a motion type.
// A warning (see IsWarning) is returned together with a valid Outcome when
// the corpus cannot produce a usable ceiling; the stored ceiling is unchanged.
func (m *Maintainer) Recalibrate(ctx context.Context, motionTypeID string) (Outcome, error) {
	release := m.locks.Lock(motionTypeID)
	defer release()

	start := time.Now()
	out, err := m.recalibrate(ctx, motionTypeID)
	metrics.RecordCalibration(outcomeLabel(out, err), float64(time.Since(start).Microseconds())/1000.0, out.Pairs)

	fields := []logger.Field{
		logger.String("motion_type_id", motionTypeID),
		logger.String("motion", out.MotionName),
		logger.Int("references", out.References),
		logger.Int("zero_scores", out.ZeroScores),
		logger.Int("pairs", out.Pairs),
		logger.Float64("ceiling", out.Ceiling),
	}
	switch {
	case err == nil:
		metrics.UpdateCalibrationCeiling(out.MotionName, out.Ceiling)
		m.log.Info(ctx, "ceiling recalibrated", append(fields, logger.Float64("previous", out.Previous), logger.Bool("updated", out.Updated))...)
	case IsWarning(err):
		m.log.Warn(ctx, "ceiling left unchanged", append(fields, logger.Error(err))...)
	default:
		m.log.Error(ctx, "recalibration failed", append(fields, logger.Error(err))...)
	}
	return out, err
}

func (m *Maintainer) recalibrate(ctx context.Context, motionTypeID string) (Outcome, error) {
	mt, err := m.store.GetMotionType(ctx, motionTypeID)
	if err != nil {
		return Outcome{MotionTypeID: motionTypeID}, fmt.Errorf("load motion type: %w", err)
	}
	out := Outcome{MotionTypeID: mt.ID, MotionName: mt.Name, Previous: mt.MaxDTWDistance, Ceiling: mt.MaxDTWDistance}

	all, err := m.store.ListRecordings(ctx, mt.ID, "")
	if err != nil {
		return out, fmt.Errorf("load recordings: %w", err)
	}
	var refs, zeros []model.Matrix
	for _, rec := range all {
		switch rec.Category {
		case model.CategoryReference:
			refs = append(refs, rec.Frames)
		case model.CategoryZeroScore:
			zeros = append(zeros, rec.Frames)
		}
	}
	out.References, out.ZeroScores = len(refs), len(zeros)
	if len(refs) == 0 || len(zeros) == 0 {
		return out, ErrCalibrationIncomplete
	}

	minDist, pairs, err := m.minPairwise(ctx, refs, zeros)
	out.Pairs = pairs
	if err != nil {
		return out, err
	}
	if minDist == 0 {
		return out, ErrDegenerateCorpus
	}

	if err := m.store.UpdateCeiling(ctx, mt.ID, minDist); err != nil {
		return out, fmt.Errorf("store ceiling: %w", err)
	}
	out.Ceiling = minDist
	out.Updated = minDist != out.Previous
	return out, nil
}

// minPairwise returns the smallest reference x zero_score distance.
func (m *Maintainer) minPairwise(ctx context.Context, refs, zeros []model.Matrix) (float64, int, error) {
	pairs := len(refs) * len(zeros)
	dists := make([]float64, pairs)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.parallelism)
	for i, ref := range refs {
		for j, zero := range zeros {
			idx := i*len(zeros) + j
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				d, err := m.measurer.Distance(ref, zero)
				if err != nil {
					return fmt.Errorf("reference %d vs zero_score %d: %w", i, j, err)
				}
				dists[idx] = d
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return 0, pairs, err
	}

	minDist := math.Inf(1)
	for _, d := range dists {
		minDist = math.Min(minDist, d)
	}
	return minDist, pairs, nil
}

// RecalibrateAll recalibrates every motion type. Warnings are reported in the
// outcomes' Updated flag and do not stop the run; hard errors are joined.
func (m *Maintainer) RecalibrateAll(ctx context.Context) ([]Outcome, error) {
	types, err := m.store.ListMotionTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list motion types: %w", err)
	}
	outcomes := make([]Outcome, 0, len(types))
	var errs []error
	for _, mt := range types {
		out, err := m.Recalibrate(ctx, mt.ID)
		outcomes = append(outcomes, out)
		if err != nil && !IsWarning(err) {
			errs = append(errs, fmt.Errorf("%s: %w", mt.Name, err))
		}
	}
	return outcomes, errors.Join(errs...)
}

func outcomeLabel(out Outcome, err error) string {
	switch {
	case errors.Is(err, ErrCalibrationIncomplete):
		return "incomplete"
	case errors.Is(err, ErrDegenerateCorpus):
		return "degenerate"
	case err != nil:
		return "error"
	case out.Updated:
		return "updated"
	default:
		return "unchanged"
	}
}
