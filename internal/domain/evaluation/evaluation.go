// Package evaluation scores a trainee recording against the reference
// recordings of a motion type.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/okian/motionscore/internal/adapters/repository"
	"github.com/okian/motionscore/internal/domain/dtw"
	"github.com/okian/motionscore/internal/domain/model"
	"github.com/okian/motionscore/internal/domain/normalize"
	"github.com/okian/motionscore/internal/domain/scoring"
	"github.com/okian/motionscore/pkg/logger"
	"github.com/okian/motionscore/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// Store is the persistence the engine needs.
type Store interface {
	ReferenceLoader
	GetMotionTypeByName(ctx context.Context, name string) (model.MotionType, error)
	ListMotionTypes(ctx context.Context) ([]model.MotionType, error)
	CreateUserRecording(ctx context.Context, ur model.UserRecording) (model.UserRecording, error)
	ListUserRecordings(ctx context.Context, employeeID, motionTypeID string, limit int) ([]model.UserRecording, error)
	BestScores(ctx context.Context, motionTypeID string, limit int) ([]model.EmployeeScore, error)
}

// Normalizer validates a raw recording against a schema.
type Normalizer interface {
	Normalize(schema normalize.Schema, frames []model.Frame) (model.Matrix, error)
}

// Measurer computes the distance between two recordings.
type Measurer interface {
	Distance(a, b model.Matrix) (float64, error)
}

// Request is one evaluation.
type Request struct {
	MotionName string
	Employee   model.Employee
	Frames     []model.Frame
}

// Result is the outcome of a completed evaluation.
type Result struct {
	MotionName  string
	Score       float64
	Distance    float64
	Ceiling     float64
	References  int
	Grade       string
	RecordID    string
	EvaluatedAt time.Time
}

// HistoryEntry is one past evaluation of an employee.
type HistoryEntry struct {
	RecordID   string
	MotionName string
	Score      float64
	RecordedAt time.Time
}

// Engine evaluates recordings. It holds no per-request state and is safe for
// concurrent use.
type Engine struct {
	store         Store
	normalizer    Normalizer
	measurer      Measurer
	refs          *ReferenceCache
	policy        *scoring.Policy
	defaultSchema normalize.Schema
	parallelism   int
	log           logger.Logger
	now           func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithParallelism bounds concurrent distance computations per evaluation.
func WithParallelism(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.parallelism = n
		}
	}
}

// WithPolicy sets the scoring policy.
func WithPolicy(p *scoring.Policy) Option {
	return func(e *Engine) {
		if p != nil {
			e.policy = p
		}
	}
}

// WithDefaultSchema sets the schema of motion types without channels.
func WithDefaultSchema(channels []string) Option {
	return func(e *Engine) {
		if len(channels) > 0 {
			e.defaultSchema = append(normalize.Schema(nil), channels...)
		}
	}
}

// WithReferenceCache shares a cache with the ingestion side.
func WithReferenceCache(c *ReferenceCache) Option {
	return func(e *Engine) {
		if c != nil {
			e.refs = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithClock sets the time source for EvaluatedAt.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an Engine.
func New(store Store, normalizer Normalizer, measurer Measurer, opts ...Option) *Engine {
	e := &Engine{
		store:         store,
		normalizer:    normalizer,
		measurer:      measurer,
		policy:        scoring.NewPolicy(),
		defaultSchema: normalize.Schema{"ax", "ay", "az", "gx", "gy", "gz"},
		parallelism:   runtime.NumCPU(),
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.refs == nil {
		e.refs = NewReferenceCache(store, defaultReferenceCacheSize)
	}
	if e.log == nil {
		e.log = logger.Named("evaluation")
	}
	return e
}

// References returns the engine's reference cache.
func (e *Engine) References() *ReferenceCache { return e.refs }

// SchemaFor returns the channel schema of a motion type.
func (e *Engine) SchemaFor(mt model.MotionType) normalize.Schema {
	if len(mt.Channels) > 0 {
		return normalize.Schema(mt.Channels)
	}
	return e.defaultSchema
}

// Evaluate scores req.Frames against the references of req.MotionName and
// stores a UserRecording. Nothing is stored when scoring fails. When storing
// fails the computed Result is returned with a *PersistenceError.
func (e *Engine) Evaluate(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	res, err := e.evaluate(ctx, req)
	outcome := outcomeLabel(err)
	motion := req.MotionName
	if outcome == "not_found" {
		// keep label cardinality bounded by known motion types
		motion = "unknown"
	}
	metrics.RecordEvaluation(motion, outcome)
	metrics.RecordEvaluationLatency(float64(time.Since(start).Microseconds()) / 1000.0)
	if err == nil || errors.Is(err, ErrEvaluationPersistence) {
		metrics.RecordEvaluationScore(req.MotionName, res.Score)
	}
	return res, err
}

func (e *Engine) evaluate(ctx context.Context, req Request) (Result, error) {
	mt, err := e.store.GetMotionTypeByName(ctx, req.MotionName)
	if err != nil {
		return Result{}, fmt.Errorf("motion type %q: %w", req.MotionName, err)
	}

	refs, err := e.refs.Get(ctx, mt.ID)
	if err != nil {
		return Result{}, fmt.Errorf("load references: %w", err)
	}
	if len(refs) == 0 {
		return Result{}, fmt.Errorf("%w: %s", ErrNoReferenceRecording, mt.Name)
	}

	candidate, err := e.normalizer.Normalize(e.SchemaFor(mt), req.Frames)
	if err != nil {
		return Result{}, err
	}

	distance, err := e.minDistance(ctx, candidate, refs)
	if err != nil {
		if errors.Is(err, dtw.ErrDimensionMismatch) || errors.Is(err, dtw.ErrEmptySequence) {
			e.log.Error(ctx, "reference incompatible with candidate",
				logger.String("motion", mt.Name),
				logger.Int("candidate_width", candidate.Width()),
				logger.Bool("defect", true),
				logger.Error(err),
			)
			return Result{}, fmt.Errorf("%w: %w", ErrDefect, err)
		}
		return Result{}, err
	}

	ceiling := mt.MaxDTWDistance
	score := e.policy.Score(distance, ceiling)
	res := Result{
		MotionName:  mt.Name,
		Score:       score,
		Distance:    distance,
		Ceiling:     ceiling,
		References:  len(refs),
		Grade:       e.policy.Grade(score),
		EvaluatedAt: e.now(),
	}

	// Persist even if the caller went away: the computation is complete.
	ur, err := e.store.CreateUserRecording(context.WithoutCancel(ctx), model.UserRecording{
		EmployeeID:   req.Employee.ID,
		MotionTypeID: mt.ID,
		Score:        score,
		RecordedAt:   res.EvaluatedAt,
	})
	if err != nil {
		e.log.Error(ctx, "evaluation not stored",
			logger.String("motion", mt.Name),
			logger.String("employee_id", req.Employee.ID),
			logger.Float64("score", score),
			logger.Error(err),
		)
		return res, &PersistenceError{Err: err}
	}
	res.RecordID = ur.ID

	e.log.Debug(ctx, "evaluation scored",
		logger.String("motion", mt.Name),
		logger.String("employee_id", req.Employee.ID),
		logger.Float64("distance", distance),
		logger.Float64("ceiling", ceiling),
		logger.Float64("score", score),
	)
	return res, nil
}

// minDistance returns the smallest distance from candidate to any reference.
// Context is checked between comparisons; a running comparison is not interrupted.
func (e *Engine) minDistance(ctx context.Context, candidate model.Matrix, refs []model.Matrix) (float64, error) {
	dists := make([]float64, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	for i, ref := range refs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			d, err := e.measurer.Distance(candidate, ref)
			if err != nil {
				return fmt.Errorf("reference %d: %w", i, err)
			}
			dists[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	best := math.Inf(1)
	for _, d := range dists {
		best = math.Min(best, d)
	}
	return best, nil
}

// History lists an employee's evaluations, newest first. An empty motionName
// lists every motion type.
func (e *Engine) History(ctx context.Context, employee model.Employee, motionName string, limit int) ([]HistoryEntry, error) {
	names := make(map[string]string)
	motionTypeID := ""
	if motionName != "" {
		mt, err := e.store.GetMotionTypeByName(ctx, motionName)
		if err != nil {
			return nil, fmt.Errorf("motion type %q: %w", motionName, err)
		}
		motionTypeID = mt.ID
		names[mt.ID] = mt.Name
	} else {
		types, err := e.store.ListMotionTypes(ctx)
		if err != nil {
			return nil, err
		}
		for _, mt := range types {
			names[mt.ID] = mt.Name
		}
	}

	urs, err := e.store.ListUserRecordings(ctx, employee.ID, motionTypeID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]HistoryEntry, len(urs))
	for i, ur := range urs {
		out[i] = HistoryEntry{RecordID: ur.ID, MotionName: names[ur.MotionTypeID], Score: ur.Score, RecordedAt: ur.RecordedAt}
	}
	return out, nil
}

// Leaderboard lists the best score per employee for a motion type.
func (e *Engine) Leaderboard(ctx context.Context, motionName string, limit int) ([]model.EmployeeScore, error) {
	mt, err := e.store.GetMotionTypeByName(ctx, motionName)
	if err != nil {
		return nil, fmt.Errorf("motion type %q: %w", motionName, err)
	}
	return e.store.BestScores(ctx, mt.ID, limit)
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "scored"
	case errors.Is(err, repository.ErrMotionTypeNotFound):
		return "not_found"
	case errors.Is(err, ErrNoReferenceRecording):
		return "no_reference"
	case errors.Is(err, normalize.ErrMalformedRecording):
		return "malformed"
	case errors.Is(err, ErrDefect):
		return "defect"
	case errors.Is(err, ErrEvaluationPersistence):
		return "persistence_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
