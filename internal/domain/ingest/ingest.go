// Package ingest stores reference and zero_score recordings and keeps the
// ceiling of their motion type current.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/okian/motionscore/internal/domain/calibration"
	"github.com/okian/motionscore/internal/domain/dedupe"
	"github.com/okian/motionscore/internal/domain/model"
	"github.com/okian/motionscore/internal/domain/normalize"
	"github.com/okian/motionscore/pkg/logger"
	"github.com/okian/motionscore/pkg/metrics"
)

// Store is the persistence the gateway needs.
type Store interface {
	CreateMotionType(ctx context.Context, mt model.MotionType) (model.MotionType, error)
	GetMotionType(ctx context.Context, id string) (model.MotionType, error)
	GetMotionTypeByName(ctx context.Context, name string) (model.MotionType, error)
	ListMotionTypes(ctx context.Context) ([]model.MotionType, error)
	CreateRecording(ctx context.Context, rec model.MotionRecording) (model.MotionRecording, error)
	GetRecording(ctx context.Context, id string) (model.MotionRecording, error)
	DeleteRecording(ctx context.Context, id string) error
}

// Normalizer validates a raw recording against a schema.
type Normalizer interface {
	Normalize(schema normalize.Schema, frames []model.Frame) (model.Matrix, error)
}

// Calibrator recomputes the ceiling of a motion type.
type Calibrator interface {
	Recalibrate(ctx context.Context, motionTypeID string) (calibration.Outcome, error)
}

// Invalidator drops cached references of a motion type.
type Invalidator interface {
	Invalidate(motionTypeID string)
}

// Request is one recording upload.
type Request struct {
	MotionName string
	Category   string
	Frames     []model.Frame
	// RecordingKey makes the upload idempotent while the key stays in the
	// dedupe window. Empty disables the check.
	RecordingKey string
}

// Receipt describes a stored (or deleted) recording and the recalibration it
// triggered. Warning holds a non-fatal calibration warning.
type Receipt struct {
	Recording   model.MotionRecording
	Calibration calibration.Outcome
	Warning     error
	Duplicate   bool
}

// MotionTypeSpec describes a motion type to create.
type MotionTypeSpec struct {
	Name           string
	Description    string
	Channels       []string
	MaxDTWDistance float64
}

// Gateway accepts recordings from devices.
type Gateway struct {
	store          Store
	normalizer     Normalizer
	calibrator     Calibrator
	invalidator    Invalidator
	deduper        dedupe.Deduper
	defaultSchema  normalize.Schema
	defaultCeiling float64
	log            logger.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithInvalidator sets the cache notified when references change.
func WithInvalidator(inv Invalidator) Option {
	return func(g *Gateway) {
		if inv != nil {
			g.invalidator = inv
		}
	}
}

// WithDeduper sets the idempotency window for recording keys.
func WithDeduper(d dedupe.Deduper) Option {
	return func(g *Gateway) {
		if d != nil {
			g.deduper = d
		}
	}
}

// WithDefaultSchema sets the schema of motion types without channels.
func WithDefaultSchema(channels []string) Option {
	return func(g *Gateway) {
		if len(channels) > 0 {
			g.defaultSchema = append(normalize.Schema(nil), channels...)
		}
	}
}

// WithDefaultCeiling sets the ceiling of new motion types that declare none.
func WithDefaultCeiling(c float64) Option {
	return func(g *Gateway) {
		if c > 0 {
			g.defaultCeiling = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.log = l
		}
	}
}

type noopInvalidator struct{}

func (noopInvalidator) Invalidate(string) {}

// New creates a Gateway.
func New(store Store, normalizer Normalizer, calibrator Calibrator, opts ...Option) *Gateway {
	g := &Gateway{
		store:          store,
		normalizer:     normalizer,
		calibrator:     calibrator,
		invalidator:    noopInvalidator{},
		deduper:        dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(10000)),
		defaultSchema:  normalize.Schema{"ax", "ay", "az", "gx", "gy", "gz"},
		defaultCeiling: 1000,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.log == nil {
		g.log = logger.Named("ingest")
	}
	return g
}

func (g *Gateway) schemaFor(mt model.MotionType) normalize.Schema {
	if len(mt.Channels) > 0 {
		return normalize.Schema(mt.Channels)
	}
	return g.defaultSchema
}

// Ingest validates and stores a recording, then recalibrates its motion type.
func (g *Gateway) Ingest(ctx context.Context, req Request) (Receipt, error) {
	category, err := model.ParseCategory(strings.TrimSpace(req.Category))
	if err != nil {
		metrics.RecordIngestion("invalid", "rejected")
		return Receipt{}, fmt.Errorf("%w: %q", ErrInvalidCategory, req.Category)
	}

	if req.RecordingKey != "" && g.deduper.SeenAndRecord(ctx, req.RecordingKey) {
		metrics.RecordIngestDuplicate()
		g.log.Debug(ctx, "duplicate recording skipped", logger.String("recording_key", req.RecordingKey))
		return Receipt{Duplicate: true}, nil
	}

	rec, err := g.storeRecording(ctx, req, category)
	if err != nil {
		if req.RecordingKey != "" {
			// let a retry of the same key through
			g.deduper.Unrecord(ctx, req.RecordingKey)
		}
		metrics.RecordIngestion(string(category), "rejected")
		return Receipt{}, err
	}
	metrics.RecordIngestion(string(category), "stored")
	g.log.Info(ctx, "recording stored",
		logger.String("recording_id", rec.ID),
		logger.String("motion", req.MotionName),
		logger.String("category", string(category)),
		logger.Int("frames", rec.Frames.Frames()),
	)

	out, err := g.recalibrate(ctx, rec.MotionTypeID)
	receipt := Receipt{Recording: rec, Calibration: out}
	if err != nil {
		if calibration.IsWarning(err) {
			receipt.Warning = err
			return receipt, nil
		}
		return receipt, fmt.Errorf("%w: %w", ErrRecalibrationFailed, err)
	}
	return receipt, nil
}

func (g *Gateway) storeRecording(ctx context.Context, req Request, category model.Category) (model.MotionRecording, error) {
	mt, err := g.store.GetMotionTypeByName(ctx, req.MotionName)
	if err != nil {
		return model.MotionRecording{}, fmt.Errorf("motion type %q: %w", req.MotionName, err)
	}
	schema := g.schemaFor(mt)
	m, err := g.normalizer.Normalize(schema, req.Frames)
	if err != nil {
		return model.MotionRecording{}, err
	}
	return g.store.CreateRecording(ctx, model.MotionRecording{
		MotionTypeID: mt.ID,
		Category:     category,
		Channels:     append([]string(nil), schema...),
		Frames:       m,
	})
}

// recalibrate runs after every corpus change. Calibration completes even if
// the caller goes away: the corpus has already changed.
func (g *Gateway) recalibrate(ctx context.Context, motionTypeID string) (calibration.Outcome, error) {
	g.invalidator.Invalidate(motionTypeID)
	return g.calibrator.Recalibrate(context.WithoutCancel(ctx), motionTypeID)
}

// Delete removes a recording and recalibrates its motion type.
func (g *Gateway) Delete(ctx context.Context, recordingID string) (Receipt, error) {
	rec, err := g.store.GetRecording(ctx, recordingID)
	if err != nil {
		return Receipt{}, err
	}
	if err := g.store.DeleteRecording(ctx, recordingID); err != nil {
		return Receipt{}, err
	}
	g.log.Info(ctx, "recording deleted",
		logger.String("recording_id", rec.ID),
		logger.String("motion_type_id", rec.MotionTypeID),
		logger.String("category", string(rec.Category)),
	)

	out, err := g.recalibrate(ctx, rec.MotionTypeID)
	receipt := Receipt{Recording: rec, Calibration: out}
	if err != nil {
		if calibration.IsWarning(err) {
			receipt.Warning = err
			return receipt, nil
		}
		return receipt, fmt.Errorf("%w: %w", ErrRecalibrationFailed, err)
	}
	return receipt, nil
}

// Recalibrate recomputes the ceiling of a motion type on demand. Warnings
// are returned in the receipt, not as errors.
func (g *Gateway) Recalibrate(ctx context.Context, motionName string) (Receipt, error) {
	mt, err := g.store.GetMotionTypeByName(ctx, motionName)
	if err != nil {
		return Receipt{}, fmt.Errorf("motion type %q: %w", motionName, err)
	}
	out, err := g.recalibrate(ctx, mt.ID)
	if err != nil {
		if calibration.IsWarning(err) {
			return Receipt{Calibration: out, Warning: err}, nil
		}
		return Receipt{Calibration: out}, err
	}
	return Receipt{Calibration: out}, nil
}

// CreateMotionType registers a motion type.
func (g *Gateway) CreateMotionType(ctx context.Context, spec MotionTypeSpec) (model.MotionType, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return model.MotionType{}, fmt.Errorf("%w: name is required", ErrInvalidMotionType)
	}
	if spec.MaxDTWDistance < 0 {
		return model.MotionType{}, fmt.Errorf("%w: max_dtw_distance must be positive", ErrInvalidMotionType)
	}
	seen := make(map[string]struct{}, len(spec.Channels))
	for _, ch := range spec.Channels {
		if strings.TrimSpace(ch) == "" {
			return model.MotionType{}, fmt.Errorf("%w: empty channel name", ErrInvalidMotionType)
		}
		if _, dup := seen[ch]; dup {
			return model.MotionType{}, fmt.Errorf("%w: channel %q repeated", ErrInvalidMotionType, ch)
		}
		seen[ch] = struct{}{}
	}

	ceiling := spec.MaxDTWDistance
	if ceiling == 0 {
		ceiling = g.defaultCeiling
	}
	mt, err := g.store.CreateMotionType(ctx, model.MotionType{
		Name:           name,
		Description:    spec.Description,
		Channels:       append([]string(nil), spec.Channels...),
		MaxDTWDistance: ceiling,
	})
	if err != nil {
		return model.MotionType{}, err
	}
	g.log.Info(ctx, "motion type created", logger.String("motion", mt.Name), logger.Float64("ceiling", mt.MaxDTWDistance))
	if types, err := g.store.ListMotionTypes(ctx); err == nil {
		metrics.UpdateMotionTypes(len(types))
	}
	return mt, nil
}

// ListMotionTypes lists motion types ordered by name.
func (g *Gateway) ListMotionTypes(ctx context.Context) ([]model.MotionType, error) {
	return g.store.ListMotionTypes(ctx)
}

// GetMotionType returns a motion type by name.
func (g *Gateway) GetMotionType(ctx context.Context, name string) (model.MotionType, error) {
	mt, err := g.store.GetMotionTypeByName(ctx, name)
	if err != nil {
		return model.MotionType{}, fmt.Errorf("motion type %q: %w", name, err)
	}
	return mt, nil
}

// IsClientError reports whether err was caused by the request content.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidCategory) ||
		errors.Is(err, ErrInvalidMotionType) ||
		errors.Is(err, normalize.ErrMalformedRecording)
}
