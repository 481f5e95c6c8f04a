package probe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/motionscore/pkg/logger"
	"go.yaml.in/yaml/v3"
	"golang.org/x/sync/errgroup"
)

// File permission constants.
const (
	directoryPermission = 0o750
	filePermission      = 0o600
)

const (
	defaultTimeout = 30 * time.Second
	leaderboardTop = 10
)

var (
	// ErrNoEmployees is returned when the run has nobody to evaluate as.
	ErrNoEmployees = errors.New("at least one employee is required")
	// ErrNotMonotonic is returned when a noisier batch outscored a cleaner one.
	ErrNotMonotonic = errors.New("mean score did not fall as noise rose")
)

type sample struct {
	empNo  string
	frames [][]float64
}

// Run executes a complete probe and returns its report. The report is
// returned even when the monotonicity check fails.
func Run(ctx context.Context, cfg *Config) (*Report, error) {
	if len(cfg.Employees) == 0 {
		return nil, ErrNoEmployees
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	log := logger.Named("probe")
	c := newClient(cfg)
	report := &Report{BaseURL: cfg.BaseURL, MotionName: cfg.MotionName, StartedAt: time.Now()}

	log.Info(ctx, "starting motion probe",
		logger.String("baseURL", cfg.BaseURL),
		logger.String("motion", cfg.MotionName),
		logger.Int("levels", len(cfg.Levels)),
		logger.Int("perLevel", cfg.PerLevel),
		logger.Int("workers", cfg.Workers),
	)

	if err := c.health(ctx); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	ref := Reference(cfg.Frames, len(cfg.Channels))
	if cfg.Setup {
		ceiling, err := setup(ctx, c, cfg, ref)
		if err != nil {
			return nil, fmt.Errorf("setup failed: %w", err)
		}
		report.Ceiling = ceiling
		log.Info(ctx, "exemplars uploaded", logger.Float64("ceiling", ceiling))
	}

	gen := NewGenerator(cfg.Seed)
	for _, sigma := range cfg.Levels {
		samples := make([]sample, cfg.PerLevel)
		for i := range samples {
			samples[i] = sample{
				empNo:  cfg.Employees[i%len(cfg.Employees)],
				frames: gen.Noisy(ref, sigma),
			}
		}
		stats, ceiling, err := evaluateLevel(ctx, c, cfg, sigma, samples)
		if err != nil {
			return nil, err
		}
		if ceiling > 0 {
			report.Ceiling = ceiling
		}
		report.Levels = append(report.Levels, stats)
		log.Info(ctx, "noise level evaluated",
			logger.Float64("noise", sigma),
			logger.Float64("meanScore", stats.MeanScore),
			logger.Int("failed", stats.Failed),
		)
	}

	board, err := c.leaderboard(ctx, cfg.MotionName, leaderboardTop)
	if err != nil {
		log.Warn(ctx, "leaderboard retrieval failed", logger.Error(err))
	}
	report.Leaderboard = board
	report.Monotonic = monotonic(report.Levels)
	report.Duration = time.Since(report.StartedAt)

	if cfg.OutputFile != "" {
		if err := WriteReport(cfg.OutputFile, report); err != nil {
			log.Warn(ctx, "failed to save report", logger.Error(err))
		}
	}
	if !report.Monotonic {
		return report, ErrNotMonotonic
	}
	log.Info(ctx, "probe completed successfully", logger.Duration("duration", report.Duration))
	return report, nil
}

// setup creates the motion type and uploads one reference and one zero-score
// exemplar. It returns the calibrated ceiling.
func setup(ctx context.Context, c *client, cfg *Config, ref [][]float64) (float64, error) {
	if err := c.createMotionType(ctx, cfg.MotionName, cfg.Channels); err != nil {
		return 0, fmt.Errorf("create motion type: %w", err)
	}
	if _, err := c.uploadRecording(ctx, cfg.MotionName, "reference", uuid.NewString(), ref); err != nil {
		return 0, fmt.Errorf("upload reference: %w", err)
	}
	rc, err := c.uploadRecording(ctx, cfg.MotionName, "zero_score", uuid.NewString(), ZeroScore(ref))
	if err != nil {
		return 0, fmt.Errorf("upload zero_score: %w", err)
	}
	if rc.Calibration == nil {
		return 0, nil
	}
	if rc.Calibration.Warning != "" {
		return 0, fmt.Errorf("calibration warning: %s", rc.Calibration.Warning)
	}
	return rc.Calibration.Ceiling, nil
}

// evaluateLevel submits samples concurrently. Failed requests are counted,
// not returned; only context cancellation aborts the batch.
func evaluateLevel(ctx context.Context, c *client, cfg *Config, sigma float64, samples []sample) (LevelStats, float64, error) {
	stats := LevelStats{Noise: sigma, Submitted: len(samples), MinScore: math.Inf(1), MaxScore: math.Inf(-1)}
	var (
		mu      sync.Mutex
		sum     float64
		ceiling float64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, s := range samples {
		g.Go(func() error {
			ev, err := c.evaluate(gctx, cfg.MotionName, s.empNo, s.frames)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				stats.Failed++
				return nil
			}
			sum += ev.Score
			ceiling = ev.Ceiling
			stats.MinScore = math.Min(stats.MinScore, ev.Score)
			stats.MaxScore = math.Max(stats.MaxScore, ev.Score)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, 0, fmt.Errorf("noise level %.3f: %w", sigma, err)
	}

	if ok := stats.Submitted - stats.Failed; ok > 0 {
		stats.MeanScore = sum / float64(ok)
	} else {
		stats.MinScore, stats.MaxScore = 0, 0
	}
	return stats, ceiling, nil
}

// monotonic reports whether mean scores never rise with the noise level.
// Levels are compared in the order given; levels with no successful
// evaluation are ignored.
func monotonic(levels []LevelStats) bool {
	prev := math.Inf(1)
	for _, l := range levels {
		if l.Submitted == l.Failed {
			continue
		}
		if l.MeanScore > prev {
			return false
		}
		prev = l.MeanScore
	}
	return true
}

// WriteReport saves r as YAML, creating the directory when needed.
func WriteReport(path string, r *Report) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	raw, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, raw, filePermission); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
