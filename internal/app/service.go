// Package service assembles the storage, domain engines and ingestion
// transports into one runnable unit.
package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/motionscore/internal/adapters/http/api"
	"github.com/okian/motionscore/internal/adapters/mq/mqtt"
	eventqueue "github.com/okian/motionscore/internal/adapters/mq/queue"
	workerpool "github.com/okian/motionscore/internal/adapters/mq/worker"
	"github.com/okian/motionscore/internal/adapters/repository"
	"github.com/okian/motionscore/internal/config"
	"github.com/okian/motionscore/internal/domain/calibration"
	"github.com/okian/motionscore/internal/domain/dedupe"
	"github.com/okian/motionscore/internal/domain/dtw"
	"github.com/okian/motionscore/internal/domain/evaluation"
	"github.com/okian/motionscore/internal/domain/ingest"
	"github.com/okian/motionscore/internal/domain/normalize"
	"github.com/okian/motionscore/internal/domain/scoring"
	"github.com/okian/motionscore/pkg/logger"
	"github.com/okian/motionscore/pkg/metrics"
)

const stopTimeout = 30 * time.Second

var _ mqtt.Enqueuer = (*Service)(nil)

// Service owns every long-lived component and implements api.StatsProvider.
type Service struct {
	mu sync.RWMutex

	cfg    *config.Config
	logger logger.Logger

	// store is injected by tests; otherwise opened from cfg on Start.
	store      repository.Store
	ownedStore bool

	maintainer *calibration.Maintainer
	engine     *evaluation.Engine
	gateway    *ingest.Gateway
	queue      *eventqueue.InMemoryQueue
	pool       *workerpool.Pool
	subscriber *mqtt.Subscriber

	// intake is the queue Enqueue feeds; nil while stopped. It is read
	// without s.mu so that MQTT handlers never wait on Start or Stop.
	intake atomic.Pointer[eventqueue.InMemoryQueue]

	started   bool
	startedAt time.Time
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig replaces the default configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithStore uses an already opened store instead of opening one from the
// configured driver. The caller keeps ownership and closes it.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service. Nothing is opened until Start.
func New(opts ...Option) *Service {
	s := &Service{cfg: config.New(context.Background())}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens storage, applies the seed file, builds the engines and starts
// the ingestion workers and the MQTT subscriber when a broker is configured.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Named("service")
	}
	cfg := s.cfg
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.logger.Info(ctx, "starting motionscore service...",
		logger.String("storage", cfg.StorageDriver),
	)

	store := s.store
	s.ownedStore = false
	if store == nil {
		var err error
		store, err = repository.Open(cfg.StorageDriver, cfg.StorageDSN)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		s.ownedStore = true
	}

	if err := s.seed(ctx, store); err != nil {
		s.closeStore(store)
		return err
	}

	normalizer := normalize.New(normalize.WithMaxFrames(cfg.MaxFrames))
	measurer := dtw.NewEngine()

	maintainer := calibration.New(store, measurer,
		calibration.WithParallelism(cfg.CalibrationParallelism),
		calibration.WithLogger(s.logger.Named("calibration")),
	)
	refs := evaluation.NewReferenceCache(store, cfg.ReferenceCacheSize)
	engine := evaluation.New(store, normalizer, measurer,
		evaluation.WithParallelism(cfg.EvaluationParallelism),
		evaluation.WithPolicy(scoring.NewPolicy(scoring.WithPassScore(cfg.PassScore))),
		evaluation.WithDefaultSchema(cfg.DefaultChannels),
		evaluation.WithReferenceCache(refs),
		evaluation.WithLogger(s.logger.Named("evaluation")),
	)
	gateway := ingest.New(store, normalizer, maintainer,
		ingest.WithInvalidator(refs),
		ingest.WithDeduper(dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(cfg.DedupeSize))),
		ingest.WithDefaultSchema(cfg.DefaultChannels),
		ingest.WithDefaultCeiling(cfg.DefaultMaxDTWDistance),
		ingest.WithLogger(s.logger.Named("ingest")),
	)

	if cfg.RecalibrateOnStart {
		outcomes, err := maintainer.RecalibrateAll(ctx)
		if err != nil {
			s.logger.Warn(ctx, "startup recalibration incomplete", logger.Error(err))
		}
		s.logger.Info(ctx, "startup recalibration finished", logger.Int("motionTypes", len(outcomes)))
	}

	q := eventqueue.NewInMemoryQueue(
		eventqueue.WithCapacity(cfg.IngestQueueSize),
		eventqueue.WithBufferSize(cfg.IngestQueueSize),
	)
	pool := workerpool.NewPool(cfg.IngestWorkerCount, q, gateway,
		workerpool.WithLogger(s.logger.Named("worker")),
	)
	// Workers and the subscriber outlive the start context; Stop ends them.
	runCtx := context.WithoutCancel(ctx)
	pool.Start(runCtx)
	s.intake.Store(q)

	var sub *mqtt.Subscriber
	if cfg.MQTTBroker != "" {
		var err error
		sub, err = mqtt.New(s,
			mqtt.WithBroker(cfg.MQTTBroker),
			mqtt.WithClientID(cfg.MQTTClientID),
			mqtt.WithTopic(cfg.MQTTTopic),
			mqtt.WithQoS(cfg.MQTTQoS),
			mqtt.WithCredentials(cfg.MQTTUsername, cfg.MQTTPassword),
			mqtt.WithLogger(s.logger.Named("mqtt")),
		)
		if err == nil {
			err = sub.Start(runCtx)
		}
		if err != nil {
			s.intake.Store(nil)
			s.shutdownPool(ctx, pool)
			s.closeStore(store)
			return fmt.Errorf("start mqtt subscriber: %w", err)
		}
	}

	s.store = store
	s.maintainer = maintainer
	s.engine = engine
	s.gateway = gateway
	s.queue = q
	s.pool = pool
	s.subscriber = sub
	s.started = true
	s.startedAt = time.Now()

	metrics.UpdateWorkerCount(pool.Size())
	metrics.UpdateQueueCapacity(cfg.IngestQueueSize)

	s.logger.Info(ctx, "motionscore service started",
		logger.Int("workers", pool.Size()),
		logger.Int("queueSize", cfg.IngestQueueSize),
		logger.Int("dedupeSize", cfg.DedupeSize),
		logger.Bool("mqtt", sub != nil),
	)
	return nil
}

func (s *Service) seed(ctx context.Context, store repository.Store) error {
	if s.cfg.SeedFile == "" {
		return nil
	}
	seed, err := repository.LoadSeed(s.cfg.SeedFile)
	if err != nil {
		return err
	}
	res, err := seed.Apply(ctx, store, s.cfg.DefaultMaxDTWDistance)
	if err != nil {
		return fmt.Errorf("apply seed: %w", err)
	}
	s.logger.Info(ctx, "seed applied",
		logger.String("file", s.cfg.SeedFile),
		logger.Int("companies", res.Companies),
		logger.Int("employees", res.Employees),
		logger.Int("devices", res.Devices),
		logger.Int("motionTypes", res.MotionTypes),
	)
	return nil
}

// Stop drains the ingestion queue and releases storage.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping motionscore service...")

	// Stop intake first so the drain below sees every accepted job.
	s.intake.Store(nil)
	if s.subscriber != nil {
		s.subscriber.Stop()
		s.subscriber = nil
	}
	s.shutdownPool(ctx, s.pool)
	if s.ownedStore {
		s.closeStore(s.store)
		s.store = nil
	}

	s.started = false
	s.logger.Info(ctx, "motionscore service stopped")
}

func (s *Service) shutdownPool(ctx context.Context, pool *workerpool.Pool) {
	ctx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()
	if err := pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "ingestion workers did not drain", logger.Error(err))
	}
}

func (s *Service) closeStore(store repository.Store) {
	if !s.ownedStore {
		return
	}
	if err := store.Close(); err != nil {
		s.logger.Warn(context.Background(), "close store failed", logger.Error(err))
	}
}

// Dependencies returns the handlers' view of the running service.
// It must be called after Start.
func (s *Service) Dependencies() api.Dependencies {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return api.Dependencies{
		Evaluator: s.engine,
		Ingester:  s.gateway,
		Directory: s.store,
		Stats:     s,
	}
}

// ServerOptions returns the api.Server options derived from the configuration.
func (s *Service) ServerOptions() []api.Option {
	return []api.Option{
		api.WithRequireDeviceKey(s.cfg.RequireDeviceKey),
		api.WithDefaultCompany(s.cfg.DefaultCompany),
		api.WithMaxListLimit(s.cfg.MaxListLimit),
	}
}

// Enqueue hands a recording to the asynchronous ingestion workers. It is the
// MQTT subscriber's sink and returns false when the service is stopped or
// the queue is full.
func (s *Service) Enqueue(ctx context.Context, j eventqueue.Job) bool {
	q := s.intake.Load()
	if q == nil {
		return false
	}
	return q.Enqueue(ctx, j)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":       s.started,
		"storage":       s.cfg.StorageDriver,
		"workerCount":   s.cfg.IngestWorkerCount,
		"queueSize":     s.cfg.IngestQueueSize,
		"dedupeSize":    s.cfg.DedupeSize,
		"mqttEnabled":   s.cfg.MQTTBroker != "",
		"requireDevice": s.cfg.RequireDeviceKey,
	}

	if s.started {
		ctx := context.Background()
		queueLen := s.queue.Len(ctx)
		stats["queueLength"] = queueLen
		stats["workerCount"] = s.pool.Size()
		stats["processed"] = s.pool.Processed()
		stats["failed"] = s.pool.Failed()
		stats["uptimeSeconds"] = int64(time.Since(s.startedAt).Seconds())

		if types, err := s.store.ListMotionTypes(ctx); err == nil {
			stats["motionTypes"] = len(types)
			metrics.UpdateMotionTypes(len(types))
		}

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerCount(s.pool.Size())
	}

	return stats
}
