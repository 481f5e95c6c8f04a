// Package worker drains queued ingestion jobs into the ingestion gateway.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/motionscore/internal/adapters/mq/queue"
	"github.com/okian/motionscore/internal/adapters/repository"
	"github.com/okian/motionscore/internal/domain/ingest"
	"github.com/okian/motionscore/pkg/logger"
	"github.com/okian/motionscore/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultJobTimeout   = 30 * time.Second
	poolShutdownTimeout = 30 * time.Second
)

// Ingester stores a recording upload.
type Ingester interface {
	Ingest(ctx context.Context, req ingest.Request) (ingest.Receipt, error)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Worker processes queued jobs.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker after its current job.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for one goroutine.
type InMemoryWorker struct {
	queue      Queue
	ingester   Ingester
	name       string
	jobTimeout time.Duration

	shutdown chan struct{}
	stopOnce atomic.Bool
	done     chan struct{}

	processed atomic.Int64
	failed    atomic.Int64

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, ingester Ingester, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:      q,
		ingester:   ingester,
		name:       "worker",
		jobTimeout: defaultJobTimeout,
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
		logger:     logger.Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.With(logger.String("worker", w.name))
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.process(ctx, j); err != nil {
				w.logger.Error(ctx, "ingestion job failed",
					logger.String("message_id", j.MessageID),
					logger.String("motion", j.Request.MotionName),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	if w.stopOnce.CompareAndSwap(false, true) {
		close(w.shutdown)
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Processed returns the number of jobs handled, failed ones included.
func (w *InMemoryWorker) Processed() int64 { return w.processed.Load() }

// Failed returns the number of jobs that ended in an error.
func (w *InMemoryWorker) Failed() int64 { return w.failed.Load() }

func (w *InMemoryWorker) process(ctx context.Context, j queue.Job) error {
	start := time.Now()
	metrics.AddWorkerActive(1)
	defer func() {
		metrics.AddWorkerActive(-1)
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000.0)
		w.processed.Add(1)
	}()

	jctx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	rc, err := w.ingester.Ingest(jctx, j.Request)
	if err != nil {
		w.failed.Add(1)
		kind := errorKind(err)
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", kind)
		metrics.RecordMQTTMessage(kind)
		return fmt.Errorf("ingest %s: %w", j.MessageID, err)
	}

	switch {
	case rc.Duplicate:
		metrics.RecordMQTTMessage("duplicate")
	case rc.Warning != nil:
		metrics.RecordMQTTMessage("stored")
		w.logger.Warn(ctx, "recording stored with calibration warning",
			logger.String("recording_id", rc.Recording.ID),
			logger.String("motion", j.Request.MotionName),
			logger.Error(rc.Warning),
		)
	default:
		metrics.RecordMQTTMessage("stored")
	}
	return nil
}

func errorKind(err error) string {
	switch {
	case ingest.IsClientError(err):
		return "rejected"
	case errors.Is(err, repository.ErrMotionTypeNotFound):
		return "unknown_motion"
	case errors.Is(err, ingest.ErrRecalibrationFailed):
		return "calibration_error"
	default:
		return "ingest_error"
	}
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a new worker pool. A non-positive count uses one worker
// per CPU.
func NewPool(workerCount int, q Queue, ingester Ingester, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		p.workers[i] = NewInMemoryWorker(q, ingester, wopts...)
	}
	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Processed returns the number of jobs handled by all workers.
func (p *Pool) Processed() int64 {
	var n int64
	for _, w := range p.workers {
		n += w.Processed()
	}
	return n
}

// Failed returns the number of failed jobs across all workers.
func (p *Pool) Failed() int64 {
	var n int64
	for _, w := range p.workers {
		n += w.Failed()
	}
	return n
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// Shutdown closes the queue, lets workers drain it and waits for them.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut int
	for _, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut++
		}
	}
	if timedOut > 0 {
		p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("workers", timedOut))
		return fmt.Errorf("%d workers still running: %w", timedOut, shutdownCtx.Err())
	}
	metrics.UpdateWorkerCount(0)
	return nil
}
