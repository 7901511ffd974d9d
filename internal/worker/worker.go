// Package worker drains the job queue. Jobs reach the pool two ways: broker
// messages naming a job id, and a poll ticker that claims the oldest pending
// job of every registered type.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/alumni-core/internal/queue"
)

// MessageSource is the broker side of the worker. *rabbitmq.Client satisfies it.
type MessageSource interface {
	Qos(prefetchCount int) error
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// Config holds worker configuration
type Config struct {
	Logger    *slog.Logger
	Store     queue.Store
	Processor *Processor
	// Source is optional. Without it the worker relies on polling alone.
	Source        MessageSource
	WorkerID      string
	Concurrency   int
	PrefetchCount int
	PollInterval  time.Duration
	StaleAfter    time.Duration
	// CleanupAfter enables hourly deletion of completed jobs older than it.
	CleanupAfter time.Duration
}

// cleanupInterval is how often completed jobs are pruned.
const cleanupInterval = time.Hour

// task is one unit handed to the pool. A task with a job id came from the
// broker; a task with only a type asks the pool to drain that type.
type task struct {
	jobID    string
	jobType  string
	delivery *amqp.Delivery
}

// Worker represents the background job worker
type Worker struct {
	logger        *slog.Logger
	store         queue.Store
	processor     *Processor
	source        MessageSource
	workerID      string
	concurrency   int
	prefetchCount int
	pollInterval  time.Duration
	staleAfter    time.Duration
	cleanupAfter  time.Duration

	jobsChan chan task
	wg       sync.WaitGroup
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PrefetchCount <= 0 {
		cfg.PrefetchCount = cfg.Concurrency
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	return &Worker{
		logger:        cfg.Logger,
		store:         cfg.Store,
		processor:     cfg.Processor,
		source:        cfg.Source,
		workerID:      cfg.WorkerID,
		concurrency:   cfg.Concurrency,
		prefetchCount: cfg.PrefetchCount,
		pollInterval:  cfg.PollInterval,
		staleAfter:    cfg.StaleAfter,
		cleanupAfter:  cfg.CleanupAfter,
		jobsChan:      make(chan task, cfg.Concurrency),
	}
}

// Start runs the pool and its feeders until ctx is cancelled. Call Stop
// afterwards to wait for in-flight jobs.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Any("job_types", w.processor.Types()),
		slog.Bool("broker", w.source != nil),
	)

	var deliveries <-chan amqp.Delivery
	if w.source != nil {
		var err error
		deliveries, err = w.setupConsumer()
		if err != nil {
			return fmt.Errorf("failed to set up consumer: %w", err)
		}
	}

	w.spawnWorkerPool(ctx)

	if deliveries != nil {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.startMessageDispatcher(ctx, deliveries)
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.startPoller(ctx)
	}()

	if w.staleAfter > 0 {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.startStaleReleaser(ctx)
		}()
	}

	if w.cleanupAfter > 0 {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.startJanitor(ctx, cleanupInterval)
		}()
	}

	<-ctx.Done()
	w.logger.Info("Worker context canceled, stopping...")
	return nil
}

// Stop waits for every goroutine started by Start, or for ctx to expire.
func (w *Worker) Stop(ctx context.Context) error {
	w.logger.Info("Stopping worker...")

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("Worker stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker shutdown: %w", ctx.Err())
	}
}

// startPoller asks the pool to drain every registered type on each tick.
// Ticks are dropped while the pool is busy.
func (w *Worker) startPoller(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	poll := func() {
		for _, jobType := range w.processor.Types() {
			select {
			case w.jobsChan <- task{jobType: jobType}:
			default:
				w.logger.Debug("Worker pool busy, skipping poll",
					slog.String("job_type", jobType),
				)
			}
		}
	}

	poll()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			poll()
		}
	}
}

// startStaleReleaser returns jobs whose worker stopped heartbeating.
func (w *Worker) startStaleReleaser(ctx context.Context) {
	ticker := time.NewTicker(w.staleAfter / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.store.ReleaseStaleJobs(ctx, w.staleAfter)
			if err != nil {
				w.logger.Error("Failed to release stale jobs",
					slog.String("error", err.Error()),
				)
				continue
			}
			if n > 0 {
				w.logger.Warn("Released stale jobs",
					slog.Int64("count", n),
					slog.Duration("stale_after", w.staleAfter),
				)
			}
		}
	}
}

// startJanitor deletes completed jobs past their retention on every tick.
func (w *Worker) startJanitor(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.store.CleanupOldJobs(ctx, w.cleanupAfter)
			if err != nil {
				w.logger.Error("Failed to clean up old jobs",
					slog.String("error", err.Error()),
				)
				continue
			}
			w.logger.Info("Old jobs cleaned up",
				slog.Int64("deleted", n),
				slog.Duration("older_than", w.cleanupAfter),
			)
		}
	}
}
