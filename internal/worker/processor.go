package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/cuongbtq/alumni-core/internal/queue"
)

// Handler runs one claimed job and returns the result stored on it.
type Handler interface {
	Handle(ctx context.Context, job *queue.Job) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job *queue.Job) (any, error)

func (f HandlerFunc) Handle(ctx context.Context, job *queue.Job) (any, error) {
	return f(ctx, job)
}

// Outcome is what happened to one processed job.
type Outcome struct {
	JobID  string
	Type   string
	Status queue.Status
	Result any
	Err    error
}

// Succeeded reports whether the handler returned without error.
func (o *Outcome) Succeeded() bool {
	return o.Err == nil
}

// ProcessorConfig holds processor configuration
type ProcessorConfig struct {
	Store             queue.Store
	WorkerID          string
	JobTimeout        time.Duration
	HeartbeatInterval time.Duration
	Logger            *slog.Logger
}

// Processor claims jobs and runs them through the handler registered for
// their type. The worker pool, the admin route and the CLI share it.
type Processor struct {
	store             queue.Store
	workerID          string
	jobTimeout        time.Duration
	heartbeatInterval time.Duration
	handlers          map[string]Handler
	logger            *slog.Logger
}

// NewProcessor creates a new Processor instance
func NewProcessor(cfg ProcessorConfig) *Processor {
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	return &Processor{
		store:             cfg.Store,
		workerID:          cfg.WorkerID,
		jobTimeout:        cfg.JobTimeout,
		heartbeatInterval: cfg.HeartbeatInterval,
		handlers:          make(map[string]Handler),
		logger:            cfg.Logger,
	}
}

// Register binds a handler to a job type. Call it before processing starts.
func (p *Processor) Register(jobType string, h Handler) {
	p.handlers[jobType] = h
}

// Types lists the registered job types in a stable order.
func (p *Processor) Types() []string {
	types := make([]string, 0, len(p.handlers))
	for t := range p.handlers {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// ProcessNext claims and runs the oldest runnable job of jobType. It returns
// nil when nothing is pending.
func (p *Processor) ProcessNext(ctx context.Context, jobType string) (*Outcome, error) {
	job, err := p.store.ClaimNextJob(ctx, jobType, p.workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim next job: %w", err)
	}
	if job == nil {
		return nil, nil
	}
	return p.run(ctx, job), nil
}

// ProcessJob claims and runs a specific job. A job that is no longer pending
// yields queue.ErrJobAlreadyClaimed.
func (p *Processor) ProcessJob(ctx context.Context, jobID string) (*Outcome, error) {
	job, err := p.store.ClaimJob(ctx, jobID, p.workerID)
	if err != nil {
		if errors.Is(err, queue.ErrJobAlreadyClaimed) {
			p.logger.WarnContext(ctx, "Job already claimed, skipping",
				slog.String("job_id", jobID),
			)
			return nil, err
		}
		return nil, NewRetryableError(fmt.Errorf("failed to claim job: %w", err))
	}
	return p.run(ctx, job), nil
}

// run executes a claimed job with a timeout and heartbeat, then records the
// outcome. State is recorded even when ctx is cancelled mid-run.
func (p *Processor) run(ctx context.Context, job *queue.Job) *Outcome {
	p.logger.InfoContext(ctx, "Processing job",
		slog.String("job_id", job.ID),
		slog.String("job_type", job.Type),
		slog.Int("attempt", job.Attempts+1),
		slog.String("worker_id", p.workerID),
	)

	out := &Outcome{JobID: job.ID, Type: job.Type}
	recordCtx := context.WithoutCancel(ctx)

	jobCtx, cancel := context.WithTimeout(ctx, p.jobTimeout)
	heartbeatDone := make(chan struct{})
	go p.sendJobHeartbeat(jobCtx, job.ID, heartbeatDone)

	out.Result, out.Err = p.execute(jobCtx, job)
	close(heartbeatDone)
	cancel()

	if out.Err != nil {
		status, err := p.store.MarkJobFailed(recordCtx, job.ID, out.Err.Error())
		if err != nil {
			p.logger.ErrorContext(ctx, "Failed to update job status to failed",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
		}
		out.Status = status
		p.logger.ErrorContext(ctx, "Job execution failed",
			slog.String("job_id", job.ID),
			slog.String("job_type", job.Type),
			slog.String("status", string(status)),
			slog.String("error", out.Err.Error()),
		)
		return out
	}

	out.Status = queue.StatusCompleted
	if err := p.store.MarkJobCompleted(recordCtx, job.ID, out.Result); err != nil {
		p.logger.ErrorContext(ctx, "Failed to update job status to completed",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
	p.logger.InfoContext(ctx, "Job completed successfully",
		slog.String("job_id", job.ID),
		slog.String("job_type", job.Type),
	)
	return out
}

func (p *Processor) execute(ctx context.Context, job *queue.Job) (result any, err error) {
	h, ok := p.handlers[job.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, job.Type)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panicked: %v", r)
		}
	}()

	result, err = h.Handle(ctx, job)
	if err != nil && ctx.Err() != nil {
		err = fmt.Errorf("job execution canceled: %w: %w", ctx.Err(), err)
	}
	return result, err
}

// sendJobHeartbeat periodically refreshes the job so it is not released as stale
func (p *Processor) sendJobHeartbeat(ctx context.Context, jobID string, done <-chan struct{}) {
	ticker := time.NewTicker(p.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.store.Heartbeat(ctx, jobID); err != nil {
				p.logger.WarnContext(ctx, "Failed to update job heartbeat",
					slog.String("job_id", jobID),
					slog.String("error", err.Error()),
				)
			} else {
				p.logger.DebugContext(ctx, "Job heartbeat updated",
					slog.String("job_id", jobID),
				)
			}
		}
	}
}
