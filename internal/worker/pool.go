package worker

import (
	"context"
	"fmt"
	"log/slog"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Debug("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case t := <-w.jobsChan:
			if t.jobID != "" {
				w.handleMessage(ctx, workerName, t)
			} else {
				w.drain(ctx, workerName, t.jobType)
			}
		}
	}
}

// handleMessage processes the job named by a broker message and settles the
// delivery. The message is acked once the job outcome is recorded, whatever it is.
func (w *Worker) handleMessage(ctx context.Context, workerName string, t task) {
	w.logger.Info("Worker received job",
		slog.String("worker_name", workerName),
		slog.String("job_id", t.jobID),
	)

	out, err := w.processor.ProcessJob(ctx, t.jobID)
	if t.delivery == nil {
		return
	}

	if err != nil {
		requeue := shouldRequeue(err)
		if nackErr := t.delivery.Nack(false, requeue); nackErr != nil {
			w.logger.Error("Failed to NACK message",
				slog.String("worker_name", workerName),
				slog.String("job_id", t.jobID),
				slog.String("error", nackErr.Error()),
			)
			return
		}
		w.logger.Info("Message NACKed",
			slog.String("worker_name", workerName),
			slog.String("job_id", t.jobID),
			slog.Bool("requeue", requeue),
		)
		return
	}

	if ackErr := t.delivery.Ack(false); ackErr != nil {
		w.logger.Error("Failed to ACK message",
			slog.String("worker_name", workerName),
			slog.String("job_id", t.jobID),
			slog.String("error", ackErr.Error()),
		)
		return
	}
	w.logger.Debug("Message ACKed",
		slog.String("worker_name", workerName),
		slog.String("job_id", t.jobID),
		slog.String("status", string(out.Status)),
	)
}

// drain processes pending jobs of jobType until none is left.
func (w *Worker) drain(ctx context.Context, workerName, jobType string) {
	for ctx.Err() == nil {
		out, err := w.processor.ProcessNext(ctx, jobType)
		if err != nil {
			w.logger.Error("Failed to poll for jobs",
				slog.String("worker_name", workerName),
				slog.String("job_type", jobType),
				slog.String("error", err.Error()),
			)
			return
		}
		if out == nil {
			return
		}
	}
}
