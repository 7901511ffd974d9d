package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// setupConsumer sets up RabbitMQ consumer with QoS and returns delivery channel
func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	if err := w.source.Qos(w.prefetchCount); err != nil {
		return nil, err
	}

	w.logger.Info("RabbitMQ QoS configured",
		slog.Int("prefetch_count", w.prefetchCount),
	)

	deliveries, err := w.source.Consume(w.workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}
	return deliveries, nil
}

// parseJobMessage extracts the job id from a message body.
func parseJobMessage(body []byte) (string, error) {
	var msg struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(body, &msg); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if _, err := uuid.Parse(msg.JobID); err != nil {
		return "", fmt.Errorf("%w: job_id %q is not a uuid", ErrInvalidMessage, msg.JobID)
	}
	return msg.JobID, nil
}

// startMessageDispatcher listens to RabbitMQ deliveries and dispatches jobs to worker pool
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) {
	w.logger.Info("Message dispatcher started",
		slog.String("worker_id", w.workerID),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed, continuing with polling only")
				return
			}

			jobID, err := parseJobMessage(delivery.Body)
			if err != nil {
				w.logger.Error("Dropping malformed job message",
					slog.String("error", err.Error()),
					slog.String("body", string(delivery.Body)),
				)
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					w.logger.Error("Failed to NACK malformed message",
						slog.String("error", nackErr.Error()),
					)
				}
				continue
			}

			select {
			case w.jobsChan <- task{jobID: jobID, delivery: &delivery}:
				w.logger.Debug("Job dispatched to worker pool",
					slog.String("job_id", jobID),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-ctx.Done():
				w.logger.Info("Message dispatcher stopped while dispatching job")
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					w.logger.Error("Failed to NACK message on shutdown",
						slog.String("error", nackErr.Error()),
					)
				}
				return
			}
		}
	}
}
