package worker

import (
	"errors"

	"github.com/cuongbtq/alumni-core/internal/queue"
)

var (
	// ErrNoHandler is recorded on jobs whose type has no registered handler
	ErrNoHandler = errors.New("no handler registered for job type")

	// ErrInvalidMessage marks broker messages without a usable job id
	ErrInvalidMessage = errors.New("invalid job message")
)

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// shouldRequeue decides whether a broker message goes back on the queue after
// a failed claim. Handler failures never requeue: the job row keeps its own
// attempt count and the poller retries it.
func shouldRequeue(err error) bool {
	if errors.Is(err, queue.ErrJobAlreadyClaimed) {
		return false
	}

	if errors.Is(err, ErrInvalidMessage) {
		return false
	}

	var retryableErr *RetryableError
	return errors.As(err, &retryableErr)
}
