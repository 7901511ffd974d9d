package queue

import (
	"context"
	"time"
)

// Store persists jobs. All transitions are single statements, so concurrent
// workers never observe a half-applied change.
type Store interface {
	// AddJob enqueues a pending job with attempts=0 and returns its id.
	AddJob(ctx context.Context, jobType string, payload any) (string, error)
	// Enqueue is AddJob with an idempotency key and a retry cap.
	Enqueue(ctx context.Context, job NewJob) (string, error)

	GetJob(ctx context.Context, id string) (*Job, error)
	// GetNextJob peeks at the oldest runnable job of jobType, or nil.
	GetNextJob(ctx context.Context, jobType string) (*Job, error)
	// ClaimNextJob atomically moves the oldest runnable job to processing, or returns nil.
	ClaimNextJob(ctx context.Context, jobType, workerID string) (*Job, error)
	// ClaimJob moves a specific pending job to processing or fails with ErrJobAlreadyClaimed.
	ClaimJob(ctx context.Context, id, workerID string) (*Job, error)

	MarkJobProcessing(ctx context.Context, id string) error
	MarkJobCompleted(ctx context.Context, id string, result any) error
	// MarkJobFailed records one failed attempt and returns the resulting status.
	MarkJobFailed(ctx context.Context, id, message string) (Status, error)

	Heartbeat(ctx context.Context, id string) error
	// ReleaseStaleJobs counts an attempt against processing jobs idle for longer than olderThan.
	ReleaseStaleJobs(ctx context.Context, olderThan time.Duration) (int64, error)

	ListJobs(ctx context.Context, filter Filter) ([]Job, error)
	GetJobStats(ctx context.Context) (Stats, error)
	// CleanupOldJobs deletes completed jobs processed more than olderThan ago.
	CleanupOldJobs(ctx context.Context, olderThan time.Duration) (int64, error)
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ClampPageSize applies the list defaults.
func ClampPageSize(n int) int {
	switch {
	case n <= 0:
		return defaultPageSize
	case n > maxPageSize:
		return maxPageSize
	}
	return n
}
