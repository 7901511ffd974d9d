package queue

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepClock advances by one second on every reading so creation order is total.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryStore_AddThenGetNext(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(newStepClock().Now)

	id, err := store.AddJob(ctx, TypePDFGeneration, map[string]string{"userId": "u1"})
	require.NoError(t, err)

	job, err := store.GetNextJob(ctx, TypePDFGeneration)
	require.NoError(t, err)
	require.NotNil(t, job)

	assert.Equal(t, id, job.ID)
	assert.Equal(t, StatusPending, job.Status)
	assert.Equal(t, 0, job.Attempts)
	assert.Equal(t, DefaultMaxAttempts, job.MaxAttempts)

	var payload struct {
		UserID string `json:"userId"`
	}
	require.NoError(t, job.DecodePayload(&payload))
	assert.Equal(t, "u1", payload.UserID)
}

func TestMemoryStore_GetNextJob(t *testing.T) {
	ctx := context.Background()

	t.Run("empty queue returns nil", func(t *testing.T) {
		store := NewMemoryStore(nil)
		job, err := store.GetNextJob(ctx, TypePDFGeneration)
		require.NoError(t, err)
		assert.Nil(t, job)
	})

	t.Run("oldest first and partitioned by type", func(t *testing.T) {
		store := NewMemoryStore(newStepClock().Now)
		first, _ := store.AddJob(ctx, TypePDFGeneration, nil)
		_, _ = store.AddJob(ctx, "email_digest", nil)
		_, _ = store.AddJob(ctx, TypePDFGeneration, nil)

		job, err := store.GetNextJob(ctx, TypePDFGeneration)
		require.NoError(t, err)
		assert.Equal(t, first, job.ID)
	})

	t.Run("skips processing and exhausted jobs", func(t *testing.T) {
		store := NewMemoryStore(newStepClock().Now)
		busy, _ := store.AddJob(ctx, TypePDFGeneration, nil)
		exhausted, _ := store.Enqueue(ctx, NewJob{Type: TypePDFGeneration, MaxAttempts: 1})
		ready, _ := store.AddJob(ctx, TypePDFGeneration, nil)

		require.NoError(t, store.MarkJobProcessing(ctx, busy))
		status, err := store.MarkJobFailed(ctx, exhausted, "boom")
		require.NoError(t, err)
		require.Equal(t, StatusFailed, status)

		job, err := store.GetNextJob(ctx, TypePDFGeneration)
		require.NoError(t, err)
		assert.Equal(t, ready, job.ID)
	})
}

func TestMemoryStore_AddJobValidation(t *testing.T) {
	store := NewMemoryStore(nil)

	_, err := store.AddJob(context.Background(), "  ", nil)
	assert.ErrorIs(t, err, ErrInvalidJobType)

	_, err = store.AddJob(context.Background(), TypePDFGeneration, json.RawMessage(`{"broken"`))
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = store.AddJob(context.Background(), TypePDFGeneration, func() {})
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestMemoryStore_MarkJobFailedThreeTimes(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(newStepClock().Now)
	id, err := store.AddJob(ctx, TypePDFGeneration, map[string]string{"userId": "u1"})
	require.NoError(t, err)

	wantStatus := []Status{StatusPending, StatusPending, StatusFailed}
	prevAttempts := 0
	for i, want := range wantStatus {
		status, err := store.MarkJobFailed(ctx, id, "smtp timeout")
		require.NoError(t, err)
		assert.Equal(t, want, status, "attempt %d", i+1)

		job, err := store.GetJob(ctx, id)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, job.Attempts, prevAttempts)
		prevAttempts = job.Attempts
		if job.Status == StatusFailed {
			assert.GreaterOrEqual(t, job.Attempts, job.MaxAttempts)
		} else {
			assert.Less(t, job.Attempts, job.MaxAttempts)
		}
	}

	job, err := store.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, 3, job.Attempts)
	assert.Equal(t, "smtp timeout", job.ErrorMessage)

	next, err := store.GetNextJob(ctx, TypePDFGeneration)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestMemoryStore_UnknownJob(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)

	_, err := store.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.ErrorIs(t, store.MarkJobProcessing(ctx, "missing"), ErrJobNotFound)
	assert.ErrorIs(t, store.MarkJobCompleted(ctx, "missing", nil), ErrJobNotFound)
	_, err = store.MarkJobFailed(ctx, "missing", "x")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestMemoryStore_Complete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(newStepClock().Now)
	id, _ := store.AddJob(ctx, TypePDFGeneration, nil)

	_, _ = store.MarkJobFailed(ctx, id, "first try failed")
	require.NoError(t, store.MarkJobCompleted(ctx, id, map[string]any{"pdfUrl": "https://cdn/x.pdf", "emailSent": true}))

	job, err := store.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, job.Status)
	assert.Empty(t, job.ErrorMessage)
	assert.NotNil(t, job.ProcessedAt)
	assert.JSONEq(t, `{"pdfUrl":"https://cdn/x.pdf","emailSent":true}`, string(job.Result))
}

func TestMemoryStore_Idempotency(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)

	first, err := store.Enqueue(ctx, NewJob{Type: TypePDFGeneration, IdempotencyKey: "registration-pdf:u1"})
	require.NoError(t, err)
	second, err := store.Enqueue(ctx, NewJob{Type: TypePDFGeneration, IdempotencyKey: "registration-pdf:u1"})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	stats, err := store.GetJobStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
}

func TestMemoryStore_ClaimJob(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	id, _ := store.AddJob(ctx, TypePDFGeneration, nil)

	job, err := store.ClaimJob(ctx, id, "worker-a")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, job.Status)
	assert.Equal(t, "worker-a", job.WorkerID)

	_, err = store.ClaimJob(ctx, id, "worker-b")
	assert.ErrorIs(t, err, ErrJobAlreadyClaimed)

	_, err = store.ClaimJob(ctx, "missing", "worker-b")
	assert.ErrorIs(t, err, ErrJobAlreadyClaimed)
}

func TestMemoryStore_ConcurrentClaimsAreExclusive(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)

	const jobs = 20
	for i := 0; i < jobs; i++ {
		_, err := store.AddJob(ctx, TypePDFGeneration, map[string]int{"n": i})
		require.NoError(t, err)
	}

	var (
		wg      sync.WaitGroup
		claimed sync.Map
		dupes   atomic.Int32
		total   atomic.Int32
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := store.ClaimNextJob(ctx, TypePDFGeneration, "w")
				if err != nil || job == nil {
					return
				}
				if _, loaded := claimed.LoadOrStore(job.ID, true); loaded {
					dupes.Add(1)
				}
				total.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(0), dupes.Load())
	assert.Equal(t, int32(jobs), total.Load())
}

func TestMemoryStore_ReleaseStaleJobs(t *testing.T) {
	ctx := context.Background()
	clock := newStepClock()
	store := NewMemoryStore(clock.Now)

	stale, _ := store.AddJob(ctx, TypePDFGeneration, nil)
	fresh, _ := store.AddJob(ctx, TypePDFGeneration, nil)
	_, err := store.ClaimJob(ctx, stale, "w1")
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	_, err = store.ClaimJob(ctx, fresh, "w2")
	require.NoError(t, err)

	n, err := store.ReleaseStaleJobs(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	job, _ := store.GetJob(ctx, stale)
	assert.Equal(t, StatusPending, job.Status)
	assert.Equal(t, 1, job.Attempts)
	assert.Empty(t, job.WorkerID)

	job, _ = store.GetJob(ctx, fresh)
	assert.Equal(t, StatusProcessing, job.Status)

	require.NoError(t, store.Heartbeat(ctx, fresh))
	assert.ErrorIs(t, store.Heartbeat(ctx, stale), ErrJobNotFound)
}

func TestMemoryStore_StatsAndCleanup(t *testing.T) {
	ctx := context.Background()
	clock := newStepClock()
	store := NewMemoryStore(clock.Now)

	old, _ := store.AddJob(ctx, TypePDFGeneration, nil)
	require.NoError(t, store.MarkJobCompleted(ctx, old, nil))
	failed, _ := store.Enqueue(ctx, NewJob{Type: TypePDFGeneration, MaxAttempts: 1})
	_, _ = store.MarkJobFailed(ctx, failed, "x")

	clock.Advance(31 * 24 * time.Hour)

	recent, _ := store.AddJob(ctx, TypePDFGeneration, nil)
	require.NoError(t, store.MarkJobCompleted(ctx, recent, nil))
	_, _ = store.AddJob(ctx, TypePDFGeneration, nil)

	stats, err := store.GetJobStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Pending: 1, Completed: 2, Failed: 1, Total: 4}, stats)

	deleted, err := store.CleanupOldJobs(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = store.GetJob(ctx, old)
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = store.GetJob(ctx, failed)
	assert.NoError(t, err, "failed jobs are kept for inspection")
}

func TestMemoryStore_ListJobsPagination(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(newStepClock().Now)

	var ids []string
	for i := 0; i < 5; i++ {
		id, _ := store.AddJob(ctx, TypePDFGeneration, nil)
		ids = append(ids, id)
	}

	page, err := store.ListJobs(ctx, Filter{PageSize: 2})
	require.NoError(t, err)
	jobs, next := Page(page, 2)
	require.Len(t, jobs, 2)
	require.NotEmpty(t, next)
	assert.Equal(t, ids[4], jobs[0].ID)
	assert.Equal(t, ids[3], jobs[1].ID)

	cursor, err := DecodeCursor(next)
	require.NoError(t, err)
	page, err = store.ListJobs(ctx, Filter{PageSize: 2, Cursor: cursor})
	require.NoError(t, err)
	jobs, _ = Page(page, 2)
	assert.Equal(t, ids[2], jobs[0].ID)
	assert.Equal(t, ids[1], jobs[1].ID)

	page, err = store.ListJobs(ctx, Filter{Status: StatusCompleted})
	require.NoError(t, err)
	assert.Empty(t, page)
}
