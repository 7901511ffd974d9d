package queue

import (
	"bytes"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store with the same transition rules as
// PostgresStore. It backs tests and single-process tooling.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	keys map[string]string
	now  func() time.Time
}

// NewMemoryStore creates an empty store. A nil clock defaults to time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		jobs: make(map[string]*Job),
		keys: make(map[string]string),
		now:  now,
	}
}

func cloneJob(j *Job) *Job {
	c := *j
	c.Payload = bytes.Clone(j.Payload)
	c.Result = bytes.Clone(j.Result)
	if j.ProcessedAt != nil {
		t := *j.ProcessedAt
		c.ProcessedAt = &t
	}
	return &c
}

func (m *MemoryStore) AddJob(ctx context.Context, jobType string, payload any) (string, error) {
	return m.Enqueue(ctx, NewJob{Type: jobType, Payload: payload})
}

func (m *MemoryStore) Enqueue(_ context.Context, nj NewJob) (string, error) {
	nj, payload, err := nj.normalize()
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if nj.IdempotencyKey != "" {
		if id, ok := m.keys[nj.IdempotencyKey]; ok {
			return id, nil
		}
	}

	now := m.now()
	job := &Job{
		ID:             uuid.NewString(),
		Type:           nj.Type,
		Payload:        payload,
		Status:         StatusPending,
		MaxAttempts:    nj.MaxAttempts,
		IdempotencyKey: nj.IdempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.jobs[job.ID] = job
	if nj.IdempotencyKey != "" {
		m.keys[nj.IdempotencyKey] = job.ID
	}
	return job.ID, nil
}

func (m *MemoryStore) GetJob(_ context.Context, id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return cloneJob(job), nil
}

func runnableJob(j *Job) bool {
	return j.Status == StatusPending && j.Attempts < j.MaxAttempts
}

// oldestRunnable must be called with mu held.
func (m *MemoryStore) oldestRunnable(jobType string) *Job {
	var next *Job
	for _, j := range m.jobs {
		if j.Type != jobType || !runnableJob(j) {
			continue
		}
		if next == nil || j.CreatedAt.Before(next.CreatedAt) ||
			(j.CreatedAt.Equal(next.CreatedAt) && j.ID < next.ID) {
			next = j
		}
	}
	return next
}

func (m *MemoryStore) GetNextJob(_ context.Context, jobType string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if j := m.oldestRunnable(jobType); j != nil {
		return cloneJob(j), nil
	}
	return nil, nil
}

func (m *MemoryStore) claim(j *Job, workerID string) *Job {
	j.Status = StatusProcessing
	j.WorkerID = workerID
	j.UpdatedAt = m.now()
	return cloneJob(j)
}

func (m *MemoryStore) ClaimNextJob(_ context.Context, jobType, workerID string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j := m.oldestRunnable(jobType)
	if j == nil {
		return nil, nil
	}
	return m.claim(j, workerID), nil
}

func (m *MemoryStore) ClaimJob(_ context.Context, id, workerID string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok || !runnableJob(j) {
		return nil, ErrJobAlreadyClaimed
	}
	return m.claim(j, workerID), nil
}

func (m *MemoryStore) update(id string, fn func(j *Job)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	fn(j)
	j.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) MarkJobProcessing(_ context.Context, id string) error {
	return m.update(id, func(j *Job) { j.Status = StatusProcessing })
}

func (m *MemoryStore) MarkJobCompleted(_ context.Context, id string, result any) error {
	resultJSON, err := encodeResult(result)
	if err != nil {
		return err
	}
	return m.update(id, func(j *Job) {
		now := m.now()
		j.Status = StatusCompleted
		j.Result = resultJSON
		j.ErrorMessage = ""
		j.ProcessedAt = &now
	})
}

func (m *MemoryStore) MarkJobFailed(_ context.Context, id, message string) (Status, error) {
	var status Status
	err := m.update(id, func(j *Job) {
		j.Attempts++
		j.Status = nextStatusAfterFailure(j.Attempts, j.MaxAttempts)
		j.ErrorMessage = message
		j.WorkerID = ""
		status = j.Status
	})
	return status, err
}

func (m *MemoryStore) Heartbeat(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok || j.Status != StatusProcessing {
		return ErrJobNotFound
	}
	j.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) ReleaseStaleJobs(_ context.Context, olderThan time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-olderThan)
	var n int64
	for _, j := range m.jobs {
		if j.Status != StatusProcessing || !j.UpdatedAt.Before(cutoff) {
			continue
		}
		j.Attempts++
		j.Status = nextStatusAfterFailure(j.Attempts, j.MaxAttempts)
		j.ErrorMessage = "worker heartbeat lost"
		j.WorkerID = ""
		j.UpdatedAt = now
		n++
	}
	return n, nil
}

func (m *MemoryStore) ListJobs(_ context.Context, filter Filter) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Job
	for _, j := range m.jobs {
		if filter.Type != "" && j.Type != filter.Type {
			continue
		}
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		if c := filter.Cursor; c != nil {
			if j.CreatedAt.After(c.CreatedAt) || (j.CreatedAt.Equal(c.CreatedAt) && j.ID >= c.ID) {
				continue
			}
		}
		out = append(out, *cloneJob(j))
	}

	slices.SortFunc(out, func(a, b Job) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		}
		return 0
	})

	if limit := ClampPageSize(filter.PageSize) + 1; len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) GetJobStats(_ context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stats Stats
	for _, j := range m.jobs {
		stats.add(j.Status, 1)
	}
	return stats, nil
}

func (m *MemoryStore) CleanupOldJobs(_ context.Context, olderThan time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-olderThan)
	var n int64
	for id, j := range m.jobs {
		if j.Status == StatusCompleted && j.ProcessedAt != nil && j.ProcessedAt.Before(cutoff) {
			delete(m.jobs, id)
			if j.IdempotencyKey != "" {
				delete(m.keys, j.IdempotencyKey)
			}
			n++
		}
	}
	return n, nil
}

var _ Store = (*MemoryStore)(nil)
