package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const jobColumns = `id, type, payload, status, attempts, max_attempts, result, error_message,
		idempotency_key, worker_id, created_at, updated_at, processed_at`

// runnable is the predicate shared by GetNextJob and both claim paths.
const runnable = `status = 'pending' AND attempts < max_attempts`

type jobRow struct {
	ID             string         `db:"id"`
	Type           string         `db:"type"`
	Payload        []byte         `db:"payload"`
	Status         string         `db:"status"`
	Attempts       int            `db:"attempts"`
	MaxAttempts    int            `db:"max_attempts"`
	Result         []byte         `db:"result"`
	ErrorMessage   sql.NullString `db:"error_message"`
	IdempotencyKey sql.NullString `db:"idempotency_key"`
	WorkerID       sql.NullString `db:"worker_id"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
	ProcessedAt    sql.NullTime   `db:"processed_at"`
}

func (r *jobRow) toJob() *Job {
	job := &Job{
		ID:             r.ID,
		Type:           r.Type,
		Payload:        r.Payload,
		Status:         Status(r.Status),
		Attempts:       r.Attempts,
		MaxAttempts:    r.MaxAttempts,
		Result:         r.Result,
		ErrorMessage:   r.ErrorMessage.String,
		IdempotencyKey: r.IdempotencyKey.String,
		WorkerID:       r.WorkerID.String,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.ProcessedAt.Valid {
		t := r.ProcessedAt.Time
		job.ProcessedAt = &t
	}
	return job
}

// PostgresStore implements Store on the job_queue table.
type PostgresStore struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewPostgresStore creates a new PostgresStore instance
func NewPostgresStore(db *sqlx.DB, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger, now: time.Now}
}

func (s *PostgresStore) AddJob(ctx context.Context, jobType string, payload any) (string, error) {
	return s.Enqueue(ctx, NewJob{Type: jobType, Payload: payload})
}

func (s *PostgresStore) Enqueue(ctx context.Context, nj NewJob) (string, error) {
	nj, payload, err := nj.normalize()
	if err != nil {
		return "", err
	}

	key := sql.NullString{String: nj.IdempotencyKey, Valid: nj.IdempotencyKey != ""}

	query := `
		INSERT INTO job_queue (id, type, payload, status, attempts, max_attempts, idempotency_key)
		VALUES ($1, $2, $3, 'pending', 0, $4, $5)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id
	`

	var id string
	err = s.db.QueryRowxContext(ctx, query, uuid.NewString(), nj.Type, payload, nj.MaxAttempts, key).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) && key.Valid {
		err = s.db.GetContext(ctx, &id, `SELECT id FROM job_queue WHERE idempotency_key = $1`, key)
		if err == nil {
			s.logger.InfoContext(ctx, "Job already enqueued for idempotency key",
				slog.String("job_id", id),
				slog.String("idempotency_key", key.String),
			)
			return id, nil
		}
	}
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}

	s.logger.InfoContext(ctx, "Job enqueued",
		slog.String("job_id", id),
		slog.String("job_type", nj.Type),
	)
	return id, nil
}

func (s *PostgresStore) getOne(ctx context.Context, query string, args ...any) (*Job, error) {
	var row jobRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		return nil, err
	}
	return row.toJob(), nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*Job, error) {
	job, err := s.getOne(ctx, `SELECT `+jobColumns+` FROM job_queue WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) GetNextJob(ctx context.Context, jobType string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM job_queue
		WHERE type = $1 AND ` + runnable + `
		ORDER BY created_at ASC, id ASC
		LIMIT 1`

	job, err := s.getOne(ctx, query, jobType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get next job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) ClaimNextJob(ctx context.Context, jobType, workerID string) (*Job, error) {
	query := `
		UPDATE job_queue
		SET status = 'processing', worker_id = $2, updated_at = NOW()
		WHERE id = (
			SELECT id FROM job_queue
			WHERE type = $1 AND ` + runnable + `
			ORDER BY created_at ASC, id ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	job, err := s.getOne(ctx, query, jobType, workerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim next job: %w", err)
	}

	s.logger.InfoContext(ctx, "Job claimed",
		slog.String("job_id", job.ID),
		slog.String("job_type", job.Type),
		slog.String("worker_id", workerID),
	)
	return job, nil
}

func (s *PostgresStore) ClaimJob(ctx context.Context, id, workerID string) (*Job, error) {
	query := `
		UPDATE job_queue
		SET status = 'processing', worker_id = $2, updated_at = NOW()
		WHERE id = $1 AND ` + runnable + `
		RETURNING ` + jobColumns

	job, err := s.getOne(ctx, query, id, workerID)
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.WarnContext(ctx, "Failed to claim job - already claimed or not found",
			slog.String("job_id", id),
			slog.String("worker_id", workerID),
		)
		return nil, ErrJobAlreadyClaimed
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	s.logger.InfoContext(ctx, "Job claimed",
		slog.String("job_id", id),
		slog.String("job_type", job.Type),
		slog.String("worker_id", workerID),
	)
	return job, nil
}

func (s *PostgresStore) execOne(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *PostgresStore) MarkJobProcessing(ctx context.Context, id string) error {
	return s.execOne(ctx, "mark job processing",
		`UPDATE job_queue SET status = 'processing', updated_at = NOW() WHERE id = $1`, id)
}

func (s *PostgresStore) MarkJobCompleted(ctx context.Context, id string, result any) error {
	resultJSON, err := encodeResult(result)
	if err != nil {
		return err
	}

	query := `
		UPDATE job_queue
		SET status = 'completed', result = $2, error_message = NULL,
		    processed_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`
	if err := s.execOne(ctx, "mark job completed", query, id, resultJSON); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Job completed", slog.String("job_id", id))
	return nil
}

func (s *PostgresStore) MarkJobFailed(ctx context.Context, id, message string) (Status, error) {
	// SET expressions see the pre-update row, so attempts + 1 is the new count.
	query := `
		UPDATE job_queue
		SET attempts = attempts + 1,
		    status = CASE WHEN attempts + 1 >= max_attempts THEN 'failed' ELSE 'pending' END,
		    error_message = $2,
		    worker_id = NULL,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING status, attempts
	`

	var out struct {
		Status   string `db:"status"`
		Attempts int    `db:"attempts"`
	}
	err := s.db.GetContext(ctx, &out, query, id, message)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrJobNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to mark job failed: %w", err)
	}

	s.logger.WarnContext(ctx, "Job attempt failed",
		slog.String("job_id", id),
		slog.Int("attempts", out.Attempts),
		slog.String("status", out.Status),
		slog.String("error", message),
	)
	return Status(out.Status), nil
}

func (s *PostgresStore) Heartbeat(ctx context.Context, id string) error {
	return s.execOne(ctx, "update job heartbeat",
		`UPDATE job_queue SET updated_at = NOW() WHERE id = $1 AND status = 'processing'`, id)
}

func (s *PostgresStore) ReleaseStaleJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		UPDATE job_queue
		SET attempts = attempts + 1,
		    status = CASE WHEN attempts + 1 >= max_attempts THEN 'failed' ELSE 'pending' END,
		    error_message = 'worker heartbeat lost',
		    worker_id = NULL,
		    updated_at = NOW()
		WHERE status = 'processing' AND updated_at < $1
	`

	res, err := s.db.ExecContext(ctx, query, s.now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to release stale jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		s.logger.WarnContext(ctx, "Released stale jobs", slog.Int64("count", n))
	}
	return n, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter Filter) ([]Job, error) {
	query := `SELECT ` + jobColumns + ` FROM job_queue WHERE 1=1`
	args := []any{}
	argIdx := 1

	if filter.Type != "" {
		query += fmt.Sprintf(" AND type = $%d", argIdx)
		args = append(args, filter.Type)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.ID)
		argIdx += 2
	}

	// one extra row tells the caller whether another page exists
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", argIdx)
	args = append(args, ClampPageSize(filter.PageSize)+1)

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]Job, len(rows))
	for i := range rows {
		jobs[i] = *rows[i].toJob()
	}
	return jobs, nil
}

func (s *PostgresStore) GetJobStats(ctx context.Context) (Stats, error) {
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS count FROM job_queue GROUP BY status`); err != nil {
		return Stats{}, fmt.Errorf("failed to get job stats: %w", err)
	}

	var stats Stats
	for _, r := range rows {
		stats.add(Status(r.Status), r.Count)
	}
	return stats, nil
}

func (s *PostgresStore) CleanupOldJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM job_queue WHERE status = 'completed' AND processed_at < $1`,
		s.now().Add(-olderThan),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	s.logger.InfoContext(ctx, "Cleaned up old jobs", slog.Int64("deleted", n))
	return n, nil
}

var _ Store = (*PostgresStore)(nil)
