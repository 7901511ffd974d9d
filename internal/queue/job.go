// Package queue is the database-backed job queue used for deferred work such
// as registration PDF generation.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// DefaultMaxAttempts caps retries when a job does not set its own limit.
const DefaultMaxAttempts = 3

// TypePDFGeneration renders and mails a registration verification PDF.
const TypePDFGeneration = "pdf_generation"

var (
	// ErrJobNotFound is returned when a job cannot be found in the database
	ErrJobNotFound = errors.New("job not found")

	// ErrJobAlreadyClaimed is returned when a job is no longer pending at claim time
	ErrJobAlreadyClaimed = errors.New("job already claimed or not in pending status")

	// ErrInvalidJobType is returned for an empty job type
	ErrInvalidJobType = errors.New("job type is required")

	// ErrInvalidPayload is returned when a payload cannot be encoded or decoded
	ErrInvalidPayload = errors.New("invalid job payload")
)

// ParseStatus validates s against the known statuses.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown job status %q", s)
}

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is one unit of deferred work.
type Job struct {
	ID             string          `json:"id"`
	Type           string          `json:"type"`
	Payload        json.RawMessage `json:"payload"`
	Status         Status          `json:"status"`
	Attempts       int             `json:"attempts"`
	MaxAttempts    int             `json:"max_attempts"`
	Result         json.RawMessage `json:"result,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	WorkerID       string          `json:"worker_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	ProcessedAt    *time.Time      `json:"processed_at,omitempty"`
}

// DecodePayload unmarshals the opaque payload into v.
func (j *Job) DecodePayload(v any) error {
	if len(j.Payload) == 0 {
		return fmt.Errorf("%w: empty payload", ErrInvalidPayload)
	}
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// NewJob describes a job to enqueue.
type NewJob struct {
	Type    string
	Payload any
	// IdempotencyKey deduplicates enqueues: a second job with the same key
	// resolves to the first job's id.
	IdempotencyKey string
	MaxAttempts    int
}

func (n NewJob) normalize() (NewJob, []byte, error) {
	n.Type = strings.TrimSpace(n.Type)
	if n.Type == "" {
		return n, nil, ErrInvalidJobType
	}
	if n.MaxAttempts <= 0 {
		n.MaxAttempts = DefaultMaxAttempts
	}
	n.IdempotencyKey = strings.TrimSpace(n.IdempotencyKey)

	payload, err := encodePayload(n.Payload)
	if err != nil {
		return n, nil, err
	}
	return n, payload, nil
}

func encodePayload(v any) ([]byte, error) {
	switch p := v.(type) {
	case nil:
		return []byte("{}"), nil
	case json.RawMessage:
		if !json.Valid(p) {
			return nil, fmt.Errorf("%w: not valid JSON", ErrInvalidPayload)
		}
		return p, nil
	}

	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return b, nil
}

func encodeResult(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job result: %w", err)
	}
	return b, nil
}

// nextStatusAfterFailure mirrors the SQL CASE in MarkJobFailed.
func nextStatusAfterFailure(attempts, maxAttempts int) Status {
	if attempts >= maxAttempts {
		return StatusFailed
	}
	return StatusPending
}

// Stats counts jobs per status.
type Stats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}

func (s *Stats) add(status Status, n int) {
	switch status {
	case StatusPending:
		s.Pending += n
	case StatusProcessing:
		s.Processing += n
	case StatusCompleted:
		s.Completed += n
	case StatusFailed:
		s.Failed += n
	}
	s.Total += n
}

// Filter narrows ListJobs. Results are newest first.
type Filter struct {
	Type     string
	Status   Status
	PageSize int
	Cursor   *Cursor
}
