package dto

import (
	"encoding/json"
	"time"

	"github.com/cuongbtq/alumni-core/internal/queue"
)

type CreateJobRequest struct {
	IdempotencyKey string          `json:"idempotency_key"`
	JobType        string          `json:"job_type" binding:"notblank"`
	Payload        json.RawMessage `json:"payload"`
	MaxAttempts    int             `json:"max_attempts" binding:"gte=0,lte=10"`
}

type ListJobsRequest struct {
	JobType  string `form:"job_type"`
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type CleanupJobsRequest struct {
	OlderThanDays int `json:"older_than_days" binding:"gte=0"`
}

type ProcessJobRequest struct {
	JobID string `json:"jobId"`
}

type JobDTO struct {
	JobID          string          `json:"job_id"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	JobType        string          `json:"job_type"`
	Payload        json.RawMessage `json:"payload"`
	Status         string          `json:"status"`
	Attempts       int             `json:"attempts"`
	MaxAttempts    int             `json:"max_attempts"`
	Result         json.RawMessage `json:"result,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	WorkerID       string          `json:"worker_id,omitempty"`
	CreatedAt      string          `json:"created_at"`
	UpdatedAt      string          `json:"updated_at"`
	ProcessedAt    string          `json:"processed_at,omitempty"`
}

// NewJobDTO renders a job for the admin API.
func NewJobDTO(job *queue.Job) JobDTO {
	d := JobDTO{
		JobID:          job.ID,
		IdempotencyKey: job.IdempotencyKey,
		JobType:        job.Type,
		Payload:        job.Payload,
		Status:         string(job.Status),
		Attempts:       job.Attempts,
		MaxAttempts:    job.MaxAttempts,
		Result:         job.Result,
		ErrorMessage:   job.ErrorMessage,
		WorkerID:       job.WorkerID,
		CreatedAt:      job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      job.UpdatedAt.Format(time.RFC3339),
	}
	if job.ProcessedAt != nil {
		d.ProcessedAt = job.ProcessedAt.Format(time.RFC3339)
	}
	return d
}
