package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cuongbtq/alumni-core/internal/api/dto"
	"github.com/cuongbtq/alumni-core/internal/queue"
	"github.com/cuongbtq/alumni-core/internal/registration"
	"github.com/cuongbtq/alumni-core/internal/worker"
)

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger    *slog.Logger
	jobs      queue.Store
	processor *worker.Processor
	publisher registration.Publisher
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:    deps.Logger,
		jobs:      deps.Jobs,
		processor: deps.Processor,
		publisher: deps.Publisher,
	}
}

// CreateJob handles POST /api/v1/admin/jobs
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, h.logger, err)
		return
	}

	h.logger.InfoContext(c.Request.Context(), "CreateJob called",
		slog.String("job_type", req.JobType),
		slog.String("idempotency_key", req.IdempotencyKey),
	)

	key := req.IdempotencyKey
	if key == "" {
		key = c.GetHeader("X-Idempotency-Key")
	}

	var payload any
	if len(req.Payload) > 0 {
		payload = req.Payload
	}
	id, err := h.jobs.Enqueue(c.Request.Context(), queue.NewJob{
		Type:           req.JobType,
		Payload:        payload,
		IdempotencyKey: key,
		MaxAttempts:    req.MaxAttempts,
	})
	if err != nil {
		respondError(c, h.logger, "create job", err)
		return
	}

	if h.publisher != nil {
		if err := h.publisher.PublishJSON(c.Request.Context(), registration.JobMessage{JobID: id}); err != nil {
			h.logger.WarnContext(c.Request.Context(), "Failed to publish job message, worker will poll",
				slog.String("job_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	job, err := h.jobs.GetJob(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, "load created job", err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewJobDTO(job))
}

// GetJob handles GET /api/v1/admin/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		badRequest(c, "job_id must be a valid UUID")
		return
	}

	job, err := h.jobs.GetJob(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, h.logger, "get job", err)
		return
	}
	c.JSON(http.StatusOK, dto.NewJobDTO(job))
}

// ListJobs handles GET /api/v1/admin/jobs
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindError(c, h.logger, err)
		return
	}

	cursor, err := queue.DecodeCursor(req.Cursor)
	if err != nil {
		badRequest(c, "Invalid cursor")
		return
	}

	filter := queue.Filter{Type: req.JobType, PageSize: queue.ClampPageSize(req.PageSize), Cursor: cursor}
	if req.Status != "" {
		if filter.Status, err = queue.ParseStatus(req.Status); err != nil {
			badRequest(c, "Invalid status")
			return
		}
	}

	jobs, err := h.jobs.ListJobs(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, "list jobs", err)
		return
	}

	jobs, next := queue.Page(jobs, filter.PageSize)
	resp := dto.ListJobsResponse{Jobs: make([]dto.JobDTO, len(jobs)), NextCursor: next}
	for i := range jobs {
		resp.Jobs[i] = dto.NewJobDTO(&jobs[i])
	}
	c.JSON(http.StatusOK, resp)
}

// GetJobStats handles GET /api/v1/admin/jobs/stats
func (h *JobHandler) GetJobStats(c *gin.Context) {
	stats, err := h.jobs.GetJobStats(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "get job stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// CleanupJobs handles POST /api/v1/admin/jobs/cleanup
func (h *JobHandler) CleanupJobs(c *gin.Context) {
	var req dto.CleanupJobsRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, h.logger, err)
			return
		}
	}
	days := req.OlderThanDays
	if days == 0 {
		days = 30
	}

	deleted, err := h.jobs.CleanupOldJobs(c.Request.Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		respondError(c, h.logger, "clean up jobs", err)
		return
	}

	h.logger.InfoContext(c.Request.Context(), "Old jobs cleaned up",
		slog.Int64("deleted", deleted),
		slog.Int("older_than_days", days),
	)
	c.JSON(http.StatusOK, gin.H{"deleted": deleted, "older_than_days": days})
}

// ProcessPDF handles POST /api/v1/admin/process-pdf
func (h *JobHandler) ProcessPDF(c *gin.Context) {
	var req dto.ProcessJobRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.JobID == "" {
		badRequest(c, "Job ID is required")
		return
	}

	job, err := h.jobs.GetJob(c.Request.Context(), req.JobID)
	if err != nil {
		respondError(c, h.logger, "load job", err)
		return
	}
	if job.Status != queue.StatusPending {
		badRequest(c, "Job is not pending")
		return
	}

	out, err := h.processor.ProcessJob(c.Request.Context(), req.JobID)
	if err != nil {
		respondError(c, h.logger, "process job", err)
		return
	}
	h.respondOutcome(c, out)
}

// ProcessNextPDF handles POST /api/v1/admin/process-pdf/next. It answers 204
// when no job is pending.
func (h *JobHandler) ProcessNextPDF(c *gin.Context) {
	out, err := h.processor.ProcessNext(c.Request.Context(), queue.TypePDFGeneration)
	if err != nil {
		respondError(c, h.logger, "process next job", err)
		return
	}
	if out == nil {
		c.Status(http.StatusNoContent)
		return
	}
	h.respondOutcome(c, out)
}

func (h *JobHandler) respondOutcome(c *gin.Context, out *worker.Outcome) {
	if !out.Succeeded() {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":  outcomeMessage(out.Err),
			"jobId":  out.JobID,
			"status": out.Status,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "PDF generated and email sent successfully",
		"jobId":   out.JobID,
		"data":    out.Result,
	})
}

// outcomeMessage keeps well known job failures readable and hides the rest.
func outcomeMessage(err error) string {
	switch {
	case errors.Is(err, registration.ErrNotificationFailed):
		return "Failed to send admin notification email"
	case errors.Is(err, registration.ErrUserNotFound):
		return "User not found"
	}
	if _, msg := errorStatus(err); msg != MsgInternal {
		return msg
	}
	return "PDF processing failed"
}
