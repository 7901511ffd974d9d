// Package registration accepts alumni verification submissions and produces
// the registration PDF for admin review.
package registration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/alumni-core/internal/profile"
	"github.com/cuongbtq/alumni-core/internal/queue"
)

// ValidationError is a rejected submission. Its message is safe to show.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

var (
	ErrUserIDRequired               = &ValidationError{"User ID is required"}
	ErrEvidenceOrReferencesRequired = &ValidationError{"Either evidence files or references are required for verification"}
	ErrBothReferencesRequired       = &ValidationError{"Both reference IDs are required when using references"}
	ErrInvalidReferences            = &ValidationError{"Both reference IDs must be valid"}
	ErrAlreadyProcessed             = &ValidationError{"Verification has already been processed and cannot be modified"}
)

// Publisher announces enqueued jobs to the worker.
type Publisher interface {
	PublishJSON(ctx context.Context, v any) error
}

// SubmitRequest is one verification submission.
type SubmitRequest struct {
	UserID         string
	EvidenceFiles  []profile.EvidenceFile
	Reference1     string
	Reference2     string
	IdempotencyKey string
}

// SubmitResult describes the saved verification and the queued PDF job.
type SubmitResult struct {
	UserID             string    `json:"user_id"`
	VerificationStatus string    `json:"verification_status"`
	HasEvidence        bool      `json:"has_evidence"`
	HasReferences      bool      `json:"has_references"`
	JobID              string    `json:"job_id"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// JobMessage is published after enqueue so a worker can claim the job at once.
type JobMessage struct {
	JobID string `json:"job_id"`
}

// PDFPayload is the pdf_generation job payload.
type PDFPayload struct {
	UserID string `json:"userId"`
}

// Service handles verification submissions.
type Service struct {
	profiles  profile.Repository
	jobs      queue.Store
	publisher Publisher
	ids       *IDFormat
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a new Service instance. publisher may be nil, in which
// case the worker finds the job by polling.
func NewService(profiles profile.Repository, jobs queue.Store, publisher Publisher, ids *IDFormat, logger *slog.Logger) *Service {
	return &Service{
		profiles:  profiles,
		jobs:      jobs,
		publisher: publisher,
		ids:       ids,
		logger:    logger,
		now:       time.Now,
	}
}

// Submit validates and stores a verification, then queues its PDF.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	s.logger.InfoContext(ctx, "Submit verification called",
		slog.String("user_id", req.UserID),
		slog.Int("evidence_files", len(req.EvidenceFiles)),
	)

	req.UserID = strings.TrimSpace(req.UserID)
	req.Reference1 = strings.ToUpper(strings.TrimSpace(req.Reference1))
	req.Reference2 = strings.ToUpper(strings.TrimSpace(req.Reference2))

	if req.UserID == "" {
		return nil, ErrUserIDRequired
	}
	hasEvidence := len(req.EvidenceFiles) > 0
	hasReferences := req.Reference1 != "" || req.Reference2 != ""
	if !hasEvidence && !hasReferences {
		return nil, ErrEvidenceOrReferencesRequired
	}

	if _, err := s.profiles.GetByID(ctx, req.UserID); err != nil {
		return nil, err
	}

	v := &profile.Verification{
		UserID:              req.UserID,
		EvidenceFiles:       profile.EvidenceFiles(req.EvidenceFiles),
		VerificationStatus:  profile.VerificationPending,
		PDFGenerationStatus: profile.PDFPending,
	}
	if v.EvidenceFiles == nil {
		v.EvidenceFiles = profile.EvidenceFiles{}
	}

	if hasReferences {
		if req.Reference1 == "" || req.Reference2 == "" {
			return nil, ErrBothReferencesRequired
		}
		valid1, valid2, err := s.resolveReferences(ctx, req.UserID, req.Reference1, req.Reference2)
		if err != nil {
			return nil, err
		}
		if !valid1 || !valid2 {
			return nil, ErrInvalidReferences
		}
		v.Reference1, v.Reference2 = req.Reference1, req.Reference2
		v.Reference1Valid, v.Reference2Valid = &valid1, &valid2
	}

	existing, err := s.profiles.GetVerification(ctx, req.UserID)
	switch {
	case errors.Is(err, profile.ErrVerificationNotFound):
	case err != nil:
		return nil, fmt.Errorf("failed to check existing verification: %w", err)
	case existing.VerificationStatus != profile.VerificationPending:
		return nil, ErrAlreadyProcessed
	}

	if err := s.profiles.SaveVerification(ctx, v); err != nil {
		return nil, fmt.Errorf("failed to save verification data: %w", err)
	}

	key := req.IdempotencyKey
	if key == "" {
		key = submissionKey(v)
	}
	jobID, err := s.enqueuePDF(ctx, req.UserID, key)
	if err != nil {
		return nil, fmt.Errorf("failed to queue pdf generation: %w", err)
	}

	s.announce(ctx, jobID)

	s.logger.InfoContext(ctx, "Verification submitted",
		slog.String("user_id", req.UserID),
		slog.String("job_id", jobID),
	)
	return &SubmitResult{
		UserID:             req.UserID,
		VerificationStatus: v.VerificationStatus,
		HasEvidence:        hasEvidence,
		HasReferences:      hasReferences,
		JobID:              jobID,
		UpdatedAt:          s.now().UTC(),
	}, nil
}

// resolveReferences checks that both ids are well formed, distinct and
// belong to other registered alumni.
func (s *Service) resolveReferences(ctx context.Context, userID, ref1, ref2 string) (bool, bool, error) {
	if ref1 == ref2 {
		return false, false, nil
	}
	check := func(ref string) (bool, error) {
		if !s.ids.Valid(ref) {
			return false, nil
		}
		p, err := s.profiles.GetByRegistrationID(ctx, ref)
		if errors.Is(err, profile.ErrProfileNotFound) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to resolve reference %s: %w", ref, err)
		}
		return p.ID != userID, nil
	}

	valid1, err := check(ref1)
	if err != nil {
		return false, false, err
	}
	valid2, err := check(ref2)
	if err != nil {
		return false, false, err
	}
	return valid1, valid2, nil
}

// enqueuePDF reuses the job behind key while it can still run. Once that job
// has finished, the key chains to "<key>:<finished job id>" so a repeated
// submission always leaves a runnable job behind.
func (s *Service) enqueuePDF(ctx context.Context, userID, key string) (string, error) {
	next := key
	for {
		jobID, err := s.jobs.Enqueue(ctx, queue.NewJob{
			Type:           queue.TypePDFGeneration,
			Payload:        PDFPayload{UserID: userID},
			IdempotencyKey: next,
		})
		if err != nil {
			return "", err
		}

		job, err := s.jobs.GetJob(ctx, jobID)
		if err != nil {
			return "", err
		}
		if !job.Status.Terminal() {
			return jobID, nil
		}
		next = key + ":" + jobID
	}
}

// announce publishes the job id. The poller picks the job up when this fails.
func (s *Service) announce(ctx context.Context, jobID string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishJSON(ctx, JobMessage{JobID: jobID}); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish job message, worker will poll",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}

// submissionKey identifies identical resubmissions so they share one job.
func submissionKey(v *profile.Verification) string {
	h := sha256.New()
	for _, f := range v.EvidenceFiles {
		fmt.Fprintf(h, "%s|%s\n", f.Name, f.URL)
	}
	fmt.Fprintf(h, "%s|%s", v.Reference1, v.Reference2)
	return queue.TypePDFGeneration + ":" + v.UserID + ":" + hex.EncodeToString(h.Sum(nil))[:16]
}
