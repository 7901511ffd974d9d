package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/alumni-core/internal/alumnicsv"
	"github.com/cuongbtq/alumni-core/internal/auth"
	"github.com/cuongbtq/alumni-core/internal/email"
	"github.com/cuongbtq/alumni-core/internal/objectstore"
	"github.com/cuongbtq/alumni-core/internal/paymenttoken"
	"github.com/cuongbtq/alumni-core/internal/profile"
	"github.com/cuongbtq/alumni-core/internal/queue"
	"github.com/cuongbtq/alumni-core/internal/registration"
	"github.com/cuongbtq/alumni-core/internal/validation"
	"github.com/cuongbtq/alumni-core/internal/worker"
)

// MsgInternal is the only detail a client sees for unexpected failures.
const MsgInternal = "An unexpected error occurred"

// PrincipalKey is the gin context key holding the authenticated *auth.Principal.
const PrincipalKey = "principal"

// CoverExtractor renders the first page of a PDF as a JPEG.
type CoverExtractor interface {
	ExtractFirstPageAsImage(ctx context.Context, pdf []byte, scale float64) ([]byte, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger *slog.Logger

	Jobs      queue.Store
	Processor *worker.Processor
	Publisher registration.Publisher

	Profiles     profile.Repository
	IDs          *registration.IDFormat
	Registration *registration.Service
	Importer     *alumnicsv.Importer

	Payments   *paymenttoken.Service
	Signatures *paymenttoken.SignatureVerifier
	Mailer     email.Sender

	Storage objectstore.Store
	Covers  CoverExtractor

	Verifier       *auth.Verifier
	CronSecret     string
	MaxUploadBytes int64

	// Ready reports backing service health for /health. Nil means healthy.
	Ready func(ctx context.Context) error

	Now func() time.Time
}

func (d *Dependencies) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// errorStatus maps domain errors to HTTP statuses.
func errorStatus(err error) (int, string) {
	var ve *registration.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Message
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, queue.ErrJobNotFound):
		return http.StatusNotFound, "Job not found"
	case errors.Is(err, queue.ErrJobAlreadyClaimed):
		return http.StatusBadRequest, "Job is not pending"
	case errors.Is(err, queue.ErrInvalidJobType), errors.Is(err, queue.ErrInvalidPayload):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, profile.ErrProfileNotFound):
		return http.StatusNotFound, "User not found"
	case errors.Is(err, profile.ErrVerificationNotFound):
		return http.StatusNotFound, "Verification data not found"
	case errors.Is(err, paymenttoken.ErrConfigNotFound):
		return http.StatusNotFound, "Payment configuration not found"
	case errors.Is(err, alumnicsv.ErrNoRows):
		return http.StatusNotFound, "No alumni data found"
	case errors.Is(err, alumnicsv.ErrEmptyFile):
		return http.StatusBadRequest, "CSV file is empty"
	}
	return http.StatusInternalServerError, MsgInternal
}

// respondError is the single translation point from errors to responses.
// Server errors are logged with their full text and answered generically.
func respondError(c *gin.Context, logger *slog.Logger, op string, err error) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(c.Request.Context(), "Failed to "+op,
			slog.String("error", err.Error()),
		)
	} else {
		logger.WarnContext(c.Request.Context(), "Request rejected",
			slog.String("operation", op),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
	}
	c.JSON(status, gin.H{"error": msg})
}

// badRequest answers 400 with a message safe to show.
func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// bindError answers 400 for a body or query that failed binding.
func bindError(c *gin.Context, logger *slog.Logger, err error) {
	logger.WarnContext(c.Request.Context(), "Invalid request",
		slog.String("path", c.FullPath()),
		slog.String("error", err.Error()),
	)
	badRequest(c, validation.Message(err))
}

// Principal returns the authenticated caller set by the auth middleware.
func Principal(c *gin.Context) *auth.Principal {
	if v, ok := c.Get(PrincipalKey); ok {
		if p, ok := v.(*auth.Principal); ok {
			return p
		}
	}
	return nil
}
