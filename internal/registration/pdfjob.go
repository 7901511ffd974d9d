package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/alumni-core/internal/email"
	"github.com/cuongbtq/alumni-core/internal/objectstore"
	"github.com/cuongbtq/alumni-core/internal/pdf"
	"github.com/cuongbtq/alumni-core/internal/profile"
	"github.com/cuongbtq/alumni-core/internal/queue"
)

// DefaultAdminEmail receives notifications when no admin list is configured.
const DefaultAdminEmail = "admin@alumnibghs.org"

var (
	// ErrUserNotFound is a pdf job for a profile that no longer exists
	ErrUserNotFound = errors.New("user not found")

	// ErrNotificationFailed wraps a failed admin mail so the job is retried
	ErrNotificationFailed = errors.New("failed to send admin notification email")
)

// PDFRenderer renders the registration document.
type PDFRenderer interface {
	GenerateRegistrationPDF(ctx context.Context, data pdf.RegistrationData) ([]byte, error)
}

// PDFResult is stored as the job result.
type PDFResult struct {
	PDFURL    string `json:"pdfUrl"`
	EmailSent bool   `json:"emailSent"`
	UserID    string `json:"userId"`
}

// PDFObjectKey is where the registration PDF of a user is stored. Reruns
// overwrite the same object.
func PDFObjectKey(userID string) string {
	return "registration-pdfs/" + userID + ".pdf"
}

// PDFJobHandler renders, stores and mails the registration PDF of one user.
type PDFJobHandler struct {
	profiles    profile.Repository
	renderer    PDFRenderer
	store       objectstore.Store
	sender      email.Sender
	adminEmails []string
	logger      *slog.Logger
	now         func() time.Time
}

// NewPDFJobHandler creates a new PDFJobHandler instance.
func NewPDFJobHandler(profiles profile.Repository, renderer PDFRenderer, store objectstore.Store, sender email.Sender, adminEmails []string, logger *slog.Logger) *PDFJobHandler {
	if len(adminEmails) == 0 {
		adminEmails = []string{DefaultAdminEmail}
	}
	return &PDFJobHandler{
		profiles:    profiles,
		renderer:    renderer,
		store:       store,
		sender:      sender,
		adminEmails: adminEmails,
		logger:      logger,
		now:         time.Now,
	}
}

// Handle processes one pdf_generation job. Any failure leaves the
// verification in the failed pdf state and returns the error to the worker.
func (h *PDFJobHandler) Handle(ctx context.Context, job *queue.Job) (any, error) {
	var payload PDFPayload
	if err := job.DecodePayload(&payload); err != nil {
		return nil, err
	}
	if payload.UserID == "" {
		return nil, fmt.Errorf("%w: userId is required", queue.ErrInvalidPayload)
	}

	res, err := h.generate(ctx, payload.UserID)
	if err != nil {
		h.logger.ErrorContext(ctx, "PDF generation failed",
			slog.String("job_id", job.ID),
			slog.String("user_id", payload.UserID),
			slog.String("error", err.Error()),
		)
		if serr := h.profiles.SetPDFStatus(ctx, payload.UserID, profile.PDFFailed); serr != nil && !errors.Is(serr, profile.ErrVerificationNotFound) {
			h.logger.WarnContext(ctx, "Failed to record pdf failure",
				slog.String("user_id", payload.UserID),
				slog.String("error", serr.Error()),
			)
		}
		return nil, err
	}
	return res, nil
}

func (h *PDFJobHandler) generate(ctx context.Context, userID string) (*PDFResult, error) {
	p, err := h.profiles.GetByID(ctx, userID)
	if errors.Is(err, profile.ErrProfileNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	v, err := h.profiles.GetVerification(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := h.profiles.SetPDFStatus(ctx, userID, profile.PDFProcessing); err != nil {
		return nil, fmt.Errorf("failed to update pdf status: %w", err)
	}

	generatedAt := h.now()
	doc, err := h.renderer.GenerateRegistrationPDF(ctx, registrationData(p, v, generatedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to render pdf: %w", err)
	}

	obj, err := h.store.Upload(ctx, PDFObjectKey(userID), doc, "application/pdf")
	if err != nil {
		return nil, fmt.Errorf("failed to upload pdf: %w", err)
	}

	if err := h.profiles.RecordPDF(ctx, userID, obj.URL, generatedAt); err != nil {
		return nil, fmt.Errorf("failed to record pdf: %w", err)
	}

	sent, err := h.notify(ctx, p, v, doc)
	if err != nil {
		return nil, err
	}

	h.logger.InfoContext(ctx, "Registration PDF generated",
		slog.String("user_id", userID),
		slog.String("pdf_url", obj.URL),
		slog.Bool("email_sent", sent),
	)
	return &PDFResult{PDFURL: obj.URL, EmailSent: sent, UserID: userID}, nil
}

// notify mails the admins once per submitted content. Saving changed evidence
// or references clears the stamp. A rerun after a successful mail reports
// emailSent false.
func (h *PDFJobHandler) notify(ctx context.Context, p *profile.Profile, v *profile.Verification, doc []byte) (bool, error) {
	if v.NotificationSentAt != nil {
		h.logger.InfoContext(ctx, "Admin notification already sent",
			slog.String("user_id", p.ID),
			slog.Time("sent_at", *v.NotificationSentAt),
		)
		return false, nil
	}

	data := email.RegistrationNotification{
		FullName:       p.DisplayName(),
		Email:          p.Email,
		Phone:          p.Phone,
		RegistrationID: p.RegistrationID,
		BatchYear:      email.YearString(p.BatchYear),
		YearOfLeaving:  email.YearString(p.YearOfLeaving),
		Method:         v.Method(),
		EvidenceCount:  len(v.EvidenceFiles),
		ReferenceCount: v.ReferenceCount(),
		PDF:            doc,
		PDFFilename:    "registration-" + p.ID + ".pdf",
	}
	if p.LastClass != nil {
		data.LastClass = *p.LastClass
	}

	msg, err := email.BuildRegistrationNotification(email.ParseAddresses(h.adminEmails), data)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrNotificationFailed, err)
	}
	if err := h.sender.Send(ctx, msg); err != nil {
		return false, fmt.Errorf("%w: %v", ErrNotificationFailed, err)
	}

	if _, err := h.profiles.MarkNotified(ctx, p.ID, h.now()); err != nil {
		h.logger.WarnContext(ctx, "Failed to record admin notification",
			slog.String("user_id", p.ID),
			slog.String("error", err.Error()),
		)
	}
	return true, nil
}

func registrationData(p *profile.Profile, v *profile.Verification, generatedAt time.Time) pdf.RegistrationData {
	data := pdf.RegistrationData{
		UserID:         p.ID,
		RegistrationID: p.RegistrationID,
		FullName:       p.DisplayName(),
		Email:          p.Email,
		Phone:          p.Phone,
		LastClass:      p.LastClass,
		YearOfLeaving:  p.YearOfLeaving,
		StartClass:     p.StartClass,
		StartYear:      p.StartYear,
		Method:         v.Method(),
		SubmittedAt:    v.UpdatedAt,
		GeneratedAt:    generatedAt,
	}
	if v.HasReferences() {
		data.References = []pdf.Reference{
			{ID: v.Reference1, Valid: v.Reference1Valid},
			{ID: v.Reference2, Valid: v.Reference2Valid},
		}
	}
	for _, f := range v.EvidenceFiles {
		data.Evidence = append(data.Evidence, pdf.Evidence{Name: f.Name, URL: f.URL, Type: f.Type, Size: f.Size})
	}
	return data
}
