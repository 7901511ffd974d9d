package handler

import (
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/alumni-core/internal/api/dto"
	"github.com/cuongbtq/alumni-core/internal/objectstore"
	"github.com/cuongbtq/alumni-core/internal/rbac"
	"github.com/cuongbtq/alumni-core/internal/registration"
)

// MaxEvidenceFiles caps one evidence upload.
const MaxEvidenceFiles = 5

// VerificationHandler handles verification submissions and evidence uploads
type VerificationHandler struct {
	logger       *slog.Logger
	registration *registration.Service
	storage      objectstore.Store
	maxUpload    int64
}

// NewVerificationHandler creates a new VerificationHandler instance
func NewVerificationHandler(deps *Dependencies) *VerificationHandler {
	return &VerificationHandler{
		logger:       deps.Logger,
		registration: deps.Registration,
		storage:      deps.Storage,
		maxUpload:    deps.MaxUploadBytes,
	}
}

// subject picks the user a request acts on. Callers may name another user
// only when they manage profiles.
func subject(c *gin.Context, requested string) (string, bool) {
	p := Principal(c)
	requested = strings.TrimSpace(requested)
	if p == nil {
		return requested, true
	}
	if requested == "" || requested == p.UserID {
		return p.UserID, true
	}
	return requested, p.Can(rbac.PermManageUserProfiles)
}

func forbidden(c *gin.Context) {
	c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
}

// Submit handles POST /api/v1/verification/submit
func (h *VerificationHandler) Submit(c *gin.Context) {
	var req dto.SubmitVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, h.logger, err)
		return
	}

	userID, ok := subject(c, req.UserID)
	if !ok {
		forbidden(c)
		return
	}

	res, err := h.registration.Submit(c.Request.Context(), registration.SubmitRequest{
		UserID:         userID,
		EvidenceFiles:  req.EvidenceFiles,
		Reference1:     req.Reference1,
		Reference2:     req.Reference2,
		IdempotencyKey: c.GetHeader("X-Idempotency-Key"),
	})
	if err != nil {
		respondError(c, h.logger, "submit verification", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Verification data submitted successfully",
		"data":    res,
	})
}

// UploadEvidence handles POST /api/v1/uploads/evidence
func (h *VerificationHandler) UploadEvidence(c *gin.Context) {
	if h.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	}
	form, err := c.MultipartForm()
	if err != nil {
		h.logger.WarnContext(c.Request.Context(), "Invalid evidence upload",
			slog.String("error", err.Error()),
		)
		badRequest(c, "No files provided")
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		badRequest(c, "No files provided")
		return
	}

	var requested string
	if v := form.Value["userId"]; len(v) > 0 {
		requested = v[0]
	}
	userID, ok := subject(c, requested)
	if !ok {
		forbidden(c)
		return
	}
	if userID == "" {
		badRequest(c, "User ID is required")
		return
	}
	if len(files) > MaxEvidenceFiles {
		badRequest(c, fmt.Sprintf("Maximum %d files allowed", MaxEvidenceFiles))
		return
	}

	h.logger.InfoContext(c.Request.Context(), "UploadEvidence called",
		slog.String("user_id", userID),
		slog.Int("files", len(files)),
	)

	resp := dto.EvidenceUploadResponse{Files: make([]dto.UploadedFile, 0, len(files))}
	for _, fh := range files {
		up, err := h.uploadFile(c, path.Join("evidence", userID), fh)
		if err != nil {
			h.rollback(c, resp.Files)
			respondError(c, h.logger, "upload evidence", err)
			return
		}
		resp.Files = append(resp.Files, *up)
		resp.TotalSize += up.Size
	}
	resp.TotalFiles = len(resp.Files)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("Successfully uploaded %d file(s)", resp.TotalFiles),
		"data":    resp,
	})
}

// PresignEvidence handles POST /api/v1/uploads/evidence/presign
func (h *VerificationHandler) PresignEvidence(c *gin.Context) {
	var req dto.PresignEvidenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, h.logger, err)
		return
	}

	userID, ok := subject(c, req.UserID)
	if !ok {
		forbidden(c)
		return
	}
	if userID == "" {
		badRequest(c, "User ID is required")
		return
	}

	key := objectstore.NewKey(path.Join("evidence", userID), req.FileName)
	uploadURL, err := h.storage.PresignedUploadURL(c.Request.Context(), key, objectstore.DefaultPresignExpiry)
	if err != nil {
		respondError(c, h.logger, "presign evidence upload", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": dto.PresignEvidenceResponse{
			UploadURL: uploadURL,
			PublicURL: h.storage.PublicURL(key),
			Key:       key,
			ExpiresIn: int(objectstore.DefaultPresignExpiry.Seconds()),
		},
	})
}

func (h *VerificationHandler) uploadFile(c *gin.Context, folder string, fh *multipart.FileHeader) (*dto.UploadedFile, error) {
	data, err := readFormFile(fh)
	if err != nil {
		return nil, err
	}
	contentType := formFileType(fh, data)

	obj, err := h.storage.Upload(c.Request.Context(), objectstore.NewKey(folder, fh.Filename), data, contentType)
	if err != nil {
		return nil, err
	}
	return &dto.UploadedFile{
		Name: fh.Filename,
		URL:  obj.URL,
		Key:  obj.Key,
		Size: obj.Size,
		Type: contentType,
	}, nil
}

// rollback removes files already stored by a failed multi-file upload.
func (h *VerificationHandler) rollback(c *gin.Context, files []dto.UploadedFile) {
	for _, f := range files {
		if err := h.storage.Delete(c.Request.Context(), f.Key); err != nil {
			h.logger.WarnContext(c.Request.Context(), "Failed to remove partial upload",
				slog.String("key", f.Key),
				slog.String("error", err.Error()),
			)
		}
	}
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload %q: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload %q: %w", fh.Filename, err)
	}
	return data, nil
}

// formFileType trusts the part header and sniffs when it is missing.
func formFileType(fh *multipart.FileHeader, data []byte) string {
	if ct := fh.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	return http.DetectContentType(data)
}
