package handler

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/alumni-core/internal/alumnicsv"
	"github.com/cuongbtq/alumni-core/internal/api/dto"
	"github.com/cuongbtq/alumni-core/internal/objectstore"
	"github.com/cuongbtq/alumni-core/internal/profile"
)

const (
	// MaxSouvenirBytes caps a souvenir book upload.
	MaxSouvenirBytes = 100 << 20

	souvenirCoverScale = 2
)

// AdminHandler handles media uploads and alumni data transfer
type AdminHandler struct {
	logger   *slog.Logger
	profiles profile.Repository
	importer *alumnicsv.Importer
	storage  objectstore.Store
	covers   CoverExtractor
	deps     *Dependencies
}

// NewAdminHandler creates a new AdminHandler instance
func NewAdminHandler(deps *Dependencies) *AdminHandler {
	return &AdminHandler{
		logger:   deps.Logger,
		profiles: deps.Profiles,
		importer: deps.Importer,
		storage:  deps.Storage,
		covers:   deps.Covers,
		deps:     deps,
	}
}

// UploadSouvenir handles POST /api/v1/admin/souvenirs
func (h *AdminHandler) UploadSouvenir(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxSouvenirBytes+1<<20)

	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "No file provided")
		return
	}

	yearStr := strings.TrimSpace(c.PostForm("year"))
	if yearStr == "" {
		badRequest(c, "Year is required")
		return
	}
	year, err := strconv.Atoi(yearStr)
	if err != nil || year < 1900 || year > 2100 {
		badRequest(c, "Invalid year. Must be between 1900 and 2100")
		return
	}
	if fh.Header.Get("Content-Type") != "application/pdf" {
		badRequest(c, "Only PDF files are allowed")
		return
	}
	if fh.Size > MaxSouvenirBytes {
		badRequest(c, "File size must be less than 100MB")
		return
	}

	ctx := c.Request.Context()
	h.logger.InfoContext(ctx, "UploadSouvenir called",
		slog.Int("year", year),
		slog.String("file_name", fh.Filename),
		slog.Int64("size", fh.Size),
	)

	data, err := readFormFile(fh)
	if err != nil {
		respondError(c, h.logger, "read souvenir upload", err)
		return
	}

	folder := path.Join("souvenirs", strconv.Itoa(year))
	obj, err := h.storage.Upload(ctx, objectstore.NewKey(folder, fh.Filename), data, "application/pdf")
	if err != nil {
		respondError(c, h.logger, "upload souvenir", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Souvenir book uploaded successfully",
		"data": dto.SouvenirUploadResponse{
			Year:          year,
			Title:         strings.TrimSpace(c.PostForm("title")),
			PDFURL:        obj.URL,
			CoverImageURL: h.uploadCover(c, folder, data),
			FileSize:      obj.Size,
		},
	})
}

// uploadCover stores the first page as the book cover. The book is usable
// without one, so failures only log.
func (h *AdminHandler) uploadCover(c *gin.Context, folder string, pdf []byte) string {
	if h.covers == nil {
		return ""
	}
	ctx := c.Request.Context()

	img, err := h.covers.ExtractFirstPageAsImage(ctx, pdf, souvenirCoverScale)
	if err != nil {
		h.logger.WarnContext(ctx, "Failed to extract cover image",
			slog.String("folder", folder),
			slog.String("error", err.Error()),
		)
		return ""
	}

	obj, err := h.storage.Upload(ctx, path.Join(folder, "cover.jpg"), img, "image/jpeg")
	if err != nil {
		h.logger.WarnContext(ctx, "Failed to upload cover image",
			slog.String("folder", folder),
			slog.String("error", err.Error()),
		)
		return ""
	}
	return obj.URL
}

// ExportAlumni handles GET /api/v1/admin/alumni-export
func (h *AdminHandler) ExportAlumni(c *gin.Context) {
	ctx := c.Request.Context()

	var buf bytes.Buffer
	n, err := alumnicsv.Export(ctx, h.profiles, &buf)
	if err != nil {
		respondError(c, h.logger, "export alumni", err)
		return
	}

	h.logger.InfoContext(ctx, "Alumni exported", slog.Int("rows", n))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, alumnicsv.FileName(h.deps.now())))
	c.Data(http.StatusOK, alumnicsv.ContentType, buf.Bytes())
}

// ImportAlumni handles POST /api/v1/admin/alumni-imports
func (h *AdminHandler) ImportAlumni(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "No file provided")
		return
	}

	f, err := fh.Open()
	if err != nil {
		respondError(c, h.logger, "open import file", err)
		return
	}
	defer f.Close()

	res, err := h.importer.Import(c.Request.Context(), f)
	if err != nil {
		respondError(c, h.logger, "import alumni", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("Imported %d of %d row(s)", res.Created+res.Updated, res.Total),
		"data":    res,
	})
}

// ListImports handles GET /api/v1/admin/alumni-imports
func (h *AdminHandler) ListImports(c *gin.Context) {
	var day time.Time
	if s := strings.TrimSpace(c.Query("dateFilter")); s != "" {
		var err error
		if day, err = time.Parse(time.DateOnly, s); err != nil {
			badRequest(c, "Invalid dateFilter. Use YYYY-MM-DD")
			return
		}
	}

	profiles, err := h.profiles.ListImported(c.Request.Context(), day)
	if err != nil {
		respondError(c, h.logger, "list imported users", err)
		return
	}

	users := make([]dto.ImportedUser, 0, len(profiles))
	for i := range profiles {
		p := &profiles[i]
		u := dto.ImportedUser{
			ID:             p.ID,
			RegistrationID: p.RegistrationID,
			FullName:       p.DisplayName(),
			Email:          p.Email,
		}
		if p.ImportedAt != nil {
			u.ImportedAt = p.ImportedAt.UTC().Format(time.RFC3339)
		}
		users = append(users, u)
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}
