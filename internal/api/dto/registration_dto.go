package dto

import "github.com/cuongbtq/alumni-core/internal/profile"

type SubmitVerificationRequest struct {
	UserID        string                 `json:"userId"`
	EvidenceFiles []profile.EvidenceFile `json:"evidenceFiles"`
	Reference1    string                 `json:"reference1"`
	Reference2    string                 `json:"reference2"`
}

type UploadedFile struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Key  string `json:"key"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}

type EvidenceUploadResponse struct {
	Files      []UploadedFile `json:"files"`
	TotalSize  int64          `json:"totalSize"`
	TotalFiles int            `json:"totalFiles"`
}

type SouvenirUploadResponse struct {
	Year          int    `json:"year"`
	Title         string `json:"title,omitempty"`
	PDFURL        string `json:"pdf_url"`
	CoverImageURL string `json:"cover_image_url,omitempty"`
	FileSize      int64  `json:"file_size"`
}

type ImportedUser struct {
	ID             string `json:"id"`
	RegistrationID string `json:"registration_id"`
	FullName       string `json:"full_name"`
	Email          string `json:"email"`
	ImportedAt     string `json:"imported_at,omitempty"`
}

type PresignEvidenceRequest struct {
	UserID   string `json:"userId"`
	FileName string `json:"fileName" binding:"required"`
}

type PresignEvidenceResponse struct {
	UploadURL string `json:"uploadUrl"`
	PublicURL string `json:"publicUrl"`
	Key       string `json:"key"`
	ExpiresIn int    `json:"expiresIn"`
}
