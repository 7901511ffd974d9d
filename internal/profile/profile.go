// Package profile stores alumni profiles and their registration verification records.
package profile

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

var (
	// ErrProfileNotFound is returned when no profile matches the lookup
	ErrProfileNotFound = errors.New("profile not found")

	// ErrVerificationNotFound is returned when a user has no verification record
	ErrVerificationNotFound = errors.New("verification data not found")

	// ErrRegistrationIDRequired is returned when an import row has no registration id
	ErrRegistrationIDRequired = errors.New("registration id is required")
)

// PaymentStatus is profiles.registration_payment_status.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentWaived  PaymentStatus = "waived"
)

// Settled reports whether no further registration payment is expected.
func (s PaymentStatus) Settled() bool {
	return s == PaymentPaid || s == PaymentWaived
}

// ImportSourceCSV marks profiles created by the CSV importer.
const ImportSourceCSV = "csv_import"

// Profile is one alumni profile row.
type Profile struct {
	ID                string        `db:"id" json:"id"`
	Email             string        `db:"email" json:"email"`
	Phone             string        `db:"phone" json:"phone"`
	TitlePrefix       string        `db:"title_prefix" json:"title_prefix"`
	FirstName         string        `db:"first_name" json:"first_name"`
	MiddleName        string        `db:"middle_name" json:"middle_name"`
	LastName          string        `db:"last_name" json:"last_name"`
	FullName          string        `db:"full_name" json:"full_name"`
	RegistrationID    string        `db:"registration_id" json:"registration_id"`
	OldRegistrationID string        `db:"old_registration_id" json:"old_registration_id"`
	LastClass         *int          `db:"last_class" json:"last_class"`
	YearOfLeaving     *int          `db:"year_of_leaving" json:"year_of_leaving"`
	StartClass        *int          `db:"start_class" json:"start_class"`
	StartYear         *int          `db:"start_year" json:"start_year"`
	BatchYear         *int          `db:"batch_year" json:"batch_year"`
	Profession        string        `db:"profession" json:"profession"`
	Company           string        `db:"company" json:"company"`
	Location          string        `db:"location" json:"location"`
	Bio               string        `db:"bio" json:"bio"`
	LinkedInURL       string        `db:"linkedin_url" json:"linkedin_url"`
	WebsiteURL        string        `db:"website_url" json:"website_url"`
	Role              string        `db:"role" json:"role"`
	IsDeceased        bool          `db:"is_deceased" json:"is_deceased"`
	DeceasedYear      *int          `db:"deceased_year" json:"deceased_year"`
	PaymentStatus     PaymentStatus `db:"registration_payment_status" json:"registration_payment_status"`
	ImportSource      string        `db:"import_source" json:"import_source"`
	ImportedAt        *time.Time    `db:"imported_at" json:"imported_at,omitempty"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updated_at"`
}

// DisplayName prefers the stored full name and falls back to the name parts.
func (p *Profile) DisplayName() string {
	if n := strings.TrimSpace(p.FullName); n != "" {
		return n
	}
	parts := make([]string, 0, 3)
	for _, s := range []string{p.FirstName, p.MiddleName, p.LastName} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// Verification status values.
const (
	VerificationPending  = "pending"
	VerificationApproved = "approved"
	VerificationRejected = "rejected"
)

// PDF generation status values.
const (
	PDFPending    = "pending"
	PDFProcessing = "processing"
	PDFCompleted  = "completed"
	PDFFailed     = "failed"
)

// EvidenceFile is one uploaded document backing a registration.
type EvidenceFile struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}

// IsImage reports whether the file can be embedded as a thumbnail.
func (f EvidenceFile) IsImage() bool {
	return strings.HasPrefix(strings.ToLower(f.Type), "image/")
}

// EvidenceFiles is stored as a JSONB array.
type EvidenceFiles []EvidenceFile

// Value implements driver.Valuer.
func (e EvidenceFiles) Value() (driver.Value, error) {
	if e == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(e)
}

// Scan implements sql.Scanner.
func (e *EvidenceFiles) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*e = EvidenceFiles{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported evidence_files type %T", src)
	}
	return json.Unmarshal(data, e)
}

// Verification is the alumni_verification row for one user.
type Verification struct {
	UserID              string        `db:"user_id" json:"user_id"`
	EvidenceFiles       EvidenceFiles `db:"evidence_files" json:"evidence_files"`
	Reference1          string        `db:"reference_1" json:"reference_1"`
	Reference2          string        `db:"reference_2" json:"reference_2"`
	Reference1Valid     *bool         `db:"reference_1_valid" json:"reference_1_valid"`
	Reference2Valid     *bool         `db:"reference_2_valid" json:"reference_2_valid"`
	VerificationStatus  string        `db:"verification_status" json:"verification_status"`
	PDFURL              string        `db:"pdf_url" json:"pdf_url"`
	PDFGeneratedAt      *time.Time    `db:"pdf_generated_at" json:"pdf_generated_at,omitempty"`
	PDFGenerationStatus string        `db:"pdf_generation_status" json:"pdf_generation_status"`
	NotificationSentAt  *time.Time    `db:"notification_sent_at" json:"notification_sent_at,omitempty"`
	CreatedAt           time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time     `db:"updated_at" json:"updated_at"`
}

// SameSubmission reports whether o carries the same evidence and references.
func (v *Verification) SameSubmission(o *Verification) bool {
	return slices.Equal(v.EvidenceFiles, o.EvidenceFiles) &&
		v.Reference1 == o.Reference1 && v.Reference2 == o.Reference2
}

// HasReferences reports whether at least one reference id was given.
func (v *Verification) HasReferences() bool {
	return v.Reference1 != "" || v.Reference2 != ""
}

// ReferenceCount counts the reference ids present.
func (v *Verification) ReferenceCount() int {
	n := 0
	if v.Reference1 != "" {
		n++
	}
	if v.Reference2 != "" {
		n++
	}
	return n
}

// Method describes how the registration is backed.
func (v *Verification) Method() string {
	switch {
	case len(v.EvidenceFiles) > 0 && v.HasReferences():
		return "Evidence + References"
	case len(v.EvidenceFiles) > 0:
		return "Evidence Only"
	default:
		return "References Only"
	}
}
