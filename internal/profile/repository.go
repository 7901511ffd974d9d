package profile

import (
	"context"
	"time"
)

// ExportPageSize is how many profiles the exporter reads per query.
const ExportPageSize = 1000

// Repository is the persistence boundary for profiles and verification records.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Profile, error)
	GetByRegistrationID(ctx context.Context, registrationID string) (*Profile, error)

	// ListPage returns profiles ordered by registration id.
	ListPage(ctx context.Context, offset, limit int) ([]Profile, error)

	// UpsertImported inserts or updates a profile keyed by registration id and
	// stamps it as CSV imported. created is false when an existing row was updated.
	UpsertImported(ctx context.Context, p *Profile) (created bool, err error)

	// ListImported returns CSV imported profiles, newest first. A non-zero day
	// limits the result to profiles imported on that calendar day.
	ListImported(ctx context.Context, day time.Time) ([]Profile, error)

	GetVerification(ctx context.Context, userID string) (*Verification, error)
	SaveVerification(ctx context.Context, v *Verification) error
	SetPDFStatus(ctx context.Context, userID, status string) error
	RecordPDF(ctx context.Context, userID, url string, at time.Time) error

	// MarkNotified sets notification_sent_at once. It reports false when it
	// was already set.
	MarkNotified(ctx context.Context, userID string, at time.Time) (bool, error)
}

// ListAll pages through every profile using ExportPageSize.
func ListAll(ctx context.Context, repo Repository) ([]Profile, error) {
	var all []Profile
	for offset := 0; ; offset += ExportPageSize {
		page, err := repo.ListPage(ctx, offset, ExportPageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < ExportPageSize {
			return all, nil
		}
	}
}

func dayBounds(day time.Time) (time.Time, time.Time) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return start, start.AddDate(0, 0, 1)
}
