package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

const profileColumns = `id, email, phone, title_prefix, first_name, middle_name, last_name, full_name,
	COALESCE(registration_id, '') AS registration_id, old_registration_id,
	last_class, year_of_leaving, start_class, start_year, batch_year,
	profession, company, location, bio, linkedin_url, website_url, role,
	is_deceased, deceased_year, registration_payment_status, import_source, imported_at,
	created_at, updated_at`

const verificationColumns = `user_id, evidence_files, reference_1, reference_2,
	reference_1_valid, reference_2_valid, verification_status, pdf_url, pdf_generated_at,
	pdf_generation_status, notification_sent_at, created_at, updated_at`

// PostgresRepository implements Repository with sqlx.
type PostgresRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresRepository creates a new PostgresRepository instance
func NewPostgresRepository(db *sqlx.DB, logger *slog.Logger) *PostgresRepository {
	return &PostgresRepository{db: db, logger: logger}
}

func (r *PostgresRepository) getProfile(ctx context.Context, where string, arg any) (*Profile, error) {
	var p Profile
	err := r.db.GetContext(ctx, &p, `SELECT `+profileColumns+` FROM profiles WHERE `+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &p, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Profile, error) {
	return r.getProfile(ctx, `id = $1`, id)
}

func (r *PostgresRepository) GetByRegistrationID(ctx context.Context, registrationID string) (*Profile, error) {
	return r.getProfile(ctx, `registration_id = $1`, strings.ToUpper(strings.TrimSpace(registrationID)))
}

func (r *PostgresRepository) ListPage(ctx context.Context, offset, limit int) ([]Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles
		ORDER BY registration_id ASC NULLS LAST, id ASC
		LIMIT $1 OFFSET $2`

	var profiles []Profile
	if err := r.db.SelectContext(ctx, &profiles, query, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return profiles, nil
}

func (r *PostgresRepository) UpsertImported(ctx context.Context, p *Profile) (bool, error) {
	if p.RegistrationID == "" {
		return false, ErrRegistrationIDRequired
	}

	query := `
		INSERT INTO profiles (
			email, phone, title_prefix, first_name, middle_name, last_name, full_name,
			registration_id, old_registration_id, last_class, year_of_leaving, start_class,
			start_year, batch_year, profession, company, location, bio, linkedin_url,
			website_url, role, is_deceased, deceased_year, import_source, imported_at
		) VALUES (
			:email, :phone, :title_prefix, :first_name, :middle_name, :last_name, :full_name,
			:registration_id, :old_registration_id, :last_class, :year_of_leaving, :start_class,
			:start_year, :batch_year, :profession, :company, :location, :bio, :linkedin_url,
			:website_url, :role, :is_deceased, :deceased_year, :import_source, NOW()
		)
		ON CONFLICT (registration_id) DO UPDATE SET
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			title_prefix = EXCLUDED.title_prefix,
			first_name = EXCLUDED.first_name,
			middle_name = EXCLUDED.middle_name,
			last_name = EXCLUDED.last_name,
			full_name = EXCLUDED.full_name,
			old_registration_id = EXCLUDED.old_registration_id,
			last_class = EXCLUDED.last_class,
			year_of_leaving = EXCLUDED.year_of_leaving,
			start_class = EXCLUDED.start_class,
			start_year = EXCLUDED.start_year,
			batch_year = EXCLUDED.batch_year,
			profession = EXCLUDED.profession,
			company = EXCLUDED.company,
			location = EXCLUDED.location,
			bio = EXCLUDED.bio,
			linkedin_url = EXCLUDED.linkedin_url,
			website_url = EXCLUDED.website_url,
			role = EXCLUDED.role,
			is_deceased = EXCLUDED.is_deceased,
			deceased_year = EXCLUDED.deceased_year,
			updated_at = NOW()
		RETURNING id, (xmax = 0) AS inserted
	`

	p.ImportSource = ImportSourceCSV
	rows, err := r.db.NamedQueryContext(ctx, query, p)
	if err != nil {
		return false, fmt.Errorf("failed to upsert profile: %w", err)
	}
	defer rows.Close()

	var created bool
	if rows.Next() {
		if err := rows.Scan(&p.ID, &created); err != nil {
			return false, fmt.Errorf("failed to scan upserted profile: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("failed to upsert profile: %w", err)
	}
	return created, nil
}

func (r *PostgresRepository) ListImported(ctx context.Context, day time.Time) ([]Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles
		WHERE import_source = $1 AND imported_at IS NOT NULL`
	args := []any{ImportSourceCSV}

	if !day.IsZero() {
		start, end := dayBounds(day)
		query += ` AND imported_at >= $2 AND imported_at < $3`
		args = append(args, start, end)
	}
	query += ` ORDER BY imported_at DESC`

	var profiles []Profile
	if err := r.db.SelectContext(ctx, &profiles, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list imported profiles: %w", err)
	}
	return profiles, nil
}

func (r *PostgresRepository) GetVerification(ctx context.Context, userID string) (*Verification, error) {
	var v Verification
	err := r.db.GetContext(ctx, &v, `SELECT `+verificationColumns+` FROM alumni_verification WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVerificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get verification: %w", err)
	}
	return &v, nil
}

func (r *PostgresRepository) SaveVerification(ctx context.Context, v *Verification) error {
	query := `
		INSERT INTO alumni_verification (
			user_id, evidence_files, reference_1, reference_2, reference_1_valid, reference_2_valid,
			verification_status, pdf_generation_status
		) VALUES (
			:user_id, :evidence_files, :reference_1, :reference_2, :reference_1_valid, :reference_2_valid,
			:verification_status, :pdf_generation_status
		)
		ON CONFLICT (user_id) DO UPDATE SET
			evidence_files = EXCLUDED.evidence_files,
			reference_1 = EXCLUDED.reference_1,
			reference_2 = EXCLUDED.reference_2,
			reference_1_valid = EXCLUDED.reference_1_valid,
			reference_2_valid = EXCLUDED.reference_2_valid,
			verification_status = EXCLUDED.verification_status,
			pdf_generation_status = EXCLUDED.pdf_generation_status,
			notification_sent_at = CASE
				WHEN alumni_verification.evidence_files IS DISTINCT FROM EXCLUDED.evidence_files
					OR alumni_verification.reference_1 IS DISTINCT FROM EXCLUDED.reference_1
					OR alumni_verification.reference_2 IS DISTINCT FROM EXCLUDED.reference_2
				THEN NULL
				ELSE alumni_verification.notification_sent_at
			END,
			updated_at = NOW()
	`

	if _, err := r.db.NamedExecContext(ctx, query, v); err != nil {
		return fmt.Errorf("failed to save verification: %w", err)
	}

	r.logger.InfoContext(ctx, "Verification saved",
		slog.String("user_id", v.UserID),
		slog.Int("evidence_count", len(v.EvidenceFiles)),
		slog.Int("reference_count", v.ReferenceCount()),
	)
	return nil
}

func (r *PostgresRepository) execVerification(ctx context.Context, op, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) SetPDFStatus(ctx context.Context, userID, status string) error {
	n, err := r.execVerification(ctx, "set pdf status",
		`UPDATE alumni_verification SET pdf_generation_status = $2, updated_at = NOW() WHERE user_id = $1`,
		userID, status)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrVerificationNotFound
	}
	return nil
}

func (r *PostgresRepository) RecordPDF(ctx context.Context, userID, url string, at time.Time) error {
	n, err := r.execVerification(ctx, "record pdf",
		`UPDATE alumni_verification
		SET pdf_url = $2, pdf_generated_at = $3, pdf_generation_status = 'completed', updated_at = NOW()
		WHERE user_id = $1`,
		userID, url, at)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrVerificationNotFound
	}
	return nil
}

func (r *PostgresRepository) MarkNotified(ctx context.Context, userID string, at time.Time) (bool, error) {
	n, err := r.execVerification(ctx, "mark notified",
		`UPDATE alumni_verification SET notification_sent_at = $2, updated_at = NOW()
		WHERE user_id = $1 AND notification_sent_at IS NULL`,
		userID, at)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

var _ Repository = (*PostgresRepository)(nil)
