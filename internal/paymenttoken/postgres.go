package paymenttoken

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// PostgresRepository implements Repository on payment_tokens and payment_configurations.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgresRepository instance
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, t *Token) error {
	query := `
		INSERT INTO payment_tokens (
			token_hash, user_id, payment_config_id, amount, currency, token_type, expires_at, used, created_at
		) VALUES (
			:token_hash, :user_id, :payment_config_id, :amount, :currency, :token_type, :expires_at, FALSE, :created_at
		)
	`
	if _, err := r.db.NamedExecContext(ctx, query, t); err != nil {
		return fmt.Errorf("failed to insert payment token: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByHash(ctx context.Context, hash string) (*Token, error) {
	query := `
		SELECT token_hash, user_id, payment_config_id, amount, currency, token_type,
			expires_at, used, used_at, created_at
		FROM payment_tokens
		WHERE token_hash = $1
	`

	var t Token
	err := r.db.GetContext(ctx, &t, query, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment token: %w", err)
	}
	return &t, nil
}

func (r *PostgresRepository) MarkUsed(ctx context.Context, hash string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payment_tokens SET used = TRUE, used_at = $2 WHERE token_hash = $1 AND used = FALSE`,
		hash, at)
	if err != nil {
		return false, fmt.Errorf("failed to mark payment token used: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) ActiveConfig(ctx context.Context, category string) (*PaymentConfig, error) {
	query := `
		SELECT id, category, name, amount, currency, is_mandatory, is_active, created_at
		FROM payment_configurations
		WHERE category = $1 AND is_active = TRUE
		ORDER BY created_at DESC
		LIMIT 1
	`

	var c PaymentConfig
	err := r.db.GetContext(ctx, &c, query, category)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment configuration: %w", err)
	}
	return &c, nil
}

var _ Repository = (*PostgresRepository)(nil)
