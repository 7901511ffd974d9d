// Package paymenttoken issues and validates single-use payment links that let a
// registrant pay without logging in.
package paymenttoken

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// TypeRegistrationPayment is the only token type issued today.
const TypeRegistrationPayment = "registration_payment"

// tokenBytes is the amount of randomness in a raw token.
const tokenBytes = 32

var (
	// ErrTokenNotFound is returned when no row matches a token hash
	ErrTokenNotFound = errors.New("payment token not found")

	// ErrConfigNotFound is returned when a category has no active payment configuration
	ErrConfigNotFound = errors.New("payment configuration not found")

	// ErrTokenRequired is returned for an empty token or user id
	ErrTokenRequired = errors.New("token is required")
)

// Client-facing validation messages.
const (
	MsgInvalidToken     = "Invalid or expired token"
	MsgExpired          = "This payment link has expired"
	MsgAlreadyUsed      = "This payment link has already been used"
	MsgUserNotFound     = "User not found"
	MsgAlreadyPaid      = "Payment already completed"
	MsgValidationFailed = "Failed to validate token"
	MsgTokenRequired    = "Token is required"
)

// Token is a payment_tokens row. The raw token is never stored.
type Token struct {
	TokenHash       string     `db:"token_hash"`
	UserID          string     `db:"user_id"`
	PaymentConfigID string     `db:"payment_config_id"`
	Amount          int64      `db:"amount"`
	Currency        string     `db:"currency"`
	TokenType       string     `db:"token_type"`
	ExpiresAt       time.Time  `db:"expires_at"`
	Used            bool       `db:"used"`
	UsedAt          *time.Time `db:"used_at"`
	CreatedAt       time.Time  `db:"created_at"`
}

// CategoryRegistrationFee is the payment config category charged at registration.
const CategoryRegistrationFee = "registration_fee"

// PaymentConfig is an active fee for a payment category. Amounts are in minor units.
type PaymentConfig struct {
	ID          string    `db:"id" json:"id"`
	Category    string    `db:"category" json:"category"`
	Name        string    `db:"name" json:"name"`
	Amount      int64     `db:"amount" json:"amount"`
	Currency    string    `db:"currency" json:"currency"`
	IsMandatory bool      `db:"is_mandatory" json:"is_mandatory"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Repository persists tokens and reads payment configuration.
type Repository interface {
	Insert(ctx context.Context, t *Token) error
	GetByHash(ctx context.Context, hash string) (*Token, error)

	// MarkUsed flips used once and keeps the first used_at. It reports
	// whether this call made the change.
	MarkUsed(ctx context.Context, hash string, at time.Time) (bool, error)

	ActiveConfig(ctx context.Context, category string) (*PaymentConfig, error)
}

// HashToken returns the hex SHA-256 digest stored for a raw token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
