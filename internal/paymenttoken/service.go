package paymenttoken

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/alumni-core/internal/profile"
)

// ProfileLookup is the part of the profile repository the service reads.
type ProfileLookup interface {
	GetByID(ctx context.Context, id string) (*profile.Profile, error)
}

// Config holds link settings.
type Config struct {
	LinkBaseURL string
	TTL         time.Duration
	Currency    string
}

// Issued is a freshly created token. Token is only ever returned here.
type Issued struct {
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expiresAt"`
	PaymentLink string    `json:"paymentLink,omitempty"`
}

// Validation is the typed result shown to the payer.
type Validation struct {
	Valid           bool   `json:"valid"`
	UserID          string `json:"userId,omitempty"`
	PaymentConfigID string `json:"paymentConfigId,omitempty"`
	Amount          int64  `json:"amount,omitempty"`
	Currency        string `json:"currency,omitempty"`
	UserName        string `json:"userName,omitempty"`
	UserEmail       string `json:"userEmail,omitempty"`
	Error           string `json:"error,omitempty"`
}

func invalid(msg string) *Validation {
	return &Validation{Valid: false, Error: msg}
}

// Service issues and checks payment tokens.
type Service struct {
	repo     Repository
	profiles ProfileLookup
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
	random   io.Reader
}

// NewService creates a new Service instance
func NewService(repo Repository, profiles ProfileLookup, cfg Config, logger *slog.Logger) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = 72 * time.Hour
	}
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	cfg.LinkBaseURL = strings.TrimRight(cfg.LinkBaseURL, "/")

	return &Service{
		repo:     repo,
		profiles: profiles,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
		random:   rand.Reader,
	}
}

func (s *Service) generate() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := io.ReadFull(s.random, buf); err != nil {
		return "", fmt.Errorf("failed to generate payment token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// CreatePaymentTokenForRegistration stores the hash of a new token and returns the raw token.
func (s *Service) CreatePaymentTokenForRegistration(ctx context.Context, userID string, amount int64, currency, configID string) (*Issued, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id", ErrTokenRequired)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("invalid amount %d", amount)
	}
	if currency == "" {
		currency = s.cfg.Currency
	}

	raw, err := s.generate()
	if err != nil {
		return nil, err
	}

	now := s.now()
	tok := &Token{
		TokenHash:       HashToken(raw),
		UserID:          userID,
		PaymentConfigID: configID,
		Amount:          amount,
		Currency:        currency,
		TokenType:       TypeRegistrationPayment,
		ExpiresAt:       now.Add(s.cfg.TTL),
		CreatedAt:       now,
	}
	if err := s.repo.Insert(ctx, tok); err != nil {
		return nil, fmt.Errorf("failed to create payment token: %w", err)
	}

	s.logger.InfoContext(ctx, "Payment token created",
		slog.String("user_id", userID),
		slog.Int64("amount", amount),
		slog.String("currency", currency),
		slog.Time("expires_at", tok.ExpiresAt),
	)
	return &Issued{Token: raw, ExpiresAt: tok.ExpiresAt}, nil
}

// CreateRegistrationPaymentLink issues a token and builds the landing link for it.
func (s *Service) CreateRegistrationPaymentLink(ctx context.Context, userID string, amount int64, currency, configID string) (*Issued, error) {
	issued, err := s.CreatePaymentTokenForRegistration(ctx, userID, amount, currency, configID)
	if err != nil {
		return nil, err
	}
	issued.PaymentLink = s.Link(issued.Token)
	return issued, nil
}

// Link returns the public landing URL for a raw token.
func (s *Service) Link(token string) string {
	return s.cfg.LinkBaseURL + "/payments/registration/" + token
}

// ValidatePaymentToken checks a presented token. A non-nil error means the
// check itself could not run; every business rejection is a Validation with
// Valid false.
func (s *Service) ValidatePaymentToken(ctx context.Context, token string) (*Validation, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return invalid(MsgTokenRequired), nil
	}

	hash := HashToken(token)
	tok, err := s.repo.GetByHash(ctx, hash)
	if errors.Is(err, ErrTokenNotFound) {
		return invalid(MsgInvalidToken), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up payment token: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(tok.TokenHash), []byte(hash)) != 1 {
		return invalid(MsgInvalidToken), nil
	}

	if !s.now().Before(tok.ExpiresAt) {
		return invalid(MsgExpired), nil
	}
	if tok.Used {
		return invalid(MsgAlreadyUsed), nil
	}

	user, err := s.profiles.GetByID(ctx, tok.UserID)
	if errors.Is(err, profile.ErrProfileNotFound) {
		return invalid(MsgUserNotFound), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token owner: %w", err)
	}
	if user.PaymentStatus.Settled() {
		return invalid(MsgAlreadyPaid), nil
	}

	return &Validation{
		Valid:           true,
		UserID:          user.ID,
		PaymentConfigID: tok.PaymentConfigID,
		Amount:          tok.Amount,
		Currency:        tok.Currency,
		UserName:        user.DisplayName(),
		UserEmail:       user.Email,
	}, nil
}

// MarkTokenAsUsed records that the payment behind token succeeded. It runs
// after the payment, so failures are logged and not returned.
func (s *Service) MarkTokenAsUsed(ctx context.Context, token string) {
	token = strings.TrimSpace(token)
	if token == "" {
		return
	}

	changed, err := s.repo.MarkUsed(ctx, HashToken(token), s.now())
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to mark token as used",
			slog.String("error", err.Error()),
		)
		return
	}
	if !changed {
		s.logger.DebugContext(ctx, "Payment token already used or unknown")
		return
	}
	s.logger.InfoContext(ctx, "Payment token marked as used")
}

// GetActivePaymentConfig returns the newest active configuration for category.
func (s *Service) GetActivePaymentConfig(ctx context.Context, category string) (*PaymentConfig, error) {
	return s.repo.ActiveConfig(ctx, strings.TrimSpace(category))
}
