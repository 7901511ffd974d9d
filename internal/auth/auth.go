// Package auth verifies the auth provider's bearer tokens and resolves the
// caller's role from their profile.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cuongbtq/alumni-core/internal/profile"
	"github.com/cuongbtq/alumni-core/internal/rbac"
)

var (
	// ErrMissingToken is returned when the request carries no bearer token
	ErrMissingToken = errors.New("missing bearer token")

	// ErrInvalidToken is returned for tokens that fail signature or claim checks
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Email  string
	Role   rbac.Role
}

// Can reports whether the caller's role grants p.
func (p *Principal) Can(perm rbac.Permission) bool {
	return p != nil && rbac.Has(p.Role, perm)
}

// Claims is the subset of the provider's access token that is read.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// ProfileLookup loads the caller's profile for the role.
type ProfileLookup interface {
	GetByID(ctx context.Context, id string) (*profile.Profile, error)
}

// Verifier checks HS256 access tokens.
type Verifier struct {
	secret   []byte
	issuer   string
	profiles ProfileLookup
	now      func() time.Time
}

// NewVerifier creates a new Verifier instance. An empty issuer skips the iss check.
func NewVerifier(secret, issuer string, profiles ProfileLookup) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer, profiles: profiles, now: time.Now}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMissingToken
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// ParseToken validates the token and returns its claims.
func (v *Verifier) ParseToken(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return &claims, nil
}

// Authenticate resolves the caller behind a bearer token. A caller without a
// profile yet holds no role and therefore no permissions.
func (v *Verifier) Authenticate(ctx context.Context, token string) (*Principal, error) {
	claims, err := v.ParseToken(token)
	if err != nil {
		return nil, err
	}

	principal := &Principal{UserID: claims.Subject, Email: claims.Email}
	p, err := v.profiles.GetByID(ctx, claims.Subject)
	switch {
	case errors.Is(err, profile.ErrProfileNotFound):
		return principal, nil
	case err != nil:
		return nil, fmt.Errorf("failed to load caller profile: %w", err)
	}

	if role, err := rbac.ParseRole(p.Role); err == nil {
		principal.Role = role
	}
	if principal.Email == "" {
		principal.Email = p.Email
	}
	return principal, nil
}

// IssueToken signs a token for userID. The CLI uses it for operator access
// and tests use it to build requests.
func IssueToken(secret, issuer, userID string, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
