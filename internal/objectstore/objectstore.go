// Package objectstore uploads files to Cloudflare R2 through its S3 API.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// DefaultPresignExpiry is how long presigned upload URLs stay valid.
const DefaultPresignExpiry = time.Hour

// ErrEmptyKey is returned when an object key is blank
var ErrEmptyKey = errors.New("object key is required")

// Object describes a stored file.
type Object struct {
	Key  string `json:"key"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

// Store is what callers need from object storage.
type Store interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (*Object, error)
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
	PresignedUploadURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// Config holds the R2 connection settings.
type Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Endpoint        string
	CustomDomain    string
	Secure          bool
}

func (c Config) endpoint() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	return c.AccountID + ".r2.cloudflarestorage.com"
}

// R2Store is a Store backed by minio-go.
type R2Store struct {
	client *minio.Client
	cfg    Config
	logger *slog.Logger
}

// New creates a new R2Store instance
func New(cfg Config, logger *slog.Logger) (*R2Store, error) {
	if cfg.Bucket == "" {
		cfg.Bucket = "bghs-gallery"
	}

	client, err := minio.New(cfg.endpoint(), &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure:       cfg.Secure,
		Region:       "auto",
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &R2Store{client: client, cfg: cfg, logger: logger}, nil
}

// Upload stores data under key, replacing any existing object.
func (s *R2Store) Upload(ctx context.Context, key string, data []byte, contentType string) (*Object, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return nil, ErrEmptyKey
	}

	info, err := s.client.PutObject(ctx, s.cfg.Bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to upload object",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to upload %s: %w", key, err)
	}

	s.logger.InfoContext(ctx, "Object uploaded",
		slog.String("key", key),
		slog.Int64("size", info.Size),
	)
	return &Object{Key: key, URL: s.PublicURL(key), Size: int64(len(data))}, nil
}

// Delete removes key. Removing a missing object is not an error.
func (s *R2Store) Delete(ctx context.Context, key string) error {
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return ErrEmptyKey
	}
	if err := s.client.RemoveObject(ctx, s.cfg.Bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// PublicURL returns the public address of key.
func (s *R2Store) PublicURL(key string) string {
	return PublicURL(s.cfg, key)
}

// PresignedUploadURL returns a URL a client can PUT the object to directly.
func (s *R2Store) PresignedUploadURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return "", ErrEmptyKey
	}
	if expiry <= 0 {
		expiry = DefaultPresignExpiry
	}
	u, err := s.client.PresignedPutObject(ctx, s.cfg.Bucket, key, expiry)
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return u.String(), nil
}

// PublicURL resolves the public address of key: the custom domain when set,
// otherwise the bucket's r2.dev address.
func PublicURL(cfg Config, key string) string {
	key = strings.TrimPrefix(key, "/")
	if cfg.CustomDomain != "" {
		base := strings.TrimSuffix(cfg.CustomDomain, "/")
		if !strings.Contains(base, "://") {
			base = "https://" + base
		}
		return base + "/" + escapeKey(key)
	}
	return fmt.Sprintf("https://pub-%s.r2.dev/%s/%s", cfg.AccountID, cfg.Bucket, escapeKey(key))
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// NewKey builds a unique key under folder that keeps the file extension.
func NewKey(folder, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return path.Join(folder, uuid.NewString()+ext)
}
