package objectstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps objects in a map. It is used by tests and local runs
// without storage credentials.
type MemoryStore struct {
	cfg Config

	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data        []byte
	contentType string
}

// NewMemoryStore creates a new MemoryStore instance
func NewMemoryStore(cfg Config) *MemoryStore {
	if cfg.Bucket == "" {
		cfg.Bucket = "bghs-gallery"
	}
	return &MemoryStore{cfg: cfg, objects: make(map[string]memoryObject)}
}

func (m *MemoryStore) Upload(_ context.Context, key string, data []byte, contentType string) (*Object, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return nil, ErrEmptyKey
	}
	m.mu.Lock()
	m.objects[key] = memoryObject{data: append([]byte(nil), data...), contentType: contentType}
	m.mu.Unlock()
	return &Object{Key: key, URL: m.PublicURL(key), Size: int64(len(data))}, nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return ErrEmptyKey
	}
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) PublicURL(key string) string {
	return PublicURL(m.cfg, key)
}

func (m *MemoryStore) PresignedUploadURL(_ context.Context, key string, expiry time.Duration) (string, error) {
	if strings.TrimPrefix(key, "/") == "" {
		return "", ErrEmptyKey
	}
	if expiry <= 0 {
		expiry = DefaultPresignExpiry
	}
	return fmt.Sprintf("%s?expires=%d", m.PublicURL(key), int(expiry.Seconds())), nil
}

// Get returns the stored bytes and content type of key.
func (m *MemoryStore) Get(key string) ([]byte, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.objects[key]
	return o.data, o.contentType, ok
}

// Len returns the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
