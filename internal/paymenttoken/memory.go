package paymenttoken

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository is an in-process Repository.
type MemoryRepository struct {
	mu      sync.Mutex
	tokens  map[string]*Token
	configs []PaymentConfig
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{tokens: make(map[string]*Token)}
}

// AddConfig registers a payment configuration.
func (m *MemoryRepository) AddConfig(c PaymentConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs = append(m.configs, c)
}

func (m *MemoryRepository) Insert(_ context.Context, t *Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *t
	m.tokens[t.TokenHash] = &stored
	return nil
}

func (m *MemoryRepository) GetByHash(_ context.Context, hash string) (*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tokens[hash]
	if !ok {
		return nil, ErrTokenNotFound
	}
	out := *t
	return &out, nil
}

func (m *MemoryRepository) MarkUsed(_ context.Context, hash string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tokens[hash]
	if !ok || t.Used {
		return false, nil
	}
	t.Used = true
	t.UsedAt = &at
	return true, nil
}

func (m *MemoryRepository) ActiveConfig(_ context.Context, category string) (*PaymentConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *PaymentConfig
	for i := range m.configs {
		c := &m.configs[i]
		if c.Category != category || !c.IsActive {
			continue
		}
		if best == nil || c.CreatedAt.After(best.CreatedAt) {
			best = c
		}
	}
	if best == nil {
		return nil, ErrConfigNotFound
	}
	out := *best
	return &out, nil
}

var _ Repository = (*MemoryRepository)(nil)
