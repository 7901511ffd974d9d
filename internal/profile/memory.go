package profile

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps profiles in process. Tests and local tooling use it.
type MemoryRepository struct {
	mu            sync.RWMutex
	profiles      map[string]*Profile
	verifications map[string]*Verification
	now           func() time.Time
}

// NewMemoryRepository creates an empty repository. A nil clock defaults to time.Now.
func NewMemoryRepository(now func() time.Time) *MemoryRepository {
	if now == nil {
		now = time.Now
	}
	return &MemoryRepository{
		profiles:      make(map[string]*Profile),
		verifications: make(map[string]*Verification),
		now:           now,
	}
}

// Put stores p as is, assigning an id when missing.
func (m *MemoryRepository) Put(p Profile) *Profile {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.PaymentStatus == "" {
		p.PaymentStatus = PaymentPending
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = m.now()
		p.UpdatedAt = p.CreatedAt
	}
	m.profiles[p.ID] = &p
	out := p
	return &out
}

// SetPaymentStatus changes the stored payment status of a profile.
func (m *MemoryRepository) SetPaymentStatus(id string, status PaymentStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.profiles[id]; ok {
		p.PaymentStatus = status
	}
}

func (m *MemoryRepository) GetByID(_ context.Context, id string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[id]
	if !ok {
		return nil, ErrProfileNotFound
	}
	out := *p
	return &out, nil
}

func (m *MemoryRepository) GetByRegistrationID(_ context.Context, registrationID string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	want := strings.ToUpper(strings.TrimSpace(registrationID))
	for _, p := range m.profiles {
		if p.RegistrationID != "" && p.RegistrationID == want {
			out := *p
			return &out, nil
		}
	}
	return nil, ErrProfileNotFound
}

func (m *MemoryRepository) sorted() []Profile {
	out := make([]Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, *p)
	}
	slices.SortFunc(out, func(a, b Profile) int {
		switch {
		case a.RegistrationID == "" && b.RegistrationID != "":
			return 1
		case a.RegistrationID != "" && b.RegistrationID == "":
			return -1
		}
		if c := strings.Compare(a.RegistrationID, b.RegistrationID); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func (m *MemoryRepository) ListPage(_ context.Context, offset, limit int) ([]Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.sorted()
	if offset >= len(all) {
		return nil, nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], nil
}

func (m *MemoryRepository) UpsertImported(_ context.Context, p *Profile) (bool, error) {
	if p.RegistrationID == "" {
		return false, ErrRegistrationIDRequired
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, existing := range m.profiles {
		if existing.RegistrationID != p.RegistrationID {
			continue
		}
		keep := *existing
		*existing = *p
		existing.ID = keep.ID
		existing.PaymentStatus = keep.PaymentStatus
		existing.ImportSource = keep.ImportSource
		existing.ImportedAt = keep.ImportedAt
		existing.CreatedAt = keep.CreatedAt
		existing.UpdatedAt = now
		p.ID = keep.ID
		return false, nil
	}

	stored := *p
	stored.ID = uuid.NewString()
	stored.ImportSource = ImportSourceCSV
	stored.ImportedAt = &now
	if stored.PaymentStatus == "" {
		stored.PaymentStatus = PaymentPending
	}
	stored.CreatedAt = now
	stored.UpdatedAt = now
	m.profiles[stored.ID] = &stored
	p.ID = stored.ID
	p.ImportSource = ImportSourceCSV
	return true, nil
}

func (m *MemoryRepository) ListImported(_ context.Context, day time.Time) ([]Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Profile
	for _, p := range m.profiles {
		if p.ImportSource != ImportSourceCSV || p.ImportedAt == nil {
			continue
		}
		if !day.IsZero() {
			start, end := dayBounds(day)
			if p.ImportedAt.Before(start) || !p.ImportedAt.Before(end) {
				continue
			}
		}
		out = append(out, *p)
	}
	slices.SortFunc(out, func(a, b Profile) int { return b.ImportedAt.Compare(*a.ImportedAt) })
	return out, nil
}

func (m *MemoryRepository) GetVerification(_ context.Context, userID string) (*Verification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.verifications[userID]
	if !ok {
		return nil, ErrVerificationNotFound
	}
	out := *v
	out.EvidenceFiles = slices.Clone(v.EvidenceFiles)
	return &out, nil
}

func (m *MemoryRepository) SaveVerification(_ context.Context, v *Verification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	stored := *v
	stored.EvidenceFiles = slices.Clone(v.EvidenceFiles)
	if existing, ok := m.verifications[v.UserID]; ok {
		stored.PDFURL = existing.PDFURL
		stored.PDFGeneratedAt = existing.PDFGeneratedAt
		if existing.SameSubmission(&stored) {
			stored.NotificationSentAt = existing.NotificationSentAt
		}
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	m.verifications[v.UserID] = &stored
	return nil
}

func (m *MemoryRepository) updateVerification(userID string, fn func(v *Verification) bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.verifications[userID]
	if !ok {
		return false, ErrVerificationNotFound
	}
	changed := fn(v)
	if changed {
		v.UpdatedAt = m.now()
	}
	return changed, nil
}

func (m *MemoryRepository) SetPDFStatus(_ context.Context, userID, status string) error {
	_, err := m.updateVerification(userID, func(v *Verification) bool {
		v.PDFGenerationStatus = status
		return true
	})
	return err
}

func (m *MemoryRepository) RecordPDF(_ context.Context, userID, url string, at time.Time) error {
	_, err := m.updateVerification(userID, func(v *Verification) bool {
		v.PDFURL = url
		v.PDFGeneratedAt = &at
		v.PDFGenerationStatus = PDFCompleted
		return true
	})
	return err
}

func (m *MemoryRepository) MarkNotified(_ context.Context, userID string, at time.Time) (bool, error) {
	changed, err := m.updateVerification(userID, func(v *Verification) bool {
		if v.NotificationSentAt != nil {
			return false
		}
		v.NotificationSentAt = &at
		return true
	})
	if err != nil {
		// Postgres reports zero rows for a missing record too.
		return false, nil
	}
	return changed, nil
}

var _ Repository = (*MemoryRepository)(nil)
