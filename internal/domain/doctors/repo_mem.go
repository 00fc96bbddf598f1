package doctors

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryProfiles is an in-process ProfileRepository.
type MemoryProfiles struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]*Profile
}

func NewMemoryProfiles() *MemoryProfiles {
	return &MemoryProfiles{profiles: make(map[uuid.UUID]*Profile)}
}

func (m *MemoryProfiles) Upsert(_ context.Context, p *Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := m.profiles[p.ID]; ok {
		p.IsPublished = existing.IsPublished
		p.PhotoBlobID = existing.PhotoBlobID
		p.CreatedAt = existing.CreatedAt
	} else {
		p.IsPublished = false
		p.PhotoBlobID = nil
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	cp := *p
	m.profiles[p.ID] = &cp
	return nil
}

func (m *MemoryProfiles) Get(_ context.Context, id uuid.UUID) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryProfiles) SetPublished(_ context.Context, id uuid.UUID, published bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return ErrNotFound
	}
	p.IsPublished = published
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryProfiles) SetPhoto(_ context.Context, id uuid.UUID, blobID *uuid.UUID) (*uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	previous := p.PhotoBlobID
	p.PhotoBlobID = blobID
	p.UpdatedAt = time.Now().UTC()
	return previous, nil
}

func (m *MemoryProfiles) ListPublished(_ context.Context) ([]*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Profile
	for _, p := range m.profiles {
		if p.IsPublished {
			cp := *p
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *Profile) int { return strings.Compare(a.FullName, b.FullName) })
	return out, nil
}
