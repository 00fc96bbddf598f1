package scheduling

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is an in-process ScheduleRepository.
type MemoryRepo struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*ScheduleEntry
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{entries: make(map[uuid.UUID]*ScheduleEntry)}
}

func (m *MemoryRepo) Create(_ context.Context, e *ScheduleEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.entries {
		if existing.Overlaps(e) {
			return ErrOverlap
		}
	}
	e.ID = uuid.New()
	e.CreatedAt = time.Now().UTC()
	cp := *e
	m.entries[e.ID] = &cp
	return nil
}

func (m *MemoryRepo) GetByID(_ context.Context, id uuid.UUID) (*ScheduleEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *MemoryRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[id]; !ok {
		return ErrNotFound
	}
	delete(m.entries, id)
	return nil
}

func (m *MemoryRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID) ([]*ScheduleEntry, error) {
	return m.filter(func(e *ScheduleEntry) bool { return e.DoctorID == doctorID }), nil
}

func (m *MemoryRepo) ListByDoctorAndDay(_ context.Context, doctorID uuid.UUID, day time.Weekday) ([]*ScheduleEntry, error) {
	return m.filter(func(e *ScheduleEntry) bool { return e.DoctorID == doctorID && e.DayOfWeek == day }), nil
}

func (m *MemoryRepo) filter(keep func(*ScheduleEntry) bool) []*ScheduleEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*ScheduleEntry
	for _, e := range m.entries {
		if keep(e) {
			cp := *e
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *ScheduleEntry) int {
		if a.DayOfWeek != b.DayOfWeek {
			return int(a.DayOfWeek) - int(b.DayOfWeek)
		}
		return a.StartTime.Compare(b.StartTime)
	})
	return out
}
