package booking

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medcenter/portal/internal/platform/civil"
)

type slotKey struct {
	doctor uuid.UUID
	date   civil.Date
	time   civil.Time
}

type idemKey struct {
	patient uuid.UUID
	key     string
}

// MemoryLedger is an in-process Ledger with the same uniqueness guarantees
// as the Postgres one.
type MemoryLedger struct {
	mu     sync.Mutex
	rows   map[uuid.UUID]*Appointment
	active map[slotKey]uuid.UUID
	keys   map[idemKey]uuid.UUID

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		rows:   make(map[uuid.UUID]*Appointment),
		active: make(map[slotKey]uuid.UUID),
		keys:   make(map[idemKey]uuid.UUID),
		locks:  make(map[string]*sync.Mutex),
	}
}

func (m *MemoryLedger) WithSlotLock(ctx context.Context, doctorID uuid.UUID, date civil.Date, fn func(ctx context.Context) error) error {
	key := slotLockKey(doctorID, date)
	m.locksMu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	m.locksMu.Unlock()

	l.Lock()
	defer l.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

func (m *MemoryLedger) Occupied(_ context.Context, doctorID uuid.UUID, date civil.Date) ([]civil.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []civil.Time{}
	for k := range m.active {
		if k.doctor == doctorID && k.date == date {
			out = append(out, k.time)
		}
	}
	slices.SortFunc(out, civil.Time.Compare)
	return out, nil
}

func (m *MemoryLedger) Insert(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a.Status == "" {
		a.Status = StatusPending
	}
	sk := slotKey{a.DoctorID, a.Date, a.Time}
	if _, taken := m.active[sk]; taken && a.Status.Active() {
		return ErrSlotTaken
	}
	ik := idemKey{a.PatientID, a.IdempotencyKey}
	if _, used := m.keys[ik]; used {
		return ErrDuplicateKey
	}

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	cp := *a
	m.rows[a.ID] = &cp
	m.keys[ik] = a.ID
	if a.Status.Active() {
		m.active[sk] = a.ID
	}
	return nil
}

func (m *MemoryLedger) Get(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryLedger) GetByIdempotencyKey(ctx context.Context, patientID uuid.UUID, key string) (*Appointment, error) {
	m.mu.Lock()
	id, ok := m.keys[idemKey{patientID, key}]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.Get(ctx, id)
}

func (m *MemoryLedger) Transition(_ context.Context, id uuid.UUID, from, to Status, by *uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	if a.Status != from {
		return nil, ErrStaleStatus
	}
	sk := slotKey{a.DoctorID, a.Date, a.Time}
	if !from.Active() && to.Active() {
		if _, taken := m.active[sk]; taken {
			return nil, ErrSlotTaken
		}
		m.active[sk] = id
	}
	if from.Active() && !to.Active() {
		delete(m.active, sk)
	}
	a.Status = to
	if by != nil {
		cb := *by
		a.CancelledBy = &cb
	}
	a.UpdatedAt = time.Now().UTC()
	cp := *a
	return &cp, nil
}

func (m *MemoryLedger) List(_ context.Context, f Filter, limit, offset int) ([]*Appointment, int, error) {
	m.mu.Lock()
	var matched []*Appointment
	for _, a := range m.rows {
		if f.Match(a) {
			cp := *a
			matched = append(matched, &cp)
		}
	}
	m.mu.Unlock()

	slices.SortFunc(matched, func(a, b *Appointment) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		if c := a.Time.Compare(b.Time); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return matched[offset:end], total, nil
}
