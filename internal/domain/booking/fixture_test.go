package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/medcenter/portal/internal/domain/doctors"
	"github.com/medcenter/portal/internal/domain/scheduling"
	"github.com/medcenter/portal/internal/platform/auth"
	"github.com/medcenter/portal/internal/platform/civil"
	"github.com/medcenter/portal/internal/platform/notification"
	"github.com/medcenter/portal/internal/platform/websocket"
)

var (
	// Sunday noon; the next day is a Monday.
	fixedNow   = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	today      = civil.Date{Year: 2026, Month: time.March, Day: 1}
	nextMonday = civil.Date{Year: 2026, Month: time.March, Day: 2}
	nineAM     = civil.MustParseTime("09:00")
	nineThirty = civil.MustParseTime("09:30")
)

type stubDoctors struct {
	known map[uuid.UUID]bool
}

func (s *stubDoctors) Get(_ context.Context, id uuid.UUID) (*doctors.Doctor, error) {
	if !s.known[id] {
		return nil, doctors.ErrNotFound
	}
	return &doctors.Doctor{ID: id, FullName: "Elena Sokolova"}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []websocket.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev websocket.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

type recordingMetrics struct {
	mu           sync.Mutex
	reservations map[string]int
	transitions  map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{reservations: map[string]int{}, transitions: map[string]int{}}
}

func (m *recordingMetrics) ObserveReservation(outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reservations[outcome]++
}

func (m *recordingMetrics) ObserveTransition(action, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions[action+":"+outcome]++
}

type fixture struct {
	svc       *Service
	ledger    Ledger
	schedule  *scheduling.Service
	events    *recordingPublisher
	metrics   *recordingMetrics
	notifier  *notification.Manager
	doctorID  uuid.UUID
	patientA  uuid.UUID
	patientB  uuid.UUID
	adminID   uuid.UUID
	entryID   uuid.UUID
	stubbedDr *stubDoctors
}

// newFixture wires a booking service over in-memory storage with one doctor
// working Mondays 09:00-10:00.
func newFixture(t *testing.T, opts ...Option) *fixture {
	return newFixtureWithLedger(t, NewMemoryLedger(), opts...)
}

func newFixtureWithLedger(t *testing.T, ledger Ledger, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		ledger:   ledger,
		events:   &recordingPublisher{},
		metrics:  newRecordingMetrics(),
		doctorID: uuid.New(),
		patientA: uuid.New(),
		patientB: uuid.New(),
		adminID:  uuid.New(),
	}
	f.stubbedDr = &stubDoctors{known: map[uuid.UUID]bool{f.doctorID: true}}
	f.schedule = scheduling.NewService(scheduling.NewMemoryRepo(), f.stubbedDr, 30*time.Minute, zerolog.Nop())
	f.notifier = notification.NewManager(notification.LogSender{Logger: zerolog.Nop()}, notification.NewTemplateEngine(), zerolog.Nop())

	entry := &scheduling.ScheduleEntry{
		DoctorID:  f.doctorID,
		DayOfWeek: time.Monday,
		StartTime: nineAM,
		EndTime:   civil.MustParseTime("10:00"),
	}
	require.NoError(t, f.schedule.AddEntry(f.asAdmin(), entry))
	f.entryID = entry.ID

	base := []Option{
		WithEvents(f.events),
		WithMetrics(f.metrics),
		WithNotifier(f.notifier),
		WithClock(func() time.Time { return fixedNow }),
	}
	f.svc = NewService(ledger, f.schedule, f.stubbedDr, zerolog.Nop(), append(base, opts...)...)
	return f
}

func as(role auth.Role, id uuid.UUID) context.Context {
	return auth.WithIdentity(context.Background(), auth.Identity{UserID: id, Role: role})
}

func (f *fixture) asAdmin() context.Context               { return as(auth.RoleAdmin, f.adminID) }
func (f *fixture) asDoctor() context.Context              { return as(auth.RoleDoctor, f.doctorID) }
func (f *fixture) asPatient(id uuid.UUID) context.Context { return as(auth.RolePatient, id) }

func (f *fixture) reserve(patient uuid.UUID, at civil.Time, key string) (*Reservation, error) {
	return f.svc.Reserve(f.asPatient(patient), ReserveRequest{
		DoctorID:       f.doctorID,
		Date:           nextMonday,
		Time:           at,
		IdempotencyKey: key,
	})
}
