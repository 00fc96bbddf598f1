package booking

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/medcenter/portal/internal/domain/doctors"
	"github.com/medcenter/portal/internal/platform/apperr"
	"github.com/medcenter/portal/internal/platform/civil"
	"github.com/medcenter/portal/internal/platform/db"
	"github.com/medcenter/portal/internal/platform/notification"
	"github.com/medcenter/portal/internal/platform/websocket"
)

// DoctorLookup resolves doctors through the merged directory.
type DoctorLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*doctors.Doctor, error)
}

// SlotSource generates the bookable times of a doctor's day.
type SlotSource interface {
	AvailableSlotTimes(ctx context.Context, doctorID uuid.UUID, date civil.Date) ([]civil.Time, error)
}

// Notifier delivers patient-facing messages. Delivery failures never fail
// the booking operation that triggered them.
type Notifier interface {
	Notify(ctx context.Context, templateID, recipient string, data map[string]string) *notification.Notification
}

// Recorder receives booking metrics.
type Recorder interface {
	ObserveReservation(outcome string, took time.Duration)
	ObserveTransition(action, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveReservation(string, time.Duration) {}
func (nopRecorder) ObserveTransition(string, string)         {}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, websocket.Event) error { return nil }

const (
	DefaultReserveTimeout = 5 * time.Second
	maxIdempotencyKey     = 128

	tracerName = "github.com/medcenter/portal/internal/domain/booking"
)

// Service is the reservation coordinator and lifecycle owner.
type Service struct {
	ledger         Ledger
	slots          SlotSource
	doctors        DoctorLookup
	events         websocket.EventPublisher
	notifier       Notifier
	metrics        Recorder
	loc            *time.Location
	reserveTimeout time.Duration
	now            func() time.Time
	tracer         trace.Tracer
	logger         zerolog.Logger
}

type Option func(*Service)

func WithEvents(p websocket.EventPublisher) Option { return func(s *Service) { s.events = p } }
func WithNotifier(n Notifier) Option               { return func(s *Service) { s.notifier = n } }
func WithMetrics(r Recorder) Option                { return func(s *Service) { s.metrics = r } }

// WithLocation sets the clinic timezone used for "today" and "now".
func WithLocation(loc *time.Location) Option { return func(s *Service) { s.loc = loc } }

func WithReserveTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.reserveTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithTracerProvider replaces the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer(tracerName) }
}

func NewService(ledger Ledger, slots SlotSource, doctors DoctorLookup, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		ledger:         ledger,
		slots:          slots,
		doctors:        doctors,
		events:         nopPublisher{},
		metrics:        nopRecorder{},
		loc:            time.UTC,
		reserveTimeout: DefaultReserveTimeout,
		now:            time.Now,
		tracer:         otel.Tracer(tracerName),
		logger:         logger.With().Str("component", "booking").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// clinicNow returns the current civil date and time in the clinic timezone.
func (s *Service) clinicNow() (civil.Date, civil.Time) {
	now := s.now().In(s.loc)
	return civil.DateOf(now), civil.TimeOf(now)
}

// elapsed reports whether the slot at t on date has already started.
func (s *Service) elapsed(date civil.Date, t civil.Time) bool {
	today, now := s.clinicNow()
	return date.Before(today) || (date == today && !now.Before(t))
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return apperr.NotFound("appointment not found")
	case errors.Is(err, ErrSlotTaken):
		return apperr.Conflict("slot is no longer available; choose another time")
	case errors.Is(err, ErrStaleStatus):
		return apperr.Conflict("appointment was changed concurrently; reload and retry")
	case db.IsTransient(err):
		return apperr.Transient("booking storage unavailable", err)
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Internal(err)
}

// outcome labels err for metrics.
func outcome(err error, success string) string {
	if err == nil {
		return success
	}
	switch apperr.KindOf(err) {
	case apperr.KindConflict:
		return "conflict"
	case apperr.KindValidation, apperr.KindNotFound:
		return "validation"
	case apperr.KindForbidden, apperr.KindUnauthenticated:
		return "forbidden"
	case apperr.KindTransient:
		return "transient"
	}
	return "error"
}

type slotEventData struct {
	AppointmentID uuid.UUID  `json:"appointment_id"`
	DoctorID      uuid.UUID  `json:"doctor_id"`
	Date          civil.Date `json:"date"`
	Time          civil.Time `json:"time"`
	Status        Status     `json:"status"`
	Occupied      bool       `json:"occupied"`
}

// publish announces an occupancy change on the slot's topic. Publishing is
// best effort; subscribers that miss it fall back to re-reading occupancy.
func (s *Service) publish(ctx context.Context, eventType string, a *Appointment) {
	data, err := json.Marshal(slotEventData{
		AppointmentID: a.ID,
		DoctorID:      a.DoctorID,
		Date:          a.Date,
		Time:          a.Time,
		Status:        a.Status,
		Occupied:      a.Status.Active(),
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("marshal slot event")
		return
	}
	ev := websocket.Event{
		Type:      eventType,
		Topic:     websocket.SlotTopic(a.DoctorID.String(), a.Date.String()),
		Timestamp: s.now().UTC(),
		Data:      data,
	}
	if err := s.events.Publish(context.WithoutCancel(ctx), ev); err != nil {
		s.logger.Warn().Err(err).Str("topic", ev.Topic).Msg("publish slot event failed")
	}
}

func (s *Service) notify(ctx context.Context, templateID string, a *Appointment) {
	if s.notifier == nil {
		return
	}
	name := a.DoctorID.String()
	if d, err := s.doctors.Get(ctx, a.DoctorID); err == nil {
		name = d.FullName
	}
	s.notifier.Notify(context.WithoutCancel(ctx), templateID, a.PatientID.String(), map[string]string{
		"doctor": name,
		"date":   a.Date.String(),
		"time":   a.Time.String(),
	})
}
