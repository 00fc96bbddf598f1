package booking

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/medcenter/portal/internal/domain/doctors"
	"github.com/medcenter/portal/internal/platform/apperr"
	"github.com/medcenter/portal/internal/platform/auth"
	"github.com/medcenter/portal/internal/platform/civil"
	"github.com/medcenter/portal/internal/platform/db"
	"github.com/medcenter/portal/internal/platform/notification"
)

// UnknownOutcomeMsg is returned when a reserve call may or may not have
// committed.
const UnknownOutcomeMsg = "outcome unknown; retry with the same idempotency key"

// ReserveRequest asks for one slot. PatientID may be zero when a patient
// books for themselves.
type ReserveRequest struct {
	PatientID      uuid.UUID
	DoctorID       uuid.UUID
	Date           civil.Date
	Time           civil.Time
	Notes          string
	IdempotencyKey string
}

// Reservation is the result of Reserve. Replayed is set when the
// idempotency key matched an earlier committed reservation.
type Reservation struct {
	Appointment *Appointment
	Replayed    bool
}

// resolvePatient applies the booking rules for the caller's role: patients
// book for themselves, doctors book patients into their own schedule and
// admins book for anyone.
func resolvePatient(caller auth.Identity, req *ReserveRequest) error {
	switch {
	case caller.IsPatient():
		if req.PatientID != uuid.Nil && req.PatientID != caller.UserID {
			return apperr.Forbidden("patients may only book for themselves")
		}
		req.PatientID = caller.UserID
	case caller.IsDoctor():
		if req.DoctorID != caller.UserID {
			return apperr.Forbidden("doctors may only book into their own schedule")
		}
		if req.PatientID == uuid.Nil {
			return apperr.Validation("patient_id is required")
		}
	case caller.IsAdmin():
		if req.PatientID == uuid.Nil {
			return apperr.Validation("patient_id is required")
		}
	default:
		return apperr.Forbidden("unknown role")
	}
	return nil
}

// Reserve atomically checks that a slot is free and records a pending
// appointment for it. Exactly one of any number of concurrent calls for
// the same doctor, date and time succeeds; the others get a Conflict.
//
// The whole call is bounded by the reserve timeout. A timeout or lost
// connection after the write may have committed is reported as Transient
// with UnknownOutcomeMsg; the caller resolves it by retrying with the same
// idempotency key, which returns the committed appointment if there is one.
func (s *Service) Reserve(ctx context.Context, req ReserveRequest) (res *Reservation, err error) {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, "booking.reserve")
	defer func() {
		label := outcome(err, "created")
		if err == nil && res.Replayed {
			label = "replayed"
		}
		s.metrics.ObserveReservation(label, s.now().Sub(start))
		span.SetAttributes(attribute.String("booking.outcome", label))
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	caller, err := auth.IdentityFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := resolvePatient(caller, &req); err != nil {
		return nil, err
	}
	if req.IdempotencyKey == "" {
		return nil, apperr.Validation("idempotency key is required")
	}
	if len(req.IdempotencyKey) > maxIdempotencyKey {
		return nil, apperr.Validation(fmt.Sprintf("idempotency key exceeds %d characters", maxIdempotencyKey))
	}
	span.SetAttributes(
		attribute.String("booking.doctor_id", req.DoctorID.String()),
		attribute.String("booking.date", req.Date.String()),
		attribute.String("booking.time", req.Time.String()),
	)

	ctx, cancel := context.WithTimeout(ctx, s.reserveTimeout)
	defer cancel()

	if prior, err := s.replay(ctx, req); prior != nil || err != nil {
		return prior, err
	}
	if err := s.checkPreconditions(ctx, req); err != nil {
		return nil, err
	}

	a := &Appointment{
		PatientID:      req.PatientID,
		DoctorID:       req.DoctorID,
		Date:           req.Date,
		Time:           req.Time,
		Status:         StatusPending,
		Notes:          req.Notes,
		IdempotencyKey: req.IdempotencyKey,
	}
	err = s.ledger.WithSlotLock(ctx, req.DoctorID, req.Date, func(ctx context.Context) error {
		// A concurrent retry with the same key may have committed while
		// this call waited for the lock.
		if _, err := s.ledger.GetByIdempotencyKey(ctx, req.PatientID, req.IdempotencyKey); err == nil {
			return ErrDuplicateKey
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		occupied, err := s.ledger.Occupied(ctx, req.DoctorID, req.Date)
		if err != nil {
			return err
		}
		if slices.Contains(occupied, req.Time) {
			return ErrSlotTaken
		}
		return s.ledger.Insert(ctx, a)
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrDuplicateKey):
		prior, rerr := s.replay(ctx, req)
		if rerr != nil {
			return nil, rerr
		}
		if prior == nil {
			return nil, apperr.Transient(UnknownOutcomeMsg, err)
		}
		return prior, nil
	case errors.Is(err, ErrSlotTaken):
		s.logger.Info().
			Str("doctor_id", req.DoctorID.String()).
			Str("date", req.Date.String()).
			Str("time", req.Time.String()).
			Str("outcome", "conflict").
			Msg("reservation rejected")
		return nil, mapErr(err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), db.IsTransient(err):
		s.logger.Warn().Err(err).Str("doctor_id", req.DoctorID.String()).Msg("reservation outcome unknown")
		return nil, apperr.Transient(UnknownOutcomeMsg, err)
	default:
		return nil, mapErr(err)
	}

	s.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("doctor_id", a.DoctorID.String()).
		Str("patient_id", a.PatientID.String()).
		Str("date", a.Date.String()).
		Str("time", a.Time.String()).
		Str("outcome", "created").
		Msg("appointment reserved")
	s.publish(ctx, "slot.reserved", a)
	s.notify(ctx, notification.TemplateBooked, a)
	return &Reservation{Appointment: a}, nil
}

// replay returns the committed reservation for req's idempotency key, or
// nil when the key is unused. Reusing a key for different arguments is a
// validation error.
func (s *Service) replay(ctx context.Context, req ReserveRequest) (*Reservation, error) {
	prior, err := s.ledger.GetByIdempotencyKey(ctx, req.PatientID, req.IdempotencyKey)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, nil
	case errors.Is(err, context.DeadlineExceeded), db.IsTransient(err):
		return nil, apperr.Transient(UnknownOutcomeMsg, err)
	case err != nil:
		return nil, mapErr(err)
	}
	if !prior.SameSlot(req.PatientID, req.DoctorID, req.Date, req.Time) {
		return nil, apperr.Validation("idempotency key was already used for a different reservation")
	}
	return &Reservation{Appointment: prior, Replayed: true}, nil
}

func (s *Service) checkPreconditions(ctx context.Context, req ReserveRequest) error {
	if req.DoctorID == uuid.Nil {
		return apperr.Validation("doctor_id is required")
	}
	if req.Date.IsZero() {
		return apperr.Validation("date is required")
	}
	if !req.Time.Valid() {
		return apperr.Validation("time is invalid")
	}

	today, _ := s.clinicNow()
	if req.Date.Before(today) {
		return apperr.Validation("date is in the past")
	}
	if s.elapsed(req.Date, req.Time) {
		return apperr.Validation("time has already passed")
	}

	if _, err := s.doctors.Get(ctx, req.DoctorID); err != nil {
		if errors.Is(err, doctors.ErrNotFound) {
			return apperr.Validation("unknown doctor")
		}
		return mapErr(err)
	}

	times, err := s.slots.AvailableSlotTimes(ctx, req.DoctorID, req.Date)
	if err != nil {
		return mapErr(err)
	}
	if !slices.Contains(times, req.Time) {
		return apperr.Validation(fmt.Sprintf("%s is not a bookable time for this doctor on %s", req.Time, req.Date))
	}
	return nil
}

// OccupiedSlotTimes returns the times of doctorID's pending and confirmed
// appointments on date.
func (s *Service) OccupiedSlotTimes(ctx context.Context, doctorID uuid.UUID, date civil.Date) ([]civil.Time, error) {
	times, err := s.ledger.Occupied(ctx, doctorID, date)
	if err != nil {
		return nil, mapErr(err)
	}
	if times == nil {
		times = []civil.Time{}
	}
	return times, nil
}

// Availability annotates every generated slot time of doctorID on date with
// its occupancy. Times already elapsed today are marked past and are never
// available.
func (s *Service) Availability(ctx context.Context, doctorID uuid.UUID, date civil.Date) ([]SlotState, error) {
	var generated, occupied []civil.Time
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		generated, err = s.slots.AvailableSlotTimes(gctx, doctorID, date)
		return err
	})
	g.Go(func() error {
		var err error
		occupied, err = s.ledger.Occupied(gctx, doctorID, date)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, mapErr(err)
	}

	out := make([]SlotState, 0, len(generated))
	for _, t := range generated {
		st := SlotState{Time: t, Occupied: slices.Contains(occupied, t)}
		st.Past = s.elapsed(date, t)
		st.Available = !st.Occupied && !st.Past
		out = append(out, st)
	}
	return out, nil
}

// Unscheduled lists doctorID's active appointments from today on whose time
// is no longer produced by the doctor's schedule. Schedule edits never
// cancel appointments; this listing is how they are found and handled.
func (s *Service) Unscheduled(ctx context.Context, doctorID uuid.UUID) ([]*Appointment, error) {
	caller, err := auth.IdentityFrom(ctx)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && !(caller.IsDoctor() && caller.UserID == doctorID) {
		return nil, apperr.Forbidden("only the doctor or an admin may review these appointments")
	}

	today, _ := s.clinicNow()
	active, _, err := s.ledger.List(ctx, Filter{DoctorID: &doctorID, ActiveOnly: true, From: today}, 0, 0)
	if err != nil {
		return nil, mapErr(err)
	}

	byDate := make(map[civil.Date][]civil.Time)
	out := []*Appointment{}
	for _, a := range active {
		times, ok := byDate[a.Date]
		if !ok {
			if times, err = s.slots.AvailableSlotTimes(ctx, doctorID, a.Date); err != nil {
				return nil, mapErr(err)
			}
			byDate[a.Date] = times
		}
		if !slices.Contains(times, a.Time) {
			out = append(out, a)
		}
	}
	return out, nil
}
