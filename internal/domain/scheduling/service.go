package scheduling

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medcenter/portal/internal/domain/doctors"
	"github.com/medcenter/portal/internal/platform/apperr"
	"github.com/medcenter/portal/internal/platform/auth"
	"github.com/medcenter/portal/internal/platform/civil"
	"github.com/medcenter/portal/internal/platform/db"
)

// DoctorLookup resolves doctor IDs.
type DoctorLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*doctors.Doctor, error)
}

type Service struct {
	entries ScheduleRepository
	doctors DoctorLookup
	step    time.Duration
	logger  zerolog.Logger
}

func NewService(entries ScheduleRepository, doctors DoctorLookup, step time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		entries: entries,
		doctors: doctors,
		step:    step,
		logger:  logger.With().Str("component", "scheduling").Logger(),
	}
}

// Step is the slot granularity.
func (s *Service) Step() time.Duration { return s.step }

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return apperr.NotFound("schedule entry not found")
	case errors.Is(err, doctors.ErrNotFound):
		return apperr.NotFound("doctor not found")
	case errors.Is(err, ErrOverlap):
		return apperr.Validation(ErrOverlap.Error())
	case db.IsTransient(err):
		return apperr.Transient("schedule storage unavailable", err)
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Internal(err)
}

// authorize admits the doctor owning the schedule and admins.
func authorize(ctx context.Context, doctorID uuid.UUID) (auth.Identity, error) {
	id, err := auth.IdentityFrom(ctx)
	if err != nil {
		return id, err
	}
	if id.IsAdmin() || (id.IsDoctor() && id.UserID == doctorID) {
		return id, nil
	}
	return id, apperr.Forbidden("only the doctor or an admin may edit this schedule")
}

// AddEntry creates a weekly window. Admins may only schedule doctors known
// to the directory; doctors may schedule themselves before publishing.
func (s *Service) AddEntry(ctx context.Context, e *ScheduleEntry) error {
	caller, err := authorize(ctx, e.DoctorID)
	if err != nil {
		return err
	}
	if err := e.Validate(); err != nil {
		return apperr.Validation(err.Error())
	}
	if caller.UserID != e.DoctorID {
		if _, err := s.doctors.Get(ctx, e.DoctorID); err != nil {
			return mapErr(err)
		}
	}
	if err := s.entries.Create(ctx, e); err != nil {
		return mapErr(err)
	}
	s.logger.Info().
		Str("doctor_id", e.DoctorID.String()).
		Str("entry_id", e.ID.String()).
		Int("day_of_week", int(e.DayOfWeek)).
		Str("start", e.StartTime.String()).
		Str("end", e.EndTime.String()).
		Msg("schedule entry added")
	return nil
}

// RemoveEntry deletes a window. Appointments already booked inside it are
// left untouched; see the booking service's unscheduled listing.
func (s *Service) RemoveEntry(ctx context.Context, doctorID, entryID uuid.UUID) error {
	if _, err := authorize(ctx, doctorID); err != nil {
		return err
	}
	e, err := s.entries.GetByID(ctx, entryID)
	if err != nil {
		return mapErr(err)
	}
	if e.DoctorID != doctorID {
		return apperr.NotFound("schedule entry not found")
	}
	if err := s.entries.Delete(ctx, entryID); err != nil {
		return mapErr(err)
	}
	s.logger.Info().Str("doctor_id", doctorID.String()).Str("entry_id", entryID.String()).Msg("schedule entry removed")
	return nil
}

func (s *Service) ListEntries(ctx context.Context, doctorID uuid.UUID) ([]*ScheduleEntry, error) {
	entries, err := s.entries.ListByDoctor(ctx, doctorID)
	return entries, mapErr(err)
}

// AvailableSlotTimes returns every generated slot time of doctorID on date
// in ascending order. A day without schedule entries yields an empty slice.
func (s *Service) AvailableSlotTimes(ctx context.Context, doctorID uuid.UUID, date civil.Date) ([]civil.Time, error) {
	day := date.Weekday()
	entries, err := s.entries.ListByDoctorAndDay(ctx, doctorID, day)
	if err != nil {
		return nil, mapErr(err)
	}
	out := slices.Collect(SlotTimes(entries, day, s.step))
	if out == nil {
		out = []civil.Time{}
	}
	return out, nil
}
