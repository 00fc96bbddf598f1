package booking

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/medcenter/portal/internal/platform/apperr"
	"github.com/medcenter/portal/internal/platform/auth"
	"github.com/medcenter/portal/internal/platform/notification"
)

// Action is a lifecycle transition requested by a user.
type Action string

const (
	ActionConfirm  Action = "confirm"
	ActionCancel   Action = "cancel"
	ActionComplete Action = "complete"
)

type edge struct {
	from     []Status
	to       Status
	event    string
	template string
}

// edges is the complete state machine. Cancelled and completed are
// terminal: no edge leaves them.
var edges = map[Action]edge{
	ActionConfirm: {
		from:     []Status{StatusPending},
		to:       StatusConfirmed,
		event:    "slot.confirmed",
		template: notification.TemplateConfirmed,
	},
	ActionCancel: {
		from:     []Status{StatusPending, StatusConfirmed},
		to:       StatusCancelled,
		event:    "slot.freed",
		template: notification.TemplateCancelled,
	},
	ActionComplete: {
		from:     []Status{StatusConfirmed},
		to:       StatusCompleted,
		event:    "slot.completed",
		template: notification.TemplateCompleted,
	},
}

// CanTransition reports whether action is a legal edge out of from.
func CanTransition(from Status, action Action) bool {
	e, ok := edges[action]
	return ok && slices.Contains(e.from, from)
}

// canView reports whether caller may see a: admins see everything, doctors
// their own appointments, patients their own bookings.
func canView(caller auth.Identity, a *Appointment) bool {
	switch {
	case caller.IsAdmin():
		return true
	case caller.IsDoctor():
		return a.DoctorID == caller.UserID
	case caller.IsPatient():
		return a.PatientID == caller.UserID
	}
	return false
}

// authorizeAction checks the role rules of each edge. canView has already
// established ownership.
func (s *Service) authorizeAction(caller auth.Identity, a *Appointment, action Action) error {
	if caller.IsAdmin() {
		return nil
	}
	today, _ := s.clinicNow()
	switch action {
	case ActionConfirm, ActionComplete:
		if !caller.IsDoctor() {
			return apperr.Forbidden(fmt.Sprintf("only the doctor or an admin may %s an appointment", action))
		}
	case ActionCancel:
		if caller.IsPatient() && a.Date.Before(today) {
			return apperr.Forbidden("patients may not cancel past appointments")
		}
	}
	return nil
}

func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, ActionConfirm)
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, ActionCancel)
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, ActionComplete)
}

// Apply performs action on id.
func (s *Service) Apply(ctx context.Context, id uuid.UUID, action Action) (*Appointment, error) {
	if _, ok := edges[action]; !ok {
		return nil, apperr.Validation(fmt.Sprintf("unknown action %q", action))
	}
	return s.transition(ctx, id, action)
}

// transition moves one appointment along an edge with compare-and-set
// semantics. An illegal edge leaves the appointment unchanged and returns
// Validation; losing a race against a concurrent transition returns
// Conflict.
func (s *Service) transition(ctx context.Context, id uuid.UUID, action Action) (updated *Appointment, err error) {
	ctx, span := s.tracer.Start(ctx, "booking."+string(action))
	span.SetAttributes(attribute.String("booking.appointment_id", id.String()))
	defer func() {
		label := outcome(err, "ok")
		s.metrics.ObserveTransition(string(action), label)
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
	a, err := s.ledger.Get(ctx, id)
	if err != nil {
		return nil, mapErr(err)
	}
	if !canView(caller, a) {
		return nil, apperr.NotFound("appointment not found")
	}
	if err := s.authorizeAction(caller, a, action); err != nil {
		return nil, err
	}

	e := edges[action]
	if !slices.Contains(e.from, a.Status) {
		return nil, apperr.Validation(fmt.Sprintf("cannot %s a %s appointment", action, a.Status))
	}
	if action == ActionComplete {
		if today, _ := s.clinicNow(); a.Date.After(today) {
			return nil, apperr.Validation("future appointments cannot be completed")
		}
	}

	var by *uuid.UUID
	if action == ActionCancel {
		by = &caller.UserID
	}
	updated, err = s.ledger.Transition(ctx, id, a.Status, e.to, by)
	if err != nil {
		return nil, mapErr(err)
	}

	s.logger.Info().
		Str("appointment_id", updated.ID.String()).
		Str("doctor_id", updated.DoctorID.String()).
		Str("action", string(action)).
		Str("from", string(a.Status)).
		Str("to", string(updated.Status)).
		Str("by", caller.UserID.String()).
		Msg("appointment transitioned")
	s.publish(ctx, e.event, updated)
	s.notify(ctx, e.template, updated)
	return updated, nil
}

// Get returns one appointment visible to the caller.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	caller, err := auth.IdentityFrom(ctx)
	if err != nil {
		return nil, err
	}
	a, err := s.ledger.Get(ctx, id)
	if err != nil {
		return nil, mapErr(err)
	}
	if !canView(caller, a) {
		return nil, apperr.NotFound("appointment not found")
	}
	return a, nil
}

// List returns the caller's view of the ledger: patients see their own
// bookings and doctors their own appointments whatever f says; admins may
// filter freely.
func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error) {
	caller, err := auth.IdentityFrom(ctx)
	if err != nil {
		return nil, 0, err
	}
	switch {
	case caller.IsAdmin():
	case caller.IsDoctor():
		f.DoctorID = &caller.UserID
	case caller.IsPatient():
		f.PatientID = &caller.UserID
	default:
		return nil, 0, apperr.Forbidden("unknown role")
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return nil, 0, apperr.Validation("to must not be before from")
	}
	out, total, err := s.ledger.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, mapErr(err)
	}
	return out, total, nil
}
