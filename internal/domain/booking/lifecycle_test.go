package booking

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/medcenter/portal/internal/platform/apperr"
	"github.com/medcenter/portal/internal/platform/auth"
	"github.com/medcenter/portal/internal/platform/civil"
)

// seed stores an appointment directly in the ledger, bypassing the
// reservation preconditions.
func (f *fixture) seed(t *testing.T, date civil.Date, status Status) *Appointment {
	t.Helper()
	a := &Appointment{
		PatientID:      f.patientA,
		DoctorID:       f.doctorID,
		Date:           date,
		Time:           nineAM,
		Status:         status,
		IdempotencyKey: uuid.NewString(),
	}
	require.NoError(t, f.ledger.Insert(context.Background(), a))
	return a
}

func TestCanTransition(t *testing.T) {
	legal := map[Status][]Action{
		StatusPending:   {ActionConfirm, ActionCancel},
		StatusConfirmed: {ActionCancel, ActionComplete},
		StatusCancelled: nil,
		StatusCompleted: nil,
	}
	for from, allowed := range legal {
		for _, action := range []Action{ActionConfirm, ActionCancel, ActionComplete} {
			want := false
			for _, a := range allowed {
				want = want || a == action
			}
			assert.Equal(t, want, CanTransition(from, action), "%s from %s", action, from)
		}
	}
}

func TestLifecycle_HappyPath(t *testing.T) {
	f := newFixture(t)
	a := f.seed(t, today, StatusPending)

	confirmed, err := f.svc.Confirm(f.asDoctor(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)

	completed, err := f.svc.Complete(f.asDoctor(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)
	assert.Nil(t, completed.CancelledBy)

	assert.Equal(t, []string{"slot.confirmed", "slot.completed"}, f.events.types())
	assert.Equal(t, 1, f.metrics.transitions["confirm:ok"])
	assert.Equal(t, 1, f.metrics.transitions["complete:ok"])
}

func TestLifecycle_IllegalEdgesLeaveStateUnchanged(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		date   civil.Date
		action Action
	}{
		{"complete pending", StatusPending, today, ActionComplete},
		{"confirm confirmed", StatusConfirmed, today, ActionConfirm},
		{"confirm cancelled", StatusCancelled, nextMonday, ActionConfirm},
		{"cancel cancelled", StatusCancelled, nextMonday, ActionCancel},
		{"cancel completed", StatusCompleted, today, ActionCancel},
		{"complete completed", StatusCompleted, today, ActionComplete},
		{"complete future", StatusConfirmed, nextMonday, ActionComplete},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			a := f.seed(t, tt.date, tt.status)

			_, err := f.svc.Apply(f.asAdmin(), a.ID, tt.action)
			require.ErrorIs(t, err, apperr.ErrValidation)

			stored, err := f.ledger.Get(context.Background(), a.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.status, stored.Status)
			assert.Empty(t, f.events.types())
		})
	}
}

func TestLifecycle_RoleRules(t *testing.T) {
	f := newFixture(t)
	otherDoctor := as(auth.RoleDoctor, uuid.New())

	pending := f.seed(t, nextMonday, StatusPending)
	_, err := f.svc.Confirm(f.asPatient(f.patientA), pending.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden, "patients cannot confirm")

	_, err = f.svc.Confirm(otherDoctor, pending.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound, "other doctors cannot see it")

	_, err = f.svc.Cancel(f.asPatient(f.patientB), pending.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound, "other patients cannot see it")

	_, err = f.svc.Cancel(context.Background(), pending.ID)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	cancelled, err := f.svc.Cancel(f.asPatient(f.patientA), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, f.patientA, *cancelled.CancelledBy)
}

func TestLifecycle_PatientCannotCancelPast(t *testing.T) {
	f := newFixture(t)
	past := f.seed(t, today.AddDays(-1), StatusConfirmed)

	_, err := f.svc.Cancel(f.asPatient(f.patientA), past.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	got, err := f.ledger.Get(context.Background(), past.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)

	_, err = f.svc.Cancel(f.asDoctor(), past.ID)
	assert.NoError(t, err, "the doctor may still cancel")
}

func TestLifecycle_ConcurrentCancelsOneWins(t *testing.T) {
	f := newFixture(t)
	a := f.seed(t, nextMonday, StatusConfirmed)

	const n = 8
	errs := make([]error, n)
	g := new(errgroup.Group)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, errs[i] = f.svc.Cancel(f.asAdmin(), a.ID)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		kind := apperr.KindOf(err)
		assert.Contains(t, []apperr.Kind{apperr.KindConflict, apperr.KindValidation}, kind)
	}
	assert.Equal(t, 1, wins)
}

func TestLifecycle_StaleTransitionIsConflict(t *testing.T) {
	f := newFixture(t)
	a := f.seed(t, nextMonday, StatusPending)

	_, err := f.ledger.Transition(context.Background(), a.ID, StatusConfirmed, StatusCancelled, nil)
	require.ErrorIs(t, err, ErrStaleStatus)
	assert.ErrorIs(t, mapErr(err), apperr.ErrConflict)
}

func TestList_ScopedByRole(t *testing.T) {
	f := newFixture(t)
	_, err := f.reserve(f.patientA, nineAM, "a")
	require.NoError(t, err)
	_, err = f.reserve(f.patientB, nineThirty, "b")
	require.NoError(t, err)

	mine, total, err := f.svc.List(f.asPatient(f.patientA), Filter{PatientID: &f.patientB}, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, f.patientA, mine[0].PatientID)

	_, total, err = f.svc.List(f.asDoctor(), Filter{}, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	_, total, err = f.svc.List(as(auth.RoleDoctor, uuid.New()), Filter{}, 20, 0)
	require.NoError(t, err)
	assert.Zero(t, total)

	page, total, err := f.svc.List(f.asAdmin(), Filter{}, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, page, 1)
	assert.Equal(t, nineThirty, page[0].Time)

	_, _, err = f.svc.List(f.asAdmin(), Filter{From: nextMonday, To: today}, 20, 0)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestGet_Visibility(t *testing.T) {
	f := newFixture(t)
	res, err := f.reserve(f.patientA, nineAM, "a")
	require.NoError(t, err)

	got, err := f.svc.Get(f.asPatient(f.patientA), res.Appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Appointment.ID, got.ID)

	_, err = f.svc.Get(f.asPatient(f.patientB), res.Appointment.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.Get(f.asAdmin(), uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
