package booking

import (
	"context"

	"github.com/google/uuid"

	"github.com/medcenter/portal/internal/platform/civil"
)

// Ledger is the authoritative record of appointments.
//
// Implementations guarantee that at most one active appointment exists per
// (doctor, date, time) no matter how callers interleave: Insert fails with
// ErrSlotTaken rather than creating a second one.
type Ledger interface {
	// WithSlotLock runs fn while holding an exclusive lock on every slot of
	// doctorID on date. Ledger calls made with the ctx passed to fn join the
	// locked unit of work.
	WithSlotLock(ctx context.Context, doctorID uuid.UUID, date civil.Date, fn func(ctx context.Context) error) error

	// Occupied returns the times held by pending or confirmed appointments,
	// ascending.
	Occupied(ctx context.Context, doctorID uuid.UUID, date civil.Date) ([]civil.Time, error)

	// Insert stores a and fills its ID and timestamps. It returns
	// ErrSlotTaken or ErrDuplicateKey on the matching uniqueness violation.
	Insert(ctx context.Context, a *Appointment) error

	Get(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetByIdempotencyKey(ctx context.Context, patientID uuid.UUID, key string) (*Appointment, error)

	// Transition moves id from status from to status to. It returns
	// ErrStaleStatus when the stored status is no longer from. by is
	// recorded as the canceller when non-nil.
	Transition(ctx context.Context, id uuid.UUID, from, to Status, by *uuid.UUID) (*Appointment, error)

	// List returns one page ordered by date and time, plus the total count.
	List(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error)
}

func slotLockKey(doctorID uuid.UUID, date civil.Date) string {
	return "slot:" + doctorID.String() + ":" + date.String()
}
