package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ScheduleRepository persists schedule entries. Create must reject an entry
// overlapping another entry of the same doctor and day with ErrOverlap, and
// the check and insert must be atomic with respect to concurrent Creates.
type ScheduleRepository interface {
	Create(ctx context.Context, e *ScheduleEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*ScheduleEntry, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*ScheduleEntry, error)
	ListByDoctorAndDay(ctx context.Context, doctorID uuid.UUID, day time.Weekday) ([]*ScheduleEntry, error)
}
