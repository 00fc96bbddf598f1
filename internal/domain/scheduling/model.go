package scheduling

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medcenter/portal/internal/platform/civil"
)

// ScheduleEntry is one recurring weekly availability window of a doctor.
// Several entries per day model split shifts; they never overlap.
type ScheduleEntry struct {
	ID        uuid.UUID    `json:"id"`
	DoctorID  uuid.UUID    `json:"doctor_id"`
	DayOfWeek time.Weekday `json:"day_of_week"`
	StartTime civil.Time   `json:"start_time"`
	EndTime   civil.Time   `json:"end_time"`
	CreatedAt time.Time    `json:"created_at"`
}

// ErrOverlap is returned by Create when the new entry intersects an existing
// entry of the same doctor and day.
var ErrOverlap = errors.New("schedule entry overlaps an existing entry")

var ErrNotFound = errors.New("schedule entry not found")

// Validate checks the entry's own fields.
func (e *ScheduleEntry) Validate() error {
	if e.DoctorID == uuid.Nil {
		return errors.New("doctor_id is required")
	}
	if e.DayOfWeek < time.Sunday || e.DayOfWeek > time.Saturday {
		return fmt.Errorf("day_of_week must be 0..6, got %d", e.DayOfWeek)
	}
	if !e.StartTime.Valid() || !e.EndTime.ValidEnd() {
		return errors.New("start_time must be a time of day and end_time at most 24:00")
	}
	if !e.StartTime.Before(e.EndTime) {
		return fmt.Errorf("start_time %s must be before end_time %s", e.StartTime, e.EndTime)
	}
	return nil
}

// Overlaps reports whether e and o share a day and any minute. Touching
// windows (09:00-10:00 and 10:00-11:00) do not overlap.
func (e *ScheduleEntry) Overlaps(o *ScheduleEntry) bool {
	return e.DoctorID == o.DoctorID &&
		e.DayOfWeek == o.DayOfWeek &&
		e.StartTime.Before(o.EndTime) &&
		o.StartTime.Before(e.EndTime)
}
