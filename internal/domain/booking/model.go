package booking

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medcenter/portal/internal/platform/civil"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// ActiveStatuses occupy their slot.
var ActiveStatuses = []Status{StatusPending, StatusConfirmed}

// Active reports whether an appointment in s occupies its slot.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return st, nil
	}
	return "", fmt.Errorf("invalid status %q", s)
}

// Appointment is one reservation of a doctor's slot by a patient. Rows are
// never deleted; cancellation is a status.
type Appointment struct {
	ID             uuid.UUID  `json:"id"`
	PatientID      uuid.UUID  `json:"patient_id"`
	DoctorID       uuid.UUID  `json:"doctor_id"`
	Date           civil.Date `json:"date"`
	Time           civil.Time `json:"time"`
	Status         Status     `json:"status"`
	Notes          string     `json:"notes,omitempty"`
	IdempotencyKey string     `json:"-"`
	CancelledBy    *uuid.UUID `json:"cancelled_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// SameSlot reports whether a was reserved for the given arguments.
func (a *Appointment) SameSlot(patientID, doctorID uuid.UUID, date civil.Date, t civil.Time) bool {
	return a.PatientID == patientID && a.DoctorID == doctorID && a.Date == date && a.Time == t
}

// Filter narrows a ledger listing. Zero fields do not filter.
type Filter struct {
	PatientID  *uuid.UUID
	DoctorID   *uuid.UUID
	Status     Status
	ActiveOnly bool
	From       civil.Date
	To         civil.Date
}

func (f Filter) Match(a *Appointment) bool {
	switch {
	case f.PatientID != nil && a.PatientID != *f.PatientID:
		return false
	case f.DoctorID != nil && a.DoctorID != *f.DoctorID:
		return false
	case f.Status != "" && a.Status != f.Status:
		return false
	case f.ActiveOnly && !a.Status.Active():
		return false
	case !f.From.IsZero() && a.Date.Before(f.From):
		return false
	case !f.To.IsZero() && a.Date.After(f.To):
		return false
	}
	return true
}

// SlotState is one generated slot time annotated with its occupancy.
type SlotState struct {
	Time      civil.Time `json:"time"`
	Available bool       `json:"available"`
	Occupied  bool       `json:"occupied"`
	Past      bool       `json:"past,omitempty"`
}

var (
	ErrNotFound = errors.New("appointment not found")
	// ErrSlotTaken means an active appointment already holds the slot.
	ErrSlotTaken = errors.New("slot already taken")
	// ErrDuplicateKey means the patient already used the idempotency key.
	ErrDuplicateKey = errors.New("idempotency key already used")
	// ErrStaleStatus means a compare-and-set transition lost to a
	// concurrent change.
	ErrStaleStatus = errors.New("appointment status changed concurrently")
)
