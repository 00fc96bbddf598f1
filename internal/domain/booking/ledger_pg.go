package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medcenter/portal/internal/platform/civil"
	"github.com/medcenter/portal/internal/platform/db"
)

// Constraint names from migrations/003_appointments.sql.
const (
	activeSlotConstraint  = "appointments_active_slot_key"
	idempotencyConstraint = "appointments_idempotency_key"
)

type ledgerPG struct{ pool *pgxpool.Pool }

func NewLedgerPG(pool *pgxpool.Pool) Ledger { return &ledgerPG{pool: pool} }

func (r *ledgerPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const appointmentCols = `id, patient_id, doctor_id, appointment_date, appointment_time, status,
	notes, idempotency_key, cancelled_by, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a      Appointment
		date   pgtype.Date
		tm     pgtype.Time
		status string
	)
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &date, &tm, &status,
		&a.Notes, &a.IdempotencyKey, &a.CancelledBy, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Date = db.CivilDate(date)
	a.Time = db.CivilTime(tm)
	a.Status = Status(status)
	return &a, nil
}

// WithSlotLock serializes reservations of one doctor's day with a
// transaction-scoped advisory lock. The partial unique index still rejects
// a second active row if a writer bypasses the lock.
func (r *ledgerPG) WithSlotLock(ctx context.Context, doctorID uuid.UUID, date civil.Date, fn func(ctx context.Context) error) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		if err := db.AdvisoryXactLock(ctx, slotLockKey(doctorID, date)); err != nil {
			return err
		}
		return fn(ctx)
	})
}

func (r *ledgerPG) Occupied(ctx context.Context, doctorID uuid.UUID, date civil.Date) ([]civil.Time, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT appointment_time FROM appointments
		WHERE doctor_id = $1 AND appointment_date = $2 AND status IN ('pending', 'confirmed')
		ORDER BY appointment_time`,
		doctorID, db.PGDate(date))
	if err != nil {
		return nil, fmt.Errorf("query occupied slots: %w", err)
	}
	defer rows.Close()

	out := []civil.Time{}
	for rows.Next() {
		var tm pgtype.Time
		if err := rows.Scan(&tm); err != nil {
			return nil, fmt.Errorf("scan occupied slot: %w", err)
		}
		out = append(out, db.CivilTime(tm))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate occupied slots: %w", err)
	}
	return out, nil
}

func (r *ledgerPG) Insert(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = StatusPending
	}
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, appointment_date, appointment_time,
			status, notes, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+appointmentCols,
		a.ID, a.PatientID, a.DoctorID, db.PGDate(a.Date), db.PGTime(a.Time),
		string(a.Status), a.Notes, a.IdempotencyKey)
	saved, err := scanAppointment(row)
	switch {
	case db.IsUniqueViolation(err, activeSlotConstraint):
		return ErrSlotTaken
	case db.IsUniqueViolation(err, idempotencyConstraint):
		return ErrDuplicateKey
	case err != nil:
		return fmt.Errorf("insert appointment: %w", err)
	}
	*a = *saved
	return nil
}

func (r *ledgerPG) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+appointmentCols+` FROM appointments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

func (r *ledgerPG) GetByIdempotencyKey(ctx context.Context, patientID uuid.UUID, key string) (*Appointment, error) {
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+appointmentCols+` FROM appointments WHERE patient_id = $1 AND idempotency_key = $2`,
		patientID, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment by idempotency key: %w", err)
	}
	return a, nil
}

func (r *ledgerPG) Transition(ctx context.Context, id uuid.UUID, from, to Status, by *uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments
		SET status = $3, cancelled_by = COALESCE($4, cancelled_by), updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+appointmentCols,
		id, string(from), string(to), by))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrStaleStatus
	}
	if err != nil {
		return nil, fmt.Errorf("transition appointment: %w", err)
	}
	return a, nil
}

func (r *ledgerPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if f.DoctorID != nil {
		add("doctor_id = $%d", *f.DoctorID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.ActiveOnly {
		conds = append(conds, "status IN ('pending', 'confirmed')")
	}
	if !f.From.IsZero() {
		add("appointment_date >= $%d", db.PGDate(f.From))
	}
	if !f.To.IsZero() {
		add("appointment_date <= $%d", db.PGDate(f.To))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointments`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	var lim interface{} // NULL means no limit
	if limit > 0 {
		lim = limit
	}
	args = append(args, lim, offset)
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+appointmentCols+` FROM appointments`+where+
		fmt.Sprintf(` ORDER BY appointment_date, appointment_time, created_at LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan appointment: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate appointments: %w", err)
	}
	return out, total, nil
}
