package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medcenter/portal/internal/platform/db"
)

type scheduleRepoPG struct{ pool *pgxpool.Pool }

func NewScheduleRepoPG(pool *pgxpool.Pool) ScheduleRepository { return &scheduleRepoPG{pool: pool} }

func (r *scheduleRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const entryCols = `id, doctor_id, day_of_week, start_time, end_time, created_at`

func scanEntry(row pgx.Row) (*ScheduleEntry, error) {
	var (
		e          ScheduleEntry
		day        int16
		start, end pgtype.Time
	)
	if err := row.Scan(&e.ID, &e.DoctorID, &day, &start, &end, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.DayOfWeek = time.Weekday(day)
	e.StartTime = db.CivilTime(start)
	e.EndTime = db.CivilTime(end)
	return &e, nil
}

// Create serializes writers per doctor and day with an advisory lock, then
// checks for overlap before inserting.
func (r *scheduleRepoPG) Create(ctx context.Context, e *ScheduleEntry) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		key := fmt.Sprintf("sched:%s:%d", e.DoctorID, e.DayOfWeek)
		if err := db.AdvisoryXactLock(ctx, key); err != nil {
			return err
		}

		var overlapping bool
		err := r.conn(ctx).QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM doctor_schedules
				WHERE doctor_id = $1 AND day_of_week = $2
				  AND start_time < $4 AND $3 < end_time)`,
			e.DoctorID, int16(e.DayOfWeek), db.PGTime(e.StartTime), db.PGTime(e.EndTime),
		).Scan(&overlapping)
		if err != nil {
			return fmt.Errorf("check schedule overlap: %w", err)
		}
		if overlapping {
			return ErrOverlap
		}

		e.ID = uuid.New()
		err = r.conn(ctx).QueryRow(ctx, `
			INSERT INTO doctor_schedules (id, doctor_id, day_of_week, start_time, end_time)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at`,
			e.ID, e.DoctorID, int16(e.DayOfWeek), db.PGTime(e.StartTime), db.PGTime(e.EndTime),
		).Scan(&e.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert schedule entry: %w", err)
		}
		return nil
	})
}

func (r *scheduleRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*ScheduleEntry, error) {
	e, err := scanEntry(r.conn(ctx).QueryRow(ctx, `SELECT `+entryCols+` FROM doctor_schedules WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule entry: %w", err)
	}
	return e, nil
}

func (r *scheduleRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM doctor_schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete schedule entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *scheduleRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*ScheduleEntry, error) {
	return r.list(ctx, `SELECT `+entryCols+` FROM doctor_schedules
		WHERE doctor_id = $1 ORDER BY day_of_week, start_time`, doctorID)
}

func (r *scheduleRepoPG) ListByDoctorAndDay(ctx context.Context, doctorID uuid.UUID, day time.Weekday) ([]*ScheduleEntry, error) {
	return r.list(ctx, `SELECT `+entryCols+` FROM doctor_schedules
		WHERE doctor_id = $1 AND day_of_week = $2 ORDER BY start_time`, doctorID, int16(day))
}

func (r *scheduleRepoPG) list(ctx context.Context, sql string, args ...interface{}) ([]*ScheduleEntry, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list schedule entries: %w", err)
	}
	defer rows.Close()

	var items []*ScheduleEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule entry: %w", err)
		}
		items = append(items, e)
	}
	return items, rows.Err()
}
