package db

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/medcenter/portal/internal/platform/civil"
)

// PGDate converts a civil date for a DATE parameter.
func PGDate(d civil.Date) pgtype.Date {
	return pgtype.Date{Time: d.In(time.UTC), Valid: true}
}

// CivilDate converts a scanned DATE column.
func CivilDate(d pgtype.Date) civil.Date {
	if !d.Valid {
		return civil.Date{}
	}
	return civil.DateOf(d.Time)
}

// PGTime converts a civil time for a TIME parameter.
func PGTime(t civil.Time) pgtype.Time {
	return pgtype.Time{Microseconds: int64(t.Minutes()) * int64(time.Minute/time.Microsecond), Valid: true}
}

// CivilTime converts a scanned TIME column, truncating to the minute.
func CivilTime(t pgtype.Time) civil.Time {
	if !t.Valid {
		return civil.Time{}
	}
	return civil.FromMinutes(int(t.Microseconds / int64(time.Minute/time.Microsecond)))
}
