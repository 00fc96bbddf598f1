// Package civil provides zone-free calendar dates and wall-clock times.
// Appointment dates and slot times are civil values: the weekday of a Date
// is a property of the date itself and never depends on a time zone.
package civil

import (
	"fmt"
	"time"
)

// Date is a calendar date without a time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return DateOf(t), nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// In returns midnight of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// Weekday returns the day of week, Sunday == 0.
func (d Date) Weekday() time.Weekday {
	return d.In(time.UTC).Weekday()
}

// AddDays returns d shifted by n days.
func (d Date) AddDays(n int) Date {
	return DateOf(d.In(time.UTC).AddDate(0, 0, n))
}

// Compare returns -1, 0 or +1 depending on whether d is before, equal to
// or after other.
func (d Date) Compare(other Date) int {
	switch {
	case d.Year != other.Year:
		return cmpInt(d.Year, other.Year)
	case d.Month != other.Month:
		return cmpInt(int(d.Month), int(other.Month))
	default:
		return cmpInt(d.Day, other.Day)
	}
}

func (d Date) Before(other Date) bool { return d.Compare(other) < 0 }
func (d Date) After(other Date) bool  { return d.Compare(other) > 0 }

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Time is a wall-clock time of day with minute precision.
type Time struct {
	Hour   int
	Minute int
}

// TimeOf returns the wall-clock time of t, truncated to the minute.
func TimeOf(t time.Time) Time {
	return Time{Hour: t.Hour(), Minute: t.Minute()}
}

// FromMinutes builds a Time from minutes past midnight.
func FromMinutes(m int) Time {
	return Time{Hour: m / 60, Minute: m % 60}
}

// EndOfDay is 24:00. It only closes a window; no slot starts there.
var EndOfDay = Time{Hour: 24}

// ParseTime accepts HH:MM and HH:MM:SS. Seconds must be zero. "24:00"
// parses as EndOfDay.
func ParseTime(s string) (Time, error) {
	if s == "24:00" || s == "24:00:00" {
		return EndOfDay, nil
	}
	layout := "15:04"
	if len(s) == len("15:04:05") {
		layout = time.TimeOnly
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return Time{}, fmt.Errorf("invalid time %q: expected HH:MM", s)
	}
	if t.Second() != 0 {
		return Time{}, fmt.Errorf("invalid time %q: seconds are not supported", s)
	}
	return TimeOf(t), nil
}

// MustParseTime is ParseTime for constants; it panics on malformed input.
func MustParseTime(s string) Time {
	t, err := ParseTime(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t Time) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Minutes returns minutes past midnight.
func (t Time) Minutes() int {
	return t.Hour*60 + t.Minute
}

// Add returns t shifted by d, which must keep the result within the day.
func (t Time) Add(d time.Duration) Time {
	return FromMinutes(t.Minutes() + int(d/time.Minute))
}

// Valid reports whether t is a time of day in [00:00, 23:59].
func (t Time) Valid() bool {
	return t.Hour >= 0 && t.Hour < 24 && t.Minute >= 0 && t.Minute < 60
}

// ValidEnd is Valid extended with EndOfDay.
func (t Time) ValidEnd() bool {
	return t.Valid() || t == EndOfDay
}

func (t Time) Compare(other Time) int {
	return cmpInt(t.Minutes(), other.Minutes())
}

func (t Time) Before(other Time) bool { return t.Compare(other) < 0 }

func (t Time) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Time) UnmarshalText(b []byte) error {
	parsed, err := ParseTime(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// On combines d and t into an instant in loc.
func On(d Date, t Time, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, t.Hour, t.Minute, 0, 0, loc)
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
