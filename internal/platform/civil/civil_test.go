package civil

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-01-06")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Year != 2025 || d.Month != time.January || d.Day != 6 {
		t.Errorf("unexpected date: %+v", d)
	}
	if d.String() != "2025-01-06" {
		t.Errorf("expected 2025-01-06, got %s", d.String())
	}
}

func TestParseDate_Invalid(t *testing.T) {
	for _, s := range []string{"", "2025-13-01", "06.01.2025", "2025-02-30"} {
		if _, err := ParseDate(s); err == nil {
			t.Errorf("expected error for %q", s)
		}
	}
}

func TestDate_Weekday_IndependentOfZone(t *testing.T) {
	// 2025-01-06 is a Monday everywhere.
	d := Date{Year: 2025, Month: time.January, Day: 6}
	if d.Weekday() != time.Monday {
		t.Errorf("expected Monday, got %s", d.Weekday())
	}

	// Late evening in a zone west of UTC is already the next day in UTC;
	// DateOf must keep the local calendar date.
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata not available")
	}
	local := time.Date(2025, time.January, 6, 23, 30, 0, 0, ny)
	if got := DateOf(local); got != d {
		t.Errorf("expected %s, got %s", d, got)
	}
	if DateOf(local).Weekday() != time.Monday {
		t.Error("weekday shifted by time zone")
	}
}

func TestDate_CompareAndAddDays(t *testing.T) {
	a := Date{Year: 2024, Month: time.December, Day: 31}
	b := a.AddDays(1)
	if b != (Date{Year: 2025, Month: time.January, Day: 1}) {
		t.Errorf("unexpected AddDays result: %s", b)
	}
	if !a.Before(b) || !b.After(a) || a.Compare(a) != 0 {
		t.Error("comparison mismatch")
	}
}

func TestParseTime(t *testing.T) {
	cases := map[string]Time{
		"09:00":    {Hour: 9},
		"09:30:00": {Hour: 9, Minute: 30},
		"23:59":    {Hour: 23, Minute: 59},
		"24:00":    EndOfDay,
		"24:00:00": EndOfDay,
	}
	for in, want := range cases {
		got, err := ParseTime(in)
		if err != nil {
			t.Fatalf("ParseTime(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseTime(%q) = %v, want %v", in, got, want)
		}
	}
	for _, bad := range []string{"9", "24:30", "25:00", "09:30:15", "ab:cd"} {
		if _, err := ParseTime(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestEndOfDay(t *testing.T) {
	if EndOfDay.Valid() {
		t.Error("24:00 is not a time of day")
	}
	if !EndOfDay.ValidEnd() || !MustParseTime("23:30").ValidEnd() {
		t.Error("expected 24:00 and 23:30 to be valid window ends")
	}
	if EndOfDay.Minutes() != 24*60 || EndOfDay.String() != "24:00" {
		t.Errorf("unexpected end of day %s (%d)", EndOfDay, EndOfDay.Minutes())
	}
	if !MustParseTime("23:59").Before(EndOfDay) {
		t.Error("expected 23:59 before 24:00")
	}
}

func TestTime_AddAndMinutes(t *testing.T) {
	tm := MustParseTime("09:30")
	if tm.Minutes() != 570 {
		t.Errorf("expected 570, got %d", tm.Minutes())
	}
	if got := tm.Add(30 * time.Minute); got.String() != "10:00" {
		t.Errorf("expected 10:00, got %s", got)
	}
	if !MustParseTime("09:00").Before(tm) {
		t.Error("expected 09:00 before 09:30")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	type payload struct {
		Date Date `json:"date"`
		Time Time `json:"time"`
	}
	var p payload
	if err := json.Unmarshal([]byte(`{"date":"2025-01-06","time":"09:30"}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	out, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"date":"2025-01-06","time":"09:30"}` {
		t.Errorf("unexpected JSON: %s", out)
	}
}

func TestOn(t *testing.T) {
	loc := time.FixedZone("clinic", 3*3600)
	at := On(Date{Year: 2025, Month: time.January, Day: 6}, MustParseTime("09:30"), loc)
	if at.Hour() != 9 || at.Minute() != 30 || at.Location() != loc {
		t.Errorf("unexpected instant: %v", at)
	}
}
