package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medcenter/portal/internal/config"
	"github.com/medcenter/portal/internal/platform/auth"
	"github.com/medcenter/portal/internal/platform/civil"
	"github.com/medcenter/portal/internal/platform/db"
)

func times(s ...string) []civil.Time {
	out := make([]civil.Time, len(s))
	for i, v := range s {
		out[i] = civil.MustParseTime(v)
	}
	return out
}

func TestFreeTimes(t *testing.T) {
	got := freeTimes(times("09:00", "09:30", "10:00"), times("09:30"))
	if joinTimes(got) != "09:00 10:00" {
		t.Errorf("freeTimes = %q, want %q", joinTimes(got), "09:00 10:00")
	}

	if got := freeTimes(nil, times("09:00")); len(got) != 0 {
		t.Errorf("expected no free times without a schedule, got %v", got)
	}
}

func TestPrintSlots(t *testing.T) {
	var buf bytes.Buffer
	date := civil.Date{Year: 2026, Month: time.March, Day: 2}
	printSlots(&buf, date, times("09:00", "09:30"), times("09:00"))

	want := "2026-03-02 (Monday)\n" +
		"generated  09:00 09:30\n" +
		"occupied   09:00\n" +
		"free       09:30\n"
	if buf.String() != want {
		t.Errorf("printSlots output:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestPrintSlots_EmptyDay(t *testing.T) {
	var buf bytes.Buffer
	printSlots(&buf, civil.Date{Year: 2026, Month: time.March, Day: 3}, nil, nil)
	if !strings.Contains(buf.String(), "free       -\n") {
		t.Errorf("expected a dash for an empty day, got:\n%s", buf.String())
	}
}

func TestPrintMigrationStatus(t *testing.T) {
	applied := time.Date(2026, time.January, 5, 10, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	printMigrationStatus(&buf, []db.MigrationStatus{
		{Version: 1, Name: "doctor_profiles", Applied: true, AppliedAt: &applied},
		{Version: 2, Name: "doctor_schedules"},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header, rule and 2 rows, got %d lines", len(lines))
	}
	if !strings.Contains(lines[2], "applied") || !strings.Contains(lines[2], "2026-01-05 10:00:00") {
		t.Errorf("unexpected applied row: %q", lines[2])
	}
	if !strings.Contains(lines[3], "pending") {
		t.Errorf("unexpected pending row: %q", lines[3])
	}
}

func TestRateLimitConfig(t *testing.T) {
	rl := rateLimitConfig(&config.Config{})
	if rl.RequestsPerSecond != 100 || rl.BurstSize != 200 {
		t.Errorf("expected defaults, got %+v", rl)
	}

	rl = rateLimitConfig(&config.Config{RateLimitRPS: 5, RateLimitBurst: 10})
	if rl.RequestsPerSecond != 5 || rl.BurstSize != 10 {
		t.Errorf("expected configured values, got %+v", rl)
	}
	if rl.IdleTTL <= 0 {
		t.Error("expected the default idle TTL to be kept")
	}
}

func TestBodyLimitOverrides(t *testing.T) {
	limit, ok := bodyLimitOverrides()[avatarRoute]
	if !ok {
		t.Fatal("expected an override for the avatar upload route")
	}
	if limit <= defaultBodyLimit {
		t.Errorf("avatar limit %d should exceed the default %d", limit, defaultBodyLimit)
	}
}

func serveWithAuth(cfg *config.Config, req *http.Request) (int, auth.Identity) {
	e := echo.New()
	var seen auth.Identity
	e.GET("/api/v1/appointments", func(c echo.Context) error {
		seen, _ = auth.IdentityFrom(c.Request().Context())
		return c.NoContent(http.StatusNoContent)
	}, authMiddleware(cfg))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec.Code, seen
}

func TestAuthMiddleware_DevelopmentMode(t *testing.T) {
	cfg := &config.Config{Env: "development"}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)

	code, id := serveWithAuth(cfg, req)
	if code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", code)
	}
	if id.Role != auth.RoleAdmin {
		t.Errorf("expected the dev admin identity, got %+v", id)
	}
}

func TestAuthMiddleware_ExternalModeRequiresToken(t *testing.T) {
	cfg := &config.Config{Env: "production", AuthJWTSecret: "secret"}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)

	code, _ := serveWithAuth(cfg, req)
	if code != http.StatusUnauthorized {
		t.Errorf("expected 401 without a bearer token, got %d", code)
	}
}
