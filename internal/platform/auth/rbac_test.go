package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func contextWithRole(role Role) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := WithIdentity(req.Context(), Identity{UserID: uuid.New(), Role: role})
	return req.WithContext(ctx)
}

func callGuard(mw echo.MiddlewareFunc, req *http.Request) error {
	c := echo.New().NewContext(req, httptest.NewRecorder())
	return mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c)
}

func TestRequireRole_Allowed(t *testing.T) {
	if err := callGuard(RequireRole(RoleDoctor), contextWithRole(RoleDoctor)); err != nil {
		t.Errorf("expected doctor to pass, got %v", err)
	}
}

func TestRequireRole_Denied(t *testing.T) {
	err := callGuard(RequireRole(RoleDoctor), contextWithRole(RolePatient))
	assertStatus(t, err, http.StatusForbidden)
}

func TestRequireRole_AdminBypass(t *testing.T) {
	if err := callGuard(RequireRole(RoleDoctor), contextWithRole(RoleAdmin)); err != nil {
		t.Errorf("expected admin to pass, got %v", err)
	}
}

func TestRequireRole_Anonymous(t *testing.T) {
	err := callGuard(RequireRole(RolePatient), httptest.NewRequest(http.MethodGet, "/", nil))
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestRequireAuth(t *testing.T) {
	if err := callGuard(RequireAuth(), contextWithRole(RolePatient)); err != nil {
		t.Errorf("expected pass, got %v", err)
	}
	assertStatus(t, callGuard(RequireAuth(), httptest.NewRequest(http.MethodGet, "/", nil)), http.StatusUnauthorized)
}

func TestIdentityFrom_Missing(t *testing.T) {
	if _, err := IdentityFrom(context.Background()); err == nil {
		t.Error("expected error for missing identity")
	}
	if UserIDFromContext(context.Background()) != "" {
		t.Error("expected empty user id")
	}
}

func TestHighestRole(t *testing.T) {
	cases := []struct {
		in   []string
		want Role
	}{
		{nil, RolePatient},
		{[]string{"authenticated"}, RolePatient},
		{[]string{"doctor", "patient"}, RoleDoctor},
		{[]string{"patient", "admin", "doctor"}, RoleAdmin},
	}
	for _, tc := range cases {
		if got := HighestRole(tc.in); got != tc.want {
			t.Errorf("HighestRole(%v) = %s, want %s", tc.in, got, tc.want)
		}
	}
}
