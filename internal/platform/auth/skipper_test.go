package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func skipperFor(method, path string) bool {
	c := echo.New().NewContext(httptest.NewRequest(method, path, nil), httptest.NewRecorder())
	c.SetPath(path)
	return AuthSkipper(c)
}

func TestAuthSkipper(t *testing.T) {
	cases := []struct {
		method, path string
		want         bool
	}{
		{http.MethodGet, "/health", true},
		{http.MethodGet, "/metrics", true},
		{http.MethodGet, "/api/v1/doctors", true},
		{http.MethodGet, "/api/v1/doctors/:id/availability", true},
		{http.MethodPost, "/api/v1/doctors/:id/schedule", false},
		{http.MethodGet, "/api/v1/appointments", false},
		{http.MethodPost, "/api/v1/appointments", false},
	}
	for _, tc := range cases {
		if got := skipperFor(tc.method, tc.path); got != tc.want {
			t.Errorf("%s %s: got %v, want %v", tc.method, tc.path, got, tc.want)
		}
	}
}

func TestJWTMiddleware_PublicRouteAnonymous(t *testing.T) {
	mw := JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Skipper: AuthSkipper})
	id, err := runMiddleware(t, mw, httptest.NewRequest(http.MethodGet, "/api/v1/doctors", nil), "/api/v1/doctors")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == nil || id.Role != "" {
		t.Errorf("expected anonymous request, got %+v", id)
	}
}

func TestJWTMiddleware_PublicRouteStillValidatesToken(t *testing.T) {
	mw := JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Skipper: AuthSkipper})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/doctors", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	_, err := runMiddleware(t, mw, req, "/api/v1/doctors")
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestIsPublicPath(t *testing.T) {
	if !IsPublicPath("/health/db") || IsPublicPath("/api/v1/appointments") {
		t.Error("unexpected IsPublicPath result")
	}
}
