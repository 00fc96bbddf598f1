package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims *Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func validClaims(sub uuid.UUID, roles ...string) *Claims {
	c := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	c.AppMetadata.Roles = roles
	return c
}

// runMiddleware executes mw against a request and returns the identity seen
// by the handler (if it was reached) and the middleware error.
func runMiddleware(t *testing.T, mw echo.MiddlewareFunc, req *http.Request, path string) (*Identity, error) {
	t.Helper()
	e := echo.New()
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath(path)

	var seen *Identity
	err := mw(func(c echo.Context) error {
		if id, err := IdentityFrom(c.Request().Context()); err == nil {
			seen = &id
		} else {
			seen = &Identity{}
		}
		return c.String(http.StatusOK, "ok")
	})(c)
	return seen, err
}

func assertStatus(t *testing.T, err error, code int) {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T (%v)", err, err)
	}
	if he.Code != code {
		t.Errorf("expected %d, got %d", code, he.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	_, err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}),
		httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil), "/api/v1/appointments")
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	for _, header := range []string{"Token abc123", "Bearer", "Bearer ", "Basic dXNlcjpwYXNz"} {
		t.Run(header, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", header)
			_, err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), req, "/")
			assertStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	uid := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+createTestToken(t, validClaims(uid, "doctor"), testSigningKey))

	id, err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), req, "/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == nil || id.UserID != uid || id.Role != RoleDoctor {
		t.Errorf("unexpected identity: %+v", id)
	}
}

func TestJWTMiddleware_HighestRoleWins(t *testing.T) {
	uid := uuid.New()
	claims := validClaims(uid, "patient")
	claims.Roles = []string{"admin", "unknown"}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+createTestToken(t, claims, testSigningKey))

	id, err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), req, "/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.Role != RoleAdmin {
		t.Errorf("expected admin, got %s", id.Role)
	}
}

func TestJWTMiddleware_NoRoleMeansPatient(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+createTestToken(t, validClaims(uuid.New()), testSigningKey))

	id, err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), req, "/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.Role != RolePatient {
		t.Errorf("expected patient, got %s", id.Role)
	}
}

func TestJWTMiddleware_ExpiredToken(t *testing.T) {
	claims := validClaims(uuid.New())
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+createTestToken(t, claims, testSigningKey))

	_, err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), req, "/")
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_WrongKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+createTestToken(t, validClaims(uuid.New()), []byte("other")))

	_, err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), req, "/")
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_NonUUIDSubject(t *testing.T) {
	claims := validClaims(uuid.New())
	claims.Subject = "not-a-uuid"
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+createTestToken(t, claims, testSigningKey))

	_, err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), req, "/")
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_IssuerMismatch(t *testing.T) {
	claims := validClaims(uuid.New())
	claims.Issuer = "https://evil.example"
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+createTestToken(t, claims, testSigningKey))

	mw := JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Issuer: "https://auth.example"})
	_, err := runMiddleware(t, mw, req, "/")
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestDevAuthMiddleware_DefaultsToAdmin(t *testing.T) {
	id, err := runMiddleware(t, DevAuthMiddleware(), httptest.NewRequest(http.MethodGet, "/", nil), "/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.UserID != DevUserID || id.Role != RoleAdmin {
		t.Errorf("unexpected identity: %+v", id)
	}
}

func TestDevAuthMiddleware_Headers(t *testing.T) {
	uid := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Dev-User", uid.String())
	req.Header.Set("X-Dev-Role", "doctor")

	id, err := runMiddleware(t, DevAuthMiddleware(), req, "/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.UserID != uid || id.Role != RoleDoctor {
		t.Errorf("unexpected identity: %+v", id)
	}
}

func TestDevAuthMiddleware_UserWithoutRoleIsPatient(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Dev-User", uuid.New().String())

	id, err := runMiddleware(t, DevAuthMiddleware(), req, "/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.Role != RolePatient {
		t.Errorf("expected patient, got %s", id.Role)
	}
}

func TestDevAuthMiddleware_BadHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Dev-Role", "superuser")
	_, err := runMiddleware(t, DevAuthMiddleware(), req, "/")
	assertStatus(t, err, http.StatusUnauthorized)
}
