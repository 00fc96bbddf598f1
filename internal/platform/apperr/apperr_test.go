package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestIs_MatchesByKind(t *testing.T) {
	err := fmt.Errorf("reserve: %w", Conflict("slot already booked"))
	if !errors.Is(err, ErrConflict) {
		t.Error("expected wrapped conflict to match ErrConflict")
	}
	if errors.Is(err, ErrValidation) {
		t.Error("conflict must not match ErrValidation")
	}
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{Validation("bad"), KindValidation},
		{Forbidden("no"), KindForbidden},
		{Transient("later", errors.New("conn reset")), KindTransient},
		{context.DeadlineExceeded, KindTransient},
		{errors.New("boom"), KindInternal},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Errorf("KindOf(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindConflict:        http.StatusConflict,
		KindValidation:      http.StatusUnprocessableEntity,
		KindForbidden:       http.StatusForbidden,
		KindUnauthenticated: http.StatusUnauthorized,
		KindNotFound:        http.StatusNotFound,
		KindTransient:       http.StatusServiceUnavailable,
		KindInternal:        http.StatusInternalServerError,
	}
	for k, want := range cases {
		if got := HTTPStatus(k); got != want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", k, got, want)
		}
	}
}

func TestToHTTP_HidesInternalCause(t *testing.T) {
	he := ToHTTP(errors.New("password=secret"))
	body, ok := he.Message.(Body)
	if !ok {
		t.Fatalf("expected Body message, got %T", he.Message)
	}
	if body.Message != "internal error" {
		t.Errorf("internal cause leaked: %q", body.Message)
	}
}

func TestRespond_TransientSetsRetryAfter(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)

	err := Respond(c, Transient("outcome unknown", context.DeadlineExceeded))
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T", err)
	}
	if he.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", he.Code)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Error("expected Retry-After header")
	}
}
