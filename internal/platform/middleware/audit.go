package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medcenter/portal/internal/platform/auth"
)

// AuditEntry describes one access to an /api/v1 resource.
type AuditEntry struct {
	RequestID  string
	UserID     string
	Role       string
	Action     string
	Resource   string
	ResourceID string
	Method     string
	Path       string
	IPAddress  string
	StatusCode int
}

// Audit logs an "access" event for every /api/v1 request after it completes.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !strings.HasPrefix(req.URL.Path, "/api/v1/") {
				return next(c)
			}

			err := next(c)

			entry := buildAuditEntry(c, err)
			logger.Info().
				Str("type", "access").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Str("role", entry.Role).
				Str("action", entry.Action).
				Str("resource", entry.Resource).
				Str("resource_id", entry.ResourceID).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("access")

			return err
		}
	}
}

func buildAuditEntry(c echo.Context, err error) AuditEntry {
	req := c.Request()
	entry := AuditEntry{
		UserID:     auth.UserIDFromContext(req.Context()),
		Role:       string(auth.RoleFromContext(req.Context())),
		Action:     httpMethodToAction(req.Method),
		Method:     req.Method,
		Path:       req.URL.Path,
		IPAddress:  c.RealIP(),
		StatusCode: c.Response().Status,
		ResourceID: c.Param("id"),
	}
	if he, ok := err.(*echo.HTTPError); ok {
		entry.StatusCode = he.Code
	}
	entry.RequestID, _ = c.Get("request_id").(string)

	segments := strings.Split(strings.TrimPrefix(req.URL.Path, "/api/v1/"), "/")
	entry.Resource = "unknown"
	if len(segments) > 0 && segments[0] != "" {
		entry.Resource = segments[0]
	}
	// Lifecycle actions: POST /api/v1/appointments/:id/confirm
	if req.Method == http.MethodPost && len(segments) == 3 && segments[0] == "appointments" {
		entry.Action = segments[2]
	}
	return entry
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}
