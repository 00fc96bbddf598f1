package auth

import (
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/medcenter/portal/internal/platform/apperr"
)

// RequireRole returns middleware that admits callers holding one of roles.
// Admins always pass.
func RequireRole(roles ...Role) echo.MiddlewareFunc {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	denied := apperr.Forbidden(fmt.Sprintf("required role: %s", strings.Join(names, " or ")))

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, err := IdentityFrom(c.Request().Context())
			if err != nil {
				return apperr.ToHTTP(err)
			}
			if id.IsAdmin() {
				return next(c)
			}
			for _, r := range roles {
				if id.Role == r {
					return next(c)
				}
			}
			return apperr.ToHTTP(denied)
		}
	}
}

// RequireAuth admits any authenticated caller.
func RequireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, err := IdentityFrom(c.Request().Context()); err != nil {
				return apperr.ToHTTP(err)
			}
			return next(c)
		}
	}
}
