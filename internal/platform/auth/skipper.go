package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// publicPaths lists infrastructure endpoints that bypass authentication.
var publicPaths = map[string]bool{
	"/health":    true,
	"/health/db": true,
	"/metrics":   true,
}

// publicReads lists route patterns that anonymous visitors may GET: the
// doctor directory, schedules and slot availability shown on public pages.
var publicReads = map[string]bool{
	"/api/v1/doctors":                  true,
	"/api/v1/doctors/:id":              true,
	"/api/v1/doctors/:id/avatar":       true,
	"/api/v1/doctors/:id/schedule":     true,
	"/api/v1/doctors/:id/slot-times":   true,
	"/api/v1/doctors/:id/occupied":     true,
	"/api/v1/doctors/:id/availability": true,
	"/ws":                              true,
}

// AuthSkipper reports whether the matched route may be called without a
// bearer token.
func AuthSkipper(c echo.Context) bool {
	if publicPaths[c.Path()] {
		return true
	}
	method := c.Request().Method
	return (method == http.MethodGet || method == http.MethodHead) && publicReads[c.Path()]
}

// IsPublicPath reports whether path is a public infrastructure endpoint.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}
