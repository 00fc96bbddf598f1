package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medcenter/portal/internal/platform/apperr"
)

// Claims are the token claims the portal reads. Roles may arrive at the top
// level or under app_metadata, depending on the identity provider.
type Claims struct {
	jwt.RegisteredClaims
	Roles       []string `json:"roles"`
	AppMetadata struct {
		Roles []string `json:"roles"`
		Role  string   `json:"role"`
	} `json:"app_metadata"`
}

func (c *Claims) roles() []string {
	out := append([]string{}, c.Roles...)
	out = append(out, c.AppMetadata.Roles...)
	if c.AppMetadata.Role != "" {
		out = append(out, c.AppMetadata.Role)
	}
	return out
}

type JWTConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
	// SigningKey selects HS256 validation with a shared secret.
	SigningKey []byte
	// Skipper marks routes that may be called anonymously. A token sent to
	// such a route is still validated.
	Skipper func(c echo.Context) bool
}

func unauthorized(msg string) error {
	return apperr.ToHTTP(apperr.Unauthenticated(msg))
}

func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	var keyFunc jwt.Keyfunc
	if len(cfg.SigningKey) > 0 {
		opts = append(opts, jwt.WithValidMethods([]string{"HS256"}))
		keyFunc = func(*jwt.Token) (interface{}, error) { return cfg.SigningKey, nil }
	} else {
		url := cfg.JWKSURL
		if url == "" && cfg.Issuer != "" {
			url = strings.TrimSuffix(cfg.Issuer, "/") + "/.well-known/jwks.json"
		}
		opts = append(opts, jwt.WithValidMethods([]string{"RS256"}))
		keyFunc = NewJWKSCache(url, defaultJWKSCacheTTL).Keyfunc
	}
	parser := jwt.NewParser(opts...)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				if cfg.Skipper != nil && cfg.Skipper(c) {
					return next(c)
				}
				return unauthorized("missing authorization header")
			}

			scheme, tokenStr, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(tokenStr) == "" {
				return unauthorized("invalid authorization format")
			}

			claims := &Claims{}
			token, err := parser.ParseWithClaims(strings.TrimSpace(tokenStr), claims, keyFunc)
			if err != nil || !token.Valid {
				return unauthorized("invalid token")
			}

			userID, err := uuid.Parse(claims.Subject)
			if err != nil {
				return unauthorized("token subject is not a user id")
			}

			id := Identity{UserID: userID, Role: HighestRole(claims.roles())}
			c.SetRequest(c.Request().WithContext(WithIdentity(c.Request().Context(), id)))
			return next(c)
		}
	}
}

// DevUserID is the identity used by DevAuthMiddleware when no header is set.
var DevUserID = uuid.MustParse("00000000-0000-0000-0000-00000000d0e5")

// DevAuthMiddleware trusts X-Dev-User and X-Dev-Role headers so that local
// clients can act as any patient, doctor or admin. Without headers every
// request is the dev admin. Never enabled in production.
func DevAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := Identity{UserID: DevUserID, Role: RoleAdmin}

			if v := c.Request().Header.Get("X-Dev-User"); v != "" {
				uid, err := uuid.Parse(v)
				if err != nil {
					return unauthorized("X-Dev-User must be a UUID")
				}
				id.UserID = uid
				id.Role = RolePatient
			}
			if v := c.Request().Header.Get("X-Dev-Role"); v != "" {
				role, ok := ParseRole(v)
				if !ok {
					return unauthorized("unknown X-Dev-Role")
				}
				id.Role = role
			}

			c.SetRequest(c.Request().WithContext(WithIdentity(c.Request().Context(), id)))
			return next(c)
		}
	}
}
