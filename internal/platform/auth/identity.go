package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/medcenter/portal/internal/platform/apperr"
)

// Role is the portal role of an authenticated user.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// rank orders roles so that a user holding several gets the highest.
var rank = map[Role]int{RolePatient: 1, RoleDoctor: 2, RoleAdmin: 3}

// ParseRole returns the role named s and whether it is known.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	_, ok := rank[r]
	return r, ok
}

// HighestRole picks the strongest recognised role. Users without any
// recognised role are patients.
func HighestRole(roles []string) Role {
	best := RolePatient
	for _, s := range roles {
		if r, ok := ParseRole(s); ok && rank[r] > rank[best] {
			best = r
		}
	}
	return best
}

// Identity is the authenticated caller.
type Identity struct {
	UserID uuid.UUID `json:"user_id"`
	Role   Role      `json:"role"`
}

func (i Identity) IsAdmin() bool   { return i.Role == RoleAdmin }
func (i Identity) IsDoctor() bool  { return i.Role == RoleDoctor }
func (i Identity) IsPatient() bool { return i.Role == RolePatient }

type contextKey string

const identityKey contextKey = "identity"

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the caller stored in ctx. It fails with an
// unauthenticated error when the request carries no identity.
func IdentityFrom(ctx context.Context) (Identity, error) {
	id, ok := ctx.Value(identityKey).(Identity)
	if !ok || id.UserID == uuid.Nil {
		return Identity{}, apperr.Unauthenticated("authentication required")
	}
	return id, nil
}

// UserIDFromContext returns the caller's id as a string, or "".
func UserIDFromContext(ctx context.Context) string {
	id, err := IdentityFrom(ctx)
	if err != nil {
		return ""
	}
	return id.UserID.String()
}

// RoleFromContext returns the caller's role, or "".
func RoleFromContext(ctx context.Context) Role {
	id, _ := ctx.Value(identityKey).(Identity)
	return id.Role
}
