package doctors

import (
	"context"

	"github.com/google/uuid"
)

// ProfileRepository persists doctor profiles. Get returns ErrNotFound for a
// missing profile.
type ProfileRepository interface {
	Upsert(ctx context.Context, p *Profile) error
	Get(ctx context.Context, id uuid.UUID) (*Profile, error)
	SetPublished(ctx context.Context, id uuid.UUID, published bool) error
	// SetPhoto stores blobID (nil clears it) and returns the previous value.
	SetPhoto(ctx context.Context, id uuid.UUID, blobID *uuid.UUID) (previous *uuid.UUID, err error)
	ListPublished(ctx context.Context) ([]*Profile, error)
}
