package doctors

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medcenter/portal/internal/platform/apperr"
	"github.com/medcenter/portal/internal/platform/auth"
	"github.com/medcenter/portal/internal/platform/blobstore"
)

type fixture struct {
	svc      *Service
	profiles *MemoryProfiles
	blobs    *blobstore.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	roster, err := NewRosterDirectory()
	if err != nil {
		t.Fatal(err)
	}
	profiles := NewMemoryProfiles()
	blobs := blobstore.NewMemoryStore(blobstore.AvatarPolicy)
	dir := NewMergedDirectory(roster, NewProfileDirectory(profiles))
	return &fixture{
		svc:      NewService(dir, profiles, blobs, zerolog.Nop()),
		profiles: profiles,
		blobs:    blobs,
	}
}

func as(role auth.Role, id uuid.UUID) context.Context {
	return auth.WithIdentity(context.Background(), auth.Identity{UserID: id, Role: role})
}

var validInput = ProfileInput{
	FullName:    "Pavel Orlov",
	Specialty:   "Dermatologist",
	Department:  "Dermatology",
	Experience:  7,
	Category:    "first",
	Education:   "Moscow State University",
	Description: "Skin conditions in adults and children.",
}

func TestService_UpsertProfile_Authorization(t *testing.T) {
	f := newFixture(t)
	doctor := uuid.New()

	tests := []struct {
		name    string
		ctx     context.Context
		wantErr error
	}{
		{"anonymous", context.Background(), apperr.ErrUnauthenticated},
		{"patient", as(auth.RolePatient, doctor), apperr.ErrForbidden},
		{"other doctor", as(auth.RoleDoctor, uuid.New()), apperr.ErrForbidden},
		{"self", as(auth.RoleDoctor, doctor), nil},
		{"admin", as(auth.RoleAdmin, uuid.New()), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.UpsertProfile(tt.ctx, doctor, validInput)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestService_PublishMakesDoctorVisible(t *testing.T) {
	f := newFixture(t)
	doctor := uuid.New()
	ctx := as(auth.RoleDoctor, doctor)

	if _, err := f.svc.UpsertProfile(ctx, doctor, validInput); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Get(context.Background(), doctor); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("unpublished profile should be invisible, got %v", err)
	}

	if err := f.svc.SetPublished(ctx, doctor, true); err != nil {
		t.Fatal(err)
	}
	d, err := f.svc.Get(context.Background(), doctor)
	if err != nil {
		t.Fatalf("expected visible doctor, got %v", err)
	}
	if d.FullName != "Pavel Orlov" {
		t.Fatalf("unexpected doctor %+v", d)
	}

	// a later upsert keeps the publication flag
	if _, err := f.svc.UpsertProfile(ctx, doctor, validInput); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Get(context.Background(), doctor); err != nil {
		t.Fatalf("upsert unpublished the profile: %v", err)
	}
}

func TestService_SetPublishedWithoutProfile(t *testing.T) {
	f := newFixture(t)
	doctor := uuid.New()
	err := f.svc.SetPublished(as(auth.RoleDoctor, doctor), doctor, true)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestService_AvatarReplaceDeletesPrevious(t *testing.T) {
	f := newFixture(t)
	doctor := uuid.New()
	ctx := as(auth.RoleDoctor, doctor)
	if _, err := f.svc.UpsertProfile(ctx, doctor, validInput); err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.UploadAvatar(ctx, doctor, "image/png", bytes.NewReader([]byte("first"))); err != nil {
		t.Fatal(err)
	}
	second, err := f.svc.UploadAvatar(ctx, doctor, "image/jpeg", bytes.NewReader([]byte("second")))
	if err != nil {
		t.Fatal(err)
	}
	if f.blobs.Len() != 1 {
		t.Fatalf("expected old avatar removed, store has %d blobs", f.blobs.Len())
	}

	rc, blob, err := f.svc.Avatar(context.Background(), doctor)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "second" || blob.ID != second.ID {
		t.Fatalf("expected second avatar, got %q", data)
	}

	if err := f.svc.DeleteAvatar(ctx, doctor); err != nil {
		t.Fatal(err)
	}
	if f.blobs.Len() != 0 {
		t.Fatal("expected avatar blob removed")
	}
	if _, _, err := f.svc.Avatar(context.Background(), doctor); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := f.svc.DeleteAvatar(ctx, doctor); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestService_AvatarValidation(t *testing.T) {
	f := newFixture(t)
	doctor := uuid.New()
	ctx := as(auth.RoleDoctor, doctor)
	_, _ = f.svc.UpsertProfile(ctx, doctor, validInput)

	_, err := f.svc.UploadAvatar(ctx, doctor, "application/pdf", bytes.NewReader([]byte("%PDF")))
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	big := bytes.NewReader(make([]byte, blobstore.AvatarPolicy.MaxSize+1))
	if _, err := f.svc.UploadAvatar(ctx, doctor, "image/png", big); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error for large file, got %v", err)
	}
}

func TestService_AvatarRequiresProfile(t *testing.T) {
	f := newFixture(t)
	doctor := uuid.New()
	_, err := f.svc.UploadAvatar(as(auth.RoleDoctor, doctor), doctor, "image/png", bytes.NewReader([]byte("x")))
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if f.blobs.Len() != 0 {
		t.Fatal("no blob should be stored")
	}
}
