package doctors

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medcenter/portal/internal/platform/apperr"
	"github.com/medcenter/portal/internal/platform/auth"
	"github.com/medcenter/portal/internal/platform/blobstore"
	"github.com/medcenter/portal/internal/platform/db"
)

type Service struct {
	dir      Directory
	profiles ProfileRepository
	blobs    blobstore.BlobStore
	logger   zerolog.Logger
}

func NewService(dir Directory, profiles ProfileRepository, blobs blobstore.BlobStore, logger zerolog.Logger) *Service {
	return &Service{dir: dir, profiles: profiles, blobs: blobs, logger: logger.With().Str("component", "doctors").Logger()}
}

// Directory exposes the lookup other services share.
func (s *Service) Directory() Directory { return s.dir }

func mapErr(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, blobstore.ErrBlobNotFound):
		return apperr.NotFound(what + " not found")
	case errors.Is(err, blobstore.ErrFileTooLarge):
		return apperr.Validation("avatar must be at most 2 MiB")
	case errors.Is(err, blobstore.ErrInvalidContentType):
		return apperr.Validation("avatar must be a JPEG, PNG or WebP image")
	case errors.Is(err, blobstore.ErrEmpty):
		return apperr.Validation("avatar file is empty")
	case db.IsTransient(err):
		return apperr.Transient("doctor storage unavailable", err)
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Internal(err)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Doctor, error) {
	list, err := s.dir.List(ctx, filter)
	return list, mapErr(err, "doctor")
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := s.dir.Get(ctx, id)
	return d, mapErr(err, "doctor")
}

// authorizeDoctor admits the doctor identified by doctorID and admins.
func authorizeDoctor(ctx context.Context, doctorID uuid.UUID) (auth.Identity, error) {
	id, err := auth.IdentityFrom(ctx)
	if err != nil {
		return id, err
	}
	if id.IsAdmin() || (id.IsDoctor() && id.UserID == doctorID) {
		return id, nil
	}
	return id, apperr.Forbidden("only the doctor or an admin may change this profile")
}

// ProfileInput is the editable part of a profile.
type ProfileInput struct {
	FullName    string `json:"full_name" validate:"required,min=2,max=200"`
	Specialty   string `json:"specialty" validate:"required,min=2,max=100"`
	Department  string `json:"department" validate:"required,min=2,max=100"`
	Experience  int    `json:"experience" validate:"gte=0,lte=70"`
	Category    string `json:"category" validate:"required,oneof=highest first second none"`
	Education   string `json:"education" validate:"required,min=5,max=500"`
	Description string `json:"description" validate:"required,min=10,max=4000"`
}

// Profile returns the caller's own profile, published or not.
func (s *Service) Profile(ctx context.Context, doctorID uuid.UUID) (*Profile, error) {
	if _, err := authorizeDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	p, err := s.profiles.Get(ctx, doctorID)
	return p, mapErr(err, "profile")
}

func (s *Service) UpsertProfile(ctx context.Context, doctorID uuid.UUID, in ProfileInput) (*Profile, error) {
	if _, err := authorizeDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	p := &Profile{
		ID:          doctorID,
		FullName:    strings.TrimSpace(in.FullName),
		Specialty:   strings.TrimSpace(in.Specialty),
		Department:  strings.TrimSpace(in.Department),
		Experience:  in.Experience,
		Category:    in.Category,
		Education:   strings.TrimSpace(in.Education),
		Description: strings.TrimSpace(in.Description),
	}
	if err := s.profiles.Upsert(ctx, p); err != nil {
		return nil, mapErr(err, "profile")
	}
	s.logger.Info().Str("doctor_id", doctorID.String()).Msg("doctor profile saved")
	return p, nil
}

func (s *Service) SetPublished(ctx context.Context, doctorID uuid.UUID, published bool) error {
	if _, err := authorizeDoctor(ctx, doctorID); err != nil {
		return err
	}
	if err := s.profiles.SetPublished(ctx, doctorID, published); err != nil {
		return mapErr(err, "profile")
	}
	s.logger.Info().Str("doctor_id", doctorID.String()).Bool("published", published).Msg("doctor profile publication changed")
	return nil
}

// UploadAvatar stores a new avatar and removes the one it replaces.
func (s *Service) UploadAvatar(ctx context.Context, doctorID uuid.UUID, contentType string, content io.Reader) (*blobstore.Blob, error) {
	if _, err := authorizeDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	if _, err := s.profiles.Get(ctx, doctorID); err != nil {
		return nil, mapErr(err, "profile")
	}

	blob, err := s.blobs.Put(ctx, doctorID, contentType, content)
	if err != nil {
		return nil, mapErr(err, "avatar")
	}
	previous, err := s.profiles.SetPhoto(ctx, doctorID, &blob.ID)
	if err != nil {
		s.dropBlob(ctx, blob.ID)
		return nil, mapErr(err, "profile")
	}
	if previous != nil {
		s.dropBlob(ctx, *previous)
	}
	return blob, nil
}

func (s *Service) DeleteAvatar(ctx context.Context, doctorID uuid.UUID) error {
	if _, err := authorizeDoctor(ctx, doctorID); err != nil {
		return err
	}
	previous, err := s.profiles.SetPhoto(ctx, doctorID, nil)
	if err != nil {
		return mapErr(err, "profile")
	}
	if previous == nil {
		return apperr.NotFound("avatar not found")
	}
	s.dropBlob(ctx, *previous)
	return nil
}

// Avatar returns a doctor's avatar. Callers must close the reader.
func (s *Service) Avatar(ctx context.Context, doctorID uuid.UUID) (io.ReadCloser, *blobstore.Blob, error) {
	p, err := s.profiles.Get(ctx, doctorID)
	if err != nil {
		return nil, nil, mapErr(err, "avatar")
	}
	if p.PhotoBlobID == nil {
		return nil, nil, apperr.NotFound("avatar not found")
	}
	rc, blob, err := s.blobs.Get(ctx, *p.PhotoBlobID)
	if err != nil {
		return nil, nil, mapErr(err, "avatar")
	}
	return rc, blob, nil
}

// dropBlob deletes an orphaned blob; failures only leak storage.
func (s *Service) dropBlob(ctx context.Context, id uuid.UUID) {
	if err := s.blobs.Delete(ctx, id); err != nil && !errors.Is(err, blobstore.ErrBlobNotFound) {
		s.logger.Warn().Err(err).Str("blob_id", id.String()).Msg("delete orphaned avatar")
	}
}
