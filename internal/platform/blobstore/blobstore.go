// Package blobstore stores small binary objects such as doctor avatars.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrBlobNotFound       = errors.New("blob not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrEmpty              = errors.New("file is empty")
)

// Blob describes a stored object.
type Blob struct {
	ID          uuid.UUID `json:"id"`
	Owner       uuid.UUID `json:"owner"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash"`
	CreatedAt   time.Time `json:"created_at"`
}

// Policy bounds what a Put accepts.
type Policy struct {
	MaxSize      int64
	ContentTypes map[string]bool
}

// AvatarPolicy accepts JPEG, PNG and WebP images up to 2 MiB.
var AvatarPolicy = Policy{
	MaxSize: 2 << 20,
	ContentTypes: map[string]bool{
		"image/jpeg": true,
		"image/png":  true,
		"image/webp": true,
	},
}

// ReadValidated reads content under p and returns the bytes.
func (p Policy) ReadValidated(contentType string, content io.Reader) ([]byte, error) {
	if len(p.ContentTypes) > 0 && !p.ContentTypes[contentType] {
		return nil, ErrInvalidContentType
	}
	data, err := io.ReadAll(io.LimitReader(content, p.MaxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	if int64(len(data)) > p.MaxSize {
		return nil, ErrFileTooLarge
	}
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	return data, nil
}

func hashOf(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// BlobStore is the contract for blob storage backends.
type BlobStore interface {
	Put(ctx context.Context, owner uuid.UUID, contentType string, content io.Reader) (*Blob, error)
	Get(ctx context.Context, id uuid.UUID) (io.ReadCloser, *Blob, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

type storedBlob struct {
	meta Blob
	data []byte
}

// MemoryStore is a thread-safe BlobStore for tests and development.
type MemoryStore struct {
	policy Policy

	mu    sync.RWMutex
	blobs map[uuid.UUID]*storedBlob
}

func NewMemoryStore(policy Policy) *MemoryStore {
	return &MemoryStore{policy: policy, blobs: make(map[uuid.UUID]*storedBlob)}
}

func (s *MemoryStore) Put(_ context.Context, owner uuid.UUID, contentType string, content io.Reader) (*Blob, error) {
	data, err := s.policy.ReadValidated(contentType, content)
	if err != nil {
		return nil, err
	}

	meta := Blob{
		ID:          uuid.New(),
		Owner:       owner,
		ContentType: contentType,
		Size:        int64(len(data)),
		Hash:        hashOf(data),
		CreatedAt:   time.Now().UTC(),
	}

	s.mu.Lock()
	s.blobs[meta.ID] = &storedBlob{meta: meta, data: data}
	s.mu.Unlock()

	out := meta
	return &out, nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (io.ReadCloser, *Blob, error) {
	s.mu.RLock()
	b, ok := s.blobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrBlobNotFound
	}
	meta := b.meta
	return io.NopCloser(bytes.NewReader(b.data)), &meta, nil
}

func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[id]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, id)
	return nil
}

// Len returns the number of stored blobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
