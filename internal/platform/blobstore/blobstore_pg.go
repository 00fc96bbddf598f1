package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medcenter/portal/internal/platform/db"
)

// PGStore keeps blobs in the blobs table.
type PGStore struct {
	pool   *pgxpool.Pool
	policy Policy
}

func NewPGStore(pool *pgxpool.Pool, policy Policy) *PGStore {
	return &PGStore{pool: pool, policy: policy}
}

func (s *PGStore) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, s.pool)
}

const blobCols = `id, owner_id, content_type, size_bytes, sha256, created_at`

func (s *PGStore) Put(ctx context.Context, owner uuid.UUID, contentType string, content io.Reader) (*Blob, error) {
	data, err := s.policy.ReadValidated(contentType, content)
	if err != nil {
		return nil, err
	}

	b := &Blob{ID: uuid.New(), Owner: owner, ContentType: contentType, Size: int64(len(data)), Hash: hashOf(data)}
	err = s.conn(ctx).QueryRow(ctx, `
		INSERT INTO blobs (id, owner_id, content_type, size_bytes, sha256, data)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		b.ID, b.Owner, b.ContentType, b.Size, b.Hash, data,
	).Scan(&b.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert blob: %w", err)
	}
	return b, nil
}

func (s *PGStore) Get(ctx context.Context, id uuid.UUID) (io.ReadCloser, *Blob, error) {
	var (
		b    Blob
		data []byte
	)
	err := s.conn(ctx).QueryRow(ctx, `SELECT `+blobCols+`, data FROM blobs WHERE id = $1`, id).
		Scan(&b.ID, &b.Owner, &b.ContentType, &b.Size, &b.Hash, &b.CreatedAt, &data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get blob: %w", err)
	}
	return io.NopCloser(bytes.NewReader(data)), &b, nil
}

func (s *PGStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.conn(ctx).Exec(ctx, `DELETE FROM blobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBlobNotFound
	}
	return nil
}
