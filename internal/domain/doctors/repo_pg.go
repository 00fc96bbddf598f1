package doctors

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medcenter/portal/internal/platform/db"
)

type profileRepoPG struct{ pool *pgxpool.Pool }

func NewProfileRepoPG(pool *pgxpool.Pool) ProfileRepository { return &profileRepoPG{pool: pool} }

func (r *profileRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const profileCols = `id, full_name, specialty, department, experience, category,
	education, description, photo_blob_id, is_published, created_at, updated_at`

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.FullName, &p.Specialty, &p.Department, &p.Experience, &p.Category,
		&p.Education, &p.Description, &p.PhotoBlobID, &p.IsPublished, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

// Upsert writes the editable fields. Publication state and photo are
// managed by their own methods and survive an upsert.
func (r *profileRepoPG) Upsert(ctx context.Context, p *Profile) error {
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor_profiles (id, full_name, specialty, department, experience,
			category, education, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			full_name = EXCLUDED.full_name, specialty = EXCLUDED.specialty,
			department = EXCLUDED.department, experience = EXCLUDED.experience,
			category = EXCLUDED.category, education = EXCLUDED.education,
			description = EXCLUDED.description, updated_at = NOW()
		RETURNING `+profileCols,
		p.ID, p.FullName, p.Specialty, p.Department, p.Experience, p.Category, p.Education, p.Description)
	saved, err := scanProfile(row)
	if err != nil {
		return fmt.Errorf("upsert doctor profile: %w", err)
	}
	*p = *saved
	return nil
}

func (r *profileRepoPG) Get(ctx context.Context, id uuid.UUID) (*Profile, error) {
	p, err := scanProfile(r.conn(ctx).QueryRow(ctx, `SELECT `+profileCols+` FROM doctor_profiles WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get doctor profile: %w", err)
	}
	return p, nil
}

func (r *profileRepoPG) SetPublished(ctx context.Context, id uuid.UUID, published bool) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE doctor_profiles SET is_published = $2, updated_at = NOW() WHERE id = $1`, id, published)
	if err != nil {
		return fmt.Errorf("set doctor profile published: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *profileRepoPG) SetPhoto(ctx context.Context, id uuid.UUID, blobID *uuid.UUID) (*uuid.UUID, error) {
	var previous *uuid.UUID
	err := db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		err := r.conn(ctx).QueryRow(ctx,
			`SELECT photo_blob_id FROM doctor_profiles WHERE id = $1 FOR UPDATE`, id).Scan(&previous)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		_, err = r.conn(ctx).Exec(ctx,
			`UPDATE doctor_profiles SET photo_blob_id = $2, updated_at = NOW() WHERE id = $1`, id, blobID)
		return err
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("set doctor photo: %w", err)
	}
	return previous, err
}

func (r *profileRepoPG) ListPublished(ctx context.Context) ([]*Profile, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+profileCols+` FROM doctor_profiles WHERE is_published ORDER BY full_name, id`)
	if err != nil {
		return nil, fmt.Errorf("list doctor profiles: %w", err)
	}
	defer rows.Close()

	var items []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan doctor profile: %w", err)
		}
		items = append(items, p)
	}
	return items, rows.Err()
}
