package purposes

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"dpdp/internal/platform/querier"
)

type Store struct {
	DB querier.Querier
}

func NewStore(db querier.Querier) *Store {
	return &Store{DB: db}
}

// usage counts templates whose purposes array carries an element with this id.
const selectPurpose = `
  SELECT p.id, p.name, p.description, p.required, p.category, p.is_active,
    (SELECT COUNT(1) FROM consent_templates t WHERE t.purposes @> jsonb_build_array(jsonb_build_object('id', p.id))),
    p.created_at, p.updated_at
  FROM consent_purposes p`

func scanPurpose(row pgx.Row) (Purpose, error) {
	var p Purpose
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Required, &p.Category, &p.IsActive, &p.UsageCount, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Purpose{}, ErrNotFound
	}
	return p, err
}

func (s *Store) List(ctx context.Context, filter Filter) ([]Purpose, error) {
	rows, err := s.DB.Query(ctx, selectPurpose+`
  WHERE ($1 = '' OR p.category = $1) AND (NOT $2 OR p.is_active)
  ORDER BY p.updated_at DESC`, filter.Category, filter.ActiveOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Purpose{}
	for rows.Next() {
		p, err := scanPurpose(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) Get(ctx context.Context, id string) (Purpose, error) {
	return scanPurpose(s.DB.QueryRow(ctx, selectPurpose+" WHERE p.id = $1", id))
}

func (s *Store) Create(ctx context.Context, p Purpose) (Purpose, error) {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO consent_purposes (id, name, description, required, category, is_active)
    VALUES ($1,$2,$3,$4,$5,$6)
  `, p.ID, p.Name, p.Description, p.Required, p.Category, p.IsActive)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return Purpose{}, ErrExists
	}
	if err != nil {
		return Purpose{}, err
	}
	return s.Get(ctx, p.ID)
}

func (s *Store) Update(ctx context.Context, p Purpose) (Purpose, error) {
	tag, err := s.DB.Exec(ctx, `
    UPDATE consent_purposes
    SET name = $2, description = $3, required = $4, category = $5, is_active = $6, updated_at = now()
    WHERE id = $1
  `, p.ID, p.Name, p.Description, p.Required, p.Category, p.IsActive)
	if err != nil {
		return Purpose{}, err
	}
	if tag.RowsAffected() == 0 {
		return Purpose{}, ErrNotFound
	}
	return s.Get(ctx, p.ID)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.DB.Exec(ctx, "DELETE FROM consent_purposes WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
