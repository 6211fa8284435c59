package templates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"dpdp/internal/platform/querier"
)

type Store struct {
	DB querier.Querier
}

func NewStore(db querier.Querier) *Store {
	return &Store{DB: db}
}

const templateColumns = `id, name, description, status, banner_config, purposes, translations,
  created_by, organization_id, created_at, updated_at`

func scanTemplate(row pgx.Row) (Template, error) {
	var t Template
	var cfg, purposes, translations []byte
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Status, &cfg, &purposes, &translations,
		&t.CreatedBy, &t.OrganizationID, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Template{}, ErrNotFound
		}
		return Template{}, err
	}
	if err := json.Unmarshal(cfg, &t.BannerConfig); err != nil {
		return Template{}, fmt.Errorf("decode banner_config: %w", err)
	}
	if err := json.Unmarshal(purposes, &t.Purposes); err != nil {
		return Template{}, fmt.Errorf("decode purposes: %w", err)
	}
	if err := json.Unmarshal(translations, &t.Translations); err != nil {
		return Template{}, fmt.Errorf("decode translations: %w", err)
	}
	return t, nil
}

func encodeJSON(in Input) (cfg, purposes, translations []byte, err error) {
	if cfg, err = json.Marshal(in.BannerConfig); err != nil {
		return
	}
	if purposes, err = json.Marshal(in.Purposes); err != nil {
		return
	}
	translations, err = json.Marshal(in.Translations)
	return
}

func (s *Store) Create(ctx context.Context, id string, in Input) (Template, error) {
	cfg, purposes, translations, err := encodeJSON(in)
	if err != nil {
		return Template{}, err
	}
	return scanTemplate(s.DB.QueryRow(ctx, `
    INSERT INTO consent_templates (id, name, description, status, banner_config, purposes, translations, created_by, organization_id)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
    RETURNING `+templateColumns,
		id, in.Name, in.Description, in.Status, cfg, purposes, translations, in.CreatedBy, in.OrganizationID))
}

func (s *Store) Get(ctx context.Context, id string) (Template, error) {
	return scanTemplate(s.DB.QueryRow(ctx, "SELECT "+templateColumns+" FROM consent_templates WHERE id = $1", id))
}

func (s *Store) List(ctx context.Context, filter Filter, limit, offset int) ([]Template, int, error) {
	where := " WHERE ($1 = '' OR status = $1) AND ($2 = '' OR organization_id = $2)"
	var total int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM consent_templates"+where, filter.Status, filter.OrganizationID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.DB.Query(ctx, "SELECT "+templateColumns+" FROM consent_templates"+where+
		" ORDER BY created_at DESC LIMIT $3 OFFSET $4", filter.Status, filter.OrganizationID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []Template{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

func (s *Store) Update(ctx context.Context, id string, in Input) (Template, error) {
	cfg, purposes, translations, err := encodeJSON(in)
	if err != nil {
		return Template{}, err
	}
	return scanTemplate(s.DB.QueryRow(ctx, `
    UPDATE consent_templates
    SET name = $2, description = $3, status = $4, banner_config = $5, purposes = $6,
        translations = $7, organization_id = $8, updated_at = now()
    WHERE id = $1
    RETURNING `+templateColumns,
		id, in.Name, in.Description, in.Status, cfg, purposes, translations, in.OrganizationID))
}

func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.DB.Exec(ctx, "DELETE FROM consent_templates WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) CountRecords(ctx context.Context, id string) (int, error) {
	var count int
	err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM consent_records WHERE template_id = $1", id).Scan(&count)
	return count, err
}

// Summaries returns id, name and status for every template.
func (s *Store) Summaries(ctx context.Context) ([]Summary, error) {
	rows, err := s.DB.Query(ctx, "SELECT id, name, status FROM consent_templates ORDER BY created_at")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Summary
	for rows.Next() {
		var sm Summary
		if err := rows.Scan(&sm.ID, &sm.Name, &sm.Status); err != nil {
			return nil, err
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}
