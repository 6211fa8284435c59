package consent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"dpdp/internal/platform/querier"
)

// Sealer encrypts the client IP before it reaches the table.
type Sealer interface {
	SealString(value string) ([]byte, error)
	OpenString(value []byte) (string, error)
}

type Store struct {
	DB     querier.TxBeginner
	Sealer Sealer
}

func NewStore(db querier.TxBeginner, sealer Sealer) *Store {
	return &Store{DB: db, Sealer: sealer}
}

const recordColumns = `id, template_id, user_reference_id, status, accepted_purposes, platform, language,
  user_agent, browser, os, ip_address_enc, consent_timestamp, expiry_date, version, created_at, updated_at`

func (s *Store) scan(row pgx.Row) (Record, error) {
	var r Record
	var ipEnc []byte
	if err := row.Scan(&r.ID, &r.TemplateID, &r.UserReferenceID, &r.Status, &r.AcceptedPurposes, &r.Platform, &r.Language,
		&r.UserAgent, &r.Browser, &r.OS, &ipEnc, &r.ConsentTimestamp, &r.ExpiryDate, &r.Version, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	if len(ipEnc) > 0 && s.Sealer != nil {
		ip, err := s.Sealer.OpenString(ipEnc)
		if err != nil {
			slog.Warn("consent ip decrypt failed", "id", r.ID, "err", err)
		} else {
			r.IPAddress = ip
		}
	}
	if r.AcceptedPurposes == nil {
		r.AcceptedPurposes = []string{}
	}
	return r, nil
}

// Upsert serialises writers for the same (template, user reference) pair
// with a transaction-scoped advisory lock, then updates the newest record or
// inserts a new one.
func (s *Store) Upsert(ctx context.Context, rec Record) (Record, bool, error) {
	var ipEnc []byte
	if rec.IPAddress != "" && s.Sealer != nil {
		sealed, err := s.Sealer.SealString(rec.IPAddress)
		if err != nil {
			return Record{}, false, err
		}
		ipEnc = sealed
	}

	var saved Record
	var created bool
	err := querier.InTx(ctx, s.DB, func(q querier.Querier) error {
		if _, err := q.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1 || '|' || $2))", rec.TemplateID, rec.UserReferenceID); err != nil {
			return err
		}
		var existing string
		err := q.QueryRow(ctx, `
    SELECT id FROM consent_records
    WHERE user_reference_id = $1 AND template_id = $2
    ORDER BY created_at DESC
    LIMIT 1`, rec.UserReferenceID, rec.TemplateID).Scan(&existing)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			created = true
			saved, err = s.scan(q.QueryRow(ctx, `
    INSERT INTO consent_records (id, template_id, user_reference_id, status, accepted_purposes, platform, language,
      user_agent, browser, os, ip_address_enc, consent_timestamp, expiry_date)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
    RETURNING `+recordColumns,
				rec.ID, rec.TemplateID, rec.UserReferenceID, rec.Status, rec.AcceptedPurposes, rec.Platform, rec.Language,
				rec.UserAgent, rec.Browser, rec.OS, ipEnc, rec.ConsentTimestamp, rec.ExpiryDate))
			return err
		case err != nil:
			return err
		}
		saved, err = s.scan(q.QueryRow(ctx, `
    UPDATE consent_records
    SET status = $2, accepted_purposes = $3, platform = $4, language = $5, user_agent = $6, browser = $7, os = $8,
        ip_address_enc = $9, consent_timestamp = $10, expiry_date = $11, version = version + 1, updated_at = now()
    WHERE id = $1
    RETURNING `+recordColumns,
			existing, rec.Status, rec.AcceptedPurposes, rec.Platform, rec.Language, rec.UserAgent, rec.Browser, rec.OS,
			ipEnc, rec.ConsentTimestamp, rec.ExpiryDate))
		return err
	})
	if err != nil {
		return Record{}, false, err
	}
	return saved, created, nil
}

func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	return s.scan(s.DB.QueryRow(ctx, "SELECT "+recordColumns+" FROM consent_records WHERE id = $1", id))
}

func (s *Store) List(ctx context.Context, filter Filter, limit, offset int) ([]Record, int, error) {
	where := " WHERE ($1 = '' OR template_id = $1) AND ($2 = '' OR user_reference_id = $2) AND ($3 = '' OR status = $3)"
	args := []any{filter.TemplateID, filter.UserReferenceID, filter.Status}
	var total int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM consent_records"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.Query(ctx, "SELECT "+recordColumns+" FROM consent_records"+where+
		" ORDER BY consent_timestamp DESC LIMIT $4 OFFSET $5", append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []Record{}
	for rows.Next() {
		r, err := s.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

func (s *Store) Withdraw(ctx context.Context, id string, at time.Time) (Record, error) {
	return s.scan(s.DB.QueryRow(ctx, `
    UPDATE consent_records
    SET status = 'withdrawn', accepted_purposes = '{}', version = version + 1, updated_at = $2
    WHERE id = $1
    RETURNING `+recordColumns, id, at))
}
