package vendors

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"dpdp/internal/platform/querier"
)

type EmailSealer interface {
	SealString(value string) ([]byte, error)
	OpenString(value []byte) (string, error)
}

type Store struct {
	DB     querier.Querier
	Sealer EmailSealer
}

func NewStore(db querier.Querier, sealer EmailSealer) *Store {
	return &Store{DB: db, Sealer: sealer}
}

const vendorColumns = `vendor_id, vendor_name, category, contact_name, contact_email_enc, notes, dpa_status, dpa_file_path,
  dpa_signed_on, dpa_valid_till, allowed_purposes, allowed_data_types, risk_level, is_active, expiry_notified_at,
  created_at, updated_at`

func (s *Store) scan(row pgx.Row) (Vendor, error) {
	var v Vendor
	var emailEnc []byte
	if err := row.Scan(&v.VendorID, &v.VendorName, &v.Category, &v.ContactName, &emailEnc, &v.Notes, &v.DPAStatus, &v.DPAFilePath,
		&v.DPASignedOn, &v.DPAValidTill, &v.AllowedPurposes, &v.AllowedDataTypes, &v.RiskLevel, &v.IsActive, &v.ExpiryNotifiedAt,
		&v.CreatedAt, &v.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Vendor{}, ErrNotFound
		}
		return Vendor{}, err
	}
	if len(emailEnc) > 0 {
		email, err := s.open(emailEnc)
		if err != nil {
			slog.Warn("vendor contact decrypt failed", "vendorId", v.VendorID, "err", err)
		}
		v.ContactEmail = email
	}
	v.HasDPAFile = v.DPAFilePath != ""
	if v.AllowedPurposes == nil {
		v.AllowedPurposes = []string{}
	}
	if v.AllowedDataTypes == nil {
		v.AllowedDataTypes = []string{}
	}
	return v, nil
}

func (s *Store) seal(value string) ([]byte, error) {
	if s.Sealer == nil {
		return []byte(value), nil
	}
	return s.Sealer.SealString(value)
}

func (s *Store) open(value []byte) (string, error) {
	if s.Sealer == nil {
		return string(value), nil
	}
	return s.Sealer.OpenString(value)
}

func (s *Store) Create(ctx context.Context, v Vendor) (Vendor, error) {
	emailEnc, err := s.seal(v.ContactEmail)
	if err != nil {
		return Vendor{}, err
	}
	return s.scan(s.DB.QueryRow(ctx, `
    INSERT INTO vendors (vendor_id, vendor_name, category, contact_name, contact_email_enc, notes, dpa_status,
      allowed_purposes, allowed_data_types, risk_level, is_active)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
    RETURNING `+vendorColumns,
		v.VendorID, v.VendorName, v.Category, v.ContactName, emailEnc, v.Notes, v.DPAStatus,
		v.AllowedPurposes, v.AllowedDataTypes, v.RiskLevel, v.IsActive))
}

func (s *Store) Get(ctx context.Context, id string) (Vendor, error) {
	return s.scan(s.DB.QueryRow(ctx, "SELECT "+vendorColumns+" FROM vendors WHERE vendor_id = $1", id))
}

func (s *Store) List(ctx context.Context, filter Filter) ([]Vendor, error) {
	rows, err := s.DB.Query(ctx, "SELECT "+vendorColumns+` FROM vendors
    WHERE ($1 = '' OR category = $1)
      AND ($2 = '' OR dpa_status = $2)
      AND ($3 = '' OR risk_level = $3)
      AND ($4 = '' OR vendor_name ILIKE '%' || $4 || '%')
    ORDER BY updated_at DESC`, filter.Category, filter.DPAStatus, filter.RiskLevel, filter.Search)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Vendor{}
	for rows.Next() {
		v, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Save writes every mutable column of v.
func (s *Store) Save(ctx context.Context, v Vendor) (Vendor, error) {
	emailEnc, err := s.seal(v.ContactEmail)
	if err != nil {
		return Vendor{}, err
	}
	return s.scan(s.DB.QueryRow(ctx, `
    UPDATE vendors
    SET vendor_name = $2, category = $3, contact_name = $4, contact_email_enc = $5, notes = $6, dpa_status = $7,
        dpa_file_path = $8, dpa_signed_on = $9, dpa_valid_till = $10, allowed_purposes = $11, allowed_data_types = $12,
        risk_level = $13, is_active = $14, expiry_notified_at = $15, updated_at = now()
    WHERE vendor_id = $1
    RETURNING `+vendorColumns,
		v.VendorID, v.VendorName, v.Category, v.ContactName, emailEnc, v.Notes, v.DPAStatus,
		v.DPAFilePath, v.DPASignedOn, v.DPAValidTill, v.AllowedPurposes, v.AllowedDataTypes,
		v.RiskLevel, v.IsActive, v.ExpiryNotifiedAt))
}

func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.DB.Exec(ctx, "DELETE FROM vendors WHERE vendor_id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var out Stats
	err := s.DB.QueryRow(ctx, `
    SELECT COUNT(*),
      COUNT(*) FILTER (WHERE dpa_status = 'APPROVED'),
      COUNT(*) FILTER (WHERE dpa_status = 'PENDING'),
      COUNT(*) FILTER (WHERE risk_level = 'HIGH')
    FROM vendors`).Scan(&out.TotalVendors, &out.ApprovedVendors, &out.PendingDPA, &out.HighRiskVendors)
	return out, err
}

func (s *Store) LogAccess(ctx context.Context, entry AccessLog) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO vendor_access_logs (log_id, vendor_id, vendor_name, purpose, data_types_requested, access_granted, reason, created_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		entry.LogID, entry.VendorID, entry.VendorName, entry.Purpose, entry.DataTypesRequested, entry.AccessGranted, entry.Reason, entry.Timestamp)
	return err
}

func (s *Store) AccessLogs(ctx context.Context, vendorID string, limit, offset int) ([]AccessLog, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT log_id, vendor_id, vendor_name, purpose, data_types_requested, access_granted, reason, created_at
    FROM vendor_access_logs
    WHERE ($1 = '' OR vendor_id = $1)
    ORDER BY created_at DESC
    LIMIT $2 OFFSET $3`, vendorID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []AccessLog{}
	for rows.Next() {
		var l AccessLog
		if err := rows.Scan(&l.LogID, &l.VendorID, &l.VendorName, &l.Purpose, &l.DataTypesRequested, &l.AccessGranted, &l.Reason, &l.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ExpireOverdue flips approved agreements whose validity ended before now.
func (s *Store) ExpireOverdue(ctx context.Context, now time.Time) ([]Vendor, error) {
	rows, err := s.DB.Query(ctx, `
    UPDATE vendors
    SET dpa_status = 'EXPIRED', risk_level = 'HIGH', updated_at = now()
    WHERE dpa_status = 'APPROVED' AND dpa_valid_till IS NOT NULL AND dpa_valid_till < $1
    RETURNING `+vendorColumns, now)
	if err != nil {
		return nil, err
	}
	return s.collect(rows)
}

// DueForWarning lists approved agreements ending within window that have
// not been warned about yet.
func (s *Store) DueForWarning(ctx context.Context, now time.Time, window time.Duration) ([]Vendor, error) {
	rows, err := s.DB.Query(ctx, "SELECT "+vendorColumns+`
    FROM vendors
    WHERE dpa_status = 'APPROVED' AND expiry_notified_at IS NULL
      AND dpa_valid_till >= $1 AND dpa_valid_till < $2
    ORDER BY dpa_valid_till`, now, now.Add(window))
	if err != nil {
		return nil, err
	}
	return s.collect(rows)
}

func (s *Store) MarkExpiryNotified(ctx context.Context, id string, at time.Time) error {
	_, err := s.DB.Exec(ctx, "UPDATE vendors SET expiry_notified_at = $2 WHERE vendor_id = $1", id, at)
	return err
}

func (s *Store) collect(rows pgx.Rows) ([]Vendor, error) {
	defer rows.Close()
	out := []Vendor{}
	for rows.Next() {
		v, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
