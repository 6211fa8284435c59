// Package settings holds the console-wide configuration row.
package settings

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"dpdp/internal/platform/querier"
	"dpdp/internal/platform/validate"
)

type Settings struct {
	AllowPurposeCreationInBanner bool       `json:"allowPurposeCreationInBanner"`
	RequirePurposeApproval       bool       `json:"requirePurposeApproval"`
	DefaultPurposeValidity       int        `json:"defaultPurposeValidity"`
	EnableAdvancedPurposeFields  bool       `json:"enableAdvancedPurposeFields"`
	UpdatedAt                    *time.Time `json:"updatedAt,omitempty"`
}

// Defaults apply until the row is first written.
func Defaults() Settings {
	return Settings{
		AllowPurposeCreationInBanner: true,
		RequirePurposeApproval:       false,
		DefaultPurposeValidity:       12,
		EnableAdvancedPurposeFields:  true,
	}
}

// ValidityMonths bounds DefaultPurposeValidity.
const (
	MinValidityMonths = 1
	MaxValidityMonths = 120
)

func (s Settings) Validate() error {
	var c validate.Collector
	if s.DefaultPurposeValidity < MinValidityMonths || s.DefaultPurposeValidity > MaxValidityMonths {
		c.Add("defaultPurposeValidity", "must be between 1 and 120 months")
	}
	return c.Err()
}

// ConsentExpiry is the moment a consent given at ts lapses.
func (s Settings) ConsentExpiry(ts time.Time) time.Time {
	months := s.DefaultPurposeValidity
	if months <= 0 {
		months = Defaults().DefaultPurposeValidity
	}
	return ts.AddDate(0, months, 0)
}

type Store struct {
	DB querier.Querier
}

func NewStore(db querier.Querier) *Store {
	return &Store{DB: db}
}

func (s *Store) Get(ctx context.Context) (Settings, error) {
	var out Settings
	var updated time.Time
	err := s.DB.QueryRow(ctx, `
    SELECT allow_purpose_creation_in_banner, require_purpose_approval, default_purpose_validity,
      enable_advanced_purpose_fields, updated_at
    FROM app_settings WHERE id = 1
  `).Scan(&out.AllowPurposeCreationInBanner, &out.RequirePurposeApproval, &out.DefaultPurposeValidity,
		&out.EnableAdvancedPurposeFields, &updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return Defaults(), nil
	}
	if err != nil {
		return Settings{}, err
	}
	out.UpdatedAt = &updated
	return out, nil
}

func (s *Store) Put(ctx context.Context, in Settings) (Settings, error) {
	if err := in.Validate(); err != nil {
		return Settings{}, err
	}
	var updated time.Time
	err := s.DB.QueryRow(ctx, `
    INSERT INTO app_settings (id, allow_purpose_creation_in_banner, require_purpose_approval,
      default_purpose_validity, enable_advanced_purpose_fields, updated_at)
    VALUES (1,$1,$2,$3,$4,now())
    ON CONFLICT (id) DO UPDATE
      SET allow_purpose_creation_in_banner = EXCLUDED.allow_purpose_creation_in_banner,
          require_purpose_approval = EXCLUDED.require_purpose_approval,
          default_purpose_validity = EXCLUDED.default_purpose_validity,
          enable_advanced_purpose_fields = EXCLUDED.enable_advanced_purpose_fields,
          updated_at = now()
    RETURNING updated_at
  `, in.AllowPurposeCreationInBanner, in.RequirePurposeApproval, in.DefaultPurposeValidity, in.EnableAdvancedPurposeFields).Scan(&updated)
	if err != nil {
		return Settings{}, err
	}
	in.UpdatedAt = &updated
	return in, nil
}
