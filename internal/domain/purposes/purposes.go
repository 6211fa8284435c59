// Package purposes is the catalog of consent purposes that templates draw
// from.
package purposes

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"

	"dpdp/internal/platform/validate"
)

var (
	ErrNotFound = errors.New("purpose not found")
	ErrExists   = errors.New("purpose already exists")
	ErrInUse    = errors.New("purpose is used by templates")
)

var Categories = []string{"essential", "analytics", "marketing", "personalization", "other"}

type Purpose struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Required    bool      `json:"required"`
	Category    string    `json:"category"`
	IsActive    bool      `json:"isActive"`
	UsageCount  int       `json:"usageCount"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Input struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Category    string `json:"category"`
	IsActive    *bool  `json:"isActive"`
}

type Filter struct {
	Category   string
	ActiveOnly bool
}

func (in *Input) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Category = strings.TrimSpace(in.Category)
	in.ID = strings.TrimSpace(in.ID)
	if in.ID == "" {
		in.ID = Slugify(in.Name)
	}
}

func (in Input) validate() error {
	var c validate.Collector
	c.Required("name", in.Name)
	c.MaxLen("name", in.Name, 255)
	c.Required("description", in.Description)
	c.OneOf("category", in.Category, Categories...)
	if in.ID != "" {
		c.Slug("id", in.ID)
	}
	return c.Err()
}

func (in Input) active() bool {
	return in.IsActive == nil || *in.IsActive
}

// Slugify turns a display name into a purpose id: "Marketing Emails"
// becomes "marketing_emails".
func Slugify(name string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			lastUnderscore = false
		case r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}

type Repository interface {
	List(ctx context.Context, filter Filter) ([]Purpose, error)
	Get(ctx context.Context, id string) (Purpose, error)
	Create(ctx context.Context, p Purpose) (Purpose, error)
	Update(ctx context.Context, p Purpose) (Purpose, error)
	Delete(ctx context.Context, id string) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filter Filter) ([]Purpose, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) Get(ctx context.Context, id string) (Purpose, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, in Input) (Purpose, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return Purpose{}, err
	}
	if in.ID == "" {
		return Purpose{}, &validate.Error{Issues: []validate.Issue{{Field: "id", Reason: "could not be derived from name"}}}
	}
	return s.repo.Create(ctx, Purpose{
		ID:          in.ID,
		Name:        in.Name,
		Description: in.Description,
		Required:    in.Required,
		Category:    in.Category,
		IsActive:    in.active(),
	})
}

func (s *Service) Update(ctx context.Context, id string, in Input) (Purpose, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Purpose{}, err
	}
	in.ID = id
	in.normalize()
	if err := in.validate(); err != nil {
		return Purpose{}, err
	}
	current.Name = in.Name
	current.Description = in.Description
	current.Required = in.Required
	current.Category = in.Category
	if in.IsActive != nil {
		current.IsActive = *in.IsActive
	}
	return s.repo.Update(ctx, current)
}

// Delete refuses to drop a purpose that a template still offers.
func (s *Service) Delete(ctx context.Context, id string) error {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.UsageCount > 0 {
		return ErrInUse
	}
	return s.repo.Delete(ctx, id)
}
