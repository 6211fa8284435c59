package templates

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"dpdp/internal/platform/validate"
	"dpdp/internal/widget"
)

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusDraft    = "draft"
)

var (
	ErrNotFound   = errors.New("template not found")
	ErrNotActive  = errors.New("template not active")
	ErrHasRecords = errors.New("template has consent records")
)

var purposeCategories = []string{"essential", "analytics", "marketing", "personalization", "other"}

type Template struct {
	ID             string                        `json:"id"`
	Name           string                        `json:"name"`
	Description    string                        `json:"description"`
	Status         string                        `json:"status"`
	BannerConfig   widget.BannerConfig           `json:"bannerConfig"`
	Purposes       []widget.Purpose              `json:"purposes"`
	Translations   map[string]widget.Translation `json:"translations"`
	CreatedBy      string                        `json:"createdBy"`
	OrganizationID string                        `json:"organizationId"`
	CreatedAt      time.Time                     `json:"createdAt"`
	UpdatedAt      time.Time                     `json:"updatedAt"`
}

// Input is the writable part of a template.
type Input struct {
	Name           string                        `json:"name"`
	Description    string                        `json:"description"`
	Status         string                        `json:"status"`
	BannerConfig   widget.BannerConfig           `json:"bannerConfig"`
	Purposes       []widget.Purpose              `json:"purposes"`
	Translations   map[string]widget.Translation `json:"translations"`
	CreatedBy      string                        `json:"createdBy"`
	OrganizationID string                        `json:"organizationId"`
}

type Filter struct {
	Status         string
	OrganizationID string
}

// Normalize trims text fields and applies defaults.
func (in *Input) Normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.CreatedBy = strings.TrimSpace(in.CreatedBy)
	in.OrganizationID = strings.TrimSpace(in.OrganizationID)
	if in.Status == "" {
		in.Status = StatusDraft
	}
	cfg := &in.BannerConfig
	cfg.Title = strings.TrimSpace(cfg.Title)
	cfg.Description = strings.TrimSpace(cfg.Description)
	cfg.AcceptButtonText = strings.TrimSpace(cfg.AcceptButtonText)
	cfg.RejectButtonText = strings.TrimSpace(cfg.RejectButtonText)
	cfg.CustomizeButtonText = strings.TrimSpace(cfg.CustomizeButtonText)
	if in.Translations == nil {
		in.Translations = map[string]widget.Translation{}
	}
}

func (in Input) Validate() error {
	var c validate.Collector
	c.Required("name", in.Name)
	c.MaxLen("name", in.Name, 255)
	c.OneOf("status", in.Status, StatusActive, StatusInactive, StatusDraft)

	cfg := in.BannerConfig
	c.Required("bannerConfig.title", cfg.Title)
	c.Required("bannerConfig.description", cfg.Description)
	c.Required("bannerConfig.acceptButtonText", cfg.AcceptButtonText)
	c.Required("bannerConfig.rejectButtonText", cfg.RejectButtonText)
	c.Required("bannerConfig.customizeButtonText", cfg.CustomizeButtonText)
	c.OneOf("bannerConfig.position", cfg.Position, "bottom", "top", "center")
	c.OneOf("bannerConfig.theme", cfg.Theme, "light", "dark", "auto")
	c.HexColor("bannerConfig.primaryColor", cfg.PrimaryColor)
	c.HexColor("bannerConfig.backgroundColor", cfg.BackgroundColor)
	c.HexColor("bannerConfig.textColor", cfg.TextColor)

	if len(in.Purposes) == 0 {
		c.Add("purposes", "at least one consent purpose is required")
	}
	seen := map[string]bool{}
	for i, p := range in.Purposes {
		field := "purposes[" + strconv.Itoa(i) + "]"
		c.Slug(field+".id", p.ID)
		c.Required(field+".name", p.Name)
		c.Required(field+".description", p.Description)
		c.OneOf(field+".category", p.Category, purposeCategories...)
		if seen[p.ID] {
			c.Add(field+".id", "is duplicated")
		}
		seen[p.ID] = true
	}
	for lang := range in.Translations {
		c.Language("translations."+lang, lang)
	}

	c.Required("createdBy", in.CreatedBy)
	c.Required("organizationId", in.OrganizationID)
	return c.Err()
}

// Snapshot renders the template for one language and platform, applying
// the language's translation over the banner text and purpose labels.
func (t Template) Snapshot(language, platform string) widget.Snapshot {
	if language == "" {
		language = widget.DefaultLanguage
	}
	if platform == "" {
		platform = widget.DefaultPlatform
	}
	created, updated := t.CreatedAt, t.UpdatedAt
	snap := widget.Snapshot{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		Config:      t.BannerConfig,
		Purposes:    make([]widget.Purpose, len(t.Purposes)),
		Language:    language,
		Platform:    platform,
		CreatedAt:   &created,
		UpdatedAt:   &updated,
	}
	copy(snap.Purposes, t.Purposes)

	tr, ok := t.Translations[language]
	if !ok {
		return snap
	}
	snap.Translations = &tr
	snap.Config.Title = firstNonEmpty(tr.Title, snap.Config.Title)
	snap.Config.Description = firstNonEmpty(tr.Description, snap.Config.Description)
	snap.Config.AcceptButtonText = firstNonEmpty(tr.AcceptButtonText, snap.Config.AcceptButtonText)
	snap.Config.RejectButtonText = firstNonEmpty(tr.RejectButtonText, snap.Config.RejectButtonText)
	snap.Config.CustomizeButtonText = firstNonEmpty(tr.CustomizeButtonText, snap.Config.CustomizeButtonText)
	for i, p := range snap.Purposes {
		if text, ok := tr.Purposes[p.ID]; ok {
			snap.Purposes[i].Name = firstNonEmpty(text.Name, p.Name)
			snap.Purposes[i].Description = firstNonEmpty(text.Description, p.Description)
		}
	}
	return snap
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// PurposeIDs lists the purposes offered by the template.
func (t Template) PurposeIDs() []string {
	out := make([]string, 0, len(t.Purposes))
	for _, p := range t.Purposes {
		out = append(out, p.ID)
	}
	return out
}
