package consent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mssola/useragent"

	"dpdp/internal/domain/settings"
	"dpdp/internal/domain/templates"
	"dpdp/internal/platform/ids"
	"dpdp/internal/widget"
)

type TemplateSource interface {
	Get(ctx context.Context, id string) (templates.Template, error)
	RequireActive(ctx context.Context, id string) (templates.Template, error)
}

type SettingsSource interface {
	Get(ctx context.Context) (settings.Settings, error)
}

type Recorder interface {
	ConsentStored(status string, created bool)
}

// Repository persists records. Upsert must update the newest record for the
// (template, user reference) pair when one exists and report whether it
// inserted instead.
type Repository interface {
	Upsert(ctx context.Context, rec Record) (Record, bool, error)
	Get(ctx context.Context, id string) (Record, error)
	List(ctx context.Context, filter Filter, limit, offset int) ([]Record, int, error)
	Withdraw(ctx context.Context, id string, at time.Time) (Record, error)
}

type Service struct {
	repo      Repository
	templates TemplateSource
	settings  SettingsSource
	recorder  Recorder
	now       func() time.Time
}

func NewService(repo Repository, tpl TemplateSource, cfg SettingsSource, recorder Recorder) *Service {
	return &Service{repo: repo, templates: tpl, settings: cfg, recorder: recorder, now: time.Now}
}

// Submit stores one widget decision. Errors from the template lookup
// (templates.ErrNotFound, templates.ErrNotActive) are returned unchanged.
func (s *Service) Submit(ctx context.Context, sub widget.Submission, meta ClientMeta) (Record, bool, error) {
	sub, err := normalizeSubmission(sub, s.now())
	if err != nil {
		return Record{}, false, err
	}
	tpl, err := s.templates.RequireActive(ctx, sub.TemplateID)
	if err != nil {
		return Record{}, false, err
	}
	purposes, dropped := reconcilePurposes(sub.Purposes, tpl.Purposes)
	if len(dropped) > 0 {
		slog.Warn("consent carried purposes the template no longer offers",
			"templateId", sub.TemplateID, "dropped", dropped)
	}

	cfg := settings.Defaults()
	if s.settings != nil {
		loaded, err := s.settings.Get(ctx)
		if err != nil {
			slog.Warn("settings lookup failed, using defaults", "err", err)
		} else {
			cfg = loaded
		}
	}

	ts := time.UnixMilli(sub.Timestamp).UTC()
	expiry := cfg.ConsentExpiry(ts)
	browser, osName := describeAgent(meta.UserAgent)
	rec := Record{
		ID:               ids.New(ids.PrefixConsent),
		TemplateID:       sub.TemplateID,
		UserReferenceID:  sub.UserReferenceID,
		Status:           sub.Status,
		AcceptedPurposes: purposes,
		Platform:         sub.Platform,
		Language:         sub.Language,
		UserAgent:        meta.UserAgent,
		Browser:          browser,
		OS:               osName,
		IPAddress:        meta.IP,
		ConsentTimestamp: ts,
		ExpiryDate:       &expiry,
	}
	saved, created, err := s.repo.Upsert(ctx, rec)
	if err != nil {
		return Record{}, false, fmt.Errorf("store consent: %w", err)
	}
	if s.recorder != nil {
		s.recorder.ConsentStored(saved.Status, created)
	}
	slog.Info("consent saved",
		"id", saved.ID,
		"templateId", saved.TemplateID,
		"status", saved.Status,
		"purposeCount", len(saved.AcceptedPurposes),
		"platform", saved.Platform,
		"language", saved.Language,
		"version", saved.Version,
	)
	return saved, created, nil
}

func (s *Service) Get(ctx context.Context, id string) (Record, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filter Filter, limit, offset int) ([]Record, int, error) {
	return s.repo.List(ctx, filter, limit, offset)
}

// ListForReference backs the public lookup, which must be narrowed to a
// template or a user reference.
func (s *Service) ListForReference(ctx context.Context, filter Filter, limit, offset int) ([]Record, int, error) {
	if strings.TrimSpace(filter.TemplateID) == "" && strings.TrimSpace(filter.UserReferenceID) == "" {
		return nil, 0, ErrFilterRequired
	}
	return s.repo.List(ctx, filter, limit, offset)
}

func (s *Service) Withdraw(ctx context.Context, id string) (Record, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if current.Status == StatusWithdrawn {
		return Record{}, ErrAlreadyWithdrawn
	}
	return s.repo.Withdraw(ctx, id, s.now().UTC())
}

func describeAgent(raw string) (browser, osName string) {
	if strings.TrimSpace(raw) == "" {
		return "unknown", "unknown"
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	switch {
	case name == "":
		browser = "unknown"
	case ua.Bot():
		browser = name + " (bot)"
	case version != "":
		major, _, _ := strings.Cut(version, ".")
		browser = name + " " + major
	default:
		browser = name
	}
	osName = ua.OS()
	if osName == "" {
		osName = "unknown"
	}
	return browser, osName
}
