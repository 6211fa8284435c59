package templates

import (
	"context"
	"errors"
	"log/slog"

	"dpdp/internal/platform/ids"
	"dpdp/internal/widget"
)

type Summary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

type Repository interface {
	Create(ctx context.Context, id string, in Input) (Template, error)
	Get(ctx context.Context, id string) (Template, error)
	List(ctx context.Context, filter Filter, limit, offset int) ([]Template, int, error)
	Update(ctx context.Context, id string, in Input) (Template, error)
	Delete(ctx context.Context, id string) error
	CountRecords(ctx context.Context, id string) (int, error)
	Summaries(ctx context.Context) ([]Summary, error)
}

// SnapshotCache holds rendered public snapshots. A nil cache disables
// caching.
type SnapshotCache interface {
	Get(ctx context.Context, templateID, language, platform string) (widget.Snapshot, bool, error)
	Set(ctx context.Context, snap widget.Snapshot) error
	Invalidate(ctx context.Context, templateID string) error
}

type CacheRecorder interface {
	CacheLookup(hit bool)
}

type Service struct {
	repo     Repository
	cache    SnapshotCache
	recorder CacheRecorder
}

func NewService(repo Repository, cache SnapshotCache, recorder CacheRecorder) *Service {
	return &Service{repo: repo, cache: cache, recorder: recorder}
}

func (s *Service) Create(ctx context.Context, in Input) (Template, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return Template{}, err
	}
	return s.repo.Create(ctx, ids.New(ids.PrefixTemplate), in)
}

func (s *Service) Get(ctx context.Context, id string) (Template, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filter Filter, limit, offset int) ([]Template, int, error) {
	return s.repo.List(ctx, filter, limit, offset)
}

func (s *Service) Summaries(ctx context.Context) ([]Summary, error) {
	return s.repo.Summaries(ctx)
}

// Update replaces the writable fields. The original author is kept.
func (s *Service) Update(ctx context.Context, id string, in Input) (Template, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Template{}, err
	}
	in.CreatedBy = current.CreatedBy
	if in.OrganizationID == "" {
		in.OrganizationID = current.OrganizationID
	}
	in.Normalize()
	if err := in.Validate(); err != nil {
		return Template{}, err
	}
	updated, err := s.repo.Update(ctx, id, in)
	if err != nil {
		return Template{}, err
	}
	s.invalidate(ctx, id)
	return updated, nil
}

// Delete refuses while consent records still reference the template.
func (s *Service) Delete(ctx context.Context, id string) error {
	count, err := s.repo.CountRecords(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrHasRecords
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// PublicSnapshot serves the widget. Only active templates are visible.
func (s *Service) PublicSnapshot(ctx context.Context, id, language, platform string) (widget.Snapshot, error) {
	if language == "" {
		language = widget.DefaultLanguage
	}
	if platform == "" {
		platform = widget.DefaultPlatform
	}
	if s.cache != nil {
		snap, ok, err := s.cache.Get(ctx, id, language, platform)
		if err != nil {
			slog.Warn("template cache read failed", "templateId", id, "err", err)
		}
		if s.recorder != nil {
			s.recorder.CacheLookup(ok)
		}
		if ok {
			return snap, nil
		}
	}

	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return widget.Snapshot{}, err
	}
	if t.Status != StatusActive {
		return widget.Snapshot{}, ErrNotActive
	}
	snap := t.Snapshot(language, platform)
	if s.cache != nil {
		if err := s.cache.Set(ctx, snap); err != nil {
			slog.Warn("template cache write failed", "templateId", id, "err", err)
		}
	}
	return snap, nil
}

// RequireActive loads a template that is accepting consent.
func (s *Service) RequireActive(ctx context.Context, id string) (Template, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return Template{}, err
	}
	if t.Status != StatusActive {
		return Template{}, ErrNotActive
	}
	return t, nil
}

func (s *Service) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("template cache invalidate failed", "templateId", id, "err", err)
	}
}
