package widgethandler

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	htmltemplate "html/template"
	"log/slog"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/go-chi/chi/v5"

	"dpdp/internal/widget"
)

//go:embed assets/*
var assets embed.FS

var (
	loaderTemplate = template.Must(template.New("loader.js.tmpl").
			Funcs(template.FuncMap{"json": jsonLiteral}).
			ParseFS(assets, "assets/loader.js.tmpl"))
	bannerTemplate = htmltemplate.Must(htmltemplate.ParseFS(assets, "assets/banner.html.tmpl"))
)

func jsonLiteral(v any) (string, error) {
	raw, err := json.Marshal(v)
	return string(raw), err
}

type SnapshotSource interface {
	PublicSnapshot(ctx context.Context, id, language, platform string) (widget.Snapshot, error)
}

// Options are the deployment values baked into the loader script.
type Options struct {
	Origin       string
	ParentOrigin string
	StrictPII    bool
	RetryCount   int
	RetryDelay   time.Duration
}

// Handler serves the loader script and the banner page the loader frames.
type Handler struct {
	Templates SnapshotSource
	Options   Options
	loader    []byte
}

func NewHandler(templates SnapshotSource, opts Options) (*Handler, error) {
	h := &Handler{Templates: templates, Options: opts}
	loader, err := h.renderLoader()
	if err != nil {
		return nil, err
	}
	h.loader = loader
	return h, nil
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get(widget.ScriptPath, h.handleLoader)
	r.Get("/iframe/assets/banner.js", h.handleBannerScript)
	r.Get("/iframe/{templateId}", h.handleBanner)
}

type loaderData struct {
	Version        string
	Origin         string
	ScriptPath     string
	SubmitPath     string
	TemplatePath   string
	StrictPII      bool
	RetryCount     int
	RetryDelayMs   int64
	PIIPatterns    []string
	MinPhoneDigits int
	Languages      []widget.Language
	Fallback       widget.Snapshot
	SavedEvent     string
	ErrorEvent     string
}

func (h *Handler) renderLoader() ([]byte, error) {
	patterns := widget.PIIPatterns()
	sources := make([]string, 0, len(patterns))
	for _, p := range patterns {
		sources = append(sources, p.Source)
	}
	data := loaderData{
		Version:        widget.Version,
		Origin:         strings.TrimRight(h.Options.Origin, "/"),
		ScriptPath:     widget.ScriptPath,
		SubmitPath:     widget.SubmitPath,
		TemplatePath:   widget.TemplatePathPrefix,
		StrictPII:      h.Options.StrictPII,
		RetryCount:     h.Options.RetryCount,
		RetryDelayMs:   h.Options.RetryDelay.Milliseconds(),
		PIIPatterns:    sources,
		MinPhoneDigits: widget.MinPhoneDigits,
		Languages:      widget.SupportedLanguages(),
		Fallback:       widget.FallbackTemplate("", "", ""),
		SavedEvent:     widget.EventConsentSaved,
		ErrorEvent:     widget.EventConsentError,
	}
	var buf bytes.Buffer
	if err := loaderTemplate.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (h *Handler) handleLoader(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300")
	_, _ = w.Write(h.loader)
}

func (h *Handler) handleBannerScript(w http.ResponseWriter, _ *http.Request) {
	raw, err := assets.ReadFile("assets/banner.js")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300")
	_, _ = w.Write(raw)
}

// fetcher adapts the template service to the banner's TemplateSource.
type fetcher struct{ src SnapshotSource }

func (f fetcher) FetchTemplate(ctx context.Context, templateID, language, platform string) (widget.Snapshot, error) {
	return f.src.PublicSnapshot(ctx, templateID, language, platform)
}

type bannerData struct {
	Snapshot     widget.Snapshot `json:"snapshot"`
	TargetOrigin string          `json:"targetOrigin"`
	TemplateURL  string          `json:"templateURL"`
	Platform     string          `json:"platform"`
	Language     string          `json:"language"`
}

type bannerPage struct {
	Title      string
	Language   string
	Position   string
	Background string
	Text       string
	Primary    string
	Languages  []widget.Language
	Data       bannerData
}

func (h *Handler) handleBanner(w http.ResponseWriter, r *http.Request) {
	templateID := strings.TrimSpace(chi.URLParam(r, "templateId"))
	q := r.URL.Query()
	language := strings.TrimSpace(q.Get("language"))
	if language == "" {
		language = widget.DefaultLanguage
	}
	platform := strings.TrimSpace(q.Get("platform"))
	if platform == "" {
		platform = widget.DefaultPlatform
	}

	var src widget.TemplateSource
	if h.Templates != nil {
		src = fetcher{src: h.Templates}
	}
	snap := widget.Resolve(r.Context(), q.Get("templateData"), src, templateID, language, platform)

	target := h.Options.ParentOrigin
	if target == "" {
		target = widget.AnyOrigin
	}
	cfg := snap.Config
	page := bannerPage{
		Title:      cfg.Title,
		Language:   language,
		Position:   orDefault(cfg.Position, "bottom"),
		Background: orDefault(cfg.BackgroundColor, "#ffffff"),
		Text:       orDefault(cfg.TextColor, "#374151"),
		Primary:    orDefault(cfg.PrimaryColor, "#3b82f6"),
		Languages:  widget.BannerLanguages,
		Data: bannerData{
			Snapshot:     snap,
			TargetOrigin: target,
			TemplateURL:  widget.TemplatePathPrefix + templateID,
			Platform:     platform,
			Language:     language,
		},
	}

	var buf bytes.Buffer
	if err := bannerTemplate.Execute(&buf, page); err != nil {
		slog.Warn("banner render failed", "templateId", templateID, "err", err)
		http.Error(w, "banner unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
