package widget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"
)

var ErrNotInitialized = errors.New("consent session is not initialized")

// Options configures a Session. Origin is the deployment origin the loader
// was served from; it is both the base for every request and the only origin
// whose messages are accepted.
type Options struct {
	Origin       string
	ScriptPath   string
	PII          PIIPolicy
	RequireHTTPS bool
	Sandbox      bool
	Retry        RetryPolicy

	Templates TemplateSource
	Consents  ConsentSink
	Host      Host
	Logger    *slog.Logger

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Session is one loader instance for one page load.
type Session struct {
	opts Options
	log  *slog.Logger

	mu           sync.Mutex
	initialized  bool
	cfg          Config
	snapshot     Snapshot
	frame        Frame
	frameCreated bool
	visible      bool
}

func NewSession(opts Options) *Session {
	opts.Origin = strings.TrimRight(opts.Origin, "/")
	if opts.ScriptPath == "" {
		opts.ScriptPath = ScriptPath
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	return &Session{opts: opts, log: opts.Logger.With("component", "consent-loader")}
}

// Initialize locates the loader's script tag, reads its configuration, then
// fetches the template and injects the banner. Errors are logged and
// returned; nothing is rendered when one occurs. Later calls are no-ops.
func (s *Session) Initialize(ctx context.Context, doc Document) error {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return nil
	}

	lookup := LocateScript(doc, s.opts.ScriptPath)
	if !lookup.Found() {
		s.mu.Unlock()
		s.log.Error("could not find sdk script tag")
		return ErrScriptNotFound
	}
	cfg, err := ParseConfig(lookup.Tag)
	if err != nil {
		s.mu.Unlock()
		s.log.Error("missing required configuration", "err", err)
		return err
	}
	if s.opts.RequireHTTPS {
		proto, host := doc.Location()
		if proto != "https:" && host != "localhost" && host != "127.0.0.1" {
			s.mu.Unlock()
			s.log.Error("https required", "protocol", proto, "host", host)
			return ErrInsecurePage
		}
	}
	if shape, ok := MatchPII(cfg.UserReferenceID); ok {
		if s.opts.PII == PIIBlock {
			s.mu.Unlock()
			s.log.Error("blocked: user reference contains personal data", "shape", shape)
			return fmt.Errorf("%w: %s", ErrPIIUserID, shape)
		}
		s.log.Warn("user reference looks like personal data, use opaque ids", "shape", shape)
	}
	s.cfg = cfg
	s.initialized = true
	s.mu.Unlock()

	s.log.Info("initializing", "templateId", cfg.TemplateID, "lookup", lookup.Source.String())
	snap := s.FetchTemplate(ctx, cfg.Language)
	if _, err := s.InjectBanner(snap); err != nil {
		s.log.Error("banner injection failed", "err", err)
		return err
	}
	return nil
}

// FetchTemplate performs one fetch and falls back to the built-in template
// on any failure.
func (s *Session) FetchTemplate(ctx context.Context, language string) Snapshot {
	cfg := s.Config()
	if s.opts.Templates == nil {
		return FallbackTemplate(cfg.TemplateID, language, cfg.Platform)
	}
	snap, err := s.opts.Templates.FetchTemplate(ctx, cfg.TemplateID, language, cfg.Platform)
	if err != nil {
		s.log.Warn("template fetch failed, using fallback", "templateId", cfg.TemplateID, "err", err)
		return FallbackTemplate(cfg.TemplateID, language, cfg.Platform)
	}
	return snap
}

// FrameURL builds the banner page URL carrying the snapshot inline.
func (s *Session) FrameURL(snap Snapshot) (string, error) {
	cfg := s.Config()
	data, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("encode template data: %w", err)
	}
	params := url.Values{}
	params.Set("userId", cfg.UserReferenceID)
	params.Set("platform", cfg.Platform)
	params.Set("language", cfg.Language)
	params.Set("templateData", string(data))
	return s.opts.Origin + FramePathPrefix + url.PathEscape(cfg.TemplateID) + "?" + params.Encode(), nil
}

// InjectBanner creates the banner frame. It reports false without error when
// a frame already exists.
func (s *Session) InjectBanner(snap Snapshot) (bool, error) {
	if s.opts.Host == nil {
		return false, errors.New("no host to render into")
	}
	s.mu.Lock()
	if s.frameCreated {
		s.mu.Unlock()
		return false, nil
	}
	s.frameCreated = true
	s.mu.Unlock()

	src, err := s.FrameURL(snap)
	if err == nil {
		var frame Frame
		frame, err = s.opts.Host.CreateFrame(FrameSpec{
			Src:        src,
			Style:      frameStyle(),
			Attributes: frameAttributes(s.opts.Sandbox),
		})
		if err == nil {
			s.mu.Lock()
			s.frame = frame
			s.snapshot = snap
			s.visible = true
			s.mu.Unlock()
			s.log.Info("consent banner loaded", "templateId", snap.ID)
			return true, nil
		}
	}

	s.mu.Lock()
	s.frameCreated = false
	s.mu.Unlock()
	return false, err
}

// HandleMessage is the single entry point for messages from the banner.
// Messages from any origin other than the deployment origin are dropped.
func (s *Session) HandleMessage(ctx context.Context, ev MessageEvent) {
	if ev.Origin != s.opts.Origin {
		s.log.Warn("message from unauthorized origin", "origin", ev.Origin)
		return
	}
	if !s.Initialized() {
		s.log.Warn("message before initialization ignored", "type", ev.Data.Type)
		return
	}

	switch ev.Data.Type {
	case MsgConsentAction:
		var decision Decision
		if err := ev.Data.Decode(&decision); err != nil {
			s.log.Warn("malformed consent action", "err", err)
			return
		}
		s.log.Info("consent action", "status", decision.Status)
		if err := s.SubmitConsent(ctx, decision); err != nil {
			s.log.Error("consent not saved", "err", err)
		}
	case MsgLanguageChange:
		var payload LanguagePayload
		if err := ev.Data.Decode(&payload); err != nil || payload.Language == "" {
			s.log.Warn("malformed language change", "err", err)
			return
		}
		s.mu.Lock()
		s.cfg.Language = payload.Language
		s.mu.Unlock()
	case MsgCloseBanner:
		s.HideBanner()
	default:
		s.log.Info("unknown message type", "type", ev.Data.Type)
	}
}

// SubmitConsent posts the decision, retrying per the retry policy with an
// identical body. On success the banner is hidden; when every attempt fails
// the host receives a dpdp-consent-error event.
func (s *Session) SubmitConsent(ctx context.Context, decision Decision) error {
	if !s.Initialized() {
		return ErrNotInitialized
	}
	sub := s.buildSubmission(decision)
	if s.opts.Consents == nil {
		return errors.New("no consent store configured")
	}

	attempts := s.opts.Retry.Attempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := s.opts.Sleep(ctx, s.opts.Retry.Delay); err != nil {
				lastErr = err
				break
			}
		}
		receipt, err := s.opts.Consents.SubmitConsent(ctx, sub)
		if err == nil {
			s.log.Info("consent saved", "attempt", attempt, "recordId", receipt.ID)
			s.HideBanner()
			s.dispatch(EventConsentSaved, map[string]any{
				"templateId": sub.TemplateID,
				"status":     sub.Status,
				"purposes":   sub.Purposes,
				"timestamp":  sub.Timestamp,
			})
			return nil
		}
		lastErr = err
		s.log.Warn("consent submission failed", "attempt", attempt, "err", err)
	}

	s.dispatch(EventConsentError, map[string]any{
		"error":   lastErr.Error(),
		"payload": sub,
	})
	return fmt.Errorf("submit consent: %w", lastErr)
}

func (s *Session) buildSubmission(decision Decision) Submission {
	cfg := s.Config()
	purposes := decision.Purposes
	if purposes == nil {
		purposes = []string{}
	}
	ts := decision.Timestamp
	if ts == 0 {
		ts = s.opts.Now().UnixMilli()
	}
	language := decision.Language
	if language == "" {
		language = cfg.Language
	}
	return Submission{
		TemplateID:      cfg.TemplateID,
		UserReferenceID: cfg.UserReferenceID,
		Status:          decision.Status,
		Purposes:        purposes,
		Timestamp:       ts,
		Platform:        cfg.Platform,
		Language:        language,
	}
}

// UpdateLanguage refetches the template in the new language and reloads the
// banner frame with it.
func (s *Session) UpdateLanguage(ctx context.Context, language string) error {
	language = strings.TrimSpace(language)
	if language == "" {
		return errors.New("language is required")
	}
	if !s.Initialized() {
		return ErrNotInitialized
	}
	s.mu.Lock()
	s.cfg.Language = language
	s.mu.Unlock()

	snap := s.FetchTemplate(ctx, language)
	src, err := s.FrameURL(snap)
	if err != nil {
		return err
	}

	s.mu.Lock()
	frame := s.frame
	if frame != nil {
		s.snapshot = snap
	}
	s.mu.Unlock()
	if frame != nil {
		frame.SetSrc(src)
	}
	return nil
}

func (s *Session) ShowBanner() {
	s.mu.Lock()
	frame := s.frame
	if frame != nil {
		s.visible = true
	}
	s.mu.Unlock()
	if frame != nil {
		frame.Show()
	}
}

func (s *Session) HideBanner() {
	s.mu.Lock()
	frame := s.frame
	if frame != nil {
		s.visible = false
	}
	s.mu.Unlock()
	if frame != nil {
		frame.Hide()
	}
}

func (s *Session) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

func (s *Session) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

func (s *Session) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Snapshot is the template currently rendered in the frame.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

func (s *Session) CurrentLanguage() string {
	return s.Config().Language
}

func (s *Session) SupportedLanguages() []Language {
	return SupportedLanguages()
}

func (s *Session) Version() string {
	return Version
}

func (s *Session) dispatch(event string, detail map[string]any) {
	if s.opts.Host == nil {
		return
	}
	s.opts.Host.Dispatch(event, detail)
}
