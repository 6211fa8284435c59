package widget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// BannerState is the banner page's UI step.
type BannerState int

const (
	StateLoading BannerState = iota
	StateQuickActions
	StateDetailedPreferences
	StateHidden
)

func (s BannerState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateQuickActions:
		return "quick-actions"
	case StateDetailedPreferences:
		return "detailed-preferences"
	case StateHidden:
		return "hidden"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	ErrInvalidTransition = errors.New("action not allowed in current banner state")
	ErrRequiredPurpose   = errors.New("required purposes cannot be disabled")
	ErrUnknownPurpose    = errors.New("unknown purpose")
)

// Poster delivers a message to the parent window.
type Poster interface {
	PostToParent(msg Message, targetOrigin string)
}

// PosterFunc adapts a function to Poster.
type PosterFunc func(msg Message, targetOrigin string)

func (f PosterFunc) PostToParent(msg Message, targetOrigin string) { f(msg, targetOrigin) }

type BannerOptions struct {
	// TargetOrigin restricts where decisions are posted. Empty means "*".
	TargetOrigin string
	Now          func() time.Time
	Logger       *slog.Logger
}

type purposeToggle struct {
	Purpose
	enabled bool
}

// Banner is the consent UI running inside the frame. It never touches the
// parent page; everything leaves through the Poster.
type Banner struct {
	poster Poster
	opts   BannerOptions
	log    *slog.Logger

	mu       sync.Mutex
	state    BannerState
	snapshot Snapshot
	purposes []purposeToggle
	language string
}

func NewBanner(poster Poster, language string, opts BannerOptions) *Banner {
	if opts.TargetOrigin == "" {
		opts.TargetOrigin = AnyOrigin
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if language == "" {
		language = DefaultLanguage
	}
	return &Banner{
		poster:   poster,
		opts:     opts,
		log:      opts.Logger.With("component", "consent-banner"),
		state:    StateLoading,
		language: language,
	}
}

// Resolve picks the snapshot to render: the inline templateData parameter
// when it parses, else the public endpoint, else the built-in default.
func Resolve(ctx context.Context, templateData string, src TemplateSource, templateID, language, platform string) Snapshot {
	if templateData != "" {
		var snap Snapshot
		if err := json.Unmarshal([]byte(templateData), &snap); err == nil && len(snap.Purposes) > 0 {
			return snap
		}
	}
	if src != nil {
		if snap, err := src.FetchTemplate(ctx, templateID, language, platform); err == nil {
			return snap
		}
	}
	return FallbackTemplate(templateID, language, platform)
}

// Load leaves the Loading state. Required purposes start enabled, the rest
// disabled.
func (b *Banner) Load(snap Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snapshot = snap
	b.purposes = make([]purposeToggle, len(snap.Purposes))
	for i, p := range snap.Purposes {
		b.purposes[i] = purposeToggle{Purpose: p, enabled: p.Required}
	}
	b.state = StateQuickActions
}

func (b *Banner) State() BannerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Banner) Language() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.language
}

func (b *Banner) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshot
}

// Customize opens the per-purpose toggles.
func (b *Banner) Customize() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateQuickActions {
		return ErrInvalidTransition
	}
	b.state = StateDetailedPreferences
	return nil
}

// Close returns from the detailed view to the quick actions.
func (b *Banner) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateDetailedPreferences {
		return ErrInvalidTransition
	}
	b.state = StateQuickActions
	return nil
}

// Reopen makes a hidden banner interactive again.
func (b *Banner) Reopen() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateHidden {
		return ErrInvalidTransition
	}
	b.state = StateQuickActions
	return nil
}

// Toggle sets one purpose. Required purposes stay locked on.
func (b *Banner) Toggle(purposeID string, enabled bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateDetailedPreferences {
		return ErrInvalidTransition
	}
	for i := range b.purposes {
		if b.purposes[i].ID != purposeID {
			continue
		}
		if b.purposes[i].Required {
			if !enabled {
				return ErrRequiredPurpose
			}
			return nil
		}
		b.purposes[i].enabled = enabled
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownPurpose, purposeID)
}

// Enabled reports a purpose's toggle state.
func (b *Banner) Enabled(purposeID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range b.purposes {
		if p.ID == purposeID {
			return p.enabled || p.Required
		}
	}
	return false
}

// EnabledPurposes lists enabled purpose ids in template order. Required
// purposes are always included.
func (b *Banner) EnabledPurposes() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabledLocked()
}

func (b *Banner) enabledLocked() []string {
	out := make([]string, 0, len(b.purposes))
	for _, p := range b.purposes {
		if p.enabled || p.Required {
			out = append(out, p.ID)
		}
	}
	return out
}

// AcceptAll enables every purpose and emits an accepted decision.
func (b *Banner) AcceptAll() error {
	return b.decide(StatusAccepted, func(p *purposeToggle) { p.enabled = true }, StateQuickActions, StateDetailedPreferences)
}

// RejectAll keeps only required purposes and emits a rejected decision.
func (b *Banner) RejectAll() error {
	return b.decide(StatusRejected, func(p *purposeToggle) { p.enabled = p.Required }, StateQuickActions, StateDetailedPreferences)
}

// Save emits the current toggles as an updated decision.
func (b *Banner) Save() error {
	return b.decide(StatusUpdated, nil, StateDetailedPreferences)
}

func (b *Banner) decide(status string, apply func(*purposeToggle), allowed ...BannerState) error {
	b.mu.Lock()
	if !stateIn(b.state, allowed) {
		b.mu.Unlock()
		return ErrInvalidTransition
	}
	if apply != nil {
		for i := range b.purposes {
			apply(&b.purposes[i])
		}
	}
	enabled := b.enabledLocked()
	b.state = StateHidden
	b.mu.Unlock()

	return b.EmitConsentAction(status, enabled)
}

// Dismiss hides the banner without a decision and tells the parent.
func (b *Banner) Dismiss() error {
	b.mu.Lock()
	if b.state == StateHidden || b.state == StateLoading {
		b.mu.Unlock()
		return ErrInvalidTransition
	}
	b.state = StateHidden
	b.mu.Unlock()
	return b.post(MsgCloseBanner, nil)
}

// ChangeLanguage switches the banner language and informs the parent.
func (b *Banner) ChangeLanguage(language string) error {
	if language == "" {
		return errors.New("language is required")
	}
	b.mu.Lock()
	b.language = language
	b.mu.Unlock()
	return b.EmitLanguageChange(language)
}

// EmitConsentAction posts a CONSENT_ACTION carrying the decision.
func (b *Banner) EmitConsentAction(status string, purposeIDs []string) error {
	if purposeIDs == nil {
		purposeIDs = []string{}
	}
	return b.post(MsgConsentAction, Decision{
		Status:    status,
		Purposes:  purposeIDs,
		Timestamp: b.opts.Now().UnixMilli(),
		Language:  b.Language(),
	})
}

// EmitLanguageChange posts a LANGUAGE_CHANGE.
func (b *Banner) EmitLanguageChange(language string) error {
	return b.post(MsgLanguageChange, LanguagePayload{Language: language})
}

// ReceiveParentMessage applies UPDATE_LANGUAGE in place; other types are
// ignored.
func (b *Banner) ReceiveParentMessage(msg Message) {
	if msg.Type != MsgUpdateLanguage {
		return
	}
	var payload LanguagePayload
	if err := msg.Decode(&payload); err != nil || payload.Language == "" {
		b.log.Warn("malformed language update", "err", err)
		return
	}
	b.mu.Lock()
	b.language = payload.Language
	b.mu.Unlock()
}

func (b *Banner) post(msgType string, payload any) error {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	if b.poster == nil {
		return errors.New("banner has no parent")
	}
	b.poster.PostToParent(msg, b.opts.TargetOrigin)
	return nil
}

func stateIn(state BannerState, allowed []BannerState) bool {
	for _, s := range allowed {
		if s == state {
			return true
		}
	}
	return false
}
