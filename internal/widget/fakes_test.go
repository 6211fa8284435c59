package widget

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

var errOffline = errors.New("network offline")

const testOrigin = "https://consent.example.com"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeDoc struct {
	current  *ScriptTag
	scripts  []ScriptTag
	protocol string
	hostname string
}

func (d *fakeDoc) CurrentScript() (ScriptTag, bool) {
	if d.current == nil {
		return ScriptTag{}, false
	}
	return *d.current, true
}

func (d *fakeDoc) Scripts() []ScriptTag { return d.scripts }

func (d *fakeDoc) Location() (string, string) {
	if d.protocol == "" {
		return "https:", "shop.example.org"
	}
	return d.protocol, d.hostname
}

func docWithTag(data map[string]string) *fakeDoc {
	tag := ScriptTag{Src: testOrigin + ScriptPath, Data: data}
	return &fakeDoc{current: &tag}
}

type fakeFrame struct {
	mu      sync.Mutex
	src     string
	spec    FrameSpec
	visible bool
	posts   []Message
}

func (f *fakeFrame) SetSrc(src string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.src = src
}

func (f *fakeFrame) Show() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visible = true
}

func (f *fakeFrame) Hide() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visible = false
}

func (f *fakeFrame) Post(msg Message, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, msg)
}

func (f *fakeFrame) Src() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.src
}

func (f *fakeFrame) Visible() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visible
}

type hostEvent struct {
	name   string
	detail map[string]any
}

type fakeHost struct {
	mu         sync.Mutex
	frames     []*fakeFrame
	events     []hostEvent
	failCreate bool
	onCreate   func(*fakeFrame)
}

func (h *fakeHost) CreateFrame(spec FrameSpec) (Frame, error) {
	if h.failCreate {
		return nil, errors.New("no document body")
	}
	frame := &fakeFrame{src: spec.Src, spec: spec, visible: true}
	h.mu.Lock()
	h.frames = append(h.frames, frame)
	h.mu.Unlock()
	if h.onCreate != nil {
		h.onCreate(frame)
	}
	return frame, nil
}

func (h *fakeHost) Dispatch(event string, detail map[string]any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, hostEvent{name: event, detail: detail})
}

func (h *fakeHost) eventNames() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.events))
	for _, e := range h.events {
		out = append(out, e.name)
	}
	return out
}

type fakeTemplates struct {
	mu        sync.Mutex
	snap      Snapshot
	err       error
	languages []string
}

func (f *fakeTemplates) FetchTemplate(_ context.Context, templateID, language, platform string) (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.languages = append(f.languages, language)
	if f.err != nil {
		return Snapshot{}, f.err
	}
	snap := f.snap
	snap.ID = templateID
	snap.Language = language
	snap.Platform = platform
	return snap, nil
}

func (f *fakeTemplates) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.languages)
}

type fakeSink struct {
	mu       sync.Mutex
	failures int
	calls    []Submission
}

func (f *fakeSink) SubmitConsent(_ context.Context, sub Submission) (Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sub)
	if f.failures < 0 || len(f.calls) <= f.failures {
		return Receipt{}, errOffline
	}
	return Receipt{ID: "consent_1", TemplateID: sub.TemplateID, Status: sub.Status, Purposes: sub.Purposes}, nil
}

func (f *fakeSink) submissions() []Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Submission, len(f.calls))
	copy(out, f.calls)
	return out
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) Sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return nil
}

func twoPurposeTemplate() Snapshot {
	return Snapshot{
		Name:   "Storefront",
		Config: FallbackTemplate("", "", "").Config,
		Purposes: []Purpose{
			{ID: "essential", Name: "Essential", Required: true, Category: "essential"},
			{ID: "analytics", Name: "Analytics", Required: false, Category: "analytics"},
		},
	}
}
