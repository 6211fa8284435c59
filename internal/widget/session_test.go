package widget

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sessionFixture struct {
	session   *Session
	host      *fakeHost
	templates *fakeTemplates
	sink      *fakeSink
	sleeper   *sleepRecorder
}

func newFixture(t *testing.T, mutate func(*Options)) *sessionFixture {
	t.Helper()
	f := &sessionFixture{
		host:      &fakeHost{},
		templates: &fakeTemplates{snap: twoPurposeTemplate()},
		sink:      &fakeSink{},
		sleeper:   &sleepRecorder{},
	}
	opts := Options{
		Origin:    testOrigin,
		Retry:     DefaultRetryPolicy(),
		Templates: f.templates,
		Consents:  f.sink,
		Host:      f.host,
		Logger:    quietLogger(),
		Sleep:     f.sleeper.Sleep,
		Now:       func() time.Time { return time.UnixMilli(1700000000000) },
	}
	if mutate != nil {
		mutate(&opts)
	}
	f.session = NewSession(opts)
	return f
}

func (f *sessionFixture) initialize(t *testing.T) {
	t.Helper()
	doc := docWithTag(map[string]string{"templateId": "t1", "userId": "cust_001"})
	require.NoError(t, f.session.Initialize(context.Background(), doc))
}

func consentEvent(t *testing.T, origin string, decision Decision) MessageEvent {
	t.Helper()
	msg, err := NewMessage(MsgConsentAction, decision)
	require.NoError(t, err)
	return MessageEvent{Origin: origin, Data: msg}
}

func TestInitializeInjectsOneBanner(t *testing.T) {
	f := newFixture(t, nil)
	f.initialize(t)

	require.Len(t, f.host.frames, 1)
	frame := f.host.frames[0]
	assert.Equal(t, "999999", frame.spec.Style["z-index"])
	assert.Equal(t, "auto", frame.spec.Style["pointer-events"])
	assert.Equal(t, "DPDP Consent Manager", frame.spec.Attributes["title"])
	assert.True(t, f.session.Visible())

	// second initialize and a direct injection are both no-ops
	require.NoError(t, f.session.Initialize(context.Background(), docWithTag(map[string]string{"templateId": "t2", "userId": "cust_002"})))
	injected, err := f.session.InjectBanner(f.session.Snapshot())
	require.NoError(t, err)
	assert.False(t, injected)
	assert.Len(t, f.host.frames, 1)
	assert.Equal(t, "t1", f.session.Config().TemplateID)
	assert.Equal(t, 1, f.templates.calls())
}

func TestInitializeConfigurationErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     *fakeDoc
		mutate  func(*Options)
		wantErr error
	}{
		{
			name:    "no script tag",
			doc:     &fakeDoc{},
			wantErr: ErrScriptNotFound,
		},
		{
			name:    "missing template id",
			doc:     docWithTag(map[string]string{"userId": "cust_001"}),
			wantErr: ErrMissingTemplateID,
		},
		{
			name:    "missing user id",
			doc:     docWithTag(map[string]string{"templateId": "t1"}),
			wantErr: ErrMissingUserID,
		},
		{
			name:    "pii blocked",
			doc:     docWithTag(map[string]string{"templateId": "t1", "userId": "user@example.com"}),
			mutate:  func(o *Options) { o.PII = PIIBlock },
			wantErr: ErrPIIUserID,
		},
		{
			name: "plain http outside localhost",
			doc: &fakeDoc{
				current:  &ScriptTag{Data: map[string]string{"templateId": "t1", "userId": "cust_001"}},
				protocol: "http:",
				hostname: "shop.example.org",
			},
			mutate:  func(o *Options) { o.RequireHTTPS = true },
			wantErr: ErrInsecurePage,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.mutate)
			err := f.session.Initialize(context.Background(), tc.doc)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if len(f.host.frames) != 0 {
				t.Fatalf("expected no frame, got %d", len(f.host.frames))
			}
			if f.templates.calls() != 0 {
				t.Fatalf("expected no template fetch, got %d", f.templates.calls())
			}
		})
	}
}

func TestInitializeHTTPAllowedOnLocalhost(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.RequireHTTPS = true })
	doc := &fakeDoc{
		current:  &ScriptTag{Data: map[string]string{"templateId": "t1", "userId": "cust_001"}},
		protocol: "http:",
		hostname: "localhost",
	}
	require.NoError(t, f.session.Initialize(context.Background(), doc))
	assert.Len(t, f.host.frames, 1)
}

func TestInitializePIIWarnContinues(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.PII = PIIWarn })
	doc := docWithTag(map[string]string{"templateId": "t1", "userId": "9876543210"})
	require.NoError(t, f.session.Initialize(context.Background(), doc))
	assert.Len(t, f.host.frames, 1)
}

func TestFetchFailureFallsBackToDefaultTemplate(t *testing.T) {
	f := newFixture(t, nil)
	f.templates.err = &StatusError{Code: 503}
	f.initialize(t)

	require.Len(t, f.host.frames, 1)
	snap := f.session.Snapshot()
	require.NotEmpty(t, snap.Purposes)
	assert.Equal(t, "essential", snap.Purposes[0].ID)
	assert.True(t, snap.Purposes[0].Required)
	assert.True(t, snap.Fallback())
	assert.Equal(t, 1, f.templates.calls(), "template fetch must not be retried")

	parsed, err := url.Parse(f.host.frames[0].Src())
	require.NoError(t, err)
	var inline Snapshot
	require.NoError(t, json.Unmarshal([]byte(parsed.Query().Get("templateData")), &inline))
	assert.Equal(t, "t1", inline.ID)
	assert.Equal(t, "essential", inline.Purposes[0].ID)
}

func TestFrameURL(t *testing.T) {
	f := newFixture(t, nil)
	f.initialize(t)

	parsed, err := url.Parse(f.host.frames[0].Src())
	require.NoError(t, err)
	assert.Equal(t, "consent.example.com", parsed.Host)
	assert.Equal(t, "/iframe/t1", parsed.Path)
	q := parsed.Query()
	assert.Equal(t, "cust_001", q.Get("userId"))
	assert.Equal(t, "web", q.Get("platform"))
	assert.Equal(t, "en", q.Get("language"))
	assert.True(t, strings.Contains(q.Get("templateData"), `"analytics"`))
}

func TestHandleMessageRejectsForeignOrigin(t *testing.T) {
	types := []string{MsgConsentAction, MsgLanguageChange, MsgCloseBanner, "SOMETHING_ELSE"}
	origins := []string{"https://evil.example.com", "http://consent.example.com", testOrigin + ":443", "", "*"}

	for _, msgType := range types {
		for _, origin := range origins {
			msgType, origin := msgType, origin
			t.Run(msgType+" from "+origin, func(t *testing.T) {
				f := newFixture(t, nil)
				f.initialize(t)
				before := f.session.Config()

				var payload any
				switch msgType {
				case MsgConsentAction:
					payload = Decision{Status: StatusAccepted, Purposes: []string{"essential"}}
				case MsgLanguageChange:
					payload = LanguagePayload{Language: "hi"}
				}
				msg, err := NewMessage(msgType, payload)
				require.NoError(t, err)

				f.session.HandleMessage(context.Background(), MessageEvent{Origin: origin, Data: msg})

				assert.Empty(t, f.sink.submissions())
				assert.Equal(t, before, f.session.Config())
				assert.True(t, f.session.Visible())
				assert.True(t, f.host.frames[0].Visible())
				assert.Equal(t, 1, f.templates.calls())
			})
		}
	}
}

func TestHandleMessageDispatch(t *testing.T) {
	f := newFixture(t, nil)
	f.initialize(t)

	langMsg, err := NewMessage(MsgLanguageChange, LanguagePayload{Language: "ta"})
	require.NoError(t, err)
	f.session.HandleMessage(context.Background(), MessageEvent{Origin: testOrigin, Data: langMsg})
	assert.Equal(t, "ta", f.session.CurrentLanguage())

	f.session.HandleMessage(context.Background(), MessageEvent{Origin: testOrigin, Data: Message{Type: "PING"}})
	assert.True(t, f.session.Visible())

	f.session.HandleMessage(context.Background(), MessageEvent{Origin: testOrigin, Data: Message{Type: MsgCloseBanner}})
	assert.False(t, f.session.Visible())
	assert.False(t, f.host.frames[0].Visible())

	f.session.ShowBanner()
	assert.True(t, f.host.frames[0].Visible())
	assert.Len(t, f.host.frames, 1)
	assert.Equal(t, 1, f.templates.calls(), "show must not refetch")
}

func TestSubmitRetriesOnceWithIdenticalBody(t *testing.T) {
	f := newFixture(t, nil)
	f.sink.failures = 1
	f.initialize(t)

	f.session.HandleMessage(context.Background(), consentEvent(t, testOrigin, Decision{
		Status:    StatusAccepted,
		Purposes:  []string{"essential", "analytics"},
		Timestamp: 1700000000123,
		Language:  "en",
	}))

	calls := f.sink.submissions()
	require.Len(t, calls, 2)
	assert.Equal(t, calls[0], calls[1])
	first, err := json.Marshal(calls[0])
	require.NoError(t, err)
	second, err := json.Marshal(calls[1])
	require.NoError(t, err)
	assert.JSONEq(t, string(first), string(second))

	assert.Equal(t, []time.Duration{time.Second}, f.sleeper.delays)
	assert.False(t, f.session.Visible(), "banner hides after a successful retry")
	assert.False(t, f.host.frames[0].Visible())
	assert.Equal(t, []string{EventConsentSaved}, f.host.eventNames())
}

func TestSubmitGivesUpAfterSingleRetry(t *testing.T) {
	f := newFixture(t, nil)
	f.sink.failures = -1
	f.initialize(t)

	err := f.session.SubmitConsent(context.Background(), Decision{Status: StatusRejected, Purposes: []string{"essential"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, errOffline)

	assert.Len(t, f.sink.submissions(), 2, "no third attempt")
	assert.True(t, f.session.Visible())
	require.Equal(t, []string{EventConsentError}, f.host.eventNames())
	detail := f.host.events[0].detail
	assert.Equal(t, errOffline.Error(), detail["error"])
	sub, ok := detail["payload"].(Submission)
	require.True(t, ok)
	assert.Equal(t, "cust_001", sub.UserReferenceID)
}

func TestSubmitRetryPolicyIsConfigurable(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.Retry = RetryPolicy{Retries: 3, Delay: 250 * time.Millisecond}
	})
	f.sink.failures = -1
	f.initialize(t)

	require.Error(t, f.session.SubmitConsent(context.Background(), Decision{Status: StatusAccepted}))
	assert.Len(t, f.sink.submissions(), 4)
	assert.Equal(t, []time.Duration{250 * time.Millisecond, 250 * time.Millisecond, 250 * time.Millisecond}, f.sleeper.delays)
}

func TestSubmitRetryStopsOnCancelledContext(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Sleep = sleepContext })
	f.sink.failures = -1
	f.initialize(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := f.session.SubmitConsent(ctx, Decision{Status: StatusAccepted})
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, f.sink.submissions(), 1)
}

func TestSubmitFillsDefaults(t *testing.T) {
	f := newFixture(t, nil)
	f.initialize(t)

	require.NoError(t, f.session.SubmitConsent(context.Background(), Decision{Status: StatusUpdated}))
	calls := f.sink.submissions()
	require.Len(t, calls, 1)
	assert.Equal(t, Submission{
		TemplateID:      "t1",
		UserReferenceID: "cust_001",
		Status:          StatusUpdated,
		Purposes:        []string{},
		Timestamp:       1700000000000,
		Platform:        "web",
		Language:        "en",
	}, calls[0])
}

func TestSubmitBeforeInitialize(t *testing.T) {
	f := newFixture(t, nil)
	err := f.session.SubmitConsent(context.Background(), Decision{Status: StatusAccepted})
	require.ErrorIs(t, err, ErrNotInitialized)
	assert.Empty(t, f.sink.submissions())
}

func TestUpdateLanguageReloadsFrame(t *testing.T) {
	f := newFixture(t, nil)
	f.initialize(t)
	originalSrc := f.host.frames[0].Src()

	require.NoError(t, f.session.UpdateLanguage(context.Background(), "mr"))

	assert.Equal(t, "mr", f.session.CurrentLanguage())
	assert.Equal(t, []string{"en", "mr"}, f.templates.languages)
	require.Len(t, f.host.frames, 1)
	newSrc := f.host.frames[0].Src()
	assert.NotEqual(t, originalSrc, newSrc)
	parsed, err := url.Parse(newSrc)
	require.NoError(t, err)
	assert.Equal(t, "mr", parsed.Query().Get("language"))
	assert.Equal(t, "mr", f.session.Snapshot().Language)
}

func TestPublicAPI(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, "1.0.0", f.session.Version())
	langs := f.session.SupportedLanguages()
	require.Len(t, langs, 19)
	assert.Equal(t, "en", langs[0].Code)
	assert.Equal(t, "Marathi - मराठी", langs[1].Label())
	require.ErrorIs(t, f.session.UpdateLanguage(context.Background(), "hi"), ErrNotInitialized)
}

func TestInjectBannerHostFailureCanRetry(t *testing.T) {
	f := newFixture(t, nil)
	f.host.failCreate = true
	doc := docWithTag(map[string]string{"templateId": "t1", "userId": "cust_001"})
	require.Error(t, f.session.Initialize(context.Background(), doc))

	f.host.failCreate = false
	injected, err := f.session.InjectBanner(f.session.FetchTemplate(context.Background(), "en"))
	require.NoError(t, err)
	assert.True(t, injected)
	assert.Len(t, f.host.frames, 1)
}
