package consent

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dpdp/internal/domain/settings"
	"dpdp/internal/domain/templates"
	"dpdp/internal/platform/validate"
	"dpdp/internal/widget"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type stubTemplates map[string]templates.Template

func (s stubTemplates) Get(_ context.Context, id string) (templates.Template, error) {
	t, ok := s[id]
	if !ok {
		return templates.Template{}, templates.ErrNotFound
	}
	return t, nil
}

func (s stubTemplates) RequireActive(ctx context.Context, id string) (templates.Template, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return t, err
	}
	if t.Status != templates.StatusActive {
		return templates.Template{}, templates.ErrNotActive
	}
	return t, nil
}

type stubSettings struct {
	s   settings.Settings
	err error
}

func (s stubSettings) Get(context.Context) (settings.Settings, error) { return s.s, s.err }

type countingRecorder struct {
	mu      sync.Mutex
	created int
	updated int
}

func (c *countingRecorder) ConsentStored(_ string, created bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if created {
		c.created++
	} else {
		c.updated++
	}
}

var fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *MemoryStore, *countingRecorder) {
	t.Helper()
	tpls := stubTemplates{
		"tpl_main": {
			ID:     "tpl_main",
			Name:   "Main site",
			Status: templates.StatusActive,
			Purposes: []widget.Purpose{
				{ID: "essential", Name: "Essential", Required: true},
				{ID: "analytics", Name: "Analytics"},
				{ID: "marketing", Name: "Marketing"},
			},
		},
		"tpl_draft": {ID: "tpl_draft", Status: templates.StatusDraft},
	}
	store := NewMemoryStore()
	rec := &countingRecorder{}
	cfg := settings.Defaults()
	cfg.DefaultPurposeValidity = 6
	svc := NewService(store, tpls, stubSettings{s: cfg}, rec)
	svc.now = func() time.Time { return fixedNow }
	return svc, store, rec
}

func submission(status string, purposes ...string) widget.Submission {
	return widget.Submission{
		TemplateID:      "tpl_main",
		UserReferenceID: "user-42",
		Status:          status,
		Purposes:        purposes,
		Timestamp:       fixedNow.UnixMilli(),
	}
}

func TestSubmitCreatesThenUpdatesSameRecord(t *testing.T) {
	svc, store, recorder := newTestService(t)
	ctx := context.Background()

	first, created, err := svc.Submit(ctx, submission(StatusAccepted, "essential", "analytics", "marketing"), ClientMeta{IP: "10.0.0.1", UserAgent: chromeUA})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 1, first.Version)

	second, created, err := svc.Submit(ctx, submission(StatusRejected, "essential"), ClientMeta{IP: "10.0.0.2"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.Version)
	assert.Equal(t, StatusRejected, second.Status)
	assert.Equal(t, []string{"essential"}, second.AcceptedPurposes)
	assert.Equal(t, "10.0.0.2", second.IPAddress)
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, 1, recorder.created)
	assert.Equal(t, 1, recorder.updated)
}

func TestSubmitConcurrentWritersConverge(t *testing.T) {
	svc, store, _ := newTestService(t)
	const writers = 20

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := svc.Submit(context.Background(), submission(StatusAccepted, "essential"), ClientMeta{})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	list, total, err := store.List(context.Background(), Filter{TemplateID: "tpl_main"}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, writers, list[0].Version)
}

func TestSubmitDerivesMetadata(t *testing.T) {
	svc, _, _ := newTestService(t)
	sub := submission(StatusPartial, "analytics")
	sub.Timestamp = 0

	rec, _, err := svc.Submit(context.Background(), sub, ClientMeta{UserAgent: chromeUA})
	require.NoError(t, err)
	assert.Equal(t, widget.DefaultPlatform, rec.Platform)
	assert.Equal(t, widget.DefaultLanguage, rec.Language)
	assert.Equal(t, fixedNow, rec.ConsentTimestamp)
	require.NotNil(t, rec.ExpiryDate)
	assert.Equal(t, fixedNow.AddDate(0, 6, 0), *rec.ExpiryDate)
	assert.Equal(t, "Chrome 120", rec.Browser)
	assert.Contains(t, rec.OS, "Windows")
	assert.Equal(t, []string{"analytics", "essential"}, rec.AcceptedPurposes, "required purposes are always recorded")
}

func TestSubmitFallsBackToDefaultSettings(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.settings = stubSettings{err: errors.New("db down")}

	rec, _, err := svc.Submit(context.Background(), submission(StatusAccepted, "essential"), ClientMeta{})
	require.NoError(t, err)
	assert.Equal(t, fixedNow.AddDate(0, 12, 0), *rec.ExpiryDate)
}

func TestSubmitRejections(t *testing.T) {
	svc, store, _ := newTestService(t)

	tests := []struct {
		name   string
		mutate func(*widget.Submission)
		check  func(t *testing.T, err error)
	}{
		{
			name:   "missing user reference",
			mutate: func(s *widget.Submission) { s.UserReferenceID = "  " },
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrMissingFields) },
		},
		{
			name:   "missing status",
			mutate: func(s *widget.Submission) { s.Status = "" },
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrMissingFields) },
		},
		{
			name:   "unknown template",
			mutate: func(s *widget.Submission) { s.TemplateID = "tpl_gone" },
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, templates.ErrNotFound) },
		},
		{
			name:   "inactive template",
			mutate: func(s *widget.Submission) { s.TemplateID = "tpl_draft" },
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, templates.ErrNotActive) },
		},
		{
			name:   "bad status",
			mutate: func(s *widget.Submission) { s.Status = "maybe" },
			check:  assertValidation("status"),
		},
		{
			name:   "negative timestamp",
			mutate: func(s *widget.Submission) { s.Timestamp = -5 },
			check:  assertValidation("timestamp"),
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			sub := submission(StatusAccepted, "essential")
			tc.mutate(&sub)
			_, _, err := svc.Submit(context.Background(), sub, ClientMeta{})
			require.Error(t, err)
			tc.check(t, err)
		})
	}
	assert.Equal(t, 0, store.Len())
}

func TestSubmitDropsPurposesNoLongerOffered(t *testing.T) {
	svc, store, _ := newTestService(t)

	rec, created, err := svc.Submit(context.Background(),
		submission(StatusUpdated, "personalization", "marketing", "marketing"), ClientMeta{})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, []string{"marketing", "essential"}, rec.AcceptedPurposes)
	assert.Equal(t, 1, store.Len())
}

func TestSubmitAcceptsEveryLoaderLanguage(t *testing.T) {
	svc, _, _ := newTestService(t)

	for _, lang := range widget.SupportedLanguages() {
		t.Run(lang.Code, func(t *testing.T) {
			sub := submission(StatusAccepted, "essential")
			sub.UserReferenceID = "user-" + lang.Code
			sub.Language = lang.Code
			rec, _, err := svc.Submit(context.Background(), sub, ClientMeta{})
			require.NoError(t, err)
			assert.Equal(t, lang.Code, rec.Language)
		})
	}
}

func assertValidation(field string) func(t *testing.T, err error) {
	return func(t *testing.T, err error) {
		var verr *validate.Error
		require.ErrorAs(t, err, &verr)
		require.NotEmpty(t, verr.Issues)
		assert.Equal(t, field, verr.Issues[0].Field)
	}
}

func TestListForReferenceNeedsFilter(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, _, err := svc.ListForReference(context.Background(), Filter{Status: StatusAccepted}, 10, 0)
	assert.ErrorIs(t, err, ErrFilterRequired)

	_, _, err = svc.Submit(context.Background(), submission(StatusAccepted, "essential"), ClientMeta{})
	require.NoError(t, err)
	list, total, err := svc.ListForReference(context.Background(), Filter{UserReferenceID: "user-42"}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, list, 1)
}

func TestWithdraw(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	rec, _, err := svc.Submit(ctx, submission(StatusAccepted, "essential", "analytics"), ClientMeta{})
	require.NoError(t, err)

	out, err := svc.Withdraw(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusWithdrawn, out.Status)
	assert.Empty(t, out.AcceptedPurposes)
	assert.Equal(t, 2, out.Version)

	_, err = svc.Withdraw(ctx, rec.ID)
	assert.ErrorIs(t, err, ErrAlreadyWithdrawn)

	_, err = svc.Withdraw(ctx, "cns_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReceiptPDF(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	rec, _, err := svc.Submit(ctx, submission(StatusAccepted, "essential", "analytics"), ClientMeta{})
	require.NoError(t, err)

	pdf, got, err := svc.ReceiptPDF(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))

	_, _, err = svc.ReceiptPDF(ctx, "cns_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordReceipt(t *testing.T) {
	rec := Record{ID: "cns_1", TemplateID: "tpl_main", UserReferenceID: "u", Status: StatusAccepted,
		ConsentTimestamp: fixedNow, Platform: "web", Language: "hi"}
	r := rec.Receipt()
	assert.Equal(t, fixedNow.UnixMilli(), r.Timestamp)
	assert.NotNil(t, r.Purposes)
	assert.Equal(t, "hi", r.Language)
}

func TestDescribeAgent(t *testing.T) {
	browser, osName := describeAgent("")
	assert.Equal(t, "unknown", browser)
	assert.Equal(t, "unknown", osName)

	browser, _ = describeAgent("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)")
	assert.Contains(t, browser, "(bot)")
}
