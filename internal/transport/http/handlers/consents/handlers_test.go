package consentshandler

import (
	"bytes"
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dpdp/internal/domain/auth"
	"dpdp/internal/domain/consent"
	"dpdp/internal/domain/notifications"
	"dpdp/internal/domain/templates"
	"dpdp/internal/transport/http/handlers/handlertest"
	"dpdp/internal/widget"
)

type notifySpy struct {
	data []map[string]any
}

func (n *notifySpy) Notify(_ context.Context, event notifications.EventType, data map[string]any) {
	if event == notifications.EventConsentWithdrawn {
		n.data = append(n.data, data)
	}
}

type fixture struct {
	auditor *handlertest.Auditor
	notify  *notifySpy
	handler *Handler
	record  consent.Record
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	tplSvc := templates.NewService(templates.NewMemoryStore(), nil, nil)
	tpl, err := tplSvc.Create(ctx, templates.Input{
		Name:   "Newsletter",
		Status: templates.StatusActive,
		BannerConfig: widget.BannerConfig{
			Title:               "Privacy",
			Description:         "Choose",
			AcceptButtonText:    "Accept All",
			RejectButtonText:    "Reject All",
			CustomizeButtonText: "Customize",
			Position:            "bottom",
			Theme:               "light",
			PrimaryColor:        "#3b82f6",
			BackgroundColor:     "#ffffff",
			TextColor:           "#374151",
		},
		Purposes: []widget.Purpose{
			{ID: "essential", Name: "Essential", Description: "Required", Required: true, Category: "essential"},
			{ID: "marketing", Name: "Marketing", Description: "Offers", Category: "marketing"},
		},
		CreatedBy:      "admin",
		OrganizationID: "org_1",
	})
	require.NoError(t, err)

	svc := consent.NewService(consent.NewMemoryStore(), tplSvc, nil, nil)
	rec, _, err := svc.Submit(ctx, widget.Submission{
		TemplateID:      tpl.ID,
		UserReferenceID: "cust-42",
		Status:          widget.StatusAccepted,
		Purposes:        []string{"essential", "marketing"},
	}, consent.ClientMeta{IP: "203.0.113.9", UserAgent: "Mozilla/5.0"})
	require.NoError(t, err)

	f := fixture{auditor: &handlertest.Auditor{}, notify: &notifySpy{}, record: rec}
	f.handler = NewHandler(svc, f.auditor, f.notify, nil)
	return f
}

func (f fixture) router(role string) http.Handler {
	return handlertest.Router(role, func(r chi.Router) { f.handler.RegisterRoutes(r) })
}

func TestListAndGet(t *testing.T) {
	f := newFixture(t)
	h := f.router(auth.RoleAnalyst)

	rec, env := handlertest.Do(t, h, http.MethodGet, "/consents?userReferenceId=cust-42", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []consent.Record
	handlertest.Decode(t, env, &list)
	require.Len(t, list, 1)
	assert.Equal(t, f.record.ID, list[0].ID)

	rec, _ = handlertest.Do(t, h, http.MethodGet, "/consents?status=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = handlertest.Do(t, h, http.MethodGet, "/consents/"+f.record.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got consent.Record
	handlertest.Decode(t, env, &got)
	assert.ElementsMatch(t, []string{"essential", "marketing"}, got.AcceptedPurposes)

	rec, env = handlertest.Do(t, h, http.MethodGet, "/consents/cr_missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "consent_not_found", env.Error.Code)
}

func TestReceipt(t *testing.T) {
	f := newFixture(t)
	rec, _ := handlertest.Do(t, f.router(auth.RoleAnalyst), http.MethodGet, "/consents/"+f.record.ID+"/receipt", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), f.record.ID)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))
}

func TestWithdraw(t *testing.T) {
	f := newFixture(t)

	rec, _ := handlertest.Do(t, f.router(auth.RoleAnalyst), http.MethodPost, "/consents/"+f.record.ID+"/withdraw", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	h := f.router(auth.RoleDPO)
	rec, env := handlertest.Do(t, h, http.MethodPost, "/consents/"+f.record.ID+"/withdraw", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got consent.Record
	handlertest.Decode(t, env, &got)
	assert.Equal(t, consent.StatusWithdrawn, got.Status)
	assert.Equal(t, []string{"consent.withdraw"}, f.auditor.Actions())
	require.Len(t, f.notify.data, 1)
	assert.Equal(t, "user-dpo", f.notify.data[0]["actor"])

	rec, env = handlertest.Do(t, h, http.MethodPost, "/consents/"+f.record.ID+"/withdraw", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "consent_withdrawn", env.Error.Code)
}
