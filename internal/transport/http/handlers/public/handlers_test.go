package publichandler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dpdp/internal/domain/consent"
	"dpdp/internal/domain/templates"
	"dpdp/internal/widget"
)

func templateInput(status string) templates.Input {
	return templates.Input{
		Name:   "Storefront",
		Status: status,
		BannerConfig: widget.BannerConfig{
			Title:               "We value your privacy",
			Description:         "Choose how we use your data.",
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
			{ID: "analytics", Name: "Analytics", Description: "Usage stats", Category: "analytics"},
		},
		CreatedBy:      "admin",
		OrganizationID: "org_1",
	}
}

type fixture struct {
	server   *httptest.Server
	active   templates.Template
	inactive templates.Template
	records  *consent.MemoryStore
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	tplSvc := templates.NewService(templates.NewMemoryStore(), nil, nil)
	active, err := tplSvc.Create(ctx, templateInput(templates.StatusActive))
	require.NoError(t, err)
	inactive, err := tplSvc.Create(ctx, templateInput(templates.StatusInactive))
	require.NoError(t, err)

	records := consent.NewMemoryStore()
	consents := consent.NewService(records, tplSvc, nil, nil)

	r := chi.NewRouter()
	NewHandler(tplSvc, consents).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return fixture{server: srv, active: active, inactive: inactive, records: records}
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestTemplateEndpoint(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name      string
		id        string
		wantCode  int
		wantError string
	}{
		{name: "active", id: f.active.ID, wantCode: http.StatusOK},
		{name: "inactive", id: f.inactive.ID, wantCode: http.StatusNotFound, wantError: "Template not available"},
		{name: "missing", id: "tpl_missing", wantCode: http.StatusNotFound, wantError: "Template not found"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Get(f.server.URL + "/api/public/templates/" + tc.id + "?language=hi")
			require.NoError(t, err)
			assert.Equal(t, tc.wantCode, resp.StatusCode)
			body := decode(t, resp)
			if tc.wantError != "" {
				assert.Equal(t, false, body["success"])
				assert.Equal(t, tc.wantError, body["error"])
				return
			}
			data := body["data"].(map[string]any)
			assert.Equal(t, tc.id, data["id"])
			assert.Equal(t, "hi", data["language"])
			assert.Equal(t, "web", data["platform"])
		})
	}
}

func TestSubmitThroughWidgetClient(t *testing.T) {
	f := newFixture(t)
	client := widget.NewClient(f.server.URL)
	ctx := context.Background()

	snap, err := client.FetchTemplate(ctx, f.active.ID, "en", "web")
	require.NoError(t, err)
	require.Len(t, snap.Purposes, 2)

	sub := widget.Submission{
		TemplateID:      f.active.ID,
		UserReferenceID: "user_abc123",
		Status:          widget.StatusRejected,
		Purposes:        []string{},
		Timestamp:       1700000000000,
		Platform:        "web",
		Language:        "en",
	}
	first, err := client.SubmitConsent(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, []string{"essential"}, first.Purposes, "required purposes are always recorded")

	sub.Status = widget.StatusAccepted
	sub.Purposes = []string{"essential", "analytics"}
	second, err := client.SubmitConsent(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, widget.StatusAccepted, second.Status)
	assert.Equal(t, 1, f.records.Len())
}

func TestSubmitErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name      string
		body      string
		wantCode  int
		wantError string
	}{
		{name: "bad json", body: `{`, wantCode: http.StatusBadRequest, wantError: "Invalid JSON"},
		{name: "missing fields", body: `{"templateId":"x"}`, wantCode: http.StatusBadRequest, wantError: "Missing required fields"},
		{
			name:      "unknown template",
			body:      `{"templateId":"tpl_nope","userReferenceId":"u1","status":"accepted"}`,
			wantCode:  http.StatusNotFound,
			wantError: "Template not found",
		},
		{
			name:      "inactive template",
			body:      `{"templateId":"` + f.inactive.ID + `","userReferenceId":"u1","status":"accepted"}`,
			wantCode:  http.StatusBadRequest,
			wantError: "Template not active",
		},
		{
			name:      "bad status",
			body:      `{"templateId":"` + f.active.ID + `","userReferenceId":"u1","status":"maybe"}`,
			wantCode:  http.StatusBadRequest,
			wantError: "Invalid consent payload",
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Post(f.server.URL+ConsentPath, "application/json", strings.NewReader(tc.body))
			require.NoError(t, err)
			assert.Equal(t, tc.wantCode, resp.StatusCode)
			body := decode(t, resp)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tc.wantError, body["error"])
		})
	}
}

func TestListRequiresFilter(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.server.URL + ConsentPath)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Filter required", decode(t, resp)["error"])

	body := `{"templateId":"` + f.active.ID + `","userReferenceId":"user_42","status":"accepted","purposes":["analytics"]}`
	post, err := http.Post(f.server.URL+ConsentPath, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	post.Body.Close()

	resp, err = http.Get(f.server.URL + ConsentPath + "?userReferenceId=user_42")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode(t, resp)
	assert.EqualValues(t, 1, list["total"])
	rows := list["data"].([]any)
	row := rows[0].(map[string]any)
	assert.Equal(t, "user_42", row["userReferenceId"])
	_, leaked := row["ipAddress"]
	assert.False(t, leaked)
}
