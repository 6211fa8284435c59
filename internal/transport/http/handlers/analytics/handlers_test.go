package analyticshandler

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dpdp/internal/domain/analytics"
	"dpdp/internal/domain/auth"
	"dpdp/internal/transport/http/handlers/handlertest"
)

type spyService struct {
	filter analytics.Filter
	days   int
	calls  int
}

func (s *spyService) Consent(_ context.Context, f analytics.Filter, days int) (analytics.Report, error) {
	s.filter, s.days = f, days
	s.calls++
	return analytics.Report{Overview: analytics.Overview{TotalConsents: 4, AcceptedConsents: 3, AcceptanceRate: 75}}, nil
}

func TestConsentAnalytics(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		code     int
		wantDays int
	}{
		{name: "defaults", query: "", code: http.StatusOK, wantDays: analytics.DefaultDays},
		{name: "explicit", query: "?days=7&templateId=tpl_1&status=accepted&start=2026-01-01&end=2026-01-31", code: http.StatusOK, wantDays: 7},
		{name: "days too large", query: "?days=400", code: http.StatusBadRequest},
		{name: "bad date", query: "?start=yesterday", code: http.StatusBadRequest},
		{name: "inverted range", query: "?start=2026-02-01&end=2026-01-01", code: http.StatusBadRequest},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			svc := &spyService{}
			h := handlertest.Router(auth.RoleAnalyst, func(r chi.Router) { NewHandler(svc, nil).RegisterRoutes(r) })
			rec, env := handlertest.Do(t, h, http.MethodGet, "/analytics/consent"+tc.query, nil)
			require.Equal(t, tc.code, rec.Code, rec.Body.String())
			if tc.code != http.StatusOK {
				assert.Zero(t, svc.calls)
				assert.Equal(t, "validation_error", env.Error.Code)
				return
			}
			assert.Equal(t, tc.wantDays, svc.days)
			var report analytics.Report
			handlertest.Decode(t, env, &report)
			assert.Equal(t, 75.0, report.Overview.AcceptanceRate)
		})
	}
}

func TestConsentAnalyticsFilterPassThrough(t *testing.T) {
	svc := &spyService{}
	h := handlertest.Router(auth.RoleAnalyst, func(r chi.Router) { NewHandler(svc, nil).RegisterRoutes(r) })
	rec, _ := handlertest.Do(t, h, http.MethodGet, "/analytics/consent?templateId=tpl_1&start=2026-01-01&end=2026-01-31", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tpl_1", svc.filter.TemplateID)
	require.NotNil(t, svc.filter.Start)
	require.NotNil(t, svc.filter.End)
	assert.True(t, svc.filter.End.After(*svc.filter.Start))
	assert.Equal(t, 31, svc.filter.End.Day())
}
