package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCountsRequestsAndRateLimits(t *testing.T) {
	m := New()
	m.Record("/api/public/templates/{id}", http.MethodGet, http.StatusOK, 10*time.Millisecond)
	m.Record("/api/public/templates/{id}", http.MethodGet, http.StatusTooManyRequests, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/api/public/templates/{id}", "GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimited))
}

func TestDomainCounters(t *testing.T) {
	m := New()
	m.ConsentStored("accepted", true)
	m.ConsentStored("accepted", false)
	m.CacheLookup(true)
	m.AccessChecked(false)
	m.EmailResult("vendor_created", errors.New("smtp down"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConsentSubmissions.WithLabelValues("accepted", "created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConsentSubmissions.WithLabelValues("accepted", "updated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TemplateCache.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VendorAccessChecks.WithLabelValues("false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmailsSent.WithLabelValues("vendor_created", "failed")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Record("/", http.MethodGet, http.StatusOK, time.Millisecond)
	m.ConsentStored("rejected", true)
	m.CacheLookup(false)
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.CacheLookup(false)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "dpdp_template_cache_lookups_total"))
}
