package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the consent console.
type Metrics struct {
	gatherer prometheus.Gatherer

	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
	RateLimited        prometheus.Counter
	ConsentSubmissions *prometheus.CounterVec
	TemplateCache      *prometheus.CounterVec
	VendorAccessChecks *prometheus.CounterVec
	JobRuns            *prometheus.CounterVec
	EmailsSent         *prometheus.CounterVec
}

// New registers all collectors on a fresh registry that also carries the Go
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return NewWith(reg, reg)
}

func NewWith(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		gatherer: gatherer,
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dpdp_http_requests_total",
			Help: "HTTP requests by route pattern, method and status code",
		}, []string{"route", "method", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dpdp_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "dpdp_http_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		}),
		ConsentSubmissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dpdp_consent_submissions_total",
			Help: "Consent decisions stored, by status and outcome (created or updated)",
		}, []string{"status", "outcome"}),
		TemplateCache: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dpdp_template_cache_lookups_total",
			Help: "Public template snapshot cache lookups by result",
		}, []string{"result"}),
		VendorAccessChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dpdp_vendor_access_checks_total",
			Help: "Vendor data access checks by decision",
		}, []string{"granted"}),
		JobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dpdp_job_runs_total",
			Help: "Background job runs by type and status",
		}, []string{"job", "status"}),
		EmailsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dpdp_emails_total",
			Help: "Notification emails by event type and result",
		}, []string{"event", "result"}),
	}
}

// Record observes one finished HTTP request.
func (m *Metrics) Record(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route, method).Observe(duration.Seconds())
	if status == http.StatusTooManyRequests {
		m.RateLimited.Inc()
	}
}

func (m *Metrics) ConsentStored(status string, created bool) {
	if m == nil {
		return
	}
	outcome := "updated"
	if created {
		outcome = "created"
	}
	m.ConsentSubmissions.WithLabelValues(status, outcome).Inc()
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.TemplateCache.WithLabelValues(result).Inc()
}

func (m *Metrics) AccessChecked(granted bool) {
	if m == nil {
		return
	}
	m.VendorAccessChecks.WithLabelValues(strconv.FormatBool(granted)).Inc()
}

func (m *Metrics) JobFinished(job, status string) {
	if m == nil {
		return
	}
	m.JobRuns.WithLabelValues(job, status).Inc()
}

func (m *Metrics) EmailResult(event string, err error) {
	if m == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.EmailsSent.WithLabelValues(event, result).Inc()
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
