package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values shared by the domain counters.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// RequestLatency tracks HTTP request latency by endpoint and method
	RequestLatency *prometheus.HistogramVec
	// HTTPRequestsTotal total HTTP requests
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTPRequestsInFlight current HTTP requests being processed
	HTTPRequestsInFlight prometheus.Gauge
	// ErrorCounter counts errors by type and endpoint
	ErrorCounter *prometheus.CounterVec
	// OAuthExchanges counts authorization code exchanges by outcome
	OAuthExchanges *prometheus.CounterVec
	// TokenRefreshes counts refresh grants by outcome
	TokenRefreshes *prometheus.CounterVec
	// ExportBatches counts export invocations by outcome
	ExportBatches *prometheus.CounterVec
	// ExportLeads counts individual leads pushed to the CRM by outcome
	ExportLeads *prometheus.CounterVec
	// UpstreamRequests counts calls to the CRM and lead source
	UpstreamRequests *prometheus.CounterVec
	// UpstreamDuration tracks upstream call latency
	UpstreamDuration *prometheus.HistogramVec
	// UpstreamRateLimitRemaining is the last remaining count reported per rate-limit window
	UpstreamRateLimitRemaining *prometheus.GaugeVec
	// CredentialsStored is the number of accounts currently holding a credential
	CredentialsStored prometheus.Gauge
	// registry is the custom registry for this metrics instance
	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		RequestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_latency_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"endpoint", "method", "status"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"endpoint", "method", "status"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		ErrorCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors",
			},
			[]string{"type", "endpoint", "method"},
		),
		OAuthExchanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "oauth_exchanges_total",
				Help:      "Total number of authorization code exchanges",
			},
			[]string{"outcome"},
		),
		TokenRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_refreshes_total",
				Help:      "Total number of access token refreshes",
			},
			[]string{"outcome"},
		),
		ExportBatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "export_batches_total",
				Help:      "Total number of export batches",
			},
			[]string{"outcome"},
		),
		ExportLeads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "export_leads_total",
				Help:      "Total number of leads pushed to the CRM",
			},
			[]string{"outcome"},
		),
		UpstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "Total number of upstream API requests",
			},
			[]string{"service", "operation", "status"},
		),
		UpstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_request_duration_seconds",
				Help:      "Upstream API request latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service", "operation"},
		),
		UpstreamRateLimitRemaining: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "upstream_ratelimit_remaining",
				Help:      "Requests left in the upstream rate-limit window, as last reported",
			},
			[]string{"service", "window"},
		),
		CredentialsStored: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "credentials_stored",
				Help:      "Number of accounts holding a stored credential",
			},
		),
	}

	registry.MustRegister(
		m.RequestLatency,
		m.HTTPRequestsTotal,
		m.HTTPRequestsInFlight,
		m.ErrorCounter,
		m.OAuthExchanges,
		m.TokenRefreshes,
		m.ExportBatches,
		m.ExportLeads,
		m.UpstreamRequests,
		m.UpstreamDuration,
		m.UpstreamRateLimitRemaining,
		m.CredentialsStored,
	)

	return m
}

// Handler returns a Prometheus handler for these metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and embedding.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRequestLatency records the latency of an HTTP request
func (m *Metrics) RecordRequestLatency(endpoint, method, status string, durationSeconds float64) {
	m.RequestLatency.WithLabelValues(endpoint, method, status).Observe(durationSeconds)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(endpoint, method, status string) {
	m.HTTPRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

// IncHTTPRequestsInFlight increments the in-flight requests counter
func (m *Metrics) IncHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Inc()
}

// DecHTTPRequestsInFlight decrements the in-flight requests counter
func (m *Metrics) DecHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Dec()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, endpoint, method string) {
	m.ErrorCounter.WithLabelValues(errorType, endpoint, method).Inc()
}

// RecordOAuthExchange records an authorization code exchange
func (m *Metrics) RecordOAuthExchange(outcome string) {
	m.OAuthExchanges.WithLabelValues(outcome).Inc()
}

// RecordTokenRefresh records a refresh attempt
func (m *Metrics) RecordTokenRefresh(outcome string) {
	m.TokenRefreshes.WithLabelValues(outcome).Inc()
}

// RecordExportBatch records a finished export batch and its per-lead counts
func (m *Metrics) RecordExportBatch(succeeded, failed int) {
	outcome := OutcomeSuccess
	switch {
	case failed > 0 && succeeded == 0:
		outcome = OutcomeFailure
	case failed > 0:
		outcome = OutcomePartial
	}
	m.ExportBatches.WithLabelValues(outcome).Inc()
	m.ExportLeads.WithLabelValues(OutcomeSuccess).Add(float64(succeeded))
	m.ExportLeads.WithLabelValues(OutcomeFailure).Add(float64(failed))
}

// RecordUpstream records one upstream call
func (m *Metrics) RecordUpstream(service, operation, status string, durationSeconds float64) {
	m.UpstreamRequests.WithLabelValues(service, operation, status).Inc()
	m.UpstreamDuration.WithLabelValues(service, operation).Observe(durationSeconds)
}

// SetUpstreamRateLimit records the remaining budget of one rate-limit window
func (m *Metrics) SetUpstreamRateLimit(service, window string, remaining int64) {
	m.UpstreamRateLimitRemaining.WithLabelValues(service, window).Set(float64(remaining))
}

// SetCredentialsStored sets the stored credential gauge
func (m *Metrics) SetCredentialsStored(n int) {
	m.CredentialsStored.Set(float64(n))
}
