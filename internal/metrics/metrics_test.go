package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func TestMetricsRecordingAndHandler(t *testing.T) {
	m := NewMetrics("test")

	m.RecordRequestLatency("/health", "GET", "200", 0.01)
	m.RecordHTTPRequest("/health", "GET", "200")
	m.IncHTTPRequestsInFlight()
	m.DecHTTPRequestsInFlight()
	m.RecordError("upstream_error", "/api/export", "POST")
	m.RecordOAuthExchange(OutcomeSuccess)
	m.RecordTokenRefresh(OutcomeFailure)
	m.RecordUpstream("crm", "create_contact", "201", 0.2)
	m.SetCredentialsStored(1)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	body := w.Body.String()
	for _, name := range []string{
		"test_request_latency_seconds",
		"test_oauth_exchanges_total",
		"test_token_refreshes_total",
		"test_upstream_request_duration_seconds",
		"test_credentials_stored 1",
	} {
		if !strings.Contains(body, name) {
			t.Fatalf("expected metrics output to contain %s", name)
		}
	}
}

func TestRecordExportBatchOutcomes(t *testing.T) {
	m := NewMetrics("exp")

	m.RecordExportBatch(3, 0)
	m.RecordExportBatch(1, 2)
	m.RecordExportBatch(0, 4)

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	for _, outcome := range []string{OutcomeSuccess, OutcomePartial, OutcomeFailure} {
		if got := counterValue(families, "exp_export_batches_total", "outcome", outcome); got != 1 {
			t.Fatalf("expected one %s batch, got %v", outcome, got)
		}
	}
	if got := counterValue(families, "exp_export_leads_total", "outcome", OutcomeSuccess); got != 4 {
		t.Fatalf("expected 4 successful leads, got %v", got)
	}
	if got := counterValue(families, "exp_export_leads_total", "outcome", OutcomeFailure); got != 6 {
		t.Fatalf("expected 6 failed leads, got %v", got)
	}
}

func counterValue(families []*dto.MetricFamily, name, key, value string) float64 {
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.Metric {
			for _, label := range metric.Label {
				if label.GetName() == key && label.GetValue() == value {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return -1
}
