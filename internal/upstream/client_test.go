package upstream

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/leadbridge/leadbridge/internal/config"
	"github.com/leadbridge/leadbridge/internal/errors"
	"github.com/leadbridge/leadbridge/internal/metrics"
	"github.com/leadbridge/leadbridge/pkg/headers"
	dto "github.com/prometheus/client_model/go"
	utls "github.com/refraction-networking/utls"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		want   string
	}{
		{"message string", `{"message":"Contact already exists"}`, 400, "Contact already exists"},
		{"message list", `{"message":["email must be an email","phone invalid"]}`, 422, "email must be an email; phone invalid"},
		{"oauth description", `{"error":"invalid_grant","error_description":"expired"}`, 400, "expired"},
		{"oauth error only", `{"error":"invalid_client"}`, 401, "invalid_client"},
		{"plain text", `upstream unavailable`, 503, "upstream unavailable"},
		{"html falls back to status", `<html>oops</html>`, 502, "Bad Gateway"},
		{"empty body", ``, 404, "Not Found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errorMessage([]byte(tt.body), tt.status))
		})
	}
}

func TestCallerTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := newCaller(ServiceCRM, &http.Client{Timeout: time.Second}, nil)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)

	_, status, err := c.do(context.Background(), "ping", req)
	require.Error(t, err)
	assert.Equal(t, 0, status)

	var upErr *errors.ErrUpstream
	require.True(t, stderrors.As(err, &upErr))
	assert.Equal(t, ServiceCRM, upErr.Service)
	assert.Equal(t, "ping", upErr.Operation)
	assert.NotNil(t, upErr.Err)
}

func TestCallerRecordsMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte(`{"message":"short and stout"}`))
	}))
	defer srv.Close()

	m := metrics.NewMetrics("test")
	c := newCaller(ServiceLeadSource, srv.Client(), []Option{WithMetrics(m)})
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	body, status, err := c.do(context.Background(), "fetch_leads", req)
	require.Error(t, err)
	assert.Equal(t, http.StatusTeapot, status)
	assert.Contains(t, string(body), "short and stout")

	var metric dto.Metric
	require.NoError(t, m.UpstreamRequests.WithLabelValues(ServiceLeadSource, "fetch_leads", "418").Write(&metric))
	assert.Equal(t, 1.0, metric.GetCounter().GetValue())
}

func TestCallerRateLimitHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(headers.HeaderBurstLimit, "100")
		w.Header().Set(headers.HeaderBurstRemaining, "0")
		w.Header().Set(headers.HeaderInterval, "10000")
		w.Header().Set(headers.HeaderDailyRemaining, "1500")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"message":"Too many requests"}`))
	}))
	defer srv.Close()

	m := metrics.NewMetrics("test")
	c := newCaller(ServiceCRM, srv.Client(), []Option{WithMetrics(m)})
	req, err := http.NewRequest(http.MethodPost, srv.URL, nil)
	require.NoError(t, err)

	_, status, err := c.do(context.Background(), "create_contact", req)
	require.Error(t, err)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, 10*time.Second, errors.RetryAfter(err))

	var burst, daily dto.Metric
	require.NoError(t, m.UpstreamRateLimitRemaining.WithLabelValues(ServiceCRM, headers.WindowBurst).Write(&burst))
	assert.Equal(t, 0.0, burst.GetGauge().GetValue())
	require.NoError(t, m.UpstreamRateLimitRemaining.WithLabelValues(ServiceCRM, headers.WindowDaily).Write(&daily))
	assert.Equal(t, 1500.0, daily.GetGauge().GetValue())
}

func TestRetryAfterOnlyOnTooManyRequests(t *testing.T) {
	rl := headers.RateLimit{Interval: 10 * time.Second, RetryAfter: 3 * time.Second}
	assert.Equal(t, 3*time.Second, retryAfter(http.StatusTooManyRequests, rl))
	assert.Equal(t, 10*time.Second, retryAfter(http.StatusTooManyRequests, headers.RateLimit{Interval: 10 * time.Second}))
	assert.Zero(t, retryAfter(http.StatusServiceUnavailable, rl))
}

func TestNewHTTPClientDefaults(t *testing.T) {
	var gotUA, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
	}))
	defer srv.Close()

	client := NewHTTPClient(config.HTTPClientConfig{})
	assert.Equal(t, 30*time.Second, client.Timeout)

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, UserAgent, gotUA)
	assert.Equal(t, "application/json", gotAccept)
}

func TestNewHTTPClientKeepsCallerHeaders(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	client := NewHTTPClient(config.HTTPClientConfig{Timeout: 5 * time.Second})
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "custom/1.0")

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "custom/1.0", gotUA)
	assert.Equal(t, 5*time.Second, client.Timeout)
}

func TestUTLSHelloOffersOnlyHTTP11(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	uconn, err := newUTLSConn(client, "services.example.com")
	require.NoError(t, err)
	require.NoError(t, uconn.BuildHandshakeState())

	assert.Equal(t, []string{"http/1.1"}, uconn.HandshakeState.Hello.AlpnProtocols)
	assert.Equal(t, "services.example.com", uconn.HandshakeState.Hello.ServerName)
	for _, ext := range uconn.Extensions {
		_, alps := ext.(*utls.ApplicationSettingsExtension)
		assert.False(t, alps, "ALPS must not advertise h2")
	}
}
