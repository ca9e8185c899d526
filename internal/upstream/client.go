package upstream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/leadbridge/leadbridge/internal/errors"
	"github.com/leadbridge/leadbridge/internal/metrics"
	"github.com/leadbridge/leadbridge/pkg/headers"
)

// maxResponseBytes caps how much of an upstream body is read.
const maxResponseBytes = 1 << 20

// Service names used in errors and metrics.
const (
	ServiceCRM        = "crm"
	ServiceLeadSource = "leadsource"
)

// Option configures an upstream client.
type Option func(*caller)

// WithMetrics records every call in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *caller) {
		c.metrics = m
	}
}

// caller performs one request and turns transport failures and non-2xx
// replies into *errors.ErrUpstream.
type caller struct {
	service    string
	httpClient *http.Client
	metrics    *metrics.Metrics
}

func newCaller(service string, httpClient *http.Client, opts []Option) caller {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := caller{service: service, httpClient: httpClient}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (c *caller) do(ctx context.Context, operation string, req *http.Request) ([]byte, int, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		c.record(operation, "error", start)
		return nil, 0, &errors.ErrUpstream{Service: c.service, Operation: operation, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	c.record(operation, strconv.Itoa(resp.StatusCode), start)
	limits := headers.Parse(resp.Header)
	c.recordRateLimit(limits)
	if err != nil {
		return nil, resp.StatusCode, &errors.ErrUpstream{Service: c.service, Operation: operation, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return body, resp.StatusCode, &errors.ErrUpstream{
			Service:    c.service,
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body, resp.StatusCode),
			Body:       string(body),
			RetryAfter: retryAfter(resp.StatusCode, limits),
		}
	}
	return body, resp.StatusCode, nil
}

func (c *caller) record(operation, status string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordUpstream(c.service, operation, status, time.Since(start).Seconds())
}

func (c *caller) recordRateLimit(rl headers.RateLimit) {
	if c.metrics == nil {
		return
	}
	for _, w := range rl.Windows {
		c.metrics.SetUpstreamRateLimit(c.service, w.Name, w.Remaining)
	}
}

// retryAfter is only meaningful on 429. Without a Retry-After header the
// caller waits out the burst interval.
func retryAfter(status int, rl headers.RateLimit) time.Duration {
	if status != http.StatusTooManyRequests {
		return 0
	}
	if rl.RetryAfter > 0 {
		return rl.RetryAfter
	}
	return rl.Interval
}

// errorMessage pulls a human readable message out of an error body. CRM
// replies use "message" (a string or a list of strings); OAuth style
// replies use "error_description" or "error".
func errorMessage(body []byte, status int) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, key := range []string{"message", "error_description", "error", "msg"} {
			switch v := payload[key].(type) {
			case string:
				if v != "" {
					return v
				}
			case []any:
				parts := make([]string, 0, len(v))
				for _, item := range v {
					if s, ok := item.(string); ok && s != "" {
						parts = append(parts, s)
					}
				}
				if len(parts) > 0 {
					return strings.Join(parts, "; ")
				}
			}
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && len(text) <= 200 && !strings.HasPrefix(text, "{") && !strings.HasPrefix(text, "<") {
		return text
	}
	return http.StatusText(status)
}
