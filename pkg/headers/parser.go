// Package headers reads rate-limit state from upstream response headers.
package headers

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CRM rate-limit headers. The burst window resets every Interval; the
// daily window resets at midnight in the location's time zone.
const (
	HeaderBurstLimit     = "X-RateLimit-Max"
	HeaderBurstRemaining = "X-RateLimit-Remaining"
	HeaderInterval       = "X-RateLimit-Interval-Milliseconds"
	HeaderDailyLimit     = "X-RateLimit-Limit-Daily"
	HeaderDailyRemaining = "X-RateLimit-Daily-Remaining"
	HeaderRetryAfter     = "Retry-After"
)

// Window names used as metric labels.
const (
	WindowBurst = "burst"
	WindowDaily = "daily"
)

// Window is one rate-limit window. Limit is -1 when the header was absent.
type Window struct {
	Name      string
	Limit     int64
	Remaining int64
}

// RateLimit is the rate-limit state reported with one response.
type RateLimit struct {
	Windows    []Window
	Interval   time.Duration
	RetryAfter time.Duration
}

// Window returns the named window.
func (r RateLimit) Window(name string) (Window, bool) {
	for _, w := range r.Windows {
		if w.Name == name {
			return w, true
		}
	}
	return Window{}, false
}

// Empty reports whether no rate-limit header was present.
func (r RateLimit) Empty() bool {
	return len(r.Windows) == 0 && r.RetryAfter == 0
}

// Parse extracts the rate-limit state from h. Malformed values are ignored.
func Parse(h http.Header) RateLimit {
	var rl RateLimit
	if w, ok := parseWindow(h, WindowBurst, HeaderBurstLimit, HeaderBurstRemaining); ok {
		rl.Windows = append(rl.Windows, w)
	}
	if w, ok := parseWindow(h, WindowDaily, HeaderDailyLimit, HeaderDailyRemaining); ok {
		rl.Windows = append(rl.Windows, w)
	}
	if ms, ok := parseIntHeader(h, HeaderInterval); ok && ms > 0 {
		rl.Interval = time.Duration(ms) * time.Millisecond
	}
	rl.RetryAfter = parseRetryAfter(h.Get(HeaderRetryAfter), time.Now())
	return rl
}

func parseWindow(h http.Header, name, limitKey, remainingKey string) (Window, bool) {
	remaining, ok := parseIntHeader(h, remainingKey)
	if !ok {
		return Window{}, false
	}
	limit, ok := parseIntHeader(h, limitKey)
	if !ok {
		limit = -1
	}
	return Window{Name: name, Limit: limit, Remaining: remaining}, true
}

// parseRetryAfter accepts both delay-seconds and HTTP-date forms.
func parseRetryAfter(val string, now time.Time) time.Duration {
	val = strings.TrimSpace(val)
	if val == "" {
		return 0
	}
	if secs, err := strconv.ParseInt(val, 10, 64); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(val); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func parseIntHeader(h http.Header, key string) (int64, bool) {
	val := strings.TrimSpace(h.Get(key))
	if val == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
