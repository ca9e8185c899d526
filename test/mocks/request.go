package mocks

import (
	"bytes"
	"io"
	"net/http"
	"sync"
	"time"
)

// MockRequest represents a recorded HTTP request
type MockRequest struct {
	Method  string
	Path    string
	Query   string
	Body    string
	Headers map[string]string
	Time    time.Time
}

// requestLog records requests served by a fake upstream.
type requestLog struct {
	mu       sync.Mutex
	requests []MockRequest
}

func (l *requestLog) record(r *http.Request) MockRequest {
	req := MockRequest{
		Method:  r.Method,
		Path:    r.URL.Path,
		Query:   r.URL.RawQuery,
		Time:    time.Now(),
		Headers: make(map[string]string),
	}
	for k, v := range r.Header {
		if len(v) > 0 {
			req.Headers[k] = v[0]
		}
	}
	if r.Body != nil {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewBuffer(body))
		req.Body = string(body)
	}

	l.mu.Lock()
	l.requests = append(l.requests, req)
	l.mu.Unlock()
	return req
}

// Requests returns all recorded requests
func (l *requestLog) Requests() []MockRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	result := make([]MockRequest, len(l.requests))
	copy(result, l.requests)
	return result
}

// RequestsTo returns the recorded requests for path
func (l *requestLog) RequestsTo(path string) []MockRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	var result []MockRequest
	for _, r := range l.requests {
		if r.Path == path {
			result = append(result, r)
		}
	}
	return result
}

// ClearRequests clears all recorded requests
func (l *requestLog) ClearRequests() {
	l.mu.Lock()
	l.requests = nil
	l.mu.Unlock()
}
