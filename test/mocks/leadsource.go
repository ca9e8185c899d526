package mocks

import (
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/leadbridge/leadbridge/internal/config"
)

// LeadSourceAPIKey is the key the fake lead source accepts by default.
const LeadSourceAPIKey = "test-leadsource-key"

// SampleLeads is a small batch in the shapes the lead source produces.
const SampleLeads = `{"leads":[
	{"id":"L1","first_name":"Jo","last_name":"Smith","email":"jo@example.com","phone_number":"+15550001","zip":"10001"},
	{"_id":"L2","firstName":"Ann","email_address":"ann@example.com","region":"CA","url":"https://ann.example"}
]}`

// LeadSourceServer is an httptest-backed fake of the lead provider.
type LeadSourceServer struct {
	requestLog

	server *httptest.Server

	mu      sync.Mutex
	apiKey  string
	status  int
	payload string
}

// NewLeadSourceServer starts a fake lead source serving SampleLeads.
func NewLeadSourceServer() *LeadSourceServer {
	s := &LeadSourceServer{
		apiKey:  LeadSourceAPIKey,
		status:  http.StatusOK,
		payload: SampleLeads,
	}
	s.server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Close shuts the server down.
func (s *LeadSourceServer) Close() {
	s.server.Close()
}

// URL returns the leads endpoint URL.
func (s *LeadSourceServer) URL() string {
	return s.server.URL + "/leads"
}

// Config returns a lead source configuration pointing at the fake server.
func (s *LeadSourceServer) Config() config.LeadSourceConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return config.LeadSourceConfig{URL: s.URL(), APIKey: s.apiKey}
}

// SetAPIKey changes the accepted key.
func (s *LeadSourceServer) SetAPIKey(key string) {
	s.mu.Lock()
	s.apiKey = key
	s.mu.Unlock()
}

// SetResponse sets the status and raw body returned to authorized callers.
func (s *LeadSourceServer) SetResponse(status int, payload string) {
	s.mu.Lock()
	s.status = status
	s.payload = payload
	s.mu.Unlock()
}

func (s *LeadSourceServer) handle(w http.ResponseWriter, r *http.Request) {
	s.record(r)

	s.mu.Lock()
	apiKey, status, payload := s.apiKey, s.status, s.payload
	s.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer "+apiKey {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"error": "invalid api key"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(payload))
}
