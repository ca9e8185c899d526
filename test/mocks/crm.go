package mocks

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/leadbridge/leadbridge/internal/config"
)

const (
	// CRMClientID and CRMClientSecret are the client credentials the fake
	// token endpoint accepts.
	CRMClientID     = "test-client-id"
	CRMClientSecret = "test-client-secret"
	// CRMLocationID and CRMCompanyID are returned with every issued token.
	CRMLocationID = "loc-123"
	CRMCompanyID  = "comp-456"
	// InvalidCode is rejected by the fake token endpoint.
	InvalidCode = "invalid-code"

	crmTokenPath     = "/oauth/token"
	crmAuthorizePath = "/oauth/chooselocation"
	crmContactsPath  = "/contacts/"
	crmLocationsPath = "/locations/search"
)

// CRMServer is an httptest-backed fake of the CRM OAuth token endpoint and
// its contacts and locations APIs.
type CRMServer struct {
	requestLog

	server *httptest.Server

	mu                  sync.Mutex
	expiresIn           int
	omitExpiresIn       bool
	rotateRefreshTokens bool
	failExchange        bool
	failRefresh         bool
	failEmails          map[string]string
	validTokens         map[string]bool
	contacts            []map[string]interface{}
	locations           []map[string]interface{}
	tokenSeq            int
	contactSeq          int
}

// NewCRMServer starts a fake CRM. Tokens live for an hour unless changed
// with SetExpiresIn.
func NewCRMServer() *CRMServer {
	s := &CRMServer{
		expiresIn:   3600,
		failEmails:  make(map[string]string),
		validTokens: make(map[string]bool),
		locations: []map[string]interface{}{
			{"id": CRMLocationID, "name": "Main Office", "companyId": CRMCompanyID},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc(crmTokenPath, s.handleToken)
	mux.HandleFunc(crmContactsPath, s.handleContacts)
	mux.HandleFunc(crmLocationsPath, s.handleLocations)
	s.server = httptest.NewServer(mux)
	return s
}

// Close shuts the server down.
func (s *CRMServer) Close() {
	s.server.Close()
}

// URL returns the server base URL.
func (s *CRMServer) URL() string {
	return s.server.URL
}

// Config returns a CRM configuration pointing at the fake server with
// defaults applied.
func (s *CRMServer) Config() config.CRMConfig {
	cfg := config.CRMConfig{
		ClientID:     CRMClientID,
		ClientSecret: CRMClientSecret,
		AuthURL:      s.server.URL + crmAuthorizePath,
		TokenURL:     s.server.URL + crmTokenPath,
		APIBaseURL:   s.server.URL,
		RedirectURI:  "http://localhost:8320/api/auth/callback",
		Scopes:       []string{"contacts.write", "locations.readonly"},
	}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return cfg
}

// SetExpiresIn sets the lifetime reported for newly issued tokens.
func (s *CRMServer) SetExpiresIn(seconds int) {
	s.mu.Lock()
	s.expiresIn = seconds
	s.mu.Unlock()
}

// OmitExpiresIn drops expires_in from token responses.
func (s *CRMServer) OmitExpiresIn(omit bool) {
	s.mu.Lock()
	s.omitExpiresIn = omit
	s.mu.Unlock()
}

// RotateRefreshTokens makes refresh grants issue a new refresh token.
func (s *CRMServer) RotateRefreshTokens(rotate bool) {
	s.mu.Lock()
	s.rotateRefreshTokens = rotate
	s.mu.Unlock()
}

// FailExchange makes authorization code grants fail.
func (s *CRMServer) FailExchange(fail bool) {
	s.mu.Lock()
	s.failExchange = fail
	s.mu.Unlock()
}

// FailRefresh makes refresh grants fail with invalid_grant.
func (s *CRMServer) FailRefresh(fail bool) {
	s.mu.Lock()
	s.failRefresh = fail
	s.mu.Unlock()
}

// FailContact makes contact creation for email fail with message.
func (s *CRMServer) FailContact(email, message string) {
	s.mu.Lock()
	s.failEmails[strings.ToLower(email)] = message
	s.mu.Unlock()
}

// SetLocations replaces the locations returned by the search endpoint.
func (s *CRMServer) SetLocations(locations []map[string]interface{}) {
	s.mu.Lock()
	s.locations = locations
	s.mu.Unlock()
}

// Contacts returns the contact payloads the server accepted.
func (s *CRMServer) Contacts() []map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]map[string]interface{}, len(s.contacts))
	copy(result, s.contacts)
	return result
}

// IssueAccessToken issues an access token without going through a grant.
func (s *CRMServer) IssueAccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueToken(false)["access_token"].(string)
}

// RevokeAccessToken makes token unusable for API calls.
func (s *CRMServer) RevokeAccessToken(token string) {
	s.mu.Lock()
	delete(s.validTokens, token)
	s.mu.Unlock()
}

// TokenRequests returns the number of token endpoint calls.
func (s *CRMServer) TokenRequests() int {
	return len(s.RequestsTo(crmTokenPath))
}

func (s *CRMServer) handleToken(w http.ResponseWriter, r *http.Request) {
	s.record(r)
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]interface{}{"error": "method_not_allowed"})
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid_request"})
		return
	}
	if r.PostForm.Get("client_id") != CRMClientID || r.PostForm.Get("client_secret") != CRMClientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"error":             "invalid_client",
			"error_description": "Client authentication failed",
		})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		code := r.PostForm.Get("code")
		if s.failExchange || code == "" || code == InvalidCode {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error":             "invalid_grant",
				"error_description": "Invalid authorization code",
			})
			return
		}
		writeJSON(w, http.StatusOK, s.issueToken(true))
	case "refresh_token":
		if s.failRefresh || r.PostForm.Get("refresh_token") == "" {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error":             "invalid_grant",
				"error_description": "Refresh token is invalid or revoked",
			})
			return
		}
		writeJSON(w, http.StatusOK, s.issueToken(s.rotateRefreshTokens))
	default:
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "unsupported_grant_type"})
	}
}

// issueToken must be called with s.mu held.
func (s *CRMServer) issueToken(withRefresh bool) map[string]interface{} {
	s.tokenSeq++
	access := fmt.Sprintf("access-%d", s.tokenSeq)
	s.validTokens[access] = true

	resp := map[string]interface{}{
		"access_token": access,
		"token_type":   "Bearer",
		"scope":        "contacts.write locations.readonly",
		"locationId":   CRMLocationID,
		"companyId":    CRMCompanyID,
	}
	if !s.omitExpiresIn {
		resp["expires_in"] = s.expiresIn
	}
	if withRefresh {
		resp["refresh_token"] = fmt.Sprintf("refresh-%d", s.tokenSeq)
	}
	return resp
}

func (s *CRMServer) authorized(r *http.Request) bool {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validTokens[token]
}

func (s *CRMServer) handleContacts(w http.ResponseWriter, r *http.Request) {
	s.record(r)
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]interface{}{"message": "method not allowed"})
		return
	}
	if !s.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"message": "Invalid JWT"})
		return
	}
	if r.Header.Get("Version") == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"message": "Version header was not found"})
		return
	}
	if r.URL.Query().Get("locationId") == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{"message": []string{"locationId should not be empty"}})
		return
	}

	var contact map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&contact); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"message": "invalid JSON body"})
		return
	}

	email, _ := contact["email"].(string)

	s.mu.Lock()
	defer s.mu.Unlock()

	if msg, ok := s.failEmails[strings.ToLower(email)]; ok {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"message": msg, "statusCode": http.StatusBadRequest})
		return
	}

	s.contactSeq++
	id := fmt.Sprintf("contact-%d", s.contactSeq)
	s.contacts = append(s.contacts, contact)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"contact": map[string]interface{}{"id": id, "email": email},
	})
}

func (s *CRMServer) handleLocations(w http.ResponseWriter, r *http.Request) {
	s.record(r)
	if !s.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"message": "Invalid JWT"})
		return
	}
	if r.URL.Query().Get("companyId") == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{"message": "companyId is required"})
		return
	}

	s.mu.Lock()
	locations := s.locations
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{"locations": locations})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
