package api

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/leadbridge/leadbridge/internal/errors"
	"github.com/leadbridge/leadbridge/internal/leads"
	"github.com/leadbridge/leadbridge/internal/middleware"
	"github.com/leadbridge/leadbridge/internal/models"
	"github.com/leadbridge/leadbridge/internal/store"
)

// handleHealth returns health status
func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status":         "healthy",
		"timestamp":      time.Now().UTC(),
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	}
	if settings := s.deps.Settings; settings != nil {
		if last, ok := store.ReadLastExport(settings); ok {
			body["last_export"] = last
		}
		if at, ok := store.ConfigReloadedAt(settings); ok {
			body["config_reloaded_at"] = at
		}
	}
	c.JSON(http.StatusOK, body)
}

// accountID reads account_id from the query string, falling back to the
// value found in the request body.
func accountID(c *gin.Context, fromBody string) string {
	if id := strings.TrimSpace(c.Query("account_id")); id != "" {
		return id
	}
	return strings.TrimSpace(fromBody)
}

// AuthorizeResponse is returned by GET /auth/authorize.
type AuthorizeResponse struct {
	Success bool `json:"success"`
	models.AuthorizationRequest
}

func (s *Server) handleAuthorize(c *gin.Context) {
	id := s.deps.Manager.ResolveAccount(accountID(c, ""))
	middleware.SetAuditAccount(c, id)
	middleware.SetAuditResource(c, "consent")
	req, err := s.deps.Manager.BeginAuthorization(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, AuthorizeResponse{Success: true, AuthorizationRequest: *req})
}

func (s *Server) handleCallback(c *gin.Context) {
	if denied := c.Query("error"); denied != "" {
		reason := c.Query("error_description")
		if reason == "" {
			reason = denied
		}
		s.writeError(c, &errors.ErrInvalidInput{Field: "code", Reason: "authorization was not granted: " + reason})
		return
	}

	rec, err := s.deps.Manager.CompleteAuthorization(c.Request.Context(), c.Query("code"), c.Query("state"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.Redirect(http.StatusFound, successRedirect(s.crmConfig.SuccessRedirectURL, rec.LocationID))
}

// successRedirect adds the authorized location to target's query.
func successRedirect(target, locationID string) string {
	u, err := url.Parse(target)
	if err != nil || target == "" {
		u = &url.URL{Path: "/"}
	}
	q := u.Query()
	q.Set("auth", "success")
	if locationID != "" {
		q.Set("locationId", locationID)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// AuthStatusResponse is returned by GET /auth/status.
type AuthStatusResponse struct {
	Success bool `json:"success"`
	models.AuthStatus
}

func (s *Server) handleAuthStatus(c *gin.Context) {
	status := s.deps.Manager.AuthStatus(accountID(c, ""))
	c.JSON(http.StatusOK, AuthStatusResponse{Success: true, AuthStatus: status})
}

type revokeRequest struct {
	AccountID string `json:"account_id"`
}

func (s *Server) handleRevoke(c *gin.Context) {
	var req revokeRequest
	if err := decodeOptionalJSON(c, &req); err != nil {
		s.writeError(c, err)
		return
	}

	id := s.deps.Manager.ResolveAccount(accountID(c, req.AccountID))
	middleware.SetAuditAccount(c, id)
	middleware.SetAuditResource(c, "credential")
	removed, err := s.deps.Manager.Revoke(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "accountId": id, "revoked": removed})
}

func (s *Server) handleLocations(c *gin.Context) {
	limit := s.crmConfig.LocationsLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(c, &errors.ErrInvalidInput{Field: "limit", Reason: "must be a positive integer"})
			return
		}
		limit = n
	}

	ctx := c.Request.Context()
	rec, err := s.deps.Manager.ValidCredential(ctx, accountID(c, ""))
	if err != nil {
		s.writeError(c, err)
		return
	}

	companyID := c.Query("companyId")
	if companyID == "" {
		companyID = rec.CompanyID
	}
	if companyID == "" {
		s.writeError(c, &errors.ErrInvalidInput{Field: "companyId", Reason: "the authorization did not include a company"})
		return
	}

	locations, err := s.deps.CRM.SearchLocations(ctx, rec.AccessToken, companyID, limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"locations": locations,
		"count":     len(locations),
	})
}

func (s *Server) handleFetchLeads(c *gin.Context) {
	raw, err := s.deps.LeadSource.FetchLeads(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}

	resp := gin.H{"success": true, "leads": raw}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err == nil {
		resp["count"] = len(items)
	}
	c.JSON(http.StatusOK, resp)
}

type exportRequest struct {
	Leads      json.RawMessage `json:"leads"`
	AccountID  string          `json:"account_id"`
	LocationID string          `json:"locationId"`
	// Fetch pulls the batch from the lead source when Leads is absent.
	Fetch bool `json:"fetch"`
}

// ExportResponse is returned by POST /export.
type ExportResponse struct {
	Success bool `json:"success"`
	*models.ExportReport
}

func (s *Server) handleExport(c *gin.Context) {
	body, err := readBody(c)
	if err != nil {
		s.writeError(c, err)
		return
	}

	// A bare array is accepted as the batch itself.
	var req exportRequest
	if bytes.HasPrefix(body, []byte("[")) {
		req.Leads = body
	} else if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			s.writeError(c, &errors.ErrInvalidInput{Field: "body", Reason: "invalid JSON: " + err.Error()})
			return
		}
	}

	ctx := c.Request.Context()
	raw := req.Leads
	if len(bytes.TrimSpace(raw)) == 0 && req.Fetch {
		fetched, err := s.deps.LeadSource.FetchLeads(ctx)
		if err != nil {
			s.writeError(c, err)
			return
		}
		raw = fetched
	}

	batch, err := leads.DecodeBatch(raw)
	var empty *errors.ErrEmptyBatch
	if err != nil && !stderrors.As(err, &empty) {
		s.writeError(c, err)
		return
	}

	location := c.Query("locationId")
	if location == "" {
		location = req.LocationID
	}

	account := accountID(c, req.AccountID)
	middleware.SetAuditAccount(c, s.deps.Manager.ResolveAccount(account))
	middleware.SetAuditResource(c, "export")

	report, err := s.deps.Exporter.ExportLeads(c.Request.Context(), batch, account, location)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ExportResponse{Success: true, ExportReport: report})
}

// readBody returns the trimmed request body.
func readBody(c *gin.Context) ([]byte, error) {
	if c.Request.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return nil, &errors.ErrInvalidInput{Field: "body", Reason: "request body too large"}
		}
		return nil, &errors.ErrInvalidInput{Field: "body", Reason: err.Error()}
	}
	return bytes.TrimSpace(body), nil
}

// decodeOptionalJSON decodes the request body into dst. An empty body
// leaves dst untouched.
func decodeOptionalJSON(c *gin.Context, dst interface{}) error {
	body, err := readBody(c)
	if err != nil || len(body) == 0 {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return &errors.ErrInvalidInput{Field: "body", Reason: "invalid JSON: " + err.Error()}
	}
	return nil
}
