package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/leadbridge/leadbridge/internal/config"
	"github.com/leadbridge/leadbridge/internal/errors"
	"github.com/leadbridge/leadbridge/internal/models"
)

// CRMClient calls the CRM REST API on behalf of an authorized account.
type CRMClient struct {
	caller
	baseURL    string
	apiVersion string
}

// NewCRMClient creates a client for cfg.APIBaseURL.
func NewCRMClient(cfg config.CRMConfig, httpClient *http.Client, opts ...Option) *CRMClient {
	return &CRMClient{
		caller:     newCaller(ServiceCRM, httpClient, opts),
		baseURL:    cfg.APIBaseURL,
		apiVersion: cfg.APIVersion,
	}
}

func (c *CRMClient) newRequest(method, path string, query url.Values, token string, body []byte) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, u, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Version", c.apiVersion)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// CreateContact creates one contact in locationID and returns its ID.
func (c *CRMClient) CreateContact(ctx context.Context, token, locationID string, contact models.CanonicalContact) (string, error) {
	const op = "create_contact"

	payload, err := json.Marshal(contact)
	if err != nil {
		return "", &errors.ErrUpstream{Service: c.service, Operation: op, Err: err}
	}
	req, err := c.newRequest(http.MethodPost, "/contacts/", url.Values{"locationId": {locationID}}, token, payload)
	if err != nil {
		return "", &errors.ErrUpstream{Service: c.service, Operation: op, Err: err}
	}

	body, status, err := c.do(ctx, op, req)
	if err != nil {
		return "", err
	}

	var parsed struct {
		Contact struct {
			ID string `json:"id"`
		} `json:"contact"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &errors.ErrUpstream{Service: c.service, Operation: op, StatusCode: status, Message: "invalid contact response", Body: string(body), Err: err}
	}
	if parsed.Contact.ID == "" {
		return "", &errors.ErrUpstream{Service: c.service, Operation: op, StatusCode: status, Message: "contact response missing id", Body: string(body)}
	}
	return parsed.Contact.ID, nil
}

// SearchLocations lists the locations under companyID visible to token.
// Each location is returned as the CRM sent it.
func (c *CRMClient) SearchLocations(ctx context.Context, token, companyID string, limit int) ([]json.RawMessage, error) {
	const op = "search_locations"

	query := url.Values{}
	if companyID != "" {
		query.Set("companyId", companyID)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	req, err := c.newRequest(http.MethodGet, "/locations/search", query, token, nil)
	if err != nil {
		return nil, &errors.ErrUpstream{Service: c.service, Operation: op, Err: err}
	}

	body, status, err := c.do(ctx, op, req)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Locations []json.RawMessage `json:"locations"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &errors.ErrUpstream{Service: c.service, Operation: op, StatusCode: status, Message: "invalid locations response", Body: string(body), Err: err}
	}
	if parsed.Locations == nil {
		parsed.Locations = []json.RawMessage{}
	}
	return parsed.Locations, nil
}
