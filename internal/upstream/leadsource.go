package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/leadbridge/leadbridge/internal/config"
	"github.com/leadbridge/leadbridge/internal/errors"
)

// LeadSourceClient reads leads from the lead provider with a static key.
type LeadSourceClient struct {
	caller

	mu     sync.RWMutex
	url    string
	apiKey string
}

// NewLeadSourceClient creates a client for cfg.URL.
func NewLeadSourceClient(cfg config.LeadSourceConfig, httpClient *http.Client, opts ...Option) *LeadSourceClient {
	return &LeadSourceClient{
		caller: newCaller(ServiceLeadSource, httpClient, opts),
		url:    cfg.URL,
		apiKey: cfg.APIKey,
	}
}

// Update swaps the endpoint and key, e.g. after a config reload.
func (c *LeadSourceClient) Update(cfg config.LeadSourceConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.url = cfg.URL
	c.apiKey = cfg.APIKey
}

// FetchLeads performs a single GET and returns the provider's "leads"
// array verbatim, or the whole payload when it has no "leads" member.
func (c *LeadSourceClient) FetchLeads(ctx context.Context) (json.RawMessage, error) {
	const op = "fetch_leads"

	c.mu.RLock()
	endpoint, apiKey := c.url, c.apiKey
	c.mu.RUnlock()

	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &errors.ErrUpstream{Service: c.service, Operation: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Accept", "application/json")

	body, status, err := c.do(ctx, op, req)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(body)
	if !json.Valid(trimmed) {
		return nil, &errors.ErrUpstream{Service: c.service, Operation: op, StatusCode: status, Message: "response is not JSON", Body: string(body)}
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err == nil {
		if leads, ok := envelope["leads"]; ok {
			return leads, nil
		}
	}
	return json.RawMessage(trimmed), nil
}
