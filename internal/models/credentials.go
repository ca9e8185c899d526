package models

import "time"

// CredentialRecord holds the OAuth material issued for one CRM account.
// A record exists only while the account holds a usable refresh chain.
type CredentialRecord struct {
	AccountID    string    `json:"account_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    int64     `json:"expires_at"` // epoch milliseconds
	LocationID   string    `json:"location_id,omitempty"`
	CompanyID    string    `json:"company_id,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Expired reports whether the access token must not be used at now.
func (c *CredentialRecord) Expired(now time.Time) bool {
	return now.UnixMilli() >= c.ExpiresAt
}

// ExpiresAtTime returns ExpiresAt as a time.Time.
func (c *CredentialRecord) ExpiresAtTime() time.Time {
	return time.UnixMilli(c.ExpiresAt)
}

// Clone returns a copy that shares no state with c.
func (c *CredentialRecord) Clone() *CredentialRecord {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// AuthStatus is the read-only view of an account's authorization.
type AuthStatus struct {
	Authenticated bool   `json:"authenticated"`
	LocationID    string `json:"locationId,omitempty"`
	CompanyID     string `json:"companyId,omitempty"`
	ExpiresAt     int64  `json:"expiresAt,omitempty"`
}

// AccountStatus is AuthStatus tagged with the account it describes.
type AccountStatus struct {
	AccountID string `json:"accountId"`
	AuthStatus
}

// AuthorizationRequest is what a caller needs to send a user to the CRM
// consent screen.
type AuthorizationRequest struct {
	AuthURL string `json:"authUrl"`
	State   string `json:"state"`
}
