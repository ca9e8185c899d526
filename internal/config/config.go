package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config represents the complete application configuration.
type Config struct {
	Version    string           `yaml:"version"`
	Server     ServerConfig     `yaml:"server"`
	API        APIConfig        `yaml:"api"`
	CRM        CRMConfig        `yaml:"crm"`
	LeadSource LeadSourceConfig `yaml:"lead_source"`
	OAuth      OAuthConfig      `yaml:"oauth"`
	Storage    StorageConfig    `yaml:"storage"`
	HTTPClient HTTPClientConfig `yaml:"http_client"`
	Telegram   TelegramConfig   `yaml:"telegram"`
}

// ServerConfig contains server-related configuration.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	HTTPPort        int           `yaml:"http_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
	TLS             TLSConfig     `yaml:"tls"`
}

// TLSConfig contains TLS configuration.
type TLSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
	MinVersion string `yaml:"min_version"` // "1.2" or "1.3"
}

// APIConfig contains API-related configuration.
type APIConfig struct {
	BasePath  string          `yaml:"base_path"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors"`
}

// AuthConfig contains authentication configuration for the protected routes.
type AuthConfig struct {
	Enabled    bool     `yaml:"enabled"`
	APIKeys    []string `yaml:"api_keys"`
	HeaderName string   `yaml:"header_name"`
	// ProtectAuthorize puts GET /auth/authorize behind the API key, so only
	// key holders can start a consent flow that overwrites a credential.
	ProtectAuthorize bool `yaml:"protect_authorize"`
}

// RateLimitConfig contains rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// CORSConfig contains CORS configuration.
type CORSConfig struct {
	Enabled bool     `yaml:"enabled"`
	Origins []string `yaml:"origins"`
	Methods []string `yaml:"methods"`
	Headers []string `yaml:"headers"`
}

// CRMConfig describes the OAuth client registered with the CRM and the
// endpoints it talks to.
type CRMConfig struct {
	ClientID           string        `yaml:"client_id"`
	ClientSecret       string        `yaml:"client_secret"`
	AuthURL            string        `yaml:"auth_url"`
	TokenURL           string        `yaml:"token_url"`
	APIBaseURL         string        `yaml:"api_base_url"`
	APIVersion         string        `yaml:"api_version"`
	RedirectURI        string        `yaml:"redirect_uri"`
	Scopes             []string      `yaml:"scopes"`
	DefaultAccountID   string        `yaml:"default_account_id"`
	SuccessRedirectURL string        `yaml:"success_redirect_url"`
	TokenTTL           time.Duration `yaml:"token_ttl"`
	LocationsLimit     int           `yaml:"locations_limit"`
}

// LeadSourceConfig contains the lead provider endpoint and its static key.
type LeadSourceConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

// OAuthConfig controls how authorization state is tracked.
type OAuthConfig struct {
	EnforceState bool          `yaml:"enforce_state"`
	StateTTL     time.Duration `yaml:"state_ttl"`
	StateStore   string        `yaml:"state_store"` // memory, redis
	RedisURL     string        `yaml:"redis_url"`
}

// StorageConfig selects the credential store backend.
type StorageConfig struct {
	Driver string `yaml:"driver"` // memory, sqlite
	Path   string `yaml:"path"`
}

// HTTPClientConfig configures outbound calls to the CRM and lead source.
type HTTPClientConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	UTLS    bool          `yaml:"utls"`
}

// TelegramConfig contains Telegram notification configuration.
type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
	// RateLimitPerMinute caps delivered notifications.
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
	// DedupWindow suppresses repeats of the same re-authorization notice.
	DedupWindow time.Duration `yaml:"dedup_window"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}

	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	if err := c.API.Validate(); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	if err := c.CRM.Validate(); err != nil {
		return fmt.Errorf("crm: %w", err)
	}

	if err := c.LeadSource.Validate(); err != nil {
		return fmt.Errorf("lead_source: %w", err)
	}

	if err := c.OAuth.Validate(); err != nil {
		return fmt.Errorf("oauth: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	if err := c.HTTPClient.Validate(); err != nil {
		return fmt.Errorf("http_client: %w", err)
	}

	if err := c.Telegram.Validate(); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}

	return nil
}

// Validate validates server configuration.
func (s *ServerConfig) Validate() error {
	if s.Host == "" {
		return fmt.Errorf("host is required")
	}
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("http_port must be between 1 and 65535")
	}
	if s.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = 30 * time.Second
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	if s.LogFormat == "" {
		s.LogFormat = "json"
	}
	if s.TLS.Enabled {
		if s.TLS.CertFile == "" {
			return fmt.Errorf("tls cert_file is required when TLS is enabled")
		}
		if s.TLS.KeyFile == "" {
			return fmt.Errorf("tls key_file is required when TLS is enabled")
		}
		if s.TLS.MinVersion != "" && s.TLS.MinVersion != "1.2" && s.TLS.MinVersion != "1.3" {
			return fmt.Errorf("tls min_version must be either \"1.2\" or \"1.3\"")
		}
		if s.TLS.MinVersion == "" {
			s.TLS.MinVersion = "1.3"
		}
	}
	return nil
}

// Validate validates API configuration.
func (a *APIConfig) Validate() error {
	if a.BasePath == "" {
		a.BasePath = "/api"
	}
	if !strings.HasPrefix(a.BasePath, "/") {
		return fmt.Errorf("base_path must start with /")
	}
	a.BasePath = strings.TrimRight(a.BasePath, "/")
	if a.Auth.Enabled && len(a.Auth.APIKeys) == 0 {
		return fmt.Errorf("auth: api_keys is required when auth is enabled")
	}
	if a.Auth.ProtectAuthorize && !a.Auth.Enabled {
		return fmt.Errorf("auth: protect_authorize requires auth to be enabled")
	}
	if a.Auth.HeaderName == "" {
		a.Auth.HeaderName = "X-API-Key"
	}
	if a.RateLimit.RequestsPerMinute <= 0 {
		a.RateLimit.RequestsPerMinute = 600
	}
	if a.RateLimit.RequestsPerMinute > 100000 {
		a.RateLimit.RequestsPerMinute = 100000
	}
	if a.RateLimit.Burst <= 0 {
		a.RateLimit.Burst = 60
	}
	if a.RateLimit.Burst > 10000 {
		a.RateLimit.Burst = 10000
	}
	if a.CORS.Enabled {
		if len(a.CORS.Methods) == 0 {
			a.CORS.Methods = []string{"GET", "POST", "OPTIONS"}
		}
		if len(a.CORS.Headers) == 0 {
			a.CORS.Headers = []string{"Content-Type", "Authorization", a.Auth.HeaderName}
		}
	}
	return nil
}

// Validate validates CRM configuration and applies defaults.
func (c *CRMConfig) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("client_secret is required")
	}
	for name, raw := range map[string]string{
		"auth_url":     c.AuthURL,
		"token_url":    c.TokenURL,
		"api_base_url": c.APIBaseURL,
		"redirect_uri": c.RedirectURI,
	} {
		if err := validateAbsoluteURL(name, raw); err != nil {
			return err
		}
	}
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")
	if c.APIVersion == "" {
		c.APIVersion = "2021-07-28"
	}
	if c.DefaultAccountID == "" {
		c.DefaultAccountID = "default"
	}
	if c.SuccessRedirectURL == "" {
		c.SuccessRedirectURL = "/"
	}
	if c.TokenTTL < 0 {
		return fmt.Errorf("token_ttl must be positive")
	}
	if c.TokenTTL == 0 {
		c.TokenTTL = time.Hour
	}
	if c.LocationsLimit <= 0 {
		c.LocationsLimit = 100
	}
	return nil
}

// Validate validates lead source configuration.
func (l *LeadSourceConfig) Validate() error {
	if err := validateAbsoluteURL("url", l.URL); err != nil {
		return err
	}
	if l.APIKey == "" {
		return fmt.Errorf("api_key is required")
	}
	return nil
}

// Validate validates OAuth state configuration.
func (o *OAuthConfig) Validate() error {
	if o.StateTTL < 0 {
		return fmt.Errorf("state_ttl must be positive")
	}
	if o.StateTTL == 0 {
		o.StateTTL = 10 * time.Minute
	}
	switch o.StateStore {
	case "":
		o.StateStore = "memory"
	case "memory":
	case "redis":
		if o.RedisURL == "" {
			return fmt.Errorf("redis_url is required when state_store is redis")
		}
	default:
		return fmt.Errorf("state_store must be memory or redis")
	}
	return nil
}

// Validate validates storage configuration.
func (s *StorageConfig) Validate() error {
	switch s.Driver {
	case "":
		s.Driver = "memory"
	case "memory":
	case "sqlite":
		if s.Path == "" {
			s.Path = "data/leadbridge.db"
		}
	default:
		return fmt.Errorf("driver must be memory or sqlite")
	}
	return nil
}

// Validate validates outbound HTTP client configuration.
func (h *HTTPClientConfig) Validate() error {
	if h.Timeout < 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if h.Timeout == 0 {
		h.Timeout = 30 * time.Second
	}
	return nil
}

// Validate validates Telegram configuration.
func (t *TelegramConfig) Validate() error {
	if t.RateLimitPerMinute <= 0 {
		t.RateLimitPerMinute = 20
	}
	if t.DedupWindow <= 0 {
		t.DedupWindow = 30 * time.Minute
	}
	if !t.Enabled {
		return nil
	}
	if t.BotToken == "" {
		return fmt.Errorf("bot_token is required when telegram is enabled")
	}
	if t.ChatID == 0 {
		return fmt.Errorf("chat_id is required when telegram is enabled")
	}
	return nil
}

func validateAbsoluteURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", name)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL", name)
	}
	return nil
}
