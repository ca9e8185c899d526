package config

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leadbridge/leadbridge/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
version: "1"
crm:
  client_id: "client"
  client_secret: "secret"
  auth_url: "https://crm.example.com/oauth/chooselocation"
  token_url: "https://api.crm.example.com/oauth/token"
  api_base_url: "https://api.crm.example.com/"
  redirect_uri: "https://bridge.example.com/api/auth/callback"
lead_source:
  url: "https://leads.example.com/v1/leads"
  api_key: "lead-key"
`

func validConfig() Config {
	return Config{
		Version: "1",
		Server: ServerConfig{
			Host:     "127.0.0.1",
			HTTPPort: 8320,
		},
		CRM: CRMConfig{
			ClientID:     "client",
			ClientSecret: "secret",
			AuthURL:      "https://crm.example.com/oauth/chooselocation",
			TokenURL:     "https://api.crm.example.com/oauth/token",
			APIBaseURL:   "https://api.crm.example.com",
			RedirectURI:  "https://bridge.example.com/api/auth/callback",
		},
		LeadSource: LeadSourceConfig{
			URL:    "https://leads.example.com/v1/leads",
			APIKey: "lead-key",
		},
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing version", mutate: func(c *Config) { c.Version = "" }, wantErr: true, errMsg: "version is required"},
		{name: "bad server", mutate: func(c *Config) { c.Server.HTTPPort = 0 }, wantErr: true, errMsg: "server:"},
		{name: "missing client id", mutate: func(c *Config) { c.CRM.ClientID = "" }, wantErr: true, errMsg: "crm: client_id is required"},
		{name: "relative token url", mutate: func(c *Config) { c.CRM.TokenURL = "/oauth/token" }, wantErr: true, errMsg: "token_url must be an absolute URL"},
		{name: "missing lead source key", mutate: func(c *Config) { c.LeadSource.APIKey = "" }, wantErr: true, errMsg: "lead_source: api_key is required"},
		{name: "unknown state store", mutate: func(c *Config) { c.OAuth.StateStore = "etcd" }, wantErr: true, errMsg: "oauth:"},
		{name: "redis without url", mutate: func(c *Config) { c.OAuth.StateStore = "redis" }, wantErr: true, errMsg: "redis_url is required"},
		{name: "unknown storage driver", mutate: func(c *Config) { c.Storage.Driver = "postgres" }, wantErr: true, errMsg: "storage:"},
		{name: "telegram without token", mutate: func(c *Config) { c.Telegram.Enabled = true; c.Telegram.ChatID = 1 }, wantErr: true, errMsg: "bot_token is required"},
		{name: "auth without keys", mutate: func(c *Config) { c.API.Auth.Enabled = true }, wantErr: true, errMsg: "api_keys is required"},
		{name: "protect authorize without auth", mutate: func(c *Config) { c.API.Auth.ProtectAuthorize = true }, wantErr: true, errMsg: "protect_authorize requires auth"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateAppliesDefaults(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "/api", cfg.API.BasePath)
	assert.Equal(t, "X-API-Key", cfg.API.Auth.HeaderName)
	assert.Equal(t, "2021-07-28", cfg.CRM.APIVersion)
	assert.Equal(t, "default", cfg.CRM.DefaultAccountID)
	assert.Equal(t, time.Hour, cfg.CRM.TokenTTL)
	assert.Equal(t, 100, cfg.CRM.LocationsLimit)
	assert.Equal(t, 10*time.Minute, cfg.OAuth.StateTTL)
	assert.Equal(t, "memory", cfg.OAuth.StateStore)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, 20, cfg.Telegram.RateLimitPerMinute)
	assert.Equal(t, 30*time.Minute, cfg.Telegram.DedupWindow)
	assert.Equal(t, 30*time.Second, cfg.HTTPClient.Timeout)
}

func TestServerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  ServerConfig
		wantErr bool
	}{
		{
			name:    "valid config",
			config:  ServerConfig{Host: "127.0.0.1", HTTPPort: 8320},
			wantErr: false,
		},
		{
			name:    "missing host",
			config:  ServerConfig{HTTPPort: 8320},
			wantErr: true,
		},
		{
			name:    "port too high",
			config:  ServerConfig{Host: "127.0.0.1", HTTPPort: 70000},
			wantErr: true,
		},
		{
			name:    "negative shutdown timeout",
			config:  ServerConfig{Host: "127.0.0.1", HTTPPort: 8320, ShutdownTimeout: -time.Second},
			wantErr: true,
		},
		{
			name:    "tls without cert",
			config:  ServerConfig{Host: "127.0.0.1", HTTPPort: 8320, TLS: TLSConfig{Enabled: true, KeyFile: "k"}},
			wantErr: true,
		},
		{
			name:    "tls bad min version",
			config:  ServerConfig{Host: "127.0.0.1", HTTPPort: 8320, TLS: TLSConfig{Enabled: true, CertFile: "c", KeyFile: "k", MinVersion: "1.1"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "info", tt.config.LogLevel)
				assert.Equal(t, "json", tt.config.LogFormat)
			}
		})
	}
}

func TestAPIConfig_Validate(t *testing.T) {
	api := APIConfig{BasePath: "/bridge/", CORS: CORSConfig{Enabled: true}}
	require.NoError(t, api.Validate())
	assert.Equal(t, "/bridge", api.BasePath)
	assert.Equal(t, []string{"GET", "POST", "OPTIONS"}, api.CORS.Methods)
	assert.Contains(t, api.CORS.Headers, "X-API-Key")

	api = APIConfig{RateLimit: RateLimitConfig{RequestsPerMinute: 1_000_000, Burst: 1_000_000}}
	require.NoError(t, api.Validate())
	assert.Equal(t, 100000, api.RateLimit.RequestsPerMinute)
	assert.Equal(t, 10000, api.RateLimit.Burst)

	api = APIConfig{BasePath: "api"}
	assert.Error(t, api.Validate())
}

func TestStorageConfig_SQLiteDefaultPath(t *testing.T) {
	s := StorageConfig{Driver: "sqlite"}
	require.NoError(t, s.Validate())
	assert.Equal(t, "data/leadbridge.db", s.Path)
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "test_value")
	t.Setenv("ANOTHER_VAR", "another_value")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "no substitution", input: "hello world", expected: "hello world"},
		{name: "single substitution", input: "value is ${TEST_VAR}", expected: "value is test_value"},
		{name: "multiple substitutions", input: "${TEST_VAR} and ${ANOTHER_VAR}", expected: "test_value and another_value"},
		{name: "missing env var returns empty", input: "value is ${MISSING_VAR}", expected: "value is "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := substituteEnvVars([]byte(tt.input))
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8320, cfg.Server.HTTPPort)
	assert.True(t, cfg.OAuth.EnforceState)
	assert.Equal(t, "https://api.crm.example.com", cfg.CRM.APIBaseURL)
}

func TestParse_EnforceStateCanBeDisabled(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML + "oauth:\n  enforce_state: false\n"))
	require.NoError(t, err)
	assert.False(t, cfg.OAuth.EnforceState)
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("version: [unterminated"))
	require.Error(t, err)

	var parseErr *errors.ErrConfigParse
	assert.True(t, stderrors.As(err, &parseErr))
}

func TestParse_InvalidConfig(t *testing.T) {
	_, err := Parse([]byte(`version: "1"`))
	require.Error(t, err)

	var validationErr *errors.ErrConfigValidation
	assert.True(t, stderrors.As(err, &validationErr))
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_CRM_SECRET", "from-env")
	content := `
version: "1"
crm:
  client_id: "client"
  client_secret: "${TEST_CRM_SECRET}"
  auth_url: "https://crm.example.com/oauth/chooselocation"
  token_url: "https://api.crm.example.com/oauth/token"
  api_base_url: "https://api.crm.example.com"
  redirect_uri: "https://bridge.example.com/api/auth/callback"
  scopes: ["contacts.write", "locations.readonly"]
lead_source:
  url: "https://leads.example.com/v1/leads"
  api_key: "lead-key"
`
	loader := NewLoader(writeConfig(t, content))
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.CRM.ClientSecret)
	assert.Equal(t, []string{"contacts.write", "locations.readonly"}, cfg.CRM.Scopes)
	assert.Same(t, cfg, loader.Get())
}

func TestLoad_FileNotFound(t *testing.T) {
	loader := NewLoader("/nonexistent/path/config.yaml")
	_, err := loader.Load()
	require.Error(t, err)

	var notFound *errors.ErrConfigNotFound
	assert.True(t, stderrors.As(err, &notFound))
}

func TestLoader_OnChange(t *testing.T) {
	loader := NewLoader(writeConfig(t, minimalYAML))

	calls := 0
	loader.SetOnChange(func(*Config) { calls++ })
	loader.SetOnChange(func(*Config) { calls++ })

	_, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 0, calls, "plain Load does not notify")

	_, err = loader.Reload()
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestLoader_WatchReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, minimalYAML)
	loader := NewLoader(path)
	_, err := loader.Load()
	require.NoError(t, err)

	changed := make(chan *Config, 4)
	loader.SetOnChange(func(c *Config) { changed <- c })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, loader.Watch(ctx, nil))

	// Ensure the new mtime differs on filesystems with coarse timestamps.
	time.Sleep(20 * time.Millisecond)
	updated := minimalYAML + "server:\n  http_port: 9000\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	select {
	case cfg := <-changed:
		assert.Equal(t, 9000, cfg.Server.HTTPPort)
	case <-time.After(3 * time.Second):
		t.Fatal("expected reload after file change")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv(EnvConfigPath, writeConfig(t, minimalYAML))

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "1", cfg.Version)
}

func TestPathFromEnv_Default(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	assert.Equal(t, "config.yaml", PathFromEnv())
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("LEADBRIDGE_TEST_DOTENV=loaded\n"), 0600))
	t.Cleanup(func() { os.Unsetenv("LEADBRIDGE_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(envPath, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "loaded", os.Getenv("LEADBRIDGE_TEST_DOTENV"))
}

func TestLoadDotEnv_DoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("LEADBRIDGE_TEST_KEEP=file\n"), 0600))
	t.Setenv("LEADBRIDGE_TEST_KEEP", "process")

	require.NoError(t, LoadDotEnv(envPath))
	assert.Equal(t, "process", os.Getenv("LEADBRIDGE_TEST_KEEP"))
}

func TestMustLoad_Panic(t *testing.T) {
	assert.Panics(t, func() {
		MustLoad("/nonexistent/config.yaml")
	})
}
