package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/leadbridge/leadbridge/internal/alerts"
	"github.com/leadbridge/leadbridge/internal/config"
	"github.com/leadbridge/leadbridge/internal/export"
	"github.com/leadbridge/leadbridge/internal/logging"
	"github.com/leadbridge/leadbridge/internal/metrics"
	"github.com/leadbridge/leadbridge/internal/oauth"
	"github.com/leadbridge/leadbridge/internal/store"
	"github.com/leadbridge/leadbridge/internal/telegram"
	"github.com/leadbridge/leadbridge/internal/upstream"
)

// app bundles the components built from one configuration.
type app struct {
	cfg          *config.Config
	logger       *logging.Logger
	metrics      *metrics.Metrics
	creds        store.Store
	states       store.StateStore
	httpClient   *http.Client
	notifier     telegram.Notifier
	manager      *oauth.Manager
	crm          *upstream.CRMClient
	leadSource   *upstream.LeadSourceClient
	orchestrator *export.Orchestrator
}

// loadConfig reads .env and the config file, then applies global flag
// overrides.
func loadConfig() (*config.Loader, *config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, nil, fmt.Errorf("failed to load .env: %w", err)
	}

	loader := config.NewLoader(globalFlags.Config)
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	applyGlobalOverrides(cfg)
	return loader, cfg, nil
}

func applyGlobalOverrides(cfg *config.Config) {
	if globalFlags.DBPath != "" {
		cfg.Storage.Driver = "sqlite"
		cfg.Storage.Path = globalFlags.DBPath
	}
}

// newLogger builds the process logger. Commands other than serve log to
// stderr so stdout only carries their output.
func newLogger(cfg *config.Config, out io.Writer) *logging.Logger {
	level := logging.ParseLevel(cfg.Server.LogLevel)
	if globalFlags.Verbose {
		level = logging.LevelDebug
	}
	if out == nil {
		out = os.Stderr
	}
	return logging.NewLogger(logging.WithOutput(out), logging.WithLevel(level))
}

func openCredentialStore(cfg config.StorageConfig) (store.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		s, err := store.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite store: %w", err)
		}
		return s, nil
	default:
		return store.NewMemoryStore(), nil
	}
}

func openStateStore(ctx context.Context, cfg config.OAuthConfig) (store.StateStore, error) {
	if cfg.StateStore != "redis" {
		return store.NewMemoryStateStore(), nil
	}
	s, err := store.NewRedisStateStoreFromURL(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open redis state store: %w", err)
	}
	return s, nil
}

// newApp wires stores, clients and services for cfg.
func newApp(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.NewMetrics("leadbridge"),
	}

	creds, err := openCredentialStore(cfg.Storage)
	if err != nil {
		return nil, err
	}
	a.creds = creds

	states, err := openStateStore(ctx, cfg.OAuth)
	if err != nil {
		_ = creds.Close()
		return nil, err
	}
	a.states = states

	notifier, err := telegram.NewNotifier(cfg.Telegram)
	if err != nil {
		logger.Warn("telegram notifications disabled", "error", err.Error())
		notifier = telegram.NopNotifier{}
	}
	if _, disabled := notifier.(telegram.NopNotifier); !disabled {
		notifier = alerts.NewGuard(notifier, cfg.Telegram.RateLimitPerMinute, cfg.Telegram.DedupWindow)
	}
	a.notifier = notifier

	a.httpClient = upstream.NewHTTPClient(cfg.HTTPClient)
	a.manager = oauth.NewManager(oauth.ConfigFrom(cfg), creds, states,
		oauth.WithLogger(logger),
		oauth.WithMetrics(a.metrics),
		oauth.WithNotifier(notifier),
		oauth.WithHTTPClient(a.httpClient),
	)
	a.crm = upstream.NewCRMClient(cfg.CRM, a.httpClient, upstream.WithMetrics(a.metrics))
	a.leadSource = upstream.NewLeadSourceClient(cfg.LeadSource, a.httpClient, upstream.WithMetrics(a.metrics))
	a.orchestrator = export.NewOrchestrator(a.manager, a.crm,
		export.WithLogger(logger),
		export.WithMetrics(a.metrics),
		export.WithNotifier(notifier),
		export.WithSettings(creds.Settings()),
	)
	return a, nil
}

// closers lists what must be closed when the app stops.
func (a *app) closers() []io.Closer {
	return []io.Closer{a.states, a.creds}
}

// Close releases the stores.
func (a *app) Close() error {
	var firstErr error
	for _, c := range a.closers() {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// setupApp loads the configuration and builds the app for a one-shot
// command.
func setupApp(ctx context.Context, logOut io.Writer) (*app, error) {
	_, cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg, newLogger(cfg, logOut))
}
