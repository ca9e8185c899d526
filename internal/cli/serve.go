package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/leadbridge/leadbridge/internal/api"
	"github.com/leadbridge/leadbridge/internal/config"
	"github.com/leadbridge/leadbridge/internal/store"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s", "server", "run"},
	Short:   "Start the LeadBridge server",
	Long: `Start the LeadBridge HTTP server.

The server exposes the authorization round trip, the auth status, the
location search, the lead fetch and the export endpoints.

Example:
  leadbridge serve --config config.yaml --db ./data/leadbridge.db

The configuration file is watched and reloaded on change; the lead source
endpoint and key follow the reloaded configuration.`,
	RunE: runServe,
}

var serveFlags struct {
	Host       string
	Port       int
	Timeout    time.Duration
	TLS        bool
	TLSCert    string
	TLSKey     string
	TLSVersion string
	NoWatch    bool
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.Host, "host", "", "Server host (overrides config)")
	serveCmd.Flags().IntVar(&serveFlags.Port, "port", envInt("LEADBRIDGE_PORT", 0), "Server port (overrides config)")
	serveCmd.Flags().DurationVar(&serveFlags.Timeout, "timeout", envDuration("SHUTDOWN_TIMEOUT", 0), "Shutdown timeout (overrides server.shutdown_timeout)")
	serveCmd.Flags().BoolVar(&serveFlags.TLS, "tls", false, "Enable TLS/HTTPS")
	serveCmd.Flags().StringVar(&serveFlags.TLSCert, "cert", "", "TLS certificate file path")
	serveCmd.Flags().StringVar(&serveFlags.TLSKey, "key", "", "TLS key file path")
	serveCmd.Flags().StringVar(&serveFlags.TLSVersion, "tls-version", "", "Minimum TLS version (1.2 or 1.3)")
	serveCmd.Flags().BoolVar(&serveFlags.NoWatch, "no-watch", false, "Do not reload the configuration file on change")

	RootCmd.AddCommand(serveCmd)
}

// applyServeFlags copies command-line overrides into cfg.
func applyServeFlags(cfg *config.Config) {
	if serveFlags.Host != "" {
		cfg.Server.Host = serveFlags.Host
	}
	if serveFlags.Port != 0 {
		cfg.Server.HTTPPort = serveFlags.Port
	}
	if serveFlags.Timeout > 0 {
		cfg.Server.ShutdownTimeout = serveFlags.Timeout
	}
	if serveFlags.TLS {
		cfg.Server.TLS.Enabled = true
	}
	if serveFlags.TLSCert != "" {
		cfg.Server.TLS.CertFile = serveFlags.TLSCert
	}
	if serveFlags.TLSKey != "" {
		cfg.Server.TLS.KeyFile = serveFlags.TLSKey
	}
	if serveFlags.TLSVersion != "" {
		cfg.Server.TLS.MinVersion = serveFlags.TLSVersion
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	loader, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyServeFlags(cfg)

	logger := newLogger(cfg, os.Stdout)
	logger.Debug("configuration loaded",
		"config_path", loader.Path(),
		"storage", cfg.Storage.Driver,
		"state_store", cfg.OAuth.StateStore,
	)

	if cfg.Server.TLS.Enabled {
		if err := validateTLSConfig(cfg.Server.TLS); err != nil {
			return fmt.Errorf("TLS validation failed: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	server := api.NewServer(cfg, api.Deps{
		Manager:    a.manager,
		Exporter:   a.orchestrator,
		CRM:        a.crm,
		LeadSource: a.leadSource,
		Settings:   a.creds.Settings(),
		Metrics:    a.metrics,
		Logger:     logger,
		Closers:    a.closers(),
	})

	if !serveFlags.NoWatch {
		watchConfig(ctx, loader, a)
	}

	done := make(chan error, 1)
	go func() {
		sig := api.WaitForSignal(api.SetupSignalHandler())
		logger.Info("received signal", "signal", sig.String())
		cancel()

		shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer stop()
		done <- server.Shutdown(shutdownCtx)
	}()

	logger.Info("starting leadbridge",
		"addr", server.Addr(),
		"tls", cfg.Server.TLS.Enabled,
		"storage", cfg.Storage.Driver,
		"version", Version,
	)
	if err := server.Run(); err != nil && err != http.ErrServerClosed {
		_ = a.Close()
		return fmt.Errorf("server error: %w", err)
	}

	if err := <-done; err != nil {
		return err
	}
	logger.Info("graceful shutdown completed")
	return nil
}

// watchConfig hot-reloads the config file. Only the lead source endpoint
// and key are applied live; other sections need a restart.
func watchConfig(ctx context.Context, loader *config.Loader, a *app) {
	loader.SetOnChange(func(cfg *config.Config) {
		applyGlobalOverrides(cfg)
		a.leadSource.Update(cfg.LeadSource)
		if err := store.RecordConfigReload(a.creds.Settings(), time.Now()); err != nil {
			a.logger.Warn("failed to record config reload", "error", err.Error())
		}
		a.logger.Info("configuration reloaded", "config_path", loader.Path())
	})

	err := loader.Watch(ctx, func(err error) {
		a.logger.Error("configuration reload failed", "config_path", loader.Path(), "error", err.Error())
	})
	if err != nil {
		a.logger.Warn("configuration watch disabled", "error", err.Error())
	}
}

// validateTLSConfig validates TLS configuration
func validateTLSConfig(tls config.TLSConfig) error {
	if tls.CertFile == "" {
		return fmt.Errorf("TLS certificate file is required when TLS is enabled")
	}
	if tls.KeyFile == "" {
		return fmt.Errorf("TLS key file is required when TLS is enabled")
	}

	if _, err := os.Stat(tls.CertFile); os.IsNotExist(err) {
		return fmt.Errorf("TLS certificate file does not exist: %s", tls.CertFile)
	}
	if _, err := os.Stat(tls.KeyFile); os.IsNotExist(err) {
		return fmt.Errorf("TLS key file does not exist: %s", tls.KeyFile)
	}

	if tls.MinVersion != "" && tls.MinVersion != "1.2" && tls.MinVersion != "1.3" {
		return fmt.Errorf("TLS min_version must be either \"1.2\" or \"1.3\", got: %s", tls.MinVersion)
	}

	return nil
}

func envDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	return fallback
}

func envInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
