package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/leadbridge/leadbridge/internal/config"
	"github.com/leadbridge/leadbridge/internal/errors"
	"github.com/leadbridge/leadbridge/internal/logging"
	"github.com/leadbridge/leadbridge/internal/metrics"
	"github.com/leadbridge/leadbridge/internal/middleware"
	"github.com/leadbridge/leadbridge/internal/models"
	"github.com/leadbridge/leadbridge/internal/store"
)

// maxBodySize caps request bodies.
const maxBodySize = 1 << 20

// CredentialManager is the token lifecycle the handlers rely on.
type CredentialManager interface {
	BeginAuthorization(ctx context.Context, accountID string) (*models.AuthorizationRequest, error)
	CompleteAuthorization(ctx context.Context, code, state string) (*models.CredentialRecord, error)
	ValidCredential(ctx context.Context, accountID string) (*models.CredentialRecord, error)
	AuthStatus(accountID string) models.AuthStatus
	Revoke(ctx context.Context, accountID string) (bool, error)
	ResolveAccount(accountID string) string
}

// Exporter runs export batches.
type Exporter interface {
	ExportLeads(ctx context.Context, batch []models.LeadRecord, accountID, targetLocationID string) (*models.ExportReport, error)
}

// LocationSearcher lists CRM locations.
type LocationSearcher interface {
	SearchLocations(ctx context.Context, token, companyID string, limit int) ([]json.RawMessage, error)
}

// LeadFetcher pulls leads from the lead source.
type LeadFetcher interface {
	FetchLeads(ctx context.Context) (json.RawMessage, error)
}

// Deps are the collaborators the server exposes over HTTP.
type Deps struct {
	Manager    CredentialManager
	Exporter   Exporter
	CRM        LocationSearcher
	LeadSource LeadFetcher
	// Settings, when set, lets /health report the last export and reload.
	Settings store.SettingsStore
	Metrics  *metrics.Metrics
	Logger   *logging.Logger
	// Closers are closed on Shutdown once the listener has stopped.
	Closers []io.Closer
}

// Server represents the HTTP API server
type Server struct {
	router      *gin.Engine
	config      config.ServerConfig
	apiConfig   config.APIConfig
	crmConfig   config.CRMConfig
	deps        Deps
	metrics     *metrics.Metrics
	logger      *logging.Logger
	rateLimiter *IPRateLimiter
	httpServer  *http.Server
	tlsConfig   config.TLSConfig
	started     time.Time
}

// Router returns the gin router for testing purposes
func (s *Server) Router() *gin.Engine {
	return s.router
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, deps Deps) *Server {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	m := deps.Metrics
	if m == nil {
		m = metrics.NewMetrics("leadbridge")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewLogger()
	}

	requestsPerMinute := cfg.API.RateLimit.RequestsPerMinute
	if requestsPerMinute <= 0 {
		requestsPerMinute = 600
	}
	burst := cfg.API.RateLimit.Burst
	if burst <= 0 {
		burst = 60
	}
	rateLimiter := newIPRateLimiter(time.Minute/time.Duration(requestsPerMinute), burst)

	server := &Server{
		router:      gin.New(),
		config:      cfg.Server,
		apiConfig:   cfg.API,
		crmConfig:   cfg.CRM,
		deps:        deps,
		metrics:     m,
		logger:      logger,
		rateLimiter: rateLimiter,
		tlsConfig:   cfg.Server.TLS,
		started:     time.Now(),
	}
	server.router.HandleMethodNotAllowed = true
	server.router.NoRoute(func(c *gin.Context) {
		abortWithError(c, http.StatusNotFound, CodeNotFound, "route not found")
	})
	server.router.NoMethod(func(c *gin.Context) {
		abortWithError(c, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "method not allowed")
	})

	server.router.Use(gin.Recovery())
	server.router.Use(loggingMiddleware(logger))
	if cfg.API.CORS.Enabled {
		server.router.Use(corsMiddleware(cfg.API.CORS))
	}
	server.router.Use(rateLimitMiddleware(rateLimiter))
	server.router.Use(bodyLimitMiddleware(maxBodySize))
	server.router.Use(metrics.Middleware(m, logger))

	server.setupRoutes()
	return server
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Prometheus metrics endpoint - NO authentication required
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	// Health check - NO authentication required
	s.router.GET("/health", s.handleHealth)

	var keys []string
	if s.apiConfig.Auth.Enabled {
		keys = s.apiConfig.Auth.APIKeys
	}
	authMiddleware := APIKeyAuth(keys, s.apiConfig.Auth.HeaderName, s.logger)

	base := s.router.Group(s.apiConfig.BasePath)

	// The callback is reached by the CRM's browser redirect and cannot carry
	// an API key; it is guarded by the consumed state instead.
	base.GET("/auth/callback", s.handleCallback)

	protected := base.Group("")
	protected.Use(authMiddleware, middleware.Audit(s.logger))

	// By default anyone may start a consent flow, as the consent screen is
	// opened from a browser.
	if s.apiConfig.Auth.ProtectAuthorize {
		protected.GET("/auth/authorize", s.handleAuthorize)
	} else {
		base.GET("/auth/authorize", s.handleAuthorize)
	}

	{
		protected.GET("/auth/status", s.handleAuthStatus)
		protected.POST("/auth/revoke", s.handleRevoke)
		protected.GET("/locations", s.handleLocations)
		protected.GET("/leads", s.handleFetchLeads)
		protected.POST("/export", s.handleExport)
	}
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.HTTPPort)
}

// Run starts the HTTP or HTTPS server based on TLS configuration
func (s *Server) Run() error {
	if s.tlsConfig.Enabled {
		return s.RunTLS()
	}

	if s.httpServer == nil {
		s.httpServer = NewHTTPServer(s.Addr(), s.router)
	}

	s.logger.Info("starting HTTP server", "addr", s.Addr(), "base_path", s.apiConfig.BasePath)
	return s.httpServer.ListenAndServe()
}

// RunTLS starts the HTTPS server with TLS configuration
func (s *Server) RunTLS() error {
	addr := s.Addr()

	s.logger.Info("starting HTTPS server", "addr", addr, "cert_file", s.tlsConfig.CertFile, "min_version", s.tlsConfig.MinVersion)

	srv, err := NewHTTPSServerWithConfig(addr, s.tlsConfig.CertFile, s.tlsConfig.KeyFile, s.tlsConfig.MinVersion, s.router)
	if err != nil {
		return &errors.ErrServerStart{Addr: addr, Err: err}
	}
	s.httpServer = srv

	return s.httpServer.ListenAndServeTLS("", "")
}

// StartWithServer starts the server with a pre-configured http.Server
func (s *Server) StartWithServer(srv *http.Server) error {
	s.httpServer = srv
	s.logger.Info("starting HTTP server", "addr", srv.Addr)
	return srv.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	var errList []error
	if s.httpServer != nil {
		s.logger.Info("shutting down HTTP server")
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", "error", err.Error())
			errList = append(errList, &errors.ErrServerShutdown{Err: err})
		}
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(s.deps.Closers))
	for _, closer := range s.deps.Closers {
		if closer == nil {
			continue
		}
		wg.Add(1)
		go func(c io.Closer) {
			defer wg.Done()
			if err := c.Close(); err != nil {
				errs <- fmt.Errorf("close %T: %w", c, err)
			}
		}(closer)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	close(errs)
	for err := range errs {
		errList = append(errList, err)
	}
	if len(errList) > 0 {
		return fmt.Errorf("shutdown errors: %v", errList)
	}

	s.logger.Info("graceful shutdown completed")
	return nil
}
