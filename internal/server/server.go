package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/faucetdb/askdb/internal/config"
	"github.com/faucetdb/askdb/internal/handler"
	"github.com/faucetdb/askdb/internal/server/middleware"
	"github.com/faucetdb/askdb/internal/service"
	"github.com/faucetdb/askdb/internal/telemetry"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	CORSMethods     []string
	MaxBodySize     int64 // bytes
	// AuthRequired guards the ask, schema and history routes. The system
	// routes always require credentials.
	AuthRequired bool
	APIKeyHeader string
	// AskRateLimit caps ask requests per client per minute; 0 disables it.
	AskRateLimit int
	TLSCertFile  string
	TLSKeyFile   string
	Version      string
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     []string{"*"},
		CORSMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		MaxBodySize:     handler.DefaultMaxBodySize,
		APIKeyHeader:    middleware.DefaultAPIKeyHeader,
		AskRateLimit:    30,
		Version:         "dev",
	}
}

// Deps are the services the server routes requests to.
type Deps struct {
	Catalog *service.Catalog
	Schemas *service.SchemaService
	Asker   *service.AskService
	Store   *config.Store
	// History is the store asks are listed from; nil disables the
	// history routes.
	History *config.Store
	Auth    *service.AuthService
	// MCP, when set, is mounted at /mcp behind the same auth as the ask
	// routes.
	MCP    http.Handler
	Logger *slog.Logger
}

// Server is the top-level HTTP server for askdb. It owns the Chi router
// and the services behind it.
type Server struct {
	cfg        Config
	deps       Deps
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   s.cfg.CORSMethods,
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", s.apiKeyHeader(), "X-Requested-With", "Mcp-Session-Id"},
		ExposedHeaders:   []string{"X-Request-ID", "Mcp-Session-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// --- Probes, metrics and the API document (no auth required) ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())
	r.Get("/openapi.json", handler.NewOpenAPIHandler(s.deps.Catalog, s.deps.Schemas, s.cfg.Version).ServeSpec)

	authenticate := middleware.Authenticate(s.deps.Auth, s.cfg.APIKeyHeader)
	askLimit := middleware.RateLimit(s.cfg.AskRateLimit, s.cfg.APIKeyHeader)

	askHandler := handler.NewAskHandler(s.deps.Asker, s.cfg.MaxBodySize, s.logger)
	catalogHandler := handler.NewCatalogHandler(s.deps.Catalog, s.deps.History, s.deps.Asker.Defaults().MaxRows, s.cfg.MaxBodySize)
	schemaHandler := handler.NewSchemaHandler(s.deps.Schemas)

	if s.deps.MCP != nil {
		r.Group(func(r chi.Router) {
			if s.cfg.AuthRequired {
				r.Use(authenticate)
			}
			r.Handle("/mcp", s.deps.MCP)
		})
	}

	// --- API routes ---
	r.Route("/api/v1", func(r chi.Router) {

		// System APIs always require credentials.
		r.Route("/system", func(r chi.Router) {
			sysHandler := handler.NewSystemHandler(s.deps.Store, s.deps.Catalog, s.deps.Schemas)
			r.Use(authenticate)

			// Service management
			r.Get("/service", sysHandler.ListServices)
			r.Post("/service", sysHandler.CreateService)
			r.Get("/service/{serviceName}", sysHandler.GetService)
			r.Put("/service/{serviceName}", sysHandler.UpdateService)
			r.Delete("/service/{serviceName}", sysHandler.DeleteService)
			r.Get("/service/{serviceName}/test", sysHandler.TestConnection)

			// API key management
			r.Get("/api-key", sysHandler.ListAPIKeys)
			r.Post("/api-key", sysHandler.CreateAPIKey)
			r.Delete("/api-key/{keyPrefix}", sysHandler.RevokeAPIKey)
		})

		r.Group(func(r chi.Router) {
			if s.cfg.AuthRequired {
				r.Use(authenticate)
			}

			// The ask handler answers 405 itself so clients get an Allow header.
			r.With(askLimit).HandleFunc("/ask", askHandler.ServeHTTP)

			r.Get("/_services", catalogHandler.ListServices)
			r.Get("/_history", catalogHandler.ListHistory)
			r.Get("/_history/{id}", catalogHandler.GetHistory)

			r.Route("/{serviceName}", func(r chi.Router) {
				r.With(askLimit).HandleFunc("/_ask", askHandler.ServeHTTP)
				r.Post("/_validate", catalogHandler.Validate)
				r.Get("/_schema", schemaHandler.GetSchema)
				r.Get("/_schema/{tableName}", schemaHandler.GetTable)
			})
		})
	})

	s.router = r
}

func (s *Server) apiKeyHeader() string {
	if s.cfg.APIKeyHeader == "" {
		return middleware.DefaultAPIKeyHeader
	}
	return s.cfg.APIKeyHeader
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when all database connectors
// are reachable, or 503 if any connector is unhealthy.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ok"
	httpStatus := http.StatusOK
	checks := make(map[string]string)
	for _, name := range s.deps.Catalog.Names() {
		checks[name] = "ok"
	}
	for name, err := range s.deps.Catalog.Registry().PingAll(ctx) {
		checks[name] = "error: " + err.Error()
		status = "degraded"
	}

	if status != "ok" {
		httpStatus = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]any{
		"status": status,
		"checks": checks,
	})
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests before closing all database connections.
func (s *Server) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      3 * time.Minute, // two model calls plus the query
		IdleTimeout:       120 * time.Second,
	}

	// Start server in background goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr, "tls", s.cfg.TLSCertFile != "")
		var err error
		if s.cfg.TLSCertFile != "" {
			err = s.httpServer.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	// Close all database connections
	s.deps.Catalog.Registry().CloseAll()
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
