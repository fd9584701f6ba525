package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/helixml/branchscope"
	"github.com/helixml/branchscope/internal/metrics"
)

var _ Backend = (*branchscope.Client)(nil)

// APIServer provides the HTTP and websocket API backed by a branchscope
// Client.
type APIServer struct {
	backend      Backend
	statistics   StatisticsSource
	metrics      *metrics.Metrics
	version      string
	serverOpts   []ServerOption
	server       *Server
	router       chi.Router
	routerCalled bool
	logger       *slog.Logger
}

// APIServerOption configures an APIServer.
type APIServerOption func(*APIServer)

// WithVersion sets the version reported by /version.
func WithVersion(version string) APIServerOption {
	return func(a *APIServer) {
		a.version = version
	}
}

// WithServerOptions passes options to the underlying Server.
func WithServerOptions(opts ...ServerOption) APIServerOption {
	return func(a *APIServer) {
		a.serverOpts = append(a.serverOpts, opts...)
	}
}

// NewAPIServer creates a new APIServer wired to the given Client.
func NewAPIServer(client *branchscope.Client, opts ...APIServerOption) *APIServer {
	return newAPIServer(client, client.Statistics(), client.Metrics(), client.Logger(), opts...)
}

func newAPIServer(backend Backend, stats StatisticsSource, m *metrics.Metrics, logger *slog.Logger, opts ...APIServerOption) *APIServer {
	if logger == nil {
		logger = slog.Default()
	}
	a := &APIServer{
		backend:    backend,
		statistics: stats,
		metrics:    m,
		version:    "dev",
		logger:     logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Router returns the chi router for customization before starting.
// Call this first, add custom middleware with router.Use(), then call MountRoutes().
// If not called, ListenAndServe creates a default router with all standard routes.
func (a *APIServer) Router() chi.Router {
	if a.router != nil {
		return a.router
	}

	a.router = chi.NewRouter()
	a.routerCalled = true
	return a.router
}

// MountRoutes wires up all routes on the router.
// Call this after adding any custom middleware via Router().Use().
func (a *APIServer) MountRoutes() {
	if a.router == nil {
		a.Router()
	}
	a.mountRoutes(a.router)
}

func (a *APIServer) mountRoutes(router chi.Router) {
	router.Get("/health", healthHandler)
	router.Get("/healthz", healthHandler)
	router.Get("/version", versionHandler(a.version))
	router.Handle("/metrics", a.metrics.Handler())

	router.Route("/api", func(r chi.Router) {
		r.Mount("/statistics", NewStatisticsRouter(a.statistics, a.logger).Routes())
		r.Mount("/{host}/{owner}/{repo}", NewRemoteRouter(a.backend, a.logger).Routes())
	})
	router.Mount("/ws/{host}/{owner}/{repo}", NewStreamRouter(a.backend, a.logger).Routes())
	router.Mount("/{host}/{owner}/{repo}", NewReportsRouter(a.backend, a.logger).Routes())
}

// ListenAndServe starts the HTTP server on the given address.
func (a *APIServer) ListenAndServe(addr string) error {
	server := NewServer(addr, a.logger, a.serverOpts...)
	a.server = &server

	if a.routerCalled && a.router != nil {
		server.Router().Mount("/", a.router)
	} else {
		a.mountRoutes(server.Router())
	}

	return server.Start()
}

// Shutdown gracefully shuts down the server.
func (a *APIServer) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

// Handler returns the router as an http.Handler for use with custom servers.
func (a *APIServer) Handler() http.Handler {
	if a.router == nil {
		a.Router()
		a.MountRoutes()
	}
	return a.router
}
