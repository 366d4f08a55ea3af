package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/gatherhq/gather/pkg/audit"
	"github.com/gatherhq/gather/pkg/auth"
	"github.com/gatherhq/gather/pkg/httputil"
	"github.com/gatherhq/gather/pkg/middleware"
	"github.com/gatherhq/gather/pkg/observability"
	"github.com/gatherhq/gather/pkg/ratelimit"
	"github.com/gatherhq/gather/pkg/realtime"
)

// DefaultMaxBodyBytes caps request bodies when no limit is configured.
const DefaultMaxBodyBytes = 1 << 20 // 1 MiB

// Dependencies carries the wired subsystems the API server exposes. All
// fields except Health, Registry and Emitter are required.
type Dependencies struct {
	Logger  *observability.Logger
	Metrics *observability.Metrics

	// Registry serves /metrics when set.
	Registry *prometheus.Registry

	// Health serves the health endpoints when set.
	Health *observability.HealthChecker

	Sessions *auth.SessionStore
	Users    *auth.UserDirectory
	Identity IdentityProvider

	Issuer  *realtime.Issuer
	Limits  *ratelimit.Registry
	Emitter *audit.Emitter

	AllowedOrigins []string
	MaxBodyBytes   int64
}

// Server represents our API server
type Server struct {
	router *mux.Router
	deps   Dependencies
}

// NewServer creates a new API server
func NewServer(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = DefaultMaxBodyBytes
	}

	s := &Server{
		router: mux.NewRouter(),
		deps:   deps,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	sessionAuth := middleware.NewSessionAuth(s.deps.Sessions, false)
	throttle := middleware.NewRateLimit(s.deps.Limits, s.deps.Emitter)

	authHandlers := NewAuthHandlers(s.deps.Identity, s.deps.Users, s.deps.Sessions, s.deps.Emitter)
	authHandlers.RegisterRoutes(s.router, sessionAuth, throttle)

	realtimeHandlers := NewRealtimeHandlers(s.deps.Issuer, s.deps.Emitter)
	realtimeHandlers.RegisterRoutes(s.router, sessionAuth)

	limitsHandlers := NewLimitsHandlers(s.deps.Limits)
	limitsHandlers.RegisterRoutes(s.router, sessionAuth)

	// Health endpoints stay outside the authenticated surface so the
	// orchestrator can probe a booting process.
	if s.deps.Health != nil {
		s.router.HandleFunc("/health", s.deps.Health.Readiness).Methods("GET")
		s.router.HandleFunc("/health/live", s.deps.Health.Liveness).Methods("GET")
		s.router.HandleFunc("/health/ready", s.deps.Health.Readiness).Methods("GET")
	}

	if s.deps.Registry != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.deps.Registry, promhttp.HandlerOpts{})).Methods("GET")
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler wraps the router in the shared middleware stack and tracing
// instrumentation. This is the handler the process should listen with;
// ServeHTTP serves the bare routes for tests that exercise a single
// endpoint.
func (s *Server) Handler() http.Handler {
	middlewares := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
	}
	if s.deps.Metrics != nil {
		middlewares = append(middlewares, observability.HTTPMetricsMiddleware(s.deps.Metrics))
	}
	middlewares = append(middlewares,
		httputil.LoggingMiddleware(s.deps.Logger),
		httputil.RecoveryMiddleware(s.deps.Logger),
		httputil.CORSMiddleware(s.deps.AllowedOrigins),
		httputil.ContentTypeMiddleware,
		httputil.MaxBytesMiddleware(s.deps.MaxBodyBytes),
	)

	chain := httputil.Chain(middlewares...)
	return otelhttp.NewHandler(chain(s.router), "gather.api")
}
