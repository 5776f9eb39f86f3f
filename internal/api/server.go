package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opensource-finance/kestrel/internal/claims"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/fraud"
	"github.com/opensource-finance/kestrel/internal/tables"
	"github.com/opensource-finance/kestrel/internal/underwriting"
)

// Deps are the collaborators the API serves.
type Deps struct {
	Tables       *tables.Tables
	Claims       *claims.Pipeline
	Fraud        *fraud.Detector
	Underwriting *underwriting.Assessor

	// Policies is nil unless the SQL policy provider is configured
	Policies PolicyStore

	Repository domain.PolicyRepository
	Cache      domain.Cache
	Bus        domain.EventBus

	// Gatherer backs GET /metrics; nil uses the default registry
	Gatherer prometheus.Gatherer

	Version string
}

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, deps Deps) *Server {
	handler := NewHandler(deps)
	router := chi.NewRouter()

	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst))

		r.Post("/claims/process", handler.ProcessClaim)
		r.Post("/fraud/detect", handler.DetectFraud)
		r.Post("/underwriting/assess", handler.AssessRisk)

		r.Get("/tables", handler.GetTables)

		r.Get("/policies/{id}", handler.GetPolicy)
		r.Put("/policies/{id}", handler.PutPolicy)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      router,
			ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
			WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

// Start serves HTTP until Shutdown is called. It returns http.ErrServerClosed
// after a graceful shutdown, including one that happened before Start.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
