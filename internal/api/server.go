package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/smartwallet/internal/domain"
	"github.com/opensource-finance/smartwallet/internal/metrics"
	"github.com/opensource-finance/smartwallet/internal/recommend"
	"golang.org/x/time/rate"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// Dependencies are the collaborators the API serves. Cache, Bus and
// Metrics may be nil.
type Dependencies struct {
	Service    *recommend.Service
	Repository domain.Repository
	Cache      domain.Cache
	Bus        domain.EventBus
	Metrics    *metrics.Manager
	Version    string
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, deps Dependencies) *Server {
	handler := NewHandler(deps.Service, deps.Repository, deps.Cache, deps.Bus, deps.Version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)                  // CORS for browser clients
	router.Use(RecoverMiddleware)               // Recover from panics
	router.Use(TracingMiddleware)               // OpenTelemetry tracing
	router.Use(LoggingMiddleware)               // Request logging
	router.Use(MetricsMiddleware(deps.Metrics)) // Prometheus request metrics
	router.Use(middleware.RealIP)               // Extract real IP
	router.Use(middleware.Compress(5))          // Gzip compression

	router.Route("/api", func(r chi.Router) {
		// Health endpoints are never rate limited
		r.Get("/health", handler.Health)
		r.Get("/ready", handler.Ready)

		r.Group(func(r chi.Router) {
			if cfg.RateLimit > 0 {
				burst := cfg.RateBurst
				if burst <= 0 {
					burst = int(cfg.RateLimit) + 1
				}
				r.Use(RateLimitMiddleware(rate.NewLimiter(rate.Limit(cfg.RateLimit), burst), deps.Metrics))
			}

			// Card collection
			r.Get("/cards", handler.ListCards)
			r.Post("/cards", handler.CreateCard)

			// Rule set and merchant apps
			r.Get("/rules", handler.GetRules)
			r.Put("/rules", handler.ReplaceRules)
			r.Get("/apps", handler.ListApps)
			r.Put("/apps/{id}", handler.SaveApp)

			// Recommendations
			r.Post("/recommendation", handler.Recommend)
			r.Post("/recommendations/async", handler.SubmitRecommendation)
			r.Get("/recommendations/{id}", handler.GetRecommendation)

			// Advisory rules
			r.Get("/advisories", handler.ListAdvisories)
			r.Post("/advisories", handler.CreateAdvisory)
			r.Post("/advisories/reload", handler.ReloadAdvisories)
		})
	})

	if deps.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	if cfg.StaticDir != "" {
		if info, err := os.Stat(cfg.StaticDir); err == nil && info.IsDir() {
			router.Handle("/*", http.FileServer(http.Dir(cfg.StaticDir)))
		}
	}

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
