// internal/api/server.go
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihandler "github.com/newthinker/dzibridge/internal/api/handler/api"
	"github.com/newthinker/dzibridge/internal/api/handler/web"
	"github.com/newthinker/dzibridge/internal/api/job"
	"github.com/newthinker/dzibridge/internal/api/middleware"
	"github.com/newthinker/dzibridge/internal/app"
	"github.com/newthinker/dzibridge/internal/metrics"
)

// Server represents the HTTP server for dzibridge
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux
}

// Config holds server configuration
type Config struct {
	Host        string
	Port        int
	APIKey      string
	MaxUploadMB int64
	MetricsPath string // empty disables the metrics endpoint
}

// Dependencies holds the components the handlers are built on.
type Dependencies struct {
	Service  *app.Service
	JobStore *job.Store
	Metrics  *metrics.Registry // optional
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Service == nil {
		return nil, fmt.Errorf("service is required")
	}
	if deps.JobStore == nil {
		deps.JobStore = job.NewStore(100, time.Hour)
	}

	mux := http.NewServeMux()

	var handler http.Handler = mux
	handler = metrics.LoggingMiddleware(logger)(handler)
	if deps.Metrics != nil {
		handler = metrics.HTTPMiddleware(deps.Metrics)(handler)
	}

	s := &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:           handler,
			ReadHeaderTimeout: 15 * time.Second,
			ReadTimeout:       5 * time.Minute,
			// POST /convert holds the response until tiling finishes
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
		mux:    mux,
	}

	if err := s.setupRoutes(cfg, deps); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(cfg Config, deps Dependencies) error {
	limit := middleware.MaxBody(cfg.MaxUploadMB << 20)
	auth := middleware.APIKeyAuth(cfg.APIKey)

	// Web UI routes
	webHandler, err := web.NewHandler(deps.Service, deps.Service.Accept())
	if err != nil {
		return fmt.Errorf("creating web handler: %w", err)
	}

	s.mux.HandleFunc("GET /{$}", webHandler.Index)
	s.mux.Handle("POST /convert", limit(http.HandlerFunc(webHandler.Convert)))
	s.mux.HandleFunc("GET /download/{name}", webHandler.Download)

	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	// JSON API
	conversions := apihandler.NewConversionsHandler(deps.JobStore, deps.Service, deps.Metrics, s.logger)

	s.mux.Handle("POST /api/v1/conversions", auth(limit(http.HandlerFunc(conversions.Create))))
	s.mux.Handle("GET /api/v1/conversions", auth(http.HandlerFunc(conversions.List)))
	s.mux.Handle("GET /api/v1/conversions/{id}", auth(http.HandlerFunc(conversions.GetStatus)))
	s.mux.Handle("GET /api/v1/descriptors", auth(http.HandlerFunc(conversions.Descriptors)))
	s.mux.Handle("GET /api/v1/descriptors/{name}", auth(http.HandlerFunc(conversions.Describe)))
	s.mux.Handle("GET /api/v1/bundles/{name}", auth(http.HandlerFunc(conversions.Bundle)))
	s.mux.Handle("GET /api/v1/published", auth(http.HandlerFunc(conversions.Published)))
	s.mux.Handle("GET /api/v1/published/{file}", auth(http.HandlerFunc(conversions.PublishedBundle)))

	if deps.Metrics != nil && cfg.MetricsPath != "" {
		s.mux.Handle("GET "+cfg.MetricsPath, promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	return nil
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
