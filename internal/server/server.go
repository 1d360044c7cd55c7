// Package server exposes the execution core over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/blockbit-hama/xCrack-sub003/internal/domain"
	"github.com/blockbit-hama/xCrack-sub003/internal/server/handler"
	"github.com/blockbit-hama/xCrack-sub003/internal/server/middleware"
	"github.com/blockbit-hama/xCrack-sub003/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	// RateLimit caps requests per client per RateWindow. Zero disables
	// rate limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health     *handler.HealthHandler
	Execute    *handler.ExecuteHandler
	Executions *handler.ExecutionsHandler
	Thresholds *handler.ThresholdsHandler
	Status     *handler.StatusHandler
	Sizing     *handler.SizingHandler
}

// Server is the headless HTTP + WebSocket API for the execution core.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered, wrapped in the
// auth, rate-limit, logging, and CORS middleware. limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /healthz", handlers.Health.HealthCheck)

	// Strategy submission endpoints.
	mux.HandleFunc("POST /api/v1/execute/liquidation", handlers.Execute.ExecuteLiquidation)
	mux.HandleFunc("POST /api/v1/execute/sandwich", handlers.Execute.ExecuteSandwich)
	mux.HandleFunc("POST /api/v1/execute/arbitrage", handlers.Execute.ExecuteArbitrage)
	mux.HandleFunc("POST /api/v1/execute/triangular_arbitrage", handlers.Execute.ExecuteTriangularArbitrage)
	mux.HandleFunc("POST /api/v1/execute/position_migration", handlers.Execute.ExecutePositionMigration)
	mux.HandleFunc("POST /api/v1/execute/multi_asset_arbitrage", handlers.Execute.ExecuteMultiAssetArbitrage)

	// Execution history.
	mux.HandleFunc("GET /api/v1/executions", handlers.Executions.List)
	mux.HandleFunc("GET /api/v1/executions/{id}", handlers.Executions.Get)

	// Live execution bounds.
	mux.HandleFunc("GET /api/v1/thresholds", handlers.Thresholds.Get)
	mux.HandleFunc("PUT /api/v1/thresholds", handlers.Thresholds.Update)

	// Runtime status.
	mux.HandleFunc("GET /api/v1/status", handlers.Status.Status)

	// Position sizing helper.
	mux.HandleFunc("GET /api/v1/size/sandwich", handlers.Sizing.SandwichSize)

	// WebSocket report stream.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Second
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
