package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/policast/internal/domain"
	"github.com/alanyoungcy/policast/internal/server/handler"
	"github.com/alanyoungcy/policast/internal/server/middleware"
	"github.com/alanyoungcy/policast/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	// RateLimit is requests per minute per client IP; 0 disables it.
	RateLimit int
}

// Handlers aggregates all HTTP handlers that the server registers.
type Handlers struct {
	Health    *handler.HealthHandler
	Markets   *handler.MarketHandler
	Purchases *handler.PurchaseHandler
	Admin     *handler.AdminHandler
}

// Server is the HTTP + WebSocket API in front of the orchestrator.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in the middleware
// chain. limiter and wsHub may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	Routes(mux, handlers, wsHub)

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, time.Minute, logger)(h)
	}
	h = middleware.CORS(cfg.CORSOrigins)(h)
	h = middleware.Logging(logger)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           h,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			// Submissions wait for receipts.
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Routes registers the API on mux.
func Routes(mux *http.ServeMux, handlers Handlers, wsHub *ws.Hub) {
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("GET /api/markets/{version}/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/v2/{id}/options/{optionId}", handlers.Markets.GetOption)
	mux.HandleFunc("GET /api/accounts/{address}", handlers.Markets.GetAccount)

	mux.HandleFunc("POST /api/purchases/quote", handlers.Purchases.Quote)
	mux.HandleFunc("POST /api/purchases", handlers.Purchases.Purchase)
	mux.HandleFunc("POST /api/purchases/{id}/retry", handlers.Purchases.Retry)
	mux.HandleFunc("GET /api/purchases", handlers.Purchases.List)
	mux.HandleFunc("GET /api/purchases/{id}", handlers.Purchases.Get)
	mux.HandleFunc("POST /api/sells", handlers.Purchases.Sell)
	mux.HandleFunc("POST /api/claims", handlers.Purchases.Claim)

	mux.HandleFunc("POST /api/admin/markets", handlers.Admin.CreateMarket)
	mux.HandleFunc("POST /api/admin/markets/{id}/{action}", handlers.Admin.MarketAction)
	mux.HandleFunc("GET /api/admin/discover", handlers.Admin.Discover)
	mux.HandleFunc("GET /api/admin/audit", handlers.Admin.AuditLog)
	mux.HandleFunc("GET /api/admin/archives", handlers.Admin.Archives)
	mux.HandleFunc("GET /api/leaderboard", handlers.Admin.Leaderboard)

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}
}

// Handler returns the wrapped handler; used by tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
