// Package server exposes the catalog, account state and wallet actions over
// HTTP, plus a WebSocket feed of snapshot events.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/neonslash/neonvault/internal/domain"
	"github.com/neonslash/neonvault/internal/server/handler"
	"github.com/neonslash/neonvault/internal/server/middleware"
	"github.com/neonslash/neonvault/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	// RateLimit is the per-IP request budget per RateWindow. Zero disables
	// limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers. Bridge, Audit
// and Pipeline may be nil, which leaves their routes unregistered.
type Handlers struct {
	Health   *handler.HealthHandler
	Markets  *handler.MarketHandler
	Accounts *handler.AccountHandler
	Actions  *handler.ActionHandler
	Bridge   *handler.BridgeHandler
	Audit    *handler.AuditHandler
	Pipeline *handler.PipelineHandler
}

// Server is the headless HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in logging, CORS and
// rate-limit middleware. Writes and the audit log additionally require the
// API key.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	protect := middleware.Auth(cfg.APIKey)
	guarded := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, protect(h))
	}

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Health.GetStatus)

	// Catalog.
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/stats", handlers.Markets.GetStats)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)

	// Per-address state.
	mux.HandleFunc("GET /api/accounts/{address}", handlers.Accounts.GetAccount)
	mux.HandleFunc("GET /api/accounts/{address}/bets", handlers.Accounts.ListBets)
	mux.HandleFunc("GET /api/accounts/{address}/notifications", handlers.Accounts.ListNotifications)
	mux.HandleFunc("DELETE /api/accounts/{address}/notifications/{id}", handlers.Accounts.DismissNotification)

	// Wallet actions.
	guarded("POST /api/actions/stake", handlers.Actions.Stake)
	guarded("POST /api/actions/withdraw", handlers.Actions.Withdraw)
	guarded("POST /api/actions/claim-yield", handlers.Actions.ClaimYield)
	guarded("POST /api/actions/bet", handlers.Actions.PlaceBet)
	guarded("POST /api/actions/claim", handlers.Actions.ClaimWinnings)
	guarded("POST /api/actions/markets", handlers.Actions.CreateMarket)
	guarded("POST /api/actions/markets/{id}/resolve", handlers.Actions.ResolveMarket)
	guarded("POST /api/actions/redeem-nft", handlers.Actions.RedeemNFT)

	if handlers.Bridge != nil {
		guarded("POST /api/bridge", handlers.Bridge.StartTransfer)
		mux.HandleFunc("GET /api/bridge/transfers", handlers.Bridge.ListTransfers)
	}
	if handlers.Audit != nil {
		guarded("GET /api/audit", handlers.Audit.ListAudit)
		guarded("GET /api/audit/stream", handlers.Audit.TailAudit)
	}
	if handlers.Pipeline != nil {
		guarded("POST /api/pipeline/archive", handlers.Pipeline.TriggerArchive)
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(middleware.NewOriginPolicy(cfg.CORSOrigins))(h)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			// Actions block until the transaction is confirmed.
			WriteTimeout: 3 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the fully wrapped HTTP handler.
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
