package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openpredict/marketd/internal/server/handler"
	"github.com/openpredict/marketd/internal/server/middleware"
	"github.com/openpredict/marketd/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
}

// Handlers aggregates the HTTP handlers the server registers. Ledger is
// optional: it is only registered when the dev ledger endpoints are enabled.
type Handlers struct {
	Health *handler.HealthHandler
	Market *handler.MarketHandler
	Ledger *handler.LedgerHandler
}

// Server is the HTTP + WebSocket API server for the market daemon.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered and the middleware
// chain (CORS, logging, auth) applied.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Market lifecycle.
	mux.HandleFunc("GET /api/market", handlers.Market.GetMarket)
	mux.HandleFunc("POST /api/market/fund", handlers.Market.Fund)
	mux.HandleFunc("POST /api/market/trades", handlers.Market.Trade)
	mux.HandleFunc("POST /api/market/close", handlers.Market.Close)
	mux.HandleFunc("POST /api/market/fees/withdraw", handlers.Market.WithdrawFees)
	mux.HandleFunc("GET /api/market/settlements", handlers.Market.ListSettlements)

	// Development ledger endpoints (faucet, approvals, balances).
	if handlers.Ledger != nil {
		mux.HandleFunc("POST /api/ledger/mint", handlers.Ledger.Mint)
		mux.HandleFunc("POST /api/ledger/approve", handlers.Ledger.Approve)
		mux.HandleFunc("GET /api/ledger/balances/{address}", handlers.Ledger.Balances)
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
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

// Start listens for HTTP requests. It blocks until the server errors or is
// shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
