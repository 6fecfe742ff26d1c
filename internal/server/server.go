package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/auctionhaus/marketd/internal/domain"
	"github.com/auctionhaus/marketd/internal/server/handler"
	"github.com/auctionhaus/marketd/internal/server/middleware"
	"github.com/auctionhaus/marketd/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit caps requests per client IP per RateWindow. Zero
	// disables the middleware.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health  *handler.HealthHandler
	Fixed   *handler.FixedHandler
	English *handler.EnglishHandler
	Dutch   *handler.DutchHandler
	Sales   *handler.SaleHandler
	Audit   *handler.AuditHandler
}

// Server is the HTTP + WebSocket API server for the marketplace.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, rate limiting) and
// attaches the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Fixed-price listings.
	mux.HandleFunc("POST /api/listings/fixed", handlers.Fixed.Create)
	mux.HandleFunc("GET /api/listings/fixed", handlers.Fixed.List)
	mux.HandleFunc("GET /api/listings/fixed/{collection}/{token}", handlers.Fixed.Get)
	mux.HandleFunc("DELETE /api/listings/fixed/{collection}/{token}", handlers.Fixed.Cancel)
	mux.HandleFunc("POST /api/listings/fixed/{collection}/{token}/buy", handlers.Fixed.Buy)

	// English (ascending) auctions.
	mux.HandleFunc("POST /api/auctions/english", handlers.English.Create)
	mux.HandleFunc("GET /api/auctions/english", handlers.English.List)
	mux.HandleFunc("GET /api/auctions/english/{collection}/{token}", handlers.English.Get)
	mux.HandleFunc("DELETE /api/auctions/english/{collection}/{token}", handlers.English.Cancel)
	mux.HandleFunc("POST /api/auctions/english/{collection}/{token}/bids", handlers.English.Bid)
	mux.HandleFunc("GET /api/auctions/english/{collection}/{token}/bids", handlers.English.Bids)
	mux.HandleFunc("POST /api/auctions/english/{collection}/{token}/end", handlers.English.End)

	// Dutch (descending) auctions.
	mux.HandleFunc("POST /api/auctions/dutch", handlers.Dutch.Create)
	mux.HandleFunc("GET /api/auctions/dutch", handlers.Dutch.List)
	mux.HandleFunc("GET /api/auctions/dutch/{collection}/{token}", handlers.Dutch.Get)
	mux.HandleFunc("DELETE /api/auctions/dutch/{collection}/{token}", handlers.Dutch.Cancel)
	mux.HandleFunc("GET /api/auctions/dutch/{collection}/{token}/price", handlers.Dutch.Price)
	mux.HandleFunc("POST /api/auctions/dutch/{collection}/{token}/buy", handlers.Dutch.Buy)

	// Sale history.
	mux.HandleFunc("GET /api/sales", handlers.Sales.List)
	mux.HandleFunc("GET /api/sales/{id}", handlers.Sales.Get)
	mux.HandleFunc("GET /api/sales/assets/{collection}/{token}", handlers.Sales.ListByAsset)

	// Audit log.
	mux.HandleFunc("GET /api/audit", handlers.Audit.List)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux

	h = middleware.Auth(cfg.APIKey)(h)

	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow)(h)
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
