// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/near-pulse/internal/circuitbreaker"
	"github.com/near-pulse/internal/config"
	"github.com/near-pulse/internal/logging"
	"github.com/near-pulse/internal/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AccountServiceInterface defines the account operations exposed over HTTP
type AccountServiceInterface interface {
	GetBalance(ctx context.Context, account string) (*service.BalanceView, error)
	GetActivity(ctx context.Context, account string) (*service.ActivityView, error)
	GetStats(ctx context.Context, account string) (*service.StatsView, error)
	GetNFTs(ctx context.Context, account string) (*service.NFTView, error)
	Refresh(ctx context.Context, account string) error
}

// CacheStatus reports which cache tier is active
type CacheStatus interface {
	RedisEnabled() bool
	GetTTL() time.Duration
}

// Server represents the HTTP API server.
type Server struct {
	router      *mux.Router
	httpServer  *http.Server
	accounts    AccountServiceInterface
	breakers    *circuitbreaker.Manager
	cache       CacheStatus
	rateLimiter *RateLimiter
	config      config.ServerConfig
	started     time.Time
}

// NewServer creates a new API server. breakers and cache may be nil.
func NewServer(
	cfg config.ServerConfig,
	limits config.RateLimitConfig,
	accounts AccountServiceInterface,
	breakers *circuitbreaker.Manager,
	cache CacheStatus,
) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		accounts:    accounts,
		breakers:    breakers,
		cache:       cache,
		rateLimiter: NewRateLimiter(limits.RequestsPerSecond, limits.Burst),
		config:      cfg,
		started:     time.Now(),
	}

	s.setupRouter()

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the root handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRouter() {
	// Middleware order matters: logging wraps everything so it sees the final status
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware(s.config.AllowedOrigins))
	s.router.Use(RateLimitMiddleware(s.rateLimiter))
	s.router.Use(CompressionMiddleware)

	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(s.handleMethodNotAllowed)

	s.setupRoutes()
}

func (s *Server) setupRoutes() {
	read := []string{http.MethodGet, http.MethodOptions}

	s.router.HandleFunc("/", s.handleRoot).Methods(read...)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(read...)
	api.HandleFunc("/balance/{account}", s.handleBalance).Methods(read...)
	api.HandleFunc("/transactions/{account}", s.handleTransactions).Methods(read...)
	api.HandleFunc("/stats/{account}", s.handleStats).Methods(read...)
	api.HandleFunc("/nft/{account}", s.handleNFTs).Methods(read...)
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	logging.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
