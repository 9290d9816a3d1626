// Package api provides the read-only HTTP API over stored snapshots.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/portfolio-aggregator/internal/logging"
	"github.com/portfolio-aggregator/internal/types"
)

// LedgerReader reads historical snapshots
type LedgerReader interface {
	GetByDate(ctx context.Context, date time.Time) ([]*types.Position, error)
	History(ctx context.Context, positionID string, from, to time.Time) ([]*types.Position, error)
	LatestDate(ctx context.Context) (time.Time, bool, error)
}

// CurrentReader reads the latest snapshot
type CurrentReader interface {
	Current(ctx context.Context) ([]*types.Position, error)
}

// Pinger is a dependency reported by the health endpoint
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	ledger     LedgerReader
	current    CurrentReader
	health     map[string]Pinger
	config     *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host              string
	Port              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	RequestsPerMinute int
	Burst             int
	// MaxHistoryDays bounds the range of a position history query
	MaxHistoryDays int
}

// NewServer creates a new API server instance. health names the
// dependencies checked by /health and may be nil.
func NewServer(config *ServerConfig, ledger LedgerReader, current CurrentReader, health map[string]Pinger) *Server {
	if config.MaxHistoryDays <= 0 {
		config.MaxHistoryDays = 366
	}
	s := &Server{
		router:  mux.NewRouter(),
		ledger:  ledger,
		current: current,
		health:  health,
		config:  config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RequestsPerMinute, s.config.Burst)

	// order matters: recovery must wrap everything below logging
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/positions", s.handleGetPositions).Methods("GET")
	api.HandleFunc("/positions/{id}/history", s.handleGetPositionHistory).Methods("GET")
	api.HandleFunc("/exposure", s.handleGetExposure).Methods("GET")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	checks := make(map[string]string, len(s.health))
	for name, p := range s.health {
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	body := map[string]interface{}{
		"status":  status,
		"service": "portfolio-aggregator",
		"checks":  checks,
	}
	if latest, ok, err := s.ledger.LatestDate(ctx); err == nil && ok {
		body["latestSnapshot"] = latest.Format(dateLayout)
	}
	respondJSON(w, code, body)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.GetGlobalLogger().WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.GetGlobalLogger().Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the routed handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}
