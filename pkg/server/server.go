package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blush-marketing/core/internal/config"
	"github.com/blush-marketing/core/pkg/handlers/health"
	"github.com/blush-marketing/core/pkg/handlers/jobs"
	"github.com/blush-marketing/core/pkg/logger"
	"github.com/blush-marketing/core/pkg/middleware"
	"github.com/blush-marketing/core/pkg/scheduler"
	"github.com/blush-marketing/core/pkg/shutdown"
)

// Server is the dashboard API surface: health, job introspection, manual
// triggers, and the restart safety check.
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	logger     *logger.Logger
	dbPool     *pgxpool.Pool
	handlers   struct {
		health *health.Handler
		jobs   *jobs.Handler
	}
}

// New creates a new server instance. The database pool, scheduler, and
// coordinator are constructed by the caller and shared with the job
// layer.
func New(cfg *config.Config, log *logger.Logger, dbPool *pgxpool.Pool, sched *scheduler.Service, coord *shutdown.Coordinator) (*Server, error) {
	if err := testDatabaseConnection(dbPool, log); err != nil {
		return nil, err
	}

	server := &Server{
		router: http.NewServeMux(),
		logger: log,
		dbPool: dbPool,
	}
	server.httpServer = &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           server.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	server.handlers.health = health.NewHandler(sched, log)
	server.handlers.jobs = jobs.NewHandler(sched, coord, log)

	server.setupRoutes()

	log.Info().
		Str("action", "db_connected").
		Msg("Database connection pool established")

	return server, nil
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.HandleFunc("/health", middleware.CORS(s.handlers.health.HealthCheck))

	// Simple root endpoint
	s.router.HandleFunc("/", middleware.CORS(func(w http.ResponseWriter, r *http.Request) {
		if _, err := fmt.Fprintf(w, "Marketing Ops API Service - OK"); err != nil {
			http.Error(w, "Failed to write response", http.StatusInternalServerError)
		}
	}))

	// Job endpoints
	s.router.HandleFunc("/api/jobs", middleware.CORS(middleware.RequestID(s.handlers.jobs.List)))
	s.router.HandleFunc("/api/jobs/", middleware.CORS(middleware.RequestID(s.handlers.jobs.Trigger))) // handles /api/jobs/{name}/run

	// System endpoints
	s.router.HandleFunc("/api/system/restart-check", middleware.CORS(middleware.RequestID(s.handlers.jobs.RestartCheck)))
}

// Start starts the HTTP server and blocks until it is shut down.
func (s *Server) Start() error {
	s.logger.Info().
		Str("action", "server_start").
		Str("addr", s.httpServer.Addr).
		Msg("Starting API server")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed on %s: %w", s.httpServer.Addr, err)
	}
	return nil
}

// Shutdown stops accepting new connections and waits for in-flight
// handlers, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().
		Str("action", "server_shutdown").
		Msg("Stopping HTTP listener")
	return s.httpServer.Shutdown(ctx)
}

// Close closes database connections.
func (s *Server) Close() {
	if s.dbPool != nil {
		s.dbPool.Close()
		s.logger.Info().Msg("Database connection pool closed")
	}
}

// testDatabaseConnection tests the database connection with retry logic
func testDatabaseConnection(dbPool *pgxpool.Pool, log *logger.Logger) error {
	maxRetries := 3
	for i := 0; i < maxRetries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := dbPool.Ping(ctx)
		cancel()

		if err == nil {
			return nil
		}

		if i == maxRetries-1 {
			return fmt.Errorf("failed to ping database after %d retries: %w", maxRetries, err)
		}

		log.Warn().
			Err(err).
			Int("attempt", i+1).
			Str("action", "db_ping_retry").
			Msg("Retrying database connection")
		time.Sleep(2 * time.Second)
	}

	return nil
}
