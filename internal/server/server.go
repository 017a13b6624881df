// Package server is the composition root: it opens the store, builds the
// services and handlers, and mounts them on one chi router.
//
// DEPENDENCY FLOW:
//
//	config.Config
//	  └─ repository.Store (sqlite | postgres | memory)
//	       ├─ service.CredentialStore ─┐
//	       ├─ service.TokenManager ────┼─ handler.UserHandler
//	       │     └─ auth.RequireAuth   │
//	       └─ service.TaskService ─────┴─ handler.TaskHandler
//
// Nothing below this package knows which backend is in use.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/tasklist/internal/auth"
	"github.com/sakif/tasklist/internal/config"
	"github.com/sakif/tasklist/internal/handler"
	"github.com/sakif/tasklist/internal/middleware"
	"github.com/sakif/tasklist/internal/observability"
	"github.com/sakif/tasklist/internal/repository"
	"github.com/sakif/tasklist/internal/repository/memory"
	"github.com/sakif/tasklist/internal/repository/postgres"
	sqliteRepo "github.com/sakif/tasklist/internal/repository/sqlite"
	"github.com/sakif/tasklist/internal/service"
)

const healthTimeout = 2 * time.Second

// Server owns the router and the store. The store is closed when Start
// returns, or by Close if Start is never called.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	store  repository.Store
}

// New opens the configured store and wires every route.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	store, err := openStore(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Database.Driver, err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  store,
	}

	if err := s.setupRoutes(); err != nil {
		store.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (repository.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memory.New(), nil

	case config.DriverPostgres:
		return postgres.New(ctx, postgres.Config{
			DSN:             cfg.DSN,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
		})

	case config.DriverSQLite:
		if cfg.Path != ":memory:" {
			// Like `mkdir -p`: the data directory may not exist on first run.
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		return sqliteRepo.New(cfg.Path)

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// setupRoutes mounts the API.
//
// ROUTES:
//
//	GET    /healthz          → store ping
//	GET    /metrics          → Prometheus exposition
//	POST   /users            → register
//	POST   /users/login      → login
//	GET    /users/me         → current user        (auth)
//	DELETE /users/me/token   → logout              (auth)
//	GET    /tasks            → list own tasks      (auth)
//	POST   /tasks            → create              (auth)
//	GET    /tasks/{id}       → get one             (auth)
//	PATCH  /tasks/{id}       → update              (auth)
//	DELETE /tasks/{id}       → delete              (auth)
//
// Middleware order: RequestID first so the logger can read it, Recoverer
// inside the logger so a panic still produces a logged 500.
func (s *Server) setupRoutes() error {
	passwords, err := auth.NewPasswordServiceWithCost(s.config.Auth.BCryptCost)
	if err != nil {
		return err
	}
	signer, err := auth.NewTokenService(s.config.Auth.JWTSecret, s.config.Auth.TokenTTL)
	if err != nil {
		return err
	}

	credentials := service.NewCredentialStore(s.store, passwords, s.logger)
	tokens := service.NewTokenManager(s.store, signer, s.logger)
	tasks := service.NewTaskService(s.store, s.logger)

	users := handler.NewUserHandler(credentials, tokens, s.logger)
	taskHandler := handler.NewTaskHandler(tasks, s.logger)

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(observability.MetricsMiddleware)
	s.router.Use(chimiddleware.Recoverer)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Post("/users", users.HandleRegister)
	s.router.Post("/users/login", users.HandleLogin)

	s.router.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens, s.logger))

		r.Get("/users/me", users.HandleMe)
		r.Delete("/users/me/token", users.HandleLogout)

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", taskHandler.HandleList)
			r.Post("/", taskHandler.HandleCreate)
			r.Get("/{id}", taskHandler.HandleGetByID)
			r.Patch("/{id}", taskHandler.HandleUpdate)
			r.Delete("/{id}", taskHandler.HandleDelete)
		})
	})

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	status, body := http.StatusOK, map[string]string{"status": "ok"}
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", slog.String("error", err.Error()))
		status, body = http.StatusServiceUnavailable, map[string]string{"status": "unavailable"}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the store. Only needed when Start is never called.
func (s *Server) Close() error {
	return s.store.Close()
}

// Start serves until ctx is cancelled, then shuts down gracefully:
//  1. stop accepting connections
//  2. wait up to ShutdownTimeout for in-flight requests
//  3. close the store
func (s *Server) Start(ctx context.Context) error {
	defer s.store.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("driver", s.config.Database.Driver),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case <-ctx.Done():
		s.logger.Info("shutdown requested")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
