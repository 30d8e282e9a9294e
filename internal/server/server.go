package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/assistly/gatekeeper/internal/config"
	"github.com/assistly/gatekeeper/internal/handler"
	"github.com/assistly/gatekeeper/internal/server/middleware"
	"github.com/assistly/gatekeeper/internal/service"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string

	// Requests per minute per client IP on the gate, login and setup routes.
	AuthRateLimit int
}

// loginAttemptsPerGate caps password guesses made with a single gate token.
const loginAttemptsPerGate = 5

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     []string{"*"},
		AuthRateLimit:   10,
	}
}

// Deps are the services the HTTP surface is built on.
type Deps struct {
	Store    *config.Store
	Auth     *service.AuthService
	Settings *service.SettingsService
	Access   *service.AccessTokenManager
	Tokens   *service.TokenIssuer
	Admins   *service.AdminService
	Rotator  handler.Rotator
	Links    service.Links
}

// Server is the top-level HTTP server for Gatekeeper. It owns the Chi router
// and the services behind it.
type Server struct {
	cfg        Config
	deps       Deps
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AuthRateLimit <= 0 {
		cfg.AuthRateLimit = DefaultConfig().AuthRateLimit
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.GateTokenHeader, "X-Access-Key", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimw.Compress(5))

	// --- Health checks (no auth required) ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	authLimit := middleware.RateLimit(s.cfg.AuthRateLimit)

	users := handler.NewAdminUsersHandler(s.deps.Admins, s.logger)
	session := handler.NewSessionHandler(s.deps.Auth)
	gate := handler.NewGateHandler(s.deps.Access, s.deps.Auth, s.deps.Links, s.logger)
	setup := handler.NewSetupHandler(s.deps.Settings, s.deps.Tokens)
	accessTokens := handler.NewAccessTokenHandler(s.deps.Access, s.deps.Rotator)
	settings := handler.NewSettingsHandler(s.deps.Settings)

	// --- Secret access path ---
	r.With(authLimit).Get("/secure-admin-{code}", gate.Enter)

	// --- Admin API ---
	r.Route("/api/admin", func(r chi.Router) {
		// Login is only reachable after passing the secret access path.
		r.With(
			authLimit,
			middleware.RequireGate(s.deps.Auth),
			middleware.RateLimitByHeader(middleware.GateTokenHeader, loginAttemptsPerGate),
		).Post("/session", session.Login)
		r.Delete("/session", session.Logout)

		r.Get("/setup/status", setup.Status)
		r.With(authLimit).Post("/setup/complete", setup.Complete)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(s.deps.Auth, s.deps.Store))

			r.Get("/me", users.Me)
			r.Get("/users", users.List)
			r.Get("/users/{id}", users.Get)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireSuperAdmin())

				r.Post("/users", users.Create)
				r.Patch("/users/{id}", users.Update)
				r.Delete("/users/{id}", users.Delete)

				r.Get("/access-token", accessTokens.Show)
				r.Post("/access-token/rotate", accessTokens.Rotate)

				r.Get("/settings", settings.List)
				r.Put("/settings/{key}", settings.Put)
			})
		})
	})

	s.router = r
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when the store is reachable,
// or 503 otherwise.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	checks := map[string]string{"store": "ok"}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.deps.Store.Ping(ctx); err != nil {
		checks["store"] = "error: " + err.Error()
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests. Closing the store is left to the caller.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Listen for shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start server in background goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
