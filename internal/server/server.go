// Package server wires the journaling API together and runs it.
//
// This is the composition root: every dependency is built here and
// handed down, and nothing below this package reads configuration.
//
//	config.Config
//	  → store (sqlite | json, sessions optionally in redis)
//	  → services (auth, entry, chat) → handlers
//	  → chi router + middleware
//	  → http.Server, session sweeper, rate limiter cleanup
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sakif/chronicle/internal/ai"
	"github.com/sakif/chronicle/internal/apperror"
	"github.com/sakif/chronicle/internal/auth"
	"github.com/sakif/chronicle/internal/config"
	"github.com/sakif/chronicle/internal/handler"
	"github.com/sakif/chronicle/internal/metrics"
	"github.com/sakif/chronicle/internal/middleware"
	"github.com/sakif/chronicle/internal/repository"
	"github.com/sakif/chronicle/internal/repository/jsonfile"
	redisrepo "github.com/sakif/chronicle/internal/repository/redis"
	sqliterepo "github.com/sakif/chronicle/internal/repository/sqlite"
	"github.com/sakif/chronicle/internal/service"
	"github.com/sakif/chronicle/internal/worker/cleanup"
)

// shutdownTimeout bounds how long in-flight requests get on shutdown.
const shutdownTimeout = 30 * time.Second

// Server owns the router and every long-lived resource behind it.
type Server struct {
	router   *chi.Mux
	config   *config.Config
	logger   *slog.Logger
	store    repository.Store
	limiter  *middleware.RateLimiter
	sweeper  *cleanup.SessionSweeper
	registry *prometheus.Registry

	closeOnce sync.Once
	closeErr  error
}

// Option overrides a dependency New would otherwise build from config.
type Option func(*options)

type options struct {
	store     repository.Store
	completer ai.Completer
}

// WithStore uses store instead of opening one. The server takes
// ownership and closes it.
func WithStore(store repository.Store) Option {
	return func(o *options) { o.store = store }
}

// WithCompleter replaces the AI bridge chosen from config.
func WithCompleter(c ai.Completer) Option {
	return func(o *options) { o.completer = c }
}

// New builds the server. It opens the store, so a failure here is
// usually a bad path, a corrupt document or an unreachable Redis.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	store := o.store
	if store == nil {
		var err error
		if store, err = openStore(cfg, logger); err != nil {
			return nil, err
		}
	}

	completer := o.completer
	if completer == nil {
		completer = ai.New(ai.Config{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
			Timeout: cfg.AITimeout,
			Logger:  logger,
		})
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	if cfg.MetricsEnabled {
		metrics.RegisterRuntime(registry)
	}

	s := &Server{
		router:   chi.NewRouter(),
		config:   cfg,
		logger:   logger,
		store:    store,
		limiter:  middleware.NewRateLimiter(rateLimits(cfg)),
		registry: registry,
	}
	s.sweeper = cleanup.NewSessionSweeper(store, logger,
		cleanup.WithInterval(cfg.SessionCleanupInterval),
		cleanup.WithReporter(collector),
	)

	authSvc := service.NewAuthService(store, store, logger,
		service.WithSessionTTL(cfg.SessionTTL),
		service.WithAuthRecorder(collector),
	)
	entrySvc := service.NewEntryService(store, collector, logger)
	chatSvc := service.NewChatService(completer, collector, logger)

	s.setupRoutes(collector, authSvc,
		handler.NewAuthHandler(authSvc, logger),
		handler.NewEntryHandler(entrySvc, logger),
		handler.NewChatHandler(chatSvc, logger),
	)
	return s, nil
}

// rateLimits uses the middleware defaults when a limit is unset, which
// only happens for a Config that skipped Validate.
func rateLimits(cfg *config.Config) middleware.RateLimiterConfig {
	if cfg.RateLimitGeneral <= 0 || cfg.RateLimitAI <= 0 {
		return middleware.DefaultRateLimiterConfig()
	}
	return middleware.PerMinute(cfg.RateLimitGeneral, cfg.RateLimitAI)
}

// openStore opens the configured storage engine and, when asked, moves
// sessions to Redis.
func openStore(cfg *config.Config, logger *slog.Logger) (repository.Store, error) {
	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	var (
		store repository.Store
		err   error
	)
	switch cfg.StoreDriver {
	case config.StoreJSON:
		store, err = jsonfile.Open(cfg.DBPath)
	default:
		store, err = sqliterepo.New(cfg.DBPath)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.StoreDriver, err)
	}

	if cfg.SessionStore != config.SessionsRedis {
		return store, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := redisrepo.Connect(ctx, cfg.RedisURL)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("connecting session store: %w", err)
	}
	logger.Info("sessions stored in redis")

	sessions := redisrepo.NewSessionStore(client)
	return repository.WithSessions(store, sessions, sessions), nil
}

// setupRoutes configures middleware and routes.
//
// ROUTES (each also mounted under /api):
//
//	POST          /auth/login
//	GET, PATCH    /auth/me        (auth)
//	POST          /auth/logout    (auth)
//	GET, POST     /entries        (auth)
//	PATCH, DELETE /entries/{id}   (auth)
//	POST          /ai/chat        (auth, AI rate limit)
//	GET           /healthz
//	GET           /metrics        (when enabled)
//
// MIDDLEWARE ORDER:
// Logger and Metrics wrap Recoverer so a recovered panic is still logged
// and counted as a 500. CORS answers preflights before any route runs.
func (s *Server) setupRoutes(
	collector *metrics.Collector,
	authn auth.Authenticator,
	authH *handler.AuthHandler,
	entryH *handler.EntryHandler,
	chatH *handler.ChatHandler,
) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics(collector))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handler.WriteError(w, r, &apperror.AppError{Err: apperror.ErrNotFound, Message: "Not found"})
	})

	s.router.Get("/healthz", handler.HandleHealth)
	if s.config.MetricsEnabled {
		s.router.Handle("/metrics", metrics.Handler(s.registry))
	}

	requireAuth := auth.RequireAuth(authn, handler.WriteError)
	chat := s.limiter.AI()(http.HandlerFunc(chatH.HandleChat))

	api := func(r chi.Router) {
		r.Handle("/auth/login", handler.Methods{http.MethodPost: authH.HandleLogin})

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Use(s.limiter.General())

			r.Handle("/auth/me", handler.Methods{
				http.MethodGet:   authH.HandleMe,
				http.MethodPatch: authH.HandleUpdateMe,
			})
			r.Handle("/auth/logout", handler.Methods{http.MethodPost: authH.HandleLogout})
			r.Handle("/entries", handler.Methods{
				http.MethodGet:  entryH.HandleList,
				http.MethodPost: entryH.HandleCreate,
			})
			r.Handle("/entries/{id}", handler.Methods{
				http.MethodPatch:  entryH.HandleUpdate,
				http.MethodDelete: entryH.HandleDelete,
			})
			r.Handle("/ai/chat", handler.Methods{http.MethodPost: chat.ServeHTTP})
		})
	}
	api(s.router)
	s.router.Route("/api", api)
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close stops the rate limiter cleanup and closes the store. Start calls
// it on the way out; tests that never Start call it directly.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.limiter.Stop()
		s.closeErr = s.store.Close()
	})
	return s.closeErr
}

// Start serves HTTP until SIGINT or SIGTERM, then shuts down gracefully.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting connections, give in-flight requests 30s
//  2. Stop the session sweeper and wait for it
//  3. Stop the limiter cleanup and close the store
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Leaves room for the AI upstream timeout.
		WriteTimeout: s.config.AITimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		s.sweeper.Loop(sweepCtx)
	}()
	defer func() {
		stopSweeper()
		<-sweeperDone
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("store", s.config.StoreDriver),
			slog.String("database", s.config.DBPath),
			slog.String("sessions", s.config.SessionStore),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
