// Package server wires the application together: database, services, sync
// engine, handlers, routes, and graceful shutdown. It is the composition
// root — every dependency is assembled here and nowhere else.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/xdest/devboard/internal/auth"
	"github.com/xdest/devboard/internal/ghsync"
	"github.com/xdest/devboard/internal/handler"
	"github.com/xdest/devboard/internal/middleware"
	sqliteRepo "github.com/xdest/devboard/internal/repository/sqlite"
	"github.com/xdest/devboard/internal/service"
	"github.com/xdest/devboard/internal/vault"
)

// Config holds server configuration, loaded from the environment by main.
type Config struct {
	Port   int
	DBPath string

	// SessionSecret signs the JWT session cookies. VaultSecret derives the
	// key that encrypts stored GitHub tokens — changing it orphans every
	// vaulted credential.
	SessionSecret string
	VaultSecret   string

	GitHubClientID     string
	GitHubClientSecret string
	GoogleClientID     string
	GoogleClientSecret string

	// AppURL is the externally visible base URL, used to build the OAuth
	// callback URLs (e.g. "http://localhost:8080").
	AppURL string

	// SyncPeriod is the interval between GitHub reconcile sweeps. Zero means
	// the poller's default.
	SyncPeriod time.Duration
}

// Server owns the router, the database connection, and the background sync
// poller. Start runs until a shutdown signal arrives, then stops all three in
// order: HTTP first, poller second, database last.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	poller *ghsync.Poller
}

// New assembles the full dependency chain. Each layer receives only the
// interfaces it needs: services get repositories, handlers get services, and
// the sync engine and the issue service see each other only through the
// small Pusher/Recorder interfaces.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	v, err := vault.New(cfg.VaultSecret)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating vault: %w", err)
	}

	tokens, err := auth.NewTokenService(cfg.SessionSecret)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	github := auth.NewGitHubProvider(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.AppURL+"/auth/github/callback")
	google := auth.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.AppURL+"/auth/google/callback")

	ledgerService := service.NewLedgerService(db, logger)
	identityService := service.NewIdentityService(db, db, v, tokens, logger)
	projectService := service.NewProjectService(db, logger)

	engine := ghsync.NewEngine(
		db, db, db, db, db,
		ledgerService,
		v,
		ghsync.NewGitHubClientFactory(),
		ghsync.DefaultRetryOptions(),
		logger,
	)
	issueService := service.NewIssueService(db, db, db, ledgerService, engine, logger)

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		poller: ghsync.NewPoller(engine, db, cfg.SyncPeriod, logger),
	}

	s.setupRoutes(
		handler.NewAuthHandler(github, google, identityService, logger),
		handler.NewProjectHandler(projectService, logger),
		handler.NewIssueHandler(issueService, logger),
		handler.NewLeaderboardHandler(ledgerService, logger),
		handler.NewNotificationHandler(db, logger),
		tokens,
	)

	return s, nil
}

func (s *Server) setupRoutes(
	authHandler *handler.AuthHandler,
	projects *handler.ProjectHandler,
	issues *handler.IssueHandler,
	leaderboard *handler.LeaderboardHandler,
	notifications *handler.NotificationHandler,
	tokens *auth.TokenService,
) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	// OAuth flows — must stay public, the whole point is that the caller has
	// no session yet.
	s.router.Route("/auth", func(r chi.Router) {
		r.Get("/github", authHandler.HandleGitHubLogin)
		r.Get("/github/callback", authHandler.HandleGitHubCallback)
		r.Get("/google", authHandler.HandleGoogleLogin)
		r.Get("/google/callback", authHandler.HandleGoogleCallback)
		r.Post("/logout", authHandler.HandleLogout)
	})

	s.router.Route("/api", func(r chi.Router) {
		// Public reads. OptionalAuth lets logged-in callers through with
		// their identity attached without blocking anonymous ones.
		r.Group(func(r chi.Router) {
			r.Use(auth.OptionalAuth(tokens))

			r.Get("/projects", projects.HandleList)
			r.Get("/projects/{id}", projects.HandleGet)
			r.Get("/projects/{id}/issues", issues.HandleListByProject)
			r.Get("/issues/{id}", issues.HandleGet)
			r.Get("/issues/{id}/responses", issues.HandleListResponses)
			r.Get("/leaderboard", leaderboard.HandleLeaderboard)
			r.Get("/accounts/{id}/score", leaderboard.HandleScore)
			r.Get("/accounts/{id}/events", leaderboard.HandleHistory)
		})

		// Everything that writes needs a session.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))

			r.Get("/me", authHandler.HandleMe)
			r.Delete("/me", authHandler.HandleDeleteMe)

			r.Post("/projects", projects.HandleCreate)
			r.Delete("/projects/{id}", projects.HandleDelete)

			r.Post("/projects/{id}/issues", issues.HandleCreate)
			r.Patch("/issues/{id}/status", issues.HandleUpdateStatus)
			r.Post("/issues/{id}/responses", issues.HandleRespond)
			r.Post("/issues/{id}/responses/{responseId}/solution", issues.HandleMarkSolution)
			r.Post("/issues/{id}/vote", issues.HandleVoteIssue)
			r.Post("/responses/{id}/vote", issues.HandleVoteResponse)
			r.Post("/accounts/{id}/rating", issues.HandleRateAccount)

			r.Get("/notifications", notifications.HandleList)
			r.Post("/notifications/{id}/read", notifications.HandleMarkRead)
		})
	})
}

// Start runs the HTTP server and the background sync poller, and handles
// graceful shutdown: stop accepting connections, wait for in-flight requests,
// stop the poller, close the database.
func (s *Server) Start() error {
	defer s.db.Close()

	// The poller outlives any single request; it stops when this context is
	// cancelled during shutdown.
	pollerCtx, stopPoller := context.WithCancel(context.Background())
	defer stopPoller()
	go s.poller.Run(pollerCtx)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
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

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		stopPoller()
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
