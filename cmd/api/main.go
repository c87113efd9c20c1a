// Copyright (c) 2026 Voltgrid. All rights reserved.
// Author: platform@voltgrid.io

// Command api is the entry point for the Voltgrid identity service.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool).
//  4. Connect to Redis.
//  5. Run database migrations (idempotent).
//  6. Construct the IdP client and token verifier.
//  7. Wire workflow services and HTTP handlers.
//  8. Start the reconciliation job and the HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/voltgrid/voltgrid/internal/api"
	"github.com/voltgrid/voltgrid/internal/identity/audit"
	"github.com/voltgrid/voltgrid/internal/identity/auth"
	"github.com/voltgrid/voltgrid/internal/identity/invitation"
	"github.com/voltgrid/voltgrid/internal/identity/notify"
	"github.com/voltgrid/voltgrid/internal/identity/reconcile"
	"github.com/voltgrid/voltgrid/internal/identity/registration"
	"github.com/voltgrid/voltgrid/internal/identity/user"
	"github.com/voltgrid/voltgrid/internal/idp"
	"github.com/voltgrid/voltgrid/internal/platform/config"
	"github.com/voltgrid/voltgrid/internal/platform/constants"
	"github.com/voltgrid/voltgrid/internal/platform/metrics"
	"github.com/voltgrid/voltgrid/internal/platform/migration"
	pgstore "github.com/voltgrid/voltgrid/internal/platform/postgres"
	redisstore "github.com/voltgrid/voltgrid/internal/platform/redis"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", constants.AppName))
	slog.SetDefault(log)

	log.Info("[Voltgrid] service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", constants.AppName))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
	)

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// appCtx lives for the whole process and stops the background workers
	// (rate-limit janitor, reconciler) at shutdown.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	// ── 4. Redis ──────────────────────────────────────────────────────────
	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
	must(log, err, "connect to redis")
	defer func() {
		log.Info("closing redis client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis close error", slog.Any("error", cerr))
		}
	}()

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	// ── 6. Identity Provider ──────────────────────────────────────────────
	idpClient := idp.NewHTTPClient(cfg.IdPBaseURL, cfg.IdPRealm, cfg.IdPClientID, cfg.IdPClientSecret, log)
	verifier := idp.NewVerifier(idpClient.JWKSURL(), cfg.TokenIssuer, cfg.TokenAudience, log)

	// ── 7. Health handlers (wired with real dependency checkers) ──────────
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func() error {
			return pgstore.Ping(context.Background(), pool)
		},
		CheckCache: func() error {
			return redisstore.Ping(context.Background(), rdb)
		},
	}, log)

	// ── 8. Domain Wiring ──────────────────────────────────────────────────
	appMetrics := metrics.New(prometheus.DefaultRegisterer)
	recorder := audit.NewRecorder(pool, log)
	notifier := notify.NewLogNotifier(log)

	userStore := user.NewStore(pool)
	directory := user.NewDirectory(userStore, idpClient, recorder)

	registrationService := registration.NewService(
		registration.NewStore(pool), directory, idpClient, notifier, recorder, appMetrics,
		registration.Options{
			VerificationTTL: cfg.VerificationTTL,
			ResendCooldown:  cfg.ResendCooldown,
			ResendMax:       cfg.ResendMax,
		})

	invitationService := invitation.NewService(
		invitation.NewStore(pool), directory, idpClient, notifier, recorder, cfg.InvitationDefaultTTL)

	loginLimiter := auth.NewRedisLoginLimiter(rdb, cfg.LoginRateWindow, cfg.LoginRateMax)
	authService := auth.NewService(
		idpClient, verifier, directory, loginLimiter, recorder, appMetrics, cfg.LoginRateWindow)

	// ── 9. Reconciliation Job ─────────────────────────────────────────────
	reconciler := reconcile.New(idpClient, userStore, recorder, appMetrics, log, cfg.ReconcileInterval)
	go reconciler.Run(appCtx)

	// ── 10. HTTP Server ───────────────────────────────────────────────────
	handlers := api.Handlers{
		Liveness:     liveness,
		Readiness:    readiness,
		Auth:         auth.NewHandler(authService),
		Registration: registration.NewHandler(registrationService),
		Invitation:   invitation.NewHandler(invitationService),
		User:         user.NewHandler(directory),
	}

	server := api.NewServer(appCtx, cfg, log, verifier, appMetrics, handlers)

	// ── 11. Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case sig := <-quit:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server startup error", slog.Any("error", err))
	}

	// Stop the reconciler and the rate-limit janitor before draining HTTP.
	appCancel()

	// Give in-flight requests enough time to complete.
	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))

	if err := server.Shutdown(shutdownTimeout); err != nil {
		log.Error("shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("server stopped cleanly")
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("stage", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
