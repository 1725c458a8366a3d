package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DukeRupert/kinship/internal"
	"github.com/DukeRupert/kinship/internal/app"
	"github.com/DukeRupert/kinship/internal/handler"
	"github.com/DukeRupert/kinship/internal/metrics"
	"github.com/DukeRupert/kinship/internal/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	a, cleanup, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("app initialization failed: %w", err)
	}
	defer cleanup()

	// ==========================================================================
	// Middleware
	// ==========================================================================

	isSecure := cfg.Env != "development"
	authMw := middleware.NewAuthMiddleware(logger)
	operatorMw := middleware.NewOperatorAuthMiddleware(cfg.OperatorUsername, cfg.OperatorPasswordHash, "kinship-admin", logger)
	rateLimitMw := middleware.NewRateLimitMiddleware(
		middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow, logger),
		logger,
	)
	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	securityMw := middleware.NewSecurityHeadersMiddleware(isSecure)

	requireUser := middleware.Stack(authMw.RequireUser, rateLimitMw.Limit)

	// ==========================================================================
	// Routes
	// ==========================================================================

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("GET /metrics", operatorMw.Handler(promhttp.Handler()))

	handler.NewAPIHandler(a.Connections, a.Messages, a.Sessions, a.Reports, a.Subscriptions, logger).
		RegisterRoutes(mux, requireUser)
	handler.NewAdminHandler(a.Reconciler, a.Reports, a.Cycles, a.Subscriptions, logger).
		RegisterRoutes(mux, operatorMw.Handler)

	root := middleware.Stack(
		loggingMw.Handler,
		securityMw.Handler,
		metrics.Middleware,
		authMw.WithUser,
	)(mux)

	// ==========================================================================
	// Background processing
	// ==========================================================================

	if cfg.WorkerEnabled {
		w, err := a.NewWorker()
		if err != nil {
			return fmt.Errorf("worker initialization failed: %w", err)
		}
		w.Start(ctx)
		defer w.Stop()
	}

	scheduler, err := a.NewScheduler()
	if err != nil {
		return fmt.Errorf("scheduler initialization failed: %w", err)
	}
	scheduler.Start()
	defer func() {
		<-scheduler.Stop().Done()
		logger.Info("scheduler stopped")
	}()

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server started", "address", server.Addr, "env", cfg.Env, "store", cfg.StoreDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, initiating graceful shutdown")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("graceful shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
