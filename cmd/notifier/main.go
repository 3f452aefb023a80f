// Package main is the entry point for the long-running report notifier.
//
// It serves the admin API (token administration, manual sends, recipient
// enrichment) and runs the deadline scheduler loop in the same process.
// SIGINT and SIGTERM stop the loop and drain the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"golang.org/x/sync/errgroup"

	"reportnotify/internal/api/handlers"
	"reportnotify/internal/app"
	"reportnotify/internal/config"
	"reportnotify/internal/core"
	"reportnotify/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION"), os.Getenv("AWS_ENDPOINT_URL")))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("report notifier starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
		"scheduler_enabled", cfg.Scheduler.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("wiring application: %w", err)
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Error("resource shutdown error", "error", err)
		}
	}()

	srv, err := newServer(cfg, logger, application)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return serve(ctx, cfg, logger, srv, application)
}

// newServer builds the admin API on top of the core chassis.
func newServer(cfg *config.Config, logger *slog.Logger, a *app.App) (*core.Server, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, err
	}

	srv.HealthProbes = append(srv.HealthProbes, core.PingProbe{ProbeName: "database", Target: a.Pool})
	srv.MetricsHandler = a.MetricsHandler

	tokenHandler := handlers.NewTokenHandler(a.Tokens, srv.Validator, types.RealClock{}, logger)
	notificationHandler := handlers.NewNotificationHandler(a.Scheduler, logger)
	recipientHandler := handlers.NewRecipientHandler(a.Resolver, logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		tokenHandler.RegisterRoutes,
		notificationHandler.RegisterRoutes,
		recipientHandler.RegisterRoutes,
	)

	srv.MountRoutes()
	return srv, nil
}

// serve runs the HTTP server and the scheduler loop until ctx is cancelled or
// either of them fails, then drains the server within ShutdownGrace.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger, srv *core.Server, a *app.App) error {
	addr := ":" + cfg.Server.Port
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if cfg.Scheduler.Enabled {
		g.Go(func() error {
			return a.Scheduler.Run(gctx)
		})
	} else {
		logger.Info("deadline scheduler disabled; automatic reminders run elsewhere")
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("initiating graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("notifier stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: false,
	})
	return slog.New(handler)
}
