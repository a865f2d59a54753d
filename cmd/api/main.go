// Command api is the Pruuf check-in API server.
//
// Usage:
//
//	pruuf-api
//	API_PORT=8080 pruuf-api

// @title Pruuf Check-In API
// @version 1.0.0
// @description Daily safety check-ins: ping lifecycle, breaks, streaks, and notifications.
// @host localhost:8000
// @BasePath /api/v1
// @schemes http https
// @license.name MIT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/Wesquire/pruuf/internal/api"
	"github.com/Wesquire/pruuf/internal/breaks"
	"github.com/Wesquire/pruuf/internal/cache"
	"github.com/Wesquire/pruuf/internal/clock"
	"github.com/Wesquire/pruuf/internal/config"
	"github.com/Wesquire/pruuf/internal/db"
	"github.com/Wesquire/pruuf/internal/lifecycle"
	"github.com/Wesquire/pruuf/internal/location"
	"github.com/Wesquire/pruuf/internal/maintenance"
	"github.com/Wesquire/pruuf/internal/notify"
	"github.com/Wesquire/pruuf/internal/store"
	"github.com/Wesquire/pruuf/internal/streak"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Load .env if present
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Connect to database
	logger.Info("Connecting to database...")
	pool, err := db.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("Database connected",
		"min_conns", cfg.DBPoolMinConns,
		"max_conns", cfg.DBPoolMaxConns)

	repo := store.NewPostgres(pool.Pool)
	appCache := cache.New(true)
	clk := clock.System{}

	// Notification scheduler consumes lifecycle events and owns the outbox.
	scheduler := notify.NewScheduler(repo, repo, clk, logger)

	// Engines
	engine := lifecycle.NewEngine(repo, clk, repo,
		location.MaxAccuracy{Meters: config.MaxLocationAccuracyMeters},
		scheduler, cfg.DefaultGraceMins, logger)
	manager := breaks.NewManager(repo, engine, scheduler, clk, repo, logger)
	streaks := streak.NewCalculator(repo, clk, repo)

	// Notification dispatch worker. Without push credentials deliveries go to
	// the log, which is what development wants anyway.
	var transport notify.Transport
	if push := notify.NewPushTransport(cfg.PushCredentialsFile, repo, logger); push != nil {
		transport = push
		logger.Info("Push transport configured")
	} else {
		transport = notify.LogTransport{Logger: logger}
		logger.Info("Push transport disabled (no PUSH_CREDENTIALS_FILE), logging deliveries")
	}
	go scheduler.StartDispatcher(ctx, transport, cfg.DispatchInterval)

	// Start maintenance tickers (generation, sweeps, outbox cleanup)
	go maintenance.Start(ctx, maintenance.Deps{
		Engine:      engine,
		Breaks:      manager,
		Outbox:      scheduler,
		Connections: repo,
		Clock:       clk,
		Zones:       repo,
	}, maintenance.Config{
		GenerateInterval: cfg.GenerateInterval,
		MissedSweepEvery: cfg.MissedSweepEvery,
		BreakSweepEvery:  cfg.BreakSweepEvery,
		CleanupInterval:  cfg.CleanupInterval,
		OutboxRetention:  cfg.OutboxRetention,
	}, logger)

	// Create router
	router := api.NewRouter(api.Deps{
		Engine:  engine,
		Breaks:  manager,
		Streaks: streaks,
		Reads:   repo,
		DB:      pool,
		Cache:   appCache,
	}, cfg)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info("Starting Pruuf Check-In API",
			"addr", addr,
			"environment", cfg.Environment,
			"docs", fmt.Sprintf("http://localhost:%d/docs/", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt
	<-ctx.Done()
	logger.Info("Shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Server stopped")
}
