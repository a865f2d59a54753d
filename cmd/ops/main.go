// Command ops is the Pruuf operations CLI. It drives the same engines as the
// server's background tickers, for manual runs and backfills.
//
// Usage:
//
//	pruuf-ops generate
//	pruuf-ops generate --date 2026-08-30
//	pruuf-ops sweep missed
//	pruuf-ops sweep breaks
//	pruuf-ops streak --sender <id> [--receiver <id>]
//	pruuf-ops dispatch
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Wesquire/pruuf/internal/breaks"
	"github.com/Wesquire/pruuf/internal/clock"
	"github.com/Wesquire/pruuf/internal/config"
	"github.com/Wesquire/pruuf/internal/db"
	"github.com/Wesquire/pruuf/internal/lifecycle"
	"github.com/Wesquire/pruuf/internal/location"
	"github.com/Wesquire/pruuf/internal/maintenance"
	"github.com/Wesquire/pruuf/internal/notify"
	"github.com/Wesquire/pruuf/internal/pruuf"
	"github.com/Wesquire/pruuf/internal/store"
	"github.com/Wesquire/pruuf/internal/streak"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:   "pruuf-ops",
		Short: "Pruuf operations CLI",
	}

	root.AddCommand(generateCmd())
	root.AddCommand(sweepCmd())
	root.AddCommand(streakCmd())
	root.AddCommand(dispatchCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// deps is the wired engine set shared by all subcommands.
type deps struct {
	cfg       *config.Config
	pool      *db.Pool
	repo      *store.Postgres
	clk       clock.System
	engine    *lifecycle.Engine
	manager   *breaks.Manager
	streaks   *streak.Calculator
	scheduler *notify.Scheduler
}

// --------------------------------------------------------------------------
// generate command
// --------------------------------------------------------------------------

func generateCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run one daily ping generation pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOps(func(ctx context.Context, d *deps) error {
				start := time.Now()
				var created int
				var err error
				if date != "" {
					created, err = generateForDate(ctx, d, date)
				} else {
					created, err = maintenance.RunGeneration(ctx, maintenance.Deps{
						Engine:      d.engine,
						Connections: d.repo,
						Clock:       d.clk,
						Zones:       d.repo,
					}, logger)
				}
				if err != nil {
					return err
				}
				logger.Info("Generation finished",
					"created", created, "duration", time.Since(start).Round(time.Millisecond))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Generate for an explicit date (YYYY-MM-DD) instead of each sender's today")
	return cmd
}

// generateForDate runs generation for one explicit calendar day across every
// active connection. Used for backfills after downtime.
func generateForDate(ctx context.Context, d *deps, date string) (int, error) {
	day, err := pruuf.ParseDate(date)
	if err != nil {
		return 0, err
	}
	conns, err := d.repo.ActiveConnections(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active connections: %w", err)
	}
	created := 0
	for _, conn := range conns {
		p, err := d.engine.GenerateDaily(ctx, conn, day)
		if err != nil {
			logger.Warn("Generation failed", "connection_id", conn.ID, "day", day, "error", err)
			continue
		}
		if p != nil {
			created++
		}
	}
	return created, nil
}

// --------------------------------------------------------------------------
// sweep command
// --------------------------------------------------------------------------

func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a lifecycle sweep once",
	}
	cmd.AddCommand(sweepMissedCmd())
	cmd.AddCommand(sweepBreaksCmd())
	return cmd
}

func sweepMissedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "missed",
		Short: "Mark expired pending pings missed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOps(func(ctx context.Context, d *deps) error {
				start := time.Now()
				n, err := d.engine.SweepMissed(ctx)
				if err != nil {
					return err
				}
				logger.Info("Missed sweep finished",
					"missed", n, "duration", time.Since(start).Round(time.Millisecond))
				return nil
			})
		},
	}
}

func sweepBreaksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "breaks",
		Short: "Advance break statuses (activate due, complete expired)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOps(func(ctx context.Context, d *deps) error {
				start := time.Now()
				activated, completed, err := d.manager.SweepStatuses(ctx)
				if err != nil {
					return err
				}
				logger.Info("Break sweep finished",
					"activated", activated, "completed", completed,
					"duration", time.Since(start).Round(time.Millisecond))
				return nil
			})
		},
	}
}

// --------------------------------------------------------------------------
// streak command
// --------------------------------------------------------------------------

func streakCmd() *cobra.Command {
	var senderID, receiverID string
	cmd := &cobra.Command{
		Use:   "streak",
		Short: "Compute a sender's current streak",
		RunE: func(cmd *cobra.Command, args []string) error {
			if senderID == "" {
				return fmt.Errorf("--sender is required")
			}
			return runOps(func(ctx context.Context, d *deps) error {
				count, err := d.streaks.Current(ctx, senderID, receiverID)
				if err != nil {
					return err
				}
				logger.Info("Streak", "sender_id", senderID, "receiver_id", receiverID, "streak", count)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&senderID, "sender", "", "Sender ID")
	cmd.Flags().StringVar(&receiverID, "receiver", "", "Scope to one receiver")
	return cmd
}

// --------------------------------------------------------------------------
// dispatch command
// --------------------------------------------------------------------------

func dispatchCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Claim and deliver one batch of due notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOps(func(ctx context.Context, d *deps) error {
				var transport notify.Transport
				if push := notify.NewPushTransport(d.cfg.PushCredentialsFile, d.repo, logger); push != nil && !dryRun {
					transport = push
				} else {
					transport = notify.LogTransport{Logger: logger}
				}
				sent, failed, err := d.scheduler.DispatchOnce(ctx, transport)
				if err != nil {
					return err
				}
				logger.Info("Dispatch finished", "sent", sent, "failed", failed)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log deliveries instead of pushing")
	return cmd
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

// runOps handles config loading, DB connection, engine wiring, and context
// cancellation.
func runOps(fn func(ctx context.Context, d *deps) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := db.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	repo := store.NewPostgres(pool.Pool)
	clk := clock.System{}
	scheduler := notify.NewScheduler(repo, repo, clk, logger)
	engine := lifecycle.NewEngine(repo, clk, repo,
		location.MaxAccuracy{Meters: config.MaxLocationAccuracyMeters},
		scheduler, cfg.DefaultGraceMins, logger)
	manager := breaks.NewManager(repo, engine, scheduler, clk, repo, logger)
	streaks := streak.NewCalculator(repo, clk, repo)

	return fn(ctx, &deps{
		cfg:       cfg,
		pool:      pool,
		repo:      repo,
		clk:       clk,
		engine:    engine,
		manager:   manager,
		streaks:   streaks,
		scheduler: scheduler,
	})
}
