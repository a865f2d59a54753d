// Package maintenance runs the periodic background work as Go tickers:
// daily ping generation, the missed sweep, the break status sweep, and
// outbox cleanup. All scheduled work is driven from Go since the service is
// already a persistent process; no external cron.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Wesquire/pruuf/internal/clock"
	"github.com/Wesquire/pruuf/internal/pruuf"
)

// Generator is the lifecycle engine surface the tickers drive.
type Generator interface {
	GenerateDaily(ctx context.Context, conn pruuf.Connection, day pruuf.Date) (*pruuf.Ping, error)
	SweepMissed(ctx context.Context) (int, error)
}

// BreakSweeper advances break statuses.
type BreakSweeper interface {
	SweepStatuses(ctx context.Context) (activated, completed int, err error)
}

// Outbox purges delivered notification rows.
type Outbox interface {
	Purge(ctx context.Context, retention time.Duration) (int64, error)
}

// Connections lists the connections needing daily pings.
type Connections interface {
	ActiveConnections(ctx context.Context) ([]pruuf.Connection, error)
}

// Deps bundles the collaborators the tickers drive.
type Deps struct {
	Engine      Generator
	Breaks      BreakSweeper
	Outbox      Outbox
	Connections Connections
	Clock       clock.Clock
	Zones       clock.Zones
}

// Config controls task intervals. Zero duration disables a task.
type Config struct {
	GenerateInterval time.Duration // daily ping generation pass
	MissedSweepEvery time.Duration // expired pending → missed
	BreakSweepEvery  time.Duration // break status transitions
	CleanupInterval  time.Duration // delivered outbox purge
	OutboxRetention  time.Duration
}

// DefaultConfig returns sensible production defaults. The missed sweep runs
// well inside the shortest grace period so expirations are observed promptly.
func DefaultConfig() Config {
	return Config{
		GenerateInterval: 15 * time.Minute,
		MissedSweepEvery: 5 * time.Minute,
		BreakSweepEvery:  30 * time.Minute,
		CleanupInterval:  time.Hour,
		OutboxRetention:  30 * 24 * time.Hour,
	}
}

// Start launches all configured maintenance tickers. Blocks until ctx is
// cancelled. Intended to be called with `go`.
func Start(ctx context.Context, deps Deps, cfg Config, logger *slog.Logger) {
	logger.Info("Maintenance tickers started",
		"generate", cfg.GenerateInterval,
		"missed_sweep", cfg.MissedSweepEvery,
		"break_sweep", cfg.BreakSweepEvery,
		"cleanup", cfg.CleanupInterval)

	tickers := make([]*time.Ticker, 0, 4)
	defer func() {
		for _, t := range tickers {
			t.Stop()
		}
	}()

	start := func(interval time.Duration, name string, fn func()) {
		if interval <= 0 {
			return
		}
		t := time.NewTicker(interval)
		tickers = append(tickers, t)
		logger.Debug("Maintenance task scheduled", "task", name, "interval", interval)
		go runLoop(ctx, t.C, fn)
	}

	start(cfg.GenerateInterval, "generate", func() {
		if _, err := RunGeneration(ctx, deps, logger); err != nil {
			logger.Warn("Generation pass failed", "error", err)
		}
	})
	start(cfg.MissedSweepEvery, "missed_sweep", func() {
		if _, err := deps.Engine.SweepMissed(ctx); err != nil {
			logger.Warn("Missed sweep failed", "error", err)
		}
	})
	start(cfg.BreakSweepEvery, "break_sweep", func() {
		if _, _, err := deps.Breaks.SweepStatuses(ctx); err != nil {
			logger.Warn("Break sweep failed", "error", err)
		}
	})
	start(cfg.CleanupInterval, "cleanup", func() {
		if purged, err := deps.Outbox.Purge(ctx, cfg.OutboxRetention); err != nil {
			logger.Warn("Outbox cleanup failed", "error", err)
		} else if purged > 0 {
			logger.Info("Outbox cleanup", "purged", purged)
		}
	})

	<-ctx.Done()
	logger.Info("Maintenance tickers stopped")
}

func runLoop(ctx context.Context, ch <-chan time.Time, fn func()) {
	for {
		select {
		case <-ch:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// RunGeneration performs one daily generation pass over every active
// connection, computing "today" in each sender's current zone. The engine's
// uniqueness guard makes repeated passes harmless, so this is also the
// catch-up path after downtime. Returns the number of pings created.
func RunGeneration(ctx context.Context, deps Deps, logger *slog.Logger) (int, error) {
	conns, err := deps.Connections.ActiveConnections(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active connections: %w", err)
	}

	created := 0
	for _, conn := range conns {
		tz, err := deps.Zones.CurrentTimezone(ctx, conn.SenderID)
		if err != nil {
			logger.Warn("Generation: timezone lookup failed",
				"connection_id", conn.ID, "error", err)
			continue
		}
		loc, err := time.LoadLocation(tz)
		if err != nil {
			logger.Warn("Generation: unknown timezone",
				"connection_id", conn.ID, "timezone", tz)
			continue
		}
		day := pruuf.DateOf(deps.Clock.Now(), loc)

		p, err := deps.Engine.GenerateDaily(ctx, conn, day)
		if err != nil {
			logger.Warn("Generation failed",
				"connection_id", conn.ID, "day", day, "error", err)
			continue
		}
		if p != nil {
			created++
		}
	}
	return created, nil
}
