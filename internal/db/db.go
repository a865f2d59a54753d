// Package db provides a pgxpool-based connection pool with prepared statement
// registration and health checking.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Wesquire/pruuf/internal/config"
)

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

const pingColumns = "id, connection_id, sender_id, receiver_id, ping_date, scheduled_at, deadline_at, status, completed_at, completion_method"

const breakColumns = "id, sender_id, start_date, end_date, status, notes, created_at"

// registerPreparedStatements registers all statements the API and worker
// layers use. Prepared statements eliminate parse overhead on every request.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	stmts := map[string]string{
		// Health
		"health_check": "SELECT 1",

		// Pings
		"ping_by_id":             "SELECT " + pingColumns + " FROM pings WHERE id = $1",
		"ping_by_connection_day": "SELECT " + pingColumns + " FROM pings WHERE connection_id = $1 AND ping_date = $2",
		"pending_by_sender":      "SELECT " + pingColumns + " FROM pings WHERE sender_id = $1 AND status = 'pending' ORDER BY scheduled_at",
		"expired_pending":        "SELECT " + pingColumns + " FROM pings WHERE status = 'pending' AND deadline_at < $1 ORDER BY deadline_at LIMIT $2",
		"on_break_from":          "SELECT " + pingColumns + " FROM pings WHERE sender_id = $1 AND status = 'on_break' AND scheduled_at >= $2 ORDER BY scheduled_at",
		"pings_on_day":           "SELECT " + pingColumns + " FROM pings WHERE sender_id = $1 AND ping_date = $2 ORDER BY scheduled_at",
		"pings_since":            "SELECT " + pingColumns + " FROM pings WHERE sender_id = $1 AND ($2 = '' OR receiver_id = $2) AND scheduled_at >= $3 ORDER BY scheduled_at DESC",

		// Breaks
		"break_by_id":        "SELECT " + breakColumns + " FROM breaks WHERE id = $1",
		"breaks_by_sender":   "SELECT " + breakColumns + " FROM breaks WHERE sender_id = $1 ORDER BY start_date DESC LIMIT $2",
		"blocking_breaks":    "SELECT " + breakColumns + " FROM breaks WHERE sender_id = $1 AND status IN ('scheduled', 'active') ORDER BY start_date",
		"sender_on_break":    "SELECT 1 FROM breaks WHERE sender_id = $1 AND status IN ('scheduled', 'active') AND start_date <= $2 AND end_date >= $2 LIMIT 1",
		"breaks_to_activate": "SELECT " + breakColumns + " FROM breaks WHERE status = 'scheduled' AND start_date <= $1",
		"breaks_to_complete": "SELECT " + breakColumns + " FROM breaks WHERE status IN ('scheduled', 'active') AND end_date < $1",

		// Connections
		"connection_by_id":             "SELECT id, sender_id, receiver_id, status, scheduled_time, grace_minutes FROM connections WHERE id = $1",
		"active_connections":           "SELECT id, sender_id, receiver_id, status, scheduled_time, grace_minutes FROM connections WHERE status = 'active'",
		"active_connections_by_sender": "SELECT id, sender_id, receiver_id, status, scheduled_time, grace_minutes FROM connections WHERE sender_id = $1 AND status = 'active'",

		// Users / preferences
		"sender_timezone":        "SELECT timezone FROM users WHERE id = $1",
		"user_prefs":             "SELECT enabled, ping_reminders, fifteen_minute_warning, deadline_warning, completion_alerts, missed_alerts, break_alerts FROM notification_prefs WHERE user_id = $1",
		"muted_senders":          "SELECT muted_sender_id FROM muted_senders WHERE user_id = $1",
		"get_user_device_tokens": "SELECT token FROM device_tokens WHERE user_id = $1 AND is_active = true",
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
