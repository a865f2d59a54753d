// Package store provides the repository implementations behind the ping,
// break, streak, and notification engines. Postgres is the production store;
// Memory backs tests and dry runs. Both satisfy the narrow interfaces the
// consuming packages declare.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Wesquire/pruuf/internal/pruuf"
)

// Postgres is the pgx-backed repository. All reads go through prepared
// statements registered at connection time (see internal/db).
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps a connection pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// --------------------------------------------------------------------------
// Pings
// --------------------------------------------------------------------------

// CreatePing inserts a ping, relying on the unique (connection_id, ping_date)
// index to deduplicate concurrent generation. Returns pruuf.ErrPingExists
// when the row was already there.
func (s *Postgres) CreatePing(ctx context.Context, p pruuf.Ping) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO pings (
			id, connection_id, sender_id, receiver_id, ping_date,
			scheduled_at, deadline_at, status, completed_at, completion_method
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NULLIF($10,''))
		ON CONFLICT (connection_id, ping_date) DO NOTHING`,
		p.ID, p.ConnectionID, p.SenderID, p.ReceiverID, p.Day.String(),
		p.ScheduledAt, p.DeadlineAt, p.Status, p.CompletedAt, string(p.Method),
	)
	if err != nil {
		return fmt.Errorf("insert ping: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pruuf.ErrPingExists
	}
	return nil
}

// PingByID fetches one ping.
func (s *Postgres) PingByID(ctx context.Context, id string) (pruuf.Ping, error) {
	return s.scanPingRow(s.pool.QueryRow(ctx, "ping_by_id", id))
}

// PingByConnectionDay fetches the ping for a (connection, calendar day) pair.
func (s *Postgres) PingByConnectionDay(ctx context.Context, connectionID string, day pruuf.Date) (pruuf.Ping, error) {
	return s.scanPingRow(s.pool.QueryRow(ctx, "ping_by_connection_day", connectionID, day.String()))
}

// UpdatePingStatus performs the conditional status transition: the row moves
// from `from` to `to` only if it is still in `from`. This compare-and-swap on
// the status column is the whole concurrency story for the sweep/completion
// race. Returns false when the row was not in `from` (or does not exist).
func (s *Postgres) UpdatePingStatus(ctx context.Context, id string, from, to pruuf.PingStatus, upd pruuf.PingUpdate) (bool, error) {
	var method *string
	if upd.Method != "" {
		m := string(upd.Method)
		method = &m
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE pings
		SET status = $3,
			completed_at = CASE WHEN $6 THEN NULL ELSE COALESCE($4, completed_at) END,
			completion_method = CASE WHEN $6 THEN NULL ELSE COALESCE($5, completion_method) END,
			updated_at = NOW()
		WHERE id = $1 AND status = $2`,
		id, from, to, upd.CompletedAt, method, upd.ClearMethod,
	)
	if err != nil {
		return false, fmt.Errorf("update ping status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// PendingBySender returns all pending pings for a sender across connections.
func (s *Postgres) PendingBySender(ctx context.Context, senderID string) ([]pruuf.Ping, error) {
	return s.queryPings(ctx, "pending_by_sender", senderID)
}

// PingsOnDay returns a sender's pings for one calendar day.
func (s *Postgres) PingsOnDay(ctx context.Context, senderID string, day pruuf.Date) ([]pruuf.Ping, error) {
	return s.queryPings(ctx, "pings_on_day", senderID, day.String())
}

// ExpiredPending returns pending pings whose deadline has passed.
func (s *Postgres) ExpiredPending(ctx context.Context, now time.Time, limit int) ([]pruuf.Ping, error) {
	return s.queryPings(ctx, "expired_pending", now, limit)
}

// OnBreakFrom returns a sender's on_break pings scheduled at or after from.
func (s *Postgres) OnBreakFrom(ctx context.Context, senderID string, from time.Time) ([]pruuf.Ping, error) {
	return s.queryPings(ctx, "on_break_from", senderID, from)
}

// PingsSince returns a sender's pings scheduled at or after since, newest
// first, optionally scoped to one receiver.
func (s *Postgres) PingsSince(ctx context.Context, senderID, receiverID string, since time.Time) ([]pruuf.Ping, error) {
	return s.queryPings(ctx, "pings_since", senderID, receiverID, since)
}

func (s *Postgres) queryPings(ctx context.Context, stmt string, args ...any) ([]pruuf.Ping, error) {
	rows, err := s.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stmt, err)
	}
	defer rows.Close()

	var pings []pruuf.Ping
	for rows.Next() {
		p, err := scanPing(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", stmt, err)
		}
		pings = append(pings, p)
	}
	return pings, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPing(row rowScanner) (pruuf.Ping, error) {
	var p pruuf.Ping
	var day string
	var method *string
	err := row.Scan(
		&p.ID, &p.ConnectionID, &p.SenderID, &p.ReceiverID, &day,
		&p.ScheduledAt, &p.DeadlineAt, &p.Status, &p.CompletedAt, &method,
	)
	if err != nil {
		return pruuf.Ping{}, err
	}
	p.Day = pruuf.Date(day)
	if method != nil {
		p.Method = pruuf.CompletionMethod(*method)
	}
	return p, nil
}

func (s *Postgres) scanPingRow(row pgx.Row) (pruuf.Ping, error) {
	p, err := scanPing(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return pruuf.Ping{}, pruuf.ErrPingNotFound
	}
	if err != nil {
		return pruuf.Ping{}, fmt.Errorf("scan ping: %w", err)
	}
	return p, nil
}

// --------------------------------------------------------------------------
// Breaks
// --------------------------------------------------------------------------

// CreateBreak inserts a break row.
func (s *Postgres) CreateBreak(ctx context.Context, b pruuf.Break) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO breaks (id, sender_id, start_date, end_date, status, notes)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		b.ID, b.SenderID, b.StartDate.String(), b.EndDate.String(), b.Status, b.Notes,
	)
	if err != nil {
		return fmt.Errorf("insert break: %w", err)
	}
	return nil
}

// BreakByID fetches one break.
func (s *Postgres) BreakByID(ctx context.Context, id string) (pruuf.Break, error) {
	b, err := scanBreak(s.pool.QueryRow(ctx, "break_by_id", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return pruuf.Break{}, pruuf.ErrBreakNotFound
	}
	if err != nil {
		return pruuf.Break{}, fmt.Errorf("scan break: %w", err)
	}
	return b, nil
}

// UpdateBreakStatus moves a break to a new status, optionally rewriting its
// end date (early termination). Idempotent: re-applying the same status is a
// no-op at the row level.
func (s *Postgres) UpdateBreakStatus(ctx context.Context, id string, to pruuf.BreakStatus, endDate *pruuf.Date) error {
	var end *string
	if endDate != nil {
		e := endDate.String()
		end = &e
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE breaks
		SET status = $2, end_date = COALESCE($3, end_date), updated_at = NOW()
		WHERE id = $1`,
		id, to, end,
	)
	if err != nil {
		return fmt.Errorf("update break status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pruuf.ErrBreakNotFound
	}
	return nil
}

// BreaksBySender returns a sender's breaks in any status, newest first.
func (s *Postgres) BreaksBySender(ctx context.Context, senderID string, limit int) ([]pruuf.Break, error) {
	return s.queryBreaks(ctx, "breaks_by_sender", senderID, limit)
}

// BlockingBreaks returns a sender's scheduled and active breaks.
func (s *Postgres) BlockingBreaks(ctx context.Context, senderID string) ([]pruuf.Break, error) {
	return s.queryBreaks(ctx, "blocking_breaks", senderID)
}

// SenderOnBreak reports whether any scheduled/active break covers day.
func (s *Postgres) SenderOnBreak(ctx context.Context, senderID string, day pruuf.Date) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, "sender_on_break", senderID, day.String()).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sender on break: %w", err)
	}
	return true, nil
}

// BreaksToActivate returns scheduled breaks whose start date has arrived.
func (s *Postgres) BreaksToActivate(ctx context.Context, today pruuf.Date) ([]pruuf.Break, error) {
	return s.queryBreaks(ctx, "breaks_to_activate", today.String())
}

// BreaksToComplete returns blocking breaks whose end date has passed.
func (s *Postgres) BreaksToComplete(ctx context.Context, today pruuf.Date) ([]pruuf.Break, error) {
	return s.queryBreaks(ctx, "breaks_to_complete", today.String())
}

func (s *Postgres) queryBreaks(ctx context.Context, stmt string, args ...any) ([]pruuf.Break, error) {
	rows, err := s.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stmt, err)
	}
	defer rows.Close()

	var breaks []pruuf.Break
	for rows.Next() {
		b, err := scanBreak(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", stmt, err)
		}
		breaks = append(breaks, b)
	}
	return breaks, rows.Err()
}

func scanBreak(row rowScanner) (pruuf.Break, error) {
	var b pruuf.Break
	var start, end string
	err := row.Scan(&b.ID, &b.SenderID, &start, &end, &b.Status, &b.Notes, &b.CreatedAt)
	if err != nil {
		return pruuf.Break{}, err
	}
	b.StartDate = pruuf.Date(start)
	b.EndDate = pruuf.Date(end)
	return b, nil
}

// --------------------------------------------------------------------------
// Connections
// --------------------------------------------------------------------------

// ConnectionByID fetches one connection.
func (s *Postgres) ConnectionByID(ctx context.Context, id string) (pruuf.Connection, error) {
	var c pruuf.Connection
	err := s.pool.QueryRow(ctx, "connection_by_id", id).Scan(
		&c.ID, &c.SenderID, &c.ReceiverID, &c.Status, &c.ScheduledTime, &c.GraceMinutes,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return pruuf.Connection{}, fmt.Errorf("connection %s not found", id)
	}
	if err != nil {
		return pruuf.Connection{}, fmt.Errorf("connection by id: %w", err)
	}
	return c, nil
}

// ActiveConnections returns every active connection (daily generation pass).
func (s *Postgres) ActiveConnections(ctx context.Context) ([]pruuf.Connection, error) {
	return s.queryConnections(ctx, "active_connections")
}

// ActiveConnectionsBySender returns a sender's active connections.
func (s *Postgres) ActiveConnectionsBySender(ctx context.Context, senderID string) ([]pruuf.Connection, error) {
	return s.queryConnections(ctx, "active_connections_by_sender", senderID)
}

func (s *Postgres) queryConnections(ctx context.Context, stmt string, args ...any) ([]pruuf.Connection, error) {
	rows, err := s.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stmt, err)
	}
	defer rows.Close()

	var conns []pruuf.Connection
	for rows.Next() {
		var c pruuf.Connection
		if err := rows.Scan(&c.ID, &c.SenderID, &c.ReceiverID, &c.Status, &c.ScheduledTime, &c.GraceMinutes); err != nil {
			return nil, fmt.Errorf("%s: %w", stmt, err)
		}
		conns = append(conns, c)
	}
	return conns, rows.Err()
}

// --------------------------------------------------------------------------
// Users / preferences
// --------------------------------------------------------------------------

// CurrentTimezone returns a sender's last-reported IANA zone. Satisfies the
// clock.Zones interface. Unknown users fall back to UTC rather than failing
// the whole lifecycle pass.
func (s *Postgres) CurrentTimezone(ctx context.Context, senderID string) (string, error) {
	var tz string
	err := s.pool.QueryRow(ctx, "sender_timezone", senderID).Scan(&tz)
	if errors.Is(err, pgx.ErrNoRows) {
		return "UTC", nil
	}
	if err != nil {
		return "", fmt.Errorf("sender timezone: %w", err)
	}
	return tz, nil
}

// UserPrefs returns a user's notification preferences including the muted
// sender list. Users without a prefs row get the defaults.
func (s *Postgres) UserPrefs(ctx context.Context, userID string) (pruuf.NotificationPrefs, error) {
	p := pruuf.DefaultPrefs()
	err := s.pool.QueryRow(ctx, "user_prefs", userID).Scan(
		&p.Enabled, &p.PingReminders, &p.FifteenMinuteWarning, &p.DeadlineWarning,
		&p.CompletionAlerts, &p.MissedAlerts, &p.BreakAlerts,
	)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return pruuf.NotificationPrefs{}, fmt.Errorf("user prefs: %w", err)
	}

	rows, err := s.pool.Query(ctx, "muted_senders", userID)
	if err != nil {
		return pruuf.NotificationPrefs{}, fmt.Errorf("muted senders: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return pruuf.NotificationPrefs{}, fmt.Errorf("muted senders: %w", err)
		}
		p.MutedSenderIDs = append(p.MutedSenderIDs, id)
	}
	return p, rows.Err()
}

// DeviceTokens returns active push tokens for a user.
func (s *Postgres) DeviceTokens(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, "get_user_device_tokens", userID)
	if err != nil {
		return nil, fmt.Errorf("device tokens: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("device tokens: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}
