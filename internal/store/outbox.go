package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Wesquire/pruuf/internal/pruuf"
)

// --------------------------------------------------------------------------
// Notification outbox
// --------------------------------------------------------------------------

// EnqueueNotifications persists a batch of derived notification events.
func (s *Postgres) EnqueueNotifications(ctx context.Context, batch []pruuf.Notification) (int, error) {
	inserted := 0
	for _, n := range batch {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO notification_outbox (
				id, ping_id, break_id, recipient_id, category,
				fire_at, payload, status
			) VALUES ($1,NULLIF($2,''),NULLIF($3,''),$4,$5,$6,$7,'scheduled')`,
			n.ID, n.PingID, n.BreakID, n.RecipientID, n.Category, n.FireAt, n.Payload,
		)
		if err != nil {
			return inserted, fmt.Errorf("insert notification: %w", err)
		}
		inserted++
	}
	return inserted, nil
}

// CancelPending cancels every not-yet-fired event for a ping, except the
// given categories. Idempotent: already sent/failed/canceled rows are left
// alone.
func (s *Postgres) CancelPending(ctx context.Context, pingID string, keep ...pruuf.Category) (int64, error) {
	kept := make([]string, 0, len(keep))
	for _, c := range keep {
		kept = append(kept, string(c))
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE notification_outbox
		SET status = 'canceled', updated_at = NOW()
		WHERE ping_id = $1 AND status = 'scheduled' AND category != ALL($2)`,
		pingID, kept,
	)
	if err != nil {
		return 0, fmt.Errorf("cancel pending notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ClaimDue atomically claims a batch of due notifications for sending.
// Uses FOR UPDATE SKIP LOCKED for safe concurrent dispatch.
func (s *Postgres) ClaimDue(ctx context.Context, now time.Time, limit int) ([]pruuf.Notification, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE notification_outbox
		SET status = 'sending', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM notification_outbox
			WHERE status = 'scheduled' AND fire_at <= $1
			ORDER BY fire_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, COALESCE(ping_id, ''), COALESCE(break_id, ''), recipient_id, category, fire_at, payload`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due notifications: %w", err)
	}
	defer rows.Close()

	var claimed []pruuf.Notification
	for rows.Next() {
		var n pruuf.Notification
		if err := rows.Scan(&n.ID, &n.PingID, &n.BreakID, &n.RecipientID, &n.Category, &n.FireAt, &n.Payload); err != nil {
			return nil, fmt.Errorf("scan claimed: %w", err)
		}
		n.Status = pruuf.NotificationSending
		claimed = append(claimed, n)
	}
	return claimed, rows.Err()
}

// MarkNotificationSent marks a notification as successfully delivered.
func (s *Postgres) MarkNotificationSent(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE notification_outbox SET status = 'sent', sent_at = NOW(), updated_at = NOW()
		WHERE id = $1`, id)
	return err
}

// MarkNotificationFailed marks a notification as failed.
func (s *Postgres) MarkNotificationFailed(ctx context.Context, id string, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE notification_outbox SET status = 'failed', last_error = $2, updated_at = NOW()
		WHERE id = $1`, id, reason)
	return err
}

// PurgeDelivered removes sent/failed/canceled rows older than before.
func (s *Postgres) PurgeDelivered(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM notification_outbox
		WHERE status IN ('sent', 'failed', 'canceled')
		  AND updated_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("purge delivered notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}
