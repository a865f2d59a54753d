package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Wesquire/pruuf/internal/clock"
	"github.com/Wesquire/pruuf/internal/pruuf"
)

// Store is the outbox and lookup surface the scheduler needs.
type Store interface {
	EnqueueNotifications(ctx context.Context, batch []pruuf.Notification) (int, error)
	CancelPending(ctx context.Context, pingID string, keep ...pruuf.Category) (int64, error)
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]pruuf.Notification, error)
	MarkNotificationSent(ctx context.Context, id string) error
	MarkNotificationFailed(ctx context.Context, id string, reason string) error
	PurgeDelivered(ctx context.Context, before time.Time) (int64, error)
	ActiveConnectionsBySender(ctx context.Context, senderID string) ([]pruuf.Connection, error)
}

// Prefs is the preferences collaborator.
type Prefs interface {
	UserPrefs(ctx context.Context, userID string) (pruuf.NotificationPrefs, error)
}

// Scheduler consumes lifecycle and break events and maintains the outbox.
// Every method here is a side channel: failures are logged and swallowed so
// they never fail the state transition that emitted the event.
type Scheduler struct {
	store  Store
	prefs  Prefs
	clock  clock.Clock
	logger *slog.Logger
}

// NewScheduler wires the scheduler.
func NewScheduler(store Store, prefs Prefs, clk clock.Clock, logger *slog.Logger) *Scheduler {
	return &Scheduler{store: store, prefs: prefs, clock: clk, logger: logger}
}

// --------------------------------------------------------------------------
// Lifecycle events
// --------------------------------------------------------------------------

// PingGenerated pre-schedules the sender-facing timeline for a new pending
// ping.
func (s *Scheduler) PingGenerated(ctx context.Context, p pruuf.Ping) {
	s.scheduleTimeline(ctx, p)
}

// PingReverted re-schedules the timeline after a break cancellation restored
// the obligation. Past instants are dropped by derivation.
func (s *Scheduler) PingReverted(ctx context.Context, p pruuf.Ping) {
	s.scheduleTimeline(ctx, p)
}

func (s *Scheduler) scheduleTimeline(ctx context.Context, p pruuf.Ping) {
	prefs, err := s.prefs.UserPrefs(ctx, p.SenderID)
	if err != nil {
		s.logger.Warn("Timeline scheduling: prefs lookup failed", "ping_id", p.ID, "error", err)
		return
	}
	events := Timeline(p, prefs, s.clock.Now())
	if len(events) == 0 {
		return
	}
	if _, err := s.store.EnqueueNotifications(ctx, events); err != nil {
		s.logger.Warn("Timeline scheduling: enqueue failed", "ping_id", p.ID, "error", err)
		return
	}
	s.logger.Info("Timeline scheduled", "ping_id", p.ID, "events", len(events))
}

// PingCompleted cancels the unfired timeline and notifies the receiver.
func (s *Scheduler) PingCompleted(ctx context.Context, p pruuf.Ping, late bool) {
	s.cancelTimeline(ctx, p.ID)
	category := pruuf.CategoryCompletedOnTime
	if late {
		category = pruuf.CategoryCompletedLate
	}
	s.notifyReceiver(ctx, p, category, func(prefs pruuf.NotificationPrefs) bool {
		return prefs.CompletionAlerts
	})
}

// PingMissed cancels the unfired timeline except the sender's missed_alert,
// which is the one event the missed transition is supposed to let fire, and
// notifies the receiver immediately.
func (s *Scheduler) PingMissed(ctx context.Context, p pruuf.Ping) {
	if _, err := s.store.CancelPending(ctx, p.ID, pruuf.CategoryMissedAlert); err != nil {
		s.logger.Warn("Timeline cancellation failed", "ping_id", p.ID, "error", err)
	}
	s.notifyReceiver(ctx, p, pruuf.CategoryMissedPing, func(prefs pruuf.NotificationPrefs) bool {
		return prefs.MissedAlerts
	})
}

// PingOnBreak cancels the unfired timeline when a break suspends the ping.
func (s *Scheduler) PingOnBreak(ctx context.Context, p pruuf.Ping) {
	s.cancelTimeline(ctx, p.ID)
}

func (s *Scheduler) cancelTimeline(ctx context.Context, pingID string) {
	if _, err := s.store.CancelPending(ctx, pingID); err != nil {
		s.logger.Warn("Timeline cancellation failed", "ping_id", pingID, "error", err)
	}
}

// notifyReceiver enqueues an immediate receiver-facing event, gated by the
// receiver's own preferences including the per-sender mute list.
func (s *Scheduler) notifyReceiver(ctx context.Context, p pruuf.Ping, category pruuf.Category, gate func(pruuf.NotificationPrefs) bool) {
	prefs, err := s.prefs.UserPrefs(ctx, p.ReceiverID)
	if err != nil {
		s.logger.Warn("Receiver event: prefs lookup failed",
			"ping_id", p.ID, "receiver_id", p.ReceiverID, "error", err)
		return
	}
	if !prefs.Enabled || !gate(prefs) || prefs.Muted(p.SenderID) {
		return
	}

	n := pruuf.Notification{
		ID:          uuid.NewString(),
		PingID:      p.ID,
		RecipientID: p.ReceiverID,
		Category:    category,
		FireAt:      s.clock.Now(),
		Payload:     pingPayload(p, category),
		Status:      pruuf.NotificationScheduled,
	}
	if _, err := s.store.EnqueueNotifications(ctx, []pruuf.Notification{n}); err != nil {
		s.logger.Warn("Receiver event: enqueue failed",
			"ping_id", p.ID, "category", category, "error", err)
	}
}

// --------------------------------------------------------------------------
// Break events
// --------------------------------------------------------------------------

// BreakStarted notifies every receiver connected to the sender, each gated
// by their own preferences and mute list.
func (s *Scheduler) BreakStarted(ctx context.Context, b pruuf.Break) {
	conns, err := s.store.ActiveConnectionsBySender(ctx, b.SenderID)
	if err != nil {
		s.logger.Warn("Break event: connection lookup failed", "break_id", b.ID, "error", err)
		return
	}

	now := s.clock.Now()
	seen := make(map[string]bool, len(conns))
	var batch []pruuf.Notification
	for _, c := range conns {
		if seen[c.ReceiverID] {
			continue
		}
		seen[c.ReceiverID] = true

		prefs, err := s.prefs.UserPrefs(ctx, c.ReceiverID)
		if err != nil {
			s.logger.Warn("Break event: prefs lookup failed",
				"break_id", b.ID, "receiver_id", c.ReceiverID, "error", err)
			continue
		}
		if !prefs.Enabled || !prefs.BreakAlerts || prefs.Muted(b.SenderID) {
			continue
		}

		batch = append(batch, pruuf.Notification{
			ID:          uuid.NewString(),
			BreakID:     b.ID,
			RecipientID: c.ReceiverID,
			Category:    pruuf.CategoryBreakStarted,
			FireAt:      now,
			Payload: map[string]string{
				"break_id":  b.ID,
				"sender_id": b.SenderID,
				"start":     b.StartDate.String(),
				"end":       b.EndDate.String(),
				"message":   messageFor(pruuf.CategoryBreakStarted),
			},
			Status: pruuf.NotificationScheduled,
		})
	}

	if len(batch) == 0 {
		return
	}
	if _, err := s.store.EnqueueNotifications(ctx, batch); err != nil {
		s.logger.Warn("Break event: enqueue failed", "break_id", b.ID, "error", err)
	}
}
