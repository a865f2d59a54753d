package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Transport delivers one due notification. The transport owns
// platform-specific encoding; the scheduler only hands over the payload
// contract tuple.
type Transport interface {
	Deliver(ctx context.Context, n Delivery) error
}

// Delivery is the boundary tuple handed to a transport.
type Delivery struct {
	ID          string
	RecipientID string
	Category    string
	FireAt      time.Time
	Payload     map[string]string
}

// StartDispatcher runs a background loop that sends due notifications.
// Blocks until ctx is cancelled. Intended to be called with `go`.
func (s *Scheduler) StartDispatcher(ctx context.Context, transport Transport, interval time.Duration) {
	s.logger.Info("Notification dispatch worker started", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sent, failed, err := s.dispatchBatch(ctx, transport)
			if err != nil {
				s.logger.Error("dispatch error", "error", err)
			} else if sent+failed > 0 {
				s.logger.Info("dispatch batch", "sent", sent, "failed", failed)
			}
		case <-ctx.Done():
			s.logger.Info("Notification dispatch worker stopped")
			return
		}
	}
}

// DispatchOnce claims and delivers a single batch. Exposed for the ops CLI.
func (s *Scheduler) DispatchOnce(ctx context.Context, transport Transport) (sent, failed int, err error) {
	return s.dispatchBatch(ctx, transport)
}

func (s *Scheduler) dispatchBatch(ctx context.Context, transport Transport) (sent, failed int, err error) {
	claimed, err := s.store.ClaimDue(ctx, s.clock.Now(), dispatchBatchSize)
	if err != nil {
		return 0, 0, err
	}

	for _, n := range claimed {
		d := Delivery{
			ID:          n.ID,
			RecipientID: n.RecipientID,
			Category:    string(n.Category),
			FireAt:      n.FireAt,
			Payload:     n.Payload,
		}
		if sendErr := transport.Deliver(ctx, d); sendErr != nil {
			s.logger.Warn("send failed", "notification_id", n.ID, "error", sendErr)
			_ = s.store.MarkNotificationFailed(ctx, n.ID, sendErr.Error())
			failed++
		} else {
			_ = s.store.MarkNotificationSent(ctx, n.ID)
			sent++
		}
	}
	return sent, failed, nil
}

// Purge removes delivered outbox rows older than the retention window.
func (s *Scheduler) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	return s.store.PurgeDelivered(ctx, s.clock.Now().Add(-retention))
}

// --------------------------------------------------------------------------
// Transports
// --------------------------------------------------------------------------

// TokenSource resolves a recipient's active device tokens.
type TokenSource interface {
	DeviceTokens(ctx context.Context, userID string) ([]string, error)
}

// PushTransport sends notifications to the recipient's devices through the
// push gateway. Nil-safe: when not configured, Deliver is a no-op.
type PushTransport struct {
	credentialsFile string
	tokens          TokenSource
	logger          *slog.Logger
	// TODO: attach the APNs/FCM client once the gateway credentials land in
	// the deploy environment. Until then sends are logged for development.
}

// NewPushTransport creates a push transport from a gateway credentials file.
// Returns nil if credentialsFile is empty (push delivery disabled).
func NewPushTransport(credentialsFile string, tokens TokenSource, logger *slog.Logger) *PushTransport {
	if credentialsFile == "" {
		return nil
	}
	return &PushTransport{credentialsFile: credentialsFile, tokens: tokens, logger: logger}
}

// Deliver sends one notification to all of the recipient's devices.
func (t *PushTransport) Deliver(ctx context.Context, d Delivery) error {
	if t == nil {
		return nil // no-op when not configured
	}

	tokens, err := t.tokens.DeviceTokens(ctx, d.RecipientID)
	if err != nil {
		return fmt.Errorf("device tokens: %w", err)
	}
	if len(tokens) == 0 {
		return fmt.Errorf("no active tokens for user %s", d.RecipientID)
	}

	t.logger.Info("Push send (pending gateway integration)",
		"tokens", len(tokens), "category", d.Category, "message", d.Payload["message"])
	return nil
}

// LogTransport writes deliveries to the log. Used in development and by the
// ops CLI dry-run.
type LogTransport struct {
	Logger *slog.Logger
}

func (t LogTransport) Deliver(_ context.Context, d Delivery) error {
	t.Logger.Info("Notification",
		"recipient", d.RecipientID, "category", d.Category,
		"fire_at", d.FireAt, "message", d.Payload["message"])
	return nil
}
