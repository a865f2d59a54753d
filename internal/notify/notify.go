// Package notify derives notification events from the ping lifecycle and
// owns their delivery through the outbox.
//
// Sender-facing events are pre-scheduled against the ping's timeline when it
// is generated and canceled when it leaves pending. Receiver-facing events
// are enqueued immediately at the transition that caused them. A background
// dispatch worker claims due rows and hands them to a transport.
package notify

import (
	"time"

	"github.com/google/uuid"

	"github.com/Wesquire/pruuf/internal/pruuf"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	warningLead      = 15 * time.Minute // deadline_warning fires this early
	missedAlertDelay = 5 * time.Minute  // missed_alert fires this late

	dispatchBatchSize = 100
)

// --------------------------------------------------------------------------
// Timeline derivation
// --------------------------------------------------------------------------

// Timeline derives the sender-facing events for a pending ping from its
// window and the sender's preferences. Deterministic and pure: same ping,
// prefs, and now always yield the same set. Events whose fire instant has
// already passed are dropped, never scheduled. The master toggle suppresses
// everything, including the otherwise-unconditional missed_alert.
func Timeline(p pruuf.Ping, prefs pruuf.NotificationPrefs, now time.Time) []pruuf.Notification {
	if !prefs.Enabled {
		return nil
	}

	type candidate struct {
		fireAt   time.Time
		category pruuf.Category
		enabled  bool
	}
	candidates := []candidate{
		{p.ScheduledAt, pruuf.CategoryPingDue, prefs.PingReminders},
		{p.DeadlineAt.Add(-warningLead), pruuf.CategoryDeadlineWarning, prefs.FifteenMinuteWarning},
		{p.DeadlineAt, pruuf.CategoryDeadlineFinal, prefs.DeadlineWarning},
		{p.DeadlineAt.Add(missedAlertDelay), pruuf.CategoryMissedAlert, true},
	}

	var events []pruuf.Notification
	for _, c := range candidates {
		if !c.enabled || c.fireAt.Before(now) {
			continue
		}
		events = append(events, pruuf.Notification{
			ID:          uuid.NewString(),
			PingID:      p.ID,
			RecipientID: p.SenderID,
			Category:    c.category,
			FireAt:      c.fireAt,
			Payload:     pingPayload(p, c.category),
			Status:      pruuf.NotificationScheduled,
		})
	}
	return events
}

func pingPayload(p pruuf.Ping, category pruuf.Category) map[string]string {
	return map[string]string{
		"ping_id":       p.ID,
		"connection_id": p.ConnectionID,
		"sender_id":     p.SenderID,
		"day":           p.Day.String(),
		"message":       messageFor(category),
	}
}

func messageFor(category pruuf.Category) string {
	switch category {
	case pruuf.CategoryPingDue:
		return "Time to check in"
	case pruuf.CategoryDeadlineWarning:
		return "15 minutes left to check in"
	case pruuf.CategoryDeadlineFinal:
		return "Your check-in deadline has arrived"
	case pruuf.CategoryMissedAlert:
		return "You missed your check-in"
	case pruuf.CategoryCompletedOnTime:
		return "Checked in on time"
	case pruuf.CategoryCompletedLate:
		return "Checked in late"
	case pruuf.CategoryMissedPing:
		return "Missed a check-in"
	case pruuf.CategoryBreakStarted:
		return "Started a break"
	default:
		return string(category)
	}
}
