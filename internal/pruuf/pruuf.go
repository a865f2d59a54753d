// Package pruuf holds the core domain types for the check-in service:
// pings (one daily check-in obligation per connection), breaks (sender
// declared pauses), connections (sender→receiver pairings), and the
// notification records derived from ping lifecycle transitions.
package pruuf

import "time"

// --------------------------------------------------------------------------
// Ping
// --------------------------------------------------------------------------

// PingStatus is the lifecycle state of a single check-in obligation.
//
// Legal transitions:
//
//	pending  → completed | missed | on_break
//	on_break → pending (break cancellation, future pings only)
//
// completed and missed are terminal.
type PingStatus string

const (
	PingPending   PingStatus = "pending"
	PingCompleted PingStatus = "completed"
	PingMissed    PingStatus = "missed"
	PingOnBreak   PingStatus = "on_break"
)

// CompletionMethod records how a ping was resolved.
type CompletionMethod string

const (
	MethodTap       CompletionMethod = "tap"
	MethodInPerson  CompletionMethod = "in_person"
	MethodAutoBreak CompletionMethod = "auto_break"
)

// Ping is one check-in obligation for one sender on one connection on one
// calendar day. The calendar day is fixed in the sender's timezone at
// generation time; at most one ping exists per (connection, day).
type Ping struct {
	ID           string
	ConnectionID string
	SenderID     string
	ReceiverID   string
	Day          Date
	ScheduledAt  time.Time
	DeadlineAt   time.Time
	Status       PingStatus
	CompletedAt  *time.Time
	Method       CompletionMethod
}

// Late reports whether a completed ping landed after its deadline.
// Lateness is a view derived at read time, never a stored state, so streaks
// and notifications always agree with history.
func (p *Ping) Late() bool {
	return p.Status == PingCompleted && p.CompletedAt != nil && p.CompletedAt.After(p.DeadlineAt)
}

// PingUpdate carries the optional fields written alongside a status
// transition.
type PingUpdate struct {
	CompletedAt *time.Time
	Method      CompletionMethod
	ClearMethod bool // revert on_break → pending drops auto_break
}

// --------------------------------------------------------------------------
// Break
// --------------------------------------------------------------------------

// BreakStatus is the lifecycle state of a break interval.
type BreakStatus string

const (
	BreakScheduled BreakStatus = "scheduled"
	BreakActive    BreakStatus = "active"
	BreakCompleted BreakStatus = "completed"
	BreakCanceled  BreakStatus = "canceled"
)

// Break is a sender-declared date interval (inclusive on both ends) during
// which ping obligations are suspended.
type Break struct {
	ID        string
	SenderID  string
	StartDate Date
	EndDate   Date
	Status    BreakStatus
	Notes     string
	CreatedAt time.Time
}

// Contains reports whether d falls inside the break's inclusive range.
func (b *Break) Contains(d Date) bool {
	return !d.Before(b.StartDate) && !d.After(b.EndDate)
}

// Blocking reports whether the break still suspends obligations: only
// scheduled and active breaks count toward overlap and on-break checks.
func (b *Break) Blocking() bool {
	return b.Status == BreakScheduled || b.Status == BreakActive
}

// --------------------------------------------------------------------------
// Connection
// --------------------------------------------------------------------------

// ConnectionStatus is the state of a sender→receiver pairing.
type ConnectionStatus string

const (
	ConnectionPending ConnectionStatus = "pending"
	ConnectionActive  ConnectionStatus = "active"
	ConnectionPaused  ConnectionStatus = "paused"
	ConnectionDeleted ConnectionStatus = "deleted"
)

// Connection is a directed sender→receiver pairing. Pings are generated only
// while the connection is active; soft-deleting removes future obligations
// without touching past rows.
type Connection struct {
	ID            string
	SenderID      string
	ReceiverID    string
	Status        ConnectionStatus
	ScheduledTime string // "HH:MM" time of day in the sender's current zone
	GraceMinutes  int    // 0 means the service default (90)
}

// --------------------------------------------------------------------------
// Notifications
// --------------------------------------------------------------------------

// Category identifies a notification event kind.
type Category string

// Sender-facing, pre-scheduled against the ping timeline.
const (
	CategoryPingDue         Category = "ping_due"
	CategoryDeadlineWarning Category = "deadline_warning"
	CategoryDeadlineFinal   Category = "deadline_final"
	CategoryMissedAlert     Category = "missed_alert"
)

// Receiver-facing, enqueued immediately at the lifecycle transition.
const (
	CategoryCompletedOnTime Category = "ping_completed_on_time"
	CategoryCompletedLate   Category = "ping_completed_late"
	CategoryMissedPing      Category = "missed_ping"
	CategoryBreakStarted    Category = "break_started"
)

// NotificationStatus tracks an outbox row through delivery.
type NotificationStatus string

const (
	NotificationScheduled NotificationStatus = "scheduled"
	NotificationSending   NotificationStatus = "sending"
	NotificationSent      NotificationStatus = "sent"
	NotificationFailed    NotificationStatus = "failed"
	NotificationCanceled  NotificationStatus = "canceled"
)

// Notification is one outbox row: a time-anchored event for one recipient.
// The transport collaborator owns platform encoding; this is the payload
// contract at the boundary.
type Notification struct {
	ID          string
	PingID      string // empty for break events
	BreakID     string // empty for ping events
	RecipientID string
	Category    Category
	FireAt      time.Time
	Payload     map[string]string
	Status      NotificationStatus
	LastError   string
}

// NotificationPrefs is a user's notification configuration, consumed from the
// preferences collaborator. Enabled is the master toggle: when off, nothing
// is scheduled for that user at all.
type NotificationPrefs struct {
	Enabled              bool
	PingReminders        bool
	FifteenMinuteWarning bool
	DeadlineWarning      bool
	CompletionAlerts     bool
	MissedAlerts         bool
	BreakAlerts          bool
	MutedSenderIDs       []string
}

// Muted reports whether receiver-facing events from senderID are suppressed.
func (p *NotificationPrefs) Muted(senderID string) bool {
	for _, id := range p.MutedSenderIDs {
		if id == senderID {
			return true
		}
	}
	return false
}

// DefaultPrefs is what the preferences collaborator returns for users who
// never changed anything: everything on, nobody muted.
func DefaultPrefs() NotificationPrefs {
	return NotificationPrefs{
		Enabled:              true,
		PingReminders:        true,
		FifteenMinuteWarning: true,
		DeadlineWarning:      true,
		CompletionAlerts:     true,
		MissedAlerts:         true,
		BreakAlerts:          true,
	}
}

// --------------------------------------------------------------------------
// Location
// --------------------------------------------------------------------------

// Coordinates is a device location fix supplied with in-person completions.
type Coordinates struct {
	Latitude       float64
	Longitude      float64
	AccuracyMeters float64
}
