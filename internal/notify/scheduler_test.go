package notify

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/Wesquire/pruuf/internal/clock"
	"github.com/Wesquire/pruuf/internal/pruuf"
	"github.com/Wesquire/pruuf/internal/store"
)

type fixture struct {
	store     *store.Memory
	clock     *clock.Fixed
	scheduler *Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	clk := &clock.Fixed{Instant: time.Date(2026, 8, 30, 8, 0, 0, 0, time.UTC)}
	return &fixture{
		store:     mem,
		clock:     clk,
		scheduler: NewScheduler(mem, mem, clk, slog.Default()),
	}
}

func (f *fixture) byStatus(status pruuf.NotificationStatus) []pruuf.Notification {
	var out []pruuf.Notification
	for _, n := range f.store.Outbox() {
		if n.Status == status {
			out = append(out, n)
		}
	}
	return out
}

func TestPingGenerated_SchedulesTimeline(t *testing.T) {
	f := newFixture(t)

	f.scheduler.PingGenerated(context.Background(), testPing())

	scheduled := f.byStatus(pruuf.NotificationScheduled)
	if len(scheduled) != 4 {
		t.Fatalf("scheduled = %d, want 4", len(scheduled))
	}
}

func TestPingCompleted_CancelsAndNotifiesReceiver(t *testing.T) {
	f := newFixture(t)
	p := testPing()
	f.scheduler.PingGenerated(context.Background(), p)

	f.scheduler.PingCompleted(context.Background(), p, false)

	var receiverEvents []pruuf.Notification
	for _, n := range f.byStatus(pruuf.NotificationScheduled) {
		if n.RecipientID == "sender-1" {
			t.Errorf("sender event %s survived completion", n.Category)
		}
		if n.RecipientID == "receiver-1" {
			receiverEvents = append(receiverEvents, n)
		}
	}
	if len(receiverEvents) != 1 || receiverEvents[0].Category != pruuf.CategoryCompletedOnTime {
		t.Fatalf("receiver events = %v, want one ping_completed_on_time", receiverEvents)
	}
	if !receiverEvents[0].FireAt.Equal(f.clock.Instant) {
		t.Errorf("receiver event fires at %v, want immediately", receiverEvents[0].FireAt)
	}
}

func TestPingCompleted_LateCategory(t *testing.T) {
	f := newFixture(t)
	p := testPing()

	f.scheduler.PingCompleted(context.Background(), p, true)

	scheduled := f.byStatus(pruuf.NotificationScheduled)
	if len(scheduled) != 1 || scheduled[0].Category != pruuf.CategoryCompletedLate {
		t.Errorf("events = %v, want one ping_completed_late", scheduled)
	}
}

func TestPingMissed_KeepsMissedAlert(t *testing.T) {
	f := newFixture(t)
	p := testPing()
	f.scheduler.PingGenerated(context.Background(), p)

	f.scheduler.PingMissed(context.Background(), p)

	var senderCategories []pruuf.Category
	receiverMissed := 0
	for _, n := range f.byStatus(pruuf.NotificationScheduled) {
		switch n.RecipientID {
		case "sender-1":
			senderCategories = append(senderCategories, n.Category)
		case "receiver-1":
			if n.Category == pruuf.CategoryMissedPing {
				receiverMissed++
			}
		}
	}
	if len(senderCategories) != 1 || senderCategories[0] != pruuf.CategoryMissedAlert {
		t.Errorf("surviving sender events = %v, want [missed_alert]", senderCategories)
	}
	if receiverMissed != 1 {
		t.Errorf("receiver missed_ping events = %d, want 1", receiverMissed)
	}
}

func TestPingOnBreak_CancelsEverything(t *testing.T) {
	f := newFixture(t)
	p := testPing()
	f.scheduler.PingGenerated(context.Background(), p)

	f.scheduler.PingOnBreak(context.Background(), p)

	if scheduled := f.byStatus(pruuf.NotificationScheduled); len(scheduled) != 0 {
		t.Errorf("scheduled after on_break = %d, want 0", len(scheduled))
	}
}

func TestReceiverEvents_GatedByPrefs(t *testing.T) {
	f := newFixture(t)
	prefs := pruuf.DefaultPrefs()
	prefs.CompletionAlerts = false
	f.store.SetPrefs("receiver-1", prefs)

	f.scheduler.PingCompleted(context.Background(), testPing(), false)

	if scheduled := f.byStatus(pruuf.NotificationScheduled); len(scheduled) != 0 {
		t.Errorf("events = %d, want 0 with completion alerts off", len(scheduled))
	}
}

func TestReceiverEvents_MuteList(t *testing.T) {
	f := newFixture(t)
	prefs := pruuf.DefaultPrefs()
	prefs.MutedSenderIDs = []string{"sender-1"}
	f.store.SetPrefs("receiver-1", prefs)

	f.scheduler.PingCompleted(context.Background(), testPing(), false)
	f.scheduler.PingMissed(context.Background(), testPing())

	for _, n := range f.byStatus(pruuf.NotificationScheduled) {
		if n.RecipientID == "receiver-1" {
			t.Errorf("muted sender still produced %s for receiver", n.Category)
		}
	}
}

func TestBreakStarted_FansOutToReceivers(t *testing.T) {
	f := newFixture(t)
	f.store.AddConnection(pruuf.Connection{
		ID: "conn-1", SenderID: "sender-1", ReceiverID: "receiver-1",
		Status: pruuf.ConnectionActive, ScheduledTime: "09:00",
	})
	f.store.AddConnection(pruuf.Connection{
		ID: "conn-2", SenderID: "sender-1", ReceiverID: "receiver-2",
		Status: pruuf.ConnectionActive, ScheduledTime: "18:00",
	})
	// Duplicate receiver across connections: only one event.
	f.store.AddConnection(pruuf.Connection{
		ID: "conn-3", SenderID: "sender-1", ReceiverID: "receiver-2",
		Status: pruuf.ConnectionActive, ScheduledTime: "20:00",
	})
	mutedPrefs := pruuf.DefaultPrefs()
	mutedPrefs.MutedSenderIDs = []string{"sender-1"}
	f.store.SetPrefs("receiver-1", mutedPrefs)

	f.scheduler.BreakStarted(context.Background(), pruuf.Break{
		ID: "break-1", SenderID: "sender-1",
		StartDate: "2026-08-30", EndDate: "2026-09-02",
		Status: pruuf.BreakActive,
	})

	scheduled := f.byStatus(pruuf.NotificationScheduled)
	if len(scheduled) != 1 {
		t.Fatalf("events = %d, want 1 (receiver-1 muted, receiver-2 deduped)", len(scheduled))
	}
	n := scheduled[0]
	if n.RecipientID != "receiver-2" || n.Category != pruuf.CategoryBreakStarted {
		t.Errorf("event = %s for %s, want break_started for receiver-2", n.Category, n.RecipientID)
	}
	if n.BreakID != "break-1" {
		t.Errorf("break_id = %s, want break-1", n.BreakID)
	}
}

// --------------------------------------------------------------------------
// Dispatch
// --------------------------------------------------------------------------

type fakeTransport struct {
	delivered []Delivery
	failWith  error
}

func (f *fakeTransport) Deliver(_ context.Context, d Delivery) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.delivered = append(f.delivered, d)
	return nil
}

func TestDispatchOnce_DeliversOnlyDue(t *testing.T) {
	f := newFixture(t)
	p := testPing()
	f.scheduler.PingGenerated(context.Background(), p) // 4 future events

	// Move past the warning instant but not the deadline: ping_due (09:00)
	// and deadline_warning (10:15) are due.
	f.clock.Instant = time.Date(2026, 8, 30, 10, 20, 0, 0, time.UTC)

	transport := &fakeTransport{}
	sent, failed, err := f.scheduler.DispatchOnce(context.Background(), transport)
	if err != nil {
		t.Fatalf("DispatchOnce failed: %v", err)
	}
	if sent != 2 || failed != 0 {
		t.Errorf("dispatch = (%d sent, %d failed), want (2, 0)", sent, failed)
	}
	if len(transport.delivered) != 2 {
		t.Errorf("delivered = %d, want 2", len(transport.delivered))
	}
	if got := len(f.byStatus(pruuf.NotificationSent)); got != 2 {
		t.Errorf("sent rows = %d, want 2", got)
	}
	if got := len(f.byStatus(pruuf.NotificationScheduled)); got != 2 {
		t.Errorf("still scheduled = %d, want 2", got)
	}
}

func TestDispatchOnce_FailureMarksFailed(t *testing.T) {
	f := newFixture(t)
	f.scheduler.PingGenerated(context.Background(), testPing())
	f.clock.Instant = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	transport := &fakeTransport{failWith: errors.New("gateway down")}
	sent, failed, err := f.scheduler.DispatchOnce(context.Background(), transport)
	if err != nil {
		t.Fatalf("DispatchOnce failed: %v", err)
	}
	if sent != 0 || failed != 4 {
		t.Errorf("dispatch = (%d sent, %d failed), want (0, 4)", sent, failed)
	}
	for _, n := range f.byStatus(pruuf.NotificationFailed) {
		if n.LastError == "" {
			t.Error("failed row missing last error")
		}
	}
}
