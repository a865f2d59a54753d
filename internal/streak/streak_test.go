package streak

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Wesquire/pruuf/internal/clock"
	"github.com/Wesquire/pruuf/internal/pruuf"
	"github.com/Wesquire/pruuf/internal/store"
)

// today in the fixture zone (UTC).
const today = pruuf.Date("2026-08-30")

type fixture struct {
	store *store.Memory
	calc  *Calculator
	seq   int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	clk := &clock.Fixed{Instant: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)}
	return &fixture{
		store: mem,
		calc:  NewCalculator(mem, clk, &clock.FixedZones{Default: "UTC"}),
	}
}

// put records a ping for sender-1 on the day `offset` days before today.
func (f *fixture) put(offset int, status pruuf.PingStatus) {
	f.putFor("conn-1", "receiver-1", offset, status)
}

func (f *fixture) putFor(connID, receiverID string, offset int, status pruuf.PingStatus) {
	day := today.AddDays(-offset)
	scheduled := day.StartOfDay(time.UTC).Add(9 * time.Hour)
	f.seq++
	p := pruuf.Ping{
		ID:           fmt.Sprintf("ping-%d", f.seq),
		ConnectionID: connID,
		SenderID:     "sender-1",
		ReceiverID:   receiverID,
		Day:          day,
		ScheduledAt:  scheduled,
		DeadlineAt:   scheduled.Add(90 * time.Minute),
		Status:       status,
	}
	if status == pruuf.PingCompleted {
		done := scheduled.Add(time.Hour)
		p.CompletedAt = &done
		p.Method = pruuf.MethodTap
	}
	f.store.PutPing(p)
}

func (f *fixture) current(t *testing.T) int {
	t.Helper()
	count, err := f.calc.Current(context.Background(), "sender-1", "")
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	return count
}

func TestCurrent_EmptyHistory(t *testing.T) {
	f := newFixture(t)
	if got := f.current(t); got != 0 {
		t.Errorf("streak = %d, want 0", got)
	}
}

func TestCurrent_ConsecutiveCompletions(t *testing.T) {
	f := newFixture(t)
	for offset := 0; offset < 4; offset++ {
		f.put(offset, pruuf.PingCompleted)
	}
	if got := f.current(t); got != 4 {
		t.Errorf("streak = %d, want 4", got)
	}
}

func TestCurrent_MissResetsBehindIt(t *testing.T) {
	f := newFixture(t)
	// Five completed days, then a miss, then one completed day (today).
	for offset := 2; offset <= 6; offset++ {
		f.put(offset, pruuf.PingCompleted)
	}
	f.put(1, pruuf.PingMissed)
	f.put(0, pruuf.PingCompleted)

	if got := f.current(t); got != 1 {
		t.Errorf("streak = %d, want 1", got)
	}
}

func TestCurrent_MissedTodayIsZero(t *testing.T) {
	f := newFixture(t)
	f.put(1, pruuf.PingCompleted)
	f.put(0, pruuf.PingMissed)
	if got := f.current(t); got != 0 {
		t.Errorf("streak = %d, want 0", got)
	}
}

func TestCurrent_BreakDaysExtendStreak(t *testing.T) {
	f := newFixture(t)
	// completed, 3 on_break days, then two completed. All six days count.
	f.put(5, pruuf.PingCompleted)
	f.put(4, pruuf.PingOnBreak)
	f.put(3, pruuf.PingOnBreak)
	f.put(2, pruuf.PingOnBreak)
	f.put(1, pruuf.PingCompleted)
	f.put(0, pruuf.PingCompleted)

	if got := f.current(t); got != 6 {
		t.Errorf("streak = %d, want 6", got)
	}
}

func TestCurrent_TodayPendingSkipped(t *testing.T) {
	f := newFixture(t)
	f.put(3, pruuf.PingCompleted)
	f.put(2, pruuf.PingCompleted)
	f.put(1, pruuf.PingCompleted)
	f.put(0, pruuf.PingPending) // today not decided yet

	if got := f.current(t); got != 3 {
		t.Errorf("streak = %d, want 3", got)
	}
}

func TestCurrent_NoPingTodayYet(t *testing.T) {
	f := newFixture(t)
	// Generation for today has not run; yesterday's completion still counts.
	f.put(2, pruuf.PingCompleted)
	f.put(1, pruuf.PingCompleted)

	if got := f.current(t); got != 2 {
		t.Errorf("streak = %d, want 2", got)
	}
}

func TestCurrent_GapTerminatesOnceCounting(t *testing.T) {
	f := newFixture(t)
	f.put(0, pruuf.PingCompleted)
	// No ping on offset 1 at all.
	f.put(2, pruuf.PingCompleted)
	f.put(3, pruuf.PingCompleted)

	if got := f.current(t); got != 1 {
		t.Errorf("streak = %d, want 1", got)
	}
}

func TestCurrent_LateCompletionCountsFully(t *testing.T) {
	f := newFixture(t)
	f.put(1, pruuf.PingCompleted)
	f.put(0, pruuf.PingCompleted)

	// Make today's completion late: after the 10:30 deadline.
	pings, _ := f.store.PingsOnDay(context.Background(), "sender-1", today)
	for _, p := range pings {
		late := p.DeadlineAt.Add(time.Hour)
		p.CompletedAt = &late
		f.store.PutPing(p)
	}

	if got := f.current(t); got != 2 {
		t.Errorf("streak = %d, want 2 (late completion must count)", got)
	}
}

func TestCurrent_BestStatusWinsPerDay(t *testing.T) {
	f := newFixture(t)
	// Two connections on the same day: one missed, one completed. The day
	// counts as completed.
	f.putFor("conn-1", "receiver-1", 0, pruuf.PingCompleted)
	f.putFor("conn-2", "receiver-2", 0, pruuf.PingMissed)
	f.putFor("conn-1", "receiver-1", 1, pruuf.PingCompleted)

	if got := f.current(t); got != 2 {
		t.Errorf("streak = %d, want 2", got)
	}
}

func TestCurrent_ReceiverScope(t *testing.T) {
	f := newFixture(t)
	f.putFor("conn-1", "receiver-1", 0, pruuf.PingCompleted)
	f.putFor("conn-1", "receiver-1", 1, pruuf.PingCompleted)
	f.putFor("conn-2", "receiver-2", 0, pruuf.PingMissed)

	count, err := f.calc.Current(context.Background(), "sender-1", "receiver-1")
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if count != 2 {
		t.Errorf("scoped streak = %d, want 2", count)
	}

	count, err = f.calc.Current(context.Background(), "sender-1", "receiver-2")
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if count != 0 {
		t.Errorf("scoped streak = %d, want 0", count)
	}
}
