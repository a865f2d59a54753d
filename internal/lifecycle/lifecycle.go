// Package lifecycle owns the ping state machine: daily generation,
// completion, the missed sweep, and break interaction. Every transition goes
// through a conditional status update so user completions and the periodic
// sweep can race safely without locks.
package lifecycle

import (
	"context"
	"time"

	"github.com/Wesquire/pruuf/internal/pruuf"
)

// Store is the repository surface the engine needs.
type Store interface {
	CreatePing(ctx context.Context, p pruuf.Ping) error
	PingByID(ctx context.Context, id string) (pruuf.Ping, error)
	PingByConnectionDay(ctx context.Context, connectionID string, day pruuf.Date) (pruuf.Ping, error)
	UpdatePingStatus(ctx context.Context, id string, from, to pruuf.PingStatus, upd pruuf.PingUpdate) (bool, error)
	PendingBySender(ctx context.Context, senderID string) ([]pruuf.Ping, error)
	PingsOnDay(ctx context.Context, senderID string, day pruuf.Date) ([]pruuf.Ping, error)
	ExpiredPending(ctx context.Context, now time.Time, limit int) ([]pruuf.Ping, error)
	OnBreakFrom(ctx context.Context, senderID string, from time.Time) ([]pruuf.Ping, error)
	SenderOnBreak(ctx context.Context, senderID string, day pruuf.Date) (bool, error)
}

// Events receives lifecycle transitions. Implementations must be best-effort:
// a failed side effect never rolls back the transition that caused it, so
// these methods report nothing back.
type Events interface {
	PingGenerated(ctx context.Context, p pruuf.Ping)
	PingCompleted(ctx context.Context, p pruuf.Ping, late bool)
	PingMissed(ctx context.Context, p pruuf.Ping)
	PingOnBreak(ctx context.Context, p pruuf.Ping)
	PingReverted(ctx context.Context, p pruuf.Ping)
}

// NopEvents discards all events.
type NopEvents struct{}

func (NopEvents) PingGenerated(context.Context, pruuf.Ping)       {}
func (NopEvents) PingCompleted(context.Context, pruuf.Ping, bool) {}
func (NopEvents) PingMissed(context.Context, pruuf.Ping)          {}
func (NopEvents) PingOnBreak(context.Context, pruuf.Ping)         {}
func (NopEvents) PingReverted(context.Context, pruuf.Ping)        {}

// BulkResult tracks the outcome of a bulk completion, with lateness computed
// against each ping's own deadline at completion time.
type BulkResult struct {
	Completed int
	OnTime    int
	Late      int
	Skipped   int // lost the race to a concurrent transition
}
