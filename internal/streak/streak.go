// Package streak derives the current consecutive-completion count from ping
// history. The streak is never persisted; it is recomputed on demand from
// the last two years of pings.
package streak

import (
	"context"
	"fmt"
	"time"

	"github.com/Wesquire/pruuf/internal/clock"
	"github.com/Wesquire/pruuf/internal/pruuf"
)

// historyYears bounds the backward scan.
const historyYears = 2

// Store is the repository surface the calculator needs.
type Store interface {
	PingsSince(ctx context.Context, senderID, receiverID string, since time.Time) ([]pruuf.Ping, error)
}

// Calculator computes streaks against the sender's current local calendar.
type Calculator struct {
	store Store
	clock clock.Clock
	zones clock.Zones
}

// NewCalculator wires the calculator.
func NewCalculator(store Store, clk clock.Clock, zones clock.Zones) *Calculator {
	return &Calculator{store: store, clock: clk, zones: zones}
}

// Current returns the sender's streak, optionally scoped to one receiver.
//
// Walking backward from today: completed and on_break days extend the
// streak (breaks never penalize it), a missed day terminates it, and a day
// with no ping terminates it once counting has started. Days before the
// streak begins (today still pending, or pre-history gaps) are skipped
// without penalty. Late completions count fully; lateness is a view, not a
// state.
func (c *Calculator) Current(ctx context.Context, senderID, receiverID string) (int, error) {
	tz, err := c.zones.CurrentTimezone(ctx, senderID)
	if err != nil {
		return 0, fmt.Errorf("resolve timezone: %w", err)
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return 0, fmt.Errorf("%w: unknown timezone %q", pruuf.ErrInvalidConfiguration, tz)
	}

	now := c.clock.Now()
	since := now.AddDate(-historyYears, 0, 0)
	pings, err := c.store.PingsSince(ctx, senderID, receiverID, since)
	if err != nil {
		return 0, fmt.Errorf("query ping history: %w", err)
	}
	if len(pings) == 0 {
		return 0, nil
	}

	byDay := collapseByDay(pings)
	today := pruuf.DateOf(now, loc)
	boundary := pruuf.DateOf(since, loc)

	count := 0
	counting := false
	for day := today; !day.Before(boundary); day = day.AddDays(-1) {
		status, ok := byDay[day]
		if !ok {
			if counting {
				break
			}
			continue
		}
		switch status {
		case pruuf.PingMissed:
			return count, nil
		case pruuf.PingCompleted, pruuf.PingOnBreak:
			count++
			counting = true
		default:
			// A pending day before counting starts is today's still-open
			// obligation; once counting, it is an uncovered gap.
			if counting {
				return count, nil
			}
		}
	}
	return count, nil
}

// collapseByDay reduces multi-connection senders to one status per calendar
// day, best outcome winning: completed > on_break > pending > missed.
func collapseByDay(pings []pruuf.Ping) map[pruuf.Date]pruuf.PingStatus {
	byDay := make(map[pruuf.Date]pruuf.PingStatus, len(pings))
	for _, p := range pings {
		current, ok := byDay[p.Day]
		if !ok || statusRank(p.Status) > statusRank(current) {
			byDay[p.Day] = p.Status
		}
	}
	return byDay
}

func statusRank(s pruuf.PingStatus) int {
	switch s {
	case pruuf.PingCompleted:
		return 3
	case pruuf.PingOnBreak:
		return 2
	case pruuf.PingPending:
		return 1
	default: // missed
		return 0
	}
}
