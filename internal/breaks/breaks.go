// Package breaks manages sender-declared pause intervals: validation,
// activation, cancellation, and the status sweep. Break rows and ping rows
// live in separate tables with no spanning transaction, so every ping-side
// trigger goes through the lifecycle engine's idempotent entry points.
package breaks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Wesquire/pruuf/internal/clock"
	"github.com/Wesquire/pruuf/internal/pruuf"
)

// Store is the repository surface the manager needs.
type Store interface {
	CreateBreak(ctx context.Context, b pruuf.Break) error
	BreakByID(ctx context.Context, id string) (pruuf.Break, error)
	UpdateBreakStatus(ctx context.Context, id string, to pruuf.BreakStatus, endDate *pruuf.Date) error
	BlockingBreaks(ctx context.Context, senderID string) ([]pruuf.Break, error)
	SenderOnBreak(ctx context.Context, senderID string, day pruuf.Date) (bool, error)
	BreaksToActivate(ctx context.Context, today pruuf.Date) ([]pruuf.Break, error)
	BreaksToComplete(ctx context.Context, today pruuf.Date) ([]pruuf.Break, error)
}

// Pings is the only mutation surface the manager may touch on the ping side.
type Pings interface {
	MarkTodayOnBreak(ctx context.Context, senderID string) (int, error)
	RevertFutureOnBreak(ctx context.Context, senderID string) (int, error)
}

// Events receives break activations for receiver-facing notification.
type Events interface {
	BreakStarted(ctx context.Context, b pruuf.Break)
}

// NopEvents discards all events.
type NopEvents struct{}

func (NopEvents) BreakStarted(context.Context, pruuf.Break) {}

// longBreakDays is the inclusive range length above which scheduling returns
// a LongBreakWarning alongside the created break.
const longBreakDays = 365

// Manager validates and persists break intervals and keeps ping state
// consistent with them through the lifecycle engine.
type Manager struct {
	store  Store
	pings  Pings
	events Events
	clock  clock.Clock
	zones  clock.Zones
	logger *slog.Logger
}

// NewManager wires the manager. A nil events sink falls back to NopEvents.
func NewManager(store Store, pings Pings, events Events, clk clock.Clock, zones clock.Zones, logger *slog.Logger) *Manager {
	if events == nil {
		events = NopEvents{}
	}
	return &Manager{store: store, pings: pings, events: events, clock: clk, zones: zones, logger: logger}
}

// Schedule validates and creates a break. Past start dates are rejected. A
// break starting today is created active and immediately suspends today's
// pending pings; later starts are created scheduled. The returned warning is
// non-fatal and accompanies a successful creation.
func (m *Manager) Schedule(ctx context.Context, senderID string, startDate, endDate pruuf.Date, notes string) (pruuf.Break, pruuf.Warning, error) {
	today, err := m.senderToday(ctx, senderID)
	if err != nil {
		return pruuf.Break{}, "", err
	}

	if startDate.Before(today) {
		return pruuf.Break{}, "", fmt.Errorf("%w: start date %s is in the past", pruuf.ErrInvalidDateRange, startDate)
	}
	if endDate.Before(startDate) {
		return pruuf.Break{}, "", fmt.Errorf("%w: end date %s before start date %s", pruuf.ErrInvalidDateRange, endDate, startDate)
	}

	existing, err := m.store.BlockingBreaks(ctx, senderID)
	if err != nil {
		return pruuf.Break{}, "", fmt.Errorf("query breaks: %w", err)
	}
	for _, b := range existing {
		if pruuf.DateRangesOverlap(startDate, endDate, b.StartDate, b.EndDate) {
			return pruuf.Break{}, "", fmt.Errorf("%w: conflicts with break %s (%s to %s)",
				pruuf.ErrOverlappingBreak, b.ID, b.StartDate, b.EndDate)
		}
	}

	var warning pruuf.Warning
	if rangeDays(startDate, endDate) > longBreakDays {
		warning = pruuf.LongBreakWarning
	}

	b := pruuf.Break{
		ID:        uuid.NewString(),
		SenderID:  senderID,
		StartDate: startDate,
		EndDate:   endDate,
		Status:    pruuf.BreakScheduled,
		Notes:     notes,
		CreatedAt: m.clock.Now(),
	}
	if !startDate.After(today) {
		b.Status = pruuf.BreakActive
	}

	if err := m.store.CreateBreak(ctx, b); err != nil {
		return pruuf.Break{}, "", err
	}

	if b.Status == pruuf.BreakActive {
		if _, err := m.pings.MarkTodayOnBreak(ctx, senderID); err != nil {
			// The break exists; the next sweep re-runs the idempotent mark.
			m.logger.Warn("Failed to suspend today's pings for new break",
				"break_id", b.ID, "sender_id", senderID, "error", err)
		}
		m.events.BreakStarted(ctx, b)
	}

	m.logger.Info("Break scheduled",
		"break_id", b.ID, "sender_id", senderID,
		"start", startDate, "end", endDate, "status", b.Status)
	return b, warning, nil
}

// Cancel sets a break to canceled and restores future obligations. Already
// canceled breaks are a no-op; completed breaks cannot be canceled.
func (m *Manager) Cancel(ctx context.Context, breakID, senderID string) (pruuf.Break, error) {
	return m.terminate(ctx, breakID, senderID, nil)
}

// EndEarly terminates an active break as of today: the end date moves to
// today, the break is canceled, and the obligation resumes from today
// forward. Days already spent on break stay on_break in history.
func (m *Manager) EndEarly(ctx context.Context, breakID, senderID string) (pruuf.Break, error) {
	today, err := m.senderToday(ctx, senderID)
	if err != nil {
		return pruuf.Break{}, err
	}
	return m.terminate(ctx, breakID, senderID, &today)
}

func (m *Manager) terminate(ctx context.Context, breakID, senderID string, endDate *pruuf.Date) (pruuf.Break, error) {
	b, err := m.store.BreakByID(ctx, breakID)
	if err != nil {
		return pruuf.Break{}, err
	}
	if b.SenderID != senderID {
		return pruuf.Break{}, pruuf.ErrBreakNotFound
	}
	if b.Status == pruuf.BreakCanceled {
		return b, nil
	}
	if b.Status == pruuf.BreakCompleted {
		return pruuf.Break{}, fmt.Errorf("%w: break already completed", pruuf.ErrInvalidTransition)
	}

	if err := m.store.UpdateBreakStatus(ctx, breakID, pruuf.BreakCanceled, endDate); err != nil {
		return pruuf.Break{}, err
	}
	b.Status = pruuf.BreakCanceled
	if endDate != nil {
		b.EndDate = *endDate
	}

	if _, err := m.pings.RevertFutureOnBreak(ctx, senderID); err != nil {
		// Partial reverts self-heal: the revert is idempotent and the next
		// cancellation or sweep pass re-runs it.
		m.logger.Warn("Failed to revert on-break pings",
			"break_id", breakID, "sender_id", senderID, "error", err)
	}

	m.logger.Info("Break canceled", "break_id", breakID, "sender_id", senderID, "end", b.EndDate)
	return b, nil
}

// IsOnBreak reports whether a scheduled or active break covers date.
func (m *Manager) IsOnBreak(ctx context.Context, senderID string, date pruuf.Date) (bool, error) {
	return m.store.SenderOnBreak(ctx, senderID, date)
}

// SweepStatuses advances break statuses against each sender's local calendar:
// scheduled breaks whose start date arrived become active (suspending today's
// pings), and blocking breaks whose end date passed become completed. Safe to
// re-run; both transitions converge.
func (m *Manager) SweepStatuses(ctx context.Context) (activated, completed int, err error) {
	// Broad candidate query against the latest calendar date anywhere on
	// earth, then an exact per-sender check in that sender's zone.
	horizon := pruuf.DateOf(m.clock.Now().Add(14*time.Hour).UTC(), time.UTC)

	toActivate, err := m.store.BreaksToActivate(ctx, horizon)
	if err != nil {
		return 0, 0, fmt.Errorf("query breaks to activate: %w", err)
	}
	for _, b := range toActivate {
		today, err := m.senderToday(ctx, b.SenderID)
		if err != nil {
			m.logger.Warn("Break sweep: timezone lookup failed", "break_id", b.ID, "error", err)
			continue
		}
		if b.StartDate.After(today) {
			continue
		}
		if err := m.store.UpdateBreakStatus(ctx, b.ID, pruuf.BreakActive, nil); err != nil {
			m.logger.Warn("Break sweep: activation failed", "break_id", b.ID, "error", err)
			continue
		}
		if _, err := m.pings.MarkTodayOnBreak(ctx, b.SenderID); err != nil {
			m.logger.Warn("Break sweep: failed to suspend today's pings", "break_id", b.ID, "error", err)
		}
		b.Status = pruuf.BreakActive
		m.events.BreakStarted(ctx, b)
		activated++
	}

	toComplete, err := m.store.BreaksToComplete(ctx, horizon)
	if err != nil {
		return activated, 0, fmt.Errorf("query breaks to complete: %w", err)
	}
	for _, b := range toComplete {
		today, err := m.senderToday(ctx, b.SenderID)
		if err != nil {
			m.logger.Warn("Break sweep: timezone lookup failed", "break_id", b.ID, "error", err)
			continue
		}
		if !b.EndDate.Before(today) {
			continue
		}
		if err := m.store.UpdateBreakStatus(ctx, b.ID, pruuf.BreakCompleted, nil); err != nil {
			m.logger.Warn("Break sweep: completion failed", "break_id", b.ID, "error", err)
			continue
		}
		completed++
	}

	if activated+completed > 0 {
		m.logger.Info("Break sweep", "activated", activated, "completed", completed)
	}
	return activated, completed, nil
}

func (m *Manager) senderToday(ctx context.Context, senderID string) (pruuf.Date, error) {
	tz, err := m.zones.CurrentTimezone(ctx, senderID)
	if err != nil {
		return "", fmt.Errorf("resolve timezone: %w", err)
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return "", fmt.Errorf("%w: unknown timezone %q", pruuf.ErrInvalidConfiguration, tz)
	}
	return pruuf.DateOf(m.clock.Now(), loc), nil
}

// rangeDays returns the inclusive length of a date range in days.
func rangeDays(start, end pruuf.Date) int {
	s, err := time.Parse(pruuf.DateLayout, start.String())
	if err != nil {
		return 0
	}
	e, err := time.Parse(pruuf.DateLayout, end.String())
	if err != nil {
		return 0
	}
	return int(e.Sub(s).Hours()/24) + 1
}
