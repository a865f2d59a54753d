package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Wesquire/pruuf/internal/clock"
	"github.com/Wesquire/pruuf/internal/deadline"
	"github.com/Wesquire/pruuf/internal/location"
	"github.com/Wesquire/pruuf/internal/pruuf"
)

const sweepBatchSize = 500

// Engine drives the ping state machine. Constructed once with its
// collaborators injected; callers own their own view of current state.
type Engine struct {
	store    Store
	clock    clock.Clock
	zones    clock.Zones
	location location.Verifier
	events   Events
	logger   *slog.Logger

	defaultGrace int
}

// NewEngine wires the engine. A nil events sink falls back to NopEvents.
func NewEngine(store Store, clk clock.Clock, zones clock.Zones, verifier location.Verifier, events Events, defaultGrace int, logger *slog.Logger) *Engine {
	if events == nil {
		events = NopEvents{}
	}
	return &Engine{
		store:        store,
		clock:        clk,
		zones:        zones,
		location:     verifier,
		events:       events,
		logger:       logger,
		defaultGrace: defaultGrace,
	}
}

// --------------------------------------------------------------------------
// Generation
// --------------------------------------------------------------------------

// GenerateDaily creates the ping for one connection and calendar day. Safe
// to invoke any number of times: an existing row for the (connection, day)
// pair is returned unchanged. Returns nil without error when no obligation
// applies: inactive connection, or a window whose deadline already passed
// (no retroactive pending obligations).
func (e *Engine) GenerateDaily(ctx context.Context, conn pruuf.Connection, day pruuf.Date) (*pruuf.Ping, error) {
	if conn.Status != pruuf.ConnectionActive {
		return nil, nil
	}

	existing, err := e.store.PingByConnectionDay(ctx, conn.ID, day)
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, pruuf.ErrPingNotFound) {
		return nil, fmt.Errorf("check existing ping: %w", err)
	}

	tz, err := e.zones.CurrentTimezone(ctx, conn.SenderID)
	if err != nil {
		return nil, fmt.Errorf("resolve timezone: %w", err)
	}

	grace := conn.GraceMinutes
	if grace <= 0 {
		grace = e.defaultGrace
	}
	scheduled, dl, err := deadline.Window(conn.ScheduledTime, grace, tz, day)
	if err != nil {
		return nil, fmt.Errorf("compute window: %w", err)
	}

	onBreak, err := e.store.SenderOnBreak(ctx, conn.SenderID, day)
	if err != nil {
		return nil, fmt.Errorf("check break: %w", err)
	}

	now := e.clock.Now()
	if !onBreak && dl.Before(now) {
		e.logger.Debug("Skipping ping with expired window",
			"connection_id", conn.ID, "day", day, "deadline", dl)
		return nil, nil
	}

	p := pruuf.Ping{
		ID:           uuid.NewString(),
		ConnectionID: conn.ID,
		SenderID:     conn.SenderID,
		ReceiverID:   conn.ReceiverID,
		Day:          day,
		ScheduledAt:  scheduled,
		DeadlineAt:   dl,
		Status:       pruuf.PingPending,
	}
	if onBreak {
		p.Status = pruuf.PingOnBreak
		p.Method = pruuf.MethodAutoBreak
	}

	if err := e.store.CreatePing(ctx, p); err != nil {
		if errors.Is(err, pruuf.ErrPingExists) {
			// Lost the insert race; the winner's row is the ping.
			won, err := e.store.PingByConnectionDay(ctx, conn.ID, day)
			if err != nil {
				return nil, fmt.Errorf("fetch ping after duplicate insert: %w", err)
			}
			return &won, nil
		}
		return nil, err
	}

	if p.Status == pruuf.PingPending {
		e.events.PingGenerated(ctx, p)
	}
	e.logger.Info("Ping generated",
		"ping_id", p.ID, "connection_id", conn.ID, "day", day, "status", p.Status)
	return &p, nil
}

// --------------------------------------------------------------------------
// Completion
// --------------------------------------------------------------------------

// Complete transitions a ping from pending to completed. In-person
// completions require a location fix within the accepted accuracy. A
// completion landing after the deadline still succeeds; lateness stays a
// derived view. Completing an already-missed ping fails with ErrPingExpired.
func (e *Engine) Complete(ctx context.Context, pingID string, method pruuf.CompletionMethod, coords *pruuf.Coordinates) (pruuf.Ping, error) {
	if method != pruuf.MethodTap && method != pruuf.MethodInPerson {
		return pruuf.Ping{}, fmt.Errorf("%w: completion method %q", pruuf.ErrInvalidConfiguration, method)
	}

	p, err := e.store.PingByID(ctx, pingID)
	if err != nil {
		return pruuf.Ping{}, err
	}

	if method == pruuf.MethodInPerson {
		if coords == nil || !e.location.VerifyAccuracy(*coords) {
			return pruuf.Ping{}, pruuf.ErrInsufficientLocationAccuracy
		}
	}

	now := e.clock.Now()
	updated, err := e.store.UpdatePingStatus(ctx, pingID, pruuf.PingPending, pruuf.PingCompleted, pruuf.PingUpdate{
		CompletedAt: &now,
		Method:      method,
	})
	if err != nil {
		return pruuf.Ping{}, err
	}
	if !updated {
		return pruuf.Ping{}, e.transitionError(ctx, pingID)
	}

	p.Status = pruuf.PingCompleted
	p.CompletedAt = &now
	p.Method = method
	late := now.After(p.DeadlineAt)

	e.events.PingCompleted(ctx, p, late)
	e.logger.Info("Ping completed",
		"ping_id", p.ID, "method", method, "late", late)
	return p, nil
}

// CompleteAll completes every currently-pending ping for a sender across all
// connections. Each ping transitions independently; pings lost to a
// concurrent sweep are counted as skipped rather than failing the batch.
func (e *Engine) CompleteAll(ctx context.Context, senderID string) (BulkResult, error) {
	pending, err := e.store.PendingBySender(ctx, senderID)
	if err != nil {
		return BulkResult{}, err
	}

	var result BulkResult
	for _, p := range pending {
		now := e.clock.Now()
		updated, err := e.store.UpdatePingStatus(ctx, p.ID, pruuf.PingPending, pruuf.PingCompleted, pruuf.PingUpdate{
			CompletedAt: &now,
			Method:      pruuf.MethodTap,
		})
		if err != nil {
			return result, err
		}
		if !updated {
			result.Skipped++
			continue
		}

		p.Status = pruuf.PingCompleted
		p.CompletedAt = &now
		p.Method = pruuf.MethodTap
		late := now.After(p.DeadlineAt)

		result.Completed++
		if late {
			result.Late++
		} else {
			result.OnTime++
		}
		e.events.PingCompleted(ctx, p, late)
	}

	e.logger.Info("Bulk completion",
		"sender_id", senderID, "completed", result.Completed,
		"on_time", result.OnTime, "late", result.Late, "skipped", result.Skipped)
	return result, nil
}

// transitionError maps a failed conditional update to the right sentinel by
// re-reading the row's current state.
func (e *Engine) transitionError(ctx context.Context, pingID string) error {
	p, err := e.store.PingByID(ctx, pingID)
	if err != nil {
		return err
	}
	if p.Status == pruuf.PingMissed {
		return pruuf.ErrPingExpired
	}
	return fmt.Errorf("%w: ping is %s", pruuf.ErrInvalidTransition, p.Status)
}

// --------------------------------------------------------------------------
// Missed sweep
// --------------------------------------------------------------------------

// SweepMissed transitions expired pending pings to missed. This is the only
// path into the missed state. A completion that lands before the sweep
// observes the row wins; the conditional update simply no-ops here.
func (e *Engine) SweepMissed(ctx context.Context) (int, error) {
	now := e.clock.Now()
	expired, err := e.store.ExpiredPending(ctx, now, sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("query expired pings: %w", err)
	}

	missed := 0
	for _, p := range expired {
		updated, err := e.store.UpdatePingStatus(ctx, p.ID, pruuf.PingPending, pruuf.PingMissed, pruuf.PingUpdate{})
		if err != nil {
			return missed, err
		}
		if !updated {
			continue
		}
		p.Status = pruuf.PingMissed
		missed++
		e.events.PingMissed(ctx, p)
	}

	if missed > 0 {
		e.logger.Info("Missed sweep", "transitioned", missed, "scanned", len(expired))
	}
	return missed, nil
}

// --------------------------------------------------------------------------
// Break interaction
// --------------------------------------------------------------------------

// MarkTodayOnBreak converts the sender's pending pings for today to
// on_break. Called by the break manager when a break starts immediately.
// Idempotent: already-converted pings no-op on the conditional update.
func (e *Engine) MarkTodayOnBreak(ctx context.Context, senderID string) (int, error) {
	loc, err := e.senderLocation(ctx, senderID)
	if err != nil {
		return 0, err
	}
	today := pruuf.DateOf(e.clock.Now(), loc)

	pings, err := e.store.PingsOnDay(ctx, senderID, today)
	if err != nil {
		return 0, err
	}

	marked := 0
	for _, p := range pings {
		if p.Status != pruuf.PingPending {
			continue
		}
		updated, err := e.store.UpdatePingStatus(ctx, p.ID, pruuf.PingPending, pruuf.PingOnBreak, pruuf.PingUpdate{
			Method: pruuf.MethodAutoBreak,
		})
		if err != nil {
			return marked, err
		}
		if !updated {
			continue
		}
		p.Status = pruuf.PingOnBreak
		p.Method = pruuf.MethodAutoBreak
		marked++
		e.events.PingOnBreak(ctx, p)
	}
	return marked, nil
}

// RevertFutureOnBreak restores the obligation for a sender's on_break pings
// scheduled from today forward, after a break is canceled or ended early.
// Past break days stay on_break; a ping whose deadline has already passed
// cannot be meaningfully restored and is left alone. Idempotent.
func (e *Engine) RevertFutureOnBreak(ctx context.Context, senderID string) (int, error) {
	loc, err := e.senderLocation(ctx, senderID)
	if err != nil {
		return 0, err
	}
	now := e.clock.Now()
	startOfToday := pruuf.DateOf(now, loc).StartOfDay(loc)

	pings, err := e.store.OnBreakFrom(ctx, senderID, startOfToday)
	if err != nil {
		return 0, err
	}

	reverted := 0
	for _, p := range pings {
		if p.DeadlineAt.Before(now) {
			continue
		}
		updated, err := e.store.UpdatePingStatus(ctx, p.ID, pruuf.PingOnBreak, pruuf.PingPending, pruuf.PingUpdate{
			ClearMethod: true,
		})
		if err != nil {
			return reverted, err
		}
		if !updated {
			continue
		}
		p.Status = pruuf.PingPending
		p.Method = ""
		p.CompletedAt = nil
		reverted++
		e.events.PingReverted(ctx, p)
	}

	if reverted > 0 {
		e.logger.Info("Reverted on-break pings", "sender_id", senderID, "count", reverted)
	}
	return reverted, nil
}

func (e *Engine) senderLocation(ctx context.Context, senderID string) (*time.Location, error) {
	tz, err := e.zones.CurrentTimezone(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("resolve timezone: %w", err)
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", pruuf.ErrInvalidConfiguration, tz)
	}
	return loc, nil
}
