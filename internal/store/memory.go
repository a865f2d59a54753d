package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Wesquire/pruuf/internal/pruuf"
)

// Memory is an in-memory repository with the same semantics as Postgres,
// including the (connection, day) uniqueness guard and conditional status
// updates. It backs package tests and the ops CLI dry-run mode.
type Memory struct {
	mu          sync.RWMutex
	pings       map[string]pruuf.Ping
	breaks      map[string]pruuf.Break
	connections map[string]pruuf.Connection
	timezones   map[string]string
	prefs       map[string]pruuf.NotificationPrefs
	outbox      map[string]pruuf.Notification
	tokens      map[string][]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		pings:       make(map[string]pruuf.Ping),
		breaks:      make(map[string]pruuf.Break),
		connections: make(map[string]pruuf.Connection),
		timezones:   make(map[string]string),
		prefs:       make(map[string]pruuf.NotificationPrefs),
		outbox:      make(map[string]pruuf.Notification),
		tokens:      make(map[string][]string),
	}
}

// --------------------------------------------------------------------------
// Seeding helpers
// --------------------------------------------------------------------------

// AddConnection registers a connection.
func (m *Memory) AddConnection(c pruuf.Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[c.ID] = c
}

// SetTimezone records a sender's current zone.
func (m *Memory) SetTimezone(senderID, tz string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timezones[senderID] = tz
}

// SetPrefs records a user's notification preferences.
func (m *Memory) SetPrefs(userID string, p pruuf.NotificationPrefs) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs[userID] = p
}

// PutPing stores a ping directly, bypassing uniqueness (history fixtures).
func (m *Memory) PutPing(p pruuf.Ping) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pings[p.ID] = p
}

// Outbox returns a snapshot of all notification rows, ordered by fire time.
func (m *Memory) Outbox() []pruuf.Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]pruuf.Notification, 0, len(m.outbox))
	for _, n := range m.outbox {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FireAt.Before(out[j].FireAt) })
	return out
}

// --------------------------------------------------------------------------
// Pings
// --------------------------------------------------------------------------

func (m *Memory) CreatePing(_ context.Context, p pruuf.Ping) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.pings {
		if existing.ConnectionID == p.ConnectionID && existing.Day == p.Day {
			return pruuf.ErrPingExists
		}
	}
	m.pings[p.ID] = p
	return nil
}

func (m *Memory) PingByID(_ context.Context, id string) (pruuf.Ping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pings[id]
	if !ok {
		return pruuf.Ping{}, pruuf.ErrPingNotFound
	}
	return p, nil
}

func (m *Memory) PingByConnectionDay(_ context.Context, connectionID string, day pruuf.Date) (pruuf.Ping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.pings {
		if p.ConnectionID == connectionID && p.Day == day {
			return p, nil
		}
	}
	return pruuf.Ping{}, pruuf.ErrPingNotFound
}

func (m *Memory) UpdatePingStatus(_ context.Context, id string, from, to pruuf.PingStatus, upd pruuf.PingUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pings[id]
	if !ok || p.Status != from {
		return false, nil
	}
	p.Status = to
	if upd.ClearMethod {
		p.CompletedAt = nil
		p.Method = ""
	} else {
		if upd.CompletedAt != nil {
			p.CompletedAt = upd.CompletedAt
		}
		if upd.Method != "" {
			p.Method = upd.Method
		}
	}
	m.pings[id] = p
	return true, nil
}

func (m *Memory) PendingBySender(_ context.Context, senderID string) ([]pruuf.Ping, error) {
	return m.selectPings(func(p pruuf.Ping) bool {
		return p.SenderID == senderID && p.Status == pruuf.PingPending
	}, false), nil
}

func (m *Memory) PingsOnDay(_ context.Context, senderID string, day pruuf.Date) ([]pruuf.Ping, error) {
	return m.selectPings(func(p pruuf.Ping) bool {
		return p.SenderID == senderID && p.Day == day
	}, false), nil
}

func (m *Memory) ExpiredPending(_ context.Context, now time.Time, limit int) ([]pruuf.Ping, error) {
	out := m.selectPings(func(p pruuf.Ping) bool {
		return p.Status == pruuf.PingPending && p.DeadlineAt.Before(now)
	}, false)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) OnBreakFrom(_ context.Context, senderID string, from time.Time) ([]pruuf.Ping, error) {
	return m.selectPings(func(p pruuf.Ping) bool {
		return p.SenderID == senderID && p.Status == pruuf.PingOnBreak && !p.ScheduledAt.Before(from)
	}, false), nil
}

func (m *Memory) PingsSince(_ context.Context, senderID, receiverID string, since time.Time) ([]pruuf.Ping, error) {
	return m.selectPings(func(p pruuf.Ping) bool {
		if p.SenderID != senderID || p.ScheduledAt.Before(since) {
			return false
		}
		return receiverID == "" || p.ReceiverID == receiverID
	}, true), nil
}

func (m *Memory) selectPings(match func(pruuf.Ping) bool, desc bool) []pruuf.Ping {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []pruuf.Ping
	for _, p := range m.pings {
		if match(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if desc {
			return out[i].ScheduledAt.After(out[j].ScheduledAt)
		}
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})
	return out
}

// --------------------------------------------------------------------------
// Breaks
// --------------------------------------------------------------------------

func (m *Memory) CreateBreak(_ context.Context, b pruuf.Break) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.breaks[b.ID] = b
	return nil
}

func (m *Memory) BreakByID(_ context.Context, id string) (pruuf.Break, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.breaks[id]
	if !ok {
		return pruuf.Break{}, pruuf.ErrBreakNotFound
	}
	return b, nil
}

func (m *Memory) UpdateBreakStatus(_ context.Context, id string, to pruuf.BreakStatus, endDate *pruuf.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.breaks[id]
	if !ok {
		return pruuf.ErrBreakNotFound
	}
	b.Status = to
	if endDate != nil {
		b.EndDate = *endDate
	}
	m.breaks[id] = b
	return nil
}

func (m *Memory) BreaksBySender(_ context.Context, senderID string, limit int) ([]pruuf.Break, error) {
	out := m.selectBreaks(func(b pruuf.Break) bool {
		return b.SenderID == senderID
	})
	// Newest first for listings.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) BlockingBreaks(_ context.Context, senderID string) ([]pruuf.Break, error) {
	return m.selectBreaks(func(b pruuf.Break) bool {
		return b.SenderID == senderID && b.Blocking()
	}), nil
}

func (m *Memory) SenderOnBreak(_ context.Context, senderID string, day pruuf.Date) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.breaks {
		if b.SenderID == senderID && b.Blocking() && b.Contains(day) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) BreaksToActivate(_ context.Context, today pruuf.Date) ([]pruuf.Break, error) {
	return m.selectBreaks(func(b pruuf.Break) bool {
		return b.Status == pruuf.BreakScheduled && !b.StartDate.After(today)
	}), nil
}

func (m *Memory) BreaksToComplete(_ context.Context, today pruuf.Date) ([]pruuf.Break, error) {
	return m.selectBreaks(func(b pruuf.Break) bool {
		return b.Blocking() && b.EndDate.Before(today)
	}), nil
}

func (m *Memory) selectBreaks(match func(pruuf.Break) bool) []pruuf.Break {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []pruuf.Break
	for _, b := range m.breaks {
		if match(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out
}

// --------------------------------------------------------------------------
// Connections
// --------------------------------------------------------------------------

func (m *Memory) ConnectionByID(_ context.Context, id string) (pruuf.Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.connections[id]
	if !ok {
		return pruuf.Connection{}, pruuf.ErrPingNotFound
	}
	return c, nil
}

func (m *Memory) ActiveConnections(_ context.Context) ([]pruuf.Connection, error) {
	return m.selectConnections(func(c pruuf.Connection) bool {
		return c.Status == pruuf.ConnectionActive
	}), nil
}

func (m *Memory) ActiveConnectionsBySender(_ context.Context, senderID string) ([]pruuf.Connection, error) {
	return m.selectConnections(func(c pruuf.Connection) bool {
		return c.SenderID == senderID && c.Status == pruuf.ConnectionActive
	}), nil
}

func (m *Memory) selectConnections(match func(pruuf.Connection) bool) []pruuf.Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []pruuf.Connection
	for _, c := range m.connections {
		if match(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// --------------------------------------------------------------------------
// Users / preferences
// --------------------------------------------------------------------------

func (m *Memory) CurrentTimezone(_ context.Context, senderID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if tz, ok := m.timezones[senderID]; ok {
		return tz, nil
	}
	return "UTC", nil
}

func (m *Memory) UserPrefs(_ context.Context, userID string) (pruuf.NotificationPrefs, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.prefs[userID]; ok {
		return p, nil
	}
	return pruuf.DefaultPrefs(), nil
}

func (m *Memory) DeviceTokens(_ context.Context, userID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tokens[userID], nil
}

// --------------------------------------------------------------------------
// Notification outbox
// --------------------------------------------------------------------------

func (m *Memory) EnqueueNotifications(_ context.Context, batch []pruuf.Notification) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range batch {
		if n.Status == "" {
			n.Status = pruuf.NotificationScheduled
		}
		m.outbox[n.ID] = n
	}
	return len(batch), nil
}

func (m *Memory) CancelPending(_ context.Context, pingID string, keep ...pruuf.Category) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var canceled int64
	for id, n := range m.outbox {
		if n.PingID != pingID || n.Status != pruuf.NotificationScheduled {
			continue
		}
		kept := false
		for _, c := range keep {
			if n.Category == c {
				kept = true
				break
			}
		}
		if kept {
			continue
		}
		n.Status = pruuf.NotificationCanceled
		m.outbox[id] = n
		canceled++
	}
	return canceled, nil
}

func (m *Memory) ClaimDue(_ context.Context, now time.Time, limit int) ([]pruuf.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var claimed []pruuf.Notification
	for id, n := range m.outbox {
		if n.Status != pruuf.NotificationScheduled || n.FireAt.After(now) {
			continue
		}
		n.Status = pruuf.NotificationSending
		m.outbox[id] = n
		claimed = append(claimed, n)
		if limit > 0 && len(claimed) == limit {
			break
		}
	}
	sort.Slice(claimed, func(i, j int) bool { return claimed[i].FireAt.Before(claimed[j].FireAt) })
	return claimed, nil
}

func (m *Memory) MarkNotificationSent(_ context.Context, id string) error {
	return m.markNotification(id, pruuf.NotificationSent, "")
}

func (m *Memory) MarkNotificationFailed(_ context.Context, id string, reason string) error {
	return m.markNotification(id, pruuf.NotificationFailed, reason)
}

func (m *Memory) markNotification(id string, status pruuf.NotificationStatus, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.outbox[id]
	if !ok {
		return nil
	}
	n.Status = status
	n.LastError = reason
	m.outbox[id] = n
	return nil
}

func (m *Memory) PurgeDelivered(_ context.Context, _ time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var purged int64
	for id, n := range m.outbox {
		switch n.Status {
		case pruuf.NotificationSent, pruuf.NotificationFailed, pruuf.NotificationCanceled:
			delete(m.outbox, id)
			purged++
		}
	}
	return purged, nil
}
