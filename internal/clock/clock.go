// Package clock abstracts "now" and the sender's current IANA timezone so
// the engine never reads ambient system state directly. Tests supply fixed
// implementations; production wiring uses the system clock and the
// store-backed zone lookup.
package clock

import (
	"context"
	"time"
)

// Clock resolves the current instant.
type Clock interface {
	Now() time.Time
}

// Zones resolves a sender's current IANA timezone. The zone is the one the
// sender's device last reported, so "9 AM" tracks wherever they are now.
type Zones interface {
	CurrentTimezone(ctx context.Context, senderID string) (string, error)
}

// System is the production clock.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// --------------------------------------------------------------------------
// Test fakes
// --------------------------------------------------------------------------

// Fixed is a clock pinned to one instant, advanced explicitly.
type Fixed struct {
	Instant time.Time
}

func (f *Fixed) Now() time.Time { return f.Instant }

// Advance moves the fixed clock forward.
func (f *Fixed) Advance(d time.Duration) { f.Instant = f.Instant.Add(d) }

// FixedZones maps sender IDs to zone names, with a fallback for unknown
// senders.
type FixedZones struct {
	BySender map[string]string
	Default  string
}

func (z *FixedZones) CurrentTimezone(_ context.Context, senderID string) (string, error) {
	if tz, ok := z.BySender[senderID]; ok {
		return tz, nil
	}
	if z.Default != "" {
		return z.Default, nil
	}
	return "UTC", nil
}
