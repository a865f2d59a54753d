// Package location verifies device location fixes supplied with in-person
// completions. The engine only needs a yes/no on accuracy; reverse geocoding
// and proximity checks live with the caller.
package location

import "github.com/Wesquire/pruuf/internal/pruuf"

// Verifier validates a location fix for an in-person completion.
type Verifier interface {
	VerifyAccuracy(c pruuf.Coordinates) bool
}

// MaxAccuracy accepts fixes whose reported accuracy is within Meters.
type MaxAccuracy struct {
	Meters float64
}

func (v MaxAccuracy) VerifyAccuracy(c pruuf.Coordinates) bool {
	return c.AccuracyMeters > 0 && c.AccuracyMeters <= v.Meters
}
