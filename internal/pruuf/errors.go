package pruuf

import "errors"

// Validation errors are caller-fixable and never retried. Infrastructure
// errors from the store or clock collaborators are wrapped and surfaced
// unchanged; retry policy belongs to the caller.
var (
	ErrInvalidDateRange             = errors.New("invalid date range")
	ErrOverlappingBreak             = errors.New("overlapping break")
	ErrInvalidTransition            = errors.New("invalid ping transition")
	ErrPingExpired                  = errors.New("ping expired")
	ErrInsufficientLocationAccuracy = errors.New("insufficient location accuracy")
	ErrInvalidConfiguration         = errors.New("invalid configuration")

	ErrPingNotFound  = errors.New("ping not found")
	ErrBreakNotFound = errors.New("break not found")

	// ErrPingExists signals the (connection, day) uniqueness guard fired.
	// Generation treats it as the idempotent no-op path, never as a failure.
	ErrPingExists = errors.New("ping already exists for connection and day")
)

// Warning is a non-fatal signal returned alongside a successful result,
// never as an error.
type Warning string

// LongBreakWarning accompanies break creation when the range exceeds 365
// days. The break is still created.
const LongBreakWarning Warning = "break exceeds 365 days"
