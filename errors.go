package slava

import "errors"

// Sentinel errors surfaced at the public API boundary: small, comparable
// with errors.Is, no custom error type hierarchy.
var (
	// ErrSchedulerClosed is returned by Spawn once the scheduler has been
	// closed; workers already draining the queue are unaffected.
	ErrSchedulerClosed = errors.New("slava: scheduler closed")

	// ErrEmptyComputation is returned by Spawn when handed a nil Computation.
	ErrEmptyComputation = errors.New("slava: nil computation")
)
