package dlep

import "github.com/jonboulle/clockwork"

// Clock is the time source injected into the Timer Subsystem and
// Transaction Queue (spec.md §1 lists "a clock" among the core's injected
// collaborators). It is exactly clockwork.Clock; the alias exists so this
// package's exported signatures don't force every caller to also import
// clockwork.
type Clock = clockwork.Clock

// NewRealClock returns the real wall-clock time source, for production
// wiring.
func NewRealClock() Clock {
	return clockwork.NewRealClock()
}
