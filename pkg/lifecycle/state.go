// Package lifecycle runs an access service process: start hooks, an
// HTTP server, health reporting, and graceful shutdown on signal.
//
// A service moves through
//
//	Unknown → Starting → Running → Stopping → Stopped
//
// and into Failed when a hook errors. Only a Running service with every
// registered check passing reports healthy, which is what /healthz
// serves.
package lifecycle

import "slices"

// State is a service lifecycle state.
type State string

const (
	StateUnknown  State = "unknown"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
	StateFailed   State = "failed"
)

// String returns the string representation of the state.
func (s State) String() string { return string(s) }

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}

// IsTerminal reports whether s is Stopped or Failed.
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateFailed
}

// validTransitions is the transition matrix:
//
//	Unknown  → Starting, Failed
//	Starting → Running, Stopping, Failed
//	Running  → Stopping, Failed
//	Stopping → Stopped, Failed
//	Stopped  → (none)
//	Failed   → Stopping
//
// A failed service may still be stopped so its stop hooks release what
// the start hooks acquired.
var validTransitions = map[State][]State{
	StateUnknown:  {StateStarting, StateFailed},
	StateStarting: {StateRunning, StateStopping, StateFailed},
	StateRunning:  {StateStopping, StateFailed},
	StateStopping: {StateStopped, StateFailed},
	StateStopped:  {},
	StateFailed:   {StateStopping},
}

// ValidTransition reports whether from may move to to.
func ValidTransition(from, to State) bool {
	return slices.Contains(validTransitions[from], to)
}
