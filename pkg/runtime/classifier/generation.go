// Package classifier implements the classifier installation pipeline
// (§4.4): the sequence of transformations that turns a compiled classifier
// into a concrete sequence of flow-mod installs, with priority assignment,
// drop/controller handling, switch specialization, and generation fencing
// against stale updates.
package classifier

import "sync/atomic"

// Generation is the runtime's monotonically increasing fencing counter
// (§3). Installation jobs capture the generation in effect when they were
// scheduled and self-cancel if the live counter has moved on by the time
// they run.
type Generation struct {
	v atomic.Uint64
}

// Advance increments the generation and returns the new value.
func (g *Generation) Advance() uint64 {
	return g.v.Add(1)
}

// Current returns the live generation value.
func (g *Generation) Current() uint64 {
	return g.v.Load()
}
