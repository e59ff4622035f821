// Package rerr provides the runtime's common error types, mirroring the
// sentinel-error-plus-struct shape used throughout the codebase this
// runtime was adapted from.
package rerr

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrGenerationStale describes a pipeline job whose generation no longer
	// matches the coordinator's current generation. Pipeline.Run does not
	// return it: a stale job returns nil.
	ErrGenerationStale = errors.New("generation advanced, job abandoned")

	// ErrUnknownExtendedValueCode is the §7 invariant violation: decode was
	// asked for a (vid,pcp) pair the codec never issued.
	ErrUnknownExtendedValueCode = errors.New("vlan code was not allocated by this codec")

	// ErrExtendedValueOverflow is returned when the codec has issued every
	// code in the 15-bit space.
	ErrExtendedValueOverflow = errors.New("extended-value code space exhausted")

	// ErrUnknownPredicateKind is the §7 invariant violation raised by
	// install_rule when a match is neither true, false, nor a field match.
	ErrUnknownPredicateKind = errors.New("unrecognized predicate kind")

	// ErrSwitchNotFound indicates an operation referenced a switch absent
	// from the current topology.
	ErrSwitchNotFound = errors.New("switch not found in topology")

	// ErrLinkPortUnknown indicates a link update referenced a port that
	// has not yet joined the topology.
	ErrLinkPortUnknown = errors.New("port not yet present in topology")

	// ErrInvalidMode indicates a runtime configuration named a mode other
	// than interpreted, reactive0, or proactive0.
	ErrInvalidMode = errors.New("invalid runtime mode")
)

// Invariant wraps a fatal invariant violation (§7): the caller should abort
// the current job/goroutine with a diagnostic rather than attempt recovery.
type Invariant struct {
	Detail string
	Cause  error
}

func (e *Invariant) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invariant violation: %s: %v", e.Detail, e.Cause)
	}
	return fmt.Sprintf("invariant violation: %s", e.Detail)
}

func (e *Invariant) Unwrap() error { return e.Cause }

// NewInvariant builds an Invariant error.
func NewInvariant(detail string, cause error) *Invariant {
	return &Invariant{Detail: detail, Cause: cause}
}

// PipelineError carries the switch and stage a classifier pipeline job
// failed at so the caller can log structured context before moving on to
// the next switch (§7 "Backend I/O error — logged; pipeline continues").
type PipelineError struct {
	Switch string
	Stage  string
	Cause  error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline: switch %s: %s: %v", e.Switch, e.Stage, e.Cause)
}

func (e *PipelineError) Unwrap() error { return e.Cause }

// NewPipelineError builds a PipelineError.
func NewPipelineError(sw, stage string, cause error) *PipelineError {
	return &PipelineError{Switch: sw, Stage: stage, Cause: cause}
}

// ValidationBuilder accumulates configuration-validation failures so callers
// can report every problem at once instead of failing on the first.
type ValidationBuilder struct {
	errors []string
}

// Add appends message if condition is false.
func (v *ValidationBuilder) Add(condition bool, message string) *ValidationBuilder {
	if !condition {
		v.errors = append(v.errors, message)
	}
	return v
}

// HasErrors reports whether any failures were recorded.
func (v *ValidationBuilder) HasErrors() bool {
	return len(v.errors) > 0
}

// Build returns a combined error, or nil if no failures were recorded.
func (v *ValidationBuilder) Build() error {
	if len(v.errors) == 0 {
		return nil
	}
	msg := "invalid configuration:"
	for _, e := range v.errors {
		msg += "\n  - " + e
	}
	return errors.New(msg)
}
