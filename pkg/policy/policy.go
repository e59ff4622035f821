// Package policy models the policy tree the runtime evaluates packets
// against and compiles into a classifier, plus the dynamic-policy tracker
// that keeps change-callback attachments consistent as the tree mutates
// (§4.3, §6, §9).
package policy

import (
	"github.com/jameskyle/pyretic/pkg/network"
	"github.com/jameskyle/pyretic/pkg/packet"
)

// Classifier is an ordered sequence of rules; earlier rules take priority
// over later ones (§3).
type Classifier struct {
	Rules []Rule
}

// Rule is a single classifier entry: a match predicate plus an ordered
// action list.
type Rule struct {
	Match   Predicate
	Actions []Action
}

// Trace records which policy nodes participated in a track_eval call, so
// the runtime can decide whether the evaluation touched a query/bucket
// node (§4.5.2: "rules whose trace touches a query/bucket are not
// synthesized").
type Trace struct {
	visited []Policy
}

// Record appends p to the trace.
func (t *Trace) Record(p Policy) {
	t.visited = append(t.visited, p)
}

// ContainsKind reports whether any visited node's Kind() equals kind. This
// is the Go shape of the original's contains_class(C) trace predicate.
func (t *Trace) ContainsKind(kind Kind) bool {
	for _, p := range t.visited {
		if p.Kind() == kind {
			return true
		}
	}
	return false
}

// Kind tags a Policy's concrete type so a Trace can report which kinds of
// node an evaluation visited (ContainsKind). FindDynamic dispatches with a
// type switch instead.
type Kind int

const (
	KindLeaf Kind = iota
	KindDynamic
	KindCombinator
	KindRecurse
	KindDerived
	KindBucket
)

// Policy is the interface every policy node satisfies (§6).
type Policy interface {
	// Eval performs pure evaluation of pkt, returning the output packets.
	Eval(pkt packet.Packet) []packet.Packet
	// TrackEval evaluates pkt while recording which nodes participated.
	TrackEval(pkt packet.Packet, trace *Trace) []packet.Packet
	// Compile produces the full classifier for this policy subtree.
	Compile() Classifier
	// SetNetwork notifies the policy of a new topology snapshot.
	SetNetwork(snap *network.Topology)
	// Kind reports this node's concrete kind, for Trace.ContainsKind.
	Kind() Kind
}
