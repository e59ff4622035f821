package policy

import (
	"sync"

	"github.com/jameskyle/pyretic/pkg/network"
	"github.com/jameskyle/pyretic/pkg/packet"
)

// RecursePolicy is a self-referential policy node: its inner policy is set
// after construction so the tree can contain a cycle (§9: "RecursePolicy
// nodes self-reference"). The tracker breaks cycles over these nodes using
// an identity set keyed by *RecursePolicy pointer, not structural equality.
type RecursePolicy struct {
	mu    sync.Mutex
	inner Policy
}

// NewRecursePolicy returns an empty RecursePolicy; call SetInner once the
// cyclic structure it closes over has been built.
func NewRecursePolicy() *RecursePolicy {
	return &RecursePolicy{}
}

// SetInner sets the policy this node recurses into.
func (r *RecursePolicy) SetInner(p Policy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inner = p
}

// Inner returns the policy this node currently recurses into.
func (r *RecursePolicy) Inner() Policy {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inner
}

func (r *RecursePolicy) Eval(pkt packet.Packet) []packet.Packet {
	return r.Inner().Eval(pkt)
}

func (r *RecursePolicy) TrackEval(pkt packet.Packet, trace *Trace) []packet.Packet {
	trace.Record(r)
	return r.Inner().TrackEval(pkt, trace)
}

func (r *RecursePolicy) Compile() Classifier {
	return r.Inner().Compile()
}

func (r *RecursePolicy) SetNetwork(snap *network.Topology) {
	r.Inner().SetNetwork(snap)
}

func (r *RecursePolicy) Kind() Kind { return KindRecurse }

// DerivedPolicy is computed from another policy (its "derived-from") and
// delegates every operation to it. It exists as a distinct node kind so the
// tracker can recurse into the source policy without conflating the two
// (§4.3: "DerivedPolicy: recurse into the derived-from policy").
type DerivedPolicy struct {
	From Policy
}

// NewDerivedPolicy wraps from.
func NewDerivedPolicy(from Policy) *DerivedPolicy {
	return &DerivedPolicy{From: from}
}

func (d *DerivedPolicy) Eval(pkt packet.Packet) []packet.Packet {
	return d.From.Eval(pkt)
}

func (d *DerivedPolicy) TrackEval(pkt packet.Packet, trace *Trace) []packet.Packet {
	trace.Record(d)
	return d.From.TrackEval(pkt, trace)
}

func (d *DerivedPolicy) Compile() Classifier {
	return d.From.Compile()
}

func (d *DerivedPolicy) SetNetwork(snap *network.Topology) {
	d.From.SetNetwork(snap)
}

func (d *DerivedPolicy) Kind() Kind { return KindDerived }
