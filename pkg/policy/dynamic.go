package policy

import (
	"sync"

	"github.com/jameskyle/pyretic/pkg/network"
	"github.com/jameskyle/pyretic/pkg/packet"
)

// ChangeCallback is invoked on every policy swap with whether the policy
// actually changed plus the old and new inner policies (§6).
type ChangeCallback func(changed bool, old, new Policy)

// DynamicPolicy is a policy node whose inner policy can be swapped at
// runtime, notifying an attached observer on every swap (§4.3, §6).
type DynamicPolicy struct {
	mu       sync.Mutex
	inner    Policy
	callback ChangeCallback
}

// NewDynamicPolicy wraps initial as the starting inner policy.
func NewDynamicPolicy(initial Policy) *DynamicPolicy {
	if initial == nil {
		initial = None()
	}
	return &DynamicPolicy{inner: initial}
}

// Attach registers cb to be invoked on every future SetPolicy call. Only
// one callback may be attached at a time; attaching replaces any prior
// callback (the tracker only ever attaches the runtime's single
// reconciliation callback).
func (d *DynamicPolicy) Attach(cb ChangeCallback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.callback = cb
}

// Detach removes the attached callback, if any.
func (d *DynamicPolicy) Detach() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.callback = nil
}

// Inner returns the current inner policy.
func (d *DynamicPolicy) Inner() Policy {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inner
}

// SetPolicy swaps the inner policy and, if a callback is attached, invokes
// it with (changed, old, new).
func (d *DynamicPolicy) SetPolicy(newPolicy Policy) {
	d.mu.Lock()
	old := d.inner
	d.inner = newPolicy
	cb := d.callback
	d.mu.Unlock()

	if cb != nil {
		cb(old != newPolicy, old, newPolicy)
	}
}

func (d *DynamicPolicy) Eval(pkt packet.Packet) []packet.Packet {
	return d.Inner().Eval(pkt)
}

func (d *DynamicPolicy) TrackEval(pkt packet.Packet, trace *Trace) []packet.Packet {
	trace.Record(d)
	return d.Inner().TrackEval(pkt, trace)
}

func (d *DynamicPolicy) Compile() Classifier {
	return d.Inner().Compile()
}

func (d *DynamicPolicy) SetNetwork(snap *network.Topology) {
	d.Inner().SetNetwork(snap)
}

func (d *DynamicPolicy) Kind() Kind { return KindDynamic }
