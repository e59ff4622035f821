package policy

import (
	"github.com/jameskyle/pyretic/pkg/network"
	"github.com/jameskyle/pyretic/pkg/packet"
)

// leafPolicy is a primitive policy with no sub-policies: a match, a
// drop/passthrough/modify, or a controller punt. It implements Policy
// directly rather than through a hierarchy (§9: "avoid deep class
// hierarchies; prefer a shallow variant set").
type leafPolicy struct {
	kind      Kind
	evalFn    func(pkt packet.Packet) []packet.Packet
	classifier Classifier
}

// Identity returns the policy that passes every packet through unchanged.
func Identity() Policy {
	return &leafPolicy{
		kind:   KindLeaf,
		evalFn: func(pkt packet.Packet) []packet.Packet { return []packet.Packet{pkt} },
		classifier: Classifier{Rules: []Rule{{
			Match:   True{},
			Actions: nil,
		}}},
	}
}

// None returns the policy that drops every packet.
func None() Policy {
	return &leafPolicy{
		kind:   KindLeaf,
		evalFn: func(packet.Packet) []packet.Packet { return nil },
		classifier: Classifier{Rules: []Rule{{
			Match:   True{},
			Actions: []Action{Drop{}},
		}}},
	}
}

// ToController returns the policy that punts every packet to the
// controller.
func ToController() Policy {
	return &leafPolicy{
		kind:   KindLeaf,
		evalFn: func(packet.Packet) []packet.Packet { return nil },
		classifier: Classifier{Rules: []Rule{{
			Match:   True{},
			Actions: []Action{Controller{}},
		}}},
	}
}

// Match returns the policy that passes through packets matching fields and
// drops everything else.
func Match(fields map[string]interface{}) Policy {
	fm := FieldMatch{Fields: fields}
	return &leafPolicy{
		kind: KindLeaf,
		evalFn: func(pkt packet.Packet) []packet.Packet {
			if matches(fm, pkt) {
				return []packet.Packet{pkt}
			}
			return nil
		},
		classifier: Classifier{Rules: []Rule{
			{Match: fm, Actions: nil},
			{Match: True{}, Actions: []Action{Drop{}}},
		}},
	}
}

// ModifyPolicy returns the policy that sets the given fields on every
// packet.
func ModifyPolicy(fields map[string]interface{}) Policy {
	return &leafPolicy{
		kind: KindLeaf,
		evalFn: func(pkt packet.Packet) []packet.Packet {
			out := pkt
			for k, v := range fields {
				out = out.With(k, v)
			}
			return []packet.Packet{out}
		},
		classifier: Classifier{Rules: []Rule{{
			Match:   True{},
			Actions: []Action{Modify{Fields: fields}},
		}}},
	}
}

// CountBucketPolicy returns the policy that registers matching traffic
// with bucket and otherwise passes packets through unchanged. Because its
// trace always contains a bucket node, the runtime never synthesizes a
// reactive-0 rule for packets that traverse it (§4.5.2).
func CountBucketPolicy(bucket *Bucket) Policy {
	return &leafPolicy{
		kind: KindBucket,
		evalFn: func(pkt packet.Packet) []packet.Packet {
			return []packet.Packet{pkt}
		},
		classifier: Classifier{Rules: []Rule{{
			Match:   True{},
			Actions: []Action{CountBucket{Bucket: bucket}},
		}}},
	}
}

func (l *leafPolicy) Eval(pkt packet.Packet) []packet.Packet {
	return l.evalFn(pkt)
}

func (l *leafPolicy) TrackEval(pkt packet.Packet, trace *Trace) []packet.Packet {
	trace.Record(l)
	return l.evalFn(pkt)
}

func (l *leafPolicy) Compile() Classifier { return l.classifier }

func (l *leafPolicy) SetNetwork(*network.Topology) {}

func (l *leafPolicy) Kind() Kind { return l.kind }

func matches(fm FieldMatch, pkt packet.Packet) bool {
	for k, want := range fm.Fields {
		got, ok := pkt.Get(k)
		if !ok || got != want {
			return false
		}
	}
	return true
}
