package policy

import (
	"github.com/jameskyle/pyretic/pkg/network"
	"github.com/jameskyle/pyretic/pkg/packet"
)

// CombineOp names how a CombinatorPolicy folds its children's results.
type CombineOp int

const (
	// Parallel unions the output of every sub-policy evaluated against the
	// same input packet.
	Parallel CombineOp = iota
	// Sequential feeds each sub-policy's output packets into the next.
	Sequential
)

// CombinatorPolicy composes a fixed list of sub-policies under one of the
// operators above (§4.3: "parallel, sequential, intersection, union,
// etc." collapsed here to the two operators that matter for evaluation and
// classifier composition).
type CombinatorPolicy struct {
	Op       CombineOp
	Children []Policy
}

// NewParallel builds a parallel composition of children.
func NewParallel(children ...Policy) *CombinatorPolicy {
	return &CombinatorPolicy{Op: Parallel, Children: children}
}

// NewSequential builds a sequential composition of children.
func NewSequential(children ...Policy) *CombinatorPolicy {
	return &CombinatorPolicy{Op: Sequential, Children: children}
}

func (c *CombinatorPolicy) Eval(pkt packet.Packet) []packet.Packet {
	switch c.Op {
	case Sequential:
		pkts := []packet.Packet{pkt}
		for _, child := range c.Children {
			var next []packet.Packet
			for _, p := range pkts {
				next = append(next, child.Eval(p)...)
			}
			pkts = next
		}
		return pkts
	default:
		var out []packet.Packet
		for _, child := range c.Children {
			out = append(out, child.Eval(pkt)...)
		}
		return out
	}
}

func (c *CombinatorPolicy) TrackEval(pkt packet.Packet, trace *Trace) []packet.Packet {
	trace.Record(c)
	switch c.Op {
	case Sequential:
		pkts := []packet.Packet{pkt}
		for _, child := range c.Children {
			var next []packet.Packet
			for _, p := range pkts {
				next = append(next, child.TrackEval(p, trace)...)
			}
			pkts = next
		}
		return pkts
	default:
		var out []packet.Packet
		for _, child := range c.Children {
			out = append(out, child.TrackEval(pkt, trace)...)
		}
		return out
	}
}

func (c *CombinatorPolicy) Compile() Classifier {
	var rules []Rule
	for _, child := range c.Children {
		rules = append(rules, child.Compile().Rules...)
	}
	return Classifier{Rules: rules}
}

func (c *CombinatorPolicy) SetNetwork(snap *network.Topology) {
	for _, child := range c.Children {
		child.SetNetwork(snap)
	}
}

func (c *CombinatorPolicy) Kind() Kind { return KindCombinator }
