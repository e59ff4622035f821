package runtime

import (
	"github.com/jameskyle/pyretic/pkg/backend"
	"github.com/jameskyle/pyretic/pkg/network"
	"github.com/jameskyle/pyretic/pkg/packet"
	"github.com/jameskyle/pyretic/pkg/policy"
	"github.com/jameskyle/pyretic/pkg/rlog"
)

// reactivePriority is the priority reactive-0 installs synthesized rules
// at. It deliberately collides with the proactive pipeline's reset
// priority (classifier.resetPriority, 32768): the two schemes are meant to
// never run concurrently, and Coordinator enforces that by construction —
// only one of reactive0/proactive0 is ever the active mode (§9 second
// open question).
const reactivePriority = 0

// reactiveTiers is the descending cascade of field combinations §4.5.2
// describes: the synthesizer tries each tier in order and installs a match
// on the first whose fields are all present on the packet-in. The named
// steps ("full match", "drop vlan", "drop tos", ...) are encoded as
// concrete field lists here, most specific first.
var reactiveTiers = [][]string{
	append([]string{}, packet.MatchableFields...), // full 13-field match
	without(packet.MatchableFields, packet.HeaderVlanID, packet.HeaderVlanPCP),                                                       // drop vlan
	without(packet.MatchableFields, packet.HeaderVlanID, packet.HeaderVlanPCP, packet.HeaderTOS),                                     // drop tos
	without(packet.MatchableFields, packet.HeaderVlanID, packet.HeaderVlanPCP, packet.HeaderTOS, packet.HeaderSrcPort, packet.HeaderDstPort), // drop srcport/dstport
	{packet.HeaderSwitch, packet.HeaderInPort, packet.HeaderSrcMAC, packet.HeaderDstMAC, packet.HeaderEthType, packet.HeaderProtocol}, // drop srcip/dstip
	{packet.HeaderSwitch, packet.HeaderInPort, packet.HeaderSrcMAC, packet.HeaderDstMAC, packet.HeaderEthType, packet.HeaderVlanID, packet.HeaderVlanPCP}, // minimal ethernet+vlan
	{packet.HeaderSwitch, packet.HeaderInPort, packet.HeaderSrcMAC, packet.HeaderDstMAC, packet.HeaderEthType}, // minimal ethernet
	{packet.HeaderSwitch, packet.HeaderInPort, packet.HeaderVlanID, packet.HeaderVlanPCP},                      // vlan-only
}

func without(fields []string, drop ...string) []string {
	skip := make(map[string]struct{}, len(drop))
	for _, d := range drop {
		skip[d] = struct{}{}
	}
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := skip[f]; ok {
			continue
		}
		out = append(out, f)
	}
	return out
}

// matchOnAllFieldsPred implements §4.5.2's cascade as explicit presence
// checks against the concrete packet's field set, replacing the original's
// exception-driven control flow (§9 "catch-all exception swallowing").
// Returns the chosen field list and true, or (nil, false) if no tier's
// fields are all present — the caller falls back to the universal-false
// predicate.
func matchOnAllFieldsPred(concrete packet.ConcretePacket) ([]string, bool) {
	for _, tier := range reactiveTiers {
		if allPresent(concrete, tier) {
			return tier, true
		}
	}
	return nil, false
}

func allPresent(concrete packet.ConcretePacket, fields []string) bool {
	for _, f := range fields {
		if _, ok := concrete[f]; !ok {
			return false
		}
	}
	return true
}

// synthesizeReactiveRule implements §4.5.2: a predicate over the maximal
// supported field subset, and one modify action per output packet diffing
// it against the input. An empty output set installs a drop rule.
func synthesizeReactiveRule(tr *packet.Translator, inputUser packet.Packet, inputConcrete packet.ConcretePacket, outputs []packet.Packet, be backend.Backend) {
	sw, ok := switchFrom(inputConcrete)
	if !ok {
		rlog.Logger.Warn("reactive0: packet-in with no switch header, skipping synthesis")
		return
	}

	var match backend.Match
	if fields, ok := matchOnAllFieldsPred(inputConcrete); ok {
		match = make(backend.Match, len(fields)-1)
		for _, f := range fields {
			if f == packet.HeaderSwitch {
				continue
			}
			match[f] = inputConcrete[f]
		}
	} else {
		match = nil // universal-false: nothing is installed (see below)
	}

	var actions []policy.Action
	for _, out := range outputs {
		outConcrete, err := tr.ToConcrete(out)
		if err != nil {
			rlog.WithSwitch(sw).WithField("error", err).Warn("reactive0: failed to concretize output packet, skipping synthesis")
			return
		}
		diff := diffFields(inputConcrete, outConcrete, packet.ActionFields)
		if len(diff) > 0 {
			actions = append(actions, policy.Modify{Fields: diff})
		}
	}

	if match == nil {
		// No tier's fields were all present: the match is universal-false,
		// which install_rule discards, so this packet-in is left to the
		// controller path only. A nil backend.Match would be the wildcard,
		// not false, so nothing is sent to the backend here.
		rlog.WithSwitch(sw).Debug("reactive0: no match tier applicable, forwarding via controller only")
		return
	}

	if err := be.SendInstall(sw, match, reactivePriority, actions); err != nil {
		rlog.WithSwitch(sw).WithField("error", err).Warn("reactive0: install failed")
	}
}

func switchFrom(c packet.ConcretePacket) (network.SwitchID, bool) {
	v, ok := c[packet.HeaderSwitch]
	if !ok {
		return 0, false
	}
	switch sw := v.(type) {
	case network.SwitchID:
		return sw, true
	case uint64:
		return network.SwitchID(sw), true
	case int:
		return network.SwitchID(sw), true
	default:
		return 0, false
	}
}

// diffFields returns the subset of fields where b's value differs from
// a's (or is present in b but absent from a), restricted to fields.
func diffFields(a, b packet.ConcretePacket, fields []string) map[string]interface{} {
	out := make(map[string]interface{})
	for _, f := range fields {
		av, aok := a[f]
		bv, bok := b[f]
		if !bok {
			continue
		}
		if !aok || av != bv {
			out[f] = bv
		}
	}
	return out
}
