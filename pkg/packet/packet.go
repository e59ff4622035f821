// Package packet implements the two packet representations the runtime
// passes across the switch boundary: the wire-level ConcretePacket a switch
// emits in a packet-in, and the user-facing Packet a policy evaluates
// against, plus the Translator that converts between them (§4.2).
package packet

// ConcretePacket is the flat, switch-native header view: every value a
// packet-in carries, addressed by header name. Header values are the raw
// wire representations (integers, byte strings) a switch would use.
type ConcretePacket map[string]interface{}

// Clone returns a shallow copy, safe for a caller to mutate without
// affecting the original.
func (c ConcretePacket) Clone() ConcretePacket {
	cp := make(ConcretePacket, len(c))
	for k, v := range c {
		cp[k] = v
	}
	return cp
}

// Location headers identify where a packet entered or should leave the
// network. These never appear on a user Packet's extended-values round trip
// and are never touched by the extended-values codec.
const (
	HeaderSwitch  = "switch"
	HeaderInPort  = "inport"
	HeaderOutPort = "outport"
)

// Native headers are the L2-L4 fields the spec's classifier matches and
// sets directly. vlan_id/vlan_pcp are native on a ConcretePacket but are
// never present on a user Packet: the Translator consumes them to recover
// extended values and strips them before the policy ever sees the packet.
const (
	HeaderSrcMAC   = "srcmac"
	HeaderDstMAC   = "dstmac"
	HeaderEthType  = "ethtype"
	HeaderSrcIP    = "srcip"
	HeaderDstIP    = "dstip"
	HeaderProtocol = "protocol"
	HeaderSrcPort  = "srcport"
	HeaderDstPort  = "dstport"
	HeaderVlanID   = "vlan_id"
	HeaderVlanPCP  = "vlan_pcp"
)

// HeaderRaw carries the packet payload bytes, opaque to the policy layer.
const HeaderRaw = "raw"

// MatchableFields lists the headers a classifier match (or a reactive-0
// synthesized match) may constrain — the native set minus outport, which
// only ever appears as an action target (§3, §4.5.2's "13-field match").
var MatchableFields = []string{
	HeaderSwitch, HeaderInPort,
	HeaderSrcMAC, HeaderDstMAC, HeaderEthType,
	HeaderSrcIP, HeaderDstIP, HeaderProtocol, HeaderTOS,
	HeaderSrcPort, HeaderDstPort, HeaderVlanID, HeaderVlanPCP,
}

// HeaderTOS is the IP type-of-service field, native but not yet declared
// above alongside the other L3/L4 fields.
const HeaderTOS = "tos"

// ActionFields lists the headers a reactive-0 synthesized action may set:
// every native header plus outport, which is the forwarding target rather
// than a match field (§4.5.2).
var ActionFields = append(append([]string{}, MatchableFields...), HeaderOutPort)

// identityHeaders are the headers that determine a packet's identity for
// the purposes of extended-values memoization: two ConcretePackets that
// agree on all of these and on their vlan_id/vlan_pcp pair are the "same"
// packet for caching purposes (identityKey appends the vlan pair to these).
var identityHeaders = []string{
	HeaderSwitch, HeaderInPort,
	HeaderSrcMAC, HeaderDstMAC, HeaderEthType,
	HeaderSrcIP, HeaderDstIP, HeaderProtocol, HeaderSrcPort, HeaderDstPort,
}
