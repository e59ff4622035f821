package network

import "github.com/jameskyle/pyretic/pkg/rlog"

// UpdateNotifier is the runtime coordinator's side of the handshake: every
// handler below calls UpdateNetwork at most once. HandlePortPart (unknown
// switch), HandlePortMod (unknown port) and HandleLinkUpdate (unknown port,
// or no change to the edge set) return without calling it.
type UpdateNotifier interface {
	UpdateNetwork()
}

// DiscoveryInjector sends a probe packet out a port to discover its peer,
// satisfying the backend's inject_discovery_packet call from §6.
type DiscoveryInjector interface {
	InjectDiscoveryPacket(sw SwitchID, port uint32) error
}

// ConcreteNetwork wraps a Topology and turns switch/port/link events into
// graph mutations plus a single notification to the runtime coordinator,
// per §4.6.
type ConcreteNetwork struct {
	Topo     *Topology
	notifier UpdateNotifier
	disco    DiscoveryInjector
}

// NewConcreteNetwork builds a ConcreteNetwork over a fresh topology.
func NewConcreteNetwork(notifier UpdateNotifier, disco DiscoveryInjector) *ConcreteNetwork {
	return &ConcreteNetwork{
		Topo:     NewTopology(),
		notifier: notifier,
		disco:    disco,
	}
}

// HandleSwitchJoin adds sw with an empty port table.
func (n *ConcreteNetwork) HandleSwitchJoin(sw SwitchID) {
	n.Topo.addSwitch(sw)
	rlog.WithField("switch", sw).Debug("switch joined")
	n.notifier.UpdateNetwork()
}

// HandleSwitchPart removes every link touching sw's ports, then the switch
// itself.
func (n *ConcreteNetwork) HandleSwitchPart(sw SwitchID) {
	for _, port := range n.Topo.Ports(sw) {
		n.removeAssociatedLink(Location{Switch: sw, Port: port})
	}
	n.Topo.removeSwitch(sw)
	rlog.WithField("switch", sw).Debug("switch departed")
	n.notifier.UpdateNetwork()
}

// HandlePortJoin adds a port and, if it is possibly up, injects a discovery
// probe to find its peer.
func (n *ConcreteNetwork) HandlePortJoin(sw SwitchID, port uint32, config, status uint32) {
	n.Topo.addPort(sw, port, config, status)
	p, ok := n.Topo.GetPort(sw, port)
	if ok && p.PossiblyUp() {
		n.probe(sw, port)
	}
	n.notifier.UpdateNetwork()
}

// HandlePortPart removes the port's associated link and then the port
// entry itself. A part event for a switch that has already left is
// tolerated silently (§7 "already-removed state").
func (n *ConcreteNetwork) HandlePortPart(sw SwitchID, port uint32) {
	if !n.Topo.HasSwitch(sw) {
		return
	}
	n.removeAssociatedLink(Location{Switch: sw, Port: port})
	n.Topo.removePort(sw, port)
	n.notifier.UpdateNetwork()
}

// HandlePortMod compares the port's previous and new (config,status) and
// treats an up->down transition on either field as a link-down event, and
// a down->up transition as cause to re-probe for a peer.
func (n *ConcreteNetwork) HandlePortMod(sw SwitchID, port uint32, newConfig, newStatus uint32) {
	prevConfig, prevStatus, ok := n.Topo.setPortState(sw, port, newConfig, newStatus)
	if !ok {
		return
	}

	wentDown := (prevConfig&ConfigDown == 0 && newConfig&ConfigDown != 0) ||
		(prevStatus&StatusLinkDown == 0 && newStatus&StatusLinkDown != 0)
	wentUp := (prevConfig&ConfigDown != 0 && newConfig&ConfigDown == 0) ||
		(prevStatus&StatusLinkDown != 0 && newStatus&StatusLinkDown == 0)

	if wentDown {
		n.removeAssociatedLink(Location{Switch: sw, Port: port})
	}
	if wentUp {
		if p, ok := n.Topo.GetPort(sw, port); ok && p.PossiblyUp() {
			n.probe(sw, port)
		}
	}
	n.notifier.UpdateNetwork()
}

// HandleLinkUpdate reconciles a reported (s1,p1)-(s2,p2) link against the
// current edge set, calling UpdateNetwork only when the edge set actually
// changed.
func (n *ConcreteNetwork) HandleLinkUpdate(s1 SwitchID, p1 uint32, s2 SwitchID, p2 uint32) {
	pa, ok1 := n.Topo.GetPort(s1, p1)
	pb, ok2 := n.Topo.GetPort(s2, p2)
	if !ok1 || !ok2 {
		return
	}

	if n.Topo.hasEdge(s1, p1, s2, p2) && pa.PossiblyUp() && pb.PossiblyUp() {
		return
	}

	_, linked1 := n.Topo.edgeAt(s1, p1)
	_, linked2 := n.Topo.edgeAt(s2, p2)
	n.removeAssociatedLink(Location{Switch: s1, Port: p1})
	n.removeAssociatedLink(Location{Switch: s2, Port: p2})

	if !pa.PossiblyUp() || !pb.PossiblyUp() {
		if linked1 || linked2 {
			n.notifier.UpdateNetwork()
		}
		return
	}

	n.Topo.link(s1, p1, s2, p2)
	n.notifier.UpdateNetwork()
}

// removeAssociatedLink removes the edge between loc and whatever it was
// linked to, clearing LinkedTo on both endpoints. Tolerates an
// already-unlinked port.
func (n *ConcreteNetwork) removeAssociatedLink(loc Location) {
	peer, ok := n.Topo.edgeAt(loc.Switch, loc.Port)
	if !ok {
		return
	}
	n.Topo.unlink(loc.Switch, loc.Port, peer.Switch, peer.Port)
}

func (n *ConcreteNetwork) probe(sw SwitchID, port uint32) {
	if n.disco == nil {
		return
	}
	if err := n.disco.InjectDiscoveryPacket(sw, port); err != nil {
		rlog.WithField("switch", sw).WithField("port", port).WithField("error", err).
			Warn("discovery probe failed")
	}
}
