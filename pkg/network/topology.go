// Package network implements the topology graph and the Concrete Network
// event handlers described in §3 and §4.6: an undirected multigraph of
// switches and the links discovered between their ports, kept consistent
// as switch/port/link events arrive from the backend.
package network

import "sync"

// SwitchID identifies a switch in the topology.
type SwitchID uint64

// Port state bits, modeled after the OpenFlow OFPPC_PORT_DOWN /
// OFPPS_LINK_DOWN flags the teacher's device layer treats the same way:
// a port is administratively or operationally down if either bit is set.
const (
	ConfigDown     uint32 = 1 << 0
	StatusLinkDown uint32 = 1 << 0
)

// Location identifies a (switch, port) pair.
type Location struct {
	Switch SwitchID
	Port   uint32
}

// Port holds a port's administrative config, operational status, and the
// Location it is currently linked to, if any.
type Port struct {
	Config   uint32
	Status   uint32
	LinkedTo *Location
}

// PossiblyUp reports whether neither Config nor Status indicates the port
// is administratively or operationally down (GLOSSARY: possibly_up).
func (p *Port) PossiblyUp() bool {
	return p.Config&ConfigDown == 0 && p.Status&StatusLinkDown == 0
}

// Node is a switch's port table.
type Node struct {
	Ports map[uint32]*Port
}

// edgeKey canonicalizes an undirected edge between two switches so (s1,s2)
// and (s2,s1) hash identically.
type edgeKey struct {
	A, B SwitchID
}

func newEdgeKey(s1, s2 SwitchID) edgeKey {
	if s1 <= s2 {
		return edgeKey{A: s1, B: s2}
	}
	return edgeKey{A: s2, B: s1}
}

// PortPair records which port on each endpoint of an edge carries the
// link, in the same order as the edgeKey's A/B switches.
type PortPair struct {
	PortA, PortB uint32
}

// Topology is the adjacency-map multigraph backing the Concrete Network.
// All mutation goes through its methods; callers outside this package only
// ever see it through ConcreteNetwork, which serializes access the way the
// single-threaded dispatcher in §5 relies on — but the RWMutex here is kept
// regardless, so tests and tooling can read topology state concurrently
// with the dispatcher.
type Topology struct {
	mu    sync.RWMutex
	nodes map[SwitchID]*Node
	edges map[edgeKey]PortPair
}

// NewTopology returns an empty topology.
func NewTopology() *Topology {
	return &Topology{
		nodes: make(map[SwitchID]*Node),
		edges: make(map[edgeKey]PortPair),
	}
}

// HasSwitch reports whether sw is currently present.
func (t *Topology) HasSwitch(sw SwitchID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.nodes[sw]
	return ok
}

// Switches returns every switch ID currently present.
func (t *Topology) Switches() []SwitchID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]SwitchID, 0, len(t.nodes))
	for sw := range t.nodes {
		out = append(out, sw)
	}
	return out
}

// GetPort returns a copy of the port state at (sw, port), if present.
func (t *Topology) GetPort(sw SwitchID, port uint32) (Port, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[sw]
	if !ok {
		return Port{}, false
	}
	p, ok := n.Ports[port]
	if !ok {
		return Port{}, false
	}
	return *p, true
}

// Ports returns the port numbers present on sw.
func (t *Topology) Ports(sw SwitchID) []uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[sw]
	if !ok {
		return nil
	}
	out := make([]uint32, 0, len(n.Ports))
	for p := range n.Ports {
		out = append(out, p)
	}
	return out
}

// Edges returns a snapshot of every edge currently recorded.
func (t *Topology) Edges() map[Location]Location {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[Location]Location, len(t.edges)*2)
	for k, pp := range t.edges {
		out[Location{k.A, pp.PortA}] = Location{k.B, pp.PortB}
		out[Location{k.B, pp.PortB}] = Location{k.A, pp.PortA}
	}
	return out
}

func (t *Topology) addSwitch(sw SwitchID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.nodes[sw]; ok {
		return
	}
	t.nodes[sw] = &Node{Ports: make(map[uint32]*Port)}
}

func (t *Topology) removeSwitch(sw SwitchID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.nodes, sw)
}

func (t *Topology) addPort(sw SwitchID, port uint32, config, status uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[sw]
	if !ok {
		return
	}
	n.Ports[port] = &Port{Config: config, Status: status}
}

func (t *Topology) removePort(sw SwitchID, port uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[sw]
	if !ok {
		return
	}
	delete(n.Ports, port)
}

func (t *Topology) portRef(sw SwitchID, port uint32) (*Port, bool) {
	n, ok := t.nodes[sw]
	if !ok {
		return nil, false
	}
	p, ok := n.Ports[port]
	return p, ok
}

// setPortState updates a port's config/status in place, returning the prior
// values so the caller can compute up/down transitions.
func (t *Topology) setPortState(sw SwitchID, port uint32, config, status uint32) (prevConfig, prevStatus uint32, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, found := t.portRef(sw, port)
	if !found {
		return 0, 0, false
	}
	prevConfig, prevStatus = p.Config, p.Status
	p.Config, p.Status = config, status
	return prevConfig, prevStatus, true
}

// edgeAt reports the edge recorded for (sw,port), if any, along with the
// peer Location.
func (t *Topology) edgeAt(sw SwitchID, port uint32) (Location, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[sw]
	if !ok {
		return Location{}, false
	}
	p, ok := n.Ports[port]
	if !ok || p.LinkedTo == nil {
		return Location{}, false
	}
	return *p.LinkedTo, true
}

// hasEdge reports whether an edge exists between (s1,p1) and (s2,p2)
// specifically (both port numbers must match the recorded pair).
func (t *Topology) hasEdge(s1 SwitchID, p1 uint32, s2 SwitchID, p2 uint32) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	key := newEdgeKey(s1, s2)
	pair, ok := t.edges[key]
	if !ok {
		return false
	}
	if key.A == s1 {
		return pair.PortA == p1 && pair.PortB == p2
	}
	return pair.PortA == p2 && pair.PortB == p1
}

// unlink removes the edge between s1 and s2 (if present) and clears
// LinkedTo on both endpoints, tolerating a missing edge or missing ports.
func (t *Topology) unlink(s1 SwitchID, p1 uint32, s2 SwitchID, p2 uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.edges, newEdgeKey(s1, s2))
	if p, ok := t.portRef(s1, p1); ok {
		p.LinkedTo = nil
	}
	if p, ok := t.portRef(s2, p2); ok {
		p.LinkedTo = nil
	}
}

// link records the edge between (s1,p1) and (s2,p2) and sets LinkedTo on
// both endpoints. Both ports must already exist.
func (t *Topology) link(s1 SwitchID, p1 uint32, s2 SwitchID, p2 uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.portRef(s1, p1)
	if !ok {
		return false
	}
	b, ok := t.portRef(s2, p2)
	if !ok {
		return false
	}
	key := newEdgeKey(s1, s2)
	if key.A == s1 {
		t.edges[key] = PortPair{PortA: p1, PortB: p2}
	} else {
		t.edges[key] = PortPair{PortA: p2, PortB: p1}
	}
	a.LinkedTo = &Location{Switch: s2, Port: p2}
	b.LinkedTo = &Location{Switch: s1, Port: p1}
	return true
}
