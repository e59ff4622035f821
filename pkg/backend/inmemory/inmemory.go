// Package inmemory implements an in-process fake switch fleet satisfying
// backend.Backend, used by unit tests and the pipeline's own test suite in
// place of a real OpenFlow transport.
package inmemory

import (
	"sync"

	"github.com/jameskyle/pyretic/pkg/backend"
	"github.com/jameskyle/pyretic/pkg/network"
	"github.com/jameskyle/pyretic/pkg/packet"
	"github.com/jameskyle/pyretic/pkg/policy"
)

// InstalledRule records one SendInstall call.
type InstalledRule struct {
	Switch   network.SwitchID
	Match    backend.Match
	Priority int
	Actions  []policy.Action
}

// Backend is a fake switch fleet: every call is recorded for assertions
// instead of being sent anywhere.
type Backend struct {
	mu sync.Mutex

	Rules        map[network.SwitchID][]InstalledRule
	Barriers     map[network.SwitchID]int
	Clears       map[network.SwitchID]int
	SentPackets  []packet.ConcretePacket
	DiscoveryLog []network.Location
}

// New returns an empty fake backend.
func New() *Backend {
	return &Backend{
		Rules:    make(map[network.SwitchID][]InstalledRule),
		Barriers: make(map[network.SwitchID]int),
		Clears:   make(map[network.SwitchID]int),
	}
}

func (b *Backend) SendInstall(sw network.SwitchID, match backend.Match, priority int, actions []policy.Action) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Rules[sw] = append(b.Rules[sw], InstalledRule{Switch: sw, Match: match, Priority: priority, Actions: actions})
	return nil
}

func (b *Backend) SendBarrier(sw network.SwitchID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Barriers[sw]++
	return nil
}

func (b *Backend) SendClear(sw network.SwitchID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Clears[sw]++
	b.Rules[sw] = nil
	return nil
}

func (b *Backend) SendPacket(pkt packet.ConcretePacket) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.SentPackets = append(b.SentPackets, pkt)
	return nil
}

func (b *Backend) InjectDiscoveryPacket(sw network.SwitchID, port uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.DiscoveryLog = append(b.DiscoveryLog, network.Location{Switch: sw, Port: port})
	return nil
}

// RulesFor returns a snapshot of the rules installed on sw, in install
// order.
func (b *Backend) RulesFor(sw network.SwitchID) []InstalledRule {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]InstalledRule, len(b.Rules[sw]))
	copy(out, b.Rules[sw])
	return out
}

// BarrierCount reports how many barriers have been sent to sw.
func (b *Backend) BarrierCount(sw network.SwitchID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Barriers[sw]
}

// ClearCount reports how many clear-all calls have been sent to sw.
func (b *Backend) ClearCount(sw network.SwitchID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Clears[sw]
}
