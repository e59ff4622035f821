// Package backend declares the switch I/O interface the runtime consumes
// (§6) and provides two implementations: an in-memory fake fleet for tests
// and tooling, and a Redis-backed reference implementation that mirrors
// the flow table of every switch into a hash-of-hashes, the way the
// teacher's device layer mirrors SONiC's config_db into Redis.
package backend

import (
	"github.com/jameskyle/pyretic/pkg/network"
	"github.com/jameskyle/pyretic/pkg/packet"
	"github.com/jameskyle/pyretic/pkg/policy"
)

// Match is the concrete, already-translated form of a classifier rule's
// predicate that reaches the backend boundary: a field-name -> required
// -value map, or nil/empty for the wildcard match (§4.4 install_rule).
type Match map[string]interface{}

// Backend is every entry point the runtime needs from the switch I/O layer
// (§6). Implementations must be safe for concurrent use: the classifier
// pipeline calls it from a background worker while packet-in handling may
// call SendPacket concurrently from the dispatcher.
type Backend interface {
	// SendInstall installs a flow entry matching match at priority,
	// running actions when it fires.
	SendInstall(sw network.SwitchID, match Match, priority int, actions []policy.Action) error
	// SendBarrier requests a flush/sync point on sw.
	SendBarrier(sw network.SwitchID) error
	// SendClear removes every entry on sw.
	SendClear(sw network.SwitchID) error
	// SendPacket emits a packet from the controller.
	SendPacket(pkt packet.ConcretePacket) error
	// InjectDiscoveryPacket emits a probe packet out sw's port for
	// topology discovery.
	InjectDiscoveryPacket(sw network.SwitchID, port uint32) error
}
