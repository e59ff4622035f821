package runtime

import (
	"testing"
	"time"

	"github.com/jameskyle/pyretic/pkg/backend/inmemory"
	"github.com/jameskyle/pyretic/pkg/extended"
	"github.com/jameskyle/pyretic/pkg/network"
	"github.com/jameskyle/pyretic/pkg/packet"
	"github.com/jameskyle/pyretic/pkg/policy"
)

func newCoordinator(t *testing.T, mode Mode, root policy.Policy) (*Coordinator, *inmemory.Backend) {
	t.Helper()
	be := inmemory.New()
	c := New(Config{
		Mode:       mode,
		Policy:     root,
		Backend:    be,
		Translator: packet.NewTranslator(extended.NewCodec()),
	})
	t.Cleanup(c.Stop)
	return c, be
}

func concretePacketIn(sw network.SwitchID, inPort uint32) packet.ConcretePacket {
	return packet.ConcretePacket{
		packet.HeaderSwitch:  sw,
		packet.HeaderInPort:  inPort,
		packet.HeaderSrcMAC:  "aa:aa:aa:aa:aa:aa",
		packet.HeaderDstMAC:  "bb:bb:bb:bb:bb:bb",
		packet.HeaderEthType: uint16(0x0800),
		packet.HeaderVlanID:  uint16(0),
		packet.HeaderVlanPCP: uint16(0),
	}
}

func TestReactiveSynthesisSkippedWhenTraceHasBucket(t *testing.T) {
	bucket := &policy.Bucket{Name: "b1"}
	root := policy.NewParallel(policy.Identity(), policy.CountBucketPolicy(bucket))
	c, be := newCoordinator(t, Reactive0, root)

	sw := network.SwitchID(1)
	c.HandlePacketIn(concretePacketIn(sw, 1))

	waitForCondition(t, func() bool { return len(be.SentPackets) > 0 })

	if got := len(be.RulesFor(sw)); got != 0 {
		t.Fatalf("expected no install_rule calls when trace touches a bucket, got %d", got)
	}
}

func TestReactiveSynthesisInstallsWhenNoBucket(t *testing.T) {
	root := policy.Identity()
	c, be := newCoordinator(t, Reactive0, root)

	sw := network.SwitchID(1)
	c.HandlePacketIn(concretePacketIn(sw, 1))

	waitForCondition(t, func() bool { return len(be.RulesFor(sw)) > 0 })

	rules := be.RulesFor(sw)
	if len(rules) != 1 {
		t.Fatalf("expected exactly one synthesized rule, got %d", len(rules))
	}
	if rules[0].Priority != reactivePriority {
		t.Fatalf("priority = %d, want %d", rules[0].Priority, reactivePriority)
	}
}

func TestPolicyChangeCoalescedDuringUpdateNetwork(t *testing.T) {
	root := policy.NewDynamicPolicy(policy.Identity())
	c, be := newCoordinator(t, Proactive0, root)

	// Simulate an UpdateNetwork in progress by holding the update lock and
	// setting the in-update flag by hand, then swap the dynamic policy's
	// inner value: a policy change fired while in_update_network is true
	// must trigger no recompile of its own.
	c.updateLock.Lock()
	c.inUpdateNetwork.Store(true)
	c.mu.RLock()
	genBefore := c.generation.Current()
	c.mu.RUnlock()

	root.SetPolicy(policy.None())
	waitForCondition(t, func() bool { return true }) // returns at once; the generation check below is synchronous

	c.mu.RLock()
	genAfter := c.generation.Current()
	c.mu.RUnlock()
	if genAfter != genBefore {
		t.Fatalf("policy change during UpdateNetwork advanced the generation (before=%d after=%d), want coalesced no-op", genBefore, genAfter)
	}

	c.inUpdateNetwork.Store(false)
	c.updateLock.Unlock()

	_ = be // the clear-all pipeline from UpdateNetwork, if any, is irrelevant here
}

func TestPolicyChangeRecompilesWhenNotCoalesced(t *testing.T) {
	dyn := policy.NewDynamicPolicy(policy.Identity())
	c, be := newCoordinator(t, Proactive0, dyn)

	sw := network.SwitchID(7)
	c.net.HandleSwitchJoin(sw)
	waitForCondition(t, func() bool { return be.BarrierCount(sw) > 0 })

	before := be.ClearCount(sw)
	dyn.SetPolicy(policy.None())

	waitForCondition(t, func() bool { return be.ClearCount(sw) > before })
}

func TestHandlePacketInInterpretedModeEvaluatesDirectly(t *testing.T) {
	c, be := newCoordinator(t, Interpreted, policy.Identity())
	c.HandlePacketIn(concretePacketIn(network.SwitchID(1), 1))
	waitForCondition(t, func() bool { return len(be.SentPackets) > 0 })
	if len(be.RulesFor(network.SwitchID(1))) != 0 {
		t.Fatal("interpreted mode must never install rules")
	}
}

func TestHandlePacketInNilPolicyIsNoop(t *testing.T) {
	c, be := newCoordinator(t, Interpreted, nil)
	c.HandlePacketIn(concretePacketIn(network.SwitchID(1), 1))
	time.Sleep(20 * time.Millisecond)
	if len(be.SentPackets) != 0 {
		t.Fatal("expected no output with a nil policy root")
	}
}

func waitForCondition(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}
