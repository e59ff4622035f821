package network

import "testing"

type countingNotifier struct{ count int }

func (c *countingNotifier) UpdateNetwork() { c.count++ }

type noopDiscovery struct{ calls int }

func (d *noopDiscovery) InjectDiscoveryPacket(sw SwitchID, port uint32) error {
	d.calls++
	return nil
}

func TestPortFlapSequence(t *testing.T) {
	notifier := &countingNotifier{}
	disco := &noopDiscovery{}
	net := NewConcreteNetwork(notifier, disco)

	net.HandleSwitchJoin(1)
	net.HandleSwitchJoin(2)
	notifier.count = 0 // only the port-flap sequence itself is under test

	net.HandlePortJoin(1, 1, 0, 0)
	net.HandlePortJoin(2, 1, 0, 0)
	net.HandleLinkUpdate(1, 1, 2, 1)

	if !net.Topo.hasEdge(1, 1, 2, 1) {
		t.Fatal("expected edge (1,1)-(2,1) after link update")
	}

	net.HandlePortPart(1, 1)

	if net.Topo.hasEdge(1, 1, 2, 1) {
		t.Fatal("edge should be gone after port part")
	}
	p2, ok := net.Topo.GetPort(2, 1)
	if !ok {
		t.Fatal("switch 2 port 1 should still exist")
	}
	if p2.LinkedTo != nil {
		t.Fatalf("switch 2 port 1 LinkedTo should be cleared, got %+v", p2.LinkedTo)
	}

	// Four handlers ran since the reset (two port joins, the link update,
	// and the port part), each ending in exactly one UpdateNetwork call.
	if notifier.count != 4 {
		t.Fatalf("update_network() called %d times, want 4", notifier.count)
	}
}

func TestLinkUpdateIgnoredWhenPortUnknown(t *testing.T) {
	notifier := &countingNotifier{}
	net := NewConcreteNetwork(notifier, &noopDiscovery{})

	net.HandleSwitchJoin(1)
	notifier.count = 0

	net.HandleLinkUpdate(1, 1, 2, 1)

	if notifier.count != 0 {
		t.Fatalf("update_network() called %d times, want 0 for unknown port", notifier.count)
	}
	if net.Topo.hasEdge(1, 1, 2, 1) {
		t.Fatal("no edge should be recorded when a port is unknown")
	}
}

func TestLinkUpdateNoopWhenUnchanged(t *testing.T) {
	notifier := &countingNotifier{}
	net := NewConcreteNetwork(notifier, &noopDiscovery{})

	net.HandleSwitchJoin(1)
	net.HandleSwitchJoin(2)
	net.HandlePortJoin(1, 1, 0, 0)
	net.HandlePortJoin(2, 1, 0, 0)
	net.HandleLinkUpdate(1, 1, 2, 1)

	notifier.count = 0
	net.HandleLinkUpdate(1, 1, 2, 1)

	if notifier.count != 0 {
		t.Fatalf("repeating an unchanged link update called UpdateNetwork %d times, want 0", notifier.count)
	}
}

func TestSwitchPartRemovesLinksAndNode(t *testing.T) {
	notifier := &countingNotifier{}
	net := NewConcreteNetwork(notifier, &noopDiscovery{})

	net.HandleSwitchJoin(1)
	net.HandleSwitchJoin(2)
	net.HandlePortJoin(1, 1, 0, 0)
	net.HandlePortJoin(2, 1, 0, 0)
	net.HandleLinkUpdate(1, 1, 2, 1)

	net.HandleSwitchPart(1)

	if net.Topo.HasSwitch(1) {
		t.Fatal("switch 1 should be gone")
	}
	p2, ok := net.Topo.GetPort(2, 1)
	if !ok || p2.LinkedTo != nil {
		t.Fatalf("switch 2's port 1 link should be cleared after peer departs, got %+v ok=%v", p2, ok)
	}
}

func TestPortPartOnGoneSwitchIsTolerated(t *testing.T) {
	notifier := &countingNotifier{}
	net := NewConcreteNetwork(notifier, &noopDiscovery{})

	net.HandlePortPart(99, 1) // switch 99 never joined

	if notifier.count != 0 {
		t.Fatalf("update_network() called for a part on an unknown switch, want 0 calls, got %d", notifier.count)
	}
}

func TestPortModDownThenUpReprobes(t *testing.T) {
	notifier := &countingNotifier{}
	disco := &noopDiscovery{}
	net := NewConcreteNetwork(notifier, disco)

	net.HandleSwitchJoin(1)
	net.HandlePortJoin(1, 1, 0, 0)
	disco.calls = 0

	net.HandlePortMod(1, 1, 0, StatusLinkDown)
	net.HandlePortMod(1, 1, 0, 0)

	if disco.calls != 1 {
		t.Fatalf("expected exactly one re-probe on down->up transition, got %d", disco.calls)
	}
}
