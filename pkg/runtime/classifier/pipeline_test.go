package classifier

import (
	"context"
	"testing"
	"time"

	"github.com/jameskyle/pyretic/pkg/backend/inmemory"
	"github.com/jameskyle/pyretic/pkg/network"
	"github.com/jameskyle/pyretic/pkg/policy"
)

func topologyWithSwitches(ids ...network.SwitchID) *network.Topology {
	notifier := noopUpdateNotifier{}
	net := network.NewConcreteNetwork(notifier, nil)
	for _, id := range ids {
		net.HandleSwitchJoin(id)
	}
	return net.Topo
}

type noopUpdateNotifier struct{}

func (noopUpdateNotifier) UpdateNetwork() {}

func TestL3Specialization(t *testing.T) {
	cl := policy.Classifier{Rules: []policy.Rule{{
		Match:   policy.FieldMatch{Fields: map[string]interface{}{"srcip": "10.0.0.1"}},
		Actions: []policy.Action{policy.Modify{Fields: map[string]interface{}{"dstmac": "AA:BB:CC:DD:EE:FF"}}},
	}}}

	rules := specializeL3(cl.Rules)
	if len(rules) != 2 {
		t.Fatalf("specializeL3 produced %d rules, want 2", len(rules))
	}
	fm0 := rules[0].Match.(policy.FieldMatch)
	fm1 := rules[1].Match.(policy.FieldMatch)
	if fm0.Fields["ethtype"] != EthTypeIPv4 {
		t.Fatalf("first specialized rule ethtype = %v, want IPv4", fm0.Fields["ethtype"])
	}
	if fm1.Fields["ethtype"] != EthTypeARP {
		t.Fatalf("second specialized rule ethtype = %v, want ARP", fm1.Fields["ethtype"])
	}
	if fm0.Fields["srcip"] != "10.0.0.1" || fm1.Fields["srcip"] != "10.0.0.1" {
		t.Fatal("specialized rules must retain the original match fields")
	}
}

func TestControllerSupersedesModify(t *testing.T) {
	rules := []policy.Rule{{
		Match: policy.FieldMatch{Fields: map[string]interface{}{"srcip": "10.0.0.1"}},
		Actions: []policy.Action{
			policy.Modify{Fields: map[string]interface{}{"dstip": "10.0.0.2"}},
			policy.Controller{},
		},
	}}

	rules = controllerify(rules)
	if len(rules[0].Actions) != 1 {
		t.Fatalf("controllerify left %d actions, want 1", len(rules[0].Actions))
	}
	if _, ok := rules[0].Actions[0].(policy.SendToController); !ok {
		t.Fatalf("controllerify action = %T, want SendToController", rules[0].Actions[0])
	}
}

func TestGenerationFenceAbandonsStaleJob(t *testing.T) {
	gen := &Generation{}
	gen.Advance() // current = 1
	thisGen := gen.Current()

	topo := topologyWithSwitches(1)
	be := inmemory.New()

	done := make(chan error, 1)
	go func() {
		p := NewPipeline(nil)
		done <- p.Run(context.Background(), policy.Classifier{}, thisGen, gen, topo, be)
	}()

	time.Sleep(20 * time.Millisecond)
	gen.Advance() // bump past thisGen before the fence elapses

	if err := <-done; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(be.RulesFor(1)) != 0 || be.BarrierCount(1) != 0 || be.ClearCount(1) != 0 {
		t.Fatal("stale job must perform no switch I/O")
	}
}

func TestFreshGenerationRunsFullSequence(t *testing.T) {
	gen := &Generation{}
	thisGen := gen.Current()
	topo := topologyWithSwitches(1)
	be := inmemory.New()

	p := NewPipeline(nil)
	cl := policy.Classifier{Rules: []policy.Rule{{
		Match:   policy.True{},
		Actions: nil,
	}}}
	if err := p.Run(context.Background(), cl, thisGen, gen, topo, be); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if be.BarrierCount(1) == 0 {
		t.Fatal("expected at least one barrier on switch 1")
	}
	if be.ClearCount(1) != 1 {
		t.Fatalf("ClearCount(1) = %d, want 1", be.ClearCount(1))
	}
	if len(be.RulesFor(1)) == 0 {
		t.Fatal("expected at least the reset punt rule plus the compiled rule")
	}
}

func TestInstallRulePanicsOnUnknownPredicate(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("installMatch should panic on an unrecognized predicate kind")
		}
	}()
	installMatch(unknownPredicate{})
}

type unknownPredicate struct{}

func (unknownPredicate) isPredicate() {}
