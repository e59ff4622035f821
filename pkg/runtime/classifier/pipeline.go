package classifier

import (
	"context"
	"fmt"
	"time"

	"github.com/jameskyle/pyretic/pkg/backend"
	"github.com/jameskyle/pyretic/pkg/network"
	"github.com/jameskyle/pyretic/pkg/policy"
	"github.com/jameskyle/pyretic/pkg/rerr"
	"github.com/jameskyle/pyretic/pkg/rlog"
)

// CoalesceInterval is the pipeline's fencing sleep (§4.4 step 1): bursts of
// rapid topology or policy events collapse into a single install, because
// every job but the last abandons during this sleep.
const CoalesceInterval = 100 * time.Millisecond

// resetPriority is the priority of the default punt-to-controller rule
// installed by resetSwitches (§4.4 step 2).
const resetPriority = 32768

// EthTypeIPv4 and EthTypeARP are the two ethertypes an L3 rule specializes
// into (§4.4 step 7).
const (
	EthTypeIPv4 uint16 = 0x0800
	EthTypeARP  uint16 = 0x0806
)

// BucketRegistrar receives each rule's match predicate as it is stripped of
// a CountBucket action (§4.4 step 5), so the bucket can later answer
// queries about the traffic it covers.
type BucketRegistrar interface {
	Register(bucket *policy.Bucket, match policy.Predicate)
}

// Pipeline is stateless: all state it needs (generation, topology, backend)
// is injected on every Run call (§4.4 "State: the pipeline itself is
// stateless").
type Pipeline struct {
	Buckets BucketRegistrar
}

// NewPipeline returns a Pipeline that reports CountBucket registrations to
// buckets, if non-nil.
func NewPipeline(buckets BucketRegistrar) *Pipeline {
	return &Pipeline{Buckets: buckets}
}

// Run executes the eight steps of §4.4 against classifier, fenced by
// thisGen against currentGen. A stale job (thisGen != currentGen.Current()
// after the coalescing sleep) performs no switch I/O and returns nil.
func (p *Pipeline) Run(ctx context.Context, cl policy.Classifier, thisGen uint64, currentGen *Generation, topo *network.Topology, be backend.Backend) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = rerr.NewInvariant(fmt.Sprintf("classifier pipeline panicked: %v", r), rerr.ErrUnknownPredicateKind)
		}
	}()

	if !fence(ctx, thisGen, currentGen) {
		rlog.WithGeneration(thisGen).Debug("pipeline job abandoned: generation advanced during fence")
		return nil
	}

	resetSwitches(topo, be)

	rules := cl.Rules
	rules = removeDrops(rules)
	rules = controllerify(rules)
	rules = p.bookkeepBuckets(rules)
	rules = conflateModifies(rules)
	rules = specializeL3(rules)

	return install(rules, topo, be)
}

// fence sleeps CoalesceInterval (or returns early if ctx is cancelled) and
// reports whether thisGen is still the live generation.
func fence(ctx context.Context, thisGen uint64, currentGen *Generation) bool {
	timer := time.NewTimer(CoalesceInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	}
	return thisGen == currentGen.Current()
}

// resetSwitches puts every switch into a known-clean state: barrier, clear,
// barrier, then a default punt-to-controller rule at resetPriority.
// The clear-all job shares this step by running the pipeline with an empty
// classifier rather than reimplementing it.
func resetSwitches(topo *network.Topology, be backend.Backend) {
	for _, sw := range topo.Switches() {
		if err := be.SendBarrier(sw); err != nil {
			rlog.WithSwitch(sw).WithField("error", err).Warn("reset: barrier failed")
		}
		if err := be.SendClear(sw); err != nil {
			rlog.WithSwitch(sw).WithField("error", err).Warn("reset: clear failed")
		}
		if err := be.SendBarrier(sw); err != nil {
			rlog.WithSwitch(sw).WithField("error", err).Warn("reset: barrier failed")
		}
		if err := be.SendInstall(sw, nil, resetPriority, []policy.Action{policy.SendToController{}}); err != nil {
			rlog.WithSwitch(sw).WithField("error", err).Warn("reset: default punt rule failed")
		}
	}
}

// removeDrops filters drop sentinels out of every rule's action list
// (§4.4 step 3).
func removeDrops(rules []policy.Rule) []policy.Rule {
	out := make([]policy.Rule, len(rules))
	for i, r := range rules {
		kept := make([]policy.Action, 0, len(r.Actions))
		for _, a := range r.Actions {
			if _, isDrop := a.(policy.Drop); isDrop {
				continue
			}
			kept = append(kept, a)
		}
		out[i] = policy.Rule{Match: r.Match, Actions: kept}
	}
	return out
}

// controllerify replaces a rule's action list with a single
// send-to-controller action if Controller appears anywhere in it (§4.4
// step 4: punt supersedes any other behavior).
func controllerify(rules []policy.Rule) []policy.Rule {
	out := make([]policy.Rule, len(rules))
	for i, r := range rules {
		hasController := false
		for _, a := range r.Actions {
			if _, ok := a.(policy.Controller); ok {
				hasController = true
				break
			}
		}
		if hasController {
			out[i] = policy.Rule{Match: r.Match, Actions: []policy.Action{policy.SendToController{}}}
			continue
		}
		out[i] = r
	}
	return out
}

// bookkeepBuckets registers each rule's match with every CountBucket it
// carries, then strips those actions (§4.4 step 5).
func (p *Pipeline) bookkeepBuckets(rules []policy.Rule) []policy.Rule {
	out := make([]policy.Rule, len(rules))
	for i, r := range rules {
		kept := make([]policy.Action, 0, len(r.Actions))
		for _, a := range r.Actions {
			if cb, ok := a.(policy.CountBucket); ok {
				if p.Buckets != nil && cb.Bucket != nil {
					p.Buckets.Register(cb.Bucket, r.Match)
				}
				continue
			}
			kept = append(kept, a)
		}
		out[i] = policy.Rule{Match: r.Match, Actions: kept}
	}
	return out
}

// conflateModifies keeps only the modify bundles (non-empty) and any
// send-to-controller action already produced by controllerify; every other
// action should already be gone by this point (§4.4 step 6).
func conflateModifies(rules []policy.Rule) []policy.Rule {
	out := make([]policy.Rule, len(rules))
	for i, r := range rules {
		kept := make([]policy.Action, 0, len(r.Actions))
		for _, a := range r.Actions {
			switch act := a.(type) {
			case policy.SendToController:
				kept = append(kept, a)
			case policy.Modify:
				if !act.Empty() {
					kept = append(kept, a)
				}
			}
		}
		out[i] = policy.Rule{Match: r.Match, Actions: kept}
	}
	return out
}

// specializeL3 replaces any rule whose match mentions srcip/dstip but not
// ethtype with two rules, one per L3 ethertype, preserving rule order
// (§4.4 step 7).
func specializeL3(rules []policy.Rule) []policy.Rule {
	out := make([]policy.Rule, 0, len(rules))
	for _, r := range rules {
		fm, ok := r.Match.(policy.FieldMatch)
		if !ok || fm.Has("ethtype") || (!fm.Has("srcip") && !fm.Has("dstip")) {
			out = append(out, r)
			continue
		}
		out = append(out,
			policy.Rule{Match: fm.With("ethtype", EthTypeIPv4), Actions: r.Actions},
			policy.Rule{Match: fm.With("ethtype", EthTypeARP), Actions: r.Actions},
		)
	}
	return out
}

// install assigns descending priorities starting at len(rules)+40000 and
// installs each rule on the switches it applies to, followed by a barrier
// to every switch in the topology (§4.4 step 8).
func install(rules []policy.Rule, topo *network.Topology, be backend.Backend) error {
	priority := len(rules) + 40000
	for _, r := range rules {
		match, matched := installMatch(r.Match)
		if !matched {
			priority--
			continue
		}

		if sw, ok := switchOf(match); ok {
			if topo.HasSwitch(sw) {
				installOn(be, sw, without(match, "switch"), priority, r.Actions)
			}
			priority--
			continue
		}

		for _, sw := range topo.Switches() {
			installOn(be, sw, withSwitch(match, sw), priority, r.Actions)
		}
		priority--
	}

	for _, sw := range topo.Switches() {
		if err := be.SendBarrier(sw); err != nil {
			rlog.WithSwitch(sw).WithField("error", err).Warn("install: final barrier failed")
		}
	}
	return nil
}

func installOn(be backend.Backend, sw network.SwitchID, match backend.Match, priority int, actions []policy.Action) {
	if err := be.SendInstall(sw, match, priority, actions); err != nil {
		rlog.WithSwitch(sw).WithField("error", err).Warn("install: backend I/O error, continuing with remaining switches")
	}
}

// installMatch translates a policy.Predicate into its concrete form
// (§4.4 install_rule): false discards the rule, true becomes the wildcard
// (nil) match, a field match copies through. Any other kind is a fatal
// invariant violation, recovered by Pipeline.Run.
func installMatch(pred policy.Predicate) (backend.Match, bool) {
	switch m := pred.(type) {
	case policy.False:
		return nil, false
	case policy.True:
		return backend.Match{}, true
	case policy.FieldMatch:
		out := make(backend.Match, len(m.Fields))
		for k, v := range m.Fields {
			out[k] = v
		}
		return out, true
	default:
		panic(fmt.Sprintf("install_rule: unrecognized predicate kind %T", pred))
	}
}

func switchOf(match backend.Match) (network.SwitchID, bool) {
	v, ok := match["switch"]
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

func without(match backend.Match, field string) backend.Match {
	out := make(backend.Match, len(match))
	for k, v := range match {
		if k == field {
			continue
		}
		out[k] = v
	}
	return out
}

func withSwitch(match backend.Match, sw network.SwitchID) backend.Match {
	out := make(backend.Match, len(match)+1)
	for k, v := range match {
		out[k] = v
	}
	out["switch"] = sw
	return out
}
