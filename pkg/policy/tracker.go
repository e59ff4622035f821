package policy

import "sync"

// FindDynamic walks p and returns the set of every DynamicPolicy reachable
// from it (§4.3). Recursion through a RecursePolicy is broken by an
// identity set keyed on the node's pointer, not its structure, so a
// self-referential tree terminates.
func FindDynamic(p Policy) map[*DynamicPolicy]struct{} {
	out := make(map[*DynamicPolicy]struct{})
	seen := make(map[*RecursePolicy]struct{})
	findDynamic(p, out, seen)
	return out
}

func findDynamic(p Policy, out map[*DynamicPolicy]struct{}, seen map[*RecursePolicy]struct{}) {
	if p == nil {
		return
	}
	switch node := p.(type) {
	case *DynamicPolicy:
		out[node] = struct{}{}
		findDynamic(node.Inner(), out, seen)
	case *CombinatorPolicy:
		for _, child := range node.Children {
			findDynamic(child, out, seen)
		}
	case *RecursePolicy:
		if _, ok := seen[node]; ok {
			return
		}
		seen[node] = struct{}{}
		findDynamic(node.Inner(), out, seen)
	case *DerivedPolicy:
		findDynamic(node.From, out, seen)
	default:
		// Leaf policies and any other kind contribute no dynamic
		// sub-policies (§4.3: "any other node: no contribution").
	}
}

// Tracker keeps every reachable DynamicPolicy attached to a single
// reconciliation callback and adjusts that set as the policy tree is
// rewritten.
type Tracker struct {
	mu       sync.Mutex
	callback ChangeCallback
	current  map[*DynamicPolicy]struct{}
}

// NewTracker builds a Tracker that invokes cb on every dynamic sub-policy
// change once attached via Start.
func NewTracker(cb ChangeCallback) *Tracker {
	return &Tracker{callback: cb, current: make(map[*DynamicPolicy]struct{})}
}

// Start attaches cb to every dynamic sub-policy reachable from root. Call
// once, when the runtime first installs root as the policy.
func (t *Tracker) Start(root Policy) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for dp := range FindDynamic(root) {
		dp.Attach(t.callback)
		t.current[dp] = struct{}{}
	}
}

// Reconcile computes find_dynamic(old) and find_dynamic(new), detaches the
// callback from nodes only reachable from old, and attaches it to nodes
// only reachable from new. Nodes reachable from both are left untouched
// (§4.3).
func (t *Tracker) Reconcile(old, new Policy) {
	t.mu.Lock()
	defer t.mu.Unlock()

	oldSet := FindDynamic(old)
	newSet := FindDynamic(new)

	for dp := range oldSet {
		if _, stillPresent := newSet[dp]; !stillPresent {
			dp.Detach()
			delete(t.current, dp)
		}
	}
	for dp := range newSet {
		if _, wasPresent := oldSet[dp]; !wasPresent {
			dp.Attach(t.callback)
			t.current[dp] = struct{}{}
		}
	}
}
