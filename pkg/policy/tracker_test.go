package policy

import "testing"

func TestFindDynamicThroughCombinator(t *testing.T) {
	d1 := NewDynamicPolicy(Identity())
	d2 := NewDynamicPolicy(None())
	root := NewParallel(d1, Identity(), d2)

	found := FindDynamic(root)
	if len(found) != 2 {
		t.Fatalf("found %d dynamic policies, want 2", len(found))
	}
	if _, ok := found[d1]; !ok {
		t.Fatal("d1 not found")
	}
	if _, ok := found[d2]; !ok {
		t.Fatal("d2 not found")
	}
}

func TestFindDynamicBreaksCycles(t *testing.T) {
	rp := NewRecursePolicy()
	inner := NewDynamicPolicy(Identity())
	root := NewSequential(inner, rp)
	rp.SetInner(root) // self-reference through the sequential composition

	found := FindDynamic(root)
	if len(found) != 1 {
		t.Fatalf("found %d dynamic policies through a cycle, want 1", len(found))
	}
	if _, ok := found[inner]; !ok {
		t.Fatal("expected to find the dynamic policy reachable before the cycle")
	}
}

func TestFindDynamicThroughDerived(t *testing.T) {
	dp := NewDynamicPolicy(Identity())
	derived := NewDerivedPolicy(dp)

	found := FindDynamic(derived)
	if _, ok := found[dp]; !ok {
		t.Fatal("expected to find the dynamic policy reachable through DerivedPolicy")
	}
}

func TestTrackerReconcileAttachesAndDetaches(t *testing.T) {
	var lastChange struct {
		changed  bool
		old, new Policy
	}
	tracker := NewTracker(func(changed bool, old, new Policy) {
		lastChange.changed = changed
		lastChange.old = old
		lastChange.new = new
	})

	d1 := NewDynamicPolicy(Identity())
	d2 := NewDynamicPolicy(None())

	oldRoot := NewParallel(d1)
	tracker.Start(oldRoot)
	if len(tracker.current) != 1 {
		t.Fatalf("tracker.current size = %d, want 1 after Start", len(tracker.current))
	}

	newRoot := NewParallel(d2)
	tracker.Reconcile(oldRoot, newRoot)

	if _, ok := tracker.current[d1]; ok {
		t.Fatal("d1 should have been detached: no longer reachable")
	}
	if _, ok := tracker.current[d2]; !ok {
		t.Fatal("d2 should have been attached: newly reachable")
	}

	// d1's callback was detached; its own SetPolicy should not reach the
	// tracker's callback any more.
	lastChange.new = nil
	d1.SetPolicy(None())
	if lastChange.new != nil {
		t.Fatal("detached dynamic policy should not invoke tracker callback")
	}

	d2.SetPolicy(Identity())
	if lastChange.new == nil {
		t.Fatal("attached dynamic policy should invoke tracker callback")
	}
}

func TestTrackerReconcileLeavesSharedNodeAttached(t *testing.T) {
	shared := NewDynamicPolicy(Identity())
	var callCount int
	tracker := NewTracker(func(changed bool, old, new Policy) { callCount++ })

	root := NewParallel(shared)
	tracker.Start(root)

	tracker.Reconcile(root, root) // old == new, shared should be untouched
	if _, ok := tracker.current[shared]; !ok {
		t.Fatal("shared dynamic policy present in both old and new must remain attached")
	}

	callCount = 0
	shared.SetPolicy(None())
	if callCount != 1 {
		t.Fatalf("shared policy callback fired %d times, want 1 (still attached, not re-attached twice)", callCount)
	}
}
