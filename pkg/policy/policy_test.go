package policy

import (
	"testing"

	"github.com/jameskyle/pyretic/pkg/packet"
)

func testPacket() packet.Packet {
	return packet.Packet{Headers: map[string]interface{}{
		packet.HeaderSwitch: uint64(1),
		packet.HeaderInPort: uint32(1),
		packet.HeaderSrcIP:  "10.0.0.1",
	}}
}

func TestMatchPassesAndDrops(t *testing.T) {
	p := Match(map[string]interface{}{packet.HeaderSrcIP: "10.0.0.1"})
	out := p.Eval(testPacket())
	if len(out) != 1 {
		t.Fatalf("matching packet produced %d outputs, want 1", len(out))
	}

	p2 := Match(map[string]interface{}{packet.HeaderSrcIP: "10.0.0.2"})
	out2 := p2.Eval(testPacket())
	if len(out2) != 0 {
		t.Fatalf("non-matching packet produced %d outputs, want 0", len(out2))
	}
}

func TestParallelUnionsOutputs(t *testing.T) {
	p := NewParallel(Identity(), Identity())
	out := p.Eval(testPacket())
	if len(out) != 2 {
		t.Fatalf("parallel of two identities produced %d outputs, want 2", len(out))
	}
}

func TestSequentialChains(t *testing.T) {
	p := NewSequential(
		ModifyPolicy(map[string]interface{}{packet.HeaderDstIP: "10.0.0.9"}),
		Identity(),
	)
	out := p.Eval(testPacket())
	if len(out) != 1 {
		t.Fatalf("sequential produced %d outputs, want 1", len(out))
	}
	dst, ok := out[0].Get(packet.HeaderDstIP)
	if !ok || dst != "10.0.0.9" {
		t.Fatalf("sequential modify did not apply, got %+v", out[0].Headers)
	}
}

func TestTrackEvalRecordsBucketNode(t *testing.T) {
	bucket := &Bucket{Name: "b1"}
	p := NewSequential(CountBucketPolicy(bucket), Identity())

	var trace Trace
	p.TrackEval(testPacket(), &trace)

	if !trace.ContainsKind(KindBucket) {
		t.Fatal("trace should record the bucket node's kind")
	}
}

func TestDynamicPolicyDelegatesToInner(t *testing.T) {
	dp := NewDynamicPolicy(None())
	if out := dp.Eval(testPacket()); len(out) != 0 {
		t.Fatalf("expected None() inner to drop, got %d outputs", len(out))
	}
	dp.SetPolicy(Identity())
	if out := dp.Eval(testPacket()); len(out) != 1 {
		t.Fatalf("expected Identity() inner after swap, got %d outputs", len(out))
	}
}
