//go:build integration

package redisbackend_test

import (
	"testing"
	"time"

	"github.com/jameskyle/pyretic/internal/testutil"
	"github.com/jameskyle/pyretic/pkg/backend/redisbackend"
	"github.com/jameskyle/pyretic/pkg/network"
	"github.com/jameskyle/pyretic/pkg/policy"
)

func connectedBackend(t *testing.T) (*redisbackend.Backend, string) {
	t.Helper()
	testutil.SkipIfNoRedis(t)

	addr := testutil.RedisAddr()
	testutil.FlushFlowDB(t, addr)

	be := redisbackend.New(addr)
	if err := be.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { be.Close() })
	return be, addr
}

func TestSendInstallPersistsFlowEntry(t *testing.T) {
	be, addr := connectedBackend(t)
	sw := network.SwitchID(1)

	if err := be.SendInstall(sw, nil, 100, []policy.Action{policy.SendToController{}}); err != nil {
		t.Fatalf("SendInstall: %v", err)
	}

	keys := testutil.FlowKeys(t, addr, uint64(sw))
	if len(keys) != 1 {
		t.Fatalf("expected 1 flow key, got %d", len(keys))
	}

	flows, err := be.Flows(sw)
	if err != nil {
		t.Fatalf("Flows: %v", err)
	}
	if len(flows) != 1 || flows[0].Priority != 100 {
		t.Fatalf("unexpected flows: %+v", flows)
	}
}

func TestSendClearRemovesFlowEntriesAndNotifies(t *testing.T) {
	be, addr := connectedBackend(t)
	sw := network.SwitchID(2)

	if err := be.SendInstall(sw, nil, 50, []policy.Action{policy.SendToController{}}); err != nil {
		t.Fatalf("SendInstall: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		testutil.WaitForChannelMessage(t, addr, "switch:2:clear", 2*time.Second)
	}()
	time.Sleep(100 * time.Millisecond) // let the subscription establish

	if err := be.SendClear(sw); err != nil {
		t.Fatalf("SendClear: %v", err)
	}
	<-done

	if keys := testutil.FlowKeys(t, addr, uint64(sw)); len(keys) != 0 {
		t.Fatalf("expected flow table empty after clear, found %d keys", len(keys))
	}
}
