package stressor

import (
	"testing"
	"time"

	"github.com/strainlabs/strain/internal/engine"
	"github.com/strainlabs/strain/internal/spawn"
)

func testRunContext(t *testing.T, deadline time.Time) *engine.RunContext {
	t.Helper()
	return engine.NewRunContext(spawn.Spec{Stressor: "vm", Deadline: deadline}, engine.NewGate())
}

func TestLookupKnowsRegisteredStressors(t *testing.T) {
	if _, ok := Lookup("vm"); !ok {
		t.Fatal("vm stressor not registered")
	}
	if _, ok := Lookup("no-such-thing"); ok {
		t.Fatal("lookup invented a stressor")
	}
	names := Names()
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("names not in stable order: %v", names)
		}
	}
}

func TestVMStopsAtOpBudget(t *testing.T) {
	rc := testRunContext(t, time.Time{})
	code := runVM(rc, Params{VMBytes: 64 << 10, MaxOps: 3})
	if code != engine.ExitSuccess {
		t.Fatalf("runVM returned %d, want %d", code, engine.ExitSuccess)
	}
	if got := rc.Ops(); got != 3 {
		t.Fatalf("ops = %d, want 3", got)
	}
}

func TestVMStopsWhenGateCloses(t *testing.T) {
	rc := testRunContext(t, time.Time{})
	rc.Stop()
	code := runVM(rc, Params{VMBytes: 64 << 10})
	if code != engine.ExitSuccess {
		t.Fatalf("runVM returned %d, want %d", code, engine.ExitSuccess)
	}
	if got := rc.Ops(); got != 0 {
		t.Fatalf("ops = %d, want 0 after stop", got)
	}
}

func TestVMStopsPastDeadline(t *testing.T) {
	rc := testRunContext(t, time.Now().Add(-time.Second))
	if code := runVM(rc, Params{VMBytes: 64 << 10}); code != engine.ExitSuccess {
		t.Fatalf("runVM returned %d, want %d", code, engine.ExitSuccess)
	}
	if got := rc.Ops(); got != 0 {
		t.Fatalf("ops = %d, want 0 past deadline", got)
	}
}

func TestVMVerifyPassesOnIntactPages(t *testing.T) {
	rc := testRunContext(t, time.Time{})
	code := runVM(rc, Params{VMBytes: 128 << 10, MaxOps: 1, Verify: true})
	if code != engine.ExitSuccess {
		t.Fatalf("runVM returned %d, want %d", code, engine.ExitSuccess)
	}
	if _, failed := rc.FailureStatus(); failed {
		t.Fatal("verify flagged a failure on untouched pages")
	}
}
