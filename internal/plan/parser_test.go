package plan

import (
	"strings"
	"testing"
	"time"
)

const samplePlan = `
version: "1"
timeout: 90s
defaults:
  workers: 2
  oomable: true
stressors:
  vm:
    workers: 4
    vm-bytes: 256MiB
    max-ops: 1000
    oomable: false
    verify: true
  fork: {}
`

func TestParseAppliesDefaultsAndOverrides(t *testing.T) {
	doc, err := Parse(strings.NewReader(samplePlan))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if doc.Timeout.Duration != 90*time.Second {
		t.Fatalf("timeout = %v, want 90s", doc.Timeout.Duration)
	}

	vm := doc.Stressors["vm"]
	if vm.Workers != 4 {
		t.Fatalf("vm workers = %d, want 4", vm.Workers)
	}
	if got := vm.ResolvedVMBytes(); got != 256<<20 {
		t.Fatalf("vm bytes = %d, want %d", got, 256<<20)
	}
	if vm.IsOomable(doc.Defaults) {
		t.Fatal("vm entry overrides oomable to false")
	}
	if !vm.IsVerify(doc.Defaults) {
		t.Fatal("vm entry sets verify")
	}

	fork := doc.Stressors["fork"]
	if fork.Workers != 2 {
		t.Fatalf("fork workers = %d, want default 2", fork.Workers)
	}
	if !fork.IsOomable(doc.Defaults) {
		t.Fatal("fork entry should inherit oomable default")
	}
	if fork.IsDropCaps(doc.Defaults) {
		t.Fatal("fork entry should inherit drop-caps default false")
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	raw := `
version: "1"
stressors:
  vm:
    wrkers: 3
`
	if _, err := Parse(strings.NewReader(raw)); err == nil {
		t.Fatal("expected unknown field to be rejected")
	}
}

func TestParseRejectsUnknownStressor(t *testing.T) {
	raw := `
version: "1"
stressors:
  warp-core: {}
`
	if _, err := Parse(strings.NewReader(raw)); err == nil {
		t.Fatal("expected unknown stressor to be rejected")
	}
}

func TestValidateRequiresVersionAndStressors(t *testing.T) {
	doc := &Plan{Stressors: map[string]*Entry{"vm": {Workers: 1}}}
	if err := doc.Validate(); err == nil {
		t.Fatal("expected missing version to be rejected")
	}
	doc = &Plan{Version: "1"}
	if err := doc.Validate(); err == nil {
		t.Fatal("expected empty stressor set to be rejected")
	}
}

func TestParseRejectsBadSize(t *testing.T) {
	raw := `
version: "1"
stressors:
  vm:
    vm-bytes: a-lot
`
	if _, err := Parse(strings.NewReader(raw)); err == nil {
		t.Fatal("expected bad size to be rejected")
	}
}
