package stressor

import (
	"sort"
	"time"

	"github.com/strainlabs/strain/internal/engine"
)

// Params is the opaque payload handed to a workload. Fields a particular
// workload does not care about are simply ignored by it.
type Params struct {
	// VMBytes is the memory footprint target for memory workloads.
	VMBytes int64

	// MaxOps stops the workload after this many bogo operations. Zero
	// means unbounded.
	MaxOps uint64

	// Verify enables workload self-checks; failures are recorded on the
	// run context and override the workload's exit code.
	Verify bool
}

// RunFunc is the workload contract: it executes in the worker child's own
// flow of control, must poll the continuation gate and deadline, and
// returns a process exit status.
type RunFunc func(rc *engine.RunContext, p Params) int

// Stressor is one registered stress workload.
type Stressor struct {
	Name    string
	Summary string
	Run     RunFunc
}

var registry = make(map[string]Stressor)

// Register adds a stressor. Called from package init functions; duplicate
// names are a programming error.
func Register(s Stressor) {
	if _, dup := registry[s.Name]; dup {
		panic("stressor: duplicate registration of " + s.Name)
	}
	registry[s.Name] = s
}

// Lookup finds a stressor by name.
func Lookup(name string) (Stressor, bool) {
	s, ok := registry[name]
	return s, ok
}

// Names lists registered stressors in stable order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// keepGoing is the per-iteration continuation check every workload loop
// uses: gate open, deadline not passed, op budget not exhausted.
func keepGoing(rc *engine.RunContext, p Params) bool {
	if !rc.Continuing() || rc.Expired(time.Now()) {
		return false
	}
	return p.MaxOps == 0 || rc.Ops() < p.MaxOps
}
