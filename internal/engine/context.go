package engine

import (
	"sync/atomic"
	"time"

	"github.com/strainlabs/strain/internal/proc"
	"github.com/strainlabs/strain/internal/spawn"
)

// Exit statuses for one supervised unit. StatusSpawnFailed is the
// distinguished "could not even spawn" value.
const (
	ExitSuccess       = 0
	ExitFailure       = 1
	StatusSpawnFailed = -1
)

// Gate is the process-wide continuation flag. It starts open; closing it
// tells every supervised unit to stop promptly. Closing is one-way and
// idempotent. Supervisors read it at spawn boundaries and watch Done to
// interrupt children; a running workload must poll it itself.
type Gate struct {
	closed atomic.Bool
	done   chan struct{}
}

func NewGate() *Gate { return &Gate{done: make(chan struct{})} }

func (g *Gate) Close() {
	if g.closed.CompareAndSwap(false, true) {
		close(g.done)
	}
}

func (g *Gate) Open() bool { return !g.closed.Load() }

// Done is closed when the gate closes.
func (g *Gate) Done() <-chan struct{} { return g.done }

// ProcState labels what a worker is doing right now. The label is pushed
// into the process comm name so it shows up in ps and top.
type ProcState string

const (
	StateStart ProcState = "start"
	StateRun   ProcState = "run"
	StateWait  ProcState = "wait"
	StateExit  ProcState = "exit"
)

// RunContext carries the identity and policy of one supervised unit. The
// supervisor treats it as read-only apart from the process-state label;
// policy is fixed by the caller at start-up.
type RunContext struct {
	Name     string
	Instance uint32

	// Deadline is the absolute time after which no new work starts. Zero
	// means no deadline.
	Deadline time.Time

	// Oomable marks deaths by the OOM killer as a clean stop instead of
	// a retryable fault. NoOomAdjust disables OOM priority hints
	// entirely.
	Oomable     bool
	NoOomAdjust bool

	// WorkDir is the instance-scoped scratch directory, removed when an
	// Oomable unit is accepted as OOM killed.
	WorkDir string

	gate  *Gate
	ops   atomic.Uint64
	state atomic.Value

	failed     atomic.Bool
	failStatus atomic.Int32

	label func(string)
}

// NewRunContext builds the run context for a spawn spec. Both the parent
// supervisor and the re-exec'd worker construct one; only the gate differs
// (the worker gets its own copy, flipped by its signal handlers).
func NewRunContext(spec spawn.Spec, gate *Gate) *RunContext {
	if gate == nil {
		gate = NewGate()
	}
	rc := &RunContext{
		Name:        spec.Stressor,
		Instance:    spec.Instance,
		Deadline:    spec.Deadline,
		Oomable:     spec.Oomable,
		NoOomAdjust: spec.NoOomAdjust,
		WorkDir:     spec.WorkDir,
		gate:        gate,
	}
	rc.state.Store(StateStart)
	return rc
}

// EnableProcTitle pushes state changes into the process comm name. Only
// the worker child owns its process; the parent's supervisors share one
// and keep the label to themselves.
func (rc *RunContext) EnableProcTitle() {
	rc.label = func(s string) { _ = proc.SetName(s) }
}

// Continuing reports whether the unit should keep going per the shared
// continuation flag. Deadline checks are separate and explicit.
func (rc *RunContext) Continuing() bool { return rc.gate.Open() }

// Done is closed when the continuation gate closes.
func (rc *RunContext) Done() <-chan struct{} { return rc.gate.Done() }

// Stop closes the continuation gate this context observes.
func (rc *RunContext) Stop() { rc.gate.Close() }

// Expired reports whether the deadline has passed at the given time.
func (rc *RunContext) Expired(now time.Time) bool {
	return !rc.Deadline.IsZero() && now.After(rc.Deadline)
}

// IncOps records one completed bogo operation.
func (rc *RunContext) IncOps() { rc.ops.Add(1) }

// Ops reports how many bogo operations this unit has completed.
func (rc *RunContext) Ops() uint64 { return rc.ops.Load() }

// Fail records a soft failure. A workload's literal return code is
// overridden by the first recorded failure status, so a verification
// failure cannot be masked by a clean exit.
func (rc *RunContext) Fail(status int) {
	if rc.failed.CompareAndSwap(false, true) {
		rc.failStatus.Store(int32(status))
	}
}

// FailureStatus reports the recorded soft-failure status, if any.
func (rc *RunContext) FailureStatus() (int, bool) {
	if !rc.failed.Load() {
		return 0, false
	}
	return int(rc.failStatus.Load()), true
}

// SetState updates the observable process-state label.
func (rc *RunContext) SetState(state ProcState) {
	rc.state.Store(state)
	if rc.label != nil {
		rc.label(rc.Name + "-" + string(state))
	}
}

// State reports the last recorded process state.
func (rc *RunContext) State() ProcState {
	if st, ok := rc.state.Load().(ProcState); ok {
		return st
	}
	return StateStart
}

// DeathCounters tallies the restart causes of one supervision invocation.
type DeathCounters struct {
	Ooms    int
	Segvs   int
	BusErrs int
}

// Total reports how many restarts happened for any cause.
func (c DeathCounters) Total() int { return c.Ooms + c.Segvs + c.BusErrs }
