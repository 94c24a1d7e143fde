package spawn

import (
	"syscall"
	"time"
)

// WorkerEntry is the re-exec entry point name under which the worker
// process registers itself. The spawner launches the current binary with
// this name as argv[0].
const WorkerEntry = "strain-worker"

// NoopEntry is a re-exec entry that exits immediately with status zero. It
// is the child body used by workloads that stress process creation itself.
const NoopEntry = "strain-noop"

// SpecEnv carries the encoded Spec into the worker process.
const SpecEnv = "STRAIN_WORKER_SPEC"

// Spec describes one supervised unit of work. It crosses the process
// boundary by value: the parent serializes it into the child's environment
// and the child rebuilds its run context from it.
type Spec struct {
	Stressor    string    `json:"stressor"`
	Instance    uint32    `json:"instance"`
	Deadline    time.Time `json:"deadline,omitzero"`
	Oomable     bool      `json:"oomable,omitempty"`
	NoOomAdjust bool      `json:"noOomAdjust,omitempty"`
	DropCaps    bool      `json:"dropCaps,omitempty"`
	Verify      bool      `json:"verify,omitempty"`
	Quiet       bool      `json:"quiet,omitempty"`
	WorkDir     string    `json:"workDir,omitempty"`
	VMBytes     int64     `json:"vmBytes,omitempty"`
	MaxOps      uint64    `json:"maxOps,omitempty"`
}

// Status is the translated termination state of a child process.
type Status struct {
	Exited   bool
	ExitCode int
	Signaled bool
	Signal   syscall.Signal
}

// Handle tracks a single spawned child until it has been reaped.
type Handle interface {
	// Pid reports the child's process id.
	Pid() int

	// Wait blocks until the child terminates and reports how. Errors are
	// surfaced raw so callers can distinguish EINTR and ECHILD from
	// genuine wait failures.
	Wait() (Status, error)

	// Signal delivers sig to the child.
	Signal(sig syscall.Signal) error
}

// Spawner launches supervised children. The supervision engine only ever
// talks to this interface so its retry and escalation behaviour can be
// exercised against fakes.
type Spawner interface {
	Spawn(spec Spec) (Handle, error)
}
