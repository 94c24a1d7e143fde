//go:build linux

package spawn

import (
	"encoding/json"
	"fmt"
	"os"
	"syscall"

	"github.com/moby/sys/reexec"
	"golang.org/x/sys/unix"
)

// Reexec is a Spawner that launches the current binary again through its
// registered worker entry point. This is the closest analogue Go offers to
// a plain fork: the child is a fresh copy of ourselves whose OOM score,
// capabilities and signal disposition the engine manipulates directly.
type Reexec struct{}

func NewReexec() *Reexec {
	return &Reexec{}
}

func (r *Reexec) Spawn(spec Spec) (Handle, error) {
	payload, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("encode worker spec: %w", err)
	}

	attr := &syscall.ProcAttr{
		Env:   append(os.Environ(), SpecEnv+"="+string(payload)),
		Files: []uintptr{0, 1, 2},
	}
	pid, _, err := syscall.StartProcess(reexec.Self(), []string{WorkerEntry}, attr)
	if err != nil {
		return nil, err
	}
	return &child{pid: pid}, nil
}

type child struct {
	pid int
}

func (c *child) Pid() int { return c.pid }

// Wait performs a single blocking wait on the child. EINTR is not retried
// here: the supervisor owns the rewait policy.
func (c *child) Wait() (Status, error) {
	var ws unix.WaitStatus
	if _, err := unix.Wait4(c.pid, &ws, 0, nil); err != nil {
		return Status{}, err
	}
	return translate(ws), nil
}

func (c *child) Signal(sig syscall.Signal) error {
	return unix.Kill(c.pid, sig)
}

func translate(ws unix.WaitStatus) Status {
	switch {
	case ws.Exited():
		return Status{Exited: true, ExitCode: ws.ExitStatus()}
	case ws.Signaled():
		return Status{Signaled: true, Signal: ws.Signal()}
	default:
		return Status{}
	}
}
