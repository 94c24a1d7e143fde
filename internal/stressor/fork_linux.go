//go:build linux

package stressor

import (
	"errors"
	"os"
	"syscall"

	"github.com/moby/sys/reexec"
	"golang.org/x/sys/unix"

	"github.com/strainlabs/strain/internal/engine"
	"github.com/strainlabs/strain/internal/spawn"
)

func init() {
	reexec.Register(spawn.NoopEntry, func() {
		os.Exit(0)
	})
	Register(Stressor{
		Name:    "fork",
		Summary: "repeatedly spawn and reap short-lived child processes",
		Run:     runFork,
	})
}

// startNoop launches the no-op child body. Overridden in tests.
var startNoop = func() (int, error) {
	attr := &syscall.ProcAttr{
		Files: []uintptr{
			uintptr(os.Stdin.Fd()),
			uintptr(os.Stdout.Fd()),
			uintptr(os.Stderr.Fd()),
		},
	}
	pid, _, err := syscall.StartProcess(reexec.Self(), []string{spawn.NoopEntry}, attr)
	return pid, err
}

// runFork hammers process creation: each bogo op re-executes the binary
// as a no-op entry and reaps it. Spawn failures under resource pressure
// are part of the point and the loop keeps going, but when verifying,
// every failed spawn counts against the run.
func runFork(rc *engine.RunContext, p Params) int {
	for keepGoing(rc, p) {
		pid, err := startNoop()
		if err != nil {
			if p.Verify {
				rc.Fail(engine.ExitFailure)
			}
			rc.IncOps()
			continue
		}
		var ws unix.WaitStatus
		for {
			_, werr := unix.Wait4(pid, &ws, 0, nil)
			if !errors.Is(werr, unix.EINTR) {
				break
			}
		}
		rc.IncOps()
	}
	return engine.ExitSuccess
}
