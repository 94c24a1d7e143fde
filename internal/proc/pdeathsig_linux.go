//go:build linux

package proc

import (
	"golang.org/x/sys/unix"
)

// ParentDeathAlarm asks the kernel to deliver SIGALRM to this process when
// its parent exits. A worker whose supervisor disappears must not keep
// stressing the machine forever; workloads already treat SIGALRM as the
// stop signal.
func ParentDeathAlarm() error {
	return unix.Prctl(unix.PR_SET_PDEATHSIG, uintptr(unix.SIGALRM), 0, 0, 0)
}
