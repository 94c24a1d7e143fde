//go:build linux

package proc

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// commMax is the kernel limit on a thread name, including the trailing NUL.
const commMax = 16

// SetName updates the process comm label so external observers (ps, top,
// /proc/<pid>/comm) can see what state a worker is in. Best effort; names
// longer than the kernel limit are truncated.
func SetName(name string) error {
	buf := make([]byte, 0, commMax)
	if len(name) > commMax-1 {
		name = name[:commMax-1]
	}
	buf = append(buf, name...)
	buf = append(buf, 0)
	return unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(&buf[0])), 0, 0, 0)
}
