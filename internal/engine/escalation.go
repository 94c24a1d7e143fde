package engine

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// escalationSchedule is the fixed sequence of signals used to terminate an
// unresponsive child: four alarm deliveries, then SIGTERM, then an
// unconditional SIGKILL. Severity only ever increases and the final
// SIGKILL is never retried past.
var escalationSchedule = []syscall.Signal{
	unix.SIGALRM,
	unix.SIGALRM,
	unix.SIGALRM,
	unix.SIGALRM,
	unix.SIGTERM,
	unix.SIGKILL,
}

// killReached reports whether the schedule position has already advanced
// to the unconditional kill signal. A child that died from SIGKILL before
// our own schedule got there was killed by something external, most
// plausibly the kernel OOM killer.
func killReached(idx int) bool {
	return idx >= len(escalationSchedule) || escalationSchedule[idx] == unix.SIGKILL
}
