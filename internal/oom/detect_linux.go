//go:build linux

package oom

import "golang.org/x/sys/unix"

// WasOomed scans whatever the kernel log currently buffers for an OOM kill
// record naming pid. Detection is best effort: an unreadable or absent
// device yields false, never an error.
func (d *Detector) WasOomed(pid int) bool {
	fd, err := unix.Open(d.Path, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return false
	}
	defer unix.Close(fd)

	// Drain to exhaustion: read whatever is buffered right now and stop
	// on the first failed read (EAGAIN means no more data). This is not a
	// tail-follow. Chunks carry no line framing guarantees.
	buf := make([]byte, chunkSize)
	for {
		n, err := unix.Read(fd, buf)
		if err != nil || n <= 0 {
			return false
		}
		if chunkReportsKill(buf[:n], pid) {
			return true
		}
	}
}
