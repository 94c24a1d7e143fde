package oom

import "strings"

const (
	kmsgPath  = "/dev/kmsg"
	chunkSize = 4096

	processToken = "process"
	oomPhrase    = "Out of memory"
	reaperToken  = "oom_reaper"

	// Maximum digits accepted when parsing the victim pid, so a corrupt
	// or truncated record cannot overflow the parse.
	pidDigitsMax = 10
)

// Detector answers, after the fact, whether a pid was killed by the kernel
// OOM killer by scanning the kernel message ring buffer.
//
// This is a heuristic. The ring buffer rotates, so the relevant record may
// already be gone by the time we look, and pids reported across PID
// namespace boundaries can collide. False negatives are acceptable; the
// engine treats detection as corroboration, never as the deciding input.
type Detector struct {
	// Path of the kernel log device, overridable for tests.
	Path string
}

func NewDetector() *Detector {
	return &Detector{Path: kmsgPath}
}

// chunkReportsKill reports whether one raw log chunk records an OOM kill of
// pid. A chunk counts only when it carries both a "process" marker and an
// out-of-memory phrase; the victim pid sits right after the marker, e.g.
// "Out of memory: Kill process 22566".
func chunkReportsKill(chunk []byte, pid int) bool {
	text := string(chunk)
	idx := strings.Index(text, processToken)
	if idx < 0 {
		return false
	}
	if !strings.Contains(text, oomPhrase) && !strings.Contains(text, reaperToken) {
		return false
	}
	victim, ok := parsePid(text[idx+len(processToken):])
	return ok && victim == pid
}

// parsePid reads a bounded-width signed integer, skipping leading
// whitespace.
func parsePid(s string) (int, bool) {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n') {
		i++
	}
	neg := false
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		neg = s[i] == '-'
		i++
	}
	start := i
	val := 0
	for i < len(s) && i-start < pidDigitsMax && s[i] >= '0' && s[i] <= '9' {
		val = val*10 + int(s[i]-'0')
		i++
	}
	if i == start {
		return 0, false
	}
	if neg {
		val = -val
	}
	return val, true
}
