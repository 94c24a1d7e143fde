//go:build !linux

package proc

// ParentDeathAlarm is only supported on Linux.
func ParentDeathAlarm() error { return nil }
