//go:build !linux

package proc

// DropCapabilities is only supported on Linux.
func DropCapabilities() error { return nil }
