//go:build !linux

package spawn

import "errors"

// Reexec exists on non-linux platforms so the CLI still compiles, but
// spawning workers requires linux process control.
type Reexec struct{}

func NewReexec() *Reexec { return &Reexec{} }

func (r *Reexec) Spawn(spec Spec) (Handle, error) {
	return nil, errors.ErrUnsupported
}
