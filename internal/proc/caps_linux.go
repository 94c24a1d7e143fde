//go:build linux

package proc

import (
	"fmt"

	"github.com/moby/sys/capability"
)

// DropCapabilities clears every capability set of the calling process,
// bounding set included. Workers drop privileges so the OOM killer has no
// reason to spare them and so a runaway workload cannot touch anything it
// should not.
func DropCapabilities() error {
	caps, err := capability.NewPid2(0)
	if err != nil {
		return fmt.Errorf("read capabilities: %w", err)
	}
	if err := caps.Load(); err != nil {
		return fmt.Errorf("load capabilities: %w", err)
	}
	caps.Clear(capability.CAPS | capability.BOUNDS | capability.AMBS)
	if err := caps.Apply(capability.CAPS | capability.BOUNDS | capability.AMBS); err != nil {
		return fmt.Errorf("apply capabilities: %w", err)
	}
	return nil
}
