package stressor

import (
	"os"

	"github.com/strainlabs/strain/internal/engine"
)

const (
	defaultVMBytes = 256 << 20
	vmChunkBytes   = 4 << 20
)

func init() {
	Register(Stressor{
		Name:    "vm",
		Summary: "allocate, dirty and release anonymous memory",
		Run:     runVM,
	})
}

// runVM cycles through allocating the configured footprint in chunks,
// touching every page so the kernel must back it, then dropping the
// whole set. One full cycle is one bogo op. With a large enough
// footprint this is the workload the kernel's OOM killer goes after.
func runVM(rc *engine.RunContext, p Params) int {
	size := p.VMBytes
	if size <= 0 {
		size = defaultVMBytes
	}
	pageSize := os.Getpagesize()

	for keepGoing(rc, p) {
		chunks := make([][]byte, 0, int(size/vmChunkBytes)+1)
		var allocated int64
		for allocated < size {
			if !rc.Continuing() {
				break
			}
			n := int64(vmChunkBytes)
			if remain := size - allocated; remain < n {
				n = remain
			}
			buf := make([]byte, n)
			for i := 0; i < len(buf); i += pageSize {
				buf[i] = pattern(allocated + int64(i))
			}
			chunks = append(chunks, buf)
			allocated += n
		}
		if p.Verify {
			var off int64
			for _, buf := range chunks {
				for i := 0; i < len(buf); i += pageSize {
					if buf[i] != pattern(off+int64(i)) {
						rc.Fail(engine.ExitFailure)
					}
				}
				off += int64(len(buf))
			}
		}
		chunks = nil
		rc.IncOps()
	}
	return engine.ExitSuccess
}

func pattern(off int64) byte {
	return byte(off>>12) ^ byte(off>>20) | 1
}
