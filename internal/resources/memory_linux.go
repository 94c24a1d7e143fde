//go:build linux

package resources

import (
	"errors"

	"github.com/prometheus/procfs"
)

func detectTotalMemory() (int64, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return 0, err
	}
	info, err := fs.Meminfo()
	if err != nil {
		return 0, err
	}
	if info.MemTotal == nil {
		return 0, errors.New("meminfo has no MemTotal")
	}
	return int64(*info.MemTotal) * 1024, nil
}
