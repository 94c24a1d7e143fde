//go:build !linux

package resources

import "errors"

func detectTotalMemory() (int64, error) {
	return 0, errors.New("physical memory detection requires linux")
}
