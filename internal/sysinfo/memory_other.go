//go:build !linux && !windows && !darwin && !freebsd && !netbsd && !openbsd

package sysinfo

import (
	"errors"
	"runtime"
)

func hostTotalMemory() (uint64, error) {
	return 0, errors.New("memory query not supported on " + runtime.GOOS)
}
