//go:build darwin || freebsd || netbsd || openbsd

package sysinfo

import (
	"runtime"

	"golang.org/x/sys/unix"
)

func hostTotalMemory() (uint64, error) {
	name := "hw.physmem"
	if runtime.GOOS == "darwin" {
		name = "hw.memsize"
	}
	return unix.SysctlUint64(name)
}
