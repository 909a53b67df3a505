//go:build linux

package worker

import (
	"os"
	"syscall"
)

// peakRSSKB reads the child's maximum resident set size. Linux reports it in kilobytes.
func peakRSSKB(state *os.ProcessState) int64 {
	if state == nil {
		return 0
	}
	if usage, ok := state.SysUsage().(*syscall.Rusage); ok {
		return usage.Maxrss
	}
	return 0
}
