//go:build darwin

package worker

import (
	"os"
	"syscall"
)

// peakRSSKB reads the child's maximum resident set size. Darwin reports it in bytes.
func peakRSSKB(state *os.ProcessState) int64 {
	if state == nil {
		return 0
	}
	if usage, ok := state.SysUsage().(*syscall.Rusage); ok {
		return usage.Maxrss / 1024
	}
	return 0
}
