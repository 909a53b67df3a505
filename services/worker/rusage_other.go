//go:build !linux && !darwin

package worker

import "os"

func peakRSSKB(state *os.ProcessState) int64 {
	return 0
}
