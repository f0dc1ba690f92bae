// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package bench

import (
	"os"
	"runtime"
	"syscall"
)

// peakRSS returns the maximum resident set size of an exited process
func peakRSS(state *os.ProcessState) uint64 {
	if state == nil {
		return 0
	}
	ru, ok := state.SysUsage().(*syscall.Rusage)
	if !ok {
		return 0
	}
	return maxrssBytes(int64(ru.Maxrss))
}

// maxrssBytes converts ru_maxrss, which is bytes on darwin and KiB elsewhere
func maxrssBytes(maxrss int64) uint64 {
	if maxrss <= 0 {
		return 0
	}
	if runtime.GOOS == "darwin" || runtime.GOOS == "ios" {
		return uint64(maxrss)
	}
	return uint64(maxrss) * 1024
}
