// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !unix

package bench

import "os"

// peakRSS is not available without rusage
func peakRSS(_ *os.ProcessState) uint64 {
	return 0
}
