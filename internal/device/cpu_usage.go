// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"fmt"

	"github.com/prometheus/procfs"
)

// CPUTimes is a snapshot of aggregate CPU time in seconds
type CPUTimes struct {
	Busy  float64
	Total float64
}

// Utilization returns the busy fraction in [0, 1] between two snapshots
func Utilization(before, after CPUTimes) float64 {
	total := after.Total - before.Total
	if total <= 0 {
		return 0
	}
	u := (after.Busy - before.Busy) / total
	switch {
	case u < 0:
		return 0
	case u > 1:
		return 1
	}
	return u
}

// CPUUsageReader reads aggregate CPU times
type CPUUsageReader interface {
	CPUTimes() (CPUTimes, error)
}

// statReader is an interface over procfs.FS so tests can provide stat values
type statReader interface {
	Stat() (procfs.Stat, error)
}

type procfsCPUUsage struct {
	fs statReader
}

var _ CPUUsageReader = (*procfsCPUUsage)(nil)

// NewCPUUsageReader creates a CPU usage reader over /proc/stat under procfsPath
func NewCPUUsageReader(procfsPath string) (*procfsCPUUsage, error) {
	fs, err := procfs.NewFS(procfsPath)
	if err != nil {
		return nil, fmt.Errorf("creating procfs failed: %w", err)
	}
	return &procfsCPUUsage{fs: fs}, nil
}

func (p *procfsCPUUsage) CPUTimes() (CPUTimes, error) {
	stat, err := p.fs.Stat()
	if err != nil {
		return CPUTimes{}, fmt.Errorf("failed to read cpu stat: %w", err)
	}
	t := stat.CPUTotal
	idle := t.Idle + t.Iowait
	total := t.User + t.Nice + t.System + t.Idle + t.Iowait + t.IRQ + t.SoftIRQ + t.Steal
	return CPUTimes{Busy: total - idle, Total: total}, nil
}
