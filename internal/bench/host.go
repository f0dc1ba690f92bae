// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package bench

import (
	"fmt"
	"os"
	"runtime"

	"github.com/prometheus/procfs"
)

// HostInfo describes the machine a sweep ran on
type HostInfo struct {
	Hostname string `json:"hostname,omitempty"`
	OS       string `json:"os"`
	Arch     string `json:"arch"`
	CPUModel string `json:"cpu_model,omitempty"`
	Vendor   string `json:"cpu_vendor,omitempty"`
	Sockets  int    `json:"sockets,omitempty"`
	Cores    int    `json:"cores,omitempty"`
	Threads  int    `json:"threads"`
}

// cpuInfoReader is an interface over procfs.FS so tests can provide cpuinfo
type cpuInfoReader interface {
	CPUInfo() ([]procfs.CPUInfo, error)
}

// ReadHostInfo returns the host description. CPU details come from cpuinfo
// under procfsPath and are left empty when it cannot be read, e.g. on
// platforms without procfs.
func ReadHostInfo(procfsPath string) HostInfo {
	info := baseHostInfo()
	fs, err := procfs.NewFS(procfsPath)
	if err != nil {
		return info
	}
	return hostInfoFrom(info, fs)
}

func baseHostInfo() HostInfo {
	hostname, _ := os.Hostname()
	return HostInfo{
		Hostname: hostname,
		OS:       runtime.GOOS,
		Arch:     runtime.GOARCH,
		Threads:  runtime.NumCPU(),
	}
}

func hostInfoFrom(info HostInfo, fs cpuInfoReader) HostInfo {
	cpus, err := fs.CPUInfo()
	if err != nil || len(cpus) == 0 {
		return info
	}

	info.CPUModel = cpus[0].ModelName
	info.Vendor = cpus[0].VendorID
	info.Threads = len(cpus)

	sockets := map[string]bool{}
	cores := map[string]bool{}
	for _, c := range cpus {
		sockets[c.PhysicalID] = true
		cores[fmt.Sprintf("%s/%s", c.PhysicalID, c.CoreID)] = true
	}
	info.Sockets = len(sockets)
	info.Cores = len(cores)
	return info
}
