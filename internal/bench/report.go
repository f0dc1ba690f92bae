// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package bench

import (
	"time"

	"github.com/sustainable-computing-io/joulebench/internal/meter"
	"github.com/sustainable-computing-io/joulebench/internal/version"
)

// BackendStatus is the availability of one telemetry provider
type BackendStatus struct {
	Name      string `json:"name"`
	Backend   string `json:"backend"`
	Available bool   `json:"available"`
	Selected  bool   `json:"selected"`
}

// Meta describes a sweep
type Meta struct {
	Timestamp         time.Time           `json:"timestamp"`
	RunID             string              `json:"run_id"`
	Version           version.VersionInfo `json:"version"`
	Host              HostInfo            `json:"host"`
	MeasurementStatus []BackendStatus     `json:"measurement_status"`
	IsRealMeasurement bool                `json:"is_real_measurement"`
	MeasurementMethod meter.Backend       `json:"measurement_method"`
	MeasurementSource string              `json:"measurement_source"`
	DurationSeconds   float64             `json:"duration_seconds"`
	Interrupted       bool                `json:"interrupted,omitempty"`
}

// Report is the complete result of a sweep
type Report struct {
	Meta       Meta        `json:"meta"`
	Benchmarks []Benchmark `json:"benchmarks"`
}

// NewBackendStatus converts selector probes into report entries, marking the
// provider the harness uses
func NewBackendStatus(probes []meter.Probe, source string) []BackendStatus {
	status := make([]BackendStatus, 0, len(probes))
	selected := false
	for _, p := range probes {
		s := BackendStatus{
			Name:      p.Name,
			Backend:   p.Backend.String(),
			Available: p.Available,
		}
		if !selected && p.Available && p.Name == source {
			s.Selected = true
			selected = true
		}
		status = append(status, s)
	}
	return status
}
