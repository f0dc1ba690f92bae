// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package bench

import (
	"github.com/sustainable-computing-io/joulebench/internal/meter"
)

// Summary averages the runs of one benchmark. Means are taken over
// successful runs only.
type Summary struct {
	EnergyJoules float64 `json:"energy_joules"`
	ElapsedMs    float64 `json:"execution_time_ms"`
	AvgPowerW    float64 `json:"avg_power_watts"`
	MaxPowerW    float64 `json:"max_power_watts"`

	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Backend    meter.Backend `json:"backend"`
	IsHardware bool          `json:"is_real_measurement"`
}

// Aggregate reduces the runs of one benchmark to their means. The hardware
// flag and backend are taken from the first run.
func Aggregate(results []meter.Measurement) Summary {
	var s Summary
	if len(results) == 0 {
		return s
	}
	s.Backend = results[0].Backend
	s.IsHardware = results[0].IsHardware

	for _, m := range results {
		if !m.Outcome.IsOk() {
			s.Failed++
			continue
		}
		s.Succeeded++
		s.EnergyJoules += m.EnergyJoules
		s.ElapsedMs += m.ElapsedMs
		s.AvgPowerW += m.AvgPowerW
		s.MaxPowerW += m.MaxPowerW
	}

	if s.Succeeded == 0 {
		return s
	}
	n := float64(s.Succeeded)
	s.EnergyJoules /= n
	s.ElapsedMs /= n
	s.AvgPowerW /= n
	s.MaxPowerW /= n
	return s
}

// Benchmark is the result of all runs of one workload, input and size
type Benchmark struct {
	Algorithm string              `json:"algorithm"`
	Input     string              `json:"input,omitempty"`
	Size      int                 `json:"size"`
	Runs      int                 `json:"runs"`
	Results   []meter.Measurement `json:"results"`
	Averages  Summary             `json:"averages"`
}

// NewBenchmark aggregates results into a Benchmark for t
func NewBenchmark(t meter.Target, results []meter.Measurement) Benchmark {
	return Benchmark{
		Algorithm: t.ID,
		Input:     t.Input,
		Size:      t.Size,
		Runs:      len(results),
		Results:   results,
		Averages:  Aggregate(results),
	}
}
