// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package meter

import (
	"fmt"
	"time"

	"github.com/sustainable-computing-io/joulebench/internal/device"
)

// Backend identifies which backend produced a measurement
type Backend int

const (
	None Backend = iota
	LogBased
	Polling
	Estimation
)

func (b Backend) String() string {
	switch b {
	case LogBased:
		return "log_based"
	case Polling:
		return "polling"
	case Estimation:
		return "estimation"
	default:
		return "none"
	}
}

// IsHardware reports whether the backend reads real telemetry
func (b Backend) IsHardware() bool {
	return b == LogBased || b == Polling
}

func (b Backend) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b *Backend) UnmarshalText(text []byte) error {
	switch string(text) {
	case "log_based":
		*b = LogBased
	case "polling":
		*b = Polling
	case "estimation":
		*b = Estimation
	case "none", "":
		*b = None
	default:
		return fmt.Errorf("unknown backend %q", string(text))
	}
	return nil
}

// backendOf maps a provider backend to a measurement backend
func backendOf(p device.Provider) Backend {
	if p == nil {
		return None
	}
	switch p.Backend() {
	case device.LogBased:
		return LogBased
	case device.Polling:
		return Polling
	}
	return None
}

// Status of a measurement
type Status int

const (
	StatusOk Status = iota
	StatusFailed
)

func (s Status) String() string {
	if s == StatusFailed {
		return "failed"
	}
	return "ok"
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Outcome tells whether the measured computation completed
type Outcome struct {
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Ok returns a successful outcome
func Ok() Outcome {
	return Outcome{Status: StatusOk}
}

// Failed returns a failed outcome with the given reason
func Failed(reason string) Outcome {
	return Outcome{Status: StatusFailed, Reason: reason}
}

func (o Outcome) IsOk() bool {
	return o.Status == StatusOk
}

func (o Outcome) String() string {
	if o.IsOk() {
		return "ok"
	}
	return "failed: " + o.Reason
}

// RailEnergy is the energy per rail in joules
type RailEnergy struct {
	Package     float64 `json:"package"`
	Cores       float64 `json:"cores"`
	Platform    float64 `json:"platform"`
	Memory      float64 `json:"memory"`
	Accelerator float64 `json:"accelerator"`
}

// Get returns the energy of rail r
func (e RailEnergy) Get(r device.Rail) float64 {
	switch r {
	case device.RailPackage:
		return e.Package
	case device.RailCores:
		return e.Cores
	case device.RailPlatform:
		return e.Platform
	case device.RailMemory:
		return e.Memory
	case device.RailAccelerator:
		return e.Accelerator
	}
	return 0
}

func (e *RailEnergy) add(r device.Rail, j float64) {
	switch r {
	case device.RailPackage:
		e.Package += j
	case device.RailCores:
		e.Cores += j
	case device.RailPlatform:
		e.Platform += j
	case device.RailMemory:
		e.Memory += j
	case device.RailAccelerator:
		e.Accelerator += j
	}
}

func (e RailEnergy) scale(f float64) RailEnergy {
	return RailEnergy{
		Package:     e.Package * f,
		Cores:       e.Cores * f,
		Platform:    e.Platform * f,
		Memory:      e.Memory * f,
		Accelerator: e.Accelerator * f,
	}
}

// OperationCounters are the operation counts a workload may report alongside
// its result
type OperationCounters struct {
	Comparisons       uint64 `json:"comparisons"`
	Swaps             uint64 `json:"swaps"`
	Iterations        uint64 `json:"iterations"`
	MemoryAccesses    uint64 `json:"memory_accesses"`
	RecursiveCalls    uint64 `json:"recursive_calls"`
	GenericOperations uint64 `json:"generic_operations"`
}

// EstimateBreakdown splits an estimated energy into its terms
type EstimateBreakdown struct {
	Model       string  `json:"model"`
	OperationsJ float64 `json:"operations_joules"`
	TimeJ       float64 `json:"time_joules"`
	MemoryJ     float64 `json:"memory_joules"`
	PowerW      float64 `json:"assumed_power_watts"`
}

// Target identifies the computation being measured
type Target struct {
	ID    string
	Size  int
	Input string
}

// Output is the side output of a measured computation
type Output struct {
	Counters        *OperationCounters
	PeakMemoryBytes uint64
}

// Func is a measured computation. It is invoked exactly once per Measure and
// returns its counters together with its result.
type Func func() (Output, error)

// Measurement is the result of one Measure call
type Measurement struct {
	AlgorithmID        string  `json:"algorithm"`
	InputSize          int     `json:"input_size"`
	Input              string  `json:"input,omitempty"`
	ElapsedMs          float64 `json:"elapsed_ms"`
	SampleCount        int     `json:"sample_count"`
	SamplingIntervalMs float64 `json:"sampling_interval_ms"`

	EnergyJoules float64    `json:"energy_joules"`
	Rails        RailEnergy `json:"rails"`
	AvgPowerW    float64    `json:"avg_power_watts"`
	MaxPowerW    float64    `json:"max_power_watts"`
	MinPowerW    float64    `json:"min_power_watts"`

	AvgFrequencyMHz float64 `json:"avg_frequency_mhz,omitempty"`
	AvgTemperatureC float64 `json:"avg_temperature_celsius,omitempty"`
	AvgUtilization  float64 `json:"avg_utilization,omitempty"`

	Backend    Backend   `json:"backend"`
	Source     string    `json:"source,omitempty"`
	IsHardware bool      `json:"is_hardware_measurement"`
	Timestamp  time.Time `json:"timestamp"`
	Outcome    Outcome   `json:"outcome"`

	Counters        *OperationCounters `json:"counters,omitempty"`
	PeakMemoryBytes uint64             `json:"peak_memory_bytes,omitempty"`
	Estimate        *EstimateBreakdown `json:"estimate,omitempty"`
}

// failed returns a copy of m carrying only identity and provenance
func (m Measurement) failed(reason string) Measurement {
	return Measurement{
		AlgorithmID: m.AlgorithmID,
		InputSize:   m.InputSize,
		Input:       m.Input,
		Backend:     m.Backend,
		Source:      m.Source,
		IsHardware:  m.IsHardware,
		Timestamp:   m.Timestamp,
		Outcome:     Failed(reason),
	}
}

// String is a one line summary used in logs
func (m Measurement) String() string {
	return fmt.Sprintf("%s[%s n=%d] %.3fms %.6fJ %.2fW (%s, %s)",
		m.AlgorithmID, m.Input, m.InputSize, m.ElapsedMs, m.EnergyJoules, m.AvgPowerW, m.Backend, m.Outcome)
}

// State of the harness measurement cycle
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}
