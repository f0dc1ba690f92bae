// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"time"
)

// Rail identifies a hardware power rail reported by telemetry sources
type Rail int

const (
	RailUnknown Rail = iota
	RailPackage
	RailCores
	RailPlatform
	RailMemory
	RailAccelerator
)

// Rails lists all known rails in reporting order
var Rails = []Rail{RailPackage, RailCores, RailPlatform, RailMemory, RailAccelerator}

func (r Rail) String() string {
	switch r {
	case RailPackage:
		return "package"
	case RailCores:
		return "cores"
	case RailPlatform:
		return "platform"
	case RailMemory:
		return "memory"
	case RailAccelerator:
		return "accelerator"
	default:
		return "unknown"
	}
}

// Aux holds optional CPU readings some sources report alongside power.
// Zero means not reported.
type Aux struct {
	FrequencyMHz float64
	TemperatureC float64
	Utilization  float64
}

// Sample is a snapshot of instantaneous power draw across rails.
// Rails are only set through Set so that they can never go negative.
type Sample struct {
	Timestamp time.Time

	Package     Power
	Cores       Power
	Platform    Power
	Memory      Power
	Accelerator Power

	Aux Aux
}

// Set assigns p to rail r; negative readings are clamped to 0
func (s *Sample) Set(r Rail, p Power) {
	if p < 0 {
		p = 0
	}
	switch r {
	case RailPackage:
		s.Package = p
	case RailCores:
		s.Cores = p
	case RailPlatform:
		s.Platform = p
	case RailMemory:
		s.Memory = p
	case RailAccelerator:
		s.Accelerator = p
	}
}

// Add accumulates p into rail r
func (s *Sample) Add(r Rail, p Power) {
	s.Set(r, s.Get(r)+p)
}

// Get returns the power of rail r
func (s Sample) Get(r Rail) Power {
	switch r {
	case RailPackage:
		return s.Package
	case RailCores:
		return s.Cores
	case RailPlatform:
		return s.Platform
	case RailMemory:
		return s.Memory
	case RailAccelerator:
		return s.Accelerator
	default:
		return 0
	}
}

// Total is the package power when reported, otherwise the cores power
func (s Sample) Total() Power {
	if s.Package > 0 {
		return s.Package
	}
	return s.Cores
}

// IsZero reports whether no rail carries a reading
func (s Sample) IsZero() bool {
	for _, r := range Rails {
		if s.Get(r) != 0 {
			return false
		}
	}
	return true
}
