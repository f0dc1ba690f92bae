// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package meter

import (
	"time"
)

const gib = 1 << 30

// Coefficients of the energy model. Per operation costs are in joules, powers
// in watts.
type Coefficients struct {
	ComparisonJ       float64 `yaml:"comparisonJoules"`
	SwapJ             float64 `yaml:"swapJoules"`
	IterationJ        float64 `yaml:"iterationJoules"`
	MemoryAccessJ     float64 `yaml:"memoryAccessJoules"`
	ActivePowerW      float64 `yaml:"activePowerWatts"`
	MemoryPowerPerGBW float64 `yaml:"memoryPowerPerGBWatts"`
	FallbackPowerW    float64 `yaml:"fallbackPowerWatts"`

	// TDPW enables the utilization model for runs without counters when > 0
	TDPW float64 `yaml:"tdpWatts"`
}

// DefaultCoefficients returns the built-in model coefficients
func DefaultCoefficients() Coefficients {
	return Coefficients{
		ComparisonJ:       1e-9,
		SwapJ:             2e-9,
		IterationJ:        1e-9,
		MemoryAccessJ:     5e-10,
		ActivePowerW:      35,
		MemoryPowerPerGBW: 3,
		FallbackPowerW:    25,
	}
}

// Estimator models the energy of a computation when no telemetry is available
type Estimator struct {
	c Coefficients
}

// NewEstimator creates an Estimator with coefficients c
func NewEstimator(c Coefficients) *Estimator {
	return &Estimator{c: c}
}

// Coefficients returns the model coefficients
func (e *Estimator) Coefficients() Coefficients {
	return e.c
}

// EstimateResult is the result of an estimate
type EstimateResult struct {
	EnergyJ   float64
	AvgPowerW float64
	Breakdown EstimateBreakdown
}

// Estimate returns the modelled energy of a computation that ran for elapsed.
// utilization is the CPU busy fraction over the run, or a negative value when
// unknown. The result depends on its arguments only.
func (e *Estimator) Estimate(counters *OperationCounters, peakMemoryBytes uint64, elapsed time.Duration, utilization float64) EstimateResult {
	secs := elapsed.Seconds()
	if secs < 0 {
		secs = 0
	}

	var b EstimateBreakdown
	switch {
	case counters != nil:
		b.Model = "operations"
		b.OperationsJ = float64(counters.Comparisons)*e.c.ComparisonJ +
			float64(counters.Swaps)*e.c.SwapJ +
			float64(counters.Iterations)*e.c.IterationJ +
			float64(counters.MemoryAccesses)*e.c.MemoryAccessJ
		b.PowerW = e.c.ActivePowerW
		b.TimeJ = e.c.ActivePowerW * secs
		b.MemoryJ = e.c.MemoryPowerPerGBW * float64(peakMemoryBytes) / gib * secs

	case e.c.TDPW > 0 && utilization >= 0:
		b.Model = "tdp"
		u := min(utilization, 1)
		b.PowerW = e.c.TDPW * (0.2 + 0.8*u)
		b.TimeJ = b.PowerW * secs

	default:
		b.Model = "fallback"
		b.PowerW = e.c.FallbackPowerW
		b.TimeJ = e.c.FallbackPowerW * secs
	}

	ret := EstimateResult{
		EnergyJ:   b.OperationsJ + b.TimeJ + b.MemoryJ,
		Breakdown: b,
	}
	if secs > 0 {
		ret.AvgPowerW = ret.EnergyJ / secs
	}
	return ret
}
