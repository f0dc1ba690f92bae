// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package meter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEstimateWithCounters(t *testing.T) {
	e := NewEstimator(DefaultCoefficients())
	counters := &OperationCounters{Comparisons: 1000, Swaps: 200, Iterations: 1000, MemoryAccesses: 3000}

	est := e.Estimate(counters, 0, 10*time.Millisecond, -1)

	ops := 1000*1e-9 + 200*2e-9 + 1000*1e-9 + 3000*5e-10
	assert.Equal(t, "operations", est.Breakdown.Model)
	assert.InDelta(t, ops, est.Breakdown.OperationsJ, 1e-15)
	assert.InDelta(t, 0.35, est.Breakdown.TimeJ, 1e-12)
	assert.Zero(t, est.Breakdown.MemoryJ)
	assert.InDelta(t, 0.35+ops, est.EnergyJ, 1e-12)
	assert.InDelta(t, (0.35+ops)/0.01, est.AvgPowerW, 1e-9)
	assert.Positive(t, est.EnergyJ)

	for range 10 {
		assert.Equal(t, est, e.Estimate(counters, 0, 10*time.Millisecond, -1), "estimates are deterministic")
	}
}

func TestEstimateMemoryTerm(t *testing.T) {
	e := NewEstimator(DefaultCoefficients())
	est := e.Estimate(&OperationCounters{}, 2<<30, 2*time.Second, -1)

	assert.InDelta(t, 3*2*2.0, est.Breakdown.MemoryJ, 1e-12)
	assert.InDelta(t, 35*2.0, est.Breakdown.TimeJ, 1e-12)
	assert.InDelta(t, 82.0, est.EnergyJ, 1e-12)
}

func TestEstimateWithoutCounters(t *testing.T) {
	e := NewEstimator(DefaultCoefficients())

	est := e.Estimate(nil, 1<<30, 2*time.Second, 0.5)
	assert.Equal(t, "fallback", est.Breakdown.Model)
	assert.InDelta(t, 50.0, est.EnergyJ, 1e-12)
	assert.InDelta(t, 25.0, est.AvgPowerW, 1e-12)
	assert.Zero(t, est.Breakdown.MemoryJ, "memory term needs counters")
}

func TestEstimateTDPModel(t *testing.T) {
	c := DefaultCoefficients()
	c.TDPW = 65
	e := NewEstimator(c)

	tt := []struct {
		name  string
		util  float64
		model string
		power float64
	}{
		{"idle", 0, "tdp", 13},
		{"half", 0.5, "tdp", 39},
		{"full", 1, "tdp", 65},
		{"clamped", 3, "tdp", 65},
		{"unknown utilization", -1, "fallback", 25},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			est := e.Estimate(nil, 0, time.Second, tc.util)
			assert.Equal(t, tc.model, est.Breakdown.Model)
			assert.InDelta(t, tc.power, est.AvgPowerW, 1e-9)
			assert.InDelta(t, tc.power, est.EnergyJ, 1e-9)
		})
	}
}

func TestEstimateZeroElapsed(t *testing.T) {
	e := NewEstimator(DefaultCoefficients())

	est := e.Estimate(nil, 0, 0, -1)
	assert.Zero(t, est.EnergyJ)
	assert.Zero(t, est.AvgPowerW)

	est = e.Estimate(&OperationCounters{Comparisons: 10}, 0, 0, -1)
	assert.InDelta(t, 1e-8, est.EnergyJ, 1e-15)
	assert.Zero(t, est.AvgPowerW)
}

func TestEstimateBackend(t *testing.T) {
	est := NewEstimator(DefaultCoefficients()).Estimate(nil, 0, time.Second, -1)
	assert.IsType(t, EstimateResult{}, est)
	assert.Equal(t, "estimation", Estimation.String())
	assert.False(t, Estimation.IsHardware())
}
