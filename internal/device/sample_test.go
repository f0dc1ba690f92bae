// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyRail(t *testing.T) {
	tests := []struct {
		name string
		want Rail
	}{
		{"CPU Package", RailPackage},
		{"package-0", RailPackage},
		{"Package id 1", RailPackage},
		{"PPT", RailPackage},
		{"CPU Cores", RailCores},
		{"core", RailCores},
		{"IA", RailCores},
		{"ia_power", RailCores},
		{"dram", RailMemory},
		{"Memory", RailMemory},
		{"GPU Package", RailAccelerator},
		{"uncore", RailAccelerator},
		{"GT", RailAccelerator},
		{"vddgfx", RailAccelerator},
		{"psys", RailPlatform},
		{"chassis_1_0", RailPlatform},
		{"Power Supply 1", RailPlatform},
		{"fan1", RailUnknown},
		{"", RailUnknown},
		{"   ", RailUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyRail(tt.name))
		})
	}
}

func TestSampleSetClampsNegative(t *testing.T) {
	var s Sample
	s.Set(RailPackage, Watts(-3))
	s.Set(RailMemory, Watts(2))
	s.Set(RailUnknown, Watts(100))

	assert.Zero(t, s.Package)
	assert.InDelta(t, 2.0, s.Memory.Watts(), 1e-9)
	assert.Zero(t, s.Get(RailUnknown))

	s.Add(RailMemory, Watts(1.5))
	assert.InDelta(t, 3.5, s.Get(RailMemory).Watts(), 1e-9)
}

func TestSampleTotal(t *testing.T) {
	tests := []struct {
		name   string
		sample Sample
		want   float64
	}{
		{"package wins", Sample{Package: Watts(20), Cores: Watts(12)}, 20},
		{"cores fallback", Sample{Cores: Watts(12), Platform: Watts(40)}, 12},
		{"platform only", Sample{Platform: Watts(40)}, 0},
		{"empty", Sample{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.sample.Total().Watts(), 1e-9)
		})
	}
}

func TestSampleIsZero(t *testing.T) {
	assert.True(t, Sample{}.IsZero())
	assert.True(t, Sample{Aux: Aux{FrequencyMHz: 3000}}.IsZero(), "aux readings are not rails")
	assert.False(t, Sample{Accelerator: Watts(1)}.IsZero())
}

func TestRailAndBackendNames(t *testing.T) {
	names := make([]string, 0, len(Rails))
	for _, r := range Rails {
		names = append(names, r.String())
	}
	assert.Equal(t, []string{"package", "cores", "platform", "memory", "accelerator"}, names)
	assert.Equal(t, "unknown", RailUnknown.String())

	assert.Equal(t, "log_based", LogBased.String())
	assert.Equal(t, "polling", Polling.String())
}
