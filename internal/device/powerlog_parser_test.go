// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const powerLog36 = `System Time,RDTSC,Elapsed Time (sec), CPU Utilization(%),CPU Frequency_0(MHz),Processor Power_0(Watt),Cumulative Processor Energy_0(Joules),Cumulative Processor Energy_0(mWh),IA Power_0(Watt),Cumulative IA Energy_0(Joules),Cumulative IA Energy_0(mWh),Package Temperature_0(C),Package Hot_0,DRAM Power_0(Watt),Cumulative DRAM Energy_0(Joules),Cumulative DRAM Energy_0(mWh),GT Power_0(Watt),Cumulative GT Energy_0(Joules),Cumulative GT Energy_0(mWh),Package PL1_0(Watt),Package PL2_0(Watt),Package PL4_0(Watt),Platform PsysPL1_0(Watt),Platform PsysPL2_0(Watt),GT Frequency(MHz),GT Utilization(%)
10:00:00:100,123,0.100,12,3600,20.000,2.000,0.556,15.000,1.500,0.417,61,0,2.000,0.200,0.056,1.000,0.100,0.028,65,90,120,0,0,300,3
10:00:00:200,124,0.200,14,3700,22.000,4.200,1.167,16.000,3.100,0.861,62,0,2.100,0.410,0.114,1.100,0.210,0.058,65,90,120,0,0,300,4
10:00:00:300,125,0.300,13,3650,21.000,6.300,1.750,oops,4.600,1.278,62,0,2.000,0.610,0.169,1.000,0.310,0.086,65,90,120,0,0,300,3

Total Elapsed Time (sec) = 0.300
Measured RDTSC Frequency (GHz) = 2.592
Cumulative Processor Energy_0 (Joules) = 6.300
Average Processor Power_0 (Watt) = 21.000
`

func TestParsePowerLog(t *testing.T) {
	start := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)

	samples, err := parsePowerLog(strings.NewReader(powerLog36), start, 100*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, samples, 2, "row with an unparsable value and summary lines are skipped")

	first := samples[0]
	assert.Equal(t, start.Add(100*time.Millisecond), first.Timestamp)
	assert.InDelta(t, 20.0, first.Package.Watts(), 1e-9)
	assert.InDelta(t, 15.0, first.Cores.Watts(), 1e-9)
	assert.InDelta(t, 2.0, first.Memory.Watts(), 1e-9)
	assert.InDelta(t, 1.0, first.Accelerator.Watts(), 1e-9)
	assert.Zero(t, first.Platform, "power limits are not platform power")
	assert.InDelta(t, 3600.0, first.Aux.FrequencyMHz, 1e-9)
	assert.InDelta(t, 61.0, first.Aux.TemperatureC, 1e-9)
	assert.InDelta(t, 12.0, first.Aux.Utilization, 1e-9, "cpu utilization, not gt utilization")

	assert.Equal(t, start.Add(200*time.Millisecond), samples[1].Timestamp)
	assert.InDelta(t, 22.0, samples[1].Total().Watts(), 1e-9)
}

func TestParsePowerLogReorderedColumns(t *testing.T) {
	log := `DRAM Power_0(Watt),Elapsed Time (sec),IA Power_0(Watt),Extra Column,Processor Power_0(Watt)
1.5,0.5,9,x,12
1.5,1.0,10,y,13
`
	start := time.Unix(1000, 0)
	samples, err := parsePowerLog(strings.NewReader(log), start, time.Second)
	require.NoError(t, err)
	require.Len(t, samples, 2)

	assert.InDelta(t, 12.0, samples[0].Package.Watts(), 1e-9)
	assert.InDelta(t, 9.0, samples[0].Cores.Watts(), 1e-9)
	assert.InDelta(t, 1.5, samples[0].Memory.Watts(), 1e-9)
	assert.Equal(t, start.Add(time.Second), samples[1].Timestamp)
}

func TestParsePowerLogPreamble(t *testing.T) {
	log := `Intel(R) Power Gadget 3.6
Logging started
System Time,Elapsed Time (sec),Processor Power_0(Watt)
10:00:00:100,0.100,30
`
	samples, err := parsePowerLog(strings.NewReader(log), time.Unix(0, 0), time.Second)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.InDelta(t, 30.0, samples[0].Package.Watts(), 1e-9)
}

func TestParsePowerLogCumulativeEnergyOnly(t *testing.T) {
	t.Run("joules", func(t *testing.T) {
		log := `Elapsed Time (sec),Cumulative Processor Energy_0(Joules)
0.0,0
0.5,5
1.0,15
`
		samples, err := parsePowerLog(strings.NewReader(log), time.Unix(0, 0), time.Second)
		require.NoError(t, err)
		require.Len(t, samples, 2, "first row only establishes the baseline")
		assert.InDelta(t, 10.0, samples[0].Package.Watts(), 1e-9)
		assert.InDelta(t, 20.0, samples[1].Package.Watts(), 1e-9)
	})

	t.Run("milliwatt hours", func(t *testing.T) {
		log := `Elapsed Time (sec),Cumulative Processor Energy_0(mWh)
0.0,0
1.0,5
`
		samples, err := parsePowerLog(strings.NewReader(log), time.Unix(0, 0), time.Second)
		require.NoError(t, err)
		require.Len(t, samples, 1)
		assert.InDelta(t, 18.0, samples[0].Package.Watts(), 1e-9)
	})
}

func TestParsePowerLogWithoutElapsed(t *testing.T) {
	log := `Processor Power_0(Watt),IA Power_0(Watt)
10,8
11,9
12,9
`
	start := time.Unix(0, 0)
	samples, err := parsePowerLog(strings.NewReader(log), start, 250*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, start, samples[0].Timestamp)
	assert.Equal(t, start.Add(500*time.Millisecond), samples[2].Timestamp)
}

func TestParsePowerLogMalformed(t *testing.T) {
	tests := []struct {
		name string
		log  string
	}{
		{"empty", ""},
		{"whitespace", "  \n\n"},
		{"no power columns", "Elapsed Time (sec),Fan Speed\n0.1,900\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			samples, err := parsePowerLog(strings.NewReader(tt.log), time.Unix(0, 0), time.Second)
			assert.Error(t, err)
			assert.Empty(t, samples)
		})
	}

	t.Run("header only", func(t *testing.T) {
		samples, err := parsePowerLog(strings.NewReader("Elapsed Time (sec),Processor Power_0(Watt)\n"), time.Unix(0, 0), time.Second)
		require.NoError(t, err)
		assert.Empty(t, samples)
	})

	t.Run("negative readings clamp", func(t *testing.T) {
		samples, err := parsePowerLog(strings.NewReader("Elapsed Time (sec),Processor Power_0(Watt)\n0.1,-4\n"), time.Unix(0, 0), time.Second)
		require.NoError(t, err)
		require.Len(t, samples, 1)
		assert.Zero(t, samples[0].Package)
	})
}

func TestCanonicalHeader(t *testing.T) {
	header, found := canonicalHeader([]string{
		"Elapsed Time (sec)", "Processor Power_0(Watt)", "Processor Power_1(Watt)", "Package PL1_0(Watt)",
	})
	assert.Equal(t, []string{"elapsed", "package_power", "column_2", "column_3"}, header)
	assert.True(t, found["package_power"])
	assert.False(t, found["cores_power"])
}

func TestParsePowerLogCRLF(t *testing.T) {
	log := "Intel(R) Power Gadget\r\nSystem Time,Elapsed Time (sec),Processor Power_0(Watt)\r\n10:00:00:100,0.100,30\r\n10:00:00:200,0.200,31\r\n"
	samples, err := parsePowerLog(strings.NewReader(log), time.Unix(0, 0), time.Second)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.InDelta(t, 31.0, samples[1].Package.Watts(), 1e-9)
}
