// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/procfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeReader(t *testing.T) {
	r := NewFakeReader(nil, WithFakeLogger(discardLogger()), WithFakeSeed(42))
	require.NoError(t, r.Init())
	assert.Equal(t, "fake", r.Name())

	sensors, err := r.Sensors(context.Background())
	require.NoError(t, err)
	require.Len(t, sensors, len(defaultFakeZones))

	for _, s := range sensors {
		mean := fakeZoneWatts[s.Name]
		assert.InDelta(t, mean, s.Power.Watts(), mean*0.25+1e-9, "sensor %s within noise band", s.Name)
	}
	assert.NoError(t, r.Close())
}

func TestFakeReaderDeterministic(t *testing.T) {
	r := NewFakeReader([]string{"package", "mystery"}, WithFakeRandomFactor(0))

	sensors, err := r.Sensors(context.Background())
	require.NoError(t, err)
	require.Len(t, sensors, 2)
	assert.InDelta(t, 18.0, sensors[0].Power.Watts(), 1e-9)
	assert.InDelta(t, 5.0, sensors[1].Power.Watts(), 1e-9, "unknown zones default to 5W")
}

func TestFakeReaderFeedsPollingProvider(t *testing.T) {
	r := NewFakeReader([]string{"package", "core", "dram"}, WithFakeRandomFactor(0))
	p := NewPollingProvider([]SensorReader{r}, WithPollingLogger(discardLogger()))
	require.NoError(t, p.Init())

	s, err := p.Sample(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 18.0, s.Package.Watts(), 1e-9)
	assert.InDelta(t, 12.0, s.Cores.Watts(), 1e-9)
	assert.InDelta(t, 3.0, s.Memory.Watts(), 1e-9)
	assert.Equal(t, "fake", p.Name())
}

type fakeStat struct {
	stats []procfs.Stat
	err   error
	calls int
}

func (f *fakeStat) Stat() (procfs.Stat, error) {
	if f.err != nil {
		return procfs.Stat{}, f.err
	}
	s := f.stats[f.calls]
	f.calls++
	return s, nil
}

func TestCPUUsage(t *testing.T) {
	fs := &fakeStat{stats: []procfs.Stat{
		{CPUTotal: procfs.CPUStat{User: 100, System: 50, Idle: 800, Iowait: 50}},
		{CPUTotal: procfs.CPUStat{User: 170, System: 80, Idle: 880, Iowait: 70}},
	}}
	r := &procfsCPUUsage{fs: fs}

	before, err := r.CPUTimes()
	require.NoError(t, err)
	assert.InDelta(t, 150.0, before.Busy, 1e-9)
	assert.InDelta(t, 1000.0, before.Total, 1e-9)

	after, err := r.CPUTimes()
	require.NoError(t, err)
	assert.InDelta(t, 0.5, Utilization(before, after), 1e-9)

	_, err = (&procfsCPUUsage{fs: &fakeStat{err: errors.New("no proc")}}).CPUTimes()
	assert.ErrorContains(t, err, "failed to read cpu stat")
}

func TestUtilizationBounds(t *testing.T) {
	assert.Zero(t, Utilization(CPUTimes{Busy: 1, Total: 10}, CPUTimes{Busy: 1, Total: 10}))
	assert.Zero(t, Utilization(CPUTimes{Busy: 5, Total: 10}, CPUTimes{Busy: 1, Total: 20}))
	assert.Equal(t, 1.0, Utilization(CPUTimes{Busy: 0, Total: 10}, CPUTimes{Busy: 30, Total: 20}))
}
