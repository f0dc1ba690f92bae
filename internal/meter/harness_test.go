// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package meter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/sustainable-computing-io/joulebench/internal/device"
)

func newTestHarness(t *testing.T, fakeClock *testingclock.FakeClock, providers []device.Provider, opts ...OptionFn) *Harness {
	t.Helper()
	sel := NewSelector(context.Background(), providers, WithSelectorLogger(discardLogger()))
	opts = append([]OptionFn{WithLogger(discardLogger()), WithClock(fakeClock)}, opts...)
	return NewHarness(sel, opts...)
}

// runFor returns a computation that advances the clock by d
func runFor(c *testingclock.FakeClock, d time.Duration, out Output) Func {
	return func() (Output, error) {
		c.Step(d)
		return out, nil
	}
}

// assertZeroNumerics checks that a failed measurement carries no numbers
func assertZeroNumerics(t *testing.T, m Measurement) {
	t.Helper()
	assert.Zero(t, m.ElapsedMs)
	assert.Zero(t, m.SampleCount)
	assert.Zero(t, m.SamplingIntervalMs)
	assert.Zero(t, m.EnergyJoules)
	assert.Equal(t, RailEnergy{}, m.Rails)
	assert.Zero(t, m.AvgPowerW)
	assert.Zero(t, m.MaxPowerW)
	assert.Zero(t, m.MinPowerW)
	assert.Zero(t, m.AvgFrequencyMHz)
	assert.Zero(t, m.AvgTemperatureC)
	assert.Zero(t, m.AvgUtilization)
	assert.Nil(t, m.Counters)
	assert.Nil(t, m.Estimate)
}

func TestHarnessLogBased(t *testing.T) {
	now := time.Now()
	fakeClock := testingclock.NewFakeClock(now)
	rec := newFakeRecorder("powerlog", constRows(10, 1.0, now, 50*time.Millisecond), 50*time.Millisecond)
	h := newTestHarness(t, fakeClock, []device.Provider{newFakeProvider("rapl", 99), rec})
	assert.Equal(t, StateIdle, h.State())

	tt := []struct {
		name    string
		elapsed time.Duration
		energy  float64
	}{
		{"scenario A", 500 * time.Millisecond, 0.5},
		{"scenario B", 600 * time.Millisecond, 0.6},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			rec.rows = constRows(10, 1.0, fakeClock.Now(), 50*time.Millisecond)
			m := h.Measure(context.Background(), Target{ID: "quick_sort", Size: 1000, Input: "random"},
				runFor(fakeClock, tc.elapsed, Output{}))

			require.True(t, m.Outcome.IsOk(), m.Outcome.String())
			assert.Equal(t, LogBased, m.Backend)
			assert.Equal(t, "powerlog", m.Source)
			assert.True(t, m.IsHardware)
			assert.Equal(t, "quick_sort", m.AlgorithmID)
			assert.Equal(t, 1000, m.InputSize)
			assert.InDelta(t, float64(tc.elapsed.Milliseconds()), m.ElapsedMs, 1e-9)
			assert.Equal(t, 10, m.SampleCount)
			assert.InDelta(t, 50.0, m.SamplingIntervalMs, 1e-9)
			assert.InDelta(t, tc.energy, m.EnergyJoules, 1e-9)
			assert.InDelta(t, tc.energy, m.Rails.Package, 1e-9)
			assert.InDelta(t, 1.0, m.AvgPowerW, 1e-9)
			assert.Nil(t, m.Estimate)
			assert.Equal(t, StateSucceeded, h.State())
		})
	}
}

func TestHarnessLogWindow(t *testing.T) {
	now := time.Now()
	fakeClock := testingclock.NewFakeClock(now)

	// two warmup rows before the computation, four during it
	rows := constRows(6, 0, now.Add(-100*time.Millisecond), 50*time.Millisecond)
	for i := range rows {
		rows[i].Set(device.RailPackage, device.Watts(float64(i+1)))
	}
	rec := newFakeRecorder("powerlog", rows, 50*time.Millisecond)
	h := newTestHarness(t, fakeClock, []device.Provider{rec})

	m := h.Measure(context.Background(), Target{ID: "a"}, runFor(fakeClock, 200*time.Millisecond, Output{}))
	require.True(t, m.Outcome.IsOk())
	assert.Equal(t, 4, m.SampleCount)
	assert.InDelta(t, 3.0, m.MinPowerW, 1e-9)
	assert.InDelta(t, 6.0, m.MaxPowerW, 1e-9)

	// rows outside the window are all kept when none falls inside
	rec.rows = constRows(3, 2, now.Add(-time.Hour), 50*time.Millisecond)
	m = h.Measure(context.Background(), Target{ID: "a"}, runFor(fakeClock, 150*time.Millisecond, Output{}))
	require.True(t, m.Outcome.IsOk())
	assert.Equal(t, 3, m.SampleCount)
	assert.InDelta(t, 0.3, m.EnergyJoules, 1e-9)
}

func TestHarnessParseMissIsOk(t *testing.T) {
	fakeClock := testingclock.NewFakeClock(time.Now())
	rec := newFakeRecorder("powerlog", nil, 50*time.Millisecond)
	h := newTestHarness(t, fakeClock, []device.Provider{rec})

	m := h.Measure(context.Background(), Target{ID: "a", Size: 10}, runFor(fakeClock, 300*time.Millisecond, Output{}))
	assert.True(t, m.Outcome.IsOk())
	assert.Zero(t, m.SampleCount)
	assert.Zero(t, m.EnergyJoules)
	assert.InDelta(t, 300.0, m.ElapsedMs, 1e-9)
	assert.True(t, m.IsHardware)
}

func TestHarnessRecordFails(t *testing.T) {
	fakeClock := testingclock.NewFakeClock(time.Now())
	rec := newFakeRecorder("powerlog", nil, 50*time.Millisecond)
	rec.recordErr = fmt.Errorf("%w: failed to start PowerLog3.0: exec format error", device.ErrUnreachable)
	h := newTestHarness(t, fakeClock, []device.Provider{rec})

	invoked := false
	m := h.Measure(context.Background(), Target{ID: "merge_sort", Size: 5, Input: "sorted"}, func() (Output, error) {
		invoked = true
		return Output{}, nil
	})

	assert.False(t, invoked, "computation is not run without telemetry")
	assert.False(t, m.Outcome.IsOk())
	assert.Equal(t, "telemetry unreachable: failed to start PowerLog3.0: exec format error", m.Outcome.Reason)
	assert.Equal(t, "merge_sort", m.AlgorithmID)
	assert.Equal(t, 5, m.InputSize)
	assert.Equal(t, "sorted", m.Input)
	assert.Equal(t, LogBased, m.Backend)
	assert.False(t, m.Timestamp.IsZero())
	assertZeroNumerics(t, m)
	assert.Equal(t, StateFailed, h.State())
}

func TestHarnessStopFails(t *testing.T) {
	fakeClock := testingclock.NewFakeClock(time.Now())
	rec := newFakeRecorder("powerlog", constRows(3, 1, fakeClock.Now(), 50*time.Millisecond), 50*time.Millisecond)
	rec.stopErr = errors.New("pipe closed")
	h := newTestHarness(t, fakeClock, []device.Provider{rec})

	m := h.Measure(context.Background(), Target{ID: "a"}, runFor(fakeClock, time.Second, Output{}))
	assert.Equal(t, Failed("telemetry unreachable: pipe closed"), m.Outcome)
	assertZeroNumerics(t, m)
}

func TestHarnessPolling(t *testing.T) {
	fakeClock := testingclock.NewFakeClock(time.Now())
	p := newFakeProvider("rapl", 20)
	h := newTestHarness(t, fakeClock, []device.Provider{p}, WithInterval(50*time.Millisecond))

	m := h.Measure(context.Background(), Target{ID: "bubble_sort", Size: 100}, func() (Output, error) {
		require.Eventually(t, func() bool { return p.samples.Load() >= 1 }, time.Second, time.Millisecond)
		fakeClock.Step(30 * time.Millisecond)
		return Output{Counters: &OperationCounters{Comparisons: 4950}}, nil
	})

	require.True(t, m.Outcome.IsOk(), m.Outcome.String())
	assert.Equal(t, Polling, m.Backend)
	assert.Equal(t, "rapl", m.Source)
	assert.True(t, m.IsHardware)
	assert.Positive(t, m.SampleCount)
	assert.InDelta(t, 50.0, m.SamplingIntervalMs, 1e-9)
	assert.InDelta(t, 20*0.03, m.EnergyJoules, 1e-9, "energy covers the elapsed time")
	assert.InDelta(t, 10*0.03, m.Rails.Cores, 1e-9)
	assert.Equal(t, uint64(4950), m.Counters.Comparisons)
	assert.Nil(t, m.Estimate)
}

func TestHarnessPollingFailsMidRun(t *testing.T) {
	fakeClock := testingclock.NewFakeClock(time.Now())
	p := newFakeProvider("rapl", 20)
	h := newTestHarness(t, fakeClock, []device.Provider{p}, WithInterval(50*time.Millisecond))

	m := h.Measure(context.Background(), Target{ID: "a"}, func() (Output, error) {
		require.Eventually(t, fakeClock.HasWaiters, time.Second, time.Millisecond)
		p.setErr(fmt.Errorf("%w: powercap gone", device.ErrUnreachable))
		fakeClock.Step(50 * time.Millisecond)
		require.Eventually(t, func() bool { return p.samples.Load() >= 2 }, time.Second, time.Millisecond)
		return Output{}, nil
	})

	assert.Equal(t, Failed("telemetry unreachable: powercap gone"), m.Outcome)
	assertZeroNumerics(t, m)

	p.setErr(nil)
	m = h.Measure(context.Background(), Target{ID: "a"}, runFor(fakeClock, 10*time.Millisecond, Output{}))
	assert.True(t, m.Outcome.IsOk(), "a transient failure does not poison the harness")
}

func TestHarnessEstimation(t *testing.T) {
	fakeClock := testingclock.NewFakeClock(time.Now())
	unavailable := newFakeProvider("rapl", 1)
	unavailable.available = false
	h := newTestHarness(t, fakeClock, []device.Provider{unavailable})

	counters := Output{Counters: &OperationCounters{Comparisons: 1000, Swaps: 200, Iterations: 1000, MemoryAccesses: 3000}}
	first := h.Measure(context.Background(), Target{ID: "heap_sort", Size: 1000}, runFor(fakeClock, 10*time.Millisecond, counters))
	second := h.Measure(context.Background(), Target{ID: "heap_sort", Size: 1000}, runFor(fakeClock, 10*time.Millisecond, counters))

	require.True(t, first.Outcome.IsOk())
	assert.Equal(t, Estimation, first.Backend)
	assert.Equal(t, "model", first.Source)
	assert.False(t, first.IsHardware)
	assert.Positive(t, first.EnergyJoules)
	assert.Equal(t, first.EnergyJoules, second.EnergyJoules, "estimates are reproducible")
	require.NotNil(t, first.Estimate)
	assert.Equal(t, "operations", first.Estimate.Model)
	assert.Zero(t, first.SampleCount)
	assert.Zero(t, unavailable.samples.Load(), "unavailable providers are never sampled")
}

type fakeCPUUsage struct {
	times []device.CPUTimes
	calls int
}

func (f *fakeCPUUsage) CPUTimes() (device.CPUTimes, error) {
	if f.calls >= len(f.times) {
		return device.CPUTimes{}, errors.New("no more stat")
	}
	t := f.times[f.calls]
	f.calls++
	return t, nil
}

func TestHarnessEstimationWithUtilization(t *testing.T) {
	fakeClock := testingclock.NewFakeClock(time.Now())
	c := DefaultCoefficients()
	c.TDPW = 100
	usage := &fakeCPUUsage{times: []device.CPUTimes{{Busy: 10, Total: 100}, {Busy: 60, Total: 200}}}
	h := newTestHarness(t, fakeClock, nil, WithEstimator(NewEstimator(c)), WithCPUUsage(usage))

	m := h.Measure(context.Background(), Target{ID: "a"}, runFor(fakeClock, time.Second, Output{}))
	require.True(t, m.Outcome.IsOk())
	assert.InDelta(t, 0.5, m.AvgUtilization, 1e-9)
	assert.InDelta(t, 60.0, m.EnergyJoules, 1e-9)
	assert.Equal(t, "tdp", m.Estimate.Model)
	assert.Equal(t, 2, usage.calls)
}

func TestHarnessFailureIsolation(t *testing.T) {
	fakeClock := testingclock.NewFakeClock(time.Now())
	p := newFakeProvider("rapl", 10)
	h := newTestHarness(t, fakeClock, []device.Provider{p}, WithInterval(50*time.Millisecond))

	tt := []struct {
		name   string
		fn     Func
		reason string
	}{
		{"error", func() (Output, error) {
			fakeClock.Step(20 * time.Millisecond)
			return Output{Counters: &OperationCounters{Swaps: 1}}, errors.New("index out of range")
		}, "index out of range"},
		{"panic", func() (Output, error) {
			fakeClock.Step(20 * time.Millisecond)
			panic("boom")
		}, "panic: boom"},
		{"nil", nil, "no computation to measure"},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			var m Measurement
			assert.NotPanics(t, func() {
				m = h.Measure(context.Background(), Target{ID: "x", Size: 3}, tc.fn)
			})
			assert.Equal(t, Failed(tc.reason), m.Outcome)
			assert.Equal(t, "x", m.AlgorithmID)
			assert.Equal(t, Polling, m.Backend)
			assertZeroNumerics(t, m)
			assert.Equal(t, StateFailed, h.State())

			ok := h.Measure(context.Background(), Target{ID: "x", Size: 3}, runFor(fakeClock, 20*time.Millisecond, Output{}))
			assert.True(t, ok.Outcome.IsOk())
			assert.Positive(t, ok.EnergyJoules)
			assert.Equal(t, StateSucceeded, h.State())
		})
	}
}

func TestHarnessOverlap(t *testing.T) {
	fakeClock := testingclock.NewFakeClock(time.Now())
	h := newTestHarness(t, fakeClock, nil)

	entered := make(chan struct{})
	release := make(chan struct{})
	var (
		wg    sync.WaitGroup
		first Measurement
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		first = h.Measure(context.Background(), Target{ID: "slow"}, func() (Output, error) {
			close(entered)
			<-release
			return Output{}, nil
		})
	}()

	<-entered
	assert.Equal(t, StateRunning, h.State())
	second := h.Measure(context.Background(), Target{ID: "fast", Size: 7}, runFor(fakeClock, time.Millisecond, Output{}))
	assert.Equal(t, Failed("measurement already in progress"), second.Outcome)
	assert.Equal(t, "fast", second.AlgorithmID)
	assert.Equal(t, 7, second.InputSize)
	assert.Equal(t, StateRunning, h.State(), "a rejected call does not touch the running cycle")

	close(release)
	wg.Wait()
	assert.True(t, first.Outcome.IsOk())
	assert.Equal(t, StateSucceeded, h.State())
}

func TestUnreachableReason(t *testing.T) {
	assert.Equal(t, "telemetry unreachable: x", unreachableReason(fmt.Errorf("%w: x", device.ErrUnreachable)))
	assert.Equal(t, "telemetry unreachable: context canceled", unreachableReason(context.Canceled))
}
