// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package meter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"k8s.io/utils/clock"

	"github.com/sustainable-computing-io/joulebench/internal/device"
)

// estimatorSource is the source reported for estimated measurements
const estimatorSource = "model"

// Harness measures the energy of one computation at a time using the
// provider resolved by its Selector, or the Estimator when there is none
type Harness struct {
	logger    *slog.Logger
	clock     clock.WithTicker
	provider  device.Provider
	sampler   *Sampler
	estimator *Estimator
	cpuUsage  device.CPUUsageReader

	running atomic.Bool
	state   atomic.Int32
}

// NewHarness creates a Harness. The provider is resolved once from selector.
func NewHarness(selector *Selector, applyOpts ...OptionFn) *Harness {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	h := &Harness{
		logger:    opts.logger.With("service", "harness"),
		clock:     opts.clock,
		provider:  selector.Resolve(),
		estimator: opts.estimator,
		cpuUsage:  opts.cpuUsage,
	}
	if h.estimator == nil {
		h.estimator = NewEstimator(DefaultCoefficients())
	}
	if h.provider != nil {
		if _, ok := h.provider.(device.Recorder); !ok {
			h.sampler = NewSampler(h.provider, opts.interval, applyOpts...)
		}
	}
	return h
}

// Backend returns the backend used by Measure
func (h *Harness) Backend() Backend {
	if h.provider == nil {
		return Estimation
	}
	return backendOf(h.provider)
}

// Source returns the name of the provider used by Measure
func (h *Harness) Source() string {
	if h.provider == nil {
		return estimatorSource
	}
	return h.provider.Name()
}

// State returns the state of the current or last measurement cycle
func (h *Harness) State() State {
	return State(h.state.Load())
}

// Measure runs fn exactly once and returns its energy measurement. It never
// returns an error: failures are reported in the measurement outcome.
// Concurrent calls on the same harness fail immediately.
func (h *Harness) Measure(ctx context.Context, t Target, fn Func) Measurement {
	base := Measurement{
		AlgorithmID: t.ID,
		InputSize:   t.Size,
		Input:       t.Input,
		Backend:     h.Backend(),
		Source:      h.Source(),
		IsHardware:  h.Backend().IsHardware(),
		Timestamp:   h.clock.Now(),
	}

	if !h.running.CompareAndSwap(false, true) {
		return base.failed("measurement already in progress")
	}
	defer h.running.Store(false)

	h.state.Store(int32(StateRunning))
	m := h.measure(ctx, base, fn)

	if m.Outcome.IsOk() {
		h.state.Store(int32(StateSucceeded))
		h.logger.Debug("Measurement done", "measurement", m)
	} else {
		h.state.Store(int32(StateFailed))
		h.logger.Warn("Measurement failed",
			"algorithm", m.AlgorithmID, "size", m.InputSize, "reason", m.Outcome.Reason)
	}
	return m
}

// cycle is the telemetry collection of one measurement
type cycle struct {
	rec     device.Recording
	session *Session
	before  *device.CPUTimes
}

func (h *Harness) measure(ctx context.Context, base Measurement, fn Func) Measurement {
	c, err := h.begin(ctx)
	if err != nil {
		return base.failed(unreachableReason(err))
	}

	start := h.clock.Now()
	out, runErr := invoke(fn)
	elapsed := h.clock.Since(start)

	samples, interval, telErr := h.end(ctx, c, start, elapsed)

	switch {
	case runErr != nil:
		return base.failed(runErr.Error())
	case telErr != nil:
		return base.failed(unreachableReason(telErr))
	}

	m := base
	m.Outcome = Ok()
	m.ElapsedMs = float64(elapsed) / float64(time.Millisecond)
	m.Counters = out.Counters
	m.PeakMemoryBytes = out.PeakMemoryBytes

	if h.provider == nil {
		u := -1.0
		if c.before != nil {
			if after, err := h.cpuUsage.CPUTimes(); err == nil {
				u = device.Utilization(*c.before, after)
			}
		}
		est := h.estimator.Estimate(out.Counters, out.PeakMemoryBytes, elapsed, u)
		m.EnergyJoules = est.EnergyJ
		m.AvgPowerW = est.AvgPowerW
		m.MaxPowerW = est.AvgPowerW
		m.MinPowerW = est.AvgPowerW
		if u >= 0 {
			m.AvgUtilization = u
		}
		b := est.Breakdown
		m.Estimate = &b
		return m
	}

	in := Integrate(samples, elapsed, interval)
	m.SampleCount = in.Samples
	m.SamplingIntervalMs = float64(interval) / float64(time.Millisecond)
	m.EnergyJoules = in.EnergyJ
	m.Rails = in.Rails
	m.AvgPowerW = in.AvgW
	m.MaxPowerW = in.MaxW
	m.MinPowerW = in.MinW
	m.AvgFrequencyMHz = in.Aux.FrequencyMHz
	m.AvgTemperatureC = in.Aux.TemperatureC
	m.AvgUtilization = in.Aux.Utilization
	return m
}

// begin starts collecting telemetry for one cycle
func (h *Harness) begin(ctx context.Context) (*cycle, error) {
	c := &cycle{}
	switch p := h.provider.(type) {
	case nil:
		if h.cpuUsage != nil {
			if t, err := h.cpuUsage.CPUTimes(); err == nil {
				c.before = &t
			} else {
				h.logger.Debug("CPU usage not available", "error", err)
			}
		}
	case device.Recorder:
		rec, err := p.Record(ctx)
		if err != nil {
			return nil, err
		}
		c.rec = rec
	default:
		c.session = h.sampler.Start(ctx)
	}
	return c, nil
}

// end stops collecting and returns the samples of the computation window
func (h *Harness) end(ctx context.Context, c *cycle, start time.Time, elapsed time.Duration) ([]device.Sample, time.Duration, error) {
	switch {
	case c.rec != nil:
		samples, err := c.rec.Stop(ctx)
		if err != nil {
			return nil, c.rec.Interval(), err
		}
		return window(samples, start, start.Add(elapsed)), c.rec.Interval(), nil

	case c.session != nil:
		samples, err := c.session.Stop()
		return samples, h.sampler.Interval(), err
	}
	return nil, 0, nil
}

// window returns the samples stamped within [from, to], or all of them when
// none is
func window(samples []device.Sample, from, to time.Time) []device.Sample {
	var ret []device.Sample
	for _, s := range samples {
		if !s.Timestamp.Before(from) && !s.Timestamp.After(to) {
			ret = append(ret, s)
		}
	}
	if len(ret) == 0 {
		return samples
	}
	return ret
}

// invoke runs fn and turns a panic into an error
func invoke(fn Func) (out Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if fn == nil {
		return Output{}, errors.New("no computation to measure")
	}
	return fn()
}

func unreachableReason(err error) string {
	msg := err.Error()
	prefix := device.ErrUnreachable.Error()
	if strings.HasPrefix(msg, prefix) {
		return msg
	}
	return prefix + ": " + msg
}
