// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package meter

import (
	"log/slog"
	"time"

	"k8s.io/utils/clock"

	"github.com/sustainable-computing-io/joulebench/internal/device"
)

type Opts struct {
	logger      *slog.Logger
	clock       clock.WithTicker
	interval    time.Duration
	joinTimeout time.Duration
	estimator   *Estimator
	cpuUsage    device.CPUUsageReader
}

// DefaultOpts returns the harness options with defaults set
func DefaultOpts() Opts {
	return Opts{
		logger:      slog.Default(),
		clock:       clock.RealClock{},
		interval:    100 * time.Millisecond,
		joinTimeout: 0, // one interval
		estimator:   NewEstimator(DefaultCoefficients()),
	}
}

// OptionFn is a function that sets one or more options in Opts struct
type OptionFn func(*Opts)

// WithLogger sets the logger for the Harness
func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

// WithClock sets the clock used to time computations and stamp samples
func WithClock(c clock.WithTicker) OptionFn {
	return func(o *Opts) {
		o.clock = c
	}
}

// WithInterval sets the sampling interval of polling providers
func WithInterval(d time.Duration) OptionFn {
	return func(o *Opts) {
		o.interval = d
	}
}

// WithJoinTimeout bounds the wait for the sampler after stop; 0 waits one
// interval
func WithJoinTimeout(d time.Duration) OptionFn {
	return func(o *Opts) {
		o.joinTimeout = d
	}
}

// WithEstimator sets the estimator used when no telemetry is available
func WithEstimator(e *Estimator) OptionFn {
	return func(o *Opts) {
		o.estimator = e
	}
}

// WithCPUUsage sets the reader used for the utilization of estimated runs
func WithCPUUsage(r device.CPUUsageReader) OptionFn {
	return func(o *Opts) {
		o.cpuUsage = r
	}
}
