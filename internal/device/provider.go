// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"context"
	"errors"
	"time"
)

// ErrUnreachable is wrapped by errors returned when a telemetry source cannot
// be reached at all, as opposed to reporting a zero reading
var ErrUnreachable = errors.New("telemetry unreachable")

// Backend identifies the kind of telemetry a provider serves
type Backend int

const (
	// LogBased providers drive an external logging tool and parse its output
	LogBased Backend = iota
	// Polling providers query running monitoring sources on demand
	Polling
)

func (b Backend) String() string {
	switch b {
	case LogBased:
		return "log_based"
	case Polling:
		return "polling"
	default:
		return "unknown"
	}
}

// Provider is a source of power telemetry
type Provider interface {
	// Name returns a string identifying the provider
	Name() string

	// Backend returns the kind of telemetry served
	Backend() Backend

	// Available reports whether the provider can serve samples. It must not
	// start or stop anything and repeated calls return the same answer while
	// the underlying source does not change.
	Available(ctx context.Context) bool

	// Sample returns a best effort snapshot. Rails that cannot be read are 0;
	// an error wrapping ErrUnreachable is returned only when the source is gone.
	Sample(ctx context.Context) (Sample, error)
}

// Recorder is implemented by providers that collect a whole time series in
// the background and hand it over once stopped
type Recorder interface {
	Provider

	// Record starts collecting. The returned error wraps ErrUnreachable when
	// collection could not be started.
	Record(ctx context.Context) (Recording, error)
}

// Recording is an in-progress collection started by a Recorder
type Recording interface {
	// Stop ends the collection and returns the samples gathered since Record,
	// in timestamp order. Malformed or missing data yields no samples.
	Stop(ctx context.Context) ([]Sample, error)

	// Interval is the resolution at which samples were collected
	Interval() time.Duration
}

// Sensor is a named power reading from a SensorReader
type Sensor struct {
	Name  string
	Power Power
}

// SensorReader reads named power sensors from one monitoring source
type SensorReader interface {
	// Name returns the source name
	Name() string

	// Init connects to or discovers the source
	Init() error

	// Sensors returns the current power sensors of the source
	Sensors(ctx context.Context) ([]Sensor, error)

	// Close releases any resources held by the reader
	Close() error
}

// Resetter is implemented by providers and readers whose readings are relative
// to the previous read. Reset drops that baseline so the next read starts a
// fresh measurement window.
type Resetter interface {
	Reset()
}

// Prober is implemented by readers that can check their source without
// reading it. Probe must not change what the next Sensors call returns.
type Prober interface {
	Probe(ctx context.Context) error
}
