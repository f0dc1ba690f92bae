// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
)

// NOTE: the fake reader is not intended to be used in production and is for
// development and testing only
var defaultFakeZones = []string{"package", "core", "dram"}

// fakeZoneWatts is the mean power reported per zone name
var fakeZoneWatts = map[string]float64{
	"package": 18,
	"core":    12,
	"dram":    3,
	"uncore":  2,
	"psys":    30,
}

// fakeReader implements SensorReader with randomized readings around a mean
type fakeReader struct {
	logger       *slog.Logger
	zones        []string
	randomFactor float64

	mu  sync.Mutex
	rnd *rand.Rand
}

var _ SensorReader = (*fakeReader)(nil)

// FakeOptFn is a functional option for configuring fakeReader
type FakeOptFn func(*fakeReader)

// WithFakeLogger sets the logger for the fake reader
func WithFakeLogger(l *slog.Logger) FakeOptFn {
	return func(r *fakeReader) {
		r.logger = l.With("source", r.Name())
	}
}

// WithFakeSeed makes readings reproducible
func WithFakeSeed(seed int64) FakeOptFn {
	return func(r *fakeReader) {
		r.rnd = rand.New(rand.NewSource(seed))
	}
}

// WithFakeRandomFactor sets the relative amplitude of the noise, 0 disables it
func WithFakeRandomFactor(f float64) FakeOptFn {
	return func(r *fakeReader) {
		r.randomFactor = f
	}
}

// NewFakeReader creates a fake sensor reader for the given zones
func NewFakeReader(zones []string, opts ...FakeOptFn) *fakeReader {
	// nil and empty slices are equivalent
	if len(zones) == 0 {
		zones = defaultFakeZones
	}
	r := &fakeReader{
		logger:       slog.Default().With("source", "fake"),
		zones:        zones,
		randomFactor: 0.25,
		rnd:          rand.New(rand.NewSource(rand.Int63())),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *fakeReader) Name() string {
	return "fake"
}

func (r *fakeReader) Init() error {
	r.logger.Warn("Using fake power readings; measurements are not real")
	return nil
}

func (r *fakeReader) Sensors(ctx context.Context) ([]Sensor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sensors := make([]Sensor, 0, len(r.zones))
	for _, z := range r.zones {
		mean, ok := fakeZoneWatts[z]
		if !ok {
			mean = 5
		}
		noise := (r.rnd.Float64()*2 - 1) * r.randomFactor * mean
		sensors = append(sensors, Sensor{Name: z, Power: Watts(mean + noise)})
	}
	return sensors, nil
}

func (r *fakeReader) Close() error {
	return nil
}
