// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/procfs/sysfs"
	"k8s.io/utils/clock"
)

// raplZone is a cumulative RAPL energy counter
type raplZone interface {
	Name() string
	Path() string
	Energy() (Energy, error)
	MaxEnergy() Energy
}

// raplZoneSource lists RAPL zones; it exists so tests can replace sysfs
type raplZoneSource interface {
	Zones() ([]raplZone, error)
}

// raplReader implements SensorReader by turning RAPL energy counters into
// power: each read reports the average power since the previous read
type raplReader struct {
	logger     *slog.Logger
	source     raplZoneSource
	clock      clock.WithTicker
	zoneFilter []string
	primeGap   time.Duration

	mu    sync.Mutex
	zones []raplZone
	last  *raplReading
}

type raplReading struct {
	at     time.Time
	energy map[string]Energy
}

var (
	_ SensorReader = (*raplReader)(nil)
	_ Resetter     = (*raplReader)(nil)
	_ Prober       = (*raplReader)(nil)
)

// RaplOptionFn is a function that configures raplReader options
type RaplOptionFn func(*raplReader)

// WithRaplLogger sets the logger for raplReader
func WithRaplLogger(logger *slog.Logger) RaplOptionFn {
	return func(r *raplReader) {
		r.logger = logger.With("source", "rapl")
	}
}

// WithRaplZoneFilter restricts the reader to zones whose name contains one of
// the given names, e.g. "package" matches "package-0" and "package-1"
func WithRaplZoneFilter(zones []string) RaplOptionFn {
	return func(r *raplReader) {
		r.zoneFilter = zones
	}
}

// WithRaplPrimeGap sets the gap between the two reads taken when no previous
// reading exists
func WithRaplPrimeGap(d time.Duration) RaplOptionFn {
	return func(r *raplReader) {
		r.primeGap = d
	}
}

// WithRaplClock sets the clock used to time reads
func WithRaplClock(c clock.WithTicker) RaplOptionFn {
	return func(r *raplReader) {
		r.clock = c
	}
}

func withRaplZoneSource(s raplZoneSource) RaplOptionFn {
	return func(r *raplReader) {
		r.source = s
	}
}

// NewRaplReader creates a RAPL reader over the powercap interface in sysfsPath
func NewRaplReader(sysfsPath string, opts ...RaplOptionFn) *raplReader {
	r := &raplReader{
		logger:   slog.Default().With("source", "rapl"),
		source:   &powercapSource{path: sysfsPath},
		clock:    clock.RealClock{},
		primeGap: 20 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *raplReader) Name() string {
	return "rapl"
}

// Init discovers zones and verifies the first one can be read
func (r *raplReader) Init() error {
	zones, err := r.source.Zones()
	if err != nil {
		return fmt.Errorf("failed to read RAPL zones: %w", err)
	}

	zones = r.filter(zones)
	if len(zones) == 0 {
		return fmt.Errorf("no RAPL zones found")
	}

	if _, err := zones[0].Energy(); err != nil {
		return fmt.Errorf("failed to read energy from zone %s: %w", zones[0].Name(), err)
	}

	r.mu.Lock()
	r.zones = zones
	r.last = nil
	r.mu.Unlock()
	return nil
}

func (r *raplReader) filter(zones []raplZone) []raplZone {
	if len(r.zoneFilter) == 0 {
		return zones
	}
	filtered := make([]raplZone, 0, len(zones))
	for _, z := range zones {
		name := strings.ToLower(z.Name())
		for _, want := range r.zoneFilter {
			if strings.Contains(name, strings.ToLower(want)) {
				filtered = append(filtered, z)
				break
			}
		}
	}
	return filtered
}

func (r *raplReader) read() (*raplReading, error) {
	reading := &raplReading{
		at:     r.clock.Now(),
		energy: make(map[string]Energy, len(r.zones)),
	}
	for _, z := range r.zones {
		e, err := z.Energy()
		if err != nil {
			return nil, fmt.Errorf("failed to read energy from zone %s: %w", z.Name(), err)
		}
		reading.energy[z.Path()] = e
	}
	return reading, nil
}

func (r *raplReader) Sensors(ctx context.Context) ([]Sensor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.zones) == 0 {
		return nil, fmt.Errorf("rapl reader not initialized")
	}

	if r.last == nil {
		first, err := r.read()
		if err != nil {
			return nil, err
		}
		r.last = first

		if r.primeGap > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-r.clock.After(r.primeGap):
			}
		}
	}

	cur, err := r.read()
	if err != nil {
		return nil, err
	}
	prev := r.last
	r.last = cur

	elapsed := cur.at.Sub(prev.at)
	sensors := make([]Sensor, 0, len(r.zones))
	for _, z := range r.zones {
		delta := cur.energy[z.Path()].Delta(prev.energy[z.Path()], z.MaxEnergy())
		sensors = append(sensors, Sensor{
			Name:  z.Name(),
			Power: PowerOver(delta, elapsed),
		})
	}
	return sensors, nil
}

// Reset drops the previous reading; the next Sensors call primes again
func (r *raplReader) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = nil
}

// Probe reads every zone counter once without touching the baseline
func (r *raplReader) Probe(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.zones) == 0 {
		return fmt.Errorf("rapl reader not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := r.read()
	return err
}

func (r *raplReader) Close() error {
	return nil
}

// powercapSource reads RAPL zones from the Linux powercap sysfs interface
type powercapSource struct {
	path string
}

func (p *powercapSource) Zones() ([]raplZone, error) {
	fs, err := sysfs.NewFS(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to create sysfs filesystem: %w", err)
	}

	zones, err := sysfs.GetRaplZones(fs)
	if err != nil {
		return nil, fmt.Errorf("failed to read rapl zones: %w", err)
	}

	ret := make([]raplZone, 0, len(zones))
	for _, z := range zones {
		ret = append(ret, sysfsRaplZone{z})
	}
	return ret, nil
}

// sysfsRaplZone adapts sysfs.RaplZone to raplZone
type sysfsRaplZone struct {
	zone sysfs.RaplZone
}

func (s sysfsRaplZone) Name() string {
	return s.zone.Name
}

func (s sysfsRaplZone) Path() string {
	return s.zone.Path
}

func (s sysfsRaplZone) Energy() (Energy, error) {
	uj, err := s.zone.GetEnergyMicrojoules()
	return Energy(uj), err
}

func (s sysfsRaplZone) MaxEnergy() Energy {
	return Energy(s.zone.MaxMicrojoules)
}
