// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// PollingProvider serves samples by reading power sensors from one or more
// running monitoring sources each time Sample is called.
//
// Sources are consulted in the order given. When two sources report the same
// rail, the earlier source wins so that e.g. RAPL and hwmon package readings
// are never added together.
type PollingProvider struct {
	logger       *slog.Logger
	readers      []SensorReader
	active       []SensorReader
	probeTimeout time.Duration
	clock        func() time.Time
}

var (
	_ Provider = (*PollingProvider)(nil)
	_ Resetter = (*PollingProvider)(nil)
)

// PollingOptionFn is a function that configures PollingProvider options
type PollingOptionFn func(*PollingProvider)

// WithPollingLogger sets the logger for PollingProvider
func WithPollingLogger(logger *slog.Logger) PollingOptionFn {
	return func(p *PollingProvider) {
		p.logger = logger.With("service", "polling")
	}
}

// WithProbeTimeout bounds each source read made by Available
func WithProbeTimeout(d time.Duration) PollingOptionFn {
	return func(p *PollingProvider) {
		p.probeTimeout = d
	}
}

// NewPollingProvider creates a provider over the given sensor readers
func NewPollingProvider(readers []SensorReader, opts ...PollingOptionFn) *PollingProvider {
	p := &PollingProvider{
		logger:       slog.Default().With("service", "polling"),
		readers:      readers,
		probeTimeout: 2 * time.Second,
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *PollingProvider) Name() string {
	names := make([]string, 0, len(p.readers))
	for _, r := range p.sources() {
		names = append(names, r.Name())
	}
	return strings.Join(names, "+")
}

func (p *PollingProvider) Backend() Backend {
	return Polling
}

// Init initializes every reader and keeps the ones that succeed.
// It fails only if no reader could be initialized.
func (p *PollingProvider) Init() error {
	var errs []error
	p.active = p.active[:0]
	for _, r := range p.readers {
		if err := r.Init(); err != nil {
			p.logger.Warn("Dropping telemetry source", "source", r.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
			continue
		}
		p.logger.Info("Telemetry source initialized", "source", r.Name())
		p.active = append(p.active, r)
	}

	if len(p.active) == 0 {
		if len(errs) == 0 {
			return fmt.Errorf("no telemetry sources configured")
		}
		return fmt.Errorf("no telemetry source could be initialized: %w", errors.Join(errs...))
	}
	return nil
}

func (p *PollingProvider) sources() []SensorReader {
	if len(p.active) != 0 {
		return p.active
	}
	return p.readers
}

// Available reports whether at least one source returns a power sensor.
// Sources implementing Prober are probed instead of read, so that calling
// Available does not shift the baseline of counter based sources.
func (p *PollingProvider) Available(ctx context.Context) bool {
	for _, r := range p.active {
		probeCtx, cancel := context.WithTimeout(ctx, p.probeTimeout)
		ok, err := p.probe(probeCtx, r)
		cancel()
		if err != nil {
			p.logger.Debug("Source not available", "source", r.Name(), "error", err)
			continue
		}
		if ok {
			return true
		}
	}
	return false
}

func (p *PollingProvider) probe(ctx context.Context, r SensorReader) (bool, error) {
	if pr, ok := r.(Prober); ok {
		if err := pr.Probe(ctx); err != nil {
			return false, err
		}
		return true, nil
	}
	sensors, err := r.Sensors(ctx)
	if err != nil {
		return false, err
	}
	return len(sensors) > 0, nil
}

// Reset resets every active source that keeps a baseline between reads
func (p *PollingProvider) Reset() {
	for _, r := range p.active {
		if rs, ok := r.(Resetter); ok {
			rs.Reset()
		}
	}
}

func (p *PollingProvider) Sample(ctx context.Context) (Sample, error) {
	if len(p.active) == 0 {
		return Sample{}, fmt.Errorf("%w: no initialized telemetry source", ErrUnreachable)
	}

	s := Sample{Timestamp: p.clock()}
	reported := map[Rail]bool{}
	var errs []error

	for _, r := range p.active {
		sensors, err := r.Sensors(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
			continue
		}

		partial := Sample{}
		seen := map[Rail]bool{}
		for _, sensor := range sensors {
			rail := ClassifyRail(sensor.Name)
			if rail == RailUnknown {
				continue
			}
			partial.Add(rail, sensor.Power)
			seen[rail] = true
		}

		for rail := range seen {
			if reported[rail] {
				continue
			}
			s.Set(rail, partial.Get(rail))
			reported[rail] = true
		}
	}

	if len(errs) == len(p.active) {
		return Sample{}, fmt.Errorf("%w: %w", ErrUnreachable, errors.Join(errs...))
	}
	for _, err := range errs {
		p.logger.Debug("Partial telemetry read", "error", err)
	}
	return s, nil
}

// Close closes every reader
func (p *PollingProvider) Close() error {
	var errs []error
	for _, r := range p.readers {
		if err := r.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
		}
	}
	return errors.Join(errs...)
}
