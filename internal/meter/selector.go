// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package meter

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/sustainable-computing-io/joulebench/internal/device"
)

// Probe is the availability of one provider as seen at construction
type Probe struct {
	Name      string
	Backend   device.Backend
	Available bool
}

// Selector resolves the best available telemetry provider once. Providers
// are ranked log-based first, then polling, keeping the given order within a
// backend. The resolution is never refreshed; build a new Selector instead.
type Selector struct {
	logger   *slog.Logger
	resolved device.Provider
	probes   []Probe
}

// SelectorOptionFn configures a Selector
type SelectorOptionFn func(*selectorOpts)

type selectorOpts struct {
	logger       *slog.Logger
	probeTimeout time.Duration
}

// WithSelectorLogger sets the logger of the Selector
func WithSelectorLogger(l *slog.Logger) SelectorOptionFn {
	return func(o *selectorOpts) {
		o.logger = l
	}
}

// WithProbeTimeout bounds each provider probe
func WithProbeTimeout(d time.Duration) SelectorOptionFn {
	return func(o *selectorOpts) {
		o.probeTimeout = d
	}
}

// NewSelector probes providers in priority order and caches the first one
// that is available. Every provider is probed so that Probes reports all of
// them.
func NewSelector(ctx context.Context, providers []device.Provider, applyOpts ...SelectorOptionFn) *Selector {
	opts := selectorOpts{
		logger:       slog.Default(),
		probeTimeout: 5 * time.Second,
	}
	for _, apply := range applyOpts {
		apply(&opts)
	}

	s := &Selector{logger: opts.logger.With("service", "selector")}

	ranked := make([]device.Provider, 0, len(providers))
	for _, p := range providers {
		if p != nil {
			ranked = append(ranked, p)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Backend() < ranked[j].Backend()
	})

	for _, p := range ranked {
		probeCtx, cancel := context.WithTimeout(ctx, opts.probeTimeout)
		ok := p.Available(probeCtx)
		cancel()

		s.probes = append(s.probes, Probe{Name: p.Name(), Backend: p.Backend(), Available: ok})
		s.logger.Debug("Probed telemetry provider", "provider", p.Name(), "backend", p.Backend(), "available", ok)

		if ok && s.resolved == nil {
			s.resolved = p
		}
	}

	if s.resolved == nil {
		s.logger.Warn("No hardware telemetry available; energy will be estimated")
	} else {
		s.logger.Info("Telemetry provider selected", "provider", s.resolved.Name(), "backend", s.resolved.Backend())
	}
	return s
}

// Resolve returns the selected provider or nil when no real telemetry is
// available
func (s *Selector) Resolve() device.Provider {
	if s == nil {
		return nil
	}
	return s.resolved
}

// Probes returns the probe result of every provider in priority order
func (s *Selector) Probes() []Probe {
	if s == nil {
		return nil
	}
	ret := make([]Probe, len(s.probes))
	copy(ret, s.probes)
	return ret
}
