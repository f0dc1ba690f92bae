// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"k8s.io/utils/ptr"

	"github.com/sustainable-computing-io/joulebench/config"
	redfishcfg "github.com/sustainable-computing-io/joulebench/config/redfish"
	"github.com/sustainable-computing-io/joulebench/internal/device"
	"github.com/sustainable-computing-io/joulebench/internal/meter"
	"github.com/sustainable-computing-io/joulebench/internal/platform/redfish"
)

// telemetry holds the resolved telemetry stack of a joulebench process
type telemetry struct {
	logger   *slog.Logger
	selector *meter.Selector
	harness  *meter.Harness
	polling  *device.PollingProvider
}

func (t *telemetry) Close() {
	if t.polling == nil {
		return
	}
	if err := t.polling.Close(); err != nil {
		t.logger.Warn("failed to close telemetry sources", "error", err)
	}
}

// createTelemetry probes every configured provider and builds the harness
// around the selected one
func createTelemetry(ctx context.Context, logger *slog.Logger, cfg *config.Config) (*telemetry, error) {
	providers, polling, err := createProviders(logger, cfg)
	if err != nil {
		return nil, err
	}

	selector := meter.NewSelector(ctx, providers, meter.WithSelectorLogger(logger))

	opts := []meter.OptionFn{
		meter.WithLogger(logger),
		meter.WithInterval(cfg.Telemetry.Interval),
		meter.WithEstimator(meter.NewEstimator(coefficients(cfg.Estimator))),
	}
	if cfg.Telemetry.JoinTimeout > 0 {
		opts = append(opts, meter.WithJoinTimeout(cfg.Telemetry.JoinTimeout))
	}
	if usage, err := device.NewCPUUsageReader(cfg.Host.ProcFS); err != nil {
		logger.Warn("CPU utilization unavailable to the estimator", "error", err)
	} else {
		opts = append(opts, meter.WithCPUUsage(usage))
	}

	return &telemetry{
		logger:   logger,
		selector: selector,
		harness:  meter.NewHarness(selector, opts...),
		polling:  polling,
	}, nil
}

func coefficients(e config.Estimator) meter.Coefficients {
	return meter.Coefficients{
		ComparisonJ:       e.ComparisonJ,
		SwapJ:             e.SwapJ,
		IterationJ:        e.IterationJ,
		MemoryAccessJ:     e.MemoryAccessJ,
		ActivePowerW:      e.ActivePowerW,
		MemoryPowerPerGBW: e.MemoryPowerPerGBW,
		FallbackPowerW:    e.FallbackPowerW,
		TDPW:              e.TDPW,
	}
}

// createProviders returns the enabled providers. The polling provider is
// also returned on its own so that its sources can be closed; it is nil when
// no source could be initialized.
func createProviders(logger *slog.Logger, cfg *config.Config) ([]device.Provider, *device.PollingProvider, error) {
	var providers []device.Provider

	if pl := cfg.Telemetry.PowerLog; ptr.Deref(pl.Enabled, false) {
		opts := []device.PowerLogOptionFn{
			device.WithPowerLogLogger(logger),
			device.WithPowerLogResolution(pl.Resolution),
			device.WithPowerLogMaxDuration(pl.MaxDuration),
			device.WithPowerLogTimings(pl.Warmup, pl.Settle, pl.Grace),
		}
		if pl.Path != "" {
			opts = append(opts, device.WithPowerLogPath(pl.Path))
		}
		if pl.TempDir != "" {
			opts = append(opts, device.WithPowerLogTempDir(pl.TempDir))
		}
		p, err := device.NewPowerLogProvider(pl.Args, opts...)
		if err != nil {
			return nil, nil, err
		}
		providers = append(providers, p)
	}

	readers, err := createReaders(logger, cfg)
	if err != nil {
		return nil, nil, err
	}
	if len(readers) == 0 {
		return providers, nil, nil
	}

	polling := device.NewPollingProvider(readers, device.WithPollingLogger(logger))
	if err := polling.Init(); err != nil {
		logger.Warn("Polling telemetry unavailable", "error", err)
		if err := polling.Close(); err != nil {
			logger.Warn("failed to close telemetry sources", "error", err)
		}
		return providers, nil, nil
	}
	return append(providers, polling), polling, nil
}

// createReaders returns the polling sources in consultation order. The fake
// reader of dev mode replaces every other source.
func createReaders(logger *slog.Logger, cfg *config.Config) ([]device.SensorReader, error) {
	if ptr.Deref(cfg.Dev.FakeMeter.Enabled, false) {
		return []device.SensorReader{
			device.NewFakeReader(cfg.Dev.FakeMeter.Zones, device.WithFakeLogger(logger)),
		}, nil
	}

	p := cfg.Telemetry.Polling
	var readers []device.SensorReader
	if p.Sources.Has(config.SourceRapl) {
		readers = append(readers, device.NewRaplReader(cfg.Host.SysFS,
			device.WithRaplLogger(logger),
			device.WithRaplZoneFilter(p.Rapl.Zones),
		))
	}
	if p.Sources.Has(config.SourceHwmon) {
		readers = append(readers, device.NewHwmonReader(cfg.Host.SysFS,
			device.WithHwmonLogger(logger),
			device.WithHwmonZoneFilter(p.Hwmon.Zones),
		))
	}
	if p.Sources.Has(config.SourceLHM) {
		readers = append(readers, device.NewLHMReader(p.LHM.URL,
			device.WithLHMLogger(logger),
			device.WithLHMTimeout(p.LHM.Timeout),
		))
	}
	if p.Sources.Has(config.SourcePrometheus) {
		readers = append(readers, device.NewPrometheusReader(p.Prometheus.URL, p.Prometheus.Queries,
			device.WithPrometheusLogger(logger),
			device.WithPrometheusTimeout(p.Prometheus.Timeout),
		))
	}
	if p.Sources.Has(config.SourceRedfish) {
		r, err := createRedfishReader(logger, p.Redfish)
		if err != nil {
			return nil, err
		}
		readers = append(readers, r)
	}
	return readers, nil
}

func createRedfishReader(logger *slog.Logger, rf config.RedfishSource) (*redfish.PowerReader, error) {
	bmcs, err := redfishcfg.Load(rf.ConfigFile)
	if err != nil {
		return nil, err
	}

	host := rf.NodeName
	if host == "" {
		if host, err = os.Hostname(); err != nil {
			return nil, fmt.Errorf("failed to resolve host name for redfish: %w", err)
		}
	}

	id, bmc, err := bmcs.BMCFor(host)
	if err != nil {
		return nil, err
	}
	logger.Info("Using BMC for redfish telemetry", "host", host, "bmc", id, "endpoint", bmc.Endpoint)
	return redfish.NewPowerReader(bmc, logger), nil
}
