// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package influx

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/sustainable-computing-io/joulebench/internal/bench"
	"github.com/sustainable-computing-io/joulebench/internal/device"
	"github.com/sustainable-computing-io/joulebench/internal/service"
)

// Measurement is the InfluxDB measurement every run is written to
const Measurement = "joulebench_measurement"

// Exporter writes every measured run to InfluxDB as one point
type Exporter struct {
	logger  *slog.Logger
	url     string
	token   string
	org     string
	bucket  string
	timeout time.Duration
	runID   string

	client influxdb2.Client
	writer api.WriteAPIBlocking
}

var (
	_ service.Initializer = (*Exporter)(nil)
	_ service.Shutdowner  = (*Exporter)(nil)
	_ bench.Sink          = (*Exporter)(nil)
)

type Opts struct {
	logger  *slog.Logger
	token   string
	org     string
	bucket  string
	timeout time.Duration
	runID   string
}

// DefaultOpts returns the default options
func DefaultOpts() Opts {
	return Opts{
		logger:  slog.Default(),
		bucket:  "joulebench",
		timeout: 10 * time.Second,
	}
}

// OptionFn is a function that sets one or more options in Opts struct
type OptionFn func(*Opts)

// WithLogger sets the logger for the Exporter
func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

// WithAuth sets the API token and organization
func WithAuth(token, org string) OptionFn {
	return func(o *Opts) {
		o.token = token
		o.org = org
	}
}

// WithBucket sets the destination bucket
func WithBucket(bucket string) OptionFn {
	return func(o *Opts) {
		o.bucket = bucket
	}
}

// WithTimeout bounds every write request
func WithTimeout(d time.Duration) OptionFn {
	return func(o *Opts) {
		o.timeout = d
	}
}

// WithRunID tags every point with the sweep run id
func WithRunID(id string) OptionFn {
	return func(o *Opts) {
		o.runID = id
	}
}

// NewExporter creates an exporter writing to the InfluxDB server at url
func NewExporter(url string, applyOpts ...OptionFn) *Exporter {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}
	return &Exporter{
		logger:  opts.logger.With("service", "influx"),
		url:     url,
		token:   opts.token,
		org:     opts.org,
		bucket:  opts.bucket,
		timeout: opts.timeout,
		runID:   opts.runID,
	}
}

// Name implements service.Name
func (e *Exporter) Name() string {
	return "influx"
}

func (e *Exporter) Init() error {
	options := influxdb2.DefaultOptions().
		SetHTTPRequestTimeout(uint(e.timeout.Seconds()))
	e.client = influxdb2.NewClientWithOptions(e.url, e.token, options)
	e.writer = e.client.WriteAPIBlocking(e.org, e.bucket)
	e.logger.Info("InfluxDB exporter ready", "url", e.url, "org", e.org, "bucket", e.bucket)
	return nil
}

// Publish writes one point per run of b
func (e *Exporter) Publish(ctx context.Context, b bench.Benchmark) error {
	if e.writer == nil {
		return fmt.Errorf("influx exporter is not initialized")
	}
	points := Points(b, e.runID)
	if len(points) == 0 {
		return nil
	}
	if err := e.writer.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("failed to write %d points: %w", len(points), err)
	}
	e.logger.Debug("Points written", "algorithm", b.Algorithm, "size", b.Size, "points", len(points))
	return nil
}

// Points converts the runs of b to InfluxDB points
func Points(b bench.Benchmark, runID string) []*write.Point {
	points := make([]*write.Point, 0, len(b.Results))
	for i, m := range b.Results {
		tags := map[string]string{
			"algorithm": m.AlgorithmID,
			"backend":   m.Backend.String(),
			"outcome":   m.Outcome.Status.String(),
		}
		if m.Input != "" {
			tags["input"] = m.Input
		}
		if m.Source != "" {
			tags["source"] = m.Source
		}
		if runID != "" {
			tags["run_id"] = runID
		}

		fields := map[string]any{
			"run":         i + 1,
			"size":        m.InputSize,
			"elapsed_ms":  m.ElapsedMs,
			"energy_j":    m.EnergyJoules,
			"avg_power_w": m.AvgPowerW,
			"max_power_w": m.MaxPowerW,
			"min_power_w": m.MinPowerW,
			"samples":     m.SampleCount,
			"is_hardware": m.IsHardware,
			"peak_memory": m.PeakMemoryBytes,
			"interval_ms": m.SamplingIntervalMs,
		}
		for _, r := range device.Rails {
			fields[r.String()+"_energy_j"] = m.Rails.Get(r)
		}
		if m.Outcome.Reason != "" {
			fields["reason"] = m.Outcome.Reason
		}

		points = append(points, influxdb2.NewPoint(Measurement, tags, fields, m.Timestamp))
	}
	return points
}

func (e *Exporter) Shutdown() error {
	if e.client != nil {
		e.client.Close()
	}
	return nil
}
