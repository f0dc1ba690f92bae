// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// prometheusReader implements SensorReader with instant queries against a
// Prometheus compatible API. Each query yields one sensor named after the
// rail it was configured for; queries are expected to return watts.
type prometheusReader struct {
	logger  *slog.Logger
	address string
	queries map[string]string
	timeout time.Duration
	api     promv1.API
}

var _ SensorReader = (*prometheusReader)(nil)

// PrometheusOptionFn is a function that configures prometheusReader options
type PrometheusOptionFn func(*prometheusReader)

// WithPrometheusLogger sets the logger for prometheusReader
func WithPrometheusLogger(logger *slog.Logger) PrometheusOptionFn {
	return func(r *prometheusReader) {
		r.logger = logger.With("source", "prometheus")
	}
}

// WithPrometheusTimeout sets the timeout of each query
func WithPrometheusTimeout(d time.Duration) PrometheusOptionFn {
	return func(r *prometheusReader) {
		r.timeout = d
	}
}

// NewPrometheusReader creates a reader issuing queries (rail name -> PromQL)
// against the Prometheus API at address
func NewPrometheusReader(address string, queries map[string]string, opts ...PrometheusOptionFn) *prometheusReader {
	r := &prometheusReader{
		logger:  slog.Default().With("source", "prometheus"),
		address: address,
		queries: queries,
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *prometheusReader) Name() string {
	return "prometheus"
}

func (r *prometheusReader) Init() error {
	if len(r.queries) == 0 {
		return fmt.Errorf("no prometheus queries configured")
	}

	client, err := api.NewClient(api.Config{Address: r.address})
	if err != nil {
		return fmt.Errorf("failed to create prometheus client for %q: %w", r.address, err)
	}
	r.api = promv1.NewAPI(client)

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if _, err := r.Sensors(ctx); err != nil {
		r.api = nil
		return err
	}
	return nil
}

func (r *prometheusReader) Sensors(ctx context.Context) ([]Sensor, error) {
	if r.api == nil {
		return nil, fmt.Errorf("prometheus reader not initialized")
	}

	rails := make([]string, 0, len(r.queries))
	for rail := range r.queries {
		rails = append(rails, rail)
	}
	sort.Strings(rails)

	sensors := make([]Sensor, 0, len(rails))
	for _, rail := range rails {
		w, err := r.query(ctx, r.queries[rail])
		if err != nil {
			return nil, fmt.Errorf("query for %s failed: %w", rail, err)
		}
		sensors = append(sensors, Sensor{Name: rail, Power: Watts(w)})
	}
	return sensors, nil
}

// query returns the sum of all series of an instant vector or the value of a scalar
func (r *prometheusReader) query(ctx context.Context, q string) (float64, error) {
	result, warnings, err := r.api.Query(ctx, q, time.Now(), promv1.WithTimeout(r.timeout))
	if err != nil {
		return 0, err
	}
	for _, w := range warnings {
		r.logger.Debug("Prometheus query warning", "query", q, "warning", w)
	}

	switch v := result.(type) {
	case model.Vector:
		if len(v) == 0 {
			return 0, fmt.Errorf("query %q returned no samples", q)
		}
		total := 0.0
		for _, s := range v {
			total += float64(s.Value)
		}
		return total, nil
	case *model.Scalar:
		return float64(v.Value), nil
	default:
		return 0, fmt.Errorf("unexpected result type %s for query %q", result.Type(), q)
	}
}

func (r *prometheusReader) Close() error {
	return nil
}
