// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"context"
	"strconv"
	"sync"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/sustainable-computing-io/joulebench/internal/bench"
)

type benchmarkKey struct {
	algorithm string
	input     string
	size      int
}

// BenchmarkCollector exposes the progress and results of a sweep. It is fed
// as a benchmark sink by the runner.
type BenchmarkCollector struct {
	mu         sync.RWMutex
	counts     map[[2]string]float64
	benchmarks map[benchmarkKey]bench.Summary

	measurements *prom.Desc
	energy       *prom.Desc
	duration     *prom.Desc
	power        *prom.Desc
	maxPower     *prom.Desc
}

var (
	_ prom.Collector = (*BenchmarkCollector)(nil)
	_ bench.Sink     = (*BenchmarkCollector)(nil)
)

func NewBenchmarkCollector() *BenchmarkCollector {
	labels := []string{"algorithm", "input", "size", "backend"}
	return &BenchmarkCollector{
		counts:     map[[2]string]float64{},
		benchmarks: map[benchmarkKey]bench.Summary{},

		measurements: prom.NewDesc(
			prom.BuildFQName(namespace, "", "measurements_total"),
			"Number of measurements taken by outcome and backend",
			[]string{"outcome", "backend"}, nil,
		),
		energy: prom.NewDesc(
			prom.BuildFQName(namespace, benchmarkSubsystem, "energy_joules"),
			"Mean energy of the successful runs of a benchmark",
			labels, nil,
		),
		duration: prom.NewDesc(
			prom.BuildFQName(namespace, benchmarkSubsystem, "duration_seconds"),
			"Mean wall clock time of the successful runs of a benchmark",
			labels, nil,
		),
		power: prom.NewDesc(
			prom.BuildFQName(namespace, benchmarkSubsystem, "power_watts"),
			"Mean average power of the successful runs of a benchmark",
			labels, nil,
		),
		maxPower: prom.NewDesc(
			prom.BuildFQName(namespace, benchmarkSubsystem, "max_power_watts"),
			"Mean peak power of the successful runs of a benchmark",
			labels, nil,
		),
	}
}

func (c *BenchmarkCollector) Name() string {
	return "prometheus"
}

// Publish records the runs of b
func (c *BenchmarkCollector) Publish(_ context.Context, b bench.Benchmark) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range b.Results {
		c.counts[[2]string{m.Outcome.Status.String(), m.Backend.String()}]++
	}
	c.benchmarks[benchmarkKey{b.Algorithm, b.Input, b.Size}] = b.Averages
	return nil
}

func (c *BenchmarkCollector) Describe(ch chan<- *prom.Desc) {
	ch <- c.measurements
	ch <- c.energy
	ch <- c.duration
	ch <- c.power
	ch <- c.maxPower
}

func (c *BenchmarkCollector) Collect(ch chan<- prom.Metric) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for k, n := range c.counts {
		ch <- prom.MustNewConstMetric(c.measurements, prom.CounterValue, n, k[0], k[1])
	}

	for k, s := range c.benchmarks {
		if s.Succeeded == 0 {
			continue
		}
		labels := []string{k.algorithm, k.input, strconv.Itoa(k.size), s.Backend.String()}
		ch <- prom.MustNewConstMetric(c.energy, prom.GaugeValue, s.EnergyJoules, labels...)
		ch <- prom.MustNewConstMetric(c.duration, prom.GaugeValue, s.ElapsedMs/1000, labels...)
		ch <- prom.MustNewConstMetric(c.power, prom.GaugeValue, s.AvgPowerW, labels...)
		ch <- prom.MustNewConstMetric(c.maxPower, prom.GaugeValue, s.MaxPowerW, labels...)
	}
}
