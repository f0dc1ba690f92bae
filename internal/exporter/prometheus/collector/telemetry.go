// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"strconv"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/sustainable-computing-io/joulebench/internal/bench"
)

// telemetryCollector exposes the availability of every telemetry provider as
// probed when the sweep started
type telemetryCollector struct {
	status []bench.BackendStatus
	desc   *prom.Desc
}

func NewTelemetryCollector(status []bench.BackendStatus) *telemetryCollector {
	return &telemetryCollector{
		status: status,
		desc: prom.NewDesc(
			prom.BuildFQName(namespace, telemetrySubsystem, "backend_info"),
			"Telemetry providers; the value is 1 for the provider measurements are taken with",
			[]string{"provider", "backend", "available"},
			nil,
		),
	}
}

func (c *telemetryCollector) Describe(ch chan<- *prom.Desc) {
	ch <- c.desc
}

func (c *telemetryCollector) Collect(ch chan<- prom.Metric) {
	for _, s := range c.status {
		value := 0.0
		if s.Selected {
			value = 1
		}
		ch <- prom.MustNewConstMetric(c.desc, prom.GaugeValue, value,
			s.Name, s.Backend, strconv.FormatBool(s.Available))
	}
}
