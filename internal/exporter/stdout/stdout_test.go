// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package stdout

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sustainable-computing-io/joulebench/internal/bench"
	"github.com/sustainable-computing-io/joulebench/internal/device"
	"github.com/sustainable-computing-io/joulebench/internal/meter"
)

func TestNewExporter(t *testing.T) {
	e := NewExporter()
	assert.Equal(t, "stdout", e.Name())
	assert.Same(t, os.Stdout, e.out)

	var buf bytes.Buffer
	e = NewExporter(WithOutput(&buf))
	assert.Same(t, &buf, e.out)
}

func testReport() bench.Report {
	runs := []meter.Measurement{{
		AlgorithmID:  "quick_sort",
		InputSize:    1000,
		ElapsedMs:    12.5,
		EnergyJoules: 0.25,
		AvgPowerW:    20,
		MaxPowerW:    24,
		Backend:      meter.Polling,
		IsHardware:   true,
		Outcome:      meter.Ok(),
	}}
	return bench.Report{
		Meta: bench.Meta{
			RunID:             "abc",
			IsRealMeasurement: true,
			MeasurementSource: "polling(rapl)",
			MeasurementStatus: []bench.BackendStatus{
				{Name: "powerlog", Backend: "log_based"},
				{Name: "polling(rapl)", Backend: "polling", Available: true, Selected: true},
			},
		},
		Benchmarks: []bench.Benchmark{
			bench.NewBenchmark(meter.Target{ID: "quick_sort", Size: 1000, Input: "random"}, runs),
		},
	}
}

func TestReport(t *testing.T) {
	var buf bytes.Buffer
	e := NewExporter(WithOutput(&buf))
	require.NoError(t, e.Report(context.Background(), testReport()))

	out := buf.String()
	assert.Contains(t, out, "Measurement: REAL (polling(rapl))  run abc")
	for _, want := range []string{"quick_sort", "random", "1000", "12.5000", "0.250000000", "20.00", "24.00", "polling"} {
		assert.Contains(t, out, want)
	}

	lines := strings.Split(out, "\n")
	var rapl string
	for _, l := range lines {
		if strings.Contains(l, "polling(rapl)") && strings.Contains(l, "yes") {
			rapl = l
		}
	}
	assert.NotEmpty(t, rapl, "status table marks the selected provider")
}

func TestReportEstimated(t *testing.T) {
	var buf bytes.Buffer
	r := bench.Report{Meta: bench.Meta{RunID: "x"}}
	require.NoError(t, NewExporter(WithOutput(&buf)).Report(context.Background(), r))
	assert.Contains(t, buf.String(), "ESTIMATED")
	assert.Contains(t, buf.String(), "estimation")
}

func TestWriteSample(t *testing.T) {
	var s device.Sample
	s.Set(device.RailPackage, device.Watts(12.5))
	s.Set(device.RailMemory, device.Watts(2))

	var buf bytes.Buffer
	require.NoError(t, WriteSample(&buf, "rapl", s))
	out := buf.String()
	assert.Contains(t, strings.ToLower(out), "rail")
	assert.Contains(t, out, "package")
	assert.Contains(t, out, "12.50")
	assert.Contains(t, out, "2.00")
	assert.Contains(t, out, "total")
}
