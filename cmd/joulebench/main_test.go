// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/ptr"

	"github.com/sustainable-computing-io/joulebench/config"
	"github.com/sustainable-computing-io/joulebench/config/workload"
	"github.com/sustainable-computing-io/joulebench/internal/bench"
	"github.com/sustainable-computing-io/joulebench/internal/meter"
	"github.com/sustainable-computing-io/joulebench/internal/server"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// hostFlags points the host paths at non-empty temp dirs so validation passes
// anywhere
func hostFlags(t *testing.T) []string {
	t.Helper()
	return []string{"--host.sysfs=" + hostDir(t), "--host.procfs=" + hostDir(t)}
}

func hostDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "placeholder"), nil, 0o644))
	return dir
}

func TestParseArgsAndConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cmd, cfg, err := parseArgsAndConfig(hostFlags(t))
		require.NoError(t, err)
		assert.Equal(t, runCmd, cmd)
		assert.Equal(t, 5, cfg.Bench.Runs)
		assert.Equal(t, 100*time.Millisecond, cfg.Telemetry.Interval)
	})

	t.Run("probe command", func(t *testing.T) {
		cmd, _, err := parseArgsAndConfig(append(hostFlags(t), probeCmd))
		require.NoError(t, err)
		assert.Equal(t, probeCmd, cmd)
	})

	t.Run("flags override config file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
bench:
  runs: 3
  sizes: [10]
`), 0o644))

		args := append(hostFlags(t), "--config.file="+path, "--bench.runs=7", runCmd)
		_, cfg, err := parseArgsAndConfig(args)
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, 7, cfg.Bench.Runs)
		assert.Equal(t, []int{10}, cfg.Bench.Sizes)
	})

	t.Run("invalid flag value", func(t *testing.T) {
		_, _, err := parseArgsAndConfig(append(hostFlags(t), "--bench.runs=0"))
		assert.ErrorContains(t, err, "invalid bench runs")
	})

	t.Run("unknown command", func(t *testing.T) {
		_, _, err := parseArgsAndConfig([]string{"measure"})
		assert.Error(t, err)
	})
}

func TestCreatePlans(t *testing.T) {
	catalogue := &workload.Catalogue{Workloads: []workload.Workload{
		{ID: "quick_sort", Command: "./sorter", Sizes: []int{100}, Runs: 2},
		{ID: "fib", Command: "./fib"},
	}}
	plans := createPlans(discardLogger(), catalogue, config.Bench{Runs: 4, Sizes: []int{1, 2}, Inputs: []string{"random"}})

	require.Len(t, plans, 2)
	assert.Equal(t, "quick_sort", plans[0].ID)
	assert.Equal(t, []int{100}, plans[0].Sizes)
	assert.Equal(t, 2, plans[0].Runs)
	assert.Equal(t, []int{1, 2}, plans[1].Sizes)
	assert.Equal(t, []string{"random"}, plans[1].Inputs)
	assert.Equal(t, 4, plans[1].Runs)
	assert.NotNil(t, plans[1].Func)
}

// fakeConfig returns a config using only the fake power meter
func fakeConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Host.SysFS = t.TempDir()
	cfg.Host.ProcFS = t.TempDir()
	cfg.Telemetry.PowerLog.Enabled = ptr.To(false)
	cfg.Dev.FakeMeter.Enabled = ptr.To(true)
	cfg.Bench.OutputDir = t.TempDir()
	return cfg
}

func TestCreateReaders(t *testing.T) {
	cfg := fakeConfig(t)
	readers, err := createReaders(discardLogger(), cfg)
	require.NoError(t, err)
	require.Len(t, readers, 1)
	assert.Equal(t, "fake", readers[0].Name())

	cfg.Dev.FakeMeter.Enabled = ptr.To(false)
	cfg.Telemetry.Polling.Sources = config.SourceAll
	cfg.Telemetry.Polling.LHM.URL = "http://127.0.0.1:8085"
	cfg.Telemetry.Polling.Prometheus.URL = "http://127.0.0.1:9090"
	cfg.Telemetry.Polling.Redfish.ConfigFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = createReaders(discardLogger(), cfg)
	assert.ErrorContains(t, err, "failed to read BMC config file")

	cfg.Telemetry.Polling.Sources = config.SourceRapl | config.SourceHwmon | config.SourceLHM
	readers, err = createReaders(discardLogger(), cfg)
	require.NoError(t, err)
	names := make([]string, 0, len(readers))
	for _, r := range readers {
		names = append(names, r.Name())
	}
	assert.Equal(t, []string{"rapl", "hwmon", "lhm"}, names)
}

func TestCreateTelemetry(t *testing.T) {
	t.Run("fake meter", func(t *testing.T) {
		tel, err := createTelemetry(t.Context(), discardLogger(), fakeConfig(t))
		require.NoError(t, err)
		defer tel.Close()

		assert.Equal(t, meter.Polling, tel.harness.Backend())
		assert.Equal(t, "fake", tel.harness.Source())
		require.Len(t, tel.selector.Probes(), 1)
		assert.True(t, tel.selector.Probes()[0].Available)
	})

	t.Run("nothing available", func(t *testing.T) {
		cfg := fakeConfig(t)
		cfg.Dev.FakeMeter.Enabled = ptr.To(false)
		// empty sysfs: neither rapl nor hwmon initialize
		tel, err := createTelemetry(t.Context(), discardLogger(), cfg)
		require.NoError(t, err)
		defer tel.Close()

		assert.Nil(t, tel.polling)
		assert.Equal(t, meter.Estimation, tel.harness.Backend())
	})
}

func TestCreateServices(t *testing.T) {
	cfg := fakeConfig(t)
	cfg.Exporter.Prometheus.Enabled = ptr.To(true)
	cfg.Dev.Pprof.Enabled = ptr.To(true)

	tel, err := createTelemetry(t.Context(), discardLogger(), cfg)
	require.NoError(t, err)
	defer tel.Close()

	plans := createPlans(discardLogger(), &workload.Catalogue{Workloads: []workload.Workload{
		{ID: "fib", Command: "true"},
	}}, cfg.Bench)

	services, err := createServices(discardLogger(), cfg, tel, plans, "run-1")
	require.NoError(t, err)

	names := make([]string, 0, len(services))
	for _, s := range services {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"json", "api-server", "status", "prometheus", "pprof", "bench-runner"}, names)

	runner, ok := services[len(services)-1].(*bench.Runner)
	require.True(t, ok)
	assert.Equal(t, "run-1", runner.RunID())
	_, ok = services[1].(*server.APIServer)
	assert.True(t, ok)

	idleNames := []string{}
	for _, s := range idle(services) {
		idleNames = append(idleNames, s.Name())
	}
	assert.Equal(t, []string{"json", "status", "prometheus", "pprof"}, idleNames)
}

func TestRunSweepWithoutWorkloads(t *testing.T) {
	assert.ErrorContains(t, runSweep(discardLogger(), fakeConfig(t)), "no workload catalogue given")
}

func TestProbe(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, probe(discardLogger(), fakeConfig(t), &buf))

	out := buf.String()
	assert.Contains(t, out, "fake")
	assert.Contains(t, out, "polling backend")
	assert.Contains(t, out, "package")
	assert.Contains(t, out, "total")
}

func TestProbeNothingAvailable(t *testing.T) {
	cfg := fakeConfig(t)
	cfg.Dev.FakeMeter.Enabled = ptr.To(false)

	var buf bytes.Buffer
	require.NoError(t, probe(discardLogger(), cfg, &buf))
	assert.Contains(t, buf.String(), "energy will be estimated")
}
