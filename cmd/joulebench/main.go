// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/google/uuid"
	"k8s.io/utils/ptr"

	"github.com/sustainable-computing-io/joulebench/config"
	"github.com/sustainable-computing-io/joulebench/config/workload"
	"github.com/sustainable-computing-io/joulebench/internal/bench"
	"github.com/sustainable-computing-io/joulebench/internal/exporter/influx"
	"github.com/sustainable-computing-io/joulebench/internal/exporter/json"
	"github.com/sustainable-computing-io/joulebench/internal/exporter/prometheus"
	"github.com/sustainable-computing-io/joulebench/internal/exporter/prometheus/collector"
	"github.com/sustainable-computing-io/joulebench/internal/exporter/stdout"
	"github.com/sustainable-computing-io/joulebench/internal/logger"
	"github.com/sustainable-computing-io/joulebench/internal/server"
	"github.com/sustainable-computing-io/joulebench/internal/service"
	"github.com/sustainable-computing-io/joulebench/internal/version"
)

const (
	runCmd   = "run"
	probeCmd = "probe"
)

func main() {
	// parse args and config and exit with error if there is an error
	cmd, cfg, err := parseArgsAndConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "joulebench: %v\n", err)
		os.Exit(1)
	}

	logger, err := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "joulebench: %v\n", err)
		os.Exit(1)
	}
	logVersionInfo(logger)
	printConfigInfo(logger, cfg)

	switch cmd {
	case probeCmd:
		err = probe(logger, cfg, os.Stdout)
	default:
		err = runSweep(logger, cfg)
	}

	var interrupted service.ErrInterrupted
	switch {
	case err == nil:
		logger.Info("Graceful shutdown completed")
	case errors.As(err, &interrupted):
		logger.Info("Sweep interrupted", "signal", interrupted.Signal.String())
		os.Exit(130)
	default:
		logger.Error("joulebench terminated with an error", "error", err)
		os.Exit(1)
	}
}

func logVersionInfo(logger *slog.Logger) {
	v := version.Info()
	logger.Info("joulebench version information",
		"version", v.Version,
		"buildTime", v.BuildTime,
		"gitBranch", v.GitBranch,
		"gitCommit", v.GitCommit,
		"goVersion", v.GoVersion,
		"goOS", v.GoOS,
		"goArch", v.GoArch,
	)
}

// parseArgsAndConfig returns the selected command and the configuration.
// Flags override the configuration file.
func parseArgsAndConfig(args []string) (string, *config.Config, error) {
	const appName = "joulebench"
	app := kingpin.New(appName, "Energy measurement harness for computational workloads.")
	app.Version(version.Info().String())

	configFile := app.Flag("config.file", "Path to YAML configuration file").String()
	updateConfig := config.RegisterFlags(app)
	app.Command(runCmd, "Measure every workload of the catalogue").Default()
	app.Command(probeCmd, "Show the telemetry backends and one power sample")

	cmd, err := app.Parse(args)
	if err != nil {
		return "", nil, err
	}

	builder := &config.Builder{}
	if *configFile != "" {
		builder.MergeFiles(*configFile)
	}
	// host paths are validated once flags are applied
	cfg, err := builder.Build(config.SkipHostValidation)
	if err != nil {
		return "", nil, err
	}

	// Apply command line flags (these override config file settings)
	if err := updateConfig(cfg); err != nil {
		return "", nil, err
	}
	return cmd, cfg, nil
}

func printConfigInfo(logger *slog.Logger, cfg *config.Config) {
	if !logger.Enabled(context.Background(), slog.LevelDebug) || cfg.Log.Format == "json" {
		return
	}

	fmt.Fprintf(os.Stderr, `
Configuration
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
%s
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
`, cfg)
}

// runSweep measures every workload and hands the results to the enabled
// exporters
func runSweep(logger *slog.Logger, cfg *config.Config) error {
	if cfg.Bench.Workloads == "" {
		return fmt.Errorf("no workload catalogue given; set --%s", config.BenchWorkloadsFlag)
	}
	catalogue, err := workload.Load(cfg.Bench.Workloads)
	if err != nil {
		return err
	}
	plans := createPlans(logger, catalogue, cfg.Bench)

	tel, err := createTelemetry(context.Background(), logger, cfg)
	if err != nil {
		return err
	}
	defer tel.Close()

	runID := uuid.NewString()
	services, err := createServices(logger, cfg, tel, plans, runID)
	if err != nil {
		return err
	}

	if err := service.Init(logger, services); err != nil {
		return err
	}
	// Run shuts down the runners; the others are shut down here
	defer func() {
		if err := service.Shutdown(logger, idle(services)); err != nil {
			logger.Warn("shutdown failed", "error", err)
		}
	}()

	services = append(services, service.NewSignalHandler(logger, os.Interrupt, syscall.SIGTERM))
	logger.Info("Starting joulebench", "run-id", runID, "workloads", len(plans))
	return service.Run(context.Background(), logger, services)
}

// idle returns the services that do not run
func idle(services []service.Service) []service.Service {
	var ret []service.Service
	for _, s := range services {
		if _, ok := s.(service.Runner); !ok {
			ret = append(ret, s)
		}
	}
	return ret
}

func createPlans(logger *slog.Logger, catalogue *workload.Catalogue, b config.Bench) []bench.Plan {
	defaults := workload.Defaults{Sizes: b.Sizes, Inputs: b.Inputs, Runs: b.Runs}
	plans := make([]bench.Plan, 0, len(catalogue.Workloads))
	for _, w := range catalogue.Workloads {
		plans = append(plans, bench.NewCommandWorkload(w.WithDefaults(defaults), logger).Plan())
	}
	return plans
}

func createServices(logger *slog.Logger, cfg *config.Config, tel *telemetry, plans []bench.Plan, runID string) ([]service.Service, error) {
	logger.Debug("Creating all services")

	var (
		services  []service.Service
		sinks     []bench.Sink
		reporters []bench.ReportSink
	)

	if ptr.Deref(cfg.Exporter.Stdout.Enabled, false) {
		reporters = append(reporters, stdout.NewExporter(stdout.WithLogger(logger)))
	}

	if ptr.Deref(cfg.Exporter.JSON.Enabled, false) {
		jsonExporter := json.NewExporter(
			json.WithLogger(logger),
			json.WithOutputDir(cfg.Bench.OutputDir),
		)
		services = append(services, jsonExporter)
		reporters = append(reporters, jsonExporter)
	}

	if in := cfg.Exporter.Influx; ptr.Deref(in.Enabled, false) {
		influxExporter := influx.NewExporter(in.URL,
			influx.WithLogger(logger),
			influx.WithAuth(in.Token, in.Org),
			influx.WithBucket(in.Bucket),
			influx.WithRunID(runID),
		)
		services = append(services, influxExporter)
		sinks = append(sinks, influxExporter)
	}

	var benchmarks *collector.BenchmarkCollector
	if ptr.Deref(cfg.Exporter.Prometheus.Enabled, false) {
		benchmarks = collector.NewBenchmarkCollector()
		sinks = append(sinks, benchmarks)
	}

	runner := bench.NewRunner(tel.harness, plans,
		bench.WithLogger(logger),
		bench.WithSinks(sinks...),
		bench.WithReportSinks(reporters...),
		bench.WithProbes(tel.selector.Probes()),
		bench.WithHostInfo(bench.ReadHostInfo(cfg.Host.ProcFS)),
		bench.WithRunID(runID),
	)

	pprofEnabled := ptr.Deref(cfg.Dev.Pprof.Enabled, false)
	if benchmarks != nil || pprofEnabled {
		apiServer := server.NewAPIServer(
			server.WithLogger(logger),
			server.WithListen(cfg.Web.ListenAddresses, cfg.Web.Config),
		)
		services = append(services, apiServer, server.NewStatus(apiServer, runner, logger))

		if benchmarks != nil {
			status := bench.NewBackendStatus(tel.selector.Probes(), tel.harness.Source())
			promOpts := []prometheus.OptionFn{
				prometheus.WithLogger(logger),
				prometheus.WithProcFSPath(cfg.Host.ProcFS),
				prometheus.WithDebugCollectors(cfg.Exporter.Prometheus.DebugCollectors),
				prometheus.WithBackendStatus(status),
			}
			collectors, err := prometheus.CreateCollectors(benchmarks, promOpts...)
			if err != nil {
				return nil, fmt.Errorf("failed to create prometheus collectors: %w", err)
			}
			promOpts = append(promOpts, prometheus.WithCollectors(collectors))
			services = append(services, prometheus.NewExporter(apiServer, promOpts...))
		}

		if pprofEnabled {
			services = append(services, server.NewPprof(apiServer))
		}
	}

	// the runner goes last so that every sink is initialized first
	return append(services, runner), nil
}

// probe prints the availability of every telemetry backend and one sample of
// the selected provider
func probe(logger *slog.Logger, cfg *config.Config, out io.Writer) error {
	ctx := context.Background()
	tel, err := createTelemetry(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer tel.Close()

	provider := tel.selector.Resolve()
	source := ""
	if provider != nil {
		source = provider.Name()
	}
	if err := stdout.WriteStatus(out, bench.NewBackendStatus(tel.selector.Probes(), source)); err != nil {
		return err
	}
	if provider == nil {
		_, err := fmt.Fprintln(out, "\nNo hardware telemetry available; energy will be estimated")
		return err
	}

	sample, err := provider.Sample(ctx)
	if err != nil {
		return fmt.Errorf("failed to sample %s: %w", provider.Name(), err)
	}
	if _, err := fmt.Fprintf(out, "\n%s backend\n", provider.Backend()); err != nil {
		return err
	}
	return stdout.WriteSample(out, provider.Name(), sample)
}
