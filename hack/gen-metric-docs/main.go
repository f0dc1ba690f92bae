// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

// gen-metric-docs writes the reference of the metrics served at /metrics
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/alecthomas/kingpin/v2"
	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/sustainable-computing-io/joulebench/internal/exporter/prometheus"
	"github.com/sustainable-computing-io/joulebench/internal/exporter/prometheus/collector"
)

// MetricInfo holds information about a Prometheus metric
type MetricInfo struct {
	Name        string
	Type        string
	Description string
	Labels      []string
}

var (
	fqNameRegex         = regexp.MustCompile(`fqName: "([^"]+)"`)
	helpRegex           = regexp.MustCompile(`help: "([^"]+)"`)
	variableLabelsRegex = regexp.MustCompile(`variableLabels: \{([^}]*)\}`)
)

// extractMetricsInfo reads the metric descriptions of a collector
func extractMetricsInfo(c prom.Collector) []MetricInfo {
	ch := make(chan *prom.Desc, 100)
	go func() {
		c.Describe(ch)
		close(ch)
	}()

	var metrics []MetricInfo
	for desc := range ch {
		s := desc.String()
		name := fqNameRegex.FindStringSubmatch(s)
		help := helpRegex.FindStringSubmatch(s)
		if len(name) < 2 || len(help) < 2 {
			fmt.Fprintf(os.Stderr, "Warning: could not parse %s\n", s)
			continue
		}

		var labels []string
		if m := variableLabelsRegex.FindStringSubmatch(s); len(m) >= 2 && m[1] != "" {
			for _, l := range strings.Split(m[1], ",") {
				labels = append(labels, strings.TrimSpace(l))
			}
		}

		metricType := "GAUGE"
		if strings.HasSuffix(name[1], "_total") {
			metricType = "COUNTER"
		}
		metrics = append(metrics, MetricInfo{
			Name:        name[1],
			Type:        metricType,
			Description: help[1],
			Labels:      labels,
		})
	}
	return metrics
}

type section struct {
	prefix, title, intro string
}

var sections = []section{
	{"joulebench_benchmark_", "Benchmark Metrics", "Averages over the successful runs of each workload, input and size."},
	{"joulebench_measurements_", "Measurement Metrics", "Counts of finished measurements."},
	{"joulebench_telemetry_", "Telemetry Metrics", "Availability of the telemetry backends probed at start up."},
	{"joulebench_node_", "Node Metrics", "Information about the benchmark host."},
	{"", "Other Metrics", "Additional metrics provided by joulebench."},
}

// generateMarkdown generates Markdown documentation from metric information
func generateMarkdown(metrics []MetricInfo) string {
	sort.Slice(metrics, func(i, j int) bool {
		return metrics[i].Name < metrics[j].Name
	})

	var md strings.Builder
	md.WriteString("# joulebench Metrics\n\n")
	md.WriteString("joulebench serves these metrics at `/metrics` while a sweep runs when the Prometheus exporter is enabled.\n\n")
	md.WriteString("- **COUNTER**: A cumulative metric that only increases over time\n")
	md.WriteString("- **GAUGE**: A metric that can increase and decrease\n\n")

	done := map[string]bool{}
	for _, sec := range sections {
		var group []MetricInfo
		for _, m := range metrics {
			if !done[m.Name] && strings.HasPrefix(m.Name, sec.prefix) {
				group = append(group, m)
				done[m.Name] = true
			}
		}
		if len(group) == 0 {
			continue
		}
		fmt.Fprintf(&md, "## %s\n\n%s\n\n", sec.title, sec.intro)
		writeMetricsSection(&md, group)
	}

	md.WriteString("---\n\n")
	md.WriteString("This documentation was automatically generated by the gen-metric-docs tool.\n")
	return md.String()
}

// writeMetricsSection writes a section of metrics to the markdown builder
func writeMetricsSection(md *strings.Builder, metrics []MetricInfo) {
	for _, metric := range metrics {
		fmt.Fprintf(md, "### %s\n\n", metric.Name)
		fmt.Fprintf(md, "- **Type**: %s\n", metric.Type)
		fmt.Fprintf(md, "- **Description**: %s\n", metric.Description)
		if len(metric.Labels) > 0 {
			md.WriteString("- **Labels**:\n")
			for _, label := range metric.Labels {
				fmt.Fprintf(md, "  - `%s`\n", label)
			}
		}
		md.WriteString("\n")
	}
}

// collectMetrics describes every joulebench collector
func collectMetrics(procfs string) ([]MetricInfo, error) {
	collectors, err := prometheus.CreateCollectors(collector.NewBenchmarkCollector(), prometheus.WithProcFSPath(procfs))
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(collectors))
	for name := range collectors {
		names = append(names, name)
	}
	sort.Strings(names)

	var metrics []MetricInfo
	for _, name := range names {
		metrics = append(metrics, extractMetricsInfo(collectors[name])...)
	}
	return metrics, nil
}

func run(output, procfs string, log io.Writer) error {
	metrics, err := collectMetrics(procfs)
	if err != nil {
		return fmt.Errorf("failed to create collectors: %w", err)
	}
	fmt.Fprintf(log, "Extracted %d metrics\n", len(metrics))

	if dir := filepath.Dir(output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(output, []byte(generateMarkdown(metrics)), 0o644); err != nil {
		return fmt.Errorf("failed to write markdown file: %w", err)
	}
	fmt.Fprintf(log, "Metrics documentation written to %s\n", output)
	return nil
}

func main() {
	app := kingpin.New("gen-metric-docs", "Generates the joulebench metrics reference.")
	output := app.Flag("output", "Path to output Markdown file").Default("metrics.md").String()
	procfs := app.Flag("procfs", "procfs path read by the CPU info collector").Default("/proc").String()
	kingpin.MustParse(app.Parse(os.Args[1:]))

	if err := run(*output, *procfs, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
