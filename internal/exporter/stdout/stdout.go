// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package stdout

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/sustainable-computing-io/joulebench/internal/bench"
	"github.com/sustainable-computing-io/joulebench/internal/device"
)

// Exporter prints the sweep summary and the telemetry backend status as
// tables once the sweep ends
type Exporter struct {
	logger *slog.Logger
	out    io.Writer
}

var _ bench.ReportSink = (*Exporter)(nil)

type Opts struct {
	logger *slog.Logger
	out    io.Writer
}

// DefaultOpts() returns a new Opts with defaults set
func DefaultOpts() Opts {
	return Opts{
		logger: slog.Default(),
		out:    os.Stdout,
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

func WithOutput(out io.Writer) OptionFn {
	return func(o *Opts) {
		o.out = out
	}
}

func NewExporter(applyOpts ...OptionFn) *Exporter {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	return &Exporter{
		logger: opts.logger.With("service", "stdout"),
		out:    opts.out,
	}
}

// Name implements service.Name
func (e *Exporter) Name() string {
	return "stdout"
}

func (e *Exporter) Report(_ context.Context, r bench.Report) error {
	kind := "ESTIMATED (no hardware telemetry)"
	if r.Meta.IsRealMeasurement {
		kind = "REAL (" + r.Meta.MeasurementSource + ")"
	}
	if _, err := fmt.Fprintf(e.out, "\nMeasurement: %s  run %s\n", kind, r.Meta.RunID); err != nil {
		return err
	}
	if err := WriteStatus(e.out, r.Meta.MeasurementStatus); err != nil {
		return err
	}
	return WriteSummary(e.out, r.Benchmarks)
}

// WriteSummary renders one row per benchmark
func WriteSummary(out io.Writer, benchmarks []bench.Benchmark) error {
	rows := make([][]string, 0, len(benchmarks))
	for _, b := range benchmarks {
		avg := b.Averages
		rows = append(rows, []string{
			b.Algorithm,
			b.Input,
			fmt.Sprintf("%d", b.Size),
			fmt.Sprintf("%d", b.Runs),
			fmt.Sprintf("%d", avg.Succeeded),
			fmt.Sprintf("%.4f", avg.ElapsedMs),
			fmt.Sprintf("%.9f", avg.EnergyJoules),
			fmt.Sprintf("%.2f", avg.AvgPowerW),
			fmt.Sprintf("%.2f", avg.MaxPowerW),
			avg.Backend.String(),
		})
	}

	table := tablewriter.NewWriter(out)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Formatting.Alignment = tw.AlignRight
	})
	table.Header([]string{"Workload", "Input", "Size", "Runs", "Ok", "Time(ms)", "Energy(J)", "Avg(W)", "Max(W)", "Backend"})
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

// WriteStatus renders the availability of every telemetry provider
func WriteStatus(out io.Writer, status []bench.BackendStatus) error {
	rows := make([][]string, 0, len(status)+1)
	for _, s := range status {
		rows = append(rows, []string{s.Name, s.Backend, yesNo(s.Available), yesNo(s.Selected)})
	}
	if len(status) == 0 {
		rows = append(rows, []string{"none", "estimation", "-", "-"})
	}

	table := tablewriter.NewWriter(out)
	table.Header([]string{"Provider", "Backend", "Available", "Selected"})
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// WriteSample renders one sample of provider name, one row per rail
func WriteSample(out io.Writer, name string, s device.Sample) error {
	rows := make([][]string, 0, len(device.Rails)+1)
	for _, r := range device.Rails {
		rows = append(rows, []string{r.String(), fmt.Sprintf("%.2f", s.Get(r).Watts())})
	}
	rows = append(rows, []string{"total", fmt.Sprintf("%.2f", s.Total().Watts())})

	table := tablewriter.NewWriter(out)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Formatting.Alignment = tw.AlignRight
	})
	table.Header([]string{"Rail", "Power(W) " + name})
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}
