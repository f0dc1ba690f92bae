// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package json

import (
	"context"
	encjson "encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/sustainable-computing-io/joulebench/internal/bench"
	"github.com/sustainable-computing-io/joulebench/internal/service"
)

const timestampLayout = "20060102_150405"

// Exporter writes the sweep report to a JSON file in the output directory
type Exporter struct {
	logger *slog.Logger
	dir    string

	mu   sync.Mutex
	last string
}

var (
	_ service.Initializer = (*Exporter)(nil)
	_ bench.ReportSink    = (*Exporter)(nil)
)

type Opts struct {
	logger *slog.Logger
	dir    string
}

// DefaultOpts returns the default options
func DefaultOpts() Opts {
	return Opts{
		logger: slog.Default(),
		dir:    ".",
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

// WithOutputDir sets the directory reports are written to
func WithOutputDir(dir string) OptionFn {
	return func(o *Opts) {
		o.dir = dir
	}
}

func NewExporter(applyOpts ...OptionFn) *Exporter {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}
	return &Exporter{
		logger: opts.logger.With("service", "json"),
		dir:    opts.dir,
	}
}

// Name implements service.Name
func (e *Exporter) Name() string {
	return "json"
}

func (e *Exporter) Init() error {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}

// FileName returns the report file name: energy_benchmark_REAL_<ts>.json
// for hardware measurements, energy_benchmark_EST_<ts>.json otherwise
func FileName(m bench.Meta) string {
	tag := "EST"
	if m.IsRealMeasurement {
		tag = "REAL"
	}
	return fmt.Sprintf("energy_benchmark_%s_%s.json", tag, m.Timestamp.Format(timestampLayout))
}

// Report writes r. The file is written next to its final name and renamed
// so a partial report is never left behind.
func (e *Exporter) Report(_ context.Context, r bench.Report) error {
	data, err := encjson.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	path := filepath.Join(e.dir, FileName(r.Meta))
	tmp, err := os.CreateTemp(e.dir, ".energy_benchmark_*.json")
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer func() {
		// no-op once renamed
		_ = os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	e.mu.Lock()
	e.last = path
	e.mu.Unlock()
	e.logger.Info("Results saved", "file", path, "benchmarks", len(r.Benchmarks))
	return nil
}

// LastReport returns the path of the last written report
func (e *Exporter) LastReport() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}
