// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package bench

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/sustainable-computing-io/joulebench/config/workload"
	"github.com/sustainable-computing-io/joulebench/internal/meter"
	"github.com/sustainable-computing-io/joulebench/internal/service"
	"github.com/sustainable-computing-io/joulebench/internal/version"
)

// Measurer measures one computation at a time
type Measurer interface {
	Measure(ctx context.Context, t meter.Target, fn meter.Func) meter.Measurement
	Backend() meter.Backend
	Source() string
}

// Sink receives every benchmark as soon as its runs are done
type Sink interface {
	Name() string
	Publish(ctx context.Context, b Benchmark) error
}

// ReportSink receives the report once the sweep ends
type ReportSink interface {
	Name() string
	Report(ctx context.Context, r Report) error
}

// Plan is one workload of a sweep
type Plan struct {
	ID     string
	Sizes  []int
	Inputs []string
	Runs   int
	Func   func(ctx context.Context, p workload.Params) meter.Func
}

func (p Plan) runs() int {
	return max(p.Runs, 1)
}

func (p Plan) inputs() []string {
	if len(p.Inputs) == 0 {
		return []string{""}
	}
	return p.Inputs
}

// measurements is the number of Measure calls the plan makes
func (p Plan) measurements() int {
	return len(p.inputs()) * len(p.Sizes) * p.runs()
}

// Phase of a sweep
type Phase string

const (
	PhasePending Phase = "pending"
	PhaseRunning Phase = "running"
	PhaseDone    Phase = "done"
)

// Progress is a snapshot of the sweep
type Progress struct {
	RunID     string        `json:"run_id"`
	Phase     Phase         `json:"phase"`
	Backend   meter.Backend `json:"backend"`
	Source    string        `json:"source"`
	Planned   int           `json:"planned"`
	Completed int           `json:"completed"`
	Failed    int           `json:"failed"`
	Current   string        `json:"current,omitempty"`
}

// Runner measures every plan over its inputs and sizes, strictly one
// measurement at a time, and hands the results to the sinks
type Runner struct {
	logger    *slog.Logger
	clock     clock.PassiveClock
	harness   Measurer
	plans     []Plan
	sinks     []Sink
	reporters []ReportSink
	probes    []meter.Probe
	host      HostInfo
	runID     string

	mu       sync.RWMutex
	progress Progress
}

var (
	_ service.Initializer = (*Runner)(nil)
	_ service.Runner      = (*Runner)(nil)
)

type Opts struct {
	logger    *slog.Logger
	clock     clock.PassiveClock
	sinks     []Sink
	reporters []ReportSink
	probes    []meter.Probe
	host      HostInfo
	runID     string
}

// DefaultOpts returns the default options
func DefaultOpts() Opts {
	return Opts{
		logger: slog.Default(),
		clock:  clock.RealClock{},
		host:   baseHostInfo(),
	}
}

// OptionFn is a function that sets one or more options in Opts struct
type OptionFn func(*Opts)

// WithLogger sets the logger for the Runner
func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

// WithClock sets the clock used to time the sweep
func WithClock(c clock.PassiveClock) OptionFn {
	return func(o *Opts) {
		o.clock = c
	}
}

// WithSinks adds benchmark sinks
func WithSinks(sinks ...Sink) OptionFn {
	return func(o *Opts) {
		o.sinks = append(o.sinks, sinks...)
	}
}

// WithReportSinks adds report sinks
func WithReportSinks(sinks ...ReportSink) OptionFn {
	return func(o *Opts) {
		o.reporters = append(o.reporters, sinks...)
	}
}

// WithProbes sets the provider probes listed in the report
func WithProbes(probes []meter.Probe) OptionFn {
	return func(o *Opts) {
		o.probes = probes
	}
}

// WithHostInfo sets the host described in the report
func WithHostInfo(h HostInfo) OptionFn {
	return func(o *Opts) {
		o.host = h
	}
}

// WithRunID overrides the generated run id
func WithRunID(id string) OptionFn {
	return func(o *Opts) {
		o.runID = id
	}
}

// NewRunner creates a Runner for plans using harness
func NewRunner(harness Measurer, plans []Plan, applyOpts ...OptionFn) *Runner {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}
	if opts.runID == "" {
		opts.runID = uuid.NewString()
	}

	planned := 0
	for _, p := range plans {
		planned += p.measurements()
	}

	return &Runner{
		logger:    opts.logger.With("service", "bench-runner"),
		clock:     opts.clock,
		harness:   harness,
		plans:     plans,
		sinks:     opts.sinks,
		reporters: opts.reporters,
		probes:    opts.probes,
		host:      opts.host,
		runID:     opts.runID,
		progress: Progress{
			RunID:   opts.runID,
			Phase:   PhasePending,
			Backend: harness.Backend(),
			Source:  harness.Source(),
			Planned: planned,
		},
	}
}

func (r *Runner) Name() string {
	return "bench-runner"
}

// RunID returns the id of the sweep
func (r *Runner) RunID() string {
	return r.runID
}

// Progress returns a snapshot of the sweep
func (r *Runner) Progress() Progress {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.progress
}

func (r *Runner) Init() error {
	if len(r.plans) == 0 {
		return fmt.Errorf("no workloads to run")
	}
	for _, p := range r.plans {
		if p.Func == nil {
			return fmt.Errorf("workload %s: no computation", p.ID)
		}
		if len(p.Sizes) == 0 {
			return fmt.Errorf("workload %s: no sizes", p.ID)
		}
	}
	r.logger.Info("Sweep planned",
		"run_id", r.runID,
		"workloads", len(r.plans),
		"measurements", r.progress.Planned,
		"backend", r.harness.Backend(),
		"source", r.harness.Source())
	return nil
}

// Run performs the sweep and returns when it is done or ctx is cancelled.
// The report is written in both cases.
func (r *Runner) Run(ctx context.Context) error {
	start := r.clock.Now()
	r.update(func(p *Progress) { p.Phase = PhaseRunning })

	// sinks still get what was measured after an interrupt
	publishCtx := context.WithoutCancel(ctx)

	benchmarks := make([]Benchmark, 0)
	interrupted := false

sweep:
	for _, p := range r.plans {
		for _, input := range p.inputs() {
			for _, size := range p.Sizes {
				b, done := r.benchmark(ctx, p, workload.Params{Size: size, Input: input})
				if len(b.Results) > 0 {
					benchmarks = append(benchmarks, b)
					r.publish(publishCtx, b)
				}
				if !done {
					interrupted = true
					break sweep
				}
			}
		}
	}

	if interrupted {
		r.logger.Warn("Sweep interrupted", "benchmarks", len(benchmarks))
	}
	report := Report{
		Meta:       r.meta(start, interrupted),
		Benchmarks: benchmarks,
	}
	r.report(publishCtx, report)

	r.update(func(p *Progress) {
		p.Phase = PhaseDone
		p.Current = ""
	})
	r.logger.Info("Sweep done", "benchmarks", len(benchmarks), "duration", r.clock.Since(start))
	return nil
}

// benchmark measures all runs of one workload, input and size. It returns
// false when ctx was cancelled before every run was measured.
func (r *Runner) benchmark(ctx context.Context, p Plan, params workload.Params) (Benchmark, bool) {
	t := meter.Target{ID: p.ID, Size: params.Size, Input: params.Input}
	runs := p.runs()
	results := make([]meter.Measurement, 0, runs)

	for i := range runs {
		if ctx.Err() != nil {
			return NewBenchmark(t, results), false
		}
		r.update(func(pr *Progress) {
			pr.Current = fmt.Sprintf("%s[%s n=%d] run %d/%d", t.ID, t.Input, t.Size, i+1, runs)
		})

		m := r.harness.Measure(ctx, t, p.Func(ctx, params))
		r.logger.Debug("Measured", "run", i+1, "measurement", m.String())
		results = append(results, m)

		r.update(func(pr *Progress) {
			pr.Completed++
			if !m.Outcome.IsOk() {
				pr.Failed++
			}
		})
	}

	b := NewBenchmark(t, results)
	r.logger.Info("Benchmark done",
		"algorithm", t.ID,
		"input", t.Input,
		"size", t.Size,
		"ok", b.Averages.Succeeded,
		"failed", b.Averages.Failed,
		"elapsed_ms", b.Averages.ElapsedMs,
		"energy_joules", b.Averages.EnergyJoules,
		"avg_power_watts", b.Averages.AvgPowerW)
	return b, true
}

// publish fans b out to every sink. Sink errors are logged, never fatal.
func (r *Runner) publish(ctx context.Context, b Benchmark) {
	errs := make([]error, len(r.sinks))
	var g errgroup.Group
	for i, s := range r.sinks {
		g.Go(func() error {
			if err := s.Publish(ctx, b); err != nil {
				errs[i] = fmt.Errorf("%s: %w", s.Name(), err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := errors.Join(errs...); err != nil {
		r.logger.Error("Failed to publish benchmark", "algorithm", b.Algorithm, "size", b.Size, "error", err)
	}
}

func (r *Runner) report(ctx context.Context, report Report) {
	errs := make([]error, len(r.reporters))
	var g errgroup.Group
	for i, s := range r.reporters {
		g.Go(func() error {
			if err := s.Report(ctx, report); err != nil {
				errs[i] = fmt.Errorf("%s: %w", s.Name(), err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := errors.Join(errs...); err != nil {
		r.logger.Error("Failed to write report", "run_id", report.Meta.RunID, "error", err)
	}
}

func (r *Runner) meta(start time.Time, interrupted bool) Meta {
	backend := r.harness.Backend()
	return Meta{
		Timestamp:         start,
		RunID:             r.runID,
		Version:           version.Info(),
		Host:              r.host,
		MeasurementStatus: NewBackendStatus(r.probes, r.harness.Source()),
		IsRealMeasurement: backend.IsHardware(),
		MeasurementMethod: backend,
		MeasurementSource: r.harness.Source(),
		DurationSeconds:   r.clock.Since(start).Seconds(),
		Interrupted:       interrupted,
	}
}

func (r *Runner) update(fn func(*Progress)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.progress)
}
