// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"text/template"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"
)

// DefaultPowerLogArgs are the arguments passed to the logging tool. Each
// entry is a template over .Duration (seconds), .Resolution (milliseconds)
// and .File (output path).
var DefaultPowerLogArgs = []string{
	"-duration", "{{.Duration}}",
	"-resolution", "{{.Resolution}}",
	"-file", "{{.File}}",
}

// powerLogCandidates are the well known install locations of the tool
var powerLogCandidates = []string{
	`C:\Program Files\Intel\Power Gadget 3.6\PowerLog3.0.exe`,
	`C:\Program Files\Intel\Power Gadget 3.5\PowerLog3.0.exe`,
	`C:\Program Files (x86)\Intel\Power Gadget 3.6\PowerLog3.0.exe`,
	`C:\Program Files (x86)\Intel\Power Gadget 3.5\PowerLog3.0.exe`,
}

// powerLogNames are looked up in PATH when no configured path exists
var powerLogNames = []string{"PowerLog3.0", "PowerLog"}

// PowerLogProvider drives an external power logging tool. A recording starts
// the tool in the background writing to a unique temporary file; stopping it
// terminates the tool and parses the file into samples.
type PowerLogProvider struct {
	logger      *slog.Logger
	path        string
	args        []*template.Template
	resolution  time.Duration
	maxDuration time.Duration
	warmup      time.Duration
	settle      time.Duration
	grace       time.Duration
	tempDir     string
	clock       clock.WithTicker
	lookPath    func(string) (string, error)
	candidates  []string
}

var (
	_ Provider = (*PowerLogProvider)(nil)
	_ Recorder = (*PowerLogProvider)(nil)
)

// PowerLogOptionFn is a function that configures PowerLogProvider options
type PowerLogOptionFn func(*PowerLogProvider)

// WithPowerLogLogger sets the logger for PowerLogProvider
func WithPowerLogLogger(logger *slog.Logger) PowerLogOptionFn {
	return func(p *PowerLogProvider) {
		p.logger = logger.With("service", "powerlog")
	}
}

// WithPowerLogPath sets the path of the logging tool
func WithPowerLogPath(path string) PowerLogOptionFn {
	return func(p *PowerLogProvider) {
		p.path = path
	}
}

// WithPowerLogResolution sets the logging resolution
func WithPowerLogResolution(d time.Duration) PowerLogOptionFn {
	return func(p *PowerLogProvider) {
		p.resolution = d
	}
}

// WithPowerLogMaxDuration sets the logging duration requested from the tool;
// recordings are normally stopped well before it elapses
func WithPowerLogMaxDuration(d time.Duration) PowerLogOptionFn {
	return func(p *PowerLogProvider) {
		p.maxDuration = d
	}
}

// WithPowerLogTimings sets the warmup wait after start, the settle wait
// before stop and the grace period granted to the tool to exit
func WithPowerLogTimings(warmup, settle, grace time.Duration) PowerLogOptionFn {
	return func(p *PowerLogProvider) {
		p.warmup = warmup
		p.settle = settle
		p.grace = grace
	}
}

// WithPowerLogTempDir sets the directory of the log files
func WithPowerLogTempDir(dir string) PowerLogOptionFn {
	return func(p *PowerLogProvider) {
		p.tempDir = dir
	}
}

// WithPowerLogClock sets the clock used for waits and timestamps
func WithPowerLogClock(c clock.WithTicker) PowerLogOptionFn {
	return func(p *PowerLogProvider) {
		p.clock = c
	}
}

// NewPowerLogProvider creates a log-based provider. args are templates
// rendered for each recording; nil selects DefaultPowerLogArgs.
func NewPowerLogProvider(args []string, opts ...PowerLogOptionFn) (*PowerLogProvider, error) {
	if len(args) == 0 {
		args = DefaultPowerLogArgs
	}

	p := &PowerLogProvider{
		logger:      slog.Default().With("service", "powerlog"),
		resolution:  50 * time.Millisecond,
		maxDuration: 60 * time.Second,
		warmup:      300 * time.Millisecond,
		settle:      500 * time.Millisecond,
		grace:       2 * time.Second,
		tempDir:     os.TempDir(),
		clock:       clock.RealClock{},
		lookPath:    exec.LookPath,
		candidates:  powerLogCandidates,
	}
	for _, opt := range opts {
		opt(p)
	}

	for i, a := range args {
		t, err := template.New(fmt.Sprintf("arg%d", i)).Option("missingkey=error").Parse(a)
		if err != nil {
			return nil, fmt.Errorf("invalid power log argument %q: %w", a, err)
		}
		p.args = append(p.args, t)
	}
	return p, nil
}

func (p *PowerLogProvider) Name() string {
	return "powerlog"
}

func (p *PowerLogProvider) Backend() Backend {
	return LogBased
}

// Available reports whether the logging tool can be located
func (p *PowerLogProvider) Available(_ context.Context) bool {
	exe := p.executable()
	if exe == "" {
		p.logger.Debug("Power logging tool not found")
		return false
	}
	p.logger.Debug("Power logging tool found", "path", exe)
	return true
}

// executable returns the tool path or "" when it cannot be found
func (p *PowerLogProvider) executable() string {
	if p.path != "" {
		if isExecutable(p.path) {
			return p.path
		}
		return ""
	}
	for _, c := range p.candidates {
		if isExecutable(c) {
			return c
		}
	}
	for _, n := range powerLogNames {
		if exe, err := p.lookPath(n); err == nil {
			return exe
		}
	}
	return ""
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}

// Record starts the tool and waits for the warmup period so the first rows
// precede the measured computation
func (p *PowerLogProvider) Record(ctx context.Context) (Recording, error) {
	rec, err := p.start(ctx, p.maxDuration)
	if err != nil {
		return nil, err
	}

	if err := rec.wait(ctx, p.warmup); err != nil {
		_, _ = rec.Stop(context.Background())
		return nil, err
	}
	return rec, nil
}

// Sample runs a short one-shot recording and returns its last row, or a zero
// sample when the tool wrote none
func (p *PowerLogProvider) Sample(ctx context.Context) (Sample, error) {
	duration := time.Second
	rec, err := p.start(ctx, duration)
	if err != nil {
		return Sample{}, err
	}

	// the tool exits by itself once duration elapses
	select {
	case <-ctx.Done():
	case <-rec.done:
	case <-p.clock.After(duration + p.grace):
	}
	rec.settle = 0

	samples, err := rec.Stop(context.Background())
	if err != nil {
		return Sample{}, err
	}
	if len(samples) == 0 {
		return Sample{Timestamp: p.clock.Now()}, nil
	}
	return samples[len(samples)-1], nil
}

type powerLogArgs struct {
	Duration   string
	Resolution string
	File       string
}

func (p *PowerLogProvider) renderArgs(v powerLogArgs) ([]string, error) {
	out := make([]string, 0, len(p.args))
	for _, t := range p.args {
		var buf bytes.Buffer
		if err := t.Execute(&buf, v); err != nil {
			return nil, fmt.Errorf("failed to render power log argument: %w", err)
		}
		out = append(out, buf.String())
	}
	return out, nil
}

// logFile returns a file name unique across concurrent recordings
func (p *PowerLogProvider) logFile() string {
	stamp := p.clock.Now().Format("20060102_150405.000000")
	return filepath.Join(p.tempDir, fmt.Sprintf("powerlog_%s_%s.csv", stamp, uuid.NewString()))
}

func (p *PowerLogProvider) start(ctx context.Context, duration time.Duration) (*powerLogRecording, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	exe := p.executable()
	if exe == "" {
		return nil, fmt.Errorf("%w: power logging tool not found", ErrUnreachable)
	}

	file := p.logFile()
	args, err := p.renderArgs(powerLogArgs{
		Duration:   strconv.Itoa(int(math.Ceil(duration.Seconds()))),
		Resolution: strconv.FormatInt(p.resolution.Milliseconds(), 10),
		File:       file,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}

	cmd := exec.Command(exe, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	started := p.clock.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: failed to start %s: %w", ErrUnreachable, exe, err)
	}
	p.logger.Debug("Power logging started", "path", exe, "file", file, "pid", cmd.Process.Pid)

	rec := &powerLogRecording{
		provider: p,
		cmd:      cmd,
		file:     file,
		started:  started,
		settle:   p.settle,
		stderr:   &stderr,
		done:     make(chan struct{}),
	}
	go func() {
		rec.exitErr = cmd.Wait()
		close(rec.done)
	}()
	return rec, nil
}

// powerLogRecording is one running instance of the tool
type powerLogRecording struct {
	provider *PowerLogProvider
	cmd      *exec.Cmd
	file     string
	started  time.Time
	settle   time.Duration
	stderr   *bytes.Buffer

	done    chan struct{}
	exitErr error

	once    sync.Once
	samples []Sample
	err     error
}

var _ Recording = (*powerLogRecording)(nil)

func (r *powerLogRecording) Interval() time.Duration {
	return r.provider.resolution
}

// wait blocks for d unless the context ends first; an early exit of the tool
// is not an error, the rows written so far are still usable
func (r *powerLogRecording) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return nil
	case <-r.provider.clock.After(d):
		return nil
	}
}

// Stop waits for the settle period, terminates the tool and parses its log.
// Calling Stop more than once returns the first result.
func (r *powerLogRecording) Stop(ctx context.Context) ([]Sample, error) {
	r.once.Do(func() {
		r.samples, r.err = r.stop(ctx)
	})
	return r.samples, r.err
}

func (r *powerLogRecording) stop(ctx context.Context) ([]Sample, error) {
	p := r.provider
	_ = r.wait(ctx, r.settle)
	r.terminate()

	defer func() {
		if err := os.Remove(r.file); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.logger.Debug("Failed to remove power log", "file", r.file, "error", err)
		}
	}()

	f, err := os.Open(r.file)
	if err != nil {
		p.logger.Warn("Power log not written", "file", r.file, "exit", r.exitErr, "stderr", r.stderr.String())
		return nil, nil
	}
	defer func() { _ = f.Close() }()

	samples, err := parsePowerLog(f, r.started, p.resolution)
	if err != nil {
		p.logger.Warn("Failed to parse power log", "file", r.file, "error", err)
		return nil, nil
	}
	p.logger.Debug("Power log parsed", "file", r.file, "samples", len(samples))
	return samples, nil
}

// terminate asks the tool to exit and kills it after the grace period
func (r *powerLogRecording) terminate() {
	select {
	case <-r.done:
		return
	default:
	}

	if err := r.cmd.Process.Signal(os.Interrupt); err != nil {
		_ = r.cmd.Process.Kill()
	}

	select {
	case <-r.done:
	case <-r.provider.clock.After(r.provider.grace):
		r.provider.logger.Warn("Power logging tool did not exit, killing it", "pid", r.cmd.Process.Pid)
		_ = r.cmd.Process.Kill()
		<-r.done
	}
}
