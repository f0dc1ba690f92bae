// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package bench

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sustainable-computing-io/joulebench/config/workload"
	"github.com/sustainable-computing-io/joulebench/internal/meter"
)

// CountersFileEnv names the environment variable holding the path a command
// may write its OperationCounters JSON to
const CountersFileEnv = "JOULEBENCH_COUNTERS_FILE"

// maxStderr bounds how much of a failed command's stderr ends up in a reason
const maxStderr = 512

// CommandWorkload runs an external command as a measured computation
type CommandWorkload struct {
	logger  *slog.Logger
	w       workload.Workload
	tempDir string
}

// NewCommandWorkload adapts w to measured computations
func NewCommandWorkload(w workload.Workload, logger *slog.Logger) *CommandWorkload {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandWorkload{
		logger:  logger.With("service", "workload", "workload", w.ID),
		w:       w,
		tempDir: os.TempDir(),
	}
}

// Func returns a computation running the command once for p
func (c *CommandWorkload) Func(ctx context.Context, p workload.Params) meter.Func {
	return func() (meter.Output, error) {
		return c.run(ctx, p)
	}
}

// Plan returns the sweep plan of the workload
func (c *CommandWorkload) Plan() Plan {
	return Plan{
		ID:     c.w.ID,
		Sizes:  c.w.Sizes,
		Inputs: c.w.Inputs,
		Runs:   c.w.Runs,
		Func:   c.Func,
	}
}

func (c *CommandWorkload) run(ctx context.Context, p workload.Params) (meter.Output, error) {
	args, err := c.w.RenderArgs(p)
	if err != nil {
		return meter.Output{}, err
	}

	if c.w.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.w.Timeout)
		defer cancel()
	}

	countersFile := filepath.Join(c.tempDir, fmt.Sprintf("joulebench_counters_%s.json", uuid.NewString()))
	defer func() {
		if err := os.Remove(countersFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.logger.Warn("Failed to remove counters file", "file", countersFile, "error", err)
		}
	}()

	cmd := exec.CommandContext(ctx, c.w.Command, args...)
	cmd.Env = append(os.Environ(), CountersFileEnv+"="+countersFile)
	for k, v := range c.w.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	c.logger.Debug("Running workload", "size", p.Size, "input", p.Input, "args", args)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return meter.Output{}, fmt.Errorf("%s: %w", c.w.ID, ctx.Err())
		}
		return meter.Output{}, fmt.Errorf("%s: %w%s", c.w.ID, err, stderrTail(stderr.Bytes()))
	}

	out := meter.Output{PeakMemoryBytes: peakRSS(cmd.ProcessState)}
	counters, err := readCounters(countersFile)
	if err != nil {
		c.logger.Warn("Ignoring malformed counters", "file", countersFile, "error", err)
	}
	out.Counters = counters
	return out, nil
}

// readCounters reads the counters written by a command. A missing or empty
// file means the command reported none.
func readCounters(path string) (*meter.OperationCounters, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && len(bytes.TrimSpace(data)) == 0) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var counters meter.OperationCounters
	if err := json.Unmarshal(data, &counters); err != nil {
		return nil, fmt.Errorf("failed to parse counters: %w", err)
	}
	return &counters, nil
}

func stderrTail(b []byte) string {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return ""
	}
	if len(b) > maxStderr {
		b = b[len(b)-maxStderr:]
	}
	return ": " + string(b)
}
