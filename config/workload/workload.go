// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package workload

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"
)

// Catalogue is the set of workloads of a benchmark sweep
type Catalogue struct {
	Workloads []Workload `yaml:"workloads"`
}

// Workload is an external command measured once per run. Args are templates
// over .Size and .Input. Sizes, Inputs and Runs fall back to the bench
// settings when empty.
type Workload struct {
	ID      string            `yaml:"id"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Sizes   []int             `yaml:"sizes"`
	Inputs  []string          `yaml:"inputs"`
	Runs    int               `yaml:"runs"`
	Timeout time.Duration     `yaml:"timeout"`
	Env     map[string]string `yaml:"env"`
}

// Params are the values substituted into workload arguments
type Params struct {
	Size  int
	Input string
}

// Defaults applied to workloads that leave a setting out
type Defaults struct {
	Sizes  []int
	Inputs []string
	Runs   int
}

// Load reads and validates a catalogue file
func Load(path string) (*Catalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workload file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a catalogue
func Parse(data []byte) (*Catalogue, error) {
	var c Catalogue
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("failed to parse workload file: %w", err)
	}
	for i := range c.Workloads {
		w := &c.Workloads[i]
		w.ID = strings.TrimSpace(w.ID)
		w.Command = strings.TrimSpace(w.Command)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workload file: %w", err)
	}
	return &c, nil
}

// Validate checks every workload and reports all problems at once
func (c *Catalogue) Validate() error {
	if len(c.Workloads) == 0 {
		return errors.New("no workloads defined")
	}

	var errs error
	seen := map[string]bool{}
	for i, w := range c.Workloads {
		if w.ID == "" {
			errs = errors.Join(errs, fmt.Errorf("workload %d: id is required", i))
		} else if seen[w.ID] {
			errs = errors.Join(errs, fmt.Errorf("workload %s: duplicate id", w.ID))
		}
		seen[w.ID] = true

		if w.Command == "" {
			errs = errors.Join(errs, fmt.Errorf("workload %s: command is required", w.ID))
		}
		if w.Runs < 0 {
			errs = errors.Join(errs, fmt.Errorf("workload %s: runs can't be negative", w.ID))
		}
		if w.Timeout < 0 {
			errs = errors.Join(errs, fmt.Errorf("workload %s: timeout can't be negative", w.ID))
		}
		for _, s := range w.Sizes {
			if s < 0 {
				errs = errors.Join(errs, fmt.Errorf("workload %s: size %d can't be negative", w.ID, s))
			}
		}
		if _, err := w.parseArgs(); err != nil {
			errs = errors.Join(errs, fmt.Errorf("workload %s: %w", w.ID, err))
		}
	}
	return errs
}

// WithDefaults returns a copy of w with empty settings taken from d
func (w Workload) WithDefaults(d Defaults) Workload {
	if len(w.Sizes) == 0 {
		w.Sizes = d.Sizes
	}
	if len(w.Inputs) == 0 {
		w.Inputs = d.Inputs
	}
	if len(w.Inputs) == 0 {
		w.Inputs = []string{""}
	}
	if w.Runs == 0 {
		w.Runs = d.Runs
	}
	return w
}

func (w Workload) parseArgs() ([]*template.Template, error) {
	ret := make([]*template.Template, 0, len(w.Args))
	for i, a := range w.Args {
		t, err := template.New(fmt.Sprintf("%s.arg%d", w.ID, i)).Option("missingkey=error").Parse(a)
		if err != nil {
			return nil, fmt.Errorf("invalid argument %q: %w", a, err)
		}
		ret = append(ret, t)
	}
	return ret, nil
}

// RenderArgs substitutes p into the workload arguments
func (w Workload) RenderArgs(p Params) ([]string, error) {
	tmpls, err := w.parseArgs()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(tmpls))
	for _, t := range tmpls {
		var buf bytes.Buffer
		if err := t.Execute(&buf, p); err != nil {
			return nil, fmt.Errorf("failed to render argument: %w", err)
		}
		out = append(out, buf.String())
	}
	return out, nil
}
