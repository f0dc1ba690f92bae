// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package meter

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sustainable-computing-io/joulebench/internal/device"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeProvider is a polling provider with a constant package power
type fakeProvider struct {
	name      string
	backend   device.Backend
	available bool
	watts     float64

	mu      sync.Mutex
	err     error
	block   chan struct{} // holds Sample call number blockAt until closed
	blockAt int32
	probes  atomic.Int32
	samples atomic.Int32
	resets  atomic.Int32
}

var (
	_ device.Provider = (*fakeProvider)(nil)
	_ device.Resetter = (*fakeProvider)(nil)
)

func newFakeProvider(name string, watts float64) *fakeProvider {
	return &fakeProvider{name: name, backend: device.Polling, available: true, watts: watts, blockAt: 1}
}

func (p *fakeProvider) Reset() { p.resets.Add(1) }

func (p *fakeProvider) Name() string            { return p.name }
func (p *fakeProvider) Backend() device.Backend { return p.backend }

func (p *fakeProvider) Available(context.Context) bool {
	p.probes.Add(1)
	return p.available
}

func (p *fakeProvider) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *fakeProvider) Sample(ctx context.Context) (device.Sample, error) {
	if p.samples.Add(1) == p.blockAt && p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return device.Sample{}, ctx.Err()
		}
	}

	p.mu.Lock()
	err := p.err
	p.mu.Unlock()
	if err != nil {
		return device.Sample{}, err
	}

	var s device.Sample
	s.Set(device.RailPackage, device.Watts(p.watts))
	s.Set(device.RailCores, device.Watts(p.watts/2))
	return s, nil
}

// fakeRecorder is a log-based provider replaying fixed samples
type fakeRecorder struct {
	fakeProvider
	rows      []device.Sample
	interval  time.Duration
	recordErr error
	stopErr   error
	records   atomic.Int32
}

var _ device.Recorder = (*fakeRecorder)(nil)

func newFakeRecorder(name string, rows []device.Sample, interval time.Duration) *fakeRecorder {
	r := &fakeRecorder{rows: rows, interval: interval}
	r.name = name
	r.backend = device.LogBased
	r.available = true
	return r
}

func (r *fakeRecorder) Record(context.Context) (device.Recording, error) {
	r.records.Add(1)
	if r.recordErr != nil {
		return nil, r.recordErr
	}
	return &fakeRecording{r: r}, nil
}

type fakeRecording struct {
	r       *fakeRecorder
	stopped int
}

func (rec *fakeRecording) Interval() time.Duration { return rec.r.interval }

func (rec *fakeRecording) Stop(context.Context) ([]device.Sample, error) {
	rec.stopped++
	return rec.r.rows, rec.r.stopErr
}

// constRows returns n samples of w watts on the package rail
func constRows(n int, w float64, start time.Time, step time.Duration) []device.Sample {
	rows := make([]device.Sample, n)
	for i := range rows {
		rows[i].Timestamp = start.Add(time.Duration(i) * step)
		rows[i].Set(device.RailPackage, device.Watts(w))
	}
	return rows
}
