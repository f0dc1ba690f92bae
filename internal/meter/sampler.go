// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package meter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/sustainable-computing-io/joulebench/internal/device"
)

// syncSampleTimeout bounds the sample taken when the loop produced none
const syncSampleTimeout = 5 * time.Second

// Sampler polls a provider at a fixed interval while a computation runs
type Sampler struct {
	logger      *slog.Logger
	provider    device.Provider
	interval    time.Duration
	joinTimeout time.Duration
	clock       clock.WithTicker
}

// NewSampler creates a Sampler for provider. Only the logger, clock and join
// timeout options apply.
func NewSampler(provider device.Provider, interval time.Duration, applyOpts ...OptionFn) *Sampler {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	join := opts.joinTimeout
	if join <= 0 {
		join = interval
	}
	return &Sampler{
		logger:      opts.logger.With("service", "sampler"),
		provider:    provider,
		interval:    interval,
		joinTimeout: join,
		clock:       opts.clock,
	}
}

// Interval returns the sampling interval
func (s *Sampler) Interval() time.Duration {
	return s.interval
}

// Session is one running sampling loop
type Session struct {
	sampler *Sampler
	ctx     context.Context
	cancel  context.CancelFunc
	stop    chan struct{}
	done    chan error

	mu  sync.Mutex
	buf []device.Sample

	once    sync.Once
	samples []device.Sample
	err     error
}

// Start launches the sampling goroutine. Providers that keep a baseline
// between reads are reset first so that the first sample covers only time
// after Start.
func (s *Sampler) Start(ctx context.Context) *Session {
	if r, ok := s.provider.(device.Resetter); ok {
		r.Reset()
	}

	loopCtx, cancel := context.WithCancel(ctx)
	sess := &Session{
		sampler: s,
		ctx:     ctx,
		cancel:  cancel,
		stop:    make(chan struct{}),
		done:    make(chan error, 1),
	}
	go sess.loop(loopCtx)
	return sess
}

func (sess *Session) loop(ctx context.Context) {
	s := sess.sampler

	var last time.Time
	for {
		sample, err := s.provider.Sample(ctx)
		if err != nil {
			if ctx.Err() == nil {
				err = unreachable(s.provider, err)
			}
			sess.done <- err
			return
		}

		last = stamp(s.clock, last)
		sample.Timestamp = last
		sess.mu.Lock()
		sess.buf = append(sess.buf, sample)
		sess.mu.Unlock()

		select {
		case <-sess.stop:
			sess.done <- nil
			return
		case <-ctx.Done():
			sess.done <- ctx.Err()
			return
		case <-s.clock.After(s.interval):
		}
	}
}

// collected returns a copy of the samples appended so far
func (sess *Session) collected() []device.Sample {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if len(sess.buf) == 0 {
		return nil
	}
	return append([]device.Sample(nil), sess.buf...)
}

// unreachable makes sure err wraps device.ErrUnreachable
func unreachable(p device.Provider, err error) error {
	if errors.Is(err, device.ErrUnreachable) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", device.ErrUnreachable, p.Name(), err)
}

// stamp returns the current time, never earlier than last
func stamp(c clock.PassiveClock, last time.Time) time.Time {
	now := c.Now()
	if now.Before(last) {
		return last
	}
	return now
}

// Stop signals the loop and waits at most the join timeout for it to finish. A
// loop that does not finish in time is abandoned; the samples it completed
// before that are kept and a read still in flight is dropped. If no sample was
// collected one is taken synchronously. Calling Stop more than once returns the
// first result.
func (sess *Session) Stop() ([]device.Sample, error) {
	sess.once.Do(func() {
		sess.samples, sess.err = sess.stopAndJoin()
	})
	return sess.samples, sess.err
}

func (sess *Session) stopAndJoin() ([]device.Sample, error) {
	s := sess.sampler
	close(sess.stop)
	defer sess.cancel()

	var err error
	select {
	case err = <-sess.done:
	case <-s.clock.After(s.joinTimeout):
		sess.cancel()
		s.logger.Warn("Sampler did not stop in time, abandoning it",
			"provider", s.provider.Name(), "timeout", s.joinTimeout)
	}

	samples := sess.collected()
	if err != nil {
		return samples, err
	}
	if len(samples) > 0 {
		return samples, nil
	}

	ctx, cancel := context.WithTimeout(sess.ctx, syncSampleTimeout)
	defer cancel()
	sample, err := s.provider.Sample(ctx)
	if err != nil {
		return nil, unreachable(s.provider, err)
	}
	sample.Timestamp = s.clock.Now()
	return []device.Sample{sample}, nil
}
