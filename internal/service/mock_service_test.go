// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"sync"
)

// recorder collects the order of lifecycle calls across mocks
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// mockService implements Service interface
type mockService struct {
	name string
	rec  *recorder
}

func (m *mockService) Name() string {
	return m.name
}

// mockInitShutdownService implements both Initializer and Shutdowner
type mockInitShutdownService struct {
	mockService
	initErr     error
	shutdownErr error
}

func (m *mockInitShutdownService) Init() error {
	m.rec.add("init " + m.name)
	return m.initErr
}

func (m *mockInitShutdownService) Shutdown() error {
	m.rec.add("shutdown " + m.name)
	return m.shutdownErr
}

// mockRunShutdownService implements both Runner and Shutdowner
type mockRunShutdownService struct {
	mockService
	runFn       func(ctx context.Context) error
	shutdownErr error
}

func (m *mockRunShutdownService) Run(ctx context.Context) error {
	m.rec.add("run " + m.name)
	if m.runFn != nil {
		return m.runFn(ctx)
	}
	return nil
}

func (m *mockRunShutdownService) Shutdown() error {
	m.rec.add("shutdown " + m.name)
	return m.shutdownErr
}

func blockUntilDone(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}
