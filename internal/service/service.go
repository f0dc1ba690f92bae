// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package service

import "context"

// Service is the interface that all services must implement
type Service interface {
	// Name returns the name of the service
	Name() string
}

// Initializer is implemented by services that need setup before running,
// such as probing telemetry or opening sinks
type Initializer interface {
	Service
	Init() error
}

// Runner is implemented by services that run in background. A Runner that
// returns, with or without error, stops every other Runner.
type Runner interface {
	Service
	// Run is expected to block until done or until ctx is cancelled
	Run(ctx context.Context) error
}

// Shutdowner is implemented by services holding resources to release
type Shutdowner interface {
	Service
	// Shutdown shuts down the service
	Shutdown() error
}
