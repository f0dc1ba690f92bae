// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
)

// ErrInterrupted is returned by SignalHandler when a signal arrived
type ErrInterrupted struct {
	Signal os.Signal
}

func (e ErrInterrupted) Error() string {
	return fmt.Sprintf("interrupted by %s", e.Signal)
}

// SignalHandler is a Runner that returns when one of its signals arrives,
// stopping a sweep in progress
type SignalHandler struct {
	logger  *slog.Logger
	signals []os.Signal
}

func NewSignalHandler(logger *slog.Logger, signals ...os.Signal) *SignalHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SignalHandler{
		logger:  logger.With("service", "signal-handler"),
		signals: signals,
	}
}

func (sh *SignalHandler) Name() string {
	return "signal-handler"
}

func (sh *SignalHandler) Run(ctx context.Context) error {
	c := make(chan os.Signal, 1)
	signal.Notify(c, sh.signals...)
	defer signal.Stop(c)
	sh.logger.Debug("Waiting for signals", "signals", sh.signals)

	select {
	case s := <-c:
		sh.logger.Info("Signal received, stopping", "signal", s.String())
		return ErrInterrupted{Signal: s}

	case <-ctx.Done():
		return ctx.Err()
	}
}
