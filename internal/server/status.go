// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sustainable-computing-io/joulebench/internal/bench"
	"github.com/sustainable-computing-io/joulebench/internal/service"
)

// ProgressReporter reports the progress of a sweep
type ProgressReporter interface {
	Progress() bench.Progress
}

// status serves the sweep progress as JSON at /status
type status struct {
	logger   *slog.Logger
	api      APIService
	progress ProgressReporter
}

var _ service.Initializer = (*status)(nil)

func NewStatus(api APIService, progress ProgressReporter, logger *slog.Logger) *status {
	if logger == nil {
		logger = slog.Default()
	}
	return &status{
		logger:   logger.With("service", "status"),
		api:      api,
		progress: progress,
	}
}

func (s *status) Name() string {
	return "status"
}

func (s *status) Init() error {
	return s.api.Register("/status", "Status", "Progress of the running sweep", http.HandlerFunc(s.handle))
}

func (s *status) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.progress.Progress()); err != nil {
		s.logger.Error("failed to encode status", "error", err)
	}
}
