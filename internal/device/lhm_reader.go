// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// lhmReader implements SensorReader against the remote web server of
// LibreHardwareMonitor (or OpenHardwareMonitor), which publishes the whole
// sensor tree at /data.json
type lhmReader struct {
	logger  *slog.Logger
	baseURL string
	client  *http.Client
}

var _ SensorReader = (*lhmReader)(nil)

// LHMOptionFn is a function that configures lhmReader options
type LHMOptionFn func(*lhmReader)

// WithLHMLogger sets the logger for lhmReader
func WithLHMLogger(logger *slog.Logger) LHMOptionFn {
	return func(r *lhmReader) {
		r.logger = logger.With("source", "lhm")
	}
}

// WithLHMTimeout sets the HTTP timeout of each request
func WithLHMTimeout(d time.Duration) LHMOptionFn {
	return func(r *lhmReader) {
		r.client.Timeout = d
	}
}

// NewLHMReader creates a reader for the LibreHardwareMonitor web server at baseURL
func NewLHMReader(baseURL string, opts ...LHMOptionFn) *lhmReader {
	r := &lhmReader{
		logger:  slog.Default().With("source", "lhm"),
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 2 * time.Second},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *lhmReader) Name() string {
	return "lhm"
}

// Init verifies the service answers with at least one power sensor
func (r *lhmReader) Init() error {
	ctx, cancel := context.WithTimeout(context.Background(), r.client.Timeout)
	defer cancel()

	sensors, err := r.Sensors(ctx)
	if err != nil {
		return err
	}
	if len(sensors) == 0 {
		return fmt.Errorf("no power sensors reported by %s", r.baseURL)
	}
	return nil
}

func (r *lhmReader) Sensors(ctx context.Context) ([]Sensor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/data.json", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query hardware monitor: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("hardware monitor query failed: %s", resp.Status)
	}

	var root lhmNode
	if err := json.NewDecoder(resp.Body).Decode(&root); err != nil {
		return nil, fmt.Errorf("failed to decode hardware monitor response: %w", err)
	}

	var sensors []Sensor
	root.walk(func(n *lhmNode) {
		if !n.isPower() {
			return
		}
		w, err := parseWatts(n.Value)
		if err != nil {
			r.logger.Debug("Skipping power sensor", "sensor", n.Text, "value", n.Value, "error", err)
			return
		}
		sensors = append(sensors, Sensor{Name: n.Text, Power: Watts(w)})
	})
	return sensors, nil
}

func (r *lhmReader) Close() error {
	r.client.CloseIdleConnections()
	return nil
}

// lhmNode is a node of the data.json sensor tree
type lhmNode struct {
	Text     string    `json:"Text"`
	Value    string    `json:"Value"`
	Type     string    `json:"Type"`
	SensorID string    `json:"SensorId"`
	Children []lhmNode `json:"Children"`
}

func (n *lhmNode) walk(fn func(*lhmNode)) {
	fn(n)
	for i := range n.Children {
		n.Children[i].walk(fn)
	}
}

// isPower accepts leaf nodes typed Power; older releases do not publish a
// type, so a watt-suffixed value on a leaf is accepted as well
func (n *lhmNode) isPower() bool {
	if len(n.Children) != 0 {
		return false
	}
	if strings.EqualFold(n.Type, "Power") || strings.Contains(n.SensorID, "/power/") {
		return true
	}
	v := strings.TrimSpace(n.Value)
	return strings.HasSuffix(v, " W") && !strings.HasSuffix(v, "Wh")
}

// parseWatts parses values such as "12.5 W" or "12,5 W"
func parseWatts(v string) (float64, error) {
	v = strings.TrimSpace(v)
	v = strings.TrimSuffix(v, "W")
	v = strings.TrimSpace(v)
	v = strings.ReplaceAll(v, ",", ".")
	if v == "" || v == "-" {
		return 0, fmt.Errorf("empty value")
	}
	return strconv.ParseFloat(v, 64)
}
