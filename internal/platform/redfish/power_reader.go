// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package redfish

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/stmcginnis/gofish"
	"github.com/stmcginnis/gofish/redfish"
	redfishcfg "github.com/sustainable-computing-io/joulebench/config/redfish"
	"github.com/sustainable-computing-io/joulebench/internal/device"
)

// PowerReader reads chassis power from a Redfish BMC via PowerSubsystem with
// fallback to the deprecated Power API. It is a device.SensorReader whose
// sensors all classify as the platform rail.
type PowerReader struct {
	logger *slog.Logger
	cfg    gofish.ClientConfig

	mu       sync.Mutex
	client   *gofish.APIClient
	endpoint string
	strategy PowerAPIStrategy
}

var _ device.SensorReader = (*PowerReader)(nil)

// NewPowerReader creates a PowerReader for the given BMC
func NewPowerReader(bmc redfishcfg.BMCDetail, logger *slog.Logger) *PowerReader {
	timeout := bmc.Timeout
	if timeout == 0 {
		timeout = redfishcfg.DefaultTimeout
	}
	httpClient := &http.Client{Timeout: timeout}
	if bmc.Insecure {
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return &PowerReader{
		logger: logger.With("source", "redfish"),
		cfg: gofish.ClientConfig{
			Endpoint:   bmc.Endpoint,
			Username:   bmc.Username,
			Password:   bmc.Password,
			HTTPClient: httpClient,
		},
	}
}

func (pr *PowerReader) Name() string {
	return "redfish"
}

// Init connects to the BMC and determines the power reading strategy
func (pr *PowerReader) Init() error {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	// NOTE: gofish keeps the context of Connect for all later requests, so a
	// timeout context here would cancel every subsequent read
	client, err := gofish.Connect(pr.cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to BMC at %s: %w", pr.cfg.Endpoint, err)
	}

	if client.Service == nil {
		client.Logout()
		return fmt.Errorf("BMC service is not available")
	}

	chassis, err := client.Service.Chassis()
	if err != nil {
		client.Logout()
		return fmt.Errorf("failed to get chassis collection: %w", err)
	}

	strategy, err := pr.determineStrategy(chassis)
	if err != nil {
		client.Logout()
		return fmt.Errorf("failed to determine power reading strategy: %w", err)
	}

	pr.client = client
	pr.endpoint = client.Service.ODataID
	pr.strategy = strategy
	pr.logger.Info("Power reading strategy determined",
		"endpoint", pr.cfg.Endpoint, "strategy", string(strategy))
	return nil
}

// Strategy returns the strategy found by Init
func (pr *PowerReader) Strategy() PowerAPIStrategy {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return pr.strategy
}

// Close logs out from the BMC
func (pr *PowerReader) Close() error {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	if pr.client == nil {
		return nil
	}
	pr.client.Logout()
	pr.client = nil
	pr.strategy = UnknownStrategy
	return nil
}

// determineStrategy tests chassis until it finds one with a supported API that has data
func (pr *PowerReader) determineStrategy(chassis []*redfish.Chassis) (PowerAPIStrategy, error) {
	if len(chassis) == 0 {
		return UnknownStrategy, fmt.Errorf("no chassis found in BMC")
	}

	for _, c := range chassis {
		if c == nil {
			continue
		}
		if _, err := pr.readPowerSubsystem(c); err == nil {
			return PowerSubsystemStrategy, nil
		}
		if _, err := pr.readPower(c); err == nil {
			return PowerStrategy, nil
		}
	}

	return UnknownStrategy, fmt.Errorf(
		"neither PowerSubsystem nor Power API is available on any chassis (tested %d chassis)",
		len(chassis))
}

// Sensors reads every chassis with the pre-determined strategy
func (pr *PowerReader) Sensors(_ context.Context) ([]device.Sensor, error) {
	readings, err := pr.ReadAll()
	if err != nil {
		return nil, err
	}

	sensors := make([]device.Sensor, 0, len(readings))
	for _, r := range readings {
		sensors = append(sensors, device.Sensor{Name: r.SensorName(), Power: r.Power})
	}
	return sensors, nil
}

// ReadAll returns the readings of all chassis that report power
func (pr *PowerReader) ReadAll() ([]Reading, error) {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	if pr.client == nil || pr.client.Service == nil {
		return nil, fmt.Errorf("BMC client is not connected")
	}

	chassis, err := pr.client.Service.Chassis()
	if err != nil {
		return nil, fmt.Errorf("failed to get chassis collection: %w", err)
	}

	var all []Reading
	for _, ch := range chassis {
		if ch == nil {
			continue
		}

		var readings []Reading
		switch pr.strategy {
		case PowerSubsystemStrategy:
			readings, err = pr.readPowerSubsystem(ch)
		case PowerStrategy:
			readings, err = pr.readPower(ch)
		default:
			return nil, fmt.Errorf("unknown power reading strategy: %q", pr.strategy)
		}
		if err != nil {
			pr.logger.Debug("Failed to read power data from chassis",
				"chassis_id", ch.ID, "strategy", pr.strategy, "error", err)
			continue
		}
		all = append(all, readings...)
	}

	if len(all) == 0 {
		return nil, fmt.Errorf("no chassis with valid power readings found")
	}
	return all, nil
}

// readPowerSubsystem reads the output power of every power supply
func (pr *PowerReader) readPowerSubsystem(chassis *redfish.Chassis) ([]Reading, error) {
	subsystem, err := chassis.PowerSubsystem()
	if err != nil {
		return nil, fmt.Errorf("failed to get power subsystem: %w", err)
	}
	if subsystem == nil {
		return nil, fmt.Errorf("no power subsystem available")
	}

	supplies, err := subsystem.PowerSupplies()
	if err != nil {
		return nil, fmt.Errorf("failed to get power supplies: %w", err)
	}

	var readings []Reading
	for _, psu := range supplies {
		if psu.PowerOutputWatts == 0 {
			continue
		}
		readings = append(readings, Reading{
			ChassisID:  chassis.ID,
			SourceID:   psu.ID,
			SourceName: psu.Name,
			SourceType: PowerSupplySource,
			Power:      device.Watts(float64(psu.PowerOutputWatts)),
		})
	}

	if len(readings) == 0 {
		return nil, fmt.Errorf("no valid power readings found from power supplies")
	}
	return readings, nil
}

// readPower reads PowerControl entries of the deprecated Power API
func (pr *PowerReader) readPower(chassis *redfish.Chassis) ([]Reading, error) {
	power, err := chassis.Power()
	if err != nil {
		return nil, fmt.Errorf("failed to get power information: %w", err)
	}
	if power == nil || len(power.PowerControl) == 0 {
		return nil, fmt.Errorf("no power control information available")
	}

	var readings []Reading
	for _, pc := range power.PowerControl {
		if pc.PowerConsumedWatts == 0 {
			continue
		}
		readings = append(readings, Reading{
			ChassisID:  chassis.ID,
			SourceID:   pc.MemberID,
			SourceName: pc.Name,
			SourceType: PowerControlSource,
			Power:      device.Watts(float64(pc.PowerConsumedWatts)),
		})
	}

	if len(readings) == 0 {
		return nil, fmt.Errorf("no valid power readings found from power controls")
	}
	return readings, nil
}
