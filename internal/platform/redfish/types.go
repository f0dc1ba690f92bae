// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package redfish

import (
	"github.com/sustainable-computing-io/joulebench/internal/device"
)

// SourceType indicates the API source of the power reading
type SourceType string

const (
	// PowerSupplySource indicates data from PowerSubsystem → PowerSupplies
	PowerSupplySource SourceType = "PowerSupply"
	// PowerControlSource indicates data from Power → PowerControl (deprecated API)
	PowerControlSource SourceType = "PowerControl"
)

// PowerAPIStrategy defines the power reading strategy
type PowerAPIStrategy string

const (
	UnknownStrategy        PowerAPIStrategy = ""
	PowerSubsystemStrategy PowerAPIStrategy = "PowerSubsystem"
	PowerStrategy          PowerAPIStrategy = "Power"
)

// Reading is one power measurement of a chassis
type Reading struct {
	ChassisID  string
	SourceID   string
	SourceName string
	SourceType SourceType
	Power      device.Power
}

// SensorName names the reading so it classifies as the platform rail
func (r Reading) SensorName() string {
	return "chassis_" + r.ChassisID + "_" + r.SourceID
}
