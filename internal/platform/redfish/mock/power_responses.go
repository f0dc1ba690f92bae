// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package mock

// PowerResponse returns the Power resource of chassis 1 with a single
// PowerControl entry consuming powerWatts
func PowerResponse(powerWatts float64) map[string]any {
	return map[string]any{
		"@odata.type": "#Power.v1_5_0.Power",
		"@odata.id":   "/redfish/v1/Chassis/1/Power",
		"Id":          "Power",
		"Name":        "Power",
		"PowerControl": []map[string]any{{
			"@odata.id":           "/redfish/v1/Chassis/1/Power#/PowerControl/0",
			"MemberId":            "0",
			"Name":                "System Power Control",
			"PowerConsumedWatts":  powerWatts,
			"PowerCapacityWatts":  750.0,
			"PowerAvailableWatts": 600.0,
		}},
	}
}
