// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import "strings"

// railRules are checked in order; the first rule with a matching fragment wins.
// Accelerator comes first so that "GPU Package" and RAPL "uncore" are not
// mistaken for the CPU package and cores.
var railRules = []struct {
	rail      Rail
	fragments []string
}{
	{RailAccelerator, []string{"gpu", "uncore", "gt ", "gt_", "vddgfx", "graphics", "accelerator"}},
	{RailPackage, []string{"package", "pkg", "ppt", "socket"}},
	{RailCores, []string{"core", "ia ", "ia_"}},
	{RailMemory, []string{"dram", "memory"}},
	{RailPlatform, []string{"psys", "platform", "chassis", "psu", "power supply", "system"}},
}

// ClassifyRail maps a sensor name to a rail by case-insensitive substring
// match. RailUnknown is returned for names that match no rule.
func ClassifyRail(name string) Rail {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return RailUnknown
	}
	// bare labels used by powercap and hwmon
	switch n {
	case "gt":
		return RailAccelerator
	case "ia":
		return RailCores
	}

	for _, rule := range railRules {
		for _, f := range rule.fragments {
			if strings.Contains(n, f) {
				return rule.rail
			}
		}
	}
	return RailUnknown
}
