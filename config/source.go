// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"strings"
)

// Source represents the enabled polling telemetry sources using bit patterns
type Source uint32

const (
	SourceRapl       Source = 1 << iota // 1
	SourceHwmon                         // 2
	SourceLHM                           // 4
	SourcePrometheus                    // 8
	SourceRedfish                       // 16

	// SourceLocal are the sources that need no endpoint configuration
	SourceLocal = SourceRapl | SourceHwmon

	// SourceAll represents all sources combined
	SourceAll = SourceRapl | SourceHwmon | SourceLHM | SourcePrometheus | SourceRedfish
)

// sourceNames lists the sources in the order readers are consulted
var sourceNames = []struct {
	source Source
	name   string
}{
	{SourceRapl, "rapl"},
	{SourceHwmon, "hwmon"},
	{SourceLHM, "lhm"},
	{SourcePrometheus, "prometheus"},
	{SourceRedfish, "redfish"},
}

// Names returns the names of the enabled sources in consultation order
func (s Source) Names() []string {
	var names []string
	for _, n := range sourceNames {
		if s.Has(n.source) {
			names = append(names, n.name)
		}
	}
	return names
}

// String returns the string representation of the sources
func (s Source) String() string {
	return strings.Join(s.Names(), ",")
}

// Has checks whether all of o are enabled
func (s Source) Has(o Source) bool {
	return o != 0 && s&o == o
}

// ParseSource parses a slice of strings into a Source
func ParseSource(sources []string) (Source, error) {
	if len(sources) == 0 {
		return SourceLocal, nil
	}

	var result Source
	for _, src := range sources {
		name := strings.ToLower(strings.TrimSpace(src))
		found := false
		for _, n := range sourceNames {
			if n.name == name {
				result |= n.source
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown telemetry source: %s", src)
		}
	}

	return result, nil
}

// ValidSources returns the list of valid source names
func ValidSources() []string {
	names := make([]string, 0, len(sourceNames))
	for _, n := range sourceNames {
		names = append(names, n.name)
	}
	return names
}

// MarshalYAML implements yaml.Marshaler interface
func (s Source) MarshalYAML() (interface{}, error) {
	names := s.Names()
	if len(names) == 1 {
		return names[0], nil
	}
	return names, nil
}

// UnmarshalYAML implements yaml.Unmarshaler interface
func (s *Source) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var single string
	if err := unmarshal(&single); err == nil {
		parsed, parseErr := ParseSource([]string{single})
		if parseErr != nil {
			return parseErr
		}
		*s = parsed
		return nil
	}

	var multiple []string
	if err := unmarshal(&multiple); err == nil {
		parsed, parseErr := ParseSource(multiple)
		if parseErr != nil {
			return parseErr
		}
		*s = parsed
		return nil
	}

	return fmt.Errorf("cannot unmarshal telemetry sources: must be a string or array of strings")
}

// SourceValue is a custom kingpin.Value that accumulates sources
type SourceValue struct {
	source *Source
	set    bool
}

// NewSourceValue creates a new SourceValue with the given target
func NewSourceValue(target *Source) *SourceValue {
	return &SourceValue{source: target}
}

// Set implements kingpin.Value interface; the first value replaces the default
func (v *SourceValue) Set(value string) error {
	src, err := ParseSource([]string{value})
	if err != nil {
		return err
	}
	if !v.set {
		*v.source = 0
		v.set = true
	}
	*v.source |= src
	return nil
}

// String implements kingpin.Value interface
func (v *SourceValue) String() string {
	return v.source.String()
}

// IsCumulative implements kingpin.Value interface to support multiple values
func (v *SourceValue) IsCumulative() bool {
	return true
}
