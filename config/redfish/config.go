// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package redfish

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultTimeout is the HTTP timeout used when a BMC sets none
const DefaultTimeout = 5 * time.Second

// BMCConfig describes the BMCs of the benchmark hosts. A lab usually shares
// one file across machines, so each host is mapped to its BMC by name and
// hosts without a mapping use the default BMC.
type BMCConfig struct {
	Default string               `yaml:"default"` // BMC ID used for unmapped hosts
	Hosts   map[string]string    `yaml:"hosts"`   // host name -> BMC ID
	BMCs    map[string]BMCDetail `yaml:"bmcs"`    // BMC ID -> connection details
}

// BMCDetail contains the connection details for a specific BMC
type BMCDetail struct {
	Endpoint string        `yaml:"endpoint"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Insecure bool          `yaml:"insecure"` // skip TLS verification
	Timeout  time.Duration `yaml:"timeout"`
}

// Load loads and validates the BMC configuration file
func Load(path string) (*BMCConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read BMC config file %s: %w", path, err)
	}

	var cfg BMCConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse BMC config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid BMC configuration: %w", err)
	}
	return &cfg, nil
}

// Validate validates the BMC configuration
func (c *BMCConfig) Validate() error {
	if len(c.BMCs) == 0 {
		return fmt.Errorf("no BMCs configured")
	}

	if c.Default != "" {
		if _, ok := c.BMCs[c.Default]; !ok {
			return fmt.Errorf("default references non-existent BMC %s", c.Default)
		}
	}

	for host, id := range c.Hosts {
		if _, ok := c.BMCs[id]; !ok {
			return fmt.Errorf("host %s references non-existent BMC %s", host, id)
		}
	}

	for id, bmc := range c.BMCs {
		if err := bmc.Validate(); err != nil {
			return fmt.Errorf("BMC %s configuration invalid: %w", id, err)
		}
	}
	return nil
}

// Validate validates a BMC detail configuration
func (b *BMCDetail) Validate() error {
	if strings.TrimSpace(b.Endpoint) == "" {
		return fmt.Errorf("endpoint is required")
	}

	hasUsername := strings.TrimSpace(b.Username) != ""
	hasPassword := strings.TrimSpace(b.Password) != ""
	if hasUsername != hasPassword {
		return fmt.Errorf("username and password must be provided together")
	}

	if b.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return nil
}

// BMCFor returns the BMC of host, falling back to the default BMC. A file
// with exactly one BMC needs neither a host mapping nor a default.
func (c *BMCConfig) BMCFor(host string) (string, BMCDetail, error) {
	id, ok := c.Hosts[host]
	switch {
	case ok:
	case c.Default != "":
		id = c.Default
	case len(c.BMCs) == 1:
		for only := range c.BMCs {
			id = only
		}
	default:
		return "", BMCDetail{}, fmt.Errorf("no BMC configured for host %s", host)
	}

	bmc, ok := c.BMCs[id]
	if !ok {
		return "", BMCDetail{}, fmt.Errorf("BMC %s not found in BMC configuration", id)
	}
	if bmc.Timeout == 0 {
		bmc.Timeout = DefaultTimeout
	}
	return id, bmc, nil
}
