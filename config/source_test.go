// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"

	"github.com/alecthomas/kingpin/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseSource(t *testing.T) {
	tt := []struct {
		name     string
		input    []string
		expected Source
		err      string
	}{
		{"empty", nil, SourceLocal, ""},
		{"single", []string{"rapl"}, SourceRapl, ""},
		{"mixed case and spaces", []string{" HWMon ", "LHM"}, SourceHwmon | SourceLHM, ""},
		{"all", ValidSources(), SourceAll, ""},
		{"duplicate", []string{"rapl", "rapl"}, SourceRapl, ""},
		{"unknown", []string{"rapl", "msr"}, 0, "unknown telemetry source: msr"},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseSource(tc.input)
			if tc.err != "" {
				assert.EqualError(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestSourceNamesAndString(t *testing.T) {
	assert.Equal(t, []string{"rapl", "hwmon", "lhm", "prometheus", "redfish"}, SourceAll.Names())
	assert.Equal(t, "rapl,redfish", (SourceRedfish | SourceRapl).String(), "names follow consultation order")
	assert.Empty(t, Source(0).String())

	s := SourceRapl | SourceLHM
	assert.True(t, s.Has(SourceRapl))
	assert.True(t, s.Has(SourceRapl|SourceLHM))
	assert.False(t, s.Has(SourceLocal))
	assert.False(t, s.Has(0))
}

func TestSourceYAML(t *testing.T) {
	type wrapper struct {
		Sources Source `yaml:"sources"`
	}

	var w wrapper
	require.NoError(t, yaml.Unmarshal([]byte("sources: prometheus"), &w))
	assert.Equal(t, SourcePrometheus, w.Sources)

	require.NoError(t, yaml.Unmarshal([]byte("sources: [rapl, redfish]"), &w))
	assert.Equal(t, SourceRapl|SourceRedfish, w.Sources)

	assert.Error(t, yaml.Unmarshal([]byte("sources: {a: b}"), &w))
	assert.Error(t, yaml.Unmarshal([]byte("sources: gpu"), &w))

	out, err := yaml.Marshal(wrapper{Sources: SourceHwmon})
	require.NoError(t, err)
	assert.Equal(t, "sources: hwmon\n", string(out))

	out, err = yaml.Marshal(wrapper{Sources: SourceLocal})
	require.NoError(t, err)

	var back wrapper
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, SourceLocal, back.Sources)
}

func TestSourceValue(t *testing.T) {
	app := kingpin.New("test", "")
	src := SourceLocal
	app.Flag("source", "").SetValue(NewSourceValue(&src))

	_, err := app.Parse([]string{"--source=lhm", "--source=redfish"})
	require.NoError(t, err)
	assert.Equal(t, SourceLHM|SourceRedfish, src, "the first value replaces the default")

	app = kingpin.New("test", "")
	src = SourceLocal
	app.Flag("source", "").SetValue(NewSourceValue(&src))
	_, err = app.Parse([]string{"--source=bogus"})
	assert.Error(t, err)

	v := NewSourceValue(&src)
	assert.True(t, v.IsCumulative())
	assert.Equal(t, src.String(), v.String())
}
