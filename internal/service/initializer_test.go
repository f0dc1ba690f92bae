// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	rec := &recorder{}
	services := []Service{
		&mockInitShutdownService{mockService: mockService{name: "selector", rec: rec}},
		&mockService{name: "plain"},
		&mockInitShutdownService{mockService: mockService{name: "influx", rec: rec}},
	}

	require.NoError(t, Init(nil, services))
	assert.Equal(t, []string{"init selector", "init influx"}, rec.list())
}

func TestInitFailureShutsDownInReverse(t *testing.T) {
	rec := &recorder{}
	initErr := errors.New("no bucket")
	services := []Service{
		&mockInitShutdownService{mockService: mockService{name: "a", rec: rec}},
		&mockInitShutdownService{mockService: mockService{name: "b", rec: rec}},
		&mockInitShutdownService{mockService: mockService{name: "c", rec: rec}, initErr: initErr},
		&mockInitShutdownService{mockService: mockService{name: "d", rec: rec}},
	}

	err := Init(nil, services)
	require.Error(t, err)
	assert.ErrorIs(t, err, initErr)
	assert.Contains(t, err.Error(), "failed to initialize service c")
	assert.Equal(t, []string{"init a", "init b", "init c", "shutdown b", "shutdown a"}, rec.list())
}

func TestInitFailureReportsShutdownErrors(t *testing.T) {
	rec := &recorder{}
	shutdownErr := errors.New("flush failed")
	services := []Service{
		&mockInitShutdownService{mockService: mockService{name: "a", rec: rec}, shutdownErr: shutdownErr},
		&mockInitShutdownService{mockService: mockService{name: "b", rec: rec}, initErr: errors.New("boom")},
	}

	err := Init(nil, services)
	assert.ErrorIs(t, err, shutdownErr)
	assert.Contains(t, err.Error(), "failed to shutdown service a")
}

func TestShutdown(t *testing.T) {
	rec := &recorder{}
	services := []Service{
		&mockInitShutdownService{mockService: mockService{name: "a", rec: rec}},
		&mockService{name: "plain"},
		&mockRunShutdownService{mockService: mockService{name: "b", rec: rec}},
	}

	assert.NoError(t, Shutdown(nil, services))
	assert.Equal(t, []string{"shutdown b", "shutdown a"}, rec.list())
}
