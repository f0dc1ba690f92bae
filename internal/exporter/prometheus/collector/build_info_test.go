// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestBuildInfo_Describe(t *testing.T) {
	collector := NewBuildInfoCollector()
	ch := make(chan *prometheus.Desc, 1)
	collector.Describe(ch)
	assert.Len(t, ch, 1, "expected one metric description")
}

func TestBuildInfo_Collect(t *testing.T) {
	collector := NewBuildInfoCollector()
	assert.Equal(t, 1, testutil.CollectAndCount(collector, "joulebench_build_info"))

	ch := make(chan prometheus.Metric, 1)
	collector.Collect(ch)
	desc := (<-ch).Desc().String()
	for _, label := range []string{"arch", "branch", "revision", "version", "goversion"} {
		assert.Contains(t, desc, label)
	}
}

func TestBuildInfo_ParallelCollect(t *testing.T) {
	collector := NewBuildInfoCollector()
	parallelCalls := 10
	ch := make(chan prometheus.Metric, parallelCalls)

	var wg sync.WaitGroup
	wg.Add(parallelCalls)
	for range parallelCalls {
		go func() {
			defer wg.Done()
			collector.Collect(ch)
		}()
	}
	wg.Wait()
	close(ch)

	n := 0
	for m := range ch {
		assert.NotNil(t, m)
		n++
	}
	assert.Equal(t, parallelCalls, n)
}
