// Copyright (C) 2025 DocSync AI (eng@docsync.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecording(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordAnalysis("self-critique", StatusCompleted, 2*time.Second)
	m.RecordAnalysis("self-critique", StatusDegraded, time.Second)
	m.RecordProviderCall("mock", "generate", "success")
	m.RecordCacheHit()
	m.RecordCacheHit()
	m.RecordCacheMiss()
	m.RecordDedup()
	m.RecordStaleDiscard()
	m.AnalysisStarted()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnalysesTotal.WithLabelValues("self-critique", StatusCompleted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnalysesTotal.WithLabelValues("self-critique", StatusDegraded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderCallsTotal.WithLabelValues("mock", "generate", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheHitsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DedupedRequestsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StaleDiscardsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InFlightAnalyses))

	m.AnalysisFinished()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.InFlightAnalyses))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordAnalysis("simple", StatusFailed, time.Second)
		m.RecordProviderCall("mock", "analyze", "error")
		m.RecordCacheHit()
		m.RecordCacheMiss()
		m.RecordDedup()
		m.RecordStaleDiscard()
		m.AnalysisStarted()
		m.AnalysisFinished()
	})
}
