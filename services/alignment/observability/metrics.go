// Copyright (C) 2025 DocSync AI (eng@docsync.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides metrics and tracing for the alignment
// service.
//
// # Description
//
// Prometheus metrics cover the orchestration core: analyses by strategy
// and outcome, provider call spend, cache effectiveness, singleflight
// deduplication, degraded reports, and stale discards. Exposed via the
// /metrics endpoint.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal
// locking.
package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace   = "docsync"
	alignmentSubsystem = "alignment"
)

// Analysis outcome labels.
const (
	StatusCompleted = "completed"
	StatusDegraded  = "degraded"
	StatusFailed    = "failed"
)

// Metrics holds all Prometheus metrics for the alignment service.
type Metrics struct {
	// AnalysesTotal counts finished analyses.
	// Labels: strategy (simple, self-critique), status (completed,
	// degraded, failed)
	AnalysesTotal *prometheus.CounterVec

	// ProviderCallsTotal counts provider calls, the cost unit.
	// Labels: backend (anthropic, openai, mock), stage (analyze,
	// generate, critique, enhance), outcome (success, error)
	ProviderCallsTotal *prometheus.CounterVec

	// CacheHitsTotal counts analysis requests served from the report
	// store without any provider call.
	CacheHitsTotal prometheus.Counter

	// CacheMissesTotal counts analysis requests that required a fresh
	// computation.
	CacheMissesTotal prometheus.Counter

	// DedupedRequestsTotal counts callers that awaited an in-flight
	// computation instead of starting their own.
	DedupedRequestsTotal prometheus.Counter

	// StaleDiscardsTotal counts computations whose result arrived
	// after a newer cache key had completed.
	StaleDiscardsTotal prometheus.Counter

	// AnalysisDurationSeconds measures end-to-end computation time.
	// Labels: strategy
	AnalysisDurationSeconds *prometheus.HistogramVec

	// InFlightAnalyses tracks currently running computations.
	InFlightAnalyses prometheus.Gauge
}

// NewMetrics creates and registers all metrics on the given registerer.
// Tests pass a fresh prometheus.NewRegistry().
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		AnalysesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: alignmentSubsystem,
				Name:      "analyses_total",
				Help:      "Total finished analyses by strategy and status",
			},
			[]string{"strategy", "status"},
		),

		ProviderCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: alignmentSubsystem,
				Name:      "provider_calls_total",
				Help:      "Total reasoning provider calls by backend, stage, and outcome",
			},
			[]string{"backend", "stage", "outcome"},
		),

		CacheHitsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: alignmentSubsystem,
				Name:      "cache_hits_total",
				Help:      "Analysis requests served from the report store",
			},
		),

		CacheMissesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: alignmentSubsystem,
				Name:      "cache_misses_total",
				Help:      "Analysis requests requiring a fresh computation",
			},
		),

		DedupedRequestsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: alignmentSubsystem,
				Name:      "deduped_requests_total",
				Help:      "Callers that awaited an in-flight computation",
			},
		),

		StaleDiscardsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: alignmentSubsystem,
				Name:      "stale_discards_total",
				Help:      "Computations superseded before their result arrived",
			},
		),

		AnalysisDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: alignmentSubsystem,
				Name:      "analysis_duration_seconds",
				Help:      "End-to-end analysis computation time by strategy",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"strategy"},
		),

		InFlightAnalyses: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: alignmentSubsystem,
				Name:      "in_flight_analyses",
				Help:      "Currently running analysis computations",
			},
		),
	}
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// InitMetrics registers the singleton metrics on the default Prometheus
// registry. Safe to call more than once; only the first call registers.
func InitMetrics() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// DefaultMetrics returns the singleton, or nil before InitMetrics. The
// record helpers tolerate nil, so callers need no guard.
func DefaultMetrics() *Metrics {
	return defaultMetrics
}

// RecordAnalysis records one finished analysis.
func (m *Metrics) RecordAnalysis(strategy, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.AnalysesTotal.WithLabelValues(strategy, status).Inc()
	m.AnalysisDurationSeconds.WithLabelValues(strategy).Observe(duration.Seconds())
}

// RecordProviderCall records one provider call.
func (m *Metrics) RecordProviderCall(backend, stage, outcome string) {
	if m == nil {
		return
	}
	m.ProviderCallsTotal.WithLabelValues(backend, stage, outcome).Inc()
}

// RecordCacheHit records a request served without computation.
func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}

// RecordCacheMiss records a request that required computation.
func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.CacheMissesTotal.Inc()
}

// RecordDedup records a caller that joined an in-flight computation.
func (m *Metrics) RecordDedup() {
	if m == nil {
		return
	}
	m.DedupedRequestsTotal.Inc()
}

// RecordStaleDiscard records a superseded computation result.
func (m *Metrics) RecordStaleDiscard() {
	if m == nil {
		return
	}
	m.StaleDiscardsTotal.Inc()
}

// AnalysisStarted marks a computation in flight. Pair with
// AnalysisFinished.
func (m *Metrics) AnalysisStarted() {
	if m == nil {
		return
	}
	m.InFlightAnalyses.Inc()
}

// AnalysisFinished marks a computation done.
func (m *Metrics) AnalysisFinished() {
	if m == nil {
		return
	}
	m.InFlightAnalyses.Dec()
}
