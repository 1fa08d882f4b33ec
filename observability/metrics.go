// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the answer service.
//
// # Description
//
// Metrics cover the three moving parts of the service:
//   - Conversation turns (by outcome)
//   - Generative search latency
//   - Document store operations (by operation and status)
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "answers"

// Subsystem for chat turn metrics
const chatSubsystem = "chat"

// Metrics holds all Prometheus metrics for the answer service.
//
// # Description
//
// Provides counters and histograms for monitoring turn outcomes and upstream
// performance. Initialize once at startup via InitMetrics(). All helper
// methods tolerate a nil receiver so library code can record metrics without
// caring whether the process initialized them.
//
// # Fields
//
//   - TurnsTotal: Counter of conversation turns by outcome
//   - UpstreamLatencySeconds: Histogram of generative search call latency
//   - StoreOpsTotal: Counter of document store operations by operation and status
//
// # Thread Safety
//
// All operations are thread-safe.
type Metrics struct {
	// TurnsTotal counts conversation turns by outcome.
	// Labels: status (success, model_error, store_error)
	TurnsTotal *prometheus.CounterVec

	// UpstreamLatencySeconds measures the duration of generative search calls.
	UpstreamLatencySeconds prometheus.Histogram

	// StoreOpsTotal counts document store operations.
	// Labels: operation (create, read, query, replace, delete), status (success, error)
	StoreOpsTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance of Metrics.
// Initialized by InitMetrics().
var DefaultMetrics *Metrics

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics. Should be called once
// at application startup, after the Prometheus registry is available.
//
// # Outputs
//
//   - *Metrics: The initialized metrics instance.
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
func InitMetrics() *Metrics {
	DefaultMetrics = &Metrics{
		TurnsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "turns_total",
				Help:      "Total number of conversation turns by outcome",
			},
			[]string{"status"},
		),

		UpstreamLatencySeconds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "upstream_latency_seconds",
				Help:      "Duration of generative search calls in seconds",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),

		StoreOpsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "store_ops_total",
				Help:      "Total document store operations by operation and status",
			},
			[]string{"operation", "status"},
		),
	}

	return DefaultMetrics
}

// =============================================================================
// Turn Outcomes
// =============================================================================

// TurnStatus labels a completed conversation turn for metrics.
type TurnStatus string

const (
	// TurnSuccess indicates the turn completed and was persisted.
	TurnSuccess TurnStatus = "success"

	// TurnModelError indicates the generative search call failed.
	TurnModelError TurnStatus = "model_error"

	// TurnStoreError indicates the answer arrived but persistence failed.
	TurnStoreError TurnStatus = "store_error"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordTurn records a completed conversation turn.
func (m *Metrics) RecordTurn(status TurnStatus) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(string(status)).Inc()
}

// ObserveUpstreamLatency records the duration of one generative search call.
func (m *Metrics) ObserveUpstreamLatency(seconds float64) {
	if m == nil {
		return
	}
	m.UpstreamLatencySeconds.Observe(seconds)
}

// RecordStoreOp records a document store operation.
//
// # Inputs
//
//   - operation: The store operation name (create, read, query, replace, delete).
//   - err: The operation result; nil counts as success.
func (m *Metrics) RecordStoreOp(operation string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.StoreOpsTotal.WithLabelValues(operation, status).Inc()
}
