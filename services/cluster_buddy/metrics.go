// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cluster_buddy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics.
const metricsNamespace = "clusterbuddy"

// Subsystem for triage metrics.
const triageSubsystem = "triage"

// TriageMetrics holds the Prometheus metrics for the triage service.
//
// Description:
//
//	Counters, histograms, and gauges covering the request surface and
//	the investigation loop. Initialize once at startup via
//	InitMetrics(); recording through a nil *TriageMetrics is a no-op,
//	so library code never needs to care whether metrics are enabled.
//
// Thread Safety: All operations are thread-safe.
type TriageMetrics struct {
	// RequestsTotal counts triage requests by intent tier and outcome.
	// Labels: tier (action, troubleshooting, informational), status
	RequestsTotal *prometheus.CounterVec

	// VerdictsTotal counts safety gate verdicts.
	// Labels: decision (allow, block), risk (low, medium, high)
	VerdictsTotal *prometheus.CounterVec

	// InvestigationsTotal counts finished investigations by terminal state.
	// Labels: state (RESOLVED, EXHAUSTED, BLOCKED, ABORTED)
	InvestigationsTotal *prometheus.CounterVec

	// IterationsPerInvestigation measures how many iterations each
	// investigation consumed before terminating.
	IterationsPerInvestigation prometheus.Histogram

	// CommandDurationSeconds measures wall time per executed command.
	// Labels: verb (get, describe, logs, ...)
	CommandDurationSeconds *prometheus.HistogramVec

	// ActiveInvestigations tracks investigations currently running.
	ActiveInvestigations prometheus.Gauge
}

// DefaultMetrics is the singleton instance of TriageMetrics.
// Initialized by InitMetrics(); nil until then.
var DefaultMetrics *TriageMetrics

// InitMetrics initializes the default metrics instance.
//
// Description:
//
//	Creates and registers all Prometheus metrics with the default
//	registry. Call once at application startup.
//
// Outputs:
//
//	*TriageMetrics - The initialized metrics instance.
//
// Limitations:
//
//	Panics if called twice (duplicate registration).
func InitMetrics() *TriageMetrics {
	DefaultMetrics = &TriageMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: triageSubsystem,
				Name:      "requests_total",
				Help:      "Total triage requests by intent tier and outcome",
			},
			[]string{"tier", "status"},
		),

		VerdictsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: triageSubsystem,
				Name:      "verdicts_total",
				Help:      "Safety gate verdicts by decision and risk tier",
			},
			[]string{"decision", "risk"},
		),

		InvestigationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: triageSubsystem,
				Name:      "investigations_total",
				Help:      "Finished investigations by terminal state",
			},
			[]string{"state"},
		),

		IterationsPerInvestigation: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: triageSubsystem,
				Name:      "iterations_per_investigation",
				Help:      "Iterations consumed before an investigation terminated",
				Buckets:   []float64{1, 2, 3, 4, 5, 8, 12, 20},
			},
		),

		CommandDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: triageSubsystem,
				Name:      "command_duration_seconds",
				Help:      "Wall time per executed kubectl command",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"verb"},
		),

		ActiveInvestigations: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: triageSubsystem,
				Name:      "active_investigations",
				Help:      "Investigations currently running",
			},
		),
	}

	return DefaultMetrics
}

// RecordRequest records one handled triage request.
//
// Inputs:
//
//	tier - The classified intent tier.
//	status - The result status (COMPLETED, RESOLVED, ..., or "rejected").
func (m *TriageMetrics) RecordRequest(tier, status string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(tier, status).Inc()
}

// RecordVerdict records one safety gate verdict.
func (m *TriageMetrics) RecordVerdict(decision, risk string) {
	if m == nil {
		return
	}
	m.VerdictsTotal.WithLabelValues(decision, risk).Inc()
}

// RecordInvestigation records a finished investigation.
//
// Inputs:
//
//	state - Terminal state name.
//	iterations - Iterations the investigation consumed.
func (m *TriageMetrics) RecordInvestigation(state string, iterations int) {
	if m == nil {
		return
	}
	m.InvestigationsTotal.WithLabelValues(state).Inc()
	m.IterationsPerInvestigation.Observe(float64(iterations))
}

// RecordCommand records one executed command's duration.
func (m *TriageMetrics) RecordCommand(verb string, seconds float64) {
	if m == nil {
		return
	}
	m.CommandDurationSeconds.WithLabelValues(verb).Observe(seconds)
}

// InvestigationStarted increments the active investigations gauge.
func (m *TriageMetrics) InvestigationStarted() {
	if m == nil {
		return
	}
	m.ActiveInvestigations.Inc()
}

// InvestigationEnded decrements the active investigations gauge.
func (m *TriageMetrics) InvestigationEnded() {
	if m == nil {
		return
	}
	m.ActiveInvestigations.Dec()
}
