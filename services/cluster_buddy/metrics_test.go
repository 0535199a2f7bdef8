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
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// newTestMetrics creates a TriageMetrics instance backed by a private
// registry, so each test starts from zero and never collides with the
// default registry.
func newTestMetrics(t *testing.T) *TriageMetrics {
	t.Helper()
	reg := prometheus.NewRegistry()

	m := &TriageMetrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: triageSubsystem,
				Name:      "requests_total",
			},
			[]string{"tier", "status"},
		),
		VerdictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: triageSubsystem,
				Name:      "verdicts_total",
			},
			[]string{"decision", "risk"},
		),
		InvestigationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: triageSubsystem,
				Name:      "investigations_total",
			},
			[]string{"state"},
		),
		IterationsPerInvestigation: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: triageSubsystem,
				Name:      "iterations_per_investigation",
				Buckets:   []float64{1, 2, 3, 4, 5, 8, 12, 20},
			},
		),
		CommandDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: triageSubsystem,
				Name:      "command_duration_seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"verb"},
		),
		ActiveInvestigations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: triageSubsystem,
				Name:      "active_investigations",
			},
		),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.VerdictsTotal,
		m.InvestigationsTotal,
		m.IterationsPerInvestigation,
		m.CommandDurationSeconds,
		m.ActiveInvestigations,
	)
	return m
}

// initMetricsTestOnce guards against duplicate InitMetrics calls: promauto
// registers with the default registry and panics on re-registration.
var initMetricsTestOnce bool

func TestInitMetrics(t *testing.T) {
	if initMetricsTestOnce {
		t.Skip("InitMetrics can only be called once per test run (promauto restriction)")
	}
	initMetricsTestOnce = true

	m := InitMetrics()
	if m == nil {
		t.Fatal("InitMetrics() returned nil")
	}
	if DefaultMetrics != m {
		t.Error("DefaultMetrics not set to the returned instance")
	}

	if m.RequestsTotal == nil {
		t.Error("RequestsTotal is nil")
	}
	if m.VerdictsTotal == nil {
		t.Error("VerdictsTotal is nil")
	}
	if m.InvestigationsTotal == nil {
		t.Error("InvestigationsTotal is nil")
	}
	if m.IterationsPerInvestigation == nil {
		t.Error("IterationsPerInvestigation is nil")
	}
	if m.CommandDurationSeconds == nil {
		t.Error("CommandDurationSeconds is nil")
	}
	if m.ActiveInvestigations == nil {
		t.Error("ActiveInvestigations is nil")
	}

	// Verify the metrics can be used.
	m.RecordRequest("informational", "COMPLETED")
	m.RecordVerdict("allow", "low")
	m.RecordInvestigation("RESOLVED", 2)
	m.RecordCommand("get", 0.05)
	m.InvestigationStarted()
	m.InvestigationEnded()
}

func TestTriageMetrics_NilReceiverIsNoOp(t *testing.T) {
	var m *TriageMetrics

	// None of these may panic when metrics are disabled.
	m.RecordRequest("troubleshooting", "RESOLVED")
	m.RecordVerdict("block", "high")
	m.RecordInvestigation("EXHAUSTED", 5)
	m.RecordCommand("logs", 1.2)
	m.InvestigationStarted()
	m.InvestigationEnded()
}

func TestTriageMetrics_RecordRequest(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordRequest("troubleshooting", "RESOLVED")
	m.RecordRequest("troubleshooting", "RESOLVED")
	m.RecordRequest("informational", "COMPLETED")

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("troubleshooting", "RESOLVED")); got != 2 {
		t.Errorf("requests{troubleshooting,RESOLVED} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("informational", "COMPLETED")); got != 1 {
		t.Errorf("requests{informational,COMPLETED} = %v, want 1", got)
	}
}

func TestTriageMetrics_RecordVerdict(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordVerdict("allow", "low")
	m.RecordVerdict("allow", "low")
	m.RecordVerdict("block", "high")

	if got := testutil.ToFloat64(m.VerdictsTotal.WithLabelValues("allow", "low")); got != 2 {
		t.Errorf("verdicts{allow,low} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.VerdictsTotal.WithLabelValues("block", "high")); got != 1 {
		t.Errorf("verdicts{block,high} = %v, want 1", got)
	}
}

func TestTriageMetrics_RecordInvestigation(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordInvestigation("RESOLVED", 3)
	m.RecordInvestigation("EXHAUSTED", 5)

	if got := testutil.ToFloat64(m.InvestigationsTotal.WithLabelValues("RESOLVED")); got != 1 {
		t.Errorf("investigations{RESOLVED} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.InvestigationsTotal.WithLabelValues("EXHAUSTED")); got != 1 {
		t.Errorf("investigations{EXHAUSTED} = %v, want 1", got)
	}
}

func TestTriageMetrics_RecordCommand(t *testing.T) {
	m := newTestMetrics(t)

	if got := testutil.CollectAndCount(m.CommandDurationSeconds); got != 0 {
		t.Fatalf("series before recording = %d, want 0", got)
	}

	m.RecordCommand("logs", 0.42)

	if got := testutil.CollectAndCount(m.CommandDurationSeconds); got != 1 {
		t.Errorf("series after recording = %d, want 1", got)
	}
}

func TestTriageMetrics_ActiveInvestigations(t *testing.T) {
	m := newTestMetrics(t)

	m.InvestigationStarted()
	m.InvestigationStarted()
	if got := testutil.ToFloat64(m.ActiveInvestigations); got != 2 {
		t.Errorf("active = %v, want 2", got)
	}

	m.InvestigationEnded()
	if got := testutil.ToFloat64(m.ActiveInvestigations); got != 1 {
		t.Errorf("active = %v, want 1", got)
	}
}

func TestMetricsConstants(t *testing.T) {
	if metricsNamespace != "clusterbuddy" {
		t.Errorf("metricsNamespace = %q, want clusterbuddy", metricsNamespace)
	}
	if triageSubsystem != "triage" {
		t.Errorf("triageSubsystem = %q, want triage", triageSubsystem)
	}
}
