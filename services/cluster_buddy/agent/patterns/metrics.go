// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package patterns

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level meter for signature analysis. The tracer lives in
// registry.go.
var patternsMeter = otel.Meter("patterns")

// Metrics for signature analysis operations.
var (
	analyzeLatency      metric.Float64Histogram
	analyzeTotal        metric.Int64Counter
	findingsPerAnalysis metric.Int64Histogram
	findingsBySignature metric.Int64Counter
	registryReloads     metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		analyzeLatency, err = patternsMeter.Float64Histogram(
			"signature_analyze_duration_seconds",
			metric.WithDescription("Duration of signature analysis passes"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		analyzeTotal, err = patternsMeter.Int64Counter(
			"signature_analyze_total",
			metric.WithDescription("Total number of signature analysis passes"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		findingsPerAnalysis, err = patternsMeter.Int64Histogram(
			"signature_findings",
			metric.WithDescription("Number of findings produced per analysis pass"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		findingsBySignature, err = patternsMeter.Int64Counter(
			"signature_findings_by_id_total",
			metric.WithDescription("Total findings produced by signature ID"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		registryReloads, err = patternsMeter.Int64Counter(
			"signature_registry_reloads_total",
			metric.WithDescription("Total hot reload attempts of the signature registry"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordAnalyzeMetrics records metrics for one analysis pass.
func recordAnalyzeMetrics(ctx context.Context, duration time.Duration, findingCount int) {
	if err := initMetrics(); err != nil {
		return
	}

	analyzeLatency.Record(ctx, duration.Seconds())
	analyzeTotal.Add(ctx, 1)
	findingsPerAnalysis.Record(ctx, int64(findingCount))
}

// recordFindingBySignature records one finding against its signature ID.
func recordFindingBySignature(ctx context.Context, signatureID string) {
	if err := initMetrics(); err != nil {
		return
	}
	findingsBySignature.Add(ctx, 1, metric.WithAttributes(
		attribute.String("signature", signatureID),
	))
}

// recordRegistryReload records a hot reload attempt.
func recordRegistryReload(ctx context.Context, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	registryReloads.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("success", success),
	))
}
