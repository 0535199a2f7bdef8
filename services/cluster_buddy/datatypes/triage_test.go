// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"strings"
	"testing"
)

// =============================================================================
// TriageRequest Validation Tests
// =============================================================================

func TestTriageRequest_Validate_Success(t *testing.T) {
	req := &TriageRequest{
		Query:     "why is web-0 restarting",
		Namespace: "prod",
	}
	req.EnsureDefaults()

	if err := req.Validate(); err != nil {
		t.Errorf("expected valid request, got error: %v", err)
	}
}

func TestTriageRequest_Validate_MissingQuery(t *testing.T) {
	req := &TriageRequest{Namespace: "prod"}
	req.EnsureDefaults()

	if err := req.Validate(); err == nil {
		t.Error("expected error for missing query, got nil")
	}
}

func TestTriageRequest_Validate_OversizedQuery(t *testing.T) {
	req := &TriageRequest{Query: strings.Repeat("a", MaxQueryBytes+1)}
	req.EnsureDefaults()

	if err := req.Validate(); err == nil {
		t.Error("expected error for oversized query, got nil")
	}
}

func TestTriageRequest_Validate_QueryAtLimit(t *testing.T) {
	req := &TriageRequest{Query: strings.Repeat("a", MaxQueryBytes)}
	req.EnsureDefaults()

	if err := req.Validate(); err != nil {
		t.Errorf("a query exactly at the byte limit is valid, got: %v", err)
	}
}

func TestTriageRequest_Validate_InvalidRequestID(t *testing.T) {
	req := &TriageRequest{
		RequestID: "not-a-uuid",
		Query:     "list pods",
	}
	req.EnsureDefaults()

	if err := req.Validate(); err == nil {
		t.Error("expected error for invalid request_id, got nil")
	}
}

func TestTriageRequest_Validate_IterationsAboveCeiling(t *testing.T) {
	req := &TriageRequest{
		Query:         "why is web-0 restarting",
		MaxIterations: MaxIterationsCeiling + 1,
	}
	req.EnsureDefaults()

	if err := req.Validate(); err == nil {
		t.Error("expected error for iteration budget above the ceiling, got nil")
	}
}

func TestTriageRequest_Validate_ConfidenceOutOfRange(t *testing.T) {
	req := &TriageRequest{
		Query:               "why is web-0 restarting",
		ConfidenceThreshold: 1.5,
	}
	req.EnsureDefaults()

	if err := req.Validate(); err == nil {
		t.Error("expected error for confidence threshold above 1, got nil")
	}
}

// =============================================================================
// TriageRequest Defaults Tests
// =============================================================================

func TestTriageRequest_EnsureDefaults_FillsOmitted(t *testing.T) {
	req := &TriageRequest{Query: "list pods"}
	req.EnsureDefaults()

	if req.RequestID == "" {
		t.Error("expected a generated request_id")
	}
	if req.Timestamp == 0 {
		t.Error("expected a generated timestamp")
	}
	if req.Namespace != DefaultNamespace {
		t.Errorf("namespace = %q, want %q", req.Namespace, DefaultNamespace)
	}
}

func TestTriageRequest_EnsureDefaults_PreservesProvided(t *testing.T) {
	req := &TriageRequest{
		RequestID: "550e8400-e29b-41d4-a716-446655440000",
		Timestamp: 1700000000000,
		Query:     "list pods",
		Namespace: "payments",
	}
	req.EnsureDefaults()

	if req.RequestID != "550e8400-e29b-41d4-a716-446655440000" {
		t.Errorf("request_id was overwritten: %q", req.RequestID)
	}
	if req.Timestamp != 1700000000000 {
		t.Errorf("timestamp was overwritten: %d", req.Timestamp)
	}
	if req.Namespace != "payments" {
		t.Errorf("namespace was overwritten: %q", req.Namespace)
	}
}
