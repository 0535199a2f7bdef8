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
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// =============================================================================
// Constants for Input Limits
// =============================================================================

const (
	// MaxQueryBytes is the maximum size of a request query. Checked on byte
	// length, not rune count, so oversized payloads are rejected cheaply.
	MaxQueryBytes = 16 * 1024 // 16KB

	// MaxIterationsCeiling is the largest configurable iteration budget.
	// A budget above this is a configuration error, not ambition.
	MaxIterationsCeiling = 20

	// DefaultNamespace is used when a request names no namespace.
	DefaultNamespace = "default"
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// triageValidate is the validator instance for triage datatypes.
// Initialized in init() with custom validators.
var triageValidate *validator.Validate

func init() {
	triageValidate = validator.New()

	_ = triageValidate.RegisterValidation("querybytes", validateQueryBytes)
}

// validateQueryBytes enforces MaxQueryBytes on a string field.
func validateQueryBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxQueryBytes
}

// =============================================================================
// Triage Request
// =============================================================================

// TriageRequest is the request body for POST /v1/triage/query.
//
// # Description
//
// A TriageRequest carries an operator's natural-language request about a
// Kubernetes workload plus the mutation permissions granted for this
// request. The request is immutable once a session starts: intent is
// classified once, and permissions cannot be widened mid-investigation.
//
// # Fields
//
//   - RequestID: Unique identifier (UUID v4). Generated server-side by
//     EnsureDefaults when the client omits it.
//   - Timestamp: Unix timestamp in milliseconds (UTC) when the request was
//     created. Used for audit trails and session ordering.
//   - Query: Required. The natural-language request, at most 16KB.
//   - Namespace: Namespace to investigate. Defaults to "default".
//   - Target: Optional specific resource name ("checkout-7d9f...", "api").
//   - Permissions: Mutation flags. All false means read-only triage.
//   - MaxIterations: Optional override of the investigation iteration
//     budget. Zero means "use the configured default". Values above
//     MaxIterationsCeiling are rejected.
//   - ConfidenceThreshold: Optional override of the resolve threshold.
//     Zero means "use the configured default"; otherwise must be in (0,1].
//
// # Validation
//
// Uses go-playground/validator:
//   - RequestID: optional, must be UUID v4 when present
//   - Query: required, max 16384 bytes
//   - MaxIterations: 0-20
//   - ConfidenceThreshold: 0-1
//
// # Examples
//
//	req := TriageRequest{
//	    Query:     "why is kube-bridge failing in payments",
//	    Namespace: "payments",
//	}
//	req.EnsureDefaults()
//	if err := req.Validate(); err != nil { ... }
type TriageRequest struct {
	RequestID           string      `json:"request_id" validate:"omitempty,uuid4"`
	Timestamp           int64       `json:"timestamp" validate:"gte=0"`
	Query               string      `json:"query" validate:"required,querybytes"`
	Namespace           string      `json:"namespace" validate:"omitempty,max=253"`
	Target              string      `json:"target,omitempty" validate:"omitempty,max=253"`
	Permissions         Permissions `json:"permissions"`
	MaxIterations       int         `json:"max_iterations" validate:"gte=0,lte=20"`
	ConfidenceThreshold float64     `json:"confidence_threshold" validate:"gte=0,lte=1"`
}

// Validate validates the TriageRequest fields.
//
// Call after binding the JSON body and EnsureDefaults.
func (r *TriageRequest) Validate() error {
	return triageValidate.Struct(r)
}

// EnsureDefaults populates RequestID, Timestamp, and Namespace when the
// client omitted them.
func (r *TriageRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = uuid.NewString()
	}
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().UnixMilli()
	}
	if r.Namespace == "" {
		r.Namespace = DefaultNamespace
	}
}
