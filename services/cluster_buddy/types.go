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

import "time"

// =============================================================================
// Response Types
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is a machine-readable error code.
	Code string `json:"code,omitempty"`

	// Details provides additional context.
	Details string `json:"details,omitempty"`
}

// HealthResponse reports service health.
type HealthResponse struct {
	// Status is "healthy" or "degraded".
	Status string `json:"status"`

	// Version is the service version.
	Version string `json:"version"`

	// Collaborators maps each collaborator to "ok" or a failure reason.
	Collaborators map[string]string `json:"collaborators"`
}

// ReadyResponse reports whether the service can accept triage requests.
type ReadyResponse struct {
	// Ready is true when all required collaborators are reachable.
	Ready bool `json:"ready"`

	// Reason explains a false Ready.
	Reason string `json:"reason,omitempty"`
}

// SessionView is one row in a session listing. It covers both live
// investigations and archived results.
type SessionView struct {
	// ID identifies the session. Archived direct requests, which never
	// had a session, fall back to the request ID.
	ID string `json:"id"`

	// RequestID is the originating request, when known.
	RequestID string `json:"request_id,omitempty"`

	// Query is the operator's request text.
	Query string `json:"query"`

	// Namespace is the namespace the request ran against.
	Namespace string `json:"namespace"`

	// Tier is the classified intent tier.
	Tier string `json:"tier"`

	// Status is the session state for live sessions, or the terminal
	// status for archived ones.
	Status string `json:"status"`

	// Iterations is the number of completed iterations.
	Iterations int `json:"iterations"`

	// Confidence is the current or final confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// Signature is the best hypothesis signature, if any.
	Signature string `json:"signature,omitempty"`

	// Summary is the outcome summary. Archived sessions only.
	Summary string `json:"summary,omitempty"`

	// Source is "live" or "archived".
	Source string `json:"source"`

	// UpdatedAt is the last activity for live sessions, or the archive
	// time for finished ones.
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionListResponse lists sessions, live first, then archived newest
// first.
type SessionListResponse struct {
	// Sessions are the matching sessions.
	Sessions []SessionView `json:"sessions"`

	// Count is len(Sessions).
	Count int `json:"count"`
}

// QueryExample is one suggested query for operators exploring the API.
type QueryExample struct {
	// Query is the example request text.
	Query string `json:"query"`

	// Tier is the intent tier the query classifies to.
	Tier string `json:"tier"`

	// Description explains what the query demonstrates.
	Description string `json:"description"`
}

// ExamplesResponse lists example queries grouped by intent tier.
type ExamplesResponse struct {
	// Examples are the suggested queries.
	Examples []QueryExample `json:"examples"`

	// Count is len(Examples).
	Count int `json:"count"`
}
