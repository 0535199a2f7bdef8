// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extensions

import (
	"context"
	"errors"
)

// ErrMessageBlocked is returned when content is rejected by the filter.
// Enterprise implementations should wrap this error with the reason.
//
// Example:
//
//	if containsCredentials(query) {
//	    return "", fmt.Errorf("query contains credentials: %w", ErrMessageBlocked)
//	}
var ErrMessageBlocked = errors.New("message blocked by filter")

// FilterResult contains the outcome of a filter operation.
//
// This struct provides detailed information about what the filter did,
// useful for debugging, audit trails, and user feedback.
//
// Example:
//
//	result := FilterResult{
//	    Original:    "DB_PASSWORD=hunter2 keeps showing in pod env",
//	    Filtered:    "DB_PASSWORD=[REDACTED] keeps showing in pod env",
//	    WasModified: true,
//	    Detections: []Detection{
//	        {Type: "credential", Location: "characters 0-19", Action: "redacted"},
//	    },
//	}
type FilterResult struct {
	// Original is the input before filtering.
	Original string

	// Filtered is the content after filtering transformations.
	// If WasModified is false, this equals Original.
	Filtered string

	// WasModified indicates if any transformations were applied.
	WasModified bool

	// WasBlocked indicates if the content was completely rejected.
	// If true, Filtered should not be used.
	WasBlocked bool

	// BlockReason explains why the content was blocked (if WasBlocked).
	BlockReason string

	// Detections lists what the filter found in the content.
	// Useful for audit logging and debugging.
	Detections []Detection
}

// Detection describes a single item found by the filter.
//
// Example:
//
//	detection := Detection{
//	    Type:     "api_key",
//	    Location: "characters 45-64",
//	    Action:   "redacted",
//	    Original: "sk-proj-abc...",  // Only in debug mode
//	}
type Detection struct {
	// Type categorizes what was detected.
	// Common types: "api_key", "bearer_token", "credential", "email",
	// "pii", "secret", "prompt_injection"
	Type string

	// Location describes where in the content the item was found.
	// Format is implementation-specific (e.g., "characters 10-20", "line 3")
	Location string

	// Action describes what was done with the detected item.
	// Values: "redacted", "masked", "replaced", "blocked", "flagged"
	Action string

	// Original is the detected content (only populated in debug mode).
	// WARNING: This may contain sensitive data - handle carefully.
	Original string

	// Replacement is what the content was replaced with (if Action is "replaced").
	Replacement string
}

// MessageFilter transforms content crossing the service boundary.
//
// Implementations must be safe for concurrent use by multiple goroutines.
//
// # Filter Pipeline
//
// Content flows through filters at three points:
//
//  1. FilterInput: The operator's query, before it is embedded in
//     generator prompts or persisted in the session record
//     - Redact credentials pasted into a query
//     - Block policy violations
//     - Detect prompt injection attempts
//
//  2. FilterOutput: Investigation output, before it is returned to the
//     caller or archived
//     - Redact secrets that kubectl output leaked (env blocks,
//       decoded Secret values, connection strings)
//     - Mask PII captured from logs
//
//  3. FilterContext: Cluster context, before it is injected into
//     generator prompts
//     - Strip sensitive node labels or annotations
//
// # Open Source Behavior
//
// The default NopMessageFilter passes all content through unchanged.
// This is appropriate for local single-operator deployments where content
// filtering isn't required.
//
// # Enterprise Implementation
//
// Enterprise versions implement content policies, secret detection,
// and compliance requirements.
//
// Example enterprise implementation:
//
//	type SecretRedactor struct {
//	    patterns []SecretPattern
//	}
//
//	func (f *SecretRedactor) FilterOutput(ctx context.Context, msg string) (*FilterResult, error) {
//	    result := &FilterResult{Original: msg, Filtered: msg}
//
//	    for _, pattern := range f.patterns {
//	        if matches := pattern.FindAll(msg); len(matches) > 0 {
//	            result.Filtered = pattern.Redact(result.Filtered)
//	            result.WasModified = true
//	            result.Detections = append(result.Detections, Detection{
//	                Type:   pattern.Name,
//	                Action: "redacted",
//	            })
//	        }
//	    }
//
//	    return result, nil
//	}
//
// # Blocking vs Transforming
//
// Filters can either:
//   - Transform: Modify content and allow it through (e.g., redact a token)
//   - Block: Reject the entire request (e.g., policy violation)
//
// To block, return a FilterResult with WasBlocked=true and BlockReason set.
// The caller should then return ErrMessageBlocked to the user.
type MessageFilter interface {
	// FilterInput processes an operator query before investigation starts.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - message: The raw operator query
	//
	// Returns:
	//   - *FilterResult: The filtered query and metadata
	//   - error: Non-nil only for filter failures (not for blocks)
	//
	// If WasBlocked is true, the caller should:
	//  1. Log the block via AuditLogger
	//  2. Return ErrMessageBlocked to the user
	//  3. NOT start the investigation
	FilterInput(ctx context.Context, message string) (*FilterResult, error)

	// FilterOutput processes investigation output before it leaves the
	// service.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - message: The output text (summary, remediation, captured output)
	//
	// Returns:
	//   - *FilterResult: The filtered output and metadata
	//   - error: Non-nil only for filter failures (not for blocks)
	//
	// Common output filtering:
	//   - Remove secrets leaked by kubectl describe/logs
	//   - Mask PII captured from application logs
	FilterOutput(ctx context.Context, message string) (*FilterResult, error)

	// FilterContext processes cluster context before prompt injection.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - contextMsg: Cluster context being injected into a prompt
	//
	// Returns:
	//   - *FilterResult: The filtered context and metadata
	//   - error: Non-nil only for filter failures
	//
	// This is called when cluster state summaries (node conditions,
	// event counts, version info) are added to generator prompts.
	FilterContext(ctx context.Context, contextMsg string) (*FilterResult, error)
}

// NopMessageFilter is the default message filter for open source.
//
// It passes all content through unchanged without any transformation
// or blocking. This is appropriate for local single-operator deployments
// where content filtering isn't required.
//
// Thread-safe: This implementation has no mutable state.
//
// Example:
//
//	filter := &NopMessageFilter{}
//	result, err := filter.FilterInput(ctx, "why is web-0 crashlooping")
//	// result.Filtered == "why is web-0 crashlooping" (unchanged)
//	// result.WasModified == false
//	// err == nil
type NopMessageFilter struct{}

// FilterInput returns the query unchanged.
//
// No transformations or blocking are applied.
func (f *NopMessageFilter) FilterInput(ctx context.Context, message string) (*FilterResult, error) {
	return &FilterResult{
		Original:    message,
		Filtered:    message,
		WasModified: false,
		WasBlocked:  false,
		Detections:  nil,
	}, nil
}

// FilterOutput returns the output unchanged.
//
// No transformations or blocking are applied.
func (f *NopMessageFilter) FilterOutput(ctx context.Context, message string) (*FilterResult, error) {
	return &FilterResult{
		Original:    message,
		Filtered:    message,
		WasModified: false,
		WasBlocked:  false,
		Detections:  nil,
	}, nil
}

// FilterContext returns the context unchanged.
//
// No transformations or blocking are applied.
func (f *NopMessageFilter) FilterContext(ctx context.Context, contextMsg string) (*FilterResult, error) {
	return &FilterResult{
		Original:    contextMsg,
		Filtered:    contextMsg,
		WasModified: false,
		WasBlocked:  false,
		Detections:  nil,
	}, nil
}

// Compile-time interface compliance check.
// This ensures NopMessageFilter implements MessageFilter.
var _ MessageFilter = (*NopMessageFilter)(nil)
