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
	"time"
)

// =============================================================================
// Raw Capture Types (for Enterprise storage)
// =============================================================================

// HTTPHeaders represents HTTP headers as a map.
//
// Using a defined type provides clearer intent and allows future extension
// with helper methods if needed.
type HTTPHeaders map[string]string

// Get retrieves a header value by key (case-sensitive).
func (h HTTPHeaders) Get(key string) string {
	return h[key]
}

// Set adds or updates a header value.
func (h HTTPHeaders) Set(key, value string) {
	h[key] = value
}

// AuditableRequest contains raw request data for audit capture.
//
// This type is passed to CaptureRequest() to give Enterprise implementations
// access to the raw bytes for hashing, encryption, and storage. The open
// source service does NOT compute hashes - that's Enterprise's
// responsibility.
//
// # Usage
//
// Handlers create this struct with the raw request body and pass it to
// the RequestAuditor. Enterprise implementations then:
//  1. Compute content_hash = SHA256(Body)
//  2. Encrypt the body if required
//  3. Store to immutable storage (GCS, QLDB, etc.)
//
// Example:
//
//	req := &AuditableRequest{
//	    Method:    "POST",
//	    Path:      "/v1/triage/query",
//	    Headers:   HTTPHeaders{"Content-Type": "application/json"},
//	    Body:      rawRequestBytes,
//	    UserID:    authInfo.UserID,
//	    RequestID: requestID,
//	    Timestamp: time.Now().UTC(),
//	}
//	auditID, err := auditor.CaptureRequest(ctx, req)
type AuditableRequest struct {
	// Method is the HTTP method (GET, POST, etc.)
	Method string

	// Path is the request path (e.g., "/v1/triage/query")
	Path string

	// Headers contains the HTTP request headers.
	// Sensitive headers (Authorization) should be redacted by caller.
	Headers HTTPHeaders

	// Body is the raw request body bytes.
	// This is what Enterprise will hash and potentially encrypt.
	Body []byte

	// UserID identifies who made the request.
	// Extracted from AuthInfo by the handler.
	UserID string

	// SessionID is the investigation session identifier (if known).
	// For triage queries the session is created after capture, so this
	// is usually empty on the request side and set on the response.
	SessionID string

	// RequestID is the unique identifier for this request.
	RequestID string

	// Timestamp is when the request was received (always UTC).
	Timestamp time.Time
}

// AuditableResponse contains raw response data for audit capture.
//
// This type is passed to CaptureResponse() to complete the audit record.
// The auditID from CaptureRequest() links the request and response together.
//
// Example:
//
//	resp := &AuditableResponse{
//	    StatusCode: 200,
//	    Headers:    HTTPHeaders{"Content-Type": "application/json"},
//	    Body:       resultJSON,
//	    Timestamp:  time.Now().UTC(),
//	}
//	err := auditor.CaptureResponse(ctx, auditID, resp)
type AuditableResponse struct {
	// StatusCode is the HTTP response status code.
	StatusCode int

	// Headers contains the HTTP response headers.
	Headers HTTPHeaders

	// Body is the raw response body bytes. For a triage query this is
	// the full terminal result, trail included.
	Body []byte

	// Timestamp is when the response was sent (always UTC).
	Timestamp time.Time
}

// =============================================================================
// RequestAuditor Interface
// =============================================================================

// RequestAuditor captures raw request/response pairs for immutable audit
// storage.
//
// Implementations must be safe for concurrent use by multiple goroutines.
//
// # Open Source Behavior
//
// The default NopRequestAuditor discards everything and returns an empty
// audit ID. The per-session trail in the archive remains the local record
// of what the investigation did.
//
// # Enterprise Implementation
//
// Enterprise versions persist the raw bytes to write-once storage so the
// exact request that triggered a production mutation can be produced
// later, byte for byte. A triage request that permits mutations is a
// change-management event; the capture pair is its evidence.
//
// Example enterprise implementation:
//
//	type GCSRequestAuditor struct {
//	    bucket *storage.BucketHandle
//	}
//
//	func (a *GCSRequestAuditor) CaptureRequest(ctx context.Context, req *AuditableRequest) (string, error) {
//	    auditID := uuid.NewString()
//	    obj := a.bucket.Object("requests/" + auditID)
//	    // write req (hashed, possibly encrypted) to obj
//	    return auditID, nil
//	}
type RequestAuditor interface {
	// CaptureRequest records an incoming request and returns a tracking ID.
	//
	// # Description
	//
	// Called by handlers before processing begins, with the raw request
	// body. The returned auditID links the eventual response to this
	// request.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation and timeout control.
	//   - req: The raw request data. Must not be nil.
	//
	// # Outputs
	//
	//   - string: Audit tracking ID (empty for no-op implementations).
	//   - error: Non-nil if capture failed.
	//
	// # Examples
	//
	//   auditID, _ := auditor.CaptureRequest(ctx, &AuditableRequest{
	//       Method:    c.Request.Method,
	//       Path:      c.Request.URL.Path,
	//       Body:      rawBody,
	//       UserID:    userID,
	//       Timestamp: time.Now().UTC(),
	//   })
	//
	// # Limitations
	//
	//   - Body must be fully read by the caller before capture.
	//
	// # Assumptions
	//
	//   - Sensitive headers are redacted by the caller.
	//
	// # Thread Safety
	//
	// Safe to call concurrently.
	CaptureRequest(ctx context.Context, req *AuditableRequest) (string, error)

	// CaptureResponse records the response paired with a captured request.
	//
	// # Description
	//
	// Called by handlers after the response body is known, with the
	// auditID returned by CaptureRequest.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation and timeout control.
	//   - auditID: The tracking ID from CaptureRequest.
	//   - resp: The raw response data. Must not be nil.
	//
	// # Outputs
	//
	//   - error: Non-nil if capture failed.
	//
	// # Examples
	//
	//   _ = auditor.CaptureResponse(ctx, auditID, &AuditableResponse{
	//       StatusCode: http.StatusOK,
	//       Body:       resultJSON,
	//       Timestamp:  time.Now().UTC(),
	//   })
	//
	// # Limitations
	//
	//   - Must be called with a valid auditID from CaptureRequest.
	//
	// # Assumptions
	//
	//   - Body contains the complete response payload.
	//
	// # Thread Safety
	//
	// Safe to call concurrently.
	CaptureResponse(ctx context.Context, auditID string, resp *AuditableResponse) error
}

// =============================================================================
// No-Op Implementation
// =============================================================================

// NopRequestAuditor is the default auditor for open source.
//
// It accepts all operations without persisting anything. This allows
// the server to function without audit storage infrastructure.
// Enterprise implementations replace this with actual storage.
//
// Thread-safe: This implementation has no mutable state (discards everything).
//
// Example:
//
//	auditor := &NopRequestAuditor{}
//	auditID, _ := auditor.CaptureRequest(ctx, req)
//	// auditID == "" (no tracking)
//	auditor.CaptureResponse(ctx, auditID, resp)
//	// No-op, nothing stored
type NopRequestAuditor struct{}

// CaptureRequest accepts the request without storing it.
//
// Always succeeds and returns an empty auditID. This is intentional for
// local deployments without audit requirements.
func (a *NopRequestAuditor) CaptureRequest(_ context.Context, _ *AuditableRequest) (string, error) {
	return "", nil
}

// CaptureResponse accepts the response without storing it.
//
// Always succeeds without storing anything.
func (a *NopRequestAuditor) CaptureResponse(_ context.Context, _ string, _ *AuditableResponse) error {
	return nil
}

// =============================================================================
// Interface Compliance
// =============================================================================

// Compile-time interface compliance check.
var _ RequestAuditor = (*NopRequestAuditor)(nil)
