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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/AleutianAI/ClusterBuddy/pkg/extensions"
	"github.com/AleutianAI/ClusterBuddy/pkg/validation"
	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/agent"
	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/datatypes"
	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/middleware"
)

// requestIDHeader carries the correlation ID between client and server.
const requestIDHeader = "X-Request-ID"

// Handlers contains the HTTP handlers for the Cluster Buddy service.
//
// Extension seams (authorization, audit logging, content filtering,
// request capture) come from the ServiceOptions. The defaults are
// no-ops, so handlers built with NewHandlers keep the plain
// single-operator behavior.
//
// Thread Safety: Handlers is safe for concurrent use.
type Handlers struct {
	svc  *Service
	opts extensions.ServiceOptions
}

// NewHandlers creates handlers wrapping the triage service with
// default (no-op) extension options.
//
// Inputs:
//
//	svc - The triage service. Must not be nil.
//
// Outputs:
//
//	*Handlers - The configured handlers.
func NewHandlers(svc *Service) *Handlers {
	return NewHandlersWithOptions(svc, extensions.DefaultOptions())
}

// NewHandlersWithOptions creates handlers with explicit extension
// options. Enterprise builds pass real providers here; everything in
// opts must be non-nil (DefaultOptions then With* guarantees that).
//
// Inputs:
//
//	svc - The triage service. Must not be nil.
//	opts - Extension seams. Use extensions.DefaultOptions() as the base.
//
// Outputs:
//
//	*Handlers - The configured handlers.
func NewHandlersWithOptions(svc *Service, opts extensions.ServiceOptions) *Handlers {
	return &Handlers{svc: svc, opts: opts}
}

// getOrCreateRequestID returns the caller's correlation ID, minting one
// when the header is absent. The ID is echoed on the response either way.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader(requestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header(requestIDHeader, requestID)
	return requestID
}

// HandleQuery handles POST /v1/triage/query.
//
// Description:
//
//	Runs one triage request end to end: classification, then either the
//	investigation loop or a single direct pass. The call blocks until
//	the request reaches a terminal status.
//
//	Requests whose permissions allow cluster mutations pass through the
//	configured AuthzProvider first, and the operator query goes through
//	the input filter before the agent sees it. Both are no-ops in the
//	default build.
//
// Request Body:
//
//	datatypes.TriageRequest
//
// Response:
//
//	200 OK: agent.Result (terminal outcome, any status)
//	400 Bad Request: Validation error
//	403 Forbidden: Authorization denied for a mutating request, or the
//	    query was blocked by the content filter
//	409 Conflict: Session already in progress
//	500 Internal Server Error: Processing error
//	502 Bad Gateway: agent.Result for a collapsed investigation (the
//	    generator never produced a command, or every command failed)
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleQuery(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleQuery")
	ctx := c.Request.Context()
	startTime := time.Now()

	// Auth middleware has already validated the token and stored AuthInfo.
	authInfo := middleware.GetAuthInfo(c)
	userID := "anonymous"
	if authInfo != nil {
		userID = authInfo.UserID
	}

	// Keep the raw body for request capture; rewrap it so binding
	// still sees it.
	rawBody, bodyErr := io.ReadAll(c.Request.Body)
	if bodyErr != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Failed to read request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(rawBody))

	var req datatypes.TriageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	if req.Query == "" {
		logger.Warn("Empty query")
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Query is required",
			Code:  "EMPTY_QUERY",
		})
		return
	}

	// Namespace and target land in kubectl argument vectors; reject
	// anything that is not a legal Kubernetes name.
	if req.Namespace != "" {
		if err := validation.ValidateNamespace(req.Namespace); err != nil {
			logger.Warn("Invalid namespace", "namespace", req.Namespace)
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: err.Error(),
				Code:  "INVALID_NAMESPACE",
			})
			return
		}
	}
	if req.Target != "" {
		if err := validation.ValidateResourceName(req.Target); err != nil {
			logger.Warn("Invalid target", "target", req.Target)
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: err.Error(),
				Code:  "INVALID_TARGET",
			})
			return
		}
	}

	// A request that may mutate the cluster needs an authorization
	// check. The default provider allows everything.
	if req.Permissions.AllowsAnyMutation() {
		if err := h.opts.AuthzProvider.Authorize(ctx, extensions.AuthzRequest{
			User:         authInfo,
			Action:       "mutate",
			ResourceType: "namespace",
			ResourceID:   req.Namespace,
		}); err != nil {
			_ = h.opts.AuditLogger.Log(ctx, extensions.AuditEvent{
				EventType:    "authz.denied",
				Timestamp:    time.Now().UTC(),
				UserID:       userID,
				Action:       "mutate",
				ResourceType: "namespace",
				ResourceID:   req.Namespace,
				Outcome:      "denied",
				Metadata: map[string]any{
					"request_id": requestID,
					"reason":     err.Error(),
				},
			})
			logger.Warn("Mutating request denied",
				"user_id", userID,
				"namespace", req.Namespace)
			c.JSON(http.StatusForbidden, ErrorResponse{
				Error: "Access denied",
				Code:  "ACCESS_DENIED",
			})
			return
		}
	}

	auditID, _ := h.opts.RequestAuditor.CaptureRequest(ctx, &extensions.AuditableRequest{
		Method:    c.Request.Method,
		Path:      c.Request.URL.Path,
		Headers:   extractHeaders(c),
		Body:      rawBody,
		UserID:    userID,
		RequestID: requestID,
		Timestamp: startTime,
	})

	// The input filter sees the operator's query before the agent does.
	filterResult, filterErr := h.opts.MessageFilter.FilterInput(ctx, req.Query)
	if filterErr != nil {
		logger.Error("Query filter failed", "error", filterErr)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Query processing failed",
			Code:  "FILTER_ERROR",
		})
		return
	}
	if filterResult.WasBlocked {
		_ = h.opts.AuditLogger.Log(ctx, extensions.AuditEvent{
			EventType:    "triage.blocked",
			Timestamp:    time.Now().UTC(),
			UserID:       userID,
			Action:       "query",
			ResourceType: "session",
			Outcome:      "blocked",
			Metadata: map[string]any{
				"request_id": requestID,
				"reason":     filterResult.BlockReason,
			},
		})
		logger.Warn("Query blocked by content filter", "reason", filterResult.BlockReason)
		c.JSON(http.StatusForbidden, ErrorResponse{
			Error: "Query blocked by content filter",
			Code:  "QUERY_BLOCKED",
		})
		return
	}
	req.Query = filterResult.Filtered

	logger.Info("Starting triage request",
		"namespace", req.Namespace,
		"query_len", len(req.Query))

	result, err := h.svc.Query(ctx, &req)
	if err != nil && result == nil {
		statusCode := http.StatusInternalServerError
		errCode := "TRIAGE_ERROR"

		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			statusCode = http.StatusBadRequest
			errCode = "INVALID_REQUEST"
		} else if errors.Is(err, agent.ErrInvalidSession) {
			statusCode = http.StatusBadRequest
			errCode = "INVALID_SESSION"
		} else if errors.Is(err, agent.ErrEmptyQuery) {
			statusCode = http.StatusBadRequest
			errCode = "EMPTY_QUERY"
		} else if errors.Is(err, agent.ErrSessionInProgress) {
			statusCode = http.StatusConflict
			errCode = "SESSION_IN_PROGRESS"
		}

		_ = h.opts.AuditLogger.Log(ctx, extensions.AuditEvent{
			EventType:    "triage.query",
			Timestamp:    time.Now().UTC(),
			UserID:       userID,
			Action:       "query",
			ResourceType: "session",
			Outcome:      "failed",
			Metadata: map[string]any{
				"request_id": requestID,
				"error":      err.Error(),
			},
		})
		logger.Error("Triage request failed", "error", err)
		c.JSON(statusCode, ErrorResponse{
			Error: err.Error(),
			Code:  errCode,
		})
		return
	}

	// The output filter sees the summary before the client does. With
	// the default filter this is a passthrough.
	if result.Summary != "" {
		if filtered, ferr := h.opts.MessageFilter.FilterOutput(ctx, result.Summary); ferr == nil && filtered.WasModified {
			result.Summary = filtered.Filtered
		}
	}

	processingMs := time.Since(startTime).Milliseconds()
	h.auditInvestigation(ctx, userID, &req, result, processingMs)

	statusCode := http.StatusOK
	if err != nil {
		// Collapse: the result still carries the trail and the error
		// taxonomy, so the client gets the full picture.
		statusCode = http.StatusBadGateway
		logger.Error("Investigation collapsed",
			"request_id", result.RequestID,
			"session_id", result.SessionID,
			"error", err)
	} else {
		logger.Info("Triage request completed",
			"request_id", result.RequestID,
			"session_id", result.SessionID,
			"status", result.Status,
			"iterations", result.Iterations)
	}

	if respBody, merr := json.Marshal(result); merr == nil {
		_ = h.opts.RequestAuditor.CaptureResponse(ctx, auditID, &extensions.AuditableResponse{
			StatusCode: statusCode,
			Headers:    extensions.HTTPHeaders{"Content-Type": "application/json"},
			Body:       respBody,
			Timestamp:  time.Now().UTC(),
		})
	}

	c.JSON(statusCode, result)
}

// HandleHealth handles GET /v1/triage/health.
//
// Description:
//
//	Reports liveness plus per-collaborator health. Always returns 200;
//	a degraded collaborator shows up in the body, not the status code.
//
// Response:
//
//	200 OK: HealthResponse
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Health(c.Request.Context()))
}

// HandleReady handles GET /v1/triage/ready.
//
// Description:
//
//	Readiness probe. Not ready means the service cannot currently run an
//	investigation (generator or runner unavailable).
//
// Response:
//
//	200 OK: ReadyResponse with ready=true
//	503 Service Unavailable: ReadyResponse naming the failing collaborator
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleReady(c *gin.Context) {
	ready := h.svc.Ready(c.Request.Context())
	if !ready.Ready {
		c.JSON(http.StatusServiceUnavailable, ready)
		return
	}
	c.JSON(http.StatusOK, ready)
}

// HandleListSessions handles GET /v1/triage/sessions.
//
// Description:
//
//	Lists live investigations first (most recently active leading),
//	then archived ones newest first.
//
// Query Parameters:
//
//	limit: Maximum number of sessions to return. Default 50.
//
// Response:
//
//	200 OK: SessionListResponse
//	400 Bad Request: Malformed limit
//	500 Internal Server Error: Archive read failure
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleListSessions(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleListSessions")

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 0 {
		logger.Warn("Invalid limit parameter", "limit", c.Query("limit"))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "limit must be a non-negative integer",
			Code:  "INVALID_PARAMETER",
		})
		return
	}

	resp, err := h.svc.ListSessions(c.Request.Context(), limit)
	if err != nil {
		logger.Error("List sessions failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "LIST_FAILED",
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// HandleGetSession handles GET /v1/triage/sessions/:id.
//
// Description:
//
//	Retrieves one investigation by session ID or request ID. Live
//	sessions take precedence over archived ones.
//
// Path Parameters:
//
//	id: Session ID or request ID (required)
//
// Response:
//
//	200 OK: SessionView
//	404 Not Found: Unknown session
//	500 Internal Server Error: Archive read failure
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleGetSession(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleGetSession")

	sessionID := c.Param("id")
	view, err := h.svc.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, agent.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: err.Error(),
				Code:  "SESSION_NOT_FOUND",
			})
			return
		}

		logger.Error("Get session failed", "session_id", sessionID, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "GET_SESSION_FAILED",
		})
		return
	}

	c.JSON(http.StatusOK, view)
}

// HandleDeleteSession handles DELETE /v1/triage/sessions/:id.
//
// Description:
//
//	Aborts a running investigation, or removes a finished one from the
//	session store and the archive. The response names which happened.
//
// Path Parameters:
//
//	id: Session ID or request ID (required)
//
// Response:
//
//	200 OK: action taken ("aborted" or "deleted")
//	404 Not Found: Unknown session
//	500 Internal Server Error: Processing error
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleDeleteSession(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleDeleteSession")

	authInfo := middleware.GetAuthInfo(c)
	userID := "anonymous"
	if authInfo != nil {
		userID = authInfo.UserID
	}

	sessionID := c.Param("id")
	action, err := h.svc.DeleteSession(c.Request.Context(), sessionID)
	if err != nil {
		statusCode := http.StatusInternalServerError
		errCode := "DELETE_FAILED"

		if errors.Is(err, agent.ErrSessionNotFound) {
			statusCode = http.StatusNotFound
			errCode = "SESSION_NOT_FOUND"
		}

		logger.Error("Delete session failed", "session_id", sessionID, "error", err)
		c.JSON(statusCode, ErrorResponse{
			Error: err.Error(),
			Code:  errCode,
		})
		return
	}

	_ = h.opts.AuditLogger.Log(c.Request.Context(), extensions.AuditEvent{
		EventType:    "session.deleted",
		Timestamp:    time.Now().UTC(),
		UserID:       userID,
		Action:       action,
		ResourceType: "session",
		ResourceID:   sessionID,
		Outcome:      "success",
		Metadata: map[string]any{
			"request_id": requestID,
		},
	})

	logger.Info("Session removed", "session_id", sessionID, "action", action)

	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"action":     action,
	})
}

// HandleExamples handles GET /v1/triage/examples.
//
// Response:
//
//	200 OK: ExamplesResponse
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleExamples(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Examples())
}

// auditInvestigation emits the audit record for one finished triage
// request: a triage.query event summarizing the outcome, one event per
// command the gate blocked, one per command that ran, and a
// data.classified event when the classifier flags the summary. All of
// these are no-ops with the default options.
func (h *Handlers) auditInvestigation(ctx context.Context, userID string, req *datatypes.TriageRequest, result *agent.Result, processingMs int64) {
	outcome := "success"
	switch {
	case result.Error != nil:
		outcome = "failed"
	case result.Status == agent.StatusBlocked:
		outcome = "blocked"
	}

	_ = h.opts.AuditLogger.Log(ctx, extensions.AuditEvent{
		EventType:    "triage.query",
		Timestamp:    time.Now().UTC(),
		UserID:       userID,
		Action:       "query",
		ResourceType: "session",
		ResourceID:   result.SessionID,
		Outcome:      outcome,
		Metadata: map[string]any{
			"request_id":    result.RequestID,
			"namespace":     req.Namespace,
			"intent":        result.Intent.Tier.String(),
			"status":        result.Status,
			"iterations":    fmt.Sprintf("%d", result.Iterations),
			"processing_ms": fmt.Sprintf("%d", processingMs),
		},
	})

	for _, record := range result.Trail {
		for i, verdict := range record.Verdicts {
			if verdict.Allowed() || i >= len(record.Commands) {
				continue
			}
			_ = h.opts.AuditLogger.Log(ctx, extensions.AuditEvent{
				EventType:    "command.blocked",
				Timestamp:    time.Now().UTC(),
				UserID:       userID,
				Action:       "execute",
				ResourceType: "command",
				ResourceID:   result.SessionID,
				Outcome:      "blocked",
				Metadata: map[string]any{
					"request_id": result.RequestID,
					"namespace":  req.Namespace,
					"command":    record.Commands[i].String(),
					"reason":     verdict.Reason,
					"iteration":  fmt.Sprintf("%d", record.Index),
				},
			})
		}
		for _, exec := range record.Results {
			cmdOutcome := "success"
			if exec.Failed() || exec.ExitCode != 0 {
				cmdOutcome = "failed"
			}
			_ = h.opts.AuditLogger.Log(ctx, extensions.AuditEvent{
				EventType:    "command.executed",
				Timestamp:    time.Now().UTC(),
				UserID:       userID,
				Action:       "execute",
				ResourceType: "command",
				ResourceID:   result.SessionID,
				Outcome:      cmdOutcome,
				Metadata: map[string]any{
					"request_id":  result.RequestID,
					"namespace":   req.Namespace,
					"command":     exec.Command.String(),
					"exit_code":   fmt.Sprintf("%d", exec.ExitCode),
					"duration_ms": fmt.Sprintf("%d", exec.DurationMs),
					"iteration":   fmt.Sprintf("%d", record.Index),
				},
			})
		}
	}

	if result.Summary == "" {
		return
	}
	classification, cerr := h.opts.DataClassifier.Classify(ctx, result.Summary)
	if cerr != nil || classification.IsClean {
		return
	}
	_ = h.opts.AuditLogger.Log(ctx, extensions.AuditEvent{
		EventType:    "data.classified",
		Timestamp:    time.Now().UTC(),
		UserID:       userID,
		Action:       "classify",
		ResourceType: "session",
		ResourceID:   result.SessionID,
		Outcome:      "success",
		Metadata: map[string]any{
			"request_id":     result.RequestID,
			"classification": string(classification.HighestLevel),
			"findings":       fmt.Sprintf("%d", len(classification.Findings)),
		},
	})
}

// extractHeaders copies the request headers for capture, redacting
// credentials so raw tokens never reach audit storage.
func extractHeaders(c *gin.Context) extensions.HTTPHeaders {
	headers := extensions.HTTPHeaders{}
	for name, values := range c.Request.Header {
		if len(values) == 0 {
			continue
		}
		if strings.EqualFold(name, "Authorization") {
			headers.Set(name, "[REDACTED]")
			continue
		}
		headers.Set(name, values[0])
	}
	return headers
}
