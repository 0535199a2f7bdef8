// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/ClusterBuddy/pkg/logging"
	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/datatypes"
)

// Result statuses returned by Orchestrator.Handle.
const (
	// StatusCompleted means a direct (non-investigative) request ran its
	// commands and returned output.
	StatusCompleted = "COMPLETED"

	// StatusResolved mirrors the RESOLVED terminal state.
	StatusResolved = "RESOLVED"

	// StatusExhausted mirrors the EXHAUSTED terminal state.
	StatusExhausted = "EXHAUSTED"

	// StatusBlocked means the safety gate refused every proposed command.
	StatusBlocked = "BLOCKED"

	// StatusAborted mirrors the ABORTED terminal state.
	StatusAborted = "ABORTED"
)

// Result is the outcome of one triage request, whatever the routing.
//
// Every status carries a best-effort summary and the full audit trail.
// Raw internal errors never appear here; only the TriageError taxonomy.
type Result struct {
	// RequestID echoes the request identifier.
	RequestID string `json:"request_id"`

	// SessionID identifies the investigation session. Empty for direct
	// (Action/Informational) requests, which never open a session.
	SessionID string `json:"session_id,omitempty"`

	// Intent is the classified intent the request was routed on.
	Intent datatypes.Intent `json:"intent"`

	// Status is one of the Status* constants.
	Status string `json:"status"`

	// Summary is the human-readable outcome.
	Summary string `json:"summary"`

	// Hypothesis is the best root-cause hypothesis, if any finding was made.
	Hypothesis *datatypes.Finding `json:"hypothesis,omitempty"`

	// Confidence is the final confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// Iterations is the number of iterations consumed.
	Iterations int `json:"iterations"`

	// Trail is the full audit trail, one record per iteration. Direct
	// requests record their single pass as one entry.
	Trail []IterationRecord `json:"trail,omitempty"`

	// Error carries failure details for aborted or collapsed requests.
	Error *TriageError `json:"error,omitempty"`

	// DurationMs is the total handling time in milliseconds.
	DurationMs int64 `json:"duration_ms"`
}

// Summarizer renders a human-readable summary for a finished investigation.
//
// Optional. On error the orchestrator falls back to a deterministic
// rendering; a summarizer outage never fails a request.
type Summarizer interface {
	Summarize(ctx context.Context, req datatypes.TriageRequest, result *TriageResult) (string, error)
}

// OrchestratorDependencies contains the collaborators for the orchestrator.
//
// Classifier, Loop, Generator, Gate, and Runner are required. Analyzer,
// Fallback, Summarizer, Logger, and EventHandler are optional.
type OrchestratorDependencies struct {
	// Classifier routes requests by intent tier. Required.
	Classifier Classifier

	// Loop runs Troubleshooting investigations. Required.
	Loop InvestigationLoop

	// Generator proposes commands for direct requests. Required.
	Generator Generator

	// Gate evaluates every command, direct requests included. Required.
	Gate SafetyGate

	// Runner executes allowed commands for direct requests. Required.
	Runner Runner

	// Analyzer scans direct-request output for known signatures. Optional.
	Analyzer Analyzer

	// Fallback builds the minimal safe commands for empty generator output.
	// Optional.
	Fallback FallbackFunc

	// Summarizer renders result summaries. Optional.
	Summarizer Summarizer

	// Logger receives diagnostics. Optional.
	Logger *logging.Logger

	// EventHandler receives progress events from direct requests. Optional.
	EventHandler EventHandler
}

// Orchestrator is the single entry point for triage requests.
//
// It classifies the request once, then routes: Troubleshooting requests
// enter the investigation loop; Action and Informational requests take a
// single generate, gate, execute pass. Every path runs the safety gate
// before any execution.
//
// Thread Safety: Orchestrator is safe for concurrent use.
type Orchestrator struct {
	classifier Classifier
	loop       InvestigationLoop
	generator  Generator
	gate       SafetyGate
	runner     Runner
	analyzer   Analyzer
	fallback   FallbackFunc
	summarizer Summarizer
	logger     *logging.Logger
	events     func(Event)

	// defaults is the session configuration applied when the request does
	// not override iteration budget or confidence threshold.
	defaults SessionConfig
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithSessionConfig replaces the default session configuration.
func WithSessionConfig(cfg SessionConfig) OrchestratorOption {
	return func(o *Orchestrator) {
		o.defaults = cfg
	}
}

// NewOrchestrator creates a new orchestrator.
//
// Inputs:
//
//	deps - Collaborator set.
//	opts - Configuration options.
//
// Outputs:
//
//	*Orchestrator - The configured orchestrator.
//	error - ErrMissingCollaborator when a required dependency is nil, or
//	        ErrInvalidSession when the configured defaults are invalid.
func NewOrchestrator(deps OrchestratorDependencies, opts ...OrchestratorOption) (*Orchestrator, error) {
	switch {
	case deps.Classifier == nil:
		return nil, fmt.Errorf("%w: classifier", ErrMissingCollaborator)
	case deps.Loop == nil:
		return nil, fmt.Errorf("%w: investigation loop", ErrMissingCollaborator)
	case deps.Generator == nil:
		return nil, fmt.Errorf("%w: generator", ErrMissingCollaborator)
	case deps.Gate == nil:
		return nil, fmt.Errorf("%w: safety gate", ErrMissingCollaborator)
	case deps.Runner == nil:
		return nil, fmt.Errorf("%w: runner", ErrMissingCollaborator)
	}

	o := &Orchestrator{
		classifier: deps.Classifier,
		loop:       deps.Loop,
		generator:  deps.Generator,
		gate:       deps.Gate,
		runner:     deps.Runner,
		analyzer:   deps.Analyzer,
		fallback:   deps.Fallback,
		summarizer: deps.Summarizer,
		logger:     deps.Logger,
		events:     deps.EventHandler,
		defaults:   *DefaultSessionConfig(),
	}
	if o.logger == nil {
		o.logger = logging.Default()
	}

	for _, opt := range opts {
		opt(o)
	}

	if err := o.defaults.Validate(); err != nil {
		return nil, err
	}

	return o, nil
}

// Handle processes one triage request end to end.
//
// Description:
//
//	Validates the request, classifies its intent, and routes it. The
//	returned Result always carries a summary and the audit trail. The
//	error return is reserved for request rejection (validation) and for
//	wholesale collapse: an invalid configuration, a generator that never
//	produced a single command, or a runner that failed every command in
//	the session. Partial failure returns a Result, not an error.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	req - The triage request. Defaults are filled in place.
//
// Outputs:
//
//	*Result - The outcome. Non-nil whenever handling started, even when
//	          err is non-nil for a collapsed session.
//	error - Validation failure or wholesale collapse.
//
// Thread Safety: This method is safe for concurrent use.
func (o *Orchestrator) Handle(ctx context.Context, req *datatypes.TriageRequest) (*Result, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", ErrInvalidSession)
	}
	start := time.Now()

	req.EnsureDefaults()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	intent := o.classifier.Classify(ctx, req.Query)
	o.logger.Info("request classified",
		"request_id", req.RequestID,
		"tier", intent.Tier.String(),
		"ambiguous", intent.Ambiguous,
	)

	if intent.Tier == datatypes.TierTroubleshooting {
		return o.investigate(ctx, req, intent, start)
	}
	return o.directPass(ctx, req, intent, start)
}

// sessionConfig builds the effective configuration for one request.
func (o *Orchestrator) sessionConfig(req *datatypes.TriageRequest) SessionConfig {
	cfg := o.defaults
	if req.MaxIterations > 0 {
		cfg.MaxIterations = req.MaxIterations
	}
	if req.ConfidenceThreshold > 0 {
		cfg.ConfidenceThreshold = req.ConfidenceThreshold
	}
	return cfg
}

// investigate runs the full investigation loop for Troubleshooting requests.
func (o *Orchestrator) investigate(ctx context.Context, req *datatypes.TriageRequest, intent datatypes.Intent, start time.Time) (*Result, error) {
	cfg := o.sessionConfig(req)
	session, err := NewSession(*req, &cfg)
	if err != nil {
		// Configuration errors are fatal before any iteration starts.
		return nil, err
	}
	session.SetIntent(intent)

	loopResult, err := o.loop.Run(ctx, session)
	if err != nil {
		return nil, err
	}

	result := &Result{
		RequestID:  req.RequestID,
		SessionID:  loopResult.SessionID,
		Intent:     intent,
		Status:     loopResult.State.String(),
		Hypothesis: loopResult.Hypothesis,
		Confidence: loopResult.Confidence,
		Iterations: loopResult.Iterations,
		Trail:      loopResult.Trail,
		Error:      loopResult.Error,
		DurationMs: time.Since(start).Milliseconds(),
	}
	result.Summary = o.summarize(ctx, *req, loopResult)

	if collapse := sessionCollapse(loopResult); collapse != nil {
		if result.Error == nil {
			result.Error = triageErrorForCollapse(collapse)
		}
		return result, collapse
	}
	return result, nil
}

// directPass handles Action and Informational requests with a single
// generate, gate, execute pass. No session is opened and no iteration
// budget applies, but the safety gate still rules on every command.
func (o *Orchestrator) directPass(ctx context.Context, req *datatypes.TriageRequest, intent datatypes.Intent, start time.Time) (*Result, error) {
	cfg := o.sessionConfig(req)
	rec := IterationRecord{Index: 1, StartedAt: time.Now()}

	gc := datatypes.GenerationContext{
		Query:       req.Query,
		Namespace:   req.Namespace,
		Target:      req.Target,
		Intent:      intent,
		Permissions: req.Permissions,
		Iteration:   1,
		MaxCommands: cfg.MaxCandidates,
	}

	gctx, cancel := context.WithTimeout(ctx, cfg.GeneratorTimeout)
	candidates, genErr := o.generator.Generate(gctx, gc)
	cancel()
	if genErr != nil {
		rec.Notes = append(rec.Notes, fmt.Sprintf("generator failed: %v", genErr))
		o.logger.Warn("generator failed for direct request",
			"request_id", req.RequestID,
			"error", genErr.Error(),
		)
		candidates = nil
	}
	candidates = sanitizeCandidates(candidates)
	if len(candidates) == 0 {
		if o.fallback == nil {
			return nil, fmt.Errorf("%w: no command could be generated", ErrGeneratorUnavailable)
		}
		fbs, ok := o.fallback(req.Namespace, nil)
		if !ok || len(fbs) == 0 {
			return nil, fmt.Errorf("%w: no command could be generated", ErrGeneratorUnavailable)
		}
		candidates = fbs
		rec.FallbackUsed = true
	}
	if len(candidates) > cfg.MaxCandidates {
		candidates = candidates[:cfg.MaxCandidates]
	}
	rec.Commands = candidates

	rec.Verdicts = make([]datatypes.Verdict, len(candidates))
	var allowed []int
	for i, cmd := range candidates {
		verdict := o.gate.Evaluate(ctx, cmd, req.Permissions, intent)
		rec.Verdicts[i] = verdict
		if verdict.Allowed() {
			allowed = append(allowed, i)
			continue
		}
		o.logger.Info("command blocked",
			"request_id", req.RequestID,
			"command", cmd.String(),
			"reason", verdict.Reason,
		)
		o.emit(Event{
			Type:      EventCommandBlocked,
			SessionID: req.RequestID,
			Iteration: 1,
			Message:   verdict.Reason,
			Payload:   verdict,
		})
	}

	result := &Result{
		RequestID: req.RequestID,
		Intent:    intent,
		Status:    StatusCompleted,
	}

	if len(allowed) == 0 {
		rec.DurationMs = time.Since(rec.StartedAt).Milliseconds()
		result.Status = StatusBlocked
		result.Trail = []IterationRecord{rec}
		result.Iterations = 1
		result.Summary = renderBlockedSummary(rec)
		result.DurationMs = time.Since(start).Milliseconds()
		return result, nil
	}

	for _, idx := range allowed {
		res := o.runner.Execute(ctx, candidates[idx], cfg.CommandTimeout)
		res.Index = idx
		res.Command = candidates[idx]
		rec.Results = append(rec.Results, res)
		if res.Failed() {
			rec.Notes = append(rec.Notes, fmt.Sprintf("command %d inconclusive: %s", idx, res.Error))
		}
		o.emit(Event{
			Type:      EventCommandExecuted,
			SessionID: req.RequestID,
			Iteration: 1,
			Message:   candidates[idx].String(),
			Payload:   res,
		})
	}

	if o.analyzer != nil {
		rec.Findings = o.analyzer.Analyze(ctx, rec.Results)
	}
	if best := datatypes.BestFinding(rec.Findings); best != nil {
		result.Hypothesis = best
		result.Confidence = best.Confidence
	}
	rec.Confidence = result.Confidence
	rec.DurationMs = time.Since(rec.StartedAt).Milliseconds()

	result.Trail = []IterationRecord{rec}
	result.Iterations = 1
	result.Summary = renderDirectSummary(req, intent, rec)
	result.DurationMs = time.Since(start).Milliseconds()

	// Wholesale runner collapse fails the request even on the direct path.
	failed := 0
	for _, res := range rec.Results {
		if res.Failed() {
			failed++
		}
	}
	if failed > 0 && failed == len(rec.Results) {
		err := fmt.Errorf("%w: all %d commands failed", ErrRunnerFailure, failed)
		result.Error = triageErrorForCollapse(err)
		return result, err
	}

	return result, nil
}

// summarize renders the summary, preferring the configured summarizer.
func (o *Orchestrator) summarize(ctx context.Context, req datatypes.TriageRequest, result *TriageResult) string {
	if o.summarizer != nil {
		summary, err := o.summarizer.Summarize(ctx, req, result)
		if err == nil && strings.TrimSpace(summary) != "" {
			return summary
		}
		if err != nil {
			o.logger.Warn("summarizer unavailable, using deterministic summary",
				"session_id", result.SessionID,
				"error", err.Error(),
			)
		}
	}
	return renderSessionSummary(result)
}

// emit delivers an event to the handler, if any.
func (o *Orchestrator) emit(event Event) {
	if o.events == nil {
		return
	}
	event.Timestamp = time.Now()
	o.events(event)
}

// renderSessionSummary builds the deterministic fallback summary for an
// investigation session.
func renderSessionSummary(result *TriageResult) string {
	var b strings.Builder

	switch result.State {
	case StateResolved:
		fmt.Fprintf(&b, "Investigation resolved after %d iteration(s) with confidence %.2f.", result.Iterations, result.Confidence)
	case StateExhausted:
		fmt.Fprintf(&b, "Iteration budget exhausted after %d iteration(s); best hypothesis carries confidence %.2f.", result.Iterations, result.Confidence)
	case StateBlocked:
		fmt.Fprintf(&b, "Investigation blocked: the safety gate refused every command in iteration %d.", result.Iterations)
	case StateAborted:
		fmt.Fprintf(&b, "Investigation aborted after %d iteration(s).", result.Iterations)
		if result.Error != nil {
			fmt.Fprintf(&b, " Cause: %s.", result.Error.Message)
		}
	default:
		fmt.Fprintf(&b, "Investigation finished in state %s after %d iteration(s).", result.State, result.Iterations)
	}

	if result.Hypothesis != nil {
		fmt.Fprintf(&b, " Likely cause: %s (%s).", result.Hypothesis.Signature, result.Hypothesis.Evidence)
		if result.Hypothesis.Remediation != "" {
			fmt.Fprintf(&b, " Suggested next step: %s", result.Hypothesis.Remediation)
		}
	} else {
		b.WriteString(" No root-cause hypothesis was established.")
	}

	return b.String()
}

// renderBlockedSummary explains why a direct request executed nothing.
func renderBlockedSummary(rec IterationRecord) string {
	var b strings.Builder
	b.WriteString("No command was executed: the safety gate blocked every proposed command.")
	for i, v := range rec.Verdicts {
		if v.Allowed() {
			continue
		}
		fmt.Fprintf(&b, " [%d] %s: %s.", i+1, rec.Commands[i].String(), v.Reason)
		if v.Alternative != nil {
			fmt.Fprintf(&b, " Narrower alternative: %s.", v.Alternative.String())
		}
	}
	return b.String()
}

// renderDirectSummary summarizes a completed direct pass.
func renderDirectSummary(req *datatypes.TriageRequest, intent datatypes.Intent, rec IterationRecord) string {
	var b strings.Builder

	executed, failed := 0, 0
	for _, res := range rec.Results {
		executed++
		if res.Failed() {
			failed++
		}
	}

	switch intent.Tier {
	case datatypes.TierAction:
		fmt.Fprintf(&b, "Executed %d command(s) in namespace %s", executed, req.Namespace)
	default:
		fmt.Fprintf(&b, "Gathered information with %d command(s) in namespace %s", executed, req.Namespace)
	}
	if failed > 0 {
		fmt.Fprintf(&b, " (%d failed)", failed)
	}
	b.WriteString(".")

	if blocked := len(rec.Commands) - executed; blocked > 0 {
		fmt.Fprintf(&b, " %d command(s) were blocked by the safety gate.", blocked)
	}
	if best := datatypes.BestFinding(rec.Findings); best != nil {
		fmt.Fprintf(&b, " Output matched known signature %s (confidence %.2f).", best.Signature, best.Confidence)
	}

	return b.String()
}

// sessionCollapse reports wholesale collapse of an investigation session:
// a generator that never produced a single executed command, or a runner
// that failed every command across the whole session. These are the only
// session outcomes that propagate as a failed Handle call.
func sessionCollapse(result *TriageResult) error {
	executed, failed := 0, 0
	for _, it := range result.Trail {
		for _, res := range it.Results {
			executed++
			if res.Failed() {
				failed++
			}
		}
	}

	if result.Error != nil && executed == 0 {
		switch result.Error.Code {
		case ErrCodeNoViableStep, ErrCodeGeneratorUnavailable:
			return fmt.Errorf("%w: no command was ever generated", ErrGeneratorUnavailable)
		}
	}

	if result.State != StateResolved && executed > 0 && failed == executed {
		return fmt.Errorf("%w: all %d commands failed", ErrRunnerFailure, executed)
	}

	return nil
}

// triageErrorForCollapse maps a collapse error to the taxonomy.
func triageErrorForCollapse(err error) *TriageError {
	switch {
	case errors.Is(err, ErrRunnerFailure):
		return &TriageError{Code: ErrCodeRunnerUnavailable, Message: "every executed command failed", Details: err.Error(), Recoverable: true}
	case errors.Is(err, ErrGeneratorUnavailable):
		return &TriageError{Code: ErrCodeGeneratorUnavailable, Message: "command generator unavailable", Details: err.Error(), Recoverable: true}
	default:
		return &TriageError{Code: ErrCodeInternal, Message: err.Error()}
	}
}
