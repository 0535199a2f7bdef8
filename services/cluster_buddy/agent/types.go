// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agent provides the state-machine-driven triage decision layer.
//
// The investigation loop coordinates the intent classifier, the command
// generator, the safety gate, the command runner, and the pattern
// recognizer to converge on a root-cause hypothesis for a Kubernetes
// workload incident. It implements a finite state machine with states
// INIT, ITERATING, RESOLVED, EXHAUSTED, BLOCKED, and ABORTED.
//
// Two invariants hold throughout:
//
//   - No command ever reaches the runner without a recorded Allow verdict.
//     This is enforced by construction: the only call site that invokes the
//     runner sits immediately downstream of the gate.
//   - Running confidence never decreases. New evidence raises or holds it;
//     later ambiguous evidence is recorded as a finding, not a downgrade.
//
// Thread Safety:
//
//	All exported types in this package are designed for concurrent use.
//	Sessions are protected by internal synchronization.
package agent

import (
	"time"

	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/datatypes"
)

// AgentState represents a state in the investigation state machine.
//
// Valid state transitions are enforced by the state machine. Invalid
// transitions return ErrInvalidTransition.
type AgentState string

const (
	// StateInit is the state of a freshly constructed session, before the
	// first iteration starts.
	StateInit AgentState = "INIT"

	// StateIterating is the active investigation loop.
	StateIterating AgentState = "ITERATING"

	// StateResolved indicates confidence reached the configured threshold.
	StateResolved AgentState = "RESOLVED"

	// StateExhausted indicates the iteration budget ran out before the
	// threshold was reached. A valid outcome, not an error: the session
	// still carries its best partial hypothesis.
	StateExhausted AgentState = "EXHAUSTED"

	// StateBlocked indicates an entire iteration's candidates were blocked
	// by the safety gate. An investigation never proceeds on zero evidence.
	StateBlocked AgentState = "BLOCKED"

	// StateAborted indicates cancellation, session timeout, or no viable
	// investigation step (generator empty and no fallback available).
	StateAborted AgentState = "ABORTED"
)

// String returns the string representation of the state.
func (s AgentState) String() string {
	return string(s)
}

// IsTerminal returns true for the four terminal states. Terminal states
// never revert to an active state.
func (s AgentState) IsTerminal() bool {
	switch s {
	case StateResolved, StateExhausted, StateBlocked, StateAborted:
		return true
	default:
		return false
	}
}

// IsActive returns true if the state allows further iterations.
func (s AgentState) IsActive() bool {
	return s == StateInit || s == StateIterating
}

// AllStates returns all valid agent states.
func AllStates() []AgentState {
	return []AgentState{
		StateInit,
		StateIterating,
		StateResolved,
		StateExhausted,
		StateBlocked,
		StateAborted,
	}
}

// IterationRecord is the append-only audit record of one iteration.
//
// Every candidate, verdict, execution, and finding of the iteration is
// recorded here, including blocked commands and failed executions. Nothing
// is silently dropped.
type IterationRecord struct {
	// Index is the 1-based iteration number.
	Index int `json:"index"`

	// Commands are the candidates proposed this iteration, in generator order.
	Commands []datatypes.CommandSpec `json:"commands"`

	// Verdicts holds the safety decision for each command, index-aligned
	// with Commands.
	Verdicts []datatypes.Verdict `json:"verdicts"`

	// Results are the execution results of allowed commands, ordered by
	// their command index regardless of execution parallelism.
	Results []datatypes.ExecutionResult `json:"results,omitempty"`

	// Findings are the pieces of evidence extracted this iteration.
	Findings []datatypes.Finding `json:"findings,omitempty"`

	// Confidence is the session's running confidence after this iteration.
	Confidence float64 `json:"confidence"`

	// FallbackUsed is true when the generator proposed nothing and the
	// minimal safe fallback command was used instead.
	FallbackUsed bool `json:"fallback_used,omitempty"`

	// Notes records non-fatal per-iteration events (generator timeout,
	// regeneration after malformed output, empty runner results, ...).
	Notes []string `json:"notes,omitempty"`

	// StartedAt is when the iteration began.
	StartedAt time.Time `json:"started_at"`

	// DurationMs is how long the iteration took in milliseconds.
	DurationMs int64 `json:"duration_ms"`
}

// TriageResult contains the outcome of an investigation run.
type TriageResult struct {
	// SessionID identifies the investigation session.
	SessionID string `json:"session_id"`

	// State is the terminal state the session reached.
	State AgentState `json:"state"`

	// Hypothesis is the best current root-cause hypothesis, present even
	// for EXHAUSTED and BLOCKED sessions when any finding was made.
	Hypothesis *datatypes.Finding `json:"hypothesis,omitempty"`

	// Confidence is the final running confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// Iterations is the number of iterations consumed.
	Iterations int `json:"iterations"`

	// Trail is the full iteration audit trail.
	Trail []IterationRecord `json:"trail"`

	// Error contains failure details for ABORTED sessions.
	Error *TriageError `json:"error,omitempty"`

	// DurationMs is the total investigation time in milliseconds.
	DurationMs int64 `json:"duration_ms"`
}

// TriageError contains error information surfaced to callers.
//
// Raw internal errors never cross the API boundary; only this taxonomy does.
type TriageError struct {
	// Code is a machine-readable error code (CANCELED, TIMEOUT,
	// GENERATOR_UNAVAILABLE, NO_VIABLE_STEP, ...).
	Code string `json:"code"`

	// Message is a human-readable error message.
	Message string `json:"message"`

	// Details contains additional context.
	Details string `json:"details,omitempty"`

	// Recoverable indicates whether a retry might succeed.
	Recoverable bool `json:"recoverable"`
}

// Error codes carried by TriageError.
const (
	// ErrCodeCanceled indicates the caller canceled the investigation.
	ErrCodeCanceled = "CANCELED"

	// ErrCodeTimeout indicates the session exceeded its total time budget.
	ErrCodeTimeout = "TIMEOUT"

	// ErrCodeNoViableStep indicates the generator proposed nothing and no
	// fallback command was available.
	ErrCodeNoViableStep = "NO_VIABLE_STEP"

	// ErrCodeGeneratorUnavailable indicates the command generator failed.
	ErrCodeGeneratorUnavailable = "GENERATOR_UNAVAILABLE"

	// ErrCodeRunnerUnavailable indicates every executed command failed.
	ErrCodeRunnerUnavailable = "RUNNER_UNAVAILABLE"

	// ErrCodeInternal indicates an unclassified internal failure.
	ErrCodeInternal = "INTERNAL"
)

// Event is a progress notification emitted by the loop.
//
// Events are advisory: dropping them never affects the investigation.
type Event struct {
	// Type is one of the Event* constants.
	Type string `json:"type"`

	// SessionID identifies the emitting session.
	SessionID string `json:"session_id"`

	// Iteration is the 1-based iteration number, when applicable.
	Iteration int `json:"iteration,omitempty"`

	// State is the session state at emission time.
	State AgentState `json:"state,omitempty"`

	// Message is a human-readable description.
	Message string `json:"message,omitempty"`

	// Payload carries type-specific data (a verdict, a finding, ...).
	Payload any `json:"payload,omitempty"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`
}

// Event types emitted by the loop.
const (
	// EventSessionStarted fires once when the session enters ITERATING.
	EventSessionStarted = "session_started"

	// EventIterationStarted fires at the top of each iteration.
	EventIterationStarted = "iteration_started"

	// EventCommandBlocked fires for each Block verdict.
	EventCommandBlocked = "command_blocked"

	// EventCommandExecuted fires after each allowed command completes.
	EventCommandExecuted = "command_executed"

	// EventFinding fires for each new finding.
	EventFinding = "finding"

	// EventStateTransition fires on every state machine transition.
	EventStateTransition = "state_transition"

	// EventSessionFinished fires once when the session reaches a terminal
	// state.
	EventSessionFinished = "session_finished"
)

// EventHandler receives progress events.
//
// Implementations must be safe for concurrent use and must not block:
// events are emitted inline from the investigation.
type EventHandler func(Event)

// SessionSnapshot contains the externally visible state of a session.
type SessionSnapshot struct {
	// ID is the session identifier.
	ID string `json:"id"`

	// Query is the operator's request text.
	Query string `json:"query"`

	// Namespace is the namespace under investigation.
	Namespace string `json:"namespace"`

	// Intent is the classified intent.
	Intent datatypes.Intent `json:"intent"`

	// State is the current agent state.
	State AgentState `json:"state"`

	// Iterations is the number of completed iterations.
	Iterations int `json:"iterations"`

	// Confidence is the current running confidence.
	Confidence float64 `json:"confidence"`

	// Hypothesis is the current best hypothesis, if any.
	Hypothesis *datatypes.Finding `json:"hypothesis,omitempty"`

	// CreatedAt is when the session was created.
	CreatedAt time.Time `json:"created_at"`

	// LastActiveAt is when the session last made progress.
	LastActiveAt time.Time `json:"last_active_at"`
}
