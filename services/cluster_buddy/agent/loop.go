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
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/ClusterBuddy/pkg/logging"
	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/datatypes"
)

// MaxAssessedConfidence caps model-assessed findings strictly below the
// weakest deterministic signature confidence. Unstructured reasoning can
// narrow an investigation but never resolve it on its own.
const MaxAssessedConfidence = 0.59

// maxParallelReads bounds concurrent command execution within one iteration.
const maxParallelReads = 4

// =============================================================================
// Collaborator Contracts
// =============================================================================

// Classifier maps request text to an intent.
//
// Classify must be pure and total: same text, same intent, always a value.
type Classifier interface {
	Classify(ctx context.Context, text string) datatypes.Intent
}

// Generator proposes candidate commands for one iteration.
//
// Generator output is untrusted. Implementations must schema-validate
// whatever backs them into CommandSpec values; the loop treats errors and
// empty lists identically (fallback path). Generate must respect ctx.
type Generator interface {
	Generate(ctx context.Context, gc datatypes.GenerationContext) ([]datatypes.CommandSpec, error)
}

// SafetyGate evaluates one candidate command against the caller's
// permissions and classified intent.
//
// Evaluate is a pure decision: it must not execute anything.
type SafetyGate interface {
	Evaluate(ctx context.Context, cmd datatypes.CommandSpec, perms datatypes.Permissions, intent datatypes.Intent) datatypes.Verdict
}

// Runner executes one allowed command.
//
// Implementations must only ever receive argument vectors, never
// shell-interpreted strings, and must kill and reap the process when the
// timeout expires. Failures are reported inside the ExecutionResult, not
// as errors: a failed command is inconclusive evidence, not a crash.
type Runner interface {
	Execute(ctx context.Context, cmd datatypes.CommandSpec, timeout time.Duration) datatypes.ExecutionResult
}

// Analyzer extracts findings from execution results.
//
// Findings must be returned in result order so downstream merging stays
// deterministic under execution parallelism.
type Analyzer interface {
	Analyze(ctx context.Context, results []datatypes.ExecutionResult) []datatypes.Finding
}

// Assessor supplies a model-assessed finding when no signature matched.
//
// Optional. Assessed confidence is capped at MaxAssessedConfidence by the
// loop regardless of what the assessor returns.
type Assessor interface {
	Assess(ctx context.Context, gc datatypes.GenerationContext, results []datatypes.ExecutionResult) (*datatypes.Finding, error)
}

// ContextProvider supplies contextual hints for the generator.
//
// Optional. The loop depends on nothing here beyond "may be empty":
// provider failures are logged and ignored.
type ContextProvider interface {
	Hints(ctx context.Context, namespace, target string) ([]string, error)
}

// FallbackFunc builds the minimal safe read-only commands used when the
// generator proposes nothing. prior carries the previous iteration's
// execution results so the fallback can target what discovery surfaced.
// Returning false means no fallback exists, which aborts the session.
type FallbackFunc func(namespace string, prior []datatypes.ExecutionResult) ([]datatypes.CommandSpec, bool)

// =============================================================================
// Loop
// =============================================================================

// InvestigationLoop drives investigation sessions to a terminal state.
type InvestigationLoop interface {
	// Run executes the investigation for a session in INIT state.
	//
	// Description:
	//   Iterates generate → gate → execute → analyze until the session
	//   resolves, exhausts its budget, is blocked, or aborts. The returned
	//   result always carries the best current hypothesis and the full
	//   iteration trail, whatever the terminal state.
	//
	// Inputs:
	//   ctx - Context for cancellation, checked at the top of each iteration.
	//   session - The session to run (must be in INIT state).
	//
	// Outputs:
	//   *TriageResult - The terminal result.
	//   error - Non-nil only for misuse (nil session, wrong state, busy).
	//
	// Thread Safety: This method is safe for concurrent use with different
	// sessions.
	Run(ctx context.Context, session *Session) (*TriageResult, error)

	// Abort terminates a running session.
	//
	// Description:
	//   Cancellation is cooperative: the session transitions to ABORTED and
	//   the loop observes it at the next iteration boundary. A command that
	//   is already executing completes or hits its own timeout.
	//
	// Inputs:
	//   ctx - Context for the abort operation.
	//   sessionID - The session ID to abort.
	//
	// Outputs:
	//   error - Non-nil if session not found.
	//
	// Thread Safety: This method is safe for concurrent use.
	Abort(ctx context.Context, sessionID string) error

	// GetSnapshot returns the externally visible state of a session.
	//
	// Inputs:
	//   sessionID - The session ID to query.
	//
	// Outputs:
	//   *SessionSnapshot - The session snapshot.
	//   error - Non-nil if session not found.
	//
	// Thread Safety: This method is safe for concurrent use.
	GetSnapshot(sessionID string) (*SessionSnapshot, error)
}

// Dependencies contains the collaborators for the investigation loop.
//
// Generator, Gate, Runner, and Analyzer are required. The rest are
// optional and default to inert implementations.
type Dependencies struct {
	// Generator proposes candidate commands. Required.
	Generator Generator

	// Gate evaluates every candidate before execution. Required.
	Gate SafetyGate

	// Runner executes allowed commands. Required.
	Runner Runner

	// Analyzer extracts findings from output. Required.
	Analyzer Analyzer

	// Assessor supplies model-assessed confidence. Optional.
	Assessor Assessor

	// Context supplies generator hints. Optional.
	Context ContextProvider

	// Fallback builds the minimal safe command for empty generator output.
	// Optional; nil means an empty iteration aborts the session.
	Fallback FallbackFunc

	// Store persists sessions. Optional; defaults to an in-memory store.
	Store SessionStore

	// Logger receives loop diagnostics. Optional.
	Logger *logging.Logger

	// EventHandler receives progress events. Optional. Must be safe for
	// concurrent use when ParallelReads is enabled.
	EventHandler EventHandler
}

// DefaultInvestigationLoop implements the InvestigationLoop interface.
//
// Thread Safety: DefaultInvestigationLoop is safe for concurrent use.
type DefaultInvestigationLoop struct {
	mu sync.Mutex

	// stateMachine validates transitions.
	stateMachine *StateMachine

	// store holds sessions for Abort and GetSnapshot lookups.
	store SessionStore

	generator Generator
	gate      SafetyGate
	runner    Runner
	analyzer  Analyzer
	assessor  Assessor
	hints     ContextProvider
	fallback  FallbackFunc

	logger *logging.Logger
	events func(Event)

	// maxConcurrent limits concurrent sessions (0 = unlimited).
	maxConcurrent int

	// activeSessions tracks currently running sessions.
	activeSessions int
}

// LoopOption configures a DefaultInvestigationLoop.
type LoopOption func(*DefaultInvestigationLoop)

// WithMaxConcurrentSessions limits concurrent sessions.
//
// Inputs:
//
//	max - Maximum concurrent sessions (0 = unlimited).
func WithMaxConcurrentSessions(max int) LoopOption {
	return func(l *DefaultInvestigationLoop) {
		l.maxConcurrent = max
	}
}

// NewInvestigationLoop creates a new investigation loop.
//
// Description:
//
//	Validates that all required collaborators are present. Optional
//	collaborators default to inert implementations; the store defaults to
//	an unbounded in-memory store.
//
// Inputs:
//
//	deps - Collaborator set.
//	opts - Configuration options.
//
// Outputs:
//
//	*DefaultInvestigationLoop - The configured loop.
//	error - ErrMissingCollaborator when a required dependency is nil.
func NewInvestigationLoop(deps Dependencies, opts ...LoopOption) (*DefaultInvestigationLoop, error) {
	switch {
	case deps.Generator == nil:
		return nil, fmt.Errorf("%w: generator", ErrMissingCollaborator)
	case deps.Gate == nil:
		return nil, fmt.Errorf("%w: safety gate", ErrMissingCollaborator)
	case deps.Runner == nil:
		return nil, fmt.Errorf("%w: runner", ErrMissingCollaborator)
	case deps.Analyzer == nil:
		return nil, fmt.Errorf("%w: analyzer", ErrMissingCollaborator)
	}

	l := &DefaultInvestigationLoop{
		stateMachine: DefaultStateMachine,
		store:        deps.Store,
		generator:    deps.Generator,
		gate:         deps.Gate,
		runner:       deps.Runner,
		analyzer:     deps.Analyzer,
		assessor:     deps.Assessor,
		hints:        deps.Context,
		fallback:     deps.Fallback,
		logger:       deps.Logger,
		events:       deps.EventHandler,
	}
	if l.store == nil {
		l.store = NewInMemorySessionStore()
	}
	if l.logger == nil {
		l.logger = logging.Default()
	}

	for _, opt := range opts {
		opt(l)
	}

	return l, nil
}

var _ InvestigationLoop = (*DefaultInvestigationLoop)(nil)

// Run implements InvestigationLoop.
func (l *DefaultInvestigationLoop) Run(ctx context.Context, session *Session) (*TriageResult, error) {
	if session == nil {
		return nil, ErrInvalidSession
	}
	if session.Request.Query == "" {
		return nil, ErrEmptyQuery
	}
	if session.GetState() != StateInit {
		if session.IsTerminated() {
			return nil, ErrSessionTerminated
		}
		return nil, ErrInvalidTransition
	}

	if !session.TryAcquire() {
		return nil, ErrSessionInProgress
	}
	defer session.Release()

	if err := l.acquireSlot(); err != nil {
		return nil, err
	}
	defer l.releaseSlot()

	l.store.Put(session)

	if err := l.transition(session, StateIterating); err != nil {
		return nil, err
	}
	l.emit(Event{
		Type:      EventSessionStarted,
		SessionID: session.ID,
		State:     StateIterating,
		Message:   session.Request.Query,
	})

	return l.runLoop(ctx, session), nil
}

// Abort implements InvestigationLoop.
func (l *DefaultInvestigationLoop) Abort(ctx context.Context, sessionID string) error {
	session, ok := l.store.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}

	// Already finished: nothing to do.
	if session.IsTerminated() {
		return nil
	}

	// The running loop observes the terminal state at its next iteration
	// boundary; a command already executing completes or times out.
	if err := l.stateMachine.Transition(session, StateAborted); err != nil {
		return nil
	}
	l.emit(Event{
		Type:      EventStateTransition,
		SessionID: session.ID,
		State:     StateAborted,
		Message:   "aborted by caller",
	})
	return nil
}

// GetSnapshot implements InvestigationLoop.
func (l *DefaultInvestigationLoop) GetSnapshot(sessionID string) (*SessionSnapshot, error) {
	session, ok := l.store.Get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session.ToSnapshot(), nil
}

// acquireSlot attempts to acquire a concurrent session slot.
func (l *DefaultInvestigationLoop) acquireSlot() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.maxConcurrent > 0 && l.activeSessions >= l.maxConcurrent {
		return fmt.Errorf("maximum concurrent sessions reached (%d)", l.maxConcurrent)
	}

	l.activeSessions++
	return nil
}

// releaseSlot releases a concurrent session slot.
func (l *DefaultInvestigationLoop) releaseSlot() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.activeSessions--
}

// transition attempts a state transition and emits the event.
func (l *DefaultInvestigationLoop) transition(session *Session, to AgentState) error {
	from := session.GetState()

	if err := l.stateMachine.Transition(session, to); err != nil {
		return err
	}

	l.logger.Debug("state transition",
		"session_id", session.ID,
		"from", from.String(),
		"to", to.String(),
	)
	l.emit(Event{
		Type:      EventStateTransition,
		SessionID: session.ID,
		State:     to,
		Message:   l.stateMachine.TransitionReason(from, to),
	})
	return nil
}

// emit delivers an event to the handler, if any.
func (l *DefaultInvestigationLoop) emit(event Event) {
	if l.events == nil {
		return
	}
	event.Timestamp = time.Now()
	l.events(event)
}

// runLoop executes iterations until the session reaches a terminal state.
func (l *DefaultInvestigationLoop) runLoop(ctx context.Context, session *Session) *TriageResult {
	start := time.Now()
	cfg := session.Config

	hints := l.fetchHints(ctx, session)

	var abortErr error

	for {
		// Abort() may have terminated the session between iterations.
		if session.IsTerminated() {
			if session.GetState() == StateAborted && abortErr == nil {
				abortErr = ErrCanceled
			}
			break
		}

		// Cooperative cancellation, checked at the top of each iteration.
		// It never interrupts a command that is already executing.
		if ctx.Err() != nil {
			abortErr = ErrCanceled
			l.forceAbort(session)
			break
		}
		if time.Since(start) > cfg.TotalTimeout {
			abortErr = ErrTimeout
			l.forceAbort(session)
			break
		}

		rec, iterErr := l.runIteration(ctx, session, hints)
		if iterErr != nil {
			// The only iteration-level fatality: nothing to investigate.
			session.AppendIteration(*rec)
			abortErr = iterErr
			l.forceAbort(session)
			break
		}
		session.AppendIteration(*rec)

		// An investigation must never proceed on zero evidence.
		if iterationBlocked(rec) {
			l.logger.Warn("entire iteration blocked by safety gate",
				"session_id", session.ID,
				"iteration", rec.Index,
			)
			_ = l.transition(session, StateBlocked)
			break
		}

		if session.GetConfidence() >= cfg.ConfidenceThreshold {
			_ = l.transition(session, StateResolved)
			break
		}

		if session.IterationCount() >= cfg.MaxIterations {
			_ = l.transition(session, StateExhausted)
			break
		}
	}

	result := l.buildResult(session, start, abortErr)
	l.emit(Event{
		Type:      EventSessionFinished,
		SessionID: session.ID,
		State:     result.State,
		Payload:   result.Hypothesis,
	})
	l.logger.Info("investigation finished",
		"session_id", session.ID,
		"state", result.State.String(),
		"iterations", result.Iterations,
		"confidence", result.Confidence,
	)
	return result
}

// runIteration performs one generate → gate → execute → analyze pass.
//
// The returned record is always complete enough for audit, even on the
// abort path. A non-nil error means the session has no viable next step.
func (l *DefaultInvestigationLoop) runIteration(ctx context.Context, session *Session, hints []string) (*IterationRecord, error) {
	cfg := session.Config
	rec := &IterationRecord{
		Index:     session.IterationCount() + 1,
		StartedAt: time.Now(),
	}
	defer func() {
		rec.DurationMs = time.Since(rec.StartedAt).Milliseconds()
	}()

	l.emit(Event{
		Type:      EventIterationStarted,
		SessionID: session.ID,
		Iteration: rec.Index,
		State:     StateIterating,
	})

	gc := l.generationContext(session, hints, rec.Index)

	candidates, genErr := l.generate(ctx, session, gc)
	if genErr != nil {
		rec.Notes = append(rec.Notes, genErr.Error())
		l.logger.Warn("generator produced no usable candidates",
			"session_id", session.ID,
			"iteration", rec.Index,
			"error", genErr.Error(),
		)
	}
	if len(candidates) == 0 {
		fbs, ok := l.fallbackCommands(session)
		if !ok || len(fbs) == 0 {
			rec.Notes = append(rec.Notes, "no fallback command available")
			return rec, ErrNoViableStep
		}
		candidates = fbs
		rec.FallbackUsed = true
	}
	if len(candidates) > cfg.MaxCandidates {
		rec.Notes = append(rec.Notes, fmt.Sprintf("generator returned %d candidates, keeping %d", len(candidates), cfg.MaxCandidates))
		candidates = candidates[:cfg.MaxCandidates]
	}
	rec.Commands = candidates

	perms := session.Request.Permissions
	intent := session.GetIntent()

	rec.Verdicts = make([]datatypes.Verdict, len(candidates))
	var allowed []int
	for i, cmd := range candidates {
		verdict := l.gate.Evaluate(ctx, cmd, perms, intent)
		rec.Verdicts[i] = verdict
		if verdict.Allowed() {
			allowed = append(allowed, i)
			continue
		}
		l.logger.Info("command blocked",
			"session_id", session.ID,
			"iteration", rec.Index,
			"command", cmd.String(),
			"reason", verdict.Reason,
		)
		l.emit(Event{
			Type:      EventCommandBlocked,
			SessionID: session.ID,
			Iteration: rec.Index,
			Message:   verdict.Reason,
			Payload:   verdict,
		})
	}
	if len(allowed) == 0 {
		return rec, nil
	}

	rec.Results = l.executeAllowed(ctx, session, rec, candidates, allowed)

	for _, res := range rec.Results {
		if res.Failed() {
			rec.Notes = append(rec.Notes, fmt.Sprintf("command %d inconclusive: %s", res.Index, res.Error))
		}
	}

	findings := l.analyzer.Analyze(ctx, rec.Results)
	if len(findings) == 0 && l.assessor != nil {
		assessed, err := l.assessor.Assess(ctx, gc, rec.Results)
		switch {
		case err != nil:
			rec.Notes = append(rec.Notes, fmt.Sprintf("assessment unavailable: %v", err))
		case assessed != nil:
			if assessed.Confidence > MaxAssessedConfidence {
				assessed.Confidence = MaxAssessedConfidence
			}
			assessed.Source = datatypes.FindingSourceAssessed
			findings = append(findings, *assessed)
		}
	}
	rec.Findings = findings

	for _, f := range findings {
		session.MergeFinding(f)
		l.emit(Event{
			Type:      EventFinding,
			SessionID: session.ID,
			Iteration: rec.Index,
			Message:   f.Signature,
			Payload:   f,
		})
	}
	rec.Confidence = session.GetConfidence()

	return rec, nil
}

// generate calls the generator with its timeout applied.
func (l *DefaultInvestigationLoop) generate(ctx context.Context, session *Session, gc datatypes.GenerationContext) ([]datatypes.CommandSpec, error) {
	gctx, cancel := context.WithTimeout(ctx, session.Config.GeneratorTimeout)
	defer cancel()

	candidates, err := l.generator.Generate(gctx, gc)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			// A generator timeout is an empty candidate list with a note.
			return nil, ErrGeneratorTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrGeneratorUnavailable, err)
	}
	return sanitizeCandidates(candidates), nil
}

// sanitizeCandidates drops candidates with empty argument vectors. An
// empty vector can never be a command.
func sanitizeCandidates(candidates []datatypes.CommandSpec) []datatypes.CommandSpec {
	valid := candidates[:0]
	for _, c := range candidates {
		if len(c.Args) > 0 {
			valid = append(valid, c)
		}
	}
	return valid
}

// fallbackCommands builds the safe fallback set for this session. The
// previous iteration's results are handed to the fallback so a second
// consecutive miss can follow up on what discovery found instead of
// repeating it.
func (l *DefaultInvestigationLoop) fallbackCommands(session *Session) ([]datatypes.CommandSpec, bool) {
	if l.fallback == nil {
		return nil, false
	}
	var prior []datatypes.ExecutionResult
	if trail := session.GetIterations(); len(trail) > 0 {
		prior = trail[len(trail)-1].Results
	}
	return l.fallback(session.Request.Namespace, prior)
}

// fetchHints asks the context provider once per session. Never fatal.
func (l *DefaultInvestigationLoop) fetchHints(ctx context.Context, session *Session) []string {
	if l.hints == nil {
		return nil
	}
	hints, err := l.hints.Hints(ctx, session.Request.Namespace, session.Request.Target)
	if err != nil {
		l.logger.Warn("context provider unavailable",
			"session_id", session.ID,
			"error", err.Error(),
		)
		return nil
	}
	return hints
}

// generationContext assembles the generator's view of the session.
func (l *DefaultInvestigationLoop) generationContext(session *Session, hints []string, iteration int) datatypes.GenerationContext {
	var priorCommands []datatypes.CommandSpec
	var priorFindings []datatypes.Finding
	for _, it := range session.GetIterations() {
		for _, res := range it.Results {
			priorCommands = append(priorCommands, res.Command)
		}
		priorFindings = append(priorFindings, it.Findings...)
	}

	return datatypes.GenerationContext{
		Query:         session.Request.Query,
		Namespace:     session.Request.Namespace,
		Target:        session.Request.Target,
		Intent:        session.GetIntent(),
		Permissions:   session.Request.Permissions,
		Iteration:     iteration,
		MaxCommands:   session.Config.MaxCandidates,
		PriorCommands: priorCommands,
		PriorFindings: priorFindings,
		Hypothesis:    session.GetHypothesis(),
		Hints:         hints,
	}
}

// executeAllowed runs the allowed commands and returns results ordered by
// command index.
//
// Parallel execution is an optimization only: results land in positions
// fixed by the candidate order, so findings are merged identically whether
// or not commands ran concurrently.
func (l *DefaultInvestigationLoop) executeAllowed(ctx context.Context, session *Session, rec *IterationRecord, candidates []datatypes.CommandSpec, allowed []int) []datatypes.ExecutionResult {
	cfg := session.Config
	results := make([]datatypes.ExecutionResult, len(allowed))

	runOne := func(slot, cmdIdx int) {
		res := l.runner.Execute(ctx, candidates[cmdIdx], cfg.CommandTimeout)
		res.Index = cmdIdx
		res.Command = candidates[cmdIdx]
		results[slot] = res

		l.emit(Event{
			Type:      EventCommandExecuted,
			SessionID: session.ID,
			Iteration: rec.Index,
			Message:   candidates[cmdIdx].String(),
			Payload:   res,
		})
	}

	if cfg.ParallelReads && l.allLowRisk(rec, allowed) {
		var g errgroup.Group
		g.SetLimit(maxParallelReads)
		for slot, cmdIdx := range allowed {
			g.Go(func() error {
				runOne(slot, cmdIdx)
				return nil
			})
		}
		_ = g.Wait()
		return results
	}

	for slot, cmdIdx := range allowed {
		runOne(slot, cmdIdx)
	}
	return results
}

// allLowRisk reports whether every allowed command was graded read-only.
// Mutations always execute sequentially, in candidate order.
func (l *DefaultInvestigationLoop) allLowRisk(rec *IterationRecord, allowed []int) bool {
	for _, idx := range allowed {
		if rec.Verdicts[idx].Risk != datatypes.RiskLow {
			return false
		}
	}
	return true
}

// forceAbort moves the session to ABORTED unless it already terminated.
func (l *DefaultInvestigationLoop) forceAbort(session *Session) {
	if session.IsTerminated() {
		return
	}
	_ = l.transition(session, StateAborted)
}

// buildResult assembles the terminal result for a session.
func (l *DefaultInvestigationLoop) buildResult(session *Session, start time.Time, abortErr error) *TriageResult {
	result := &TriageResult{
		SessionID:  session.ID,
		State:      session.GetState(),
		Hypothesis: session.GetHypothesis(),
		Confidence: session.GetConfidence(),
		Iterations: session.IterationCount(),
		Trail:      session.GetIterations(),
		DurationMs: time.Since(start).Milliseconds(),
	}
	if abortErr != nil {
		result.Error = triageErrorFor(abortErr)
	}
	return result
}

// iterationBlocked reports whether the gate blocked every candidate in the
// iteration.
func iterationBlocked(rec *IterationRecord) bool {
	if len(rec.Verdicts) == 0 {
		return false
	}
	for _, v := range rec.Verdicts {
		if v.Allowed() {
			return false
		}
	}
	return true
}

// triageErrorFor maps a sentinel to the user-visible error taxonomy.
func triageErrorFor(err error) *TriageError {
	switch {
	case errors.Is(err, ErrCanceled):
		return &TriageError{Code: ErrCodeCanceled, Message: "investigation canceled", Recoverable: true}
	case errors.Is(err, ErrTimeout):
		return &TriageError{Code: ErrCodeTimeout, Message: "session exceeded its total time budget", Recoverable: true}
	case errors.Is(err, ErrNoViableStep):
		return &TriageError{Code: ErrCodeNoViableStep, Message: "generator proposed nothing and no fallback was available", Recoverable: true}
	case errors.Is(err, ErrGeneratorUnavailable):
		return &TriageError{Code: ErrCodeGeneratorUnavailable, Message: "command generator unavailable", Details: err.Error(), Recoverable: true}
	default:
		return &TriageError{Code: ErrCodeInternal, Message: err.Error()}
	}
}
