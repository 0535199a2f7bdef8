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
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/datatypes"
)

// SessionConfig holds all tunable parameters for an investigation session.
//
// Thread Safety:
//
//	SessionConfig is immutable after creation. Modifications require
//	creating a new config.
type SessionConfig struct {
	// MaxIterations is the investigation iteration budget.
	// Default: 5
	MaxIterations int `json:"max_iterations"`

	// ConfidenceThreshold is the running confidence at which the session
	// resolves.
	// Default: 0.70
	ConfidenceThreshold float64 `json:"confidence_threshold"`

	// CommandTimeout is the per-command execution deadline. On expiry the
	// runner kills and reaps the process.
	// Default: 30s
	CommandTimeout time.Duration `json:"command_timeout"`

	// GeneratorTimeout bounds one generator call. A generator timeout is
	// treated identically to an empty candidate list.
	// Default: 90s
	GeneratorTimeout time.Duration `json:"generator_timeout"`

	// TotalTimeout is the maximum duration for the entire session.
	// Default: 5m
	TotalTimeout time.Duration `json:"total_timeout"`

	// MaxCandidates caps the number of candidates considered per iteration.
	// Default: 5
	MaxCandidates int `json:"max_candidates"`

	// ParallelReads executes an iteration's allowed read-only commands
	// concurrently. Findings are still merged in command-index order, so
	// this never changes the outcome, only the latency.
	// Default: false
	ParallelReads bool `json:"parallel_reads"`
}

// DefaultSessionConfig returns production-ready default configuration.
//
// Outputs:
//
//	*SessionConfig - Configuration with default values
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		MaxIterations:       5,
		ConfidenceThreshold: 0.70,
		CommandTimeout:      30 * time.Second,
		GeneratorTimeout:    90 * time.Second,
		TotalTimeout:        5 * time.Minute,
		MaxCandidates:       5,
		ParallelReads:       false,
	}
}

// Validate checks that the configuration is valid.
//
// Description:
//
//	A configuration error is fatal at session construction: it is rejected
//	before any iteration starts, never discovered mid-investigation.
//
// Outputs:
//
//	error - Non-nil if configuration is invalid, wrapping ErrInvalidSession
func (c *SessionConfig) Validate() error {
	if c.MaxIterations <= 0 {
		return fmt.Errorf("%w: MaxIterations must be positive", ErrInvalidSession)
	}
	if c.MaxIterations > datatypes.MaxIterationsCeiling {
		return fmt.Errorf("%w: MaxIterations must be at most %d", ErrInvalidSession, datatypes.MaxIterationsCeiling)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("%w: ConfidenceThreshold must be within [0,1]", ErrInvalidSession)
	}
	if c.CommandTimeout <= 0 {
		return fmt.Errorf("%w: CommandTimeout must be positive", ErrInvalidSession)
	}
	if c.GeneratorTimeout <= 0 {
		return fmt.Errorf("%w: GeneratorTimeout must be positive", ErrInvalidSession)
	}
	if c.TotalTimeout <= 0 {
		return fmt.Errorf("%w: TotalTimeout must be positive", ErrInvalidSession)
	}
	if c.MaxCandidates <= 0 {
		return fmt.Errorf("%w: MaxCandidates must be positive", ErrInvalidSession)
	}
	return nil
}

// Session is one investigation with all its state.
//
// The request is immutable once the session starts: intent is classified
// once, permissions are never widened, and the iteration trail is
// append-only. Terminal states are monotone.
//
// Thread Safety:
//
//	Session uses internal synchronization for state access.
//	Multiple goroutines can safely read session state.
type Session struct {
	mu sync.RWMutex

	// ID is the unique session identifier.
	ID string `json:"id"`

	// Request is the triage request that started this session.
	Request datatypes.TriageRequest `json:"request"`

	// Intent is the classified intent, derived once per request.
	Intent datatypes.Intent `json:"intent"`

	// State is the current agent state.
	State AgentState `json:"state"`

	// Config holds the session configuration.
	Config *SessionConfig `json:"config"`

	// Iterations is the append-only iteration trail.
	Iterations []IterationRecord `json:"iterations"`

	// Confidence is the running confidence, non-decreasing across iterations.
	Confidence float64 `json:"confidence"`

	// Hypothesis is the finding backing the current confidence.
	Hypothesis *datatypes.Finding `json:"hypothesis,omitempty"`

	// CreatedAt is when the session was created.
	CreatedAt time.Time `json:"created_at"`

	// LastActiveAt is when the session last made progress.
	LastActiveAt time.Time `json:"last_active_at"`

	// inProgress indicates an operation is currently running.
	inProgress bool
}

// NewSession creates a new investigation session.
//
// Description:
//
//	Creates a session for the given request. The session starts in INIT
//	state with an empty trail and zero confidence. Configuration problems
//	are rejected here, before any iteration can start.
//
// Inputs:
//
//	req - The triage request (query must be non-empty)
//	config - Session configuration (uses defaults if nil)
//
// Outputs:
//
//	*Session - The new session
//	error - ErrEmptyQuery or ErrInvalidSession
//
// Example:
//
//	session, err := NewSession(req, nil)
//	if err != nil {
//	    return fmt.Errorf("create session: %w", err)
//	}
func NewSession(req datatypes.TriageRequest, config *SessionConfig) (*Session, error) {
	if req.Query == "" {
		return nil, ErrEmptyQuery
	}
	if req.Namespace == "" {
		req.Namespace = datatypes.DefaultNamespace
	}

	if config == nil {
		config = DefaultSessionConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	return &Session{
		ID:           uuid.NewString(),
		Request:      req,
		State:        StateInit,
		Config:       config,
		Iterations:   make([]IterationRecord, 0),
		CreatedAt:    now,
		LastActiveAt: now,
	}, nil
}

// GetState returns the current session state.
//
// Thread Safety: This method is safe for concurrent use.
func (s *Session) GetState() AgentState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.State
}

// SetState updates the session state.
//
// Thread Safety: This method is safe for concurrent use.
func (s *Session) SetState(state AgentState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State = state
	s.LastActiveAt = time.Now()
}

// SetIntent records the classified intent.
//
// Thread Safety: This method is safe for concurrent use.
func (s *Session) SetIntent(intent datatypes.Intent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Intent = intent
	s.LastActiveAt = time.Now()
}

// GetIntent returns the classified intent.
//
// Thread Safety: This method is safe for concurrent use.
func (s *Session) GetIntent() datatypes.Intent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Intent
}

// AppendIteration appends a completed iteration record to the trail.
//
// The trail is append-only: records are never modified or removed after
// this call.
//
// Thread Safety: This method is safe for concurrent use.
func (s *Session) AppendIteration(rec IterationRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Iterations = append(s.Iterations, rec)
	s.LastActiveAt = time.Now()
}

// IterationCount returns the number of completed iterations.
//
// Thread Safety: This method is safe for concurrent use.
func (s *Session) IterationCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.Iterations)
}

// GetIterations returns a copy of the iteration trail.
//
// Thread Safety: This method is safe for concurrent use.
func (s *Session) GetIterations() []IterationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	trail := make([]IterationRecord, len(s.Iterations))
	copy(trail, s.Iterations)
	return trail
}

// MergeFinding folds a finding into the running confidence.
//
// Description:
//
//	Confidence is recomputed as max(current, finding confidence): new
//	evidence raises or holds it, never lowers it. When the finding raises
//	confidence it also becomes the session's hypothesis.
//
// Inputs:
//
//	f - The finding to merge
//
// Outputs:
//
//	bool - True when the finding raised the running confidence
//
// Thread Safety: This method is safe for concurrent use.
func (s *Session) MergeFinding(f datatypes.Finding) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActiveAt = time.Now()

	// Ties keep the earlier hypothesis so merge order stays deterministic.
	if s.Hypothesis != nil && f.Confidence <= s.Confidence {
		return false
	}

	raised := f.Confidence > s.Confidence
	s.Confidence = f.Confidence
	cp := f
	s.Hypothesis = &cp
	return raised
}

// GetConfidence returns the running confidence.
//
// Thread Safety: This method is safe for concurrent use.
func (s *Session) GetConfidence() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Confidence
}

// GetHypothesis returns a copy of the current best hypothesis, or nil.
//
// Thread Safety: This method is safe for concurrent use.
func (s *Session) GetHypothesis() *datatypes.Finding {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Hypothesis == nil {
		return nil
	}
	cp := *s.Hypothesis
	return &cp
}

// TryAcquire attempts to acquire the session for an operation.
//
// Returns false if another operation is in progress.
//
// Thread Safety: This method is safe for concurrent use.
func (s *Session) TryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inProgress {
		return false
	}
	s.inProgress = true
	s.LastActiveAt = time.Now()
	return true
}

// Release releases the session after an operation.
//
// Thread Safety: This method is safe for concurrent use.
func (s *Session) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inProgress = false
	s.LastActiveAt = time.Now()
}

// GetLastActiveAt returns when the session last made progress.
//
// Thread Safety: This method is safe for concurrent use.
func (s *Session) GetLastActiveAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LastActiveAt
}

// IsTerminated returns true if the session is in a terminal state.
//
// Thread Safety: This method is safe for concurrent use.
func (s *Session) IsTerminated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.State.IsTerminal()
}

// ToSnapshot converts to an external SessionSnapshot.
//
// Thread Safety: This method is safe for concurrent use.
func (s *Session) ToSnapshot() *SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := &SessionSnapshot{
		ID:           s.ID,
		Query:        s.Request.Query,
		Namespace:    s.Request.Namespace,
		Intent:       s.Intent,
		State:        s.State,
		Iterations:   len(s.Iterations),
		Confidence:   s.Confidence,
		CreatedAt:    s.CreatedAt,
		LastActiveAt: s.LastActiveAt,
	}
	if s.Hypothesis != nil {
		cp := *s.Hypothesis
		snap.Hypothesis = &cp
	}
	return snap
}
