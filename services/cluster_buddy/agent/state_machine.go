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
)

// StateMachine manages valid state transitions for the investigation loop.
//
// The state machine enforces the following transition graph:
//
//	INIT → ITERATING       : Investigation started
//	INIT → ABORTED         : Canceled before the first iteration
//	ITERATING → RESOLVED   : Confidence reached the threshold
//	ITERATING → EXHAUSTED  : Iteration budget consumed without resolution
//	ITERATING → BLOCKED    : Entire iteration blocked by the safety gate
//	ITERATING → ABORTED    : Canceled, timed out, or no viable step
//
// All four right-hand states of ITERATING are terminal. There is no path
// out of a terminal state: a finished investigation stays finished.
//
// Thread Safety:
//
//	StateMachine is safe for concurrent use.
type StateMachine struct {
	mu sync.RWMutex

	// transitions maps (from, to) pairs that are valid.
	transitions map[AgentState]map[AgentState]bool
}

// NewStateMachine creates a new state machine with all valid transitions.
//
// Outputs:
//
//	*StateMachine - Configured state machine
func NewStateMachine() *StateMachine {
	sm := &StateMachine{
		transitions: make(map[AgentState]map[AgentState]bool),
	}

	// Initialize all states with empty transition maps
	for _, state := range AllStates() {
		sm.transitions[state] = make(map[AgentState]bool)
	}

	// Define valid transitions
	sm.addTransition(StateInit, StateIterating)
	sm.addTransition(StateInit, StateAborted)

	sm.addTransition(StateIterating, StateResolved)
	sm.addTransition(StateIterating, StateExhausted)
	sm.addTransition(StateIterating, StateBlocked)
	sm.addTransition(StateIterating, StateAborted)

	return sm
}

// addTransition registers a valid transition.
func (sm *StateMachine) addTransition(from, to AgentState) {
	sm.transitions[from][to] = true
}

// CanTransition checks if a transition from one state to another is valid.
//
// Inputs:
//
//	from - Current state
//	to - Target state
//
// Outputs:
//
//	bool - True if the transition is valid
//
// Thread Safety: This method is safe for concurrent use.
func (sm *StateMachine) CanTransition(from, to AgentState) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if toMap, ok := sm.transitions[from]; ok {
		return toMap[to]
	}
	return false
}

// Transition attempts to transition a session from one state to another.
//
// Description:
//
//	Validates the transition and updates the session state if valid.
//	Returns an error if the transition is not allowed. In particular,
//	every transition out of a terminal state is rejected, which is what
//	makes terminal states monotone.
//
// Inputs:
//
//	session - The session to transition
//	to - Target state
//
// Outputs:
//
//	error - ErrInvalidTransition if transition not allowed
//
// Thread Safety: This method is safe for concurrent use.
func (sm *StateMachine) Transition(session *Session, to AgentState) error {
	from := session.GetState()

	if !sm.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	session.SetState(to)
	return nil
}

// ValidTransitionsFrom returns all valid transitions from a given state.
//
// Inputs:
//
//	from - The source state
//
// Outputs:
//
//	[]AgentState - All valid target states
//
// Thread Safety: This method is safe for concurrent use.
func (sm *StateMachine) ValidTransitionsFrom(from AgentState) []AgentState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	var result []AgentState
	if toMap, ok := sm.transitions[from]; ok {
		for state, valid := range toMap {
			if valid {
				result = append(result, state)
			}
		}
	}
	return result
}

// TransitionReason provides a human-readable description of a transition.
//
// Inputs:
//
//	from - Source state
//	to - Target state
//
// Outputs:
//
//	string - Description of why this transition occurs
func (sm *StateMachine) TransitionReason(from, to AgentState) string {
	key := from.String() + "->" + to.String()

	reasons := map[string]string{
		"INIT->ITERATING":      "Investigation started",
		"INIT->ABORTED":        "Canceled before the first iteration",
		"ITERATING->RESOLVED":  "Confidence reached the resolution threshold",
		"ITERATING->EXHAUSTED": "Iteration budget consumed without resolution",
		"ITERATING->BLOCKED":   "Every candidate in an iteration was blocked",
		"ITERATING->ABORTED":   "Canceled, timed out, or no viable step",
	}

	if reason, ok := reasons[key]; ok {
		return reason
	}
	return "Unknown transition"
}

// DefaultStateMachine is the shared state machine instance.
var DefaultStateMachine = NewStateMachine()

// Transition is a convenience function using the default state machine.
func Transition(session *Session, to AgentState) error {
	return DefaultStateMachine.Transition(session, to)
}

// CanTransition is a convenience function using the default state machine.
func CanTransition(from, to AgentState) bool {
	return DefaultStateMachine.CanTransition(from, to)
}
