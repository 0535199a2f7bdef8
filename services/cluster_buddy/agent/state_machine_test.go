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
	"errors"
	"strings"
	"testing"
)

func TestStateMachine_CanTransition(t *testing.T) {
	sm := NewStateMachine()

	tests := []struct {
		from  AgentState
		to    AgentState
		valid bool
	}{
		{StateInit, StateIterating, true},
		{StateInit, StateAborted, true},
		{StateIterating, StateResolved, true},
		{StateIterating, StateExhausted, true},
		{StateIterating, StateBlocked, true},
		{StateIterating, StateAborted, true},

		{StateInit, StateResolved, false},
		{StateInit, StateExhausted, false},
		{StateInit, StateBlocked, false},
		{StateIterating, StateInit, false},
		{StateResolved, StateIterating, false},
		{StateResolved, StateAborted, false},
		{StateExhausted, StateIterating, false},
		{StateBlocked, StateIterating, false},
		{StateAborted, StateIterating, false},
		{StateAborted, StateInit, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"_to_"+tt.to.String(), func(t *testing.T) {
			if got := sm.CanTransition(tt.from, tt.to); got != tt.valid {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.valid)
			}
		})
	}
}

func TestStateMachine_TerminalStatesAreSticky(t *testing.T) {
	sm := NewStateMachine()
	terminals := []AgentState{StateResolved, StateExhausted, StateBlocked, StateAborted}

	for _, from := range terminals {
		for _, to := range AllStates() {
			if sm.CanTransition(from, to) {
				t.Fatalf("terminal state %s permits a transition to %s", from, to)
			}
		}
	}
}

func TestStateMachine_TransitionUpdatesSession(t *testing.T) {
	sm := NewStateMachine()
	session := newTestSession(t, nil)

	if err := sm.Transition(session, StateIterating); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if session.GetState() != StateIterating {
		t.Fatalf("state = %s, want ITERATING", session.GetState())
	}

	if err := sm.Transition(session, StateResolved); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if session.GetState() != StateResolved {
		t.Fatalf("state = %s, want RESOLVED", session.GetState())
	}
}

func TestStateMachine_InvalidTransitionLeavesStateUntouched(t *testing.T) {
	sm := NewStateMachine()
	session := newTestSession(t, nil)

	err := sm.Transition(session, StateResolved)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if !strings.Contains(err.Error(), "INIT") || !strings.Contains(err.Error(), "RESOLVED") {
		t.Fatalf("error should name both states: %v", err)
	}
	if session.GetState() != StateInit {
		t.Fatalf("state = %s, a rejected transition must not change it", session.GetState())
	}
}

func TestStateMachine_ValidTransitionsFrom(t *testing.T) {
	sm := NewStateMachine()

	if got := sm.ValidTransitionsFrom(StateInit); len(got) != 2 {
		t.Fatalf("INIT has %d targets, want 2: %v", len(got), got)
	}
	if got := sm.ValidTransitionsFrom(StateIterating); len(got) != 4 {
		t.Fatalf("ITERATING has %d targets, want 4: %v", len(got), got)
	}
	if got := sm.ValidTransitionsFrom(StateResolved); len(got) != 0 {
		t.Fatalf("RESOLVED has %d targets, want 0: %v", len(got), got)
	}
}

func TestStateMachine_TransitionReason(t *testing.T) {
	sm := NewStateMachine()

	if reason := sm.TransitionReason(StateIterating, StateResolved); !strings.Contains(reason, "threshold") {
		t.Fatalf("reason = %q", reason)
	}
	if reason := sm.TransitionReason(StateResolved, StateInit); reason != "Unknown transition" {
		t.Fatalf("reason = %q, want the unknown marker", reason)
	}
}

func TestAgentState_Predicates(t *testing.T) {
	tests := []struct {
		state    AgentState
		terminal bool
		active   bool
	}{
		{StateInit, false, true},
		{StateIterating, false, true},
		{StateResolved, true, false},
		{StateExhausted, true, false},
		{StateBlocked, true, false},
		{StateAborted, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			if got := tt.state.IsTerminal(); got != tt.terminal {
				t.Fatalf("IsTerminal = %v, want %v", got, tt.terminal)
			}
			if got := tt.state.IsActive(); got != tt.active {
				t.Fatalf("IsActive = %v, want %v", got, tt.active)
			}
		})
	}

	if len(AllStates()) != 6 {
		t.Fatalf("AllStates returned %d states, want 6", len(AllStates()))
	}
}
