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

import "errors"

// Sentinel errors for the agent package.
var (
	// ErrInvalidTransition indicates an invalid state transition was attempted.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrSessionNotFound indicates the requested session does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionTerminated indicates the session is already in a terminal state.
	ErrSessionTerminated = errors.New("session already terminated")

	// ErrSessionInProgress indicates an operation is already running on the session.
	ErrSessionInProgress = errors.New("session operation in progress")

	// ErrInvalidSession indicates the session configuration is invalid.
	// Raised at construction, before any iteration starts.
	ErrInvalidSession = errors.New("invalid session configuration")

	// ErrEmptyQuery indicates the request query is empty.
	ErrEmptyQuery = errors.New("query must not be empty")

	// ErrTimeout indicates the session exceeded its total time budget.
	ErrTimeout = errors.New("session timed out")

	// ErrCanceled indicates the investigation was canceled via context.
	ErrCanceled = errors.New("investigation canceled")

	// ErrGeneratorUnavailable indicates the command generator could not be
	// reached. Triggers the fallback path, non-fatal per iteration.
	ErrGeneratorUnavailable = errors.New("command generator unavailable")

	// ErrGeneratorTimeout indicates the generator call exceeded its timeout.
	// Treated identically to an empty candidate list.
	ErrGeneratorTimeout = errors.New("command generator timed out")

	// ErrMalformedCandidates indicates generator output failed schema
	// validation even after one regeneration attempt.
	ErrMalformedCandidates = errors.New("generator returned malformed candidates")

	// ErrSafetyBlocked indicates a safety verdict blocked a command.
	ErrSafetyBlocked = errors.New("command blocked by safety gate")

	// ErrRunnerTimeout indicates a command hit its execution deadline and
	// was killed. Recorded as inconclusive evidence.
	ErrRunnerTimeout = errors.New("command execution timed out")

	// ErrRunnerFailure indicates the runner could not execute a command.
	ErrRunnerFailure = errors.New("command execution failed")

	// ErrNoViableStep indicates the generator proposed nothing and no
	// fallback command was available. The session aborts.
	ErrNoViableStep = errors.New("no viable investigation step")

	// ErrMissingCollaborator indicates the loop was constructed without a
	// required collaborator (generator, gate, runner, or analyzer).
	ErrMissingCollaborator = errors.New("missing required collaborator")
)
