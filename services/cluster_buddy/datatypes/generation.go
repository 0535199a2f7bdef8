// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

// GenerationContext is everything the command generator may consider when
// proposing candidates for one iteration.
//
// The generator is untrusted: whatever it returns is schema-validated into
// CommandSpec values and then safety-gated. Nothing here grants authority.
//
// # Fields
//
//   - Query: The operator's original request text.
//   - Namespace: Namespace under investigation.
//   - Target: Optional specific resource name from the request.
//   - Intent: The classified intent, fixed for the session.
//   - Permissions: The caller's mutation flags, so the generator can avoid
//     proposing commands that will only be blocked.
//   - Iteration: 1-based iteration number.
//   - MaxCommands: Upper bound on candidates the generator should return.
//   - PriorCommands: Commands already executed in earlier iterations, so the
//     generator does not repeat itself.
//   - PriorFindings: Evidence gathered so far.
//   - Hypothesis: Current best root-cause hypothesis, nil before any finding.
//   - Hints: Contextual hints from the knowledge provider. May be empty.
type GenerationContext struct {
	Query         string        `json:"query"`
	Namespace     string        `json:"namespace"`
	Target        string        `json:"target,omitempty"`
	Intent        Intent        `json:"intent"`
	Permissions   Permissions   `json:"permissions"`
	Iteration     int           `json:"iteration"`
	MaxCommands   int           `json:"max_commands"`
	PriorCommands []CommandSpec `json:"prior_commands,omitempty"`
	PriorFindings []Finding     `json:"prior_findings,omitempty"`
	Hypothesis    *Finding      `json:"hypothesis,omitempty"`
	Hints         []string      `json:"hints,omitempty"`
}
