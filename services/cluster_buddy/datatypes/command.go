// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides shared data structures for the triage service.
//
// This file contains the command vocabulary: CommandSpec (a proposed
// diagnostic or remediation command), Permissions (what the caller allowed),
// Verdict (the safety decision for one command), and ExecutionResult (what
// actually happened when an allowed command ran).
package datatypes

import "strings"

// =============================================================================
// CommandSpec
// =============================================================================

// CommandSpec is a single proposed command as an argument vector.
//
// # Description
//
// Commands are always argument vectors, never shell strings. A CommandSpec
// produced by the command generator is untrusted until it passes the safety
// gate; nothing in this package executes anything.
//
// # Fields
//
//   - Args: The argument vector, e.g. ["kubectl", "get", "pods", "-n", "payments"].
//     Args[0] is the binary. Never joined into a single shell-interpreted string.
//   - Rationale: Human-readable explanation of why this command was proposed.
//     Carried through verdicts and results for audit.
type CommandSpec struct {
	Args      []string `json:"args"`
	Rationale string   `json:"rationale,omitempty"`
}

// String renders the argument vector for display and logging.
//
// The result is for humans only. It must never be handed to a shell.
func (c CommandSpec) String() string {
	return strings.Join(c.Args, " ")
}

// Verb returns the command's subcommand verb.
//
// For kubectl-style vectors this is the element after the binary
// ("get" in ["kubectl", "get", "pods"]). Returns "" for vectors too
// short to have one.
func (c CommandSpec) Verb() string {
	if len(c.Args) < 2 {
		return ""
	}
	return c.Args[1]
}

// Resource returns the first non-flag argument after the verb, which for
// kubectl-style vectors is the resource kind ("pods", "deployment/api", ...).
// Returns "" if none exists.
func (c CommandSpec) Resource() string {
	for i := 2; i < len(c.Args); i++ {
		if !strings.HasPrefix(c.Args[i], "-") {
			return c.Args[i]
		}
	}
	return ""
}

// HasFlag reports whether the vector contains the given flag, either as a
// standalone element ("--all") or in --flag=value form.
func (c CommandSpec) HasFlag(name string) bool {
	for _, arg := range c.Args {
		if arg == name || strings.HasPrefix(arg, name+"=") {
			return true
		}
	}
	return false
}

// FlagValue returns the value of the given flag, handling both
// "--flag value" and "--flag=value" forms. The second return is false
// when the flag is absent or has no value.
func (c CommandSpec) FlagValue(name string) (string, bool) {
	for i, arg := range c.Args {
		if arg == name {
			if i+1 < len(c.Args) {
				return c.Args[i+1], true
			}
			return "", false
		}
		if strings.HasPrefix(arg, name+"=") {
			return strings.TrimPrefix(arg, name+"="), true
		}
	}
	return "", false
}

// Equal reports whether two specs have identical argument vectors.
// Rationale is ignored; it is commentary, not identity.
func (c CommandSpec) Equal(other CommandSpec) bool {
	if len(c.Args) != len(other.Args) {
		return false
	}
	for i := range c.Args {
		if c.Args[i] != other.Args[i] {
			return false
		}
	}
	return true
}

// =============================================================================
// Permissions
// =============================================================================

// Permissions are the caller-granted mutation flags for one request.
//
// # Description
//
// Read-only commands are always permitted (subject to the other gate
// checks). Mutating commands additionally require the matching flag.
// When ReadOnly is set it overrides the Allow flags: every mutation is
// blocked regardless of what else was granted.
//
// Permissions are immutable once a session starts.
type Permissions struct {
	ReadOnly    bool `json:"read_only"`
	AllowCreate bool `json:"allow_create"`
	AllowUpdate bool `json:"allow_update"`
	AllowDelete bool `json:"allow_delete"`
}

// AllowsAnyMutation reports whether at least one mutation class is permitted.
func (p Permissions) AllowsAnyMutation() bool {
	if p.ReadOnly {
		return false
	}
	return p.AllowCreate || p.AllowUpdate || p.AllowDelete
}

// =============================================================================
// Verdict
// =============================================================================

// Decision is the binary outcome of a safety evaluation.
type Decision string

const (
	// DecisionAllow permits the command to reach the runner.
	DecisionAllow Decision = "allow"

	// DecisionBlock stops the command. Blocked commands are recorded in the
	// iteration trail but never executed.
	DecisionBlock Decision = "block"
)

// RiskTier grades the blast radius of a command.
type RiskTier string

const (
	// RiskLow covers read-only commands.
	RiskLow RiskTier = "low"

	// RiskMedium covers scoped mutations permitted by the caller's flags.
	RiskMedium RiskTier = "medium"

	// RiskHigh covers broad or destructive mutations (bulk deletes,
	// cluster-scoped targets, forbidden verbs).
	RiskHigh RiskTier = "high"
)

// Verdict is the safety gate's decision for a single CommandSpec.
//
// # Fields
//
//   - Decision: allow or block.
//   - Reason: Human-readable explanation, always set for blocks.
//   - Risk: The assessed risk tier.
//   - Rule: Identifier of the check that produced the decision
//     ("argv_form", "mode", "scope", "evaluator"). Used for audit.
//   - Alternative: Optional narrower command suggested in place of a
//     blocked over-broad mutation.
type Verdict struct {
	Decision    Decision     `json:"decision"`
	Reason      string       `json:"reason"`
	Risk        RiskTier     `json:"risk"`
	Rule        string       `json:"rule,omitempty"`
	Alternative *CommandSpec `json:"alternative,omitempty"`
}

// Allowed reports whether the verdict permits execution.
func (v Verdict) Allowed() bool {
	return v.Decision == DecisionAllow
}

// =============================================================================
// ExecutionResult
// =============================================================================

// ExecutionResult records what happened when one allowed command ran.
//
// # Fields
//
//   - Index: Position of the command within its iteration's candidate list.
//     Findings are merged in Index order so parallel execution cannot
//     reorder evidence.
//   - Command: The exact spec that ran.
//   - Stdout, Stderr: Captured output, possibly truncated by the runner.
//   - ExitCode: Process exit code. -1 when the process never ran or was
//     killed before exiting normally.
//   - TimedOut: True when the runner killed the process at its deadline.
//   - Error: Runner-level failure message (spawn failure, timeout, ...).
//     A failed execution is inconclusive evidence, not a fatal error.
//   - DurationMs: Wall-clock execution time in milliseconds.
type ExecutionResult struct {
	Index      int         `json:"index"`
	Command    CommandSpec `json:"command"`
	Stdout     string      `json:"stdout,omitempty"`
	Stderr     string      `json:"stderr,omitempty"`
	ExitCode   int         `json:"exit_code"`
	TimedOut   bool        `json:"timed_out,omitempty"`
	Error      string      `json:"error,omitempty"`
	DurationMs int64       `json:"duration_ms"`
}

// Failed reports whether the execution produced no usable evidence.
func (r ExecutionResult) Failed() bool {
	return r.Error != "" || r.TimedOut
}

// CombinedOutput returns stdout and stderr joined for pattern analysis.
// Stdout comes first; structured status output normally lands there.
func (r ExecutionResult) CombinedOutput() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}
