// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package safety provides the command safety gate.
//
// The gate evaluates every candidate command before it can reach the
// runner, as an ordered pipeline where the first failing check blocks:
//
//  1. Execution form: the command must be an argument vector free of
//     shell metacharacters, naming an allowed binary. A raw shell string
//     is rejected unconditionally.
//  2. Mode check: mutating verbs require the matching permission flag
//     (allow-create / allow-update / allow-delete); read-only verbs
//     always proceed. Unknown verbs are ambiguous, and ambiguity blocks.
//  3. Scope/intent match: a mutation broader than the request's intent
//     implies is blocked even when the flag is set, with a narrower
//     suggested alternative.
//
// A richer model-backed evaluator can be attached to tighten checks 2-3.
// It can only veto: a command the deterministic rules block stays
// blocked, and when the evaluator is unavailable the gate degrades to
// the deterministic rules alone. Availability is never purchased at the
// cost of safety.
//
// Thread Safety:
//
//	All types in this package are safe for concurrent use after
//	initialization.
package safety

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/ClusterBuddy/pkg/logging"
	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/agent"
	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/datatypes"
)

// Rule identifiers recorded on verdicts for audit.
const (
	// RuleArgvForm marks execution-form rejections.
	RuleArgvForm = "argv_form"

	// RuleMode marks permission-flag and forbidden-verb rejections.
	RuleMode = "mode"

	// RuleScope marks over-broad-mutation rejections.
	RuleScope = "scope"

	// RuleEvaluator marks vetoes from the model-backed evaluator.
	RuleEvaluator = "evaluator"
)

// shellMetachars are characters that only make sense when a string is
// handed to a shell. An argument vector never needs them; their presence
// means something upstream tried to smuggle in an interpolated command.
const shellMetachars = ";|&$`><\n"

// GateConfig configures the safety gate.
type GateConfig struct {
	// AllowedBinaries are the only permitted values for Args[0].
	AllowedBinaries []string
}

// DefaultGateConfig returns production defaults.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		AllowedBinaries: []string{"kubectl"},
	}
}

// Gate evaluates candidate commands against permissions and intent.
//
// Evaluation is pure: the gate never executes anything and has no side
// effects beyond logging and tracing.
//
// Thread Safety: Gate is safe for concurrent use.
type Gate struct {
	config    GateConfig
	evaluator Evaluator
	logger    *logging.Logger

	binaries map[string]struct{}
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithEvaluator attaches a model-backed evaluator for checks 2-3.
//
// The evaluator can only tighten decisions. Its failures degrade the
// gate to deterministic rules and are logged, never fatal.
func WithEvaluator(evaluator Evaluator) GateOption {
	return func(g *Gate) {
		g.evaluator = evaluator
	}
}

// WithLogger sets the gate's logger.
func WithLogger(logger *logging.Logger) GateOption {
	return func(g *Gate) {
		g.logger = logger
	}
}

// NewGate creates a safety gate.
//
// Inputs:
//
//	config - Gate configuration. If nil, uses DefaultGateConfig().
//	opts - Configuration options.
//
// Outputs:
//
//	*Gate - The configured gate.
func NewGate(config *GateConfig, opts ...GateOption) *Gate {
	cfg := DefaultGateConfig()
	if config != nil {
		cfg = *config
	}

	g := &Gate{config: cfg}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = logging.Default()
	}

	g.binaries = make(map[string]struct{}, len(cfg.AllowedBinaries))
	for _, b := range cfg.AllowedBinaries {
		g.binaries[b] = struct{}{}
	}

	return g
}

// Evaluate runs the full check pipeline for one candidate command.
//
// Description:
//
//	Applies the ordered checks described in the package documentation.
//	The first failing check decides; later checks never run. An attached
//	evaluator is consulted last, and only for mutations the deterministic
//	rules already allowed.
//
// Inputs:
//
//	ctx - Context for tracing and the evaluator call.
//	cmd - The candidate command.
//	perms - The caller's permission flags.
//	intent - The request's classified intent.
//
// Outputs:
//
//	datatypes.Verdict - Allow or Block with reason, risk tier, the rule
//	                    that decided, and an optional narrower alternative.
//
// Thread Safety: This method is safe for concurrent use.
func (g *Gate) Evaluate(ctx context.Context, cmd datatypes.CommandSpec, perms datatypes.Permissions, intent datatypes.Intent) datatypes.Verdict {
	ctx, span := otel.Tracer("safety").Start(ctx, "safety.Gate.Evaluate",
		trace.WithAttributes(
			attribute.String("command", cmd.String()),
			attribute.String("intent_tier", intent.Tier.String()),
		),
	)
	defer span.End()

	verdict := g.evaluatePipeline(ctx, cmd, perms, intent)

	span.SetAttributes(
		attribute.String("decision", string(verdict.Decision)),
		attribute.String("risk", string(verdict.Risk)),
		attribute.String("rule", verdict.Rule),
	)
	return verdict
}

func (g *Gate) evaluatePipeline(ctx context.Context, cmd datatypes.CommandSpec, perms datatypes.Permissions, intent datatypes.Intent) datatypes.Verdict {
	// Check 1: execution form.
	if v, ok := g.checkForm(cmd); !ok {
		return v
	}

	// Check 2: mode.
	class := classifyVerb(cmd.Verb())
	if v, ok := g.checkMode(cmd, class, perms); !ok {
		return v
	}

	// Check 3: scope/intent. Read-only commands have nothing to scope.
	if class.mutating() {
		if v, ok := g.checkScope(cmd, class, intent); !ok {
			return v
		}
	}

	allowed := g.allowVerdict(class)

	// Evaluator veto, mutations only. Read-only commands are always safe
	// and never worth a model call.
	if g.evaluator != nil && class.mutating() {
		if v, vetoed := g.consultEvaluator(ctx, cmd, perms, intent); vetoed {
			return v
		}
	}

	return allowed
}

// checkForm rejects anything that is not a clean argument vector for an
// allowed binary. Returns ok=false with the blocking verdict.
func (g *Gate) checkForm(cmd datatypes.CommandSpec) (datatypes.Verdict, bool) {
	if len(cmd.Args) == 0 {
		return blockVerdict(RuleArgvForm, "empty argument vector", datatypes.RiskHigh, nil), false
	}

	// A single element containing whitespace is a shell string that was
	// never split, the exact injection shape the vector form exists to
	// prevent.
	if len(cmd.Args) == 1 && strings.ContainsAny(cmd.Args[0], " \t") {
		return blockVerdict(RuleArgvForm, "raw shell string rejected: commands must be argument vectors", datatypes.RiskHigh, nil), false
	}

	for _, arg := range cmd.Args {
		if strings.ContainsAny(arg, shellMetachars) {
			return blockVerdict(RuleArgvForm,
				fmt.Sprintf("argument %q contains shell metacharacters", arg),
				datatypes.RiskHigh, nil), false
		}
	}

	if _, ok := g.binaries[cmd.Args[0]]; !ok {
		return blockVerdict(RuleArgvForm,
			fmt.Sprintf("binary %q is not permitted", cmd.Args[0]),
			datatypes.RiskHigh, nil), false
	}

	return datatypes.Verdict{}, true
}

// checkMode enforces permission flags and the forbidden-verb list.
func (g *Gate) checkMode(cmd datatypes.CommandSpec, class verbClass, perms datatypes.Permissions) (datatypes.Verdict, bool) {
	verb := cmd.Verb()

	switch class {
	case classRead:
		return datatypes.Verdict{}, true

	case classForbidden:
		return blockVerdict(RuleMode,
			fmt.Sprintf("verb %q opens an interactive session or tunnel and is never executed autonomously", verb),
			datatypes.RiskHigh, nil), false

	case classUnknown:
		return blockVerdict(RuleMode,
			fmt.Sprintf("verb %q is not recognized; ambiguity blocks", verb),
			datatypes.RiskMedium, nil), false

	case classCreate:
		if perms.ReadOnly || !perms.AllowCreate {
			return blockVerdict(RuleMode,
				"create operation not permitted: enable allow-create",
				datatypes.RiskMedium, nil), false
		}

	case classUpdate:
		if perms.ReadOnly || !perms.AllowUpdate {
			return blockVerdict(RuleMode,
				"update operation not permitted: enable allow-update",
				datatypes.RiskMedium, nil), false
		}

	case classDelete:
		if perms.ReadOnly || !perms.AllowDelete {
			return blockVerdict(RuleMode,
				"delete operation not permitted: enable allow-delete",
				datatypes.RiskHigh, nil), false
		}
	}

	return datatypes.Verdict{}, true
}

// checkScope blocks mutations broader than the request's intent implies.
func (g *Gate) checkScope(cmd datatypes.CommandSpec, class verbClass, intent datatypes.Intent) (datatypes.Verdict, bool) {
	// A request that was not classified as an Action never implies a
	// mutation: investigations and lookups read, they do not change.
	if intent.Tier != datatypes.TierAction {
		return blockVerdict(RuleScope,
			fmt.Sprintf("%s request does not imply cluster changes", intent.Tier),
			datatypes.RiskHigh, g.previewAlternative(cmd)), false
	}

	// Bulk flags make any mutation over-broad.
	for _, flag := range []string{"--all", "-A", "--all-namespaces"} {
		if cmd.HasFlag(flag) {
			return blockVerdict(RuleScope,
				fmt.Sprintf("bulk flag %s targets more than the request implies", flag),
				datatypes.RiskHigh, g.previewAlternative(cmd)), false
		}
	}

	// Delete-class commands must pin their targets.
	if class == classDelete && !deleteScoped(cmd) {
		return blockVerdict(RuleScope,
			"delete without a resource name or selector is over-broad: enumerate targets first, then delete by name",
			datatypes.RiskHigh, g.previewAlternative(cmd)), false
	}

	return datatypes.Verdict{}, true
}

// consultEvaluator asks the attached evaluator to second-guess an allowed
// mutation. Returns vetoed=true with the blocking verdict.
func (g *Gate) consultEvaluator(ctx context.Context, cmd datatypes.CommandSpec, perms datatypes.Permissions, intent datatypes.Intent) (datatypes.Verdict, bool) {
	assessment, err := g.evaluator.Assess(ctx, cmd, perms, intent)
	if err != nil {
		// Degrade to deterministic rules; the floor already held.
		g.logger.Warn("safety evaluator unavailable, using deterministic rules",
			"command", cmd.String(),
			"error", err.Error(),
		)
		return datatypes.Verdict{}, false
	}
	if assessment == nil || assessment.Safe {
		return datatypes.Verdict{}, false
	}

	risk := assessment.Risk
	if risk == "" {
		risk = datatypes.RiskHigh
	}
	reason := assessment.Reason
	if reason == "" {
		reason = "model-backed evaluator vetoed this command"
	}

	alternative := assessment.Alternative
	if alternative != nil {
		// A suggestion is commentary, but a poisoned suggestion is not.
		if v, ok := g.checkForm(*alternative); !ok {
			g.logger.Warn("discarding malformed evaluator alternative",
				"alternative", alternative.String(),
				"reason", v.Reason,
			)
			alternative = nil
		}
	}

	return blockVerdict(RuleEvaluator, reason, risk, alternative), true
}

// allowVerdict builds the Allow verdict for a command that passed every
// check.
func (g *Gate) allowVerdict(class verbClass) datatypes.Verdict {
	if class == classRead {
		return datatypes.Verdict{
			Decision: datatypes.DecisionAllow,
			Reason:   "read-only operation permitted",
			Risk:     datatypes.RiskLow,
		}
	}
	return datatypes.Verdict{
		Decision: datatypes.DecisionAllow,
		Reason:   fmt.Sprintf("scoped %s permitted by caller's flags", class),
		Risk:     datatypes.RiskMedium,
	}
}

// blockVerdict builds a Block verdict.
func blockVerdict(rule, reason string, risk datatypes.RiskTier, alternative *datatypes.CommandSpec) datatypes.Verdict {
	return datatypes.Verdict{
		Decision:    datatypes.DecisionBlock,
		Reason:      reason,
		Risk:        risk,
		Rule:        rule,
		Alternative: alternative,
	}
}

// valueFlags take a separate value argument. Needed to tell a flag value
// apart from a positional resource name when judging scope.
var valueFlags = map[string]struct{}{
	"-n": {}, "--namespace": {},
	"-l": {}, "--selector": {},
	"--field-selector": {},
	"-o": {}, "--output": {},
	"-f": {}, "--filename": {},
	"-c": {}, "--container": {},
	"--grace-period": {},
	"--timeout":      {},
	"--context":      {},
	"--kubeconfig":   {},
	"--since":        {},
	"--tail":         {},
	"--sort-by":      {},
	"--replicas":     {},
}

// boolFlags never take a separate value.
var boolFlags = map[string]struct{}{
	"--all": {}, "-A": {}, "--all-namespaces": {},
	"--force": {}, "--now": {}, "--wait": {},
	"--watch": {}, "-w": {},
	"--ignore-not-found": {},
	"--overwrite":        {},
	"-R":                 {}, "--recursive": {},
	"--ignore-daemonsets":    {},
	"--delete-emptydir-data": {},
}

// positionals returns the non-flag arguments after the verb.
//
// Unrecognized flags are treated as value-taking. That can swallow a
// real positional and make a scoped command look unscoped, which blocks:
// the conservative direction.
func positionals(cmd datatypes.CommandSpec) []string {
	var out []string
	for i := 2; i < len(cmd.Args); i++ {
		arg := cmd.Args[i]
		if !strings.HasPrefix(arg, "-") {
			out = append(out, arg)
			continue
		}
		if strings.Contains(arg, "=") {
			continue
		}
		if _, ok := boolFlags[arg]; ok {
			continue
		}
		if _, ok := valueFlags[arg]; ok {
			i++
			continue
		}
		// Unknown flag: assume it consumes the next argument.
		i++
	}
	return out
}

// deleteScoped reports whether a delete-class command pins its targets.
func deleteScoped(cmd datatypes.CommandSpec) bool {
	if cmd.HasFlag("-l") || cmd.HasFlag("--selector") || cmd.HasFlag("--field-selector") {
		return true
	}

	pos := positionals(cmd)

	// drain acts on node names directly: one positional is a pinned target.
	if cmd.Verb() == "drain" {
		return len(pos) >= 1
	}

	// delete needs resource/name form or an explicit name after the kind.
	for _, p := range pos {
		if strings.Contains(p, "/") {
			return true
		}
	}
	return len(pos) >= 2
}

// previewAlternative builds the read-only preview of a blocked mutation:
// the same targets, looked at instead of changed.
func (g *Gate) previewAlternative(cmd datatypes.CommandSpec) *datatypes.CommandSpec {
	if len(cmd.Args) < 2 {
		return nil
	}

	args := []string{cmd.Args[0], "get"}

	pos := positionals(cmd)
	switch {
	case cmd.Verb() == "drain" && len(pos) >= 1:
		args = append(args, "node", pos[0])
	case len(pos) > 0:
		args = append(args, pos...)
	default:
		args = append(args, "pods")
	}

	if ns, ok := cmd.FlagValue("-n"); ok {
		args = append(args, "-n", ns)
	} else if ns, ok := cmd.FlagValue("--namespace"); ok {
		args = append(args, "-n", ns)
	}
	if sel, ok := cmd.FlagValue("-l"); ok {
		args = append(args, "-l", sel)
	} else if sel, ok := cmd.FlagValue("--selector"); ok {
		args = append(args, "-l", sel)
	}
	args = append(args, "-o", "wide")

	alt := &datatypes.CommandSpec{
		Args:      args,
		Rationale: "inspect the targets before mutating them",
	}
	if v, ok := g.checkForm(*alt); !ok {
		g.logger.Warn("discarding malformed preview alternative",
			"alternative", alt.String(),
			"reason", v.Reason,
		)
		return nil
	}
	return alt
}

// Ensure Gate satisfies the loop's collaborator contract.
var _ agent.SafetyGate = (*Gate)(nil)
