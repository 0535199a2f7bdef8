// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package generator proposes candidate kubectl commands for one iteration.
//
// Generator output is never trusted: model text is parsed into argument
// vectors, schema-validated, capped, and then safety gated by the caller.
// Nothing the model writes can execute directly. A malformed response
// earns exactly one stricter regeneration attempt before the iteration
// proceeds without candidates.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/ClusterBuddy/pkg/logging"
	"github.com/AleutianAI/ClusterBuddy/pkg/validation"
	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/agent"
	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/datatypes"
	"github.com/AleutianAI/ClusterBuddy/services/llm"
)

var tracer = otel.Tracer("generator")

// DefaultMaxCommands bounds candidates when the context does not say.
const DefaultMaxCommands = 5

// GeneratorConfig configures the LLM generator.
type GeneratorConfig struct {
	// Temperature for generation. Kept low so candidate sets stay stable
	// across retries of the same context.
	Temperature float32

	// MaxTokens bounds the response length.
	MaxTokens int

	// RequestsPerSecond throttles model calls. Zero disables throttling.
	RequestsPerSecond float64

	// Burst is the token-bucket burst size when throttling is enabled.
	Burst int

	// MaxRegenerations is how many times a malformed response is retried
	// with a stricter prompt before giving up.
	MaxRegenerations int
}

// DefaultGeneratorConfig returns production defaults.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Temperature:       0.2,
		MaxTokens:         800,
		RequestsPerSecond: 1,
		Burst:             2,
		MaxRegenerations:  1,
	}
}

// Validate checks the configuration for invalid values.
func (c GeneratorConfig) Validate() error {
	var errs []string
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, "Temperature must be between 0 and 2")
	}
	if c.MaxTokens <= 0 {
		errs = append(errs, "MaxTokens must be positive")
	}
	if c.RequestsPerSecond < 0 {
		errs = append(errs, "RequestsPerSecond must not be negative")
	}
	if c.RequestsPerSecond > 0 && c.Burst <= 0 {
		errs = append(errs, "Burst must be positive when throttling is enabled")
	}
	if c.MaxRegenerations < 0 {
		errs = append(errs, "MaxRegenerations must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid generator config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// LLMGenerator implements command generation with a model backend.
//
// Thread Safety: This type is safe for concurrent use after initialization.
type LLMGenerator struct {
	client  llm.LLMClient
	config  GeneratorConfig
	limiter *rate.Limiter
	logger  *logging.Logger
}

// GeneratorOption configures an LLMGenerator.
type GeneratorOption func(*LLMGenerator)

// WithLogger sets the generator's logger.
func WithLogger(logger *logging.Logger) GeneratorOption {
	return func(g *LLMGenerator) {
		g.logger = logger
	}
}

// NewLLMGenerator creates a generator backed by the given client.
//
// Inputs:
//
//	client - Model client. Must not be nil.
//	config - Generator configuration. Will be validated.
//	opts - Configuration options.
//
// Outputs:
//
//	*LLMGenerator - Ready-to-use generator.
//	error - If client is nil or config invalid.
func NewLLMGenerator(client llm.LLMClient, config GeneratorConfig, opts ...GeneratorOption) (*LLMGenerator, error) {
	if client == nil {
		return nil, errors.New("client must not be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	g := &LLMGenerator{
		client: client,
		config: config,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = logging.Default()
	}
	if config.RequestsPerSecond > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst)
	}

	return g, nil
}

// Generate proposes candidate commands for the given context.
//
// Description:
//
//	Builds a prompt from the investigation context, calls the model, and
//	parses the response into command specs. A response with no JSON or a
//	broken schema triggers one stricter regeneration; a second failure is
//	an error the caller absorbs (the iteration proceeds on its fallback).
//	An empty candidate list is a valid answer, not an error.
//
// Inputs:
//
//	ctx - Context for cancellation and timeout. The caller owns the
//	      generation deadline.
//	gc - The investigation context for this iteration.
//
// Outputs:
//
//	[]datatypes.CommandSpec - Parsed candidates, possibly empty, capped
//	                          at gc.MaxCommands.
//	error - On model failure or a response that stayed malformed after
//	        regeneration.
//
// Thread Safety: This method is safe for concurrent use.
func (g *LLMGenerator) Generate(ctx context.Context, gc datatypes.GenerationContext) ([]datatypes.CommandSpec, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := tracer.Start(ctx, "generator.LLMGenerator.Generate",
		attributeIteration(gc),
	)
	defer span.End()

	if err := g.waitRateLimit(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	maxCommands := gc.MaxCommands
	if maxCommands <= 0 {
		maxCommands = DefaultMaxCommands
	}

	prompt := buildPrompt(gc, maxCommands)

	startTime := time.Now()
	var lastParseErr error
	for attempt := 0; attempt <= g.config.MaxRegenerations; attempt++ {
		if attempt > 0 {
			prompt = prompt + "\n\n" + regenerationSuffix
		}

		temperature := g.config.Temperature
		maxTokens := g.config.MaxTokens
		response, err := g.client.Generate(ctx, prompt, llm.GenerationParams{
			Temperature: &temperature,
			MaxTokens:   &maxTokens,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "model call failed")
			return nil, fmt.Errorf("generation call: %w", err)
		}

		specs, perr := parseCommands(response, maxCommands)
		if perr == nil {
			span.SetAttributes(
				attribute.Int("candidate_count", len(specs)),
				attribute.Int("attempts", attempt+1),
				attribute.Int64("duration_ms", time.Since(startTime).Milliseconds()),
			)
			return specs, nil
		}

		lastParseErr = perr
		g.logger.Warn("malformed generator response",
			"attempt", attempt+1,
			"error", perr.Error(),
		)
	}

	span.SetStatus(codes.Error, "malformed after regeneration")
	return nil, fmt.Errorf("%w: %v", agent.ErrMalformedCandidates, lastParseErr)
}

func (g *LLMGenerator) waitRateLimit(ctx context.Context) error {
	if g.limiter == nil {
		return nil
	}
	return g.limiter.Wait(ctx)
}

func attributeIteration(gc datatypes.GenerationContext) trace.SpanStartOption {
	return trace.WithAttributes(
		attribute.Int("iteration", gc.Iteration),
		attribute.String("namespace", gc.Namespace),
		attribute.String("intent_tier", gc.Intent.Tier.String()),
	)
}

// generatorPrompt is the instruction frame. The context block is appended
// per call by buildPrompt.
const generatorPrompt = `You are a Kubernetes triage assistant. Propose the kubectl commands
that best advance the investigation described below.

Respond with ONLY valid JSON (no markdown, no preamble):
{"commands":[{"cmd":["kubectl","get","pods","-n","default"],"reason":"why this command"}]}

Rules:
- "cmd" is an argument vector: every flag and every value is its own
  array element. Never join arguments with spaces.
- Only kubectl. No shell operators, pipes, redirects, or substitutions.
- At most %d commands, most informative first.
- Prefer read-only diagnostics (get, describe, logs, events, top).
- Propose a mutating command only when the request explicitly asks for a
  change AND the listed permissions allow that kind of mutation.
- Never propose interactive commands (exec, attach, edit, port-forward).
- Do not repeat commands already executed.
- Return {"commands":[]} if no further command would help.`

const regenerationSuffix = `Your previous response was not valid JSON in the required schema.
Respond again with ONLY the JSON object, nothing else.`

// buildPrompt renders the instruction frame plus the context block.
func buildPrompt(gc datatypes.GenerationContext, maxCommands int) string {
	var b strings.Builder
	fmt.Fprintf(&b, generatorPrompt, maxCommands)

	b.WriteString("\n\nRequest: ")
	b.WriteString(gc.Query)
	fmt.Fprintf(&b, "\nIntent tier: %s", gc.Intent.Tier)
	fmt.Fprintf(&b, "\nNamespace: %s", gc.Namespace)
	if gc.Target != "" {
		fmt.Fprintf(&b, "\nTarget resource: %s", gc.Target)
	}
	fmt.Fprintf(&b, "\nPermissions: %s", renderPermissions(gc.Permissions))
	fmt.Fprintf(&b, "\nIteration: %d", gc.Iteration)

	if gc.Hypothesis != nil {
		fmt.Fprintf(&b, "\nCurrent hypothesis: %s (confidence %.2f)", gc.Hypothesis.Signature, gc.Hypothesis.Confidence)
	}
	if len(gc.PriorFindings) > 0 {
		b.WriteString("\nEvidence so far:")
		for _, f := range gc.PriorFindings {
			fmt.Fprintf(&b, "\n- %s: %s", f.Signature, f.Evidence)
		}
	}
	if len(gc.PriorCommands) > 0 {
		b.WriteString("\nAlready executed (do not repeat):")
		for _, c := range gc.PriorCommands {
			fmt.Fprintf(&b, "\n- %s", c.String())
		}
	}
	if len(gc.Hints) > 0 {
		b.WriteString("\nCluster context:")
		for _, h := range gc.Hints {
			fmt.Fprintf(&b, "\n- %s", h)
		}
	}

	return b.String()
}

// renderPermissions describes mutation flags for the prompt.
func renderPermissions(perms datatypes.Permissions) string {
	if perms.ReadOnly || !perms.AllowsAnyMutation() {
		return "read-only"
	}
	parts := []string{"read"}
	if perms.AllowCreate {
		parts = append(parts, "create")
	}
	if perms.AllowUpdate {
		parts = append(parts, "update")
	}
	if perms.AllowDelete {
		parts = append(parts, "delete")
	}
	return strings.Join(parts, ", ")
}

// wireCommands is the JSON shape the model is asked to produce.
type wireCommands struct {
	Commands []struct {
		Cmd    []string `json:"cmd"`
		Reason string   `json:"reason"`
	} `json:"commands"`
}

// parseCommands extracts command specs from a model response.
//
// The response is cleaned of markdown fences and surrounding prose before
// unmarshaling. Individual entries with empty or space-joined vectors are
// dropped rather than failing the whole batch; a response without the
// required shape is an error.
func parseCommands(response string, maxCommands int) ([]datatypes.CommandSpec, error) {
	raw := strings.TrimSpace(response)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("no JSON object in response: %s", truncate(raw, 100))
	}

	var wire wireCommands
	if err := json.Unmarshal([]byte(raw[start:end+1]), &wire); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	if wire.Commands == nil {
		return nil, errors.New("response missing required field \"commands\"")
	}

	specs := make([]datatypes.CommandSpec, 0, len(wire.Commands))
	for _, entry := range wire.Commands {
		args := make([]string, 0, len(entry.Cmd))
		joined := false
		for _, arg := range entry.Cmd {
			arg = strings.TrimSpace(arg)
			if arg == "" {
				continue
			}
			if strings.ContainsAny(arg, " \t") {
				joined = true
				break
			}
			args = append(args, arg)
		}
		if joined || len(args) == 0 {
			continue
		}
		specs = append(specs, datatypes.CommandSpec{
			Args:      args,
			Rationale: strings.TrimSpace(entry.Reason),
		})
		if len(specs) == maxCommands {
			break
		}
	}
	return specs, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// FallbackCommands is the deterministic last resort when generation
// yields nothing. Each miss earns exactly one read-only command, in two
// phases: the first miss lists pods that are not running; once that
// table sits in the trail, the next miss describes the first listed pod
// instead of listing again. Describe output carries the waiting and
// terminated reasons the signature analyzer matches on.
// Matches agent.FallbackFunc.
func FallbackCommands(namespace string, prior []datatypes.ExecutionResult) ([]datatypes.CommandSpec, bool) {
	if namespace == "" {
		namespace = datatypes.DefaultNamespace
	}
	if name, ok := firstPodFromTable(prior); ok {
		return []datatypes.CommandSpec{{
			Args:      []string{"kubectl", "describe", "pod", name, "-n", namespace},
			Rationale: fmt.Sprintf("inspect status and events of pod %s", name),
		}}, true
	}
	return []datatypes.CommandSpec{{
		Args: []string{
			"kubectl", "get", "pods",
			"-n", namespace,
			"--field-selector=status.phase!=Running",
			"-o", "wide",
		},
		Rationale: "list pods that are not running",
	}}, true
}

// firstPodFromTable pulls the first pod name out of kubectl table output
// in prior results. Data rows start with a lowercase RFC 1123 name, which
// naturally skips the NAME header and "No resources found" notices.
func firstPodFromTable(prior []datatypes.ExecutionResult) (string, bool) {
	for _, res := range prior {
		if res.Failed() || res.ExitCode != 0 {
			continue
		}
		for _, line := range strings.Split(res.Stdout, "\n") {
			fields := strings.Fields(line)
			if len(fields) < 2 {
				continue
			}
			if validation.ValidateResourceName(fields[0]) == nil {
				return fields[0], true
			}
		}
	}
	return "", false
}

var (
	_ agent.Generator    = (*LLMGenerator)(nil)
	_ agent.FallbackFunc = FallbackCommands
)
