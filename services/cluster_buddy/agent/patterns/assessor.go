// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package patterns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/ClusterBuddy/pkg/logging"
	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/agent"
	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/datatypes"
	"github.com/AleutianAI/ClusterBuddy/services/llm"
)

const (
	assessorTimeout     = 20 * time.Second
	assessorMaxTokens   = 400
	assessorTemperature = float32(0.2)

	// assessorOutputBytes caps how much of each command's output is quoted
	// into the prompt.
	assessorOutputBytes = 2000
)

// assessorPrompt is the instruction frame. The evidence block is appended
// per call by buildAssessorPrompt.
const assessorPrompt = `You are the analysis step of a Kubernetes triage assistant. No known
failure signature matched the command output below. Form a working
hypothesis about the most likely cause.

Respond with ONLY valid JSON (no markdown, no preamble):
{"signature":"ShortCamelCaseLabel","confidence":0.4,"evidence":"the output line that supports it","remediation":"one concrete next step"}

Rules:
- "signature" is a short label for the suspected failure mode.
- "confidence" is your belief in [0,1]. Be conservative: you are reading
  partial output, not the cluster.
- Quote evidence verbatim from the output. Do not invent lines.
- Return {"signature":"","confidence":0} if the output supports no
  hypothesis at all.`

// LLMAssessor forms a working hypothesis from command output when no
// deterministic signature matched.
//
// Description:
//
//	Prompts the model with the request and the iteration's output,
//	expecting a single JSON assessment. The caller caps the returned
//	confidence; this type only guarantees it is within [0,1].
//
// Thread Safety: This type is safe for concurrent use.
type LLMAssessor struct {
	client  llm.LLMClient
	logger  *logging.Logger
	timeout time.Duration
}

// AssessorOption configures an LLMAssessor.
type AssessorOption func(*LLMAssessor)

// WithAssessorLogger sets the assessor's logger.
func WithAssessorLogger(logger *logging.Logger) AssessorOption {
	return func(a *LLMAssessor) {
		a.logger = logger
	}
}

// WithAssessorTimeout overrides the per-assessment deadline.
func WithAssessorTimeout(timeout time.Duration) AssessorOption {
	return func(a *LLMAssessor) {
		if timeout > 0 {
			a.timeout = timeout
		}
	}
}

// NewLLMAssessor creates an assessor backed by an LLM client.
//
// Inputs:
//
//	client - The model client. Must not be nil.
//	opts - Configuration options.
//
// Outputs:
//
//	*LLMAssessor - Ready-to-use assessor.
//	error - If client is nil.
func NewLLMAssessor(client llm.LLMClient, opts ...AssessorOption) (*LLMAssessor, error) {
	if client == nil {
		return nil, errors.New("llm client is required")
	}

	a := &LLMAssessor{
		client:  client,
		timeout: assessorTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logging.Default()
	}
	return a, nil
}

// Assess asks the model for a hypothesis about the iteration's output.
//
// Description:
//
//	Returns nil without error when there is nothing to assess or the
//	model declines to commit to a hypothesis. Model and parse failures
//	are errors; the caller treats them as a missing assessment, never as
//	a failed iteration.
//
// Inputs:
//
//	ctx - Context for cancellation. A per-call timeout is applied on top.
//	gc - The investigation context for this iteration.
//	results - The iteration's execution results.
//
// Outputs:
//
//	*datatypes.Finding - The assessed hypothesis, or nil.
//	error - On model failure or an unparseable response.
//
// Thread Safety: This method is safe for concurrent use.
func (a *LLMAssessor) Assess(ctx context.Context, gc datatypes.GenerationContext, results []datatypes.ExecutionResult) (*datatypes.Finding, error) {
	if len(results) == 0 {
		return nil, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := patternsTracer.Start(ctx, "patterns.LLMAssessor.Assess",
		trace.WithAttributes(
			attribute.Int("iteration", gc.Iteration),
			attribute.Int("result_count", len(results)),
		),
	)
	defer span.End()

	actx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	temperature := assessorTemperature
	maxTokens := assessorMaxTokens
	response, err := a.client.Generate(actx, buildAssessorPrompt(gc, results), llm.GenerationParams{
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("assess via %s: %w", a.client.Name(), err)
	}

	finding, err := parseAssessment(response)
	if err != nil {
		a.logger.Warn("malformed assessment response", "error", err.Error())
		return nil, err
	}
	if finding != nil {
		span.SetAttributes(
			attribute.String("signature", finding.Signature),
			attribute.Float64("confidence", finding.Confidence),
		)
	}
	return finding, nil
}

// buildAssessorPrompt renders the instruction frame plus the evidence block.
func buildAssessorPrompt(gc datatypes.GenerationContext, results []datatypes.ExecutionResult) string {
	var b strings.Builder
	b.WriteString(assessorPrompt)

	b.WriteString("\n\nRequest: ")
	b.WriteString(gc.Query)
	fmt.Fprintf(&b, "\nNamespace: %s", gc.Namespace)
	if gc.Hypothesis != nil {
		fmt.Fprintf(&b, "\nPrior hypothesis: %s (confidence %.2f)", gc.Hypothesis.Signature, gc.Hypothesis.Confidence)
	}

	b.WriteString("\n\nCommand output:")
	for _, res := range results {
		fmt.Fprintf(&b, "\n$ %s (exit %d)\n", res.Command.String(), res.ExitCode)
		out := strings.TrimSpace(res.CombinedOutput())
		if out == "" {
			b.WriteString("(no output)\n")
			continue
		}
		if len(out) > assessorOutputBytes {
			out = out[:assessorOutputBytes] + "..."
		}
		b.WriteString(out)
		b.WriteString("\n")
	}
	return b.String()
}

// wireAssessment is the JSON shape the model is asked to produce.
type wireAssessment struct {
	Signature   string  `json:"signature"`
	Confidence  float64 `json:"confidence"`
	Evidence    string  `json:"evidence"`
	Remediation string  `json:"remediation"`
}

// parseAssessment extracts the assessment from a model response. A
// declined assessment (empty signature or zero confidence) parses to nil.
func parseAssessment(response string) (*datatypes.Finding, error) {
	raw := strings.TrimSpace(response)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("no JSON object in response: %.100s", raw)
	}

	var wire wireAssessment
	if err := json.Unmarshal([]byte(raw[start:end+1]), &wire); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	wire.Signature = strings.TrimSpace(wire.Signature)
	if wire.Signature == "" || wire.Confidence <= 0 {
		return nil, nil
	}
	if wire.Confidence > 1 {
		wire.Confidence = 1
	}

	return &datatypes.Finding{
		Signature:   wire.Signature,
		Confidence:  wire.Confidence,
		Evidence:    strings.TrimSpace(wire.Evidence),
		Remediation: strings.TrimSpace(wire.Remediation),
	}, nil
}

var _ agent.Assessor = (*LLMAssessor)(nil)
