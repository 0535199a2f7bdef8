// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package safety

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/datatypes"
	"github.com/AleutianAI/ClusterBuddy/services/llm"
)

// Assessment is an evaluator's judgment of one command.
type Assessment struct {
	// Safe is false when the evaluator vetoes the command.
	Safe bool

	// Reason explains the judgment in one sentence.
	Reason string

	// Risk is the evaluator's risk tier. Empty means unrated.
	Risk datatypes.RiskTier

	// Alternative is an optional narrower command to suggest instead.
	// Advisory only: it is re-checked by the gate before being surfaced.
	Alternative *datatypes.CommandSpec
}

// Evaluator second-guesses commands the deterministic rules allowed.
//
// An evaluator can only veto. Errors mean "no opinion": the gate keeps
// its deterministic decision and logs the failure.
type Evaluator interface {
	Assess(ctx context.Context, cmd datatypes.CommandSpec, perms datatypes.Permissions, intent datatypes.Intent) (*Assessment, error)
}

// evaluatorPrompt frames the model as a reviewer of one already-permitted
// mutation. The command arrives as an argument vector, never a shell
// string, and the model must answer in bare JSON.
const evaluatorPrompt = `You are a Kubernetes operations reviewer. A triage agent wants to run
one kubectl command. Deterministic policy checks have already passed;
your job is to catch commands that are technically permitted but
operationally unwise (wrong blast radius, destructive side effects the
request does not call for, targets that look like control-plane or
system components).

Command (argument vector): %s
Command rationale: %s
Caller permissions: %s
Request intent tier: %s

Respond with ONLY valid JSON (no markdown, no preamble):
{"safe":bool,"reason":"one sentence","risk":"low|medium|high","alternative":["kubectl","..."]}

Set "safe" to false only when you would stop a colleague from running
this command. Omit "alternative" or use [] when you have no better
suggestion.`

// EvaluatorConfig configures the LLM evaluator.
type EvaluatorConfig struct {
	// Timeout bounds a single model call.
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// RetryBackoff is the base backoff, doubled each retry.
	RetryBackoff time.Duration

	// MaxConcurrent limits in-flight model calls. Zero disables the limit.
	MaxConcurrent int

	// Temperature for generation. Low values keep judgments stable.
	Temperature float32

	// MaxTokens bounds the response length.
	MaxTokens int
}

// DefaultEvaluatorConfig returns production defaults.
func DefaultEvaluatorConfig() EvaluatorConfig {
	return EvaluatorConfig{
		Timeout:       20 * time.Second,
		MaxRetries:    2,
		RetryBackoff:  500 * time.Millisecond,
		MaxConcurrent: 4,
		Temperature:   0.1,
		MaxTokens:     300,
	}
}

// Validate checks the configuration for invalid values.
func (c EvaluatorConfig) Validate() error {
	var errs []string
	if c.Timeout <= 0 {
		errs = append(errs, "Timeout must be positive")
	}
	if c.MaxRetries < 0 {
		errs = append(errs, "MaxRetries must not be negative")
	}
	if c.RetryBackoff < 0 {
		errs = append(errs, "RetryBackoff must not be negative")
	}
	if c.MaxConcurrent < 0 {
		errs = append(errs, "MaxConcurrent must not be negative")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, "Temperature must be between 0 and 2")
	}
	if c.MaxTokens <= 0 {
		errs = append(errs, "MaxTokens must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid evaluator config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// LLMEvaluator implements Evaluator with a model backend.
//
// Description:
//
//	Sends one already-permitted command per call, with permission and
//	intent context, and parses a JSON verdict. Identical in-flight
//	requests are coalesced, transient failures retried with exponential
//	backoff, and concurrency capped.
//
// Thread Safety: This type is safe for concurrent use after initialization.
type LLMEvaluator struct {
	client    llm.LLMClient
	config    EvaluatorConfig
	inflight  singleflight.Group
	semaphore chan struct{}
}

// NewLLMEvaluator creates an evaluator backed by the given client.
//
// Inputs:
//
//	client - Model client. Must not be nil.
//	config - Evaluator configuration. Will be validated.
//
// Outputs:
//
//	*LLMEvaluator - Ready-to-use evaluator.
//	error - If client is nil or config invalid.
func NewLLMEvaluator(client llm.LLMClient, config EvaluatorConfig) (*LLMEvaluator, error) {
	if client == nil {
		return nil, errors.New("client must not be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var semaphore chan struct{}
	if config.MaxConcurrent > 0 {
		semaphore = make(chan struct{}, config.MaxConcurrent)
	}

	return &LLMEvaluator{
		client:    client,
		config:    config,
		semaphore: semaphore,
	}, nil
}

// Assess judges one command.
//
// Outputs:
//
//	*Assessment - The model's judgment.
//	error - On model failure, timeout, or an unparseable response. The
//	        caller treats any error as "no opinion".
//
// Thread Safety: This method is safe for concurrent use.
func (e *LLMEvaluator) Assess(ctx context.Context, cmd datatypes.CommandSpec, perms datatypes.Permissions, intent datatypes.Intent) (*Assessment, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := otel.Tracer("safety").Start(ctx, "safety.LLMEvaluator.Assess",
		trace.WithAttributes(
			attribute.String("command", cmd.String()),
			attribute.String("intent_tier", intent.Tier.String()),
		),
	)
	defer span.End()

	key := assessKey(cmd, perms, intent)
	resultInterface, err, _ := e.inflight.Do(key, func() (interface{}, error) {
		return e.assessWithRetry(ctx, cmd, perms, intent)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "assessment failed")
		return nil, err
	}

	assessment := resultInterface.(*Assessment)
	span.SetAttributes(
		attribute.Bool("safe", assessment.Safe),
		attribute.String("risk", string(assessment.Risk)),
	)
	return assessment, nil
}

// assessWithRetry performs assessment with retry logic.
func (e *LLMEvaluator) assessWithRetry(ctx context.Context, cmd datatypes.CommandSpec, perms datatypes.Permissions, intent datatypes.Intent) (*Assessment, error) {
	var lastErr error

	for attempt := 0; attempt <= e.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := e.config.RetryBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		assessment, err := e.doAssess(ctx, cmd, perms, intent)
		if err == nil {
			return assessment, nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("assessment failed after %d attempts: %w", e.config.MaxRetries+1, lastErr)
}

// doAssess performs a single model call.
func (e *LLMEvaluator) doAssess(ctx context.Context, cmd datatypes.CommandSpec, perms datatypes.Permissions, intent datatypes.Intent) (*Assessment, error) {
	if e.semaphore != nil {
		select {
		case e.semaphore <- struct{}{}:
			defer func() { <-e.semaphore }()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	prompt := fmt.Sprintf(evaluatorPrompt,
		cmd.String(),
		orUnstated(cmd.Rationale),
		describePermissions(perms),
		intent.Tier,
	)

	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	temperature := e.config.Temperature
	maxTokens := e.config.MaxTokens
	response, err := e.client.Generate(reqCtx, prompt, llm.GenerationParams{
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("model call: %w", err)
	}

	assessment, err := parseAssessment(response)
	if err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return assessment, nil
}

// wireAssessment is the JSON shape the model is asked to produce. Safe is
// a pointer so a missing field reads as malformed rather than a veto.
type wireAssessment struct {
	Safe        *bool    `json:"safe"`
	Reason      string   `json:"reason"`
	Risk        string   `json:"risk"`
	Alternative []string `json:"alternative"`
}

// parseAssessment extracts the JSON verdict from a model response.
//
// Models wrap JSON in markdown fences or preamble despite instructions,
// so extraction finds the outermost braces rather than trusting the raw
// string.
func parseAssessment(response string) (*Assessment, error) {
	raw := strings.TrimSpace(response)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end <= start {
		return nil, errors.New("no JSON object in response")
	}

	var wire wireAssessment
	if err := json.Unmarshal([]byte(raw[start:end+1]), &wire); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	if wire.Safe == nil {
		return nil, errors.New("response missing required field \"safe\"")
	}

	assessment := &Assessment{
		Safe:   *wire.Safe,
		Reason: strings.TrimSpace(wire.Reason),
		Risk:   parseRiskTier(wire.Risk),
	}
	if len(wire.Alternative) > 0 {
		assessment.Alternative = &datatypes.CommandSpec{
			Args:      wire.Alternative,
			Rationale: "suggested by safety evaluator",
		}
	}
	return assessment, nil
}

// parseRiskTier normalizes the model's risk string. Unknown values read
// as high: an evaluator that cannot rate risk should not lower it.
func parseRiskTier(s string) datatypes.RiskTier {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return datatypes.RiskLow
	case "medium":
		return datatypes.RiskMedium
	case "high":
		return datatypes.RiskHigh
	case "":
		return ""
	default:
		return datatypes.RiskHigh
	}
}

// describePermissions renders permission flags for the prompt.
func describePermissions(perms datatypes.Permissions) string {
	if perms.ReadOnly {
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

func orUnstated(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none given)"
	}
	return s
}

// assessKey builds the coalescing key for identical in-flight requests.
func assessKey(cmd datatypes.CommandSpec, perms datatypes.Permissions, intent datatypes.Intent) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%v|%v|%v|%v|%s",
		cmd.String(), perms.ReadOnly, perms.AllowCreate, perms.AllowUpdate, perms.AllowDelete, intent.Tier)
	return hex.EncodeToString(h.Sum(nil))
}

var _ Evaluator = (*LLMEvaluator)(nil)
