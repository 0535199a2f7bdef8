// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cluster_buddy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/agent"
	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/datatypes"
	"github.com/AleutianAI/ClusterBuddy/services/llm"
)

// summarizerPromptTemplate asks for a short operator-facing narrative.
// The model sees only the audit trail, never raw cluster credentials.
const summarizerPromptTemplate = `You are the reporting step of a Kubernetes triage assistant.

An automated investigation just finished. Write a short summary for the
operator who asked the original question. 2 to 4 plain sentences, no
markdown, no headings. State what was found, how certain the finding is,
and what to do next. If nothing conclusive was found, say so directly.

Original question: %s
Namespace: %s
Outcome: %s
Iterations used: %d
%s
Summary:`

// summarizerDefaults bound one summarization call.
const (
	summarizerTimeout     = 20 * time.Second
	summarizerMaxTokens   = 300
	summarizerTemperature = float32(0.3)
)

// LLMSummarizer renders investigation results into operator-facing prose.
//
// Description:
//
//	Implements agent.Summarizer on top of an llm.LLMClient. The
//	orchestrator treats summarizer failure as non-fatal and falls back
//	to its deterministic summary, so this type reports errors rather
//	than retrying.
//
// Thread Safety: LLMSummarizer is safe for concurrent use.
type LLMSummarizer struct {
	client  llm.LLMClient
	timeout time.Duration
}

// SummarizerOption configures an LLMSummarizer.
type SummarizerOption func(*LLMSummarizer)

// WithSummarizerTimeout bounds one summarization call.
func WithSummarizerTimeout(d time.Duration) SummarizerOption {
	return func(s *LLMSummarizer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewLLMSummarizer creates a summarizer backed by the given client.
//
// Inputs:
//
//	client - LLM backend. Must not be nil.
//	opts - Configuration options.
//
// Outputs:
//
//	*LLMSummarizer - Ready-to-use summarizer.
//	error - Non-nil when client is nil.
func NewLLMSummarizer(client llm.LLMClient, opts ...SummarizerOption) (*LLMSummarizer, error) {
	if client == nil {
		return nil, errors.New("llm client is required")
	}
	s := &LLMSummarizer{
		client:  client,
		timeout: summarizerTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Summarize implements agent.Summarizer.
//
// Description:
//
//	Builds a compact prompt from the investigation outcome and asks
//	the model for a short narrative. Blank model output is reported as
//	an error so the caller falls back to its deterministic summary.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	req - The original triage request.
//	result - The finished investigation.
//
// Outputs:
//
//	string - The summary text.
//	error - Non-nil when the model call fails or returns nothing.
//
// Thread Safety: Safe for concurrent use.
func (s *LLMSummarizer) Summarize(ctx context.Context, req datatypes.TriageRequest, result *agent.TriageResult) (string, error) {
	if result == nil {
		return "", errors.New("nil result")
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	prompt := fmt.Sprintf(summarizerPromptTemplate,
		req.Query,
		req.Namespace,
		result.State.String(),
		result.Iterations,
		describeOutcome(result),
	)

	temperature := summarizerTemperature
	maxTokens := summarizerMaxTokens
	response, err := s.client.Generate(reqCtx, prompt, llm.GenerationParams{
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("summarize via %s: %w", s.client.Name(), err)
	}

	summary := strings.TrimSpace(response)
	if summary == "" {
		return "", errors.New("model returned an empty summary")
	}
	return summary, nil
}

// describeOutcome renders the evidence block of the summarizer prompt.
func describeOutcome(result *agent.TriageResult) string {
	var b strings.Builder

	if result.Hypothesis != nil {
		fmt.Fprintf(&b, "Best hypothesis: %s (confidence %.2f)\n", result.Hypothesis.Signature, result.Hypothesis.Confidence)
		if result.Hypothesis.Evidence != "" {
			fmt.Fprintf(&b, "Evidence: %s\n", truncateForPrompt(result.Hypothesis.Evidence, 400))
		}
		if result.Hypothesis.Remediation != "" {
			fmt.Fprintf(&b, "Suggested remediation: %s\n", result.Hypothesis.Remediation)
		}
	} else {
		b.WriteString("No root-cause hypothesis was established.\n")
	}

	if result.Error != nil {
		fmt.Fprintf(&b, "Failure: %s (%s)\n", result.Error.Message, result.Error.Code)
	}

	for _, rec := range result.Trail {
		for _, res := range rec.Results {
			fmt.Fprintf(&b, "Ran: %s\n", res.Command.String())
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// truncateForPrompt caps a string for prompt inclusion.
func truncateForPrompt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
