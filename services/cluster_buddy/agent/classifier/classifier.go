// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package classifier provides intent classification for triage requests.
//
// The classifier maps request text to one of three intent tiers: Action
// (the operator wants a change made), Troubleshooting (the operator wants
// an incident investigated), or Informational (the operator wants to see
// cluster state). The tiers decide routing: only Troubleshooting requests
// enter the investigation loop.
package classifier

import (
	"context"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/ClusterBuddy/pkg/logging"
	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/agent"
	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/datatypes"
)

// actionKeywords match requests that ask for a change to the cluster.
// Highest priority tier: a request that both mutates and complains about
// breakage ("delete the broken pod") is an Action request.
var actionKeywords = []string{
	`\bdelete\b`,
	`\bremove\b`,
	`\bcreate\b`,
	`\bscale\b`,
	`\brestart\b`,
	`\brollback\b`,
	`\broll back\b`,
	`\bpatch\b`,
	`\bapply\b`,
	`\bdrain\b`,
	`\bcordon\b`,
	`\buncordon\b`,
	`\bexpose\b`,
	`\btaint\b`,
	`\bannotate\b`,
	`\bredeploy\b`,
}

// troubleshootingKeywords match requests that describe a fault or ask for
// an investigation.
var troubleshootingKeywords = []string{
	// Direct asks
	`\bdebug\b`,
	`\bwhy\b`,
	`\binvestigate\b`,
	`\bdiagnose\b`,
	`\btroubleshoot\b`,
	`\bfigure out\b`,
	`\broot cause\b`,

	// Symptoms
	`\bfail(s|ed|ing|ure)?\b`,
	`\berror(s)?\b`,
	`\bbroken\b`,
	`\bcrash(es|ed|ing)?\b`,
	`\bcrashloop(backoff|ing|s)?\b`,
	`\boom(killed)?\b`,
	`\bout of memory\b`,
	`\bstuck\b`,
	`\bpending\b`,
	`\bunhealthy\b`,
	`\bnot ready\b`,
	`\bnot starting\b`,
	`\bwon'?t start\b`,
	`\brestarting\b`,
	`\bimagepull(backoff)?\b`,
	`\bevicted\b`,
	`\bunreachable\b`,
	`\bdegraded\b`,
	`\bunschedulable\b`,
	`\bwrong\b`,
}

// informationalKeywords match requests that only want to see state.
// Lowest priority tier, and also the no-match default: when nothing
// matches, reading state is the only assumption that cannot hurt.
var informationalKeywords = []string{
	`\blist\b`,
	`\bshow\b`,
	`\bget\b`,
	`\bdescribe\b`,
	`\bdisplay\b`,
	`\bwhich\b`,
	`\bwho\b`,
	`\bwhat\b`,
	`\bwhere\b`,
	`\bstatus\b`,
	`\bversion\b`,
	`\bcount\b`,
	`\bhow many\b`,
	`\bexplain\b`,
}

// KeywordClassifier implements intent classification with compiled
// word-boundary patterns.
//
// Classification is pure and total: the same text always yields the same
// Intent, and every text yields one (no match defaults to Informational).
// Ambiguity between tiers is resolved by fixed priority and logged, never
// returned as an error.
//
// Thread Safety: This type is safe for concurrent use after initialization.
type KeywordClassifier struct {
	tiers  []tierMatcher
	logger *logging.Logger
}

// tierMatcher pairs a tier with its compiled keyword pattern, in priority
// order.
type tierMatcher struct {
	tier    datatypes.IntentTier
	pattern *regexp.Regexp
}

// ClassifierOption configures a KeywordClassifier.
type ClassifierOption func(*KeywordClassifier)

// WithLogger sets the logger used for ambiguity observability.
func WithLogger(logger *logging.Logger) ClassifierOption {
	return func(c *KeywordClassifier) {
		c.logger = logger
	}
}

// NewKeywordClassifier creates a classifier with compiled patterns.
//
// Description:
//
//	Compiles each tier's keyword set into a single case-insensitive regex.
//	Word boundaries keep "restart" (Action) from matching "restarting"
//	(Troubleshooting symptom); the three keyword sets are disjoint.
//
// Outputs:
//
//	*KeywordClassifier - A new classifier ready for use.
//
// Thread Safety: The returned classifier is safe for concurrent use.
func NewKeywordClassifier(opts ...ClassifierOption) *KeywordClassifier {
	c := &KeywordClassifier{
		tiers: []tierMatcher{
			{datatypes.TierAction, compileTier(actionKeywords)},
			{datatypes.TierTroubleshooting, compileTier(troubleshootingKeywords)},
			{datatypes.TierInformational, compileTier(informationalKeywords)},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.Default()
	}
	return c
}

// compileTier joins a keyword set into one case-insensitive pattern.
func compileTier(keywords []string) *regexp.Regexp {
	return regexp.MustCompile("(?i)(" + strings.Join(keywords, "|") + ")")
}

// Classify maps request text to an intent.
//
// Description:
//
//	Evaluates the three tiers in priority order (Action outranks
//	Troubleshooting outranks Informational); the first tier with any
//	keyword match wins. No match in any tier returns Informational.
//	A text matching more than one tier is marked Ambiguous and logged.
//
// Inputs:
//
//	ctx - Context for tracing. Must not be nil.
//	text - The request text. Empty text returns Informational.
//
// Outputs:
//
//	datatypes.Intent - The classified intent. Always a value, never an
//	                   error: classification is total.
//
// Example:
//
//	intent := classifier.Classify(ctx, "why is my payments pod crashlooping")
//	// intent.Tier == datatypes.TierTroubleshooting
//
// Thread Safety: This method is safe for concurrent use.
func (c *KeywordClassifier) Classify(ctx context.Context, text string) datatypes.Intent {
	if ctx == nil {
		ctx = context.Background()
	}

	_, span := otel.Tracer("classifier").Start(ctx, "classifier.KeywordClassifier.Classify",
		trace.WithAttributes(
			attribute.Int("text_length", len(text)),
		),
	)
	defer span.End()

	var matched []datatypes.IntentTier
	keywordsByTier := make(map[datatypes.IntentTier][]string, len(c.tiers))
	for _, tm := range c.tiers {
		hits := tm.pattern.FindAllString(text, -1)
		if len(hits) == 0 {
			continue
		}
		matched = append(matched, tm.tier)
		keywordsByTier[tm.tier] = normalizeKeywords(hits)
	}

	intent := datatypes.Intent{Tier: datatypes.TierInformational}
	if len(matched) > 0 {
		// Tiers are evaluated in priority order, so the first match wins.
		intent.Tier = matched[0]
		intent.Keywords = keywordsByTier[matched[0]]
		intent.Ambiguous = len(matched) > 1
	}

	span.SetAttributes(
		attribute.String("tier", intent.Tier.String()),
		attribute.Bool("ambiguous", intent.Ambiguous),
		attribute.Int("matched_tiers", len(matched)),
	)

	if intent.Ambiguous {
		tierNames := make([]string, len(matched))
		for i, tier := range matched {
			tierNames[i] = tier.String()
		}
		c.logger.Info("ambiguous query resolved by tier priority",
			"winning_tier", intent.Tier.String(),
			"matched_tiers", strings.Join(tierNames, ","),
			"keywords", strings.Join(intent.Keywords, ","),
		)
	}

	return intent
}

// normalizeKeywords lowercases and dedupes matched keywords, preserving
// first-seen order.
func normalizeKeywords(hits []string) []string {
	seen := make(map[string]struct{}, len(hits))
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		k := strings.ToLower(h)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// Ensure KeywordClassifier satisfies the loop's collaborator contract.
var _ agent.Classifier = (*KeywordClassifier)(nil)
