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

// IntentTier is the coarse classification of a request.
//
// Tiers form a strict priority order: Action outranks Troubleshooting,
// which outranks Informational. When a query matches keywords from more
// than one tier, the highest-priority tier wins.
type IntentTier string

const (
	// TierAction covers requests that ask for a mutation (delete, scale,
	// restart, ...). Highest priority: a destructive request must never be
	// downgraded by incidental word order.
	TierAction IntentTier = "action"

	// TierTroubleshooting covers diagnostic requests (why is X failing,
	// debug Y, ...). Routes into the iterative investigation loop.
	TierTroubleshooting IntentTier = "troubleshooting"

	// TierInformational covers plain lookups (list, show, describe, ...).
	// Also the default when nothing matches: never silently assume
	// destructive intent.
	TierInformational IntentTier = "informational"
)

// String returns the tier name.
func (t IntentTier) String() string {
	return string(t)
}

// Priority returns the tier's rank for tie-breaking. Higher wins.
func (t IntentTier) Priority() int {
	switch t {
	case TierAction:
		return 3
	case TierTroubleshooting:
		return 2
	case TierInformational:
		return 1
	default:
		return 0
	}
}

// AllTiers returns the tiers in priority order, highest first.
func AllTiers() []IntentTier {
	return []IntentTier{TierAction, TierTroubleshooting, TierInformational}
}

// Intent is the classified intent of one request.
//
// Derived exactly once per request and never recomputed mid-session.
//
// # Fields
//
//   - Tier: The winning tier.
//   - Keywords: The keywords that matched the winning tier, for logging.
//   - Ambiguous: True when keywords from more than one tier matched.
//     Ambiguity is resolved by tier priority and logged; it is never an error.
type Intent struct {
	Tier      IntentTier `json:"tier"`
	Keywords  []string   `json:"keywords,omitempty"`
	Ambiguous bool       `json:"ambiguous,omitempty"`
}
