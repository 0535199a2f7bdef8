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

// Finding sources.
const (
	// FindingSourceSignature marks findings produced by a deterministic
	// fault-signature match. Authoritative.
	FindingSourceSignature = "signature"

	// FindingSourceAssessed marks findings produced by model assessment
	// when no signature matched. Their confidence is capped below the
	// signature ceiling so unstructured reasoning can never outrank a
	// deterministic match.
	FindingSourceAssessed = "assessed"
)

// Finding is one piece of evidence extracted from diagnostic output.
//
// # Fields
//
//   - Signature: Name of the matched fault signature ("OOMKilled",
//     "CrashLoopBackOff", ...) or a short hypothesis label for assessed
//     findings.
//   - Confidence: Certainty in [0,1] that this is the root cause.
//   - Evidence: Excerpt of the output that triggered the match.
//   - Remediation: Suggested next step, when the signature registry has one.
//   - CommandIndex: Index of the command whose output produced this finding,
//     within its iteration.
//   - Source: FindingSourceSignature or FindingSourceAssessed.
type Finding struct {
	Signature    string  `json:"signature"`
	Confidence   float64 `json:"confidence"`
	Evidence     string  `json:"evidence,omitempty"`
	Remediation  string  `json:"remediation,omitempty"`
	CommandIndex int     `json:"command_index"`
	Source       string  `json:"source,omitempty"`
}

// BestFinding returns the finding with the highest confidence, or nil when
// the list is empty. Ties keep the earliest finding so merge order stays
// deterministic.
func BestFinding(findings []Finding) *Finding {
	var best *Finding
	for i := range findings {
		if best == nil || findings[i].Confidence > best.Confidence {
			best = &findings[i]
		}
	}
	return best
}
