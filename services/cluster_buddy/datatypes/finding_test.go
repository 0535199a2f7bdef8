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

import "testing"

func TestBestFinding_Empty(t *testing.T) {
	if got := BestFinding(nil); got != nil {
		t.Errorf("BestFinding(nil) = %+v, want nil", got)
	}
	if got := BestFinding([]Finding{}); got != nil {
		t.Errorf("BestFinding(empty) = %+v, want nil", got)
	}
}

func TestBestFinding_HighestWins(t *testing.T) {
	findings := []Finding{
		{Signature: "ProbeFailure", Confidence: 0.75},
		{Signature: "OOMKilled", Confidence: 0.95},
		{Signature: "Evicted", Confidence: 0.80},
	}

	best := BestFinding(findings)
	if best == nil || best.Signature != "OOMKilled" {
		t.Fatalf("best = %+v, want OOMKilled", best)
	}
}

func TestBestFinding_TiesKeepEarliest(t *testing.T) {
	findings := []Finding{
		{Signature: "OOMKilled", Confidence: 0.95},
		{Signature: "ImagePullBackOff", Confidence: 0.95},
	}

	best := BestFinding(findings)
	if best == nil || best.Signature != "OOMKilled" {
		t.Fatalf("best = %+v, want the earlier OOMKilled", best)
	}
}
