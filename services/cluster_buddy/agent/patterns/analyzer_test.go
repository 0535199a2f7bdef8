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
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/datatypes"
)

const describeOOMKilled = `Name:         web-0
Namespace:    prod
Containers:
  app:
    Last State:     Terminated
      Reason:       OOMKilled
      Exit Code:    137
    Restart Count:  4
`

const getPodsImagePull = `NAME     READY   STATUS             RESTARTS   AGE
web-0    0/1     ImagePullBackOff   0          5m
`

const eventsUnschedulable = `LAST SEEN   TYPE      REASON             OBJECT      MESSAGE
2m          Warning   FailedScheduling   pod/web-0   0/3 nodes are available: 3 Insufficient memory.
`

func newTestAnalyzer(t *testing.T) *SignatureAnalyzer {
	t.Helper()
	analyzer, err := NewSignatureAnalyzer()
	if err != nil {
		t.Fatalf("NewSignatureAnalyzer failed: %v", err)
	}
	return analyzer
}

// TestSignatureAnalyzer_Analyze covers single-signature matches.
func TestSignatureAnalyzer_Analyze(t *testing.T) {
	analyzer := newTestAnalyzer(t)

	tests := []struct {
		name           string
		results        []datatypes.ExecutionResult
		wantSignature  string
		wantConfidence float64
	}{
		{
			name: "OOMKilled from describe output",
			results: []datatypes.ExecutionResult{
				{Index: 0, Stdout: describeOOMKilled},
			},
			wantSignature:  "OOMKilled",
			wantConfidence: 0.95,
		},
		{
			name: "image pull backoff from pod listing",
			results: []datatypes.ExecutionResult{
				{Index: 0, Stdout: getPodsImagePull},
			},
			wantSignature:  "ImagePullBackOff",
			wantConfidence: 0.95,
		},
		{
			name: "crash loop from a failed command's stderr",
			results: []datatypes.ExecutionResult{
				{Index: 1, Stderr: "Error from server: container is in CrashLoopBackOff", Error: "exit status 1", ExitCode: 1},
			},
			wantSignature:  "CrashLoopBackOff",
			wantConfidence: 0.90,
		},
		{
			name: "unschedulable from events",
			results: []datatypes.ExecutionResult{
				{Index: 2, Stdout: eventsUnschedulable},
			},
			wantSignature:  "Unschedulable",
			wantConfidence: 0.85,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings := analyzer.Analyze(context.Background(), tt.results)
			if len(findings) == 0 {
				t.Fatalf("expected a finding")
			}

			best := datatypes.BestFinding(findings)
			if best.Signature != tt.wantSignature {
				t.Errorf("Signature = %q, want %q", best.Signature, tt.wantSignature)
			}
			if best.Confidence != tt.wantConfidence {
				t.Errorf("Confidence = %v, want %v", best.Confidence, tt.wantConfidence)
			}
			if best.Source != datatypes.FindingSourceSignature {
				t.Errorf("Source = %q, want %q", best.Source, datatypes.FindingSourceSignature)
			}
			if best.Evidence == "" {
				t.Error("Evidence is empty")
			}
			if best.Remediation == "" {
				t.Error("Remediation is empty")
			}
			if best.CommandIndex != tt.results[0].Index {
				t.Errorf("CommandIndex = %d, want %d", best.CommandIndex, tt.results[0].Index)
			}
		})
	}
}

// TestSignatureAnalyzer_Analyze_NoMatch verifies healthy output produces
// no findings.
func TestSignatureAnalyzer_Analyze_NoMatch(t *testing.T) {
	analyzer := newTestAnalyzer(t)

	findings := analyzer.Analyze(context.Background(), []datatypes.ExecutionResult{
		{Index: 0, Stdout: "NAME    READY   STATUS    RESTARTS   AGE\nweb-0   1/1     Running   0          2d\n"},
	})
	if len(findings) != 0 {
		t.Errorf("findings = %+v, want none", findings)
	}

	if findings := analyzer.Analyze(context.Background(), nil); len(findings) != 0 {
		t.Errorf("findings on nil results = %+v, want none", findings)
	}
}

// TestSignatureAnalyzer_Analyze_DedupeAcrossResults verifies each
// signature is reported once, anchored to the earliest result.
func TestSignatureAnalyzer_Analyze_DedupeAcrossResults(t *testing.T) {
	analyzer := newTestAnalyzer(t)

	findings := analyzer.Analyze(context.Background(), []datatypes.ExecutionResult{
		{Index: 0, Stdout: getPodsImagePull},
		{Index: 1, Stdout: "  Warning  Failed  kubelet  Failed to pull image \"web:latest\""},
	})

	count := 0
	for _, f := range findings {
		if f.Signature == "ImagePullBackOff" {
			count++
			if f.CommandIndex != 0 {
				t.Errorf("CommandIndex = %d, want 0 (earliest result)", f.CommandIndex)
			}
		}
	}
	if count != 1 {
		t.Errorf("ImagePullBackOff findings = %d, want 1", count)
	}
}

// TestSignatureAnalyzer_Analyze_MultipleSignatures verifies ordering when
// one output trips several signatures.
func TestSignatureAnalyzer_Analyze_MultipleSignatures(t *testing.T) {
	analyzer := newTestAnalyzer(t)

	output := describeOOMKilled + "\nWarning  BackOff  Back-off restarting failed container\n"
	findings := analyzer.Analyze(context.Background(), []datatypes.ExecutionResult{
		{Index: 0, Stdout: output},
	})

	if len(findings) < 2 {
		t.Fatalf("findings = %d, want at least 2", len(findings))
	}

	best := datatypes.BestFinding(findings)
	if best.Signature != "OOMKilled" {
		t.Errorf("best Signature = %q, want OOMKilled (highest confidence)", best.Signature)
	}
}

// TestSignatureAnalyzer_Analyze_Deterministic verifies repeated analysis
// of identical input yields identical findings.
func TestSignatureAnalyzer_Analyze_Deterministic(t *testing.T) {
	analyzer := newTestAnalyzer(t)

	results := []datatypes.ExecutionResult{
		{Index: 0, Stdout: describeOOMKilled},
		{Index: 1, Stdout: eventsUnschedulable},
		{Index: 2, Stderr: "CrashLoopBackOff"},
	}

	first := analyzer.Analyze(context.Background(), results)
	for i := 0; i < 10; i++ {
		again := analyzer.Analyze(context.Background(), results)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differed:\nfirst: %+v\nagain: %+v", i, first, again)
		}
	}
}

// TestSignatureAnalyzer_Reload verifies external registry swapping.
func TestSignatureAnalyzer_Reload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "signatures.yaml")

	v1 := `signatures:
  - id: CustomFault
    confidence: 0.9
    patterns: ['CustomFault']
    remediation: fix it
`
	if err := os.WriteFile(path, []byte(v1), 0o644); err != nil {
		t.Fatalf("writing registry: %v", err)
	}

	analyzer, err := NewSignatureAnalyzer(WithRegistryPath(path))
	if err != nil {
		t.Fatalf("NewSignatureAnalyzer failed: %v", err)
	}

	findings := analyzer.Analyze(context.Background(), []datatypes.ExecutionResult{{Stdout: "CustomFault detected"}})
	if len(findings) != 1 || findings[0].Signature != "CustomFault" {
		t.Fatalf("findings = %+v, want one CustomFault", findings)
	}

	v2 := `signatures:
  - id: OtherFault
    confidence: 0.8
    patterns: ['OtherFault']
    remediation: fix that instead
`
	if err := os.WriteFile(path, []byte(v2), 0o644); err != nil {
		t.Fatalf("writing registry: %v", err)
	}
	analyzer.reload(context.Background())

	if findings := analyzer.Analyze(context.Background(), []datatypes.ExecutionResult{{Stdout: "CustomFault detected"}}); len(findings) != 0 {
		t.Errorf("old signature still matching after reload: %+v", findings)
	}
	findings = analyzer.Analyze(context.Background(), []datatypes.ExecutionResult{{Stdout: "OtherFault detected"}})
	if len(findings) != 1 || findings[0].Signature != "OtherFault" {
		t.Errorf("findings = %+v, want one OtherFault", findings)
	}
}

// TestSignatureAnalyzer_ReloadKeepsPreviousOnError verifies a broken file
// does not replace a working registry.
func TestSignatureAnalyzer_ReloadKeepsPreviousOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "signatures.yaml")

	v1 := `signatures:
  - id: CustomFault
    confidence: 0.9
    patterns: ['CustomFault']
`
	if err := os.WriteFile(path, []byte(v1), 0o644); err != nil {
		t.Fatalf("writing registry: %v", err)
	}

	analyzer, err := NewSignatureAnalyzer(WithRegistryPath(path))
	if err != nil {
		t.Fatalf("NewSignatureAnalyzer failed: %v", err)
	}

	if err := os.WriteFile(path, []byte("signatures: ["), 0o644); err != nil {
		t.Fatalf("writing registry: %v", err)
	}
	analyzer.reload(context.Background())

	findings := analyzer.Analyze(context.Background(), []datatypes.ExecutionResult{{Stdout: "CustomFault detected"}})
	if len(findings) != 1 {
		t.Errorf("previous registry lost after failed reload: %+v", findings)
	}
}

// TestSignatureAnalyzer_ExplicitPathErrors verifies construction fails on
// a bad explicit registry.
func TestSignatureAnalyzer_ExplicitPathErrors(t *testing.T) {
	if _, err := NewSignatureAnalyzer(WithRegistryPath("/nonexistent/signatures.yaml")); err == nil {
		t.Error("expected error for missing explicit registry")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(path, []byte("not yaml at all: ["), 0o644); err != nil {
		t.Fatalf("writing registry: %v", err)
	}
	if _, err := NewSignatureAnalyzer(WithRegistryPath(path)); err == nil {
		t.Error("expected error for malformed explicit registry")
	}
	if _, err := NewSignatureAnalyzer(WithRegistryPath(path)); err == nil || !strings.Contains(err.Error(), "broken.yaml") {
		t.Errorf("error should name the file, got: %v", err)
	}
}
