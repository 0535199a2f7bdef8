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
	"strings"
	"testing"
)

// TestLoadRegistry_Embedded verifies the shipped default registry parses
// and compiles.
func TestLoadRegistry_Embedded(t *testing.T) {
	reg, err := parseRegistry(defaultSignaturesYAML, "embedded")
	if err != nil {
		t.Fatalf("embedded registry failed to parse: %v", err)
	}

	if reg.Len() < 5 {
		t.Errorf("embedded registry has %d signatures, want at least 5", reg.Len())
	}
	if reg.Source() != "embedded" {
		t.Errorf("Source = %q, want embedded", reg.Source())
	}

	for _, want := range []struct {
		id         string
		confidence float64
	}{
		{"OOMKilled", 0.95},
		{"ImagePullBackOff", 0.95},
		{"CrashLoopBackOff", 0.90},
		{"CreateContainerConfigError", 0.90},
		{"Unschedulable", 0.85},
	} {
		found := false
		for _, sig := range reg.Signatures() {
			if sig.ID != want.id {
				continue
			}
			found = true
			if sig.Confidence != want.confidence {
				t.Errorf("%s confidence = %v, want %v", want.id, sig.Confidence, want.confidence)
			}
			if sig.Remediation == "" {
				t.Errorf("%s has no remediation", want.id)
			}
		}
		if !found {
			t.Errorf("embedded registry missing signature %q", want.id)
		}
	}
}

// TestLoadRegistry_ExplicitPath verifies explicit external files load, and
// fail hard when broken.
func TestLoadRegistry_ExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "signatures.yaml")

	yaml := `signatures:
  - id: CustomFault
    title: Custom fault
    confidence: 0.8
    patterns:
      - 'CustomFault'
    remediation: do the thing
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("writing registry: %v", err)
	}

	reg, err := LoadRegistry(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadRegistry failed: %v", err)
	}
	if reg.Len() != 1 {
		t.Errorf("Len = %d, want 1", reg.Len())
	}
	if reg.Signatures()[0].ID != "CustomFault" {
		t.Errorf("ID = %q, want CustomFault", reg.Signatures()[0].ID)
	}

	if _, err := LoadRegistry(context.Background(), filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit file")
	}

	if err := os.WriteFile(path, []byte("signatures: ["), 0o644); err != nil {
		t.Fatalf("writing registry: %v", err)
	}
	if _, err := LoadRegistry(context.Background(), path); err == nil {
		t.Error("expected error for malformed explicit file")
	}
}

// TestParseRegistry_Validation covers registry validation failures.
func TestParseRegistry_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "empty registry",
			yaml:    "signatures: []",
			wantErr: "no signatures",
		},
		{
			name: "missing id",
			yaml: `signatures:
  - title: nameless
    confidence: 0.5
    patterns: ['x']
`,
			wantErr: "empty id",
		},
		{
			name: "duplicate id",
			yaml: `signatures:
  - id: Dup
    confidence: 0.5
    patterns: ['x']
  - id: Dup
    confidence: 0.6
    patterns: ['y']
`,
			wantErr: "duplicate",
		},
		{
			name: "confidence zero",
			yaml: `signatures:
  - id: Zero
    confidence: 0
    patterns: ['x']
`,
			wantErr: "out of range",
		},
		{
			name: "confidence above one",
			yaml: `signatures:
  - id: Over
    confidence: 1.5
    patterns: ['x']
`,
			wantErr: "out of range",
		},
		{
			name: "no patterns",
			yaml: `signatures:
  - id: Empty
    confidence: 0.5
    patterns: []
`,
			wantErr: "no patterns",
		},
		{
			name: "invalid regex",
			yaml: `signatures:
  - id: BadRegex
    confidence: 0.5
    patterns: ['[unclosed']
`,
			wantErr: "BadRegex",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseRegistry([]byte(tt.yaml), "test")
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

// TestSignature_FirstMatch verifies evidence extraction.
func TestSignature_FirstMatch(t *testing.T) {
	reg, err := parseRegistry([]byte(`signatures:
  - id: OOMKilled
    confidence: 0.95
    patterns:
      - 'OOMKilled'
      - 'exit code:?\s*137'
`), "test")
	if err != nil {
		t.Fatalf("parseRegistry failed: %v", err)
	}
	sig := reg.Signatures()[0]

	text := "Name: web-0\nLast State:  Terminated\n  Reason:  OOMKilled\n  Exit Code: 137\n"
	excerpt, ok := sig.FirstMatch(text)
	if !ok {
		t.Fatalf("expected a match")
	}
	if excerpt != "Reason:  OOMKilled" {
		t.Errorf("excerpt = %q, want the matching line", excerpt)
	}

	if _, ok := sig.FirstMatch("everything is healthy"); ok {
		t.Error("unexpected match on healthy output")
	}

	// Case-insensitive matching.
	if _, ok := sig.FirstMatch("reason: oomkilled"); !ok {
		t.Error("expected case-insensitive match")
	}

	// Long lines are capped.
	long := "OOMKilled " + strings.Repeat("x", 1000)
	excerpt, ok = sig.FirstMatch(long)
	if !ok {
		t.Fatalf("expected a match")
	}
	if len(excerpt) > maxEvidenceLength {
		t.Errorf("excerpt length = %d, want at most %d", len(excerpt), maxEvidenceLength)
	}
}
