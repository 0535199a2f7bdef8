// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package patterns matches command output against known failure signatures.
//
// A signature registry maps regex patterns to named Kubernetes failure
// modes, each with a fixed confidence score and a remediation line. The
// default registry is embedded in the binary; operators can override it
// with an external YAML file, which is hot-reloaded on change.
//
// Thread Safety:
//
//	All exported types are safe for concurrent use after initialization.
package patterns

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxYAMLFileSize is the maximum allowed registry file size (1MB).
	MaxYAMLFileSize = 1024 * 1024

	// MaxSignaturesInRegistry caps the signature count.
	MaxSignaturesInRegistry = 200

	// MaxPatternsPerSignature caps patterns per signature.
	MaxPatternsPerSignature = 20

	// maxEvidenceLength bounds the excerpt attached to a finding.
	maxEvidenceLength = 240

	// EnvSignaturesPath names the external registry override variable.
	EnvSignaturesPath = "CLUSTERBUDDY_SIGNATURES_PATH"
)

// =============================================================================
// Embedded Default Registry
// =============================================================================

//go:embed signatures.yaml
var defaultSignaturesYAML []byte

var patternsTracer = otel.Tracer("patterns")

// =============================================================================
// Types
// =============================================================================

// signatureRegistryYAML is the root structure for YAML deserialization.
type signatureRegistryYAML struct {
	Signatures []signatureEntryYAML `yaml:"signatures"`
}

// signatureEntryYAML is a single signature entry in the YAML file.
type signatureEntryYAML struct {
	ID          string   `yaml:"id"`
	Title       string   `yaml:"title"`
	Confidence  float64  `yaml:"confidence"`
	Patterns    []string `yaml:"patterns"`
	Remediation string   `yaml:"remediation"`
}

// Signature is one compiled failure signature.
type Signature struct {
	// ID is the stable signature name ("OOMKilled").
	ID string

	// Title is the human-readable failure mode.
	Title string

	// Confidence is assigned to findings produced by this signature.
	Confidence float64

	// Remediation is the suggested next step.
	Remediation string

	regexes []*regexp.Regexp
}

// FirstMatch returns the line containing the first pattern hit.
//
// The excerpt is the full line around the match, trimmed and capped, so
// the finding carries usable evidence rather than just the matched token.
func (s *Signature) FirstMatch(text string) (string, bool) {
	for _, re := range s.regexes {
		loc := re.FindStringIndex(text)
		if loc == nil {
			continue
		}

		start := strings.LastIndexByte(text[:loc[0]], '\n') + 1
		end := len(text)
		if i := strings.IndexByte(text[loc[1]:], '\n'); i >= 0 {
			end = loc[1] + i
		}

		excerpt := strings.TrimSpace(text[start:end])
		if len(excerpt) > maxEvidenceLength {
			excerpt = excerpt[:maxEvidenceLength]
		}
		return excerpt, true
	}
	return "", false
}

// SignatureRegistry holds the compiled signatures in evaluation order.
type SignatureRegistry struct {
	signatures []*Signature
	source     string
	loadedAt   int64
}

// Signatures returns the signatures in evaluation order. The returned
// slice must not be modified.
func (r *SignatureRegistry) Signatures() []*Signature {
	return r.signatures
}

// Len returns the signature count.
func (r *SignatureRegistry) Len() int {
	return len(r.signatures)
}

// Source reports where the registry was loaded from ("embedded" or the
// external file path).
func (r *SignatureRegistry) Source() string {
	return r.source
}

// =============================================================================
// Loading
// =============================================================================

// LoadRegistry loads the signature registry.
//
// Description:
//
//	With a non-empty path, loads exactly that file and fails hard on any
//	problem: an explicitly configured registry that cannot load is an
//	operator error, not something to paper over. With an empty path,
//	tries the discovered external locations and falls back to the
//	embedded default when none load.
//
// Inputs:
//
//	ctx - Context for tracing. May be nil.
//	path - Explicit registry file path, or "" for discovery.
//
// Outputs:
//
//	*SignatureRegistry - The loaded registry.
//	error - Non-nil if loading or compilation failed.
func LoadRegistry(ctx context.Context, path string) (*SignatureRegistry, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := patternsTracer.Start(ctx, "patterns.LoadRegistry")
	defer span.End()

	if path != "" {
		data, err := readRegistryFile(path)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "external load failed")
			return nil, fmt.Errorf("loading signature registry %s: %w", path, err)
		}
		reg, err := parseRegistry(data, path)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "parse failed")
			return nil, fmt.Errorf("parsing signature registry %s: %w", path, err)
		}
		span.SetAttributes(
			attribute.String("source", path),
			attribute.Int("signature_count", reg.Len()),
		)
		return reg, nil
	}

	if discovered := discoverRegistryPath(); discovered != "" {
		if data, err := readRegistryFile(discovered); err == nil {
			if reg, err := parseRegistry(data, discovered); err == nil {
				span.SetAttributes(
					attribute.String("source", discovered),
					attribute.Int("signature_count", reg.Len()),
				)
				return reg, nil
			}
		}
	}

	reg, err := parseRegistry(defaultSignaturesYAML, "embedded")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedded registry invalid")
		return nil, fmt.Errorf("parsing embedded signature registry: %w", err)
	}
	span.SetAttributes(
		attribute.String("source", "embedded"),
		attribute.Int("signature_count", reg.Len()),
	)
	return reg, nil
}

// discoverRegistryPath returns the external registry path, or "".
func discoverRegistryPath() string {
	if path := os.Getenv(EnvSignaturesPath); path != "" {
		return path
	}

	locations := []string{
		"./config/signatures.yaml",
		"./signatures.yaml",
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			absPath, _ := filepath.Abs(loc)
			return absPath
		}
	}
	return ""
}

// readRegistryFile reads an external registry file with size checks.
func readRegistryFile(path string) ([]byte, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.Size() > MaxYAMLFileSize {
		return nil, fmt.Errorf("registry file too large: %d bytes (max %d)", info.Size(), MaxYAMLFileSize)
	}

	return os.ReadFile(absPath)
}

// parseRegistry parses and compiles YAML data into a registry.
func parseRegistry(data []byte, source string) (*SignatureRegistry, error) {
	var yamlReg signatureRegistryYAML
	if err := yaml.Unmarshal(data, &yamlReg); err != nil {
		return nil, fmt.Errorf("unmarshaling YAML: %w", err)
	}

	if len(yamlReg.Signatures) == 0 {
		return nil, fmt.Errorf("registry contains no signatures")
	}
	if len(yamlReg.Signatures) > MaxSignaturesInRegistry {
		return nil, fmt.Errorf("too many signatures: %d (max %d)", len(yamlReg.Signatures), MaxSignaturesInRegistry)
	}

	registry := &SignatureRegistry{
		signatures: make([]*Signature, 0, len(yamlReg.Signatures)),
		source:     source,
		loadedAt:   time.Now().UnixMilli(),
	}

	seen := make(map[string]struct{}, len(yamlReg.Signatures))
	for i, entry := range yamlReg.Signatures {
		if entry.ID == "" {
			return nil, fmt.Errorf("signature at index %d has empty id", i)
		}
		if _, dup := seen[entry.ID]; dup {
			return nil, fmt.Errorf("duplicate signature id %q", entry.ID)
		}
		seen[entry.ID] = struct{}{}

		if entry.Confidence <= 0 || entry.Confidence > 1 {
			return nil, fmt.Errorf("signature %q confidence %v out of range (0, 1]", entry.ID, entry.Confidence)
		}
		if len(entry.Patterns) == 0 {
			return nil, fmt.Errorf("signature %q has no patterns", entry.ID)
		}
		if len(entry.Patterns) > MaxPatternsPerSignature {
			return nil, fmt.Errorf("signature %q has too many patterns: %d (max %d)",
				entry.ID, len(entry.Patterns), MaxPatternsPerSignature)
		}

		sig := &Signature{
			ID:          entry.ID,
			Title:       entry.Title,
			Confidence:  entry.Confidence,
			Remediation: strings.TrimSpace(entry.Remediation),
			regexes:     make([]*regexp.Regexp, 0, len(entry.Patterns)),
		}
		for _, pattern := range entry.Patterns {
			re, err := regexp.Compile("(?i)" + pattern)
			if err != nil {
				return nil, fmt.Errorf("signature %q pattern %q: %w", entry.ID, pattern, err)
			}
			sig.regexes = append(sig.regexes, re)
		}
		registry.signatures = append(registry.signatures, sig)
	}

	return registry, nil
}
