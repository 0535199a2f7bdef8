// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// generate_signature_docs generates a markdown reference from signatures.yaml.
//
// Usage:
//
//	go run scripts/generate_signature_docs.go > signature_reference.md
//
// The generated documentation includes:
//   - Full signature inventory grouped by failure domain
//   - Per-signature patterns and remediations
//   - A pattern index mapping each regex to its signature
//   - Summary statistics
package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SignatureRegistryYAML is the root structure for YAML deserialization.
type SignatureRegistryYAML struct {
	Signatures []SignatureEntryYAML `yaml:"signatures"`
}

// SignatureEntryYAML represents a single signature entry in the YAML file.
type SignatureEntryYAML struct {
	ID          string   `yaml:"id"`
	Title       string   `yaml:"title"`
	Confidence  float64  `yaml:"confidence"`
	Patterns    []string `yaml:"patterns"`
	Remediation string   `yaml:"remediation"`
}

// SignatureCategory represents a failure domain grouping.
type SignatureCategory struct {
	Name        string
	Description string
	Signatures  []SignatureEntryYAML
}

func main() {
	// Read the YAML file
	data, err := os.ReadFile("services/cluster_buddy/agent/patterns/signatures.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading signatures.yaml: %v\n", err)
		os.Exit(1)
	}

	var registry SignatureRegistryYAML
	if err := yaml.Unmarshal(data, &registry); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing YAML: %v\n", err)
		os.Exit(1)
	}

	// Group signatures by failure domain
	categories := categorizeSignatures(registry.Signatures)

	// Generate markdown
	generateMarkdown(categories, registry.Signatures)
}

// categorizeSignatures groups signatures into failure domains based on
// their IDs. New IDs land in the catch-all category until a case is
// added here.
func categorizeSignatures(signatures []SignatureEntryYAML) []SignatureCategory {
	categoryMap := map[string]*SignatureCategory{
		"runtime": {
			Name:        "Container Runtime Failures",
			Description: "The container starts but is killed or keeps crashing. The evidence lives in container status and previous-instance logs.",
		},
		"image": {
			Name:        "Image Failures",
			Description: "The container never starts because its image cannot be pulled. The evidence lives in pod events.",
		},
		"config": {
			Name:        "Configuration Failures",
			Description: "The pod spec references an object that does not exist. The kubelet retries once the reference resolves.",
		},
		"scheduling": {
			Name:        "Scheduling and Node Pressure",
			Description: "The pod has no node to run on, or lost the one it had. The evidence lives in scheduler events and node conditions.",
		},
		"storage": {
			Name:        "Storage Failures",
			Description: "A volume cannot be attached or mounted, so the pod stays in ContainerCreating.",
		},
		"health": {
			Name:        "Health Probe Failures",
			Description: "The container runs but fails its probes, so it is restarted or held out of Service endpoints.",
		},
		"other": {
			Name:        "Other Signatures",
			Description: "Signatures not yet assigned to a failure domain.",
		},
	}

	// Categorization rules
	for _, sig := range signatures {
		switch sig.ID {
		case "OOMKilled", "CrashLoopBackOff":
			categoryMap["runtime"].Signatures = append(categoryMap["runtime"].Signatures, sig)

		case "ImagePullBackOff":
			categoryMap["image"].Signatures = append(categoryMap["image"].Signatures, sig)

		case "CreateContainerConfigError":
			categoryMap["config"].Signatures = append(categoryMap["config"].Signatures, sig)

		case "Unschedulable", "Evicted":
			categoryMap["scheduling"].Signatures = append(categoryMap["scheduling"].Signatures, sig)

		case "VolumeMountFailure":
			categoryMap["storage"].Signatures = append(categoryMap["storage"].Signatures, sig)

		case "ProbeFailure":
			categoryMap["health"].Signatures = append(categoryMap["health"].Signatures, sig)

		default:
			categoryMap["other"].Signatures = append(categoryMap["other"].Signatures, sig)
		}
	}

	// Convert to sorted slice
	order := []string{
		"runtime",
		"image",
		"config",
		"scheduling",
		"storage",
		"health",
		"other",
	}

	var result []SignatureCategory
	for _, key := range order {
		if cat, ok := categoryMap[key]; ok && len(cat.Signatures) > 0 {
			result = append(result, *cat)
		}
	}

	return result
}

// generateMarkdown outputs the full markdown documentation.
func generateMarkdown(categories []SignatureCategory, allSignatures []SignatureEntryYAML) {
	fmt.Println("# Failure Signature Reference")
	fmt.Println()
	fmt.Println("## Overview")
	fmt.Println()
	fmt.Println("This document is a reference for the failure signatures the triage analyzer")
	fmt.Println("matches against command output. The registry is defined in")
	fmt.Println("`services/cluster_buddy/agent/patterns/signatures.yaml`, embedded into the")
	fmt.Println("binary at build time, and can be overridden at runtime via")
	fmt.Println("`CLUSTERBUDDY_SIGNATURES_PATH` or a `./config/signatures.yaml` file.")
	fmt.Println()
	fmt.Println("Signatures are evaluated in file order; the registry keeps")
	fmt.Println("higher-confidence entries first.")
	fmt.Println()
	fmt.Printf("**Generated:** %s\n", time.Now().Format("2006-01-02 15:04:05 UTC"))
	fmt.Println()

	// Statistics
	totalPatterns := 0
	highConfidence := 0
	for _, sig := range allSignatures {
		totalPatterns += len(sig.Patterns)
		if sig.Confidence >= 0.90 {
			highConfidence++
		}
	}

	fmt.Println("## Summary Statistics")
	fmt.Println()
	fmt.Println("| Metric | Count |")
	fmt.Println("|--------|-------|")
	fmt.Printf("| Total Signatures | %d |\n", len(allSignatures))
	fmt.Printf("| Total Patterns | %d |\n", totalPatterns)
	fmt.Printf("| High Confidence (>= 0.90) | %d |\n", highConfidence)
	fmt.Printf("| Failure Domains | %d |\n", len(categories))
	fmt.Println()

	// Table of contents
	fmt.Println("## Table of Contents")
	fmt.Println()
	for i, cat := range categories {
		fmt.Printf("%d. [%s](#%s)\n", i+1, cat.Name, strings.ToLower(strings.ReplaceAll(cat.Name, " ", "-")))
	}
	fmt.Println()

	// Quick reference table (all signatures)
	fmt.Println("---")
	fmt.Println()
	fmt.Println("## Quick Reference")
	fmt.Println()
	fmt.Println("| Signature | Domain | Confidence | Patterns |")
	fmt.Println("|-----------|--------|------------|----------|")

	for _, cat := range categories {
		for _, sig := range cat.Signatures {
			fmt.Printf("| `%s` | %s | %.2f | %d |\n",
				sig.ID,
				cat.Name,
				sig.Confidence,
				len(sig.Patterns),
			)
		}
	}
	fmt.Println()

	// Detailed sections per category
	fmt.Println("---")
	fmt.Println()
	for _, cat := range categories {
		fmt.Printf("## %s\n", cat.Name)
		fmt.Println()
		fmt.Println(cat.Description)
		fmt.Println()

		for _, sig := range cat.Signatures {
			printSignatureDetails(sig)
		}
	}

	// Pattern index
	fmt.Println("---")
	fmt.Println()
	fmt.Println("## Pattern Index")
	fmt.Println()
	fmt.Println("This index maps each regex pattern to the signature it belongs to. Patterns")
	fmt.Println("are matched case-insensitively against combined stdout and stderr.")
	fmt.Println()

	patternIndex := buildPatternIndex(allSignatures)
	patterns := make([]string, 0, len(patternIndex))
	for p := range patternIndex {
		patterns = append(patterns, p)
	}
	sort.Strings(patterns)

	fmt.Println("| Pattern | Signature |")
	fmt.Println("|---------|-----------|")
	for _, p := range patterns {
		sigs := patternIndex[p]
		fmt.Printf("| `%s` | %s |\n", escapePipes(p), strings.Join(sigs, ", "))
	}
	fmt.Println()

	// Footer
	fmt.Println("---")
	fmt.Println()
	fmt.Println("*This document is auto-generated from `services/cluster_buddy/agent/patterns/signatures.yaml`.*")
	fmt.Println()
	fmt.Println("*To regenerate: `go run scripts/generate_signature_docs.go > signature_reference.md`*")
}

// printSignatureDetails prints detailed information for a single signature.
func printSignatureDetails(sig SignatureEntryYAML) {
	fmt.Printf("### `%s`\n", sig.ID)
	fmt.Println()

	// Main table
	fmt.Println("| Property | Value |")
	fmt.Println("|----------|-------|")
	fmt.Printf("| **Title** | %s |\n", sig.Title)
	fmt.Printf("| **Confidence** | %.2f |\n", sig.Confidence)
	fmt.Printf("| **Remediation** | %s |\n", strings.TrimSpace(sig.Remediation))
	fmt.Println()

	// Patterns
	fmt.Println("**Patterns:**")
	fmt.Println()
	for _, p := range sig.Patterns {
		fmt.Printf("- `%s`\n", p)
	}
	fmt.Println()
}

// buildPatternIndex creates a map of pattern -> signature IDs.
func buildPatternIndex(signatures []SignatureEntryYAML) map[string][]string {
	index := make(map[string][]string)
	for _, sig := range signatures {
		for _, p := range sig.Patterns {
			index[p] = append(index[p], sig.ID)
		}
	}
	return index
}

// escapePipes escapes pipe characters so regex alternations survive
// markdown table cells.
func escapePipes(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
