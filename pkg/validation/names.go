// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided names that end up in
// kubectl argument vectors. Commands never pass through a shell, but a
// crafted name starting with a hyphen would still be parsed as a flag,
// and a malformed one wastes an investigation iteration on an API server
// rejection. Validating at the boundary prevents both.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// labelPattern matches one RFC 1123 DNS label: lowercase alphanumerics
// and hyphens, starting and ending with an alphanumeric.
var labelPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

const (
	// maxLabelLength is the RFC 1123 limit for a single DNS label.
	maxLabelLength = 63

	// maxNameLength is the Kubernetes limit for a subdomain-style name.
	maxNameLength = 253
)

// ValidateNamespace validates a Kubernetes namespace name.
//
// Namespace names are RFC 1123 labels:
//   - 1-63 characters
//   - Lowercase letters a-z, digits 0-9, hyphens
//   - Must start and end with an alphanumeric
//
// Returns an error if the name is invalid.
//
// Example:
//
//	if err := validation.ValidateNamespace(req.Namespace); err != nil {
//	    return fmt.Errorf("invalid namespace: %w", err)
//	}
//	// Safe to place in a kubectl argument vector
func ValidateNamespace(namespace string) error {
	if namespace == "" {
		return fmt.Errorf("namespace cannot be empty")
	}

	if len(namespace) > maxLabelLength {
		return fmt.Errorf("namespace too long: %d characters (max %d)", len(namespace), maxLabelLength)
	}

	if !labelPattern.MatchString(namespace) {
		return fmt.Errorf("invalid namespace %q (must be a lowercase RFC 1123 label: alphanumerics and hyphens)", namespace)
	}

	return nil
}

// ValidateResourceName validates a Kubernetes resource name.
//
// Most resource names are RFC 1123 subdomains: dot-separated labels, at
// most 253 characters total ("web-0", "checkout-7d9fb4c6d-x2k9p",
// "metrics.apps"). Each label follows the same rules as a namespace.
//
// Returns an error if the name is invalid.
func ValidateResourceName(name string) error {
	if name == "" {
		return fmt.Errorf("resource name cannot be empty")
	}

	if len(name) > maxNameLength {
		return fmt.Errorf("resource name too long: %d characters (max %d)", len(name), maxNameLength)
	}

	for _, label := range strings.Split(name, ".") {
		if len(label) > maxLabelLength {
			return fmt.Errorf("invalid resource name %q: segment %q exceeds %d characters", name, label, maxLabelLength)
		}
		if !labelPattern.MatchString(label) {
			return fmt.Errorf("invalid resource name %q (must be a lowercase RFC 1123 subdomain)", name)
		}
	}

	return nil
}

// SanitizeNamespace normalizes and validates a namespace name.
// Returns the lowercase namespace if valid, or an error if invalid.
//
// Use this for interactive input where case and stray whitespace are
// honest mistakes rather than attacks:
//
//	ns, err := validation.SanitizeNamespace(flagValue)
//	if err != nil {
//	    return err
//	}
//	// ns is lowercase, trimmed, and validated
func SanitizeNamespace(namespace string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(namespace))
	if err := ValidateNamespace(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
