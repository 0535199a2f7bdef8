// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/ClusterBuddy/pkg/ux"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var healthJSONOutput bool // Output as JSON

const healthTimeout = 10 * time.Second

// healthResponse mirrors the server's health report.
type healthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	Collaborators map[string]string `json:"collaborators"`
}

// readyResponse mirrors the server's readiness report.
type readyResponse struct {
	Ready  bool   `json:"ready"`
	Reason string `json:"reason,omitempty"`
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	healthCmd.Flags().BoolVar(&healthJSONOutput, "json", false,
		"Output as JSON for scripting")
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

// runHealthCommand fetches health and readiness and renders both.
//
// Health reports per-collaborator status (generator, runner, context,
// archive); readiness is the gate the server applies before accepting
// triage requests. Degraded-but-ready is a valid state: a disabled
// optional collaborator degrades health without blocking triage.
//
// Exits 1 when the server is unreachable or not ready.
func runHealthCommand(cmd *cobra.Command, args []string) {
	health, err := fetchHealth()
	if err != nil {
		ux.Error(fmt.Sprintf("clusterbuddy server at %s: %v", serverBaseURL(), err))
		os.Exit(1)
	}
	ready, err := fetchReady()
	if err != nil {
		ux.Error(fmt.Sprintf("readiness check failed: %v", err))
		os.Exit(1)
	}

	if healthJSONOutput {
		outputHealthJSON(health, ready)
	} else {
		outputHealthReport(health, ready)
	}

	if !ready.Ready {
		os.Exit(1)
	}
}

func fetchHealth() (*healthResponse, error) {
	client := &http.Client{Timeout: healthTimeout}
	resp, err := client.Get(apiURL("/v1/triage/health"))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("failed to parse health response: %w", err)
	}
	return &health, nil
}

func fetchReady() (*readyResponse, error) {
	client := &http.Client{Timeout: healthTimeout}
	resp, err := client.Get(apiURL("/v1/triage/ready"))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// The body carries the reason for both 200 and 503.
	var ready readyResponse
	if err := json.NewDecoder(resp.Body).Decode(&ready); err != nil {
		return nil, fmt.Errorf("failed to parse readiness response: %w", err)
	}
	return &ready, nil
}

// fetchServerVersion probes health with a short timeout for `cbctl version`.
func fetchServerVersion() (string, error) {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(apiURL("/v1/triage/health"))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return "", err
	}
	return health.Version, nil
}

// =============================================================================
// OUTPUT FORMATTING
// =============================================================================

func outputHealthJSON(health *healthResponse, ready *readyResponse) {
	combined := struct {
		Health *healthResponse `json:"health"`
		Ready  *readyResponse  `json:"ready"`
	}{health, ready}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(combined); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
		os.Exit(1)
	}
}

func outputHealthReport(health *healthResponse, ready *readyResponse) {
	ux.Title(fmt.Sprintf("Cluster Buddy %s at %s", health.Version, serverBaseURL()))

	if health.Status == "healthy" {
		ux.Success("all collaborators healthy")
	} else {
		ux.Warning("service degraded")
	}

	// Stable ordering for the collaborator table
	names := make([]string, 0, len(health.Collaborators))
	for name := range health.Collaborators {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		status := health.Collaborators[name]
		icon := ux.IconSuccess
		reason := ""
		if status != "ok" {
			icon = ux.IconWarning
			reason = status
		}
		ux.ItemStatus(name, icon, reason)
	}

	fmt.Println()
	if ready.Ready {
		ux.Success("ready for triage requests")
	} else {
		ux.Error("not ready: " + ready.Reason)
	}
}
