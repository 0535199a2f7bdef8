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
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/ClusterBuddy/pkg/ux"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	sessionLimit      int  // Maximum sessions to list
	sessionJSONOutput bool // Output as JSON
)

// sessionView mirrors one row of the server's session listing.
type sessionView struct {
	ID         string    `json:"id"`
	RequestID  string    `json:"request_id,omitempty"`
	Query      string    `json:"query"`
	Namespace  string    `json:"namespace"`
	Tier       string    `json:"tier"`
	Status     string    `json:"status"`
	Iterations int       `json:"iterations"`
	Confidence float64   `json:"confidence"`
	Signature  string    `json:"signature,omitempty"`
	Summary    string    `json:"summary,omitempty"`
	Source     string    `json:"source"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type sessionListResponse struct {
	Sessions []sessionView `json:"sessions"`
	Count    int           `json:"count"`
}

type queryExample struct {
	Query       string `json:"query"`
	Tier        string `json:"tier"`
	Description string `json:"description"`
}

type examplesResponse struct {
	Examples []queryExample `json:"examples"`
	Count    int            `json:"count"`
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	sessionListCmd.Flags().IntVar(&sessionLimit, "limit", 20,
		"Maximum number of sessions to list")
	sessionListCmd.Flags().BoolVar(&sessionJSONOutput, "json", false,
		"Output as JSON for scripting")
	sessionShowCmd.Flags().BoolVar(&sessionJSONOutput, "json", false,
		"Output as JSON for scripting")
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runSessionList(cmd *cobra.Command, args []string) {
	var list sessionListResponse
	mustGetJSON(fmt.Sprintf("/v1/triage/sessions?limit=%d", sessionLimit), &list)

	if sessionJSONOutput {
		outputJSON(list)
		return
	}
	if list.Count == 0 {
		ux.Muted("no sessions found")
		return
	}

	live := 0
	for _, s := range list.Sessions {
		renderSessionRow(s)
		if s.Source == "live" {
			live++
		}
	}
	ux.Summary(live, list.Count-live, list.Count)
}

func runSessionShow(cmd *cobra.Command, args []string) {
	var view sessionView
	mustGetJSON("/v1/triage/sessions/"+args[0], &view)

	if sessionJSONOutput {
		outputJSON(view)
		return
	}
	renderSessionDetail(view)
}

func runSessionDelete(cmd *cobra.Command, args []string) {
	sessionID := args[0]
	req, err := http.NewRequest(http.MethodDelete, apiURL("/v1/triage/sessions/"+sessionID), nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create delete request: %v\n", err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: healthTimeout}
	resp, err := client.Do(req)
	if err != nil {
		ux.Error(fmt.Sprintf("failed to reach the clusterbuddy server at %s: %v", serverBaseURL(), err))
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		ux.Error(apiErrorMessage(resp.StatusCode, body))
		os.Exit(1)
	}

	var result struct {
		Action    string `json:"action"`
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse server response: %v\n", err)
		os.Exit(1)
	}
	ux.Success(fmt.Sprintf("%s session %s", result.Action, result.SessionID))
}

func runExamplesCommand(cmd *cobra.Command, args []string) {
	var examples examplesResponse
	mustGetJSON("/v1/triage/examples", &examples)

	ux.Title("Example queries")
	tier := ""
	for _, ex := range examples.Examples {
		if ex.Tier != tier {
			tier = ex.Tier
			fmt.Println()
			fmt.Println(ux.Styles.Subtitle.Render(tier))
		}
		fmt.Printf("  %s %s\n", ux.IconBullet.Render(), ex.Query)
		if ex.Description != "" {
			ux.Muted("    " + ex.Description)
		}
	}
}

// mustGetJSON fetches a JSON endpoint into out, exiting on any failure.
func mustGetJSON(path string, out any) {
	client := &http.Client{Timeout: healthTimeout}
	resp, err := client.Get(apiURL(path))
	if err != nil {
		ux.Error(fmt.Sprintf("failed to reach the clusterbuddy server at %s: %v", serverBaseURL(), err))
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read server response: %v\n", err)
		os.Exit(1)
	}
	if resp.StatusCode != http.StatusOK {
		ux.Error(apiErrorMessage(resp.StatusCode, body))
		os.Exit(1)
	}
	if err := json.Unmarshal(body, out); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse server response: %v\n", err)
		os.Exit(1)
	}
}

func apiErrorMessage(status int, body []byte) string {
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Error == "" {
		return fmt.Sprintf("server returned status %d: %s", status, string(body))
	}
	return fmt.Sprintf("%s (%s)", apiErr.Error, apiErr.Code)
}

func outputJSON(v any) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// OUTPUT FORMATTING
// =============================================================================

func renderSessionRow(s sessionView) {
	if ux.GetPersonality().Level == ux.PersonalityMachine {
		fmt.Printf("%s\t%s\t%s\t%s\t%s\n", s.ID, s.Status, s.Source, s.Namespace, s.Query)
		return
	}

	icon, style := statusBadge(s.Status)
	fmt.Printf("%s %s  %s %s\n",
		icon.Render(), style.Render(s.Status),
		ux.Styles.Bold.Render(s.ID),
		ux.Styles.Muted.Render(fmt.Sprintf("[%s] %s, %s", s.Source, s.Namespace, humanAge(s.UpdatedAt))))

	detail := "    " + s.Query
	if s.Signature != "" {
		detail += ux.Styles.Muted.Render(fmt.Sprintf("  %s %.2f", s.Signature, s.Confidence))
	}
	fmt.Println(detail)
}

func renderSessionDetail(s sessionView) {
	if ux.GetPersonality().Level == ux.PersonalityMachine {
		fmt.Printf("ID: %s\nSTATUS: %s\nSOURCE: %s\nQUERY: %s\n", s.ID, s.Status, s.Source, s.Query)
		if s.Signature != "" {
			fmt.Printf("SIGNATURE: %s %.2f\n", s.Signature, s.Confidence)
		}
		if s.Summary != "" {
			fmt.Printf("SUMMARY: %s\n", s.Summary)
		}
		return
	}

	icon, style := statusBadge(s.Status)
	fmt.Printf("%s %s  %s\n", icon.Render(), style.Render(s.Status), ux.Styles.Bold.Render(s.ID))
	ux.Info("query:      " + s.Query)
	ux.Info("namespace:  " + s.Namespace)
	ux.Info("tier:       " + s.Tier)
	ux.Info(fmt.Sprintf("iterations: %d", s.Iterations))
	ux.Info(fmt.Sprintf("source:     %s, updated %s", s.Source, humanAge(s.UpdatedAt)))

	if s.Signature != "" {
		fmt.Println()
		ux.Box(fmt.Sprintf("Hypothesis: %s", s.Signature),
			fmt.Sprintf("confidence %.2f", s.Confidence))
	}
	if s.Summary != "" {
		fmt.Printf("\n%s\n", ux.Styles.Bold.Render(s.Summary))
	}
}

func humanAge(t time.Time) string {
	age := time.Since(t)
	switch {
	case age < time.Minute:
		return fmt.Sprintf("%ds ago", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(age.Hours()/24))
	}
}
