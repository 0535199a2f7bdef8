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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/ClusterBuddy/pkg/ux"
	"github.com/AleutianAI/ClusterBuddy/pkg/validation"
	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/agent"
	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/datatypes"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	triageNamespace     string  // Kubernetes namespace to investigate
	triageTarget        string  // Optional resource to focus on
	triageMaxIterations int     // Iteration budget override (0 = server default)
	triageConfidence    float64 // Confidence threshold override (0 = server default)
	triageJSONOutput    bool    // Output the raw result as JSON

	actAllowCreate bool // Permit resource creation
	actAllowUpdate bool // Permit resource updates (scale, patch, restart)
	actAllowDelete bool // Permit resource deletion
)

// queryTimeout bounds one triage request end to end. Investigations run
// several gated kubectl commands per iteration, so this is generous.
const queryTimeout = 5 * time.Minute

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	for _, cmd := range []*cobra.Command{triageCmd, askCmd, actCmd} {
		cmd.Flags().StringVarP(&triageNamespace, "namespace", "n", "default",
			"Kubernetes namespace the request runs against")
		cmd.Flags().StringVar(&triageTarget, "target", "",
			"Resource name to focus on (e.g., api, web-0)")
		cmd.Flags().BoolVar(&triageJSONOutput, "json", false,
			"Output the full result as JSON for scripting")
	}
	triageCmd.Flags().IntVar(&triageMaxIterations, "max-iterations", 0,
		"Iteration budget (0 uses the server default)")
	triageCmd.Flags().Float64Var(&triageConfidence, "confidence", 0,
		"Confidence threshold in (0,1] that ends the investigation (0 uses the server default)")

	actCmd.Flags().BoolVar(&actAllowCreate, "allow-create", false,
		"Permit commands that create resources")
	actCmd.Flags().BoolVar(&actAllowUpdate, "allow-update", false,
		"Permit commands that modify resources (scale, patch, rollout restart)")
	actCmd.Flags().BoolVar(&actAllowDelete, "allow-delete", false,
		"Permit commands that delete resources")
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

// runTriageCommand sends a troubleshooting request and renders the
// investigation outcome.
//
// # Description
//
// The server classifies the question, runs the bounded investigation
// loop, and returns the full audit trail. Phrase the question as a
// diagnostic ("why is X failing") so it classifies as troubleshooting;
// plain lookups route through the single-pass informational path
// instead, same as `cbctl ask`.
//
// # Limitations
//
//   - Exits 1 unless the request ends RESOLVED or COMPLETED
func runTriageCommand(cmd *cobra.Command, args []string) {
	question := mustReadQuestion(args)
	namespace, target := mustScope()
	req := datatypes.TriageRequest{
		Query:               question,
		Namespace:           namespace,
		Target:              target,
		Permissions:         datatypes.Permissions{ReadOnly: true},
		MaxIterations:       triageMaxIterations,
		ConfidenceThreshold: triageConfidence,
	}
	res := mustSendTriage(req, "Investigating")
	outputResult(res)
	exitOnFailure(res)
}

// runAskCommand sends an informational request (single read-only pass).
func runAskCommand(cmd *cobra.Command, args []string) {
	question := mustReadQuestion(args)
	namespace, target := mustScope()
	req := datatypes.TriageRequest{
		Query:       question,
		Namespace:   namespace,
		Target:      target,
		Permissions: datatypes.Permissions{ReadOnly: true},
	}
	res := mustSendTriage(req, "Gathering")
	outputResult(res)
	exitOnFailure(res)
}

// runActCommand sends a mutation request with explicit permissions.
//
// # Description
//
// The request carries exactly the permissions granted on the command
// line. The server's safety gate checks every generated command
// against them, so without a matching --allow-* flag the command is
// blocked and nothing touches the cluster.
func runActCommand(cmd *cobra.Command, args []string) {
	question := mustReadQuestion(args)
	namespace, target := mustScope()
	if !actAllowCreate && !actAllowUpdate && !actAllowDelete {
		ux.Muted("no --allow-* flags set; the safety gate will block every mutation")
	}
	req := datatypes.TriageRequest{
		Query:     question,
		Namespace: namespace,
		Target:    target,
		Permissions: datatypes.Permissions{
			AllowCreate: actAllowCreate,
			AllowUpdate: actAllowUpdate,
			AllowDelete: actAllowDelete,
		},
	}
	res := mustSendTriage(req, "Evaluating")
	outputResult(res)
	exitOnFailure(res)
}

// mustReadQuestion joins the args into the request text, falling back
// to piped stdin so the CLI composes with other tools:
//
//	kubectl get events -n prod | tail -1 | cbctl triage
func mustReadQuestion(args []string) string {
	if len(args) > 0 {
		return strings.Join(args, " ")
	}
	// Only read stdin when it is piped, never block on a terminal
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read question from stdin: %v\n", err)
			os.Exit(1)
		}
		if q := strings.TrimSpace(string(data)); q != "" {
			return q
		}
	}
	fmt.Fprintln(os.Stderr, "A question is required: pass it as an argument or pipe it on stdin.")
	os.Exit(1)
	return ""
}

// mustScope normalizes --namespace and checks --target before any
// network round trip, so a typo fails locally instead of as a 400
// from the server.
func mustScope() (namespace, target string) {
	namespace, err := validation.SanitizeNamespace(triageNamespace)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if triageTarget != "" {
		if err := validation.ValidateResourceName(triageTarget); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	}
	return namespace, triageTarget
}

// mustSendTriage posts the request and returns the decoded result,
// exiting on transport or request errors.
//
// A 502 still carries a full result body (the investigation collapsed
// server-side but the audit trail survives), so it renders like any
// other outcome.
func mustSendTriage(req datatypes.TriageRequest, verb string) *agent.Result {
	var spin *ux.Spinner
	if !triageJSONOutput {
		spin = ux.NewSpinner(fmt.Sprintf("%s: %s", verb, req.Query))
		spin.Start()
	}

	res, err := sendTriageQuery(req)
	if err != nil {
		if spin != nil {
			spin.StopWithError(err.Error())
		} else {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
		os.Exit(1)
	}
	if spin != nil {
		spin.Stop()
	}
	return res
}

func sendTriageQuery(req datatypes.TriageRequest) (*agent.Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	client := &http.Client{Timeout: queryTimeout}
	resp, err := client.Post(apiURL("/v1/triage/query"), "application/json", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to reach the clusterbuddy server at %s: %w", serverBaseURL(), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read server response: %w", err)
	}

	// 200 and 502 both carry a result; everything else is an error envelope.
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusBadGateway {
		var res agent.Result
		if err := json.Unmarshal(respBody, &res); err != nil {
			return nil, fmt.Errorf("failed to parse server response: %w", err)
		}
		return &res, nil
	}

	var apiErr apiError
	if err := json.Unmarshal(respBody, &apiErr); err != nil || apiErr.Error == "" {
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(respBody))
	}
	if apiErr.Details != "" {
		return nil, fmt.Errorf("server rejected the request (%s): %s: %s", apiErr.Code, apiErr.Error, apiErr.Details)
	}
	return nil, fmt.Errorf("server rejected the request (%s): %s", apiErr.Code, apiErr.Error)
}

// apiError mirrors the server's error envelope.
type apiError struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func exitOnFailure(res *agent.Result) {
	if res.Status != agent.StatusResolved && res.Status != agent.StatusCompleted {
		os.Exit(1)
	}
}

// =============================================================================
// OUTPUT FORMATTING
// =============================================================================

func outputResult(res *agent.Result) {
	if triageJSONOutput {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(res); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			os.Exit(1)
		}
		return
	}
	renderTriageResult(res)
}

// renderTriageResult prints the outcome for a human: status line,
// summary, hypothesis, then the audit trail as muted detail.
func renderTriageResult(res *agent.Result) {
	if ux.GetPersonality().Level == ux.PersonalityMachine {
		renderMachineResult(res)
		return
	}

	icon, style := statusBadge(res.Status)
	meta := fmt.Sprintf("intent=%s iterations=%d confidence=%.2f %dms",
		res.Intent.Tier, res.Iterations, res.Confidence, res.DurationMs)
	fmt.Printf("%s %s  %s\n", icon.Render(), style.Render(res.Status), ux.Styles.Muted.Render(meta))
	if res.SessionID != "" {
		ux.Muted("session " + res.SessionID)
	}

	if res.Summary != "" {
		fmt.Printf("\n%s\n", ux.Styles.Bold.Render(res.Summary))
	}

	if h := res.Hypothesis; h != nil {
		var b strings.Builder
		fmt.Fprintf(&b, "confidence %.2f", h.Confidence)
		if h.Evidence != "" {
			fmt.Fprintf(&b, "\nevidence: %s", h.Evidence)
		}
		if h.Remediation != "" {
			fmt.Fprintf(&b, "\nfix: %s", h.Remediation)
		}
		fmt.Println()
		ux.Box("Root cause: "+h.Signature, b.String())
	}

	if res.Error != nil {
		fmt.Println()
		ux.Error(fmt.Sprintf("%s: %s", res.Error.Code, res.Error.Message))
		if res.Error.Details != "" {
			ux.Muted(res.Error.Details)
		}
	}

	renderTrail(res.Trail)
}

// renderMachineResult emits stable line-oriented output for scripts.
func renderMachineResult(res *agent.Result) {
	fmt.Printf("STATUS: %s\n", res.Status)
	if res.SessionID != "" {
		fmt.Printf("SESSION: %s\n", res.SessionID)
	}
	if h := res.Hypothesis; h != nil {
		fmt.Printf("SIGNATURE: %s %.2f\n", h.Signature, h.Confidence)
	}
	if res.Error != nil {
		fmt.Printf("ERROR: %s %s\n", res.Error.Code, res.Error.Message)
	}
	fmt.Printf("SUMMARY: %s\n", res.Summary)
}

func renderTrail(trail []agent.IterationRecord) {
	if len(trail) == 0 {
		return
	}
	fmt.Println()
	for _, rec := range trail {
		ux.Muted(fmt.Sprintf("iteration %d (%dms)", rec.Index, rec.DurationMs))

		// Results carry the command index they executed for.
		exitCodes := make(map[int]int, len(rec.Results))
		for _, r := range rec.Results {
			exitCodes[r.Index] = r.ExitCode
		}

		for i, cmd := range rec.Commands {
			line := "  "
			code, ran := exitCodes[i]
			switch {
			case i < len(rec.Verdicts) && !rec.Verdicts[i].Allowed():
				line += ux.IconError.Render() + " " + cmd.String() +
					" " + ux.Styles.Muted.Render("(blocked: "+rec.Verdicts[i].Reason+")")
			case ran && code != 0:
				line += ux.IconWarning.Render() + " " + cmd.String() +
					" " + ux.Styles.Muted.Render(fmt.Sprintf("(exit %d)", code))
			case ran:
				line += ux.IconSuccess.Render() + " " + cmd.String()
			default:
				line += ux.IconPending.Render() + " " + cmd.String()
			}
			fmt.Println(line)
		}

		for _, f := range rec.Findings {
			fmt.Printf("  %s %s\n", ux.IconArrow.Render(),
				ux.Styles.Subtitle.Render(fmt.Sprintf("%s (%.2f)", f.Signature, f.Confidence)))
		}
	}
}

func statusBadge(status string) (ux.Icon, lipgloss.Style) {
	switch status {
	case agent.StatusResolved, agent.StatusCompleted:
		return ux.IconSuccess, ux.Styles.Success
	case agent.StatusBlocked:
		return ux.IconWarning, ux.Styles.Warning
	case agent.StatusExhausted, agent.StatusAborted:
		return ux.IconError, ux.Styles.Error
	default:
		return ux.IconPending, ux.Styles.Muted
	}
}
