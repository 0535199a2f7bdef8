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
	"fmt"
	"os"
	"strings"

	"github.com/AleutianAI/ClusterBuddy/pkg/ux"
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	serverAddr       string // Base URL of the clusterbuddy server
	personalityLevel string // UX personality level (full/standard/minimal/machine)

	rootCmd = &cobra.Command{
		Use:   "cbctl",
		Short: "A CLI for the Cluster Buddy Kubernetes triage server",
		Long: `cbctl sends plain-language cluster questions to a running
clusterbuddy server, which classifies them, runs safety-gated kubectl
investigations, and reports root-cause hypotheses.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Initialize UX personality from flag or environment
			if personalityLevel != "" {
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityLevel))
			} else {
				ux.InitPersonality()
			}
		},
	}

	// --- Triage family ---
	triageCmd = &cobra.Command{
		Use:   "triage [question]",
		Short: "Investigate a cluster problem (iterative, read-only)",
		Long: `Runs a bounded investigation loop against the cluster: the server
generates read-only kubectl commands, checks each against the safety
gate, executes the survivors, and matches the output against known
failure signatures until it reaches a confident root-cause hypothesis
or exhausts its iteration budget.

The question can also be piped on stdin:
  echo "why is web-0 crashlooping in prod" | cbctl triage`,
		Run: runTriageCommand, // Defined in cmd_triage.go
	}
	askCmd = &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask an informational question (single read-only pass)",
		Run:   runAskCommand, // Defined in cmd_triage.go
	}
	actCmd = &cobra.Command{
		Use:   "act [request]",
		Short: "Request a cluster mutation (gated by explicit permission flags)",
		Long: `Sends a mutation request (scale, restart, delete, ...) to the server.
Every generated command still passes the safety gate; without the
matching --allow-* flag the gate blocks it and nothing runs.`,
		Run: runActCommand, // Defined in cmd_triage.go
	}

	// --- Sessions ---
	sessionCmd = &cobra.Command{
		Use:   "session",
		Short: "Inspect live and archived investigation sessions",
	}
	sessionListCmd = &cobra.Command{
		Use:   "list",
		Short: "List investigation sessions, live first",
		Run:   runSessionList, // Defined in cmd_session.go
	}
	sessionShowCmd = &cobra.Command{
		Use:   "show [session_id]",
		Short: "Show one session with its best hypothesis",
		Args:  cobra.ExactArgs(1),
		Run:   runSessionShow, // Defined in cmd_session.go
	}
	sessionDeleteCmd = &cobra.Command{
		Use:   "delete [session_id]",
		Short: "Abort a live session or delete an archived one",
		Args:  cobra.ExactArgs(1),
		Run:   runSessionDelete, // Defined in cmd_session.go
	}
	sessionWatchCmd = &cobra.Command{
		Use:   "watch [session_id]",
		Short: "Stream a live session's progress events",
		Long: `Connects to the server's event stream for one session and prints
each investigation step as it happens. The first frame is a snapshot of
the session so far; the stream ends when the session finishes.`,
		Args: cobra.ExactArgs(1),
		Run:  runSessionWatch, // Defined in cmd_watch.go
	}

	// --- Service status ---
	healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Show server health and collaborator status",
		Run:   runHealthCommand, // Defined in cmd_health.go
	}
	examplesCmd = &cobra.Command{
		Use:   "examples",
		Short: "Show example queries for each intent tier",
		Run:   runExamplesCommand, // Defined in cmd_session.go
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the cbctl and server versions",
		Run:   runVersionCommand,
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "",
		"Base URL of the clusterbuddy server (default $CLUSTERBUDDY_SERVER or http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&personalityLevel, "personality", "",
		"Output style: full (default), standard, minimal, or machine (scripting)")

	rootCmd.AddCommand(triageCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(actCmd)

	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionDeleteCmd)
	sessionCmd.AddCommand(sessionWatchCmd)

	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(examplesCmd)
	rootCmd.AddCommand(versionCmd)
}

// serverBaseURL resolves the server address: --server flag, then the
// CLUSTERBUDDY_SERVER environment variable, then the local default.
func serverBaseURL() string {
	if serverAddr != "" {
		return strings.TrimRight(serverAddr, "/")
	}
	if env := os.Getenv("CLUSTERBUDDY_SERVER"); env != "" {
		return strings.TrimRight(env, "/")
	}
	return "http://localhost:8080"
}

func apiURL(path string) string {
	return serverBaseURL() + path
}

func runVersionCommand(cmd *cobra.Command, args []string) {
	fmt.Printf("cbctl %s\n", cliVersion)
	if v, err := fetchServerVersion(); err != nil {
		ux.Muted(fmt.Sprintf("server %s: unreachable (%v)", serverBaseURL(), err))
	} else {
		fmt.Printf("server %s\n", v)
	}
}
