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
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/ClusterBuddy/pkg/ux"
	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/agent"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var watchJSONOutput bool

// watchDialTimeout bounds the handshake only. The stream itself stays
// open until the session finishes or the operator interrupts.
const watchDialTimeout = 10 * time.Second

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	sessionWatchCmd.Flags().BoolVar(&watchJSONOutput, "json", false,
		"Print each stream frame as a JSON line")
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

// streamFrame is one websocket message from the session stream. The
// snapshot frame carries Session; event frames carry the other fields.
type streamFrame struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Iteration int             `json:"iteration,omitempty"`
	State     string          `json:"state,omitempty"`
	Message   string          `json:"message,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Session   *sessionView    `json:"session,omitempty"`
}

// runSessionWatch executes the session watch command.
//
// # Description
//
// Dials the server's websocket stream for one session and renders each
// frame as it arrives. The first frame is always a snapshot; for a
// session that has already finished, the snapshot is the whole stream.
// Ctrl-C sends a close frame so the server logs a clean disconnect.
//
// # Examples
//
//	cbctl session watch 0f8a1c2e
//	cbctl session watch 0f8a1c2e --json | jq .type
//
// # Limitations
//
// Exits 1 when the session finishes in any state other than RESOLVED
// or COMPLETED, and when the stream drops unexpectedly.
func runSessionWatch(cmd *cobra.Command, args []string) {
	ws := mustDialStream(args[0])
	defer ws.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	type streamEnd struct {
		finalState string
		err        error
	}

	done := make(chan streamEnd, 1)
	go func() {
		end := streamEnd{}
		for {
			_, raw, err := ws.ReadMessage()
			if err != nil {
				// A normal close is how the server ends a stream for a
				// session that is already finished.
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					end.err = err
				}
				done <- end
				return
			}

			var frame streamFrame
			if err := json.Unmarshal(raw, &frame); err != nil {
				continue
			}

			if watchJSONOutput {
				os.Stdout.Write(raw)
				fmt.Println()
			} else {
				renderStreamFrame(frame)
			}

			switch frame.Type {
			case "snapshot":
				if frame.Session != nil {
					end.finalState = frame.Session.Status
				}
			case agent.EventSessionFinished:
				end.finalState = frame.State
				done <- end
				return
			}
		}
	}()

	select {
	case end := <-done:
		if end.err != nil {
			fmt.Fprintf(os.Stderr, "Error: stream dropped: %v\n", end.err)
			os.Exit(1)
		}
		if end.finalState != agent.StatusResolved && end.finalState != agent.StatusCompleted {
			os.Exit(1)
		}
	case <-interrupt:
		// Best effort: the server treats an abrupt drop the same way.
		ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
}

// mustDialStream connects to the stream endpoint for one session. On a
// handshake rejection the response body carries the API error envelope.
func mustDialStream(sessionID string) *websocket.Conn {
	url := streamURL("/v1/triage/sessions/" + sessionID + "/stream")

	dialer := websocket.Dialer{HandshakeTimeout: watchDialTimeout}
	ws, resp, err := dialer.Dial(url, nil)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			fmt.Fprintf(os.Stderr, "Error: %s\n", apiErrorMessage(resp.StatusCode, body))
		} else {
			fmt.Fprintf(os.Stderr, "Error: failed to connect to %s: %v\n", url, err)
		}
		os.Exit(1)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return ws
}

// streamURL rewrites the configured server base URL onto the websocket
// scheme.
func streamURL(path string) string {
	base := serverBaseURL()
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + path
}

// =============================================================================
// OUTPUT FORMATTING
// =============================================================================

func renderStreamFrame(frame streamFrame) {
	if frame.Type == "snapshot" {
		if frame.Session == nil {
			return
		}
		renderSessionDetail(*frame.Session)
		if frame.Session.Source == "live" {
			ux.Muted("streaming live events (ctrl-c to stop)")
		}
		return
	}

	if ux.GetPersonality().Level == ux.PersonalityMachine {
		fmt.Printf("%s\t%d\t%s\t%s\n", frame.Type, frame.Iteration, frame.State, frame.Message)
		return
	}

	switch frame.Type {
	case agent.EventSessionStarted:
		ux.Muted("investigation started")

	case agent.EventIterationStarted:
		fmt.Println()
		ux.Muted(fmt.Sprintf("iteration %d", frame.Iteration))

	case agent.EventCommandExecuted:
		var res struct {
			ExitCode int  `json:"exit_code"`
			TimedOut bool `json:"timed_out"`
		}
		json.Unmarshal(frame.Payload, &res)
		switch {
		case res.TimedOut:
			fmt.Printf("  %s %s %s\n", ux.IconWarning.Render(), frame.Message,
				ux.Styles.Muted.Render("(timed out)"))
		case res.ExitCode != 0:
			fmt.Printf("  %s %s %s\n", ux.IconWarning.Render(), frame.Message,
				ux.Styles.Muted.Render(fmt.Sprintf("(exit %d)", res.ExitCode)))
		default:
			fmt.Printf("  %s %s\n", ux.IconSuccess.Render(), frame.Message)
		}

	case agent.EventCommandBlocked:
		var verdict struct {
			Rule string `json:"rule"`
		}
		json.Unmarshal(frame.Payload, &verdict)
		line := fmt.Sprintf("  %s blocked: %s", ux.IconError.Render(), frame.Message)
		if verdict.Rule != "" {
			line += " " + ux.Styles.Muted.Render("("+verdict.Rule+")")
		}
		fmt.Println(line)

	case agent.EventFinding:
		var finding struct {
			Confidence float64 `json:"confidence"`
		}
		json.Unmarshal(frame.Payload, &finding)
		fmt.Printf("  %s %s %s\n", ux.IconArrow.Render(),
			ux.Styles.Subtitle.Render(frame.Message),
			ux.Styles.Muted.Render(fmt.Sprintf("(%.2f)", finding.Confidence)))

	case agent.EventStateTransition:
		if frame.Message != "" {
			ux.Muted(fmt.Sprintf("state %s: %s", frame.State, frame.Message))
		} else {
			ux.Muted("state " + frame.State)
		}

	case agent.EventSessionFinished:
		icon, style := statusBadge(frame.State)
		fmt.Printf("\n%s %s\n", icon.Render(), style.Render(frame.State))
		var hypothesis struct {
			Signature   string  `json:"signature"`
			Confidence  float64 `json:"confidence"`
			Remediation string  `json:"remediation"`
		}
		if err := json.Unmarshal(frame.Payload, &hypothesis); err == nil && hypothesis.Signature != "" {
			content := fmt.Sprintf("confidence %.2f", hypothesis.Confidence)
			if hypothesis.Remediation != "" {
				content += "\nfix: " + hypothesis.Remediation
			}
			ux.Box("Root cause: "+hypothesis.Signature, content)
		}
	}
}
