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
	"os"
	"testing"
	"time"

	"github.com/AleutianAI/ClusterBuddy/pkg/ux"
	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/agent"
)

// =============================================================================
// serverBaseURL Tests
// =============================================================================

func TestServerBaseURL_FlagWins(t *testing.T) {
	orig := serverAddr
	defer func() { serverAddr = orig }()
	defer os.Unsetenv("CLUSTERBUDDY_SERVER")

	os.Setenv("CLUSTERBUDDY_SERVER", "http://from-env:9999")
	serverAddr = "http://from-flag:8080/"

	if got := serverBaseURL(); got != "http://from-flag:8080" {
		t.Errorf("expected flag value with trailing slash trimmed, got %q", got)
	}
}

func TestServerBaseURL_EnvFallback(t *testing.T) {
	orig := serverAddr
	defer func() { serverAddr = orig }()
	defer os.Unsetenv("CLUSTERBUDDY_SERVER")

	serverAddr = ""
	os.Setenv("CLUSTERBUDDY_SERVER", "https://triage.internal/")

	if got := serverBaseURL(); got != "https://triage.internal" {
		t.Errorf("expected env value with trailing slash trimmed, got %q", got)
	}
}

func TestServerBaseURL_Default(t *testing.T) {
	orig := serverAddr
	defer func() { serverAddr = orig }()

	serverAddr = ""
	os.Unsetenv("CLUSTERBUDDY_SERVER")

	if got := serverBaseURL(); got != "http://localhost:8080" {
		t.Errorf("expected local default, got %q", got)
	}
}

func TestAPIURL_JoinsPath(t *testing.T) {
	orig := serverAddr
	defer func() { serverAddr = orig }()

	serverAddr = "http://example:8080"

	if got := apiURL("/v1/triage/health"); got != "http://example:8080/v1/triage/health" {
		t.Errorf("unexpected URL %q", got)
	}
}

// =============================================================================
// streamURL Tests
// =============================================================================

func TestStreamURL_RewritesScheme(t *testing.T) {
	orig := serverAddr
	defer func() { serverAddr = orig }()

	tests := []struct {
		name string
		base string
		want string
	}{
		{"http", "http://localhost:8080", "ws://localhost:8080/v1/triage/sessions/abc/stream"},
		{"https", "https://triage.internal", "wss://triage.internal/v1/triage/sessions/abc/stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			serverAddr = tt.base
			got := streamURL("/v1/triage/sessions/abc/stream")
			if got != tt.want {
				t.Errorf("streamURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

// =============================================================================
// mustReadQuestion Tests
// =============================================================================

func TestMustReadQuestion_JoinsArgs(t *testing.T) {
	got := mustReadQuestion([]string{"why", "is", "web-0", "crashlooping"})
	if got != "why is web-0 crashlooping" {
		t.Errorf("expected joined args, got %q", got)
	}
}

// =============================================================================
// apiErrorMessage Tests
// =============================================================================

func TestAPIErrorMessage_Envelope(t *testing.T) {
	body := []byte(`{"error":"session not found","code":"SESSION_NOT_FOUND"}`)
	got := apiErrorMessage(404, body)
	if got != "session not found (SESSION_NOT_FOUND)" {
		t.Errorf("expected decoded envelope, got %q", got)
	}
}

func TestAPIErrorMessage_NonJSONBody(t *testing.T) {
	got := apiErrorMessage(502, []byte("upstream exploded"))
	if got != "server returned status 502: upstream exploded" {
		t.Errorf("expected raw fallback, got %q", got)
	}
}

func TestAPIErrorMessage_EmptyEnvelope(t *testing.T) {
	got := apiErrorMessage(500, []byte(`{}`))
	if got != "server returned status 500: {}" {
		t.Errorf("expected raw fallback for empty envelope, got %q", got)
	}
}

// =============================================================================
// statusBadge Tests
// =============================================================================

func TestStatusBadge_Icons(t *testing.T) {
	tests := []struct {
		status string
		want   ux.Icon
	}{
		{agent.StatusResolved, ux.IconSuccess},
		{agent.StatusCompleted, ux.IconSuccess},
		{agent.StatusBlocked, ux.IconWarning},
		{agent.StatusExhausted, ux.IconError},
		{agent.StatusAborted, ux.IconError},
		{"ITERATING", ux.IconPending},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			icon, _ := statusBadge(tt.status)
			if icon != tt.want {
				t.Errorf("statusBadge(%q) icon = %q, want %q", tt.status, icon, tt.want)
			}
		})
	}
}

// =============================================================================
// humanAge Tests
// =============================================================================

func TestHumanAge_Buckets(t *testing.T) {
	tests := []struct {
		name string
		age  time.Duration
		want string
	}{
		{"seconds", 30 * time.Second, "30s ago"},
		{"minutes", 5 * time.Minute, "5m ago"},
		{"hours", 3 * time.Hour, "3h ago"},
		{"days", 49 * time.Hour, "2d ago"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := humanAge(time.Now().Add(-tt.age))
			if got != tt.want {
				t.Errorf("humanAge(-%v) = %q, want %q", tt.age, got, tt.want)
			}
		})
	}
}
