// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/datatypes"
)

type fixedClassifier struct {
	intent datatypes.Intent
}

func (c fixedClassifier) Classify(_ context.Context, _ string) datatypes.Intent {
	return c.intent
}

// permissionGate blocks mutating verbs the caller's permissions do not
// cover, offering a read-only alternative for deletes.
type permissionGate struct{}

func (permissionGate) Evaluate(_ context.Context, cmd datatypes.CommandSpec, perms datatypes.Permissions, _ datatypes.Intent) datatypes.Verdict {
	if cmd.Verb() == "delete" && !perms.AllowDelete {
		alt := datatypes.CommandSpec{
			Args:      []string{"kubectl", "get", "pods", "-n", "prod"},
			Rationale: "inspect the targets before mutating them",
		}
		return datatypes.Verdict{
			Decision:    datatypes.DecisionBlock,
			Reason:      "delete operation not permitted: enable allow-delete",
			Risk:        datatypes.RiskHigh,
			Rule:        "mode",
			Alternative: &alt,
		}
	}
	return datatypes.Verdict{
		Decision: datatypes.DecisionAllow,
		Reason:   "read-only operation permitted",
		Risk:     datatypes.RiskLow,
		Rule:     "mode",
	}
}

type stubSummarizer struct {
	summary string
	err     error
	calls   int
}

func (s *stubSummarizer) Summarize(_ context.Context, _ datatypes.TriageRequest, _ *TriageResult) (string, error) {
	s.calls++
	return s.summary, s.err
}

func intentOf(tier datatypes.IntentTier) datatypes.Intent {
	return datatypes.Intent{Tier: tier}
}

func triageReq(query string) *datatypes.TriageRequest {
	return &datatypes.TriageRequest{
		Query:       query,
		Namespace:   "prod",
		Permissions: datatypes.Permissions{ReadOnly: true},
	}
}

// newTestOrchestrator wires an orchestrator whose investigation loop shares
// the given collaborators.
func newTestOrchestrator(t *testing.T, tier datatypes.IntentTier, deps Dependencies, opts ...OrchestratorOption) *Orchestrator {
	t.Helper()
	loop := newTestLoop(t, deps)
	o, err := NewOrchestrator(OrchestratorDependencies{
		Classifier: fixedClassifier{intent: intentOf(tier)},
		Loop:       loop,
		Generator:  deps.Generator,
		Gate:       deps.Gate,
		Runner:     deps.Runner,
		Analyzer:   deps.Analyzer,
		Fallback:   deps.Fallback,
		Logger:     quietLogger(),
	}, opts...)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	return o
}

func TestNewOrchestrator_MissingCollaborators(t *testing.T) {
	loop := newTestLoop(t, Dependencies{
		Generator: &scriptedGenerator{},
		Gate:      allowAllGate(),
		Runner:    &stubRunner{},
		Analyzer:  noFindingsAnalyzer{},
	})
	base := func() OrchestratorDependencies {
		return OrchestratorDependencies{
			Classifier: fixedClassifier{intent: intentOf(datatypes.TierInformational)},
			Loop:       loop,
			Generator:  &scriptedGenerator{},
			Gate:       allowAllGate(),
			Runner:     &stubRunner{},
			Logger:     quietLogger(),
		}
	}

	tests := []struct {
		name   string
		mutate func(*OrchestratorDependencies)
	}{
		{"nil classifier", func(d *OrchestratorDependencies) { d.Classifier = nil }},
		{"nil loop", func(d *OrchestratorDependencies) { d.Loop = nil }},
		{"nil generator", func(d *OrchestratorDependencies) { d.Generator = nil }},
		{"nil gate", func(d *OrchestratorDependencies) { d.Gate = nil }},
		{"nil runner", func(d *OrchestratorDependencies) { d.Runner = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := base()
			tt.mutate(&deps)
			if _, err := NewOrchestrator(deps); !errors.Is(err, ErrMissingCollaborator) {
				t.Fatalf("expected ErrMissingCollaborator, got %v", err)
			}
		})
	}

	if _, err := NewOrchestrator(base()); err != nil {
		t.Fatalf("complete dependency set rejected: %v", err)
	}
}

func TestNewOrchestrator_InvalidDefaultsRejected(t *testing.T) {
	loop := newTestLoop(t, Dependencies{
		Generator: &scriptedGenerator{},
		Gate:      allowAllGate(),
		Runner:    &stubRunner{},
		Analyzer:  noFindingsAnalyzer{},
	})
	_, err := NewOrchestrator(OrchestratorDependencies{
		Classifier: fixedClassifier{intent: intentOf(datatypes.TierInformational)},
		Loop:       loop,
		Generator:  &scriptedGenerator{},
		Gate:       allowAllGate(),
		Runner:     &stubRunner{},
		Logger:     quietLogger(),
	}, WithSessionConfig(SessionConfig{}))
	if !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
}

func TestOrchestrator_RequestValidation(t *testing.T) {
	o := newTestOrchestrator(t, datatypes.TierInformational, Dependencies{
		Generator: &scriptedGenerator{batches: [][]datatypes.CommandSpec{{describeCmd("x")}}},
		Gate:      allowAllGate(),
		Runner:    &stubRunner{},
		Analyzer:  noFindingsAnalyzer{},
	})

	if _, err := o.Handle(context.Background(), nil); err == nil {
		t.Fatal("nil request accepted")
	}

	bad := triageReq("list pods")
	bad.MaxIterations = datatypes.MaxIterationsCeiling + 5
	result, err := o.Handle(context.Background(), bad)
	if err == nil {
		t.Fatal("out-of-range iteration budget accepted")
	}
	if result != nil {
		t.Fatalf("rejected request produced a result: %+v", result)
	}
}

func TestOrchestrator_TroubleshootingRoutesToLoop(t *testing.T) {
	cmd := describeCmd("payment-7f9c")
	runner := &stubRunner{outputs: map[string]string{
		cmd.String(): "State: Terminated\nReason: OOMKilled\nExit Code: 137",
	}}
	deps := Dependencies{
		Generator: &scriptedGenerator{batches: [][]datatypes.CommandSpec{{cmd}}},
		Gate:      allowAllGate(),
		Runner:    runner,
		Analyzer: &matchAnalyzer{needle: "OOMKilled", finding: datatypes.Finding{
			Signature:   "OOMKilled",
			Confidence:  0.95,
			Evidence:    "Reason: OOMKilled",
			Remediation: "Raise the container memory limit or fix the leak.",
		}},
	}
	o := newTestOrchestrator(t, datatypes.TierTroubleshooting, deps)

	req := triageReq("why does the payment pod keep dying")
	result, err := o.Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if result.Status != StatusResolved {
		t.Fatalf("status = %s, want RESOLVED", result.Status)
	}
	if result.SessionID == "" {
		t.Fatal("investigations must carry a session id")
	}
	if result.RequestID == "" {
		t.Fatal("request id must be filled in")
	}
	if result.Intent.Tier != datatypes.TierTroubleshooting {
		t.Fatalf("intent = %+v", result.Intent)
	}
	if result.Hypothesis == nil || result.Hypothesis.Signature != "OOMKilled" {
		t.Fatalf("hypothesis = %+v", result.Hypothesis)
	}
	if !strings.Contains(result.Summary, "OOMKilled") || !strings.Contains(result.Summary, "memory limit") {
		t.Fatalf("summary = %q, want the hypothesis and remediation", result.Summary)
	}
	if result.Iterations != 1 || len(result.Trail) != 1 {
		t.Fatalf("iterations = %d, trail = %d", result.Iterations, len(result.Trail))
	}
}

func TestOrchestrator_ActionDirectPass(t *testing.T) {
	scale := datatypes.CommandSpec{
		Args:      []string{"kubectl", "scale", "deployment", "web", "--replicas", "3", "-n", "prod"},
		Rationale: "scale the deployment as requested",
	}
	runner := &stubRunner{outputs: map[string]string{scale.String(): "deployment.apps/web scaled"}}
	o := newTestOrchestrator(t, datatypes.TierAction, Dependencies{
		Generator: &scriptedGenerator{batches: [][]datatypes.CommandSpec{{scale}}},
		Gate:      allowAllGate(),
		Runner:    runner,
		Analyzer:  noFindingsAnalyzer{},
	})

	req := triageReq("scale web to 3 replicas")
	req.Permissions = datatypes.Permissions{AllowUpdate: true}
	result, err := o.Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if result.Status != StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", result.Status)
	}
	if result.SessionID != "" {
		t.Fatal("direct requests must not open a session")
	}
	if result.Iterations != 1 || len(result.Trail) != 1 {
		t.Fatalf("direct pass recorded %d iterations, trail %d", result.Iterations, len(result.Trail))
	}
	if !strings.Contains(result.Summary, "Executed 1 command(s) in namespace prod") {
		t.Fatalf("summary = %q", result.Summary)
	}
	if got := runner.commands(); len(got) != 1 || !got[0].Equal(scale) {
		t.Fatalf("executed = %v", got)
	}
}

func TestOrchestrator_InformationalDirectPass(t *testing.T) {
	get := datatypes.CommandSpec{Args: []string{"kubectl", "get", "pods", "-n", "prod"}}
	o := newTestOrchestrator(t, datatypes.TierInformational, Dependencies{
		Generator: &scriptedGenerator{batches: [][]datatypes.CommandSpec{{get}}},
		Gate:      allowAllGate(),
		Runner:    &stubRunner{},
		Analyzer:  noFindingsAnalyzer{},
	})

	result, err := o.Handle(context.Background(), triageReq("show me the pods"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if result.Status != StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", result.Status)
	}
	if !strings.Contains(result.Summary, "Gathered information") {
		t.Fatalf("summary = %q", result.Summary)
	}
}

func TestOrchestrator_DirectPassStillGated(t *testing.T) {
	del := datatypes.CommandSpec{
		Args:      []string{"kubectl", "delete", "pod", "payment-7f9c", "-n", "prod"},
		Rationale: "remove the failing pod",
	}
	runner := &stubRunner{}
	o := newTestOrchestrator(t, datatypes.TierAction, Dependencies{
		Generator: &scriptedGenerator{batches: [][]datatypes.CommandSpec{{del}}},
		Gate:      permissionGate{},
		Runner:    runner,
		Analyzer:  noFindingsAnalyzer{},
	})

	// The caller asked for a delete but never granted allow-delete.
	req := triageReq("delete the failing payment pod")
	req.Permissions = datatypes.Permissions{ReadOnly: true}

	result, err := o.Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if result.Status != StatusBlocked {
		t.Fatalf("status = %s, want BLOCKED", result.Status)
	}
	if len(runner.commands()) != 0 {
		t.Fatalf("blocked request executed %d commands", len(runner.commands()))
	}
	if !strings.Contains(result.Summary, "allow-delete") {
		t.Fatalf("summary = %q, want the missing permission named", result.Summary)
	}
	if !strings.Contains(result.Summary, "Narrower alternative") {
		t.Fatalf("summary = %q, want the read-only alternative offered", result.Summary)
	}
	if len(result.Trail) != 1 || result.Trail[0].Verdicts[0].Allowed() {
		t.Fatalf("trail = %+v, want one block verdict", result.Trail)
	}
	if result.Error != nil {
		t.Fatalf("a clean block is not an error: %+v", result.Error)
	}
}

func TestOrchestrator_DirectGeneratorEmptyNoFallback(t *testing.T) {
	o := newTestOrchestrator(t, datatypes.TierInformational, Dependencies{
		Generator: &scriptedGenerator{},
		Gate:      allowAllGate(),
		Runner:    &stubRunner{},
		Analyzer:  noFindingsAnalyzer{},
	})

	result, err := o.Handle(context.Background(), triageReq("show me the pods"))
	if !errors.Is(err, ErrGeneratorUnavailable) {
		t.Fatalf("expected ErrGeneratorUnavailable, got %v", err)
	}
	if result != nil {
		t.Fatalf("expected no result, got %+v", result)
	}
}

func TestOrchestrator_DirectGeneratorEmptyWithFallback(t *testing.T) {
	runner := &stubRunner{}
	o := newTestOrchestrator(t, datatypes.TierInformational, Dependencies{
		Generator: &scriptedGenerator{},
		Gate:      allowAllGate(),
		Runner:    runner,
		Analyzer:  noFindingsAnalyzer{},
		Fallback:  testFallback,
	})

	result, err := o.Handle(context.Background(), triageReq("show me the pods"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if result.Status != StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", result.Status)
	}
	if !result.Trail[0].FallbackUsed {
		t.Fatal("fallback use must be recorded")
	}
	if len(runner.commands()) != 1 {
		t.Fatalf("executed %d commands, want the fallback", len(runner.commands()))
	}
}

func TestOrchestrator_DirectAllCommandsFailedCollapses(t *testing.T) {
	get := datatypes.CommandSpec{Args: []string{"kubectl", "get", "pods", "-n", "prod"}}
	o := newTestOrchestrator(t, datatypes.TierInformational, Dependencies{
		Generator: &scriptedGenerator{batches: [][]datatypes.CommandSpec{{get}}},
		Gate:      allowAllGate(),
		Runner:    &stubRunner{failAll: true},
		Analyzer:  noFindingsAnalyzer{},
	})

	result, err := o.Handle(context.Background(), triageReq("show me the pods"))
	if !errors.Is(err, ErrRunnerFailure) {
		t.Fatalf("expected ErrRunnerFailure, got %v", err)
	}
	if result == nil {
		t.Fatal("collapse must still return the audit trail")
	}
	if result.Error == nil || result.Error.Code != ErrCodeRunnerUnavailable {
		t.Fatalf("error = %+v, want code %s", result.Error, ErrCodeRunnerUnavailable)
	}
}

func TestOrchestrator_DirectPartialFailureIsNotCollapse(t *testing.T) {
	ok := datatypes.CommandSpec{Args: []string{"kubectl", "get", "pods", "-n", "prod"}}
	broken := datatypes.CommandSpec{Args: []string{"kubectl", "get", "pods", "-n", "missing-ns"}}
	runner := &stubRunner{outputs: map[string]string{ok.String(): "NAME READY STATUS"}}
	failingRunner := &selectiveFailRunner{inner: runner, failFor: broken.String()}
	o := newTestOrchestrator(t, datatypes.TierInformational, Dependencies{
		Generator: &scriptedGenerator{batches: [][]datatypes.CommandSpec{{ok, broken}}},
		Gate:      allowAllGate(),
		Runner:    failingRunner,
		Analyzer:  noFindingsAnalyzer{},
	})

	result, err := o.Handle(context.Background(), triageReq("show me the pods"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if result.Status != StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", result.Status)
	}
	if !strings.Contains(result.Summary, "(1 failed)") {
		t.Fatalf("summary = %q, want the failure count", result.Summary)
	}
	if result.Error != nil {
		t.Fatalf("partial failure produced an error payload: %+v", result.Error)
	}
}

// selectiveFailRunner fails exactly one command and delegates the rest.
type selectiveFailRunner struct {
	inner   *stubRunner
	failFor string
}

func (r *selectiveFailRunner) Execute(ctx context.Context, cmd datatypes.CommandSpec, timeout time.Duration) datatypes.ExecutionResult {
	if cmd.String() == r.failFor {
		return datatypes.ExecutionResult{Stderr: "namespace not found", ExitCode: 1, Error: "exit status 1"}
	}
	return r.inner.Execute(ctx, cmd, timeout)
}

func TestOrchestrator_SessionGeneratorCollapsePropagates(t *testing.T) {
	o := newTestOrchestrator(t, datatypes.TierTroubleshooting, Dependencies{
		Generator: &scriptedGenerator{}, // empty forever, no fallback
		Gate:      allowAllGate(),
		Runner:    &stubRunner{},
		Analyzer:  noFindingsAnalyzer{},
	})

	result, err := o.Handle(context.Background(), triageReq("why is my pod failing"))
	if !errors.Is(err, ErrGeneratorUnavailable) {
		t.Fatalf("expected ErrGeneratorUnavailable, got %v", err)
	}
	if result == nil {
		t.Fatal("collapse must still return the audit trail")
	}
	if result.Status != StatusAborted {
		t.Fatalf("status = %s, want ABORTED", result.Status)
	}
	if result.Error == nil || result.Error.Code != ErrCodeNoViableStep {
		t.Fatalf("error = %+v, want the loop's taxonomy preserved", result.Error)
	}
}

func TestOrchestrator_SessionRunnerCollapsePropagates(t *testing.T) {
	deps := Dependencies{
		Generator: &scriptedGenerator{batches: [][]datatypes.CommandSpec{{describeCmd("x")}}},
		Gate:      allowAllGate(),
		Runner:    &stubRunner{failAll: true},
		Analyzer:  noFindingsAnalyzer{},
	}
	o := newTestOrchestrator(t, datatypes.TierTroubleshooting, deps)

	req := triageReq("why is my pod failing")
	req.MaxIterations = 2

	result, err := o.Handle(context.Background(), req)
	if !errors.Is(err, ErrRunnerFailure) {
		t.Fatalf("expected ErrRunnerFailure, got %v", err)
	}
	if result.Status != StatusExhausted {
		t.Fatalf("status = %s, want EXHAUSTED", result.Status)
	}
	if result.Error == nil || result.Error.Code != ErrCodeRunnerUnavailable {
		t.Fatalf("error = %+v, want code %s", result.Error, ErrCodeRunnerUnavailable)
	}
}

func TestOrchestrator_RequestOverridesBudget(t *testing.T) {
	deps := Dependencies{
		Generator: &scriptedGenerator{batches: [][]datatypes.CommandSpec{{describeCmd("x")}}},
		Gate:      allowAllGate(),
		Runner:    &stubRunner{},
		Analyzer:  noFindingsAnalyzer{},
	}
	o := newTestOrchestrator(t, datatypes.TierTroubleshooting, deps)

	req := triageReq("why is my pod failing")
	req.MaxIterations = 2

	result, err := o.Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if result.Status != StatusExhausted {
		t.Fatalf("status = %s, want EXHAUSTED", result.Status)
	}
	if result.Iterations != 2 {
		t.Fatalf("iterations = %d, want the request's budget of 2", result.Iterations)
	}
}

func TestOrchestrator_RequestOverridesThreshold(t *testing.T) {
	deps := Dependencies{
		Generator: &scriptedGenerator{batches: [][]datatypes.CommandSpec{{describeCmd("x")}}},
		Gate:      allowAllGate(),
		Runner:    &stubRunner{},
		Analyzer: &scriptedAnalyzer{batches: [][]datatypes.Finding{
			{{Signature: "ProbeFailure", Confidence: 0.55, Source: datatypes.FindingSourceSignature}},
		}},
	}
	o := newTestOrchestrator(t, datatypes.TierTroubleshooting, deps)

	req := triageReq("why is my pod failing")
	req.ConfidenceThreshold = 0.50

	result, err := o.Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if result.Status != StatusResolved {
		t.Fatalf("status = %s, want RESOLVED under the lowered threshold", result.Status)
	}
	if result.Iterations != 1 {
		t.Fatalf("iterations = %d, want 1", result.Iterations)
	}
}

func TestOrchestrator_SummarizerPreferred(t *testing.T) {
	cmd := describeCmd("payment-7f9c")
	runner := &stubRunner{outputs: map[string]string{cmd.String(): "Reason: OOMKilled"}}
	deps := Dependencies{
		Generator: &scriptedGenerator{batches: [][]datatypes.CommandSpec{{cmd}}},
		Gate:      allowAllGate(),
		Runner:    runner,
		Analyzer:  &matchAnalyzer{needle: "OOMKilled", finding: datatypes.Finding{Signature: "OOMKilled", Confidence: 0.95}},
	}
	loop := newTestLoop(t, deps)
	summarizer := &stubSummarizer{summary: "The payment pod is being OOM killed; raise its memory limit."}

	o, err := NewOrchestrator(OrchestratorDependencies{
		Classifier: fixedClassifier{intent: intentOf(datatypes.TierTroubleshooting)},
		Loop:       loop,
		Generator:  deps.Generator,
		Gate:       deps.Gate,
		Runner:     deps.Runner,
		Analyzer:   deps.Analyzer,
		Summarizer: summarizer,
		Logger:     quietLogger(),
	})
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	result, err := o.Handle(context.Background(), triageReq("why does the payment pod keep dying"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if result.Summary != summarizer.summary {
		t.Fatalf("summary = %q, want the summarizer's text", result.Summary)
	}
	if summarizer.calls != 1 {
		t.Fatalf("summarizer called %d times, want 1", summarizer.calls)
	}
}

func TestOrchestrator_SummarizerFailureFallsBack(t *testing.T) {
	cmd := describeCmd("payment-7f9c")
	runner := &stubRunner{outputs: map[string]string{cmd.String(): "Reason: OOMKilled"}}
	deps := Dependencies{
		Generator: &scriptedGenerator{batches: [][]datatypes.CommandSpec{{cmd}}},
		Gate:      allowAllGate(),
		Runner:    runner,
		Analyzer:  &matchAnalyzer{needle: "OOMKilled", finding: datatypes.Finding{Signature: "OOMKilled", Confidence: 0.95}},
	}
	loop := newTestLoop(t, deps)

	o, err := NewOrchestrator(OrchestratorDependencies{
		Classifier: fixedClassifier{intent: intentOf(datatypes.TierTroubleshooting)},
		Loop:       loop,
		Generator:  deps.Generator,
		Gate:       deps.Gate,
		Runner:     deps.Runner,
		Analyzer:   deps.Analyzer,
		Summarizer: &stubSummarizer{err: errors.New("model overloaded")},
		Logger:     quietLogger(),
	})
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	result, err := o.Handle(context.Background(), triageReq("why does the payment pod keep dying"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !strings.Contains(result.Summary, "Investigation resolved") {
		t.Fatalf("summary = %q, want the deterministic fallback", result.Summary)
	}
	if !strings.Contains(result.Summary, "OOMKilled") {
		t.Fatalf("summary = %q, want the hypothesis named", result.Summary)
	}
}
