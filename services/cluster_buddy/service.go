// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cluster_buddy provides the Cluster Buddy HTTP service for
// Kubernetes incident triage.
//
// The service exposes endpoints for:
//   - Submitting triage requests (classify, investigate, execute)
//   - Observing live investigations over websocket
//   - Browsing live and archived investigation history
//   - Health and readiness probes
package cluster_buddy

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"time"

	"github.com/AleutianAI/ClusterBuddy/pkg/logging"
	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/agent"
	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/agent/classifier"
	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/agent/generator"
	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/agent/kubecontext"
	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/agent/patterns"
	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/agent/runner"
	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/agent/safety"
	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/datatypes"
	storage "github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/storage/badger"
	"github.com/AleutianAI/ClusterBuddy/services/llm"
)

// ErrInvalidServiceConfig indicates a ServiceConfig that cannot be used.
var ErrInvalidServiceConfig = errors.New("invalid service configuration")

// kubectlBinary is the executable the runner health check looks for.
const kubectlBinary = "kubectl"

// ServiceConfig configures the Cluster Buddy service.
type ServiceConfig struct {
	// Version is reported by GET /health.
	// Default: "dev"
	Version string

	// Session is the default per-session configuration. Requests may
	// narrow MaxIterations and ConfidenceThreshold per call.
	Session agent.SessionConfig

	// Generator configures the LLM command generator.
	Generator generator.GeneratorConfig

	// Gate configures the safety gate.
	Gate safety.GateConfig

	// Runner configures command execution.
	Runner runner.RunnerConfig

	// ArchivePath is the BadgerDB directory for finished investigations.
	// Empty means an in-memory archive (lost on restart).
	ArchivePath string

	// ArchiveMaxRecords caps archive retention.
	// Default: 1000
	ArchiveMaxRecords int

	// SessionCapacity caps the live session store.
	// Default: 100
	SessionCapacity int

	// SessionTTL is how long finished sessions stay queryable in the
	// live store before eviction.
	// Default: 1h
	SessionTTL time.Duration

	// MaxConcurrentSessions limits concurrently running investigations.
	// Default: 8 (0 = unlimited)
	MaxConcurrentSessions int

	// RiskEvaluator enables the LLM risk evaluator on the safety gate.
	// The gate degrades to deterministic rules when disabled or when the
	// evaluator cannot be built.
	RiskEvaluator bool

	// ClusterContext enables the client-go context provider that feeds
	// cluster state hints to the generator.
	ClusterContext bool

	// KubeconfigPath overrides kubeconfig discovery for the context
	// provider and executed commands.
	KubeconfigPath string
}

// DefaultServiceConfig returns production defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Version:               "dev",
		Session:               *agent.DefaultSessionConfig(),
		Generator:             generator.DefaultGeneratorConfig(),
		Gate:                  safety.DefaultGateConfig(),
		Runner:                runner.DefaultRunnerConfig(),
		ArchiveMaxRecords:     1000,
		SessionCapacity:       100,
		SessionTTL:            time.Hour,
		MaxConcurrentSessions: 8,
	}
}

// Validate checks the configuration for construction-time errors.
func (c *ServiceConfig) Validate() error {
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("%w: session defaults: %v", ErrInvalidServiceConfig, err)
	}
	if c.ArchiveMaxRecords < 0 {
		return fmt.Errorf("%w: ArchiveMaxRecords must be >= 0", ErrInvalidServiceConfig)
	}
	if c.SessionCapacity < 0 {
		return fmt.Errorf("%w: SessionCapacity must be >= 0", ErrInvalidServiceConfig)
	}
	if c.MaxConcurrentSessions < 0 {
		return fmt.Errorf("%w: MaxConcurrentSessions must be >= 0", ErrInvalidServiceConfig)
	}
	return nil
}

// Service is the Cluster Buddy triage service.
//
// Thread Safety: Service is safe for concurrent use. Multiple goroutines
// can call any combination of methods simultaneously.
type Service struct {
	config  ServiceConfig
	logger  *logging.Logger
	metrics *TriageMetrics

	llmClient  llm.LLMClient
	classifier agent.Classifier
	generator  agent.Generator
	gate       agent.SafetyGate
	runner     agent.Runner
	analyzer   agent.Analyzer
	assessor   agent.Assessor
	provider   agent.ContextProvider
	summarizer agent.Summarizer

	store        *agent.InMemorySessionStore
	loop         *agent.DefaultInvestigationLoop
	orchestrator *agent.Orchestrator
	archive      *storage.ArchiveStore
	bus          *EventBus

	// execRunner records that the service built the default exec runner,
	// which makes the kubectl PATH check meaningful for health reports.
	execRunner  bool
	stopMetrics func()
}

// ServiceOption injects a collaborator, replacing the default the service
// would otherwise build.
type ServiceOption func(*Service)

// WithLLMClient sets the LLM client shared by the generator, summarizer,
// assessor, and risk evaluator.
func WithLLMClient(client llm.LLMClient) ServiceOption {
	return func(s *Service) { s.llmClient = client }
}

// WithClassifier replaces the keyword classifier.
func WithClassifier(c agent.Classifier) ServiceOption {
	return func(s *Service) { s.classifier = c }
}

// WithGenerator replaces the LLM command generator.
func WithGenerator(g agent.Generator) ServiceOption {
	return func(s *Service) { s.generator = g }
}

// WithGate replaces the safety gate.
func WithGate(g agent.SafetyGate) ServiceOption {
	return func(s *Service) { s.gate = g }
}

// WithRunner replaces the exec runner.
func WithRunner(r agent.Runner) ServiceOption {
	return func(s *Service) { s.runner = r }
}

// WithAnalyzer replaces the signature analyzer.
func WithAnalyzer(a agent.Analyzer) ServiceOption {
	return func(s *Service) { s.analyzer = a }
}

// WithAssessor replaces the LLM confidence assessor.
func WithAssessor(a agent.Assessor) ServiceOption {
	return func(s *Service) { s.assessor = a }
}

// WithContextProvider replaces the cluster context provider.
func WithContextProvider(p agent.ContextProvider) ServiceOption {
	return func(s *Service) { s.provider = p }
}

// WithSummarizer replaces the LLM summarizer.
func WithSummarizer(sum agent.Summarizer) ServiceOption {
	return func(s *Service) { s.summarizer = sum }
}

// WithServiceLogger sets the service logger.
func WithServiceLogger(logger *logging.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithTriageMetrics sets the metrics sink. Defaults to DefaultMetrics,
// which is nil (and therefore inert) unless InitMetrics was called.
func WithTriageMetrics(m *TriageMetrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithArchive replaces the archive store. The service takes ownership
// and closes it on Close.
func WithArchive(a *storage.ArchiveStore) ServiceOption {
	return func(s *Service) { s.archive = a }
}

// NewService creates the triage service.
//
// Description:
//
//	Builds the full collaborator graph: keyword classifier, LLM command
//	generator, safety gate (optionally with an LLM risk evaluator), exec
//	runner, signature analyzer, confidence assessor, cluster context
//	provider, summarizer, the investigation loop, the orchestrator, and
//	the badger archive. Any collaborator can be replaced via options;
//	the LLM client defaults to NewClientFromEnv.
//
// Inputs:
//
//	config - Service configuration.
//	opts - Collaborator overrides.
//
// Outputs:
//
//	*Service - The wired service. Caller must call Close().
//	error - Non-nil when configuration is invalid or a required
//	        collaborator cannot be built.
func NewService(config ServiceConfig, opts ...ServiceOption) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	s := &Service{config: config}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.Default()
	}
	if s.metrics == nil {
		s.metrics = DefaultMetrics
	}
	s.bus = NewEventBus()

	if err := s.buildCollaborators(); err != nil {
		return nil, err
	}

	store := agent.NewInMemorySessionStore(
		agent.WithCapacity(config.SessionCapacity),
		agent.WithTTL(config.SessionTTL),
	)
	s.store = store

	loop, err := agent.NewInvestigationLoop(agent.Dependencies{
		Generator:    s.generator,
		Gate:         s.gate,
		Runner:       s.runner,
		Analyzer:     s.analyzer,
		Assessor:     s.assessor,
		Context:      s.provider,
		Fallback:     generator.FallbackCommands,
		Store:        store,
		Logger:       s.logger,
		EventHandler: s.bus.Handler(),
	}, agent.WithMaxConcurrentSessions(config.MaxConcurrentSessions))
	if err != nil {
		return nil, fmt.Errorf("build investigation loop: %w", err)
	}
	s.loop = loop

	orch, err := agent.NewOrchestrator(agent.OrchestratorDependencies{
		Classifier:   s.classifier,
		Loop:         loop,
		Generator:    s.generator,
		Gate:         s.gate,
		Runner:       s.runner,
		Analyzer:     s.analyzer,
		Fallback:     generator.FallbackCommands,
		Summarizer:   s.summarizer,
		Logger:       s.logger,
		EventHandler: s.bus.Handler(),
	}, agent.WithSessionConfig(config.Session))
	if err != nil {
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}
	s.orchestrator = orch

	if s.archive == nil {
		archiveCfg := storage.InMemoryConfig()
		if config.ArchivePath != "" {
			archiveCfg = storage.DefaultConfig()
			archiveCfg.Path = config.ArchivePath
		}
		archive, err := storage.OpenArchive(archiveCfg,
			storage.WithMaxRecords(config.ArchiveMaxRecords),
			storage.WithArchiveLogger(s.logger.Slog()),
		)
		if err != nil {
			return nil, fmt.Errorf("open archive: %w", err)
		}
		s.archive = archive
	}

	events, cancel := s.bus.Subscribe("")
	s.stopMetrics = cancel
	go s.trackActiveInvestigations(events)

	return s, nil
}

// buildCollaborators fills every collaborator slot not set by options.
func (s *Service) buildCollaborators() error {
	needsClient := s.llmClient == nil &&
		(s.generator == nil || s.summarizer == nil || s.assessor == nil ||
			(s.config.RiskEvaluator && s.gate == nil))
	if needsClient {
		client, err := llm.NewClientFromEnv()
		if err != nil {
			if s.generator == nil {
				return fmt.Errorf("llm client: %w", err)
			}
			s.logger.Warn("llm client unavailable, summarizer and assessor disabled", "error", err)
		} else {
			s.llmClient = client
		}
	}

	if s.classifier == nil {
		s.classifier = classifier.NewKeywordClassifier(classifier.WithLogger(s.logger))
	}

	if s.generator == nil {
		gen, err := generator.NewLLMGenerator(s.llmClient, s.config.Generator, generator.WithLogger(s.logger))
		if err != nil {
			return fmt.Errorf("build generator: %w", err)
		}
		s.generator = gen
	}

	if s.gate == nil {
		gateOpts := []safety.GateOption{safety.WithLogger(s.logger)}
		if s.config.RiskEvaluator && s.llmClient != nil {
			evaluator, err := safety.NewLLMEvaluator(s.llmClient, safety.DefaultEvaluatorConfig())
			if err != nil {
				s.logger.Warn("risk evaluator unavailable, gate degrades to deterministic rules", "error", err)
			} else {
				gateOpts = append(gateOpts, safety.WithEvaluator(evaluator))
			}
		}
		gateCfg := s.config.Gate
		s.gate = safety.NewGate(&gateCfg, gateOpts...)
	}

	if s.runner == nil {
		runnerCfg := s.config.Runner
		if runnerCfg.KubeconfigPath == "" {
			runnerCfg.KubeconfigPath = s.config.KubeconfigPath
		}
		s.runner = runner.NewExecRunner(&runnerCfg, runner.WithLogger(s.logger))
		s.execRunner = true
	}

	if s.analyzer == nil {
		analyzer, err := patterns.NewSignatureAnalyzer(patterns.WithLogger(s.logger))
		if err != nil {
			return fmt.Errorf("build analyzer: %w", err)
		}
		s.analyzer = analyzer
	}

	if s.assessor == nil && s.llmClient != nil {
		assessor, err := patterns.NewLLMAssessor(s.llmClient, patterns.WithAssessorLogger(s.logger))
		if err != nil {
			s.logger.Warn("confidence assessor unavailable", "error", err)
		} else {
			s.assessor = assessor
		}
	}

	if s.provider == nil && s.config.ClusterContext {
		provider, err := kubecontext.NewClusterProvider(s.config.KubeconfigPath, kubecontext.WithLogger(s.logger))
		if err != nil {
			s.logger.Warn("cluster context provider unavailable", "error", err)
		} else {
			s.provider = provider
		}
	}

	if s.summarizer == nil && s.llmClient != nil {
		summarizer, err := NewLLMSummarizer(s.llmClient)
		if err != nil {
			s.logger.Warn("summarizer unavailable", "error", err)
		} else {
			s.summarizer = summarizer
		}
	}

	return nil
}

// trackActiveInvestigations keeps the active-investigations gauge in step
// with session lifecycle events.
func (s *Service) trackActiveInvestigations(events <-chan agent.Event) {
	for event := range events {
		switch event.Type {
		case agent.EventSessionStarted:
			s.metrics.InvestigationStarted()
		case agent.EventSessionFinished:
			s.metrics.InvestigationEnded()
		}
	}
}

// Bus exposes the event bus for websocket subscriptions.
func (s *Service) Bus() *EventBus {
	return s.bus
}

// Query processes one triage request end to end.
//
// Description:
//
//	Delegates to the orchestrator, records metrics, and archives the
//	outcome. A collapsed session returns both the partial result and the
//	collapse error, exactly as the orchestrator reports it.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	req - The triage request. Defaults are filled in place.
//
// Outputs:
//
//	*agent.Result - The outcome. Non-nil whenever handling started.
//	error - Validation failure or wholesale collapse.
//
// Thread Safety: This method is safe for concurrent use.
func (s *Service) Query(ctx context.Context, req *datatypes.TriageRequest) (*agent.Result, error) {
	result, err := s.orchestrator.Handle(ctx, req)
	if result == nil {
		s.metrics.RecordRequest("unknown", "rejected")
		return nil, err
	}

	s.recordResult(result)
	s.archiveResult(ctx, req, result)
	return result, err
}

// recordResult translates one result into metrics.
func (s *Service) recordResult(result *agent.Result) {
	s.metrics.RecordRequest(result.Intent.Tier.String(), result.Status)
	if result.SessionID != "" {
		s.metrics.RecordInvestigation(result.Status, result.Iterations)
	}
	for _, rec := range result.Trail {
		for _, verdict := range rec.Verdicts {
			s.metrics.RecordVerdict(string(verdict.Decision), string(verdict.Risk))
		}
		for _, res := range rec.Results {
			s.metrics.RecordCommand(res.Command.Verb(), float64(res.DurationMs)/1000)
		}
	}
}

// archiveResult persists one finished result. Archive failures are logged,
// never surfaced: the operator already has their answer.
func (s *Service) archiveResult(ctx context.Context, req *datatypes.TriageRequest, result *agent.Result) {
	rec := &storage.Record{
		RequestID:  result.RequestID,
		SessionID:  result.SessionID,
		Query:      req.Query,
		Namespace:  req.Namespace,
		Intent:     result.Intent,
		Status:     result.Status,
		Summary:    result.Summary,
		Confidence: result.Confidence,
		Iterations: result.Iterations,
		Hypothesis: result.Hypothesis,
		Error:      result.Error,
		Trail:      result.Trail,
		DurationMs: result.DurationMs,
	}
	if err := s.archive.Put(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Warn("failed to archive investigation",
			"request_id", result.RequestID,
			"error", err,
		)
	}
}

// Health reports per-collaborator status.
//
// Outputs:
//
//	HealthResponse - "healthy" when the generator and runner are usable,
//	"degraded" otherwise, with a per-collaborator breakdown.
//
// Thread Safety: This method is safe for concurrent use.
func (s *Service) Health(ctx context.Context) HealthResponse {
	collaborators := make(map[string]string, 4)
	healthy := true

	if s.llmClient != nil {
		if err := s.llmClient.Health(ctx); err != nil {
			collaborators["generator"] = err.Error()
			healthy = false
		} else {
			collaborators["generator"] = "ok"
		}
	} else {
		collaborators["generator"] = "ok"
	}

	if s.execRunner {
		if _, err := exec.LookPath(kubectlBinary); err != nil {
			collaborators["runner"] = "kubectl not found in PATH"
			healthy = false
		} else {
			collaborators["runner"] = "ok"
		}
	} else {
		collaborators["runner"] = "ok"
	}

	if s.provider != nil {
		collaborators["context"] = "ok"
	} else {
		collaborators["context"] = "disabled"
	}
	collaborators["archive"] = "ok"

	status := "healthy"
	if !healthy {
		status = "degraded"
	}
	return HealthResponse{
		Status:        status,
		Version:       s.config.Version,
		Collaborators: collaborators,
	}
}

// Ready reports whether the service can accept triage requests.
func (s *Service) Ready(ctx context.Context) ReadyResponse {
	health := s.Health(ctx)
	if health.Status == "healthy" {
		return ReadyResponse{Ready: true}
	}
	for _, name := range []string{"generator", "runner"} {
		if v := health.Collaborators[name]; v != "ok" {
			return ReadyResponse{Ready: false, Reason: name + ": " + v}
		}
	}
	return ReadyResponse{Ready: true}
}

// ListSessions returns live sessions followed by archived results, both
// newest first. Sessions present in both places appear once, as live.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	limit - Maximum sessions to return. Zero or negative means all.
//
// Thread Safety: This method is safe for concurrent use.
func (s *Service) ListSessions(ctx context.Context, limit int) (*SessionListResponse, error) {
	var views []SessionView
	live := make(map[string]bool)

	for _, id := range s.store.List() {
		snapshot, err := s.loop.GetSnapshot(id)
		if err != nil {
			continue
		}
		views = append(views, sessionViewFromSnapshot(snapshot))
		live[id] = true
	}
	sort.Slice(views, func(i, j int) bool {
		return views[i].UpdatedAt.After(views[j].UpdatedAt)
	})

	records, err := s.archive.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list archive: %w", err)
	}
	for _, rec := range records {
		if rec.SessionID != "" && live[rec.SessionID] {
			continue
		}
		views = append(views, sessionViewFromRecord(rec))
	}

	if limit > 0 && len(views) > limit {
		views = views[:limit]
	}
	return &SessionListResponse{Sessions: views, Count: len(views)}, nil
}

// GetSession returns one session by session or request ID, checking live
// sessions before the archive.
//
// Outputs:
//
//	*SessionView - The session.
//	error - agent.ErrSessionNotFound when neither store knows the ID.
//
// Thread Safety: This method is safe for concurrent use.
func (s *Service) GetSession(ctx context.Context, id string) (*SessionView, error) {
	if snapshot, err := s.loop.GetSnapshot(id); err == nil {
		view := sessionViewFromSnapshot(snapshot)
		return &view, nil
	}

	rec, err := s.archive.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, agent.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	view := sessionViewFromRecord(rec)
	return &view, nil
}

// DeleteSession aborts a running session or deletes a finished one.
//
// Description:
//
//	A running live session is aborted cooperatively and kept; its result
//	is archived when the in-flight request returns. A finished live
//	session is removed from the live store and the archive. An archived
//	session is removed from the archive.
//
// Outputs:
//
//	string - "aborted" or "deleted".
//	error - agent.ErrSessionNotFound when the ID matches nothing.
//
// Thread Safety: This method is safe for concurrent use.
func (s *Service) DeleteSession(ctx context.Context, id string) (string, error) {
	if snapshot, err := s.loop.GetSnapshot(id); err == nil {
		if !snapshot.State.IsTerminal() {
			if err := s.loop.Abort(ctx, id); err != nil {
				return "", err
			}
			return "aborted", nil
		}
		s.store.Delete(id)
		if err := s.archive.Delete(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("failed to delete archived session", "session_id", id, "error", err)
		}
		return "deleted", nil
	}

	err := s.archive.Delete(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return "", agent.ErrSessionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("delete archive: %w", err)
	}
	return "deleted", nil
}

// Examples returns sample queries per intent tier.
func (s *Service) Examples() ExamplesResponse {
	examples := []QueryExample{
		{
			Query:       "why is the checkout pod crashlooping in payments",
			Tier:        datatypes.TierTroubleshooting.String(),
			Description: "Starts a full investigation session against the payments namespace.",
		},
		{
			Query:       "pods in staging keep restarting with OOMKilled",
			Tier:        datatypes.TierTroubleshooting.String(),
			Description: "Investigation that typically resolves on the OOMKilled signature.",
		},
		{
			Query:       "scale the api deployment to 5 replicas",
			Tier:        datatypes.TierAction.String(),
			Description: "Single mutation; requires allow_update in the request permissions.",
		},
		{
			Query:       "restart the ingestion deployment in data",
			Tier:        datatypes.TierAction.String(),
			Description: "Rollout restart; requires allow_update in the request permissions.",
		},
		{
			Query:       "list the pods in prod",
			Tier:        datatypes.TierInformational.String(),
			Description: "Read-only lookup; never opens an investigation session.",
		},
		{
			Query:       "show recent warning events in default",
			Tier:        datatypes.TierInformational.String(),
			Description: "Read-only event listing for the default namespace.",
		},
	}
	return ExamplesResponse{Examples: examples, Count: len(examples)}
}

// Close releases the event bus and the archive.
func (s *Service) Close() error {
	if s.stopMetrics != nil {
		s.stopMetrics()
	}
	s.bus.Close()
	if s.archive != nil {
		return s.archive.Close()
	}
	return nil
}

// sessionViewFromSnapshot converts a live session snapshot.
func sessionViewFromSnapshot(snapshot *agent.SessionSnapshot) SessionView {
	view := SessionView{
		ID:         snapshot.ID,
		Query:      snapshot.Query,
		Namespace:  snapshot.Namespace,
		Tier:       snapshot.Intent.Tier.String(),
		Status:     snapshot.State.String(),
		Iterations: snapshot.Iterations,
		Confidence: snapshot.Confidence,
		Source:     "live",
		UpdatedAt:  snapshot.LastActiveAt,
	}
	if snapshot.Hypothesis != nil {
		view.Signature = snapshot.Hypothesis.Signature
	}
	return view
}

// sessionViewFromRecord converts an archived record.
func sessionViewFromRecord(rec *storage.Record) SessionView {
	view := SessionView{
		ID:         rec.SessionID,
		RequestID:  rec.RequestID,
		Query:      rec.Query,
		Namespace:  rec.Namespace,
		Tier:       rec.Intent.Tier.String(),
		Status:     rec.Status,
		Iterations: rec.Iterations,
		Confidence: rec.Confidence,
		Summary:    rec.Summary,
		Source:     "archived",
		UpdatedAt:  rec.ArchivedAt,
	}
	if view.ID == "" {
		view.ID = rec.RequestID
	}
	if rec.Hypothesis != nil {
		view.Signature = rec.Hypothesis.Signature
	}
	return view
}
