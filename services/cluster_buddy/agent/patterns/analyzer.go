// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package patterns

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/ClusterBuddy/pkg/logging"
	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/agent"
	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/datatypes"
)

// SignatureAnalyzer scans command output for known failure signatures.
//
// Description:
//
//	Matches each execution result against the signature registry and
//	produces one finding per matched signature, keeping the earliest
//	occurrence when several results trip the same signature. Matching is
//	deterministic: identical inputs always yield identical findings in
//	identical order.
//
// Thread Safety: This type is safe for concurrent use after initialization.
type SignatureAnalyzer struct {
	mu       sync.RWMutex
	registry *SignatureRegistry

	watchPath string
	logger    *logging.Logger
}

// AnalyzerOption configures a SignatureAnalyzer.
type AnalyzerOption func(*SignatureAnalyzer)

// WithRegistryPath forces loading from an explicit registry file. Loading
// fails hard when the file is missing or invalid.
func WithRegistryPath(path string) AnalyzerOption {
	return func(a *SignatureAnalyzer) {
		a.watchPath = path
	}
}

// WithLogger sets the analyzer's logger.
func WithLogger(logger *logging.Logger) AnalyzerOption {
	return func(a *SignatureAnalyzer) {
		a.logger = logger
	}
}

// NewSignatureAnalyzer creates an analyzer with a loaded registry.
//
// Inputs:
//
//	opts - Configuration options.
//
// Outputs:
//
//	*SignatureAnalyzer - Ready-to-use analyzer.
//	error - If the registry cannot be loaded or compiled.
func NewSignatureAnalyzer(opts ...AnalyzerOption) (*SignatureAnalyzer, error) {
	a := &SignatureAnalyzer{}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logging.Default()
	}

	registry, err := LoadRegistry(context.Background(), a.watchPath)
	if err != nil {
		return nil, err
	}
	a.registry = registry

	// Remember where the registry actually came from so Watch follows
	// discovered files too, not just explicitly configured ones.
	if registry.Source() != "embedded" {
		a.watchPath = registry.Source()
	}

	a.logger.Info("signature registry loaded",
		"source", registry.Source(),
		"signature_count", registry.Len(),
	)
	return a, nil
}

// Registry returns the current registry.
//
// Thread Safety: This method is safe for concurrent use.
func (a *SignatureAnalyzer) Registry() *SignatureRegistry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.registry
}

// Analyze scans execution results for signature matches.
//
// Description:
//
//	Results are scanned in slice order, signatures in registry order.
//	Each signature produces at most one finding, anchored to the first
//	result whose output matched. Failed results are scanned like any
//	other: stderr from a broken command often carries the best evidence.
//
// Inputs:
//
//	ctx - Context for tracing. May be nil.
//	results - Execution results in command order.
//
// Outputs:
//
//	[]datatypes.Finding - Matched findings, possibly empty. Never an error:
//	                      analysis of arbitrary text cannot fail, only
//	                      find nothing.
//
// Thread Safety: This method is safe for concurrent use.
func (a *SignatureAnalyzer) Analyze(ctx context.Context, results []datatypes.ExecutionResult) []datatypes.Finding {
	if ctx == nil {
		ctx = context.Background()
	}

	_, span := patternsTracer.Start(ctx, "patterns.SignatureAnalyzer.Analyze",
		trace.WithAttributes(attribute.Int("result_count", len(results))),
	)
	defer span.End()

	start := time.Now()
	registry := a.Registry()

	var findings []datatypes.Finding
	matched := make(map[string]struct{})

	for _, result := range results {
		text := result.CombinedOutput()
		if strings.TrimSpace(text) == "" {
			continue
		}
		for _, sig := range registry.Signatures() {
			if _, done := matched[sig.ID]; done {
				continue
			}
			excerpt, ok := sig.FirstMatch(text)
			if !ok {
				continue
			}
			matched[sig.ID] = struct{}{}
			findings = append(findings, datatypes.Finding{
				Signature:    sig.ID,
				Confidence:   sig.Confidence,
				Evidence:     excerpt,
				Remediation:  sig.Remediation,
				CommandIndex: result.Index,
				Source:       datatypes.FindingSourceSignature,
			})
			recordFindingBySignature(ctx, sig.ID)
		}
	}

	span.SetAttributes(attribute.Int("finding_count", len(findings)))
	recordAnalyzeMetrics(ctx, time.Since(start), len(findings))
	return findings
}

// Watch hot-reloads the registry when its external file changes.
//
// Description:
//
//	Watches the external registry file and swaps in a freshly parsed
//	registry on each write. A file that fails to parse is logged and
//	ignored; the previous registry stays active. No-op when the registry
//	came from the embedded default. Blocks until the context is
//	cancelled; run in a goroutine.
//
// Inputs:
//
//	ctx - Context for cancellation.
//
// Outputs:
//
//	error - Non-nil if the watcher cannot be created or attached.
func (a *SignatureAnalyzer) Watch(ctx context.Context) error {
	if a.watchPath == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(a.watchPath); err != nil {
		return err
	}

	a.logger.Debug("watching signature registry", "path", a.watchPath)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			a.reload(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			a.logger.Warn("signature registry watcher error", "error", err.Error())

		case <-ctx.Done():
			a.logger.Debug("signature registry watcher stopping")
			return nil
		}
	}
}

// reload re-parses the external registry file and swaps it in.
func (a *SignatureAnalyzer) reload(ctx context.Context) {
	registry, err := LoadRegistry(ctx, a.watchPath)
	if err != nil {
		a.logger.Warn("signature registry reload failed, keeping previous",
			"path", a.watchPath,
			"error", err.Error(),
		)
		recordRegistryReload(ctx, false)
		return
	}

	a.mu.Lock()
	a.registry = registry
	a.mu.Unlock()

	a.logger.Info("signature registry reloaded",
		"path", a.watchPath,
		"signature_count", registry.Len(),
	)
	recordRegistryReload(ctx, true)
}

var _ agent.Analyzer = (*SignatureAnalyzer)(nil)
