// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package kubecontext supplies the investigation loop with compact,
// human-readable facts about the cluster under triage.
//
// Hints are advisory: they seed the generator's prompt so its first
// commands land near the fault instead of groping blindly, but every
// command still goes through the safety gate and the loop proceeds
// without hints when the cluster cannot be reached.
package kubecontext

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/AleutianAI/ClusterBuddy/pkg/logging"
	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/agent"
)

var kubecontextTracer = otel.Tracer("clusterbuddy/agent/kubecontext")

const (
	// maxHints caps the number of hint lines handed to the generator.
	// Prompts degrade when padded with cluster trivia.
	maxHints = 8

	// listLimit bounds every API list call. Triage needs a sketch of the
	// namespace, not an inventory of it.
	listLimit = 100

	// queryTimeout bounds the total time spent talking to the API server.
	// Hints are optional, so a slow control plane must not stall triage.
	queryTimeout = 5 * time.Second

	// maxNotablePods caps how many individual unhealthy pods are named.
	maxNotablePods = 3

	// maxEventHints caps how many warning events are surfaced.
	maxEventHints = 3
)

// StaticProvider returns a fixed set of hints.
//
// Description:
//
//	Useful for tests and for deployments where operators want to pin
//	context (for example "this cluster runs on spot instances") without
//	granting the triage service API access.
type StaticProvider struct {
	hints []string
}

// NewStaticProvider builds a provider that always returns the given lines.
// Blank lines are dropped; the rest are returned verbatim.
func NewStaticProvider(hints []string) *StaticProvider {
	kept := make([]string, 0, len(hints))
	for _, h := range hints {
		if s := strings.TrimSpace(h); s != "" {
			kept = append(kept, s)
		}
	}
	return &StaticProvider{hints: kept}
}

// Hints returns the configured lines regardless of namespace or target.
func (p *StaticProvider) Hints(_ context.Context, _, _ string) ([]string, error) {
	out := make([]string, len(p.hints))
	copy(out, p.hints)
	return out, nil
}

// ClusterProvider queries the Kubernetes API for a snapshot of the
// namespace under triage.
//
// Description:
//
//	Produces at most maxHints lines covering pod phase counts, the most
//	suspicious pods (with waiting reason and restart count), and recent
//	warning events. All queries are read-only and bounded by listLimit
//	and queryTimeout.
//
// Thread Safety: This type is safe for concurrent use.
type ClusterProvider struct {
	client kubernetes.Interface
	logger *logging.Logger
}

// ClusterProviderOption configures a ClusterProvider.
type ClusterProviderOption func(*ClusterProvider)

// WithLogger sets the structured logger.
func WithLogger(logger *logging.Logger) ClusterProviderOption {
	return func(p *ClusterProvider) {
		p.logger = logger
	}
}

// NewClusterProvider builds a provider from cluster credentials.
//
// Description:
//
//	With an empty kubeconfigPath the in-cluster service account config is
//	tried first, falling back to the default kubeconfig under the user's
//	home directory. A non-empty path is used directly.
//
// Outputs:
//   - *ClusterProvider: ready to serve hints.
//   - error: if no usable client configuration could be built.
func NewClusterProvider(kubeconfigPath string, opts ...ClusterProviderOption) (*ClusterProvider, error) {
	var config *rest.Config
	var err error

	if kubeconfigPath == "" {
		config, err = rest.InClusterConfig()
		if err != nil {
			if home, herr := os.UserHomeDir(); herr == nil && home != "" {
				kubeconfigPath = filepath.Join(home, ".kube", "config")
			}
		}
	}
	if config == nil {
		config, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
			&clientcmd.ClientConfigLoadingRules{ExplicitPath: kubeconfigPath},
			&clientcmd.ConfigOverrides{},
		).ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("build kube config: %w", err)
		}
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("create clientset: %w", err)
	}
	return NewClusterProviderFromClient(clientset, opts...), nil
}

// NewClusterProviderFromClient wraps an existing clientset.
//
// Description:
//
//	Intended for tests (with a fake clientset) and for callers that
//	already manage Kubernetes credentials themselves.
func NewClusterProviderFromClient(client kubernetes.Interface, opts ...ClusterProviderOption) *ClusterProvider {
	p := &ClusterProvider{
		client: client,
		logger: logging.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Hints summarizes the namespace for the generator.
//
// Description:
//
//	Lists pods and warning events in the namespace and condenses them
//	into short lines. When target names a specific workload, events are
//	narrowed to it. Returns an error only when the pod list itself
//	fails; a failed event query degrades to pod hints alone.
func (p *ClusterProvider) Hints(ctx context.Context, namespace, target string) ([]string, error) {
	ctx, span := kubecontextTracer.Start(ctx, "kubecontext.ClusterProvider.Hints")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	hints := make([]string, 0, maxHints)

	podHints, err := p.podHints(ctx, namespace)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list pods in %q: %w", namespace, err)
	}
	hints = append(hints, podHints...)

	eventHints, err := p.eventHints(ctx, namespace, target)
	if err != nil {
		p.logger.Warn("event query failed, continuing with pod hints only",
			"namespace", namespace, "error", err)
	} else {
		hints = append(hints, eventHints...)
	}

	if len(hints) > maxHints {
		hints = hints[:maxHints]
	}
	span.SetAttributes(attribute.Int("hint_count", len(hints)))
	return hints, nil
}

// podHints condenses the namespace's pods into phase counts plus the few
// most suspicious pods.
func (p *ClusterProvider) podHints(ctx context.Context, namespace string) ([]string, error) {
	pods, err := p.client.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{Limit: listLimit})
	if err != nil {
		return nil, err
	}
	if len(pods.Items) == 0 {
		return []string{fmt.Sprintf("namespace %s has no pods", namespace)}, nil
	}

	phases := map[corev1.PodPhase]int{}
	for _, pod := range pods.Items {
		phases[pod.Status.Phase]++
	}
	hints := []string{summarizePhases(namespace, len(pods.Items), phases)}

	notable := notablePods(pods.Items)
	for i, line := range notable {
		if i >= maxNotablePods {
			break
		}
		hints = append(hints, line)
	}
	return hints, nil
}

// summarizePhases renders one line of phase counts in a stable order.
func summarizePhases(namespace string, total int, phases map[corev1.PodPhase]int) string {
	names := make([]string, 0, len(phases))
	for phase := range phases {
		names = append(names, string(phase))
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%d %s", phases[corev1.PodPhase(name)], name))
	}
	return fmt.Sprintf("namespace %s has %d pods: %s", namespace, total, strings.Join(parts, ", "))
}

// notablePods names pods that look unhealthy, most-restarted first.
func notablePods(pods []corev1.Pod) []string {
	type suspect struct {
		line     string
		restarts int32
	}
	var suspects []suspect

	for _, pod := range pods {
		reason, restarts := podTrouble(pod)
		if reason == "" {
			continue
		}
		line := fmt.Sprintf("pod %s: %s", pod.Name, reason)
		if restarts > 0 {
			line = fmt.Sprintf("%s (%d restarts)", line, restarts)
		}
		suspects = append(suspects, suspect{line: line, restarts: restarts})
	}

	sort.SliceStable(suspects, func(i, j int) bool {
		return suspects[i].restarts > suspects[j].restarts
	})

	lines := make([]string, 0, len(suspects))
	for _, s := range suspects {
		lines = append(lines, s.line)
	}
	return lines
}

// podTrouble reports why a pod looks unhealthy, or "" when it does not.
// The waiting or terminated reason of a broken container wins over the
// bare phase since it names the actual fault (CrashLoopBackOff,
// ImagePullBackOff) rather than a symptom.
func podTrouble(pod corev1.Pod) (string, int32) {
	var restarts int32
	reason := ""

	for _, cs := range pod.Status.ContainerStatuses {
		restarts += cs.RestartCount
		if cs.State.Waiting != nil && cs.State.Waiting.Reason != "" && cs.State.Waiting.Reason != "ContainerCreating" {
			reason = cs.State.Waiting.Reason
		} else if cs.State.Terminated != nil && cs.State.Terminated.Reason != "" && cs.State.Terminated.Reason != "Completed" {
			reason = cs.State.Terminated.Reason
		}
	}

	if reason == "" {
		switch pod.Status.Phase {
		case corev1.PodFailed:
			reason = "Failed"
			if pod.Status.Reason != "" {
				reason = pod.Status.Reason
			}
		case corev1.PodPending:
			reason = "Pending"
		}
	}
	if reason == "" && restarts > 0 {
		reason = "restarting"
	}
	return reason, restarts
}

// eventHints surfaces recent warning events, narrowed to the target
// object when one is named.
func (p *ClusterProvider) eventHints(ctx context.Context, namespace, target string) ([]string, error) {
	selector := "type=Warning"
	if target != "" {
		selector = fmt.Sprintf("%s,involvedObject.name=%s", selector, target)
	}
	events, err := p.client.CoreV1().Events(namespace).List(ctx, metav1.ListOptions{
		FieldSelector: selector,
		Limit:         listLimit,
	})
	if err != nil {
		return nil, err
	}
	if len(events.Items) == 0 {
		return nil, nil
	}

	items := events.Items
	sort.SliceStable(items, func(i, j int) bool {
		return lastSeen(items[i]).After(lastSeen(items[j]))
	})

	hints := make([]string, 0, maxEventHints)
	for _, ev := range items {
		if len(hints) >= maxEventHints {
			break
		}
		msg := strings.TrimSpace(ev.Message)
		if msg == "" {
			continue
		}
		hints = append(hints, fmt.Sprintf("warning event on %s/%s: %s: %s",
			strings.ToLower(ev.InvolvedObject.Kind), ev.InvolvedObject.Name, ev.Reason, msg))
	}
	return hints, nil
}

// lastSeen picks the most recent timestamp an event carries. Different
// API versions populate different fields.
func lastSeen(ev corev1.Event) time.Time {
	if !ev.LastTimestamp.IsZero() {
		return ev.LastTimestamp.Time
	}
	if !ev.EventTime.IsZero() {
		return ev.EventTime.Time
	}
	return ev.CreationTimestamp.Time
}

var (
	_ agent.ContextProvider = (*StaticProvider)(nil)
	_ agent.ContextProvider = (*ClusterProvider)(nil)
)
