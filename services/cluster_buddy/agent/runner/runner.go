// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package runner executes approved commands as argument vectors.
//
// The runner never involves a shell: the vector's first element is the
// binary, the rest are arguments passed verbatim. Timeouts kill the
// process and reap it; every failure mode lands inside the result rather
// than an error return, so one broken command can never abort the
// iteration that issued it.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/ClusterBuddy/pkg/logging"
	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/agent"
	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/datatypes"
)

var tracer = otel.Tracer("runner")

// waitDelay bounds how long Wait blocks on a killed process that left
// pipe readers behind.
const waitDelay = 5 * time.Second

// RunnerConfig configures the exec runner.
type RunnerConfig struct {
	// MaxOutputBytes caps captured stdout and stderr, each.
	MaxOutputBytes int

	// WorkingDir is the child process working directory. Empty means
	// inherit.
	WorkingDir string

	// KubeconfigPath, when set, is exported to the child as KUBECONFIG.
	KubeconfigPath string
}

// DefaultRunnerConfig returns production defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		MaxOutputBytes: 128 * 1024,
	}
}

// ExecRunner implements command execution over os/exec.
//
// Thread Safety: This type is safe for concurrent use. Each execution
// creates its own process.
type ExecRunner struct {
	config RunnerConfig
	logger *logging.Logger
}

// RunnerOption configures an ExecRunner.
type RunnerOption func(*ExecRunner)

// WithLogger sets the runner's logger.
func WithLogger(logger *logging.Logger) RunnerOption {
	return func(r *ExecRunner) {
		r.logger = logger
	}
}

// NewExecRunner creates a runner.
//
// Inputs:
//
//	config - Runner configuration. If nil, uses DefaultRunnerConfig().
//	opts - Configuration options.
//
// Outputs:
//
//	*ExecRunner - Ready-to-use runner.
func NewExecRunner(config *RunnerConfig, opts ...RunnerOption) *ExecRunner {
	cfg := DefaultRunnerConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = DefaultRunnerConfig().MaxOutputBytes
	}

	r := &ExecRunner{config: cfg}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logging.Default()
	}
	return r
}

// Execute runs one command and captures its outcome.
//
// Description:
//
//	Starts the vector's binary with the remaining elements as arguments,
//	captures capped stdout/stderr, and waits for exit. On timeout the
//	process is killed and reaped before returning. Exit codes, timeouts,
//	and launch failures are all recorded in the result; the method never
//	panics and has no error return by contract.
//
// Inputs:
//
//	ctx - Parent context. Cancellation kills the process.
//	spec - The command to execute. Must have a non-empty vector.
//	timeout - Per-command deadline. Zero or negative means no deadline
//	          beyond the parent context.
//
// Outputs:
//
//	datatypes.ExecutionResult - The complete outcome.
//
// Thread Safety: This method is safe for concurrent use.
func (r *ExecRunner) Execute(ctx context.Context, spec datatypes.CommandSpec, timeout time.Duration) datatypes.ExecutionResult {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := tracer.Start(ctx, "runner.ExecRunner.Execute",
		trace.WithAttributes(attribute.String("command", spec.String())),
	)
	defer span.End()

	result := datatypes.ExecutionResult{Command: spec}

	if len(spec.Args) == 0 {
		result.Error = "empty argument vector"
		result.ExitCode = -1
		span.SetAttributes(attribute.String("error", result.Error))
		return result
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, spec.Args[0], spec.Args[1:]...)
	cmd.WaitDelay = waitDelay
	if r.config.WorkingDir != "" {
		cmd.Dir = r.config.WorkingDir
	}
	if r.config.KubeconfigPath != "" {
		cmd.Env = append(os.Environ(), "KUBECONFIG="+r.config.KubeconfigPath)
	}

	var stdout, stderr bytes.Buffer
	stdoutCapped := &cappedWriter{w: &stdout, limit: r.config.MaxOutputBytes}
	stderrCapped := &cappedWriter{w: &stderr, limit: r.config.MaxOutputBytes}
	cmd.Stdout = stdoutCapped
	cmd.Stderr = stderrCapped

	r.logger.Debug("executing command",
		"command", spec.String(),
		"timeout", timeout.String(),
	)

	start := time.Now()
	err := cmd.Run()
	result.DurationMs = time.Since(start).Milliseconds()
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	switch {
	case ctx.Err() == context.DeadlineExceeded:
		result.TimedOut = true
		result.ExitCode = -1
		result.Error = fmt.Sprintf("timed out after %s", timeout)
		r.logger.Warn("command timed out",
			"command", spec.String(),
			"timeout", timeout.String(),
		)

	case ctx.Err() == context.Canceled:
		result.ExitCode = -1
		result.Error = "canceled"

	case err != nil:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			result.Error = err.Error()
		} else {
			result.ExitCode = -1
			result.Error = err.Error()
		}

	default:
		result.ExitCode = 0
	}

	if stdoutCapped.truncated || stderrCapped.truncated {
		r.logger.Debug("command output truncated",
			"command", spec.String(),
			"limit_bytes", r.config.MaxOutputBytes,
		)
	}

	span.SetAttributes(
		attribute.Int("exit_code", result.ExitCode),
		attribute.Bool("timed_out", result.TimedOut),
		attribute.Int64("duration_ms", result.DurationMs),
	)
	return result
}

// cappedWriter discards everything past the limit, remembering that it
// did. Reporting the full length upstream keeps the child's writes from
// failing mid-stream.
type cappedWriter struct {
	w         io.Writer
	limit     int
	written   int
	truncated bool
}

func (cw *cappedWriter) Write(p []byte) (int, error) {
	if cw.written >= cw.limit {
		cw.truncated = true
		return len(p), nil
	}

	chunk := p
	if remaining := cw.limit - cw.written; len(chunk) > remaining {
		chunk = chunk[:remaining]
		cw.truncated = true
	}

	n, err := cw.w.Write(chunk)
	cw.written += n
	if err != nil {
		return n, err
	}
	return len(p), nil
}

var _ agent.Runner = (*ExecRunner)(nil)
