// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command clusterbuddy starts the Cluster Buddy triage API server.
//
// Cluster Buddy turns plain-language questions about a Kubernetes cluster
// into classified, safety-gated kubectl investigations:
//   - Intent classification (informational / troubleshooting / action)
//   - An iterative investigation loop with a confidence threshold
//   - A deterministic safety gate in front of every command
//   - Signature analysis over command output for known failure modes
//
// # Environment Variables
//
//   - CLUSTERBUDDY_PORT: HTTP server port (default: 8080)
//   - CLUSTERBUDDY_VERSION: Version string reported by /health (default: dev)
//   - CLUSTERBUDDY_LLM_PROVIDER: LLM provider - ollama, openai, anthropic (default: ollama)
//   - CLUSTERBUDDY_ARCHIVE_PATH: BadgerDB directory for finished
//     investigations (default: in-memory)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: localhost:4317)
//
// # Usage
//
//	go run ./cmd/clusterbuddy
//	go run ./cmd/clusterbuddy -port 9090 -debug
//
// With Ollama:
//
//	OLLAMA_BASE_URL=http://localhost:11434 OLLAMA_MODEL=glm-4.7-flash go run ./cmd/clusterbuddy
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/v1/triage/health
//
//	# Run a triage request
//	curl -X POST http://localhost:8080/v1/triage/query \
//	  -H "Content-Type: application/json" \
//	  -d '{"query": "why is the checkout pod crashlooping", "namespace": "payments"}'
//
//	# List investigations
//	curl http://localhost:8080/v1/triage/sessions | jq
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/ClusterBuddy/pkg/extensions"
	"github.com/AleutianAI/ClusterBuddy/pkg/logging"
	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy"
	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/middleware"
	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/telemetry"
)

func main() {
	port := flag.Int("port", getEnvInt("CLUSTERBUDDY_PORT", 8080), "Port to listen on")
	debug := flag.Bool("debug", false, "Enable debug mode")
	archivePath := flag.String("archive-path", os.Getenv("CLUSTERBUDDY_ARCHIVE_PATH"),
		"BadgerDB directory for finished investigations (empty = in-memory)")
	kubeconfig := flag.String("kubeconfig", os.Getenv("KUBECONFIG"),
		"Kubeconfig path for the context provider and kubectl")
	clusterContext := flag.Bool("cluster-context", false,
		"Enable the client-go cluster context provider")
	riskEvaluator := flag.Bool("risk-evaluator", false,
		"Enable the LLM risk evaluator on the safety gate")
	flag.Parse()

	// Set Gin mode
	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup structured logging
	level := logging.LevelInfo
	if *debug {
		level = logging.LevelDebug
	}
	logger := logging.New(logging.Config{
		Level:   level,
		Service: "clusterbuddy",
		JSON:    !*debug,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	version := getEnvString("CLUSTERBUDDY_VERSION", "dev")

	// Telemetry is best effort: a missing collector must not stop triage.
	telCfg := telemetry.DefaultConfig()
	telCfg.ServiceVersion = version
	telShutdown, err := telemetry.Init(context.Background(), telCfg)
	if err != nil {
		slog.Warn("Telemetry disabled", "error", err)
		telShutdown = nil
	}

	cluster_buddy.InitMetrics()

	// Create service with default config
	cfg := cluster_buddy.DefaultServiceConfig()
	cfg.Version = version
	cfg.ArchivePath = *archivePath
	cfg.KubeconfigPath = *kubeconfig
	cfg.ClusterContext = *clusterContext
	cfg.RiskEvaluator = *riskEvaluator

	svc, err := cluster_buddy.NewService(cfg)
	if err != nil {
		log.Fatalf("Failed to create Cluster Buddy service: %v", err)
	}

	// Extension seams. All no-ops here; enterprise builds swap in real
	// providers via the With* setters.
	opts := extensions.DefaultOptions()

	// Create handlers
	handlers := cluster_buddy.NewHandlersWithOptions(svc, opts)

	// Setup router
	router := gin.New()
	router.Use(gin.Recovery())
	if *debug {
		router.Use(gin.Logger())
	}
	router.Use(otelgin.Middleware("clusterbuddy"))

	// Register routes
	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(opts.AuthProvider))
	cluster_buddy.RegisterRoutes(v1, handlers)

	if h := telemetry.MetricsHandler(); h != nil {
		router.GET("/metrics", gin.WrapH(h))
	}

	// Print startup banner
	printBanner(*port)

	addr := fmt.Sprintf(":%d", *port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("Starting Cluster Buddy server", slog.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Failed to start server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down Cluster Buddy server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Forced server shutdown", slog.String("error", err.Error()))
	}
	if err := svc.Close(); err != nil {
		slog.Warn("Service close error", slog.String("error", err.Error()))
	}
	if telShutdown != nil {
		if err := telShutdown(ctx); err != nil {
			slog.Warn("Telemetry shutdown error", slog.String("error", err.Error()))
		}
	}
}

func printBanner(port int) {
	banner := `
╔═══════════════════════════════════════════════════════════════════╗
║                     CLUSTER BUDDY SERVER                          ║
╠═══════════════════════════════════════════════════════════════════╣
║                                                                   ║
║  Plain-language Kubernetes triage with a safety gate in front     ║
║  of every command.                                                ║
║                                                                   ║
║  Quick Start:                                                     ║
║  ┌─────────────────────────────────────────────────────────────┐  ║
║  │ # Health check                                              │  ║
║  │ curl http://localhost:%d/v1/triage/health                 │  ║
║  │                                                             │  ║
║  │ # Ask why something is broken                               │  ║
║  │ curl -X POST http://localhost:%d/v1/triage/query \        │  ║
║  │   -H "Content-Type: application/json" \                     │  ║
║  │   -d '{"query": "why is web-0 crashlooping in prod"}'       │  ║
║  │                                                             │  ║
║  │ # Example queries per intent tier                           │  ║
║  │ curl http://localhost:%d/v1/triage/examples | jq          │  ║
║  └─────────────────────────────────────────────────────────────┘  ║
║                                                                   ║
║  Endpoints:                                                       ║
║  ├── Triage: POST /query                                          ║
║  ├── Sessions: GET /sessions, GET|DELETE /sessions/:id            ║
║  ├── Streaming: GET /sessions/:id/stream (websocket)              ║
║  └── Ops: /examples, /health, /ready, /metrics                    ║
║                                                                   ║
║  Press Ctrl+C to stop                                             ║
╚═══════════════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, port, port, port)
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
