// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cluster_buddy

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all Cluster Buddy routes with the router.
//
// Description:
//
//	Registers all /v1/triage/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	POST /v1/triage/query - Run one triage request to completion
//	GET  /v1/triage/sessions - List live and archived investigations
//	GET  /v1/triage/sessions/:id - Get one investigation
//	DELETE /v1/triage/sessions/:id - Abort or delete an investigation
//	GET  /v1/triage/sessions/:id/stream - Stream investigation events
//	GET  /v1/triage/examples - Example queries per intent tier
//	GET  /v1/triage/health - Health check
//	GET  /v1/triage/ready - Readiness check
//
// Example:
//
//	service, err := cluster_buddy.NewService(cluster_buddy.DefaultServiceConfig())
//	if err != nil { ... }
//	handlers := cluster_buddy.NewHandlers(service)
//
//	v1 := router.Group("/v1")
//	cluster_buddy.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	triage := rg.Group("/triage")
	{
		// Triage entrypoint
		triage.POST("/query", handlers.HandleQuery)

		// Investigation sessions
		triage.GET("/sessions", handlers.HandleListSessions)
		triage.GET("/sessions/:id", handlers.HandleGetSession)
		triage.DELETE("/sessions/:id", handlers.HandleDeleteSession)
		triage.GET("/sessions/:id/stream", handlers.HandleSessionStream)

		// Discovery
		triage.GET("/examples", handlers.HandleExamples)

		// Health checks
		triage.GET("/health", handlers.HandleHealth)
		triage.GET("/ready", handlers.HandleReady)
	}
}
