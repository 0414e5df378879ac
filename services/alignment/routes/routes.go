// Copyright (C) 2025 DocSync AI (eng@docsync.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DocSyncAI/DocSync/services/alignment/connector"
	"github.com/DocSyncAI/DocSync/services/alignment/handlers"
	"github.com/DocSyncAI/DocSync/services/alignment/orchestrator"
)

// SetupRoutes wires the alignment service endpoints.
func SetupRoutes(router *gin.Engine, orch *orchestrator.Orchestrator, conn connector.Connector) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/webhook", handlers.HandleWebhook(orch, conn))

		projects := v1.Group("/projects")
		{
			projects.POST("", handlers.RegisterProject(orch))
			projects.PUT("/:projectId/documents/:docId", handlers.PushDocument(orch))
			projects.POST("/:projectId/analyze", handlers.RequestAnalysis(orch))
			projects.GET("/:projectId/report", handlers.GetReport(orch))
			projects.GET("/:projectId/impact", handlers.GetImpact(orch))
		}
	}
}
