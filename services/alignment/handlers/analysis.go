// Copyright (C) 2025 DocSync AI (eng@docsync.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/DocSyncAI/DocSync/services/alignment/analyzer"
	"github.com/DocSyncAI/DocSync/services/alignment/datatypes"
	"github.com/DocSyncAI/DocSync/services/alignment/orchestrator"
	"github.com/DocSyncAI/DocSync/services/alignment/reports"
)

// RequestAnalysis handles POST /v1/projects/:projectId/analyze.
//
// Provider failures that survive retries surface as 503 with a retry
// hint rather than a partial report.
func RequestAnalysis(orch *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID := c.Param("projectId")

		report, err := orch.RequestAnalysis(c.Request.Context(), projectID)
		if err != nil {
			switch {
			case errors.Is(err, orchestrator.ErrProjectNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			case errors.Is(err, orchestrator.ErrMissingSnapshot),
				errors.Is(err, analyzer.ErrNoRelationships),
				errors.Is(err, analyzer.ErrNoDocuments):
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			default:
				slog.Error("Analysis failed", "project_id", projectID, "error", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "analysis unavailable, retry later"})
			}
			return
		}

		c.JSON(http.StatusOK, report)
	}
}

// reportResponse wraps a report with freshness metadata for GET report.
type reportResponse struct {
	Report *datatypes.AlignmentReport `json:"report"`

	// Fresh is false when a document changed after this report was
	// computed.
	Fresh bool `json:"fresh"`

	// Status summarizes the report's quality: "completed" for a full
	// result, "degraded" for a fallen-back self-critique result.
	Status string `json:"status"`

	// Documents is the number of documents the report covers.
	Documents int `json:"documents"`
}

// GetReport handles GET /v1/projects/:projectId/report.
func GetReport(orch *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID := c.Param("projectId")

		report, fresh, err := orch.ReportStatus(c.Request.Context(), projectID)
		if err != nil {
			switch {
			case errors.Is(err, orchestrator.ErrProjectNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			case errors.Is(err, reports.ErrReportNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "no report computed yet"})
			default:
				slog.Error("Failed to load report", "project_id", projectID, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load report"})
			}
			return
		}

		status := "completed"
		if report.Degraded {
			status = "degraded"
		}
		c.JSON(http.StatusOK, reportResponse{
			Report:    report,
			Fresh:     fresh,
			Status:    status,
			Documents: len(report.Fingerprints),
		})
	}
}

// GetImpact handles GET /v1/projects/:projectId/impact?document=<id>.
func GetImpact(orch *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID := c.Param("projectId")
		docID := c.Query("document")
		if docID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "document query parameter is required"})
			return
		}

		scope, err := orch.Impact(datatypes.ChangeEvent{ProjectID: projectID, DocumentID: docID})
		if err != nil {
			switch {
			case errors.Is(err, orchestrator.ErrProjectNotFound),
				errors.Is(err, orchestrator.ErrDocumentNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute impact"})
			}
			return
		}
		if scope == nil {
			scope = []string{}
		}

		c.JSON(http.StatusOK, gin.H{
			"document_id":  docID,
			"impact_scope": scope,
		})
	}
}
