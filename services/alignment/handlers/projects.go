// Copyright (C) 2025 DocSync AI (eng@docsync.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers holds the HTTP handlers for the alignment service.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/DocSyncAI/DocSync/services/alignment/datatypes"
	"github.com/DocSyncAI/DocSync/services/alignment/orchestrator"
)

// RegisterProject handles POST /v1/projects.
//
// Documents with inline text are seeded as first snapshots after
// registration; the seeds flow through the normal change path.
func RegisterProject(orch *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.RegisterProjectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		project := datatypes.Project{
			ID:        req.ProjectID,
			CreatedAt: time.Now().UTC(),
		}
		for _, d := range req.Documents {
			project.Documents = append(project.Documents, datatypes.Document{
				ID:   d.ID,
				Type: datatypes.DocumentType(d.Type),
			})
		}
		for _, r := range req.Relationships {
			project.Relationships = append(project.Relationships, datatypes.Relationship{
				DocumentA:    r.DocumentA,
				DocumentB:    r.DocumentB,
				Kind:         datatypes.RelationshipKind(r.Kind),
				CriticalPath: r.CriticalPath,
			})
		}

		if err := orch.RegisterProject(c.Request.Context(), project); err != nil {
			switch {
			case errors.Is(err, orchestrator.ErrProjectExists):
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			default:
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			}
			return
		}

		seeded := 0
		for _, d := range req.Documents {
			if d.Text == "" {
				continue
			}
			if _, _, err := orch.PushSnapshot(c.Request.Context(), project.ID, d.ID, d.Text); err != nil {
				slog.Error("Failed to seed document snapshot",
					"project_id", project.ID, "document_id", d.ID, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to seed document snapshot"})
				return
			}
			seeded++
		}

		c.JSON(http.StatusCreated, gin.H{
			"project_id":       project.ID,
			"documents":        len(project.Documents),
			"relationships":    len(project.Relationships),
			"seeded_snapshots": seeded,
		})
	}
}

// PushDocument handles PUT /v1/projects/:projectId/documents/:docId.
func PushDocument(orch *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID := c.Param("projectId")
		docID := c.Param("docId")

		var req datatypes.PushSnapshotRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		snap, changed, err := orch.PushSnapshot(c.Request.Context(), projectID, docID, req.Text)
		if err != nil {
			switch {
			case errors.Is(err, orchestrator.ErrProjectNotFound),
				errors.Is(err, orchestrator.ErrDocumentNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			default:
				slog.Error("Failed to store snapshot",
					"project_id", projectID, "document_id", docID, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store snapshot"})
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"document_id": docID,
			"fingerprint": snap.Fingerprint,
			"changed":     changed,
		})
	}
}
