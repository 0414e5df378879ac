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
	"time"

	"github.com/gin-gonic/gin"

	"github.com/DocSyncAI/DocSync/services/alignment/connector"
	"github.com/DocSyncAI/DocSync/services/alignment/datatypes"
	"github.com/DocSyncAI/DocSync/services/alignment/orchestrator"
)

// HandleWebhook handles POST /v1/webhook.
//
// Ingestion never blocks on a provider call: the handler stores content,
// queues the change event through the debouncer, and returns. When the
// platform only signals a fingerprint, the document text is fetched
// through the connector; a fetch failure leaves the last-good snapshot
// untouched and queues nothing.
func HandleWebhook(orch *orchestrator.Orchestrator, conn connector.Connector) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.WebhookRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		text := req.Content
		if text == "" {
			if conn == nil {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no connector configured for fingerprint-only webhooks"})
				return
			}
			fetched, _, _, err := conn.FetchSnapshot(c.Request.Context(), req.DocumentID)
			if err != nil {
				slog.Warn("Webhook fetch failed, last-good snapshot retained",
					"project_id", req.ProjectID,
					"document_id", req.DocumentID,
					"platform", req.Platform,
					"error", err)
				c.JSON(http.StatusAccepted, gin.H{"status": "fetch-failed"})
				return
			}
			text = fetched
		}

		_, changed, err := orch.PushSnapshot(c.Request.Context(), req.ProjectID, req.DocumentID, text)
		if err != nil {
			switch {
			case errors.Is(err, orchestrator.ErrProjectNotFound),
				errors.Is(err, orchestrator.ErrDocumentNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			default:
				slog.Error("Webhook snapshot store failed",
					"project_id", req.ProjectID, "document_id", req.DocumentID, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store snapshot"})
			}
			return
		}

		event := connector.NormalizeWebhook(&req, "", time.Now().UTC())
		slog.Info("Webhook accepted",
			"project_id", req.ProjectID,
			"document_id", req.DocumentID,
			"platform", req.Platform,
			"fingerprint", event.NewFingerprint,
			"changed", changed)

		c.JSON(http.StatusAccepted, gin.H{
			"status":  "accepted",
			"changed": changed,
		})
	}
}
