// Copyright (C) 2025 DocSync AI (eng@docsync.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DocSyncAI/DocSync/services/alignment/analyzer"
	"github.com/DocSyncAI/DocSync/services/alignment/connector"
	"github.com/DocSyncAI/DocSync/services/alignment/critique"
	"github.com/DocSyncAI/DocSync/services/alignment/datatypes"
	"github.com/DocSyncAI/DocSync/services/alignment/llm"
	"github.com/DocSyncAI/DocSync/services/alignment/orchestrator"
	"github.com/DocSyncAI/DocSync/services/alignment/reports"
	"github.com/DocSyncAI/DocSync/services/alignment/snapshot"
	"github.com/DocSyncAI/DocSync/services/alignment/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func analysisJSON(score int) string {
	return fmt.Sprintf(`{
  "alignment_score": %d,
  "misalignments": [
    {
      "severity": "moderate",
      "description": "Ticket scope narrower than requirements",
      "document_a": "reqs",
      "document_b": "tickets",
      "kind": "requirements-to-tickets"
    }
  ],
  "overall_assessment": "Mostly aligned."
}`, score)
}

type testRig struct {
	router *gin.Engine
	orch   *orchestrator.Orchestrator
	conn   *connector.StaticConnector
}

// newTestRig builds a router over a real orchestrator with an in-memory
// store and a scripted provider. The debounce window is long so no
// background re-analysis interferes with handler assertions.
func newTestRig(t *testing.T, client llm.Client) *testRig {
	t.Helper()

	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	snaps, err := snapshot.NewStore(db, nil)
	require.NoError(t, err)
	reps, err := reports.NewStore(db, nil)
	require.NoError(t, err)

	a, err := analyzer.New(client, analyzer.WithRetryConfig(llm.RetryConfig{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		BackoffFactor:  2.0,
	}))
	require.NoError(t, err)
	pipeline, err := critique.NewPipeline(a)
	require.NoError(t, err)

	orch, err := orchestrator.New(orchestrator.Config{
		DB:             db,
		Snapshots:      snaps,
		Reports:        reps,
		Analyzer:       a,
		Pipeline:       pipeline,
		DebounceWindow: time.Minute,
		Backend:        "mock",
	})
	require.NoError(t, err)
	t.Cleanup(orch.Close)

	conn := connector.NewStaticConnector()

	router := gin.New()
	router.GET("/health", HealthCheck)
	v1 := router.Group("/v1")
	v1.POST("/webhook", HandleWebhook(orch, conn))
	v1.POST("/projects", RegisterProject(orch))
	v1.PUT("/projects/:projectId/documents/:docId", PushDocument(orch))
	v1.POST("/projects/:projectId/analyze", RequestAnalysis(orch))
	v1.GET("/projects/:projectId/report", GetReport(orch))
	v1.GET("/projects/:projectId/impact", GetImpact(orch))

	return &testRig{router: router, orch: orch, conn: conn}
}

func (r *testRig) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.router.ServeHTTP(w, req)
	return w
}

func registerBody(projectID string) map[string]any {
	return map[string]any{
		"project_id": projectID,
		"documents": []map[string]any{
			{"id": "reqs", "type": "requirements", "text": "export to csv and json"},
			{"id": "tickets", "type": "ticket", "text": "build csv export"},
		},
		"relationships": []map[string]any{
			{"document_a": "reqs", "document_b": "tickets", "kind": "requirements-to-tickets"},
		},
	}
}

// =============================================================================
// HealthCheck Tests
// =============================================================================

func TestHealthCheck_ReturnsOK(t *testing.T) {
	rig := newTestRig(t, llm.NewMockClient(llm.MockReply{Text: analysisJSON(8)}))

	w := rig.do(t, "GET", "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "ok", response["status"])
}

// =============================================================================
// Project Registration Tests
// =============================================================================

func TestRegisterProject_Created(t *testing.T) {
	rig := newTestRig(t, llm.NewMockClient(llm.MockReply{Text: analysisJSON(8)}))

	w := rig.do(t, "POST", "/v1/projects", registerBody("proj-1"))

	assert.Equal(t, http.StatusCreated, w.Code)

	var response map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, float64(2), response["seeded_snapshots"])
}

func TestRegisterProject_DuplicateConflict(t *testing.T) {
	rig := newTestRig(t, llm.NewMockClient(llm.MockReply{Text: analysisJSON(8)}))

	require.Equal(t, http.StatusCreated, rig.do(t, "POST", "/v1/projects", registerBody("proj-1")).Code)
	assert.Equal(t, http.StatusConflict, rig.do(t, "POST", "/v1/projects", registerBody("proj-1")).Code)
}

func TestRegisterProject_Invalid(t *testing.T) {
	rig := newTestRig(t, llm.NewMockClient(llm.MockReply{Text: analysisJSON(8)}))

	t.Run("unknown document type", func(t *testing.T) {
		body := registerBody("proj-1")
		body["documents"].([]map[string]any)[0]["type"] = "spreadsheet"
		assert.Equal(t, http.StatusBadRequest, rig.do(t, "POST", "/v1/projects", body).Code)
	})

	t.Run("dangling relationship", func(t *testing.T) {
		body := registerBody("proj-2")
		body["relationships"].([]map[string]any)[0]["document_b"] = "ghost"
		assert.Equal(t, http.StatusBadRequest, rig.do(t, "POST", "/v1/projects", body).Code)
	})

	t.Run("no documents", func(t *testing.T) {
		body := registerBody("proj-3")
		body["documents"] = []map[string]any{}
		assert.Equal(t, http.StatusBadRequest, rig.do(t, "POST", "/v1/projects", body).Code)
	})
}

// =============================================================================
// Snapshot Push Tests
// =============================================================================

func TestPushDocument(t *testing.T) {
	rig := newTestRig(t, llm.NewMockClient(llm.MockReply{Text: analysisJSON(8)}))
	require.Equal(t, http.StatusCreated, rig.do(t, "POST", "/v1/projects", registerBody("proj-1")).Code)

	t.Run("changed content", func(t *testing.T) {
		w := rig.do(t, "PUT", "/v1/projects/proj-1/documents/reqs",
			map[string]any{"text": "export to csv, json, and parquet"})

		assert.Equal(t, http.StatusOK, w.Code)
		var response map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, true, response["changed"])
		assert.NotEmpty(t, response["fingerprint"])
	})

	t.Run("identical content is a no-op", func(t *testing.T) {
		w := rig.do(t, "PUT", "/v1/projects/proj-1/documents/tickets",
			map[string]any{"text": "build   csv  export"})

		assert.Equal(t, http.StatusOK, w.Code)
		var response map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, false, response["changed"], "whitespace-only difference keeps the fingerprint")
	})

	t.Run("unknown project", func(t *testing.T) {
		w := rig.do(t, "PUT", "/v1/projects/nope/documents/reqs", map[string]any{"text": "x"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("unknown document", func(t *testing.T) {
		w := rig.do(t, "PUT", "/v1/projects/proj-1/documents/ghost", map[string]any{"text": "x"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("empty text rejected", func(t *testing.T) {
		w := rig.do(t, "PUT", "/v1/projects/proj-1/documents/reqs", map[string]any{"text": ""})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

// =============================================================================
// Analysis Tests
// =============================================================================

func TestRequestAnalysis_ReturnsReport(t *testing.T) {
	rig := newTestRig(t, llm.NewMockClient(llm.MockReply{Text: analysisJSON(8)}))
	require.Equal(t, http.StatusCreated, rig.do(t, "POST", "/v1/projects", registerBody("proj-1")).Code)

	w := rig.do(t, "POST", "/v1/projects/proj-1/analyze", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var report datatypes.AlignmentReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 8, report.Score)
	assert.Equal(t, datatypes.StrategySimple, report.Strategy)
	assert.Len(t, report.Misalignments, 1)
}

func TestRequestAnalysis_ProviderFailure(t *testing.T) {
	rig := newTestRig(t, llm.NewMockClient(
		llm.MockReply{Err: errors.Join(llm.ErrServerError, errors.New("upstream 500"))},
	))
	require.Equal(t, http.StatusCreated, rig.do(t, "POST", "/v1/projects", registerBody("proj-1")).Code)

	w := rig.do(t, "POST", "/v1/projects/proj-1/analyze", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var response map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "analysis unavailable, retry later", response["error"])
}

func TestRequestAnalysis_MissingSnapshot(t *testing.T) {
	rig := newTestRig(t, llm.NewMockClient(llm.MockReply{Text: analysisJSON(8)}))

	body := registerBody("proj-1")
	body["documents"].([]map[string]any)[0]["text"] = ""
	require.Equal(t, http.StatusCreated, rig.do(t, "POST", "/v1/projects", body).Code)

	w := rig.do(t, "POST", "/v1/projects/proj-1/analyze", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRequestAnalysis_UnknownProject(t *testing.T) {
	rig := newTestRig(t, llm.NewMockClient(llm.MockReply{Text: analysisJSON(8)}))
	assert.Equal(t, http.StatusNotFound, rig.do(t, "POST", "/v1/projects/nope/analyze", nil).Code)
}

// =============================================================================
// Report Tests
// =============================================================================

func TestGetReport(t *testing.T) {
	rig := newTestRig(t, llm.NewMockClient(llm.MockReply{Text: analysisJSON(8)}))
	require.Equal(t, http.StatusCreated, rig.do(t, "POST", "/v1/projects", registerBody("proj-1")).Code)

	t.Run("before any analysis", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, rig.do(t, "GET", "/v1/projects/proj-1/report", nil).Code)
	})

	require.Equal(t, http.StatusOK, rig.do(t, "POST", "/v1/projects/proj-1/analyze", nil).Code)

	t.Run("fresh after analysis", func(t *testing.T) {
		w := rig.do(t, "GET", "/v1/projects/proj-1/report", nil)
		assert.Equal(t, http.StatusOK, w.Code)

		var response struct {
			Report *datatypes.AlignmentReport `json:"report"`
			Fresh  bool                       `json:"fresh"`
			Status string                     `json:"status"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.True(t, response.Fresh)
		assert.Equal(t, "completed", response.Status)
		assert.Equal(t, 8, response.Report.Score)
	})

	t.Run("stale after a document changes", func(t *testing.T) {
		require.Equal(t, http.StatusOK, rig.do(t, "PUT", "/v1/projects/proj-1/documents/reqs",
			map[string]any{"text": "completely rewritten requirements"}).Code)

		w := rig.do(t, "GET", "/v1/projects/proj-1/report", nil)
		assert.Equal(t, http.StatusOK, w.Code)

		var response struct {
			Fresh bool `json:"fresh"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.False(t, response.Fresh, "a changed fingerprint set makes the published report stale")
	})
}

// =============================================================================
// Impact Tests
// =============================================================================

func TestGetImpact(t *testing.T) {
	rig := newTestRig(t, llm.NewMockClient(llm.MockReply{Text: analysisJSON(8)}))
	require.Equal(t, http.StatusCreated, rig.do(t, "POST", "/v1/projects", registerBody("proj-1")).Code)

	t.Run("one hop scope", func(t *testing.T) {
		w := rig.do(t, "GET", "/v1/projects/proj-1/impact?document=reqs", nil)
		assert.Equal(t, http.StatusOK, w.Code)

		var response struct {
			ImpactScope []string `json:"impact_scope"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, []string{"tickets"}, response.ImpactScope)
	})

	t.Run("missing document parameter", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, rig.do(t, "GET", "/v1/projects/proj-1/impact", nil).Code)
	})

	t.Run("unknown document", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, rig.do(t, "GET", "/v1/projects/proj-1/impact?document=ghost", nil).Code)
	})
}

// =============================================================================
// Webhook Tests
// =============================================================================

func TestHandleWebhook(t *testing.T) {
	rig := newTestRig(t, llm.NewMockClient(llm.MockReply{Text: analysisJSON(8)}))
	require.Equal(t, http.StatusCreated, rig.do(t, "POST", "/v1/projects", registerBody("proj-1")).Code)

	t.Run("content payload", func(t *testing.T) {
		w := rig.do(t, "POST", "/v1/webhook", map[string]any{
			"project_id":  "proj-1",
			"document_id": "reqs",
			"content":     "webhook-delivered requirements",
			"platform":    "notion",
		})

		assert.Equal(t, http.StatusAccepted, w.Code)
		var response map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "accepted", response["status"])
		assert.Equal(t, true, response["changed"])
	})

	t.Run("fingerprint-only payload fetches through the connector", func(t *testing.T) {
		rig.conn.Push("proj-1", "tickets", "tickets fetched from platform")

		w := rig.do(t, "POST", "/v1/webhook", map[string]any{
			"project_id":  "proj-1",
			"document_id": "tickets",
			"fingerprint": "platform-signal",
		})

		assert.Equal(t, http.StatusAccepted, w.Code)
		var response map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "accepted", response["status"])
	})

	t.Run("fetch failure retains last-good snapshot", func(t *testing.T) {
		rig.conn.Fail("tickets", errors.New("platform outage"))
		defer rig.conn.Fail("tickets", nil)

		w := rig.do(t, "POST", "/v1/webhook", map[string]any{
			"project_id":  "proj-1",
			"document_id": "tickets",
			"fingerprint": "platform-signal-2",
		})

		assert.Equal(t, http.StatusAccepted, w.Code)
		var response map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "fetch-failed", response["status"])
	})

	t.Run("payload without content or fingerprint", func(t *testing.T) {
		w := rig.do(t, "POST", "/v1/webhook", map[string]any{
			"project_id":  "proj-1",
			"document_id": "reqs",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown project", func(t *testing.T) {
		w := rig.do(t, "POST", "/v1/webhook", map[string]any{
			"project_id":  "nope",
			"document_id": "reqs",
			"content":     "text",
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
