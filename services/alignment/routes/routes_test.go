// Copyright (C) 2025 DocSync AI (eng@docsync.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
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
	"github.com/DocSyncAI/DocSync/services/alignment/llm"
	"github.com/DocSyncAI/DocSync/services/alignment/orchestrator"
	"github.com/DocSyncAI/DocSync/services/alignment/reports"
	"github.com/DocSyncAI/DocSync/services/alignment/snapshot"
	"github.com/DocSyncAI/DocSync/services/alignment/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()

	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	snaps, err := snapshot.NewStore(db, nil)
	require.NoError(t, err)
	reps, err := reports.NewStore(db, nil)
	require.NoError(t, err)

	a, err := analyzer.New(llm.NewMockClient())
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
	})
	require.NoError(t, err)
	t.Cleanup(orch.Close)

	router := gin.New()
	SetupRoutes(router, orch, connector.NewStaticConnector())
	return router
}

func TestSetupRoutes_RegistersEndpoints(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/metrics"},
		{"POST", "/v1/webhook"},
		{"POST", "/v1/projects"},
		{"PUT", "/v1/projects/:projectId/documents/:docId"},
		{"POST", "/v1/projects/:projectId/analyze"},
		{"GET", "/v1/projects/:projectId/report"},
		{"GET", "/v1/projects/:projectId/impact"},
	}

	registered := make(map[string]bool)
	for _, ri := range router.Routes() {
		registered[ri.Method+" "+ri.Path] = true
	}

	for _, tc := range tests {
		assert.True(t, registered[tc.method+" "+tc.path],
			"expected route %s %s to be registered", tc.method, tc.path)
	}
}

func TestSetupRoutes_HealthResponds(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSetupRoutes_UnknownRouteIs404(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/nope", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
