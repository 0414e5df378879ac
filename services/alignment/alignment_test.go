// Copyright (C) 2025 DocSync AI (eng@docsync.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package alignment

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	svc, err := New(Config{
		Provider: "mock",
		GinMode:  "test",
	})
	require.NoError(t, err)
	return svc
}

func TestNew_AppliesDefaults(t *testing.T) {
	svc := newTestService(t)
	require.NotNil(t, svc.Router())
}

func TestNew_RejectsUnknownProvider(t *testing.T) {
	_, err := New(Config{Provider: "telepathy"})
	assert.Error(t, err)
}

func TestService_HealthEndpoint(t *testing.T) {
	svc := newTestService(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	svc.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestService_MetricsEndpoint(t *testing.T) {
	svc := newTestService(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/metrics", nil)
	svc.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestService_RegisterAndImpact(t *testing.T) {
	svc := newTestService(t)

	body, err := json.Marshal(map[string]any{
		"project_id": "proj-1",
		"documents": []map[string]any{
			{"id": "reqs", "type": "requirements"},
			{"id": "tickets", "type": "ticket"},
		},
		"relationships": []map[string]any{
			{"document_a": "reqs", "document_b": "tickets", "kind": "requirements-to-tickets"},
		},
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/projects", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	svc.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/v1/projects/proj-1/impact?document=reqs", nil)
	svc.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var response struct {
		ImpactScope []string `json:"impact_scope"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, []string{"tickets"}, response.ImpactScope)
}
