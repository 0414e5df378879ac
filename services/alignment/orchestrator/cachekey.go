// Copyright (C) 2025 DocSync AI (eng@docsync.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sort"
	"time"

	"github.com/DocSyncAI/DocSync/services/alignment/datatypes"
)

// CacheKey derives the deterministic identity of one analysis
// computation from the project id, the sorted document fingerprint set,
// and the chosen strategy. Map iteration order does not leak into the
// key: document ids are hashed in sorted order with separators so that
// ("a", "bc") and ("ab", "c") cannot collide.
func CacheKey(projectID string, fingerprints map[string]string, strategy datatypes.Strategy) string {
	ids := make([]string, 0, len(fingerprints))
	for id := range fingerprints {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	h := sha256.New()
	io.WriteString(h, projectID)
	h.Write([]byte{0})
	for _, id := range ids {
		io.WriteString(h, id)
		h.Write([]byte{1})
		io.WriteString(h, fingerprints[id])
		h.Write([]byte{0})
	}
	io.WriteString(h, string(strategy))

	return hex.EncodeToString(h.Sum(nil))
}

// NewAnalysisRequest builds the request record for a computation,
// including its derived cache key.
func NewAnalysisRequest(projectID string, fingerprints map[string]string, strategy datatypes.Strategy) datatypes.AnalysisRequest {
	fps := make(map[string]string, len(fingerprints))
	for id, fp := range fingerprints {
		fps[id] = fp
	}
	return datatypes.AnalysisRequest{
		ProjectID:    projectID,
		Fingerprints: fps,
		Strategy:     strategy,
		CacheKey:     CacheKey(projectID, fingerprints, strategy),
		CreatedAt:    time.Now().UTC(),
	}
}
