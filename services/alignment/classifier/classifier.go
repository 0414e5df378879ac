// Copyright (C) 2025 DocSync AI (eng@docsync.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package classifier decides how much analysis effort a project's
// document set warrants.
//
// Classification is pure and deterministic: an identical document set
// always yields the identical decision. This is required for cache-key
// stability, so the classifier must never consult wall-clock time,
// randomness, or external state.
package classifier

import (
	"fmt"

	"github.com/DocSyncAI/DocSync/services/alignment/datatypes"
)

// Thresholds holds the tunable classification parameters. The exact
// numbers are configuration, not policy, pending empirical tuning.
type Thresholds struct {
	// MinDocumentTypes is the distinct-type count at which a document
	// set is considered diverse enough for the full pipeline.
	MinDocumentTypes int

	// VolumeThreshold is the aggregate character volume above which a
	// document set is considered heavyweight.
	VolumeThreshold int
}

// DefaultThresholds returns the default classification parameters.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinDocumentTypes: 2,
		VolumeThreshold:  4000,
	}
}

// Decision is the classifier's advice to the orchestrator.
type Decision struct {
	// Strategy is the chosen analysis strategy.
	Strategy datatypes.Strategy

	// Reason explains the decision, for logging.
	Reason string
}

// Classify picks a strategy for the given document set.
//
// Policy: self-critique when the set spans at least
// Thresholds.MinDocumentTypes distinct types and the aggregate content
// volume exceeds Thresholds.VolumeThreshold, or when any relationship is
// marked critical-path. Otherwise simple.
//
// Pure function, no side effects.
func Classify(docs []datatypes.Document, rels []datatypes.Relationship, th Thresholds) Decision {
	if th.MinDocumentTypes <= 0 {
		th.MinDocumentTypes = DefaultThresholds().MinDocumentTypes
	}
	if th.VolumeThreshold <= 0 {
		th.VolumeThreshold = DefaultThresholds().VolumeThreshold
	}

	for _, rel := range rels {
		if rel.CriticalPath {
			return Decision{
				Strategy: datatypes.StrategySelfCritique,
				Reason: fmt.Sprintf("critical-path relationship %s<>%s",
					rel.DocumentA, rel.DocumentB),
			}
		}
	}

	types := make(map[datatypes.DocumentType]struct{})
	volume := 0
	for _, doc := range docs {
		types[doc.Type] = struct{}{}
		volume += len(doc.Text)
	}

	if len(types) >= th.MinDocumentTypes && volume > th.VolumeThreshold {
		return Decision{
			Strategy: datatypes.StrategySelfCritique,
			Reason: fmt.Sprintf("%d document types, %d chars exceeds threshold %d",
				len(types), volume, th.VolumeThreshold),
		}
	}

	return Decision{
		Strategy: datatypes.StrategySimple,
		Reason: fmt.Sprintf("%d document types, %d chars under threshold %d",
			len(types), volume, th.VolumeThreshold),
	}
}
