// Copyright (C) 2025 DocSync AI (eng@docsync.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Analysis output types: strategies, reports, misalignments, critiques.
package datatypes

import (
	"time"
)

// =============================================================================
// Strategy
// =============================================================================

// Strategy names the analysis effort level chosen by the classifier.
type Strategy string

const (
	// StrategySimple is a single-pass analysis (one provider call).
	StrategySimple Strategy = "simple"

	// StrategySelfCritique is the three-stage generate, critique, enhance
	// pipeline (up to three provider calls).
	StrategySelfCritique Strategy = "self-critique"
)

// Valid reports whether s is a recognized strategy.
func (s Strategy) Valid() bool {
	return s == StrategySimple || s == StrategySelfCritique
}

// =============================================================================
// Severity
// =============================================================================

// Severity ranks how badly a misalignment hurts the project.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityModerate Severity = "moderate"
	SeverityMinor    Severity = "minor"
)

// Valid reports whether s is a recognized severity.
func (s Severity) Valid() bool {
	return s == SeverityCritical || s == SeverityModerate || s == SeverityMinor
}

// Rank returns an ordering value, highest severity first (critical=0).
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityModerate:
		return 1
	case SeverityMinor:
		return 2
	default:
		return 3
	}
}

// =============================================================================
// Reports
// =============================================================================

// Misalignment is one cross-document inconsistency found by analysis.
type Misalignment struct {
	// Severity is critical, moderate, or minor.
	Severity Severity `json:"severity"`

	// Description explains the inconsistency in free text.
	Description string `json:"description"`

	// Relationship is the declaration the inconsistency violates.
	Relationship Relationship `json:"relationship"`

	// SuggestedActions are remediation steps, at least one per finding.
	SuggestedActions []string `json:"suggested_actions"`
}

// SuggestedAction is a standalone enhancement suggestion attached to a
// report, separate from per-misalignment remediation.
type SuggestedAction struct {
	// Type categorizes the suggestion (e.g. "content_enhancement").
	Type string `json:"type"`

	// Action is a short machine-friendly verb phrase.
	Action string `json:"action"`

	// Description is the human-readable suggestion text.
	Description string `json:"description"`

	// Priority is "high", "medium", or "low".
	Priority string `json:"priority"`

	// Source and Target are the document ids the suggestion spans, when
	// it concerns a specific pair.
	Source string `json:"source,omitempty"`
	Target string `json:"target,omitempty"`
}

// AlignmentReport is the immutable result of one analysis computation.
//
// # Description
//
// A report is identified by its CacheKey, which is derived from the project
// id, the sorted fingerprint set it was computed over, and the strategy.
// Reports are never mutated after creation; re-analysis produces a new
// report that supersedes the old one as the project's current report.
//
// # Metadata
//
//   - CallsUsed: provider calls actually made (1 for simple, up to 3 for
//     self-critique, fewer when degraded).
//   - CritiqueAltered: true when the critique stage changed the result.
//   - Degraded: true when the pipeline fell back to an earlier stage.
//   - ResolvedByCritique: descriptions of initial misalignments the enhance
//     stage dropped, kept for auditability.
//   - Stale: true when a newer cache key completed before this report did;
//     stale reports are stored but never published as current.
type AlignmentReport struct {
	// ID is a UUID assigned when the report is created.
	ID string `json:"id"`

	// ProjectID is the project the report describes.
	ProjectID string `json:"project_id"`

	// CacheKey identifies the (project, fingerprints, strategy) tuple.
	CacheKey string `json:"cache_key"`

	// Fingerprints maps document id to the snapshot fingerprint the
	// analysis read. Callers compare these against current snapshots to
	// detect staleness without recomputation.
	Fingerprints map[string]string `json:"fingerprints"`

	// Strategy is the strategy the classifier chose.
	Strategy Strategy `json:"strategy"`

	// Score is the overall alignment score, always within [1,10].
	Score int `json:"score"`

	// Misalignments is ordered most severe first.
	Misalignments []Misalignment `json:"misalignments"`

	// Suggestions are document-level enhancement suggestions.
	Suggestions []SuggestedAction `json:"suggestions,omitempty"`

	// OverallAssessment is the provider's summary paragraph.
	OverallAssessment string `json:"overall_assessment,omitempty"`

	// CallsUsed counts provider calls actually spent on this report.
	CallsUsed int `json:"calls_used"`

	// CritiqueAltered is true when critique changed the initial result.
	CritiqueAltered bool `json:"critique_altered"`

	// Degraded is true when the pipeline fell back after a stage failure.
	Degraded bool `json:"degraded"`

	// ResolvedByCritique lists initial findings dropped by the enhance
	// stage, recorded rather than silently lost.
	ResolvedByCritique []string `json:"resolved_by_critique,omitempty"`

	// Stale marks a result that arrived after a newer key completed.
	Stale bool `json:"stale,omitempty"`

	// CreatedAt is when the computation finished.
	CreatedAt time.Time `json:"created_at"`
}

// ClampScore forces v into the valid [1,10] score range.
func ClampScore(v int) int {
	if v < 1 {
		return 1
	}
	if v > 10 {
		return 10
	}
	return v
}

// =============================================================================
// Critique
// =============================================================================

// CritiqueFlawKind categorizes a flaw the critique stage found in the
// initial analysis.
type CritiqueFlawKind string

const (
	FlawMissedRelationship CritiqueFlawKind = "missed-relationship"
	FlawOverstatedSeverity CritiqueFlawKind = "overstated-severity"
	FlawUnsupportedClaim   CritiqueFlawKind = "unsupported-claim"
)

// CritiqueFlaw is one flaw in the initial analysis.
type CritiqueFlaw struct {
	// MisalignmentIndex is the index into the initial report's
	// misalignment list, or -1 for report-level flaws.
	MisalignmentIndex int `json:"misalignment_index"`

	// Kind categorizes the flaw.
	Kind CritiqueFlawKind `json:"kind"`

	// Description explains the flaw.
	Description string `json:"description"`

	// RevisedSeverity proposes a severity correction, empty when the
	// flaw does not concern severity. When multiple flaws revise the
	// same index, the last entry wins.
	RevisedSeverity Severity `json:"revised_severity,omitempty"`
}

// Critique is the structured output of the pipeline's critique stage.
type Critique struct {
	Flaws []CritiqueFlaw `json:"flaws"`

	// Summary is the provider's overall judgement of the initial report.
	Summary string `json:"summary,omitempty"`
}

// =============================================================================
// Analysis Requests
// =============================================================================

// AnalysisRequest records one analysis computation's identity.
//
// Uniquely identified by (project id, sorted fingerprint set, strategy);
// that tuple is the cache key.
type AnalysisRequest struct {
	ProjectID    string            `json:"project_id"`
	Fingerprints map[string]string `json:"fingerprints"`
	Strategy     Strategy          `json:"strategy"`
	CacheKey     string            `json:"cache_key"`
	CreatedAt    time.Time         `json:"created_at"`
}
