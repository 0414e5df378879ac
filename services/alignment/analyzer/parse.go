// Copyright (C) 2025 DocSync AI (eng@docsync.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Response parsing and schema validation for provider completions.
package analyzer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/DocSyncAI/DocSync/services/alignment/datatypes"
	"github.com/DocSyncAI/DocSync/services/alignment/llm"
)

// responseValidate validates provider response shapes. Separate from
// the inbound-request validator; provider responses have their own
// schema discipline.
var responseValidate = validator.New()

// Analysis is a parsed and validated provider analysis, before report
// assembly.
type Analysis struct {
	Score             int
	Misalignments     []datatypes.Misalignment
	Suggestions       []datatypes.SuggestedAction
	OverallAssessment string
}

// Wire shapes for the provider's JSON. Pointers distinguish missing
// fields from zero values.
type wireMisalignment struct {
	Severity         string   `json:"severity" validate:"required,oneof=critical moderate minor"`
	Description      string   `json:"description" validate:"required"`
	DocumentA        string   `json:"document_a" validate:"required"`
	DocumentB        string   `json:"document_b" validate:"required"`
	Kind             string   `json:"kind" validate:"required"`
	SuggestedActions []string `json:"suggested_actions"`
}

type wireSuggestion struct {
	Type        string `json:"type"`
	Action      string `json:"action"`
	Description string `json:"description" validate:"required"`
	Priority    string `json:"priority"`
	Source      string `json:"source"`
	Target      string `json:"target"`
}

type wireAnalysis struct {
	AlignmentScore    *int               `json:"alignment_score" validate:"required"`
	Misalignments     []wireMisalignment `json:"misalignments" validate:"omitempty,dive"`
	Suggestions       []wireSuggestion   `json:"suggestions" validate:"omitempty,dive"`
	OverallAssessment string             `json:"overall_assessment"`
}

type wireFlaw struct {
	MisalignmentIndex *int   `json:"misalignment_index" validate:"required"`
	Kind              string `json:"kind" validate:"required,oneof=missed-relationship overstated-severity unsupported-claim"`
	Description       string `json:"description" validate:"required"`
	RevisedSeverity   string `json:"revised_severity" validate:"omitempty,oneof=critical moderate minor"`
}

type wireCritique struct {
	Flaws   []wireFlaw `json:"flaws" validate:"omitempty,dive"`
	Summary string     `json:"summary"`
}

// ExtractJSON returns the first top-level JSON object embedded in the
// completion text. Providers often wrap JSON in prose or code fences.
func ExtractJSON(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return "", fmt.Errorf("no JSON object in completion: %w", llm.ErrMalformedResponse)
	}
	return text[start : end+1], nil
}

// ParseAnalysis extracts, decodes, and validates an analysis response.
//
// Validation is strict: a missing score, an unknown severity, or an
// unknown relationship kind fails the whole response rather than being
// silently coerced. The score alone is the exception; out-of-range
// values are clamped to [1,10] to avoid wasting an otherwise-good call.
func ParseAnalysis(text string, rels []datatypes.Relationship) (*Analysis, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}

	var wire wireAnalysis
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("decode analysis: %v: %w", err, llm.ErrMalformedResponse)
	}
	if err := responseValidate.Struct(&wire); err != nil {
		return nil, fmt.Errorf("analysis schema: %v: %w", err, llm.ErrMalformedResponse)
	}

	analysis := &Analysis{
		Score:             datatypes.ClampScore(*wire.AlignmentScore),
		OverallAssessment: wire.OverallAssessment,
	}

	for i, m := range wire.Misalignments {
		kind := datatypes.RelationshipKind(m.Kind)
		if !kind.Valid() {
			return nil, fmt.Errorf("misalignment %d: unknown kind %q: %w",
				i, m.Kind, llm.ErrMalformedResponse)
		}
		analysis.Misalignments = append(analysis.Misalignments, datatypes.Misalignment{
			Severity:    datatypes.Severity(m.Severity),
			Description: m.Description,
			Relationship: resolveRelationship(rels, datatypes.Relationship{
				DocumentA: m.DocumentA,
				DocumentB: m.DocumentB,
				Kind:      kind,
			}),
			SuggestedActions: m.SuggestedActions,
		})
	}

	for _, s := range wire.Suggestions {
		analysis.Suggestions = append(analysis.Suggestions, datatypes.SuggestedAction{
			Type:        s.Type,
			Action:      s.Action,
			Description: s.Description,
			Priority:    strings.ToLower(s.Priority),
			Source:      s.Source,
			Target:      s.Target,
		})
	}

	return analysis, nil
}

// resolveRelationship matches a provider-reported relationship against
// the declared set, preserving the declared form (including the
// critical-path flag) when a match exists. Endpoint order is ignored.
func resolveRelationship(declared []datatypes.Relationship, reported datatypes.Relationship) datatypes.Relationship {
	for _, rel := range declared {
		sameKind := rel.Kind == reported.Kind
		samePair := (rel.DocumentA == reported.DocumentA && rel.DocumentB == reported.DocumentB) ||
			(rel.DocumentA == reported.DocumentB && rel.DocumentB == reported.DocumentA)
		if sameKind && samePair {
			return rel
		}
	}
	return reported
}

// ParseCritique extracts, decodes, and validates a critique response.
func ParseCritique(text string) (*datatypes.Critique, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}

	var wire wireCritique
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("decode critique: %v: %w", err, llm.ErrMalformedResponse)
	}
	if err := responseValidate.Struct(&wire); err != nil {
		return nil, fmt.Errorf("critique schema: %v: %w", err, llm.ErrMalformedResponse)
	}

	critique := &datatypes.Critique{Summary: wire.Summary}
	for _, f := range wire.Flaws {
		critique.Flaws = append(critique.Flaws, datatypes.CritiqueFlaw{
			MisalignmentIndex: *f.MisalignmentIndex,
			Kind:              datatypes.CritiqueFlawKind(f.Kind),
			Description:       f.Description,
			RevisedSeverity:   datatypes.Severity(f.RevisedSeverity),
		})
	}
	return critique, nil
}
