// Copyright (C) 2025 DocSync AI (eng@docsync.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package analyzer produces alignment reports from document sets.
//
// Analyze is the single-pass path: one provider call, strict schema
// validation of the response, score clamping into range. The prompt
// builders and response parsers are also used by the self-critique
// pipeline, which layers its staged calls on the same primitives.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/DocSyncAI/DocSync/services/alignment/datatypes"
	"github.com/DocSyncAI/DocSync/services/alignment/llm"
	"github.com/DocSyncAI/DocSync/services/alignment/observability"
)

var (
	// ErrNoDocuments is returned when the document set is empty.
	ErrNoDocuments = errors.New("document set is empty")

	// ErrNoRelationships is returned when no relationship is supplied.
	// Analysis without a declared relationship has nothing to check.
	ErrNoRelationships = errors.New("at least one relationship is required")

	// ErrUncoveredDocument is returned when a relationship references a
	// document id missing from the supplied set.
	ErrUncoveredDocument = errors.New("relationship references document not in set")
)

// Analyzer runs single-pass alignment analysis.
type Analyzer struct {
	client      llm.Client
	retryConfig llm.RetryConfig
	callTimeout time.Duration
	logger      *slog.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithRetryConfig overrides the per-call retry policy.
func WithRetryConfig(cfg llm.RetryConfig) Option {
	return func(a *Analyzer) { a.retryConfig = cfg }
}

// WithCallTimeout bounds each provider call.
func WithCallTimeout(d time.Duration) Option {
	return func(a *Analyzer) {
		if d > 0 {
			a.callTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates an Analyzer on the given provider client.
func New(client llm.Client, opts ...Option) (*Analyzer, error) {
	if client == nil {
		return nil, errors.New("client must not be nil")
	}
	a := &Analyzer{
		client:      client,
		retryConfig: llm.DefaultRetryConfig(),
		callTimeout: 60 * time.Second,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if err := a.retryConfig.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// ValidateInput checks the analyzer's input constraints: a non-empty
// document set, at least one relationship, and full coverage of every
// document id the relationships mention.
func ValidateInput(docs []datatypes.Document, rels []datatypes.Relationship) error {
	if len(docs) == 0 {
		return ErrNoDocuments
	}
	if len(rels) == 0 {
		return ErrNoRelationships
	}
	known := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		known[doc.ID] = struct{}{}
	}
	for _, rel := range rels {
		if _, ok := known[rel.DocumentA]; !ok {
			return fmt.Errorf("%w: %q", ErrUncoveredDocument, rel.DocumentA)
		}
		if _, ok := known[rel.DocumentB]; !ok {
			return fmt.Errorf("%w: %q", ErrUncoveredDocument, rel.DocumentB)
		}
	}
	return nil
}

// Analyze runs a single-pass analysis: one provider call (with the
// configured retry policy), strict response validation, and report
// assembly. Transient provider failures that exhaust retries surface as
// a hard failure; there is no fallback for the single-pass path.
func (a *Analyzer) Analyze(ctx context.Context, docs []datatypes.Document, rels []datatypes.Relationship) (*datatypes.AlignmentReport, error) {
	if err := ValidateInput(docs, rels); err != nil {
		return nil, err
	}

	prompt := BuildAnalysisPrompt(docs, rels)

	callCtx, span := observability.Tracer().Start(ctx, "provider.complete")
	span.SetAttributes(attribute.String("provider.stage", "generate"))

	var resp *llm.Response
	result, err := llm.Retry(callCtx, a.retryConfig, func(ctx context.Context, attempt int) error {
		var callErr error
		resp, callErr = a.client.Complete(ctx, prompt, llm.WithTimeout(a.callTimeout))
		return callErr
	})
	if err != nil {
		span.RecordError(err)
		span.End()
		return nil, fmt.Errorf("analysis call after %d attempts: %w", result.Attempts, err)
	}
	span.SetAttributes(
		attribute.String("provider.backend", resp.Backend),
		attribute.Int("provider.attempts", result.Attempts),
	)
	span.End()

	analysis, err := ParseAnalysis(resp.Text, rels)
	if err != nil {
		a.logger.Error("malformed analysis response",
			"error", err,
			"raw_response", resp.Text)
		return nil, err
	}

	report := a.AssembleReport(docs, analysis)
	report.Strategy = datatypes.StrategySimple
	report.CallsUsed = 1
	return report, nil
}

// AssembleReport builds an AlignmentReport from a parsed analysis,
// filling identity, fingerprints, ordering, and enhancement
// suggestions. Strategy and call accounting are set by the caller.
func (a *Analyzer) AssembleReport(docs []datatypes.Document, analysis *Analysis) *datatypes.AlignmentReport {
	fingerprints := make(map[string]string, len(docs))
	for _, doc := range docs {
		fingerprints[doc.ID] = doc.Fingerprint
	}

	misalignments := make([]datatypes.Misalignment, len(analysis.Misalignments))
	copy(misalignments, analysis.Misalignments)
	sort.SliceStable(misalignments, func(i, j int) bool {
		return misalignments[i].Severity.Rank() < misalignments[j].Severity.Rank()
	})

	suggestions := append([]datatypes.SuggestedAction{}, analysis.Suggestions...)
	suggestions = append(suggestions, EnhancementSuggestions(docs)...)

	return &datatypes.AlignmentReport{
		ID:                uuid.NewString(),
		Fingerprints:      fingerprints,
		Score:             datatypes.ClampScore(analysis.Score),
		Misalignments:     misalignments,
		Suggestions:       suggestions,
		OverallAssessment: analysis.OverallAssessment,
		CreatedAt:         time.Now().UTC(),
	}
}

// Client returns the underlying provider client, for the pipeline.
func (a *Analyzer) Client() llm.Client {
	return a.client
}

// RetryConfig returns the analyzer's retry policy, for the pipeline.
func (a *Analyzer) RetryConfig() llm.RetryConfig {
	return a.retryConfig
}

// CallTimeout returns the per-call timeout, for the pipeline.
func (a *Analyzer) CallTimeout() time.Duration {
	return a.callTimeout
}

// EnhancementSuggestions flags documents that look too thin to analyze
// well and suggests enriching them. Advisory only; never affects the
// score or misalignment set.
func EnhancementSuggestions(docs []datatypes.Document) []datatypes.SuggestedAction {
	var suggestions []datatypes.SuggestedAction
	for _, doc := range docs {
		var threshold int
		var priority string
		switch doc.Type {
		case datatypes.DocTypeRequirements:
			threshold, priority = 500, "medium"
		case datatypes.DocTypeStrategy:
			threshold, priority = 300, "medium"
		case datatypes.DocTypeMessaging:
			threshold, priority = 300, "low"
		default:
			continue
		}
		if len(doc.Text) > 0 && len(doc.Text) < threshold {
			suggestions = append(suggestions, datatypes.SuggestedAction{
				Type:   "content_enhancement",
				Action: "enhance",
				Description: fmt.Sprintf(
					"%s document %q appears incomplete; consider expanding it before relying on alignment findings",
					doc.Type, doc.ID),
				Priority: priority,
				Source:   doc.ID,
			})
		}
	}
	return suggestions
}
