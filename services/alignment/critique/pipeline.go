// Copyright (C) 2025 DocSync AI (eng@docsync.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package critique implements the three-stage self-critique pipeline:
// generate, critique, enhance.
//
// The pipeline is an explicit finite-state machine so that partial
// failure is a well-defined transition:
//
//	Generating -> Critiquing -> Enhancing -> Complete
//	                   \______________\____> Degraded
//
// A failure in the generate stage is a hard failure; a failure in the
// critique or enhance stage degrades to the generate-stage report with
// the degradation clearly marked. The user always receives a usable
// report once generation succeeds.
package critique

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/DocSyncAI/DocSync/services/alignment/analyzer"
	"github.com/DocSyncAI/DocSync/services/alignment/datatypes"
	"github.com/DocSyncAI/DocSync/services/alignment/llm"
	"github.com/DocSyncAI/DocSync/services/alignment/observability"
)

// Stage is a pipeline state.
type Stage int

const (
	// StageGenerating is the initial analysis call.
	StageGenerating Stage = iota

	// StageCritiquing is the self-critique call against the initial
	// analysis.
	StageCritiquing

	// StageEnhancing is the final call merging critique into an
	// enhanced analysis.
	StageEnhancing

	// StateComplete is the terminal success state.
	StateComplete

	// StateDegraded is the terminal fallback state: the generate-stage
	// report is returned with Degraded set.
	StateDegraded
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageGenerating:
		return "generating"
	case StageCritiquing:
		return "critiquing"
	case StageEnhancing:
		return "enhancing"
	case StateComplete:
		return "complete"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// validTransitions defines the allowed state machine edges.
var validTransitions = map[Stage][]Stage{
	StageGenerating: {StageCritiquing},
	StageCritiquing: {StageEnhancing, StateDegraded},
	StageEnhancing:  {StateComplete, StateDegraded},
}

// Pipeline runs self-critique analysis on top of the analyzer's
// primitives.
type Pipeline struct {
	analyzer  *analyzer.Analyzer
	logger    *slog.Logger
	stageHook func(Stage)
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithStageHook registers a callback invoked on every state
// transition, for metrics and tracing.
func WithStageHook(hook func(Stage)) PipelineOption {
	return func(p *Pipeline) { p.stageHook = hook }
}

// NewPipeline creates a pipeline sharing the analyzer's client, retry
// policy, and call timeout.
func NewPipeline(a *analyzer.Analyzer, opts ...PipelineOption) (*Pipeline, error) {
	if a == nil {
		return nil, errors.New("analyzer must not be nil")
	}
	p := &Pipeline{
		analyzer: a,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// run tracks one execution's state.
type run struct {
	stage Stage
}

// transition moves the run to the next stage, enforcing the state
// machine edges.
func (p *Pipeline) transition(r *run, to Stage) {
	allowed := false
	for _, next := range validTransitions[r.stage] {
		if next == to {
			allowed = true
			break
		}
	}
	if !allowed {
		// Programming error; the stage sequence is fixed.
		panic(fmt.Sprintf("invalid pipeline transition %s -> %s", r.stage, to))
	}

	p.logger.Debug("pipeline transition",
		"from", r.stage.String(),
		"to", to.String())
	r.stage = to
	if p.stageHook != nil {
		p.stageHook(to)
	}
}

// Run executes the full pipeline.
//
// Call accounting on the returned report counts successful provider
// calls only: 3 for a complete run, 1 when critique failed, 2 when
// critique succeeded but enhance failed. Degraded runs return the
// generate-stage report with Degraded set; they are not errors.
func (p *Pipeline) Run(ctx context.Context, docs []datatypes.Document, rels []datatypes.Relationship) (*datatypes.AlignmentReport, error) {
	if err := analyzer.ValidateInput(docs, rels); err != nil {
		return nil, err
	}

	r := &run{stage: StageGenerating}
	if p.stageHook != nil {
		p.stageHook(StageGenerating)
	}

	// Stage 1: generate. No fallback exists yet, so failure is hard.
	initialText, initial, err := p.generate(ctx, docs, rels)
	if err != nil {
		return nil, fmt.Errorf("generate stage: %w", err)
	}

	// Stage 2: critique.
	p.transition(r, StageCritiquing)
	critiqueText, crit, err := p.critiqueStage(ctx, initialText, docs)
	if err != nil {
		p.logger.Warn("critique stage failed, degrading", "error", err)
		p.transition(r, StateDegraded)
		return p.degradedReport(docs, initial, 1), nil
	}

	// Stage 3: enhance.
	p.transition(r, StageEnhancing)
	enhanced, err := p.enhance(ctx, initialText, critiqueText, docs, rels)
	if err != nil {
		p.logger.Warn("enhance stage failed, degrading", "error", err)
		p.transition(r, StateDegraded)
		return p.degradedReport(docs, initial, 2), nil
	}

	p.transition(r, StateComplete)
	return p.finalReport(docs, initial, crit, enhanced), nil
}

// generate runs the initial analysis call and keeps the raw completion
// text for the critique prompt.
func (p *Pipeline) generate(ctx context.Context, docs []datatypes.Document, rels []datatypes.Relationship) (string, *analyzer.Analysis, error) {
	prompt := analyzer.BuildAnalysisPrompt(docs, rels)

	text, err := p.call(ctx, "generate", prompt)
	if err != nil {
		return "", nil, err
	}

	initial, err := analyzer.ParseAnalysis(text, rels)
	if err != nil {
		p.logger.Error("malformed generate response", "error", err, "raw_response", text)
		return "", nil, err
	}
	return text, initial, nil
}

func (p *Pipeline) critiqueStage(ctx context.Context, initialText string, docs []datatypes.Document) (string, *datatypes.Critique, error) {
	prompt := analyzer.BuildCritiquePrompt(initialText, docs)

	text, err := p.call(ctx, "critique", prompt)
	if err != nil {
		return "", nil, err
	}

	crit, err := analyzer.ParseCritique(text)
	if err != nil {
		p.logger.Error("malformed critique response", "error", err, "raw_response", text)
		return "", nil, err
	}
	return text, crit, nil
}

func (p *Pipeline) enhance(ctx context.Context, initialText, critiqueText string, docs []datatypes.Document, rels []datatypes.Relationship) (*analyzer.Analysis, error) {
	prompt := analyzer.BuildEnhancePrompt(initialText, critiqueText, docs, rels)

	text, err := p.call(ctx, "enhance", prompt)
	if err != nil {
		return nil, err
	}

	enhanced, err := analyzer.ParseAnalysis(text, rels)
	if err != nil {
		p.logger.Error("malformed enhance response", "error", err, "raw_response", text)
		return nil, err
	}
	return enhanced, nil
}

// call issues one provider call under the shared retry policy.
func (p *Pipeline) call(ctx context.Context, stage, prompt string) (string, error) {
	ctx, span := observability.Tracer().Start(ctx, "provider.complete")
	defer span.End()
	span.SetAttributes(attribute.String("provider.stage", stage))

	var resp *llm.Response
	_, err := llm.Retry(ctx, p.analyzer.RetryConfig(), func(ctx context.Context, attempt int) error {
		var callErr error
		resp, callErr = p.analyzer.Client().Complete(ctx, prompt, llm.WithTimeout(p.analyzer.CallTimeout()))
		return callErr
	})
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	span.SetAttributes(attribute.String("provider.backend", resp.Backend))
	return resp.Text, nil
}

// degradedReport packages the generate-stage analysis as the final
// result. callsUsed counts successful provider calls only.
func (p *Pipeline) degradedReport(docs []datatypes.Document, initial *analyzer.Analysis, callsUsed int) *datatypes.AlignmentReport {
	report := p.analyzer.AssembleReport(docs, initial)
	report.Strategy = datatypes.StrategySelfCritique
	report.CallsUsed = callsUsed
	report.Degraded = true
	return report
}

// finalReport merges the enhanced analysis with the critique audit
// trail: severity revisions are applied deterministically (the last
// critique entry for an index wins) and initial findings the enhance
// stage dropped are recorded as resolved by critique.
func (p *Pipeline) finalReport(docs []datatypes.Document, initial *analyzer.Analysis, crit *datatypes.Critique, enhanced *analyzer.Analysis) *datatypes.AlignmentReport {
	// Later flaws overwrite earlier ones for the same index.
	revisions := make(map[int]datatypes.Severity)
	for _, flaw := range crit.Flaws {
		if flaw.RevisedSeverity.Valid() && flaw.MisalignmentIndex >= 0 {
			revisions[flaw.MisalignmentIndex] = flaw.RevisedSeverity
		}
	}

	finalByDescription := make(map[string]int, len(enhanced.Misalignments))
	for i, m := range enhanced.Misalignments {
		finalByDescription[m.Description] = i
	}

	var resolved []string
	for idx, m := range initial.Misalignments {
		finalIdx, survived := finalByDescription[m.Description]
		if !survived {
			// Revised findings keep their relationship even when the
			// description was rewritten.
			finalIdx, survived = findByRelationship(enhanced.Misalignments, m.Relationship)
		}
		if !survived {
			resolved = append(resolved, m.Description)
			continue
		}
		if sev, ok := revisions[idx]; ok {
			enhanced.Misalignments[finalIdx].Severity = sev
		}
	}

	report := p.analyzer.AssembleReport(docs, enhanced)
	report.Strategy = datatypes.StrategySelfCritique
	report.CallsUsed = 3
	report.CritiqueAltered = len(crit.Flaws) > 0 ||
		enhanced.Score != initial.Score ||
		len(enhanced.Misalignments) != len(initial.Misalignments) ||
		len(resolved) > 0
	report.ResolvedByCritique = resolved
	return report
}

// findByRelationship locates the first misalignment violating the same
// relationship, ignoring endpoint order.
func findByRelationship(list []datatypes.Misalignment, rel datatypes.Relationship) (int, bool) {
	for i, m := range list {
		if m.Relationship.Kind != rel.Kind {
			continue
		}
		samePair := (m.Relationship.DocumentA == rel.DocumentA && m.Relationship.DocumentB == rel.DocumentB) ||
			(m.Relationship.DocumentA == rel.DocumentB && m.Relationship.DocumentB == rel.DocumentA)
		if samePair {
			return i, true
		}
	}
	return 0, false
}
