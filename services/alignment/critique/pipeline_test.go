// Copyright (C) 2025 DocSync AI (eng@docsync.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package critique

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DocSyncAI/DocSync/services/alignment/analyzer"
	"github.com/DocSyncAI/DocSync/services/alignment/datatypes"
	"github.com/DocSyncAI/DocSync/services/alignment/llm"
)

func testDocs() []datatypes.Document {
	return []datatypes.Document{
		{ID: "reqs", Type: datatypes.DocTypeRequirements, Text: "The exporter shall support CSV and JSON output.", Fingerprint: "f1"},
		{ID: "tickets", Type: datatypes.DocTypeTicket, Text: "Implement CSV export only.", Fingerprint: "f2"},
	}
}

func testRels() []datatypes.Relationship {
	return []datatypes.Relationship{
		{DocumentA: "reqs", DocumentB: "tickets", Kind: datatypes.KindRequirementsToTickets},
	}
}

const initialAnalysis = `{
  "alignment_score": 5,
  "misalignments": [
    {"severity": "critical", "description": "JSON export missing from tickets", "document_a": "reqs", "document_b": "tickets", "kind": "requirements-to-tickets", "suggested_actions": ["Create JSON export ticket"]},
    {"severity": "moderate", "description": "CSV delimiter unspecified", "document_a": "reqs", "document_b": "tickets", "kind": "requirements-to-tickets", "suggested_actions": ["Specify delimiter"]}
  ],
  "overall_assessment": "Partial coverage."
}`

const critiqueResponse = `{
  "flaws": [
    {"misalignment_index": 1, "kind": "unsupported-claim", "description": "Delimiter is actually specified in the appendix"}
  ],
  "summary": "One finding is unsupported."
}`

const enhancedAnalysis = `{
  "alignment_score": 6,
  "misalignments": [
    {"severity": "critical", "description": "JSON export missing from tickets", "document_a": "reqs", "document_b": "tickets", "kind": "requirements-to-tickets", "suggested_actions": ["Create JSON export ticket this sprint"]}
  ],
  "overall_assessment": "One real gap remains."
}`

func fastRetry() llm.RetryConfig {
	return llm.RetryConfig{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		BackoffFactor:  2.0,
	}
}

func newPipeline(t *testing.T, client llm.Client, opts ...PipelineOption) *Pipeline {
	t.Helper()
	a, err := analyzer.New(client, analyzer.WithRetryConfig(fastRetry()))
	require.NoError(t, err)
	p, err := NewPipeline(a, opts...)
	require.NoError(t, err)
	return p
}

func TestRunFullPipeline(t *testing.T) {
	mock := llm.NewMockClient(
		llm.MockReply{Text: initialAnalysis},
		llm.MockReply{Text: critiqueResponse},
		llm.MockReply{Text: enhancedAnalysis},
	)

	var stages []Stage
	p := newPipeline(t, mock, WithStageHook(func(s Stage) { stages = append(stages, s) }))

	report, err := p.Run(context.Background(), testDocs(), testRels())
	require.NoError(t, err)

	assert.Equal(t, 3, report.CallsUsed)
	assert.False(t, report.Degraded)
	assert.Equal(t, datatypes.StrategySelfCritique, report.Strategy)
	assert.Equal(t, 6, report.Score)
	assert.True(t, report.CritiqueAltered)
	assert.Equal(t, 3, mock.CallCount())

	// The dropped finding is audited, not silently lost.
	assert.Equal(t, []string{"CSV delimiter unspecified"}, report.ResolvedByCritique)

	assert.Equal(t, []Stage{
		StageGenerating, StageCritiquing, StageEnhancing, StateComplete,
	}, stages)
}

func TestRunDegradesWhenCritiqueFails(t *testing.T) {
	mock := llm.NewMockClient(
		llm.MockReply{Text: initialAnalysis},
		llm.MockReply{Err: llm.ErrServerError}, // critique attempt 1
		llm.MockReply{Err: llm.ErrServerError}, // critique attempt 2, retries exhausted
	)

	var stages []Stage
	p := newPipeline(t, mock, WithStageHook(func(s Stage) { stages = append(stages, s) }))

	report, err := p.Run(context.Background(), testDocs(), testRels())
	require.NoError(t, err)

	assert.True(t, report.Degraded)
	assert.Equal(t, 1, report.CallsUsed)
	assert.Equal(t, 5, report.Score)
	assert.Len(t, report.Misalignments, 2)
	assert.False(t, report.CritiqueAltered)
	assert.Equal(t, StateDegraded, stages[len(stages)-1])
}

func TestRunDegradesWhenEnhanceFails(t *testing.T) {
	mock := llm.NewMockClient(
		llm.MockReply{Text: initialAnalysis},
		llm.MockReply{Text: critiqueResponse},
		llm.MockReply{Err: llm.ErrServerError}, // enhance attempt 1
		llm.MockReply{Err: llm.ErrServerError}, // enhance attempt 2
	)
	p := newPipeline(t, mock)

	report, err := p.Run(context.Background(), testDocs(), testRels())
	require.NoError(t, err)

	assert.True(t, report.Degraded)
	assert.Equal(t, 2, report.CallsUsed)
	assert.Equal(t, 5, report.Score)
}

func TestRunDegradesOnMalformedCritiqueWithoutRetry(t *testing.T) {
	mock := llm.NewMockClient(
		llm.MockReply{Text: initialAnalysis},
		llm.MockReply{Text: "this is not a critique"},
	)
	p := newPipeline(t, mock)

	report, err := p.Run(context.Background(), testDocs(), testRels())
	require.NoError(t, err)

	assert.True(t, report.Degraded)
	assert.Equal(t, 1, report.CallsUsed)
	// Malformed responses are not retried.
	assert.Equal(t, 2, mock.CallCount())
}

func TestRunGenerateFailureIsHard(t *testing.T) {
	mock := llm.NewMockClient(llm.MockReply{Err: llm.ErrServerError})
	p := newPipeline(t, mock)

	_, err := p.Run(context.Background(), testDocs(), testRels())
	assert.ErrorIs(t, err, llm.ErrServerError)
}

func TestRunValidatesInput(t *testing.T) {
	p := newPipeline(t, llm.NewMockClient())

	_, err := p.Run(context.Background(), testDocs(), nil)
	assert.ErrorIs(t, err, analyzer.ErrNoRelationships)
}

func TestSeverityRevisionLastEntryWins(t *testing.T) {
	contradictoryCritique := `{
  "flaws": [
    {"misalignment_index": 0, "kind": "overstated-severity", "description": "Too harsh", "revised_severity": "minor"},
    {"misalignment_index": 0, "kind": "overstated-severity", "description": "Actually moderate", "revised_severity": "moderate"}
  ],
  "summary": "Severity disagreement."
}`
	// Enhance keeps the first finding with its original description.
	enhanced := `{
  "alignment_score": 5,
  "misalignments": [
    {"severity": "critical", "description": "JSON export missing from tickets", "document_a": "reqs", "document_b": "tickets", "kind": "requirements-to-tickets"},
    {"severity": "moderate", "description": "CSV delimiter unspecified", "document_a": "reqs", "document_b": "tickets", "kind": "requirements-to-tickets"}
  ],
  "overall_assessment": "Adjusted."
}`
	mock := llm.NewMockClient(
		llm.MockReply{Text: initialAnalysis},
		llm.MockReply{Text: contradictoryCritique},
		llm.MockReply{Text: enhanced},
	)
	p := newPipeline(t, mock)

	report, err := p.Run(context.Background(), testDocs(), testRels())
	require.NoError(t, err)

	var got datatypes.Severity
	for _, m := range report.Misalignments {
		if m.Description == "JSON export missing from tickets" {
			got = m.Severity
		}
	}
	assert.Equal(t, datatypes.SeverityModerate, got)
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "generating", StageGenerating.String())
	assert.Equal(t, "critiquing", StageCritiquing.String())
	assert.Equal(t, "enhancing", StageEnhancing.String())
	assert.Equal(t, "complete", StateComplete.String())
	assert.Equal(t, "degraded", StateDegraded.String())
	assert.Equal(t, "unknown", Stage(99).String())
}
