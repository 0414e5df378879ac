// Copyright (C) 2025 DocSync AI (eng@docsync.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package classifier

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/DocSyncAI/DocSync/services/alignment/datatypes"
)

func TestClassify(t *testing.T) {
	longText := strings.Repeat("requirement text ", 300) // ~5100 chars
	th := DefaultThresholds()

	tests := []struct {
		name string
		docs []datatypes.Document
		rels []datatypes.Relationship
		want datatypes.Strategy
	}{
		{
			name: "one short document no relationships",
			docs: []datatypes.Document{
				{ID: "reqs", Type: datatypes.DocTypeRequirements, Text: "short"},
			},
			want: datatypes.StrategySimple,
		},
		{
			name: "two types over volume threshold",
			docs: []datatypes.Document{
				{ID: "reqs", Type: datatypes.DocTypeRequirements, Text: longText},
				{ID: "tickets", Type: datatypes.DocTypeTicket, Text: longText},
			},
			rels: []datatypes.Relationship{
				{DocumentA: "reqs", DocumentB: "tickets", Kind: datatypes.KindRequirementsToTickets},
			},
			want: datatypes.StrategySelfCritique,
		},
		{
			name: "two types under volume threshold",
			docs: []datatypes.Document{
				{ID: "reqs", Type: datatypes.DocTypeRequirements, Text: "short"},
				{ID: "tickets", Type: datatypes.DocTypeTicket, Text: "short"},
			},
			want: datatypes.StrategySimple,
		},
		{
			name: "one type over volume threshold",
			docs: []datatypes.Document{
				{ID: "reqs-1", Type: datatypes.DocTypeRequirements, Text: longText},
				{ID: "reqs-2", Type: datatypes.DocTypeRequirements, Text: longText},
			},
			want: datatypes.StrategySimple,
		},
		{
			name: "critical path relationship forces full pipeline",
			docs: []datatypes.Document{
				{ID: "reqs", Type: datatypes.DocTypeRequirements, Text: "short"},
			},
			rels: []datatypes.Relationship{
				{DocumentA: "reqs", DocumentB: "reqs", Kind: datatypes.KindTimelineConsistency, CriticalPath: true},
			},
			want: datatypes.StrategySelfCritique,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.docs, tt.rels, th)
			assert.Equal(t, tt.want, got.Strategy)
			assert.NotEmpty(t, got.Reason)
		})
	}
}

func TestClassifyDeterminism(t *testing.T) {
	docs := []datatypes.Document{
		{ID: "reqs", Type: datatypes.DocTypeRequirements, Text: strings.Repeat("a", 3000)},
		{ID: "tickets", Type: datatypes.DocTypeTicket, Text: strings.Repeat("b", 3000)},
	}
	rels := []datatypes.Relationship{
		{DocumentA: "reqs", DocumentB: "tickets", Kind: datatypes.KindRequirementsToTickets},
	}

	first := Classify(docs, rels, DefaultThresholds())
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, Classify(docs, rels, DefaultThresholds()))
	}
}

func TestClassifyZeroThresholdsFallBackToDefaults(t *testing.T) {
	docs := []datatypes.Document{
		{ID: "reqs", Type: datatypes.DocTypeRequirements, Text: "short"},
	}
	got := Classify(docs, nil, Thresholds{})
	assert.Equal(t, datatypes.StrategySimple, got.Strategy)
}
