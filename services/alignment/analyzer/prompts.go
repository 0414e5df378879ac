// Copyright (C) 2025 DocSync AI (eng@docsync.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Prompt construction for the analysis, critique, and enhance calls.
package analyzer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/DocSyncAI/DocSync/services/alignment/datatypes"
)

// maxContextChars caps how much project content is repeated in the
// critique and enhance prompts, which already carry prior-stage output.
const maxContextChars = 2000

// promptDocument is the document shape serialized into prompts.
type promptDocument struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text"`
}

func documentsJSON(docs []datatypes.Document) string {
	wire := make([]promptDocument, 0, len(docs))
	for _, doc := range docs {
		wire = append(wire, promptDocument{ID: doc.ID, Type: string(doc.Type), Text: doc.Text})
	}
	encoded, err := json.MarshalIndent(wire, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(encoded)
}

func relationshipLines(rels []datatypes.Relationship) string {
	var b strings.Builder
	for _, rel := range rels {
		fmt.Fprintf(&b, "- %s <-> %s (%s)", rel.DocumentA, rel.DocumentB, rel.Kind)
		if rel.CriticalPath {
			b.WriteString(" [critical-path]")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func truncateContext(s string) string {
	if len(s) <= maxContextChars {
		return s
	}
	return s[:maxContextChars] + "\n..."
}

// BuildAnalysisPrompt creates the core alignment analysis prompt.
func BuildAnalysisPrompt(docs []datatypes.Document, rels []datatypes.Relationship) string {
	return fmt.Sprintf(`# Document Alignment Analysis

Analyze these project documents for alignment issues and provide specific, actionable suggestions.

## Project Documents:
%s

## Declared Relationships:
%s
Provide analysis as JSON:
{
    "alignment_score": 1-10,
    "misalignments": [
        {
            "severity": "critical|moderate|minor",
            "description": "Specific misalignment description",
            "document_a": "document id",
            "document_b": "document id",
            "kind": "the declared relationship kind this violates",
            "suggested_actions": ["Specific action to fix this misalignment"]
        }
    ],
    "suggestions": [
        {
            "type": "content_enhancement|coverage|consistency",
            "action": "create|update|review|remove",
            "description": "Specific actionable suggestion",
            "priority": "high|medium|low",
            "source": "source document id",
            "target": "target document id"
        }
    ],
    "overall_assessment": "Brief summary of document alignment status and next steps"
}

Focus on specific, actionable alignment issues between:
- Requirements vs implementation tickets
- Strategy goals vs requirements
- Customer messaging vs actual functionality
- Timeline consistency across documents
- Missing connections between related concepts

Only report misalignments that violate one of the declared relationships.
Ensure all suggestions are specific enough to be immediately actionable.
`, documentsJSON(docs), relationshipLines(rels))
}

// BuildCritiquePrompt creates the self-critique prompt from the initial
// analysis text and the original documents.
func BuildCritiquePrompt(initialAnalysis string, docs []datatypes.Document) string {
	return fmt.Sprintf(`You previously generated this document alignment analysis:

%s

For this project content:
%s

Critically evaluate your alignment analysis:

1. **Accuracy**: Are the identified misalignments actually present in the documents?
2. **Completeness**: What important alignment issues did you miss?
3. **Specificity**: Are your suggestions specific enough to be actionable?
4. **Prioritization**: Did you focus on the most critical alignment issues?
5. **Cross-Document Relationships**: Did you properly analyze relationships between different document types?

Respond as JSON:
{
    "flaws": [
        {
            "misalignment_index": 0,
            "kind": "missed-relationship|overstated-severity|unsupported-claim",
            "description": "What is wrong and why",
            "revised_severity": "critical|moderate|minor"
        }
    ],
    "summary": "Honest overall judgement of the analysis quality"
}

Use misalignment_index -1 for flaws about the analysis as a whole.
Omit revised_severity unless the flaw concerns severity.
Focus on genuine improvements; be honest about what could be better.
`, initialAnalysis, truncateContext(documentsJSON(docs)))
}

// BuildEnhancePrompt creates the final enhancement prompt from the
// initial analysis, the critique, and the original documents.
func BuildEnhancePrompt(initialAnalysis, critique string, docs []datatypes.Document, rels []datatypes.Relationship) string {
	return fmt.Sprintf(`Original alignment analysis:
%s

Self-critique identifying areas for improvement:
%s

Project content:
%s

Declared relationships:
%s
Provide an enhanced alignment analysis that addresses the critique while keeping the exact same JSON format as the original analysis.

Focus on:
- More accurate identification of real misalignments
- More specific, actionable suggestions
- Better prioritization of critical alignment issues
- Complete coverage of document relationships

Every misalignment from the original analysis must either appear (possibly revised) or be deliberately dropped because the critique showed it was wrong.
Ensure all suggestions are specific and implementable.
`, initialAnalysis, critique, truncateContext(documentsJSON(docs)), relationshipLines(rels))
}
