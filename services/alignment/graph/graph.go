// Copyright (C) 2025 DocSync AI (eng@docsync.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package graph provides the in-memory relationship graph and change
// impact analysis.
//
// The graph is an adjacency structure keyed by document id, built from a
// project's relationship declarations. Impact analysis is deliberately
// one-hop: only directly related documents are considered impacted.
// Indirect effects are re-derived by the subsequent full re-analysis
// rather than chased transitively, which bounds the blast radius of any
// single change.
package graph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/DocSyncAI/DocSync/services/alignment/datatypes"
)

var (
	// ErrUnknownDocument is returned when a relationship references a
	// document id that is not part of the project.
	ErrUnknownDocument = errors.New("relationship references unknown document")

	// ErrUnknownKind is returned for a relationship kind outside the
	// closed set.
	ErrUnknownKind = errors.New("unknown relationship kind")
)

// Graph is a project's relationship graph.
//
// Immutable after Build; safe for concurrent reads.
type Graph struct {
	adjacency     map[string][]datatypes.Relationship
	documents     map[string]datatypes.DocumentType
	relationships []datatypes.Relationship
}

// Build constructs a graph from a project's documents and relationship
// declarations. Every relationship endpoint must name a declared
// document and every kind must be one of the four recognized values;
// dangling references are rejected.
func Build(docs []datatypes.Document, rels []datatypes.Relationship) (*Graph, error) {
	g := &Graph{
		adjacency: make(map[string][]datatypes.Relationship),
		documents: make(map[string]datatypes.DocumentType, len(docs)),
	}

	for _, doc := range docs {
		if doc.ID == "" {
			return nil, errors.New("document id must not be empty")
		}
		g.documents[doc.ID] = doc.Type
	}

	for _, rel := range rels {
		if !rel.Kind.Valid() {
			return nil, fmt.Errorf("relationship %s<>%s: %w: %q",
				rel.DocumentA, rel.DocumentB, ErrUnknownKind, rel.Kind)
		}
		if _, ok := g.documents[rel.DocumentA]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownDocument, rel.DocumentA)
		}
		if _, ok := g.documents[rel.DocumentB]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownDocument, rel.DocumentB)
		}

		g.relationships = append(g.relationships, rel)
		g.adjacency[rel.DocumentA] = append(g.adjacency[rel.DocumentA], rel)
		if rel.DocumentB != rel.DocumentA {
			g.adjacency[rel.DocumentB] = append(g.adjacency[rel.DocumentB], rel)
		}
	}

	return g, nil
}

// Related returns the ids of documents directly related to docID,
// sorted and deduplicated. A document with no declared relationships
// yields an empty slice.
func (g *Graph) Related(docID string) []string {
	seen := make(map[string]struct{})
	for _, rel := range g.adjacency[docID] {
		other := rel.Other(docID)
		if other != "" && other != docID {
			seen[other] = struct{}{}
		}
	}

	related := make([]string, 0, len(seen))
	for id := range seen {
		related = append(related, id)
	}
	sort.Strings(related)
	return related
}

// Impact returns the impact scope of a change event: the set of
// documents directly related to the changed document (one hop, never
// transitive). A document with no declared relationships cannot be
// misaligned, so its impact scope is empty and no re-analysis is
// warranted.
func (g *Graph) Impact(event datatypes.ChangeEvent) []string {
	return g.Related(event.DocumentID)
}

// Relationships returns all relationship declarations in the graph.
func (g *Graph) Relationships() []datatypes.Relationship {
	return g.relationships
}

// RelationshipsFor returns the relationships touching any document in
// scope, preserving declaration order without duplicates.
func (g *Graph) RelationshipsFor(scope []string) []datatypes.Relationship {
	inScope := make(map[string]struct{}, len(scope))
	for _, id := range scope {
		inScope[id] = struct{}{}
	}

	var result []datatypes.Relationship
	for _, rel := range g.relationships {
		_, a := inScope[rel.DocumentA]
		_, b := inScope[rel.DocumentB]
		if a || b {
			result = append(result, rel)
		}
	}
	return result
}

// HasCriticalPath reports whether any relationship is marked
// critical-path.
func (g *Graph) HasCriticalPath() bool {
	for _, rel := range g.relationships {
		if rel.CriticalPath {
			return true
		}
	}
	return false
}

// DocumentIDs returns all document ids in the graph, sorted.
func (g *Graph) DocumentIDs() []string {
	ids := make([]string, 0, len(g.documents))
	for id := range g.documents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
