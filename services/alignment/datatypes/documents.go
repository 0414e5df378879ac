// Copyright (C) 2025 DocSync AI (eng@docsync.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the alignment service.
//
// This file contains the document model: document identities, content
// snapshots, projects, and the relationship declarations between document
// pairs. For analysis output types see reports.go; for change events see
// events.go.
package datatypes

import (
	"time"
)

// =============================================================================
// Document Types
// =============================================================================

// DocumentType classifies a document's role within a project.
type DocumentType string

const (
	// DocTypeRequirements is a product or technical requirements document.
	DocTypeRequirements DocumentType = "requirements"

	// DocTypeStrategy is a strategy note or positioning document.
	DocTypeStrategy DocumentType = "strategy"

	// DocTypeMessaging is customer-facing messaging or marketing copy.
	DocTypeMessaging DocumentType = "messaging"

	// DocTypeTicket is an implementation ticket or work item.
	DocTypeTicket DocumentType = "ticket"

	// DocTypeKnowledgeBase is reference material (wikis, runbooks).
	DocTypeKnowledgeBase DocumentType = "knowledge-base"
)

// Valid reports whether t is one of the recognized document types.
func (t DocumentType) Valid() bool {
	switch t {
	case DocTypeRequirements, DocTypeStrategy, DocTypeMessaging,
		DocTypeTicket, DocTypeKnowledgeBase:
		return true
	default:
		return false
	}
}

// Document identifies one document within a project.
//
// # Description
//
// Document carries identity and type. Content lives in versioned Snapshots
// held by the snapshot store; the Text and Fingerprint fields are populated
// from the store when a document is handed to the classifier or analyzer,
// and are empty on registration.
type Document struct {
	// ID is the document identifier, unique within its project.
	ID string `json:"id"`

	// Type is the document's role. Closed set, see DocumentType.
	Type DocumentType `json:"type"`

	// Text is the current snapshot content. Populated at analysis time.
	Text string `json:"text,omitempty"`

	// Fingerprint is the current snapshot fingerprint. Populated at
	// analysis time.
	Fingerprint string `json:"fingerprint,omitempty"`
}

// Snapshot is one immutable version of a document's content.
//
// Fingerprint is a SHA-256 hash of the normalized text: identical content
// always yields the identical fingerprint.
type Snapshot struct {
	DocumentID  string    `json:"document_id"`
	Fingerprint string    `json:"fingerprint"`
	Text        string    `json:"text"`
	Timestamp   time.Time `json:"timestamp"`
}

// =============================================================================
// Relationships
// =============================================================================

// RelationshipKind names the analytical relationship between two documents.
type RelationshipKind string

const (
	// KindRequirementsToTickets relates a requirements document to the
	// tickets implementing it.
	KindRequirementsToTickets RelationshipKind = "requirements-to-tickets"

	// KindStrategyToRequirements relates a strategy document to the
	// requirements derived from it.
	KindStrategyToRequirements RelationshipKind = "strategy-to-requirements"

	// KindMessagingToRequirements relates customer messaging to the
	// requirements it promises.
	KindMessagingToRequirements RelationshipKind = "messaging-to-requirements"

	// KindTimelineConsistency relates documents whose dates and milestones
	// must agree.
	KindTimelineConsistency RelationshipKind = "timeline-consistency"
)

// Valid reports whether k is one of the four recognized kinds.
func (k RelationshipKind) Valid() bool {
	switch k {
	case KindRequirementsToTickets, KindStrategyToRequirements,
		KindMessagingToRequirements, KindTimelineConsistency:
		return true
	default:
		return false
	}
}

// Relationship declares that two documents are analytically related.
//
// Directionless for analysis purposes; the kind implies interpretation.
// Both endpoints must name documents registered in the same project.
type Relationship struct {
	// DocumentA is one endpoint document id.
	DocumentA string `json:"document_a"`

	// DocumentB is the other endpoint document id.
	DocumentB string `json:"document_b"`

	// Kind is the relationship kind. Closed set, see RelationshipKind.
	Kind RelationshipKind `json:"kind"`

	// CriticalPath marks the relationship as critical. A project with any
	// critical-path relationship always gets the full analysis pipeline.
	CriticalPath bool `json:"critical_path,omitempty"`
}

// Involves reports whether the relationship touches the given document.
func (r Relationship) Involves(docID string) bool {
	return r.DocumentA == docID || r.DocumentB == docID
}

// Other returns the opposite endpoint from docID, or "" when docID is not
// an endpoint.
func (r Relationship) Other(docID string) string {
	switch docID {
	case r.DocumentA:
		return r.DocumentB
	case r.DocumentB:
		return r.DocumentA
	default:
		return ""
	}
}

// =============================================================================
// Projects
// =============================================================================

// Project groups documents and the relationship declarations between them.
type Project struct {
	ID            string         `json:"id"`
	Documents     []Document     `json:"documents"`
	Relationships []Relationship `json:"relationships"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Document returns the project document with the given id, or nil.
func (p *Project) Document(docID string) *Document {
	for i := range p.Documents {
		if p.Documents[i].ID == docID {
			return &p.Documents[i]
		}
	}
	return nil
}
