// Copyright (C) 2025 DocSync AI (eng@docsync.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Inbound HTTP request types and their validation.
package datatypes

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// MaxDocumentBytes is the maximum size of a pushed document snapshot.
// Checked as byte length, not rune count.
const MaxDocumentBytes = 256 * 1024 // 256KB

// requestValidate is the validator instance for inbound request types.
// Initialized in init() with custom validators.
var requestValidate *validator.Validate

func init() {
	requestValidate = validator.New()

	_ = requestValidate.RegisterValidation("doctype", validateDocumentType)
	_ = requestValidate.RegisterValidation("relkind", validateRelationshipKind)
	_ = requestValidate.RegisterValidation("maxdocbytes", validateMaxDocBytes)
}

// validateDocumentType checks the field against the closed DocumentType set.
func validateDocumentType(fl validator.FieldLevel) bool {
	return DocumentType(fl.Field().String()).Valid()
}

// validateRelationshipKind checks the field against the closed
// RelationshipKind set.
func validateRelationshipKind(fl validator.FieldLevel) bool {
	return RelationshipKind(fl.Field().String()).Valid()
}

// validateMaxDocBytes enforces MaxDocumentBytes on string fields.
func validateMaxDocBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxDocumentBytes
}

// =============================================================================
// Project Registration
// =============================================================================

// DocumentSpec declares one document at project registration.
type DocumentSpec struct {
	ID   string `json:"id" validate:"required,max=256"`
	Type string `json:"type" validate:"required,doctype"`

	// Text optionally seeds the document's first snapshot.
	Text string `json:"text,omitempty" validate:"omitempty,maxdocbytes"`
}

// RelationshipSpec declares one relationship at project registration.
type RelationshipSpec struct {
	DocumentA    string `json:"document_a" validate:"required"`
	DocumentB    string `json:"document_b" validate:"required"`
	Kind         string `json:"kind" validate:"required,relkind"`
	CriticalPath bool   `json:"critical_path"`
}

// RegisterProjectRequest is the body of POST /v1/projects.
//
// # Validation
//
//   - ProjectID: required, at most 256 characters
//   - Documents: at least one, each with a recognized type
//   - Relationships: endpoints must name declared documents (checked by
//     the graph builder, not the validator)
type RegisterProjectRequest struct {
	ProjectID     string             `json:"project_id" validate:"required,max=256"`
	Documents     []DocumentSpec     `json:"documents" validate:"required,min=1,dive"`
	Relationships []RelationshipSpec `json:"relationships" validate:"omitempty,dive"`
}

// Validate checks the request against its validation rules.
func (r *RegisterProjectRequest) Validate() error {
	if err := requestValidate.Struct(r); err != nil {
		return fmt.Errorf("invalid project registration: %w", err)
	}
	return nil
}

// =============================================================================
// Snapshot Push
// =============================================================================

// PushSnapshotRequest is the body of
// PUT /v1/projects/:projectId/documents/:docId.
type PushSnapshotRequest struct {
	Text string `json:"text" validate:"required,maxdocbytes"`
}

// Validate checks the request against its validation rules.
func (r *PushSnapshotRequest) Validate() error {
	if err := requestValidate.Struct(r); err != nil {
		return fmt.Errorf("invalid snapshot push: %w", err)
	}
	return nil
}

// =============================================================================
// Webhook Ingress
// =============================================================================

// WebhookRequest is the raw inbound webhook payload before normalization
// into a ChangeEvent. Platforms send either new content or a precomputed
// fingerprint; at least one must be present.
type WebhookRequest struct {
	ProjectID  string `json:"project_id" validate:"required"`
	DocumentID string `json:"document_id" validate:"required"`

	// Content is the new document text, when the platform pushes content.
	Content string `json:"content,omitempty" validate:"omitempty,maxdocbytes"`

	// Fingerprint is the new content fingerprint, when the platform only
	// signals a change.
	Fingerprint string `json:"fingerprint,omitempty"`

	// Platform identifies the source platform (informational).
	Platform string `json:"platform,omitempty" validate:"omitempty,max=64"`
}

// Validate checks the request against its validation rules and requires
// at least one of Content or Fingerprint.
func (r *WebhookRequest) Validate() error {
	if err := requestValidate.Struct(r); err != nil {
		return fmt.Errorf("invalid webhook payload: %w", err)
	}
	if r.Content == "" && r.Fingerprint == "" {
		return fmt.Errorf("invalid webhook payload: content or fingerprint required")
	}
	return nil
}
