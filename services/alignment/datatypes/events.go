// Copyright (C) 2025 DocSync AI (eng@docsync.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Change event types for webhook and manual triggers.
package datatypes

import (
	"time"
)

// ChangeSource names how a change event was detected.
type ChangeSource string

const (
	// SourceManual is a user-initiated push or trigger.
	SourceManual ChangeSource = "manual"

	// SourceWebhook is a platform webhook delivery.
	SourceWebhook ChangeSource = "webhook"
)

// ChangeEvent records that a document's content changed.
//
// OldFingerprint is empty for a document's first snapshot. NewFingerprint
// is the fingerprint of the content that triggered the event; the snapshot
// actually analyzed is whatever is current when the debounce window closes,
// which may be newer.
type ChangeEvent struct {
	ProjectID      string       `json:"project_id"`
	DocumentID     string       `json:"document_id"`
	OldFingerprint string       `json:"old_fingerprint,omitempty"`
	NewFingerprint string       `json:"new_fingerprint"`
	Source         ChangeSource `json:"source"`
	ArrivedAt      time.Time    `json:"arrived_at"`
}
