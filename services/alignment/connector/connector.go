// Copyright (C) 2025 DocSync AI (eng@docsync.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package connector defines the document source interface and webhook
// normalization.
//
// Platform-specific adapters (OAuth flows, per-platform APIs) are
// implemented externally against the Connector interface. A connector
// failure never corrupts the snapshot store: the last-good snapshot is
// retained and the change simply does not produce an event.
package connector

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/DocSyncAI/DocSync/services/alignment/datatypes"
	"github.com/DocSyncAI/DocSync/services/alignment/snapshot"
)

// ErrConnectorFetch wraps external platform failures while fetching a
// document.
var ErrConnectorFetch = errors.New("connector fetch failed")

// Connector is the document source interface.
type Connector interface {
	// FetchSnapshot retrieves the document's current text. Failures are
	// wrapped in ErrConnectorFetch.
	FetchSnapshot(ctx context.Context, documentID string) (text string, fingerprint string, ts time.Time, err error)

	// Subscribe registers a callback for the document's change events.
	Subscribe(documentID string, callback func(datatypes.ChangeEvent)) error
}

// NormalizeWebhook converts a raw webhook payload into a ChangeEvent.
// When the platform pushed content rather than a fingerprint, the
// fingerprint is computed locally so both ingestion paths produce
// identical events for identical content.
func NormalizeWebhook(req *datatypes.WebhookRequest, oldFingerprint string, arrivedAt time.Time) datatypes.ChangeEvent {
	fingerprint := req.Fingerprint
	if fingerprint == "" {
		fingerprint = snapshot.Fingerprint(req.Content)
	}
	return datatypes.ChangeEvent{
		ProjectID:      req.ProjectID,
		DocumentID:     req.DocumentID,
		OldFingerprint: oldFingerprint,
		NewFingerprint: fingerprint,
		Source:         datatypes.SourceWebhook,
		ArrivedAt:      arrivedAt,
	}
}

// StaticConnector is an in-memory Connector for tests and local runs.
type StaticConnector struct {
	mu        sync.Mutex
	documents map[string]string
	callbacks map[string][]func(datatypes.ChangeEvent)
	failing   map[string]error
}

// NewStaticConnector creates an empty static connector.
func NewStaticConnector() *StaticConnector {
	return &StaticConnector{
		documents: make(map[string]string),
		callbacks: make(map[string][]func(datatypes.ChangeEvent)),
		failing:   make(map[string]error),
	}
}

// FetchSnapshot implements the Connector interface.
func (c *StaticConnector) FetchSnapshot(ctx context.Context, documentID string) (string, string, time.Time, error) {
	if err := ctx.Err(); err != nil {
		return "", "", time.Time{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.failing[documentID]; err != nil {
		return "", "", time.Time{}, errors.Join(ErrConnectorFetch, err)
	}
	text, ok := c.documents[documentID]
	if !ok {
		return "", "", time.Time{}, errors.Join(ErrConnectorFetch, errors.New("document not found"))
	}
	return text, snapshot.Fingerprint(text), time.Now().UTC(), nil
}

// Subscribe implements the Connector interface.
func (c *StaticConnector) Subscribe(documentID string, callback func(datatypes.ChangeEvent)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks[documentID] = append(c.callbacks[documentID], callback)
	return nil
}

// Push sets the document's content and notifies subscribers of the
// change.
func (c *StaticConnector) Push(projectID, documentID, text string) {
	c.mu.Lock()
	old := c.documents[documentID]
	c.documents[documentID] = text
	callbacks := append([]func(datatypes.ChangeEvent){}, c.callbacks[documentID]...)
	c.mu.Unlock()

	event := datatypes.ChangeEvent{
		ProjectID:      projectID,
		DocumentID:     documentID,
		OldFingerprint: snapshot.Fingerprint(old),
		NewFingerprint: snapshot.Fingerprint(text),
		Source:         datatypes.SourceManual,
		ArrivedAt:      time.Now().UTC(),
	}
	for _, cb := range callbacks {
		cb(event)
	}
}

// Fail makes subsequent fetches for the document return err wrapped in
// ErrConnectorFetch. Pass nil to clear.
func (c *StaticConnector) Fail(documentID string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.failing, documentID)
		return
	}
	c.failing[documentID] = err
}

var _ Connector = (*StaticConnector)(nil)
