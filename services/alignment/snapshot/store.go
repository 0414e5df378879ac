// Copyright (C) 2025 DocSync AI (eng@docsync.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package snapshot provides content-addressed, versioned storage of
// document text.
//
// Each document has an ordered history of immutable snapshots. A snapshot
// is identified by the SHA-256 fingerprint of its normalized text, so
// identical content always maps to the identical fingerprint and a push
// with unchanged content creates no new version.
package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/DocSyncAI/DocSync/services/alignment/datatypes"
	"github.com/DocSyncAI/DocSync/services/alignment/storage"
)

// ErrSnapshotNotFound is returned when no snapshot exists for the
// requested document or fingerprint.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Key prefixes within the shared database.
const (
	snapPrefix    = "snap:" // snap:<docID>:<fingerprint> -> Snapshot JSON
	currentPrefix = "cur:"  // cur:<docID> -> fingerprint
	historyPrefix = "hist:" // hist:<docID> -> []historyEntry JSON
)

// historyEntry is one entry in a document's version history.
type historyEntry struct {
	Fingerprint string    `json:"fingerprint"`
	Timestamp   time.Time `json:"timestamp"`
}

// Normalize collapses runs of whitespace to single spaces and trims the
// result. Fingerprints are computed over normalized text so formatting
// churn does not register as a content change.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Fingerprint returns the hex SHA-256 of the normalized text.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])
}

// Store is the versioned snapshot store.
//
// Thread Safety: safe for concurrent use; Badger transactions provide
// isolation.
type Store struct {
	db     *storage.DB
	logger *slog.Logger
}

// NewStore creates a snapshot store on the given database.
func NewStore(db *storage.DB, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}, nil
}

// Put stores a new snapshot of the document's text.
//
// When the fingerprint matches the document's current snapshot, Put is a
// no-op and returns created=false with the existing snapshot. Otherwise a
// new immutable version is appended and becomes current.
func (s *Store) Put(ctx context.Context, docID, text string, ts time.Time) (datatypes.Snapshot, bool, error) {
	if docID == "" {
		return datatypes.Snapshot{}, false, errors.New("document id must not be empty")
	}

	fp := Fingerprint(text)

	current, err := s.Current(ctx, docID)
	if err == nil && current.Fingerprint == fp {
		return current, false, nil
	}
	if err != nil && !errors.Is(err, ErrSnapshotNotFound) {
		return datatypes.Snapshot{}, false, err
	}

	snap := datatypes.Snapshot{
		DocumentID:  docID,
		Fingerprint: fp,
		Text:        text,
		Timestamp:   ts,
	}

	err = s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		snapBytes, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("marshal snapshot: %w", err)
		}
		if err := txn.Set([]byte(snapPrefix+docID+":"+fp), snapBytes); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}

		history, err := readHistory(txn, docID)
		if err != nil {
			return err
		}
		history = append(history, historyEntry{Fingerprint: fp, Timestamp: ts})
		histBytes, err := json.Marshal(history)
		if err != nil {
			return fmt.Errorf("marshal history: %w", err)
		}
		if err := txn.Set([]byte(historyPrefix+docID), histBytes); err != nil {
			return fmt.Errorf("write history: %w", err)
		}

		if err := txn.Set([]byte(currentPrefix+docID), []byte(fp)); err != nil {
			return fmt.Errorf("write current pointer: %w", err)
		}
		return nil
	})
	if err != nil {
		return datatypes.Snapshot{}, false, fmt.Errorf("put snapshot for %s: %w", docID, err)
	}

	s.logger.Debug("snapshot stored",
		slog.String("document_id", docID),
		slog.String("fingerprint", fp))

	return snap, true, nil
}

// Current returns the document's current snapshot.
func (s *Store) Current(ctx context.Context, docID string) (datatypes.Snapshot, error) {
	var fp string
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(currentPrefix + docID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrSnapshotNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			fp = string(val)
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, ErrSnapshotNotFound) {
			return datatypes.Snapshot{}, fmt.Errorf("current snapshot for %s: %w", docID, ErrSnapshotNotFound)
		}
		return datatypes.Snapshot{}, fmt.Errorf("current snapshot for %s: %w", docID, err)
	}
	return s.Get(ctx, docID, fp)
}

// Get returns a specific snapshot version by fingerprint.
func (s *Store) Get(ctx context.Context, docID, fingerprint string) (datatypes.Snapshot, error) {
	var snap datatypes.Snapshot
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(snapPrefix + docID + ":" + fingerprint))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrSnapshotNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snap)
		})
	})
	if err != nil {
		if errors.Is(err, ErrSnapshotNotFound) {
			return datatypes.Snapshot{}, fmt.Errorf("snapshot %s@%s: %w", docID, fingerprint, ErrSnapshotNotFound)
		}
		return datatypes.Snapshot{}, fmt.Errorf("snapshot %s@%s: %w", docID, fingerprint, err)
	}
	return snap, nil
}

// History returns all snapshot versions of the document in creation
// order, oldest first. A document with no snapshots yields an empty
// slice, not an error.
func (s *Store) History(ctx context.Context, docID string) ([]datatypes.Snapshot, error) {
	var entries []historyEntry
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		var err error
		entries, err = readHistory(txn, docID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("history for %s: %w", docID, err)
	}

	snapshots := make([]datatypes.Snapshot, 0, len(entries))
	for _, e := range entries {
		snap, err := s.Get(ctx, docID, e.Fingerprint)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

// readHistory loads a document's history list inside a transaction.
func readHistory(txn *badger.Txn, docID string) ([]historyEntry, error) {
	item, err := txn.Get([]byte(historyPrefix + docID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	var history []historyEntry
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &history)
	})
	if err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return history, nil
}
