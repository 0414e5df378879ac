// Copyright (C) 2025 DocSync AI (eng@docsync.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DocSyncAI/DocSync/services/alignment/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewStore(db, nil)
	require.NoError(t, err)
	return store
}

func TestFingerprintStability(t *testing.T) {
	t.Run("identical content yields identical fingerprint", func(t *testing.T) {
		assert.Equal(t, Fingerprint("hello world"), Fingerprint("hello world"))
	})

	t.Run("whitespace differences do not change the fingerprint", func(t *testing.T) {
		assert.Equal(t, Fingerprint("hello world"), Fingerprint("  hello\n\tworld  "))
	})

	t.Run("different content yields different fingerprints", func(t *testing.T) {
		assert.NotEqual(t, Fingerprint("hello world"), Fingerprint("goodbye world"))
	})
}

func TestPutAndCurrent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	snap, created, err := store.Put(ctx, "reqs", "The system shall sync.", time.Now())
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "reqs", snap.DocumentID)
	assert.NotEmpty(t, snap.Fingerprint)

	current, err := store.Current(ctx, "reqs")
	require.NoError(t, err)
	assert.Equal(t, snap.Fingerprint, current.Fingerprint)
	assert.Equal(t, "The system shall sync.", current.Text)
}

func TestPutUnchangedContentIsNoOp(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, created, err := store.Put(ctx, "reqs", "same content", time.Now())
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := store.Put(ctx, "reqs", "same content", time.Now())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)

	history, err := store.History(ctx, "reqs")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestHistoryOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now()
	for i, text := range []string{"version one", "version two", "version three"} {
		_, created, err := store.Put(ctx, "reqs", text, base.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		require.True(t, created)
	}

	history, err := store.History(ctx, "reqs")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "version one", history[0].Text)
	assert.Equal(t, "version three", history[2].Text)

	// Current points to the latest version.
	current, err := store.Current(ctx, "reqs")
	require.NoError(t, err)
	assert.Equal(t, history[2].Fingerprint, current.Fingerprint)
}

func TestGetByFingerprint(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old, _, err := store.Put(ctx, "reqs", "old version", time.Now())
	require.NoError(t, err)
	_, _, err = store.Put(ctx, "reqs", "new version", time.Now())
	require.NoError(t, err)

	// Superseded versions remain retrievable.
	got, err := store.Get(ctx, "reqs", old.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, "old version", got.Text)
}

func TestNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Current(ctx, "missing")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)

	_, err = store.Get(ctx, "missing", "deadbeef")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)

	history, err := store.History(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, history)
}
