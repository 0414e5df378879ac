// Copyright (C) 2025 DocSync AI (eng@docsync.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package reports persists alignment reports and the current-report
// pointer per project.
//
// Reports are immutable: a report is written once under its cache key
// and never mutated. Re-analysis supersedes a report by publishing a
// different cache key as the project's current pointer. Stale results
// are stored for audit but never published.
package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/DocSyncAI/DocSync/services/alignment/datatypes"
	"github.com/DocSyncAI/DocSync/services/alignment/storage"
)

var (
	// ErrReportNotFound is returned when no report exists for the key
	// or project.
	ErrReportNotFound = errors.New("report not found")

	// ErrReportExists is returned by Put when a report already exists
	// under the cache key. Reports are immutable.
	ErrReportExists = errors.New("report already exists for cache key")
)

// Key prefixes within the shared database.
const (
	reportPrefix  = "report:"  // report:<cacheKey> -> AlignmentReport JSON
	currentPrefix = "current:" // current:<projectID> -> cacheKey
	projectPrefix = "proj:"    // proj:<projectID>:<cacheKey> -> "" (listing index)
)

// Store is the badger-backed report store.
type Store struct {
	db     *storage.DB
	logger *slog.Logger
}

// NewStore creates a report store on the given database.
func NewStore(db *storage.DB, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}, nil
}

// Put persists a report under its cache key. The write is
// check-and-set within one transaction: a second writer for the same
// key gets ErrReportExists instead of overwriting.
func (s *Store) Put(ctx context.Context, report *datatypes.AlignmentReport) error {
	if report == nil || report.CacheKey == "" {
		return errors.New("report with cache key required")
	}

	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		key := []byte(reportPrefix + report.CacheKey)
		if _, err := txn.Get(key); err == nil {
			return ErrReportExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		value, err := json.Marshal(report)
		if err != nil {
			return fmt.Errorf("marshal report: %w", err)
		}
		if err := txn.Set(key, value); err != nil {
			return err
		}
		return txn.Set([]byte(projectPrefix+report.ProjectID+":"+report.CacheKey), nil)
	})
	if err != nil {
		if errors.Is(err, ErrReportExists) {
			return fmt.Errorf("put report %s: %w", report.CacheKey, ErrReportExists)
		}
		return fmt.Errorf("put report %s: %w", report.CacheKey, err)
	}

	s.logger.Debug("report stored",
		slog.String("cache_key", report.CacheKey),
		slog.String("project_id", report.ProjectID),
		slog.Bool("degraded", report.Degraded))
	return nil
}

// Get returns the report stored under the cache key.
func (s *Store) Get(ctx context.Context, cacheKey string) (*datatypes.AlignmentReport, error) {
	var report datatypes.AlignmentReport
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(reportPrefix + cacheKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrReportNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &report)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("get report %s: %w", cacheKey, err)
	}
	return &report, nil
}

// PublishCurrent points the project's current-report pointer at the
// cache key. The report must already be stored.
func (s *Store) PublishCurrent(ctx context.Context, projectID, cacheKey string) error {
	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(reportPrefix + cacheKey)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrReportNotFound
			}
			return err
		}
		return txn.Set([]byte(currentPrefix+projectID), []byte(cacheKey))
	})
	if err != nil {
		return fmt.Errorf("publish current for %s: %w", projectID, err)
	}

	s.logger.Info("current report published",
		slog.String("project_id", projectID),
		slog.String("cache_key", cacheKey))
	return nil
}

// CurrentKey returns the cache key the project's current pointer
// references.
func (s *Store) CurrentKey(ctx context.Context, projectID string) (string, error) {
	var cacheKey string
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(currentPrefix + projectID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrReportNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			cacheKey = string(val)
			return nil
		})
	})
	if err != nil {
		return "", fmt.Errorf("current key for %s: %w", projectID, err)
	}
	return cacheKey, nil
}

// Current returns the project's current report.
func (s *Store) Current(ctx context.Context, projectID string) (*datatypes.AlignmentReport, error) {
	cacheKey, err := s.CurrentKey(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, cacheKey)
}

// List returns every stored report for the project, including
// superseded and stale ones.
func (s *Store) List(ctx context.Context, projectID string) ([]*datatypes.AlignmentReport, error) {
	var cacheKeys []string
	prefix := []byte(projectPrefix + projectID + ":")

	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			cacheKeys = append(cacheKeys, key[len(prefix):])
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list reports for %s: %w", projectID, err)
	}

	result := make([]*datatypes.AlignmentReport, 0, len(cacheKeys))
	for _, cacheKey := range cacheKeys {
		report, err := s.Get(ctx, cacheKey)
		if err != nil {
			return nil, err
		}
		result = append(result, report)
	}
	return result, nil
}
