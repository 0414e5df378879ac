// Copyright (C) 2025 DocSync AI (eng@docsync.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package orchestrator coordinates analysis execution: classification,
// cache lookup, per-key single-flight, stale-on-arrival handling, and
// change-driven re-analysis with debouncing.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/DocSyncAI/DocSync/services/alignment/analyzer"
	"github.com/DocSyncAI/DocSync/services/alignment/classifier"
	"github.com/DocSyncAI/DocSync/services/alignment/critique"
	"github.com/DocSyncAI/DocSync/services/alignment/datatypes"
	"github.com/DocSyncAI/DocSync/services/alignment/graph"
	"github.com/DocSyncAI/DocSync/services/alignment/observability"
	"github.com/DocSyncAI/DocSync/services/alignment/reports"
	"github.com/DocSyncAI/DocSync/services/alignment/snapshot"
	"github.com/DocSyncAI/DocSync/services/alignment/storage"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrProjectNotFound indicates the project id is not registered.
	ErrProjectNotFound = errors.New("project not found")

	// ErrProjectExists indicates a registration collision.
	ErrProjectExists = errors.New("project already exists")

	// ErrDocumentNotFound indicates the document is not part of the
	// project.
	ErrDocumentNotFound = errors.New("document not part of project")

	// ErrMissingSnapshot indicates a project document has never been
	// pushed, so no complete fingerprint set exists.
	ErrMissingSnapshot = errors.New("document has no snapshot")
)

const projectPrefix = "projdef:"

// =============================================================================
// Configuration
// =============================================================================

// Config assembles the orchestrator's collaborators.
type Config struct {
	DB        *storage.DB
	Snapshots *snapshot.Store
	Reports   *reports.Store
	Analyzer  *analyzer.Analyzer
	Pipeline  *critique.Pipeline

	// Thresholds tune the complexity classifier. Zero values fall back
	// to the classifier defaults.
	Thresholds classifier.Thresholds

	// DebounceWindow coalesces change-event bursts per document before
	// triggering re-analysis.
	DebounceWindow time.Duration

	// Backend labels provider-call metrics (anthropic, openai, mock).
	Backend string

	Metrics *observability.Metrics
	Logger  *slog.Logger
}

const defaultDebounceWindow = 3 * time.Second

// =============================================================================
// Orchestrator
// =============================================================================

// # Description
//
//	Orchestrator owns the execution discipline above the analysis
//	stages. Every trigger, whether a manual request or a debounced
//	change event, funnels into RequestAnalysis, which serializes
//	computation per cache key while letting distinct keys proceed in
//	parallel.
//
// Concurrency model:
//   - projects map guarded by mu; each project carries its own publish
//     mutex so the decide-and-publish step never takes a global lock.
//   - singleflight.Group serializes per cache key; joiners wait for the
//     leader's result instead of issuing duplicate provider calls.
//   - stale-on-arrival is decided under the project's publish mutex by
//     re-deriving the live cache key after computation completes.
type Orchestrator struct {
	db        *storage.DB
	snapshots *snapshot.Store
	reports   *reports.Store
	analyzer  *analyzer.Analyzer
	pipeline  *critique.Pipeline

	thresholds     classifier.Thresholds
	debounceWindow time.Duration
	backend        string

	metrics *observability.Metrics
	logger  *slog.Logger

	flight singleflight.Group

	mu       sync.RWMutex
	projects map[string]*projectState

	debounceMu sync.Mutex
	debouncers map[string]*debouncer
	closed     bool

	wg sync.WaitGroup
}

// projectState caches the validated relationship graph alongside the
// project definition and holds the per-project publish lock.
type projectState struct {
	project datatypes.Project
	graph   *graph.Graph

	// publishMu guards the live-key check and current-pointer update.
	publishMu sync.Mutex
}

// New creates an orchestrator and reloads persisted project
// definitions from the store.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("db is required")
	}
	if cfg.Snapshots == nil || cfg.Reports == nil {
		return nil, fmt.Errorf("snapshot and report stores are required")
	}
	if cfg.Analyzer == nil || cfg.Pipeline == nil {
		return nil, fmt.Errorf("analyzer and pipeline are required")
	}
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = defaultDebounceWindow
	}
	if cfg.Backend == "" {
		cfg.Backend = "unknown"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	o := &Orchestrator{
		db:             cfg.DB,
		snapshots:      cfg.Snapshots,
		reports:        cfg.Reports,
		analyzer:       cfg.Analyzer,
		pipeline:       cfg.Pipeline,
		thresholds:     cfg.Thresholds,
		debounceWindow: cfg.DebounceWindow,
		backend:        cfg.Backend,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger.With("component", "orchestrator"),
		projects:       make(map[string]*projectState),
		debouncers:     make(map[string]*debouncer),
	}

	if err := o.loadProjects(); err != nil {
		return nil, fmt.Errorf("failed to load projects: %w", err)
	}

	return o, nil
}

// Close stops the debounce loops and waits for dispatched re-analyses
// to finish.
func (o *Orchestrator) Close() {
	o.debounceMu.Lock()
	o.closed = true
	for _, d := range o.debouncers {
		d.stop()
	}
	o.debouncers = make(map[string]*debouncer)
	o.debounceMu.Unlock()

	o.wg.Wait()
}

// =============================================================================
// Project registry
// =============================================================================

// RegisterProject validates the project's relationship graph and
// persists the definition. Registration is rejected when a relationship
// references a document outside the set or carries an unknown kind.
func (o *Orchestrator) RegisterProject(ctx context.Context, project datatypes.Project) error {
	g, err := graph.Build(project.Documents, project.Relationships)
	if err != nil {
		return err
	}
	if project.CreatedAt.IsZero() {
		project.CreatedAt = time.Now().UTC()
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.projects[project.ID]; exists {
		return fmt.Errorf("%w: %s", ErrProjectExists, project.ID)
	}

	if err := o.persistProject(ctx, &project); err != nil {
		return err
	}
	o.projects[project.ID] = &projectState{project: project, graph: g}

	o.logger.Info("project registered",
		"project_id", project.ID,
		"documents", len(project.Documents),
		"relationships", len(project.Relationships))
	return nil
}

// Project returns the registered project definition.
func (o *Orchestrator) Project(projectID string) (*datatypes.Project, error) {
	state, err := o.state(projectID)
	if err != nil {
		return nil, err
	}
	p := state.project
	return &p, nil
}

func (o *Orchestrator) state(projectID string) (*projectState, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	state, ok := o.projects[projectID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}
	return state, nil
}

func (o *Orchestrator) persistProject(ctx context.Context, project *datatypes.Project) error {
	data, err := json.Marshal(project)
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}
	return o.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set([]byte(projectPrefix+project.ID), data)
	})
}

func (o *Orchestrator) loadProjects() error {
	return o.db.WithReadTxn(context.Background(), func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(projectPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var p datatypes.Project
				if err := json.Unmarshal(val, &p); err != nil {
					return fmt.Errorf("failed to unmarshal project: %w", err)
				}
				g, err := graph.Build(p.Documents, p.Relationships)
				if err != nil {
					return fmt.Errorf("stored project %s is invalid: %w", p.ID, err)
				}
				o.projects[p.ID] = &projectState{project: p, graph: g}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// =============================================================================
// Ingestion
// =============================================================================

// PushSnapshot stores new content for a project document. When the
// fingerprint changed, a ChangeEvent is queued through the debouncer;
// the caller never waits on a provider call.
func (o *Orchestrator) PushSnapshot(ctx context.Context, projectID, docID, text string) (datatypes.Snapshot, bool, error) {
	state, err := o.state(projectID)
	if err != nil {
		return datatypes.Snapshot{}, false, err
	}
	if state.project.Document(docID) == nil {
		return datatypes.Snapshot{}, false, fmt.Errorf("%w: %s", ErrDocumentNotFound, docID)
	}

	prev, prevErr := o.snapshots.Current(ctx, docID)
	oldFingerprint := ""
	if prevErr == nil {
		oldFingerprint = prev.Fingerprint
	}

	snap, changed, err := o.snapshots.Put(ctx, docID, text, time.Now().UTC())
	if err != nil {
		return datatypes.Snapshot{}, false, err
	}

	if changed {
		o.OnChange(datatypes.ChangeEvent{
			ProjectID:      projectID,
			DocumentID:     docID,
			OldFingerprint: oldFingerprint,
			NewFingerprint: snap.Fingerprint,
			Source:         datatypes.SourceManual,
			ArrivedAt:      time.Now().UTC(),
		})
	}
	return snap, changed, nil
}

// OnChange queues a change event without blocking the caller. Bursts
// for the same document collapse into one re-analysis keyed on the
// content present when the debounce window closes.
func (o *Orchestrator) OnChange(event datatypes.ChangeEvent) {
	o.debounceMu.Lock()
	defer o.debounceMu.Unlock()
	if o.closed {
		return
	}

	key := event.ProjectID + "/" + event.DocumentID
	d, ok := o.debouncers[key]
	if !ok {
		d = newDebouncer(o.debounceWindow, o.handleChange)
		o.debouncers[key] = d
	}
	d.offer(event)
}

// handleChange runs once per settled debounce window.
func (o *Orchestrator) handleChange(event datatypes.ChangeEvent) {
	scope, err := o.Impact(event)
	if err != nil {
		o.logger.Warn("change event for unknown project or document",
			"project_id", event.ProjectID,
			"document_id", event.DocumentID,
			"error", err)
		return
	}
	if len(scope) == 0 {
		o.logger.Debug("change has no impact scope, skipping re-analysis",
			"project_id", event.ProjectID,
			"document_id", event.DocumentID)
		return
	}

	o.logger.Info("dispatching re-analysis",
		"project_id", event.ProjectID,
		"document_id", event.DocumentID,
		"impact_scope", scope,
		"source", event.Source)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if _, err := o.RequestAnalysis(context.Background(), event.ProjectID); err != nil {
			o.logger.Error("change-driven re-analysis failed",
				"project_id", event.ProjectID,
				"error", err)
		}
	}()
}

// Impact returns the one-hop set of documents related to the changed
// document. The changed document itself is excluded and the scope never
// expands transitively.
func (o *Orchestrator) Impact(event datatypes.ChangeEvent) ([]string, error) {
	state, err := o.state(event.ProjectID)
	if err != nil {
		return nil, err
	}
	if state.project.Document(event.DocumentID) == nil {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, event.DocumentID)
	}
	return state.graph.Impact(event), nil
}

// =============================================================================
// Analysis
// =============================================================================

// RequestAnalysis computes or returns the alignment report for the
// project's current fingerprint set.
//
// Execution discipline:
//  1. classify against current snapshots and derive the cache key
//  2. cache hit returns the stored report with no provider call
//  3. on a miss, single-flight per key: concurrent callers for the
//     same unchanged project share one provider call sequence
//  4. after computing, the live key is re-derived under the project's
//     publish lock; a superseded result is stored as stale and never
//     published as current
func (o *Orchestrator) RequestAnalysis(ctx context.Context, projectID string) (*datatypes.AlignmentReport, error) {
	ctx, span := observability.Tracer().Start(ctx, "alignment.request")
	defer span.End()
	span.SetAttributes(attribute.String("project.id", projectID))

	state, err := o.state(projectID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	docs, req, err := o.prepare(ctx, state)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("analysis.strategy", string(req.Strategy)),
		attribute.String("analysis.cache_key", req.CacheKey),
	)

	if cached, err := o.reports.Get(ctx, req.CacheKey); err == nil {
		o.metrics.RecordCacheHit()
		span.SetAttributes(attribute.Bool("analysis.cache_hit", true))
		return cached, nil
	} else if !errors.Is(err, reports.ErrReportNotFound) {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	o.metrics.RecordCacheMiss()

	executed := false
	result, err, _ := o.flight.Do(req.CacheKey, func() (interface{}, error) {
		executed = true
		return o.compute(ctx, state, docs, req)
	})
	if !executed {
		o.metrics.RecordDedup()
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	report := result.(*datatypes.AlignmentReport)
	span.SetAttributes(
		attribute.Bool("analysis.degraded", report.Degraded),
		attribute.Bool("analysis.stale", report.Stale),
		attribute.Int("analysis.calls_used", report.CallsUsed),
	)
	return report, nil
}

// prepare resolves current snapshots into analysis-ready documents and
// derives the request identity.
func (o *Orchestrator) prepare(ctx context.Context, state *projectState) ([]datatypes.Document, datatypes.AnalysisRequest, error) {
	docs := make([]datatypes.Document, len(state.project.Documents))
	copy(docs, state.project.Documents)

	fingerprints := make(map[string]string, len(docs))
	for i := range docs {
		snap, err := o.snapshots.Current(ctx, docs[i].ID)
		if err != nil {
			if errors.Is(err, snapshot.ErrSnapshotNotFound) {
				return nil, datatypes.AnalysisRequest{}, fmt.Errorf("%w: %s", ErrMissingSnapshot, docs[i].ID)
			}
			return nil, datatypes.AnalysisRequest{}, err
		}
		docs[i].Text = snap.Text
		docs[i].Fingerprint = snap.Fingerprint
		fingerprints[docs[i].ID] = snap.Fingerprint
	}

	decision := classifier.Classify(docs, state.project.Relationships, o.thresholds)
	req := NewAnalysisRequest(state.project.ID, fingerprints, decision.Strategy)
	return docs, req, nil
}

// compute runs the selected strategy, persists the report, and decides
// publication. Runs at most once per cache key at a time.
func (o *Orchestrator) compute(ctx context.Context, state *projectState, docs []datatypes.Document, req datatypes.AnalysisRequest) (*datatypes.AlignmentReport, error) {
	// A joiner may arrive after the leader already stored the report.
	if existing, err := o.reports.Get(ctx, req.CacheKey); err == nil {
		return existing, nil
	}

	o.metrics.AnalysisStarted()
	start := time.Now()

	var (
		report *datatypes.AlignmentReport
		err    error
	)
	switch req.Strategy {
	case datatypes.StrategySelfCritique:
		report, err = o.pipeline.Run(ctx, docs, state.project.Relationships)
	default:
		report, err = o.analyzer.Analyze(ctx, docs, state.project.Relationships)
	}

	o.metrics.AnalysisFinished()
	duration := time.Since(start)

	if err != nil {
		o.metrics.RecordAnalysis(string(req.Strategy), observability.StatusFailed, duration)
		o.logger.Error("analysis failed",
			"project_id", req.ProjectID,
			"strategy", req.Strategy,
			"duration", duration,
			"error", err)
		return nil, err
	}

	report.ProjectID = req.ProjectID
	report.CacheKey = req.CacheKey

	status := observability.StatusCompleted
	if report.Degraded {
		status = observability.StatusDegraded
	}
	o.metrics.RecordAnalysis(string(req.Strategy), status, duration)
	o.recordProviderCalls(report)

	if err := o.publish(ctx, state, report); err != nil {
		return nil, err
	}

	o.logger.Info("analysis complete",
		"project_id", req.ProjectID,
		"strategy", report.Strategy,
		"score", report.Score,
		"misalignments", len(report.Misalignments),
		"calls_used", report.CallsUsed,
		"degraded", report.Degraded,
		"stale", report.Stale,
		"duration", duration)

	return report, nil
}

// publish stores the report and updates the project's current pointer
// unless a newer fingerprint set superseded this computation while it
// ran. Superseded results are retained for audit but marked stale and
// never surface as current.
func (o *Orchestrator) publish(ctx context.Context, state *projectState, report *datatypes.AlignmentReport) error {
	state.publishMu.Lock()
	defer state.publishMu.Unlock()

	live, err := o.liveKey(ctx, state)
	if err != nil && !errors.Is(err, ErrMissingSnapshot) {
		return err
	}
	report.Stale = err == nil && live != report.CacheKey

	if err := o.reports.Put(ctx, report); err != nil && !errors.Is(err, reports.ErrReportExists) {
		return err
	}

	if report.Stale {
		o.metrics.RecordStaleDiscard()
		o.logger.Info("computation superseded before completion, result stored as stale",
			"project_id", report.ProjectID,
			"cache_key", report.CacheKey,
			"live_key", live)
		return nil
	}
	return o.reports.PublishCurrent(ctx, report.ProjectID, report.CacheKey)
}

// liveKey re-derives the cache key from whatever snapshots are current
// right now.
func (o *Orchestrator) liveKey(ctx context.Context, state *projectState) (string, error) {
	_, req, err := o.prepare(ctx, state)
	if err != nil {
		return "", err
	}
	return req.CacheKey, nil
}

// CurrentReport returns the most recent published report for the
// project.
func (o *Orchestrator) CurrentReport(ctx context.Context, projectID string) (*datatypes.AlignmentReport, error) {
	if _, err := o.state(projectID); err != nil {
		return nil, err
	}
	return o.reports.Current(ctx, projectID)
}

// ReportStatus returns the current report along with whether it still
// matches the project's live fingerprint set. A false second return
// means at least one document changed after the report was computed.
func (o *Orchestrator) ReportStatus(ctx context.Context, projectID string) (*datatypes.AlignmentReport, bool, error) {
	state, err := o.state(projectID)
	if err != nil {
		return nil, false, err
	}
	report, err := o.reports.Current(ctx, projectID)
	if err != nil {
		return nil, false, err
	}
	live, err := o.liveKey(ctx, state)
	if err != nil {
		if errors.Is(err, ErrMissingSnapshot) {
			return report, false, nil
		}
		return nil, false, err
	}
	return report, live == report.CacheKey, nil
}

// recordProviderCalls reconstructs per-stage call outcomes from the
// report's accounting. CallsUsed counts successful calls only, so a
// degraded report implies the stage after the last successful one
// failed.
func (o *Orchestrator) recordProviderCalls(report *datatypes.AlignmentReport) {
	if report.Strategy == datatypes.StrategySimple {
		o.metrics.RecordProviderCall(o.backend, "generate", "success")
		return
	}

	stages := []string{"generate", "critique", "enhance"}
	for i, stage := range stages {
		switch {
		case i < report.CallsUsed:
			o.metrics.RecordProviderCall(o.backend, stage, "success")
		case i == report.CallsUsed && report.Degraded:
			o.metrics.RecordProviderCall(o.backend, stage, "failure")
		}
	}
}
