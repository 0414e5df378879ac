// Copyright (C) 2025 DocSync AI (eng@docsync.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package alignment provides the cross-document alignment analysis
// service.
//
// This package contains the main Service type that coordinates all
// components: snapshot storage, the relationship graph, the complexity
// classifier, the provider-backed analyzer and self-critique pipeline,
// the orchestrator, HTTP routing, and observability infrastructure.
//
// # Usage
//
//	cfg := alignment.Config{Port: 12310, Provider: "anthropic"}
//	svc, err := alignment.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package alignment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/DocSyncAI/DocSync/services/alignment/analyzer"
	"github.com/DocSyncAI/DocSync/services/alignment/classifier"
	"github.com/DocSyncAI/DocSync/services/alignment/connector"
	"github.com/DocSyncAI/DocSync/services/alignment/critique"
	"github.com/DocSyncAI/DocSync/services/alignment/llm"
	"github.com/DocSyncAI/DocSync/services/alignment/observability"
	"github.com/DocSyncAI/DocSync/services/alignment/orchestrator"
	"github.com/DocSyncAI/DocSync/services/alignment/reports"
	"github.com/DocSyncAI/DocSync/services/alignment/routes"
	"github.com/DocSyncAI/DocSync/services/alignment/snapshot"
	"github.com/DocSyncAI/DocSync/services/alignment/storage"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the alignment service.
//
// Implementations must be safe for concurrent use. Run() blocks and
// should only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing. Callers
	// must not modify the router.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds alignment service configuration options. All fields have
// defaults applied by New(), so the zero value is usable for local runs.
type Config struct {
	// Port is the HTTP server port. Default: 12310
	Port int

	// Provider selects the reasoning provider backend.
	// Valid values: "anthropic", "openai", "mock". Default: "anthropic"
	Provider string

	// ProviderRPS rate-limits outbound provider calls. Default: 2
	ProviderRPS float64

	// ProviderBurst is the rate limiter burst size. Default: 4
	ProviderBurst int

	// DataDir is the BadgerDB directory. Empty means in-memory, which
	// is intended for tests and throwaway runs.
	DataDir string

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Empty disables tracing export.
	OTelEndpoint string

	// DebounceWindow coalesces change-event bursts. Default: 3s
	DebounceWindow time.Duration

	// MinDocumentTypes and VolumeThreshold tune the complexity
	// classifier. Zero falls back to the classifier defaults.
	MinDocumentTypes int
	VolumeThreshold  int

	// CallTimeout bounds each provider call. Default: 60s
	CallTimeout time.Duration

	// MaxAttempts bounds retries per pipeline stage. Default: 3
	MaxAttempts int

	// GinMode sets the Gin framework mode ("debug", "release", "test").
	GinMode string
}

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12310
	}
	if cfg.Provider == "" {
		cfg.Provider = "anthropic"
	}
	if cfg.ProviderRPS == 0 {
		cfg.ProviderRPS = 2
	}
	if cfg.ProviderBurst == 0 {
		cfg.ProviderBurst = 4
	}
	if cfg.DebounceWindow == 0 {
		cfg.DebounceWindow = 3 * time.Second
	}
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	return cfg
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use. All fields are
// read-only after New() returns.
type service struct {
	config        Config
	router        *gin.Engine
	db            *storage.DB
	provider      llm.Client
	orch          *orchestrator.Orchestrator
	conn          connector.Connector
	tracerCleanup func(context.Context)
}

// =============================================================================
// Constructor
// =============================================================================

// New creates an alignment Service with the given configuration.
//
// Initialization order: tracing, metrics, provider client, stores,
// analysis pipeline, orchestrator, HTTP routes. Any failure cleans up
// what was already started.
func New(cfg Config) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	if s.config.OTelEndpoint != "" {
		cleanup, err := observability.InitTracer(s.config.OTelEndpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
		s.tracerCleanup = cleanup
	}

	observability.InitMetrics()

	if err := s.initProvider(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize provider client: %w", err)
	}

	if err := s.initCore(); err != nil {
		s.cleanup()
		return nil, err
	}

	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting alignment server",
		"port", s.config.Port,
		"provider", s.config.Provider,
		"data_dir", s.config.DataDir)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

func (s *service) initProvider() error {
	var (
		client llm.Client
		err    error
	)

	switch s.config.Provider {
	case "openai":
		client, err = llm.NewOpenAIClient(slog.Default())
		slog.Info("Using OpenAI provider backend")
	case "mock":
		client = llm.NewMockClient()
		slog.Warn("Using mock provider backend, responses are scripted")
	case "anthropic", "claude":
		client, err = llm.NewAnthropicClient(slog.Default())
		slog.Info("Using Anthropic provider backend")
	default:
		return fmt.Errorf("unknown provider backend: %s", s.config.Provider)
	}
	if err != nil {
		return err
	}

	s.provider = llm.NewRateLimited(client, s.config.ProviderRPS, s.config.ProviderBurst)
	return nil
}

func (s *service) initCore() error {
	storeCfg := storage.DefaultConfig()
	storeCfg.Path = s.config.DataDir
	if s.config.DataDir == "" {
		storeCfg = storage.InMemoryConfig()
		slog.Warn("No data directory configured, running with in-memory storage")
	}

	db, err := storage.Open(storeCfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	s.db = db

	snaps, err := snapshot.NewStore(db, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to create snapshot store: %w", err)
	}
	reps, err := reports.NewStore(db, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to create report store: %w", err)
	}

	retry := llm.DefaultRetryConfig()
	retry.MaxAttempts = s.config.MaxAttempts

	a, err := analyzer.New(s.provider,
		analyzer.WithRetryConfig(retry),
		analyzer.WithCallTimeout(s.config.CallTimeout),
		analyzer.WithLogger(slog.Default()))
	if err != nil {
		return fmt.Errorf("failed to create analyzer: %w", err)
	}

	pipeline, err := critique.NewPipeline(a, critique.WithLogger(slog.Default()))
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	s.orch, err = orchestrator.New(orchestrator.Config{
		DB:        db,
		Snapshots: snaps,
		Reports:   reps,
		Analyzer:  a,
		Pipeline:  pipeline,
		Thresholds: classifier.Thresholds{
			MinDocumentTypes: s.config.MinDocumentTypes,
			VolumeThreshold:  s.config.VolumeThreshold,
		},
		DebounceWindow: s.config.DebounceWindow,
		Backend:        s.config.Provider,
		Metrics:        observability.DefaultMetrics(),
		Logger:         slog.Default(),
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	s.conn = connector.NewStaticConnector()
	return nil
}

func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("alignment-service"))

	routes.SetupRoutes(s.router, s.orch, s.conn)
}

func (s *service) cleanup() {
	if s.orch != nil {
		s.orch.Close()
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			slog.Warn("Store close error", "error", err)
		}
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

var _ Service = (*service)(nil)
