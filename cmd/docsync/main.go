// Copyright (C) 2025 DocSync AI (eng@docsync.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command docsync starts the DocSync alignment HTTP server.
//
// This is the main entry point for the containerized alignment service.
// It reads configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - DOCSYNC_PORT: HTTP server port (default: 12310)
//   - DOCSYNC_PROVIDER: reasoning provider - anthropic, openai, mock (default: anthropic)
//   - DOCSYNC_DATA_DIR: BadgerDB directory; empty runs in-memory
//   - DOCSYNC_LOG_DIR: directory for JSON file logs (optional)
//   - DOCSYNC_DEBOUNCE_WINDOW: change coalescing window (default: 3s)
//   - DOCSYNC_MIN_DOC_TYPES: classifier document-type threshold (default: 2)
//   - DOCSYNC_VOLUME_THRESHOLD: classifier volume threshold in chars (default: 4000)
//   - DOCSYNC_CALL_TIMEOUT: per provider call timeout (default: 60s)
//   - DOCSYNC_MAX_ATTEMPTS: retry attempts per pipeline stage (default: 3)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (optional)
//
// # Usage
//
//	# Build
//	go build -o docsync ./cmd/docsync
//
//	# Run
//	DOCSYNC_DATA_DIR=/var/lib/docsync ./docsync
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/DocSyncAI/DocSync/pkg/logging"
	"github.com/DocSyncAI/DocSync/services/alignment"
)

func main() {
	// Setup structured logging
	logger := logging.New(logging.Config{
		Service: "docsync",
		JSON:    true,
		LogDir:  os.Getenv("DOCSYNC_LOG_DIR"),
	})
	defer func() { _ = logger.Close() }()
	slog.SetDefault(logger.Slog())

	// Build configuration from environment variables
	cfg := alignment.Config{
		Port:             getEnvInt("DOCSYNC_PORT", 12310),
		Provider:         getEnvString("DOCSYNC_PROVIDER", "anthropic"),
		DataDir:          os.Getenv("DOCSYNC_DATA_DIR"),
		OTelEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		DebounceWindow:   getEnvDuration("DOCSYNC_DEBOUNCE_WINDOW", 3*time.Second),
		MinDocumentTypes: getEnvInt("DOCSYNC_MIN_DOC_TYPES", 0),
		VolumeThreshold:  getEnvInt("DOCSYNC_VOLUME_THRESHOLD", 0),
		CallTimeout:      getEnvDuration("DOCSYNC_CALL_TIMEOUT", 60*time.Second),
		MaxAttempts:      getEnvInt("DOCSYNC_MAX_ATTEMPTS", 3),
	}

	slog.Info("Starting alignment service",
		"port", cfg.Port,
		"provider", cfg.Provider,
		"data_dir", cfg.DataDir,
	)

	svc, err := alignment.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create alignment service: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Alignment service error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns the environment variable as duration or a default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
