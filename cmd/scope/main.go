// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command scope starts the Aleutian Scope API server.
//
// Aleutian Scope correlates runtime events with the static code
// property graph they executed through:
//   - Event-to-AST-context resolution with LRU + negative caching
//   - Execution trace reconstruction from event sequences
//   - Embedded BadgerDB node store with an ingest endpoint
//
// Usage:
//
//	go run ./cmd/scope
//	go run ./cmd/scope -port 9090
//	go run ./cmd/scope -config /etc/scope.yaml
//	go run ./cmd/scope -memory        # in-memory store, no persistence
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8085/v1/scope/health
//
//	# Ingest graph nodes
//	curl -X POST http://localhost:8085/v1/scope/nodes \
//	  -H "Content-Type: application/json" \
//	  -d '{"nodes": [{"id": "n1", "kind": "call", "properties": {"structural_id": "ast-1"}}]}'
//
//	# Correlate an event
//	curl -X POST http://localhost:8085/v1/scope/correlate \
//	  -H "Content-Type: application/json" \
//	  -d '{"structural_id": "ast-1", "timestamp_ms": 1700000000000}'
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianScope/pkg/logging"
	"github.com/AleutianAI/AleutianScope/services/correlator"
	"github.com/AleutianAI/AleutianScope/services/correlator/cpg"
	"github.com/AleutianAI/AleutianScope/services/correlator/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "scope: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to the config file (default ~/.aleutian/scope.yaml)")
	port := flag.Int("port", 0, "Port to listen on (overrides config)")
	memory := flag.Bool("memory", false, "Use an in-memory node store (no persistence)")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	path := *configPath
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return err
		}
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		return err
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *memory {
		cfg.Store.InMemory = true
	}
	if *debug {
		cfg.Server.Debug = true
	}

	logger := logging.New(logging.Config{
		Level:   parseLogLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.Dir,
		Service: "scope",
		JSON:    cfg.Logging.JSON,
	})
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry
	telCfg := telemetry.DefaultConfig()
	telCfg.TraceExporter = cfg.Telemetry.TraceExporter
	telCfg.MetricExporter = cfg.Telemetry.MetricExporter
	if cfg.Telemetry.OTLPEndpoint != "" {
		telCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	}
	telemetryShutdown, err := telemetry.Init(ctx, telCfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetryShutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	// Node store
	storeCfg := cpg.DefaultStoreConfig()
	storeCfg.Path = expandHome(cfg.Store.Path)
	storeCfg.InMemory = cfg.Store.InMemory
	storeCfg.SyncWrites = cfg.Store.SyncWrites
	storeCfg.Logger = logger.Slog()
	store, err := cpg.OpenStore(storeCfg)
	if err != nil {
		return fmt.Errorf("open node store: %w", err)
	}
	defer store.Close()

	// Correlator service
	svcCfg := correlator.ServiceConfig{
		LookupTimeout:        cfg.Correlator.LookupTimeout(),
		MaxConcurrentLookups: cfg.Correlator.MaxConcurrentLookups,
		MaxCachedContexts:    cfg.Correlator.MaxCachedContexts,
		ContextTTL:           cfg.Correlator.ContextTTL(),
		LookupRateLimit:      rate.Limit(cfg.Correlator.RateLimit),
		LookupRateBurst:      cfg.Correlator.RateBurst,
	}
	svc, err := correlator.NewService(store, svcCfg, correlator.WithLogger(logger.Slog()))
	if err != nil {
		return fmt.Errorf("create correlator service: %w", err)
	}
	defer svc.Close()

	// Router
	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Server.Debug {
		router.Use(gin.Logger())
	}

	handlers := correlator.NewHandlers(svc, store)
	v1 := router.Group("/v1")
	correlator.RegisterRoutes(v1, handlers)

	if cfg.Telemetry.MetricExporter == "prometheus" {
		if metricsHandler := telemetry.MetricsHandler(); metricsHandler != nil {
			router.GET("/metrics", gin.WrapH(metricsHandler))
		}
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("scope server listening",
			"address", server.Addr,
			"store_path", storeCfg.Path,
			"in_memory", storeCfg.InMemory,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down scope server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

func parseLogLevel(level string) logging.Level {
	switch level {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}
