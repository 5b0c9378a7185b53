// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ScopeConfig is the on-disk configuration for the scope server.
//
// The file lives at ~/.aleutian/scope.yaml by default and is created
// with defaults on first run. Environment variables override file
// values where noted.
type ScopeConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Correlator CorrelatorConfig `yaml:"correlator"`
	Logging    LoggingConfig    `yaml:"logging"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

type ServerConfig struct {
	// Port the HTTP server listens on. Env override: SCOPE_PORT.
	Port int `yaml:"port"`

	// Debug enables gin debug mode and request logging.
	Debug bool `yaml:"debug"`
}

type StoreConfig struct {
	// Path is the BadgerDB directory for the graph node store.
	// Supports ~ expansion. Env override: SCOPE_STORE_PATH.
	Path string `yaml:"path"`

	// InMemory runs the store without disk persistence. Ingested
	// nodes are lost on restart.
	InMemory bool `yaml:"in_memory"`

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool `yaml:"sync_writes"`
}

type CorrelatorConfig struct {
	// LookupTimeoutMS is the per-lookup deadline in milliseconds.
	// Zero disables the deadline.
	LookupTimeoutMS int `yaml:"lookup_timeout_ms"`

	// MaxConcurrentLookups bounds simultaneous store access.
	MaxConcurrentLookups int `yaml:"max_concurrent_lookups"`

	// MaxCachedContexts caps the context cache size.
	MaxCachedContexts int `yaml:"max_cached_contexts"`

	// ContextTTLSeconds expires cached contexts after this many
	// seconds. Zero means no expiry.
	ContextTTLSeconds int `yaml:"context_ttl_seconds"`

	// RateLimit caps store lookups per second. Zero disables.
	RateLimit float64 `yaml:"rate_limit"`

	// RateBurst is the rate limiter burst size.
	RateBurst int `yaml:"rate_burst"`
}

type LoggingConfig struct {
	// Level: debug, info, warn, error
	Level string `yaml:"level"`

	// Dir enables file logging when set. Supports ~ expansion.
	Dir string `yaml:"dir"`

	// JSON switches stderr output to JSON.
	JSON bool `yaml:"json"`
}

type TelemetryConfig struct {
	// TraceExporter: otlp, stdout, or none
	TraceExporter string `yaml:"trace_exporter"`

	// MetricExporter: prometheus, stdout, or none
	MetricExporter string `yaml:"metric_exporter"`

	// OTLPEndpoint is the collector address for the otlp exporter.
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// DefaultScopeConfig returns the configuration written on first run.
func DefaultScopeConfig() ScopeConfig {
	return ScopeConfig{
		Server: ServerConfig{
			Port: 8085,
		},
		Store: StoreConfig{
			Path:       "~/.aleutian/scope/graph",
			SyncWrites: true,
		},
		Correlator: CorrelatorConfig{
			LookupTimeoutMS:      2000,
			MaxConcurrentLookups: 16,
			MaxCachedContexts:    10000,
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "~/.aleutian/scope/logs",
		},
		Telemetry: TelemetryConfig{
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			OTLPEndpoint:   "localhost:4317",
		},
	}
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".aleutian", "scope.yaml"), nil
}

// LoadConfig reads the config file at path, creating it with defaults
// if it doesn't exist, then applies environment overrides.
func LoadConfig(path string) (ScopeConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Printf("First run detected, creating the config at %s\n", path)
		if err := createDefaultConfig(path); err != nil {
			return ScopeConfig{}, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return ScopeConfig{}, fmt.Errorf("failed to read the config file: %w", err)
	}

	cfg := DefaultScopeConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return ScopeConfig{}, fmt.Errorf("failed to parse the config file: %w", err)
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func createDefaultConfig(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultScopeConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// applyEnvOverrides lets container deployments override file values
// without mounting a config file.
func applyEnvOverrides(cfg *ScopeConfig) {
	if v := os.Getenv("SCOPE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SCOPE_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("SCOPE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// LookupTimeout converts the configured millisecond value to a Duration.
func (c CorrelatorConfig) LookupTimeout() time.Duration {
	return time.Duration(c.LookupTimeoutMS) * time.Millisecond
}

// ContextTTL converts the configured seconds value to a Duration.
func (c CorrelatorConfig) ContextTTL() time.Duration {
	return time.Duration(c.ContextTTLSeconds) * time.Second
}

// expandHome expands a leading ~ to the user's home directory.
func expandHome(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
