// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package correlator

import (
	"github.com/AleutianAI/AleutianScope/services/correlator/cache"
	astctx "github.com/AleutianAI/AleutianScope/services/correlator/context"
)

// RuntimeEvent is a single event observed from a running system.
//
// Events arrive from instrumentation and carry at most one structural
// identifier tying them back to a node in the code property graph. The
// payload is opaque to the correlator and passed through untouched.
type RuntimeEvent struct {
	// StructuralID links the event to a graph node. Empty when the
	// instrumentation could not attribute the event to a code location.
	StructuralID string `json:"structural_id,omitempty"`

	// TimestampMilli is when the event occurred, Unix milliseconds UTC.
	// Must be positive.
	TimestampMilli int64 `json:"timestamp_ms"`

	// Payload is arbitrary event data. Never inspected.
	Payload map[string]any `json:"payload,omitempty"`
}

// EnhancedEvent pairs a runtime event with its resolved static context.
//
// Context is nil when the event carried no structural identifier, the
// identifier resolved to no graph node, or resolution failed. The
// original event is always preserved.
type EnhancedEvent struct {
	Event *RuntimeEvent `json:"event"`

	// Context is the resolved AST context, nil when unresolved.
	Context *astctx.AstContext `json:"ast_context,omitempty"`

	// CorrelatedAtMilli is when the correlation was performed, Unix
	// milliseconds UTC. Distinct from the event's own timestamp, which
	// records when the runtime observed the event.
	CorrelatedAtMilli int64 `json:"correlated_at_ms"`
}

// Resolved reports whether the event was attributed to a graph node.
func (e *EnhancedEvent) Resolved() bool {
	return e != nil && e.Context != nil
}

// PathStep is one resolved location on an execution path.
type PathStep struct {
	// CPGNodeID is the graph node the step executed.
	CPGNodeID string `json:"cpg_node_id"`

	// TimestampMilli is when the step was observed, Unix milliseconds UTC.
	TimestampMilli int64 `json:"timestamp_ms"`

	// SourcePath and LineNumber locate the step in source.
	SourcePath string `json:"source_path,omitempty"`
	LineNumber int    `json:"line_number,omitempty"`
}

// TraceMetadata describes how completely a trace was resolved.
type TraceMetadata struct {
	// Partial is true when at least one event could not be resolved.
	Partial bool `json:"partial"`

	// UnresolvedEvents is the number of events without a context.
	UnresolvedEvents int `json:"unresolved_events"`
}

// ExecutionTrace is an ordered sequence of enhanced events with the
// code path they took through the graph.
//
// Events keeps the caller's input order. CPGPathTaken contains one step
// per resolved event, in the same order, so its timestamps follow the
// ordering of the input.
type ExecutionTrace struct {
	// TraceID uniquely identifies this trace.
	TraceID string `json:"trace_id"`

	// Events are the enhanced events in input order.
	Events []*EnhancedEvent `json:"events"`

	// CPGPathTaken is the sequence of resolved graph locations.
	CPGPathTaken []PathStep `json:"cpg_path_taken"`

	// StartMilli and EndMilli bound the observed timestamps,
	// Unix milliseconds UTC. Zero for an empty trace.
	StartMilli int64 `json:"start_ms"`
	EndMilli   int64 `json:"end_ms"`

	// Metadata records partial-resolution details.
	Metadata TraceMetadata `json:"metadata"`
}

// CorrelationStats is a snapshot of resolution outcomes.
//
// Every lookup increments LookupsAttempted and exactly one of the
// outcome counters. A lookup served from a cached negative entry counts
// as a CacheHit even though the caller observes not-found.
type CorrelationStats struct {
	LookupsAttempted int64 `json:"lookups_attempted"`

	// CacheHits counts lookups served from the cache, negative
	// entries included.
	CacheHits int64 `json:"cache_hits"`

	// CacheMisses counts lookups that loaded a context from the store.
	CacheMisses int64 `json:"cache_misses"`

	// NotFound counts lookups where the graph holds no node for the
	// identifier, and lookups for events without an identifier.
	NotFound int64 `json:"not_found"`

	// ProviderErrors counts lookups that failed in the graph store.
	ProviderErrors int64 `json:"provider_errors"`

	// Timeouts counts lookups that exceeded the per-lookup deadline.
	Timeouts int64 `json:"timeouts"`

	// InvalidEvents counts events rejected before lookup.
	InvalidEvents int64 `json:"invalid_events"`

	// TracesBuilt counts completed BuildTrace calls.
	TracesBuilt int64 `json:"traces_built"`
}

// HitRate returns the cache hit rate as a percentage of attempted lookups.
func (s CorrelationStats) HitRate() float64 {
	if s.LookupsAttempted == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(s.LookupsAttempted) * 100
}

// CorrelateRequest is the request body for POST /v1/scope/correlate and
// POST /v1/scope/enhance.
type CorrelateRequest struct {
	// StructuralID links the event to a graph node (optional).
	StructuralID string `json:"structural_id"`

	// TimestampMilli is when the event occurred, Unix milliseconds UTC.
	TimestampMilli int64 `json:"timestamp_ms" binding:"required,gt=0"`

	// Payload is arbitrary event data (optional).
	Payload map[string]any `json:"payload"`
}

// Event converts the request into a RuntimeEvent.
func (r *CorrelateRequest) Event() *RuntimeEvent {
	return &RuntimeEvent{
		StructuralID:   r.StructuralID,
		TimestampMilli: r.TimestampMilli,
		Payload:        r.Payload,
	}
}

// TraceRequest is the request body for POST /v1/scope/trace.
type TraceRequest struct {
	// Events are the runtime events in observation order.
	Events []CorrelateRequest `json:"events" binding:"required,dive"`
}

// IngestNodeRequest is one node in the request body for
// POST /v1/scope/nodes.
type IngestNodeRequest struct {
	ID             string            `json:"id" binding:"required"`
	Kind           string            `json:"kind" binding:"required,nodekind"`
	Label          string            `json:"label"`
	Properties     map[string]string `json:"properties"`
	FunctionNodeID string            `json:"function_node_id"`
	FilePath       string            `json:"file_path"`
	Line           int               `json:"line" binding:"gte=0"`
	ScopeDepth     int               `json:"scope_depth" binding:"gte=0"`
}

// IngestRequest is the request body for POST /v1/scope/nodes.
type IngestRequest struct {
	Nodes []IngestNodeRequest `json:"nodes" binding:"required,min=1,dive"`
}

// IngestResponse reports how many nodes were stored.
type IngestResponse struct {
	NodesStored int `json:"nodes_stored"`
}

// StatsResponse is the response body for GET /v1/scope/stats.
type StatsResponse struct {
	Correlation  CorrelationStats `json:"correlation"`
	CacheHitRate float64          `json:"cache_hit_rate"`
	Cache        cache.CacheStats `json:"cache"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the error code (optional).
	Code string `json:"code,omitempty"`

	// Details provides additional error context (optional).
	Details string `json:"details,omitempty"`
}
