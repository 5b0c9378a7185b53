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
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for event correlation.
var (
	tracer = otel.Tracer("aleutian.correlator")
	meter  = otel.Meter("aleutian.correlator")
)

// Metrics for correlation operations.
var (
	lookupLatency metric.Float64Histogram
	lookupTotal   metric.Int64Counter
	traceEvents   metric.Int64Histogram
	tracesTotal   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		lookupLatency, err = meter.Float64Histogram(
			"correlator_lookup_duration_seconds",
			metric.WithDescription("Duration of event-to-node lookups"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		lookupTotal, err = meter.Int64Counter(
			"correlator_lookups_total",
			metric.WithDescription("Total number of event-to-node lookups"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		traceEvents, err = meter.Int64Histogram(
			"correlator_trace_events",
			metric.WithDescription("Number of events per built trace"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		tracesTotal, err = meter.Int64Counter(
			"correlator_traces_total",
			metric.WithDescription("Total number of traces built"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordLookupMetrics records metrics for a single lookup.
//
// Parameters:
//   - ctx: Context for metric recording
//   - outcome: One of "hit", "miss", "not_found", "provider_error",
//     "timeout", "invalid"
//   - duration: How long the lookup took
func recordLookupMetrics(ctx context.Context, outcome string, duration time.Duration) {
	if err := initMetrics(); err != nil {
		return // Silently skip if metrics init failed
	}

	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	lookupLatency.Record(ctx, duration.Seconds(), attrs)
	lookupTotal.Add(ctx, 1, attrs)
}

// recordTraceMetrics records metrics for a built trace.
func recordTraceMetrics(ctx context.Context, eventCount, unresolved int) {
	if err := initMetrics(); err != nil {
		return
	}

	traceEvents.Record(ctx, int64(eventCount))
	tracesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("partial", unresolved > 0),
	))
}

// startLookupSpan creates a span for a lookup operation.
func startLookupSpan(ctx context.Context, structuralID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Correlator.Resolve",
		trace.WithAttributes(
			attribute.String("correlator.structural_id", structuralID),
		),
	)
}

// startTraceSpan creates a span for a trace build.
func startTraceSpan(ctx context.Context, eventCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Correlator.BuildTrace",
		trace.WithAttributes(
			attribute.Int("correlator.event_count", eventCount),
		),
	)
}
