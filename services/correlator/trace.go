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
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// buildTrace assembles an execution trace from a batch of events.
//
// Description:
//
//	Resolves every event concurrently, bounded by maxConcurrency, and
//	assembles the results in input order. Resolution failures degrade
//	per event: the event stays in the trace with a nil context and the
//	trace is marked partial. buildTrace itself never fails because of
//	an unresolvable event.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	events - Events in the order the caller observed them.
//	maxConcurrency - Upper bound on concurrent resolutions.
//
// Outputs:
//
//	*ExecutionTrace - The assembled trace. Never nil.
func (r *resolver) buildTrace(ctx context.Context, events []*RuntimeEvent, maxConcurrency int) *ExecutionTrace {
	ctx, span := startTraceSpan(ctx, len(events))
	defer span.End()

	trace := &ExecutionTrace{
		TraceID:      uuid.NewString(),
		Events:       make([]*EnhancedEvent, len(events)),
		CPGPathTaken: make([]PathStep, 0, len(events)),
	}

	if len(events) == 0 {
		r.stats.recordTraceBuilt()
		recordTraceMetrics(ctx, 0, 0)
		return trace
	}

	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrency)

	for i, event := range events {
		i, event := i, event
		g.Go(func() error {
			enhanced := &EnhancedEvent{
				Event:             event,
				CorrelatedAtMilli: time.Now().UnixMilli(),
			}
			resolved, err := r.Resolve(gctx, event)
			if err == nil {
				enhanced.Context = resolved
			}
			// Resolution failures are recorded in the stats by
			// Resolve; the trace keeps the bare event.
			trace.Events[i] = enhanced
			return nil
		})
	}

	// Goroutines only return nil; Wait is for completion.
	_ = g.Wait()

	unresolved := 0
	for _, enhanced := range trace.Events {
		event := enhanced.Event
		// Invalid events carry no usable timestamp; they must not drag
		// the bounds toward zero regardless of where they sit in the
		// batch.
		if event != nil && event.TimestampMilli > 0 {
			if trace.StartMilli == 0 || event.TimestampMilli < trace.StartMilli {
				trace.StartMilli = event.TimestampMilli
			}
			if event.TimestampMilli > trace.EndMilli {
				trace.EndMilli = event.TimestampMilli
			}
		}

		if !enhanced.Resolved() {
			unresolved++
			continue
		}

		step := PathStep{
			CPGNodeID:  enhanced.Context.CPGNodeID,
			SourcePath: enhanced.Context.SourcePath,
			LineNumber: enhanced.Context.LineNumber,
		}
		if event != nil {
			step.TimestampMilli = event.TimestampMilli
		}
		trace.CPGPathTaken = append(trace.CPGPathTaken, step)
	}

	trace.Metadata = TraceMetadata{
		Partial:          unresolved > 0,
		UnresolvedEvents: unresolved,
	}

	r.stats.recordTraceBuilt()
	recordTraceMetrics(ctx, len(events), unresolved)
	span.SetAttributes(
		attribute.Int("correlator.unresolved_events", unresolved),
		attribute.Bool("correlator.partial", unresolved > 0),
	)

	return trace
}
