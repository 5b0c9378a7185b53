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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianScope/services/correlator/cache"
	astctx "github.com/AleutianAI/AleutianScope/services/correlator/context"
	"github.com/AleutianAI/AleutianScope/services/correlator/cpg"
	"github.com/AleutianAI/AleutianScope/services/correlator/telemetry"
)

// resolver turns runtime events into AST contexts.
//
// The resolver is the single path from an event to the graph: it checks
// the cache, bounds concurrent store access with a semaphore and an
// optional rate limiter, applies the per-lookup deadline, and records
// one outcome per attempted lookup.
//
// Thread Safety:
//
//	Safe for concurrent use.
type resolver struct {
	provider cpg.Provider
	builder  *astctx.Builder
	cache    *cache.ContextCache
	stats    *statsCollector
	sem      *Semaphore
	limiter  *rate.Limiter // nil when rate limiting is disabled
	timeout  time.Duration // 0 disables the per-lookup deadline
	logger   *slog.Logger
}

// Resolve maps an event to its AST context.
//
// Description:
//
//	Validates the event, then resolves its structural identifier through
//	the cache. A cache miss consults the graph store, disambiguates
//	among candidate nodes, and assembles a context which is cached for
//	subsequent events carrying the same identifier.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	event - The runtime event to resolve.
//
// Outputs:
//
//	*astctx.AstContext - The resolved context.
//	error - Non-nil if the event is invalid or could not be resolved.
//
// Errors:
//
//	ErrInvalidEvent - Nil event or non-positive timestamp.
//	ErrNotFound - No identifier on the event, or no node for it.
//	ErrLookupTimeout - The lookup exceeded the configured deadline.
//	*ErrProviderFailure - The graph store failed.
func (r *resolver) Resolve(ctx context.Context, event *RuntimeEvent) (*astctx.AstContext, error) {
	if event == nil || event.TimestampMilli <= 0 {
		r.stats.recordInvalidEvent()
		recordLookupMetrics(ctx, "invalid", 0)
		return nil, ErrInvalidEvent
	}

	r.stats.recordAttempt()
	start := time.Now()

	sid := event.StructuralID
	if sid == "" {
		// Nothing to look up. Counts as not-found without touching
		// the cache or the store.
		r.stats.recordNotFound()
		recordLookupMetrics(ctx, "not_found", time.Since(start))
		return nil, fmt.Errorf("%w: event has no structural identifier", ErrNotFound)
	}

	ctx, span := startLookupSpan(ctx, sid)
	defer span.End()

	// Fast path: serve straight from the cache, negative entries
	// included.
	if result, ok := r.cache.Get(sid); ok {
		r.stats.recordHit()
		recordLookupMetrics(ctx, "hit", time.Since(start))
		span.SetAttributes(attribute.String("correlator.outcome", "hit"))
		if result == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, sid)
		}
		return result, nil
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, r.failLookup(ctx, span, sid, err, start)
		}
	}

	if err := r.sem.Acquire(ctx); err != nil {
		return nil, r.failLookup(ctx, span, sid, err, start)
	}
	defer r.sem.Release()

	// loaded distinguishes a real store load from a result shared by a
	// concurrent lookup for the same identifier.
	loaded := false
	result, err := r.cache.GetOrResolve(ctx, sid, func(ctx context.Context, sid string) (*astctx.AstContext, error) {
		loaded = true
		return r.load(ctx, sid)
	})
	if err != nil {
		return nil, r.failLookup(ctx, span, sid, err, start)
	}

	if result == nil {
		if loaded {
			r.stats.recordNotFound()
			recordLookupMetrics(ctx, "not_found", time.Since(start))
			span.SetAttributes(attribute.String("correlator.outcome", "not_found"))
		} else {
			r.stats.recordHit()
			recordLookupMetrics(ctx, "hit", time.Since(start))
			span.SetAttributes(attribute.String("correlator.outcome", "hit"))
		}
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sid)
	}

	if loaded {
		r.stats.recordMiss()
		recordLookupMetrics(ctx, "miss", time.Since(start))
		span.SetAttributes(attribute.String("correlator.outcome", "miss"))
	} else {
		r.stats.recordHit()
		recordLookupMetrics(ctx, "hit", time.Since(start))
		span.SetAttributes(attribute.String("correlator.outcome", "hit"))
	}
	return result, nil
}

// load consults the graph store and assembles a context.
//
// Returns (nil, nil) when the store definitively holds no node for the
// identifier, so the cache records a negative entry.
func (r *resolver) load(ctx context.Context, sid string) (*astctx.AstContext, error) {
	nodes, err := r.provider.LookupByIdentifier(ctx, sid)
	if err != nil {
		if errors.Is(err, cpg.ErrNodeNotFound) {
			return nil, nil
		}
		return nil, err
	}

	best := cpg.SelectBestMatch(nodes)
	if best == nil {
		return nil, nil
	}

	return r.builder.Build(ctx, sid, best)
}

// lookupNode queries the store directly under the same guards as event
// resolution: the per-lookup deadline, the rate limiter, and the
// semaphore. It bypasses the cache and records no stats.
//
// Errors:
//
//	cpg.ErrNodeNotFound - The store holds no node for the identifier.
//	ErrLookupTimeout - The lookup exceeded the configured deadline.
//	*ErrProviderFailure - The graph store failed.
func (r *resolver) lookupNode(ctx context.Context, sid string) ([]*cpg.Node, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, r.classifyDirectError(sid, err)
		}
	}

	if err := r.sem.Acquire(ctx); err != nil {
		return nil, r.classifyDirectError(sid, err)
	}
	defer r.sem.Release()

	nodes, err := r.provider.LookupByIdentifier(ctx, sid)
	if err != nil {
		if errors.Is(err, cpg.ErrNodeNotFound) {
			return nil, err
		}
		return nil, r.classifyDirectError(sid, err)
	}
	return nodes, nil
}

// classifyDirectError maps a direct-lookup failure to the package's
// error vocabulary without recording a stats outcome.
func (r *resolver) classifyDirectError(sid string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrLookupTimeout, sid)
	}
	return &ErrProviderFailure{StructuralID: sid, Err: err}
}

// failLookup classifies a lookup error, records the outcome, and maps
// it to the package's error vocabulary.
func (r *resolver) failLookup(ctx context.Context, span trace.Span, sid string, err error, start time.Time) error {
	logger := telemetry.LoggerWithEvent(ctx, r.logger, sid)

	if errors.Is(err, context.DeadlineExceeded) {
		r.stats.recordTimeout()
		recordLookupMetrics(ctx, "timeout", time.Since(start))
		span.SetAttributes(attribute.String("correlator.outcome", "timeout"))
		logger.Warn("graph lookup timed out", "timeout", r.timeout)
		return fmt.Errorf("%w: %s", ErrLookupTimeout, sid)
	}

	r.stats.recordProviderError()
	recordLookupMetrics(ctx, "provider_error", time.Since(start))
	span.SetAttributes(attribute.String("correlator.outcome", "provider_error"))
	logger.Error("graph lookup failed", "error", err)
	return &ErrProviderFailure{StructuralID: sid, Err: err}
}
