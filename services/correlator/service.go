// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package correlator maps runtime events onto the static code property
// graph they executed through.
//
// The service exposes operations for:
//   - Resolving a single event to its AST context
//   - Enhancing events with static context for downstream consumers
//   - Assembling execution traces from event batches
//   - Inspecting correlation statistics and cache state
package correlator

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianScope/services/correlator/cache"
	astctx "github.com/AleutianAI/AleutianScope/services/correlator/context"
	"github.com/AleutianAI/AleutianScope/services/correlator/cpg"
)

// ServiceConfig configures the correlator service.
type ServiceConfig struct {
	// LookupTimeout is the deadline for a single graph lookup.
	// Default: 2s. Zero disables the deadline.
	LookupTimeout time.Duration

	// MaxConcurrentLookups bounds simultaneous graph store access.
	// Default: 16
	MaxConcurrentLookups int

	// MaxCachedContexts is the maximum number of cached contexts.
	// Default: 10000
	MaxCachedContexts int

	// ContextTTL is how long contexts are cached before expiry.
	// Default: 0 (no expiry)
	ContextTTL time.Duration

	// LookupRateLimit caps store lookups per second.
	// Default: 0 (no rate limit)
	LookupRateLimit rate.Limit

	// LookupRateBurst is the burst size for the rate limiter.
	// Default: 1 when rate limiting is enabled
	LookupRateBurst int
}

// DefaultServiceConfig returns sensible defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		LookupTimeout:        2 * time.Second,
		MaxConcurrentLookups: 16,
		MaxCachedContexts:    10000,
		ContextTTL:           0, // No expiry
	}
}

// Service correlates runtime events with code property graph nodes.
//
// Thread Safety:
//
//	Service is safe for concurrent use. Multiple goroutines can call
//	any combination of methods simultaneously.
type Service struct {
	config   ServiceConfig
	provider cpg.Provider
	cache    *cache.ContextCache
	resolver *resolver
	stats    *statsCollector
	logger   *slog.Logger
	closed   atomic.Bool
}

// ServiceOption is a functional option for configuring the Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a new correlator service.
//
// Description:
//
//	Creates a service backed by the given graph provider. The service
//	starts with an empty context cache and zeroed statistics.
//
// Inputs:
//
//	provider - The code property graph to resolve against. Required.
//	config - Service configuration.
//	opts - Optional overrides.
//
// Outputs:
//
//	*Service - The configured service.
//	error - Non-nil if provider is nil.
func NewService(provider cpg.Provider, config ServiceConfig, opts ...ServiceOption) (*Service, error) {
	if provider == nil {
		return nil, errors.New("correlator: provider is required")
	}

	if config.MaxConcurrentLookups <= 0 {
		config.MaxConcurrentLookups = DefaultServiceConfig().MaxConcurrentLookups
	}
	if config.MaxCachedContexts <= 0 {
		config.MaxCachedContexts = DefaultServiceConfig().MaxCachedContexts
	}

	svc := &Service{
		config:   config,
		provider: provider,
		stats:    &statsCollector{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}

	cacheOpts := []cache.CacheOption{
		cache.WithMaxEntries(config.MaxCachedContexts),
	}
	if config.ContextTTL > 0 {
		cacheOpts = append(cacheOpts, cache.WithMaxAge(config.ContextTTL))
	}
	svc.cache = cache.NewContextCache(cacheOpts...)

	var limiter *rate.Limiter
	if config.LookupRateLimit > 0 {
		burst := config.LookupRateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(config.LookupRateLimit, burst)
	}

	svc.resolver = &resolver{
		provider: provider,
		builder:  astctx.NewBuilder(provider, svc.logger),
		cache:    svc.cache,
		stats:    svc.stats,
		sem:      NewSemaphore(config.MaxConcurrentLookups),
		limiter:  limiter,
		timeout:  config.LookupTimeout,
		logger:   svc.logger,
	}

	return svc, nil
}

// Correlate resolves a single event to its AST context.
//
// Description:
//
//	Maps the event's structural identifier to a graph node and returns
//	the assembled context. Results, including definitive not-found, are
//	cached; store failures are not.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	event - The runtime event to resolve.
//
// Outputs:
//
//	*astctx.AstContext - The resolved context.
//	error - Non-nil if the event is invalid or unresolvable.
//
// Errors:
//
//	ErrServiceClosed - The service has been closed.
//	ErrInvalidEvent - Nil event or non-positive timestamp.
//	ErrNotFound - No graph node for the event.
//	ErrLookupTimeout - The lookup exceeded LookupTimeout.
//	*ErrProviderFailure - The graph store failed.
func (s *Service) Correlate(ctx context.Context, event *RuntimeEvent) (*astctx.AstContext, error) {
	if s.closed.Load() {
		return nil, ErrServiceClosed
	}
	return s.resolver.Resolve(ctx, event)
}

// Enhance pairs an event with its resolved context.
//
// Description:
//
//	Like Correlate, but degrades instead of failing: an unresolvable
//	event comes back with a nil context so batch consumers never lose
//	events. Invalid events still fail.
//
// Errors:
//
//	ErrServiceClosed - The service has been closed.
//	ErrInvalidEvent - Nil event or non-positive timestamp.
func (s *Service) Enhance(ctx context.Context, event *RuntimeEvent) (*EnhancedEvent, error) {
	if s.closed.Load() {
		return nil, ErrServiceClosed
	}

	resolved, err := s.resolver.Resolve(ctx, event)
	if err != nil {
		if errors.Is(err, ErrInvalidEvent) {
			return nil, err
		}
		// Unresolvable events pass through with no context.
		return &EnhancedEvent{Event: event, CorrelatedAtMilli: time.Now().UnixMilli()}, nil
	}

	return &EnhancedEvent{Event: event, Context: resolved, CorrelatedAtMilli: time.Now().UnixMilli()}, nil
}

// BuildTrace assembles an execution trace from a batch of events.
//
// Description:
//
//	Resolves all events concurrently and assembles them into a trace in
//	input order. Unresolvable events stay in the trace without context
//	and mark it partial; BuildTrace only fails when the service is
//	closed.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	events - Events in observation order.
//
// Outputs:
//
//	*ExecutionTrace - The assembled trace, never nil on success.
//	error - ErrServiceClosed if the service has been closed.
func (s *Service) BuildTrace(ctx context.Context, events []*RuntimeEvent) (*ExecutionTrace, error) {
	if s.closed.Load() {
		return nil, ErrServiceClosed
	}
	return s.resolver.buildTrace(ctx, events, s.config.MaxConcurrentLookups), nil
}

// GetNodeFor looks up the graph node for a structural identifier.
//
// Description:
//
//	Bypasses the context cache and queries the store directly, applying
//	the same disambiguation as event resolution (deepest scope first,
//	then earliest line) and the same lookup guards: LookupTimeout, the
//	concurrency semaphore, and the rate limiter.
//
// Errors:
//
//	ErrServiceClosed - The service has been closed.
//	ErrNotFound - No node for the identifier.
//	ErrLookupTimeout - The lookup exceeded LookupTimeout.
//	*ErrProviderFailure - The graph store failed.
func (s *Service) GetNodeFor(ctx context.Context, structuralID string) (*cpg.Node, error) {
	if s.closed.Load() {
		return nil, ErrServiceClosed
	}

	nodes, err := s.resolver.lookupNode(ctx, structuralID)
	if err != nil {
		if errors.Is(err, cpg.ErrNodeNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	best := cpg.SelectBestMatch(nodes)
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

// GetStats returns a snapshot of correlation statistics.
func (s *Service) GetStats() CorrelationStats {
	return s.stats.snapshot()
}

// CacheStats returns a snapshot of the context cache statistics.
func (s *Service) CacheStats() cache.CacheStats {
	return s.cache.Stats()
}

// ClearCaches drops all cached contexts and resets statistics.
func (s *Service) ClearCaches() {
	s.cache.Clear()
	s.stats.reset()
	s.logger.Info("correlator caches cleared")
}

// Close marks the service closed. Subsequent operations return
// ErrServiceClosed. Close is idempotent.
func (s *Service) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.cache.Clear()
	s.logger.Info("correlator service closed")
	return nil
}
