// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"container/list"
	"time"

	astctx "github.com/AleutianAI/AleutianScope/services/correlator/context"
)

// Default configuration values.
const (
	// DefaultMaxEntries is the default maximum number of cached contexts.
	DefaultMaxEntries = 10000

	// DefaultMaxAge is the default TTL for cached entries. Zero disables
	// expiry; context entries derive from an immutable graph snapshot so
	// they do not go stale on their own.
	DefaultMaxAge = 0 * time.Minute
)

// cacheEntry is a cached resolution result for one structural identifier.
//
// Context is nil for a negative entry: the graph was consulted and holds
// no node for the identifier. Negative entries are served as hits so the
// store is not hammered for identifiers that will never resolve.
type cacheEntry struct {
	// StructuralID is the identifier this entry resolves.
	StructuralID string

	// Context is the resolved context, or nil for a definitive miss.
	Context *astctx.AstContext

	// BuiltAtMilli is when the entry was loaded.
	BuiltAtMilli int64

	// LastAccessMilli is when the entry was last served.
	LastAccessMilli int64

	// lruElement is the position in the LRU list.
	lruElement *list.Element
}

// CacheStats contains statistics about the cache.
type CacheStats struct {
	// EntryCount is the number of entries in the cache.
	EntryCount int

	// NegativeCount is the number of cached definitive misses.
	NegativeCount int

	// Hits is the number of cache hits, negative hits included.
	Hits int64

	// NegativeHits is the subset of hits served from negative entries.
	NegativeHits int64

	// Misses is the number of cache misses.
	Misses int64

	// Evictions is the number of entries evicted.
	Evictions int64

	// LoadCount is the number of loader executions.
	LoadCount int64

	// ErrorCount is the number of loader failures. Failures are never
	// cached, so each failing identifier retries on its next lookup.
	ErrorCount int64

	// MaxEntries is the configured maximum entries.
	MaxEntries int

	// MaxAge is the configured TTL (0 = no expiry).
	MaxAge time.Duration
}

// HitRate returns the cache hit rate as a percentage.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// CacheOptions configures ContextCache behavior.
type CacheOptions struct {
	// MaxEntries is the maximum number of cached contexts.
	MaxEntries int

	// MaxAge is the TTL for cached entries (0 = no expiry).
	MaxAge time.Duration
}

// DefaultCacheOptions returns sensible defaults.
func DefaultCacheOptions() CacheOptions {
	return CacheOptions{
		MaxEntries: DefaultMaxEntries,
		MaxAge:     DefaultMaxAge,
	}
}

// CacheOption is a functional option for configuring ContextCache.
type CacheOption func(*CacheOptions)

// WithMaxEntries sets the maximum number of cached entries.
func WithMaxEntries(n int) CacheOption {
	return func(o *CacheOptions) {
		if n > 0 {
			o.MaxEntries = n
		}
	}
}

// WithMaxAge sets the TTL for cached entries.
func WithMaxAge(d time.Duration) CacheOption {
	return func(o *CacheOptions) {
		if d > 0 {
			o.MaxAge = d
		}
	}
}
