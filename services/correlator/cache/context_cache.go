// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache provides LRU caching of resolved AST contexts keyed by
// structural identifier.
package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	astctx "github.com/AleutianAI/AleutianScope/services/correlator/context"
)

// LoadFunc resolves a structural identifier to an AST context.
//
// Description:
//
//	Called during GetOrResolve when no cached entry exists. The function
//	should consult the graph store and assemble a context.
//
// Outputs:
//
//	(*astctx.AstContext, nil) - Resolution succeeded; the result is cached.
//	(nil, nil) - The graph definitively holds no node for the identifier;
//	    a negative entry is cached so subsequent lookups skip the store.
//	(nil, error) - The store could not be consulted. Errors are never
//	    cached; the next lookup for the same identifier retries the load.
type LoadFunc func(ctx context.Context, structuralID string) (*astctx.AstContext, error)

// ContextCache provides LRU caching for resolved AST contexts.
//
// Thread Safety:
//
//	ContextCache is safe for concurrent use. Uses RWMutex for the entry
//	map and singleflight to deduplicate concurrent loads per identifier.
type ContextCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	lru     *list.List
	flight  singleflight.Group
	options CacheOptions

	// Stats
	hits         int64
	negativeHits int64
	misses       int64
	evictions    int64
	loadCount    int64
	errorCount   int64
}

// NewContextCache creates a new ContextCache with the given options.
func NewContextCache(opts ...CacheOption) *ContextCache {
	options := DefaultCacheOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &ContextCache{
		entries: make(map[string]*cacheEntry),
		lru:     list.New(),
		options: options,
	}
}

// Get retrieves a cached context by structural identifier.
//
// Returns the context and whether an entry was found. A found entry with
// a nil context is a cached negative: the identifier is known to have no
// node in the graph.
func (c *ContextCache) Get(structuralID string) (*astctx.AstContext, bool) {
	c.mu.RLock()
	entry, ok := c.entries[structuralID]
	if !ok {
		c.mu.RUnlock()
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	if c.isExpired(entry) {
		c.mu.RUnlock()
		c.removeExpired(structuralID)
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	result := entry.Context
	entry.LastAccessMilli = time.Now().UnixMilli()
	c.mu.RUnlock()

	c.updateLRU(entry)

	atomic.AddInt64(&c.hits, 1)
	if result == nil {
		atomic.AddInt64(&c.negativeHits, 1)
	}
	return result, true
}

// GetOrResolve retrieves a cached context or resolves one via load.
//
// Uses singleflight so concurrent calls for the same identifier share a
// single load. Successful results, including definitive not-found, are
// cached; load errors are not, so failing identifiers retry on their
// next lookup.
//
// A (nil, nil) return means the identifier definitively resolves to no
// node. Callers must check the context value, not only the error.
func (c *ContextCache) GetOrResolve(ctx context.Context, structuralID string, load LoadFunc) (*astctx.AstContext, error) {
	if load == nil {
		return nil, ErrNilLoader
	}

	// Fast path.
	if result, ok := c.Get(structuralID); ok {
		return result, nil
	}

	result, err, _ := c.flight.Do(structuralID, func() (interface{}, error) {
		// Another flight participant may have populated the cache
		// between our miss and acquiring the flight slot.
		c.mu.RLock()
		if entry, ok := c.entries[structuralID]; ok && !c.isExpired(entry) {
			cached := entry.Context
			c.mu.RUnlock()
			return cached, nil
		}
		c.mu.RUnlock()

		atomic.AddInt64(&c.loadCount, 1)
		resolved, err := load(ctx, structuralID)
		if err != nil {
			atomic.AddInt64(&c.errorCount, 1)
			return nil, err
		}

		c.insert(structuralID, resolved)
		return resolved, nil
	})

	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	return result.(*astctx.AstContext), nil
}

// insert adds a resolved context to the cache, evicting if needed.
func (c *ContextCache) insert(structuralID string, resolved *astctx.AstContext) {
	now := time.Now().UnixMilli()
	entry := &cacheEntry{
		StructuralID:    structuralID,
		Context:         resolved,
		BuiltAtMilli:    now,
		LastAccessMilli: now,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[structuralID]; ok {
		// Replace in place, keeping the LRU position.
		existing.Context = resolved
		existing.BuiltAtMilli = now
		existing.LastAccessMilli = now
		return
	}

	c.evictIfNeeded()

	entry.lruElement = c.lru.PushFront(structuralID)
	c.entries[structuralID] = entry
}

// Invalidate removes the entry for a structural identifier.
func (c *ContextCache) Invalidate(structuralID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[structuralID]; ok {
		c.removeEntryLocked(structuralID, entry)
	}
}

// Clear removes all entries from the cache.
func (c *ContextCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.lru.Init()
}

// Len returns the number of cached entries.
func (c *ContextCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns current cache statistics.
func (c *ContextCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	negative := 0
	for _, entry := range c.entries {
		if entry.Context == nil {
			negative++
		}
	}

	return CacheStats{
		EntryCount:    len(c.entries),
		NegativeCount: negative,
		Hits:          atomic.LoadInt64(&c.hits),
		NegativeHits:  atomic.LoadInt64(&c.negativeHits),
		Misses:        atomic.LoadInt64(&c.misses),
		Evictions:     atomic.LoadInt64(&c.evictions),
		LoadCount:     atomic.LoadInt64(&c.loadCount),
		ErrorCount:    atomic.LoadInt64(&c.errorCount),
		MaxEntries:    c.options.MaxEntries,
		MaxAge:        c.options.MaxAge,
	}
}

// isExpired checks if an entry has exceeded its TTL.
func (c *ContextCache) isExpired(entry *cacheEntry) bool {
	if c.options.MaxAge == 0 {
		return false
	}
	age := time.Since(time.UnixMilli(entry.BuiltAtMilli))
	return age > c.options.MaxAge
}

// updateLRU moves an entry to the front of the LRU list.
func (c *ContextCache) updateLRU(entry *cacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry.lruElement != nil {
		c.lru.MoveToFront(entry.lruElement)
	}
}

// removeExpired removes an expired entry from the cache.
func (c *ContextCache) removeExpired(structuralID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[structuralID]; ok {
		c.removeEntryLocked(structuralID, entry)
	}
}

// removeEntryLocked removes an entry (must hold write lock).
func (c *ContextCache) removeEntryLocked(structuralID string, entry *cacheEntry) {
	if entry.lruElement != nil {
		c.lru.Remove(entry.lruElement)
	}
	delete(c.entries, structuralID)
}

// evictIfNeeded evicts LRU entries while the cache is at capacity.
//
// Assumptions:
//
//	Caller holds the write lock on c.mu.
func (c *ContextCache) evictIfNeeded() {
	for len(c.entries) >= c.options.MaxEntries {
		back := c.lru.Back()
		if back == nil {
			return
		}
		structuralID := back.Value.(string)
		if entry, ok := c.entries[structuralID]; ok {
			c.removeEntryLocked(structuralID, entry)
		} else {
			c.lru.Remove(back)
		}
		atomic.AddInt64(&c.evictions, 1)
	}
}
