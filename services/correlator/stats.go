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

import "sync/atomic"

// statsCollector accumulates correlation outcomes with atomic counters.
//
// Thread Safety:
//
//	Safe for concurrent use.
type statsCollector struct {
	lookupsAttempted int64
	cacheHits        int64
	cacheMisses      int64
	notFound         int64
	providerErrors   int64
	timeouts         int64
	invalidEvents    int64
	tracesBuilt      int64
}

func (s *statsCollector) recordAttempt()       { atomic.AddInt64(&s.lookupsAttempted, 1) }
func (s *statsCollector) recordHit()           { atomic.AddInt64(&s.cacheHits, 1) }
func (s *statsCollector) recordMiss()          { atomic.AddInt64(&s.cacheMisses, 1) }
func (s *statsCollector) recordNotFound()      { atomic.AddInt64(&s.notFound, 1) }
func (s *statsCollector) recordProviderError() { atomic.AddInt64(&s.providerErrors, 1) }
func (s *statsCollector) recordTimeout()       { atomic.AddInt64(&s.timeouts, 1) }
func (s *statsCollector) recordInvalidEvent()  { atomic.AddInt64(&s.invalidEvents, 1) }
func (s *statsCollector) recordTraceBuilt()    { atomic.AddInt64(&s.tracesBuilt, 1) }

// snapshot returns a consistent-enough copy of the counters.
func (s *statsCollector) snapshot() CorrelationStats {
	return CorrelationStats{
		LookupsAttempted: atomic.LoadInt64(&s.lookupsAttempted),
		CacheHits:        atomic.LoadInt64(&s.cacheHits),
		CacheMisses:      atomic.LoadInt64(&s.cacheMisses),
		NotFound:         atomic.LoadInt64(&s.notFound),
		ProviderErrors:   atomic.LoadInt64(&s.providerErrors),
		Timeouts:         atomic.LoadInt64(&s.timeouts),
		InvalidEvents:    atomic.LoadInt64(&s.invalidEvents),
		TracesBuilt:      atomic.LoadInt64(&s.tracesBuilt),
	}
}

// reset zeroes all counters.
func (s *statsCollector) reset() {
	atomic.StoreInt64(&s.lookupsAttempted, 0)
	atomic.StoreInt64(&s.cacheHits, 0)
	atomic.StoreInt64(&s.cacheMisses, 0)
	atomic.StoreInt64(&s.notFound, 0)
	atomic.StoreInt64(&s.providerErrors, 0)
	atomic.StoreInt64(&s.timeouts, 0)
	atomic.StoreInt64(&s.invalidEvents, 0)
	atomic.StoreInt64(&s.tracesBuilt, 0)
}
