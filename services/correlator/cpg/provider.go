// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cpg

import "context"

// Provider is the read-only contract against the static graph store.
//
// Both operations are request/response point lookups; the correlator
// never streams from the store and never writes through this interface.
//
// # Implementation Requirements
//
//  1. Implementations must be safe for concurrent use. The correlator
//     issues lookups from many goroutines and serializes per-key only.
//
//  2. A lookup that finds nothing must return ErrNodeNotFound (possibly
//     wrapped), not an empty result with a nil error. The correlator
//     caches definitive not-found results; transport failures must be
//     reported as distinct errors so they are retried instead.
//
//  3. Implementations should honor ctx cancellation and deadlines. The
//     correlator bounds every lookup with its configured timeout.
type Provider interface {
	// LookupByIdentifier resolves a structural identifier to the graph
	// nodes carrying it. More than one node may match (e.g. a macro
	// expanded in several scopes); disambiguation is the caller's job
	// via SelectBestMatch.
	//
	// Returns ErrNodeNotFound if the identifier names no node.
	LookupByIdentifier(ctx context.Context, identifier string) ([]*Node, error)

	// LookupEnclosingFunction resolves the function-level node that
	// contains the given node.
	//
	// Returns ErrNodeNotFound if the node does not exist or has no
	// enclosing function.
	LookupEnclosingFunction(ctx context.Context, nodeID string) (*Node, error)
}
