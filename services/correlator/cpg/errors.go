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

import "errors"

// Sentinel errors for provider lookups.
var (
	// ErrNodeNotFound is returned when a lookup finds no matching node.
	// This is a definitive answer from the store, not a failure; callers
	// may cache it.
	ErrNodeNotFound = errors.New("cpg node not found")

	// ErrStoreClosed is returned when a lookup is issued against a
	// closed NodeStore.
	ErrStoreClosed = errors.New("node store is closed")

	// ErrInvalidNode is returned when a node fails validation on ingest.
	ErrInvalidNode = errors.New("invalid cpg node")

	// ErrUnknownNodeKind is returned when a kind label does not map to
	// any known NodeKind.
	ErrUnknownNodeKind = errors.New("unknown node kind")
)
