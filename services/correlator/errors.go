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
	"errors"
	"fmt"
)

// Sentinel errors for correlation operations.
var (
	// ErrNotFound is returned when an event cannot be attributed to any
	// graph node. This covers events without a structural identifier as
	// well as identifiers the graph holds no node for.
	ErrNotFound = errors.New("no graph node for event")

	// ErrInvalidEvent is returned for a nil event or an event with a
	// non-positive timestamp.
	ErrInvalidEvent = errors.New("invalid runtime event")

	// ErrLookupTimeout is returned when a single lookup exceeds the
	// configured deadline.
	ErrLookupTimeout = errors.New("graph lookup timed out")

	// ErrServiceClosed is returned by all operations after Close.
	ErrServiceClosed = errors.New("correlator service closed")
)

// ErrProviderFailure wraps an error from the graph store.
//
// Provider failures are transient by assumption and are never cached;
// the same identifier retries the store on its next lookup.
type ErrProviderFailure struct {
	// StructuralID is the identifier whose lookup failed.
	StructuralID string

	// Err is the underlying store error.
	Err error
}

// Error implements the error interface.
func (e *ErrProviderFailure) Error() string {
	return fmt.Sprintf("graph lookup for %q failed: %v", e.StructuralID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ErrProviderFailure) Unwrap() error {
	return e.Err
}
