// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package context

import (
	"context"
	"errors"
	"log/slog"

	"github.com/AleutianAI/AleutianScope/services/correlator/cpg"
)

// Builder expands resolved graph nodes into full AstContexts.
//
// Thread Safety:
//
//	Builder is stateless apart from its provider and logger references
//	and is safe for concurrent use.
type Builder struct {
	provider cpg.Provider
	logger   *slog.Logger
}

// NewBuilder creates a Builder backed by the given provider.
//
// Inputs:
//
//	provider - Graph store handle for the enclosing-function lookup.
//	           Must not be nil.
//	logger - Logger for degraded-enrichment events. May be nil; a nil
//	         logger falls back to slog.Default().
func NewBuilder(provider cpg.Provider, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{provider: provider, logger: logger}
}

// Build assembles the AstContext for a resolved node.
//
// Description:
//
//	Copies the node's own data into the context, then issues one
//	additional provider call for the enclosing function-level node to
//	derive module/function/arity. The enclosing function is optional
//	metadata: when it cannot be resolved (not found, store error, or
//	the node is top-level) the function-identifying fields stay empty
//	and the context is still fully populated. Build only fails when the
//	primary node itself is unusable.
//
// Inputs:
//
//	ctx - Context bounding the enclosing-function lookup.
//	structuralID - The identifier the originating event carried.
//	node - The resolved node. Must not be nil.
//
// Outputs:
//
//	*AstContext - The assembled context. Never partially filled.
//	error - Non-nil only if node is nil or ctx was cancelled before
//	        assembly could start.
func (b *Builder) Build(ctx context.Context, structuralID string, node *cpg.Node) (*AstContext, error) {
	if node == nil {
		return nil, cpg.ErrNodeNotFound
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ac := &AstContext{
		StructuralID:   structuralID,
		CPGNodeID:      node.ID,
		NodeKind:       node.Kind,
		Label:          node.Label,
		Properties:     copyProperties(node.Properties),
		FunctionNodeID: node.FunctionNodeID,
		Arity:          -1,
		SourcePath:     node.FilePath,
		LineNumber:     node.Line,
	}

	if node.FunctionNodeID == "" {
		return ac, nil
	}

	fn, err := b.provider.LookupEnclosingFunction(ctx, node.ID)
	if err != nil {
		if !errors.Is(err, cpg.ErrNodeNotFound) {
			b.logger.Warn("enclosing function lookup failed",
				"node_id", node.ID,
				"function_node_id", node.FunctionNodeID,
				"error", err.Error(),
			)
		}
		return ac, nil
	}

	ac.FunctionNodeID = fn.ID
	ac.ModuleName, ac.FunctionName, ac.Arity = ParseFunctionLabel(fn.Label)
	return ac, nil
}

// copyProperties clones a property bag so cached contexts never alias
// provider-owned maps.
func copyProperties(props map[string]string) map[string]string {
	if len(props) == 0 {
		return nil
	}
	out := make(map[string]string, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}
