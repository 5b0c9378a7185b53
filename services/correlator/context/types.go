// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package context assembles enriched AST contexts around resolved
// static graph nodes.
//
// An AstContext is the correlator's unit of enrichment: everything the
// downstream tooling needs to place a runtime event in the code's
// structure. Contexts are all-or-nothing: either resolution succeeded
// and every derivable field is filled, or there is no context at all.
// Partially populated contexts do not exist; absence is represented by
// a nil *AstContext, never by a context with empty required fields.
package context

import (
	"strconv"
	"strings"

	"github.com/AleutianAI/AleutianScope/services/correlator/cpg"
)

// AstContext is the immutable enriched context around a resolved node.
//
// Instances are created once by the Builder and must not be mutated
// afterwards; they are shared across cache readers.
type AstContext struct {
	// StructuralID is the identifier the originating event carried.
	StructuralID string `json:"structural_id"`

	// CPGNodeID is the resolved graph node's identifier.
	CPGNodeID string `json:"cpg_node_id"`

	// NodeKind classifies the resolved node.
	NodeKind cpg.NodeKind `json:"node_kind"`

	// Label is the resolved node's display label.
	Label string `json:"label"`

	// Properties is a copy of the resolved node's property bag.
	Properties map[string]string `json:"properties,omitempty"`

	// FunctionNodeID is the enclosing function-level node's identifier.
	// Empty when the node is top-level.
	FunctionNodeID string `json:"function_node_id,omitempty"`

	// ModuleName, FunctionName and Arity identify the enclosing
	// function when resolvable. The enclosing function is optional
	// metadata: a context with empty function fields is still fully
	// populated.
	ModuleName   string `json:"module_name,omitempty"`
	FunctionName string `json:"function_name,omitempty"`
	Arity        int    `json:"arity"`

	// SourcePath is the source file the node lives in, relative to
	// the project root.
	SourcePath string `json:"source_path"`

	// LineNumber is the 1-indexed source line of the node.
	LineNumber int `json:"line_number_in_source"`
}

// ParseFunctionLabel splits a function label of the form
// "Mod.Sub.fun/arity" into its module, function and arity parts.
//
// Description:
//
//	Graph stores label function-level nodes with a dotted module path,
//	a function name and an arity ("Foo.Bar.baz/2"). Labels without a
//	module prefix ("baz/2") yield an empty module. Labels without an
//	arity suffix yield arity -1 so callers can distinguish "no arity"
//	from "/0".
//
// Inputs:
//
//	label - The raw node label.
//
// Outputs:
//
//	module - Dotted module path, may be empty.
//	function - Function name, empty if the label is unparseable.
//	arity - Declared arity, -1 when absent or malformed.
func ParseFunctionLabel(label string) (module, function string, arity int) {
	arity = -1

	name := label
	if idx := strings.LastIndex(label, "/"); idx >= 0 {
		name = label[:idx]
		if n, err := strconv.Atoi(label[idx+1:]); err == nil && n >= 0 {
			arity = n
		}
	}
	if name == "" {
		return "", "", arity
	}

	if idx := strings.LastIndex(name, "."); idx >= 0 {
		module = name[:idx]
		function = name[idx+1:]
	} else {
		function = name
	}
	return module, function, arity
}
