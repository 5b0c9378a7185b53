// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cpg defines the static code-property-graph node model and the
// provider contract the correlator consumes.
//
// The correlator never builds or walks the graph itself. It issues point
// lookups (node by structural identifier, enclosing function by node ID)
// against a Provider and treats the returned nodes as read-only snapshots.
//
// Design principles:
//   - Timestamps as int64 UnixMilli per project conventions
//   - Concrete types only; the property bag is map[string]string
//   - Nodes are immutable once returned by a Provider
package cpg

import "fmt"

// NodeKind classifies the program construct a graph node represents.
//
// Kinds mirror the node labels used by the graph store. Constructs that
// do not map to a known kind are reported as NodeKindUnknown rather
// than dropped.
type NodeKind int

const (
	// NodeKindUnknown indicates an unrecognized node label.
	NodeKindUnknown NodeKind = iota

	// NodeKindCall represents a function or method invocation site.
	NodeKindCall

	// NodeKindBranch represents a conditional branch point.
	NodeKindBranch

	// NodeKindDeclaration represents a variable or constant declaration.
	NodeKindDeclaration

	// NodeKindFunction represents a function-level node. Enclosing
	// function lookups resolve to nodes of this kind.
	NodeKindFunction

	// NodeKindModule represents a module or package-level node.
	NodeKindModule

	// NodeKindLiteral represents a literal value in an expression.
	NodeKindLiteral

	// NodeKindReturn represents a return site.
	NodeKindReturn
)

// nodeKindNames maps NodeKind values to their string representations.
var nodeKindNames = map[NodeKind]string{
	NodeKindUnknown:     "unknown",
	NodeKindCall:        "call",
	NodeKindBranch:      "branch",
	NodeKindDeclaration: "declaration",
	NodeKindFunction:    "function",
	NodeKindModule:      "module",
	NodeKindLiteral:     "literal",
	NodeKindReturn:      "return",
}

// String returns the string representation of the NodeKind.
func (k NodeKind) String() string {
	if name, ok := nodeKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// NodeKindFromString parses a node kind label into a NodeKind.
//
// Parsing is tolerant of the leading colon used by some graph stores
// (":call" == "call"). Unrecognized labels return NodeKindUnknown with
// ErrUnknownNodeKind so ingest validation can reject them.
func NodeKindFromString(s string) (NodeKind, error) {
	if len(s) > 0 && s[0] == ':' {
		s = s[1:]
	}
	for kind, name := range nodeKindNames {
		if name == s {
			return kind, nil
		}
	}
	return NodeKindUnknown, fmt.Errorf("%w: %q", ErrUnknownNodeKind, s)
}

// MarshalText implements encoding.TextMarshaler so NodeKind renders as
// its label in JSON payloads.
func (k NodeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
//
// Decoding stays tolerant: labels stored before a kind was recognized
// decode as NodeKindUnknown instead of failing the whole node.
func (k *NodeKind) UnmarshalText(text []byte) error {
	kind, err := NodeKindFromString(string(text))
	if err != nil {
		*k = NodeKindUnknown
		return nil
	}
	*k = kind
	return nil
}

// Node is a read-only snapshot of a static graph node as of fetch time.
//
// The correlator does not cache graph topology, only the contexts it
// derives from nodes. A Node MUST NOT be mutated after a Provider
// returns it; concurrent readers rely on that.
type Node struct {
	// ID is the node's stable identifier in the graph store.
	ID string `json:"id"`

	// Kind classifies the construct (call, branch, declaration, ...).
	Kind NodeKind `json:"kind"`

	// Label is the display label, e.g. "foo/2" for a call node or
	// "Foo.foo/2" for a function node.
	Label string `json:"label"`

	// Properties is the node's unordered property bag.
	// May be nil when the store recorded no extra properties.
	Properties map[string]string `json:"properties,omitempty"`

	// FunctionNodeID is the identifier of the enclosing function-level
	// node. Empty when the node is itself top-level.
	FunctionNodeID string `json:"function_node_id,omitempty"`

	// FilePath is the source file the node was extracted from,
	// relative to the project root.
	FilePath string `json:"file_path"`

	// Line is the 1-indexed source line of the construct.
	Line int `json:"line"`

	// ScopeDepth is the lexical nesting depth of the node's scope.
	// Zero is module level. Used to disambiguate multi-match lookups:
	// deeper scope wins.
	ScopeDepth int `json:"scope_depth"`
}

// String returns a compact human-readable representation of the node.
//
// Format: "id(kind label @ file:line)"
func (n *Node) String() string {
	return fmt.Sprintf("%s(%s %s @ %s:%d)", n.ID, n.Kind, n.Label, n.FilePath, n.Line)
}

// SelectBestMatch picks one node from a multi-match lookup result.
//
// Description:
//
//	When the graph store reports several nodes for one structural
//	identifier, the most specific (deepest lexical scope) node wins.
//	Ties break toward the earliest declared source line, which keeps
//	selection deterministic for stores that return candidates in
//	arbitrary order.
//
// Inputs:
//
//	candidates - Candidate nodes. May be empty or contain nils.
//
// Outputs:
//
//	*Node - The selected node, or nil if candidates held no usable node.
func SelectBestMatch(candidates []*Node) *Node {
	var best *Node
	for _, c := range candidates {
		if c == nil {
			continue
		}
		if best == nil {
			best = c
			continue
		}
		if c.ScopeDepth > best.ScopeDepth {
			best = c
			continue
		}
		if c.ScopeDepth == best.ScopeDepth && c.Line < best.Line {
			best = c
		}
	}
	return best
}
