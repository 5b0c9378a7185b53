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

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNodeKindFromString(t *testing.T) {
	tests := []struct {
		input   string
		want    NodeKind
		wantErr bool
	}{
		{"call", NodeKindCall, false},
		{":call", NodeKindCall, false},
		{"branch", NodeKindBranch, false},
		{":branch", NodeKindBranch, false},
		{"declaration", NodeKindDeclaration, false},
		{"function", NodeKindFunction, false},
		{"module", NodeKindModule, false},
		{"literal", NodeKindLiteral, false},
		{"return", NodeKindReturn, false},
		{"", NodeKindUnknown, true},
		{"jump_table", NodeKindUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := NodeKindFromString(tt.input)
			if got != tt.want {
				t.Errorf("NodeKindFromString(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownNodeKind) {
					t.Errorf("NodeKindFromString(%q) err = %v, want ErrUnknownNodeKind", tt.input, err)
				}
			} else if err != nil {
				t.Errorf("NodeKindFromString(%q) err = %v, want nil", tt.input, err)
			}
		})
	}
}

func TestNodeKind_RoundTrip(t *testing.T) {
	for kind := range nodeKindNames {
		got, err := NodeKindFromString(kind.String())
		if err != nil {
			t.Errorf("round trip for %v failed: %v", kind, err)
			continue
		}
		if got != kind {
			t.Errorf("round trip for %v yielded %v", kind, got)
		}
	}
}

func TestNodeKind_JSON(t *testing.T) {
	node := Node{ID: "n1", Kind: NodeKindBranch, Label: "if", Line: 3}

	data, err := json.Marshal(node)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Node
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Kind != NodeKindBranch {
		t.Errorf("Kind = %v, want %v", decoded.Kind, NodeKindBranch)
	}
}

// TestNodeKind_JSON_UnknownLabel verifies stored nodes with labels no
// longer recognized decode as unknown instead of failing.
func TestNodeKind_JSON_UnknownLabel(t *testing.T) {
	var decoded Node
	if err := json.Unmarshal([]byte(`{"id":"n1","kind":"jump_table"}`), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Kind != NodeKindUnknown {
		t.Errorf("Kind = %v, want %v", decoded.Kind, NodeKindUnknown)
	}
}

func TestSelectBestMatch(t *testing.T) {
	t.Run("empty candidates", func(t *testing.T) {
		if got := SelectBestMatch(nil); got != nil {
			t.Errorf("expected nil, got %v", got)
		}
		if got := SelectBestMatch([]*Node{nil, nil}); got != nil {
			t.Errorf("expected nil for all-nil candidates, got %v", got)
		}
	})

	t.Run("single candidate", func(t *testing.T) {
		n := &Node{ID: "n1", ScopeDepth: 0, Line: 10}
		if got := SelectBestMatch([]*Node{n}); got != n {
			t.Errorf("expected n1, got %v", got)
		}
	})

	t.Run("deepest scope wins", func(t *testing.T) {
		shallow := &Node{ID: "outer", ScopeDepth: 1, Line: 5}
		deep := &Node{ID: "inner", ScopeDepth: 3, Line: 50}

		got := SelectBestMatch([]*Node{shallow, deep})
		if got != deep {
			t.Errorf("expected inner (depth 3), got %v", got)
		}

		// Order must not matter
		got = SelectBestMatch([]*Node{deep, shallow})
		if got != deep {
			t.Errorf("expected inner regardless of order, got %v", got)
		}
	})

	t.Run("tie broken by earliest line", func(t *testing.T) {
		late := &Node{ID: "late", ScopeDepth: 2, Line: 40}
		early := &Node{ID: "early", ScopeDepth: 2, Line: 12}

		got := SelectBestMatch([]*Node{late, early})
		if got != early {
			t.Errorf("expected early (line 12), got %v", got)
		}
	})

	t.Run("nils interleaved", func(t *testing.T) {
		n := &Node{ID: "n1", ScopeDepth: 0, Line: 1}
		got := SelectBestMatch([]*Node{nil, n, nil})
		if got != n {
			t.Errorf("expected n1, got %v", got)
		}
	})
}
