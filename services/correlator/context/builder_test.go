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
	"testing"

	"github.com/AleutianAI/AleutianScope/services/correlator/cpg"
)

// fakeProvider implements cpg.Provider for builder tests.
type fakeProvider struct {
	functions map[string]*cpg.Node // nodeID -> enclosing function node
	err       error
	calls     int
}

func (p *fakeProvider) LookupByIdentifier(ctx context.Context, identifier string) ([]*cpg.Node, error) {
	return nil, cpg.ErrNodeNotFound
}

func (p *fakeProvider) LookupEnclosingFunction(ctx context.Context, nodeID string) (*cpg.Node, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	fn, ok := p.functions[nodeID]
	if !ok {
		return nil, cpg.ErrNodeNotFound
	}
	return fn, nil
}

func TestParseFunctionLabel(t *testing.T) {
	tests := []struct {
		label    string
		module   string
		function string
		arity    int
	}{
		{"Foo.foo/2", "Foo", "foo", 2},
		{"Foo.Bar.baz/0", "Foo.Bar", "baz", 0},
		{"handle_call/3", "", "handle_call", 3},
		{"Foo.init", "Foo", "init", -1},
		{"run", "", "run", -1},
		{"Foo.foo/x", "Foo", "foo", -1},
		{"", "", "", -1},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			module, function, arity := ParseFunctionLabel(tt.label)
			if module != tt.module || function != tt.function || arity != tt.arity {
				t.Errorf("ParseFunctionLabel(%q) = (%q, %q, %d), want (%q, %q, %d)",
					tt.label, module, function, arity, tt.module, tt.function, tt.arity)
			}
		})
	}
}

func TestBuilder_Build(t *testing.T) {
	ctx := context.Background()

	callNode := &cpg.Node{
		ID:             "n42",
		Kind:           cpg.NodeKindCall,
		Label:          "foo/2",
		Properties:     map[string]string{"callee": "foo"},
		FunctionNodeID: "f1",
		FilePath:       "lib/foo.ex",
		Line:           10,
	}
	fnNode := &cpg.Node{
		ID:       "f1",
		Kind:     cpg.NodeKindFunction,
		Label:    "Foo.foo/2",
		FilePath: "lib/foo.ex",
		Line:     8,
	}

	t.Run("full enrichment", func(t *testing.T) {
		p := &fakeProvider{functions: map[string]*cpg.Node{"n42": fnNode}}
		b := NewBuilder(p, nil)

		ac, err := b.Build(ctx, "n42", callNode)
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if ac.CPGNodeID != "n42" {
			t.Errorf("CPGNodeID = %q, want n42", ac.CPGNodeID)
		}
		if ac.NodeKind != cpg.NodeKindCall {
			t.Errorf("NodeKind = %v, want call", ac.NodeKind)
		}
		if ac.ModuleName != "Foo" || ac.FunctionName != "foo" || ac.Arity != 2 {
			t.Errorf("MFA = (%q, %q, %d), want (Foo, foo, 2)", ac.ModuleName, ac.FunctionName, ac.Arity)
		}
		if ac.SourcePath != "lib/foo.ex" || ac.LineNumber != 10 {
			t.Errorf("location = %s:%d, want lib/foo.ex:10", ac.SourcePath, ac.LineNumber)
		}
		if p.calls != 1 {
			t.Errorf("enclosing function looked up %d times, want 1", p.calls)
		}
	})

	t.Run("missing enclosing function keeps context valid", func(t *testing.T) {
		p := &fakeProvider{functions: map[string]*cpg.Node{}}
		b := NewBuilder(p, nil)

		ac, err := b.Build(ctx, "n42", callNode)
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if ac.FunctionName != "" || ac.ModuleName != "" {
			t.Errorf("expected empty function fields, got (%q, %q)", ac.ModuleName, ac.FunctionName)
		}
		if ac.Arity != -1 {
			t.Errorf("Arity = %d, want -1", ac.Arity)
		}
		if ac.CPGNodeID != "n42" || ac.LineNumber != 10 {
			t.Error("node fields must survive a missing enclosing function")
		}
	})

	t.Run("provider failure on enclosing lookup is non-fatal", func(t *testing.T) {
		p := &fakeProvider{err: errors.New("store unavailable")}
		b := NewBuilder(p, nil)

		ac, err := b.Build(ctx, "n42", callNode)
		if err != nil {
			t.Fatalf("Build should not fail for degraded enrichment: %v", err)
		}
		if ac.FunctionName != "" {
			t.Errorf("expected empty FunctionName, got %q", ac.FunctionName)
		}
	})

	t.Run("top-level node skips the lookup", func(t *testing.T) {
		p := &fakeProvider{}
		b := NewBuilder(p, nil)
		top := &cpg.Node{ID: "m1", Kind: cpg.NodeKindModule, Label: "Foo", FilePath: "lib/foo.ex", Line: 1}

		ac, err := b.Build(ctx, "m1", top)
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if p.calls != 0 {
			t.Errorf("expected no provider call for top-level node, got %d", p.calls)
		}
		if ac.FunctionNodeID != "" {
			t.Errorf("FunctionNodeID = %q, want empty", ac.FunctionNodeID)
		}
	})

	t.Run("nil node", func(t *testing.T) {
		b := NewBuilder(&fakeProvider{}, nil)
		if _, err := b.Build(ctx, "x", nil); !errors.Is(err, cpg.ErrNodeNotFound) {
			t.Errorf("expected ErrNodeNotFound, got %v", err)
		}
	})

	t.Run("properties are copied not aliased", func(t *testing.T) {
		p := &fakeProvider{functions: map[string]*cpg.Node{"n42": fnNode}}
		b := NewBuilder(p, nil)

		ac, err := b.Build(ctx, "n42", callNode)
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		ac.Properties["callee"] = "mutated"
		if callNode.Properties["callee"] != "foo" {
			t.Error("context mutation leaked into the provider's node")
		}
	})
}
