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
	"context"
	"errors"
	"sync"
	"testing"
)

// openTestStore opens an in-memory store and registers cleanup.
func openTestStore(t *testing.T) *NodeStore {
	t.Helper()
	store, err := OpenStore(InMemoryStoreConfig())
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOpenStore(t *testing.T) {
	t.Run("persistent requires path", func(t *testing.T) {
		_, err := OpenStore(StoreConfig{})
		if err == nil {
			t.Fatal("expected error for missing path")
		}
	})

	t.Run("persistent store at temp dir", func(t *testing.T) {
		cfg := DefaultStoreConfig()
		cfg.Path = t.TempDir()
		store, err := OpenStore(cfg)
		if err != nil {
			t.Fatalf("OpenStore failed: %v", err)
		}
		if err := store.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
}

func TestNodeStore_PutAndLookup(t *testing.T) {
	ctx := context.Background()

	t.Run("lookup by node id", func(t *testing.T) {
		store := openTestStore(t)
		node := &Node{
			ID:       "n42",
			Kind:     NodeKindCall,
			Label:    "foo/2",
			FilePath: "lib/foo.ex",
			Line:     10,
		}
		if err := store.PutNode(ctx, node); err != nil {
			t.Fatalf("PutNode failed: %v", err)
		}

		nodes, err := store.LookupByIdentifier(ctx, "n42")
		if err != nil {
			t.Fatalf("LookupByIdentifier failed: %v", err)
		}
		if len(nodes) != 1 {
			t.Fatalf("got %d nodes, want 1", len(nodes))
		}
		if nodes[0].Label != "foo/2" || nodes[0].Kind != NodeKindCall {
			t.Errorf("unexpected node: %v", nodes[0])
		}
	})

	t.Run("lookup by structural_id property", func(t *testing.T) {
		store := openTestStore(t)
		node := &Node{
			ID:         "node-77",
			Kind:       NodeKindBranch,
			Label:      "case",
			Properties: map[string]string{"structural_id": "s:case:77"},
			Line:       4,
		}
		if err := store.PutNode(ctx, node); err != nil {
			t.Fatalf("PutNode failed: %v", err)
		}

		nodes, err := store.LookupByIdentifier(ctx, "s:case:77")
		if err != nil {
			t.Fatalf("LookupByIdentifier failed: %v", err)
		}
		if len(nodes) != 1 || nodes[0].ID != "node-77" {
			t.Errorf("unexpected result: %v", nodes)
		}
	})

	t.Run("multiple nodes share an identifier", func(t *testing.T) {
		store := openTestStore(t)
		for _, n := range []*Node{
			{ID: "a1", Kind: NodeKindCall, Properties: map[string]string{"structural_id": "shared"}, ScopeDepth: 1, Line: 5},
			{ID: "a2", Kind: NodeKindCall, Properties: map[string]string{"structural_id": "shared"}, ScopeDepth: 3, Line: 20},
		} {
			if err := store.PutNode(ctx, n); err != nil {
				t.Fatalf("PutNode failed: %v", err)
			}
		}

		nodes, err := store.LookupByIdentifier(ctx, "shared")
		if err != nil {
			t.Fatalf("LookupByIdentifier failed: %v", err)
		}
		if len(nodes) != 2 {
			t.Fatalf("got %d nodes, want 2", len(nodes))
		}
	})

	t.Run("replace is wholesale", func(t *testing.T) {
		store := openTestStore(t)
		if err := store.PutNode(ctx, &Node{ID: "n1", Kind: NodeKindCall, Label: "old"}); err != nil {
			t.Fatalf("PutNode failed: %v", err)
		}
		if err := store.PutNode(ctx, &Node{ID: "n1", Kind: NodeKindCall, Label: "new"}); err != nil {
			t.Fatalf("PutNode replace failed: %v", err)
		}

		nodes, err := store.LookupByIdentifier(ctx, "n1")
		if err != nil {
			t.Fatalf("LookupByIdentifier failed: %v", err)
		}
		if len(nodes) != 1 || nodes[0].Label != "new" {
			t.Errorf("expected replaced node, got %v", nodes)
		}
	})

	t.Run("unknown identifier returns ErrNodeNotFound", func(t *testing.T) {
		store := openTestStore(t)
		_, err := store.LookupByIdentifier(ctx, "ghost")
		if !errors.Is(err, ErrNodeNotFound) {
			t.Errorf("expected ErrNodeNotFound, got %v", err)
		}
	})

	t.Run("invalid node rejected", func(t *testing.T) {
		store := openTestStore(t)
		if err := store.PutNode(ctx, nil); !errors.Is(err, ErrInvalidNode) {
			t.Errorf("expected ErrInvalidNode for nil, got %v", err)
		}
		if err := store.PutNode(ctx, &Node{Kind: NodeKindCall}); !errors.Is(err, ErrInvalidNode) {
			t.Errorf("expected ErrInvalidNode for missing id, got %v", err)
		}
	})
}

func TestNodeStore_LookupEnclosingFunction(t *testing.T) {
	ctx := context.Background()

	t.Run("resolves one hop", func(t *testing.T) {
		store := openTestStore(t)
		fn := &Node{ID: "f1", Kind: NodeKindFunction, Label: "Foo.foo/2", FilePath: "lib/foo.ex", Line: 8}
		call := &Node{ID: "n42", Kind: NodeKindCall, Label: "foo/2", FunctionNodeID: "f1", FilePath: "lib/foo.ex", Line: 10}
		for _, n := range []*Node{fn, call} {
			if err := store.PutNode(ctx, n); err != nil {
				t.Fatalf("PutNode failed: %v", err)
			}
		}

		got, err := store.LookupEnclosingFunction(ctx, "n42")
		if err != nil {
			t.Fatalf("LookupEnclosingFunction failed: %v", err)
		}
		if got.ID != "f1" || got.Label != "Foo.foo/2" {
			t.Errorf("unexpected function node: %v", got)
		}
	})

	t.Run("top-level node has no enclosing function", func(t *testing.T) {
		store := openTestStore(t)
		if err := store.PutNode(ctx, &Node{ID: "m1", Kind: NodeKindModule, Label: "Foo"}); err != nil {
			t.Fatalf("PutNode failed: %v", err)
		}

		_, err := store.LookupEnclosingFunction(ctx, "m1")
		if !errors.Is(err, ErrNodeNotFound) {
			t.Errorf("expected ErrNodeNotFound, got %v", err)
		}
	})

	t.Run("missing node", func(t *testing.T) {
		store := openTestStore(t)
		_, err := store.LookupEnclosingFunction(ctx, "ghost")
		if !errors.Is(err, ErrNodeNotFound) {
			t.Errorf("expected ErrNodeNotFound, got %v", err)
		}
	})
}

func TestNodeStore_Closed(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := store.PutNode(ctx, &Node{ID: "n1"}); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("PutNode after close: expected ErrStoreClosed, got %v", err)
	}
	if _, err := store.LookupByIdentifier(ctx, "n1"); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("LookupByIdentifier after close: expected ErrStoreClosed, got %v", err)
	}
	if _, err := store.LookupEnclosingFunction(ctx, "n1"); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("LookupEnclosingFunction after close: expected ErrStoreClosed, got %v", err)
	}

	// Double close is a no-op
	if err := store.Close(); err != nil {
		t.Errorf("second Close should be nil, got %v", err)
	}
}

func TestNodeStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	fn := &Node{ID: "f1", Kind: NodeKindFunction, Label: "Mod.run/0"}
	if err := store.PutNode(ctx, fn); err != nil {
		t.Fatalf("PutNode failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			node := &Node{
				ID:             "n" + string(rune('a'+i%26)),
				Kind:           NodeKindCall,
				FunctionNodeID: "f1",
				Line:           i,
			}
			if err := store.PutNode(ctx, node); err != nil && !errors.Is(err, ErrStoreClosed) {
				// Badger may report transaction conflicts under contention;
				// those surface as wrapped errors, not data corruption.
				t.Logf("PutNode: %v", err)
			}
		}(i)
		go func() {
			defer wg.Done()
			_, err := store.LookupByIdentifier(ctx, "f1")
			if err != nil && !errors.Is(err, ErrNodeNotFound) {
				t.Errorf("LookupByIdentifier: %v", err)
			}
		}()
	}
	wg.Wait()
}
