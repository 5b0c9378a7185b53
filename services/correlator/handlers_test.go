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
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	astctx "github.com/AleutianAI/AleutianScope/services/correlator/context"
	"github.com/AleutianAI/AleutianScope/services/correlator/cpg"
)

// newTestRouter wires a service and handlers into a Gin engine.
func newTestRouter(t *testing.T, provider cpg.Provider, store *cpg.NodeStore) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc, err := NewService(provider, DefaultServiceConfig())
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })

	router := gin.New()
	v1 := router.Group("/v1")
	RegisterRoutes(v1, NewHandlers(svc, store))
	return router
}

func postJSON(t *testing.T, router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleCorrelate(t *testing.T) {
	router := newTestRouter(t, newTestProvider(), nil)

	t.Run("resolves event", func(t *testing.T) {
		w := postJSON(t, router, "/v1/scope/correlate", CorrelateRequest{
			StructuralID:   "sid-call",
			TimestampMilli: 1700000000000,
		})
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
		}

		var resolved astctx.AstContext
		if err := json.Unmarshal(w.Body.Bytes(), &resolved); err != nil {
			t.Fatalf("unmarshal response: %v", err)
		}
		if resolved.CPGNodeID != "n42" {
			t.Errorf("cpg_node_id = %q, want n42", resolved.CPGNodeID)
		}
		if resolved.FunctionName != "foo" || resolved.Arity != 2 {
			t.Errorf("function = %q/%d, want foo/2", resolved.FunctionName, resolved.Arity)
		}
	})

	t.Run("unknown identifier", func(t *testing.T) {
		w := postJSON(t, router, "/v1/scope/correlate", CorrelateRequest{
			StructuralID:   "sid-missing",
			TimestampMilli: 1700000000000,
		})
		if w.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404: %s", w.Code, w.Body.String())
		}

		var errResp ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
			t.Fatalf("unmarshal response: %v", err)
		}
		if errResp.Code != "NOT_FOUND" {
			t.Errorf("code = %q, want NOT_FOUND", errResp.Code)
		}
	})

	t.Run("missing timestamp", func(t *testing.T) {
		w := postJSON(t, router, "/v1/scope/correlate", map[string]any{
			"structural_id": "sid-call",
		})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400: %s", w.Code, w.Body.String())
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/scope/correlate", bytes.NewBufferString("{"))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
	})
}

func TestHandleEnhance(t *testing.T) {
	router := newTestRouter(t, newTestProvider(), nil)

	t.Run("unresolvable event returns null context", func(t *testing.T) {
		w := postJSON(t, router, "/v1/scope/enhance", CorrelateRequest{
			StructuralID:   "sid-missing",
			TimestampMilli: 1700000000000,
		})
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
		}

		var enhanced EnhancedEvent
		if err := json.Unmarshal(w.Body.Bytes(), &enhanced); err != nil {
			t.Fatalf("unmarshal response: %v", err)
		}
		if enhanced.Context != nil {
			t.Error("expected null ast_context")
		}
		if enhanced.Event == nil || enhanced.Event.StructuralID != "sid-missing" {
			t.Error("original event must be preserved")
		}
	})
}

func TestHandleTrace(t *testing.T) {
	provider := traceProvider(3)
	delete(provider.nodes, "sid-1")
	router := newTestRouter(t, provider, nil)

	w := postJSON(t, router, "/v1/scope/trace", TraceRequest{
		Events: []CorrelateRequest{
			{StructuralID: "sid-0", TimestampMilli: 10},
			{StructuralID: "sid-1", TimestampMilli: 20},
			{StructuralID: "sid-2", TimestampMilli: 15},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var trace ExecutionTrace
	if err := json.Unmarshal(w.Body.Bytes(), &trace); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(trace.Events) != 3 {
		t.Fatalf("len(events) = %d, want 3", len(trace.Events))
	}
	if len(trace.CPGPathTaken) != 2 {
		t.Fatalf("len(cpg_path_taken) = %d, want 2", len(trace.CPGPathTaken))
	}
	if !trace.Metadata.Partial || trace.Metadata.UnresolvedEvents != 1 {
		t.Errorf("metadata = %+v, want partial with 1 unresolved", trace.Metadata)
	}
}

func TestHandleNode(t *testing.T) {
	router := newTestRouter(t, newTestProvider(), nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/scope/node/sid-call", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var node cpg.Node
	if err := json.Unmarshal(w.Body.Bytes(), &node); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if node.ID != "n42" {
		t.Errorf("node.id = %q, want n42", node.ID)
	}
}

func TestHandleIngest(t *testing.T) {
	t.Run("without writable store", func(t *testing.T) {
		router := newTestRouter(t, newTestProvider(), nil)
		w := postJSON(t, router, "/v1/scope/nodes", IngestRequest{
			Nodes: []IngestNodeRequest{{ID: "n1", Kind: "call"}},
		})
		if w.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", w.Code)
		}
	})

	t.Run("ingest then correlate", func(t *testing.T) {
		store, err := cpg.OpenStore(cpg.InMemoryStoreConfig())
		if err != nil {
			t.Fatalf("OpenStore failed: %v", err)
		}
		t.Cleanup(func() { _ = store.Close() })

		router := newTestRouter(t, store, store)

		w := postJSON(t, router, "/v1/scope/nodes", IngestRequest{
			Nodes: []IngestNodeRequest{
				{
					ID:       "n100",
					Kind:     "call",
					Label:    "bar/1",
					FilePath: "lib/bar.ex",
					Line:     4,
				},
			},
		})
		if w.Code != http.StatusOK {
			t.Fatalf("ingest status = %d, want 200: %s", w.Code, w.Body.String())
		}

		var resp IngestResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal response: %v", err)
		}
		if resp.NodesStored != 1 {
			t.Errorf("nodes_stored = %d, want 1", resp.NodesStored)
		}

		w = postJSON(t, router, "/v1/scope/correlate", CorrelateRequest{
			StructuralID:   "n100",
			TimestampMilli: 1700000000000,
		})
		if w.Code != http.StatusOK {
			t.Fatalf("correlate status = %d, want 200: %s", w.Code, w.Body.String())
		}
	})

	t.Run("unknown node kind", func(t *testing.T) {
		store, err := cpg.OpenStore(cpg.InMemoryStoreConfig())
		if err != nil {
			t.Fatalf("OpenStore failed: %v", err)
		}
		t.Cleanup(func() { _ = store.Close() })

		router := newTestRouter(t, store, store)
		w := postJSON(t, router, "/v1/scope/nodes", IngestRequest{
			Nodes: []IngestNodeRequest{{ID: "n1", Kind: "widget"}},
		})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400: %s", w.Code, w.Body.String())
		}
	})
}

func TestHandleStats(t *testing.T) {
	router := newTestRouter(t, newTestProvider(), nil)

	postJSON(t, router, "/v1/scope/correlate", CorrelateRequest{
		StructuralID:   "sid-call",
		TimestampMilli: 1700000000000,
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/scope/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp StatsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Correlation.LookupsAttempted != 1 {
		t.Errorf("lookups_attempted = %d, want 1", resp.Correlation.LookupsAttempted)
	}
}

func TestHandleClearCaches(t *testing.T) {
	router := newTestRouter(t, newTestProvider(), nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/scope/cache/clear", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	router := newTestRouter(t, newTestProvider(), nil)

	for _, path := range []string{"/v1/scope/health", "/v1/scope/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, w.Code)
		}
	}
}
