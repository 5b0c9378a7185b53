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
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianScope/services/correlator/cpg"
)

// Handlers contains the HTTP handlers for the correlator service.
//
// Thread Safety: Handlers is safe for concurrent use.
type Handlers struct {
	svc *Service

	// store is the writable node store for ingest. Nil when the service
	// runs against a read-only provider.
	store *cpg.NodeStore
}

var registerValidationsOnce sync.Once

// registerValidations installs custom binding validators.
//
// "nodekind" accepts the textual node kinds understood by the graph,
// with or without a leading colon.
func registerValidations() {
	registerValidationsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("nodekind", func(fl validator.FieldLevel) bool {
			_, err := cpg.NodeKindFromString(fl.Field().String())
			return err == nil
		})
	})
}

// NewHandlers creates handlers for the correlator service.
//
// Inputs:
//
//	svc - The correlator service. Must not be nil.
//	store - Optional writable node store enabling the ingest endpoint.
//
// Outputs:
//
//	*Handlers - The configured handlers.
func NewHandlers(svc *Service, store *cpg.NodeStore) *Handlers {
	registerValidations()
	return &Handlers{
		svc:   svc,
		store: store,
	}
}

// HandleCorrelate handles POST /v1/scope/correlate.
//
// Description:
//
//	Resolves a single runtime event to its AST context.
//
// Request Body:
//
//	CorrelateRequest
//
// Response:
//
//	200 OK: AstContext
//	400 Bad Request: Validation error
//	404 Not Found: No graph node for the event
//	502 Bad Gateway: Graph store failure
//	504 Gateway Timeout: Lookup deadline exceeded
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleCorrelate(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleCorrelate")

	var req CorrelateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	resolved, err := h.svc.Correlate(c.Request.Context(), req.Event())
	if err != nil {
		h.writeCorrelationError(c, logger, err)
		return
	}

	c.JSON(http.StatusOK, resolved)
}

// HandleEnhance handles POST /v1/scope/enhance.
//
// Description:
//
//	Pairs a runtime event with its resolved context. Unresolvable
//	events come back with a null ast_context instead of an error.
//
// Request Body:
//
//	CorrelateRequest
//
// Response:
//
//	200 OK: EnhancedEvent
//	400 Bad Request: Validation error
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleEnhance(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleEnhance")

	var req CorrelateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	enhanced, err := h.svc.Enhance(c.Request.Context(), req.Event())
	if err != nil {
		h.writeCorrelationError(c, logger, err)
		return
	}

	c.JSON(http.StatusOK, enhanced)
}

// HandleTrace handles POST /v1/scope/trace.
//
// Description:
//
//	Builds an execution trace from a batch of events. Events that
//	cannot be resolved stay in the trace without context and mark it
//	partial; the endpoint itself only fails on malformed input.
//
// Request Body:
//
//	TraceRequest
//
// Response:
//
//	200 OK: ExecutionTrace
//	400 Bad Request: Validation error
//	503 Service Unavailable: Service closed
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleTrace(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleTrace")

	var req TraceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	events := make([]*RuntimeEvent, len(req.Events))
	for i := range req.Events {
		events[i] = req.Events[i].Event()
	}

	trace, err := h.svc.BuildTrace(c.Request.Context(), events)
	if err != nil {
		h.writeCorrelationError(c, logger, err)
		return
	}

	logger.Info("Trace built",
		"trace_id", trace.TraceID,
		"events", len(trace.Events),
		"unresolved", trace.Metadata.UnresolvedEvents)

	c.JSON(http.StatusOK, trace)
}

// HandleNode handles GET /v1/scope/node/:id.
//
// Description:
//
//	Looks up the best-matching graph node for a structural identifier,
//	bypassing the context cache.
//
// Response:
//
//	200 OK: cpg.Node
//	404 Not Found: No node for the identifier
//	502 Bad Gateway: Graph store failure
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleNode(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleNode")

	structuralID := c.Param("id")
	if structuralID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "structural id is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}

	node, err := h.svc.GetNodeFor(c.Request.Context(), structuralID)
	if err != nil {
		h.writeCorrelationError(c, logger, err)
		return
	}

	c.JSON(http.StatusOK, node)
}

// HandleIngest handles POST /v1/scope/nodes.
//
// Description:
//
//	Stores a batch of graph nodes, replacing any previous nodes with
//	the same IDs, and drops cached contexts so subsequent lookups see
//	the new graph.
//
// Request Body:
//
//	IngestRequest
//
// Response:
//
//	200 OK: IngestResponse
//	400 Bad Request: Validation error
//	404 Not Found: Service runs without a writable store
//	500 Internal Server Error: Store write failure
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleIngest(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleIngest")

	if h.store == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "node ingest is not enabled",
			Code:  "INGEST_DISABLED",
		})
		return
	}

	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Code:    "INVALID_REQUEST",
			Details: err.Error(),
		})
		return
	}

	stored := 0
	for i := range req.Nodes {
		nodeReq := &req.Nodes[i]
		kind, err := cpg.NodeKindFromString(nodeReq.Kind)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "unknown node kind",
				Code:    "INVALID_NODE_KIND",
				Details: nodeReq.Kind,
			})
			return
		}

		node := &cpg.Node{
			ID:             nodeReq.ID,
			Kind:           kind,
			Label:          nodeReq.Label,
			Properties:     nodeReq.Properties,
			FunctionNodeID: nodeReq.FunctionNodeID,
			FilePath:       nodeReq.FilePath,
			Line:           nodeReq.Line,
			ScopeDepth:     nodeReq.ScopeDepth,
		}
		if err := h.store.PutNode(c.Request.Context(), node); err != nil {
			logger.Error("Failed to store node", "node_id", node.ID, "error", err)
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "failed to store node",
				Code:    "STORE_ERROR",
				Details: node.ID,
			})
			return
		}
		stored++
	}

	// Cached contexts may reference replaced nodes.
	h.svc.ClearCaches()

	logger.Info("Nodes ingested", "count", stored)
	c.JSON(http.StatusOK, IngestResponse{NodesStored: stored})
}

// HandleStats handles GET /v1/scope/stats.
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleStats(c *gin.Context) {
	stats := h.svc.GetStats()
	c.JSON(http.StatusOK, StatsResponse{
		Correlation:  stats,
		CacheHitRate: stats.HitRate(),
		Cache:        h.svc.CacheStats(),
	})
}

// HandleClearCaches handles POST /v1/scope/cache/clear.
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleClearCaches(c *gin.Context) {
	h.svc.ClearCaches()
	c.Status(http.StatusNoContent)
}

// HandleHealth handles GET /v1/scope/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleReady handles GET /v1/scope/ready.
//
// Ready means the service accepts lookups; a closed service is not
// ready.
func (h *Handlers) HandleReady(c *gin.Context) {
	if h.svc.closed.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "closed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// writeCorrelationError maps service errors to HTTP responses.
func (h *Handlers) writeCorrelationError(c *gin.Context, logger *slog.Logger, err error) {
	statusCode := http.StatusInternalServerError
	errCode := "CORRELATION_ERROR"

	switch {
	case errors.Is(err, ErrInvalidEvent):
		statusCode = http.StatusBadRequest
		errCode = "INVALID_EVENT"
	case errors.Is(err, ErrNotFound):
		statusCode = http.StatusNotFound
		errCode = "NOT_FOUND"
	case errors.Is(err, ErrLookupTimeout):
		statusCode = http.StatusGatewayTimeout
		errCode = "LOOKUP_TIMEOUT"
	case errors.Is(err, ErrServiceClosed):
		statusCode = http.StatusServiceUnavailable
		errCode = "SERVICE_CLOSED"
	default:
		var providerErr *ErrProviderFailure
		if errors.As(err, &providerErr) {
			statusCode = http.StatusBadGateway
			errCode = "PROVIDER_ERROR"
		}
	}

	if statusCode >= http.StatusInternalServerError {
		logger.Error("Correlation failed", "error", err)
	}

	c.JSON(statusCode, ErrorResponse{
		Error: err.Error(),
		Code:  errCode,
	})
}

// getOrCreateRequestID returns the request ID, generating one if absent.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
