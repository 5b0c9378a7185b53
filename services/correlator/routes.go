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
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all correlator routes with the router.
//
// Description:
//
//	Registers all /v1/scope/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	POST /v1/scope/correlate - Resolve one event to its AST context
//	POST /v1/scope/enhance - Pair one event with its context
//	POST /v1/scope/trace - Build an execution trace from events
//	GET  /v1/scope/node/:id - Look up the node for an identifier
//	POST /v1/scope/nodes - Ingest graph nodes
//	GET  /v1/scope/stats - Correlation and cache statistics
//	POST /v1/scope/cache/clear - Drop cached contexts
//	GET  /v1/scope/health - Health check
//	GET  /v1/scope/ready - Readiness check
//
// Example:
//
//	svc, _ := correlator.NewService(store, correlator.DefaultServiceConfig())
//	handlers := correlator.NewHandlers(svc, store)
//
//	v1 := router.Group("/v1")
//	correlator.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	scope := rg.Group("/scope")
	{
		// Event resolution
		scope.POST("/correlate", handlers.HandleCorrelate)
		scope.POST("/enhance", handlers.HandleEnhance)
		scope.POST("/trace", handlers.HandleTrace)

		// Graph queries and ingest
		scope.GET("/node/:id", handlers.HandleNode)
		scope.POST("/nodes", handlers.HandleIngest)

		// Introspection
		scope.GET("/stats", handlers.HandleStats)
		scope.POST("/cache/clear", handlers.HandleClearCaches)

		// Health checks
		scope.GET("/health", handlers.HandleHealth)
		scope.GET("/ready", handlers.HandleReady)
	}
}
