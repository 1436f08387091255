// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wtalioy/EulerGuard/pkg/api/handlers"
)

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.deps.Mediator, s.deps.Policies, s.deps.Runtime)
	policyHandler := handlers.NewPolicyHandler(s.deps.Policies)
	statsHandler := handlers.NewStatisticsHandler(s.deps.Mediator, s.deps.Channel, s.deps.Audit)

	v1 := s.router.Group("/api/v1")
	{
		// Health and status endpoints
		v1.GET("/health", healthHandler.GetHealth)
		v1.GET("/status", healthHandler.GetStatus)
		v1.GET("/config", healthHandler.GetConfig)

		// Policy management endpoints
		policies := v1.Group("/policies")
		{
			policies.GET("/paths", policyHandler.ListPathPolicies)
			policies.POST("/paths", policyHandler.CreatePathPolicy)
			policies.DELETE("/paths", policyHandler.DeletePathPolicy)

			policies.GET("/ports", policyHandler.ListPortPolicies)
			policies.POST("/ports", policyHandler.CreatePortPolicy)
			policies.GET("/ports/:port", policyHandler.GetPortPolicy)
			policies.DELETE("/ports/:port", policyHandler.DeletePortPolicy)
		}

		// Statistics endpoints
		stats := v1.Group("/stats")
		{
			stats.GET("", statsHandler.GetAllStats)
			stats.GET("/hooks/:hook", statsHandler.GetHookStats)
			stats.GET("/channel", statsHandler.GetChannelStats)
		}

		if s.deps.Lineage != nil {
			v1.GET("/lineage/:pid", handlers.NewLineageHandler(s.deps.Lineage).GetLineage)
		}
		if s.deps.Audit != nil {
			v1.GET("/events", handlers.NewEventsHandler(s.deps.Audit).ListEvents)
		}
	}

	if s.deps.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Metrics, promhttp.HandlerOpts{})))
	}
}
