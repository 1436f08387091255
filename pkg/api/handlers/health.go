// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wtalioy/EulerGuard/pkg/api/models"
	"github.com/wtalioy/EulerGuard/pkg/policy"
)

// Version is reported by the status endpoint; set at link time.
var Version = "dev"

var startTime = time.Now()

// HealthHandler handles health check requests
type HealthHandler struct {
	mediator      MediatorStats
	policyManager policy.Manager
	substrate     string
	runtime       models.ConfigResponse
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(med MediatorStats, pm policy.Manager, runtime models.ConfigResponse) *HealthHandler {
	substrate := runtime.Substrate
	if substrate == "" {
		substrate = "none"
	}
	return &HealthHandler{
		mediator:      med,
		policyManager: pm,
		substrate:     substrate,
		runtime:       runtime,
	}
}

// GetHealth handles GET /api/v1/health
// Simple health check endpoint
func (h *HealthHandler) GetHealth(c *gin.Context) {
	response := models.HealthResponse{
		Status:  "ok",
		Message: "API server is healthy",
	}

	c.JSON(http.StatusOK, response)
}

// GetStatus handles GET /api/v1/status
// Detailed status endpoint with mediator and policy information
func (h *HealthHandler) GetStatus(c *gin.Context) {
	response := models.StatusResponse{
		Status:  "ok",
		Version: Version,
		API: models.APIStatus{
			Status:  "running",
			Message: "API server is operational",
		},
		Uptime: int64(time.Since(startTime).Seconds()),
	}

	substrate := models.SubstrateStatus{
		Mode:    h.substrate,
		Status:  "running",
		Message: "Substrate is delivering requests",
	}
	if h.substrate == "none" {
		substrate.Status = "detached"
		substrate.Message = "No enforcement substrate attached"
	}

	if h.mediator != nil {
		total := h.mediator.GetStatistics().Total()
		stats := hookStatsResponse("", total)
		response.Statistics = &stats
		if total.Invocations == 0 && h.substrate != "none" {
			substrate.Status = "idle"
			substrate.Message = "Substrate is idle (no requests mediated)"
		}
	}
	response.Substrate = substrate

	if h.policyManager != nil {
		response.Policies = models.PolicyCountResponse{
			Paths: h.policyManager.PathCount(),
			Ports: h.policyManager.PortCount(),
		}
	} else {
		response.Status = "degraded"
	}

	c.JSON(http.StatusOK, response)
}

// GetConfig handles GET /api/v1/config
func (h *HealthHandler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.runtime)
}
