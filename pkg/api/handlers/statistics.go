// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wtalioy/EulerGuard/pkg/api/models"
	"github.com/wtalioy/EulerGuard/pkg/mediator"
)

// StatisticsHandler handles statistics requests
type StatisticsHandler struct {
	mediator MediatorStats
	channel  ChannelStats
	audit    AuditLog
}

// NewStatisticsHandler creates a new statistics handler. ch and audit may
// be nil.
func NewStatisticsHandler(med MediatorStats, ch ChannelStats, audit AuditLog) *StatisticsHandler {
	return &StatisticsHandler{
		mediator: med,
		channel:  ch,
		audit:    audit,
	}
}

func hookStatsResponse(hook string, s mediator.HookStatistics) models.HookStatsResponse {
	var denyRate float64
	if s.Invocations > 0 {
		denyRate = float64(s.Denied) / float64(s.Invocations) * 100
	}
	return models.HookStatsResponse{
		HookStatistics: s,
		Hook:           hook,
		DenyRate:       denyRate,
	}
}

// GetAllStats handles GET /api/v1/stats
func (h *StatisticsHandler) GetAllStats(c *gin.Context) {
	stats := h.mediator.GetStatistics()

	response := models.StatisticsResponse{
		Hooks: stats,
		Total: hookStatsResponse("", stats.Total()),
	}
	if h.channel != nil {
		ch := h.channel.Stats()
		response.Channel = &ch
	}
	if h.audit != nil {
		a := h.audit.GetStatistics()
		response.Audit = &a
	}

	c.JSON(http.StatusOK, response)
}

// GetHookStats handles GET /api/v1/stats/hooks/:hook
func (h *StatisticsHandler) GetHookStats(c *gin.Context) {
	name := c.Param("hook")
	hook, ok := mediator.ParseHookType(name)
	if !ok {
		c.JSON(http.StatusBadRequest, models.NewErrorResponse(
			http.StatusBadRequest,
			"validation_error",
			"Unknown hook",
			"hook must be one of exec, file_open, connect",
		))
		return
	}

	c.JSON(http.StatusOK, hookStatsResponse(name, h.mediator.GetHookStatistics(hook)))
}

// GetChannelStats handles GET /api/v1/stats/channel
func (h *StatisticsHandler) GetChannelStats(c *gin.Context) {
	if h.channel == nil {
		c.JSON(http.StatusNotFound, models.NewErrorResponse(
			http.StatusNotFound,
			"not_found",
			"No event channel configured",
			nil,
		))
		return
	}

	c.JSON(http.StatusOK, h.channel.Stats())
}
