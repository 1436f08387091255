// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wtalioy/EulerGuard/pkg/api/models"
)

const defaultEventLimit = 100

// EventsHandler serves recent audit entries
type EventsHandler struct {
	audit AuditLog
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(a AuditLog) *EventsHandler {
	return &EventsHandler{audit: a}
}

// ListEvents handles GET /api/v1/events?limit=N
func (h *EventsHandler) ListEvents(c *gin.Context) {
	limit := defaultEventLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, models.NewErrorResponse(
				http.StatusBadRequest,
				"validation_error",
				"Invalid limit",
				"limit must be a positive integer",
			))
			return
		}
		limit = n
	}

	entries := h.audit.Recent(limit)
	c.JSON(http.StatusOK, models.EventListResponse{
		Events: entries,
		Count:  len(entries),
	})
}
