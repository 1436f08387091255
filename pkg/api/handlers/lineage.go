// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wtalioy/EulerGuard/pkg/api/models"
)

const (
	defaultLineageDepth = 16
	maxLineageDepth     = 64
)

// LineageHandler serves the cached process ancestry
type LineageHandler struct {
	lineage LineageReader
}

// NewLineageHandler creates a new lineage handler
func NewLineageHandler(l LineageReader) *LineageHandler {
	return &LineageHandler{lineage: l}
}

// GetLineage handles GET /api/v1/lineage/:pid?depth=N
func (h *LineageHandler) GetLineage(c *gin.Context) {
	pid, err := strconv.ParseUint(c.Param("pid"), 10, 32)
	if err != nil || pid == 0 {
		c.JSON(http.StatusBadRequest, models.NewErrorResponse(
			http.StatusBadRequest,
			"validation_error",
			"Invalid pid",
			fmt.Sprintf("pid must be a positive integer, got %q", c.Param("pid")),
		))
		return
	}

	depth := defaultLineageDepth
	if s := c.Query("depth"); s != "" {
		d, err := strconv.Atoi(s)
		if err != nil || d < 1 || d > maxLineageDepth {
			c.JSON(http.StatusBadRequest, models.NewErrorResponse(
				http.StatusBadRequest,
				"validation_error",
				"Invalid depth",
				fmt.Sprintf("depth must be 1-%d", maxLineageDepth),
			))
			return
		}
		depth = d
	}

	ppid, ok := h.lineage.Get(uint32(pid))
	if !ok {
		c.JSON(http.StatusNotFound, models.NewErrorResponse(
			http.StatusNotFound,
			"not_found",
			fmt.Sprintf("No lineage recorded for pid %d", pid),
			nil,
		))
		return
	}

	c.JSON(http.StatusOK, models.LineageResponse{
		PID:       uint32(pid),
		PPID:      ppid,
		Ancestors: h.lineage.Ancestors(uint32(pid), depth),
	})
}
