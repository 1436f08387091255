// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/wtalioy/EulerGuard/pkg/api/models"
	"github.com/wtalioy/EulerGuard/pkg/policy"
)

// PolicyHandler handles policy management requests
type PolicyHandler struct {
	policyManager policy.Manager
}

// NewPolicyHandler creates a new policy handler
func NewPolicyHandler(pm policy.Manager) *PolicyHandler {
	return &PolicyHandler{
		policyManager: pm,
	}
}

// policyError maps store errors onto HTTP status codes
func policyError(c *gin.Context, err error, message string) {
	code, kind := http.StatusInternalServerError, "policy_error"
	switch {
	case errors.Is(err, policy.ErrEmptyKey),
		errors.Is(err, policy.ErrKeyTooLong),
		errors.Is(err, policy.ErrInvalidAction):
		code, kind = http.StatusBadRequest, "validation_error"
	case errors.Is(err, policy.ErrNotFound):
		code, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, policy.ErrStoreFull):
		code, kind = http.StatusInsufficientStorage, "store_full"
	default:
		log.Errorf("%s: %v", message, err)
	}

	c.JSON(code, models.NewErrorResponse(code, kind, message, err.Error()))
}

func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, models.NewValidationError("Invalid request body", err.Error()))
}

// parseStorableAction rejects "none", which is not a storable action
func parseStorableAction(s string) (policy.Action, error) {
	a, err := policy.ParseAction(s)
	if err != nil {
		return policy.ActionNone, err
	}
	if !a.Valid() {
		return policy.ActionNone, fmt.Errorf("%w: %q", policy.ErrInvalidAction, s)
	}
	return a, nil
}

func parsePort(c *gin.Context) (uint16, bool) {
	port, err := strconv.ParseUint(c.Param("port"), 10, 16)
	if err != nil || port == 0 {
		c.JSON(http.StatusBadRequest, models.NewValidationError(
			"Invalid port",
			fmt.Sprintf("port must be 1-65535, got %q", c.Param("port")),
		))
		return 0, false
	}
	return uint16(port), true
}

// ListPathPolicies handles GET /api/v1/policies/paths
func (h *PolicyHandler) ListPathPolicies(c *gin.Context) {
	entries := h.policyManager.ListPaths()

	policies := make([]models.PathPolicyResponse, 0, len(entries))
	for _, e := range entries {
		policies = append(policies, models.PathPolicyResponse{
			Key:    e.Key,
			Action: e.Action.String(),
		})
	}

	c.JSON(http.StatusOK, models.PathPolicyListResponse{
		Policies: policies,
		Count:    len(policies),
	})
}

// CreatePathPolicy handles POST /api/v1/policies/paths
func (h *PolicyHandler) CreatePathPolicy(c *gin.Context) {
	var req models.PathPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	action, err := parseStorableAction(req.Action)
	if err != nil {
		policyError(c, err, "Invalid action")
		return
	}

	if err := h.policyManager.PutPath(req.Key, action); err != nil {
		policyError(c, err, "Failed to set path policy")
		return
	}

	c.JSON(http.StatusCreated, models.PathPolicyResponse{
		Key:    req.Key,
		Action: action.String(),
	})
}

// DeletePathPolicy handles DELETE /api/v1/policies/paths?key=...
func (h *PolicyHandler) DeletePathPolicy(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, models.NewValidationError("Missing key query parameter", nil))
		return
	}

	if err := h.policyManager.DeletePath(key); err != nil {
		policyError(c, err, "Failed to delete path policy")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Path policy %q deleted successfully", key),
	})
}

// ListPortPolicies handles GET /api/v1/policies/ports
func (h *PolicyHandler) ListPortPolicies(c *gin.Context) {
	entries := h.policyManager.ListPorts()

	policies := make([]models.PortPolicyResponse, 0, len(entries))
	for _, e := range entries {
		policies = append(policies, models.PortPolicyResponse{
			Port:   e.Port,
			Action: e.Action.String(),
		})
	}

	c.JSON(http.StatusOK, models.PortPolicyListResponse{
		Policies: policies,
		Count:    len(policies),
	})
}

// CreatePortPolicy handles POST /api/v1/policies/ports
func (h *PolicyHandler) CreatePortPolicy(c *gin.Context) {
	var req models.PortPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	action, err := parseStorableAction(req.Action)
	if err != nil {
		policyError(c, err, "Invalid action")
		return
	}

	if err := h.policyManager.PutPort(req.Port, action); err != nil {
		policyError(c, err, "Failed to set port policy")
		return
	}

	c.JSON(http.StatusCreated, models.PortPolicyResponse{
		Port:   req.Port,
		Action: action.String(),
	})
}

// GetPortPolicy handles GET /api/v1/policies/ports/:port
func (h *PolicyHandler) GetPortPolicy(c *gin.Context) {
	port, ok := parsePort(c)
	if !ok {
		return
	}

	action, err := h.policyManager.GetPort(port)
	if err != nil {
		policyError(c, err, fmt.Sprintf("Port policy %d not found", port))
		return
	}

	c.JSON(http.StatusOK, models.PortPolicyResponse{
		Port:   port,
		Action: action.String(),
	})
}

// DeletePortPolicy handles DELETE /api/v1/policies/ports/:port
func (h *PolicyHandler) DeletePortPolicy(c *gin.Context) {
	port, ok := parsePort(c)
	if !ok {
		return
	}

	if err := h.policyManager.DeletePort(port); err != nil {
		policyError(c, err, "Failed to delete port policy")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Port policy %d deleted successfully", port),
	})
}
