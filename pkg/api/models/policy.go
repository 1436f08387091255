// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package models

// PathPolicyRequest represents a path policy creation/update request. Key
// is a full path, a "parent/file" pair or a bare filename.
type PathPolicyRequest struct {
	Key    string `json:"key" binding:"required"`
	Action string `json:"action" binding:"required"`
}

// PathPolicyResponse represents a path policy in API responses
type PathPolicyResponse struct {
	Key    string `json:"key"`
	Action string `json:"action"`
}

// PathPolicyListResponse represents a list of path policies
type PathPolicyListResponse struct {
	Policies []PathPolicyResponse `json:"policies"`
	Count    int                  `json:"count"`
}

// PortPolicyRequest represents a port policy creation/update request
type PortPolicyRequest struct {
	Port   uint16 `json:"port" binding:"required"`
	Action string `json:"action" binding:"required"`
}

// PortPolicyResponse represents a port policy in API responses
type PortPolicyResponse struct {
	Port   uint16 `json:"port"`
	Action string `json:"action"`
}

// PortPolicyListResponse represents a list of port policies
type PortPolicyListResponse struct {
	Policies []PortPolicyResponse `json:"policies"`
	Count    int                  `json:"count"`
}
