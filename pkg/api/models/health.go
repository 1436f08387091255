// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package models

// HealthResponse represents the health check response
type HealthResponse struct {
	Status  string `json:"status"` // "ok", "degraded", "down"
	Message string `json:"message"`
}

// StatusResponse represents detailed system status
type StatusResponse struct {
	Status     string              `json:"status"` // "ok", "degraded"
	Version    string              `json:"version"`
	Substrate  SubstrateStatus     `json:"substrate"`
	API        APIStatus           `json:"api"`
	Policies   PolicyCountResponse `json:"policies"`
	Statistics *HookStatsResponse  `json:"statistics,omitempty"`
	Uptime     int64               `json:"uptime_seconds"`
}

// SubstrateStatus represents the state of the enforcement substrate
type SubstrateStatus struct {
	Mode    string `json:"mode"`   // "none", "fanotify", "bpf"
	Status  string `json:"status"` // "running", "idle", "detached"
	Message string `json:"message"`
}

// APIStatus represents API server status
type APIStatus struct {
	Status  string `json:"status"` // "running", "stopped", "error"
	Message string `json:"message"`
}

// PolicyCountResponse represents policy store sizes
type PolicyCountResponse struct {
	Paths int `json:"paths"`
	Ports int `json:"ports"`
}
