// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package models

// ConfigResponse represents the effective runtime configuration
type ConfigResponse struct {
	Substrate       string `json:"substrate"`
	LogLevel        string `json:"log_level"`
	RulesFile       string `json:"rules_file,omitempty"`
	PathDepth       int    `json:"path_depth"`
	ChannelSize     int    `json:"channel_size"`
	LineageCapacity int    `json:"lineage_capacity"`
	APIHost         string `json:"api_host"`
	APIPort         int    `json:"api_port"`
}
