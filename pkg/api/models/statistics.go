// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package models

import (
	"github.com/wtalioy/EulerGuard/pkg/audit"
	"github.com/wtalioy/EulerGuard/pkg/events"
	"github.com/wtalioy/EulerGuard/pkg/mediator"
)

// HookStatsResponse represents the counters of one hook, or their sum
type HookStatsResponse struct {
	mediator.HookStatistics
	Hook     string  `json:"hook,omitempty"`
	DenyRate float64 `json:"deny_rate"`
}

// StatisticsResponse represents all mediation statistics
type StatisticsResponse struct {
	Hooks   mediator.Statistics  `json:"hooks"`
	Total   HookStatsResponse    `json:"total"`
	Channel *events.ChannelStats `json:"channel,omitempty"`
	Audit   *audit.Statistics    `json:"audit,omitempty"`
}

// LineageResponse represents the cached ancestry of a process
type LineageResponse struct {
	PID       uint32   `json:"pid"`
	PPID      uint32   `json:"ppid"`
	Ancestors []uint32 `json:"ancestors"`
}

// EventListResponse represents recent audit entries, newest first
type EventListResponse struct {
	Events []audit.Entry `json:"events"`
	Count  int           `json:"count"`
}
