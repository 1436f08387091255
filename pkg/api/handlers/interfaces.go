// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package handlers

import (
	"github.com/wtalioy/EulerGuard/pkg/audit"
	"github.com/wtalioy/EulerGuard/pkg/events"
	"github.com/wtalioy/EulerGuard/pkg/mediator"
)

// MediatorStats is the read side of the mediator
type MediatorStats interface {
	GetStatistics() mediator.Statistics
	GetHookStatistics(h mediator.HookType) mediator.HookStatistics
}

// ChannelStats is the read side of the event channel
type ChannelStats interface {
	Stats() events.ChannelStats
}

// AuditLog is the read side of the audit consumer
type AuditLog interface {
	Recent(limit int) []audit.Entry
	GetStatistics() audit.Statistics
}

// LineageReader is the read side of the lineage cache
type LineageReader interface {
	Get(pid uint32) (uint32, bool)
	Ancestors(pid uint32, max int) []uint32
}
