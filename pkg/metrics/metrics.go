// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/wtalioy/EulerGuard/pkg/audit"
	"github.com/wtalioy/EulerGuard/pkg/events"
	"github.com/wtalioy/EulerGuard/pkg/mediator"
)

const namespace = "eulerguard"

// MediatorSource provides hook counters
type MediatorSource interface {
	GetStatistics() mediator.Statistics
}

// ChannelSource provides event channel counters
type ChannelSource interface {
	Stats() events.ChannelStats
}

// AuditSource provides audit consumer counters
type AuditSource interface {
	GetStatistics() audit.Statistics
}

// LineageSource provides lineage cache occupancy
type LineageSource interface {
	Len() int
	Capacity() int
}

// PolicySource provides policy store sizes
type PolicySource interface {
	PathCount() int
	PortCount() int
}

// Sources lists what the collector reads on each scrape. Nil fields are
// skipped.
type Sources struct {
	Mediator MediatorSource
	Channel  ChannelSource
	Audit    AuditSource
	Lineage  LineageSource
	Policy   PolicySource
}

// Collector exports component counters as const metrics
type Collector struct {
	src Sources

	hookInvocations *prometheus.Desc
	hookVerdicts    *prometheus.Desc
	hookMonitored   *prometheus.Desc
	hookEvents      *prometheus.Desc
	hookIncomplete  *prometheus.Desc
	hookMisses      *prometheus.Desc
	hookUnsupported *prometheus.Desc

	channelCapacity *prometheus.Desc
	channelPending  *prometheus.Desc
	channelRecords  *prometheus.Desc

	auditRecords      *prometheus.Desc
	auditDecodeErrors *prometheus.Desc

	lineageEntries  *prometheus.Desc
	lineageCapacity *prometheus.Desc

	policyEntries *prometheus.Desc
}

// NewCollector creates a collector over src
func NewCollector(src Sources) *Collector {
	hook := []string{"hook"}
	return &Collector{
		src: src,

		hookInvocations: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "hook", "invocations_total"),
			"Mediation hook invocations.", hook, nil),
		hookVerdicts: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "hook", "verdicts_total"),
			"Mediation verdicts by hook and verdict.", []string{"hook", "verdict"}, nil),
		hookMonitored: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "hook", "monitored_total"),
			"Allowed accesses matching a Monitor policy.", hook, nil),
		hookEvents: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "hook", "events_total"),
			"Event records by hook and result.", []string{"hook", "result"}, nil),
		hookIncomplete: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "hook", "incomplete_resolutions_total"),
			"Path resolutions cut short by the depth limit.", hook, nil),
		hookMisses: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "hook", "lookup_misses_total"),
			"Mediations with no matching policy.", hook, nil),
		hookUnsupported: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "hook", "unsupported_families_total"),
			"Connects with an address family other than IPv4 or IPv6.", hook, nil),

		channelCapacity: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "channel", "capacity_bytes"),
			"Event channel capacity.", nil, nil),
		channelPending: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "channel", "pending_bytes"),
			"Bytes reserved or submitted but not yet consumed.", nil, nil),
		channelRecords: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "channel", "records_total"),
			"Event channel records by state.", []string{"state"}, nil),

		auditRecords: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "audit", "records_total"),
			"Decoded audit records by type.", []string{"type"}, nil),
		auditDecodeErrors: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "audit", "decode_errors_total"),
			"Records the audit consumer could not decode.", nil, nil),

		lineageEntries: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "lineage", "entries"),
			"Entries in the lineage cache.", nil, nil),
		lineageCapacity: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "lineage", "capacity"),
			"Lineage cache capacity.", nil, nil),

		policyEntries: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "policy", "entries"),
			"Policy store entries by kind.", []string{"kind"}, nil),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.hookInvocations, c.hookVerdicts, c.hookMonitored, c.hookEvents,
		c.hookIncomplete, c.hookMisses, c.hookUnsupported,
		c.channelCapacity, c.channelPending, c.channelRecords,
		c.auditRecords, c.auditDecodeErrors,
		c.lineageEntries, c.lineageCapacity,
		c.policyEntries,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}

	if c.src.Mediator != nil {
		stats := c.src.Mediator.GetStatistics()
		for _, h := range []struct {
			name  string
			stats mediator.HookStatistics
		}{
			{mediator.HookExec.String(), stats.Exec},
			{mediator.HookFileOpen.String(), stats.FileOpen},
			{mediator.HookConnect.String(), stats.Connect},
		} {
			counter(c.hookInvocations, h.stats.Invocations, h.name)
			counter(c.hookVerdicts, h.stats.Allowed, h.name, "allow")
			counter(c.hookVerdicts, h.stats.Denied, h.name, "deny")
			counter(c.hookMonitored, h.stats.Monitored, h.name)
			counter(c.hookEvents, h.stats.EventsEmitted, h.name, "emitted")
			counter(c.hookEvents, h.stats.EventsDropped, h.name, "dropped")
			counter(c.hookIncomplete, h.stats.IncompleteResolutions, h.name)
			counter(c.hookMisses, h.stats.LookupMisses, h.name)
			counter(c.hookUnsupported, h.stats.UnsupportedFamilies, h.name)
		}
	}

	if c.src.Channel != nil {
		stats := c.src.Channel.Stats()
		gauge(c.channelCapacity, float64(stats.Capacity))
		gauge(c.channelPending, float64(stats.Pending))
		counter(c.channelRecords, stats.Reserved, "reserved")
		counter(c.channelRecords, stats.Submitted, "submitted")
		counter(c.channelRecords, stats.Discarded, "discarded")
		counter(c.channelRecords, stats.Dropped, "dropped")
	}

	if c.src.Audit != nil {
		stats := c.src.Audit.GetStatistics()
		counter(c.auditRecords, stats.Exec, events.TypeExec.String())
		counter(c.auditRecords, stats.FileOpen, events.TypeFileOpen.String())
		counter(c.auditRecords, stats.Connect, events.TypeConnect.String())
		counter(c.auditDecodeErrors, stats.DecodeErrors)
	}

	if c.src.Lineage != nil {
		gauge(c.lineageEntries, float64(c.src.Lineage.Len()))
		gauge(c.lineageCapacity, float64(c.src.Lineage.Capacity()))
	}

	if c.src.Policy != nil {
		gauge(c.policyEntries, float64(c.src.Policy.PathCount()), "path")
		gauge(c.policyEntries, float64(c.src.Policy.PortCount()), "port")
	}
}

// NewRegistry returns a registry holding the collector plus the Go runtime
// and process collectors
func NewRegistry(src Sources) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		NewCollector(src),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

var _ prometheus.Collector = (*Collector)(nil)
