// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package mediator

import "sync/atomic"

type hookCounters struct {
	invocations       atomic.Uint64
	allowed           atomic.Uint64
	denied            atomic.Uint64
	monitored         atomic.Uint64
	eventsEmitted     atomic.Uint64
	eventsDropped     atomic.Uint64
	incomplete        atomic.Uint64
	lookupMisses      atomic.Uint64
	unsupportedFamily atomic.Uint64
}

// HookStatistics holds the counters of one hook
type HookStatistics struct {
	Invocations           uint64 `json:"invocations"`
	Allowed               uint64 `json:"allowed"`
	Denied                uint64 `json:"denied"`
	Monitored             uint64 `json:"monitored"`
	EventsEmitted         uint64 `json:"events_emitted"`
	EventsDropped         uint64 `json:"events_dropped"`
	IncompleteResolutions uint64 `json:"incomplete_resolutions"`
	LookupMisses          uint64 `json:"lookup_misses"`
	UnsupportedFamilies   uint64 `json:"unsupported_families"`
}

// Statistics holds mediation statistics per hook
type Statistics struct {
	Exec     HookStatistics `json:"exec"`
	FileOpen HookStatistics `json:"file_open"`
	Connect  HookStatistics `json:"connect"`
}

// Total sums the counters of all hooks.
func (s Statistics) Total() HookStatistics {
	var t HookStatistics
	for _, h := range []HookStatistics{s.Exec, s.FileOpen, s.Connect} {
		t.Invocations += h.Invocations
		t.Allowed += h.Allowed
		t.Denied += h.Denied
		t.Monitored += h.Monitored
		t.EventsEmitted += h.EventsEmitted
		t.EventsDropped += h.EventsDropped
		t.IncompleteResolutions += h.IncompleteResolutions
		t.LookupMisses += h.LookupMisses
		t.UnsupportedFamilies += h.UnsupportedFamilies
	}
	return t
}

func (c *hookCounters) snapshot() HookStatistics {
	return HookStatistics{
		Invocations:           c.invocations.Load(),
		Allowed:               c.allowed.Load(),
		Denied:                c.denied.Load(),
		Monitored:             c.monitored.Load(),
		EventsEmitted:         c.eventsEmitted.Load(),
		EventsDropped:         c.eventsDropped.Load(),
		IncompleteResolutions: c.incomplete.Load(),
		LookupMisses:          c.lookupMisses.Load(),
		UnsupportedFamilies:   c.unsupportedFamily.Load(),
	}
}

// GetStatistics retrieves current mediation statistics
func (m *Mediator) GetStatistics() Statistics {
	return Statistics{
		Exec:     m.stats[HookExec].snapshot(),
		FileOpen: m.stats[HookFileOpen].snapshot(),
		Connect:  m.stats[HookConnect].snapshot(),
	}
}

// GetHookStatistics retrieves the counters of a single hook
func (m *Mediator) GetHookStatistics(h HookType) HookStatistics {
	if h < 0 || h >= hookCount {
		return HookStatistics{}
	}
	return m.stats[h].snapshot()
}
