// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package mediator

import (
	"github.com/wtalioy/EulerGuard/pkg/events"
	"github.com/wtalioy/EulerGuard/pkg/pathres"
	"github.com/wtalioy/EulerGuard/pkg/policy"
	"github.com/wtalioy/EulerGuard/pkg/scratch"
)

// HookType names one of the three mediation points.
type HookType int

const (
	HookExec HookType = iota
	HookFileOpen
	HookConnect

	hookCount
)

func (h HookType) String() string {
	switch h {
	case HookExec:
		return "exec"
	case HookFileOpen:
		return "file_open"
	case HookConnect:
		return "connect"
	default:
		return "unknown"
	}
}

// ParseHookType is the inverse of HookType.String.
func ParseHookType(s string) (HookType, bool) {
	for h := HookExec; h < hookCount; h++ {
		if h.String() == s {
			return h, true
		}
	}
	return 0, false
}

// Hook is one of ExecRequest, FileOpenRequest or ConnectRequest.
type Hook interface {
	Type() HookType
	mediate(m *Mediator, a *scratch.Arena) error
}

// ExecRequest asks whether Task may execute Binary.
type ExecRequest struct {
	Task   Task
	Binary pathres.Dentry
}

// FileOpenRequest asks whether Task may open File.
type FileOpenRequest struct {
	Task Task
	File File
}

// ConnectRequest asks whether Task may connect to the raw socket address
// Sockaddr.
type ConnectRequest struct {
	Task     Task
	Sockaddr []byte
}

func (*ExecRequest) Type() HookType     { return HookExec }
func (*FileOpenRequest) Type() HookType { return HookFileOpen }
func (*ConnectRequest) Type() HookType  { return HookConnect }

// matchPath resolves d into the arena and runs the tiered lookup.
func (m *Mediator) matchPath(c *hookCounters, a *scratch.Arena, d pathres.Dentry) (pathres.Result, policy.Action) {
	res := m.resolver.Resolve(a, d)
	if res.Incomplete() {
		c.incomplete.Add(1)
	}
	if res.Empty() {
		c.lookupMisses.Add(1)
		return res, policy.ActionNone
	}
	action := m.matcher.Match(res.Path(), res.ParentFile(), res.Name())
	if action == policy.ActionNone {
		c.lookupMisses.Add(1)
	}
	return res, action
}

// Every exec records lineage and emits an event, allowed or not.
func (r *ExecRequest) mediate(m *Mediator, a *scratch.Arena) error {
	c := &m.stats[HookExec]
	c.invocations.Add(1)

	res, action := m.matchPath(c, a, r.Binary)
	blocked := action == policy.ActionBlock

	pid, ppid := r.Task.PID(), r.Task.ParentPID()
	if m.lineage != nil {
		m.lineage.Put(pid, ppid)
	}

	if rec, ok := m.reserve(c, events.ExecEventSize); ok {
		ev := events.ExecEvent{
			PID:      pid,
			PPID:     ppid,
			CgroupID: r.Task.CgroupID(),
			Blocked:  blocked,
		}
		events.SetCString(ev.Comm[:], r.Task.Comm())
		events.SetCString(ev.PComm[:], r.Task.ParentComm())
		events.SetCString(ev.Filename[:], res.Path())
		ev.MarshalTo(rec.Data)
		m.submit(c, rec)
	}

	return verdict(c, action)
}

// File opens without a policy entry are invisible.
func (r *FileOpenRequest) mediate(m *Mediator, a *scratch.Arena) error {
	c := &m.stats[HookFileOpen]
	c.invocations.Add(1)

	res, action := m.matchPath(c, a, r.File.Dentry())
	if action == policy.ActionNone {
		return verdict(c, action)
	}

	if rec, ok := m.reserve(c, events.FileOpenEventSize); ok {
		ev := events.FileOpenEvent{
			PID:      r.Task.PID(),
			CgroupID: r.Task.CgroupID(),
			Flags:    r.File.Flags(),
			Blocked:  action == policy.ActionBlock,
		}
		if ir, ok := r.File.(InodeResolver); ok {
			if ino, dev, ok := ir.Inode(); ok {
				ev.Ino, ev.Dev = ino, dev
			}
		}
		events.SetCString(ev.Filename[:], res.Path())
		ev.MarshalTo(rec.Data)
		m.submit(c, rec)
	}

	return verdict(c, action)
}

// Connects are keyed on the destination port only.
func (r *ConnectRequest) mediate(m *Mediator, _ *scratch.Arena) error {
	c := &m.stats[HookConnect]
	c.invocations.Add(1)

	dst, ok := ParseSockaddr(r.Sockaddr)
	if !ok {
		c.unsupportedFamily.Add(1)
		return verdict(c, policy.ActionNone)
	}

	action := m.matcher.MatchPort(dst.Port)
	if action == policy.ActionNone {
		c.lookupMisses.Add(1)
		return verdict(c, action)
	}

	if rec, ok := m.reserve(c, events.ConnectEventSize); ok {
		ev := events.ConnectEvent{
			PID:      r.Task.PID(),
			CgroupID: r.Task.CgroupID(),
			Family:   dst.Family,
			Port:     dst.Port,
			AddrV4:   dst.AddrV4,
			AddrV6:   dst.AddrV6,
			Blocked:  action == policy.ActionBlock,
		}
		ev.MarshalTo(rec.Data)
		m.submit(c, rec)
	}

	return verdict(c, action)
}
