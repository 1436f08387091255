// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package mediator

import (
	"golang.org/x/sys/unix"

	"github.com/wtalioy/EulerGuard/pkg/events"
	"github.com/wtalioy/EulerGuard/pkg/lineage"
	"github.com/wtalioy/EulerGuard/pkg/pathres"
	"github.com/wtalioy/EulerGuard/pkg/policy"
	"github.com/wtalioy/EulerGuard/pkg/scratch"
)

// Task identifies the process performing the mediated operation.
type Task interface {
	PID() uint32
	ParentPID() uint32
	CgroupID() uint64
	Comm() []byte
	ParentComm() []byte
}

// File is a file being opened.
type File interface {
	Dentry() pathres.Dentry
	Flags() uint32
}

// InodeResolver is implemented by files that know their inode and device.
type InodeResolver interface {
	Inode() (ino, dev uint64, ok bool)
}

// Config holds mediator tuning.
type Config struct {
	// PathDepth bounds the ancestor walk, clamped to [1, pathres.MaxDepth].
	PathDepth int
}

// Mediator evaluates hook requests against the policy stores. It is safe
// for concurrent use; every call runs on its own scratch arena.
type Mediator struct {
	matcher  *policy.Matcher
	resolver *pathres.Resolver
	lineage  *lineage.Cache
	channel  *events.Channel
	arenas   *scratch.Pool
	stats    [hookCount]hookCounters
}

// New creates a mediator. lin and ch may be nil, in which case lineage is
// not recorded and every event counts as dropped.
func New(cfg Config, matcher *policy.Matcher, lin *lineage.Cache, ch *events.Channel) *Mediator {
	depth := cfg.PathDepth
	if depth == 0 {
		depth = pathres.DefaultDepth
	}
	return &Mediator{
		matcher:  matcher,
		resolver: pathres.NewResolver(depth),
		lineage:  lin,
		channel:  ch,
		arenas:   scratch.NewPool(),
	}
}

// Mediate runs h and returns nil to allow or unix.EPERM to deny.
func (m *Mediator) Mediate(h Hook) error {
	a := m.arenas.Acquire()
	defer m.arenas.Release(a)
	return h.mediate(m, a)
}

// Exec mediates a program execution.
func (m *Mediator) Exec(task Task, binary pathres.Dentry) error {
	return m.Mediate(&ExecRequest{Task: task, Binary: binary})
}

// FileOpen mediates a file open.
func (m *Mediator) FileOpen(task Task, file File) error {
	return m.Mediate(&FileOpenRequest{Task: task, File: file})
}

// Connect mediates an outbound connect to the raw socket address sa.
func (m *Mediator) Connect(task Task, sa []byte) error {
	return m.Mediate(&ConnectRequest{Task: task, Sockaddr: sa})
}

// Depth returns the effective ancestor walk depth.
func (m *Mediator) Depth() int {
	return m.resolver.Depth()
}

// Lineage returns the lineage cache, possibly nil.
func (m *Mediator) Lineage() *lineage.Cache {
	return m.lineage
}

func (m *Mediator) reserve(c *hookCounters, size int) (events.Record, bool) {
	if m.channel == nil {
		c.eventsDropped.Add(1)
		return events.Record{}, false
	}
	rec, ok := m.channel.Reserve(size)
	if !ok {
		c.eventsDropped.Add(1)
	}
	return rec, ok
}

func (m *Mediator) submit(c *hookCounters, rec events.Record) {
	rec.Submit()
	c.eventsEmitted.Add(1)
}

// verdict applies the decision to the counters and maps it to an errno.
func verdict(c *hookCounters, a policy.Action) error {
	switch a {
	case policy.ActionBlock:
		c.denied.Add(1)
		return unix.EPERM
	case policy.ActionMonitor:
		c.monitored.Add(1)
	}
	c.allowed.Add(1)
	return nil
}
