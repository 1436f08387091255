// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/wtalioy/EulerGuard/pkg/events"
)

// DefaultHistorySize is the number of recent entries kept in memory.
const DefaultHistorySize = 1024

const (
	initialBackoff  = 50 * time.Millisecond
	maxBackoff      = 2 * time.Second
	maxReadFailures = 10
)

// ErrSourceFailing is returned by Run after maxReadFailures consecutive
// read errors.
var ErrSourceFailing = errors.New("event source keeps failing")

// Source yields raw event records. Both events.Channel and the BPF data
// plane satisfy it; Read returns events.ErrClosed once drained.
type Source interface {
	Read(ctx context.Context) ([]byte, error)
}

// Entry is the decoded, JSON-friendly form of one event record
type Entry struct {
	Time       time.Time `json:"time"`
	Type       string    `json:"type"`
	Action     string    `json:"action"`
	Blocked    bool      `json:"blocked"`
	PID        uint32    `json:"pid"`
	PPID       uint32    `json:"ppid,omitempty"`
	CgroupID   uint64    `json:"cgroup_id"`
	Comm       string    `json:"comm,omitempty"`
	ParentComm string    `json:"parent_comm,omitempty"`
	Path       string    `json:"path,omitempty"`
	Flags      uint32    `json:"flags,omitempty"`
	Inode      uint64    `json:"inode,omitempty"`
	Device     uint64    `json:"device,omitempty"`
	Address    string    `json:"address,omitempty"`
	Port       uint16    `json:"port,omitempty"`
}

// Statistics holds audit consumer counters
type Statistics struct {
	Received     uint64 `json:"received"`
	Exec         uint64 `json:"exec"`
	FileOpen     uint64 `json:"file_open"`
	Connect      uint64 `json:"connect"`
	Blocked      uint64 `json:"blocked"`
	Monitored    uint64 `json:"monitored"`
	DecodeErrors uint64 `json:"decode_errors"`
	Buffered     int    `json:"buffered"`
}

// Consumer drains a Source, logs what it sees and keeps a bounded history
type Consumer struct {
	src Source

	mu      sync.RWMutex
	history []Entry
	next    int
	full    bool

	received     atomic.Uint64
	exec         atomic.Uint64
	fileOpen     atomic.Uint64
	connect      atomic.Uint64
	blocked      atomic.Uint64
	monitored    atomic.Uint64
	decodeErrors atomic.Uint64

	now     func() time.Time
	backoff time.Duration
}

// NewConsumer creates a consumer keeping at most historySize entries
// (<= 0 means DefaultHistorySize).
func NewConsumer(src Source, historySize int) *Consumer {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &Consumer{
		src:     src,
		history: make([]Entry, historySize),
		now:     time.Now,
		backoff: initialBackoff,
	}
}

// Run reads records until the source is closed or ctx is cancelled. Read
// errors are retried with exponential backoff; Run gives up with
// ErrSourceFailing after maxReadFailures in a row.
func (c *Consumer) Run(ctx context.Context) error {
	log.Info("Starting audit event consumer")

	failures := 0
	delay := c.backoff
	for {
		data, err := c.src.Read(ctx)
		if err != nil {
			switch {
			case errors.Is(err, events.ErrClosed):
				log.Info("Event source closed")
				return nil
			case ctx.Err() != nil:
				return nil
			}

			failures++
			if failures >= maxReadFailures {
				return fmt.Errorf("%w: %d consecutive errors, last: %v", ErrSourceFailing, failures, err)
			}
			log.Errorf("Reading event record (attempt %d, retrying in %v): %v", failures, delay, err)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			delay = min(delay*2, maxBackoff)
			continue
		}
		failures = 0
		delay = c.backoff

		if err := c.Handle(data); err != nil {
			log.Warnf("Dropping event record: %v", err)
		}
	}
}

// Handle decodes one record, logs it and appends it to the history
func (c *Consumer) Handle(data []byte) error {
	c.received.Add(1)

	ev, err := events.Decode(data)
	if err != nil {
		c.decodeErrors.Add(1)
		return fmt.Errorf("decode: %w", err)
	}

	entry := c.toEntry(ev)
	switch entry.Action {
	case "block":
		c.blocked.Add(1)
	case "monitor":
		c.monitored.Add(1)
	}

	logEntry(entry)

	c.mu.Lock()
	c.history[c.next] = entry
	c.next++
	if c.next == len(c.history) {
		c.next = 0
		c.full = true
	}
	c.mu.Unlock()

	return nil
}

func (c *Consumer) toEntry(ev events.Event) Entry {
	e := Entry{Time: c.now(), Type: ev.Type().String()}

	switch ev := ev.(type) {
	case *events.ExecEvent:
		c.exec.Add(1)
		e.PID, e.PPID, e.CgroupID = ev.PID, ev.PPID, ev.CgroupID
		e.Comm = events.CString(ev.Comm[:])
		e.ParentComm = events.CString(ev.PComm[:])
		e.Path = events.CString(ev.Filename[:])
		e.Blocked = ev.Blocked
		// Exec records are emitted for every exec, so an unblocked one
		// carries no Monitor decision.
		e.Action = "allow"
		if ev.Blocked {
			e.Action = "block"
		}
	case *events.FileOpenEvent:
		c.fileOpen.Add(1)
		e.PID, e.CgroupID = ev.PID, ev.CgroupID
		e.Path = events.CString(ev.Filename[:])
		e.Flags, e.Inode, e.Device = ev.Flags, ev.Ino, ev.Dev
		e.Blocked = ev.Blocked
		e.Action = actionOf(ev.Blocked)
	case *events.ConnectEvent:
		c.connect.Add(1)
		e.PID, e.CgroupID = ev.PID, ev.CgroupID
		if ip := ev.IP(); ip != nil {
			e.Address = ip.String()
		}
		e.Port = ev.Port
		e.Blocked = ev.Blocked
		e.Action = actionOf(ev.Blocked)
	}

	return e
}

// File-open and connect records exist only for Monitor or Block decisions.
func actionOf(blocked bool) string {
	if blocked {
		return "block"
	}
	return "monitor"
}

func logEntry(e Entry) {
	fields := log.Fields{
		"type":      e.Type,
		"pid":       e.PID,
		"cgroup_id": e.CgroupID,
	}
	if e.Path != "" {
		fields["path"] = e.Path
	}
	if e.Comm != "" {
		fields["comm"] = e.Comm
		fields["ppid"] = e.PPID
		fields["parent_comm"] = e.ParentComm
	}
	if e.Type == events.TypeConnect.String() {
		fields["address"] = e.Address
		fields["port"] = e.Port
	}

	entry := log.WithFields(fields)
	switch e.Action {
	case "block":
		entry.Warn("Access blocked")
	case "monitor":
		entry.Info("Access monitored")
	default:
		entry.Debug("Process executed")
	}
}

// Recent returns up to limit entries, newest first (limit <= 0 means all)
func (c *Consumer) Recent(limit int) []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := c.next
	if c.full {
		n = len(c.history)
	}
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]Entry, 0, limit)
	idx := c.next
	for i := 0; i < limit; i++ {
		idx--
		if idx < 0 {
			idx = len(c.history) - 1
		}
		out = append(out, c.history[idx])
	}
	return out
}

// GetStatistics retrieves current audit statistics
func (c *Consumer) GetStatistics() Statistics {
	c.mu.RLock()
	buffered := c.next
	if c.full {
		buffered = len(c.history)
	}
	c.mu.RUnlock()

	return Statistics{
		Received:     c.received.Load(),
		Exec:         c.exec.Load(),
		FileOpen:     c.fileOpen.Load(),
		Connect:      c.connect.Load(),
		Blocked:      c.blocked.Load(),
		Monitored:    c.monitored.Load(),
		DecodeErrors: c.decodeErrors.Load(),
		Buffered:     buffered,
	}
}
