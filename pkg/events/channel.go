// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

const (
	// DefaultChannelSize matches the kernel events ring buffer.
	DefaultChannelSize = 256 * 1024

	MinChannelSize = 64
	hdrSize        = 8

	hdrBusy    = uint32(1) << 31
	hdrDiscard = uint32(1) << 30
	hdrLenMask = hdrDiscard - 1
)

var (
	ErrClosed          = errors.New("event channel closed")
	ErrInvalidCapacity = errors.New("event channel capacity must be a power of two >= 64")
)

// Channel is a multi-producer, single-consumer byte ring of variable-size
// records. Producers reserve space with a CAS on the producer position and
// never block; a full ring makes Reserve fail. Each record is preceded by
// an 8-byte header slot whose state word is busy until Submit or Discard.
type Channel struct {
	data []byte
	hdrs []atomic.Uint32 // one per 8-byte slot, only header slots are used
	size uint64
	mask uint64

	prod atomic.Uint64
	cons atomic.Uint64

	readMu    sync.Mutex
	notify    chan struct{}
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once

	reserved  atomic.Uint64
	submitted atomic.Uint64
	discarded atomic.Uint64
	dropped   atomic.Uint64
}

// ChannelStats is a snapshot of the channel counters.
type ChannelStats struct {
	Capacity  uint64 `json:"capacity"`
	Pending   uint64 `json:"pending_bytes"`
	Reserved  uint64 `json:"reserved"`
	Submitted uint64 `json:"submitted"`
	Discarded uint64 `json:"discarded"`
	Dropped   uint64 `json:"dropped"`
}

// NewChannel creates a channel of size bytes (0 means DefaultChannelSize).
func NewChannel(size int) (*Channel, error) {
	if size == 0 {
		size = DefaultChannelSize
	}
	if size < MinChannelSize || size&(size-1) != 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, size)
	}

	return &Channel{
		data:   make([]byte, size),
		hdrs:   make([]atomic.Uint32, size/hdrSize),
		size:   uint64(size),
		mask:   uint64(size - 1),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}, nil
}

func align8(n uint64) uint64 {
	return (n + 7) &^ 7
}

// Record is a reserved region of the ring. Exactly one of Submit or Discard
// must be called.
type Record struct {
	Data []byte

	c   *Channel
	off uint64
}

// Reserve claims size bytes. It reports false when the ring lacks space,
// the size cannot be represented, or the channel is closed.
func (c *Channel) Reserve(size int) (Record, bool) {
	if size <= 0 || uint64(size) > uint64(hdrLenMask) || hdrSize+align8(uint64(size)) > c.size {
		c.dropped.Add(1)
		return Record{}, false
	}
	total := hdrSize + align8(uint64(size))

	for {
		if c.closed.Load() {
			return Record{}, false
		}

		pos := c.prod.Load()
		cons := c.cons.Load()
		off := pos & c.mask

		// Records never straddle the end of the ring.
		var pad uint64
		if off+total > c.size {
			pad = c.size - off
		}
		if pos+pad+total-cons > c.size {
			c.dropped.Add(1)
			return Record{}, false
		}
		if !c.prod.CompareAndSwap(pos, pos+pad+total) {
			continue
		}

		if pad > 0 {
			c.hdrs[off/hdrSize].Store(hdrDiscard | uint32(pad-hdrSize))
			off = 0
		}
		c.hdrs[off/hdrSize].Store(hdrBusy | uint32(size))
		c.reserved.Add(1)

		start := off + hdrSize
		return Record{
			Data: c.data[start : start+uint64(size) : start+uint64(size)],
			c:    c,
			off:  off,
		}, true
	}
}

// Submit publishes the record to the consumer.
func (r Record) Submit() {
	if r.c == nil {
		return
	}
	r.c.hdrs[r.off/hdrSize].Store(uint32(len(r.Data)))
	r.c.submitted.Add(1)
	select {
	case r.c.notify <- struct{}{}:
	default:
	}
}

// Discard releases the record without delivering it.
func (r Record) Discard() {
	if r.c == nil {
		return
	}
	r.c.hdrs[r.off/hdrSize].Store(hdrDiscard | uint32(len(r.Data)))
	r.c.discarded.Add(1)
}

// next consumes records up to and including the first committed one. It
// returns false when the ring holds no ready record. Caller holds readMu.
func (c *Channel) next(fn func([]byte)) bool {
	for {
		cons := c.cons.Load()
		if cons == c.prod.Load() {
			return false
		}

		off := cons & c.mask
		h := c.hdrs[off/hdrSize].Load()
		if h == 0 || h&hdrBusy != 0 {
			return false
		}

		n := uint64(h & hdrLenMask)
		delivered := false
		if h&hdrDiscard == 0 {
			start := off + hdrSize
			fn(c.data[start : start+n : start+n])
			delivered = true
		}

		c.hdrs[off/hdrSize].Store(0)
		c.cons.Store(cons + hdrSize + align8(n))
		if delivered {
			return true
		}
	}
}

// Poll hands every committed record to fn in ring order and returns how
// many were delivered. The slice passed to fn is only valid during the call.
func (c *Channel) Poll(fn func(data []byte)) int {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	n := 0
	for c.next(fn) {
		n++
	}
	return n
}

// Read blocks until a record is available and returns a copy of it. After
// Close, remaining records are still returned before ErrClosed.
func (c *Channel) Read(ctx context.Context) ([]byte, error) {
	for {
		var out []byte
		c.readMu.Lock()
		ok := c.next(func(data []byte) {
			out = append([]byte(nil), data...)
		})
		c.readMu.Unlock()
		if ok {
			return out, nil
		}
		if c.closed.Load() {
			return nil, ErrClosed
		}

		select {
		case <-c.notify:
		case <-c.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close stops new reservations and wakes blocked readers.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
	})
	return nil
}

// Stats returns a snapshot of the channel counters.
func (c *Channel) Stats() ChannelStats {
	return ChannelStats{
		Capacity:  c.size,
		Pending:   c.prod.Load() - c.cons.Load(),
		Reserved:  c.reserved.Load(),
		Submitted: c.submitted.Load(),
		Discarded: c.discarded.Load(),
		Dropped:   c.dropped.Load(),
	}
}
