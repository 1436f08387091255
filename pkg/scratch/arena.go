// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause

// Package scratch provides the fixed-size workspace a single hook invocation
// uses to rebuild paths and policy keys without allocating.
package scratch

import "sync"

const (
	// PathMax is the capacity of the path and key buffers, NUL included.
	PathMax = 256

	// MaxSegments bounds the number of name segments an arena can hold.
	MaxSegments = 32

	// SegmentBufSize is the total space shared by all collected segments.
	SegmentBufSize = 1024
)

type segment struct {
	off uint16
	len uint16
}

// Arena is owned by exactly one hook invocation between Acquire and Release.
type Arena struct {
	// Path receives the reassembled root-to-leaf path.
	Path [PathMax]byte
	// Key receives synthesized lookup keys such as "parent/filename".
	Key [PathMax]byte

	segBuf  [SegmentBufSize]byte
	segUsed int
	segs    [MaxSegments]segment
	nsegs   int
}

// Reset zeroes the arena.
func (a *Arena) Reset() {
	*a = Arena{}
}

// AppendSegment stores a copy of name as the next segment. It reports false
// without storing anything when the segment table or buffer is full.
func (a *Arena) AppendSegment(name []byte) bool {
	if a.nsegs >= MaxSegments {
		return false
	}
	if len(name) > SegmentBufSize-a.segUsed {
		return false
	}
	off := a.segUsed
	n := copy(a.segBuf[off:], name)
	a.segs[a.nsegs] = segment{off: uint16(off), len: uint16(n)}
	a.nsegs++
	a.segUsed += n
	return true
}

// Segments returns the number of stored segments.
func (a *Arena) Segments() int {
	return a.nsegs
}

// Segment returns the i-th stored segment in insertion order.
func (a *Arena) Segment(i int) []byte {
	if i < 0 || i >= a.nsegs {
		return nil
	}
	s := a.segs[i]
	return a.segBuf[s.off : s.off+s.len : s.off+s.len]
}

// Pool hands out zeroed arenas. sync.Pool keeps per-P caches, so concurrent
// invocations on different processors do not contend for the same arena.
type Pool struct {
	p sync.Pool
}

// NewPool creates an arena pool.
func NewPool() *Pool {
	return &Pool{
		p: sync.Pool{
			New: func() any { return new(Arena) },
		},
	}
}

// Acquire returns an arena exclusive to the caller, zeroed.
func (p *Pool) Acquire() *Arena {
	a := p.p.Get().(*Arena)
	a.Reset()
	return a
}

// Release returns the arena to the pool. The caller must not touch a, or any
// slice obtained from it, afterwards.
func (p *Pool) Release(a *Arena) {
	if a == nil {
		return
	}
	p.p.Put(a)
}
