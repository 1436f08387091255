// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause

// Package pathres rebuilds a best-effort path string from a directory-entry
// chain with a bounded, non-recursive ancestor walk.
package pathres

import (
	"github.com/wtalioy/EulerGuard/pkg/scratch"
)

const (
	// DefaultDepth is the ancestor walk depth used for full reconstruction.
	DefaultDepth = 20

	// MaxDepth is the largest depth a Resolver accepts.
	MaxDepth = scratch.MaxSegments

	separator = '/'
)

// Dentry is a directory entry as seen by the mediator. The root entry is its
// own parent. Implementations must be comparable (pointer types in
// practice), since the walk detects the root by identity.
type Dentry interface {
	Name() []byte
	Parent() Dentry
}

// Resolver walks at most Depth ancestors.
type Resolver struct {
	depth int
}

// NewResolver clamps depth into [1, MaxDepth].
func NewResolver(depth int) *Resolver {
	if depth < 1 {
		depth = 1
	}
	if depth > MaxDepth {
		depth = MaxDepth
	}
	return &Resolver{depth: depth}
}

// Depth returns the configured walk depth.
func (r *Resolver) Depth() int {
	return r.depth
}

// Result views the arena that produced it and is only valid until the arena
// is released.
type Result struct {
	path       []byte
	parentFile []byte
	name       []byte
	segments   int
	incomplete bool
}

// Path returns the reassembled root-to-leaf path, e.g. "/etc/shadow".
func (r Result) Path() []byte { return r.path }

// ParentFile returns the "parent/filename" key, empty with fewer than two
// segments.
func (r Result) ParentFile() []byte { return r.parentFile }

// Name returns the leaf segment.
func (r Result) Name() []byte { return r.name }

// Segments returns how many name segments were collected.
func (r Result) Segments() int { return r.segments }

// Empty reports whether nothing was resolved.
func (r Result) Empty() bool { return r.segments == 0 }

// Incomplete reports that the walk stopped on the depth or buffer limit, or
// that the assembled path was truncated.
func (r Result) Incomplete() bool { return r.incomplete }

// Resolve fills a with the path of d. It never fails; an empty or partial
// result is a valid outcome.
func (r *Resolver) Resolve(a *scratch.Arena, d Dentry) Result {
	var res Result
	if a == nil || d == nil {
		return res
	}

	reachedRoot := false
	for i := 0; i < r.depth; i++ {
		if d == nil {
			reachedRoot = true
			break
		}
		parent := d.Parent()
		if parent == d {
			reachedRoot = true
			break
		}
		if name := d.Name(); len(name) > 0 {
			if !a.AppendSegment(name) {
				res.incomplete = true
				break
			}
		}
		d = parent
	}
	if !reachedRoot && !res.incomplete && d != nil && d.Parent() != d {
		res.incomplete = true
	}

	n := a.Segments()
	res.segments = n
	if n == 0 {
		return res
	}

	pos, truncated := assemble(a.Path[:], a, n)
	res.path = a.Path[:pos:pos]
	if truncated {
		res.incomplete = true
	}

	res.name = a.Segment(0)

	if n >= 2 {
		k := 0
		k += copy(a.Key[k:scratch.PathMax-1], a.Segment(1))
		if k < scratch.PathMax-1 {
			a.Key[k] = separator
			k++
		}
		k += copy(a.Key[k:scratch.PathMax-1], a.Segment(0))
		res.parentFile = a.Key[:k:k]
	}

	return res
}

// assemble writes segments n-1..0 into buf as "/s(n-1)/.../s0", leaving room
// for a terminating NUL.
func assemble(buf []byte, a *scratch.Arena, n int) (int, bool) {
	limit := len(buf) - 1
	pos := 0
	for i := n - 1; i >= 0; i-- {
		if pos >= limit {
			return pos, true
		}
		buf[pos] = separator
		pos++
		seg := a.Segment(i)
		c := copy(buf[pos:limit], seg)
		pos += c
		if c < len(seg) {
			return pos, true
		}
	}
	return pos, false
}
