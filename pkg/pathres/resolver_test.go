// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package pathres

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wtalioy/EulerGuard/pkg/scratch"
)

// countingDentry counts Parent calls so tests can bound the walk.
type countingDentry struct {
	name   string
	parent *countingDentry
	calls  *int
}

func (d *countingDentry) Name() []byte { return []byte(d.name) }

func (d *countingDentry) Parent() Dentry {
	*d.calls++
	if d.parent == nil {
		return nil
	}
	return d.parent
}

func resolve(t *testing.T, r *Resolver, d Dentry) (string, string, string, Result) {
	t.Helper()
	var a scratch.Arena
	res := r.Resolve(&a, d)
	return string(res.Path()), string(res.ParentFile()), string(res.Name()), res
}

func TestResolve_FullPath(t *testing.T) {
	testCases := []struct {
		name       string
		path       string
		expectPath string
		expectPF   string
		expectName string
	}{
		{name: "two levels", path: "/etc/shadow", expectPath: "/etc/shadow", expectPF: "etc/shadow", expectName: "shadow"},
		{name: "deep", path: "/var/backups/shadow", expectPath: "/var/backups/shadow", expectPF: "backups/shadow", expectName: "shadow"},
		{name: "single segment", path: "/vmlinuz", expectPath: "/vmlinuz", expectPF: "", expectName: "vmlinuz"},
		{name: "double slashes", path: "//usr//bin/ls", expectPath: "/usr/bin/ls", expectPF: "bin/ls", expectName: "ls"},
		{name: "dot segments kept", path: "/tmp/../etc/passwd", expectPath: "/tmp/../etc/passwd", expectPF: "etc/passwd", expectName: "passwd"},
	}

	r := NewResolver(DefaultDepth)
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, pf, n, res := resolve(t, r, NewPathDentry(tc.path))
			assert.Equal(t, tc.expectPath, p)
			assert.Equal(t, tc.expectPF, pf)
			assert.Equal(t, tc.expectName, n)
			assert.False(t, res.Incomplete())
		})
	}
}

func TestResolve_RootAndNil(t *testing.T) {
	r := NewResolver(DefaultDepth)

	_, _, _, res := resolve(t, r, NewRoot())
	assert.True(t, res.Empty())
	assert.Empty(t, res.Path())
	assert.False(t, res.Incomplete())

	_, _, _, res = resolve(t, r, nil)
	assert.True(t, res.Empty())

	res = r.Resolve(nil, NewPathDentry("/etc/shadow"))
	assert.True(t, res.Empty())
}

func TestResolve_DepthLimit(t *testing.T) {
	r := NewResolver(2)

	p, pf, n, res := resolve(t, r, NewPathDentry("/a/b/c/d"))
	assert.Equal(t, "/c/d", p)
	assert.Equal(t, "c/d", pf)
	assert.Equal(t, "d", n)
	assert.True(t, res.Incomplete())

	p, _, _, res = resolve(t, r, NewPathDentry("/a/b"))
	assert.Equal(t, "/a/b", p)
	assert.False(t, res.Incomplete())
}

func TestResolve_DepthClamp(t *testing.T) {
	assert.Equal(t, 1, NewResolver(0).Depth())
	assert.Equal(t, 1, NewResolver(-5).Depth())
	assert.Equal(t, MaxDepth, NewResolver(1000).Depth())
	assert.Equal(t, 3, NewResolver(3).Depth())
}

func TestResolve_SelfParentTerminates(t *testing.T) {
	calls := 0
	self := &countingDentry{name: "loop", calls: &calls}
	self.parent = self

	r := NewResolver(DefaultDepth)
	_, _, _, res := resolve(t, r, self)
	assert.True(t, res.Empty())
	assert.LessOrEqual(t, calls, DefaultDepth+1)
}

func TestResolve_CycleIsBounded(t *testing.T) {
	calls := 0
	a := &countingDentry{name: "a", calls: &calls}
	b := &countingDentry{name: "b", calls: &calls}
	a.parent = b
	b.parent = a

	for _, depth := range []int{1, 2, 3, DefaultDepth, MaxDepth} {
		calls = 0
		r := NewResolver(depth)
		p, _, _, res := resolve(t, r, a)
		assert.LessOrEqual(t, calls, depth+1, "depth %d", depth)
		assert.Equal(t, depth, res.Segments())
		assert.True(t, res.Incomplete())
		assert.LessOrEqual(t, len(p), scratch.PathMax)
	}
}

func TestResolve_NilParentStopsAfterRecording(t *testing.T) {
	calls := 0
	orphan := &countingDentry{name: "orphan", calls: &calls}

	r := NewResolver(DefaultDepth)
	p, _, n, res := resolve(t, r, orphan)
	assert.Equal(t, "/orphan", p)
	assert.Equal(t, "orphan", n)
	assert.False(t, res.Incomplete())
}

func TestResolve_NeverExceedsCapacity(t *testing.T) {
	r := NewResolver(MaxDepth)

	shapes := []string{
		"/" + strings.Repeat("x", 400),
		strings.Repeat("/"+strings.Repeat("y", 63), 20),
		strings.Repeat("/a", 200),
		"/" + strings.Repeat("z", 254),
		"/" + strings.Repeat("w", 255),
	}
	for i, path := range shapes {
		t.Run(fmt.Sprintf("shape-%d", i), func(t *testing.T) {
			var a scratch.Arena
			res := r.Resolve(&a, NewPathDentry(path))
			assert.LessOrEqual(t, len(res.Path()), scratch.PathMax-1)
			assert.LessOrEqual(t, len(res.ParentFile()), scratch.PathMax-1)
			assert.Equal(t, byte(0), a.Path[scratch.PathMax-1])
		})
	}
}

func TestResolve_TruncatesTail(t *testing.T) {
	r := NewResolver(DefaultDepth)

	leaf := strings.Repeat("f", 300)
	p, _, _, res := resolve(t, r, NewPathDentry("/dir/"+leaf))
	require.Len(t, p, scratch.PathMax-1)
	assert.True(t, strings.HasPrefix(p, "/dir/fff"))
	assert.True(t, res.Incomplete())
}

func TestResolve_ConcurrentArenasDoNotLeak(t *testing.T) {
	r := NewResolver(DefaultDepth)
	pool := scratch.NewPool()

	const workers = 16
	const iterations = 500

	var wg sync.WaitGroup
	errs := make(chan string, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			expected := fmt.Sprintf("/worker%d/dir%d/file%d", w, w*7, w*13)
			d := NewPathDentry(expected)
			for i := 0; i < iterations; i++ {
				a := pool.Acquire()
				got := string(r.Resolve(a, d).Path())
				pool.Release(a)
				if got != expected {
					errs <- fmt.Sprintf("worker %d got %q", w, got)
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)

	for e := range errs {
		t.Error(e)
	}
}
