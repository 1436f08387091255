// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package fanotify

import (
	lru "github.com/hashicorp/golang-lru"
)

// maxTrackedExecs bounds the per-pid exec state. Evicting an entry only
// means the next exec-open of that pid counts as a new exec.
const maxTrackedExecs = 4096

// execTracker remembers, per pid, the file of the last exec-open that ran
// the exec hook. One execve opens several files with FAN_OPEN_EXEC_PERM: the
// binary, a script interpreter, the ELF interpreter. Only the first is the
// exec; the rest are mediated as plain opens. The state is cleared when the
// new image opens some other file without the exec bit (ld.so loading libc,
// or any regular open by a static binary).
type execTracker struct {
	cache *lru.Cache
}

func newExecTracker() *execTracker {
	c, err := lru.New(maxTrackedExecs)
	if err != nil {
		// Only a non-positive size fails
		panic(err)
	}
	return &execTracker{cache: c}
}

// inProgress reports whether pid is inside an exec that already ran the
// exec hook.
func (t *execTracker) inProgress(pid uint32) bool {
	return t.cache.Contains(pid)
}

// begin records that pid ran the exec hook for f.
func (t *execTracker) begin(pid uint32, f *File) {
	t.cache.Add(pid, f)
}

// follow records f as the latest exec-open file of an exec in progress, so
// that its plain-open half does not end the exec.
func (t *execTracker) follow(pid uint32, f *File) {
	if t.cache.Contains(pid) {
		t.cache.Add(pid, f)
	}
}

// opened ends the exec of pid when f is not the file of its last exec-open.
func (t *execTracker) opened(pid uint32, f *File) {
	v, ok := t.cache.Peek(pid)
	if !ok {
		return
	}
	if last, _ := v.(*File); last != nil && last.sameFile(f) {
		return
	}
	t.cache.Remove(pid)
}

func (t *execTracker) len() int {
	return t.cache.Len()
}
