// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package fanotify

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/wtalioy/EulerGuard/pkg/events"
	"github.com/wtalioy/EulerGuard/pkg/lineage"
	"github.com/wtalioy/EulerGuard/pkg/mediator"
	"github.com/wtalioy/EulerGuard/pkg/policy"
	"github.com/wtalioy/EulerGuard/pkg/procfs"
)

func encodeMetadata(eventLen uint32, version uint8, mask uint64, fd, pid int32) []byte {
	b := make([]byte, metadataLen)
	binary.NativeEndian.PutUint32(b[0:4], eventLen)
	b[4] = version
	binary.NativeEndian.PutUint16(b[6:8], metadataLen)
	binary.NativeEndian.PutUint64(b[8:16], mask)
	binary.NativeEndian.PutUint32(b[16:20], uint32(fd))
	binary.NativeEndian.PutUint32(b[20:24], uint32(pid))
	return b
}

func TestParseMetadata(t *testing.T) {
	raw := encodeMetadata(metadataLen, unix.FANOTIFY_METADATA_VERSION, unix.FAN_OPEN_PERM, 5, 1234)

	m, ok := parseMetadata(raw)
	require.True(t, ok)
	assert.Equal(t, uint32(metadataLen), m.EventLen)
	assert.Equal(t, uint64(unix.FAN_OPEN_PERM), m.Mask)
	assert.Equal(t, int32(5), m.Fd)
	assert.Equal(t, int32(1234), m.Pid)

	_, ok = parseMetadata(raw[:10])
	assert.False(t, ok)

	_, ok = parseMetadata(encodeMetadata(metadataLen, 1, 0, 5, 1))
	assert.False(t, ok, "wrong version")

	_, ok = parseMetadata(encodeMetadata(4, unix.FANOTIFY_METADATA_VERSION, 0, 5, 1))
	assert.False(t, ok, "event shorter than metadata")

	_, ok = parseMetadata(encodeMetadata(100, unix.FANOTIFY_METADATA_VERSION, 0, 5, 1))
	assert.False(t, ok, "event longer than buffer")
}

func newTestMonitor(t *testing.T) (*Monitor, *policy.PathStore, *events.Channel) {
	t.Helper()

	procRoot := t.TempDir()
	dir := filepath.Join(procRoot, "4242")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stat"), []byte("4242 (cat) S 1 4242 4242 0"), 0o644))

	paths := policy.NewPathStore(0)
	lin, err := lineage.New(64, 1)
	require.NoError(t, err)
	ch, err := events.NewChannel(0)
	require.NoError(t, err)
	med := mediator.New(mediator.Config{}, policy.NewMatcher(paths, policy.NewPortStore(0)), lin, ch)

	return &Monitor{med: med, procs: procfs.Reader{ProcRoot: procRoot}, self: 1, execs: newExecTracker()}, paths, ch
}

func TestMonitor_DecideOpen(t *testing.T) {
	mon, paths, ch := newTestMonitor(t)
	require.NoError(t, paths.Put("/etc/shadow", policy.ActionBlock))

	assert.False(t, mon.Decide(4242, unix.FAN_OPEN_PERM, NewFile("/etc/shadow", unix.O_RDONLY)))
	assert.True(t, mon.Decide(4242, unix.FAN_OPEN_PERM, NewFile("/etc/hosts", unix.O_RDONLY)))

	var got []events.Event
	ch.Poll(func(data []byte) {
		ev, err := events.Decode(data)
		require.NoError(t, err)
		got = append(got, ev)
	})
	require.Len(t, got, 1)
	ev := got[0].(*events.FileOpenEvent)
	assert.Equal(t, uint32(4242), ev.PID)
	assert.True(t, ev.Blocked)

	stats := mon.GetStatistics()
	assert.Equal(t, uint64(1), stats.Denied)
	assert.Equal(t, uint64(1), stats.Allowed)
}

func TestMonitor_DecideExec(t *testing.T) {
	mon, paths, ch := newTestMonitor(t)
	require.NoError(t, paths.Put("nc", policy.ActionBlock))

	assert.False(t, mon.Decide(4242, unix.FAN_OPEN_EXEC_PERM, NewFile("/usr/bin/nc", 0)))

	var exec *events.ExecEvent
	ch.Poll(func(data []byte) {
		ev, err := events.Decode(data)
		require.NoError(t, err)
		exec, _ = ev.(*events.ExecEvent)
	})
	require.NotNil(t, exec)
	assert.Equal(t, "cat", events.CString(exec.Comm[:]))
	assert.Equal(t, uint32(1), exec.PPID)
	assert.Equal(t, "/usr/bin/nc", events.CString(exec.Filename[:]))
}

func drainTypes(t *testing.T, ch *events.Channel) []events.Type {
	t.Helper()
	var types []events.Type
	ch.Poll(func(data []byte) {
		ev, err := events.Decode(data)
		require.NoError(t, err)
		types = append(types, ev.Type())
	})
	return types
}

func TestMonitor_DecideExecOncePerExecve(t *testing.T) {
	mon, paths, ch := newTestMonitor(t)
	require.NoError(t, paths.Put("libc.so.6", policy.ActionMonitor))

	binary := NewFile("/usr/bin/true", 0)
	interp := NewFile("/usr/lib64/ld-linux-x86-64.so.2", 0)

	// execve of a dynamic binary: binary and ELF interpreter are both
	// exec-opens, each followed by its plain open half.
	assert.True(t, mon.Decide(4242, unix.FAN_OPEN_EXEC_PERM, binary))
	assert.True(t, mon.Decide(4242, unix.FAN_OPEN_PERM, binary))
	assert.True(t, mon.Decide(4242, unix.FAN_OPEN_EXEC_PERM, interp))
	assert.True(t, mon.Decide(4242, unix.FAN_OPEN_PERM, interp))
	assert.Equal(t, 1, mon.execs.len())

	// ld.so loading libc ends the exec
	assert.True(t, mon.Decide(4242, unix.FAN_OPEN_PERM, NewFile("/usr/lib64/libc.so.6", unix.O_RDONLY)))
	assert.Zero(t, mon.execs.len())

	assert.Equal(t, []events.Type{events.TypeExec, events.TypeFileOpen}, drainTypes(t, ch))

	// The next execve of the same pid is a new exec
	assert.True(t, mon.Decide(4242, unix.FAN_OPEN_EXEC_PERM, NewFile("/usr/bin/ls", 0)))
	assert.Equal(t, []events.Type{events.TypeExec}, drainTypes(t, ch))

	stats := mon.med.GetStatistics()
	assert.Equal(t, uint64(2), stats.Exec.Invocations)
}

func TestMonitor_DecideInterpreterStillEnforced(t *testing.T) {
	mon, paths, ch := newTestMonitor(t)
	require.NoError(t, paths.Put("/usr/bin/python3", policy.ActionBlock))

	assert.True(t, mon.Decide(4242, unix.FAN_OPEN_EXEC_PERM, NewFile("/opt/tool.py", 0)))
	// The script interpreter is mediated as an open and can still deny
	assert.False(t, mon.Decide(4242, unix.FAN_OPEN_EXEC_PERM, NewFile("/usr/bin/python3", 0)))

	assert.Equal(t, []events.Type{events.TypeExec, events.TypeFileOpen}, drainTypes(t, ch))
	assert.Equal(t, uint64(1), mon.med.GetStatistics().FileOpen.Denied)
}

func TestMonitor_DeniedExecIsNotTracked(t *testing.T) {
	mon, paths, ch := newTestMonitor(t)
	require.NoError(t, paths.Put("nc", policy.ActionBlock))

	assert.False(t, mon.Decide(4242, unix.FAN_OPEN_EXEC_PERM, NewFile("/usr/bin/nc", 0)))
	assert.Zero(t, mon.execs.len())

	// The process keeps its old image; its next exec runs the exec hook
	assert.True(t, mon.Decide(4242, unix.FAN_OPEN_EXEC_PERM, NewFile("/usr/bin/id", 0)))
	assert.Equal(t, []events.Type{events.TypeExec, events.TypeExec}, drainTypes(t, ch))
}

func TestFile_SameFile(t *testing.T) {
	a := NewFile("/usr/bin/true", 0)
	b := NewFile("/usr/bin/true", 0)
	assert.True(t, a.sameFile(b))
	assert.False(t, a.sameFile(nil))

	a.ino, a.dev, a.hasInode = 1, 2, true
	b.ino, b.dev, b.hasInode = 3, 2, true
	assert.False(t, a.sameFile(b), "inode wins over path")
	assert.False(t, a.sameFile(NewFile("/usr/bin/false", 0)))
}

func TestMonitor_DecideUnknownProcess(t *testing.T) {
	mon, paths, _ := newTestMonitor(t)
	require.NoError(t, paths.Put("shadow", policy.ActionBlock))

	// The process exited before we could read /proc; the decision still holds
	assert.False(t, mon.Decide(9999, unix.FAN_OPEN_PERM, NewFile("/etc/shadow", 0)))
}

func TestFile_Inode(t *testing.T) {
	f := NewFile("/etc/hosts", unix.O_RDONLY)
	_, _, ok := f.Inode()
	assert.False(t, ok)
	assert.Equal(t, uint32(unix.O_RDONLY), f.Flags())
	assert.Equal(t, "hosts", string(f.Dentry().Name()))

	f.ino, f.dev, f.hasInode = 10, 20, true
	ino, dev, ok := f.Inode()
	assert.True(t, ok)
	assert.Equal(t, uint64(10), ino)
	assert.Equal(t, uint64(20), dev)
}
