// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause

// Package procfs reads process identity from /proc for user-space
// substrates, which see a pid but not the kernel task structure.
package procfs

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

const (
	DefaultProcRoot   = "/proc"
	DefaultCgroupRoot = "/sys/fs/cgroup"
)

// Task is a snapshot of a process as seen by the mediator.
type Task struct {
	Pid    uint32
	Ppid   uint32
	Cgroup uint64
	Name   []byte
	PComm  []byte
}

func (t *Task) PID() uint32        { return t.Pid }
func (t *Task) ParentPID() uint32  { return t.Ppid }
func (t *Task) CgroupID() uint64   { return t.Cgroup }
func (t *Task) Comm() []byte       { return t.Name }
func (t *Task) ParentComm() []byte { return t.PComm }

// Reader resolves pids against a proc and cgroup2 mount. Zero values use
// the default mount points.
type Reader struct {
	ProcRoot   string
	CgroupRoot string
}

func (r Reader) procRoot() string {
	if r.ProcRoot == "" {
		return DefaultProcRoot
	}
	return r.ProcRoot
}

func (r Reader) cgroupRoot() string {
	if r.CgroupRoot == "" {
		return DefaultCgroupRoot
	}
	return r.CgroupRoot
}

// Task reads pid's identity. Only a missing or unparsable stat file is an
// error; parent comm and cgroup id degrade to zero values.
func (r Reader) Task(pid uint32) (*Task, error) {
	ppid, comm, err := r.Stat(pid)
	if err != nil {
		return nil, err
	}

	t := &Task{Pid: pid, Ppid: ppid, Name: comm}
	if ppid != 0 {
		if _, pcomm, err := r.Stat(ppid); err == nil {
			t.PComm = pcomm
		}
	}
	t.Cgroup = r.CgroupID(pid)
	return t, nil
}

// Stat parses "pid (comm) state ppid ..." from /proc/<pid>/stat. The comm
// may itself contain spaces and parentheses, so it ends at the last ')'.
func (r Reader) Stat(pid uint32) (ppid uint32, comm []byte, err error) {
	data, err := os.ReadFile(filepath.Join(r.procRoot(), strconv.FormatUint(uint64(pid), 10), "stat"))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read stat of pid %d: %w", pid, err)
	}
	return parseStat(data)
}

func parseStat(data []byte) (uint32, []byte, error) {
	str := string(data)

	commStart := strings.IndexByte(str, '(')
	commEnd := strings.LastIndexByte(str, ')')
	if commStart == -1 || commEnd < commStart {
		return 0, nil, fmt.Errorf("invalid stat format")
	}

	fields := strings.Fields(str[commEnd+1:])
	if len(fields) < 2 {
		return 0, nil, fmt.Errorf("invalid stat format")
	}

	ppid, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid ppid %q: %w", fields[1], err)
	}

	return uint32(ppid), []byte(str[commStart+1 : commEnd]), nil
}

// CgroupPath returns the cgroup v2 path of pid ("0::/path"), or "" when
// the process is not in a unified hierarchy.
func (r Reader) CgroupPath(pid uint32) string {
	data, err := os.ReadFile(filepath.Join(r.procRoot(), strconv.FormatUint(uint64(pid), 10), "cgroup"))
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "0::") {
			return strings.TrimPrefix(line, "0::")
		}
	}
	return ""
}

// CgroupID returns the kernel cgroup id of pid, which on cgroup v2 is the
// inode number of the cgroup directory. Unknown cgroups yield 0.
func (r Reader) CgroupID(pid uint32) uint64 {
	path := r.CgroupPath(pid)
	if path == "" {
		return 0
	}

	var st unix.Stat_t
	if err := unix.Stat(filepath.Join(r.cgroupRoot(), path), &st); err != nil {
		return 0
	}
	return st.Ino
}
