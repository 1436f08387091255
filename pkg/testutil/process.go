// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause

// Package testutil provides fakes and helpers for exercising the mediator:
// synthetic tasks and files, raw socket address builders, kernel map
// helpers, and environment checks for privileged end-to-end tests.
package testutil

import (
	"encoding/binary"
	"net"

	"github.com/wtalioy/EulerGuard/pkg/pathres"
)

// FakeTask is a mediator.Task with fixed identity.
type FakeTask struct {
	Pid    uint32
	Ppid   uint32
	Cgroup uint64
	Name   string
	Parent string
}

// NewFakeTask creates a task named comm whose parent is ppid/"init".
func NewFakeTask(pid, ppid uint32, comm string) *FakeTask {
	return &FakeTask{Pid: pid, Ppid: ppid, Name: comm, Parent: "init"}
}

func (t *FakeTask) PID() uint32        { return t.Pid }
func (t *FakeTask) ParentPID() uint32  { return t.Ppid }
func (t *FakeTask) CgroupID() uint64   { return t.Cgroup }
func (t *FakeTask) Comm() []byte       { return []byte(t.Name) }
func (t *FakeTask) ParentComm() []byte { return []byte(t.Parent) }

// FakeFile is a mediator.File backed by a PathDentry chain.
type FakeFile struct {
	D        pathres.Dentry
	OpenFlag uint32
	Ino      uint64
	Dev      uint64
}

// NewFakeFile creates a file for an absolute path.
func NewFakeFile(path string, flags uint32) *FakeFile {
	return &FakeFile{D: pathres.NewPathDentry(path), OpenFlag: flags}
}

func (f *FakeFile) Dentry() pathres.Dentry { return f.D }
func (f *FakeFile) Flags() uint32          { return f.OpenFlag }

// Inode reports the inode when one was set.
func (f *FakeFile) Inode() (uint64, uint64, bool) {
	return f.Ino, f.Dev, f.Ino != 0
}

// SockaddrInet4 builds a raw sockaddr_in as passed to connect(2).
func SockaddrInet4(ip string, port uint16) []byte {
	sa := make([]byte, 16)
	binary.NativeEndian.PutUint16(sa[0:2], 2)
	binary.BigEndian.PutUint16(sa[2:4], port)
	copy(sa[4:8], net.ParseIP(ip).To4())
	return sa
}

// SockaddrInet6 builds a raw sockaddr_in6 as passed to connect(2).
func SockaddrInet6(ip string, port uint16) []byte {
	sa := make([]byte, 28)
	binary.NativeEndian.PutUint16(sa[0:2], 10)
	binary.BigEndian.PutUint16(sa[2:4], port)
	copy(sa[8:24], net.ParseIP(ip).To16())
	return sa
}

// SockaddrUnix builds a raw sockaddr_un for path.
func SockaddrUnix(path string) []byte {
	sa := make([]byte, 2+len(path)+1)
	binary.NativeEndian.PutUint16(sa[0:2], 1)
	copy(sa[2:], path)
	return sa
}
