// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package events

import (
	"bytes"
	"encoding/binary"
	"net"
)

// Type is the one-byte tag at offset 0 of every record.
type Type uint8

const (
	TypeExec     Type = 1
	TypeFileOpen Type = 2
	TypeConnect  Type = 3
)

func (t Type) String() string {
	switch t {
	case TypeExec:
		return "exec"
	case TypeFileOpen:
		return "file_open"
	case TypeConnect:
		return "connect"
	default:
		return "unknown"
	}
}

const (
	TaskCommLen = 16
	PathMaxLen  = 256

	// Record sizes: tag + fields + blocked byte, packed.
	ExecEventSize     = 1 + 4 + 4 + 8 + TaskCommLen + TaskCommLen + PathMaxLen + 1
	FileOpenEventSize = 1 + 4 + 8 + 4 + 8 + 8 + PathMaxLen + 1
	ConnectEventSize  = 1 + 4 + 8 + 2 + 2 + 4 + 16 + 1

	AFInet  = 2
	AFInet6 = 10
)

// Event is one of ExecEvent, FileOpenEvent or ConnectEvent.
type Event interface {
	Type() Type
	Size() int
	// MarshalTo writes the packed record into dst, which must hold at least
	// Size() bytes, and returns the number of bytes written.
	MarshalTo(dst []byte) int
	isEvent()
}

// ExecEvent is emitted for every exec, allowed or not.
type ExecEvent struct {
	PID      uint32
	PPID     uint32
	CgroupID uint64
	Comm     [TaskCommLen]byte
	PComm    [TaskCommLen]byte
	Filename [PathMaxLen]byte
	Blocked  bool
}

// FileOpenEvent is emitted for opens matching a Monitor or Block entry.
type FileOpenEvent struct {
	PID      uint32
	CgroupID uint64
	Flags    uint32
	Ino      uint64
	Dev      uint64
	Filename [PathMaxLen]byte
	Blocked  bool
}

// ConnectEvent is emitted for connects matching a port policy entry. Port
// is in host order; AddrV4 holds the address bytes as read in little-endian.
type ConnectEvent struct {
	PID      uint32
	CgroupID uint64
	Family   uint16
	Port     uint16
	AddrV4   uint32
	AddrV6   [16]byte
	Blocked  bool
}

func (*ExecEvent) Type() Type     { return TypeExec }
func (*FileOpenEvent) Type() Type { return TypeFileOpen }
func (*ConnectEvent) Type() Type  { return TypeConnect }

func (*ExecEvent) Size() int     { return ExecEventSize }
func (*FileOpenEvent) Size() int { return FileOpenEventSize }
func (*ConnectEvent) Size() int  { return ConnectEventSize }

func (*ExecEvent) isEvent()     {}
func (*FileOpenEvent) isEvent() {}
func (*ConnectEvent) isEvent()  {}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// MarshalTo implements Event.
func (e *ExecEvent) MarshalTo(dst []byte) int {
	_ = dst[ExecEventSize-1]
	dst[0] = byte(TypeExec)
	off := 1
	binary.LittleEndian.PutUint32(dst[off:], e.PID)
	off += 4
	binary.LittleEndian.PutUint32(dst[off:], e.PPID)
	off += 4
	binary.LittleEndian.PutUint64(dst[off:], e.CgroupID)
	off += 8
	off += copy(dst[off:off+TaskCommLen], e.Comm[:])
	off += copy(dst[off:off+TaskCommLen], e.PComm[:])
	off += copy(dst[off:off+PathMaxLen], e.Filename[:])
	dst[off] = boolByte(e.Blocked)
	return ExecEventSize
}

// MarshalTo implements Event.
func (e *FileOpenEvent) MarshalTo(dst []byte) int {
	_ = dst[FileOpenEventSize-1]
	dst[0] = byte(TypeFileOpen)
	off := 1
	binary.LittleEndian.PutUint32(dst[off:], e.PID)
	off += 4
	binary.LittleEndian.PutUint64(dst[off:], e.CgroupID)
	off += 8
	binary.LittleEndian.PutUint32(dst[off:], e.Flags)
	off += 4
	binary.LittleEndian.PutUint64(dst[off:], e.Ino)
	off += 8
	binary.LittleEndian.PutUint64(dst[off:], e.Dev)
	off += 8
	off += copy(dst[off:off+PathMaxLen], e.Filename[:])
	dst[off] = boolByte(e.Blocked)
	return FileOpenEventSize
}

// MarshalTo implements Event.
func (e *ConnectEvent) MarshalTo(dst []byte) int {
	_ = dst[ConnectEventSize-1]
	dst[0] = byte(TypeConnect)
	off := 1
	binary.LittleEndian.PutUint32(dst[off:], e.PID)
	off += 4
	binary.LittleEndian.PutUint64(dst[off:], e.CgroupID)
	off += 8
	binary.LittleEndian.PutUint16(dst[off:], e.Family)
	off += 2
	binary.LittleEndian.PutUint16(dst[off:], e.Port)
	off += 2
	binary.LittleEndian.PutUint32(dst[off:], e.AddrV4)
	off += 4
	off += copy(dst[off:off+16], e.AddrV6[:])
	dst[off] = boolByte(e.Blocked)
	return ConnectEventSize
}

// CString returns b up to its first NUL.
func CString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// SetCString copies s into dst, truncating so that a NUL always fits.
func SetCString(dst []byte, s []byte) {
	n := copy(dst[:len(dst)-1], s)
	clear(dst[n:])
}

// IP returns the destination address of a connect event.
func (e *ConnectEvent) IP() net.IP {
	switch e.Family {
	case AFInet:
		ip := make(net.IP, 4)
		binary.LittleEndian.PutUint32(ip, e.AddrV4)
		return ip
	case AFInet6:
		ip := make(net.IP, 16)
		copy(ip, e.AddrV6[:])
		return ip
	default:
		return nil
	}
}
