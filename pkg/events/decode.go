// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package events

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrShortRecord = errors.New("event record too short")
	ErrUnknownType = errors.New("unknown event type")
)

// Decode parses one record produced by MarshalTo or by the kernel programs.
// Trailing bytes beyond the record size are ignored.
func Decode(data []byte) (Event, error) {
	if len(data) == 0 {
		return nil, ErrShortRecord
	}

	switch Type(data[0]) {
	case TypeExec:
		return decodeExec(data)
	case TypeFileOpen:
		return decodeFileOpen(data)
	case TypeConnect:
		return decodeConnect(data)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, data[0])
	}
}

func decodeExec(data []byte) (*ExecEvent, error) {
	if len(data) < ExecEventSize {
		return nil, fmt.Errorf("%w: exec record is %d bytes", ErrShortRecord, len(data))
	}

	ev := &ExecEvent{}
	off := 1
	ev.PID = binary.LittleEndian.Uint32(data[off:])
	off += 4
	ev.PPID = binary.LittleEndian.Uint32(data[off:])
	off += 4
	ev.CgroupID = binary.LittleEndian.Uint64(data[off:])
	off += 8
	off += copy(ev.Comm[:], data[off:off+TaskCommLen])
	off += copy(ev.PComm[:], data[off:off+TaskCommLen])
	off += copy(ev.Filename[:], data[off:off+PathMaxLen])
	ev.Blocked = data[off] != 0
	return ev, nil
}

func decodeFileOpen(data []byte) (*FileOpenEvent, error) {
	if len(data) < FileOpenEventSize {
		return nil, fmt.Errorf("%w: file open record is %d bytes", ErrShortRecord, len(data))
	}

	ev := &FileOpenEvent{}
	off := 1
	ev.PID = binary.LittleEndian.Uint32(data[off:])
	off += 4
	ev.CgroupID = binary.LittleEndian.Uint64(data[off:])
	off += 8
	ev.Flags = binary.LittleEndian.Uint32(data[off:])
	off += 4
	ev.Ino = binary.LittleEndian.Uint64(data[off:])
	off += 8
	ev.Dev = binary.LittleEndian.Uint64(data[off:])
	off += 8
	off += copy(ev.Filename[:], data[off:off+PathMaxLen])
	ev.Blocked = data[off] != 0
	return ev, nil
}

func decodeConnect(data []byte) (*ConnectEvent, error) {
	if len(data) < ConnectEventSize {
		return nil, fmt.Errorf("%w: connect record is %d bytes", ErrShortRecord, len(data))
	}

	ev := &ConnectEvent{}
	off := 1
	ev.PID = binary.LittleEndian.Uint32(data[off:])
	off += 4
	ev.CgroupID = binary.LittleEndian.Uint64(data[off:])
	off += 8
	ev.Family = binary.LittleEndian.Uint16(data[off:])
	off += 2
	ev.Port = binary.LittleEndian.Uint16(data[off:])
	off += 2
	ev.AddrV4 = binary.LittleEndian.Uint32(data[off:])
	off += 4
	off += copy(ev.AddrV6[:], data[off:off+16])
	ev.Blocked = data[off] != 0
	return ev, nil
}
