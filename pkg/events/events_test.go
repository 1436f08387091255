// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package events

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSizes(t *testing.T) {
	assert.Equal(t, 306, ExecEventSize)
	assert.Equal(t, 290, FileOpenEventSize)
	assert.Equal(t, 38, ConnectEventSize)
}

func TestExecEvent_Layout(t *testing.T) {
	ev := &ExecEvent{PID: 1234, PPID: 1, CgroupID: 0xdeadbeef, Blocked: true}
	SetCString(ev.Comm[:], []byte("bash"))
	SetCString(ev.PComm[:], []byte("sshd"))
	SetCString(ev.Filename[:], []byte("/usr/bin/nc"))

	buf := make([]byte, ev.Size())
	require.Equal(t, ExecEventSize, ev.MarshalTo(buf))

	assert.Equal(t, byte(TypeExec), buf[0])
	assert.Equal(t, uint32(1234), binary.LittleEndian.Uint32(buf[1:5]))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(buf[5:9]))
	assert.Equal(t, uint64(0xdeadbeef), binary.LittleEndian.Uint64(buf[9:17]))
	assert.Equal(t, "bash", CString(buf[17:33]))
	assert.Equal(t, "sshd", CString(buf[33:49]))
	assert.Equal(t, "/usr/bin/nc", CString(buf[49:305]))
	assert.Equal(t, byte(1), buf[305])

	decoded, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, ev, decoded)
}

func TestFileOpenEvent_Layout(t *testing.T) {
	ev := &FileOpenEvent{PID: 7, CgroupID: 99, Flags: 0o2, Ino: 4242, Dev: 2049}
	SetCString(ev.Filename[:], []byte("/etc/shadow"))

	buf := make([]byte, ev.Size())
	ev.MarshalTo(buf)

	assert.Equal(t, byte(TypeFileOpen), buf[0])
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(buf[1:5]))
	assert.Equal(t, uint64(99), binary.LittleEndian.Uint64(buf[5:13]))
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(buf[13:17]))
	assert.Equal(t, uint64(4242), binary.LittleEndian.Uint64(buf[17:25]))
	assert.Equal(t, uint64(2049), binary.LittleEndian.Uint64(buf[25:33]))
	assert.Equal(t, "/etc/shadow", CString(buf[33:289]))
	assert.Equal(t, byte(0), buf[289])

	decoded, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, ev, decoded)
}

func TestConnectEvent_Layout(t *testing.T) {
	ev := &ConnectEvent{PID: 55, CgroupID: 3, Family: AFInet, Port: 4444, Blocked: true}
	ev.AddrV4 = binary.LittleEndian.Uint32(net.ParseIP("10.1.2.3").To4())

	buf := make([]byte, ev.Size())
	ev.MarshalTo(buf)

	assert.Equal(t, byte(TypeConnect), buf[0])
	assert.Equal(t, uint16(AFInet), binary.LittleEndian.Uint16(buf[13:15]))
	assert.Equal(t, uint16(4444), binary.LittleEndian.Uint16(buf[15:17]))
	assert.Equal(t, []byte{10, 1, 2, 3}, buf[17:21])
	assert.Equal(t, byte(1), buf[37])

	decoded, err := Decode(buf)
	require.NoError(t, err)
	c := decoded.(*ConnectEvent)
	assert.Equal(t, "10.1.2.3", c.IP().String())
}

func TestConnectEvent_IPv6(t *testing.T) {
	ev := &ConnectEvent{Family: AFInet6, Port: 443}
	copy(ev.AddrV6[:], net.ParseIP("2001:db8::1"))
	assert.Equal(t, "2001:db8::1", ev.IP().String())

	ev.Family = 1
	assert.Nil(t, ev.IP())
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode(nil)
	assert.ErrorIs(t, err, ErrShortRecord)

	_, err = Decode([]byte{9, 0, 0})
	assert.ErrorIs(t, err, ErrUnknownType)

	for _, typ := range []Type{TypeExec, TypeFileOpen, TypeConnect} {
		_, err = Decode([]byte{byte(typ), 1, 2, 3})
		assert.ErrorIs(t, err, ErrShortRecord, typ.String())
	}
}

func TestSetCString_Truncates(t *testing.T) {
	var comm [TaskCommLen]byte
	SetCString(comm[:], []byte("a-very-long-process-name"))
	assert.Equal(t, "a-very-long-pro", CString(comm[:]))
	assert.Equal(t, byte(0), comm[TaskCommLen-1])

	// Shorter values clear the previous tail
	SetCString(comm[:], []byte("sh"))
	assert.Equal(t, "sh", CString(comm[:]))
}
