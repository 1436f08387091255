// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package mediator

import (
	"encoding/binary"

	"github.com/wtalioy/EulerGuard/pkg/events"
)

const (
	sockaddrInetLen  = 8  // family, port, addr
	sockaddrInet6Len = 24 // family, port, flowinfo, addr
)

// Destination is the part of a socket address the connect hook cares about.
type Destination struct {
	Family uint16
	Port   uint16 // host order
	AddrV4 uint32 // address bytes read little-endian, as the kernel stores them
	AddrV6 [16]byte
}

// ParseSockaddr decodes a raw sockaddr_in or sockaddr_in6. Other families
// and truncated buffers are reported as not ok.
func ParseSockaddr(sa []byte) (Destination, bool) {
	var d Destination
	if len(sa) < 2 {
		return d, false
	}

	d.Family = binary.NativeEndian.Uint16(sa[0:2])
	switch d.Family {
	case events.AFInet:
		if len(sa) < sockaddrInetLen {
			return d, false
		}
		d.Port = binary.BigEndian.Uint16(sa[2:4])
		d.AddrV4 = binary.LittleEndian.Uint32(sa[4:8])
	case events.AFInet6:
		if len(sa) < sockaddrInet6Len {
			return d, false
		}
		d.Port = binary.BigEndian.Uint16(sa[2:4])
		copy(d.AddrV6[:], sa[8:24])
	default:
		return d, false
	}
	return d, true
}
