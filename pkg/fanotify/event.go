// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package fanotify

import (
	"encoding/binary"

	"golang.org/x/sys/unix"

	"github.com/wtalioy/EulerGuard/pkg/pathres"
)

// metadata mirrors struct fanotify_event_metadata.
type metadata struct {
	EventLen    uint32
	Version     uint8
	MetadataLen uint16
	Mask        uint64
	Fd          int32
	Pid         int32
}

func parseMetadata(b []byte) (metadata, bool) {
	if len(b) < metadataLen {
		return metadata{}, false
	}

	m := metadata{
		EventLen:    binary.NativeEndian.Uint32(b[0:4]),
		Version:     b[4],
		MetadataLen: binary.NativeEndian.Uint16(b[6:8]),
		Mask:        binary.NativeEndian.Uint64(b[8:16]),
		Fd:          int32(binary.NativeEndian.Uint32(b[16:20])),
		Pid:         int32(binary.NativeEndian.Uint32(b[20:24])),
	}
	if m.Version != unix.FANOTIFY_METADATA_VERSION ||
		m.EventLen < metadataLen || int(m.EventLen) > len(b) {
		return metadata{}, false
	}
	return m, true
}

// File is the mediator view of a file behind a fanotify event fd.
type File struct {
	name     string
	path     *pathres.PathDentry
	flags    uint32
	ino      uint64
	dev      uint64
	hasInode bool
}

// NewFile creates a File for path; used when the event fd has already
// been inspected.
func NewFile(path string, flags uint32) *File {
	return &File{name: path, path: pathres.NewPathDentry(path), flags: flags}
}

func newFile(path string) *File {
	return &File{name: path, path: pathres.NewPathDentry(path)}
}

func (f *File) Dentry() pathres.Dentry { return f.path }
func (f *File) Flags() uint32          { return f.flags }

// Inode implements mediator.InodeResolver.
func (f *File) Inode() (uint64, uint64, bool) {
	return f.ino, f.dev, f.hasInode
}

// sameFile compares by inode when both sides have one, by path otherwise.
func (f *File) sameFile(o *File) bool {
	if o == nil {
		return false
	}
	if f.hasInode && o.hasInode {
		return f.ino == o.ino && f.dev == o.dev
	}
	return f.name == o.name
}
