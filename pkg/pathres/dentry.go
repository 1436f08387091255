// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package pathres

import "strings"

// PathDentry is a Dentry chain built from a path string, for substrates that
// only learn the path of a file (fanotify, /proc). No canonicalization is
// done: "." and ".." are kept as ordinary names.
type PathDentry struct {
	name   []byte
	parent *PathDentry
}

// NewRoot returns a root entry, which is its own parent.
func NewRoot() *PathDentry {
	root := &PathDentry{}
	root.parent = root
	return root
}

// NewPathDentry returns the leaf entry of path. Empty components are
// dropped, so "/etc//shadow" and "etc/shadow" both yield root/etc/shadow.
func NewPathDentry(path string) *PathDentry {
	cur := NewRoot()
	for _, part := range strings.Split(path, "/") {
		if part == "" {
			continue
		}
		cur = cur.Child(part)
	}
	return cur
}

// Child creates an entry named name under d.
func (d *PathDentry) Child(name string) *PathDentry {
	return &PathDentry{name: []byte(name), parent: d}
}

// Name implements Dentry.
func (d *PathDentry) Name() []byte {
	if d == nil {
		return nil
	}
	return d.name
}

// Parent implements Dentry.
func (d *PathDentry) Parent() Dentry {
	if d == nil || d.parent == nil {
		return d
	}
	return d.parent
}
