// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package testutil

import (
	"errors"
	"fmt"

	"github.com/cilium/ebpf"
)

// PathKey builds a monitored_paths key: the path NUL-padded to 256 bytes.
// This must match the kernel-side key exactly.
func PathKey(path string) [256]byte {
	var key [256]byte
	copy(key[:], path)
	return key
}

// LookupPathAction returns the action stored for path in a monitored_paths
// map, or 0 when there is none.
func LookupPathAction(pathMap *ebpf.Map, path string) (uint8, error) {
	key := PathKey(path)
	var action uint8

	if err := pathMap.Lookup(&key, &action); err != nil {
		if errors.Is(err, ebpf.ErrKeyNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("path lookup failed: %w", err)
	}

	return action, nil
}

// LookupPortAction returns the action stored for port in a blocked_ports
// map, or 0 when there is none.
func LookupPortAction(portMap *ebpf.Map, port uint16) (uint8, error) {
	var action uint8

	if err := portMap.Lookup(&port, &action); err != nil {
		if errors.Is(err, ebpf.ErrKeyNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("port lookup failed: %w", err)
	}

	return action, nil
}

// LookupParent returns the parent recorded in a pid_to_ppid map.
func LookupParent(lineageMap *ebpf.Map, pid uint32) (uint32, bool, error) {
	var ppid uint32

	if err := lineageMap.Lookup(&pid, &ppid); err != nil {
		if errors.Is(err, ebpf.ErrKeyNotExist) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("lineage lookup failed: %w", err)
	}

	return ppid, true, nil
}

// CountEntries counts the entries of a hash map.
func CountEntries(m *ebpf.Map) (int, error) {
	count := 0
	key := make([]byte, m.KeySize())
	value := make([]byte, m.ValueSize())

	iter := m.Iterate()
	for iter.Next(key, value) {
		count++
	}

	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to iterate map: %w", err)
	}

	return count, nil
}
