// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package policy

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

const (
	// MaxKeyLen is the largest path policy key, matching the kernel map key.
	MaxKeyLen = 256

	// DefaultCapacity mirrors the max_entries of the kernel policy maps.
	DefaultCapacity = 1024

	pathShardCount = 64
	portSlots      = 1 << 16
)

var (
	ErrKeyTooLong    = errors.New("policy key exceeds 256 bytes")
	ErrEmptyKey      = errors.New("policy key is empty")
	ErrInvalidAction = errors.New("invalid policy action")
	ErrStoreFull     = errors.New("policy store is full")
	ErrNotFound      = errors.New("policy entry not found")
)

// PathEntry is one path policy entry.
type PathEntry struct {
	Key    string
	Action Action
}

// PortEntry is one port policy entry.
type PortEntry struct {
	Port   uint16
	Action Action
}

type pathShard struct {
	mu sync.RWMutex
	m  map[string]Action
}

// PathStore maps path-like keys to actions. Each shard has its own lock;
// there is no store-wide lock.
type PathStore struct {
	shards   [pathShardCount]pathShard
	count    atomic.Int64
	capacity int64
}

// NewPathStore creates a store holding at most capacity keys (<= 0 means
// DefaultCapacity).
func NewPathStore(capacity int) *PathStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &PathStore{capacity: int64(capacity)}
	for i := range s.shards {
		s.shards[i].m = make(map[string]Action)
	}
	return s
}

func fnv1a(b []byte) uint32 {
	h := uint32(2166136261)
	for _, c := range b {
		h ^= uint32(c)
		h *= 16777619
	}
	return h
}

func fnv1aString(s string) uint32 {
	h := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

func validateKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if len(key) > MaxKeyLen {
		return fmt.Errorf("%w: %d bytes", ErrKeyTooLong, len(key))
	}
	return nil
}

// Put inserts or updates key.
func (s *PathStore) Put(key string, a Action) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if !a.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidAction, a)
	}

	sh := &s.shards[fnv1aString(key)%pathShardCount]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.m[key]; !ok {
		if s.count.Add(1) > s.capacity {
			s.count.Add(-1)
			return fmt.Errorf("%w: %d entries", ErrStoreFull, s.capacity)
		}
	}
	sh.m[key] = a
	return nil
}

// Delete removes key and reports whether it was present.
func (s *PathStore) Delete(key string) bool {
	sh := &s.shards[fnv1aString(key)%pathShardCount]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.m[key]; !ok {
		return false
	}
	delete(sh.m, key)
	s.count.Add(-1)
	return true
}

// Lookup is the hot-path exact match. It does not allocate.
func (s *PathStore) Lookup(key []byte) (Action, bool) {
	if len(key) == 0 || len(key) > MaxKeyLen {
		return ActionNone, false
	}
	sh := &s.shards[fnv1a(key)%pathShardCount]
	sh.mu.RLock()
	a, ok := sh.m[string(key)]
	sh.mu.RUnlock()
	return a, ok
}

// Get looks key up by string.
func (s *PathStore) Get(key string) (Action, bool) {
	sh := &s.shards[fnv1aString(key)%pathShardCount]
	sh.mu.RLock()
	a, ok := sh.m[key]
	sh.mu.RUnlock()
	return a, ok
}

// Len returns the number of keys.
func (s *PathStore) Len() int {
	return int(s.count.Load())
}

// Entries returns a sorted snapshot. Shards are visited one at a time, so
// the snapshot is not atomic across shards.
func (s *PathStore) Entries() []PathEntry {
	entries := make([]PathEntry, 0, s.Len())
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for k, a := range sh.m {
			entries = append(entries, PathEntry{Key: k, Action: a})
		}
		sh.mu.RUnlock()
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries
}

// PortStore maps destination ports to actions with one atomic slot per port,
// so lookups and updates never lock.
type PortStore struct {
	slots    [portSlots]atomic.Uint32
	count    atomic.Int64
	capacity int64
}

// NewPortStore creates a store holding at most capacity ports.
func NewPortStore(capacity int) *PortStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &PortStore{capacity: int64(capacity)}
}

// Put inserts or updates port.
func (s *PortStore) Put(port uint16, a Action) error {
	if !a.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidAction, a)
	}
	slot := &s.slots[port]
	for {
		old := slot.Load()
		if old == 0 {
			if s.count.Add(1) > s.capacity {
				s.count.Add(-1)
				if slot.Load() != 0 {
					// Another writer inserted this port; update it instead
					continue
				}
				return fmt.Errorf("%w: %d entries", ErrStoreFull, s.capacity)
			}
			if slot.CompareAndSwap(0, uint32(a)) {
				return nil
			}
			s.count.Add(-1)
			continue
		}
		if slot.CompareAndSwap(old, uint32(a)) {
			return nil
		}
	}
}

// Delete removes port and reports whether it was present. The count drops
// before the slot reads empty, so a Put that sees the empty slot also sees
// the freed capacity.
func (s *PortStore) Delete(port uint16) bool {
	slot := &s.slots[port]
	for {
		old := slot.Load()
		if old == 0 {
			return false
		}
		s.count.Add(-1)
		if slot.CompareAndSwap(old, 0) {
			return true
		}
		s.count.Add(1)
	}
}

// Lookup is the hot-path exact match.
func (s *PortStore) Lookup(port uint16) (Action, bool) {
	v := s.slots[port].Load()
	return Action(v), v != 0
}

// Len returns the number of ports with an entry.
func (s *PortStore) Len() int {
	return int(s.count.Load())
}

// Entries returns a snapshot ordered by port.
func (s *PortStore) Entries() []PortEntry {
	entries := make([]PortEntry, 0, s.Len())
	for p := 0; p < portSlots; p++ {
		if v := s.slots[p].Load(); v != 0 {
			entries = append(entries, PortEntry{Port: uint16(p), Action: Action(v)})
		}
	}
	return entries
}
