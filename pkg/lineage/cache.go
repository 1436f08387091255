// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package lineage

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"
)

const (
	// DefaultCapacity matches the kernel pid_to_ppid map.
	DefaultCapacity = 10240

	// DefaultShards spreads writers from concurrent exec hooks.
	DefaultShards = 16
)

// Cache records pid -> parent pid for every exec. Entries are evicted least
// recently used first, per shard. Each shard is a golang-lru cache with its
// own lock.
type Cache struct {
	shards   []*lru.Cache
	perShard int
	fallback func(pid uint32) (uint32, bool)
}

// New creates a cache holding roughly capacity entries across shards.
func New(capacity, shards int) (*Cache, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if shards <= 0 {
		shards = DefaultShards
	}
	if shards > capacity {
		shards = capacity
	}

	perShard := (capacity + shards - 1) / shards
	c := &Cache{shards: make([]*lru.Cache, shards), perShard: perShard}
	for i := range c.shards {
		l, err := lru.New(perShard)
		if err != nil {
			return nil, fmt.Errorf("failed to create lineage shard: %w", err)
		}
		c.shards[i] = l
	}
	return c, nil
}

func (c *Cache) shard(pid uint32) *lru.Cache {
	return c.shards[pid%uint32(len(c.shards))]
}

// Put records that pid's parent is ppid, overwriting any previous value.
func (c *Cache) Put(pid, ppid uint32) {
	c.shard(pid).Add(pid, ppid)
}

// SetFallback installs a lookup consulted on misses; hits are cached. It
// must be called before the cache is shared.
func (c *Cache) SetFallback(fn func(pid uint32) (uint32, bool)) {
	c.fallback = fn
}

// Get returns the recorded parent of pid.
func (c *Cache) Get(pid uint32) (uint32, bool) {
	v, ok := c.shard(pid).Get(pid)
	if ok {
		return v.(uint32), true
	}
	if c.fallback == nil {
		return 0, false
	}
	ppid, ok := c.fallback(pid)
	if ok {
		c.Put(pid, ppid)
	}
	return ppid, ok
}

// Ancestors walks the parent chain of pid, nearest first, stopping at max
// hops, a missing entry, pid 0 or a repeat.
func (c *Cache) Ancestors(pid uint32, max int) []uint32 {
	var chain []uint32
	seen := map[uint32]struct{}{pid: {}}
	for len(chain) < max {
		ppid, ok := c.Get(pid)
		if !ok || ppid == 0 {
			break
		}
		if _, dup := seen[ppid]; dup {
			break
		}
		seen[ppid] = struct{}{}
		chain = append(chain, ppid)
		pid = ppid
	}
	return chain
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	n := 0
	for _, s := range c.shards {
		n += s.Len()
	}
	return n
}

// Capacity returns the total number of entries the shards can hold.
func (c *Cache) Capacity() int {
	return len(c.shards) * c.perShard
}
