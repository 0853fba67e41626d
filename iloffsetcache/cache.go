// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package iloffsetcache implements a lossy, lock free cache from native code
// address to IL offset.
//
// Readers never block: a lookup snapshots a version counter, probes a few
// slots and validates the version again. At most one writer is active at a
// time. A writer claims the table by moving the version from even to odd with
// a single compare-and-swap, and publishes its stores by moving it to the next
// even value. Writers that lose the race drop their value.
//
// Entries are never removed, only overwritten, so a lookup may miss a value
// that was inserted earlier. It never returns a value stored for a different
// address or adjustment flag.
package iloffsetcache // import "go.opentelemetry.io/ilstack/iloffsetcache"

import (
	"sync/atomic"

	"go.opentelemetry.io/ilstack/config"
	"go.opentelemetry.io/ilstack/libpf"
	"go.opentelemetry.io/ilstack/libpf/hash"
	"go.opentelemetry.io/ilstack/libpf/xsync"
	"go.opentelemetry.io/ilstack/metrics"
)

const (
	// probeWidth is the number of consecutive slots a key may occupy.
	probeWidth = 8

	// adjustBit is packed into the stored IL offset to carry the adjustment flag.
	adjustBit uint32 = 0x80000000
)

type entry struct {
	addr  atomic.Uintptr
	value atomic.Uint32
}

type table struct {
	entries []entry
}

// Cache maps (address, adjustment flag) pairs to IL offsets.
type Cache struct {
	// version is even while no writer is active.
	version  atomic.Uint64
	table    atomic.Pointer[table]
	capacity uint32

	// allocate returns the backing array, or nil when it cannot be allocated.
	allocate func(n uint32) []entry

	hits          atomic.Uint64
	misses        atomic.Uint64
	inserts       atomic.Uint64
	contended     atomic.Uint64
	allocFailures atomic.Uint64
}

// New returns an empty cache of the given capacity. A capacity of 0 is
// treated as 1. The backing array is allocated on the first insert.
func New(capacity uint32) *Cache {
	return &Cache{
		capacity: max(capacity, 1),
		allocate: func(n uint32) []entry { return make([]entry, n) },
	}
}

var (
	defaultCache xsync.Once[*Cache]
	// defaultCapacity is the configured size of defaultCache, 0 if unset.
	defaultCapacity atomic.Uint32
)

// Configure sizes the process wide cache from cfg. It has to run before the
// first call to Default and reports false if the cache already exists.
func Configure(cfg *config.Config) bool {
	defaultCapacity.Store(cfg.CacheSize())
	return defaultCache.Get() == nil
}

// Default returns the process wide cache, creating it on first use.
func Default() *Cache {
	c, _ := defaultCache.GetOrInit(func() (*Cache, error) {
		capacity := defaultCapacity.Load()
		if capacity == 0 {
			capacity = config.ClampCacheSize(config.DefaultNativeToILCacheSize)
		}
		return New(capacity), nil
	})
	return *c
}

// AdjustFlag derives the adjustment part of the cache key. Return addresses
// (not yet adjusted and past the first instruction) are looked up one
// instruction back by the symbol provider and get their own key.
func AdjustFlag(alreadyAdjusted bool, nativeOffset uint32) bool {
	return !alreadyAdjusted && nativeOffset > 0
}

// Capacity returns the number of slots of the cache.
func (c *Cache) Capacity() uint32 {
	return c.capacity
}

// Allocated reports whether the backing array exists.
func (c *Cache) Allocated() bool {
	return c.table.Load() != nil
}

func packValue(ilOffset uint32, adjust bool) uint32 {
	if adjust {
		return ilOffset | adjustBit
	}
	return ilOffset
}

// home returns the first slot of the probe window of addr.
func (t *table) home(addr libpf.Address) uint32 {
	return addr.Hash32() % uint32(len(t.entries))
}

func (t *table) window() uint32 {
	return min(probeWidth, uint32(len(t.entries)))
}

func (t *table) slot(home, i uint32) *entry {
	return &t.entries[(uint64(home)+uint64(i))%uint64(len(t.entries))]
}

// find probes the window of addr for the key. Probing ends at the first empty
// slot: slots are never emptied and inserts fill the window front to back.
func (t *table) find(addr libpf.Address, adjust bool) (*entry, uint32, bool) {
	home := t.home(addr)
	for i := range t.window() {
		e := t.slot(home, i)
		stored := libpf.Address(e.addr.Load())
		if stored == 0 {
			return nil, 0, false
		}
		if stored != addr {
			continue
		}
		value := e.value.Load()
		if (value&adjustBit != 0) == adjust {
			return e, value, true
		}
	}
	return nil, 0, false
}

// victim picks the slot a new key is written to: the first empty slot of the
// window, or a slot chosen from the version when the window is full.
func (t *table) victim(addr libpf.Address, versionStart uint64) *entry {
	home := t.home(addr)
	window := t.window()
	for i := range window {
		e := t.slot(home, i)
		if e.addr.Load() == 0 {
			return e
		}
	}
	return t.slot(home, hash.Uint32(uint32(versionStart))%window)
}

// Lookup returns the IL offset stored for the key. A concurrent writer turns
// the lookup into a miss.
func (c *Cache) Lookup(addr libpf.Address, adjust bool) (uint32, bool) {
	ilOffset, ok := c.lookup(addr, adjust)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return ilOffset, ok
}

func (c *Cache) lookup(addr libpf.Address, adjust bool) (uint32, bool) {
	versionStart := c.version.Load()
	if versionStart&1 != 0 {
		return 0, false
	}
	t := c.table.Load()
	if t == nil {
		return 0, false
	}
	_, value, ok := t.find(addr, adjust)
	if !ok {
		return 0, false
	}
	if c.version.Load() != versionStart {
		return 0, false
	}
	return value &^ adjustBit, true
}

// Insert stores the IL offset for the key if no other writer is active.
// Address 0 and IL offsets using the top bit are not stored.
func (c *Cache) Insert(addr libpf.Address, adjust bool, ilOffset uint32) {
	if addr == 0 || ilOffset&adjustBit != 0 {
		return
	}
	if v, ok := c.lookup(addr, adjust); ok && v == ilOffset {
		return
	}

	versionStart := c.version.Load()
	if versionStart&1 != 0 {
		c.contended.Add(1)
		return
	}
	if !c.version.CompareAndSwap(versionStart, versionStart|1) {
		c.contended.Add(1)
		return
	}

	t := c.table.Load()
	if t == nil {
		entries := c.allocate(c.capacity)
		if entries == nil {
			c.allocFailures.Add(1)
			c.version.Store(versionStart)
			return
		}
		t = &table{entries: entries}
		c.table.Store(t)
	}

	value := packValue(ilOffset, adjust)
	if e, stored, ok := t.find(addr, adjust); ok {
		if stored == value {
			// Another writer got here first. The table is unchanged, so the
			// old version is restored instead of advanced to the next even one.
			c.version.Store(versionStart)
			return
		}
		e.value.Store(value)
	} else {
		e := t.victim(addr, versionStart)
		e.addr.Store(uintptr(addr))
		e.value.Store(value)
	}
	c.inserts.Add(1)
	c.version.Store(versionStart + 2)
}

// GetAndResetMetrics returns the cache counters accumulated since the last call.
func (c *Cache) GetAndResetMetrics() []metrics.Metric {
	return []metrics.Metric{
		{
			ID:    metrics.IDNativeToILCacheHit,
			Value: metrics.MetricValue(c.hits.Swap(0)),
		},
		{
			ID:    metrics.IDNativeToILCacheMiss,
			Value: metrics.MetricValue(c.misses.Swap(0)),
		},
		{
			ID:    metrics.IDNativeToILCacheInsert,
			Value: metrics.MetricValue(c.inserts.Swap(0)),
		},
		{
			ID:    metrics.IDNativeToILCacheInsertContended,
			Value: metrics.MetricValue(c.contended.Swap(0)),
		},
		{
			ID:    metrics.IDNativeToILCacheAllocFailure,
			Value: metrics.MetricValue(c.allocFailures.Swap(0)),
		},
		{
			ID:    metrics.IDNativeToILCacheSlots,
			Value: metrics.MetricValue(c.allocatedSlots()),
		},
	}
}

// allocatedSlots returns the number of slots backed by memory.
func (c *Cache) allocatedSlots() int {
	if t := c.table.Load(); t != nil {
		return len(t.entries)
	}
	return 0
}
