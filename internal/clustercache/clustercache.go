// Package clustercache implements small, bounded least-recently-used caches
// over filesystem clusters, keyed by cluster index rather than by a
// contiguous range.
//
// It generalizes github.com/dargueta/disko's drivers/common/blockcache
// package: blockcache caches every block of a single file contiguously and
// never evicts, which fits a file's own extent list but not the filesystem
// engine's own bookkeeping, where only a handful of FAT clusters or
// allocatable clusters are hot at any one time out of possibly tens of
// thousands on the card. Cache keeps blockcache's fetch/flush callback shape
// and its go-bitmap-backed dirty tracking, but adds capacity-bounded LRU
// eviction on top.
package clustercache

import (
	"fmt"

	"github.com/boljen/go-bitmap"
)

// FetchCallback loads the contents of cluster clusterIndex from backing
// storage into buffer. buffer is guaranteed to be exactly bytesPerEntry long.
type FetchCallback func(clusterIndex uint32, buffer []byte) error

// FlushCallback writes buffer back to cluster clusterIndex in backing
// storage. buffer is guaranteed to be exactly bytesPerEntry long.
type FlushCallback func(clusterIndex uint32, buffer []byte) error

type entry struct {
	clusterIndex uint32
	data         []byte
}

// Cache is a fixed-capacity, write-back LRU cache over cluster-sized
// buffers. Evicting a dirty entry flushes it first.
type Cache struct {
	capacity      uint
	bytesPerEntry uint
	fetch         FetchCallback
	flush         FlushCallback

	// entries[0] is the most recently touched slot, entries[len-1] is the
	// next one eviction will claim.
	entries []entry
	dirty   bitmap.Bitmap
	index   map[uint32]int
}

// New creates a Cache holding at most capacity cluster-sized entries.
func New(bytesPerEntry uint, capacity uint, fetchCb FetchCallback, flushCb FlushCallback) *Cache {
	return &Cache{
		capacity:      capacity,
		bytesPerEntry: bytesPerEntry,
		fetch:         fetchCb,
		flush:         flushCb,
		entries:       make([]entry, 0, capacity),
		dirty:         bitmap.NewSlice(int(capacity)),
		index:         make(map[uint32]int, capacity),
	}
}

// Capacity returns the maximum number of entries the cache can hold.
func (c *Cache) Capacity() uint {
	return c.capacity
}

// moveToFront relocates the slot at position i to the front of entries,
// shifting the intervening slots back by one and updating their index
// entries. Callers must hold no other references into c.entries across this
// call, since it reorders the backing array.
func (c *Cache) moveToFront(i int) {
	if i == 0 {
		return
	}
	e := c.entries[i]
	wasDirty := c.dirty.Get(i)
	copy(c.entries[1:i+1], c.entries[0:i])
	c.entries[0] = e

	for slot := 0; slot <= i; slot++ {
		c.index[c.entries[slot].clusterIndex] = slot
	}

	// Re-derive the dirty bitmap for the shifted range; bitmap.Bitmap has no
	// bulk shift operation, so this is done bit by bit.
	bits := make([]bool, i+1)
	bits[0] = wasDirty
	for slot := 1; slot <= i; slot++ {
		bits[slot] = c.dirty.Get(slot - 1)
	}
	for slot := 0; slot <= i; slot++ {
		c.dirty.Set(slot, bits[slot])
	}
}

// evictOne removes the least-recently-used entry, flushing it first if
// dirty. It must only be called when the cache is at capacity.
func (c *Cache) evictOne() error {
	last := len(c.entries) - 1
	victim := c.entries[last]

	if c.dirty.Get(last) {
		if err := c.flush(victim.clusterIndex, victim.data); err != nil {
			return fmt.Errorf("clustercache: flush of cluster %d failed: %w", victim.clusterIndex, err)
		}
	}

	delete(c.index, victim.clusterIndex)
	c.entries = c.entries[:last]
	c.dirty.Set(last, false)
	return nil
}

// load fetches clusterIndex into a new front slot, evicting the LRU entry
// first if the cache is full.
func (c *Cache) load(clusterIndex uint32) (int, error) {
	if uint(len(c.entries)) >= c.capacity {
		if err := c.evictOne(); err != nil {
			return 0, err
		}
	}

	data := make([]byte, c.bytesPerEntry)
	if err := c.fetch(clusterIndex, data); err != nil {
		return 0, fmt.Errorf("clustercache: fetch of cluster %d failed: %w", clusterIndex, err)
	}

	c.entries = append(c.entries, entry{})
	copy(c.entries[1:], c.entries[:len(c.entries)-1])
	c.entries[0] = entry{clusterIndex: clusterIndex, data: data}

	for slot := range c.entries {
		c.index[c.entries[slot].clusterIndex] = slot
	}

	n := len(c.entries)
	bits := make([]bool, n)
	for slot := 1; slot < n; slot++ {
		bits[slot] = c.dirty.Get(slot - 1)
	}
	for slot := 0; slot < n; slot++ {
		c.dirty.Set(slot, bits[slot])
	}

	return 0, nil
}

// Get returns the cached buffer for clusterIndex, loading it from storage
// first if it isn't already cached. The returned slice aliases the cache's
// own storage and must not be retained past the next call into the cache.
func (c *Cache) Get(clusterIndex uint32) ([]byte, error) {
	if slot, ok := c.index[clusterIndex]; ok {
		c.moveToFront(slot)
		return c.entries[0].data, nil
	}

	if _, err := c.load(clusterIndex); err != nil {
		return nil, err
	}
	return c.entries[0].data, nil
}

// Put writes buffer into the cached entry for clusterIndex, loading it first
// if necessary, and marks it dirty. buffer must be exactly bytesPerEntry
// long.
func (c *Cache) Put(clusterIndex uint32, buffer []byte) error {
	if uint(len(buffer)) != c.bytesPerEntry {
		return fmt.Errorf(
			"clustercache: buffer is %d bytes, want %d", len(buffer), c.bytesPerEntry,
		)
	}

	if _, err := c.Get(clusterIndex); err != nil {
		return err
	}

	copy(c.entries[0].data, buffer)
	c.dirty.Set(0, true)
	return nil
}

// Discard drops clusterIndex from the cache without flushing it, even if
// dirty. This is used when the caller knows the cluster has been
// reallocated and its old contents are no longer meaningful.
func (c *Cache) Discard(clusterIndex uint32) {
	slot, ok := c.index[clusterIndex]
	if !ok {
		return
	}

	delete(c.index, clusterIndex)
	c.entries = append(c.entries[:slot], c.entries[slot+1:]...)

	n := len(c.entries)
	bits := make([]bool, n)
	for i := 0; i < slot; i++ {
		bits[i] = c.dirty.Get(i)
	}
	for i := slot; i < n; i++ {
		bits[i] = c.dirty.Get(i + 1)
	}
	for i := 0; i < n; i++ {
		c.dirty.Set(i, bits[i])
	}
	c.dirty.Set(n, false)

	for i, e := range c.entries {
		c.index[e.clusterIndex] = i
	}
}

// FlushAll writes every dirty entry back to storage and clears the dirty
// bitmap. It does not evict anything.
func (c *Cache) FlushAll() error {
	for slot := range c.entries {
		if !c.dirty.Get(slot) {
			continue
		}
		e := c.entries[slot]
		if err := c.flush(e.clusterIndex, e.data); err != nil {
			return fmt.Errorf("clustercache: flush of cluster %d failed: %w", e.clusterIndex, err)
		}
		c.dirty.Set(slot, false)
	}
	return nil
}

// Len returns the number of entries currently cached.
func (c *Cache) Len() int {
	return len(c.entries)
}
