// Package fat implements the PS2 memory card's double-indirect FAT: cluster
// chain lookup, allocation, and the two bounded LRU caches that sit in front
// of it. It is grounded on original_source/ps2mc.py's read_fat/lookup_fat/
// set_fat/allocate_cluster/fat_chain and on
// github.com/dargueta/disko/drivers/common/blockcache for the cache-backed
// read/write shape.
package fat

import (
	"encoding/binary"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/dargueta/ps2mc/internal/clustercache"
)

// Special FAT entry values and bit flags, named after
// original_source/ps2mc.py's PS2MC_FAT_* constants.
const (
	AllocatedBit   uint32 = 0x80000000
	ChainEnd       uint32 = 0xFFFFFFFF
	ChainEndUnused uint32 = 0x7FFFFFFF
	ClusterMask    uint32 = 0x7FFFFFFF
)

// MaxIndirectClusters is the fixed number of entries in the superblock's
// indirect FAT cluster list.
const MaxIndirectClusters = 32

// ClusterReadWriter reads and writes whole clusters by absolute cluster
// index, without regard to what filesystem structure (FAT, directory, file
// data) lives in a given cluster. The root engine implements it on top of
// internal/pageio.
type ClusterReadWriter interface {
	ReadCluster(n uint32) ([]byte, error)
	WriteCluster(n uint32, data []byte) error
}

// Engine resolves logical cluster chains through the double-indirect FAT and
// allocates new clusters on demand.
type Engine struct {
	rw          ClusterReadWriter
	clusterSize uint

	entriesPerCluster        uint32
	indirectFATClusterList   [MaxIndirectClusters]uint32
	allocatableClusterEnd    uint32 // bound used for lookup/set (read_fat)
	allocatableClusterLimit  uint32 // bound used for allocation scanning
	allocClusterOffset       uint32 // physical cluster of allocatable index 0

	fatCache   *clustercache.Cache
	allocCache *clustercache.Cache
	fatCursor  uint32
}

// NewEngine creates a FAT Engine. allocatableClusterEnd bounds lookups and
// writes (read_fat's range check); allocatableClusterLimit bounds the
// scan-for-a-free-cluster search; Format and Open derive it from the backup
// erase blocks rather than from allocatableClusterEnd, and on a card laid out
// by Format the two are equal. allocClusterOffset is added
// to every allocatable-cluster index before it reaches the
// ClusterReadWriter, matching read_allocatable_cluster/write_allocatable_
// cluster's addition of allocatable_cluster_offset; FAT cluster reads never
// get this adjustment; the indirect FAT cluster list already holds absolute
// physical cluster numbers.
func NewEngine(
	rw ClusterReadWriter,
	clusterSize uint,
	entriesPerCluster uint32,
	indirectFATClusterList [MaxIndirectClusters]uint32,
	allocatableClusterEnd uint32,
	allocatableClusterLimit uint32,
	allocClusterOffset uint32,
) *Engine {
	e := &Engine{
		rw:                      rw,
		clusterSize:             clusterSize,
		entriesPerCluster:       entriesPerCluster,
		indirectFATClusterList:  indirectFATClusterList,
		allocatableClusterEnd:   allocatableClusterEnd,
		allocatableClusterLimit: allocatableClusterLimit,
		allocClusterOffset:      allocClusterOffset,
	}

	e.fatCache = clustercache.New(clusterSize, 12, e.fetchFATCluster, e.flushFATCluster)
	e.allocCache = clustercache.New(clusterSize, 64, e.fetchAllocCluster, e.flushAllocCluster)
	return e
}

func (e *Engine) fetchFATCluster(n uint32, buffer []byte) error {
	data, err := e.rw.ReadCluster(n)
	if err != nil {
		return err
	}
	copy(buffer, data)
	return nil
}

func (e *Engine) flushFATCluster(n uint32, buffer []byte) error {
	return e.rw.WriteCluster(n, buffer)
}

func (e *Engine) fetchAllocCluster(n uint32, buffer []byte) error {
	data, err := e.rw.ReadCluster(n + e.allocClusterOffset)
	if err != nil {
		return err
	}
	copy(buffer, data)
	return nil
}

func (e *Engine) flushAllocCluster(n uint32, buffer []byte) error {
	return e.rw.WriteCluster(n+e.allocClusterOffset, buffer)
}

func decodeEntries(buf []byte) []uint32 {
	entries := make([]uint32, len(buf)/4)
	for i := range entries {
		entries[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return entries
}

func encodeEntries(entries []uint32, bufSize uint) []byte {
	buf := make([]byte, bufSize)
	for i, v := range entries {
		binary.LittleEndian.PutUint32(buf[i*4:], v)
	}
	return buf
}

// readFATCluster returns the decoded entries of FAT cluster n.
func (e *Engine) readFATCluster(n uint32) ([]uint32, error) {
	buf, err := e.fatCache.Get(n)
	if err != nil {
		return nil, err
	}
	return decodeEntries(buf), nil
}

// writeFATCluster re-encodes entries and marks FAT cluster n dirty.
func (e *Engine) writeFATCluster(n uint32, entries []uint32) error {
	return e.fatCache.Put(n, encodeEntries(entries, e.clusterSize))
}

// lookupFATCluster resolves which physical FAT cluster holds the FAT entry
// for logical cluster fatClusterIndex, walking the indirect FAT level first.
func (e *Engine) lookupFATCluster(fatClusterIndex uint32) (entries []uint32, physicalCluster uint32, err error) {
	dblOffset := fatClusterIndex / e.entriesPerCluster
	indirectOffset := fatClusterIndex % e.entriesPerCluster

	if int(dblOffset) >= len(e.indirectFATClusterList) {
		return nil, 0, fmt.Errorf("fat: indirect FAT offset %d out of range", dblOffset)
	}

	indirectCluster := e.indirectFATClusterList[dblOffset]
	indirectFAT, err := e.readFATCluster(indirectCluster)
	if err != nil {
		return nil, 0, err
	}

	if int(indirectOffset) >= len(indirectFAT) {
		return nil, 0, fmt.Errorf("fat: indirect FAT entry %d out of range", indirectOffset)
	}

	physicalCluster = indirectFAT[indirectOffset]
	entries, err = e.readFATCluster(physicalCluster)
	if err != nil {
		return nil, 0, err
	}
	return entries, physicalCluster, nil
}

// resolve finds the FAT cluster entries, offset into it, and the physical
// cluster they live in, for logical allocatable cluster n.
func (e *Engine) resolve(n uint32) (entries []uint32, offset uint32, physicalCluster uint32, err error) {
	if n >= e.allocatableClusterEnd {
		return nil, 0, 0, fmt.Errorf("fat: cluster index %d out of range [0, %d)", n, e.allocatableClusterEnd)
	}

	offset = n % e.entriesPerCluster
	fatClusterIndex := n / e.entriesPerCluster
	entries, physicalCluster, err = e.lookupFATCluster(fatClusterIndex)
	return entries, offset, physicalCluster, err
}

// Lookup returns the raw FAT entry (next-cluster pointer, possibly with
// AllocatedBit set, or ChainEnd) for logical cluster n.
func (e *Engine) Lookup(n uint32) (uint32, error) {
	entries, offset, _, err := e.resolve(n)
	if err != nil {
		return 0, err
	}
	return entries[offset], nil
}

// Set stores value as the FAT entry for logical cluster n. Storing a value
// without AllocatedBit frees n; if the allocation cursor has already moved
// past n's FAT cluster, it is moved back to it so Allocate can reuse n.
func (e *Engine) Set(n uint32, value uint32) error {
	entries, offset, physicalCluster, err := e.resolve(n)
	if err != nil {
		return err
	}
	entries[offset] = value
	if value&AllocatedBit == 0 {
		if group := n / e.entriesPerCluster; group < e.fatCursor {
			e.fatCursor = group
		}
	}
	return e.writeFATCluster(physicalCluster, entries)
}

// SetAllocatableBounds replaces the lookup/write bound and allocation-scan
// bound in place, resetting the allocation cursor. format() uses this to
// widen the bounds to the FAT table's full addressable capacity while
// writing the initial identity/free-marker contents, then narrow them back
// down to the card's real usable cluster count once that's done -- mirrors
// original_source/ps2mc.py's format() reassigning self.allocatable_cluster_end
// partway through, in place, without touching the FAT cache.
func (e *Engine) SetAllocatableBounds(end, limit uint32) {
	e.allocatableClusterEnd = end
	e.allocatableClusterLimit = limit
	e.fatCursor = 0
}

// Allocate finds and claims a free cluster, marking it ChainEnd, and returns
// its index. ok is false if the card has no free clusters left.
func (e *Engine) Allocate() (n uint32, ok bool, err error) {
	epc := e.entriesPerCluster
	end := (e.allocatableClusterLimit + epc - 1) / epc
	remainder := e.allocatableClusterLimit % epc

	for e.fatCursor < end {
		entries, physicalCluster, lerr := e.lookupFATCluster(e.fatCursor)
		if lerr != nil {
			return 0, false, lerr
		}

		searchable := entries
		if e.fatCursor == end-1 && remainder != 0 {
			searchable = entries[:remainder]
		}

		freeOffset := -1
		var minVal uint32 = ClusterMask + 1 // larger than any unallocated value
		for i, v := range searchable {
			if v&AllocatedBit == 0 && v < minVal {
				minVal = v
				freeOffset = i
			}
		}

		if freeOffset >= 0 {
			entries[freeOffset] = ChainEnd
			if werr := e.writeFATCluster(physicalCluster, entries); werr != nil {
				return 0, false, werr
			}
			return e.fatCursor*epc + uint32(freeOffset), true, nil
		}

		e.fatCursor++
	}

	return 0, false, nil
}

// ReadAllocatableCluster returns the cached contents of allocatable data
// cluster n (index relative to the allocatable area, not an absolute
// cluster number).
func (e *Engine) ReadAllocatableCluster(n uint32) ([]byte, error) {
	return e.allocCache.Get(n)
}

// WriteAllocatableCluster writes buf into allocatable data cluster n and
// marks it dirty.
func (e *Engine) WriteAllocatableCluster(n uint32, buf []byte) error {
	return e.allocCache.Put(n, buf)
}

// Flush writes back every dirty FAT and allocatable-cluster cache entry,
// aggregating any failures instead of stopping at the first one.
func (e *Engine) Flush() error {
	var result *multierror.Error
	if err := e.fatCache.FlushAll(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := e.allocCache.FlushAll(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// Chain is a cached-cursor walker over a cluster chain's FAT entries,
// generalizing original_source/ps2mc.py's fat_chain: sequential access (the
// overwhelmingly common case for file I/O) is O(1) instead of re-walking the
// chain from the first cluster on every access.
type Chain struct {
	engine   *Engine
	first    uint32
	offset   uint32
	prev     uint32
	havePrev bool
	cur      uint32
}

// NewChain creates a Chain starting at firstCluster.
func NewChain(engine *Engine, firstCluster uint32) *Chain {
	return &Chain{engine: engine, first: firstCluster, cur: firstCluster}
}

// At returns the i'th cluster in the chain (0 is the first cluster). If the
// chain ends (or is found to be corrupt) before reaching index i, it returns
// ChainEnd rather than an error, matching fat_chain.__getitem__: running off
// the end of a chain is something callers are expected to check for, not an
// I/O failure.
func (c *Chain) At(i uint32) (uint32, error) {
	if i == c.offset {
		return c.cur, nil
	}
	if c.havePrev && i == c.offset-1 {
		return c.prev, nil
	}

	var offset, cur, prev uint32
	havePrev := false

	if i < c.offset {
		if i == 0 {
			c.offset, c.havePrev, c.cur = 0, false, c.first
			return c.first, nil
		}
		cur = c.first
	} else {
		offset = c.offset
		prev, havePrev = c.prev, c.havePrev
		cur = c.cur
	}

	next := cur
	for offset != i {
		var err error
		next, err = c.engine.Lookup(cur)
		if err != nil {
			return 0, err
		}
		if next == ChainEnd {
			break
		}
		if next&AllocatedBit == 0 {
			// A mid-chain cluster the FAT doesn't mark allocated means the
			// chain is corrupt; treat it the same as running off the end.
			next = ChainEnd
			break
		}
		next &^= AllocatedBit

		offset++
		prev, havePrev = cur, true
		cur = next
	}

	c.offset, c.prev, c.havePrev, c.cur = offset, prev, havePrev, cur
	return next, nil
}

// Len walks the chain to its end and returns its length in clusters. The
// cursor is left pointing at the last cluster visited, same as repeatedly
// calling At with increasing indexes would leave it.
func (c *Chain) Len() (uint32, error) {
	i := uint32(0)
	for {
		v, err := c.At(i)
		if err != nil {
			return 0, err
		}
		if v == ChainEnd {
			return i, nil
		}

		next, err := c.engine.Lookup(v)
		if err != nil {
			return 0, err
		}
		if next == ChainEnd {
			return i + 1, nil
		}
		i++
	}
}
