package ps2mc

import (
	"fmt"
	"io"

	ps2dirent "github.com/dargueta/ps2mc/dirent"
	"github.com/dargueta/ps2mc/fat"
	"github.com/dargueta/ps2mc/geometry"
	"github.com/dargueta/ps2mc/internal/pageio"
	"github.com/dargueta/ps2mc/internal/roundbits"
	ps2path "github.com/dargueta/ps2mc/path"
	"github.com/dargueta/ps2mc/superblock"
)

// clusterSize is fixed across every real PS2 memory card geometry; see
// geometry.CardGeometry.Validate.
const clusterSize = 1024

// Format lays out a brand new filesystem on stream according to geom,
// returning an Engine mounted on the result. Grounded on
// original_source/ps2mc.py's format(), including its backwards free-marker
// scan for cache locality and its two-phase allocatable-cluster bound.
func Format(stream io.ReadWriteSeeker, geom geometry.CardGeometry, withECC bool) (*Engine, error) {
	if err := geom.Validate(); err != nil {
		return nil, err
	}

	pageSize := geom.PageSize
	pagesPerCluster := clusterSize / pageSize
	pagesPerEraseBlock := geom.PagesPerEraseBlk
	if pagesPerEraseBlock < 1 {
		return nil, fmt.Errorf("ps2mc: invalid pages per erase block (%d)", pagesPerEraseBlock)
	}
	clustersPerEraseBlock := pagesPerEraseBlock / pagesPerCluster

	pagesPerCard := roundbits.RoundDown(geom.PagesPerCard, pagesPerEraseBlock)
	eraseBlocksPerCard := pagesPerCard / pagesPerEraseBlock
	clustersPerCard := pagesPerCard / pagesPerCluster
	epc := uint32(clusterSize / 4)

	goodBlock1 := uint32(eraseBlocksPerCard - 1)
	goodBlock2 := uint32(eraseBlocksPerCard - 2)
	firstIFC := uint32(roundbits.CeilDiv(indirectFATOffset, clusterSize))

	allocatableClusters := uint32(clustersPerCard) - (firstIFC + 2)
	fatClusters := (allocatableClusters + epc - 1) / epc
	indirectFATClusters := (fatClusters + epc - 1) / epc
	if indirectFATClusters > fat.MaxIndirectClusters {
		indirectFATClusters = fat.MaxIndirectClusters
		fatClusters = indirectFATClusters * epc
	}
	allocatableClusters = fatClusters * epc

	allocatableClusterOffset := firstIFC + indirectFATClusters + fatClusters
	allocatableClusterEnd := goodBlock2*uint32(clustersPerEraseBlock) - allocatableClusterOffset
	if allocatableClusterEnd < 1 {
		return nil, fmt.Errorf("ps2mc: memory card image too small to be formatted")
	}

	var ifcList [fat.MaxIndirectClusters]uint32
	for i := uint32(0); i < indirectFATClusters; i++ {
		ifcList[i] = firstIFC + i
	}

	device := pageio.New(stream, pageSize, pagesPerCard, withECC, false)

	erased := make([]byte, pageSize)
	for n := uint(0); n < pagesPerCard; n++ {
		if err := device.WritePage(n, erased); err != nil {
			return nil, fmt.Errorf("ps2mc: formatting page %d: %w", n, err)
		}
	}

	e := &Engine{
		stream:                   stream,
		device:                   device,
		clusterSize:              clusterSize,
		pagesPerCluster:          pagesPerCluster,
		allocatableClusterOffset: allocatableClusterOffset,
		openFiles:                make(map[ps2dirent.Dirloc]*openEntry),
	}

	// Level 2 bootstrap: write each indirect FAT cluster's own content (the
	// physical cluster number of every FAT data cluster it points to)
	// directly, bypassing fat.Engine entirely since it can't resolve
	// anything until this exists.
	firstFatCluster := firstIFC + indirectFATClusters
	remainder := fatClusters % epc
	for i := uint32(0); i < indirectFATClusters; i++ {
		base := firstFatCluster + i*epc
		buf := make([]byte, clusterSize)
		for off := uint32(0); off < epc; off++ {
			var v uint32
			if i == indirectFATClusters-1 && remainder != 0 && off >= remainder {
				v = fat.ChainEnd
			} else {
				v = base + off
			}
			encodeUint32LE(buf[off*4:], v)
		}
		if err := e.WriteCluster(ifcList[i], buf); err != nil {
			return nil, err
		}
	}

	// Widen the allocatable bound to the FAT table's full capacity while
	// bootstrapping: set_fat's range check otherwise rejects writes past
	// the real (narrower) usable area.
	e.fat = fat.NewEngine(e, clusterSize, epc, ifcList, allocatableClusters, allocatableClusters, allocatableClusterOffset)

	for i := allocatableClusters - 1; i >= allocatableClusterEnd && i > 0; i-- {
		if err := e.fat.Set(i, fat.ChainEnd); err != nil {
			return nil, err
		}
	}
	for i := allocatableClusterEnd - 1; i > 0; i-- {
		if err := e.fat.Set(i, fat.ChainEndUnused); err != nil {
			return nil, err
		}
	}
	if err := e.fat.Set(0, fat.ChainEnd); err != nil {
		return nil, err
	}

	e.fat.SetAllocatableBounds(allocatableClusterEnd, minU32(goodBlock1, goodBlock2)*uint32(clustersPerEraseBlock)-allocatableClusterOffset)

	now := ps2dirent.Now()
	rootCluster := make([]byte, clusterSize)
	dotEnt := &ps2dirent.Dirent{
		Mode:    ps2dirent.ModeRWX | ps2dirent.ModeDir | 0x0400 | ps2dirent.ModeExists,
		Length:  2,
		Created: now, Modified: now,
		Name: ".",
	}
	dotBuf, err := dotEnt.Encode()
	if err != nil {
		return nil, err
	}
	copy(rootCluster, dotBuf)

	dotdotEnt := &ps2dirent.Dirent{
		Mode:    ps2dirent.ModeWrite | ps2dirent.ModeExecute | ps2dirent.ModeDir | 0x0400 | ps2dirent.ModeHidden | ps2dirent.ModeExists,
		Created: now, Modified: now,
		Name: "..",
	}
	dotdotBuf, err := dotdotEnt.Encode()
	if err != nil {
		return nil, err
	}
	copy(rootCluster[ps2dirent.Size:], dotdotBuf)

	if err := e.fat.WriteAllocatableCluster(0, rootCluster); err != nil {
		return nil, err
	}

	e.sb = &superblock.Superblock{
		Magic:                   superblock.Magic,
		Version:                 versionBytes("1.2.0.0"),
		PageSize:                uint16(pageSize),
		PagesPerCluster:         uint16(pagesPerCluster),
		PagesPerEraseBlock:      uint16(pagesPerEraseBlock),
		Unused:                  0xFF00,
		ClustersPerCard:         uint32(clustersPerCard),
		AllocatableClusterStart: allocatableClusterOffset,
		AllocatableClusterEnd:   allocatableClusterEnd,
		RootdirFATCluster:       0,
		BackupBlock1:            goodBlock1,
		BackupBlock2:            goodBlock2,
		IndirectFATClusters:     ifcList,
		CardFlags:               2,
		CardType:                0x2B,
	}
	for i := range e.sb.BadEraseBlocks {
		e.sb.BadEraseBlocks[i] = 0xFFFFFFFF
	}

	e.modified = true
	e.curdir = ps2path.RootDirloc

	if err := e.Flush(); err != nil {
		return nil, err
	}
	return e, nil
}

func minU32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

func encodeUint32LE(buf []byte, v uint32) {
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v >> 16)
	buf[3] = byte(v >> 24)
}

func versionBytes(s string) [12]byte {
	var b [12]byte
	copy(b[:], s)
	return b
}

