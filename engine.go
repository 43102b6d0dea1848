// Package ps2mc implements a PlayStation 2 memory card filesystem: opening,
// formatting, and mutating the directory tree that lives on top of the
// fat/object/path packages, grounded on original_source/ps2mc.py's ps2mc
// class.
package ps2mc

import (
	"io"
	"syscall"

	ps2dirent "github.com/dargueta/ps2mc/dirent"
	"github.com/dargueta/ps2mc/fat"
	"github.com/dargueta/ps2mc/internal/pageio"
	"github.com/dargueta/ps2mc/object"
	ps2path "github.com/dargueta/ps2mc/path"
	"github.com/dargueta/ps2mc/superblock"
)

// indirectFATOffset is the byte offset at which the indirect FAT cluster
// list begins on a freshly formatted card, named after
// original_source/ps2mc.py's PS2MC_INDIRECT_FAT_OFFSET.
const indirectFATOffset = 0x2000

// openEntry tracks every live handle sharing one dirloc, so a change to the
// entry's first cluster or length can be fanned out to the rest, mirroring
// original_source/ps2mc.py's open_files dict of dirloc -> list of handles.
type openEntry struct {
	dir   *object.Directory
	files map[*object.File]struct{}
}

// Engine is a live, mounted view of a PS2 memory card image: the directory
// tree, the FAT allocator underneath it, and the bookkeeping needed to keep
// every open handle on a dirloc consistent with the others.
type Engine struct {
	stream io.ReadWriteSeeker
	device *pageio.Device
	sb     *superblock.Superblock
	fat    *fat.Engine

	clusterSize             uint
	pagesPerCluster         uint
	allocatableClusterOffset uint32

	curdir   ps2dirent.Dirloc
	modified bool

	openFiles map[ps2dirent.Dirloc]*openEntry
}

// ReadCluster implements fat.ClusterReadWriter on top of the page device,
// concatenating the pagesPerCluster pages that make up cluster n. Grounded
// on original_source/ps2mc.py's read_cluster.
func (e *Engine) ReadCluster(n uint32) ([]byte, error) {
	buf := make([]byte, 0, e.clusterSize)
	base := uint(n) * e.pagesPerCluster
	for i := uint(0); i < e.pagesPerCluster; i++ {
		page, err := e.device.ReadPage(base + i)
		if err != nil {
			return nil, err
		}
		buf = append(buf, page...)
	}
	return buf, nil
}

// WriteCluster implements fat.ClusterReadWriter, splitting data back into
// pagesPerCluster pages. Grounded on original_source/ps2mc.py's
// write_cluster.
func (e *Engine) WriteCluster(n uint32, data []byte) error {
	base := uint(n) * e.pagesPerCluster
	pageSize := e.device.PageSize
	for i := uint(0); i < e.pagesPerCluster; i++ {
		start := i * pageSize
		end := start + pageSize
		if end > uint(len(data)) {
			end = uint(len(data))
		}
		page := make([]byte, pageSize)
		copy(page, data[start:end])
		if err := e.device.WritePage(base+i, page); err != nil {
			return err
		}
	}
	return nil
}

// writeSuperblock serializes sb onto page 0, mirroring
// original_source/ps2mc.py's write_superblock, including erasing every page
// of the good_block2 backup erase block to 0xFF.
func (e *Engine) writeSuperblock() error {
	buf := e.sb.Encode()
	page := make([]byte, e.device.PageSize)
	copy(page, buf)
	if err := e.device.WritePage(0, page); err != nil {
		return err
	}

	erased := make([]byte, e.device.PageSize)
	for i := range erased {
		erased[i] = 0xFF
	}
	pagesPerEraseBlock := uint(e.sb.PagesPerEraseBlock)
	base := uint(e.sb.BackupBlock2) * pagesPerEraseBlock
	for i := uint(0); i < pagesPerEraseBlock; i++ {
		if err := e.device.WritePage(base+i, erased); err != nil {
			return err
		}
	}

	e.modified = false
	return nil
}

// Flush writes back every dirty FAT/allocatable cluster and, if anything
// about the filesystem's own metadata changed, the superblock too.
func (e *Engine) Flush() error {
	if err := e.fat.Flush(); err != nil {
		return err
	}
	if e.modified {
		if err := e.writeSuperblock(); err != nil {
			return err
		}
	}
	return e.device.Sync()
}

// Close flushes pending changes and closes every handle the engine still
// has open. The backing stream itself is left alone, matching
// original_source/ps2mc.py's close() disconnecting without closing self.f.
func (e *Engine) Close() error {
	if err := e.Flush(); err != nil {
		return err
	}
	for _, entry := range e.openFiles {
		for f := range entry.files {
			f.Close()
		}
		if entry.dir != nil {
			entry.dir.File().Close()
		}
	}
	e.openFiles = nil
	return nil
}

// FSStat reports free and total allocatable space, named the same way as
// _examples/dargueta-disko's own platform-independent FSStat
// (api.go), since a memory card has no reserved-block concept,
// BlocksAvailable always equals BlocksFree here. Grounded on
// original_source/ps2mc.py's get_free_space/get_allocatable_space.
type FSStat struct {
	BlockSize       int64
	TotalBlocks     uint64
	BlocksFree      uint64
	BlocksAvailable uint64
}

// FSStat walks the FAT, counting every cluster within the formatted area
// that isn't marked allocated.
func (e *Engine) FSStat() (FSStat, error) {
	total := e.sb.AllocatableClusterEnd
	free := uint64(0)
	for i := uint32(0); i < total; i++ {
		v, err := e.fat.Lookup(i)
		if err != nil {
			return FSStat{}, err
		}
		if v&fat.AllocatedBit == 0 {
			free++
		}
	}
	return FSStat{
		BlockSize:       int64(e.clusterSize),
		TotalBlocks:     uint64(total),
		BlocksFree:      free,
		BlocksAvailable: free,
	}, nil
}

// Chdir changes the engine's idea of the current directory, used as the
// relative base for pathnames that don't start with "/".
func (e *Engine) Chdir(pathname string) error {
	res, err := ps2path.Resolve(e, e.curdir, pathname)
	if err != nil {
		return err
	}
	if res.Ent == nil {
		return NewDriverErrorWithMessage(syscall.ENOENT, pathname)
	}
	if !res.IsDir {
		return NewDriverErrorWithMessage(syscall.ENOTDIR, pathname)
	}
	e.curdir = res.Dirloc
	return nil
}
