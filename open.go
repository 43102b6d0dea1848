package ps2mc

import (
	"io"

	ps2dirent "github.com/dargueta/ps2mc/dirent"
	ps2errors "github.com/dargueta/ps2mc/errors"
	"github.com/dargueta/ps2mc/fat"
	"github.com/dargueta/ps2mc/internal/pageio"
	ps2path "github.com/dargueta/ps2mc/path"
	"github.com/dargueta/ps2mc/superblock"
)

// Open mounts an existing, already-formatted memory card image, reading its
// superblock and re-deriving the same geometry values format() computed when
// the card was first laid out. Grounded on original_source/ps2mc.py's
// ps2mc.__init__ (the branch that decodes an existing superblock, not the
// one that calls format() on an unrecognized image).
func Open(stream io.ReadWriteSeeker) (*Engine, error) {
	if _, err := stream.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	// The superblock's own bytes always precede any ECC spare area within
	// page 0, regardless of whether the image carries one, so it can be
	// read directly off the stream before pageio.Device (which needs the
	// page size the superblock itself reports) exists.
	raw := make([]byte, superblock.Size)
	if _, err := io.ReadFull(stream, raw); err != nil {
		return nil, ps2errors.ErrFileSystemCorrupted.WrapError(err)
	}

	sb, err := superblock.Decode(raw)
	if err != nil {
		return nil, ps2errors.ErrFileSystemCorrupted.WrapError(err)
	}

	pageSize := uint(sb.PageSize)
	pagesPerCluster := uint(sb.PagesPerCluster)
	pagesPerEraseBlock := uint(sb.PagesPerEraseBlock)
	if pagesPerCluster == 0 || pagesPerEraseBlock == 0 {
		return nil, ps2errors.ErrFileSystemCorrupted.WithMessage("zero pages per cluster or erase block")
	}
	clustersPerEraseBlock := pagesPerEraseBlock / pagesPerCluster

	epc := uint32(clusterSize / 4)
	allocatableClusterOffset := sb.AllocatableClusterStart
	allocatableClusterEnd := sb.AllocatableClusterEnd
	allocatableClusterLimit := minU32(sb.BackupBlock1, sb.BackupBlock2)*uint32(clustersPerEraseBlock) - allocatableClusterOffset

	totalPages := uint(sb.ClustersPerCard) * pagesPerCluster
	device := pageio.New(stream, pageSize, totalPages, true, false)

	e := &Engine{
		stream:                   stream,
		device:                   device,
		sb:                       sb,
		clusterSize:              uint(pageSize * pagesPerCluster),
		pagesPerCluster:          pagesPerCluster,
		allocatableClusterOffset: allocatableClusterOffset,
		openFiles:                make(map[ps2dirent.Dirloc]*openEntry),
	}
	e.fat = fat.NewEngine(e, e.clusterSize, epc, sb.IndirectFATClusters, allocatableClusterEnd, allocatableClusterLimit, allocatableClusterOffset)

	if err := e.checkRootDirectory(); err != nil {
		return nil, err
	}

	e.curdir = ps2path.RootDirloc
	return e, nil
}

// checkRootDirectory verifies the root directory's "." and ".." entries
// look sane, the same sanity check original_source/ps2mc.py's __init__
// performs on every mount before trusting the rest of the image.
func (e *Engine) checkRootDirectory() error {
	dot, err := e.DirlocToEnt(ps2path.RootDirloc)
	if err != nil {
		return ps2errors.ErrFileSystemCorrupted.WrapError(err)
	}
	dotdot, err := e.DirlocToEnt(ps2dirent.Dirloc{ParentCluster: 0, EntryIndex: 1})
	if err != nil {
		return ps2errors.ErrFileSystemCorrupted.WrapError(err)
	}

	if dot.Name != "." || dotdot.Name != ".." ||
		!ps2dirent.IsDir(dot.Mode) || !ps2dirent.IsDir(dotdot.Mode) {
		return ps2errors.ErrFileSystemCorrupted.WithMessage("root directory damaged")
	}
	return nil
}
