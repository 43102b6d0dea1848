package ps2mc

import (
	ps2dirent "github.com/dargueta/ps2mc/dirent"
	ps2errors "github.com/dargueta/ps2mc/errors"
	"github.com/dargueta/ps2mc/fat"
	ps2path "github.com/dargueta/ps2mc/path"
)

// CreateDirEntry adds a new entry named name to the directory named by
// parentLoc, reusing the first free (deleted) slot if one exists or
// appending past the end otherwise. If mode carries ModeDir, a fresh
// cluster is allocated and seeded with "." and ".." entries; files start
// with no cluster at all (fat.ChainEnd, zero length).
//
// Grounded on original_source/ps2mc.py's create_dir_entry. As in format(),
// the new subdirectory's "." and ".." entries are written as a single
// cluster-sized buffer in one WriteAllocatableCluster call instead of
// Python's direct-write-then-reopen sequence, since clusterSize is always
// exactly two dirents.
func (e *Engine) CreateDirEntry(parentLoc ps2dirent.Dirloc, name string, mode uint16) (ps2dirent.Dirloc, *ps2dirent.Dirent, error) {
	parentEnt, dir, err := ps2path.LoadDirAt(e, parentLoc)
	if err != nil {
		return ps2dirent.Dirloc{}, nil, err
	}
	defer dir.Close()

	entries, err := dir.All()
	if err != nil {
		return ps2dirent.Dirloc{}, nil, err
	}

	index := uint32(len(entries))
	for i, ent := range entries {
		if !ps2dirent.IsExists(ent.Mode) {
			index = uint32(i)
			break
		}
	}

	loc := ps2dirent.Dirloc{ParentCluster: parentEnt.FATCluster, EntryIndex: index}
	now := ps2dirent.Now()

	var cluster, length uint32
	if mode&ps2dirent.ModeDir != 0 {
		mode &^= ps2dirent.ModeFile
		c, ok, aerr := e.fat.Allocate()
		if aerr != nil {
			return ps2dirent.Dirloc{}, nil, aerr
		}
		if !ok {
			return ps2dirent.Dirloc{}, nil, ps2errors.ErrNoSpace.WithMessage(name)
		}
		cluster = c
		length = 1
	} else {
		mode |= ps2dirent.ModeFile
		mode &^= ps2dirent.ModeDir
		cluster = fat.ChainEnd
		length = 0
	}

	ent := &ps2dirent.Dirent{
		Mode:       mode | ps2dirent.ModeExists,
		Length:     length,
		Created:    now,
		FATCluster: cluster,
		Modified:   now,
		Name:       name,
	}

	if err := dir.WriteAt(index, ent); err != nil {
		return ps2dirent.Dirloc{}, nil, err
	}

	if ent.Mode&ps2dirent.ModeFile != 0 {
		return loc, ent, nil
	}

	dotEnt := &ps2dirent.Dirent{
		Mode:        ps2dirent.ModeRWX | ps2dirent.ModeDir | 0x0400 | ps2dirent.ModeExists,
		Created:     now,
		FATCluster:  loc.ParentCluster,
		ParentEntry: loc.EntryIndex,
		Modified:    now,
		Name:        ".",
	}
	dotBuf, err := dotEnt.Encode()
	if err != nil {
		return ps2dirent.Dirloc{}, nil, err
	}

	dotdotEnt := &ps2dirent.Dirent{
		Mode:     ps2dirent.ModeRWX | ps2dirent.ModeDir | 0x0400 | ps2dirent.ModeExists,
		Created:  now,
		Modified: now,
		Name:     "..",
	}
	dotdotBuf, err := dotdotEnt.Encode()
	if err != nil {
		return ps2dirent.Dirloc{}, nil, err
	}

	clusterBuf := make([]byte, e.clusterSize)
	copy(clusterBuf, dotBuf)
	copy(clusterBuf[ps2dirent.Size:], dotdotBuf)
	if err := e.fat.WriteAllocatableCluster(cluster, clusterBuf); err != nil {
		return ps2dirent.Dirloc{}, nil, err
	}

	ent.Length = 2
	if err := dir.WriteAt(index, ent); err != nil {
		return ps2dirent.Dirloc{}, nil, err
	}

	return loc, ent, nil
}

// DeleteDirloc removes or truncates the entry named by loc: truncate keeps
// the dirent but clears its length and cluster chain (used by opening an
// existing file with a truncating mode), while a full delete just clears
// ModeExists, leaving the slot free for reuse by a later CreateDirEntry.
// Either way, the entry's own cluster chain (if any) is walked and every
// cluster in it freed.
//
// Grounded on original_source/ps2mc.py's delete_dirloc. Every cluster is
// freed through fat.Engine.Set, which moves the allocation cursor back to
// the lowest freed cluster's FAT group (as Python's fat_cursor rewind does),
// so the next Allocate call can reuse the freed space.
func (e *Engine) DeleteDirloc(loc ps2dirent.Dirloc, truncate bool) error {
	if loc == ps2path.RootDirloc {
		return ps2errors.ErrInvalidArgument.WithMessage("cannot remove root directory")
	}
	if loc.EntryIndex == 0 || loc.EntryIndex == 1 {
		return ps2errors.ErrInvalidArgument.WithMessage(`cannot remove "." or ".." entries`)
	}
	if _, busy := e.openFiles[loc]; busy {
		return ps2errors.ErrBusy
	}

	dir, release, err := e.openOrReuseContaining(loc)
	if err != nil {
		return err
	}
	defer release()

	ent, err := dir.At(loc.EntryIndex)
	if err != nil {
		return err
	}

	cluster := ent.FATCluster
	if truncate {
		ent.Length = 0
		ent.FATCluster = fat.ChainEnd
		ent.Modified = ps2dirent.Now()
	} else {
		ent.Mode &^= ps2dirent.ModeExists
	}
	if err := dir.WriteAt(loc.EntryIndex, ent); err != nil {
		return err
	}

	return e.freeChain(cluster)
}

// freeChain walks a cluster chain starting at first, marking every cluster
// in it unallocated.
func (e *Engine) freeChain(first uint32) error {
	cluster := first
	for cluster != fat.ChainEnd {
		next, err := e.fat.Lookup(cluster)
		if err != nil {
			return err
		}
		if next&fat.AllocatedBit == 0 {
			return ps2errors.ErrFileSystemCorrupted.WithMessage("fat chain corrupted while freeing")
		}
		next &^= fat.AllocatedBit
		if err := e.fat.Set(cluster, next); err != nil {
			return err
		}
		if next == fat.ChainEndUnused {
			break
		}
		cluster = next
	}
	return nil
}
