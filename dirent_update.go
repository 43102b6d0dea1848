package ps2mc

import (
	ps2dirent "github.com/dargueta/ps2mc/dirent"
	"github.com/dargueta/ps2mc/object"
	ps2path "github.com/dargueta/ps2mc/path"
)

// DirlocToEnt reads the dirent at loc directly off the card, opening a
// throwaway view over loc.ParentCluster sized to cover exactly loc's index.
// Grounded on original_source/ps2mc.py's _dirloc_to_ent.
func (e *Engine) DirlocToEnt(loc ps2dirent.Dirloc) (*ps2dirent.Dirent, error) {
	length := (loc.EntryIndex + 1) * ps2dirent.Size
	f := object.New(e.fat, nil, ps2dirent.Dirloc{}, loc.ParentCluster, length, e.clusterSize, object.OpenMode{}, "")
	d := object.NewDirectory(f)
	defer d.Close()
	return d.At(loc.EntryIndex)
}

// OpenDirectory implements ps2path.Filesystem, opening a fresh read/write
// view over the directory whose content starts at firstCluster. Every call
// returns an independent *object.Directory: path.Resolve always closes what it
// opens, so nothing here may be a shared, non-closable instance. Engine
// operations that want to share state with an already-open handle on the
// same dirloc go through openOrReuseNamed/openOrReuseContaining instead
// (original_source/ps2mc.py's _root_directory singleton plays this role
// there by disabling close(); object.Directory has no such override, so the
// sharing is done by the registry of open handles instead).
func (e *Engine) OpenDirectory(loc ps2dirent.Dirloc, firstCluster uint32, length uint32) (*object.Directory, error) {
	f := object.New(e.fat, e, loc, firstCluster, length*ps2dirent.Size, e.clusterSize, object.OpenMode{Write: true}, "")
	return object.NewDirectory(f), nil
}

// openOrReuseNamed returns the directory already open at loc (the directory
// entity named by loc itself, not its parent) if one is registered,
// otherwise opens a fresh view via ps2path.LoadDirAt. release must be called
// once the caller is done with the result, instead of closing it directly.
func (e *Engine) openOrReuseNamed(loc ps2dirent.Dirloc) (dir *object.Directory, release func() error, err error) {
	if entry, ok := e.openFiles[loc]; ok && entry.dir != nil {
		return entry.dir, func() error { return nil }, nil
	}

	_, dir, err = ps2path.LoadDirAt(e, loc)
	if err != nil {
		return nil, nil, err
	}
	if entry, ok := e.openFiles[loc]; ok {
		entry.dir = dir
		return dir, func() error { return nil }, nil
	}
	return dir, dir.Close, nil
}

// openOrReuseContaining returns the directory containing the entry named by
// loc (i.e. the directory holding loc's dirent in its own listing), reusing
// the parent view already cached alongside loc's open handles if present.
// release must be called once the caller is done with the result, instead
// of closing it directly.
func (e *Engine) openOrReuseContaining(loc ps2dirent.Dirloc) (dir *object.Directory, release func() error, err error) {
	entry, hasOpen := e.openFiles[loc]
	if hasOpen && entry.dir != nil {
		return entry.dir, func() error { return nil }, nil
	}

	dir, err = ps2path.OpenContaining(e, loc)
	if err != nil {
		return nil, nil, err
	}
	if hasOpen {
		entry.dir = dir
		return dir, func() error { return nil }, nil
	}
	return dir, dir.Close, nil
}

// lengthInBytes converts ent.Length into a byte count, accounting for the
// directory/file units split documented on ps2path.Filesystem.
func lengthInBytes(ent *ps2dirent.Dirent, isDir bool) uint32 {
	if isDir {
		return ent.Length * ps2dirent.Size
	}
	return ent.Length
}

// UpdateDirent implements object.DirentUpdater: it persists a change to the
// dirent named by loc (which lives as an entry in its parent directory's
// listing, at loc.ParentCluster/loc.EntryIndex's containing directory) and
// notifies every other open handle on the same dirloc.
//
// Grounded on original_source/ps2mc.py's update_dirent_all. There, the
// is_dir check gates only the set_modified flag passed to the *next*,
// cascaded write_raw_ent call -- the ent[6] (modified) assignment itself
// happens unconditionally whenever the caller asked for it. The asymmetric
// rule -- a file's own modification bumps its directory's modified time,
// but a directory's modification never bumps its own parent's -- falls out
// of that cascade, not out of gating this entry's own assignment: loc's own
// Modified is always set when setModified is true, and isDir here only
// decides whether the write-back one level up (performed via
// dir.WriteAtCascade, which recurses into this same method for loc's
// containing directory) should itself request a further modified bump.
func (e *Engine) UpdateDirent(loc ps2dirent.Dirloc, self *object.File, newFirstCluster *uint32, newLength *uint32, setModified bool) error {
	dir, release, err := e.openOrReuseContaining(loc)
	if err != nil {
		return err
	}
	defer release()

	ent, err := dir.At(loc.EntryIndex)
	if err != nil {
		return err
	}

	isDir := ps2dirent.IsDir(ent.Mode)
	changed := false
	notify := false
	modified := false

	if newLength != nil {
		want := *newLength
		if isDir {
			want /= ps2dirent.Size
		}
		if want != ent.Length {
			ent.Length = want
			changed = true
			notify = true
		}
	}
	if newFirstCluster != nil && *newFirstCluster != ent.FATCluster {
		ent.FATCluster = *newFirstCluster
		changed = true
		notify = true
	}
	if setModified {
		now := ps2dirent.Now()
		if now != ent.Modified {
			ent.Modified = now
			changed = true
			modified = true
		}
	}

	if changed {
		if err := dir.WriteAtCascade(loc.EntryIndex, ent, modified && !isDir); err != nil {
			return err
		}
	}

	if notify {
		if entry, ok := e.openFiles[loc]; ok {
			notifyLength := lengthInBytes(ent, isDir)
			for f := range entry.files {
				if f != self {
					f.UpdateNotify(ent.FATCluster, notifyLength)
				}
			}
		}
	}

	return nil
}

// NotifyClosed removes self from loc's registry of open handles once it's
// been closed, dropping the whole entry (and its cached parent directory
// view) if nothing else references it. Grounded on
// original_source/ps2mc.py's notify_closed.
func (e *Engine) NotifyClosed(loc ps2dirent.Dirloc, self *object.File) {
	entry, ok := e.openFiles[loc]
	if !ok {
		return
	}
	delete(entry.files, self)
	if len(entry.files) == 0 {
		if entry.dir != nil {
			entry.dir.Close()
		}
		delete(e.openFiles, loc)
	}
}

// registerOpenFile adds f to loc's set of open handles, creating the
// registry entry if this is the first one.
func (e *Engine) registerOpenFile(loc ps2dirent.Dirloc, f *object.File) {
	entry, ok := e.openFiles[loc]
	if !ok {
		entry = &openEntry{files: make(map[*object.File]struct{})}
		e.openFiles[loc] = entry
	}
	entry.files[f] = struct{}{}
}
