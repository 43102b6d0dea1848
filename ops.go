package ps2mc

import (
	"os"
	"strings"

	ps2dirent "github.com/dargueta/ps2mc/dirent"
	ps2errors "github.com/dargueta/ps2mc/errors"
	"github.com/dargueta/ps2mc/fat"
	"github.com/dargueta/ps2mc/object"
	ps2path "github.com/dargueta/ps2mc/path"
)

// Handle is a user-facing open file. It differs from *object.File only in
// that closing it also drops it from the engine's registry of open handles
// on its dirloc, something object.File.Close itself never does. Grounded on
// original_source/ps2mc.py's ps2mc_file.close calling self.mc.notify_closed.
type Handle struct {
	*object.File
	engine *Engine
	loc    ps2dirent.Dirloc
}

// Close closes the underlying file and notifies the engine it's no longer
// open, regardless of whether the close itself errors.
func (h *Handle) Close() error {
	err := h.File.Close()
	h.engine.NotifyClosed(h.loc, h.File)
	return err
}

// baseName returns the last non-empty slash-separated component of a
// pathname, the name under which a new entry is created.
func baseName(pathname string) string {
	parts := strings.Split(pathname, "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] != "" {
			return parts[i]
		}
	}
	return ""
}

// OpenFile opens, and optionally creates or truncates, a regular file named
// by filename relative to the engine's current directory. flag follows
// os.O_* semantics (os.O_RDONLY / os.O_WRONLY / os.O_RDWR, combined with
// os.O_CREATE / os.O_TRUNC / os.O_APPEND as needed) rather than
// original_source/ps2mc.py's open()'s Python mode string ("r"/"w"/"a"/"r+"):
// the teacher's own API (api.go, flags.go) builds directly on stdlib
// os.FileMode/os.File idioms instead of porting a foreign calling
// convention, and this follows the same pattern.
func (e *Engine) OpenFile(filename string, flag int) (*Handle, error) {
	res, err := ps2path.Resolve(e, e.curdir, filename)
	if err != nil {
		return nil, err
	}
	if !res.ParentFound {
		return nil, ps2errors.ErrPathNotFound.WithMessage(filename)
	}
	if res.IsDir {
		return nil, ps2errors.ErrIsADirectory.WithMessage(filename)
	}

	loc := res.Dirloc
	ent := res.Ent

	if ent == nil {
		if flag&os.O_CREATE == 0 {
			return nil, ps2errors.ErrFileNotFound.WithMessage(filename)
		}
		name := baseName(filename)
		if name == "" {
			return nil, ps2errors.ErrInvalidArgument.WithMessage(filename)
		}
		newLoc, newEnt, err := e.CreateDirEntry(loc, name, ps2dirent.ModeFile|ps2dirent.ModeRWX|0x0400)
		if err != nil {
			return nil, err
		}
		if err := e.Flush(); err != nil {
			return nil, err
		}
		loc, ent = newLoc, newEnt
	} else if flag&os.O_TRUNC != 0 {
		if err := e.DeleteDirloc(loc, true); err != nil {
			return nil, err
		}
		ent.FATCluster = fat.ChainEnd
		ent.Length = 0
	}

	mode := object.OpenMode{
		Write:  flag&(os.O_WRONLY|os.O_RDWR) != 0,
		Append: flag&os.O_APPEND != 0,
	}

	f := object.New(e.fat, e, loc, ent.FATCluster, ent.Length, e.clusterSize, mode, filename)
	e.registerOpenFile(loc, f)
	return &Handle{File: f, engine: e, loc: loc}, nil
}

// DirOpen opens the directory named by filename for reading its entries.
// Unlike OpenFile, the returned *object.Directory is not added to the
// engine's open-handle registry: original_source/ps2mc.py's exported
// directory() method doesn't register with open_files either, only file()
// (and the special-cased root-directory singleton _directory() has already
// been deliberately removed from this port, see dirent_update.go).
func (e *Engine) DirOpen(filename string) (*object.Directory, error) {
	res, err := ps2path.Resolve(e, e.curdir, filename)
	if err != nil {
		return nil, err
	}
	if !res.ParentFound {
		return nil, ps2errors.ErrPathNotFound.WithMessage(filename)
	}
	if res.Ent == nil {
		return nil, ps2errors.ErrDirectoryNotFound.WithMessage(filename)
	}
	if !res.IsDir {
		return nil, ps2errors.ErrNotADirectory.WithMessage(filename)
	}
	return e.OpenDirectory(res.Dirloc, res.Ent.FATCluster, res.Ent.Length)
}

// Mkdir creates a new, empty directory named by filename. Grounded on
// original_source/ps2mc.py's mkdir.
func (e *Engine) Mkdir(filename string) error {
	res, err := ps2path.Resolve(e, e.curdir, filename)
	if err != nil {
		return err
	}
	if !res.ParentFound {
		return ps2errors.ErrPathNotFound.WithMessage(filename)
	}
	if res.Ent != nil {
		return ps2errors.ErrAlreadyExists.WithMessage(filename)
	}

	name := baseName(filename)
	if name == "" {
		return ps2errors.ErrInvalidArgument.WithMessage(filename)
	}
	if _, _, err := e.CreateDirEntry(res.Dirloc, name, ps2dirent.ModeDir|ps2dirent.ModeRWX|0x0400); err != nil {
		return err
	}
	return e.Flush()
}

// isEmpty reports whether the directory named by loc/ent has no entries of
// its own besides "." and "..". Grounded on original_source/ps2mc.py's
// _is_empty.
func (e *Engine) isEmpty(loc ps2dirent.Dirloc, ent *ps2dirent.Dirent) (bool, error) {
	dir, err := e.OpenDirectory(loc, ent.FATCluster, ent.Length)
	if err != nil {
		return false, err
	}
	defer dir.Close()

	entries, err := dir.All()
	if err != nil {
		return false, err
	}
	for i := 2; i < len(entries); i++ {
		if ps2dirent.IsExists(entries[i].Mode) {
			return false, nil
		}
	}
	return true, nil
}

// Remove deletes a regular file, or an empty directory, named by filename.
// It refuses a non-empty directory and the root directory itself. Grounded
// on original_source/ps2mc.py's remove.
func (e *Engine) Remove(filename string) error {
	res, err := ps2path.Resolve(e, e.curdir, filename)
	if err != nil {
		return err
	}
	if !res.ParentFound {
		return ps2errors.ErrPathNotFound.WithMessage(filename)
	}
	if res.Ent == nil {
		return ps2errors.ErrFileNotFound.WithMessage(filename)
	}
	if res.IsDir {
		if res.Dirloc == ps2path.RootDirloc {
			return ps2errors.ErrInvalidArgument.WithMessage("cannot remove root directory")
		}
		empty, err := e.isEmpty(res.Dirloc, res.Ent)
		if err != nil {
			return err
		}
		if !empty {
			return ps2errors.ErrNotEmpty.WithMessage(filename)
		}
	}

	if err := e.DeleteDirloc(res.Dirloc, false); err != nil {
		return err
	}
	return e.Flush()
}

// Rmdir recursively deletes the directory named by filename and everything
// under it. Grounded on original_source/ps2mc.py's rmdir/_remove_dir.
func (e *Engine) Rmdir(filename string) error {
	res, err := ps2path.Resolve(e, e.curdir, filename)
	if err != nil {
		return err
	}
	if !res.ParentFound {
		return ps2errors.ErrPathNotFound.WithMessage(filename)
	}
	if res.Ent == nil {
		return ps2errors.ErrDirectoryNotFound.WithMessage(filename)
	}
	if !res.IsDir {
		return ps2errors.ErrNotADirectory.WithMessage(filename)
	}
	if res.Dirloc == ps2path.RootDirloc {
		return ps2errors.ErrInvalidArgument.WithMessage("cannot remove root directory")
	}

	if err := e.removeDirRecursive(res.Dirloc, res.Ent); err != nil {
		return err
	}
	return e.Flush()
}

// removeDirRecursive deletes every existing entry under loc/ent, recursing
// into subdirectories first, then deletes loc itself.
func (e *Engine) removeDirRecursive(loc ps2dirent.Dirloc, ent *ps2dirent.Dirent) error {
	dir, err := e.OpenDirectory(loc, ent.FATCluster, ent.Length)
	if err != nil {
		return err
	}
	entries, err := dir.All()
	dir.Close()
	if err != nil {
		return err
	}

	for i := 2; i < len(entries); i++ {
		child := entries[i]
		if !ps2dirent.IsExists(child.Mode) {
			continue
		}
		childLoc := ps2dirent.Dirloc{ParentCluster: ent.FATCluster, EntryIndex: uint32(i)}
		if ps2dirent.IsDir(child.Mode) {
			if err := e.removeDirRecursive(childLoc, child); err != nil {
				return err
			}
		} else if err := e.DeleteDirloc(childLoc, false); err != nil {
			return err
		}
	}

	return e.DeleteDirloc(loc, false)
}

// GetMode returns the mode bits of the entry named by filename, and false if
// it doesn't exist. Grounded on original_source/ps2mc.py's get_mode.
func (e *Engine) GetMode(filename string) (uint16, bool, error) {
	res, err := ps2path.Resolve(e, e.curdir, filename)
	if err != nil {
		return 0, false, err
	}
	if res.Ent == nil {
		return 0, false, nil
	}
	return res.Ent.Mode, true, nil
}

// GetDirent returns the directory entry for filename. Grounded on
// original_source/ps2mc.py's get_dirent.
func (e *Engine) GetDirent(filename string) (*ps2dirent.Dirent, error) {
	res, err := ps2path.Resolve(e, e.curdir, filename)
	if err != nil {
		return nil, err
	}
	if !res.ParentFound {
		return nil, ps2errors.ErrPathNotFound.WithMessage(filename)
	}
	if res.Ent == nil {
		return nil, ps2errors.ErrFileNotFound.WithMessage(filename)
	}
	return res.Ent, nil
}

// DirentUpdate carries the subset of a dirent's fields original_source/
// ps2mc.py's ps2mc_directory.__setitem__ allows a caller to change: a nil
// field is left untouched. Length, FATCluster, and ParentEntry can't be
// changed this way since they're maintained by the filesystem itself.
type DirentUpdate struct {
	Mode     *uint16
	Created  *ps2dirent.ToD
	Modified *ps2dirent.ToD
	Attr     *uint32
}

// SetDirent applies update to the directory entry named by filename,
// preserving the file/directory/exists bits of Mode no matter what update.Mode
// carries. Grounded on original_source/ps2mc.py's set_dirent/
// ps2mc_directory.__setitem__.
func (e *Engine) SetDirent(filename string, update DirentUpdate) (*ps2dirent.Dirent, error) {
	res, err := ps2path.Resolve(e, e.curdir, filename)
	if err != nil {
		return nil, err
	}
	if !res.ParentFound {
		return nil, ps2errors.ErrPathNotFound.WithMessage(filename)
	}
	if res.Ent == nil {
		return nil, ps2errors.ErrFileNotFound.WithMessage(filename)
	}

	dir, release, err := e.openOrReuseContaining(res.Dirloc)
	if err != nil {
		return nil, err
	}
	defer release()

	ent, err := dir.At(res.Dirloc.EntryIndex)
	if err != nil {
		return nil, err
	}
	if !ps2dirent.IsExists(ent.Mode) {
		return ent, nil
	}

	const kindAndExistsBits = ps2dirent.ModeFile | ps2dirent.ModeDir | ps2dirent.ModeExists
	if update.Mode != nil {
		ent.Mode = (*update.Mode &^ kindAndExistsBits) | (ent.Mode & kindAndExistsBits)
	}
	if update.Created != nil {
		ent.Created = *update.Created
	}
	if update.Modified != nil {
		ent.Modified = *update.Modified
	}
	if update.Attr != nil {
		ent.Attr = *update.Attr
	}

	if err := dir.WriteAt(res.Dirloc.EntryIndex, ent); err != nil {
		return nil, err
	}
	if err := e.Flush(); err != nil {
		return nil, err
	}
	return ent, nil
}
