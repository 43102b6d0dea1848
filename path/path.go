// Package path (imported as ps2path) resolves slash-separated pathnames
// against the on-card directory tree, grounded on
// original_source/ps2mc.py's path_search and search_directory.
package path

import (
	"strings"

	ps2dirent "github.com/dargueta/ps2mc/dirent"
	"github.com/dargueta/ps2mc/object"
)

// Filesystem is the subset of engine behavior path resolution needs: opening
// a directory stream for a known dirloc, and recovering a dirent from its
// dirloc (its parent's first cluster + its index within that parent).
//
// length is passed through exactly as stored in the dirent's on-disk Length
// field: for a directory that is an entry count, not a byte count (the same
// field holds a byte count for a regular file), matching
// original_source/ps2mc.py's ps2mc_directory.__init__ multiplying its
// length argument by PS2MC_DIRENT_LENGTH. Implementations of OpenDirectory
// are responsible for that conversion.
type Filesystem interface {
	OpenDirectory(loc ps2dirent.Dirloc, firstCluster uint32, length uint32) (*object.Directory, error)
	DirlocToEnt(loc ps2dirent.Dirloc) (*ps2dirent.Dirent, error)
}

// RootDirloc is the dirloc of the root directory's "." entry, used both as
// the starting point for absolute paths and as the sentinel nobody may
// remove or rename.
var RootDirloc = ps2dirent.Dirloc{ParentCluster: 0, EntryIndex: 0}

// Result is the outcome of resolving a pathname.
type Result struct {
	// Dirloc is the location of the named entry if it exists, otherwise the
	// location of its parent directory if that exists, otherwise the zero
	// value (see ParentFound).
	Dirloc ps2dirent.Dirloc
	// Ent is the resolved entry, or nil if the pathname names a
	// non-existent child of an existing directory.
	Ent *ps2dirent.Dirent
	// IsDir reports whether Ent (if non-nil) is a directory.
	IsDir bool
	// ParentFound reports whether at least the parent directory of the
	// final path component was found.
	ParentFound bool
}

// searchDirectory scans dir for an existing entry named name, returning its
// index and entry, or ok=false if not present.
func searchDirectory(dir *object.Directory, name string) (index uint32, ent *ps2dirent.Dirent, ok bool, err error) {
	entries, err := dir.All()
	if err != nil {
		return 0, nil, false, err
	}
	for i, e := range entries {
		if ps2dirent.IsExists(e.Mode) && e.Name == name {
			return uint32(i), e, true, nil
		}
	}
	return 0, nil, false, nil
}

// LoadDirAt opens the directory named by loc along with its own entry,
// special-casing RootDirloc (which has no entry of its own to read: the root
// directory's contents simply start at cluster 0). Exported so the engine
// package can share this exact lookup for its own dirloc bookkeeping instead
// of re-deriving it.
func LoadDirAt(fs Filesystem, loc ps2dirent.Dirloc) (*ps2dirent.Dirent, *object.Directory, error) {
	if loc == RootDirloc {
		ent, err := fs.DirlocToEnt(RootDirloc)
		if err != nil {
			return nil, nil, err
		}
		dir, err := fs.OpenDirectory(loc, 0, ent.Length)
		return ent, dir, err
	}

	ent, err := fs.DirlocToEnt(loc)
	if err != nil {
		return nil, nil, err
	}
	dir, err := fs.OpenDirectory(loc, ent.FATCluster, ent.Length)
	return ent, dir, err
}

func loadDirAt(fs Filesystem, loc ps2dirent.Dirloc) (*ps2dirent.Dirent, *object.Directory, error) {
	return LoadDirAt(fs, loc)
}

// ParentDirloc finds the dirloc of the directory containing the one named by
// loc, by reading straight from loc.ParentCluster: since that cluster holds
// the listing of the directory containing loc, with "." at index 0, and every directory's
// "." entry carries its own location (parent's cluster, its index in the
// parent) in the fat_cluster/parent_entry fields, entry 0 there is exactly
// the entry describing the containing directory itself. Grounded on
// original_source/ps2mc.py's _get_parent_dirloc.
func ParentDirloc(fs Filesystem, loc ps2dirent.Dirloc) (ps2dirent.Dirloc, error) {
	if loc == RootDirloc {
		return RootDirloc, nil
	}

	selfEnt, err := fs.DirlocToEnt(ps2dirent.Dirloc{ParentCluster: loc.ParentCluster, EntryIndex: 0})
	if err != nil {
		return ps2dirent.Dirloc{}, err
	}

	parent := ps2dirent.Dirloc{ParentCluster: selfEnt.FATCluster, EntryIndex: selfEnt.ParentEntry}
	if parent.ParentCluster == 0 && parent.EntryIndex == 0 {
		parent = RootDirloc
	}
	return parent, nil
}

func parentDirloc(fs Filesystem, loc ps2dirent.Dirloc) (ps2dirent.Dirloc, error) {
	return ParentDirloc(fs, loc)
}

// OpenContaining opens the directory whose own content cluster is
// loc.ParentCluster, i.e. the directory that directly contains the entry
// named by loc. loc.ParentCluster == 0 means loc lives in the root
// directory's own listing. Grounded on
// original_source/ps2mc.py's _opendir_parent_dirloc.
func OpenContaining(fs Filesystem, loc ps2dirent.Dirloc) (*object.Directory, error) {
	if loc.ParentCluster == 0 {
		_, dir, err := LoadDirAt(fs, RootDirloc)
		return dir, err
	}

	naming, err := ParentDirloc(fs, loc)
	if err != nil {
		return nil, err
	}
	_, dir, err := LoadDirAt(fs, naming)
	return dir, err
}

// Resolve walks pathname, starting from curdir for relative paths or the
// root for paths beginning with "/".
func Resolve(fs Filesystem, curdir ps2dirent.Dirloc, pathname string) (Result, error) {
	components := strings.Split(pathname, "/")

	dirloc := curdir
	if len(components) > 0 && components[0] == "" {
		dirloc = RootDirloc
	}

	ent, dir, err := loadDirAt(fs, dirloc)
	if err != nil {
		return Result{}, err
	}

	for _, s := range components {
		if s == "" {
			continue
		}

		if dir == nil {
			// Tried to traverse through a file or a non-existent
			// directory.
			return Result{}, nil
		}

		if s == "." {
			continue
		}

		if s == ".." {
			dir.Close()

			dirloc, err = parentDirloc(fs, dirloc)
			if err != nil {
				return Result{}, err
			}
			ent, dir, err = loadDirAt(fs, dirloc)
			if err != nil {
				return Result{}, err
			}
			continue
		}

		dirCluster := ent.FATCluster
		index, found, ok, serr := searchDirectory(dir, s)
		dir.Close()
		dir = nil
		if serr != nil {
			return Result{}, serr
		}

		if !ok {
			// Mirrors search_directory returning (None, None): the final
			// component's dirent is reported missing, but dirloc still
			// names the (existing) parent so callers can create it there.
			ent = nil
			continue
		}

		dirloc = ps2dirent.Dirloc{ParentCluster: dirCluster, EntryIndex: index}
		ent = found

		if ps2dirent.IsDir(ent.Mode) {
			dir, err = fs.OpenDirectory(dirloc, ent.FATCluster, ent.Length)
			if err != nil {
				return Result{}, err
			}
		}
	}

	if dir != nil {
		dir.Close()
	}

	return Result{
		Dirloc:      dirloc,
		Ent:         ent,
		IsDir:       ent != nil && ps2dirent.IsDir(ent.Mode),
		ParentFound: true,
	}, nil
}
