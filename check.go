package ps2mc

import (
	"fmt"

	"github.com/boljen/go-bitmap"

	ps2dirent "github.com/dargueta/ps2mc/dirent"
	"github.com/dargueta/ps2mc/fat"
	ps2path "github.com/dargueta/ps2mc/path"
)

// CheckReport collects every structural problem Check finds, in place of
// original_source/ps2mc.py's check() printing straight to stdout.
type CheckReport struct {
	Problems []string
}

// OK reports whether the checked filesystem had no problems.
func (r *CheckReport) OK() bool {
	return len(r.Problems) == 0
}

func (r *CheckReport) report(format string, args ...interface{}) {
	r.Problems = append(r.Problems, fmt.Sprintf(format, args...))
}

// Check walks the entire directory tree, verifying every file's and
// directory's cluster chain against its recorded length, then cross-checks
// the clusters it visited against the FAT table to find lost (allocated but
// unreachable) clusters. Grounded on original_source/ps2mc.py's check,
// _check_dir, and _check_file, using a github.com/boljen/go-bitmap bitmap
// to track visited clusters the same way the teacher's own allocator tracks
// free/used blocks (drivers/common/allocatormap.go).
func (e *Engine) Check() (*CheckReport, error) {
	report := &CheckReport{}
	visited := bitmap.New(int(e.sb.AllocatableClusterEnd))

	root, err := e.DirlocToEnt(ps2path.RootDirloc)
	if err != nil {
		return nil, err
	}
	if err := e.checkDir(visited, ps2path.RootDirloc, "/", root, report); err != nil {
		return nil, err
	}

	lost := 0
	for i := uint32(0); i < e.sb.AllocatableClusterEnd; i++ {
		v, err := e.fat.Lookup(i)
		if err != nil {
			return nil, err
		}
		if v&fat.AllocatedBit != 0 && !visited.Get(int(i)) {
			lost++
		}
	}
	if lost > 0 {
		report.report("found %d lost cluster(s)", lost)
	}

	return report, nil
}

// checkChain walks a cluster chain starting at first, marking every cluster
// it passes through as visited in the bitmap, and compares the chain's
// actual length against the number of clusters byteLength should occupy.
// Grounded on _check_file.
func (e *Engine) checkChain(visited bitmap.Bitmap, first uint32, byteLength uint32) (string, error) {
	cluster := first
	count := uint32(0)

	for cluster != fat.ChainEnd {
		if cluster >= e.sb.AllocatableClusterEnd {
			return "invalid cluster in chain", nil
		}
		if visited.Get(int(cluster)) {
			return "cross linked chain", nil
		}
		visited.Set(int(cluster), true)
		count++

		next, err := e.fat.Lookup(cluster)
		if err != nil {
			return "", err
		}
		if next == fat.ChainEnd {
			break
		}
		if next&fat.AllocatedBit == 0 {
			return "unallocated cluster in chain", nil
		}
		cluster = next &^ fat.AllocatedBit
	}

	expected := (byteLength + uint32(e.clusterSize) - 1) / uint32(e.clusterSize)
	if count < expected {
		return "chain ends before end of file", nil
	}
	if count > expected {
		return "chain continues after end of file", nil
	}
	return "", nil
}

// checkDir verifies one directory's own cluster chain and its "." / ".."
// entries, then recurses into every existing child. Grounded on _check_dir.
func (e *Engine) checkDir(visited bitmap.Bitmap, loc ps2dirent.Dirloc, name string, ent *ps2dirent.Dirent, report *CheckReport) error {
	why, err := e.checkChain(visited, ent.FATCluster, ent.Length*ps2dirent.Size)
	if err != nil {
		return err
	}
	if why != "" {
		report.report("bad directory %s: %s", name, why)
		return nil
	}

	dir, err := e.OpenDirectory(loc, ent.FATCluster, ent.Length)
	if err != nil {
		return err
	}
	defer dir.Close()

	dotEnt, err := dir.At(0)
	if err != nil {
		return err
	}
	if dotEnt.Name != "." {
		report.report(`bad directory %s: missing "." entry`, name)
	} else if dotEnt.FATCluster != loc.ParentCluster || dotEnt.ParentEntry != loc.EntryIndex {
		report.report(`bad directory %s: bad "." entry`, name)
	}

	dotdotEnt, err := dir.At(1)
	if err != nil {
		return err
	}
	if dotdotEnt.Name != ".." {
		report.report(`bad directory %s: missing ".." entry`, name)
	}

	entries, err := dir.All()
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
			if err := e.checkDir(visited, childLoc, name+child.Name+"/", child, report); err != nil {
				return err
			}
		} else {
			why, err := e.checkChain(visited, child.FATCluster, child.Length)
			if err != nil {
				return err
			}
			if why != "" {
				report.report("bad file %s%s: %s", name, child.Name, why)
			}
		}
	}

	return nil
}
