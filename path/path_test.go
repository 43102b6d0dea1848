package path

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	ps2dirent "github.com/dargueta/ps2mc/dirent"
	"github.com/dargueta/ps2mc/fat"
	"github.com/dargueta/ps2mc/object"
)

// memoryClusters is a minimal fat.ClusterReadWriter backed by a map, the
// same shape the fat and object packages' own tests use.
type memoryClusters struct {
	clusterSize uint
	clusters    map[uint32][]byte
}

func (m *memoryClusters) ReadCluster(n uint32) ([]byte, error) {
	if data, ok := m.clusters[n]; ok {
		return append([]byte(nil), data...), nil
	}
	return make([]byte, m.clusterSize), nil
}

func (m *memoryClusters) WriteCluster(n uint32, data []byte) error {
	m.clusters[n] = append([]byte(nil), data...)
	return nil
}

// fakeFS is a minimal Filesystem over a fat.Engine, wiring object.Directory
// the same way the root engine eventually will.
type fakeFS struct {
	engine      *fat.Engine
	clusterSize uint
}

// OpenDirectory converts length (an entry count, per the Filesystem
// interface's documented convention) into the byte length object.File
// expects, mirroring ps2mc_directory.__init__'s own multiplication.
func (fs *fakeFS) OpenDirectory(loc ps2dirent.Dirloc, firstCluster uint32, length uint32) (*object.Directory, error) {
	f := object.New(fs.engine, nil, loc, firstCluster, length*ps2dirent.Size, fs.clusterSize, object.OpenMode{}, "")
	return object.NewDirectory(f), nil
}

// DirlocToEnt mirrors original_source/ps2mc.py's _dirloc_to_ent: open a
// directory view over loc.ParentCluster sized to cover at least
// loc.EntryIndex entries, and read that one entry out of it.
func (fs *fakeFS) DirlocToEnt(loc ps2dirent.Dirloc) (*ps2dirent.Dirent, error) {
	length := (loc.EntryIndex + 1) * ps2dirent.Size
	f := object.New(fs.engine, nil, ps2dirent.Dirloc{}, loc.ParentCluster, length, fs.clusterSize, object.OpenMode{}, "")
	d := object.NewDirectory(f)
	defer d.Close()
	return d.At(loc.EntryIndex)
}

func writeEnt(t *testing.T, fs *fakeFS, cluster uint32, ent *ps2dirent.Dirent) {
	t.Helper()
	buf, err := ent.Encode()
	require.NoError(t, err)
	require.NoError(t, fs.engine.WriteAllocatableCluster(cluster, buf))
}

// buildFixture lays out a small tree:
//
//	/ (cluster 0, 1, 2): ".", "SUB", "FILE1"
//	/SUB (cluster 10, 11, 12): ".", "..", "LEAF"
//
// Every directory entry occupies exactly one cluster (clusterSize ==
// dirent.Size), so each directory's clusters are chained one per entry.
func buildFixture(t *testing.T) *fakeFS {
	t.Helper()

	const clusterSize = ps2dirent.Size
	const entriesPerCluster = clusterSize / 4
	store := &memoryClusters{clusterSize: clusterSize, clusters: make(map[uint32][]byte)}

	var indirect [fat.MaxIndirectClusters]uint32
	indirect[0] = 9000
	indirectBuf := make([]byte, clusterSize)
	binary.LittleEndian.PutUint32(indirectBuf, 9001)
	store.clusters[9000] = indirectBuf
	store.clusters[9001] = make([]byte, clusterSize)

	engine := fat.NewEngine(store, clusterSize, entriesPerCluster, indirect, entriesPerCluster, entriesPerCluster, 0)
	fs := &fakeFS{engine: engine, clusterSize: clusterSize}

	chain := func(clusters ...uint32) {
		for i, c := range clusters {
			if i == len(clusters)-1 {
				require.NoError(t, engine.Set(c, fat.ChainEnd))
			} else {
				require.NoError(t, engine.Set(c, clusters[i+1]|fat.AllocatedBit))
			}
		}
	}

	// Root: cluster 0 -> 1 -> 2.
	chain(0, 1, 2)
	writeEnt(t, fs, 0, &ps2dirent.Dirent{
		Mode: ps2dirent.ModeExists | ps2dirent.ModeDir, FATCluster: 0, ParentEntry: 0,
		Length: 3, Name: ".",
	})
	writeEnt(t, fs, 1, &ps2dirent.Dirent{
		Mode: ps2dirent.ModeExists | ps2dirent.ModeDir, FATCluster: 10, Length: 3, Name: "SUB",
	})
	writeEnt(t, fs, 2, &ps2dirent.Dirent{
		Mode: ps2dirent.ModeExists | ps2dirent.ModeFile, FATCluster: 20, Length: 5, Name: "FILE1",
	})

	// SUB: cluster 10 -> 11 -> 12. "." points back at root (cluster 0,
	// index 1: SUB's own slot in root's listing).
	chain(10, 11, 12)
	writeEnt(t, fs, 10, &ps2dirent.Dirent{
		Mode: ps2dirent.ModeExists | ps2dirent.ModeDir, FATCluster: 0, ParentEntry: 1, Name: ".",
	})
	writeEnt(t, fs, 11, &ps2dirent.Dirent{
		Mode: ps2dirent.ModeExists | ps2dirent.ModeDir, Name: "..",
	})
	writeEnt(t, fs, 12, &ps2dirent.Dirent{
		Mode: ps2dirent.ModeExists | ps2dirent.ModeFile, FATCluster: 30, Length: 3, Name: "LEAF",
	})

	chain(20)
	chain(30)

	return fs
}

func TestResolve_AbsoluteFile(t *testing.T) {
	fs := buildFixture(t)
	res, err := Resolve(fs, RootDirloc, "/FILE1")
	require.NoError(t, err)
	require.NotNil(t, res.Ent)
	require.Equal(t, "FILE1", res.Ent.Name)
	require.False(t, res.IsDir)
}

func TestResolve_AbsoluteDir(t *testing.T) {
	fs := buildFixture(t)
	res, err := Resolve(fs, RootDirloc, "/SUB")
	require.NoError(t, err)
	require.NotNil(t, res.Ent)
	require.Equal(t, "SUB", res.Ent.Name)
	require.True(t, res.IsDir)
}

func TestResolve_NestedFile(t *testing.T) {
	fs := buildFixture(t)
	res, err := Resolve(fs, RootDirloc, "/SUB/LEAF")
	require.NoError(t, err)
	require.NotNil(t, res.Ent)
	require.Equal(t, "LEAF", res.Ent.Name)
	require.False(t, res.IsDir)
}

func TestResolve_RelativeFromSubdir(t *testing.T) {
	fs := buildFixture(t)
	subDirloc := ps2dirent.Dirloc{ParentCluster: 0, EntryIndex: 1}
	res, err := Resolve(fs, subDirloc, "LEAF")
	require.NoError(t, err)
	require.NotNil(t, res.Ent)
	require.Equal(t, "LEAF", res.Ent.Name)
}

func TestResolve_DotIsNoop(t *testing.T) {
	fs := buildFixture(t)
	res, err := Resolve(fs, RootDirloc, "./FILE1")
	require.NoError(t, err)
	require.NotNil(t, res.Ent)
	require.Equal(t, "FILE1", res.Ent.Name)
}

func TestResolve_DotDotFromSubdirReachesRoot(t *testing.T) {
	fs := buildFixture(t)
	subDirloc := ps2dirent.Dirloc{ParentCluster: 0, EntryIndex: 1}
	res, err := Resolve(fs, subDirloc, "..")
	require.NoError(t, err)
	require.Equal(t, RootDirloc, res.Dirloc)
	require.True(t, res.IsDir)
}

func TestResolve_DotDotThenSibling(t *testing.T) {
	fs := buildFixture(t)
	subDirloc := ps2dirent.Dirloc{ParentCluster: 0, EntryIndex: 1}
	res, err := Resolve(fs, subDirloc, "../FILE1")
	require.NoError(t, err)
	require.NotNil(t, res.Ent)
	require.Equal(t, "FILE1", res.Ent.Name)
}

func TestResolve_MissingFinalComponentReportsParent(t *testing.T) {
	fs := buildFixture(t)
	res, err := Resolve(fs, RootDirloc, "/NOPE")
	require.NoError(t, err)
	require.Nil(t, res.Ent)
	require.True(t, res.ParentFound)
	require.Equal(t, RootDirloc, res.Dirloc)
}

func TestResolve_DotAfterNonDirectoryFailsEntirely(t *testing.T) {
	fs := buildFixture(t)
	res, err := Resolve(fs, RootDirloc, "/FILE1/.")
	require.NoError(t, err)
	require.False(t, res.ParentFound)
	require.Nil(t, res.Ent)
}

func TestResolve_MissingIntermediateComponentFailsEntirely(t *testing.T) {
	fs := buildFixture(t)
	res, err := Resolve(fs, RootDirloc, "/NOPE/LEAF")
	require.NoError(t, err)
	require.False(t, res.ParentFound)
	require.Nil(t, res.Ent)
}
