package object

import (
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	ps2dirent "github.com/dargueta/ps2mc/dirent"
	"github.com/dargueta/ps2mc/fat"
)

type memoryClusters struct {
	clusterSize uint
	clusters    map[uint32][]byte
}

func newMemoryClusters(clusterSize uint) *memoryClusters {
	return &memoryClusters{clusterSize: clusterSize, clusters: make(map[uint32][]byte)}
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

func encodeFatEntries(entries []uint32, bufSize uint) []byte {
	buf := make([]byte, bufSize)
	for i, v := range entries {
		binary.LittleEndian.PutUint32(buf[i*4:], v)
	}
	return buf
}

// newTestEngine builds a single-level FAT covering entriesPerCluster
// allocatable clusters, same shape as fat package's own test helper.
func newTestEngine(entriesPerCluster uint32) *fat.Engine {
	clusterSize := uint(entriesPerCluster * 4)
	store := newMemoryClusters(clusterSize)

	var indirect [fat.MaxIndirectClusters]uint32
	indirect[0] = 100
	store.clusters[100] = encodeFatEntries([]uint32{101}, clusterSize)
	store.clusters[101] = make([]byte, clusterSize)

	return fat.NewEngine(store, clusterSize, entriesPerCluster, indirect, entriesPerCluster, entriesPerCluster, 0)
}

// noopUpdater satisfies DirentUpdater without persisting anything, for tests
// that only care about cluster-chain behavior.
type noopUpdater struct{}

func (noopUpdater) UpdateDirent(loc ps2dirent.Dirloc, self *File, newFirstCluster *uint32, newLength *uint32, setModified bool) error {
	return nil
}

func TestFile_WriteThenReadBack(t *testing.T) {
	engine := newTestEngine(8)
	cluster, ok, err := engine.Allocate()
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, engine.Set(cluster, fat.ChainEnd))

	f := New(engine, noopUpdater{}, ps2dirent.Dirloc{}, cluster, 0, uint(engine_clusterSizeForTest), OpenMode{Write: true}, "test")

	data := []byte("hello world")
	n, err := f.Write(data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)

	_, err = f.Seek(0, io.SeekStart)
	require.NoError(t, err)

	got := make([]byte, len(data))
	n, err = f.Read(got)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.Equal(t, data, got)
}

func TestFile_WriteSpanningMultipleClusters(t *testing.T) {
	engine := newTestEngine(8)
	cluster, ok, err := engine.Allocate()
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, engine.Set(cluster, fat.ChainEnd))

	clusterSize := uint(engine_clusterSizeForTest)
	f := New(engine, noopUpdater{}, ps2dirent.Dirloc{}, cluster, 0, clusterSize, OpenMode{Write: true}, "multi")

	data := make([]byte, clusterSize*3+5)
	for i := range data {
		data[i] = byte(i)
	}

	n, err := f.Write(data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.EqualValues(t, len(data), f.Length())

	_, err = f.Seek(0, io.SeekStart)
	require.NoError(t, err)

	got := make([]byte, len(data))
	_, err = io.ReadFull(f, got)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestFile_AppendMode(t *testing.T) {
	engine := newTestEngine(8)
	cluster, ok, err := engine.Allocate()
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, engine.Set(cluster, fat.ChainEnd))

	clusterSize := uint(engine_clusterSizeForTest)
	f := New(engine, noopUpdater{}, ps2dirent.Dirloc{}, cluster, 0, clusterSize, OpenMode{Write: true}, "a")
	_, err = f.Write([]byte("abc"))
	require.NoError(t, err)

	f2 := New(engine, noopUpdater{}, ps2dirent.Dirloc{}, cluster, f.Length(), clusterSize, OpenMode{Write: true, Append: true}, "a")
	_, err = f2.Write([]byte("def"))
	require.NoError(t, err)
	require.EqualValues(t, 6, f2.Length())
}

func TestFile_ReadOnlyRejectsWrite(t *testing.T) {
	engine := newTestEngine(8)
	f := New(engine, noopUpdater{}, ps2dirent.Dirloc{}, fat.ChainEnd, 0, uint(engine_clusterSizeForTest), OpenMode{}, "ro")
	_, err := f.Write([]byte("x"))
	require.Error(t, err)
}

func TestFile_ReadLineTruncatesAtEOLWithinCluster(t *testing.T) {
	engine := newTestEngine(8)
	cluster, ok, err := engine.Allocate()
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, engine.Set(cluster, fat.ChainEnd))

	clusterSize := uint(engine_clusterSizeForTest)
	f := New(engine, noopUpdater{}, ps2dirent.Dirloc{}, cluster, 0, clusterSize, OpenMode{Write: true}, "lines")

	_, err = f.Write([]byte("first\nsecond\n"))
	require.NoError(t, err)

	_, err = f.Seek(0, io.SeekStart)
	require.NoError(t, err)

	buf := make([]byte, 32)
	n, err := f.ReadLine(buf, '\n')
	require.NoError(t, err)
	require.Equal(t, "first\n", string(buf[:n]))

	n, err = f.ReadLine(buf, '\n')
	require.NoError(t, err)
	require.Equal(t, "second\n", string(buf[:n]))

	_, err = f.ReadLine(buf, '\n')
	require.ErrorIs(t, err, io.EOF)
}

func TestFile_ReadLineWithoutMatchReadsWholeRequest(t *testing.T) {
	engine := newTestEngine(8)
	cluster, ok, err := engine.Allocate()
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, engine.Set(cluster, fat.ChainEnd))

	clusterSize := uint(engine_clusterSizeForTest)
	f := New(engine, noopUpdater{}, ps2dirent.Dirloc{}, cluster, 0, clusterSize, OpenMode{Write: true}, "nolines")

	data := []byte("no newline here")
	_, err = f.Write(data)
	require.NoError(t, err)

	_, err = f.Seek(0, io.SeekStart)
	require.NoError(t, err)

	buf := make([]byte, len(data))
	n, err := f.ReadLine(buf, '\n')
	require.NoError(t, err)
	require.Equal(t, data, buf[:n])
}

func TestDirectory_WriteAndReadEntries(t *testing.T) {
	engine := newTestEngine(8)
	cluster, ok, err := engine.Allocate()
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, engine.Set(cluster, fat.ChainEnd))

	clusterSize := uint(engine_clusterSizeForTest)
	f := New(engine, noopUpdater{}, ps2dirent.Dirloc{}, cluster, 0, clusterSize, OpenMode{Write: true}, "/")
	dir := NewDirectory(f)

	ent := &ps2dirent.Dirent{
		Mode: ps2dirent.ModeExists | ps2dirent.ModeFile,
		Name: "SAVE001",
	}
	require.NoError(t, dir.WriteAt(0, ent))

	got, err := dir.At(0)
	require.NoError(t, err)
	require.Equal(t, ent.Name, got.Name)
	require.Equal(t, ent.Mode, got.Mode)
}

// engine_clusterSizeForTest matches the cluster size newTestEngine(8) uses
// (8 entries * 4 bytes/entry).
const engine_clusterSizeForTest = 32
