package fat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// memoryClusters is a ClusterReadWriter backed by a plain map, used to drive
// Engine in tests without needing a real page-backed image.
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

// newTestEngine builds a tiny single-level FAT: one indirect cluster (100)
// pointing at one FAT data cluster (101), covering `entriesPerCluster`
// allocatable clusters.
func newTestEngine(entriesPerCluster uint32) (*Engine, *memoryClusters) {
	clusterSize := uint(entriesPerCluster * 4)
	store := newMemoryClusters(clusterSize)

	var indirect [MaxIndirectClusters]uint32
	indirect[0] = 100

	indirectBuf := encodeEntries([]uint32{101}, clusterSize)
	store.clusters[100] = indirectBuf

	fatBuf := make([]byte, clusterSize)
	for i := uint32(0); i < entriesPerCluster; i++ {
		fatBuf[i*4] = 0 // all entries start unallocated (value 0)
	}
	store.clusters[101] = fatBuf

	engine := NewEngine(store, clusterSize, entriesPerCluster, indirect, entriesPerCluster, entriesPerCluster, 0)
	return engine, store
}

func TestAllocateThenLookup(t *testing.T) {
	engine, _ := newTestEngine(8)

	n, ok, err := engine.Allocate()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(0), n)

	v, err := engine.Lookup(n)
	require.NoError(t, err)
	require.Equal(t, ChainEnd, v)
}

func TestAllocate_ExhaustsCard(t *testing.T) {
	engine, _ := newTestEngine(4)

	seen := map[uint32]bool{}
	for i := 0; i < 4; i++ {
		n, ok, err := engine.Allocate()
		require.NoError(t, err)
		require.True(t, ok)
		require.False(t, seen[n])
		seen[n] = true
	}

	_, ok, err := engine.Allocate()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSetAndChainWalk(t *testing.T) {
	engine, _ := newTestEngine(8)

	// Build a three-cluster chain: 0 -> 1 -> 2 -> end.
	require.NoError(t, engine.Set(0, 1|AllocatedBit))
	require.NoError(t, engine.Set(1, 2|AllocatedBit))
	require.NoError(t, engine.Set(2, ChainEnd))

	chain := NewChain(engine, 0)

	v0, err := chain.At(0)
	require.NoError(t, err)
	require.Equal(t, uint32(0), v0)

	v2, err := chain.At(2)
	require.NoError(t, err)
	require.Equal(t, uint32(2), v2)

	// Walking backward exercises the i < offset branch.
	v1, err := chain.At(1)
	require.NoError(t, err)
	require.Equal(t, uint32(1), v1)

	length, err := chain.Len()
	require.NoError(t, err)
	require.Equal(t, uint32(3), length)
}

func TestChain_RunsOffEndReturnsChainEnd(t *testing.T) {
	engine, _ := newTestEngine(8)
	require.NoError(t, engine.Set(0, ChainEnd))

	chain := NewChain(engine, 0)
	v, err := chain.At(5)
	require.NoError(t, err)
	require.Equal(t, ChainEnd, v)
}

func TestFlush_PersistsDirtyClusters(t *testing.T) {
	engine, store := newTestEngine(8)
	require.NoError(t, engine.Set(0, ChainEnd))
	require.NoError(t, engine.WriteAllocatableCluster(0, make([]byte, engine.clusterSize)))

	require.NoError(t, engine.Flush())

	fatBuf, ok := store.clusters[101]
	require.True(t, ok)
	require.Equal(t, ChainEnd, decodeEntries(fatBuf)[0])
}

func TestLookup_OutOfRange(t *testing.T) {
	engine, _ := newTestEngine(8)
	_, err := engine.Lookup(100)
	require.Error(t, err)
}
