package superblock

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sample() *Superblock {
	sb := &Superblock{
		Magic:                   Magic,
		PageSize:                512,
		PagesPerCluster:         2,
		PagesPerEraseBlock:      16,
		ClustersPerCard:         8192,
		AllocatableClusterStart: 41,
		AllocatableClusterEnd:   8192,
		RootdirFATCluster:       0,
		BackupBlock1:            40,
		BackupBlock2:            41,
	}
	copy(sb.Version[:], "1.2.0.0\x00\x00\x00\x00\x00")
	sb.IndirectFATClusters[0] = 1
	sb.BadEraseBlocks[0] = 0xFFFFFFFF
	return sb
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	sb := sample()
	buf := sb.Encode()
	require.Len(t, buf, Size)

	got, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, sb, got)
}

func TestClusterSize(t *testing.T) {
	sb := sample()
	require.EqualValues(t, 1024, sb.ClusterSize())
}

func TestDecode_WrongLength(t *testing.T) {
	_, err := Decode(make([]byte, Size-1))
	require.Error(t, err)
}

func TestDecode_BadMagic(t *testing.T) {
	sb := sample()
	buf := sb.Encode()
	buf[0] = 'X'

	_, err := Decode(buf)
	require.Error(t, err)
}
