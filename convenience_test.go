package ps2mc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFSStat_ReportsFreeSpace(t *testing.T) {
	e := newFormattedEngine(t)
	stat, err := e.FSStat()
	require.NoError(t, err)
	require.EqualValues(t, 1024, stat.BlockSize)
	require.True(t, stat.BlocksFree > 0)
	require.Equal(t, stat.BlocksFree, stat.BlocksAvailable)
}

func TestStat_MatchesGetDirent(t *testing.T) {
	e := newFormattedEngine(t)
	require.NoError(t, e.Mkdir("/SUBDIR"))

	viaStat, err := e.Stat("/SUBDIR")
	require.NoError(t, err)
	viaGetDirent, err := e.GetDirent("/SUBDIR")
	require.NoError(t, err)
	require.Equal(t, viaGetDirent, viaStat)
}

func TestReadDir_SkipsDeletedSlots(t *testing.T) {
	e := newFormattedEngine(t)
	require.NoError(t, e.Mkdir("/A"))
	require.NoError(t, e.Mkdir("/B"))
	require.NoError(t, e.Remove("/A"))

	entries, err := e.ReadDir("/")
	require.NoError(t, err)

	var names []string
	for _, ent := range entries {
		names = append(names, ent.Name)
	}
	require.Contains(t, names, "B")
	require.NotContains(t, names, "A")
}

func TestIconSys_RoundTrips(t *testing.T) {
	e := newFormattedEngine(t)
	require.NoError(t, e.Mkdir("/SAVE1"))

	data := []byte("pretend icon.sys bytes")
	require.NoError(t, e.SetIconSys("/SAVE1", data))

	got, err := e.IconSys("/SAVE1")
	require.NoError(t, err)
	require.Equal(t, data, got)
}
