package ps2mc

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheck_FreshlyFormattedImageIsClean(t *testing.T) {
	e := newFormattedEngine(t)
	report, err := e.Check()
	require.NoError(t, err)
	require.True(t, report.OK(), "%v", report.Problems)
}

func TestCheck_PopulatedTreeIsClean(t *testing.T) {
	e := newFormattedEngine(t)
	require.NoError(t, e.Mkdir("/SUBDIR"))
	h, err := e.OpenFile("/SUBDIR/A.TXT", os.O_RDWR|os.O_CREATE)
	require.NoError(t, err)
	_, err = h.Write([]byte("some file content"))
	require.NoError(t, err)
	require.NoError(t, h.Close())
	require.NoError(t, e.Flush())

	report, err := e.Check()
	require.NoError(t, err)
	require.True(t, report.OK(), "%v", report.Problems)
}

func TestCheck_DetectsLostCluster(t *testing.T) {
	e := newFormattedEngine(t)

	_, ok, err := e.fat.Allocate()
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, e.Flush())

	report, err := e.Check()
	require.NoError(t, err)
	require.False(t, report.OK())
}
