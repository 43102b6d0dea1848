package importexport

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/dargueta/ps2mc"
	"github.com/dargueta/ps2mc/archive"
	ps2dirent "github.com/dargueta/ps2mc/dirent"
	"github.com/dargueta/ps2mc/geometry"
)

func newFormattedEngine(t *testing.T) *ps2mc.Engine {
	t.Helper()
	geom, err := geometry.Lookup("8mb")
	require.NoError(t, err)

	buf := make([]byte, geom.TotalSizeBytes())
	stream := bytesextra.NewReadWriteSeeker(buf)

	e, err := ps2mc.Format(stream, geom, true)
	require.NoError(t, err)
	return e
}

func sampleSaveFile() *archive.SaveFile {
	return &archive.SaveFile{
		Dirent: &ps2dirent.Dirent{
			Mode: ps2dirent.ModeDir | ps2dirent.ModeRWX | ps2dirent.ModeExists,
			Name: "BESLES-12345GAME",
		},
		Files: []archive.File{
			{
				Dirent: &ps2dirent.Dirent{Mode: ps2dirent.ModeFile | ps2dirent.ModeRWX | ps2dirent.ModeExists, Name: "icon.sys"},
				Data:   []byte("icon sys content"),
			},
			{
				Dirent: &ps2dirent.Dirent{Mode: ps2dirent.ModeFile | ps2dirent.ModeRWX | ps2dirent.ModeExists, Name: "save.dat"},
				Data:   []byte("save data content"),
			},
		},
	}
}

func TestImportThenExport_RoundTrips(t *testing.T) {
	e := newFormattedEngine(t)
	sf := sampleSaveFile()

	require.NoError(t, Import(e, "BESLES-12345GAME", sf))

	exported, err := Export(e, "BESLES-12345GAME")
	require.NoError(t, err)
	require.Equal(t, sf.Dirent.Name, exported.Dirent.Name)
	require.Len(t, exported.Files, len(sf.Files))
	for _, f := range sf.Files {
		found := false
		for _, ef := range exported.Files {
			if ef.Dirent.Name == f.Dirent.Name {
				require.Equal(t, f.Data, ef.Data)
				found = true
			}
		}
		require.True(t, found, "expected exported file %q", f.Dirent.Name)
	}
}

func TestImport_AlreadyExistsFails(t *testing.T) {
	e := newFormattedEngine(t)
	sf := sampleSaveFile()
	require.NoError(t, Import(e, "BESLES-12345GAME", sf))
	require.Error(t, Import(e, "BESLES-12345GAME", sf))
}

func TestImport_RejectsSubdirectoryEntry(t *testing.T) {
	e := newFormattedEngine(t)
	sf := sampleSaveFile()
	sf.Files[0].Dirent.Mode = ps2dirent.ModeDir | ps2dirent.ModeExists

	require.Error(t, Import(e, "BESLES-12345GAME", sf))

	_, err := e.Stat("BESLES-12345GAME")
	require.Error(t, err, "a failed import must not leave a partial directory behind")
}
