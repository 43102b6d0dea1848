package sps

import (
	"bytes"
	"testing"

	"github.com/dargueta/ps2mc/archive"
	ps2dirent "github.com/dargueta/ps2mc/dirent"
	"github.com/stretchr/testify/require"
)

func sampleSaveFile() *archive.SaveFile {
	return &archive.SaveFile{
		Dirent: &ps2dirent.Dirent{
			Mode: ps2dirent.ModeDir | ps2dirent.ModeRWX | ps2dirent.ModeExists,
			Name: "BESLES-12345GAME",
		},
		Files: []archive.File{
			{
				Dirent: &ps2dirent.Dirent{Mode: ps2dirent.ModeFile | ps2dirent.ModeRWX | ps2dirent.ModeExists, Name: "icon.sys"},
				Data:   bytes.Repeat([]byte{0x07}, 964),
			},
			{
				Dirent: &ps2dirent.Dirent{Mode: ps2dirent.ModeFile | ps2dirent.ModeRWX | ps2dirent.ModeExists, Name: "save.dat"},
				Data:   []byte("sharkport payload"),
			},
		},
	}
}

func TestSaveThenLoad_RoundTrips(t *testing.T) {
	sf := sampleSaveFile()

	var buf bytes.Buffer
	require.NoError(t, Save(&buf, sf))

	loaded, err := Load(&buf)
	require.NoError(t, err)

	require.Equal(t, sf.Dirent.Name, loaded.Dirent.Name)
	require.Len(t, loaded.Files, len(sf.Files))
	for i, f := range sf.Files {
		require.Equal(t, f.Dirent.Name, loaded.Files[i].Dirent.Name)
		require.Equal(t, f.Data, loaded.Files[i].Data)
	}
}

func TestSwapModeBytes_IsSelfInverse(t *testing.T) {
	mode := uint16(ps2dirent.ModeFile | ps2dirent.ModeRWX | ps2dirent.ModeExists)
	require.Equal(t, mode, swapModeBytes(swapModeBytes(mode)))
}

func TestLoad_RejectsBadMagic(t *testing.T) {
	_, err := Load(bytes.NewReader([]byte("not a sharkport save at all")))
	require.Error(t, err)
}
