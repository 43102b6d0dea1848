package max

import (
	"bytes"
	"testing"
	"time"

	"github.com/dargueta/ps2mc/archive"
	ps2dirent "github.com/dargueta/ps2mc/dirent"
	"github.com/stretchr/testify/require"
)

func sampleSaveFile() *archive.SaveFile {
	stamp := ps2dirent.FromTime(time.Date(2015, 3, 14, 9, 26, 53, 0, time.UTC))
	return &archive.SaveFile{
		Dirent: &ps2dirent.Dirent{
			Mode:     ps2dirent.ModeDir | ps2dirent.ModeExists,
			Created:  stamp,
			Modified: stamp,
			Name:     "BESLES-12345GAME",
		},
		Files: []archive.File{
			{
				Dirent: &ps2dirent.Dirent{Mode: ps2dirent.ModeFile | ps2dirent.ModeExists, Name: "icon.sys"},
				Data:   bytes.Repeat([]byte{0x42}, 964),
			},
			{
				Dirent: &ps2dirent.Dirent{Mode: ps2dirent.ModeFile | ps2dirent.ModeExists, Name: "save.dat"},
				Data:   bytes.Repeat([]byte("save data "), 50),
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

func TestLoad_RejectsBadMagic(t *testing.T) {
	_, err := Load(bytes.NewReader(bytes.Repeat([]byte{0}, headerSize)))
	require.Error(t, err)
}

func TestLoad_HandlesUncompressedLengthInClenField(t *testing.T) {
	sf := sampleSaveFile()
	var buf bytes.Buffer
	require.NoError(t, Save(&buf, sf))

	raw := buf.Bytes()
	// Overwrite clen (offset 80) with the uncompressed length to exercise
	// the malformed-but-tolerated clen==length fallback load_max_drive
	// itself accommodates.
	length := raw[88:92]
	copy(raw[80:84], length)

	loaded, err := Load(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, loaded.Files, len(sf.Files))
}
