package archive

import (
	"testing"
	"time"

	ps2dirent "github.com/dargueta/ps2mc/dirent"
	"github.com/stretchr/testify/require"
)

func TestZeroTerminate(t *testing.T) {
	require.Equal(t, "hello", ZeroTerminate([]byte("hello\x00\x00\x00")))
	require.Equal(t, "hello", ZeroTerminate([]byte("hello")))
	require.Equal(t, "", ZeroTerminate([]byte{0, 0, 0}))
}

func TestDefaultToD_FillsZeroTimestamps(t *testing.T) {
	ent := &ps2dirent.Dirent{}
	DefaultToD(ent)
	require.True(t, ent.Created.Time().Unix() > 0)
	require.True(t, ent.Modified.Time().Unix() > 0)
}

func TestDefaultToD_PreservesRealTimestamps(t *testing.T) {
	tod := ps2dirent.FromTime(time.Date(2010, 5, 1, 12, 0, 0, 0, time.UTC))
	ent := &ps2dirent.Dirent{Created: tod, Modified: tod}
	DefaultToD(ent)
	require.Equal(t, tod, ent.Created)
	require.Equal(t, tod, ent.Modified)
}

func TestValidateFiles(t *testing.T) {
	fileEnt := &ps2dirent.Dirent{Mode: ps2dirent.ModeFile | ps2dirent.ModeExists}
	dirEnt := &ps2dirent.Dirent{Mode: ps2dirent.ModeDir | ps2dirent.ModeExists}

	require.NoError(t, ValidateFiles([]File{{Dirent: fileEnt}}))
	require.Error(t, ValidateFiles([]File{{Dirent: dirEnt}}))
}

func TestDetectType_Magics(t *testing.T) {
	require.Equal(t, TypeMAX, DetectType([]byte("Ps2PowerSave rest of header")))
	require.Equal(t, TypeSPS, DetectType([]byte("\x0d\x00\x00\x00SharkPortSave")))
	require.Equal(t, TypeCBS, DetectType([]byte("CFU\x00anything")))
	require.Equal(t, TypeUnknown, DetectType([]byte("not a save file")))
}

func TestDetectType_PSU(t *testing.T) {
	dirEnt := &ps2dirent.Dirent{Mode: ps2dirent.ModeDir | ps2dirent.ModeExists, Length: 2, Name: "save"}
	dotEnt := &ps2dirent.Dirent{Mode: ps2dirent.ModeDir | ps2dirent.ModeExists, Name: "."}
	dotdotEnt := &ps2dirent.Dirent{Mode: ps2dirent.ModeDir | ps2dirent.ModeExists, Name: ".."}

	dirBuf, err := dirEnt.Encode()
	require.NoError(t, err)
	dotBuf, err := dotEnt.Encode()
	require.NoError(t, err)
	dotdotBuf, err := dotdotEnt.Encode()
	require.NoError(t, err)

	header := append(append(dirBuf, dotBuf...), dotdotBuf...)
	require.Equal(t, TypePSU, DetectType(header))
}
