package dirent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sample() *Dirent {
	return &Dirent{
		Mode:        ModeExists | ModeFile | ModeRWX,
		Length:      1234,
		Created:     ToD{Second: 1, Minute: 2, Hour: 3, Day: 4, Month: 5, Year: 2012},
		FATCluster:  99,
		ParentEntry: 2,
		Modified:    ToD{Second: 10, Minute: 20, Hour: 21, Day: 15, Month: 6, Year: 2013},
		Attr:        0,
		Name:        "BESLES-12345TESTSAVE",
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	d := sample()
	buf, err := d.Encode()
	require.NoError(t, err)
	require.Len(t, buf, Size)

	got, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, d, got)
}

func TestDecode_WrongLength(t *testing.T) {
	_, err := Decode(make([]byte, Size-1))
	require.Error(t, err)
}

func TestEncode_NameTooLong(t *testing.T) {
	d := sample()
	long := make([]byte, 448)
	for i := range long {
		long[i] = 'a'
	}
	d.Name = string(long)

	_, err := d.Encode()
	require.Error(t, err)
}

func TestIsFileIsDir(t *testing.T) {
	require.True(t, IsFile(ModeExists|ModeFile))
	require.False(t, IsDir(ModeExists|ModeFile))
	require.True(t, IsDir(ModeExists|ModeDir))
	require.False(t, IsExists(ModeFile))
	require.True(t, IsExists(ModeExists))
}

func TestToD_RoundTripsThroughTime(t *testing.T) {
	original := time.Date(2020, time.March, 15, 12, 30, 45, 0, time.UTC)
	tod := FromTime(original)
	require.Equal(t, original, tod.Time())
}

func TestToD_ZeroMonthTreatedAsJanuary(t *testing.T) {
	tod := ToD{Second: 0, Minute: 0, Hour: 0, Day: 1, Month: 0, Year: 2000}
	got := tod.Time()
	require.Equal(t, time.January, got.Month())
}
