package ps2mctesting

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompressThenDecompress_RoundTrips(t *testing.T) {
	original := bytes.Repeat([]byte("fixture image bytes"), 500)

	var compressed bytes.Buffer
	n, err := CompressImage(bytes.NewReader(original), &compressed)
	require.NoError(t, err)
	require.EqualValues(t, compressed.Len(), n)
	require.Less(t, compressed.Len(), len(original))

	decompressed, err := DecompressImageToBytes(bytes.NewReader(compressed.Bytes()))
	require.NoError(t, err)
	require.Equal(t, original, decompressed)
}

func TestNewFormattedImage_IsUsable(t *testing.T) {
	e := NewFormattedImage(t, "8mb")
	require.NoError(t, e.Mkdir("BESLES-99999GAME"))
}
