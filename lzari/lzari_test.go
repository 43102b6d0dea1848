package lzari

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncode_EmptyInput(t *testing.T) {
	require.Nil(t, Encode(nil))
}

func TestDecode_EmptyOutput(t *testing.T) {
	out, err := Decode([]byte{1, 2, 3}, 0)
	require.NoError(t, err)
	require.Nil(t, out)
}

func TestRoundTrip_ShortLiteralRun(t *testing.T) {
	src := []byte("hello, world!")
	compressed := Encode(src)
	out, err := Decode(compressed, len(src))
	require.NoError(t, err)
	require.Equal(t, src, out)
}

func TestRoundTrip_RepeatedPattern(t *testing.T) {
	src := bytes.Repeat([]byte("abcdefgh"), 500)
	compressed := Encode(src)
	out, err := Decode(compressed, len(src))
	require.NoError(t, err)
	require.Equal(t, src, out)
	require.Less(t, len(compressed), len(src))
}

func TestRoundTrip_AllZeroes(t *testing.T) {
	src := make([]byte, 8192)
	compressed := Encode(src)
	out, err := Decode(compressed, len(src))
	require.NoError(t, err)
	require.Equal(t, src, out)
}

func TestRoundTrip_RandomBytes(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	src := make([]byte, 4096)
	rng.Read(src)
	compressed := Encode(src)
	out, err := Decode(compressed, len(src))
	require.NoError(t, err)
	require.Equal(t, src, out)
}

func TestRoundTrip_LongerThanHistoryWindow(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	chunk := make([]byte, 4096)
	rng.Read(chunk)

	var src []byte
	for i := 0; i < 5; i++ {
		src = append(src, chunk...)
	}
	compressed := Encode(src)
	out, err := Decode(compressed, len(src))
	require.NoError(t, err)
	require.Equal(t, src, out)
}

func TestRoundTrip_SingleByte(t *testing.T) {
	src := []byte{0xAB}
	compressed := Encode(src)
	out, err := Decode(compressed, len(src))
	require.NoError(t, err)
	require.Equal(t, src, out)
}

func TestDecode_TruncatedStreamReportsCorruption(t *testing.T) {
	// Asking for far more output than the stream actually encodes forces
	// decoding to run well past the real content; with a margin this large,
	// one of the many multi-byte matches decoded from the leftover
	// zero-padded bits is certain to overshoot the requested length.
	src := bytes.Repeat([]byte("mismatched length stream "), 40)
	compressed := Encode(src)
	_, err := Decode(compressed, len(src)+5000)
	require.ErrorIs(t, err, ErrCorruptStream)
}
