package ecc

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func randomChunk(seed int64) []byte {
	r := rand.New(rand.NewSource(seed))
	chunk := make([]byte, ChunkSize)
	r.Read(chunk)
	return chunk
}

func TestCheck_MatchingEccIsOK(t *testing.T) {
	chunk := randomChunk(1)
	triple := Calc(chunk)
	require.Equal(t, OK, Check(chunk, &triple))
}

func TestCheck_SingleBitFlipInData_IsCorrected(t *testing.T) {
	for bit := 0; bit < 8; bit++ {
		for byteIndex := 0; byteIndex < ChunkSize; byteIndex += 17 {
			chunk := randomChunk(int64(byteIndex*8 + bit + 100))
			original := append([]byte(nil), chunk...)
			triple := Calc(chunk)

			chunk[byteIndex] ^= 1 << uint(bit)
			result := Check(chunk, &triple)

			require.Equal(t, Corrected, result)
			require.Equal(t, original, chunk)
		}
	}
}

func TestCheck_SingleBitFlipInEcc_IsCorrected(t *testing.T) {
	chunk := randomChunk(2)
	triple := Calc(chunk)
	want := triple

	triple[0] ^= 0x01

	result := Check(chunk, &triple)
	require.Equal(t, Corrected, result)
	require.Equal(t, want, triple)
}

func TestCheck_DoubleBitFlip_MostlyFails(t *testing.T) {
	failures := 0
	trials := 200
	for i := 0; i < trials; i++ {
		chunk := randomChunk(int64(1000 + i))
		triple := Calc(chunk)

		chunk[i%ChunkSize] ^= 0x01
		chunk[(i+64)%ChunkSize] ^= 0x02

		if Check(chunk, &triple) == Failed {
			failures++
		}
	}
	require.GreaterOrEqual(t, float64(failures)/float64(trials), 0.95)
}

func TestEncodeCheckPage_RoundTrip(t *testing.T) {
	page := make([]byte, 512)
	rand.New(rand.NewSource(42)).Read(page)

	triples := EncodePage(page)
	require.Len(t, triples, 4)
	require.Equal(t, OK, CheckPage(page, triples))

	page[10] ^= 0x04
	require.Equal(t, Corrected, CheckPage(page, triples))
}
