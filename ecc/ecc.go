// Package ecc implements the per-128-byte Hamming code used to protect every
// page on a PS2 memory card image, grounded on original_source/ps2mc_ecc.py.
//
// Changing ChunkSize, or the bit arithmetic in Calc/Check, produces an
// implementation that can no longer read or repair real memory card images.
package ecc

import (
	"github.com/dargueta/ps2mc/internal/roundbits"
)

// ChunkSize is the number of data bytes a single Hamming code protects.
const ChunkSize = 128

// Triple is the 3-byte Hamming code for one 128-byte chunk: column parity,
// and the two halves of line parity.
type Triple [3]byte

// Result is the outcome of checking a chunk against its stored ECC triple.
type Result int

const (
	// OK means the chunk's stored ECC matches its computed ECC exactly.
	OK Result = iota
	// Corrected means a single-bit error was found and fixed in either the
	// chunk's data or its ECC triple.
	Corrected
	// Failed means the error (if any) could not be corrected.
	Failed
)

var parityTable [256]byte
var columnParityMasks [256]byte

var cpMasks = [7]byte{0x55, 0x33, 0x0F, 0x00, 0xAA, 0xCC, 0xF0}

func init() {
	for b := 0; b < 256; b++ {
		parityTable[b] = parityOf(byte(b))
	}
	for b := 0; b < 256; b++ {
		var mask byte
		for i, cpMask := range cpMasks {
			mask |= parityTable[byte(b)&cpMask] << uint(i)
		}
		columnParityMasks[b] = mask
	}
}

func parityOf(a byte) byte {
	a ^= a >> 1
	a ^= a >> 2
	a ^= a >> 4
	return a & 1
}

// Calc computes the Hamming code for a 128-byte chunk. It panics if chunk is
// not exactly ChunkSize bytes long, since the caller is always expected to
// have split the page into fixed-size chunks first.
func Calc(chunk []byte) Triple {
	if len(chunk) != ChunkSize {
		panic("ecc: Calc requires a 128-byte chunk")
	}

	columnParity := byte(0x77)
	lineParity0 := byte(0x7F)
	lineParity1 := byte(0x7F)

	for i, b := range chunk {
		columnParity ^= columnParityMasks[b]
		if parityTable[b] != 0 {
			lineParity0 ^= ^byte(i)
			lineParity1 ^= byte(i)
		}
	}

	return Triple{columnParity, lineParity0 & 0x7F, lineParity1}
}

// Check verifies chunk against its stored ECC triple, correcting a single-bit
// error in either the chunk or the triple in place. It returns OK if the
// stored ECC already matched, Corrected if a single-bit error was fixed, or
// Failed if the error could not be corrected.
func Check(chunk []byte, storedECC *Triple) Result {
	computed := Calc(chunk)
	if computed == *storedECC {
		return OK
	}

	cpDiff := (computed[0] ^ storedECC[0]) & 0x77
	lp0Diff := (computed[1] ^ storedECC[1]) & 0x7F
	lp1Diff := (computed[2] ^ storedECC[2]) & 0x7F
	lpComp := lp0Diff ^ lp1Diff
	cpComp := (cpDiff >> 4) ^ (cpDiff & 0x07)

	if lpComp == 0x7F && cpComp == 0x07 {
		// Single-bit error in the data: flip bit (cpDiff>>4) of byte lp1Diff.
		chunk[lp1Diff] ^= 1 << (cpDiff >> 4)
		return Corrected
	}

	allZero := cpDiff == 0 && lp0Diff == 0 && lp1Diff == 0
	if allZero || roundbits.PopCount(lpComp)+roundbits.PopCount(cpComp) == 1 {
		// Single-bit error in the ECC itself (or a harmless no-op): adopt the
		// freshly computed ECC.
		*storedECC = computed
		return Corrected
	}

	return Failed
}

// EncodePage returns the concatenated ECC triples for every 128-byte chunk
// of page, in order.
func EncodePage(page []byte) []Triple {
	chunkCount := roundbits.CeilDiv(uint(len(page)), ChunkSize)
	triples := make([]Triple, chunkCount)
	for i := uint(0); i < chunkCount; i++ {
		start := i * ChunkSize
		end := start + ChunkSize
		if end > uint(len(page)) {
			end = uint(len(page))
		}
		chunk := make([]byte, ChunkSize)
		copy(chunk, page[start:end])
		triples[i] = Calc(chunk)
	}
	return triples
}

// CheckPage checks and, where possible, repairs every chunk of page against
// its corresponding entry in triples. It returns the overall result: Failed
// if any chunk failed, else Corrected if any chunk was corrected, else OK.
func CheckPage(page []byte, triples []Triple) Result {
	overall := OK
	chunkCount := roundbits.CeilDiv(uint(len(page)), ChunkSize)

	for i := uint(0); i < chunkCount; i++ {
		start := i * ChunkSize
		end := start + ChunkSize
		if end > uint(len(page)) {
			end = uint(len(page))
		}

		chunk := page[start:end]
		if len(chunk) < ChunkSize {
			padded := make([]byte, ChunkSize)
			copy(padded, chunk)
			result := Check(padded, &triples[i])
			copy(page[start:end], padded[:len(chunk)])
			overall = worseResult(overall, result)
			continue
		}

		result := Check(chunk, &triples[i])
		overall = worseResult(overall, result)
	}

	return overall
}

func worseResult(a, b Result) Result {
	if b > a {
		return b
	}
	return a
}

// Coder is the interface used by the page I/O layer to compute and check ECC
// triples. It exists so an alternate (e.g. SIMD-accelerated) implementation
// could be selected at construction time instead of reaching for global
// state, per the design note about replacing the source's native-DLL
// fallback. Only PureCoder ships in this module.
type Coder interface {
	EncodePage(page []byte) []Triple
	CheckPage(page []byte, triples []Triple) Result
}

// PureCoder is the default, pure-Go Coder implementation.
type PureCoder struct{}

func (PureCoder) EncodePage(page []byte) []Triple               { return EncodePage(page) }
func (PureCoder) CheckPage(page []byte, triples []Triple) Result { return CheckPage(page, triples) }

var _ Coder = PureCoder{}
