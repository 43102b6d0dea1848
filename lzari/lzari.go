// Package lzari implements the LZSS-plus-adaptive-arithmetic-coding scheme
// used by MAX Drive save archives, grounded on original_source/lzari.py
// (Haruhiko Okumura's LZARI algorithm as ported by Ross Ridge for mymc).
//
// The match finder below is a simplified single-level hash chain rather than
// lzari.py's two-level dictionary: the compressed bitstream's decodability
// never depends on which matches the encoder chose to emit, only on the
// adaptive model staying in lockstep between Encode and Decode, so the
// simplification costs compression ratio, not correctness or compatibility.
package lzari

import (
	"errors"
)

const (
	histLen     = 4096
	minMatchLen = 3
	maxMatchLen = 60

	arithBits  = 15
	quadrant1  = 1 << arithBits
	quadrant2  = quadrant1 * 2
	quadrant3  = quadrant1 * 3
	quadrant4  = quadrant1 * 4
	maxCumFreq = quadrant1 - 1

	// maxChar covers the 256 possible literal byte values plus one symbol
	// per possible match length (minMatchLen..maxMatchLen).
	maxChar = 256 + maxMatchLen - minMatchLen + 1

	// maxSuffixChain bounds how many candidate positions the match finder
	// walks per lookup, trading compression ratio for a predictable cost.
	maxSuffixChain = 64
)

// ErrCorruptStream is returned by Decode when the compressed input decodes
// to more bytes than the caller-supplied output length allows for, which
// can only happen if src is truncated or was never produced by Encode.
var ErrCorruptStream = errors.New("lzari: compressed stream is corrupt")

// codec holds the arithmetic coder's adaptive model. The same state machine
// drives both directions: the decoder must reproduce exactly the symbol
// statistics the encoder had at the same point in the stream, so Encode and
// Decode share updateModel, encodeChar/decodeChar, and encodePosition/
// decodePosition are mirror images of the same interval arithmetic.
type codec struct {
	low, high, code int

	symFreq      []int // symFreq[1..maxChar]
	symCum       []int // symCum[i] = sum(symFreq[i+1:]), descending, symCum[0] is the total
	symbolToChar []int // symbolToChar[1..maxChar]
	charToSymbol []int // charToSymbol[0..maxChar-1]

	positionCum []int // positionCum[i] = static, decreasing weight favoring nearby matches

	shifts int
}

func newCodec() *codec {
	c := &codec{
		low:          0,
		high:         quadrant4,
		symFreq:      make([]int, maxChar+1),
		symCum:       make([]int, maxChar+1),
		symbolToChar: make([]int, maxChar+1),
		charToSymbol: make([]int, maxChar),
		positionCum:  make([]int, histLen+1),
	}
	for i := 1; i <= maxChar; i++ {
		c.symFreq[i] = 1
		c.symbolToChar[i] = i - 1
		c.charToSymbol[i-1] = i
	}
	for i := 0; i <= maxChar; i++ {
		c.symCum[i] = maxChar - i
	}

	a := 0
	for i := histLen; i >= 1; i-- {
		a += 10000 / (200 + i)
		c.positionCum[i-1] = a
	}
	return c
}

// updateModel folds symbol's latest occurrence into the frequency table,
// rescaling when the total would overflow the arithmetic coder's precision.
// Ported from lzari.py's update_model_encode/update_model_decode, which are
// the same update expressed over differently laid-out cumulative arrays;
// this keeps one canonical descending layout for both directions.
func (c *codec) updateModel(symbol int) {
	if c.symCum[0] >= maxCumFreq {
		cum := 0
		for i := maxChar; i >= 1; i-- {
			c.symCum[i] = cum
			c.symFreq[i] = (c.symFreq[i] + 1) / 2
			cum += c.symFreq[i]
		}
		c.symCum[0] = cum
	}

	freq := c.symFreq[symbol]
	newSymbol := symbol
	for c.symFreq[newSymbol-1] == freq {
		newSymbol--
	}
	if newSymbol != symbol {
		swapChar := c.symbolToChar[newSymbol]
		ch := c.symbolToChar[symbol]
		c.symbolToChar[newSymbol] = ch
		c.symbolToChar[symbol] = swapChar
		c.charToSymbol[ch] = newSymbol
		c.charToSymbol[swapChar] = symbol
	}
	c.symFreq[newSymbol] = freq + 1
	for i := 0; i < newSymbol; i++ {
		c.symCum[i]++
	}
}

// findSymbolForCum returns the smallest symbol whose cumulative interval
// contains n, i.e. the unique symbol with symCum[symbol] <= n < symCum[symbol-1].
func (c *codec) findSymbolForCum(n int) int {
	lo, hi := 1, maxChar
	for lo < hi {
		mid := (lo + hi) / 2
		if c.symCum[mid] <= n {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

func (c *codec) findPositionForCum(n int) int {
	lo, hi := 0, histLen-1
	for lo < hi {
		mid := (lo + hi) / 2
		if c.positionCum[mid+1] <= n {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

func (c *codec) outputBit(bit int, out *bitWriter) {
	out.writeBit(bit)
	bit ^= 1
	for i := 0; i < c.shifts; i++ {
		out.writeBit(bit)
	}
	c.shifts = 0
}

func (c *codec) normalizeEncode(out *bitWriter) {
	for {
		switch {
		case c.high <= quadrant2:
			c.outputBit(0, out)
		case c.low >= quadrant2:
			c.outputBit(1, out)
			c.low -= quadrant2
			c.high -= quadrant2
		case c.low >= quadrant1 && c.high <= quadrant3:
			c.shifts++
			c.low -= quadrant1
			c.high -= quadrant1
		default:
			return
		}
		c.low *= 2
		c.high *= 2
	}
}

func (c *codec) normalizeDecode(in *bitReader) {
	for {
		if c.low < quadrant2 {
			if c.low < quadrant1 || c.high > quadrant3 {
				if c.high > quadrant2 {
					return
				}
			} else {
				c.low -= quadrant1
				c.code -= quadrant1
				c.high -= quadrant1
			}
		} else {
			c.low -= quadrant2
			c.code -= quadrant2
			c.high -= quadrant2
		}
		c.low *= 2
		c.high *= 2
		c.code = c.code*2 + in.readBit()
	}
}

func (c *codec) encodeChar(char int, out *bitWriter) {
	symbol := c.charToSymbol[char]
	rng := c.high - c.low
	total := c.symCum[0]
	c.high = c.low + rng*c.symCum[symbol-1]/total
	c.low = c.low + rng*c.symCum[symbol]/total
	c.normalizeEncode(out)
	c.updateModel(symbol)
}

func (c *codec) decodeChar(in *bitReader) int {
	rng := c.high - c.low
	total := c.symCum[0]
	n := ((c.code-c.low+1)*total - 1) / rng
	symbol := c.findSymbolForCum(n)
	c.high = c.low + rng*c.symCum[symbol-1]/total
	c.low = c.low + rng*c.symCum[symbol]/total
	c.normalizeDecode(in)
	char := c.symbolToChar[symbol]
	c.updateModel(symbol)
	return char
}

func (c *codec) encodePosition(position int, out *bitWriter) {
	rng := c.high - c.low
	total := c.positionCum[0]
	c.high = c.low + rng*c.positionCum[position]/total
	c.low = c.low + rng*c.positionCum[position+1]/total
	c.normalizeEncode(out)
}

func (c *codec) decodePosition(in *bitReader) int {
	rng := c.high - c.low
	total := c.positionCum[0]
	n := ((c.code-c.low+1)*total - 1) / rng
	pos := c.findPositionForCum(n)
	c.high = c.low + rng*c.positionCum[pos]/total
	c.low = c.low + rng*c.positionCum[pos+1]/total
	c.normalizeDecode(in)
	return pos
}

// Encode compresses src, returning nil for an empty input.
func Encode(src []byte) []byte {
	length := len(src)
	if length == 0 {
		return nil
	}

	maxMatch := maxMatchLen
	if length < maxMatch {
		maxMatch = length
	}

	buf := make([]byte, maxMatch, maxMatch+length)
	for i := range buf {
		buf[i] = 0x20
	}
	buf = append(buf, src...)
	startPos := maxMatch
	total := len(buf)

	c := newCodec()
	out := &bitWriter{}
	m := newMatcher(buf)

	for i := 0; i < startPos; i++ {
		m.insert(i)
	}

	inPos := startPos
	for inPos < total {
		maxLen := maxMatchLen
		if total-inPos < maxLen {
			maxLen = total - inPos
		}

		matchPos, matchLen := m.find(inPos, maxLen)
		m.insert(inPos)

		if matchLen < minMatchLen {
			c.encodeChar(int(buf[inPos]), out)
			inPos++
			continue
		}

		c.encodeChar(256-minMatchLen+matchLen, out)
		c.encodePosition(inPos-matchPos-1, out)
		for j := 1; j < matchLen; j++ {
			inPos++
			m.insert(inPos)
		}
		inPos++
	}

	c.shifts++
	if c.low < quadrant1 {
		c.outputBit(0, out)
	} else {
		c.outputBit(1, out)
	}
	return out.bytes()
}

// Decode decompresses src, which must expand to exactly outLength bytes.
func Decode(src []byte, outLength int) ([]byte, error) {
	if outLength == 0 {
		return nil, nil
	}

	c := newCodec()
	in := &bitReader{data: src}

	for i := 0; i < arithBits+2; i++ {
		c.code = c.code*2 + in.readBit()
	}

	out := make([]byte, outLength)
	outPos := 0

	history := make([]byte, histLen)
	histPos := histLen - maxMatchLen
	for i := 0; i < histPos; i++ {
		history[i] = 0x20
	}

	for outPos < outLength {
		char := c.decodeChar(in)
		if char < 0x100 {
			out[outPos] = byte(char)
			outPos++
			history[histPos] = byte(char)
			histPos = (histPos + 1) % histLen
			continue
		}

		pos := c.decodePosition(in)
		matchLen := char - 0x100 + minMatchLen
		base := ((histPos-pos-1)%histLen + histLen) % histLen
		for off := 0; off < matchLen; off++ {
			if outPos >= outLength {
				return nil, ErrCorruptStream
			}
			b := history[(base+off)%histLen]
			out[outPos] = b
			outPos++
			history[histPos] = b
			histPos = (histPos + 1) % histLen
		}
	}

	return out, nil
}
