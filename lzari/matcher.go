package lzari

// matcher finds the longest backward match within the histLen window using
// a 3-byte-prefix hash chain, a single-level simplification of lzari.py's
// two-level suffix dictionary (see the package doc comment).
type matcher struct {
	src   []byte
	table map[[minMatchLen]byte][]int
}

func newMatcher(src []byte) *matcher {
	return &matcher{src: src, table: make(map[[minMatchLen]byte][]int)}
}

func (m *matcher) key(pos int) ([minMatchLen]byte, bool) {
	var k [minMatchLen]byte
	if pos+minMatchLen > len(m.src) {
		return k, false
	}
	copy(k[:], m.src[pos:pos+minMatchLen])
	return k, true
}

// insert records pos as a candidate match source, trimming entries that have
// fallen out of the history window and capping the chain length.
func (m *matcher) insert(pos int) {
	k, ok := m.key(pos)
	if !ok {
		return
	}
	list := append(m.table[k], pos)

	lowBound := pos - histLen
	start := 0
	for start < len(list) && list[start] < lowBound {
		start++
	}
	if len(list)-start > maxSuffixChain {
		start = len(list) - maxSuffixChain
	}
	m.table[k] = list[start:]
}

// find returns the position and length of the longest match for the bytes
// starting at pos, bounded by maxLen. It reports (-1, 0) when no candidate
// reaches minMatchLen.
func (m *matcher) find(pos int, maxLen int) (int, int) {
	if maxLen < minMatchLen {
		return -1, 0
	}
	k, ok := m.key(pos)
	if !ok {
		return -1, 0
	}

	lowBound := pos - histLen
	bestPos, bestLen := -1, 0
	candidates := m.table[k]
	for i := len(candidates) - 1; i >= 0; i-- {
		cpos := candidates[i]
		if cpos < lowBound || cpos >= pos {
			continue
		}
		l := commonPrefixLen(m.src, cpos, pos, maxLen)
		if l > bestLen {
			bestLen = l
			bestPos = cpos
			if l >= maxLen {
				break
			}
		}
	}
	return bestPos, bestLen
}

func commonPrefixLen(src []byte, a, b, maxLen int) int {
	n := 0
	for n < maxLen && src[a+n] == src[b+n] {
		n++
	}
	return n
}
