// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package flate

// Length-limited canonical Huffman construction for the encoder: radix
// sort the used symbols by frequency, run the Moffat–Katajainen in-place
// minimum-redundancy algorithm to get code lengths, squeeze any lengths
// over the limit back under it, then hand out codes by ascending length
// and symbol order. Codes are stored bit-reversed so the writer can shift
// them out LSB-first.

type symFreq struct {
	key uint16 // frequency, then reused as code length
	sym uint16
}

func radixSortSyms(syms0, syms1 []symFreq) []symFreq {
	var hist [2][256]int
	for _, s := range syms0 {
		hist[0][s.key&0xff]++
		hist[1][s.key>>8]++
	}
	passes := 2
	if hist[1][0] == len(syms0) {
		passes = 1 // all frequencies fit in a byte
	}
	cur, next := syms0, syms1
	for pass := 0; pass < passes; pass++ {
		shift := pass * 8
		var offsets [256]int
		ofs := 0
		for i, n := range hist[pass] {
			offsets[i] = ofs
			ofs += n
		}
		for _, s := range cur {
			b := (s.key >> shift) & 0xff
			next[offsets[b]] = s
			offsets[b]++
		}
		cur, next = next, cur
	}
	return cur
}

// calculateMinimumRedundancy computes optimal code lengths in place over a
// frequency-sorted array, after Moffat and Katajainen, "In-Place
// Calculation of Minimum-Redundancy Codes".
func calculateMinimumRedundancy(a []symFreq) {
	n := len(a)
	switch n {
	case 0:
		return
	case 1:
		a[0].key = 1
		return
	}
	a[0].key += a[1].key
	root, leaf := 0, 2
	for next := 1; next < n-1; next++ {
		if leaf >= n || a[root].key < a[leaf].key {
			a[next].key = a[root].key
			a[root].key = uint16(next)
			root++
		} else {
			a[next].key = a[leaf].key
			leaf++
		}
		if leaf >= n || (root < next && a[root].key < a[leaf].key) {
			a[next].key += a[root].key
			a[root].key = uint16(next)
			root++
		} else {
			a[next].key += a[leaf].key
			leaf++
		}
	}
	a[n-2].key = 0
	for next := n - 3; next >= 0; next-- {
		a[next].key = a[a[next].key].key + 1
	}
	avbl, used, dpth := 1, 0, 0
	root, next := n-2, n-1
	for avbl > 0 {
		for root >= 0 && int(a[root].key) == dpth {
			used++
			root--
		}
		for avbl > used {
			a[next].key = uint16(dpth)
			next--
			avbl--
		}
		avbl = 2 * used
		dpth++
		used = 0
	}
}

const maxSupportedHuffCodeSize = 32

// enforceMaxCodeSize moves population between length buckets until no code
// is longer than maxCodeSize, preserving the Kraft sum.
func enforceMaxCodeSize(numCodes []int, codeListLen, maxCodeSize int) {
	if codeListLen <= 1 {
		return
	}
	for i := maxCodeSize + 1; i <= maxSupportedHuffCodeSize; i++ {
		numCodes[maxCodeSize] += numCodes[i]
	}
	total := uint32(0)
	for i := maxCodeSize; i > 0; i-- {
		total += uint32(numCodes[i]) << (maxCodeSize - i)
	}
	for total != 1<<maxCodeSize {
		numCodes[maxCodeSize]--
		for i := maxCodeSize - 1; i > 0; i-- {
			if numCodes[i] != 0 {
				numCodes[i]--
				numCodes[i+1] += 2
				break
			}
		}
		total--
	}
}

// optimizeTable derives code sizes (unless the caller preloaded static
// ones) and canonical bit-reversed codes for one Huffman table.
func optimizeTable(count []uint16, codeSizes []uint8, codes []uint16, tableLen, sizeLimit int, static bool) {
	var numCodes [maxSupportedHuffCodeSize + 1]int
	if static {
		for i := 0; i < tableLen; i++ {
			numCodes[codeSizes[i]]++
		}
	} else {
		var syms0, syms1 [maxHuffSymbols0]symFreq
		used := 0
		for i := 0; i < tableLen; i++ {
			if count[i] != 0 {
				syms0[used] = symFreq{key: count[i], sym: uint16(i)}
				used++
			}
		}
		syms := radixSortSyms(syms0[:used], syms1[:used])
		calculateMinimumRedundancy(syms)
		for i := range syms {
			numCodes[syms[i].key]++
		}
		enforceMaxCodeSize(numCodes[:], used, sizeLimit)
		for i := 0; i < tableLen; i++ {
			codeSizes[i] = 0
			codes[i] = 0
		}
		j := used
		for i := 1; i <= sizeLimit; i++ {
			for l := numCodes[i]; l > 0; l-- {
				j--
				codeSizes[syms[j].sym] = uint8(i)
			}
		}
	}

	var nextCode [maxSupportedHuffCodeSize + 1]uint32
	j := uint32(0)
	for i := 2; i <= sizeLimit; i++ {
		j = (j + uint32(numCodes[i-1])) << 1
		nextCode[i] = j
	}
	for i := 0; i < tableLen; i++ {
		size := int(codeSizes[i])
		if size == 0 {
			continue
		}
		code := nextCode[size]
		nextCode[size]++
		rev := uint16(0)
		for l := size; l > 0; l-- {
			rev = rev<<1 | uint16(code&1)
			code >>= 1
		}
		codes[i] = rev
	}
}
