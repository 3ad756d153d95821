// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package flate

// Length and distance coding tables from RFC 1951 section 3.2.5. The
// encoder-side lookups are keyed the way the LZ code buffer stores values:
// lengths as len-3, distances as dist-1. The zero-based bases have their
// low extra bits clear, so the extra-bits value is just the stored value
// masked.
var (
	lengthBase  = [...]int{3, 4, 5, 6, 7, 8, 9, 10, 11, 13, 15, 17, 19, 23, 27, 31, 35, 43, 51, 59, 67, 83, 99, 115, 131, 163, 195, 227, 258}
	lengthExtra = [...]int{0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2, 3, 3, 3, 3, 4, 4, 4, 4, 5, 5, 5, 5, 0}
	distBase    = [...]int{1, 2, 3, 4, 5, 7, 9, 13, 17, 25, 33, 49, 65, 97, 129, 193, 257, 385, 513, 769, 1025, 1537, 2049, 3073, 4097, 6145, 8193, 12289, 16385, 24577}
	distExtra   = [...]int{0, 0, 0, 0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5, 6, 6, 7, 7, 8, 8, 9, 9, 10, 10, 11, 11, 12, 12, 13, 13}
)

var (
	lenSym   [256]uint16 // match length - 3 → symbol 257..285
	lenExtra [256]uint8

	smallDistSym   [512]uint8 // dist - 1 → symbol, for dist ≤ 512
	smallDistExtra [512]uint8
	largeDistSym   [128]uint8 // (dist - 1) >> 8 → symbol, for dist > 512
	largeDistExtra [128]uint8
)

func init() {
	for s := 0; s < 28; s++ {
		for l := lengthBase[s]; l < lengthBase[s+1]; l++ {
			lenSym[l-3] = uint16(257 + s)
			lenExtra[l-3] = uint8(lengthExtra[s])
		}
	}
	lenSym[258-3] = 285
	lenExtra[258-3] = 0

	distSymOf := func(dist int) int {
		s := len(distBase) - 1
		for distBase[s] > dist {
			s--
		}
		return s
	}
	for d := 1; d <= 512; d++ {
		s := distSymOf(d)
		smallDistSym[d-1] = uint8(s)
		smallDistExtra[d-1] = uint8(distExtra[s])
	}
	for i := range largeDistSym {
		s := distSymOf(i<<8 | 1)
		largeDistSym[i] = uint8(s)
		largeDistExtra[i] = uint8(distExtra[s])
	}
}
