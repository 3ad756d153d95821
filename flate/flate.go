// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package flate implements the DEFLATE compressed data format of RFC 1951,
// both directions, with no dependency on an external compression library.
//
// The low-level surface is a pair of resumable state machines, [Compressor]
// and [Decompressor], that work buffer-to-buffer: the caller owns the input
// and output slices, each call reports how many bytes were consumed and
// produced, and a [Status] says why the machine stopped. Nothing is
// allocated after construction, so a suspended stream costs only its state
// block.
//
// [Writer] and [Reader] wrap the state machines in the usual io interfaces.
package flate

const (
	maxCodeLen = 16 // max length of Huffman code
	// The next three numbers come from the RFC section 3.2.7, with the
	// additional proviso in section 3.2.5 which implies that distance codes
	// 30 and 31 should never occur in compressed data.
	maxNumLit      = 286
	maxNumDist     = 30
	numCodes       = 19      // number of codes in Huffman meta-code
	maxMatchOffset = 1 << 15 // the largest match offset
	minMatchLen    = 3
	maxMatchLen    = 258
	endBlockMarker = 256
)

// Status reports why a Compress or Decompress call returned.
type Status int8

const (
	// StatusFailedCannotMakeProgress means the caller promised no further
	// input but the stream is incomplete.
	StatusFailedCannotMakeProgress Status = -5
	// StatusPutBufFailed means the compressor's output sink rejected a write.
	StatusPutBufFailed Status = -4
	StatusBadParam     Status = -3
	// StatusAdler32Mismatch means the zlib trailer disagrees with the
	// decoded bytes. Terminal.
	StatusAdler32Mismatch Status = -2
	// StatusFailed means the stream is structurally invalid. Terminal: the
	// state sticks here until Reset.
	StatusFailed Status = -1
	// StatusOkay means progress was made and the machine wants to be called
	// again.
	StatusOkay Status = 0
	StatusDone Status = 1
	// StatusNeedsMoreInput means the input buffer ran dry mid-stream.
	StatusNeedsMoreInput Status = 2
	// StatusHasMoreOutput means the output buffer filled up.
	StatusHasMoreOutput Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusFailedCannotMakeProgress:
		return "cannot make progress"
	case StatusPutBufFailed:
		return "output sink failed"
	case StatusBadParam:
		return "bad parameter"
	case StatusAdler32Mismatch:
		return "adler32 mismatch"
	case StatusFailed:
		return "corrupt stream"
	case StatusOkay:
		return "okay"
	case StatusDone:
		return "done"
	case StatusNeedsMoreInput:
		return "needs more input"
	case StatusHasMoreOutput:
		return "has more output"
	}
	return "unknown status"
}

// Flush modes for [Compressor.Compress].
type Flush int

const (
	NoFlush Flush = iota
	// SyncFlush emits an empty stored block and byte-aligns the output so
	// everything compressed so far can be decoded.
	SyncFlush
	// FullFlush is SyncFlush plus a dictionary reset, so decoding can
	// restart from this point.
	FullFlush
	Finish
)

// DecompressFlags control a [Decompressor].
type DecompressFlags uint32

const (
	// ParseZlibHeader consumes an RFC 1950 header and verifies the trailing
	// Adler-32.
	ParseZlibHeader DecompressFlags = 1 << iota
	// HasMoreInput promises that more input follows the current buffer, so
	// running dry is a suspension rather than a failure.
	HasMoreInput
	// NonWrappingOutput declares that the output buffer holds the entire
	// decoded stream, rather than being a power-of-two sliding window.
	NonWrappingOutput
	// ComputeChecksum keeps the running Adler-32 up to date even without
	// zlib framing.
	ComputeChecksum
)

// CompressFlags control a [Compressor]. The low 12 bits are the maximum
// number of hash-chain probes per position.
type CompressFlags uint32

const (
	MaxProbesMask CompressFlags = 0xfff

	// WriteZlibHeader wraps the output in RFC 1950 framing.
	WriteZlibHeader CompressFlags = 1 << (iota + 11)
	// ComputeAdler32 maintains the checksum even without zlib framing.
	ComputeAdler32
	// GreedyParsing disables lazy matching.
	GreedyParsing
	// NondeterministicParsing permits skipping hash-table zeroing. Accepted
	// for compatibility; Go zeroes allocations anyway, so output is always
	// deterministic.
	NondeterministicParsing
	// RLEMatches only looks for distance-1 matches.
	RLEMatches
	// FilterMatches rejects matches of length 5 or less.
	FilterMatches
	ForceAllStaticBlocks
	ForceAllRawBlocks
)

// Compression strategies, mirroring the zlib parameter of the same name.
const (
	DefaultStrategy = iota
	Filtered
	HuffmanOnly
	RLE
	Fixed
)

const DefaultCompression = 6

// CompressorFlags maps zlib-style (level, windowBits, strategy) parameters
// onto [CompressFlags]. Positive windowBits selects zlib framing, negative
// raw DEFLATE. Level 0 forces stored blocks.
func CompressorFlags(level, windowBits, strategy int) CompressFlags {
	numProbes := [11]CompressFlags{0, 1, 6, 32, 16, 32, 128, 256, 512, 768, 1500}
	if level < 0 {
		level = DefaultCompression
	} else if level > 10 {
		level = 10
	}
	flags := numProbes[level]
	if level <= 3 {
		flags |= GreedyParsing
	}
	if windowBits > 0 {
		flags |= WriteZlibHeader
	}
	switch {
	case level == 0:
		flags |= ForceAllRawBlocks
	case strategy == Filtered:
		flags |= FilterMatches
	case strategy == HuffmanOnly:
		flags &^= MaxProbesMask
	case strategy == Fixed:
		flags |= ForceAllStaticBlocks
	case strategy == RLE:
		flags |= RLEMatches
	}
	return flags
}
