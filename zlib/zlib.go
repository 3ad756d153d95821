// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package zlib reads and writes RFC 1950 streams: a two-byte header, a
// raw DEFLATE payload, and a big-endian Adler-32 trailer.
package zlib

import (
	"errors"
	"io"

	"zipkit/flate"
)

var (
	ErrCorrupt  = errors.New("zlib: corrupt input")
	ErrChecksum = errors.New("zlib: checksum mismatch")
)

// NewWriter returns a zlib-framed compressor in front of w at
// [flate.DefaultCompression].
func NewWriter(w io.Writer) *flate.Writer {
	return NewWriterLevel(w, flate.DefaultCompression)
}

func NewWriterLevel(w io.Writer, level int) *flate.Writer {
	return flate.NewWriterFlags(w, flate.CompressorFlags(level, 15, flate.DefaultStrategy))
}

// NewReader returns a reader that decompresses a zlib stream from r and
// verifies the trailing checksum.
func NewReader(r io.Reader) io.ReadCloser {
	return &errmap{flate.NewReaderFlags(r, flate.ParseZlibHeader)}
}

type errmap struct{ *flate.Reader }

func (e *errmap) Read(p []byte) (int, error) {
	n, err := e.Reader.Read(p)
	switch err {
	case flate.ErrCorrupt:
		err = ErrCorrupt
	case flate.ErrChecksum:
		err = ErrChecksum
	}
	return n, err
}

// Compress is the one-shot buffer-to-buffer helper, at the default level.
func Compress(data []byte) []byte {
	out, _ := CompressLevel(data, flate.DefaultCompression)
	return out
}

// CompressLevel compresses data into a fresh buffer with zlib framing.
func CompressLevel(data []byte, level int) ([]byte, error) {
	c := flate.NewCompressor(flate.CompressorFlags(level, 15, flate.DefaultStrategy))
	// first guess: the data, 5 bytes per 64 KiB and some framing; the loop
	// below grows the buffer whenever the encoder runs out of room
	out := make([]byte, 0, len(data)+len(data)/65535*5+64)
	in := data
	for {
		spare := out[len(out):cap(out)]
		st, consumed, produced := c.Compress(in, spare, flate.Finish)
		in = in[consumed:]
		out = out[:len(out)+produced]
		switch st {
		case flate.StatusDone:
			return out, nil
		case flate.StatusOkay:
			if produced == 0 && consumed == 0 {
				grown := make([]byte, len(out), cap(out)*2+64)
				copy(grown, out)
				out = grown
			}
		default:
			return nil, errors.New("zlib: " + st.String())
		}
	}
}

// Uncompress is the one-shot inverse of Compress. sizeHint, if positive,
// pre-sizes the output buffer.
func Uncompress(data []byte, sizeHint int) ([]byte, error) {
	if sizeHint <= 0 {
		sizeHint = len(data) * 3
	}
	d := flate.NewDecompressor()
	out := make([]byte, sizeHint)
	op := 0
	in := data
	for {
		st, consumed, produced := d.Decompress(in, out, op, flate.ParseZlibHeader|flate.NonWrappingOutput)
		in = in[consumed:]
		op += produced
		switch st {
		case flate.StatusDone:
			return out[:op], nil
		case flate.StatusHasMoreOutput:
			grown := make([]byte, max(len(out)*2, 64))
			copy(grown, out)
			out = grown
		case flate.StatusAdler32Mismatch:
			return nil, ErrChecksum
		default:
			return nil, ErrCorrupt
		}
	}
}
