// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package png writes PNG images the minimal spec-compliant way: one IHDR,
// one zlib-deflated IDAT over filter-0 scanlines, one IEND, each chunk
// CRC-32'd over its type and data.
package png

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"zipkit/checksum"
	"zipkit/zlib"
)

var ErrBounds = errors.New("png: bad image dimensions")

// colorTypes maps channel count (1=gray, 2=gray+alpha, 3=RGB, 4=RGBA) to
// the PNG color type byte.
var colorTypes = [5]byte{0xff, 0, 4, 2, 6}

// Encode writes pix (tightly packed rows, 8 bits per channel) as a PNG.
func Encode(w io.Writer, pix []byte, width, height, channels int) error {
	if width <= 0 || height <= 0 || channels < 1 || channels > 4 ||
		len(pix) != width*height*channels {
		return ErrBounds
	}

	if _, err := w.Write([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}); err != nil {
		return err
	}

	var ihdr [13]byte
	binary.BigEndian.PutUint32(ihdr[0:], uint32(width))
	binary.BigEndian.PutUint32(ihdr[4:], uint32(height))
	ihdr[8] = 8 // bit depth
	ihdr[9] = colorTypes[channels]
	if err := writeChunk(w, "IHDR", ihdr[:]); err != nil {
		return err
	}

	var idat bytes.Buffer
	zw := zlib.NewWriter(&idat)
	stride := width * channels
	for y := 0; y < height; y++ {
		if _, err := zw.Write([]byte{0}); err != nil { // filter: none
			return err
		}
		if _, err := zw.Write(pix[y*stride : (y+1)*stride]); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return err
	}
	if err := writeChunk(w, "IDAT", idat.Bytes()); err != nil {
		return err
	}

	return writeChunk(w, "IEND", nil)
}

func writeChunk(w io.Writer, kind string, data []byte) error {
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[0:], uint32(len(data)))
	copy(hdr[4:], kind)
	crc := checksum.CRC32(0, hdr[4:])
	crc = checksum.CRC32(crc, data)
	var tail [4]byte
	binary.BigEndian.PutUint32(tail[:], crc)
	for _, b := range [][]byte{hdr[:], data, tail[:]} {
		if _, err := w.Write(b); err != nil {
			return err
		}
	}
	return nil
}
