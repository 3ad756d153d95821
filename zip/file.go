// Copyright (c) Elliot Nunn. Portions copyright 2010 The Go Authors.
// Licensed under the MIT license

package zip

import (
	"encoding/binary"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/therootcompany/xz"

	"zipkit/checksum"
	"zipkit/flate"
)

// findDataOffset resolves where the entry's data starts, by reading the
// local header: its name and extra lengths are allowed to differ from the
// central directory's.
func (f *File) findDataOffset() (int64, error) {
	if f.dataOff != 0 {
		return f.dataOff, nil
	}
	hdr := make([]byte, localHeaderLen)
	n, err := f.zip.r.ReadAt(hdr, f.zip.baseCorrection+f.headerOffset)
	if n < len(hdr) {
		if err == nil || err == io.EOF {
			err = ErrCorrupt
		}
		return 0, err
	}
	if binary.LittleEndian.Uint32(hdr) != sigLocalHeader {
		return 0, ErrCorrupt
	}
	f.dataOff = f.zip.baseCorrection + f.headerOffset + localHeaderLen +
		int64(binary.LittleEndian.Uint16(hdr[26:])) + // filename field
		int64(binary.LittleEndian.Uint16(hdr[28:])) // extra field
	return f.dataOff, nil
}

// OpenRaw returns the entry's bytes exactly as stored, without
// decompression or checksum verification.
func (f *File) OpenRaw() (io.Reader, error) {
	off, err := f.findDataOffset()
	if err != nil {
		return nil, f.zip.fail(err)
	}
	return io.NewSectionReader(f.zip.r, off, int64(f.CompressedSize)), nil
}

// Open returns a reader for the entry's decompressed bytes. The CRC-32 is
// verified as the final byte is delivered.
func (f *File) Open() (io.ReadCloser, error) {
	if f.IsEncrypted() {
		return nil, f.zip.fail(ErrEncrypted)
	}
	raw, err := f.OpenRaw()
	if err != nil {
		return nil, err
	}
	var r io.Reader
	switch f.Method {
	case MethodStore:
		if f.CompressedSize != f.UncompressedSize {
			return nil, f.zip.fail(ErrWrongSize)
		}
		r = raw
	case MethodDeflate:
		r = flate.NewReader(raw)
	case MethodXZ:
		xzr, err := xz.NewReader(raw, xz.DefaultDictMax)
		if err != nil {
			return nil, f.zip.fail(fmt.Errorf("%w: %v", ErrCorrupt, err))
		}
		r = xzr
	default:
		return nil, f.zip.fail(fmt.Errorf("%w: %d", ErrMethod, f.Method))
	}
	return newChecksumReader(r, int64(f.UncompressedSize), f.CRC32), nil
}

// ExtractToMemory decompresses the whole entry into a fresh buffer.
func (f *File) ExtractToMemory() ([]byte, error) {
	if f.UncompressedSize > uint64(int(^uint(0)>>1)) {
		return nil, f.zip.fail(ErrFileTooLarge)
	}
	r, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	buf := make([]byte, f.UncompressedSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, f.zip.fail(err)
	}
	// a trailing read both catches oversized streams and arms the
	// checksum verification
	if n, err := r.Read(make([]byte, 1)); n != 0 {
		return nil, f.zip.fail(ErrWrongSize)
	} else if err != nil && err != io.EOF {
		return nil, f.zip.fail(err)
	}
	return buf, nil
}

// ExtractToWriter streams the decompressed entry into w.
func (f *File) ExtractToWriter(w io.Writer) error {
	r, err := f.Open()
	if err != nil {
		return err
	}
	defer r.Close()
	n, err := io.Copy(w, r)
	if err != nil {
		return f.zip.fail(err)
	}
	if uint64(n) != f.UncompressedSize {
		return f.zip.fail(ErrWrongSize)
	}
	return nil
}

// ExtractToFile writes the decompressed entry to a file at path.
func (f *File) ExtractToFile(path string) error {
	out, err := os.Create(path)
	if err != nil {
		return f.zip.fail(err)
	}
	if err := f.ExtractToWriter(out); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// checksumReader verifies the CRC-32 as the final expected byte passes by.
type checksumReader struct {
	r      io.Reader
	remain int64
	sum    uint32
	hash   hash.Hash32 // nil means hash check failed
}

func newChecksumReader(r io.Reader, size int64, sum uint32) io.ReadCloser {
	return &checksumReader{r: r, remain: size, sum: sum, hash: checksum.NewCRC32()}
}

func (r *checksumReader) Read(b []byte) (n int, err error) {
	if r.hash == nil {
		return 0, ErrChecksum
	}
	n, err = r.r.Read(b)
	r.hash.Write(b[:n])
	r.remain -= int64(n)
	if r.remain <= 0 && r.sum != 0 && r.hash.Sum32() != r.sum {
		r.hash = nil
		return n, ErrChecksum
	}
	if err == io.EOF && r.remain > 0 {
		err = io.ErrUnexpectedEOF
	}
	return
}

func (r *checksumReader) Close() error {
	if c, ok := r.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ValidateFlags adjust Validate.
type ValidateFlags uint32

const (
	// ValidateHeadersOnly checks the headers and descriptor but skips the
	// full decompress-and-CRC pass.
	ValidateHeadersOnly ValidateFlags = 1 << iota
)

// Validate cross-checks the entry's local header against the central
// directory, checks the data descriptor when one is declared, and (unless
// headers-only) decompresses the whole entry verifying size and CRC-32.
func (f *File) Validate(flags ValidateFlags) error {
	hdr := make([]byte, localHeaderLen)
	n, err := f.zip.r.ReadAt(hdr, f.zip.baseCorrection+f.headerOffset)
	if n < len(hdr) {
		return f.zip.fail(ErrValidation)
	}
	if binary.LittleEndian.Uint32(hdr) != sigLocalHeader {
		return f.zip.fail(ErrValidation)
	}
	namelen := int(binary.LittleEndian.Uint16(hdr[26:]))
	extralen := int(binary.LittleEndian.Uint16(hdr[28:]))
	name := make([]byte, namelen)
	if n, _ := f.zip.r.ReadAt(name, f.zip.baseCorrection+f.headerOffset+localHeaderLen); n < namelen {
		return f.zip.fail(ErrValidation)
	}
	if string(name) != f.Name {
		return f.zip.fail(ErrValidation)
	}

	// Where the local header declares a data descriptor, check it agrees
	// with the central directory. The descriptor's leading signature is
	// optional on the wire.
	if f.Flags&flagDataDescriptor != 0 {
		dataOff := f.zip.baseCorrection + f.headerOffset + localHeaderLen + int64(namelen) + int64(extralen)
		descLen := 4 + 8 // crc + two 32-bit sizes
		if f.zip64 {
			descLen = 4 + 16
		}
		desc := make([]byte, 4+descLen)
		n, _ := f.zip.r.ReadAt(desc, dataOff+int64(f.CompressedSize))
		if binary.LittleEndian.Uint32(desc) == sigDataDesc {
			desc = desc[4:]
			n -= 4
		}
		if n < descLen {
			return f.zip.fail(ErrValidation)
		}
		crc := binary.LittleEndian.Uint32(desc)
		var comp, uncomp uint64
		if f.zip64 {
			comp = binary.LittleEndian.Uint64(desc[4:])
			uncomp = binary.LittleEndian.Uint64(desc[12:])
		} else {
			comp = uint64(binary.LittleEndian.Uint32(desc[4:]))
			uncomp = uint64(binary.LittleEndian.Uint32(desc[8:]))
		}
		wantComp, wantUncomp := f.CompressedSize, f.UncompressedSize
		if !f.zip64 {
			wantComp &= max32
			wantUncomp &= max32
		}
		if crc != f.CRC32 || comp != wantComp || uncomp != wantUncomp {
			return f.zip.fail(ErrValidation)
		}
	}

	if flags&ValidateHeadersOnly != 0 || f.IsDir() {
		return nil
	}
	if !f.IsSupported() {
		return f.zip.fail(ErrMethod)
	}
	r, err := f.Open()
	if err != nil {
		return f.zip.fail(ErrValidation)
	}
	defer r.Close()
	n64, err := io.Copy(io.Discard, r)
	if err != nil || uint64(n64) != f.UncompressedSize {
		return f.zip.fail(ErrValidation)
	}
	return nil
}

// Validate runs File.Validate over every entry.
func (z *Reader) Validate(flags ValidateFlags) error {
	for _, f := range z.File {
		if err := f.Validate(flags); err != nil {
			return err
		}
	}
	return nil
}
