// Copyright (c) Elliot Nunn. Portions copyright 2010 The Go Authors.
// Licensed under the MIT license

package zip

import (
	"encoding/binary"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ReaderFlags adjust archive opening.
type ReaderFlags uint32

const (
	// DoNotSortCentralDirectory skips building the sorted name index, so
	// lookups fall back to a linear scan.
	DoNotSortCentralDirectory ReaderFlags = 1 << iota
)

// Reader is an open archive. The central directory is held in memory both
// parsed (File) and raw (for cloning into a Writer).
type Reader struct {
	r    io.ReaderAt
	size int64

	File    []*File
	Comment string

	// baseCorrection shifts all stored offsets when the zip was appended
	// to leading junk by a tool unaware of it.
	baseCorrection int64
	cdOffset       int64 // of the central directory, uncorrected
	cdImage        []byte
	zip64          bool
	// sortedIdx permutes File by lowercase name for binary search; nil
	// under DoNotSortCentralDirectory.
	sortedIdx []int

	lastErr error
}

// File is one central directory entry plus enough location data to read,
// validate or clone it.
type File struct {
	FileHeader
	zip          *Reader
	index        int
	headerOffset int64 // of the local header, uncorrected
	cdRecOffset  int   // of this record within cdImage
	cdRecLen     int
	zip64        bool  // entry carries zip64 extended information
	dataOff      int64 // lazily resolved; 0 means not yet known
}

// LastError returns the most recent archive-level error, kept latched on
// the struct like the codec statuses are.
func (z *Reader) LastError() error { return z.lastErr }

// ClearLastError resets the latch.
func (z *Reader) ClearLastError() { z.lastErr = nil }

func (z *Reader) fail(err error) error {
	if err != nil {
		z.lastErr = err
	}
	return err
}

// NewReader opens an archive from any random-access byte source of known
// size.
func NewReader(r io.ReaderAt, size int64) (*Reader, error) {
	return NewReaderFlags(r, size, 0)
}

func NewReaderFlags(r io.ReaderAt, size int64, flags ReaderFlags) (*Reader, error) {
	z := &Reader{r: r, size: size}
	if err := z.open(flags); err != nil {
		return nil, err
	}
	return z, nil
}

// ReadCloser is a Reader over an open file.
type ReadCloser struct {
	Reader
	f *os.File
}

func (rc *ReadCloser) Close() error { return rc.f.Close() }

// OpenReader opens the archive file at path.
func OpenReader(path string) (*ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	inf, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	rc := &ReadCloser{f: f}
	rc.Reader.r = f
	rc.Reader.size = inf.Size()
	if err := rc.Reader.open(0); err != nil {
		f.Close()
		return nil, err
	}
	return rc, nil
}

func (z *Reader) open(flags ReaderFlags) error {
	eocd, err := getEOCD(z.r, z.size)
	if err != nil {
		return err
	}
	z.Comment = string(eocd[eocdLen:])

	eocdOffset := z.size - int64(len(eocd))
	thisDisk := uint32(binary.LittleEndian.Uint16(eocd[4:]))
	centralDisk := uint32(binary.LittleEndian.Uint16(eocd[6:]))
	recordsTotal := uint64(binary.LittleEndian.Uint16(eocd[10:]))
	centralSize := int64(binary.LittleEndian.Uint32(eocd[12:]))
	centralOffset := int64(binary.LittleEndian.Uint32(eocd[16:]))

	z.zip64 = recordsTotal == max16 || centralSize == max32 || centralOffset == max32
	// A writer may emit the ZIP64 records without pegging any EOCD field,
	// so look for the locator whenever there is room for it.
	if !z.zip64 && eocdOffset >= int64(eocd64Len+eocd64LocatorLen) {
		var sig [4]byte
		if n, _ := z.r.ReadAt(sig[:], eocdOffset-int64(eocd64LocatorLen)); n == len(sig) &&
			binary.LittleEndian.Uint32(sig[:]) == sigEOCD64Locator {
			z.zip64 = true
		}
	}
	if z.zip64 {
		locator := make([]byte, eocd64LocatorLen)
		if int64(len(locator)+len(eocd)) > z.size {
			return ErrFormat
		}
		n, err := z.r.ReadAt(locator, eocdOffset-int64(len(locator)))
		if n < len(locator) {
			return err
		}
		if binary.LittleEndian.Uint32(locator) != sigEOCD64Locator {
			return ErrCentralDir
		}
		eocd64Disk := binary.LittleEndian.Uint32(locator[4:])
		eocd64Offset := int64(binary.LittleEndian.Uint64(locator[8:]))
		totalDisks := binary.LittleEndian.Uint32(locator[16:])
		if eocd64Disk != 0 || totalDisks > 1 {
			return ErrMultidisk
		}
		eocd64 := make([]byte, eocd64Len)
		n, err = z.r.ReadAt(eocd64, eocd64Offset)
		if n < len(eocd64) {
			return err
		}
		if binary.LittleEndian.Uint32(eocd64) != sigEOCD64 {
			return ErrCentralDir
		}
		thisDisk = binary.LittleEndian.Uint32(eocd64[16:])
		centralDisk = binary.LittleEndian.Uint32(eocd64[20:])
		recordsTotal = binary.LittleEndian.Uint64(eocd64[32:])
		centralSize = int64(binary.LittleEndian.Uint64(eocd64[40:]))
		centralOffset = int64(binary.LittleEndian.Uint64(eocd64[48:]))
		eocdOffset = eocd64Offset
	}
	if thisDisk != centralDisk || (thisDisk != 0 && thisDisk != 1) {
		return ErrMultidisk
	}
	if centralOffset > eocdOffset || centralSize < 0 {
		return ErrFormat
	}

	// Tolerate a zip appended to non-zip data by a tool unaware of the
	// leading bytes. Not possible for ZIP64: the locator must be trusted.
	if !z.zip64 {
		z.baseCorrection = eocdOffset - centralSize - centralOffset
	}
	z.cdOffset = centralOffset

	// The stated size of individual records is not trusted; the stated
	// extent of the whole directory is checked against the file instead.
	dir := make([]byte, eocdOffset-z.baseCorrection-centralOffset)
	if n, err := z.r.ReadAt(dir, z.baseCorrection+centralOffset); n != len(dir) {
		return err
	}
	z.cdImage = dir

	for len(dir) >= centralHeaderLen && binary.LittleEndian.Uint32(dir) == sigCentralHeader {
		f := &File{zip: z, index: len(z.File), cdRecOffset: len(z.cdImage) - len(dir)}
		namelen := int(binary.LittleEndian.Uint16(dir[28:]))
		extralen := int(binary.LittleEndian.Uint16(dir[30:]))
		commentlen := int(binary.LittleEndian.Uint16(dir[32:]))
		f.cdRecLen = centralHeaderLen + namelen + extralen + commentlen
		if len(dir) < f.cdRecLen {
			return ErrCorrupt
		}
		f.decode(dir)
		dir = dir[f.cdRecLen:]
		z.File = append(z.File, f)
		if len(z.File) > max32 {
			return ErrTooManyFiles
		}
	}
	// Some writers fib about the count; only reject when the directory is
	// visibly truncated.
	if uint64(len(z.File)) < recordsTotal {
		return ErrCorrupt
	}

	if flags&DoNotSortCentralDirectory == 0 {
		z.sortedIdx = make([]int, len(z.File))
		lower := make([]string, len(z.File))
		for i := range z.File {
			z.sortedIdx[i] = i
			lower[i] = strings.ToLower(z.File[i].Name)
		}
		slices.SortFunc(z.sortedIdx, func(a, b int) int {
			return strings.Compare(lower[a], lower[b])
		})
	}
	return nil
}

// decode fills the FileHeader from one raw central directory record,
// honouring ZIP64 extended information whenever a 32-bit field is pegged
// at 0xffffffff, whether or not the archive-level ZIP64 records exist.
func (f *File) decode(rec []byte) {
	f.VersionMadeBy = binary.LittleEndian.Uint16(rec[4:])
	f.VersionNeeded = binary.LittleEndian.Uint16(rec[6:])
	f.Flags = binary.LittleEndian.Uint16(rec[8:])
	f.Method = binary.LittleEndian.Uint16(rec[10:])
	dostime := binary.LittleEndian.Uint16(rec[12:])
	dosdate := binary.LittleEndian.Uint16(rec[14:])
	f.CRC32 = binary.LittleEndian.Uint32(rec[16:])
	f.CompressedSize = uint64(binary.LittleEndian.Uint32(rec[20:]))
	f.UncompressedSize = uint64(binary.LittleEndian.Uint32(rec[24:]))
	namelen := int(binary.LittleEndian.Uint16(rec[28:]))
	extralen := int(binary.LittleEndian.Uint16(rec[30:]))
	commentlen := int(binary.LittleEndian.Uint16(rec[32:]))
	f.InternalAttrs = binary.LittleEndian.Uint16(rec[36:])
	f.ExternalAttrs = binary.LittleEndian.Uint32(rec[38:])
	f.headerOffset = int64(binary.LittleEndian.Uint32(rec[42:]))

	f.Name = string(rec[centralHeaderLen : centralHeaderLen+namelen])
	extra := rec[centralHeaderLen+namelen : centralHeaderLen+namelen+extralen]
	f.Comment = string(rec[centralHeaderLen+namelen+extralen : centralHeaderLen+namelen+extralen+commentlen])

	f.Modified = msDosTimeToTime(dosdate, dostime)
	fields := parseExtra(extra)
	if t := timeFromExtra(fields); !t.IsZero() {
		f.Modified = t
	}

	if z64, ok := fields[zip64ExtraID]; ok {
		// u64 replacements, in order, only for the pegged fields
		for _, shortField := range []*uint64{&f.UncompressedSize, &f.CompressedSize} {
			if *shortField == max32 && len(z64) >= 8 {
				*shortField = binary.LittleEndian.Uint64(z64)
				z64 = z64[8:]
				f.zip64 = true
			}
		}
		if f.headerOffset == max32 && len(z64) >= 8 {
			f.headerOffset = int64(binary.LittleEndian.Uint64(z64))
			f.zip64 = true
		}
	}
}

// Locate flags.
type LocateFlags uint32

const (
	// CaseSensitive compares names exactly; the default folds case.
	CaseSensitive LocateFlags = 1 << iota
	// IgnorePath compares only the final path component.
	IgnorePath
)

// Locate finds an entry by name, and optionally by comment, returning its
// index. The sorted index satisfies the common case in O(log n).
func (z *Reader) Locate(name, comment string, flags LocateFlags) (int, bool) {
	if z.sortedIdx != nil && flags == 0 && comment == "" {
		want := strings.ToLower(name)
		i, ok := slices.BinarySearchFunc(z.sortedIdx, want, func(idx int, want string) int {
			return strings.Compare(strings.ToLower(z.File[idx].Name), want)
		})
		if !ok {
			return 0, false
		}
		return z.sortedIdx[i], true
	}
	for i, f := range z.File {
		got := f.Name
		want := name
		if flags&IgnorePath != 0 {
			got = got[strings.LastIndexByte(got, '/')+1:]
			want = want[strings.LastIndexByte(want, '/')+1:]
		}
		if flags&CaseSensitive == 0 {
			got = strings.ToLower(got)
			want = strings.ToLower(want)
		}
		if got == want && (comment == "" || comment == f.Comment) {
			return i, true
		}
	}
	return 0, false
}

// Open finds an entry by name and opens it for reading.
func (z *Reader) Open(name string) (io.ReadCloser, error) {
	i, ok := z.Locate(name, "", 0)
	if !ok {
		return nil, z.fail(ErrNotFound)
	}
	return z.File[i].Open()
}

// Glob returns the entries whose names match the doublestar pattern.
func (z *Reader) Glob(pattern string) ([]*File, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, doublestar.ErrBadPattern
	}
	var out []*File
	for _, f := range z.File {
		ok, err := doublestar.Match(pattern, strings.TrimSuffix(f.Name, "/"))
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, f)
		}
	}
	return out, nil
}

// getEOCD reads the End of Central Directory record plus comment.
//
// The comment length field is validated against the actual tail of the
// file, so a stray signature inside the comment is not mistaken for the
// record. No bytes before the EOCD are read, but the largest chunks
// possible are, up to 22 bytes at a time.
func getEOCD(r io.ReaderAt, size int64) ([]byte, error) {
	if size < eocdLen {
		return nil, ErrFormat
	}
	cmtMax, haveData := int(min(65535, size-eocdLen)), 0
	data := make([]byte, eocdLen+cmtMax)

	// If there are fewer than min bytes in the buffer then make it max,
	// not tolerating any errors
	getData := func(min, max int) error {
		if min <= haveData {
			return nil
		}
		if max > len(data) {
			return ErrCentralDir
		}
		n, err := r.ReadAt(data[len(data)-max:len(data)-haveData], size-int64(max))
		haveData += n
		if haveData != max {
			return err
		}
		return nil
	}
	atNegOffset := func(offset int) byte { return data[len(data)-1-offset] }

	for cmtSize := 0; cmtSize <= cmtMax; cmtSize++ {
		if err := getData(cmtSize+2, cmtSize+eocdLen); err != nil {
			return nil, err
		}
		// Check for 16-bit little-endian comment field
		if atNegOffset(cmtSize) != byte(cmtSize>>8) ||
			atNegOffset(cmtSize+1) != byte(cmtSize) {
			continue
		}
		if err := getData(cmtSize+eocdLen, cmtSize+eocdLen); err != nil {
			return nil, err
		}
		if atNegOffset(cmtSize+21) == 'P' &&
			atNegOffset(cmtSize+20) == 'K' &&
			atNegOffset(cmtSize+19) == 5 &&
			atNegOffset(cmtSize+18) == 6 {
			return data[len(data)-haveData:], nil
		}
	}
	return nil, ErrCentralDir
}
