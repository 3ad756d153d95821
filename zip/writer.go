// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package zip

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"zipkit/checksum"
	"zipkit/flate"
)

// WriterOptions configure a whole archive.
type WriterOptions struct {
	// Alignment, a power of two, pads before each entry so its local
	// header offset is a multiple. Zero or one disables padding.
	Alignment int64
	// ForceZip64 writes ZIP64 records even when no entry needs them.
	ForceZip64 bool
	// Comment is the archive comment stored in the EOCD.
	Comment string
}

// AddOptions configure one entry.
type AddOptions struct {
	// Level 0 stores the entry verbatim (method 0); 1..10 deflate it.
	Level    int
	Strategy int

	Comment  string
	Modified time.Time // zero means time.Now; DOS 2-second resolution

	// ExternalAttrs zero picks a sensible Unix default for the entry type.
	ExternalAttrs uint32

	// Extra data blobs appended to the local and central records, after
	// any ZIP64 block of our own.
	LocalExtra   []byte
	CentralExtra []byte

	// SizeHint, when the eventual size is known up front, lets the writer
	// commit to ZIP64 before streaming. An entry that grows past 4 GiB
	// without it fails with ErrFileTooLarge.
	SizeHint int64

	ForceZip64 bool
	// SetSizesInHeader seeks back after the data and rewrites the local
	// header with the final CRC and sizes. The data descriptor is written
	// regardless, because the local header declares one.
	SetSizesInHeader bool
	// ASCIIFilename suppresses the UTF-8 name flag.
	ASCIIFilename bool
}

// Writer builds an archive on a random-access sink. Entries stream out as
// they are added; the central directory image stays in memory until
// Finalize.
type Writer struct {
	w      io.WriterAt
	opts   WriterOptions
	offset int64 // archive size so far

	dir   []byte // central directory image
	count uint64
	zip64 bool // sticky once any entry needs it

	finalized bool
	lastErr   error
}

func NewWriter(w io.WriterAt) *Writer {
	return NewWriterOptions(w, nil)
}

func NewWriterOptions(w io.WriterAt, opts *WriterOptions) *Writer {
	wr := &Writer{w: w}
	if opts != nil {
		wr.opts = *opts
		if wr.opts.Alignment > 1 && wr.opts.Alignment&(wr.opts.Alignment-1) != 0 {
			wr.lastErr = ErrParameter
		}
		wr.zip64 = wr.opts.ForceZip64
	}
	return wr
}

// AppendWriter converts an open reader into a writer positioned to
// overwrite the old central directory, taking ownership of the sink. The
// reader must not be used afterwards. The sink must be the same storage
// the reader was opened over.
func AppendWriter(z *Reader, w io.WriterAt) (*Writer, error) {
	wr := NewWriter(w)
	wr.offset = z.baseCorrection + z.cdOffset
	wr.dir = slices.Clone(z.cdImage)
	wr.count = uint64(len(z.File))
	wr.zip64 = z.zip64
	for _, f := range z.File {
		wr.zip64 = wr.zip64 || f.zip64
	}
	z.File = nil // invalidate
	z.cdImage = nil
	return wr, nil
}

// LastError returns the most recent archive-level error.
func (w *Writer) LastError() error { return w.lastErr }

func (w *Writer) ClearLastError() { w.lastErr = nil }

func (w *Writer) fail(err error) error {
	if err != nil {
		w.lastErr = err
	}
	return err
}

func (w *Writer) writeAt(p []byte, off int64) error {
	n, err := w.w.WriteAt(p, off)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	return err
}

// Offset returns the archive size written so far.
func (w *Writer) Offset() int64 { return w.offset }

// Count returns the number of entries added.
func (w *Writer) Count() uint64 { return w.count }

// Zip64 reports whether the archive has committed to ZIP64 records.
func (w *Writer) Zip64() bool { return w.zip64 }

func validName(name string) bool {
	return name != "" && !strings.HasPrefix(name, "/") &&
		!strings.Contains(name, "\\") && !strings.Contains(name, "\x00")
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// pad writes zero bytes so the next entry's local header lands on the
// configured alignment.
func (w *Writer) pad() error {
	if w.opts.Alignment > 1 {
		n := -w.offset & (w.opts.Alignment - 1)
		if n > 0 {
			if err := w.writeAt(make([]byte, n), w.offset); err != nil {
				return err
			}
			w.offset += n
		}
	}
	return nil
}

// AddBytes appends one entry from a memory buffer.
func (w *Writer) AddBytes(name string, data []byte, opts *AddOptions) error {
	o := AddOptions{}
	if opts != nil {
		o = *opts
	}
	o.SizeHint = int64(len(data))
	return w.Add(name, bytes.NewReader(data), &o)
}

// AddDir appends a directory entry; the name gains a trailing slash if it
// lacks one.
func (w *Writer) AddDir(name string, opts *AddOptions) error {
	if !strings.HasSuffix(name, "/") {
		name += "/"
	}
	return w.Add(name, nil, opts)
}

// Add appends one entry, streaming its bytes from r (nil for a directory
// entry). Level 0 stores, anything else runs the DEFLATE encoder with raw
// framing. The CRC-32 and sizes always follow the data in a descriptor;
// see AddOptions for the header-patching variant.
func (w *Writer) Add(name string, r io.Reader, opts *AddOptions) (err error) {
	defer func() { w.fail(err) }()
	if w.finalized {
		return ErrFinalized
	}
	if w.opts.Alignment > 1 && w.opts.Alignment&(w.opts.Alignment-1) != 0 {
		return ErrParameter
	}
	if !validName(name) {
		return ErrFilename
	}
	if w.count >= max32 {
		return ErrTooManyFiles
	}
	var o AddOptions
	if opts != nil {
		o = *opts
	}
	isDir := strings.HasSuffix(name, "/")
	if isDir {
		r = nil
	}

	if err := w.pad(); err != nil {
		return err
	}
	hdrOfs := w.offset

	entry64 := o.ForceZip64 || w.opts.ForceZip64 ||
		o.SizeHint >= max32 || hdrOfs >= max32 ||
		w.count+1 > max16 // entering zip64 is sticky for the archive
	if entry64 {
		w.zip64 = true
	}

	method := MethodDeflate
	if o.Level == 0 || isDir {
		method = MethodStore
	}
	mod := o.Modified
	if mod.IsZero() {
		mod = time.Now()
	}
	dosDate, dosTime := timeToMSDos(mod)
	flags := uint16(flagDataDescriptor)
	if !o.ASCIIFilename && !(isASCII(name) && isASCII(o.Comment)) {
		flags |= flagUTF8
	}
	versionNeeded := uint16(20)
	if entry64 {
		versionNeeded = 45
	}
	extAttrs := o.ExternalAttrs
	if extAttrs == 0 {
		if isDir {
			extAttrs = (s_IFDIR|0o755)<<16 | 0x10
		} else {
			extAttrs = (s_IFREG | 0o644) << 16
		}
	}

	// local header, with placeholder checksum and sizes
	var localExtra []byte
	if entry64 {
		localExtra = make([]byte, 4+16)
		binary.LittleEndian.PutUint16(localExtra, zip64ExtraID)
		binary.LittleEndian.PutUint16(localExtra[2:], 16)
	}
	localExtra = append(localExtra, o.LocalExtra...)
	if len(name) > max16 || len(localExtra) > max16 {
		return ErrParameter
	}
	hdr := make([]byte, localHeaderLen+len(name)+len(localExtra))
	binary.LittleEndian.PutUint32(hdr, sigLocalHeader)
	binary.LittleEndian.PutUint16(hdr[4:], versionNeeded)
	binary.LittleEndian.PutUint16(hdr[6:], flags)
	binary.LittleEndian.PutUint16(hdr[8:], method)
	binary.LittleEndian.PutUint16(hdr[10:], dosTime)
	binary.LittleEndian.PutUint16(hdr[12:], dosDate)
	if entry64 {
		binary.LittleEndian.PutUint32(hdr[18:], max32)
		binary.LittleEndian.PutUint32(hdr[22:], max32)
	}
	binary.LittleEndian.PutUint16(hdr[26:], uint16(len(name)))
	binary.LittleEndian.PutUint16(hdr[28:], uint16(len(localExtra)))
	copy(hdr[localHeaderLen:], name)
	copy(hdr[localHeaderLen+len(name):], localExtra)
	if err := w.writeAt(hdr, hdrOfs); err != nil {
		return err
	}
	w.offset += int64(len(hdr))

	// stream the data
	crc, comp, uncomp, err := w.streamData(r, method, o.Level, o.Strategy)
	if err != nil {
		return err
	}
	if !entry64 && (comp >= max32 || uncomp >= max32 || w.offset >= max32) {
		return ErrFileTooLarge
	}

	// data descriptor
	var desc []byte
	if entry64 {
		desc = make([]byte, 4+4+16)
		binary.LittleEndian.PutUint32(desc, sigDataDesc)
		binary.LittleEndian.PutUint32(desc[4:], crc)
		binary.LittleEndian.PutUint64(desc[8:], comp)
		binary.LittleEndian.PutUint64(desc[16:], uncomp)
	} else {
		desc = make([]byte, 4+4+8)
		binary.LittleEndian.PutUint32(desc, sigDataDesc)
		binary.LittleEndian.PutUint32(desc[4:], crc)
		binary.LittleEndian.PutUint32(desc[8:], uint32(comp))
		binary.LittleEndian.PutUint32(desc[12:], uint32(uncomp))
	}
	if err := w.writeAt(desc, w.offset); err != nil {
		return err
	}
	w.offset += int64(len(desc))

	// A ZIP64 local header always gets its extra block patched with the
	// real sizes so the 8-byte descriptor stays self-consistent; smaller
	// entries are patched only on request.
	if entry64 || o.SetSizesInHeader {
		binary.LittleEndian.PutUint32(hdr[14:], crc)
		if entry64 {
			z64 := hdr[localHeaderLen+len(name):]
			binary.LittleEndian.PutUint64(z64[4:], uncomp)
			binary.LittleEndian.PutUint64(z64[12:], comp)
		} else {
			binary.LittleEndian.PutUint32(hdr[18:], uint32(comp))
			binary.LittleEndian.PutUint32(hdr[22:], uint32(uncomp))
		}
		if err := w.writeAt(hdr, hdrOfs); err != nil {
			return err
		}
	}

	w.appendCentral(&FileHeader{
		Name:             name,
		Comment:          o.Comment,
		VersionMadeBy:    3<<8 | 30, // Unix
		VersionNeeded:    versionNeeded,
		Flags:            flags,
		Method:           method,
		Modified:         mod,
		CRC32:            crc,
		CompressedSize:   comp,
		UncompressedSize: uncomp,
		ExternalAttrs:    extAttrs,
	}, hdrOfs, entry64, o.CentralExtra)
	return nil
}

// streamData copies or compresses r at the current offset, returning the
// CRC and both sizes.
func (w *Writer) streamData(r io.Reader, method uint16, level, strategy int) (crc uint32, comp, uncomp uint64, err error) {
	if r == nil {
		return 0, 0, 0, nil
	}
	dataStart := w.offset
	var werr error
	write := func(p []byte) bool {
		if werr == nil {
			werr = w.writeAt(p, dataStart+int64(comp))
		}
		if werr == nil {
			comp += uint64(len(p))
		}
		return werr == nil
	}

	buf := make([]byte, 65536)
	switch method {
	case MethodStore:
		for {
			n, rerr := r.Read(buf)
			crc = checksum.CRC32(crc, buf[:n])
			uncomp += uint64(n)
			if n > 0 && !write(buf[:n]) {
				return 0, 0, 0, werr
			}
			if rerr == io.EOF {
				break
			}
			if rerr != nil {
				return 0, 0, 0, rerr
			}
		}
	case MethodDeflate:
		c := flate.NewCompressorSink(flate.CompressorFlags(min(level, 10), -15, strategy), write)
		for {
			n, rerr := r.Read(buf)
			crc = checksum.CRC32(crc, buf[:n])
			uncomp += uint64(n)
			chunk := buf[:n]
			for len(chunk) > 0 {
				st, consumed, _ := c.Compress(chunk, nil, flate.NoFlush)
				chunk = chunk[consumed:]
				if st < 0 {
					return 0, 0, 0, w.sinkErr(werr, st)
				}
			}
			if rerr == io.EOF {
				break
			}
			if rerr != nil {
				return 0, 0, 0, rerr
			}
		}
		for {
			st, _, _ := c.Compress(nil, nil, flate.Finish)
			if st == flate.StatusDone {
				break
			}
			if st < 0 {
				return 0, 0, 0, w.sinkErr(werr, st)
			}
		}
	default:
		return 0, 0, 0, ErrMethod
	}
	w.offset = dataStart + int64(comp)
	return crc, comp, uncomp, nil
}

func (w *Writer) sinkErr(werr error, st flate.Status) error {
	if werr != nil {
		return werr
	}
	return fmt.Errorf("zip: compressor: %s", st)
}

// appendCentral formats one central directory record into the in-memory
// image. ZIP64 entries peg all three location fields at 0xffffffff and
// carry the real values in the 0x0001 extra block.
func (w *Writer) appendCentral(h *FileHeader, hdrOfs int64, entry64 bool, userExtra []byte) {
	var extra []byte
	if entry64 {
		extra = make([]byte, 4+24)
		binary.LittleEndian.PutUint16(extra, zip64ExtraID)
		binary.LittleEndian.PutUint16(extra[2:], 24)
		binary.LittleEndian.PutUint64(extra[4:], h.UncompressedSize)
		binary.LittleEndian.PutUint64(extra[12:], h.CompressedSize)
		binary.LittleEndian.PutUint64(extra[20:], uint64(hdrOfs))
	}
	extra = append(extra, userExtra...)

	rec := make([]byte, centralHeaderLen, centralHeaderLen+len(h.Name)+len(extra)+len(h.Comment))
	binary.LittleEndian.PutUint32(rec, sigCentralHeader)
	binary.LittleEndian.PutUint16(rec[4:], h.VersionMadeBy)
	binary.LittleEndian.PutUint16(rec[6:], h.VersionNeeded)
	binary.LittleEndian.PutUint16(rec[8:], h.Flags)
	binary.LittleEndian.PutUint16(rec[10:], h.Method)
	dosDate, dosTime := timeToMSDos(h.Modified)
	binary.LittleEndian.PutUint16(rec[12:], dosTime)
	binary.LittleEndian.PutUint16(rec[14:], dosDate)
	binary.LittleEndian.PutUint32(rec[16:], h.CRC32)
	comp, uncomp, ofs := h.CompressedSize, h.UncompressedSize, uint64(hdrOfs)
	if entry64 {
		comp, uncomp, ofs = max32, max32, max32
	}
	binary.LittleEndian.PutUint32(rec[20:], uint32(comp))
	binary.LittleEndian.PutUint32(rec[24:], uint32(uncomp))
	binary.LittleEndian.PutUint16(rec[28:], uint16(len(h.Name)))
	binary.LittleEndian.PutUint16(rec[30:], uint16(len(extra)))
	binary.LittleEndian.PutUint16(rec[32:], uint16(len(h.Comment)))
	binary.LittleEndian.PutUint16(rec[36:], h.InternalAttrs)
	binary.LittleEndian.PutUint32(rec[38:], h.ExternalAttrs)
	binary.LittleEndian.PutUint32(rec[42:], uint32(ofs))
	rec = append(rec, h.Name...)
	rec = append(rec, extra...)
	rec = append(rec, h.Comment...)

	w.dir = append(w.dir, rec...)
	w.count++
}

// Copy clones an entry from another archive verbatim: local header, data
// and descriptor are copied byte for byte, and a fresh central record is
// synthesized with the new offset (other extra fields preserved, the
// ZIP64 block rebuilt as needed).
func (w *Writer) Copy(src *File) (err error) {
	defer func() { w.fail(err) }()
	if w.finalized {
		return ErrFinalized
	}
	dataOff, err := src.findDataOffset()
	if err != nil {
		return err
	}
	start := src.zip.baseCorrection + src.headerOffset
	end := dataOff + int64(src.CompressedSize)
	if src.Flags&flagDataDescriptor != 0 {
		var sig [4]byte
		if n, _ := src.zip.r.ReadAt(sig[:], end); n == 4 && binary.LittleEndian.Uint32(sig[:]) == sigDataDesc {
			end += 4
		}
		if src.zip64 {
			end += 4 + 16
		} else {
			end += 4 + 8
		}
	}

	if err := w.pad(); err != nil {
		return err
	}
	newOfs := w.offset

	buf := make([]byte, 65536)
	for pos := start; pos < end; {
		n := int(min(int64(len(buf)), end-pos))
		if rn, err := src.zip.r.ReadAt(buf[:n], pos); rn < n {
			if err == nil {
				err = io.ErrUnexpectedEOF
			}
			return err
		}
		if err := w.writeAt(buf[:n], w.offset); err != nil {
			return err
		}
		pos += int64(n)
		w.offset += int64(n)
	}

	// synthesize the central record
	rec := src.zip.cdImage[src.cdRecOffset : src.cdRecOffset+src.cdRecLen]
	namelen := int(binary.LittleEndian.Uint16(rec[28:]))
	extralen := int(binary.LittleEndian.Uint16(rec[30:]))
	name := rec[centralHeaderLen : centralHeaderLen+namelen]
	oldExtra := rec[centralHeaderLen+namelen : centralHeaderLen+namelen+extralen]
	comment := rec[centralHeaderLen+namelen+extralen:]

	entry64 := src.zip64 || src.CompressedSize >= max32 || src.UncompressedSize >= max32 || newOfs >= max32
	extra := stripExtra(oldExtra, zip64ExtraID)
	fixed := slices.Clone(rec[:centralHeaderLen])
	if entry64 {
		z64 := make([]byte, 4, 4+24)
		binary.LittleEndian.PutUint16(z64, zip64ExtraID)
		if src.UncompressedSize >= max32 || src.zip64 {
			binary.LittleEndian.PutUint32(fixed[24:], max32)
			z64 = binary.LittleEndian.AppendUint64(z64, src.UncompressedSize)
		}
		if src.CompressedSize >= max32 || src.zip64 {
			binary.LittleEndian.PutUint32(fixed[20:], max32)
			z64 = binary.LittleEndian.AppendUint64(z64, src.CompressedSize)
		}
		if uint64(newOfs) >= max32 || src.zip64 {
			binary.LittleEndian.PutUint32(fixed[42:], max32)
			z64 = binary.LittleEndian.AppendUint64(z64, uint64(newOfs))
		} else {
			binary.LittleEndian.PutUint32(fixed[42:], uint32(newOfs))
		}
		binary.LittleEndian.PutUint16(z64[2:], uint16(len(z64)-4))
		extra = append(z64, extra...)
		w.zip64 = true
	} else {
		binary.LittleEndian.PutUint32(fixed[42:], uint32(newOfs))
	}
	binary.LittleEndian.PutUint16(fixed[30:], uint16(len(extra)))

	w.dir = append(w.dir, fixed...)
	w.dir = append(w.dir, name...)
	w.dir = append(w.dir, extra...)
	w.dir = append(w.dir, comment...)
	w.count++
	return nil
}

// Truncater is implemented by sinks (like *os.File and *Buffer) that can
// drop bytes past the end of the finalized archive, needed when appending
// to an existing file in place.
type Truncater interface {
	Truncate(size int64) error
}

// Finalize writes the central directory, the ZIP64 records when needed,
// and the EOCD. The writer accepts no further entries.
func (w *Writer) Finalize() (err error) {
	defer func() { w.fail(err) }()
	if w.finalized {
		return ErrFinalized
	}
	cdOfs := w.offset
	if err := w.writeAt(w.dir, cdOfs); err != nil {
		return err
	}
	w.offset += int64(len(w.dir))

	zip64 := w.zip64 || w.count > max16 || cdOfs >= max32 || len(w.dir) >= max32
	if zip64 {
		eocd64Ofs := w.offset
		rec := make([]byte, eocd64Len+eocd64LocatorLen)
		binary.LittleEndian.PutUint32(rec, sigEOCD64)
		binary.LittleEndian.PutUint64(rec[4:], eocd64Len-12)
		binary.LittleEndian.PutUint16(rec[12:], 45) // version made by
		binary.LittleEndian.PutUint16(rec[14:], 45) // version needed
		binary.LittleEndian.PutUint64(rec[24:], w.count)
		binary.LittleEndian.PutUint64(rec[32:], w.count)
		binary.LittleEndian.PutUint64(rec[40:], uint64(len(w.dir)))
		binary.LittleEndian.PutUint64(rec[48:], uint64(cdOfs))
		loc := rec[eocd64Len:]
		binary.LittleEndian.PutUint32(loc, sigEOCD64Locator)
		binary.LittleEndian.PutUint64(loc[8:], uint64(eocd64Ofs))
		binary.LittleEndian.PutUint32(loc[16:], 1)
		if err := w.writeAt(rec, w.offset); err != nil {
			return err
		}
		w.offset += int64(len(rec))
	}

	if len(w.opts.Comment) > max16 {
		return ErrParameter
	}
	eocd := make([]byte, eocdLen+len(w.opts.Comment))
	binary.LittleEndian.PutUint32(eocd, sigEOCD)
	binary.LittleEndian.PutUint16(eocd[8:], uint16(min(w.count, max16)))
	binary.LittleEndian.PutUint16(eocd[10:], uint16(min(w.count, max16)))
	binary.LittleEndian.PutUint32(eocd[12:], uint32(min(int64(len(w.dir)), max32)))
	binary.LittleEndian.PutUint32(eocd[16:], uint32(min(cdOfs, max32)))
	binary.LittleEndian.PutUint16(eocd[20:], uint16(len(w.opts.Comment)))
	copy(eocd[eocdLen:], w.opts.Comment)
	if err := w.writeAt(eocd, w.offset); err != nil {
		return err
	}
	w.offset += int64(len(eocd))

	if t, ok := w.w.(Truncater); ok {
		if err := t.Truncate(w.offset); err != nil {
			return err
		}
	}
	w.finalized = true
	return nil
}
