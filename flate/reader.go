// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package flate

import "io"

// Reader decompresses a DEFLATE stream from an underlying [io.Reader],
// driving a [Decompressor] over a 32 KiB wrapping window.
type Reader struct {
	r     io.Reader
	d     *Decompressor
	flags DecompressFlags

	window  []byte
	wpos    int // decoder's cursor in window
	deliver int // undelivered decoded bytes: window[deliver:deliverEnd]
	deliverEnd int

	inbuf []byte
	in    []byte // unconsumed tail of inbuf
	rerr  error  // deferred error from the underlying reader
	err   error  // terminal state of this reader
}

// NewReader returns a reader for a raw DEFLATE stream.
func NewReader(r io.Reader) *Reader {
	return NewReaderFlags(r, 0)
}

// NewReaderFlags returns a reader with explicit decoder flags; pass
// [ParseZlibHeader] for an RFC 1950 stream. HasMoreInput and
// NonWrappingOutput are managed internally and ignored.
func NewReaderFlags(r io.Reader, flags DecompressFlags) *Reader {
	return &Reader{
		r:      r,
		d:      NewDecompressor(),
		flags:  flags &^ (HasMoreInput | NonWrappingOutput),
		window: make([]byte, lzDictSize),
		inbuf:  make([]byte, 16384),
	}
}

func (r *Reader) Read(p []byte) (int, error) {
	for {
		if r.deliver < r.deliverEnd {
			n := copy(p, r.window[r.deliver:r.deliverEnd])
			r.deliver += n
			return n, nil
		}
		if r.err != nil {
			return 0, r.err
		}

		if len(r.in) == 0 && r.rerr == nil {
			n, err := r.r.Read(r.inbuf)
			r.in = r.inbuf[:n]
			r.rerr = err
			if n == 0 && err == nil {
				continue
			}
		}

		fl := r.flags
		if r.rerr == nil || len(r.in) > 0 {
			fl |= HasMoreInput
		}
		if r.wpos == len(r.window) {
			r.wpos = 0
		}
		st, consumed, produced := r.d.Decompress(r.in, r.window, r.wpos, fl)
		r.in = r.in[consumed:]
		r.deliver, r.deliverEnd = r.wpos, r.wpos+produced
		r.wpos += produced

		switch st {
		case StatusDone:
			r.err = io.EOF
		case StatusNeedsMoreInput, StatusHasMoreOutput:
			// loop: refill input or drain the window
		case StatusFailedCannotMakeProgress:
			if r.rerr != nil && r.rerr != io.EOF {
				r.err = r.rerr
			} else {
				r.err = io.ErrUnexpectedEOF
			}
		case StatusAdler32Mismatch:
			r.err = ErrChecksum
		default:
			r.err = ErrCorrupt
		}
	}
}

// Adler32 exposes the decoder's running checksum.
func (r *Reader) Adler32() uint32 { return r.d.Adler32() }

func (r *Reader) Close() error { return nil }
