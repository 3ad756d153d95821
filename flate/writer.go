// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package flate

import (
	"errors"
	"fmt"
	"io"
)

var (
	ErrCorrupt  = errors.New("flate: corrupt input")
	ErrChecksum = errors.New("flate: checksum mismatch")
)

// Writer compresses everything written to it onto an underlying
// [io.Writer]. Close finishes the stream; Flush byte-aligns it so the
// far end can decode everything written so far.
type Writer struct {
	c   *Compressor
	err error
}

// NewWriter returns a raw-DEFLATE writer at the given compression level
// (0 stores, 1 fastest, 10 best, [DefaultCompression] the usual trade).
func NewWriter(w io.Writer, level int) *Writer {
	return NewWriterFlags(w, CompressorFlags(level, -15, DefaultStrategy))
}

// NewWriterFlags returns a writer with full control of the encoder flags.
func NewWriterFlags(w io.Writer, flags CompressFlags) *Writer {
	wr := new(Writer)
	wr.c = NewCompressorSink(flags, func(p []byte) bool {
		_, err := w.Write(p)
		if err != nil {
			wr.err = err
		}
		return err == nil
	})
	return wr
}

func (w *Writer) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	n := 0
	for n < len(p) {
		st, consumed, _ := w.c.Compress(p[n:], nil, NoFlush)
		n += consumed
		if err := w.fail(st); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Flush emits an empty stored block and byte-aligns the output.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	st, _, _ := w.c.Compress(nil, nil, SyncFlush)
	return w.fail(st)
}

// Close finishes the DEFLATE stream. It does not close the underlying
// writer.
func (w *Writer) Close() error {
	if w.err != nil {
		return w.err
	}
	for {
		st, _, _ := w.c.Compress(nil, nil, Finish)
		if st == StatusDone {
			return nil
		}
		if err := w.fail(st); err != nil {
			return err
		}
	}
}

// Adler32 exposes the encoder's running checksum.
func (w *Writer) Adler32() uint32 { return w.c.Adler32() }

func (w *Writer) fail(st Status) error {
	if st >= 0 {
		return nil
	}
	if w.err == nil {
		w.err = fmt.Errorf("flate: %s", st)
	}
	return w.err
}
