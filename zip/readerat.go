// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package zip

import (
	"fmt"
	"io"

	"zipkit/flate"
	"zipkit/internal/blockcache"
)

// OpenReaderAt exposes the entry as a random-access [io.ReaderAt].
// Stored entries read straight from the archive; deflated entries run
// through a checkpointed decompressor with a shared block cache, so
// backward seeks do not restart the stream from the top. CRC-32 is not
// verified on this path.
func (f *File) OpenReaderAt() (io.ReaderAt, error) {
	off, err := f.findDataOffset()
	if err != nil {
		return nil, f.zip.fail(err)
	}
	switch f.Method {
	case MethodStore:
		return io.NewSectionReader(f.zip.r, off, int64(f.UncompressedSize)), nil
	case MethodDeflate:
		cur := &inflateCursor{
			src:    f.zip.r,
			srcOff: off,
			srcEnd: off + int64(f.CompressedSize),
		}
		cur.d.Reset()
		return blockcache.New(cur.step, int64(f.UncompressedSize),
			fmt.Sprintf("%s@%d", f.Name, f.headerOffset)), nil
	default:
		return nil, f.zip.fail(fmt.Errorf("%w: %d", ErrMethod, f.Method))
	}
}

// inflateCursor is a resumable position in a DEFLATE stream. step
// advances a copy, so an old cursor stays valid as a checkpoint.
type inflateCursor struct {
	src    io.ReaderAt
	srcOff int64 // next compressed byte
	srcEnd int64
	d      flate.Decompressor
	window [32768]byte
	wpos   int
	in     []byte // carried-over unconsumed input
}

const cursorChunk = 65536

// step produces the next window-full of decoded bytes and the cursor
// that follows it.
func (cur *inflateCursor) step() (blockcache.Stepper, []byte, error) {
	next := new(inflateCursor)
	*next = *cur // struct copy snapshots the decoder state
	if next.wpos == len(next.window) {
		next.wpos = 0
	}
	start := next.wpos

	var streamErr error
	for {
		if len(next.in) == 0 && next.srcOff < next.srcEnd {
			buf := make([]byte, min(cursorChunk, int(next.srcEnd-next.srcOff)))
			n, err := next.src.ReadAt(buf, next.srcOff)
			if n == 0 {
				if err == nil || err == io.EOF {
					err = io.ErrUnexpectedEOF
				}
				return nil, nil, err
			}
			next.srcOff += int64(n)
			next.in = buf[:n]
		}
		flags := flate.DecompressFlags(0)
		if next.srcOff < next.srcEnd || len(next.in) > 0 {
			flags |= flate.HasMoreInput
		}
		st, consumed, produced := next.d.Decompress(next.in, next.window[:], next.wpos, flags)
		next.in = next.in[consumed:]
		next.wpos += produced
		switch st {
		case flate.StatusDone:
			streamErr = io.EOF
		case flate.StatusNeedsMoreInput:
			continue
		case flate.StatusHasMoreOutput:
		case flate.StatusFailedCannotMakeProgress:
			streamErr = io.ErrUnexpectedEOF
		default:
			streamErr = fmt.Errorf("%w: %s", ErrCorrupt, st)
		}
		break
	}
	blob := make([]byte, next.wpos-start)
	copy(blob, next.window[start:next.wpos])
	if streamErr == io.EOF {
		return nil, blob, nil // blockcache supplies consistent EOFs itself
	}
	if streamErr != nil {
		return nil, blob, streamErr
	}
	return next.step, blob, nil
}
