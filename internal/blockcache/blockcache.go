// Package blockcache converts a sequential decompressor into an
// [io.ReaderAt].
//
// Random access to a sequential stream is achieved by keeping a ladder of
// resumable checkpoints and re-running the decompressor forward from the
// nearest one. Performance is maintained by a shared cache of decoded
// blocks, bounded in memory and keyed by a per-stream serial number and
// offset.
package blockcache

import (
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-tinylfu"
)

// Stepper produces the next run of decoded bytes, plus the stepper for
// the run after it. Guaranteed never to be called too many times,
// therefore never feel obliged to return io.EOF for the last one.
type Stepper func() (Stepper, []byte, error)

// New returns a ReaderAt over the decoded stream of the given total size.
// debugName labels this stream in debug logging.
func New(stepper Stepper, size int64, debugName string) *ReaderAt {
	return &ReaderAt{
		uniq:        atomic.AddUint64(&monotonic, 1),
		debugName:   debugName,
		checkpoints: []checkpoint{{stepper: stepper, offset: 0}},
		size:        size,
	}
}

type ReaderAt struct {
	mu          sync.Mutex
	uniq        uint64
	debugName   string
	checkpoints []checkpoint
	size        int64
}

type checkpoint struct {
	stepper Stepper
	offset  int64
	err     error
}

func (r *ReaderAt) Size() int64 { return r.size }

func (r *ReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, io.ErrUnexpectedEOF
	}
	if off >= r.size {
		return 0, io.EOF
	}
	if off+int64(len(p)) > r.size {
		p = p[:r.size-off]
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// start with the highest checkpoint that starts <= the request
	i := sort.Search(len(r.checkpoints), func(i int) bool {
		return r.checkpoints[i].offset > off
	}) - 1

	for {
		key := ckey{stream: r.uniq, offset: r.checkpoints[i].offset}
		blob, hit := cacheGet(key)

		if !hit { // decompress a block expensively
			slog.Debug("blockcache miss", "stream", r.debugName, "offset", key.offset)
			newstepper, newblob, err := r.checkpoints[i].stepper()
			blob = newblob
			cachePut(key, blob)
			r.checkpoints[i].err = err
			if r.checkpoints[i].offset+int64(len(blob)) >= r.size {
				r.checkpoints[i].err = io.EOF // the last one, return io.EOF consistently
			} else if i+1 == len(r.checkpoints) { // stepper for the next one
				r.checkpoints = append(r.checkpoints, checkpoint{
					stepper: newstepper,
					offset:  r.checkpoints[i].offset + int64(len(blob))})
			}
		}

		// copy bytes into the destination buffer
		destcut, srccut, ok := overlap(off, len(p), r.checkpoints[i].offset, len(blob))
		if !ok {
			if r.checkpoints[i].err != nil {
				return 0, r.checkpoints[i].err
			}
			if len(blob) > 0 && i+1 < len(r.checkpoints) {
				i++ // this block ends before the request: step forward
				continue
			}
			return 0, io.ErrUnexpectedEOF // stream shorter than promised
		}
		n := copy(p[destcut:], blob[srccut:])
		if destcut+n == len(p) /*satisfied*/ || r.checkpoints[i].err != nil /*eof*/ {
			err := r.checkpoints[i].err
			if destcut+n == len(p) {
				err = nil
			}
			return destcut + n, err
		}
		i++
	}
}

type ckey struct {
	stream uint64
	offset int64
}

var monotonic uint64

// One shared, bounded cache of decoded blocks for the whole process.
const cacheBlocks = 2048

var (
	cacheMu sync.Mutex
	cache   = tinylfu.New[ckey, []byte](cacheBlocks, cacheBlocks*10, func(k ckey) uint64 {
		var b [16]byte
		for i := 0; i < 8; i++ {
			b[i] = byte(k.stream >> (8 * i))
			b[8+i] = byte(uint64(k.offset) >> (8 * i))
		}
		return xxhash.Sum64(b[:])
	})
)

func cacheGet(k ckey) ([]byte, bool) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	return cache.Get(k)
}

func cachePut(k ckey, v []byte) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	cache.Add(k, v)
}

func overlap(aoffset int64, alen int, boffset int64, blen int) (ainner, binner int, ok bool) {
	if aoffset >= boffset+int64(blen) || boffset >= aoffset+int64(alen) {
		return 0, 0, false
	}

	if aoffset > boffset {
		binner = int(aoffset - boffset)
	} else {
		ainner = int(boffset - aoffset)
	}
	return ainner, binner, true
}
