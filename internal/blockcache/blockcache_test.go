package blockcache

import (
	"bytes"
	"io"
	"math/rand"
	"testing"
)

// chunkStepper serves a canned byte string in fixed-size runs, counting
// how many times the expensive path runs.
func chunkStepper(data []byte, chunk int, calls *int) Stepper {
	var step func(off int) Stepper
	step = func(off int) Stepper {
		return func() (Stepper, []byte, error) {
			*calls++
			end := min(off+chunk, len(data))
			return step(end), data[off:end], nil
		}
	}
	return step(0)
}

func TestReadAt(t *testing.T) {
	data := make([]byte, 100000)
	rand.New(rand.NewSource(4)).Read(data)
	calls := 0
	r := New(chunkStepper(data, 4096, &calls), int64(len(data)), "test")

	rng := rand.New(rand.NewSource(5))
	for trial := 0; trial < 200; trial++ {
		off := rng.Intn(len(data) + 10)
		n := rng.Intn(9000) + 1
		p := make([]byte, n)
		got, err := r.ReadAt(p, int64(off))
		if off >= len(data) {
			if err != io.EOF {
				t.Fatalf("@%d: want EOF, got %v", off, err)
			}
			continue
		}
		wantN := min(n, len(data)-off)
		if got != wantN {
			t.Fatalf("@%d+%d: %d bytes, want %d (err %v)", off, n, got, wantN, err)
		}
		if !bytes.Equal(p[:got], data[off:off+wantN]) {
			t.Fatalf("@%d+%d: wrong bytes", off, n)
		}
	}

	// the block cache must have absorbed most re-reads
	if calls > 3*(len(data)/4096+1) {
		t.Errorf("stepper ran %d times for 200 overlapping reads", calls)
	}
}

func TestSequentialWholeRead(t *testing.T) {
	data := []byte("twelve bytes")
	calls := 0
	r := New(chunkStepper(data, 5, &calls), int64(len(data)), "seq")
	got := make([]byte, len(data))
	n, err := r.ReadAt(got, 0)
	if n != len(data) || err != nil {
		t.Fatalf("%d %v", n, err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("wrong bytes")
	}
}
