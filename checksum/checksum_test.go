// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package checksum

import (
	"hash/adler32"
	"hash/crc32"
	"math/rand"
	"testing"
)

func testCorpus() [][]byte {
	r := rand.New(rand.NewSource(1))
	corpus := [][]byte{
		nil,
		{0},
		[]byte("Hello"),
		[]byte("the quick brown fox jumps over the lazy dog"),
		make([]byte, 5551),
		make([]byte, 5552),
		make([]byte, 5553),
		make([]byte, 100000),
	}
	for _, b := range corpus[4:] {
		r.Read(b)
	}
	return corpus
}

func TestCRC32VsStdlib(t *testing.T) {
	for _, b := range testCorpus() {
		if got, want := CRC32(0, b), crc32.ChecksumIEEE(b); got != want {
			t.Errorf("len %d: got %#08x want %#08x", len(b), got, want)
		}
	}
}

func TestAdler32VsStdlib(t *testing.T) {
	for _, b := range testCorpus() {
		if got, want := Adler32(1, b), adler32.Checksum(b); got != want {
			t.Errorf("len %d: got %#08x want %#08x", len(b), got, want)
		}
	}
}

func TestAdler32KnownValue(t *testing.T) {
	if got := Adler32(1, []byte("Hello")); got != 0x058c01f5 {
		t.Errorf("adler32(Hello) = %#08x", got)
	}
}

// The hash.Hash32 adapters must behave like the stdlib digests.
func TestHash32Adapters(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")

	h, ref := NewCRC32(), crc32.NewIEEE()
	h.Write(data[:10])
	h.Write(data[10:])
	ref.Write(data)
	if h.Sum32() != ref.Sum32() {
		t.Errorf("crc adapter: got %#08x want %#08x", h.Sum32(), ref.Sum32())
	}
	if got, want := h.Sum(nil), ref.Sum(nil); string(got) != string(want) {
		t.Errorf("crc Sum: got % x want % x", got, want)
	}
	h.Reset()
	if h.Sum32() != 0 {
		t.Errorf("crc Reset: %#08x", h.Sum32())
	}

	a, aref := NewAdler32(), adler32.New()
	a.Write(data)
	aref.Write(data)
	if a.Sum32() != aref.Sum32() {
		t.Errorf("adler adapter: got %#08x want %#08x", a.Sum32(), aref.Sum32())
	}
	a.Reset()
	if a.Sum32() != 1 {
		t.Errorf("adler Reset: %#08x", a.Sum32())
	}
}

// Rolling a checksum across a split must equal the whole-buffer value.
func TestSplits(t *testing.T) {
	for _, b := range testCorpus() {
		whole := CRC32(0, b)
		wholeA := Adler32(1, b)
		for _, k := range []int{0, 1, 3, len(b) / 2, len(b)} {
			if k > len(b) {
				continue
			}
			if got := CRC32(CRC32(0, b[:k]), b[k:]); got != whole {
				t.Errorf("crc split at %d of %d: got %#08x want %#08x", k, len(b), got, whole)
			}
			if got := Adler32(Adler32(1, b[:k]), b[k:]); got != wholeA {
				t.Errorf("adler split at %d of %d: got %#08x want %#08x", k, len(b), got, wholeA)
			}
		}
	}
}
