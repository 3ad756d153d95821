// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package zlib

import (
	"bytes"
	gozlib "compress/zlib"
	"encoding/binary"
	"io"
	"math/rand"
	"testing"

	"zipkit/checksum"
)

// "Hello" at the default level: small, static-coded, correct trailer.
func TestHelloFraming(t *testing.T) {
	comp := Compress([]byte("Hello"))
	if len(comp) > 15 {
		t.Errorf("compressed Hello is %d bytes, want <= 15", len(comp))
	}
	if comp[0] != 0x78 || comp[1] != 0x01 {
		t.Errorf("zlib header % x", comp[:2])
	}
	adler := binary.BigEndian.Uint32(comp[len(comp)-4:])
	if adler != 0x058c01f5 {
		t.Errorf("trailer adler %#08x, want 0x058c01f5", adler)
	}
	if adler != checksum.Adler32(1, []byte("Hello")) {
		t.Errorf("trailer does not match recomputed checksum")
	}

	got, err := Uncompress(comp, 5)
	if err != nil || string(got) != "Hello" {
		t.Fatalf("got %q, %v", got, err)
	}
}

// Level 0 must store: 2 header + 5 stored-block prelude + data + 4 adler.
func TestStoredFraming(t *testing.T) {
	data := make([]byte, 64)
	rand.New(rand.NewSource(3)).Read(data)
	comp, err := CompressLevel(data, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(comp) != 2+5+64+4 {
		t.Errorf("stored framing is %d bytes, want %d", len(comp), 2+5+64+4)
	}
	got, err := Uncompress(comp, 0)
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("roundtrip: %v", err)
	}
}

func TestVsStdlib(t *testing.T) {
	data := []byte("differential testing, differential testing, differential testing")

	// ours encodes, stdlib decodes
	comp := Compress(data)
	r, err := gozlib.NewReader(bytes.NewReader(comp))
	if err != nil {
		t.Fatal(err)
	}
	got, err := io.ReadAll(r)
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("stdlib rejects our stream: %v", err)
	}

	// stdlib encodes, ours decodes
	var theirs bytes.Buffer
	w := gozlib.NewWriter(&theirs)
	w.Write(data)
	w.Close()
	got, err = io.ReadAll(NewReader(bytes.NewReader(theirs.Bytes())))
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("we reject a stdlib stream: %v", err)
	}
}

func TestChecksumMismatch(t *testing.T) {
	comp := Compress([]byte("checksummed"))
	comp[len(comp)-1] ^= 0xff
	if _, err := Uncompress(comp, 0); err != ErrChecksum {
		t.Fatalf("want ErrChecksum, got %v", err)
	}
	_, err := io.ReadAll(NewReader(bytes.NewReader(comp)))
	if err != ErrChecksum {
		t.Fatalf("reader path: want ErrChecksum, got %v", err)
	}
}

func TestUncompressGrows(t *testing.T) {
	big := bytes.Repeat([]byte("grow me "), 50000)
	got, err := Uncompress(Compress(big), 1) // absurd hint
	if err != nil || !bytes.Equal(got, big) {
		t.Fatalf("err=%v, %d in %d out", err, len(big), len(got))
	}
}
