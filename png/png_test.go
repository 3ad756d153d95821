// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package png

import (
	"bytes"
	"image"
	gopng "image/png"
	"math/rand"
	"testing"
)

// The stdlib decoder is the arbiter of whether our chunks, CRCs and zlib
// stream are well formed.
func TestVsStdlibDecoder(t *testing.T) {
	const w, h = 31, 17
	pix := make([]byte, w*h*4)
	rand.New(rand.NewSource(6)).Read(pix)
	for i := 3; i < len(pix); i += 4 {
		pix[i] = 0xff // opaque, so premultiplication cannot bite
	}

	var buf bytes.Buffer
	if err := Encode(&buf, pix, w, h, 4); err != nil {
		t.Fatal(err)
	}

	img, err := gopng.Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds() != image.Rect(0, 0, w, h) {
		t.Fatalf("bounds %v", img.Bounds())
	}
	nrgba, ok := img.(*image.NRGBA)
	if !ok {
		t.Fatalf("decoded as %T", img)
	}
	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		if !bytes.Equal(row, pix[y*w*4:(y+1)*w*4]) {
			t.Fatalf("row %d differs", y)
		}
	}
}

func TestGray(t *testing.T) {
	pix := []byte{0, 64, 128, 192, 255, 30}
	var buf bytes.Buffer
	if err := Encode(&buf, pix, 3, 2, 1); err != nil {
		t.Fatal(err)
	}
	img, err := gopng.Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	gray, ok := img.(*image.Gray)
	if !ok {
		t.Fatalf("decoded as %T", img)
	}
	for i, want := range pix {
		if gray.Pix[(i/3)*gray.Stride+i%3] != want {
			t.Fatalf("pixel %d", i)
		}
	}
}

func TestBounds(t *testing.T) {
	if err := Encode(&bytes.Buffer{}, []byte{1, 2}, 1, 1, 3); err != ErrBounds {
		t.Fatalf("want ErrBounds, got %v", err)
	}
}
