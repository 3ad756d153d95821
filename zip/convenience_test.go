// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package zip

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestDiskLifecycle(t *testing.T) {
	dir := t.TempDir()

	// lay out a little tree
	os.MkdirAll(filepath.Join(dir, "src", "sub"), 0o755)
	files := map[string][]byte{
		"src/hello.txt":   []byte("hello from disk"),
		"src/sub/deep.md": bytes.Repeat([]byte("# deep\n"), 1000),
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, filepath.FromSlash(name)), data, 0o640); err != nil {
			t.Fatal(err)
		}
	}

	// create
	zipPath := filepath.Join(dir, "t.zip")
	err := CreateFromFiles(zipPath, []string{
		filepath.Join(dir, "src", "hello.txt"),
		filepath.Join(dir, "src", "sub", "deep.md"),
	}, 6)
	if err != nil {
		t.Fatal(err)
	}

	z, err := OpenReader(zipPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(z.File) != 2 {
		t.Fatalf("%d entries", len(z.File))
	}
	if err := z.Validate(0); err != nil {
		t.Fatal(err)
	}
	var helloName string
	for _, f := range z.File {
		if filepath.Base(f.Name) == "hello.txt" {
			helloName = f.Name
			if f.Mode()&0o777 != 0o640 {
				t.Errorf("hello.txt mode %o", f.Mode()&0o777)
			}
		}
	}
	z.Close()

	// append in place
	if err := AddToArchiveInPlace(zipPath, "added/by/append.txt", []byte("appended"), &AddOptions{Level: 6}); err != nil {
		t.Fatal(err)
	}
	got, err := ReadFile(zipPath, "added/by/append.txt")
	if err != nil || string(got) != "appended" {
		t.Fatalf("%q %v", got, err)
	}
	got, err = ReadFile(zipPath, helloName)
	if err != nil || string(got) != "hello from disk" {
		t.Fatalf("original entry after append: %q %v", got, err)
	}

	// extract everything
	outDir := filepath.Join(dir, "out")
	if err := ExtractAll(zipPath, outDir); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(outDir, "added", "by", "append.txt"))
	if err != nil || string(data) != "appended" {
		t.Fatalf("%q %v", data, err)
	}

	// delete by pattern, in place
	n, err := DeleteEntries(zipPath, "**/deep.md")
	if err != nil || n != 1 {
		t.Fatalf("deleted %d, %v", n, err)
	}
	z2, err := OpenReader(zipPath)
	if err != nil {
		t.Fatal(err)
	}
	defer z2.Close()
	if len(z2.File) != 2 {
		t.Fatalf("%d entries after delete", len(z2.File))
	}
	if _, ok := z2.Locate("deep.md", "", 0); ok {
		t.Fatal("deleted entry still present")
	}
	if err := z2.Validate(0); err != nil {
		t.Fatalf("archive fails validation after delete: %v", err)
	}
}

func TestExtractAllRefusesEscape(t *testing.T) {
	dir := t.TempDir()
	buf := NewBuffer(nil)
	w := NewWriter(buf)
	// forge an escaping name by patching the raw bytes of a valid archive
	if err := w.AddBytes("ok.txt", []byte("fine"), nil); err != nil {
		t.Fatal(err)
	}
	if err := w.Finalize(); err != nil {
		t.Fatal(err)
	}
	zipPath := filepath.Join(dir, "esc.zip")
	raw := bytes.Replace(buf.Bytes(), []byte("ok.txt"), []byte("../pwn"), 2)
	if err := os.WriteFile(zipPath, raw, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ExtractAll(zipPath, filepath.Join(dir, "out")); err == nil {
		t.Fatal("path escape extracted without complaint")
	}
	if _, err := os.Stat(filepath.Join(dir, "pwn")); err == nil {
		t.Fatal("escape file was created")
	}
}
