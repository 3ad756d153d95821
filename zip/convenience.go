// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package zip

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

func fallbackAttrs(info fs.FileInfo) uint32 {
	mode := uint32(info.Mode().Perm())
	switch {
	case info.IsDir():
		return (s_IFDIR|mode)<<16 | 0x10
	case info.Mode()&fs.ModeSymlink != 0:
		return (s_IFLNK | mode) << 16
	default:
		return (s_IFREG | mode) << 16
	}
}

// AddFile appends the disk file at diskPath under the given archive name,
// carrying its modification time and Unix attributes. Symlinks store
// their target as the entry data; directories become directory entries.
func (w *Writer) AddFile(name, diskPath string, opts *AddOptions) error {
	info, err := os.Lstat(diskPath)
	if err != nil {
		return w.fail(err)
	}
	var o AddOptions
	if opts != nil {
		o = *opts
	}
	if o.Modified.IsZero() {
		o.Modified = info.ModTime()
	}
	if o.ExternalAttrs == 0 {
		o.ExternalAttrs = statAttrs(diskPath, info)
	}
	switch {
	case info.IsDir():
		return w.AddDir(name, &o)
	case info.Mode()&fs.ModeSymlink != 0:
		targ, err := os.Readlink(diskPath)
		if err != nil {
			return w.fail(err)
		}
		o.Level = 0 // targets are tiny; store them
		return w.AddBytes(name, []byte(targ), &o)
	default:
		f, err := os.Open(diskPath)
		if err != nil {
			return w.fail(err)
		}
		defer f.Close()
		o.SizeHint = info.Size()
		return w.Add(name, f, &o)
	}
}

// CreateFromFiles builds the archive at zipPath from the named disk
// files in one call. Each entry is stored under its base filename, with
// any directory part dropped.
func CreateFromFiles(zipPath string, files []string, level int) error {
	f, err := os.Create(zipPath)
	if err != nil {
		return err
	}
	w := NewWriter(f)
	for _, p := range files {
		if err := w.AddFile(filepath.Base(p), p, &AddOptions{Level: level}); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Finalize(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// securePath joins an entry name under dir, refusing names that would
// escape it.
func securePath(dir, name string) (string, error) {
	name = strings.TrimSuffix(name, "/")
	if !fs.ValidPath(name) {
		return "", ErrFilename
	}
	return filepath.Join(dir, filepath.FromSlash(name)), nil
}

// ExtractAll unpacks every entry of the archive at zipPath into dir,
// restoring directory structure, permissions, symlinks and, for regular
// files, modification times. It stops with ErrMethod at the first regular
// entry whose method is not supported.
func ExtractAll(zipPath, dir string) error {
	z, err := OpenReader(zipPath)
	if err != nil {
		return err
	}
	defer z.Close()

	for _, f := range z.File {
		dest, err := securePath(dir, f.Name)
		if err != nil {
			return err
		}
		mode := f.Mode()
		switch {
		case f.IsDir():
			if err := os.MkdirAll(dest, fs.FileMode(mode&0o777|0o700)); err != nil {
				return err
			}
		case mode&s_IFMT == s_IFLNK:
			targ, err := f.ExtractToMemory()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return err
			}
			os.Remove(dest)
			if err := os.Symlink(string(targ), dest); err != nil {
				return err
			}
		default:
			if !f.IsSupported() {
				return ErrMethod
			}
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fs.FileMode(mode&0o777|0o600))
			if err != nil {
				return err
			}
			if err := f.ExtractToWriter(out); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
			os.Chtimes(dest, f.Modified, f.Modified)
		}
	}
	return nil
}

// AddToArchiveInPlace opens or creates the archive at zipPath, appends
// one entry from memory, and finalizes again, truncating any leftover
// tail. The append overwrites the old central directory.
func AddToArchiveInPlace(zipPath, name string, data []byte, opts *AddOptions) error {
	f, err := os.OpenFile(zipPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	inf, err := f.Stat()
	if err != nil {
		return err
	}

	var w *Writer
	if inf.Size() == 0 {
		w = NewWriter(f)
	} else {
		z, err := NewReader(f, inf.Size())
		if err != nil {
			return err
		}
		w, err = AppendWriter(z, f)
		if err != nil {
			return err
		}
	}
	if err := w.AddBytes(name, data, opts); err != nil {
		return err
	}
	return w.Finalize()
}

// DeleteEntries rewrites the archive at zipPath without the entries whose
// names match any of the doublestar patterns, moving the keepers down in
// place and truncating the tail. Returns how many entries were removed.
func DeleteEntries(zipPath string, patterns ...string) (int, error) {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return 0, doublestar.ErrBadPattern
		}
	}
	f, err := os.OpenFile(zipPath, os.O_RDWR, 0)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	inf, err := f.Stat()
	if err != nil {
		return 0, err
	}
	z, err := NewReader(f, inf.Size())
	if err != nil {
		return 0, err
	}

	var keep []*File
	deleted := 0
	for _, e := range z.File {
		match := false
		for _, p := range patterns {
			if ok, _ := doublestar.Match(p, strings.TrimSuffix(e.Name, "/")); ok {
				match = true
				break
			}
		}
		if match {
			deleted++
		} else {
			keep = append(keep, e)
		}
	}
	if deleted == 0 {
		return 0, nil
	}

	// Keepers are cloned in file order, so data only ever moves toward
	// the front and the in-place copy never overtakes its source.
	sort.Slice(keep, func(i, j int) bool { return keep[i].headerOffset < keep[j].headerOffset })

	w := NewWriter(f)
	for _, e := range keep {
		if err := w.Copy(e); err != nil {
			return deleted, err
		}
	}
	if err := w.Finalize(); err != nil {
		return deleted, err
	}
	return deleted, nil
}

// ReadFile extracts one named entry from the archive at zipPath.
func ReadFile(zipPath, name string) ([]byte, error) {
	z, err := OpenReader(zipPath)
	if err != nil {
		return nil, err
	}
	defer z.Close()
	i, ok := z.Locate(name, "", 0)
	if !ok {
		return nil, ErrNotFound
	}
	return z.File[i].ExtractToMemory()
}
