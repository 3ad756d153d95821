// Copyright (c) Elliot Nunn
// Licensed under the MIT license

//go:build unix

package zip

import (
	"io/fs"

	"golang.org/x/sys/unix"
)

// statAttrs recovers the external-attribute word for a disk file the
// way Info-ZIP records it: Unix mode in the high
// 16 bits, DOS bits in the low byte.
func statAttrs(path string, info fs.FileInfo) uint32 {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err == nil {
		attrs := uint32(st.Mode) << 16
		if st.Mode&unix.S_IFMT == unix.S_IFDIR {
			attrs |= 0x10
		}
		if st.Mode&0o200 == 0 {
			attrs |= 0x01 // DOS read-only
		}
		return attrs
	}
	return fallbackAttrs(info)
}
