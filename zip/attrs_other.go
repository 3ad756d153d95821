// Copyright (c) Elliot Nunn
// Licensed under the MIT license

//go:build !unix

package zip

import "io/fs"

func statAttrs(path string, info fs.FileInfo) uint32 {
	return fallbackAttrs(info)
}
