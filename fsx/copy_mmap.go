//go:build linux || darwin

package fsx

import (
	"os"

	"github.com/opencoff/go-mmap"
)

// copyViaMmap copies the full content of src into dst by memory-mapping
// src and streaming the mapped pages into dst. This is the fallback used
// whenever a same-filesystem reflink/CoW primitive is unavailable — most
// commonly because the destination mirror lives on a different filesystem
// than the source, which is the common case for a backup destination.
func copyViaMmap(dst, src *os.File) error {
	_, err := mmap.Reader(src, func(b []byte) error {
		_, err := fullWrite(dst, b)
		return err
	})
	if err != nil {
		return &CopyError{"mmap-reader", src.Name(), dst.Name(), err}
	}

	if _, err = dst.Seek(0, os.SEEK_SET); err != nil {
		return &CopyError{"seek-mmap", src.Name(), dst.Name(), err}
	}
	if err = dst.Sync(); err != nil {
		return &CopyError{"dst-sync", src.Name(), dst.Name(), err}
	}
	return nil
}
