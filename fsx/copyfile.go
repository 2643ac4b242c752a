package fsx

import (
	"io/fs"
	"os"
)

// CopyFile copies src to dst. On linux it tries a reflink, then
// copy_file_range, within one filesystem and falls back to an mmap'd copy;
// on darwin it always uses the mmap'd copy. If overwrite is
// false, an existing dst is an error; the copy pool sets it when the
// incremental shortcut (§4.7 step 4) has already been ruled out.
func CopyFile(dst, src string, perm fs.FileMode, overwrite bool) error {
	s, err := os.Open(src)
	if err != nil {
		return &CopyError{"open-src", src, dst, err}
	}
	defer s.Close()

	opts := uint32(0)
	if overwrite {
		opts |= OPT_OVERWRITE
	}

	d, err := NewSafeFile(dst, opts, os.O_CREATE|os.O_RDWR, perm)
	if err != nil {
		return &CopyError{"safefile", src, dst, err}
	}
	defer d.Abort()

	if err = sysCopyFile(d, s); err != nil {
		return err
	}
	if err = d.Close(); err != nil {
		return &CopyError{"close", src, dst, err}
	}
	return nil
}

// CopyFd copies the full contents of an already-open src into an
// already-open dst using the fastest available primitive.
func CopyFd(dst, src *os.File) error {
	if err := copyFd(dst, src); err != nil {
		return err
	}
	return dst.Sync()
}

func fullWrite(d *os.File, b []byte) (int, error) {
	var z int
	n := len(b)
	for n > 0 {
		m, err := d.Write(b)
		if err != nil {
			return z, err
		}
		n -= m
		b = b[m:]
		z += m
	}
	return z, nil
}
