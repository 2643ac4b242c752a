//go:build linux

package fsx

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// _ioChunkSize bounds a single copy_file_range(2) transfer.
const _ioChunkSize int = 256 * 1024

// sysCopyFile streams src into the backing file of d, preferring a
// same-filesystem reflink/copy_file_range and falling back to an mmap'd
// copy across filesystems.
func sysCopyFile(d *SafeFile, s *os.File) error {
	si, err := Fstat(s)
	if err != nil {
		return &CopyError{"fstat-src", s.Name(), d.Name(), err}
	}
	di, err := Fstat(d.File)
	if err != nil {
		return &CopyError{"fstat-dst", s.Name(), d.Name(), err}
	}

	if di.IsSameFS(si) {
		return copyFd(d.File, s)
	}
	return copyViaMmap(d.File, s)
}

func copyFd(dst, src *os.File) error {
	d := int(dst.Fd())
	s := int(src.Fd())

	if err := unix.IoctlFileClone(d, s); err == nil {
		return nil
	} else if !errAny(err, syscall.ENOTSUP, syscall.ENOSYS, syscall.EXDEV) {
		return &CopyError{"clone", src.Name(), dst.Name(), err}
	}

	st, err := src.Stat()
	if err != nil {
		return &CopyError{"stat-src", src.Name(), dst.Name(), err}
	}

	var roff, woff int64
	sz := st.Size()
	for sz > 0 {
		n := int(sz)
		if n > _ioChunkSize {
			n = _ioChunkSize
		}
		m, err := unix.CopyFileRange(s, &roff, d, &woff, n, 0)
		if err != nil {
			if errAny(err, syscall.EXDEV, syscall.ENOSYS) {
				return copyViaMmap(dst, src)
			}
			return &CopyError{"copy_file_range", src.Name(), dst.Name(), err}
		}
		if m == 0 {
			return &CopyError{"copy_file_range", src.Name(), dst.Name(),
				fmt.Errorf("zero sized transfer at off %d", roff)}
		}
		sz -= int64(m)
		roff += int64(m)
		woff += int64(m)
	}

	if _, err = dst.Seek(0, os.SEEK_SET); err != nil {
		return &CopyError{"seek", src.Name(), dst.Name(), err}
	}
	return nil
}

// neutralizeUmask clears the process umask for the duration of a directory
// materialization chain so the caller-requested mode bits (copied from the
// input tree) are honored verbatim, then restores the prior umask. This is
// the §4.7 step-5 umask neutralization.
func neutralizeUmask() func() {
	old := unix.Umask(0)
	return func() { unix.Umask(old) }
}

// sameFileID reports whether path (following symlinks) has the given
// (dev, ino) identity.
func sameFileID(path string, dev, ino uint64) bool {
	var st syscall.Stat_t
	if err := syscall.Stat(path, &st); err != nil {
		return false
	}
	return uint64(st.Dev) == dev && st.Ino == ino
}

// fileID returns the (dev, ino) identity of path, or ok=false if it
// cannot be stat'd.
func fileID(path string) (dev, ino uint64, ok bool) {
	var st syscall.Stat_t
	if err := syscall.Stat(path, &st); err != nil {
		return 0, 0, false
	}
	return uint64(st.Dev), st.Ino, true
}
