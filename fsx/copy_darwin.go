//go:build darwin

package fsx

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// sysCopyFile streams src into the backing file of d with an mmap'd copy,
// on the same filesystem or across filesystems; clonefile(2) is not used.
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
	return copyViaMmap(dst, src)
}

func neutralizeUmask() func() {
	old := unix.Umask(0)
	return func() { unix.Umask(old) }
}

func sameFileID(path string, dev, ino uint64) bool {
	var st syscall.Stat_t
	if err := syscall.Stat(path, &st); err != nil {
		return false
	}
	return uint64(st.Dev) == dev && st.Ino == ino
}

func fileID(path string) (dev, ino uint64, ok bool) {
	var st syscall.Stat_t
	if err := syscall.Stat(path, &st); err != nil {
		return 0, 0, false
	}
	return uint64(st.Dev), st.Ino, true
}
