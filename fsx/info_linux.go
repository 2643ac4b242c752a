//go:build linux

package fsx

import (
	"io/fs"
	"syscall"
)

func statm(nm string, fi *Info, lstat bool) error {
	var st syscall.Stat_t
	var err error

	if lstat {
		err = syscall.Lstat(nm, &st)
	} else {
		err = syscall.Stat(nm, &st)
	}
	if err != nil {
		return &os_PathError{Op: "stat", Path: nm, Err: err}
	}

	var x Xattr
	if lstat {
		x, err = LgetXattr(nm)
	} else {
		x, err = GetXattr(nm)
	}
	if err != nil {
		// extended attributes are best-effort: unsupported filesystems
		// (tmpfs without xattr, some FUSE mounts) must not fail a stat.
		x = nil
	}

	makeInfo(fi, nm, &st, x)
	return nil
}

func makeInfo(fi *Info, nm string, st *syscall.Stat_t, x Xattr) {
	*fi = Info{
		Ino:  st.Ino,
		Siz:  st.Size,
		Dev:  uint64(st.Dev),
		Rdev: uint64(st.Rdev),

		Mod:   fs.FileMode(st.Mode & 0777),
		Uid:   st.Uid,
		Gid:   st.Gid,
		Nlink: uint32(st.Nlink),

		Atim: timespec(st.Atim),
		Mtim: timespec(st.Mtim),
		Ctim: timespec(st.Ctim),

		Xattr: x,
	}
	fi.SetPath(nm)

	switch st.Mode & syscall.S_IFMT {
	case syscall.S_IFBLK:
		fi.Mod |= fs.ModeDevice
	case syscall.S_IFCHR:
		fi.Mod |= fs.ModeDevice | fs.ModeCharDevice
	case syscall.S_IFDIR:
		fi.Mod |= fs.ModeDir
	case syscall.S_IFIFO:
		fi.Mod |= fs.ModeNamedPipe
	case syscall.S_IFLNK:
		fi.Mod |= fs.ModeSymlink
	case syscall.S_IFSOCK:
		fi.Mod |= fs.ModeSocket
	}
	if st.Mode&syscall.S_ISGID != 0 {
		fi.Mod |= fs.ModeSetgid
	}
	if st.Mode&syscall.S_ISUID != 0 {
		fi.Mod |= fs.ModeSetuid
	}
	if st.Mode&syscall.S_ISVTX != 0 {
		fi.Mod |= fs.ModeSticky
	}
}
