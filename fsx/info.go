// Package fsx provides the low level filesystem primitives the backup
// engine builds on: normalized stat/lstat metadata, extended attribute
// access, safe (rename-on-close) file creation and an efficient file copy
// that prefers copy-on-write/reflink when the platform and filesystem
// support it.
//
// fsx deliberately knows nothing about backup semantics (digests, trees,
// manifests); it is the same kind of OS-glue layer the rest of the engine
// is built on top of.
package fsx

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Info is a normalized file/dir metadata record. It satisfies fs.FileInfo
// and additionally carries the device/inode identity and extended
// attributes needed by the tree walker and the copy pool.
type Info struct {
	Ino  uint64
	Siz  int64
	Dev  uint64
	Rdev uint64

	Mod   fs.FileMode
	Uid   uint32
	Gid   uint32
	Nlink uint32

	Atim time.Time
	Mtim time.Time
	Ctim time.Time

	path  string
	Xattr Xattr
}

var _ fs.FileInfo = &Info{}

// Stat is like os.Stat but returns an *Info with xattr populated.
func Stat(nm string) (*Info, error) {
	var ii Info
	if err := Statm(nm, &ii); err != nil {
		return nil, err
	}
	return &ii, nil
}

// Statm is like Stat but fills caller supplied memory.
func Statm(nm string, fi *Info) error {
	return statm(nm, fi, false)
}

// Lstat is like os.Lstat but returns an *Info with xattr populated. It does
// not follow a terminal symlink.
func Lstat(nm string) (*Info, error) {
	var ii Info
	if err := Lstatm(nm, &ii); err != nil {
		return nil, err
	}
	return &ii, nil
}

// Lstatm is like Lstat but fills caller supplied memory.
func Lstatm(nm string, fi *Info) error {
	return statm(nm, fi, true)
}

// Fstat is like os.File.Stat but returns an *Info.
func Fstat(fd *os.File) (*Info, error) {
	var ii Info
	if err := Fstatm(fd, &ii); err != nil {
		return nil, err
	}
	return &ii, nil
}

// Fstatm is like Fstat but fills caller supplied memory.
func Fstatm(fd *os.File, fi *Info) error {
	return statm(fd.Name(), fi, false)
}

// Clone returns a deep copy of ii.
func (ii *Info) Clone() *Info {
	jj := new(Info)
	*jj = *ii
	if ii.Xattr != nil {
		jj.Xattr = make(Xattr, len(ii.Xattr))
		for k, v := range ii.Xattr {
			jj.Xattr[k] = v
		}
	}
	return jj
}

func (ii *Info) String() string {
	return fmt.Sprintf("%s: %d bytes; links=%d; mtime=%s; mode=%s",
		ii.Name(), ii.Siz, ii.Nlink, ii.Mtim.UTC(), ii.Mode())
}

// Path returns the path this Info was populated from.
func (ii *Info) Path() string { return ii.path }

// SetPath overrides the path recorded in this Info.
func (ii *Info) SetPath(p string) { ii.path = p }

// Name satisfies fs.FileInfo: the basename of the path.
func (ii *Info) Name() string { return filepath.Base(ii.path) }

// Size satisfies fs.FileInfo.
func (ii *Info) Size() int64 { return ii.Siz }

// Mode satisfies fs.FileInfo.
func (ii *Info) Mode() fs.FileMode { return ii.Mod }

// ModTime satisfies fs.FileInfo.
func (ii *Info) ModTime() time.Time { return ii.Mtim }

// IsDir satisfies fs.FileInfo.
func (ii *Info) IsDir() bool { return ii.Mod.IsDir() }

// IsRegular reports whether this entry is a plain file.
func (ii *Info) IsRegular() bool { return ii.Mod.IsRegular() }

// IsSymlink reports whether this entry is a symbolic link.
func (ii *Info) IsSymlink() bool { return ii.Mod&fs.ModeSymlink != 0 }

// IsSameFS reports whether a and b live on the same filesystem/device.
func (a *Info) IsSameFS(b *Info) bool {
	return a.Dev == b.Dev && a.Rdev == b.Rdev
}

// Sys satisfies fs.FileInfo.
func (ii *Info) Sys() any { return ii }
