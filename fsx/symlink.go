//go:build linux || darwin

package fsx

import (
	"fmt"
	"os"
)

// CloneSymlink recreates the symlink src at dst with the same target,
// skipping the work if an equivalent link already exists at dst. Returns
// (created, error): created is false when dst already pointed at the same
// target (the copy pool's incremental shortcut for symlinks, §4.7 step 6).
func CloneSymlink(dst, src string) (bool, error) {
	target, err := os.Readlink(src)
	if err != nil {
		return false, &CopyError{"readlink", src, dst, err}
	}

	if existing, err := os.Readlink(dst); err == nil {
		if existing == target {
			return false, nil
		}
		if err := os.Remove(dst); err != nil {
			return false, &CopyError{"rm-stale-link", src, dst, err}
		}
	}

	if err := os.Symlink(target, dst); err != nil {
		return false, &CopyError{"symlink", src, dst, err}
	}
	return true, nil
}

// MkdirMode creates dir (and any missing parents) with perm, one path
// segment at a time, with the process umask neutralized so perm is
// honored exactly as requested. Existing directories along the path are
// left untouched.
func MkdirMode(dir string, perm os.FileMode) error {
	restore := neutralizeUmask()
	defer restore()

	if st, err := os.Stat(dir); err == nil {
		if !st.IsDir() {
			return fmt.Errorf("fsx: %s exists and is not a directory", dir)
		}
		return nil
	}

	return os.MkdirAll(dir, perm)
}
