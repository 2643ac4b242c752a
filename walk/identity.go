package walk

import "github.com/opencoff/fiobackup/fsx"

// fileIdentity resolves path's device/inode pair via fsx (which has stat
// shims for linux and darwin only); if the lstat fails, ok is false and
// the caller treats identity as unavailable.
func fileIdentity(path string) (dev, ino uint64, ok bool) {
	fi, err := fsx.Lstat(path)
	if err != nil {
		return 0, 0, false
	}
	return fi.Dev, fi.Ino, true
}
