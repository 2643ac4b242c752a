package fsx

import (
	"fmt"
	"os"
)

// PreserveTimes copies src's atime/mtime onto dst. Adapted from the
// unixish utimes() helper; os.Chtimes is portable so no platform split is
// needed here the way Stat/Lstat need one.
func PreserveTimes(dst string, src *Info) error {
	if err := os.Chtimes(dst, src.Atim, src.Mtim); err != nil {
		return fmt.Errorf("fsx: utimes %s: %w", dst, err)
	}
	return nil
}
