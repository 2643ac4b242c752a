package reconcile

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/opencoff/fiobackup/bus"
	"github.com/opencoff/fiobackup/fsx"
	"github.com/opencoff/fiobackup/stats"
	"github.com/opencoff/fiobackup/tree"
	"github.com/opencoff/go-logger"
)

// CopyItem is one input-side FILE or SYMLINK entry to materialize on the
// mirror.
type CopyItem struct {
	RelPath        string
	Root           string
	Classification tree.Classification
}

// CopyOptions configures one copy pool run.
type CopyOptions struct {
	Workers        int
	Bus            *bus.Bus
	Stats          *stats.Registry
	Log            logger.Logger
	DestRoot       string
	DigestsIn      *tree.DigestMap
	DigestsOut     *tree.DigestMap
	InputDirs      xsyncDirLookup // permission modes for directory materialization
	FollowSymlinks bool
}

// xsyncDirLookup is the minimal read interface reconcile needs out of the
// input tree's DIR partition; kept as its own type so callers can pass
// tree.Tree.Dirs directly without reconcile importing xsync itself.
type xsyncDirLookup = interface {
	Load(key string) (tree.Entry, bool)
}

// ErrNoInputDigest is returned when a FILE copy item has no precomputed
// input digest: copy workers require one (spec.md §4.7 step 2).
type ErrNoInputDigest struct{ RelPath string }

func (e *ErrNoInputDigest) Error() string {
	return fmt.Sprintf("copy: %s: no precomputed input digest", e.RelPath)
}

// RunCopyPool drains items and materializes each on the mirror under
// opts.DestRoot.
func RunCopyPool(items <-chan CopyItem, opts CopyOptions) {
	n := opts.Workers
	if n < 1 {
		n = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		opts.Bus.Enter()
		go func() {
			defer wg.Done()
			defer opts.Bus.Leave()
			copyWorker(items, opts)
		}()
	}
	wg.Wait()
}

func copyWorker(items <-chan CopyItem, opts CopyOptions) {
	for {
		if opts.Bus.ShouldStop() {
			return
		}
		select {
		case it, ok := <-items:
			if !ok {
				return
			}
			if err := copyOne(it, opts); err != nil {
				opts.Stats.CopyError.Add(1)
				if opts.Log != nil {
					opts.Log.Warn("copy: %s: %s", it.RelPath, err)
				}
			}
		case <-time.After(idleTimeout):
			return
		}
	}
}

func copyOne(it CopyItem, opts CopyOptions) error {
	srcAbs := tree.Resolve(it.Root, it.RelPath)
	if _, err := os.Lstat(srcAbs); err != nil {
		return nil // source vanished since the tree walk: not an error
	}

	dstAbs := filepath.Join(opts.DestRoot, it.RelPath)

	// Symlinks are never digested (stage 2 hashes FILE entries only);
	// CloneSymlink does its own unchanged-target check instead.
	if it.Classification == tree.SYMLINK {
		if err := materializeParents(filepath.Dir(dstAbs), it.Root, opts); err != nil {
			return err
		}
		return copySymlink(srcAbs, dstAbs, opts)
	}

	inDigest, haveIn := opts.DigestsIn.Load(it.RelPath)
	if !haveIn {
		return &ErrNoInputDigest{RelPath: it.RelPath}
	}

	outDigest, haveOut := opts.DigestsOut.Load(it.RelPath)
	if _, statErr := os.Lstat(dstAbs); statErr == nil && haveOut && outDigest.DigestHex == inDigest.DigestHex {
		return nil // incremental shortcut: unchanged
	}

	if err := materializeParents(filepath.Dir(dstAbs), it.Root, opts); err != nil {
		return err
	}

	return copyRegular(srcAbs, dstAbs, opts)
}

// materializeParents ensures dstDir and every missing ancestor under
// opts.DestRoot exists, carrying permission modes from the input-side
// directory sub-tree where known (spec.md §4.7 step 5).
func materializeParents(dstDir, srcRoot string, opts CopyOptions) error {
	rel, err := filepath.Rel(opts.DestRoot, dstDir)
	if err != nil || rel == "." {
		return nil
	}

	segs := tree.SplitSegments(rel)
	cur := opts.DestRoot
	curRel := ""
	for _, seg := range segs {
		cur = filepath.Join(cur, seg)
		if curRel == "" {
			curRel = seg
		} else {
			curRel = filepath.Join(curRel, seg)
		}

		if _, err := os.Stat(cur); err == nil {
			continue
		}

		mode := os.FileMode(0o755)
		if opts.InputDirs != nil {
			if e, ok := opts.InputDirs.Load(curRel); ok {
				if fi, statErr := os.Stat(tree.Resolve(e.Root, curRel)); statErr == nil {
					mode = fi.Mode().Perm()
				}
			}
		}

		if err := fsx.MkdirMode(cur, mode); err != nil {
			opts.Stats.DirsCreatedError.Add(1)
			return err
		}
		opts.Stats.DirsCreatedOK.Add(1)
	}
	return nil
}

func copySymlink(srcAbs, dstAbs string, opts CopyOptions) error {
	if opts.FollowSymlinks {
		return copyRegular(srcAbs, dstAbs, opts)
	}
	created, err := fsx.CloneSymlink(dstAbs, srcAbs)
	if err != nil {
		return err
	}
	if created {
		opts.Stats.CopyOK.Add(1)
		if x, err := fsx.LgetXattr(srcAbs); err == nil && len(x) > 0 {
			_ = fsx.LreplaceXattr(dstAbs, x) // best-effort, not counted
		}
	}
	return nil
}

func copyRegular(srcAbs, dstAbs string, opts CopyOptions) error {
	fi, err := os.Stat(srcAbs)
	if err != nil {
		return err
	}
	if err := fsx.CopyFile(dstAbs, srcAbs, fi.Mode().Perm(), true); err != nil {
		return err
	}
	opts.Stats.CopyOK.Add(1)
	opts.Stats.BytesCopied.Add(fi.Size())

	if srcInfo, err := fsx.Stat(srcAbs); err == nil {
		_ = fsx.PreserveTimes(dstAbs, srcInfo) // best-effort, not counted
		if len(srcInfo.Xattr) > 0 {
			_ = fsx.ReplaceXattr(dstAbs, srcInfo.Xattr) // best-effort, not counted
		}
	}
	return nil
}
