// Package reconcile implements the mirror-reconciliation algorithm: the
// Deletion Pool (spec.md §4.6) and the Copy Pool (spec.md §4.7).
package reconcile

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/opencoff/fiobackup/bus"
	"github.com/opencoff/fiobackup/stats"
	"github.com/opencoff/fiobackup/tree"
	"github.com/opencoff/go-logger"
)

const idleTimeout = 2 * time.Second

// DeleteItem is one mirror-side entry considered for removal.
type DeleteItem struct {
	Classification tree.Classification
	RelPath        string
	Root           string
	Empty          bool // meaningful only when Classification == tree.DIR
}

// DeleteOptions configures one deletion pool run.
type DeleteOptions struct {
	Workers       int
	Bus           *bus.Bus
	Stats         *stats.Registry
	Log           logger.Logger
	InputTree     *tree.Tree
	SkippedInputs [][]string // segment lists, from tree.Validated.SkippedPaths
	DeleteSkipped bool
}

// RunDeletionPool drains items and applies the keep/delete policy of
// spec.md §4.6 to each.
func RunDeletionPool(items <-chan DeleteItem, opts DeleteOptions) {
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
			deleteWorker(items, opts)
		}()
	}
	wg.Wait()
}

func deleteWorker(items <-chan DeleteItem, opts DeleteOptions) {
	for {
		if opts.Bus.ShouldStop() {
			return
		}
		select {
		case it, ok := <-items:
			if !ok {
				return
			}
			applyDeletePolicy(it, opts)
		case <-time.After(idleTimeout):
			return
		}
	}
}

func applyDeletePolicy(it DeleteItem, opts DeleteOptions) {
	abs := tree.Resolve(it.Root, it.RelPath)

	if _, err := os.Lstat(abs); err != nil {
		return // already gone
	}

	if _, present := opts.InputTree.Partition(it.Classification).Load(it.RelPath); present {
		return // still tracked on the input side: keep
	}

	underSkipped := isUnderSkipped(tree.SplitSegments(it.RelPath), opts.SkippedInputs)
	if underSkipped && !opts.DeleteSkipped {
		return
	}

	if err := deleteEntry(abs, it); err != nil {
		opts.Stats.DeleteError.Add(1)
		if opts.Log != nil {
			opts.Log.Warn("delete: %s: %s", abs, err)
		}
		return
	}
	opts.Stats.DeleteOK.Add(1)
}

func deleteEntry(abs string, it DeleteItem) error {
	switch it.Classification {
	case tree.SYMLINK:
		return os.Remove(abs)
	case tree.FILE:
		return os.Remove(abs)
	case tree.DIR:
		if it.Empty {
			return os.Remove(abs)
		}
		if err := os.RemoveAll(abs); err != nil {
			return err
		}
		// best-effort; ENOENT after RemoveAll is fine
		if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	default:
		if err := os.Remove(abs); err == nil {
			return nil
		}
		if err := os.RemoveAll(abs); err != nil {
			return err
		}
		return nil
	}
}

// isUnderSkipped implements spec.md §4.6's predicate: childSegs is
// considered a continuation of some skipped path if that skipped path's
// segments are childSegs' leading segments (see isSegmentPrefix), i.e.
// childSegs names the skipped path itself or something nested under it.
func isUnderSkipped(childSegs []string, skipped [][]string) bool {
	for _, skip := range skipped {
		if isSegmentPrefix(skip, childSegs) {
			return true
		}
	}
	return false
}

// isSegmentPrefix reports whether parent's segments are child's leading
// segments, i.e. child names parent itself or something nested under it.
// Both are leaf-relative keys rooted at the same entry, so the match must
// anchor at position 0: a later occurrence of parent's segments deeper in
// child's path is a different, unrelated entry, not a descendant of
// parent.
func isSegmentPrefix(parent, child []string) bool {
	if len(parent) == 0 || len(parent) > len(child) {
		return false
	}
	return segmentsEqual(parent, child[:len(parent)])
}

func segmentsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// joinSegments is a small helper kept for debugging/log messages.
func joinSegments(segs []string) string {
	return strings.Join(segs, "/")
}
