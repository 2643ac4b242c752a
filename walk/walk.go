// walk.go - concurrent fs-walker
//
// (c) 2022- Sudhi Herle <sudhi@herle.net>
//
// Licensing Terms: GPLv2
//
// If you need a commercial license for this work, please contact
// the author.
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

// Package walk implements the Tree Walker Pool: a bounded work queue of
// directories to enumerate, drained by a fixed worker pool that folds
// its emissions into a tree.Tree. The queue is closed once every queued
// directory has been enumerated; workers return on that close (or on an
// idle dequeue timeout), and Run returns once every worker has returned.
package walk

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/opencoff/fiobackup/bus"
	"github.com/opencoff/fiobackup/stats"
	"github.com/opencoff/fiobackup/tree"
	"github.com/opencoff/go-logger"
)

const dequeueTimeout = 2 * time.Second

// Job is one directory to enumerate: its leaf-relative parent key and the
// absolute root that key resolves against.
type Job struct {
	RelParent string
	Root      string
}

// Options configures one walk run.
type Options struct {
	FollowSymlinks bool

	// Ignore holds normalized absolute paths to skip outright.
	Ignore map[string]bool

	Workers int
	Bus     *bus.Bus
	Stats   *stats.Registry
	Log     logger.Logger

	// Seen guards against symlink cycles when FollowSymlinks is true; a
	// nil Seen disables the guard.
	Seen *InodeGuard
}

type workQueue struct {
	ch chan Job
	wg sync.WaitGroup
}

func (q *workQueue) push(j Job) {
	q.wg.Add(1)
	q.ch <- j
}

func (q *workQueue) done() {
	q.wg.Done()
}

// Run seeds one Job per root and enumerates every directory reachable
// from them, folding emissions into t. Run blocks until the queue drains
// and every worker has exited (either from idle timeout or bus
// cancellation).
func Run(t *tree.Tree, roots []Job, opts Options) {
	n := opts.Workers
	if n < 1 {
		n = 1
	}
	if len(roots) > 0 && n > len(roots) {
		n = len(roots)
	}

	q := &workQueue{ch: make(chan Job, 10*n)}
	for _, r := range roots {
		q.push(r)
	}

	go func() {
		q.wg.Wait()
		close(q.ch)
	}()

	var workers sync.WaitGroup
	for i := 0; i < n; i++ {
		workers.Add(1)
		opts.Bus.Enter()
		go func() {
			defer workers.Done()
			defer opts.Bus.Leave()
			runWorker(t, q, opts)
		}()
	}
	workers.Wait()
}

func runWorker(t *tree.Tree, q *workQueue, opts Options) {
	for {
		if opts.Bus.ShouldStop() {
			return
		}

		select {
		case j, ok := <-q.ch:
			if !ok {
				return
			}
			enumerate(t, j, q, opts)
			q.done()
		case <-time.After(dequeueTimeout):
			return
		}
	}
}

// enumerate reads one directory's children and classifies each (spec.md
// §4.4). Errors reading the directory itself or stat'ing one child are
// logged and do not terminate the worker.
func enumerate(t *tree.Tree, j Job, q *workQueue, opts Options) {
	dirAbs := tree.Resolve(j.Root, j.RelParent)

	f, err := os.Open(dirAbs)
	if err != nil {
		logWarn(opts, "open %s: %s", dirAbs, err)
		return
	}
	names, err := f.Readdirnames(-1)
	f.Close()
	if err != nil {
		logWarn(opts, "readdir %s: %s", dirAbs, err)
		return
	}

	for _, name := range names {
		childAbs := filepath.Join(dirAbs, name)
		if opts.Ignore[childAbs] {
			continue
		}
		classifyChild(t, j, name, childAbs, q, opts)
	}
}

func classifyChild(t *tree.Tree, j Job, name, childAbs string, q *workQueue, opts Options) {
	childRel := filepath.Join(j.RelParent, name)

	lst, err := os.Lstat(childAbs)
	if err != nil {
		logWarn(opts, "lstat %s: %s", childAbs, err)
		return
	}

	isSymlink := lst.Mode()&os.ModeSymlink != 0

	switch {
	case isSymlink && !opts.FollowSymlinks:
		t.Store(childRel, tree.Entry{Root: j.Root, Classification: tree.SYMLINK})
		opts.Stats.SymlinksObserved.Add(1)

	case isSymlink && opts.FollowSymlinks:
		followSymlink(t, j, childRel, childAbs, q, opts)

	case lst.Mode().IsRegular():
		t.Store(childRel, tree.Entry{Root: j.Root, Classification: tree.FILE})
		opts.Stats.FilesObserved.Add(1)

	case lst.IsDir():
		storeDirAndDescend(t, j, childRel, childAbs, q, opts)

	default:
		t.Store(childRel, tree.Entry{Root: j.Root, Classification: tree.UNKNOWN})
	}
}

func followSymlink(t *tree.Tree, j Job, childRel, childAbs string, q *workQueue, opts Options) {
	target, err := os.Stat(childAbs)
	if err != nil {
		logWarn(opts, "stat symlink target %s: %s", childAbs, err)
		return
	}
	if !target.IsDir() {
		t.Store(childRel, tree.Entry{Root: j.Root, Classification: tree.FILE})
		opts.Stats.FilesObserved.Add(1)
		return
	}
	if opts.Seen != nil && !opts.Seen.Enter(childAbs) {
		return // cycle: this inode has already been descended into
	}
	storeDirAndDescend(t, j, childRel, childAbs, q, opts)
}

func storeDirAndDescend(t *tree.Tree, j Job, childRel, childAbs string, q *workQueue, opts Options) {
	empty := probeEmpty(childAbs)
	t.Store(childRel, tree.Entry{Root: j.Root, Classification: tree.DIR, Empty: empty})
	opts.Stats.DirsObserved.Add(1)
	if !empty {
		q.push(Job{RelParent: childRel, Root: j.Root})
	}
}

// probeEmpty opens dir and attempts to read a single entry name. A
// failure to open or read is treated as non-empty (spec.md §4.4).
func probeEmpty(dir string) bool {
	f, err := os.Open(dir)
	if err != nil {
		return false
	}
	defer f.Close()

	names, err := f.Readdirnames(1)
	if err != nil {
		return false
	}
	return len(names) == 0
}

func logWarn(opts Options, format string, args ...any) {
	if opts.Log != nil {
		opts.Log.Warn("walk: "+format, args...)
	}
}

// InodeGuard tracks device/inode pairs already descended into, used only
// when follow_symlinks=true to break symlink cycles (this is a
// supplement beyond the base walker: the base spec does not require
// symlink-following to be cycle-safe, but enumerating a live filesystem
// with follow_symlinks=true and no guard can loop forever on a
// self-referential link).
type InodeGuard struct {
	mu   sync.Mutex
	seen map[[2]uint64]bool
}

// NewInodeGuard returns a ready-to-use guard.
func NewInodeGuard() *InodeGuard {
	return &InodeGuard{seen: make(map[[2]uint64]bool)}
}

// Enter records path's identity and reports whether this is the first
// time it has been seen. When path's identity cannot be read, Enter
// reports true (the guard degrades to a no-op rather than refusing to
// walk).
func (g *InodeGuard) Enter(path string) bool {
	dev, ino, ok := fileIdentity(path)
	if !ok {
		return true
	}
	key := [2]uint64{dev, ino}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seen[key] {
		return false
	}
	g.seen[key] = true
	return true
}
