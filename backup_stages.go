package fiobackup

import (
	"os"
	"path/filepath"

	"github.com/opencoff/fiobackup/digest"
	"github.com/opencoff/fiobackup/fsx"
	"github.com/opencoff/fiobackup/reconcile"
	"github.com/opencoff/fiobackup/tree"
)

// digestInputs implements stage 2 (spec.md §4.8): compute a digest for
// every FILE entry on the input side. Symlinks are never hashed directly
// here; when follow_symlinks resolves one to a regular file it is already
// stored as FILE by the walker, so it is covered by this pass too.
func (e *Engine) digestInputs(inputTree *tree.Tree) *tree.DigestMap {
	out := tree.NewDigestMap()

	items := make(chan digest.Item, 64)
	go func() {
		inputTree.Files.Range(func(key string, ent tree.Entry) bool {
			items <- digest.Item{RelPath: key, Root: ent.Root}
			return true
		})
		close(items)
	}()

	pool := &digest.Pool{
		Algorithm: e.Config.ChecksumAlg,
		Workers:   e.Config.WorkloadProfile.WorkerCount(inputTree.Files.Size()),
		Bus:       e.Bus,
		Stats:     e.Stats,
		Log:       e.Log,
	}
	recs, err := pool.Run(items, nil)
	if err != nil && e.Log != nil {
		e.Log.Warn("fiobackup: digest inputs: %s", err)
	}
	for k, v := range recs {
		out.Store(k, v)
	}
	return out
}

// digestOutputs implements stage 3: load the existing manifest (unless
// recalculate_checksum is set), then compute digests only for mirror
// files the manifest does not already cover. The merge favors freshly
// computed values on collision, though with the exclude set in place no
// computed key is already present from the manifest.
func (e *Engine) digestOutputs(mirrorTree *tree.Tree) *tree.DigestMap {
	out := tree.NewDigestMap()

	var exclude digest.Records
	if !e.Config.RecalculateChecksum {
		exclude = digest.Parse(e.manifestPath(), e.Config.SaveTo, e.Config.ChecksumAlg, e.Log)
		for k, v := range exclude {
			out.Store(k, v)
		}
	}

	items := make(chan digest.Item, 64)
	go func() {
		mirrorTree.Files.Range(func(key string, ent tree.Entry) bool {
			items <- digest.Item{RelPath: key, Root: ent.Root}
			return true
		})
		close(items)
	}()

	pool := &digest.Pool{
		Algorithm: e.Config.ChecksumAlg,
		Workers:   e.Config.WorkloadProfile.WorkerCount(mirrorTree.Files.Size()),
		Exclude:   exclude,
		Bus:       e.Bus,
		Stats:     e.Stats,
		Log:       e.Log,
	}
	recs, err := pool.Run(items, nil)
	if err != nil && e.Log != nil {
		e.Log.Warn("fiobackup: digest outputs: %s", err)
	}
	for k, v := range recs {
		out.Store(k, v)
	}
	return out
}

// deleteStrayEntries implements stage 4: every mirror-side entry (of any
// classification) is offered to the deletion pool, which keeps anything
// still tracked on the input side.
func (e *Engine) deleteStrayEntries(mirrorTree, inputTree *tree.Tree, validated tree.Validated) {
	n := e.Config.WorkloadProfile.WorkerCount(mirrorTree.Count())

	items := make(chan reconcile.DeleteItem, 64)
	go func() {
		emit := func(c tree.Classification) func(string, tree.Entry) bool {
			return func(key string, ent tree.Entry) bool {
				items <- reconcile.DeleteItem{
					Classification: c,
					RelPath:        key,
					Root:           ent.Root,
					Empty:          ent.Empty,
				}
				return true
			}
		}
		mirrorTree.Files.Range(emit(tree.FILE))
		mirrorTree.Dirs.Range(emit(tree.DIR))
		mirrorTree.Symlinks.Range(emit(tree.SYMLINK))
		mirrorTree.Unknown.Range(emit(tree.UNKNOWN))
		close(items)
	}()

	reconcile.RunDeletionPool(items, reconcile.DeleteOptions{
		Workers:       n,
		Bus:           e.Bus,
		Stats:         e.Stats,
		Log:           e.Log,
		InputTree:     inputTree,
		SkippedInputs: validated.SkippedPaths(),
		DeleteSkipped: e.Config.DeleteSkipped,
	})
}

// createEmptyDirs implements stage 5: materialize every input-side
// directory the walker found empty, even if no file copy will ever touch
// it. Single-threaded: there are rarely enough empty directories in a
// backup set to warrant pooling, and ordering doesn't matter since each
// target is independent.
func (e *Engine) createEmptyDirs(inputTree *tree.Tree) {
	inputTree.Dirs.Range(func(key string, ent tree.Entry) bool {
		if !ent.Empty {
			return !e.Bus.Canceled()
		}
		dst := filepath.Join(e.Config.SaveTo, key)
		if _, err := os.Stat(dst); err == nil {
			return !e.Bus.Canceled()
		}

		mode := os.FileMode(0o755)
		if src, err := os.Stat(tree.Resolve(ent.Root, key)); err == nil {
			mode = src.Mode().Perm()
		}
		if err := fsx.MkdirMode(dst, mode); err != nil {
			e.Stats.DirsCreatedError.Add(1)
			if e.Log != nil {
				e.Log.Warn("fiobackup: mkdir %s: %s", dst, err)
			}
		} else {
			e.Stats.DirsCreatedOK.Add(1)
		}
		return !e.Bus.Canceled()
	})
}

// copyPool implements stage 6: every input-side FILE and SYMLINK entry is
// offered to the copy pool.
func (e *Engine) copyPool(inputTree *tree.Tree, digestsIn, digestsOut *tree.DigestMap) {
	n := e.Config.WorkloadProfile.WorkerCount(inputTree.Files.Size() + inputTree.Symlinks.Size())

	items := make(chan reconcile.CopyItem, 64)
	go func() {
		inputTree.Files.Range(func(key string, ent tree.Entry) bool {
			items <- reconcile.CopyItem{RelPath: key, Root: ent.Root, Classification: tree.FILE}
			return true
		})
		inputTree.Symlinks.Range(func(key string, ent tree.Entry) bool {
			items <- reconcile.CopyItem{RelPath: key, Root: ent.Root, Classification: tree.SYMLINK}
			return true
		})
		close(items)
	}()

	reconcile.RunCopyPool(items, reconcile.CopyOptions{
		Workers:        n,
		Bus:            e.Bus,
		Stats:          e.Stats,
		Log:            e.Log,
		DestRoot:       e.Config.SaveTo,
		DigestsIn:      digestsIn,
		DigestsOut:     digestsOut,
		InputDirs:      inputTree.Dirs,
		FollowSymlinks: e.Config.FollowSymlinks,
	})
}

// reenumerateMirror re-walks the destination after stages 4-6 have run,
// so stage 7's from-scratch recompute and stage 8's tree sidecar both see
// the post-run state rather than the stage-1 snapshot.
func (e *Engine) reenumerateMirror() *tree.Tree {
	return e.walkMirror()
}

// finalizeManifest implements stage 7: drop the old manifest and write a
// fresh one. With recalculate_checksum set, every mirror file is rehashed
// from scratch; otherwise the manifest is the union of what stage 3 saw
// plus every input-side digest from stage 2, with the input digest
// winning on collision (it reflects the file's current content; a stale
// output digest does not).
func (e *Engine) finalizeManifest(finalMirror *tree.Tree, digestsIn, digestsOut *tree.DigestMap) error {
	path := e.manifestPath()
	_ = os.Remove(path)

	var records digest.Records
	if e.Config.RecalculateChecksum {
		records = e.rehashMirrorFromScratch(finalMirror)
	} else {
		records = make(digest.Records)
		digestsOut.Range(func(k string, v tree.DigestRecord) bool {
			records[k] = v
			return true
		})
		digestsIn.Range(func(k string, v tree.DigestRecord) bool {
			records[k] = tree.DigestRecord{Root: e.Config.SaveTo, DigestHex: v.DigestHex}
			return true
		})
	}

	return digest.WriteSorted(path, records)
}

func (e *Engine) rehashMirrorFromScratch(finalMirror *tree.Tree) digest.Records {
	items := make(chan digest.Item, 64)
	go func() {
		finalMirror.Files.Range(func(key string, ent tree.Entry) bool {
			items <- digest.Item{RelPath: key, Root: ent.Root}
			return true
		})
		close(items)
	}()

	pool := &digest.Pool{
		Algorithm: e.Config.ChecksumAlg,
		Workers:   e.Config.WorkloadProfile.WorkerCount(finalMirror.Files.Size()),
		Bus:       e.Bus,
		Stats:     e.Stats,
		Log:       e.Log,
	}
	recs, err := pool.Run(items, nil)
	if err != nil && e.Log != nil {
		e.Log.Warn("fiobackup: recalculate manifest: %s", err)
	}
	return recs
}
