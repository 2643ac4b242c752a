package fiobackup

import (
	"os"
	"time"

	"github.com/opencoff/fiobackup/digest"
	"github.com/opencoff/fiobackup/fsx"
	"github.com/opencoff/fiobackup/stats"
	"github.com/opencoff/fiobackup/tree"
)

// ValidationResult is the outcome of comparing one mirror-relative path's
// recomputed digest against its manifest entry.
type ValidationResult struct {
	RelPath string
	Outcome ValidationOutcome
}

// ValidationOutcome is one of the four buckets a validation run sorts a
// path into.
type ValidationOutcome int

const (
	Match ValidationOutcome = iota
	Mismatch
	Missing
	// Stale marks a manifest record whose path no longer exists on the
	// mirror at all, a supplemental bucket beyond spec.md §4.9's
	// match/mismatch/missing.
	Stale
)

// Validate executes the Validation Run (spec.md §4.9): parse the
// manifest (its absence is fatal), enumerate the mirror, recompute every
// mirror file's digest, and compare. The manifest file itself is
// identified by device/inode identity and excluded from comparison.
func (e *Engine) Validate() (ExitCode, []ValidationResult, error) {
	e.Stats.Reset(time.Now())

	manifestPath := e.manifestPath()
	if _, err := os.Stat(manifestPath); err != nil {
		err := &ManifestMissingError{Path: manifestPath}
		e.Events.finished(ERROR)
		return ERROR, nil, err
	}
	parsed := digest.Parse(manifestPath, e.Config.SaveTo, e.Config.ChecksumAlg, e.Log)

	mirrorTree := e.walkMirror()
	if e.Bus.Canceled() {
		e.Events.finished(CANCELED)
		return CANCELED, nil, nil
	}

	manifestDev, manifestIno, haveManifestID := fileIdentity(manifestPath)

	items := make(chan digest.Item, 64)
	go func() {
		mirrorTree.Files.Range(func(key string, ent tree.Entry) bool {
			abs := tree.Resolve(ent.Root, key)
			if haveManifestID {
				if dev, ino, ok := fileIdentity(abs); ok && dev == manifestDev && ino == manifestIno {
					return true
				}
			}
			items <- digest.Item{RelPath: key, Root: ent.Root}
			return true
		})
		close(items)
	}()

	pool := &digest.Pool{
		Algorithm: e.Config.ChecksumAlg,
		Workers:   e.Config.WorkloadProfile.WorkerCount(mirrorTree.Files.Size()),
		Bus:       e.Bus,
		Stats:     e.Stats,
		Log:       e.Log,
	}
	recomputed, err := pool.Run(items, nil)
	if err != nil {
		e.Events.finished(ERROR)
		return ERROR, nil, err
	}
	if e.Bus.Canceled() {
		e.Events.finished(CANCELED)
		return CANCELED, nil, nil
	}

	results := compare(parsed, recomputed, e.Stats)

	e.Events.setStatusLine(e.Stats.ValidationReport())
	e.Events.finished(SUCCESS)
	return SUCCESS, results, nil
}

func compare(parsed digest.Records, recomputed digest.Records, st *stats.Registry) []ValidationResult {
	var out []ValidationResult
	seen := make(map[string]bool, len(recomputed))

	for relPath, rec := range recomputed {
		seen[relPath] = true
		want, ok := parsed[relPath]
		switch {
		case !ok:
			st.ValidationMissing.Add(1)
			out = append(out, ValidationResult{RelPath: relPath, Outcome: Missing})
		case want.DigestHex == rec.DigestHex:
			st.ValidationMatch.Add(1)
			out = append(out, ValidationResult{RelPath: relPath, Outcome: Match})
		default:
			st.ValidationMismatch.Add(1)
			out = append(out, ValidationResult{RelPath: relPath, Outcome: Mismatch})
		}
	}

	for relPath := range parsed {
		if !seen[relPath] {
			st.ValidationStale.Add(1)
			out = append(out, ValidationResult{RelPath: relPath, Outcome: Stale})
		}
	}

	return out
}

func fileIdentity(path string) (dev, ino uint64, ok bool) {
	info, err := fsx.Lstat(path)
	if err != nil {
		return 0, 0, false
	}
	return info.Dev, info.Ino, true
}
