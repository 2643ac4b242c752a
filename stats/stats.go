// Package stats is the fixed set of atomic counters the engine exposes as
// the Statistics Registry (spec.md §4.2). Every field is independently
// atomic; status rendering takes non-atomic snapshots and callers must not
// expect mutual consistency across counters at a single instant.
package stats

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/opencoff/go-utils"
)

// Registry holds every counter the orchestrator and its pools update. The
// zero value is ready to use; call Reset at the start of each run (the
// orchestrator is the only writer of Reset — spec.md §3 "Statistics:
// ... reset only at the start of a run by the orchestrator").
type Registry struct {
	FilesObserved atomic.Int64
	DirsObserved  atomic.Int64

	DigestOK    atomic.Int64
	DigestError atomic.Int64

	CopyOK    atomic.Int64
	CopyError atomic.Int64

	DirsCreatedOK    atomic.Int64
	DirsCreatedError atomic.Int64

	DeleteOK    atomic.Int64
	DeleteError atomic.Int64

	SymlinksObserved atomic.Int64

	BytesCopied atomic.Int64

	ValidationMatch    atomic.Int64
	ValidationMismatch atomic.Int64
	ValidationMissing  atomic.Int64
	// ValidationStale counts manifest records whose path no longer
	// exists on the mirror at all — a supplemental bucket recovered
	// from FloppyCat's checksums.py (SPEC_FULL.md "Supplemented
	// Features" #3), additive to spec.md §4.9's match/mismatch/missing.
	ValidationStale atomic.Int64

	startedAt atomic.Int64 // unix nanos, 0 until Reset
}

// Reset zeroes every counter and records the run start time used for
// throughput figures in StatusLine. Only the orchestrator calls this, and
// only once per run, before stage 1 begins.
func (r *Registry) Reset(now time.Time) {
	r.FilesObserved.Store(0)
	r.DirsObserved.Store(0)
	r.DigestOK.Store(0)
	r.DigestError.Store(0)
	r.CopyOK.Store(0)
	r.CopyError.Store(0)
	r.DirsCreatedOK.Store(0)
	r.DirsCreatedError.Store(0)
	r.DeleteOK.Store(0)
	r.DeleteError.Store(0)
	r.SymlinksObserved.Store(0)
	r.BytesCopied.Store(0)
	r.ValidationMatch.Store(0)
	r.ValidationMismatch.Store(0)
	r.ValidationMissing.Store(0)
	r.ValidationStale.Store(0)
	r.startedAt.Store(now.UnixNano())
}

// Stage identifies which pipeline stage a status line is reporting on, for
// display purposes only.
type Stage string

const (
	StagePrepare  Stage = "prepare"
	StageDigest   Stage = "digest"
	StageDelete   Stage = "delete"
	StageMkdir    Stage = "mkdir"
	StageCopy     Stage = "copy"
	StageManifest Stage = "manifest"
	StageTree     Stage = "tree"
	StageValidate Stage = "validate"
	StageDone     Stage = "done"
)

// StatusLine renders the compact single-line summary spec.md §4.2
// requires: current stage, percent complete and every counter. percent
// must be in [0,100]; callers compute it (the orchestrator knows how many
// of N items in the current stage have been processed).
func (r *Registry) StatusLine(stage Stage, percent int) string {
	elapsed := r.elapsed()
	rate := "n/a"
	if elapsed > 0 {
		bps := float64(r.BytesCopied.Load()) / elapsed.Seconds()
		rate = utils.HumanizeSize(uint64(bps)) + "/s"
	}

	return fmt.Sprintf(
		"[%s %3d%%] files=%d dirs=%d symlinks=%d digest=%d/%d copy=%d/%d mkdir=%d/%d del=%d/%d validate=%d/%d/%d/%d rate=%s",
		stage, percent,
		r.FilesObserved.Load(), r.DirsObserved.Load(), r.SymlinksObserved.Load(),
		r.DigestOK.Load(), r.DigestError.Load(),
		r.CopyOK.Load(), r.CopyError.Load(),
		r.DirsCreatedOK.Load(), r.DirsCreatedError.Load(),
		r.DeleteOK.Load(), r.DeleteError.Load(),
		r.ValidationMatch.Load(), r.ValidationMismatch.Load(),
		r.ValidationMissing.Load(), r.ValidationStale.Load(),
		rate,
	)
}

func (r *Registry) elapsed() time.Duration {
	started := r.startedAt.Load()
	if started == 0 {
		return 0
	}
	return time.Since(time.Unix(0, started))
}

// Report renders the post-run multi-line human readable summary.
func (r *Registry) Report() string {
	var b strings.Builder
	fmt.Fprintf(&b, "backup finished in %s\n", r.elapsed().Round(time.Millisecond))
	fmt.Fprintf(&b, "  observed   : %d files, %d dirs, %d symlinks\n",
		r.FilesObserved.Load(), r.DirsObserved.Load(), r.SymlinksObserved.Load())
	fmt.Fprintf(&b, "  digests    : %d ok, %d error\n", r.DigestOK.Load(), r.DigestError.Load())
	fmt.Fprintf(&b, "  copied     : %d ok, %d error (%s)\n",
		r.CopyOK.Load(), r.CopyError.Load(), utils.HumanizeSize(uint64(r.BytesCopied.Load())))
	fmt.Fprintf(&b, "  mkdir      : %d ok, %d error\n", r.DirsCreatedOK.Load(), r.DirsCreatedError.Load())
	fmt.Fprintf(&b, "  deleted    : %d ok, %d error\n", r.DeleteOK.Load(), r.DeleteError.Load())
	return b.String()
}

// ValidationReport renders the post-validation summary (spec.md §4.9 plus
// the supplemental "stale manifest entry" bucket).
func (r *Registry) ValidationReport() string {
	return fmt.Sprintf(
		"validation: %d match, %d mismatch, %d missing, %d stale manifest entries",
		r.ValidationMatch.Load(), r.ValidationMismatch.Load(),
		r.ValidationMissing.Load(), r.ValidationStale.Load(),
	)
}
