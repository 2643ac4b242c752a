package tree

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// InputEntry is one user-declared backup source: an absolute path and
// whether this run should treat it as active (false) or skipped (true).
type InputEntry struct {
	Path string
	Skip bool
}

// ErrDuplicatePath is returned (wrapped) when two non-skipped input
// entries normalize to the same leaf-relative key (spec.md §8 invariant
// 5, §4.10).
type ErrDuplicatePath struct {
	Key   string
	First string
	Second string
}

func (e *ErrDuplicatePath) Error() string {
	return fmt.Sprintf("config: duplicate input path %q and %q both resolve to leaf key %q",
		e.First, e.Second, e.Key)
}

// ErrMissingPath is returned when a non-skipped input entry does not
// exist on disk at validation time.
type ErrMissingPath struct {
	Path string
	Err  error
}

func (e *ErrMissingPath) Error() string {
	return fmt.Sprintf("config: input path %q does not exist: %s", e.Path, e.Err)
}
func (e *ErrMissingPath) Unwrap() error { return e.Err }

// errEmptyPath is returned when an input entry is blank after trimming.
var errEmptyPath = fmt.Errorf("config: input path is empty")

// LeafKey computes the leaf-relative key for an absolute path: the path
// rendered relative to its own parent, i.e. the basename once separators
// are normalized to the host's. This is deliberately the same computation
// the tree walker pool uses to seed the root/first-segment of a Tree key
// (spec.md §9 design notes): it preserves the declared root's basename as
// the mirror's first path segment.
func LeafKey(path string) string {
	clean := filepath.Clean(normalizeSeparators(path))
	return filepath.Base(clean)
}

func normalizeSeparators(p string) string {
	if filepath.Separator == '/' {
		return p
	}
	return strings.ReplaceAll(p, "/", string(filepath.Separator))
}

// Validated is the normalized, deduplicated result of validating a
// configured input list: absolute path -> skip flag.
type Validated map[string]bool

// ValidateInputs implements the Input Validator (spec.md §4.10). For each
// entry: trim and normalize, reject empty, compute its leaf-relative key,
// and fail fast on a duplicate key between two non-skipped entries.
// Existence is required for non-skipped entries only; skipped entries may
// point at paths that no longer exist (they just won't be mirrored).
func ValidateInputs(entries []InputEntry) (Validated, error) {
	out := make(Validated, len(entries))
	keyOwner := make(map[string]string, len(entries))

	for _, e := range entries {
		trimmed := strings.TrimSpace(e.Path)
		if trimmed == "" {
			return nil, errEmptyPath
		}
		abs := filepath.Clean(normalizeSeparators(trimmed))

		if !e.Skip {
			key := LeafKey(abs)
			if owner, dup := keyOwner[key]; dup {
				return nil, &ErrDuplicatePath{Key: key, First: owner, Second: abs}
			}
			keyOwner[key] = abs

			if _, err := os.Stat(abs); err != nil {
				return nil, &ErrMissingPath{Path: abs, Err: err}
			}
		}

		out[abs] = e.Skip
	}

	return out, nil
}

// SkippedPaths returns the leaf-relative-key segment form of every
// skipped path in v, for use by the deletion pool's is-under-skipped
// predicate. A skipped entry occupies the same leaf-relative key space as
// an active one (its own basename as the first segment), so the segments
// returned here are just that key, not the full absolute path.
func (v Validated) SkippedPaths() [][]string {
	var out [][]string
	for p, skip := range v {
		if skip {
			out = append(out, []string{LeafKey(p)})
		}
	}
	return out
}

// SplitSegments splits an absolute path into its non-empty path
// segments, using the host separator.
func SplitSegments(p string) []string {
	clean := filepath.Clean(p)
	var segs []string
	for _, s := range strings.Split(clean, string(filepath.Separator)) {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}
