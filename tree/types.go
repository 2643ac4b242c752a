// Package tree implements the core data model of the backup engine:
// input entries, path classification, the leaf-relative keyed Tree, and
// digest records (spec.md §3). It also implements the Input Validator
// (spec.md §4.10).
package tree

import (
	"path/filepath"

	"github.com/puzpuzpuz/xsync/v3"
)

// Classification is the kind of filesystem entry a path resolves to. It
// is kept distinct from a bare file/dir split because symlink handling
// differs from both (spec.md §9 design notes): conflating SYMLINK into
// FILE would break the copy pool's "preserve as link" policy.
type Classification int

const (
	FILE Classification = iota
	DIR
	SYMLINK
	UNKNOWN
)

func (c Classification) String() string {
	switch c {
	case FILE:
		return "FILE"
	case DIR:
		return "DIR"
	case SYMLINK:
		return "SYMLINK"
	default:
		return "UNKNOWN"
	}
}

// Entry is the value half of a Tree mapping: the absolute root that a key
// is relative to, the entry's classification, and — for directories only
// — whether enumeration found it empty at discovery time.
type Entry struct {
	Root           string
	Classification Classification
	Empty          bool // only meaningful when Classification == DIR
}

// Tree is a leaf-relative-path-keyed view of a filesystem subtree,
// partitioned by classification so pools can iterate just the partition
// they care about without a type switch per entry. The xsync map is used
// because the tree walker pool populates it concurrently from multiple
// worker goroutines (grounded on the teacher's FioMap usage in
// cmp/cmp.go and fiomap.go).
type Tree struct {
	Files    *xsync.MapOf[string, Entry]
	Dirs     *xsync.MapOf[string, Entry]
	Symlinks *xsync.MapOf[string, Entry]
	Unknown  *xsync.MapOf[string, Entry]
}

// New returns an empty Tree ready for concurrent population.
func New() *Tree {
	return &Tree{
		Files:    xsync.NewMapOf[string, Entry](),
		Dirs:     xsync.NewMapOf[string, Entry](),
		Symlinks: xsync.NewMapOf[string, Entry](),
		Unknown:  xsync.NewMapOf[string, Entry](),
	}
}

// Store records key -> e in the partition matching e.Classification.
func (t *Tree) Store(key string, e Entry) {
	switch e.Classification {
	case FILE:
		t.Files.Store(key, e)
	case DIR:
		t.Dirs.Store(key, e)
	case SYMLINK:
		t.Symlinks.Store(key, e)
	default:
		t.Unknown.Store(key, e)
	}
}

// Partition returns the map holding entries of classification c.
func (t *Tree) Partition(c Classification) *xsync.MapOf[string, Entry] {
	switch c {
	case FILE:
		return t.Files
	case DIR:
		return t.Dirs
	case SYMLINK:
		return t.Symlinks
	default:
		return t.Unknown
	}
}

// Lookup finds key across all four partitions, reporting which
// classification it was found under.
func (t *Tree) Lookup(key string) (Entry, bool) {
	if e, ok := t.Files.Load(key); ok {
		return e, true
	}
	if e, ok := t.Dirs.Load(key); ok {
		return e, true
	}
	if e, ok := t.Symlinks.Load(key); ok {
		return e, true
	}
	if e, ok := t.Unknown.Load(key); ok {
		return e, true
	}
	return Entry{}, false
}

// Resolve reconstructs the original absolute path for a (root, key) pair:
// join(root, key) — the round-trip invariant spec.md §8 property 6
// requires. For input-side entries root is the parent of the declared
// root and key's first segment is the declared root's own basename
// (spec.md §9 "path key semantics"); for mirror-side entries root is the
// destination itself and key has no extra leading segment. Both
// conventions resolve correctly with a plain join because the "extra
// segment" already lives inside key, not in root.
func Resolve(root, key string) string {
	return filepath.Join(root, key)
}

// Count returns the total number of entries across all four partitions.
func (t *Tree) Count() int {
	return t.Files.Size() + t.Dirs.Size() + t.Symlinks.Size() + t.Unknown.Size()
}

// DigestRecord is one row of the digest record set (spec.md §3): the
// absolute root an entry was computed relative to, and its lowercase hex
// digest under the configured algorithm.
type DigestRecord struct {
	Root      string
	DigestHex string
}

// DigestMap is the concurrency-safe relative-path-keyed digest record set
// the orchestrator builds from the digest pool's output and hands to the
// copy pool and the stage-7 manifest merge.
type DigestMap = xsync.MapOf[string, DigestRecord]

// NewDigestMap returns an empty DigestMap.
func NewDigestMap() *DigestMap {
	return xsync.NewMapOf[string, DigestRecord]()
}

// MergeInto copies every record of src into dst, overwriting any existing
// key (spec.md §4.8 stage 3: "computed wins on collision" — callers merge
// the freshly computed set into the base, not the other way around).
func MergeInto(dst, src *DigestMap) {
	src.Range(func(k string, v DigestRecord) bool {
		dst.Store(k, v)
		return true
	})
}
