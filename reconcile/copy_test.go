package reconcile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/opencoff/fiobackup/bus"
	"github.com/opencoff/fiobackup/stats"
	"github.com/opencoff/fiobackup/tree"
)

func TestCopyPoolCopiesNewFile(t *testing.T) {
	srcRoot := t.TempDir()
	dstRoot := t.TempDir()

	if err := os.WriteFile(filepath.Join(srcRoot, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	digestsIn := tree.NewDigestMap()
	digestsIn.Store("a.txt", tree.DigestRecord{Root: srcRoot, DigestHex: "5d41402abc4b2a76b9719d911017c592"})
	digestsOut := tree.NewDigestMap()

	var st stats.Registry
	b := bus.New()

	items := make(chan CopyItem, 1)
	items <- CopyItem{RelPath: "a.txt", Root: srcRoot, Classification: tree.FILE}
	close(items)

	RunCopyPool(items, CopyOptions{
		Workers:    1,
		Bus:        b,
		Stats:      &st,
		DestRoot:   dstRoot,
		DigestsIn:  digestsIn,
		DigestsOut: digestsOut,
	})

	content, err := os.ReadFile(filepath.Join(dstRoot, "a.txt"))
	if err != nil {
		t.Fatalf("expected a.txt copied: %v", err)
	}
	if string(content) != "hello" {
		t.Fatalf("content mismatch: %q", content)
	}
	if st.CopyOK.Load() != 1 {
		t.Fatalf("CopyOK = %d, want 1", st.CopyOK.Load())
	}
}

func TestCopyPoolSkipsUnchangedFile(t *testing.T) {
	srcRoot := t.TempDir()
	dstRoot := t.TempDir()

	if err := os.WriteFile(filepath.Join(srcRoot, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dstRoot, "a.txt"), []byte("stale-but-same-digest"), 0o644); err != nil {
		t.Fatal(err)
	}

	digestsIn := tree.NewDigestMap()
	digestsIn.Store("a.txt", tree.DigestRecord{Root: srcRoot, DigestHex: "deadbeef"})
	digestsOut := tree.NewDigestMap()
	digestsOut.Store("a.txt", tree.DigestRecord{Root: dstRoot, DigestHex: "deadbeef"})

	var st stats.Registry
	b := bus.New()

	items := make(chan CopyItem, 1)
	items <- CopyItem{RelPath: "a.txt", Root: srcRoot, Classification: tree.FILE}
	close(items)

	RunCopyPool(items, CopyOptions{
		Workers:    1,
		Bus:        b,
		Stats:      &st,
		DestRoot:   dstRoot,
		DigestsIn:  digestsIn,
		DigestsOut: digestsOut,
	})

	content, err := os.ReadFile(filepath.Join(dstRoot, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "stale-but-same-digest" {
		t.Fatalf("expected incremental shortcut to skip copy, content changed to %q", content)
	}
	if st.CopyOK.Load() != 0 {
		t.Fatalf("CopyOK = %d, want 0 for skipped copy", st.CopyOK.Load())
	}
}

func TestCopyPoolMaterializesParentDirs(t *testing.T) {
	srcRoot := t.TempDir()
	dstRoot := t.TempDir()

	if err := os.MkdirAll(filepath.Join(srcRoot, "2024"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(srcRoot, "2024", "b.txt"), []byte("world"), 0o644); err != nil {
		t.Fatal(err)
	}

	digestsIn := tree.NewDigestMap()
	digestsIn.Store(filepath.Join("2024", "b.txt"), tree.DigestRecord{Root: srcRoot, DigestHex: "x"})
	digestsOut := tree.NewDigestMap()

	var st stats.Registry
	b := bus.New()

	items := make(chan CopyItem, 1)
	items <- CopyItem{RelPath: filepath.Join("2024", "b.txt"), Root: srcRoot, Classification: tree.FILE}
	close(items)

	RunCopyPool(items, CopyOptions{
		Workers:    1,
		Bus:        b,
		Stats:      &st,
		DestRoot:   dstRoot,
		DigestsIn:  digestsIn,
		DigestsOut: digestsOut,
	})

	if _, err := os.Stat(filepath.Join(dstRoot, "2024", "b.txt")); err != nil {
		t.Fatalf("expected parent dir materialized and file copied: %v", err)
	}
	if st.DirsCreatedOK.Load() != 1 {
		t.Fatalf("DirsCreatedOK = %d, want 1", st.DirsCreatedOK.Load())
	}
}

func TestCopyPoolErrorsWithoutInputDigest(t *testing.T) {
	srcRoot := t.TempDir()
	dstRoot := t.TempDir()
	if err := os.WriteFile(filepath.Join(srcRoot, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	var st stats.Registry
	b := bus.New()

	items := make(chan CopyItem, 1)
	items <- CopyItem{RelPath: "a.txt", Root: srcRoot, Classification: tree.FILE}
	close(items)

	RunCopyPool(items, CopyOptions{
		Workers:    1,
		Bus:        b,
		Stats:      &st,
		DestRoot:   dstRoot,
		DigestsIn:  tree.NewDigestMap(),
		DigestsOut: tree.NewDigestMap(),
	})

	if st.CopyError.Load() != 1 {
		t.Fatalf("CopyError = %d, want 1", st.CopyError.Load())
	}
}
