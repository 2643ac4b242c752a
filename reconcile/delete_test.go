package reconcile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/opencoff/fiobackup/bus"
	"github.com/opencoff/fiobackup/stats"
	"github.com/opencoff/fiobackup/tree"
)

func TestDeletionPoolRemovesStrayFile(t *testing.T) {
	dst := t.TempDir()
	stray := filepath.Join(dst, "stray.txt")
	if err := os.WriteFile(stray, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	inputTree := tree.New() // empty: nothing tracked on the input side
	var st stats.Registry
	b := bus.New()

	items := make(chan DeleteItem, 1)
	items <- DeleteItem{Classification: tree.FILE, RelPath: "stray.txt", Root: dst}
	close(items)

	RunDeletionPool(items, DeleteOptions{
		Workers:   1,
		Bus:       b,
		Stats:     &st,
		InputTree: inputTree,
	})

	if _, err := os.Stat(stray); !os.IsNotExist(err) {
		t.Fatalf("expected stray.txt to be deleted")
	}
	if st.DeleteOK.Load() != 1 {
		t.Fatalf("DeleteOK = %d, want 1", st.DeleteOK.Load())
	}
}

func TestDeletionPoolKeepsTrackedEntry(t *testing.T) {
	dst := t.TempDir()
	kept := filepath.Join(dst, "kept.txt")
	if err := os.WriteFile(kept, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	inputTree := tree.New()
	inputTree.Store("kept.txt", tree.Entry{Root: "/src", Classification: tree.FILE})

	var st stats.Registry
	b := bus.New()

	items := make(chan DeleteItem, 1)
	items <- DeleteItem{Classification: tree.FILE, RelPath: "kept.txt", Root: dst}
	close(items)

	RunDeletionPool(items, DeleteOptions{
		Workers:   1,
		Bus:       b,
		Stats:     &st,
		InputTree: inputTree,
	})

	if _, err := os.Stat(kept); err != nil {
		t.Fatalf("kept.txt should not have been deleted: %v", err)
	}
}

func TestDeletionPoolRespectsSkippedPolicy(t *testing.T) {
	dst := t.TempDir()
	skippedDir := filepath.Join(dst, "archive")
	if err := os.MkdirAll(skippedDir, 0o755); err != nil {
		t.Fatal(err)
	}
	f := filepath.Join(skippedDir, "old.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	inputTree := tree.New()
	var st stats.Registry
	b := bus.New()

	items := make(chan DeleteItem, 1)
	items <- DeleteItem{Classification: tree.FILE, RelPath: filepath.Join("archive", "old.txt"), Root: dst}
	close(items)

	RunDeletionPool(items, DeleteOptions{
		Workers:       1,
		Bus:           b,
		Stats:         &st,
		InputTree:     inputTree,
		SkippedInputs: [][]string{{"archive"}},
		DeleteSkipped: false,
	})

	if _, err := os.Stat(f); err != nil {
		t.Fatalf("expected file under skipped path to be kept: %v", err)
	}

	// now with delete_skipped=true it should go
	items2 := make(chan DeleteItem, 1)
	items2 <- DeleteItem{Classification: tree.FILE, RelPath: filepath.Join("archive", "old.txt"), Root: dst}
	close(items2)

	RunDeletionPool(items2, DeleteOptions{
		Workers:       1,
		Bus:           bus.New(),
		Stats:         &st,
		InputTree:     inputTree,
		SkippedInputs: [][]string{{"archive"}},
		DeleteSkipped: true,
	})

	if _, err := os.Stat(f); !os.IsNotExist(err) {
		t.Fatalf("expected file under skipped path to be deleted when delete_skipped=true")
	}
}

func TestIsSegmentPrefix(t *testing.T) {
	if !isSegmentPrefix([]string{"archive"}, []string{"archive", "old.txt"}) {
		t.Fatalf("expected archive/old.txt to be under archive")
	}
	if isSegmentPrefix([]string{"archive"}, []string{"other", "old.txt"}) {
		t.Fatalf("unrelated path should not match")
	}
	// A stray entry must not be preserved just because a skipped
	// basename happens to reappear deeper in its path.
	if isSegmentPrefix([]string{"b"}, []string{"old", "backup", "b", "notes.txt"}) {
		t.Fatalf("skipped basename appearing as a later segment must not match")
	}
}
