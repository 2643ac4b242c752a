package walk

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/opencoff/fiobackup/bus"
	"github.com/opencoff/fiobackup/stats"
	"github.com/opencoff/fiobackup/tree"
)

func mustMkdir(t *testing.T, p string) {
	t.Helper()
	if err := os.MkdirAll(p, 0o755); err != nil {
		t.Fatal(err)
	}
}

func mustWrite(t *testing.T, p string, content string) {
	t.Helper()
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRunClassifiesFilesDirsAndSymlinks(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "photos")
	mustMkdir(t, filepath.Join(src, "2024"))
	mustWrite(t, filepath.Join(src, "a.txt"), "hello")
	mustWrite(t, filepath.Join(src, "2024", "b.txt"), "world")
	mustMkdir(t, filepath.Join(src, "empty"))

	link := filepath.Join(src, "link.txt")
	if err := os.Symlink(filepath.Join(src, "a.txt"), link); err != nil {
		t.Fatal(err)
	}

	tr := tree.New()
	var st stats.Registry
	b := bus.New()

	Run(tr, []Job{{RelParent: "photos", Root: root}}, Options{
		Workers: 2,
		Bus:     b,
		Stats:   &st,
	})

	if _, ok := tr.Files.Load(filepath.Join("photos", "a.txt")); !ok {
		t.Fatalf("expected a.txt classified as FILE")
	}
	if _, ok := tr.Files.Load(filepath.Join("photos", "2024", "b.txt")); !ok {
		t.Fatalf("expected nested b.txt classified as FILE")
	}
	if e, ok := tr.Dirs.Load(filepath.Join("photos", "2024")); !ok || e.Empty {
		t.Fatalf("expected non-empty dir for photos/2024")
	}
	if e, ok := tr.Dirs.Load(filepath.Join("photos", "empty")); !ok || !e.Empty {
		t.Fatalf("expected empty dir for photos/empty")
	}
	if _, ok := tr.Symlinks.Load(filepath.Join("photos", "link.txt")); !ok {
		t.Fatalf("expected link.txt classified as SYMLINK when follow_symlinks=false")
	}
	if st.FilesObserved.Load() != 2 {
		t.Fatalf("FilesObserved = %d, want 2", st.FilesObserved.Load())
	}
}

func TestRunHonorsIgnoreSet(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "data")
	mustMkdir(t, src)
	mustWrite(t, filepath.Join(src, "keep.txt"), "x")
	mustWrite(t, filepath.Join(src, "skip.txt"), "y")

	tr := tree.New()
	var st stats.Registry
	b := bus.New()

	Run(tr, []Job{{RelParent: "data", Root: root}}, Options{
		Workers: 1,
		Bus:     b,
		Stats:   &st,
		Ignore:  map[string]bool{filepath.Join(src, "skip.txt"): true},
	})

	if _, ok := tr.Files.Load(filepath.Join("data", "keep.txt")); !ok {
		t.Fatalf("expected keep.txt present")
	}
	if _, ok := tr.Files.Load(filepath.Join("data", "skip.txt")); ok {
		t.Fatalf("skip.txt should have been ignored")
	}
}

func TestInodeGuardPreventsRevisit(t *testing.T) {
	g := NewInodeGuard()
	dir := t.TempDir()

	if !g.Enter(dir) {
		t.Fatalf("first Enter should report true")
	}
	if g.Enter(dir) {
		t.Fatalf("second Enter on the same path should report false")
	}
}
