package tree

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateInputsRejectsEmpty(t *testing.T) {
	_, err := ValidateInputs([]InputEntry{{Path: "   "}})
	if err == nil {
		t.Fatalf("expected error for blank path")
	}
}

func TestValidateInputsRequiresExistenceUnlessSkipped(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does-not-exist")

	_, err := ValidateInputs([]InputEntry{{Path: missing}})
	if err == nil {
		t.Fatalf("expected missing-path error for non-skipped entry")
	}

	v, err := ValidateInputs([]InputEntry{{Path: missing, Skip: true}})
	if err != nil {
		t.Fatalf("skipped missing entry should validate: %v", err)
	}
	if !v[missing] {
		t.Fatalf("expected skip flag true for %q", missing)
	}
}

func TestValidateInputsDetectsDuplicateLeafKey(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "photos")
	b := filepath.Join(dir, "sub", "photos")
	if err := os.MkdirAll(a, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(b, 0o755); err != nil {
		t.Fatal(err)
	}

	_, err := ValidateInputs([]InputEntry{{Path: a}, {Path: b}})
	if err == nil {
		t.Fatalf("expected duplicate-leaf-key error")
	}
	if _, ok := err.(*ErrDuplicatePath); !ok {
		t.Fatalf("expected *ErrDuplicatePath, got %T: %v", err, err)
	}
}

func TestValidateInputsAllowsDuplicateAmongSkipped(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "photos")
	if err := os.MkdirAll(a, 0o755); err != nil {
		t.Fatal(err)
	}

	// Two skipped entries with the same leaf key never collide: only
	// non-skipped entries participate in duplicate detection.
	v, err := ValidateInputs([]InputEntry{
		{Path: a, Skip: true},
		{Path: filepath.Join(dir, "other", "photos"), Skip: true},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(v) != 2 {
		t.Fatalf("expected both skipped entries retained, got %d", len(v))
	}
}

func TestLeafKeyIsBasename(t *testing.T) {
	if got := LeafKey("/data/photos/2024"); got != "2024" {
		t.Fatalf("LeafKey = %q, want 2024", got)
	}
}

func TestSkippedPathsSegments(t *testing.T) {
	// A skipped entry occupies the same leaf-relative key space as an
	// active one: its own basename, not its full absolute path.
	v := Validated{"/a/b/c": true, "/a/b/d": false}
	segs := v.SkippedPaths()
	if len(segs) != 1 {
		t.Fatalf("expected exactly one skipped path, got %d", len(segs))
	}
	want := []string{"c"}
	if len(segs[0]) != len(want) {
		t.Fatalf("segment count mismatch: %v", segs[0])
	}
	for i := range want {
		if segs[0][i] != want[i] {
			t.Fatalf("segments = %v, want %v", segs[0], want)
		}
	}
}
