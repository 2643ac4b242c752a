package fiobackup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/opencoff/fiobackup/digest"
)

func TestValidateRejectsMissingManifest(t *testing.T) {
	dst := t.TempDir()
	eng := New(Config{SaveTo: dst, ChecksumAlg: digest.MD5, WorkloadProfile: VeryLow}, nil, Events{})

	code, _, err := eng.Validate()
	if code != ERROR {
		t.Fatalf("code = %v, want ERROR", code)
	}
	if _, ok := err.(*ManifestMissingError); !ok {
		t.Fatalf("err = %v (%T), want *ManifestMissingError", err, err)
	}
}

func TestValidateDetectsCorruption(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "a.txt")
	if err := os.WriteFile(src, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(root, "dst")

	backup := New(newTestConfig(dst, src), nil, Events{})
	if code, err := backup.Run(); err != nil || code != SUCCESS {
		t.Fatalf("backup run failed: %v %v", code, err)
	}

	if err := os.WriteFile(filepath.Join(dst, "a.txt"), []byte("tampered"), 0o644); err != nil {
		t.Fatal(err)
	}

	eng := New(Config{SaveTo: dst, ChecksumAlg: digest.MD5, WorkloadProfile: VeryLow}, nil, Events{})
	code, results, err := eng.Validate()
	if err != nil || code != SUCCESS {
		t.Fatalf("Validate() = %v, %v, want SUCCESS", code, err)
	}

	var mismatches, matches, missing int
	for _, r := range results {
		switch r.Outcome {
		case Mismatch:
			mismatches++
		case Match:
			matches++
		case Missing:
			missing++
		}
	}
	if mismatches != 1 {
		t.Fatalf("mismatches = %d, want 1", mismatches)
	}
	if matches != 0 {
		t.Fatalf("matches = %d, want 0", matches)
	}
	if missing != 0 {
		t.Fatalf("missing = %d, want 0", missing)
	}
}

func TestValidateMatchesUnmodifiedMirror(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "a.txt")
	if err := os.WriteFile(src, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(root, "dst")

	backup := New(newTestConfig(dst, src), nil, Events{})
	if code, err := backup.Run(); err != nil || code != SUCCESS {
		t.Fatalf("backup run failed: %v %v", code, err)
	}

	eng := New(Config{SaveTo: dst, ChecksumAlg: digest.MD5, WorkloadProfile: VeryLow}, nil, Events{})
	code, results, err := eng.Validate()
	if err != nil || code != SUCCESS {
		t.Fatalf("Validate() = %v, %v, want SUCCESS", code, err)
	}
	if len(results) != 1 || results[0].Outcome != Match {
		t.Fatalf("results = %+v, want a single match", results)
	}
}
