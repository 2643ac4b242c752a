package digest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/opencoff/fiobackup/tree"
)

func TestParseWriteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checksums.md5")

	records := Records{
		"a.txt":     tree.DigestRecord{Root: "/x", DigestHex: "5d41402abc4b2a76b9719d911017c592"},
		"sub/b.txt": tree.DigestRecord{Root: "/x", DigestHex: "d41d8cd98f00b204e9800998ecf8427e"},
	}

	if err := Write(path, records); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got := Parse(path, "/x", MD5, nil)
	if len(got) != len(records) {
		t.Fatalf("Parse returned %d records, want %d", len(got), len(records))
	}
	for k, v := range records {
		g, ok := got[k]
		if !ok {
			t.Fatalf("missing key %q after round trip", k)
		}
		if g.DigestHex != v.DigestHex {
			t.Fatalf("digest mismatch for %q: got %q want %q", k, g.DigestHex, v.DigestHex)
		}
	}
}

func TestParseMissingFileReturnsEmpty(t *testing.T) {
	got := Parse(filepath.Join(t.TempDir(), "nope"), "/x", MD5, nil)
	if len(got) != 0 {
		t.Fatalf("expected empty map for missing manifest, got %d entries", len(got))
	}
}

func TestParseSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checksums.md5")
	content := "" +
		"not-hex-prefixed *a.txt\n" +
		"   \n" +
		"deadbeef *too-short.txt\n" + // wrong length for md5
		"5d41402abc4b2a76b9719d911017c592 *good.txt\n" +
		"5d41402abc4b2a76b9719d911017c592nomatch\n" // no '*'

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	got := Parse(path, "/x", MD5, nil)
	if len(got) != 1 {
		t.Fatalf("expected exactly one valid record, got %d: %+v", len(got), got)
	}
	if _, ok := got["good.txt"]; !ok {
		t.Fatalf("expected good.txt to parse")
	}
}

func TestParseLastDuplicateWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checksums.md5")
	content := "" +
		"5d41402abc4b2a76b9719d911017c592 *a.txt\n" +
		"d41d8cd98f00b204e9800998ecf8427e *a.txt\n"

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	got := Parse(path, "/x", MD5, nil)
	if got["a.txt"].DigestHex != "d41d8cd98f00b204e9800998ecf8427e" {
		t.Fatalf("expected last duplicate to win, got %q", got["a.txt"].DigestHex)
	}
}

func TestManifestName(t *testing.T) {
	if ManifestName(SHA256) != "checksums.sha256" {
		t.Fatalf("unexpected manifest name: %s", ManifestName(SHA256))
	}
}
