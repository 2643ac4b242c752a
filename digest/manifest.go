package digest

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/opencoff/fiobackup/tree"
	"github.com/opencoff/go-logger"
)

// Records is the parsed/in-progress manifest: relative path -> record.
type Records map[string]tree.DigestRecord

// Parse implements the Manifest Codec reader (spec.md §4.3). A missing or
// unreadable file yields an empty, non-nil map rather than an error: the
// manifest is an optimization, not a hard dependency, except during
// Validate where its absence is fatal (handled by the caller).
func Parse(path, root string, alg Algorithm, log logger.Logger) Records {
	out := make(Records)

	f, err := os.Open(path)
	if err != nil {
		if log != nil && !os.IsNotExist(err) {
			log.Warn("digest: manifest %s: %s", path, err)
		}
		return out
	}
	defer f.Close()

	want := alg.HexLen()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r\n")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || !isHex(trimmed[0]) {
			continue
		}

		idx := strings.IndexByte(trimmed, '*')
		if idx < 0 {
			continue
		}
		digestPart := strings.TrimSpace(trimmed[:idx])
		pathPart := trimmed[idx+1:]
		if pathPart == "" {
			continue
		}

		if len(digestPart) != want || !allHex(digestPart) {
			continue
		}

		key := normalizeManifestPath(pathPart)
		out[key] = tree.DigestRecord{Root: root, DigestHex: strings.ToLower(digestPart)}
	}

	if scanErr := sc.Err(); scanErr != nil && log != nil {
		log.Warn("digest: manifest %s: read error: %s", path, scanErr)
	}

	return out
}

func allHex(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isHex(s[i]) {
			return false
		}
	}
	return true
}

func normalizeManifestPath(p string) string {
	if filepath.Separator != '/' {
		p = strings.ReplaceAll(p, "/", string(filepath.Separator))
	}
	return p
}

// Write implements the Manifest Codec writer (spec.md §4.3): truncates
// path and writes one line per record, "<digest> *<path>\n", UTF-8. It is
// a thin alias for WriteSorted: two unchanged backup runs over the same
// input must produce byte-identical manifests (spec.md §8 scenario 3),
// which map iteration order cannot guarantee on its own.
func Write(path string, records Records) error {
	return WriteSorted(path, records)
}

// WriteSorted writes records in ascending relative-path order, so the
// manifest's line order is a pure function of its contents rather than of
// map iteration.
func WriteSorted(path string, records Records) error {
	keys := make([]string, 0, len(records))
	for relPath := range records {
		keys = append(keys, relPath)
	}
	sort.Strings(keys)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, relPath := range keys {
		rec := records[relPath]
		if _, err := w.WriteString(rec.DigestHex); err != nil {
			return err
		}
		if _, err := w.WriteString(" *"); err != nil {
			return err
		}
		if _, err := w.WriteString(manifestPathSlashes(relPath)); err != nil {
			return err
		}
		if err := w.WriteByte('\n'); err != nil {
			return err
		}
	}
	return w.Flush()
}

func manifestPathSlashes(p string) string {
	if filepath.Separator == '/' {
		return p
	}
	return strings.ReplaceAll(p, string(filepath.Separator), "/")
}

// ManifestName returns the destination-relative manifest filename for alg
// (spec.md §6: "checksums.<alg_lowercase>").
func ManifestName(alg Algorithm) string {
	return "checksums." + alg.String()
}
