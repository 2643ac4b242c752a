package fiobackup

import (
	"os"
	"sort"
	"strings"

	"github.com/opencoff/fiobackup/tree"
)

// RenderTreeSidecar implements the tree.txt sidecar (spec.md §6, §4.8
// stage 8): a depth-indented listing of every entry in t, one per line.
// The format is informational only; nothing parses it back.
func RenderTreeSidecar(t *tree.Tree) string {
	type row struct {
		key   string
		depth int
	}
	var rows []row

	collect := func(key string, _ tree.Entry) bool {
		rows = append(rows, row{key: key, depth: strings.Count(key, string(os.PathSeparator))})
		return true
	}
	t.Files.Range(collect)
	t.Dirs.Range(collect)
	t.Symlinks.Range(collect)
	t.Unknown.Range(collect)

	sort.Slice(rows, func(i, j int) bool { return rows[i].key < rows[j].key })

	var b strings.Builder
	for _, r := range rows {
		b.WriteString(strings.Repeat("  ", r.depth))
		segs := strings.Split(r.key, string(os.PathSeparator))
		b.WriteString(segs[len(segs)-1])
		b.WriteByte('\n')
	}
	return b.String()
}

// WriteTreeSidecar renders t and writes it to <dest>/tree.txt.
func WriteTreeSidecar(destRoot string, t *tree.Tree) error {
	path := destRoot + string(os.PathSeparator) + "tree.txt"
	return os.WriteFile(path, []byte(RenderTreeSidecar(t)), 0o644)
}
