package digest

import (
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/opencoff/fiobackup/bus"
	"github.com/opencoff/fiobackup/stats"
	"github.com/opencoff/fiobackup/tree"
	"github.com/opencoff/go-logger"
)

// errCanceled is returned by hashFile when the bus reaches EXIT mid-stream.
// It is not a digest error: process() must not count it against
// Stats.DigestError.
var errCanceled = errors.New("digest: canceled")

// Item is one unit of work for the digest pool: a leaf-relative path and
// the absolute root it resolves against (spec.md §4.5).
type Item struct {
	RelPath string
	Root    string
}

// Result is what a digest worker produces for one successfully hashed
// file.
type Result struct {
	RelPath   string
	Root      string
	DigestHex string
	Size      int64
}

const (
	blockSize   = 4 * 1024
	idleTimeout = 2 * time.Second
)

// Pool runs the digest workers described in spec.md §4.5: a bounded
// input queue, N workers, optional manifest-line output under a shared
// mutex, optional result-channel output, and an exclude set of relative
// paths already known-good (the orchestrator's incremental shortcut at
// stage 3).
type Pool struct {
	Algorithm Algorithm
	Workers   int
	Exclude   Records // relative path -> record; excluded keys are skipped
	Bus       *bus.Bus
	Stats     *stats.Registry
	Log       logger.Logger

	// OutputAsAbsolute controls how manifest lines and results key their
	// path: absolute (intermediate, in-memory passes) or the relative
	// key as received (final manifest writes).
	OutputAsAbsolute bool

	// ManifestPath and manifestMu implement the "write manifest line
	// under mutex" output mode. It is optional: with ManifestPath empty,
	// no manifest file is written.
	ManifestPath string
	manifestMu   sync.Mutex
	manifestFile *os.File
}

// Run drains items, hashes each one not covered by Exclude, and sends
// successes to results (if non-nil) and/or appends manifest lines (if
// ManifestPath is set). Run blocks until items is closed and every
// worker has exited, then returns the merged Records of every file it
// hashed, whichever output modes were also in use.
func (p *Pool) Run(items <-chan Item, results chan<- Result) (Records, error) {
	n := p.Workers
	if n < 1 {
		n = 1
	}

	if p.ManifestPath != "" {
		f, err := os.OpenFile(p.ManifestPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		p.manifestFile = f
		defer f.Close()
	}

	collected := make(Records)
	var collectedMu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		p.Bus.Enter()
		go func() {
			defer wg.Done()
			defer p.Bus.Leave()
			p.worker(items, results, collected, &collectedMu)
		}()
	}
	wg.Wait()

	return collected, nil
}

func (p *Pool) worker(items <-chan Item, results chan<- Result, collected Records, collectedMu *sync.Mutex) {
	for {
		if p.Bus.ShouldStop() {
			return
		}

		select {
		case it, ok := <-items:
			if !ok {
				return
			}
			p.process(it, results, collected, collectedMu)
		case <-time.After(idleTimeout):
			return
		}
	}
}

func (p *Pool) process(it Item, results chan<- Result, collected Records, collectedMu *sync.Mutex) {
	if p.Exclude != nil {
		if _, skip := p.Exclude[it.RelPath]; skip {
			return
		}
	}

	abs := tree.Resolve(it.Root, it.RelPath)
	hex, size, err := hashFile(abs, p.Algorithm, p.Bus)
	if err != nil {
		if errors.Is(err, errCanceled) {
			return
		}
		p.Stats.DigestError.Add(1)
		if p.Log != nil {
			p.Log.Warn("digest: %s: %s", abs, err)
		}
		return
	}
	p.Stats.DigestOK.Add(1)

	key := it.RelPath
	if p.OutputAsAbsolute {
		key = abs
	}

	rec := tree.DigestRecord{Root: it.Root, DigestHex: hex}

	if p.manifestFile != nil {
		line := hex + " *" + manifestPathSlashes(key) + "\n"
		p.manifestMu.Lock()
		_, werr := p.manifestFile.WriteString(line)
		p.manifestMu.Unlock()
		if werr != nil && p.Log != nil {
			p.Log.Warn("digest: manifest write: %s", werr)
		}
	}

	collectedMu.Lock()
	collected[key] = rec
	collectedMu.Unlock()

	if results != nil {
		select {
		case results <- Result{RelPath: key, Root: it.Root, DigestHex: hex, Size: size}:
		case <-time.After(idleTimeout):
		}
	}
}

// hashFile streams path in blockSize blocks, polling b between blocks so a
// cancel issued while hashing a large file on slow media is observed
// within one block rather than only once the whole file has been read
// (spec.md §4.1/§5).
func hashFile(path string, alg Algorithm, b *bus.Bus) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := alg.New()
	buf := make([]byte, blockSize)
	var total int64
	for {
		if b.ShouldStop() {
			return "", 0, errCanceled
		}

		n, rerr := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
			total += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return "", 0, rerr
		}
	}

	return hexString(h.Sum(nil)), total, nil
}

const hexDigits = "0123456789abcdef"

func hexString(b []byte) string {
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0x0f]
	}
	return string(out)
}
