package fiobackup

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/opencoff/fiobackup/bus"
	"github.com/opencoff/fiobackup/digest"
	"github.com/opencoff/fiobackup/stats"
	"github.com/opencoff/fiobackup/tree"
	"github.com/opencoff/fiobackup/walk"
	"github.com/opencoff/go-logger"
)

// Engine drives a single backup or validation run (spec.md §4.8, §4.9).
// It owns nothing persistent across runs beyond what Config names; every
// field here is wiring for one Run/Validate call.
type Engine struct {
	Config Config
	Bus    *bus.Bus
	Stats  *stats.Registry
	Log    logger.Logger
	Events Events
}

// New returns an Engine ready to run, with a fresh control bus and
// statistics registry. A nil log is replaced with a discarding logger so
// every internal call site can log unconditionally.
func New(cfg Config, log logger.Logger, ev Events) *Engine {
	if log == nil {
		log = discardLogger()
	}
	return &Engine{
		Config: cfg,
		Bus:    bus.New(),
		Stats:  &stats.Registry{},
		Log:    log,
		Events: ev,
	}
}

func discardLogger() logger.Logger {
	l, err := logger.NewLogger(os.DevNull, logger.LOG_EMERG, "fiobackup", 0)
	if err != nil {
		return nil
	}
	return l
}

// Pause asks every worker pool in the current run to stop dequeuing new
// work and notifies the host application via Events.PauseStateChanged.
func (e *Engine) Pause() {
	e.Bus.RequestPause()
	e.Events.pauseStateChanged(true)
}

// Resume reverses a prior Pause.
func (e *Engine) Resume() {
	e.Bus.RequestResume()
	e.Events.pauseStateChanged(false)
}

// cancelGrace bounds how long Cancel waits for live workers to
// acknowledge EXIT before giving up and returning control to the caller
// (spec.md §4.1/§9: "forcibly terminates still-live workers after a
// bounded grace period (~1s)").
const cancelGrace = 1 * time.Second

// Cancel requests that the current run stop at its next cooperative
// checkpoint and blocks for up to cancelGrace waiting for every
// registered worker to acknowledge. Run/Validate return CANCELED once
// the in-flight stage unwinds; Cancel itself never blocks past grace.
func (e *Engine) Cancel() {
	e.Bus.RequestCancel()
	if !e.Bus.WaitDrain(cancelGrace) && e.Log != nil {
		e.Log.Warn("fiobackup: %d worker(s) still live after %s cancellation grace period", e.Bus.LiveWorkers(), cancelGrace)
	}
}

func (e *Engine) manifestPath() string {
	return filepath.Join(e.Config.SaveTo, digest.ManifestName(e.Config.ChecksumAlg))
}

func (e *Engine) treeSidecarPath() string {
	return filepath.Join(e.Config.SaveTo, "tree.txt")
}

// Run executes the Backup Run (spec.md §4.8) and returns the terminal
// exit code. A non-nil error accompanies ERROR; CANCELED carries no
// error (cancellation is not a failure).
func (e *Engine) Run() (ExitCode, error) {
	e.Stats.Reset(time.Now())

	validated, inputTree, mirrorTree, err := e.prepare()
	if err != nil {
		if _, ok := err.(*CanceledError); ok {
			e.Events.finished(CANCELED)
			return CANCELED, nil
		}
		e.Events.finished(ERROR)
		return ERROR, err
	}
	if e.Bus.Canceled() {
		e.Events.finished(CANCELED)
		return CANCELED, nil
	}
	e.Events.setStatusLine(e.Stats.StatusLine(stats.StagePrepare, 100))

	digestsIn := e.digestInputs(inputTree)
	if e.Bus.Canceled() {
		e.Events.finished(CANCELED)
		return CANCELED, nil
	}

	digestsOut := e.digestOutputs(mirrorTree)
	if e.Bus.Canceled() {
		e.Events.finished(CANCELED)
		return CANCELED, nil
	}

	if e.Config.DeleteData {
		e.deleteStrayEntries(mirrorTree, inputTree, validated)
		if e.Bus.Canceled() {
			e.Events.finished(CANCELED)
			return CANCELED, nil
		}
	}

	if e.Config.CreateEmptyDirs {
		e.createEmptyDirs(inputTree)
		if e.Bus.Canceled() {
			e.Events.finished(CANCELED)
			return CANCELED, nil
		}
	}

	e.copyPool(inputTree, digestsIn, digestsOut)
	if e.Bus.Canceled() {
		e.Events.finished(CANCELED)
		return CANCELED, nil
	}

	finalMirror := e.reenumerateMirror()

	if err := e.finalizeManifest(finalMirror, digestsIn, digestsOut); err != nil {
		e.Events.finished(ERROR)
		return ERROR, err
	}

	if e.Config.GenerateTree {
		if err := WriteTreeSidecar(e.Config.SaveTo, finalMirror); err != nil && e.Log != nil {
			e.Log.Warn("fiobackup: tree sidecar: %s", err)
		}
	}

	e.Events.setProgress(100)
	e.Events.setStatusLine(e.Stats.Report())
	e.Events.finished(SUCCESS)
	return SUCCESS, nil
}

// prepare implements stage 1: validate config, build the input and
// mirror trees.
func (e *Engine) prepare() (tree.Validated, *tree.Tree, *tree.Tree, error) {
	if len(e.Config.InputPaths) == 0 {
		return nil, nil, nil, &ConfigError{Err: errEmptyInputList}
	}

	if err := os.MkdirAll(e.Config.SaveTo, 0o755); err != nil {
		return nil, nil, nil, &ConfigError{Err: err}
	}

	validated, err := tree.ValidateInputs(e.Config.InputPaths)
	if err != nil {
		return nil, nil, nil, &ConfigError{Err: err}
	}

	for p := range validated {
		if overlaps(p, e.Config.SaveTo) {
			return nil, nil, nil, &ConfigError{Err: &DestinationOverlapError{Input: p, Dest: e.Config.SaveTo}}
		}
	}

	inputTree := tree.New()
	var inputJobs []walk.Job
	for p, skip := range validated {
		if skip {
			continue
		}
		if job, ok := e.seedInputEntry(inputTree, p); ok {
			inputJobs = append(inputJobs, job)
		}
	}

	n := e.Config.WorkloadProfile.WorkerCount(len(inputJobs))
	walk.Run(inputTree, inputJobs, walk.Options{
		FollowSymlinks: e.Config.FollowSymlinks,
		Workers:        n,
		Bus:            e.Bus,
		Stats:          e.Stats,
		Log:            e.Log,
		Seen:           walk.NewInodeGuard(),
	})

	if e.Bus.Canceled() {
		return nil, nil, nil, &CanceledError{}
	}

	mirrorTree := e.walkMirror()

	if e.Bus.Canceled() {
		return nil, nil, nil, &CanceledError{}
	}

	return validated, inputTree, mirrorTree, nil
}

// walkMirror enumerates the destination, excluding the manifest sidecar
// and the tree sidecar from the resulting tree.
func (e *Engine) walkMirror() *tree.Tree {
	mirrorTree := tree.New()
	ignore := map[string]bool{
		e.manifestPath():    true,
		e.treeSidecarPath(): true,
	}
	walk.Run(mirrorTree, []walk.Job{{RelParent: "", Root: e.Config.SaveTo}}, walk.Options{
		FollowSymlinks: e.Config.FollowSymlinks,
		Workers:        1,
		Bus:            e.Bus,
		Stats:          e.Stats,
		Log:            e.Log,
		Ignore:         ignore,
	})
	return mirrorTree
}

// seedInputEntry classifies one top-level input path and stores it in t.
// For a non-empty directory it also returns the walk.Job needed to
// enumerate its contents.
func (e *Engine) seedInputEntry(t *tree.Tree, entryPath string) (walk.Job, bool) {
	root := filepath.Dir(entryPath)
	key := filepath.Base(entryPath)

	lst, err := os.Lstat(entryPath)
	if err != nil {
		return walk.Job{}, false
	}

	isSymlink := lst.Mode()&os.ModeSymlink != 0
	switch {
	case isSymlink && !e.Config.FollowSymlinks:
		t.Store(key, tree.Entry{Root: root, Classification: tree.SYMLINK})
		e.Stats.SymlinksObserved.Add(1)
		return walk.Job{}, false

	case isSymlink && e.Config.FollowSymlinks:
		if isDirTarget(entryPath) {
			empty := dirIsEmpty(entryPath)
			t.Store(key, tree.Entry{Root: root, Classification: tree.DIR, Empty: empty})
			e.Stats.DirsObserved.Add(1)
			if empty {
				return walk.Job{}, false
			}
			return walk.Job{RelParent: key, Root: root}, true
		}
		t.Store(key, tree.Entry{Root: root, Classification: tree.FILE})
		e.Stats.FilesObserved.Add(1)
		return walk.Job{}, false

	case lst.Mode().IsRegular():
		t.Store(key, tree.Entry{Root: root, Classification: tree.FILE})
		e.Stats.FilesObserved.Add(1)
		return walk.Job{}, false

	case lst.IsDir():
		empty := dirIsEmpty(entryPath)
		t.Store(key, tree.Entry{Root: root, Classification: tree.DIR, Empty: empty})
		e.Stats.DirsObserved.Add(1)
		if empty {
			return walk.Job{}, false
		}
		return walk.Job{RelParent: key, Root: root}, true

	default:
		t.Store(key, tree.Entry{Root: root, Classification: tree.UNKNOWN})
		return walk.Job{}, false
	}
}

func isDirTarget(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

func dirIsEmpty(dir string) bool {
	f, err := os.Open(dir)
	if err != nil {
		return false
	}
	defer f.Close()
	names, err := f.Readdirnames(1)
	if err != nil {
		return false
	}
	return len(names) == 0
}

// overlaps reports whether a and b are the same path or one is an
// ancestor of the other (spec.md §9 open question: refuse rather than
// risk unbounded recursion).
func overlaps(a, b string) bool {
	a = filepath.Clean(a)
	b = filepath.Clean(b)
	if a == b {
		return true
	}
	return strings.HasPrefix(a, b+string(filepath.Separator)) ||
		strings.HasPrefix(b, a+string(filepath.Separator))
}
