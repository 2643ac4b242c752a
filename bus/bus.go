// Package bus implements the cooperative pause/resume/cancel control plane
// that every worker pool in the backup engine polls. It generalizes the
// single atomic.Bool "stopped" flag the teacher's WorkPool uses into a
// tri-state machine (WORK, PAUSE, EXIT) shared by every pool in a run.
package bus

import (
	"sync/atomic"
	"time"
)

// State is one of the three legal control states.
type State int32

const (
	// WORK is the default state: workers process queue items normally.
	WORK State = iota
	// PAUSE asks workers to stop dequeuing new work and busy-wait.
	PAUSE
	// EXIT is terminal: workers drain acknowledged output and return.
	EXIT
)

func (s State) String() string {
	switch s {
	case WORK:
		return "WORK"
	case PAUSE:
		return "PAUSE"
	case EXIT:
		return "EXIT"
	default:
		return "UNKNOWN"
	}
}

// pollInterval is how long a paused worker sleeps between polls of the
// bus, per spec.md §4.1 ("busy-waits with short sleeps ~100ms").
const pollInterval = 100 * time.Millisecond

// drainPollInterval is how often the orchestrator checks LiveWorkers
// while waiting out a cancellation's grace period.
const drainPollInterval = 50 * time.Millisecond

// Bus is a process-wide (per-run) atomic control state plus a count of
// workers that are registered and have not yet returned. It is safe for
// concurrent use by any number of workers and exactly one orchestrator.
type Bus struct {
	state State32

	// liveWorkers counts workers that have registered with the bus and
	// not yet returned. The orchestrator uses it to know when a
	// cancellation's grace period can end early.
	liveWorkers atomic.Int64
}

// State32 is an atomic.Int32-backed State, broken out so Bus can embed it
// without exposing a bare atomic.Int32 in its public surface.
type State32 struct{ v atomic.Int32 }

func (s *State32) load() State      { return State(s.v.Load()) }
func (s *State32) store(st State)   { s.v.Store(int32(st)) }
func (s *State32) cas(old, new State) bool {
	return s.v.CompareAndSwap(int32(old), int32(new))
}

// New returns a Bus in the WORK state.
func New() *Bus {
	b := &Bus{}
	b.state.store(WORK)
	return b
}

// Read returns the current control state. This is the only call workers
// need to poll at each loop iteration and at coarse-grained points inside
// long operations (never mid-byte within a single digest block, per
// spec.md §4.1).
func (b *Bus) Read() State { return b.state.load() }

// RequestPause transitions WORK -> PAUSE. It is a no-op if the bus is
// already paused or has exited.
func (b *Bus) RequestPause() {
	b.state.cas(WORK, PAUSE)
}

// RequestResume transitions PAUSE -> WORK. It is a no-op if the bus is
// not currently paused (in particular, it never resurrects an EXITed bus).
func (b *Bus) RequestResume() {
	b.state.cas(PAUSE, WORK)
}

// RequestCancel transitions {WORK,PAUSE} -> EXIT. EXIT is terminal; once
// set it can never be left.
func (b *Bus) RequestCancel() {
	for {
		cur := b.state.load()
		if cur == EXIT {
			return
		}
		if b.state.cas(cur, EXIT) {
			return
		}
	}
}

// Canceled reports whether the bus has reached the terminal EXIT state.
func (b *Bus) Canceled() bool { return b.Read() == EXIT }

// Enter registers a worker as live; call once when a worker goroutine
// starts. Leave must be called (typically via defer) when it returns.
func (b *Bus) Enter() { b.liveWorkers.Add(1) }

// Leave deregisters a worker. Safe to call from a defer unconditionally
// after a matching Enter.
func (b *Bus) Leave() { b.liveWorkers.Add(-1) }

// LiveWorkers returns the number of workers currently registered.
func (b *Bus) LiveWorkers() int64 { return b.liveWorkers.Load() }

// WaitDrain blocks until every registered worker has called Leave or
// grace elapses, whichever comes first. It reports whether every worker
// had drained by the time it returned. Call this after RequestCancel:
// workers are expected to observe EXIT and return well within grace
// since ShouldStop is polled at each loop iteration and between digest
// blocks; a worker still live after grace is logged by the caller and
// left to finish on its own, since Go offers no way to forcibly
// terminate a goroutine (spec.md §4.1/§9's two-phase cancel design).
func (b *Bus) WaitDrain(grace time.Duration) bool {
	deadline := time.Now().Add(grace)
	for {
		if b.LiveWorkers() == 0 {
			return true
		}
		if time.Now().After(deadline) {
			return b.LiveWorkers() == 0
		}
		time.Sleep(drainPollInterval)
	}
}

// WaitWhilePaused blocks the calling worker goroutine with short
// cooperative sleeps for as long as the bus reports PAUSE, returning the
// state that ended the wait (WORK or EXIT). It never blocks if the bus is
// not currently paused.
func (b *Bus) WaitWhilePaused() State {
	for {
		st := b.Read()
		if st != PAUSE {
			return st
		}
		time.Sleep(pollInterval)
	}
}

// ShouldStop is a convenience combining a pause-wait with an exit check:
// it blocks while paused and reports true once the bus reaches EXIT. Call
// this at the top of each worker loop iteration.
func (b *Bus) ShouldStop() bool {
	return b.WaitWhilePaused() == EXIT
}
