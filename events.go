package fiobackup

// Events is the External Interface Adapter's four progress sinks
// (spec.md §6). Any field may be left nil; the orchestrator checks
// before calling.
type Events struct {
	SetProgress       func(percent int)
	SetStatusLine     func(line string)
	PauseStateChanged func(paused bool)
	Finished          func(code ExitCode)
}

func (e Events) setProgress(percent int) {
	if e.SetProgress != nil {
		e.SetProgress(percent)
	}
}

func (e Events) setStatusLine(line string) {
	if e.SetStatusLine != nil {
		e.SetStatusLine(line)
	}
}

func (e Events) pauseStateChanged(paused bool) {
	if e.PauseStateChanged != nil {
		e.PauseStateChanged(paused)
	}
}

func (e Events) finished(code ExitCode) {
	if e.Finished != nil {
		e.Finished(code)
	}
}
