package stats

import (
	"strings"
	"testing"
	"time"
)

func TestResetZeroesCounters(t *testing.T) {
	var r Registry
	r.FilesObserved.Add(3)
	r.CopyOK.Add(2)
	r.ValidationMismatch.Add(1)

	r.Reset(time.Now())

	if r.FilesObserved.Load() != 0 || r.CopyOK.Load() != 0 || r.ValidationMismatch.Load() != 0 {
		t.Fatalf("Reset did not zero all counters")
	}
}

func TestStatusLineContainsCounters(t *testing.T) {
	var r Registry
	r.Reset(time.Now())
	r.FilesObserved.Add(5)
	r.CopyOK.Add(4)
	r.CopyError.Add(1)

	line := r.StatusLine(StageCopy, 42)
	for _, want := range []string{"copy", "42%", "files=5", "copy=4/1"} {
		if !strings.Contains(line, want) {
			t.Fatalf("status line %q missing %q", line, want)
		}
	}
}

func TestValidationReportBuckets(t *testing.T) {
	var r Registry
	r.Reset(time.Now())
	r.ValidationMatch.Add(10)
	r.ValidationMismatch.Add(1)
	r.ValidationMissing.Add(2)
	r.ValidationStale.Add(3)

	rep := r.ValidationReport()
	for _, want := range []string{"10 match", "1 mismatch", "2 missing", "3 stale"} {
		if !strings.Contains(rep, want) {
			t.Fatalf("validation report %q missing %q", rep, want)
		}
	}
}
