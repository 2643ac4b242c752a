// Package fiobackup is the incremental, checksum-verified directory
// backup engine: given a set of user-designated input paths and a
// destination directory, it reconciles a mirror under the destination,
// reusing previously copied content when digests prove it unchanged,
// optionally deleting stray entries, and writing a digest manifest
// sidecar that a later validation run can check the mirror against.
package fiobackup

import (
	"fmt"
	"runtime"

	"github.com/opencoff/fiobackup/digest"
	"github.com/opencoff/fiobackup/tree"
)

// WorkloadProfile is the coarse CPU-budget knob spec.md §5 maps to a
// fraction of available CPUs.
type WorkloadProfile int

const (
	VeryLow WorkloadProfile = iota
	Low
	Normal
	High
	Insane
)

// ParseWorkloadProfile maps a config string to a WorkloadProfile.
func ParseWorkloadProfile(s string) (WorkloadProfile, error) {
	switch s {
	case "very-low":
		return VeryLow, nil
	case "low":
		return Low, nil
	case "normal":
		return Normal, nil
	case "high":
		return High, nil
	case "insane":
		return Insane, nil
	default:
		return 0, fmt.Errorf("fiobackup: unknown workload profile %q", s)
	}
}

// WorkerCount maps p to an absolute worker count for a pool offering n
// work items, capped so no pool spawns more workers than it has items
// (spec.md §5). The result is never below 1.
func (p WorkloadProfile) WorkerCount(n int) int {
	cpus := runtime.NumCPU()
	var want int
	switch p {
	case VeryLow:
		want = 1
	case Low:
		want = maxInt(1, cpus/4)
	case Normal:
		want = maxInt(1, cpus/2)
	case High:
		want = maxInt(1, (cpus*3)/4)
	case Insane:
		want = cpus
	default:
		want = 1
	}
	if want > n {
		want = n
	}
	if want < 1 {
		want = 1
	}
	return want
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Config enumerates the backup engine's full configuration surface
// (spec.md §6).
type Config struct {
	InputPaths []tree.InputEntry
	SaveTo     string

	FollowSymlinks bool

	DeleteData    bool
	DeleteSkipped bool

	CreateEmptyDirs bool
	GenerateTree    bool

	ChecksumAlg         digest.Algorithm
	WorkloadProfile     WorkloadProfile
	RecalculateChecksum bool
}
