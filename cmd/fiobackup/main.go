// main.go - CLI driver for the incremental checksum-verified backup engine

package main

import (
	"fmt"
	"os"
	"path"

	fiobackup "github.com/opencoff/fiobackup"
	"github.com/opencoff/fiobackup/digest"
	"github.com/opencoff/fiobackup/tree"
	"github.com/opencoff/go-logger"
	flag "github.com/opencoff/pflag"
)

var Z = path.Base(os.Args[0])

func main() {
	var help, validate, followSymlinks, deleteData, deleteSkipped bool
	var createEmptyDirs, generateTree, recalc bool
	var algName, profileName, logfile string

	fs := flag.NewFlagSet(Z, flag.ExitOnError)

	fs.BoolVarP(&help, "help", "h", false, "Show help and exit [False]")
	fs.BoolVarP(&validate, "validate", "V", false, "Run a validation pass against an existing mirror [False]")
	fs.BoolVarP(&followSymlinks, "follow-symlinks", "L", false, "Follow symlinks instead of preserving them [False]")
	fs.BoolVarP(&deleteData, "delete", "", false, "Delete stray mirror entries not present on the input side [False]")
	fs.BoolVarP(&deleteSkipped, "delete-skipped", "", false, "Also delete mirror entries covered by a skipped input [False]")
	fs.BoolVarP(&createEmptyDirs, "create-empty-dirs", "", true, "Materialize empty input directories on the mirror [True]")
	fs.BoolVarP(&generateTree, "tree", "t", false, "Write a tree.txt sidecar describing the mirror [False]")
	fs.BoolVarP(&recalc, "recalculate-checksum", "", false, "Recompute every mirror digest from scratch [False]")
	fs.StringVarP(&algName, "algorithm", "a", "sha256", "Digest `ALG`: one of md5, sha256, sha512")
	fs.StringVarP(&profileName, "workload", "w", "normal", "Workload `PROFILE`: very-low, low, normal, high, insane")
	fs.StringVarP(&logfile, "logfile", "l", "", "Write log output to `FILE` [stderr]")

	fs.SetOutput(os.Stdout)

	if err := fs.Parse(os.Args[1:]); err != nil {
		die("%s", err)
	}
	if help {
		usage(fs)
	}

	args := fs.Args()
	if len(args) < 2 {
		die("Usage: %s [options] save-to input [input...]", Z)
	}
	saveTo, inputs := args[0], args[1:]

	alg, err := digest.ParseAlgorithm(algName)
	if err != nil {
		die("%s", err)
	}
	profile, err := fiobackup.ParseWorkloadProfile(profileName)
	if err != nil {
		die("%s", err)
	}

	log, err := newLogger(logfile)
	if err != nil {
		die("%s", err)
	}

	entries := make([]tree.InputEntry, 0, len(inputs))
	for _, p := range inputs {
		entries = append(entries, tree.InputEntry{Path: p})
	}

	cfg := fiobackup.Config{
		InputPaths:          entries,
		SaveTo:              saveTo,
		FollowSymlinks:      followSymlinks,
		DeleteData:          deleteData,
		DeleteSkipped:       deleteSkipped,
		CreateEmptyDirs:     createEmptyDirs,
		GenerateTree:        generateTree,
		ChecksumAlg:         alg,
		WorkloadProfile:     profile,
		RecalculateChecksum: recalc,
	}

	events := fiobackup.Events{
		SetStatusLine: func(line string) { fmt.Fprintln(os.Stderr, line) },
	}

	eng := fiobackup.New(cfg, log, events)

	var code fiobackup.ExitCode
	if validate {
		var results []fiobackup.ValidationResult
		code, results, err = eng.Validate()
		for _, r := range results {
			if r.Outcome != fiobackup.Match {
				fmt.Printf("%s: %s\n", outcomeString(r.Outcome), r.RelPath)
			}
		}
	} else {
		code, err = eng.Run()
	}
	if err != nil {
		die("%s", err)
	}
	os.Exit(int(code))
}

func outcomeString(o fiobackup.ValidationOutcome) string {
	switch o {
	case fiobackup.Mismatch:
		return "MISMATCH"
	case fiobackup.Missing:
		return "MISSING"
	case fiobackup.Stale:
		return "STALE"
	default:
		return "MATCH"
	}
}

func newLogger(logfile string) (logger.Logger, error) {
	if logfile == "" {
		logfile = "STDERR"
	}
	return logger.NewLogger(logfile, logger.LOG_INFO, Z, logger.Ldate|logger.Ltime)
}

func usage(fs *flag.FlagSet) {
	fmt.Printf(usageStr, Z, Z)
	fs.PrintDefaults()
	os.Exit(0)
}

func die(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s: %s\n", Z, fmt.Sprintf(format, args...))
	os.Exit(1)
}

var usageStr = `%s - incremental checksum-verified directory backup.

Mirrors one or more input paths under a destination directory, reusing
previously copied content when digests prove it unchanged, and writes a
digest manifest sidecar a later --validate pass checks the mirror against.

Usage: %s [options] save-to input [input...]

Options:
`
