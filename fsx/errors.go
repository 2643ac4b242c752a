package fsx

import (
	"errors"
	"fmt"
)

// errAny reports whether err matches any of errs via errors.Is.
func errAny(err error, errs ...error) bool {
	for _, e := range errs {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

// CopyError describes a failure from CopyFile, CloneSymlink or CopyFd.
type CopyError struct {
	Op  string
	Src string
	Dst string
	Err error
}

func (e *CopyError) Error() string {
	return fmt.Sprintf("fsx: %s '%s' '%s': %s", e.Op, e.Src, e.Dst, e.Err.Error())
}

func (e *CopyError) Unwrap() error { return e.Err }

var _ error = &CopyError{}
