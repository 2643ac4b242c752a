//go:build linux || darwin

package fsx

import (
	"fmt"
	"strings"

	"github.com/pkg/xattr"
)

// Xattr is the set of extended attributes of a filesystem entry, keyed by
// attribute name. A nil Xattr means "not probed" or "unsupported here";
// Equal treats it the same as an empty Xattr.
type Xattr map[string]string

func (x Xattr) String() string {
	var b strings.Builder
	for k, v := range x {
		fmt.Fprintf(&b, "%s=%s\n", k, v)
	}
	return b.String()
}

// Equal reports whether x and y carry the same extended attributes.
func (x Xattr) Equal(y Xattr) bool {
	if len(x) != len(y) {
		return false
	}
	for k, v := range x {
		if w, ok := y[k]; !ok || w != v {
			return false
		}
	}
	return true
}

// GetXattr returns the extended attributes of nm, following a terminal
// symlink.
func GetXattr(nm string) (Xattr, error) {
	return fetchXattr(nm, xattr.List, xattr.Get)
}

// LgetXattr is like GetXattr but does not follow a terminal symlink.
func LgetXattr(nm string) (Xattr, error) {
	return fetchXattr(nm, xattr.LList, xattr.LGet)
}

// ReplaceXattr overwrites all extended attributes of nm with x.
func ReplaceXattr(nm string, x Xattr) error {
	return replaceXattr(nm, x, xattr.List, xattr.Remove, xattr.Set)
}

// LreplaceXattr is like ReplaceXattr but does not follow a terminal
// symlink.
func LreplaceXattr(nm string, x Xattr) error {
	return replaceXattr(nm, x, xattr.LList, xattr.LRemove, xattr.LSet)
}

func fetchXattr(nm string, list func(string) ([]string, error), get func(string, string) ([]byte, error)) (Xattr, error) {
	keys, err := list(nm)
	if err != nil {
		return nil, err
	}

	x := make(Xattr, len(keys))
	for _, k := range keys {
		b, err := get(nm, k)
		if err != nil {
			return nil, err
		}
		x[k] = string(b)
	}
	return x, nil
}

func replaceXattr(nm string, x Xattr, list func(string) ([]string, error), del func(string, string) error, set func(string, string, []byte) error) error {
	keys, err := list(nm)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := del(nm, k); err != nil {
			return err
		}
	}
	for k, v := range x {
		if err := set(nm, k, []byte(v)); err != nil {
			return err
		}
	}
	return nil
}
