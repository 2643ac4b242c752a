package fsx

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
)

// SafeFile is an io.WriteCloser backed by a temporary file that is
// atomically renamed into place on Close, and discarded on Abort. Typical
// usage:
//
//	sf, err := NewSafeFile(dst, OPT_OVERWRITE, os.O_CREATE|os.O_RDWR, 0644)
//	...
//	defer sf.Abort()
//	... write to sf ...
//	return sf.Close()
//
// The first call to either Abort or Close seals the outcome; calling the
// other afterwards is a safe no-op. CopyFile uses this so the copy pool
// never leaves a partial file behind on failure or cancellation.
type SafeFile struct {
	*os.File

	err  error
	name string

	// < 0 aborted, > 0 closed, == 0 open
	closed atomic.Int64
}

var _ io.WriteCloser = &SafeFile{}

const (
	// OPT_OVERWRITE allows NewSafeFile to replace an existing regular file.
	OPT_OVERWRITE uint32 = 1 << iota
	// OPT_COW seeds the temp file with the existing destination's content
	// before the caller starts writing, so a partial rewrite still ends up
	// byte-identical to the original where the caller didn't touch it.
	OPT_COW
)

// NewSafeFile creates the backing temp file for nm. If nm already exists
// and OPT_OVERWRITE is not set, NewSafeFile fails rather than clobber it.
func NewSafeFile(nm string, opts uint32, flag int, perm os.FileMode) (*SafeFile, error) {
	if st, err := Stat(nm); err == nil {
		if opts&OPT_OVERWRITE == 0 {
			return nil, fmt.Errorf("safefile: won't overwrite existing %s", nm)
		}
		if !st.Mode().IsRegular() {
			return nil, fmt.Errorf("safefile: %s is not a regular file", nm)
		}
	}

	flag |= os.O_CREATE | os.O_TRUNC
	if opts&OPT_COW != 0 {
		flag &^= os.O_WRONLY
		flag |= os.O_RDWR
	}
	if flag&os.O_RDONLY != 0 {
		return nil, fmt.Errorf("safefile: %s conflicting open mode (O_RDONLY)", nm)
	}
	if flag&(os.O_RDWR|os.O_WRONLY) == 0 {
		flag |= os.O_RDWR
	}

	tmp := fmt.Sprintf("%s.tmp.%d.%x", nm, os.Getpid(), randU32())
	fd, err := os.OpenFile(tmp, flag, perm)
	if err != nil {
		return nil, err
	}

	if opts&OPT_COW != 0 {
		old, err := os.Open(nm)
		switch {
		case err != nil && !os.IsNotExist(err):
			fd.Close()
			os.Remove(tmp)
			return nil, fmt.Errorf("safefile: open-cow: %w", err)
		case err == nil:
			err = CopyFd(fd, old)
			old.Close()
			if err != nil {
				fd.Close()
				os.Remove(tmp)
				return nil, fmt.Errorf("safefile: %s: %w", nm, err)
			}
		}
	}

	return &SafeFile{File: fd, name: nm}, nil
}

func (sf *SafeFile) isOpen() bool { return sf.closed.Load() == 0 }

// Write implements io.Writer; the first write error is sticky.
func (sf *SafeFile) Write(b []byte) (int, error) {
	if sf.err != nil {
		return 0, sf.err
	}
	if !sf.isOpen() {
		return 0, fmt.Errorf("safefile: %s is not open", sf.Name())
	}

	var z int
	n := len(b)
	for n > 0 {
		m, err := sf.File.Write(b)
		if err != nil {
			sf.err = fmt.Errorf("safefile: %w", err)
			return z, sf.err
		}
		n -= m
		b = b[m:]
		z += m
	}
	return z, nil
}

// WriteAt writes b at absolute offset off.
func (sf *SafeFile) WriteAt(b []byte, off int64) (int, error) {
	if sf.err != nil {
		return 0, sf.err
	}
	if !sf.isOpen() {
		return 0, fmt.Errorf("safefile: %s is not open", sf.Name())
	}
	n, err := sf.File.WriteAt(b, off)
	if err != nil {
		sf.err = err
	}
	return n, err
}

// Abort discards the temp file; it never touches the final destination.
func (sf *SafeFile) Abort() {
	if n := sf.closed.Load(); n != 0 {
		return
	}
	sf.File.Close()
	os.Remove(sf.File.Name())
	sf.closed.Store(-1)
}

// Close flushes, closes and atomically renames the temp file into place.
// If a prior Write failed it aborts and returns the sticky error; after an
// Abort it returns errAborted; if already closed it returns nil.
func (sf *SafeFile) Close() error {
	if sf.err != nil {
		sf.Abort()
		return sf.err
	}

	switch sf.closed.Load() {
	case -1:
		return errAborted
	case 1:
		return nil
	}

	tmpName := sf.File.Name()
	if sf.err = sf.Sync(); sf.err != nil {
		return sf.err
	}
	if sf.err = sf.File.Close(); sf.err != nil {
		return sf.err
	}
	if sf.err = os.Rename(tmpName, sf.name); sf.err != nil {
		return sf.err
	}

	sf.closed.Store(1)
	return nil
}

func randU32() uint32 {
	var b [4]byte
	if _, err := io.ReadFull(rand.Reader, b[:]); err != nil {
		panic(fmt.Sprintf("fsx: can't read 4 random bytes: %s", err))
	}
	return binary.LittleEndian.Uint32(b[:])
}

var errAborted = errors.New("safefile: aborted; file not committed")
