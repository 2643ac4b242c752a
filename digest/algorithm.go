// Package digest implements the Manifest Codec (spec.md §4.3) and the
// Digest Pool (spec.md §4.5): streamed file hashing, manifest parsing and
// writing, and the worker pool that drives both against a bus-controlled
// backup run.
package digest

import (
	"crypto/md5"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"strings"
)

// Algorithm identifies one of the supported digest functions.
type Algorithm int

const (
	MD5 Algorithm = iota
	SHA256
	SHA512
)

// HexLen returns the number of lowercase hex characters a digest under a
// produces (32/64/128 for MD5/SHA-256/SHA-512 — spec.md §3).
func (a Algorithm) HexLen() int {
	switch a {
	case MD5:
		return 32
	case SHA256:
		return 64
	case SHA512:
		return 128
	default:
		return 0
	}
}

// String returns the lowercase algorithm name used as the manifest file's
// extension: checksums.<alg_lowercase> (spec.md §6).
func (a Algorithm) String() string {
	switch a {
	case MD5:
		return "md5"
	case SHA256:
		return "sha256"
	case SHA512:
		return "sha512"
	default:
		return "unknown"
	}
}

// ParseAlgorithm maps a case-insensitive name (as accepted on the config
// surface, spec.md §6 "one of {MD5, SHA-256, SHA-512}") to an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "-", "")) {
	case "md5":
		return MD5, nil
	case "sha256":
		return SHA256, nil
	case "sha512":
		return SHA512, nil
	default:
		return 0, fmt.Errorf("digest: unknown algorithm %q", s)
	}
}

// New returns a fresh hash.Hash for a.
func (a Algorithm) New() hash.Hash {
	switch a {
	case MD5:
		return md5.New()
	case SHA256:
		return sha256.New()
	case SHA512:
		return sha512.New()
	default:
		panic("digest: New called on invalid algorithm")
	}
}

func isHex(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}
