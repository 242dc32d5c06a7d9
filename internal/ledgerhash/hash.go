// Package ledgerhash provides the canonical encoding and digest primitives
// used to seal and verify evidence blocks: a deterministic byte encoding for
// arbitrary field sets, a selectable digest algorithm, and a Merkle tree over
// artifact content hashes.
package ledgerhash

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"

	"golang.org/x/crypto/sha3"
)

// Algorithm selects the digest function used to seal blocks and hash
// artifact content. The zero value is invalid; callers must pick one.
type Algorithm int32

const (
	AlgorithmUnspecified Algorithm = iota
	AlgorithmSHA256
	AlgorithmSHA3_256
)

func (a Algorithm) String() string {
	switch a {
	case AlgorithmSHA256:
		return "sha256"
	case AlgorithmSHA3_256:
		return "sha3-256"
	default:
		return "unspecified"
	}
}

// Sum computes the digest of data using alg. It panics on an unrecognized
// algorithm since that reflects a programming error, not bad input.
func Sum(alg Algorithm, data []byte) []byte {
	switch alg {
	case AlgorithmSHA256:
		sum := sha256.Sum256(data)
		return sum[:]
	case AlgorithmSHA3_256:
		sum := sha3.Sum256(data)
		return sum[:]
	default:
		panic(fmt.Sprintf("ledgerhash: unrecognized algorithm %d", alg))
	}
}

// Fields is an ordered set of named byte values that together make up a
// canonical encoding. Encode sorts by name so callers never need to worry
// about field insertion order affecting the resulting hash.
type Fields map[string][]byte

// Encode produces a deterministic byte sequence from f: keys sorted
// lexicographically, each entry framed as len(name) | name | len(value) |
// value so no ambiguity arises between adjacent fields of different
// lengths.
func Encode(f Fields) []byte {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf []byte
	var lenBuf [8]byte
	appendLen := func(n int) {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(n))
		buf = append(buf, lenBuf[:]...)
	}
	for _, name := range names {
		appendLen(len(name))
		buf = append(buf, name...)
		val := f[name]
		appendLen(len(val))
		buf = append(buf, val...)
	}
	return buf
}

// EncodeStrings is a convenience wrapper for Fields built entirely from
// UTF-8 strings, the common case for header and metadata fields.
func EncodeStrings(f map[string]string) []byte {
	fields := make(Fields, len(f))
	for k, v := range f {
		fields[k] = []byte(v)
	}
	return Encode(fields)
}
