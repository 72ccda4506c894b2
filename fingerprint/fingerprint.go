package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Fingerprint identifies a (dataset content, computation, parameters)
// triple. It is the cache key for memoized computation results.
type Fingerprint [sha256.Size]byte

// String returns the lowercase hex encoding, used as the payload filename
// on the disk tier.
func (f Fingerprint) String() string { return hex.EncodeToString(f[:]) }

// Parse parses the hex encoding produced by String.
func Parse(s string) (Fingerprint, error) {
	var f Fingerprint
	b, err := hex.DecodeString(s)
	if err != nil {
		return f, fmt.Errorf("parse fingerprint: %w", err)
	}
	if len(b) != sha256.Size {
		return f, fmt.Errorf("parse fingerprint: got %d bytes, want %d", len(b), sha256.Size)
	}
	copy(f[:], b)
	return f, nil
}

// New derives the fingerprint for a computation over a dataset.
// It fails with UnhashableError if params contains a value outside the
// canonicalizable set. No side effects.
func New(contentDigest Digest, computationID string, params Params) (Fingerprint, error) {
	canonical, err := Canonicalize(params)
	if err != nil {
		return Fingerprint{}, err
	}

	h := sha256.New()
	h.Write([]byte("datakit/fp/v1\n"))
	h.Write(contentDigest[:])
	writeFramed(h, []byte(computationID))
	writeFramed(h, canonical)

	var f Fingerprint
	copy(f[:], h.Sum(nil))
	return f, nil
}

// writeFramed length-prefixes each section so adjacent fields can never
// alias each other ("ab"+"c" vs "a"+"bc").
func writeFramed(h interface{ Write([]byte) (int, error) }, b []byte) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(b)))
	h.Write(n[:])
	h.Write(b)
}
