package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
)

// Digest is the SHA-256 content digest of a dataset's raw source bytes.
// It is the dataset's identity: two uploads with identical bytes share a
// digest no matter where the files live, and an in-place edit changes it.
type Digest [sha256.Size]byte

// String returns the lowercase hex encoding.
func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// IsZero reports whether d is the zero digest (no content hashed).
func (d Digest) IsZero() bool { return d == Digest{} }

// ParseDigest parses the hex encoding produced by String.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("parse digest: %w", err)
	}
	if len(b) != sha256.Size {
		return d, fmt.Errorf("parse digest: got %d bytes, want %d", len(b), sha256.Size)
	}
	copy(d[:], b)
	return d, nil
}

// DigestBytes computes the digest of b in one shot.
func DigestBytes(b []byte) Digest {
	return Digest(sha256.Sum256(b))
}

// Hasher accumulates a content digest chunk by chunk, so a large source
// never needs to be buffered whole to compute its identity.
type Hasher struct {
	h hash.Hash
	n int64
}

// NewHasher returns an empty streaming hasher.
func NewHasher() *Hasher {
	return &Hasher{h: sha256.New()}
}

// Write adds raw source bytes to the digest. It never fails.
func (h *Hasher) Write(p []byte) (int, error) {
	n, _ := h.h.Write(p)
	h.n += int64(n)
	return n, nil
}

// Sum returns the digest of everything written so far.
func (h *Hasher) Sum() Digest {
	var d Digest
	copy(d[:], h.h.Sum(nil))
	return d
}

// BytesHashed returns the number of raw bytes consumed.
func (h *Hasher) BytesHashed() int64 { return h.n }
