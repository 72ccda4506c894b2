package hash

import (
	"github.com/cespare/xxhash/v2"
)

// Checksum64 computes the xxhash64 checksum of data.
// Used to verify payload files read back from the disk tier; a mismatch
// means the file was truncated or corrupted and must be discarded.
func Checksum64(data []byte) uint64 {
	return xxhash.Sum64(data)
}
