package cachestore

import (
	"container/list"
	"time"
)

// Entry is the persisted metadata for one cached result. It appears in the
// manifest verbatim, so field changes must bump manifestVersion.
type Entry struct {
	// Fingerprint is the hex cache key.
	Fingerprint string `json:"fingerprint"`
	// DatasetDigest is the hex content digest of the dataset the result
	// was computed from. Dataset-wide invalidation matches on it.
	DatasetDigest string `json:"dataset_digest,omitempty"`
	// Size is the uncompressed payload size.
	Size int64 `json:"size"`
	// DiskSize is the compressed payload size on disk, 0 while the entry
	// is memory-only.
	DiskSize int64 `json:"disk_size,omitempty"`
	// Checksum is the xxhash of the compressed payload file.
	Checksum uint64 `json:"checksum,omitempty"`
	// Compressor names the codec used for the payload file.
	Compressor string `json:"compressor,omitempty"`
	// OnDisk reports whether a payload file exists for this entry.
	OnDisk bool `json:"on_disk"`

	CreatedAt   time.Time `json:"created_at"`
	LastAccess  time.Time `json:"last_access"`
	AccessCount int64     `json:"access_count"`
	// ExpiresAt is the absolute expiry; zero means the entry never expires.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

func (e *Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// entryState is the in-memory view of an entry: its persisted metadata
// plus the memory-tier residency.
type entryState struct {
	Entry
	// mem holds the uncompressed payload while memory-resident, nil otherwise.
	mem []byte
	// elem is the entry's position in the memory recency list while resident.
	elem *list.Element
}

// evictBefore orders eviction candidates: least recently used first, ties
// broken by fewer accesses, then by age.
func evictBefore(a, b *entryState) bool {
	if !a.LastAccess.Equal(b.LastAccess) {
		return a.LastAccess.Before(b.LastAccess)
	}
	if a.AccessCount != b.AccessCount {
		return a.AccessCount < b.AccessCount
	}
	return a.CreatedAt.Before(b.CreatedAt)
}
