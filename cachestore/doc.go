// Package cachestore implements the two-tier computation result cache.
//
// Results enter a byte-budgeted memory tier and, when a directory is
// configured, a compressed disk tier indexed by an atomically rewritten
// manifest. Entries evicted from memory survive on disk and are promoted
// back on access; damaged payload files are detected by checksum and
// dropped rather than served.
package cachestore
