package cachestore

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/behaviorlab/datakit/codec"
	"github.com/behaviorlab/datakit/fingerprint"
	internalfs "github.com/behaviorlab/datakit/internal/fs"
	"github.com/behaviorlab/datakit/internal/hash"
	"github.com/behaviorlab/datakit/internal/resource"
)

// maxDiskFailures is the consecutive-failure count after which the disk
// tier is disabled and the store continues memory-only.
const maxDiskFailures = 3

// Config configures a two-tier store.
type Config struct {
	// Dir is the disk-tier directory. Empty disables the disk tier.
	Dir string
	// MemoryBudgetBytes bounds the memory tier. Default 256 MiB.
	MemoryBudgetBytes int64
	// DiskBudgetBytes bounds the disk tier. Default 2 GiB.
	DiskBudgetBytes int64
	// DefaultTTL applies to entries stored without an explicit TTL.
	// Zero means entries never expire by default.
	DefaultTTL time.Duration
	// Codec encodes the manifest. Defaults to codec.Default.
	Codec codec.Codec
	// Compressor encodes disk payloads. Defaults to zstd.
	Compressor Compressor
	// FS is the disk-tier file system. Defaults to the local one;
	// tests inject a faulty implementation.
	FS internalfs.FileSystem
	// Resources optionally bounds memory-tier bytes and disk writes
	// against process-wide limits shared with the ingestor.
	Resources *resource.Controller
	// Logger defaults to a discard logger.
	Logger *slog.Logger
	// Clock overrides time.Now for tests.
	Clock func() time.Time
}

func (c *Config) setDefaults() error {
	if c.MemoryBudgetBytes <= 0 {
		c.MemoryBudgetBytes = 256 << 20
	}
	if c.DiskBudgetBytes <= 0 {
		c.DiskBudgetBytes = 2 << 30
	}
	if c.Codec == nil {
		c.Codec = codec.Default
	}
	if c.Compressor == nil {
		z, err := NewZstd()
		if err != nil {
			return err
		}
		c.Compressor = z
	}
	if c.FS == nil {
		c.FS = internalfs.Default
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return nil
}

// Store is a two-tier (memory + disk) result cache keyed by fingerprint.
//
// The memory tier holds uncompressed payloads under a byte budget with LRU
// eviction. The disk tier holds compressed, checksummed payload files plus
// a manifest; entries evicted from memory stay readable from disk and are
// promoted back on access. Disk failures never fail a caller: the store
// logs and degrades to memory-only.
//
// Safe for concurrent use.
type Store struct {
	cfg    Config
	fsys   internalfs.FileSystem
	codec  codec.Codec
	comp   Compressor
	res    *resource.Controller
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	entries   map[string]*entryState
	lru       *list.List // memory-resident entries, most recent in front
	memBytes  int64
	diskBytes int64
	diskOK    bool
	dirty     bool
	failures  int
	closed    bool

	hits      atomic.Int64
	misses    atomic.Int64
	memHits   atomic.Int64
	diskHits  atomic.Int64
	evictions atomic.Int64
}

// PutOptions carry per-entry metadata.
type PutOptions struct {
	// TTL overrides the store's default. Negative means never expire.
	TTL time.Duration
	// DatasetDigest ties the entry to its source dataset for
	// dataset-wide invalidation.
	DatasetDigest fingerprint.Digest
}

// Open creates or reopens a store. With a disk directory configured, the
// manifest is loaded, expired and damaged entries are dropped, and orphan
// payload files are removed.
func Open(cfg Config) (*Store, error) {
	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}

	s := &Store{
		cfg:     cfg,
		fsys:    cfg.FS,
		codec:   cfg.Codec,
		comp:    cfg.Compressor,
		res:     cfg.Resources,
		logger:  cfg.Logger,
		now:     cfg.Clock,
		entries: make(map[string]*entryState),
		lru:     list.New(),
		diskOK:  cfg.Dir != "",
	}

	if s.diskOK {
		if err := s.fsys.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
		if err := s.loadManifest(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Get returns the cached payload for key. A memory hit refreshes recency;
// a disk hit verifies the checksum, promotes the payload into memory, and
// self-heals by dropping the entry if the file is damaged. Expired entries
// are misses.
func (s *Store) Get(ctx context.Context, key fingerprint.Fingerprint) ([]byte, bool) {
	fp := key.String()

	s.mu.Lock()
	st, ok := s.entries[fp]
	if !ok {
		s.mu.Unlock()
		s.misses.Add(1)
		return nil, false
	}
	if st.expired(s.now()) {
		s.removeEntryLocked(st, true)
		s.flushManifestLocked()
		s.mu.Unlock()
		s.misses.Add(1)
		return nil, false
	}

	st.LastAccess = s.now()
	st.AccessCount++
	s.dirty = true

	if st.mem != nil {
		s.lru.MoveToFront(st.elem)
		data := st.mem
		s.mu.Unlock()
		s.hits.Add(1)
		s.memHits.Add(1)
		return data, true
	}
	s.mu.Unlock()

	data, err := s.readPayload(ctx, st)
	if err != nil {
		s.logger.WarnContext(ctx, "cache payload unreadable, dropping entry",
			"fingerprint", fp, "error", err)
		s.mu.Lock()
		if cur, ok := s.entries[fp]; ok && cur == st {
			s.removeEntryLocked(st, true)
			s.flushManifestLocked()
		}
		s.mu.Unlock()
		s.misses.Add(1)
		return nil, false
	}

	s.mu.Lock()
	if cur, ok := s.entries[fp]; ok && cur == st && st.mem == nil {
		s.admitMemoryLocked(st, data)
	}
	s.mu.Unlock()

	s.hits.Add(1)
	s.diskHits.Add(1)
	return data, true
}

// Put stores a payload under key, replacing any previous entry. The write
// lands in the memory tier immediately; the disk copy is compressed,
// checksummed, and written atomically. A disk write failure leaves the
// entry memory-only.
func (s *Store) Put(ctx context.Context, key fingerprint.Fingerprint, value []byte, opts PutOptions) error {
	fp := key.String()
	now := s.now()

	e := Entry{
		Fingerprint: fp,
		Size:        int64(len(value)),
		CreatedAt:   now,
		LastAccess:  now,
	}
	if !opts.DatasetDigest.IsZero() {
		e.DatasetDigest = opts.DatasetDigest.String()
	}
	switch {
	case opts.TTL > 0:
		e.ExpiresAt = now.Add(opts.TTL)
	case opts.TTL == 0 && s.cfg.DefaultTTL > 0:
		e.ExpiresAt = now.Add(s.cfg.DefaultTTL)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("cachestore: store is closed")
	}
	if old, ok := s.entries[fp]; ok {
		s.removeEntryLocked(old, true)
	}
	st := &entryState{Entry: e}
	s.entries[fp] = st
	s.admitMemoryLocked(st, value)
	s.dirty = true
	s.mu.Unlock()

	if s.diskTierEnabled() {
		s.writePayload(ctx, st, value)
	}

	s.mu.Lock()
	s.evictDiskLocked()
	s.flushManifestLocked()
	s.mu.Unlock()
	return nil
}

// Invalidate removes the entry for key from both tiers.
func (s *Store) Invalidate(key fingerprint.Fingerprint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.entries[key.String()]; ok {
		s.removeEntryLocked(st, true)
		s.flushManifestLocked()
	}
}

// InvalidateDataset removes every entry computed from the dataset with the
// given content digest and returns the number removed.
func (s *Store) InvalidateDataset(digest fingerprint.Digest) int {
	want := digest.String()

	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int
	for _, st := range s.entries {
		if st.DatasetDigest == want {
			s.removeEntryLocked(st, true)
			removed++
		}
	}
	if removed > 0 {
		s.flushManifestLocked()
	}
	return removed
}

// InvalidateAll empties both tiers.
func (s *Store) InvalidateAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.entries {
		s.removeEntryLocked(st, true)
	}
	s.flushManifestLocked()
}

// Close flushes the manifest. The store must not be used afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.flushManifestLocked()
	return nil
}

// admitMemoryLocked installs data as the entry's memory residency,
// evicting older residents until the payload fits. Oversized payloads
// skip the memory tier entirely.
func (s *Store) admitMemoryLocked(st *entryState, data []byte) {
	size := int64(len(data))
	if size > s.cfg.MemoryBudgetBytes {
		return
	}

	for s.memBytes+size > s.cfg.MemoryBudgetBytes {
		back := s.lru.Back()
		if back == nil {
			return
		}
		s.dropMemoryLocked(back.Value.(*entryState))
		s.evictions.Add(1)
	}

	if !s.res.TryAcquireMemory(size) {
		// Global memory pressure; serve from disk instead.
		return
	}
	st.mem = data
	st.elem = s.lru.PushFront(st)
	s.memBytes += size
}

// dropMemoryLocked releases an entry's memory residency. The entry stays
// in the index as long as its disk copy exists.
func (s *Store) dropMemoryLocked(st *entryState) {
	if st.mem == nil {
		return
	}
	size := int64(len(st.mem))
	s.memBytes -= size
	s.res.ReleaseMemory(size)
	s.lru.Remove(st.elem)
	st.mem = nil
	st.elem = nil

	if !st.OnDisk {
		// Nothing backs the entry anymore.
		delete(s.entries, st.Fingerprint)
		s.dirty = true
	}
}

// removeEntryLocked deletes an entry from the index and, when removeFile
// is set, its payload file.
func (s *Store) removeEntryLocked(st *entryState, removeFile bool) {
	if st.mem != nil {
		size := int64(len(st.mem))
		s.memBytes -= size
		s.res.ReleaseMemory(size)
		s.lru.Remove(st.elem)
		st.mem = nil
		st.elem = nil
	}
	if st.OnDisk {
		s.diskBytes -= st.DiskSize
		if removeFile {
			if err := s.fsys.Remove(s.payloadPath(st.Fingerprint)); err != nil && !isNotExist(err) {
				s.logger.Warn("failed to remove cache payload",
					"fingerprint", st.Fingerprint, "error", err)
			}
		}
		st.OnDisk = false
	}
	delete(s.entries, st.Fingerprint)
	s.dirty = true
}

// evictDiskLocked trims the disk tier to its budget. Victims are chosen
// least recently used first, ties broken by access count then by age, and
// removed outright from both tiers.
func (s *Store) evictDiskLocked() {
	for s.diskBytes > s.cfg.DiskBudgetBytes {
		var victim *entryState
		for _, st := range s.entries {
			if !st.OnDisk {
				continue
			}
			if victim == nil || evictBefore(st, victim) {
				victim = st
			}
		}
		if victim == nil {
			return
		}
		s.removeEntryLocked(victim, true)
		s.evictions.Add(1)
	}
}

func (s *Store) diskTierEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.diskOK
}

// writePayload compresses and writes an entry's payload file. Failures
// degrade the entry to memory-only.
func (s *Store) writePayload(ctx context.Context, st *entryState, value []byte) {
	compressed, err := s.comp.Compress(value)
	if err != nil {
		s.logger.WarnContext(ctx, "cache payload compression failed",
			"fingerprint", st.Fingerprint, "error", err)
		return
	}
	sum := hash.Checksum64(compressed)

	if err := s.res.AcquireWriteSlot(ctx); err != nil {
		return
	}
	defer s.res.ReleaseWriteSlot()
	if err := s.res.AcquireIO(ctx, len(compressed)); err != nil {
		return
	}

	if err := s.writeFileAtomic(s.payloadPath(st.Fingerprint), compressed); err != nil {
		s.mu.Lock()
		s.noteDiskFailureLocked("write payload", err)
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	if cur, ok := s.entries[st.Fingerprint]; ok && cur == st {
		st.OnDisk = true
		st.DiskSize = int64(len(compressed))
		st.Checksum = sum
		st.Compressor = s.comp.Name()
		s.diskBytes += st.DiskSize
		s.dirty = true
		s.failures = 0
	} else if _, ok := s.entries[st.Fingerprint]; !ok {
		// Entry was invalidated while the write was in flight; a
		// concurrent replacement would overwrite the file itself.
		_ = s.fsys.Remove(s.payloadPath(st.Fingerprint))
	}
	s.mu.Unlock()
}

// readPayload loads and verifies an entry's payload file.
func (s *Store) readPayload(ctx context.Context, st *entryState) ([]byte, error) {
	if !st.OnDisk {
		return nil, errors.New("entry has no disk payload")
	}
	if err := s.res.AcquireIO(ctx, int(st.DiskSize)); err != nil {
		return nil, err
	}

	compressed, err := s.fsys.ReadFile(s.payloadPath(st.Fingerprint))
	if err != nil {
		return nil, err
	}
	if sum := hash.Checksum64(compressed); sum != st.Checksum {
		return nil, fmt.Errorf("checksum mismatch: got %x, want %x", sum, st.Checksum)
	}

	comp := s.comp
	if st.Compressor != comp.Name() {
		if comp, err = CompressorByName(st.Compressor); err != nil {
			return nil, err
		}
	}
	data, err := comp.Decompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("decompress payload: %w", err)
	}
	if int64(len(data)) != st.Size {
		return nil, fmt.Errorf("payload size mismatch: got %d, want %d", len(data), st.Size)
	}
	return data, nil
}

func (s *Store) writeFileAtomic(path string, data []byte) error {
	return internalfs.WriteFileAtomic(s.fsys, path, data, 0o644)
}

// noteDiskFailureLocked counts consecutive disk failures and disables the
// disk tier once they pass the threshold. Caller holds s.mu.
func (s *Store) noteDiskFailureLocked(op string, err error) {
	s.failures++
	s.logger.Warn("cache disk operation failed",
		"op", op, "error", err, "consecutive", s.failures)
	if s.failures >= maxDiskFailures && s.diskOK {
		s.diskOK = false
		s.logger.Error("disk tier disabled after repeated failures, continuing memory-only")
	}
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, os.ErrNotExist)
}
