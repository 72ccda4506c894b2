package cachestore

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/behaviorlab/datakit/codec"
	"github.com/behaviorlab/datakit/fingerprint"
	internalfs "github.com/behaviorlab/datakit/internal/fs"
)

func testKey(t *testing.T, id string) fingerprint.Fingerprint {
	t.Helper()
	fp, err := fingerprint.New(fingerprint.DigestBytes([]byte("dataset")), id, nil)
	require.NoError(t, err)
	return fp
}

func mustOpen(t *testing.T, cfg Config) *Store {
	t.Helper()
	s, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetMemoryOnly(t *testing.T) {
	s := mustOpen(t, Config{})
	ctx := context.Background()
	key := testKey(t, "user_stats")

	_, ok := s.Get(ctx, key)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, key, []byte("payload"), PutOptions{}))
	got, ok := s.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), got)

	st := s.Stats()
	assert.Equal(t, int64(1), st.Hits)
	assert.Equal(t, int64(1), st.Misses)
	assert.Equal(t, int64(1), st.MemHits)
	assert.InDelta(t, 0.5, st.HitRate, 1e-9)
}

func TestDiskTierRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	key := testKey(t, "gender_dist")
	value := bytes.Repeat([]byte("abc123"), 1000)

	s := mustOpen(t, Config{Dir: dir})
	require.NoError(t, s.Put(ctx, key, value, PutOptions{}))
	require.NoError(t, s.Close())

	// Payload file and manifest exist under the cache dir.
	_, err := os.Stat(filepath.Join(dir, key.String()+payloadExt))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, manifestName))
	require.NoError(t, err)

	// A reopened store serves the entry from disk.
	s2 := mustOpen(t, Config{Dir: dir})
	got, ok := s2.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, value, got)
	assert.Equal(t, int64(1), s2.Stats().DiskHits)

	// And the hit promoted it to memory.
	_, ok = s2.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, int64(1), s2.Stats().MemHits)
}

func TestManifestCodecMismatchResets(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	key := testKey(t, "user_stats")

	s := mustOpen(t, Config{Dir: dir})
	require.NoError(t, s.Put(ctx, key, []byte("payload"), PutOptions{}))
	require.NoError(t, s.Close())

	// Payloads written under one codec cannot be trusted by another;
	// the reopened store starts its disk tier clean.
	s2 := mustOpen(t, Config{Dir: dir, Codec: codec.JSON{}})
	_, ok := s2.Get(ctx, key)
	assert.False(t, ok)
	assert.Equal(t, 0, s2.Stats().EntryCount)
	_, err := os.Stat(filepath.Join(dir, key.String()+payloadExt))
	assert.True(t, os.IsNotExist(err), "stale payload file must be removed")
}

func TestMemoryEvictionKeepsDiskCopy(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s := mustOpen(t, Config{Dir: dir, MemoryBudgetBytes: 1024})
	var keys []fingerprint.Fingerprint
	for i := 0; i < 4; i++ {
		key := testKey(t, string(rune('a'+i)))
		keys = append(keys, key)
		require.NoError(t, s.Put(ctx, key, bytes.Repeat([]byte{byte(i)}, 400), PutOptions{}))
	}

	st := s.Stats()
	assert.LessOrEqual(t, st.MemoryBytes, int64(1024))
	assert.Greater(t, st.Evictions, int64(0))
	assert.Equal(t, 4, st.EntryCount, "evicted entries survive on disk")

	// The first entry was evicted from memory but still reads back.
	got, ok := s.Get(ctx, keys[0])
	require.True(t, ok)
	assert.Equal(t, bytes.Repeat([]byte{0}, 400), got)
	assert.Equal(t, int64(1), s.Stats().DiskHits)
}

func TestMemoryOnlyEvictionDropsEntry(t *testing.T) {
	s := mustOpen(t, Config{MemoryBudgetBytes: 1024})
	ctx := context.Background()

	a := testKey(t, "a")
	b := testKey(t, "b")
	require.NoError(t, s.Put(ctx, a, bytes.Repeat([]byte("x"), 700), PutOptions{}))
	require.NoError(t, s.Put(ctx, b, bytes.Repeat([]byte("y"), 700), PutOptions{}))

	// No disk tier, so evicting a's residency removes it entirely.
	_, ok := s.Get(ctx, a)
	assert.False(t, ok)
	_, ok = s.Get(ctx, b)
	assert.True(t, ok)
	assert.Equal(t, 1, s.Stats().EntryCount)
}

func TestDiskBudgetEviction(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	clock := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	s := mustOpen(t, Config{
		Dir:             dir,
		DiskBudgetBytes: 2000,
		Compressor:      NoCompression{},
		Clock:           func() time.Time { return clock },
	})

	a := testKey(t, "oldest")
	require.NoError(t, s.Put(ctx, a, bytes.Repeat([]byte("a"), 900), PutOptions{}))
	clock = clock.Add(time.Minute)
	b := testKey(t, "middle")
	require.NoError(t, s.Put(ctx, b, bytes.Repeat([]byte("b"), 900), PutOptions{}))
	clock = clock.Add(time.Minute)
	c := testKey(t, "newest")
	require.NoError(t, s.Put(ctx, c, bytes.Repeat([]byte("c"), 900), PutOptions{}))

	// The least recently used entry was removed from both tiers.
	st := s.Stats()
	assert.LessOrEqual(t, st.DiskBytes, int64(2000))
	assert.Equal(t, 2, st.EntryCount)
	_, ok := s.Get(ctx, a)
	assert.False(t, ok)
	_, err := os.Stat(filepath.Join(dir, a.String()+payloadExt))
	assert.True(t, os.IsNotExist(err))
}

func TestTTLExpiry(t *testing.T) {
	clock := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s := mustOpen(t, Config{Clock: func() time.Time { return clock }})
	ctx := context.Background()
	key := testKey(t, "hourly")

	require.NoError(t, s.Put(ctx, key, []byte("v"), PutOptions{TTL: time.Hour}))
	_, ok := s.Get(ctx, key)
	assert.True(t, ok)

	clock = clock.Add(time.Hour + time.Second)
	_, ok = s.Get(ctx, key)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Stats().EntryCount)
}

func TestTTLNotPersistedAcrossRestartWhenExpired(t *testing.T) {
	dir := t.TempDir()
	clock := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()
	key := testKey(t, "session")

	s := mustOpen(t, Config{Dir: dir, Clock: func() time.Time { return clock }})
	require.NoError(t, s.Put(ctx, key, []byte("v"), PutOptions{TTL: time.Minute}))
	require.NoError(t, s.Close())

	clock = clock.Add(2 * time.Minute)
	s2 := mustOpen(t, Config{Dir: dir, Clock: func() time.Time { return clock }})
	_, ok := s2.Get(ctx, key)
	assert.False(t, ok)
}

func TestNegativeTTLOverridesDefault(t *testing.T) {
	clock := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s := mustOpen(t, Config{
		DefaultTTL: time.Minute,
		Clock:      func() time.Time { return clock },
	})
	ctx := context.Background()
	key := testKey(t, "pinned")

	require.NoError(t, s.Put(ctx, key, []byte("v"), PutOptions{TTL: -1}))
	clock = clock.Add(24 * time.Hour)
	_, ok := s.Get(ctx, key)
	assert.True(t, ok)
}

func TestInvalidateDataset(t *testing.T) {
	s := mustOpen(t, Config{})
	ctx := context.Background()

	dsA := fingerprint.DigestBytes([]byte("dataset-a"))
	dsB := fingerprint.DigestBytes([]byte("dataset-b"))
	keyA1, _ := fingerprint.New(dsA, "stats", nil)
	keyA2, _ := fingerprint.New(dsA, "trends", nil)
	keyB, _ := fingerprint.New(dsB, "stats", nil)

	require.NoError(t, s.Put(ctx, keyA1, []byte("1"), PutOptions{DatasetDigest: dsA}))
	require.NoError(t, s.Put(ctx, keyA2, []byte("2"), PutOptions{DatasetDigest: dsA}))
	require.NoError(t, s.Put(ctx, keyB, []byte("3"), PutOptions{DatasetDigest: dsB}))

	assert.Equal(t, 2, s.InvalidateDataset(dsA))

	_, ok := s.Get(ctx, keyA1)
	assert.False(t, ok)
	_, ok = s.Get(ctx, keyB)
	assert.True(t, ok)
}

func TestInvalidateAll(t *testing.T) {
	dir := t.TempDir()
	s := mustOpen(t, Config{Dir: dir})
	ctx := context.Background()
	key := testKey(t, "x")

	require.NoError(t, s.Put(ctx, key, []byte("v"), PutOptions{}))
	s.InvalidateAll()

	_, ok := s.Get(ctx, key)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Stats().EntryCount)
	_, err := os.Stat(filepath.Join(dir, key.String()+payloadExt))
	assert.True(t, os.IsNotExist(err))
}

func TestCorruptPayloadSelfHeals(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	key := testKey(t, "damaged")

	s := mustOpen(t, Config{Dir: dir})
	require.NoError(t, s.Put(ctx, key, bytes.Repeat([]byte("data"), 500), PutOptions{}))
	require.NoError(t, s.Close())

	// Flip bytes in the payload file.
	path := filepath.Join(dir, key.String()+payloadExt)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[len(raw)/2] ^= 0xff
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	s2 := mustOpen(t, Config{Dir: dir})
	_, ok := s2.Get(ctx, key)
	assert.False(t, ok, "corrupt payload must be a miss, not bad data")

	// The entry and its file are gone.
	assert.Equal(t, 0, s2.Stats().EntryCount)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestOrphanPayloadRemovedOnOpen(t *testing.T) {
	dir := t.TempDir()
	orphan := filepath.Join(dir, "deadbeef"+payloadExt)
	require.NoError(t, os.WriteFile(orphan, []byte("junk"), 0o644))

	mustOpen(t, Config{Dir: dir})
	_, err := os.Stat(orphan)
	assert.True(t, os.IsNotExist(err))
}

func TestDiskWriteFailureDegradesToMemory(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	faulty := internalfs.NewFaultyFS(nil)
	faulty.FailFiles(payloadExt, internalfs.Fault{FailWrite: true})

	s := mustOpen(t, Config{Dir: dir, FS: faulty})
	key := testKey(t, "unlucky")

	// Put succeeds despite the disk fault, and the value still serves
	// from memory.
	require.NoError(t, s.Put(ctx, key, []byte("v"), PutOptions{}))
	got, ok := s.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)
	assert.Equal(t, int64(0), s.Stats().DiskBytes)
}

func TestDiskTierDisabledAfterRepeatedFailures(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	faulty := internalfs.NewFaultyFS(nil)
	faulty.FailFiles(".tmp", internalfs.Fault{FailWrite: true})

	s := mustOpen(t, Config{Dir: dir, FS: faulty})
	for i := 0; i < maxDiskFailures; i++ {
		key := testKey(t, string(rune('a'+i)))
		require.NoError(t, s.Put(ctx, key, []byte("v"), PutOptions{}))
	}

	s.mu.Lock()
	disabled := !s.diskOK
	s.mu.Unlock()
	assert.True(t, disabled, "disk tier should disable after %d failures", maxDiskFailures)
}

func TestPutReplacesEntry(t *testing.T) {
	s := mustOpen(t, Config{})
	ctx := context.Background()
	key := testKey(t, "versioned")

	require.NoError(t, s.Put(ctx, key, []byte("old"), PutOptions{}))
	require.NoError(t, s.Put(ctx, key, []byte("new"), PutOptions{}))

	got, ok := s.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, []byte("new"), got)
	assert.Equal(t, 1, s.Stats().EntryCount)
}

func TestCompressorRoundTrips(t *testing.T) {
	payload := bytes.Repeat([]byte("behavioral analytics "), 200)

	for _, name := range []string{"zstd", "lz4", "none"} {
		comp, err := CompressorByName(name)
		require.NoError(t, err)

		packed, err := comp.Compress(payload)
		require.NoError(t, err)
		got, err := comp.Decompress(packed)
		require.NoError(t, err)
		assert.Equal(t, payload, got, name)
	}
}
