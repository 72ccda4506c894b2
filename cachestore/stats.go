package cachestore

// Stats is a point-in-time snapshot of store counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	MemHits   int64 `json:"mem_hits"`
	DiskHits  int64 `json:"disk_hits"`
	Evictions int64 `json:"evictions"`

	EntryCount  int   `json:"entry_count"`
	MemoryBytes int64 `json:"memory_bytes"`
	DiskBytes   int64 `json:"disk_bytes"`
	TotalBytes  int64 `json:"total_bytes"`

	// HitRate is hits over total lookups, 0 when nothing was looked up.
	HitRate float64 `json:"hit_rate"`
}

// Stats returns a snapshot of the store's counters and sizes.
func (s *Store) Stats() Stats {
	st := Stats{
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		MemHits:   s.memHits.Load(),
		DiskHits:  s.diskHits.Load(),
		Evictions: s.evictions.Load(),
	}

	s.mu.Lock()
	st.EntryCount = len(s.entries)
	st.MemoryBytes = s.memBytes
	st.DiskBytes = s.diskBytes
	s.mu.Unlock()
	st.TotalBytes = st.MemoryBytes + st.DiskBytes

	if total := st.Hits + st.Misses; total > 0 {
		st.HitRate = float64(st.Hits) / float64(total)
	}
	return st
}
