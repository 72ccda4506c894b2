package cachestore

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const (
	manifestVersion = 1
	manifestName    = "MANIFEST.json"
	payloadExt      = ".bin"
)

// manifest is the on-disk index of the disk tier. It is rewritten
// atomically; a crash leaves either the old or the new index, never a
// torn one.
type manifest struct {
	Version int       `json:"version"`
	Codec   string    `json:"codec"`
	SavedAt time.Time `json:"saved_at"`
	Entries []Entry   `json:"entries"`
}

func (s *Store) manifestPath() string {
	return filepath.Join(s.cfg.Dir, manifestName)
}

func (s *Store) payloadPath(fp string) string {
	return filepath.Join(s.cfg.Dir, fp+payloadExt)
}

// loadManifest rebuilds the index from disk. Entries that expired, or
// whose payload file is missing, are dropped; payload files the manifest
// does not know about are removed.
func (s *Store) loadManifest() error {
	data, err := s.fsys.ReadFile(s.manifestPath())
	if err != nil {
		if isNotExist(err) {
			s.removeOrphans(nil)
			return nil
		}
		return fmt.Errorf("read manifest: %w", err)
	}

	var m manifest
	if err := s.codec.Unmarshal(data, &m); err != nil {
		// A corrupt manifest orphans every payload; start clean.
		s.logger.Warn("cache manifest corrupt, resetting disk tier",
			"path", s.manifestPath(), "error", err)
		s.removeOrphans(nil)
		return nil
	}
	if m.Version != manifestVersion {
		s.logger.Warn("cache manifest version mismatch, resetting disk tier",
			"got", m.Version, "want", manifestVersion)
		s.removeOrphans(nil)
		return nil
	}
	if m.Codec != "" && m.Codec != s.codec.Name() {
		// Payloads on disk were encoded by a different codec and would
		// not decode; start clean rather than serve garbage.
		s.logger.Warn("cache manifest codec mismatch, resetting disk tier",
			"got", m.Codec, "want", s.codec.Name())
		s.removeOrphans(nil)
		return nil
	}

	now := s.now()
	known := make(map[string]bool, len(m.Entries))
	for i := range m.Entries {
		e := m.Entries[i]
		if e.expired(now) {
			continue
		}
		if !e.OnDisk {
			// Memory residency does not survive a restart.
			continue
		}
		if _, err := s.fsys.Stat(s.payloadPath(e.Fingerprint)); err != nil {
			s.logger.Warn("cache payload missing, dropping entry",
				"fingerprint", e.Fingerprint)
			continue
		}
		known[e.Fingerprint] = true
		s.entries[e.Fingerprint] = &entryState{Entry: e}
		s.diskBytes += e.DiskSize
	}
	s.removeOrphans(known)
	return nil
}

// removeOrphans deletes payload files the index does not reference.
func (s *Store) removeOrphans(known map[string]bool) {
	dirEntries, err := s.fsys.ReadDir(s.cfg.Dir)
	if err != nil {
		return
	}
	for _, de := range dirEntries {
		name := de.Name()
		if !strings.HasSuffix(name, payloadExt) {
			continue
		}
		fp := strings.TrimSuffix(name, payloadExt)
		if known[fp] {
			continue
		}
		if err := s.fsys.Remove(filepath.Join(s.cfg.Dir, name)); err != nil {
			s.logger.Warn("failed to remove orphan payload", "file", name, "error", err)
		}
	}
}

// flushManifestLocked persists the index. Caller holds s.mu.
func (s *Store) flushManifestLocked() {
	if !s.diskOK || !s.dirty {
		return
	}

	m := manifest{Version: manifestVersion, Codec: s.codec.Name(), SavedAt: s.now()}
	m.Entries = make([]Entry, 0, len(s.entries))
	for _, st := range s.entries {
		m.Entries = append(m.Entries, st.Entry)
	}

	data, err := s.codec.Marshal(&m)
	if err != nil {
		s.logger.Warn("failed to encode cache manifest", "error", err)
		return
	}
	if err := s.writeFileAtomic(s.manifestPath(), data); err != nil {
		s.noteDiskFailureLocked("write manifest", err)
		return
	}
	s.dirty = false
}
