// Package cache memoizes remote requests in durable per-source key/value
// files so each distinct request is made at most once across runs.
package cache

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Store is a durable key/value mapping for one external source.
type Store interface {
	Get(key string) (json.RawMessage, bool)
	Put(key string, value json.RawMessage) error
}

// FileStats describes a cache file on disk.
type FileStats struct {
	Path    string `json:"path"`
	Entries int    `json:"entries"`
	Bytes   int64  `json:"bytes"`
}

// FileStore is a Store persisted as a single JSON object. Every Put rewrites
// the file, so a crash loses at most the request in flight.
type FileStore struct {
	path string

	mu      sync.RWMutex
	entries map[string]json.RawMessage
}

// OpenFileStore loads the cache at path. A missing, unreadable or corrupt
// file yields an empty store; the file is replaced on the first Put.
func OpenFileStore(path string) *FileStore {
	s := &FileStore{
		path:    path,
		entries: make(map[string]json.RawMessage),
	}
	log := zap.L().With(zap.String("component", "cache"), zap.String("path", path))

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Debug("cache: no cache file, starting empty")
		return s
	case err != nil:
		log.Warn("cache: unreadable cache file, starting empty", zap.Error(err))
		return s
	case len(data) == 0:
		return s
	}

	var loaded map[string]json.RawMessage
	if err := json.Unmarshal(data, &loaded); err != nil {
		log.Warn("cache: corrupt cache file, starting empty", zap.Error(err))
		return s
	}
	if loaded != nil {
		s.entries = loaded
	}
	log.Debug("cache: loaded", zap.Int("entries", len(s.entries)))
	return s
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Get returns the cached value for key.
func (s *FileStore) Get(key string) (json.RawMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[key]
	return v, ok
}

// Put stores value under key and flushes the whole map to disk. On a flush
// error the value stays in memory and the error is returned.
func (s *FileStore) Put(key string, value json.RawMessage) error {
	if !json.Valid(value) {
		return eris.Errorf("cache: value for %q is not valid JSON", key)
	}
	cp := make(json.RawMessage, len(value))
	copy(cp, value)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = cp
	return s.flushLocked()
}

// Len returns the number of cached entries.
func (s *FileStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Keys returns all cached keys in sorted order.
func (s *FileStore) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Stats reports the entry count and on-disk size.
func (s *FileStore) Stats() FileStats {
	st := FileStats{Path: s.path, Entries: s.Len()}
	if fi, err := os.Stat(s.path); err == nil {
		st.Bytes = fi.Size()
	}
	return st
}

// flushLocked writes a temp file next to the target and renames it into
// place. Caller must hold s.mu.
func (s *FileStore) flushLocked() error {
	data, err := json.Marshal(s.entries)
	if err != nil {
		return eris.Wrap(err, "cache: encode")
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return eris.Wrap(err, "cache: create temp file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return eris.Wrap(err, "cache: write temp file")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return eris.Wrap(err, "cache: close temp file")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return eris.Wrap(err, "cache: replace cache file")
	}
	return nil
}
