// Package vfs is an in-memory, content-addressed file store. Projects
// live entirely in memory; builds read immutable snapshots so writes
// from unrelated requests can never bleed into an in-flight build.
package vfs

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"previewkit/internal/logging"
)

// ErrNotFound is returned when a path has no entry.
var ErrNotFound = errors.New("vfs: path not found")

// Entry is one stored file.
type Entry struct {
	Path        string
	Content     string
	ContentHash string
	Version     int
}

// Store is a mutable path→content map. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[string]Entry)}
}

// Normalize cleans a path into the canonical /-rooted form used as a
// store key. Backslashes are treated as separators so Windows-flavored
// AI output still lands on the same key.
func Normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// HashContent returns the SHA-256 hex digest of content.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Put inserts or replaces the entry at path and returns it. Version
// starts at 1 and increments on every overwrite of the same path.
func (s *Store) Put(p, content string) Entry {
	key := Normalize(p)
	s.mu.Lock()
	defer s.mu.Unlock()

	version := 1
	if prev, ok := s.entries[key]; ok {
		version = prev.Version + 1
	}
	e := Entry{
		Path:        key,
		Content:     content,
		ContentHash: HashContent(content),
		Version:     version,
	}
	s.entries[key] = e
	logging.L(logging.CategoryVFS).Debug("put",
		zap.String("path", key),
		zap.Int("version", version),
		zap.Int("bytes", len(content)))
	return e
}

// Get returns the entry at path or ErrNotFound.
func (s *Store) Get(p string) (Entry, error) {
	key := Normalize(p)
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return e, nil
}

// List returns all entries whose path starts with prefix, sorted by path.
func (s *Store) List(prefix string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for p, e := range s.entries {
		if strings.HasPrefix(p, prefix) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Snapshot captures the current state. The returned snapshot is
// immutable: later Puts on the store are invisible to it.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	entries := make(map[string]Entry, len(s.entries))
	for p, e := range s.entries {
		entries[p] = e
	}
	s.mu.RUnlock()
	return newSnapshot(entries)
}

// Snapshot is an immutable view of a store at one point in time.
type Snapshot struct {
	entries map[string]Entry
	hash    string
}

func newSnapshot(entries map[string]Entry) *Snapshot {
	paths := make([]string, 0, len(entries))
	for p := range entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	h := sha256.New()
	for _, p := range paths {
		h.Write([]byte(p))
		h.Write([]byte{0})
		h.Write([]byte(entries[p].ContentHash))
		h.Write([]byte{0})
	}
	return &Snapshot{entries: entries, hash: hex.EncodeToString(h.Sum(nil))}
}

// SnapshotOf builds a snapshot directly from path→content pairs,
// bypassing a Store. Used for one-shot builds and tests.
func SnapshotOf(files map[string]string) *Snapshot {
	entries := make(map[string]Entry, len(files))
	for p, content := range files {
		key := Normalize(p)
		entries[key] = Entry{
			Path:        key,
			Content:     content,
			ContentHash: HashContent(content),
			Version:     1,
		}
	}
	return newSnapshot(entries)
}

// Get returns the entry at path or ErrNotFound.
func (s *Snapshot) Get(p string) (Entry, error) {
	e, ok := s.entries[Normalize(p)]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, Normalize(p))
	}
	return e, nil
}

// Has reports whether path exists.
func (s *Snapshot) Has(p string) bool {
	_, ok := s.entries[Normalize(p)]
	return ok
}

// Paths returns all paths in sorted order.
func (s *Snapshot) Paths() []string {
	out := make([]string, 0, len(s.entries))
	for p := range s.entries {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of entries.
func (s *Snapshot) Len() int { return len(s.entries) }

// Hash is the aggregate digest over sorted (path, content hash) pairs.
// Identical trees always hash identically, making it usable as an
// artifact cache key component.
func (s *Snapshot) Hash() string { return s.hash }
