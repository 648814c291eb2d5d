// Package project holds per-project source files and parses AI chat
// output into files.
package project

import (
	"context"
	"errors"
	"sync"

	"previewkit/internal/vfs"
)

// ErrProjectNotFound means no files were ever stored for a project.
var ErrProjectNotFound = errors.New("project not found")

// ParsedFile is one source file, either uploaded directly or extracted
// from chat output.
type ParsedFile struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Language string `json:"language,omitempty"`
}

// Store loads project files. The access token travels to the backing
// store only; nothing else in the build pipeline ever sees it.
type Store interface {
	GetFiles(ctx context.Context, projectID, token string) ([]vfs.Entry, error)
	PutFiles(ctx context.Context, projectID string, files []ParsedFile) error
}

// MemoryStore keeps project files in process memory, one vfs.Store per
// project. Safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	projects map[string]*vfs.Store
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{projects: make(map[string]*vfs.Store)}
}

// PutFiles upserts files into a project, creating it on first write.
func (s *MemoryStore) PutFiles(_ context.Context, projectID string, files []ParsedFile) error {
	s.mu.Lock()
	store := s.projects[projectID]
	if store == nil {
		store = vfs.NewStore()
		s.projects[projectID] = store
	}
	s.mu.Unlock()

	for _, f := range files {
		store.Put(f.Path, f.Content)
	}
	return nil
}

// GetFiles returns a project's files sorted by path. The in-memory
// store has no auth backend, so the token is ignored.
func (s *MemoryStore) GetFiles(_ context.Context, projectID, _ string) ([]vfs.Entry, error) {
	s.mu.RLock()
	store := s.projects[projectID]
	s.mu.RUnlock()

	if store == nil {
		return nil, ErrProjectNotFound
	}
	return store.List("/"), nil
}
