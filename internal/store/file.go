package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"levelbot/internal/models"
)

// FileStore keeps the full progression map in memory and persists it as one
// JSON document. Writes go to a temporary file in the same directory and are
// renamed into place, so a concurrent reader never observes a half-written
// file.
type FileStore struct {
	mu     sync.Mutex
	path   string
	users  map[string]models.UserProgression
	logger *slog.Logger
}

// NewFileStore loads the store from path. A missing or malformed file yields
// an empty store; load never fails the caller.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	s := &FileStore{
		path:   path,
		users:  make(map[string]models.UserProgression),
		logger: logger,
	}
	s.load()
	return s
}

func (s *FileStore) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("progression file unreadable, starting empty", "path", s.path, "error", err)
		}
		return
	}

	var users map[string]models.UserProgression
	if err := json.Unmarshal(data, &users); err != nil {
		s.logger.Warn("progression file malformed, starting empty", "path", s.path, "error", err)
		return
	}

	for id, rec := range users {
		s.users[id] = rec.Normalize()
	}
	s.logger.Info("progression store loaded", "path", s.path, "users", len(s.users))
}

// Get returns a copy of the record for a user.
func (s *FileStore) Get(userID string) (models.UserProgression, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[userID]
	if !ok {
		return models.UserProgression{}, false
	}
	return rec.Clone(), true
}

// Put replaces the record for a user and writes the full store to disk.
func (s *FileStore) Put(userID string, rec models.UserProgression) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[userID] = rec.Clone()
	return s.persist()
}

// All returns a copy of every record.
func (s *FileStore) All() map[string]models.UserProgression {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]models.UserProgression, len(s.users))
	for id, rec := range s.users {
		out[id] = rec.Clone()
	}
	return out
}

// Close is a no-op for the file store; every Put is already durable.
func (s *FileStore) Close() error {
	return nil
}

// persist writes the whole map atomically. Caller holds s.mu.
func (s *FileStore) persist() error {
	data, err := json.MarshalIndent(s.users, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode progression store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp store file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp store file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp store file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	return nil
}
