// Package store owns the on-disk snapshot the rest of the app edits. It
// keeps one working copy in memory, hands out deep copies so callers can
// never alias internal state, and persists with a temp-file rename so a
// crash mid-write leaves the previous snapshot intact.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/mindwtr/mindwtr/internal/task"
)

// Store is a file-backed snapshot with change notification.
type Store struct {
	path   string
	logger *log.Logger

	mu   sync.RWMutex
	data *task.AppData

	subMu sync.Mutex
	subs  []func(*task.AppData)
}

// Open loads the snapshot at path, starting from an empty snapshot when the
// file does not exist yet. A file that exists but cannot be decoded is an
// error: silently replacing a corrupt snapshot would destroy data.
func Open(path string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[store] ", log.LstdFlags)
	}
	s := &Store{path: path, logger: logger}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.data = task.Empty()
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var data task.AppData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	s.data = data.Normalize()
	return s, nil
}

// Path returns the snapshot's location on disk.
func (s *Store) Path() string { return s.path }

// Get returns a deep copy of the current snapshot.
func (s *Store) Get() *task.AppData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Clone()
}

// Set replaces the snapshot, persists it, and notifies subscribers. The
// write happens before the in-memory swap so a failed persist leaves both
// views on the previous state.
func (s *Store) Set(data *task.AppData) error {
	next := data.Clone().Normalize()

	s.mu.Lock()
	if err := writeAtomic(s.path, next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.data = next
	s.mu.Unlock()

	s.notify(next)
	return nil
}

// Update applies fn to a copy of the snapshot and commits the result. fn
// returning an error abandons the change.
func (s *Store) Update(fn func(*task.AppData) error) error {
	working := s.Get()
	if err := fn(working); err != nil {
		return err
	}
	return s.Set(working)
}

// OnChange registers a callback invoked with a fresh copy after every
// successful Set. Callbacks run synchronously; keep them quick.
func (s *Store) OnChange(fn func(*task.AppData)) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subs = append(s.subs, fn)
}

// Reload re-reads the snapshot from disk, for when another process (a
// Syncthing peer, the daemon) rewrote the file underneath us.
func (s *Store) Reload() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", s.path, err)
	}
	var data task.AppData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("decode %s: %w", s.path, err)
	}
	next := data.Normalize()

	s.mu.Lock()
	s.data = next
	s.mu.Unlock()

	s.notify(next)
	return nil
}

func (s *Store) notify(data *task.AppData) {
	s.subMu.Lock()
	subs := make([]func(*task.AppData), len(s.subs))
	copy(subs, s.subs)
	s.subMu.Unlock()
	for _, fn := range subs {
		fn(data.Clone())
	}
}

func writeAtomic(path string, data *task.AppData) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".mindwtr-store-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
