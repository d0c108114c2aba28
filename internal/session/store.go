package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/calebforbes/ensemble/internal/errors"
)

// Snapshot is the durable point-in-time serialization of the registry.
type Snapshot struct {
	SavedAt  time.Time  `json:"savedAt"`
	Sessions []*Session `json:"sessions"`
}

// SnapshotStore persists the registry as a single JSON file, overwritten
// atomically on every save. It provides the storage half of the persistence
// protocol; the orchestrator owns the save cadence.
type SnapshotStore struct {
	path string
	mu   sync.Mutex
}

// NewSnapshotStore creates a store writing to the given file path.
// The parent directory is created if needed.
func NewSnapshotStore(path string) (*SnapshotStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &SnapshotStore{path: path}, nil
}

// Path returns the snapshot file location.
func (st *SnapshotStore) Path() string {
	return st.path
}

// Save serializes the sessions and overwrites the snapshot file atomically.
func (st *SnapshotStore) Save(sessions []*Session) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	snap := Snapshot{
		SavedAt:  time.Now(),
		Sessions: sessions,
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	return atomicWriteFile(st.path, data, 0644)
}

// Load reads the snapshot from disk. A missing file is not an error: a nil
// snapshot is returned and the caller starts fresh. A malformed file returns
// ErrSnapshotCorrupted so the caller can log it and likewise start fresh.
func (st *SnapshotStore) Load() (*Snapshot, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	data, err := os.ReadFile(st.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrSnapshotCorrupted, err)
	}

	return &snap, nil
}

// atomicWriteFile writes data to a file atomically by writing to a temporary
// file first, then renaming. The target file is never observed in a
// partially-written state.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	// Temp file in the same directory so the rename stays on one filesystem.
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
