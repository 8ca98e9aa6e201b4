package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Cursor is the set of record ids seen by the last successful run. It is a
// pre-filter only; the tables decide whether a record is a duplicate.
type Cursor struct {
	KnownIDs []string `json:"lastSyncGuids"`
	LastSync string   `json:"lastSync,omitempty"`

	known map[string]struct{}
}

func NewCursor(ids []string, lastSync time.Time) Cursor {
	c := Cursor{
		KnownIDs: append([]string{}, ids...),
		LastSync: lastSync.UTC().Format(time.RFC3339),
	}
	c.index()
	return c
}

func (c *Cursor) index() {
	c.known = make(map[string]struct{}, len(c.KnownIDs))
	for _, id := range c.KnownIDs {
		c.known[id] = struct{}{}
	}
}

func (c Cursor) Contains(id string) bool {
	if c.known == nil {
		for _, known := range c.KnownIDs {
			if known == id {
				return true
			}
		}
		return false
	}
	_, ok := c.known[id]
	return ok
}

func (c Cursor) Len() int {
	return len(c.KnownIDs)
}

type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

// Load returns the persisted cursor. A missing file yields an empty cursor;
// an unreadable or corrupt one is logged and also yields an empty cursor.
func (s *Store) Load() Cursor {
	cursor, err := s.read()
	if err != nil {
		slog.Warn("Failed to load sync state, starting with empty cursor",
			"path", s.path,
			"error", err)
		return Cursor{}
	}
	return cursor
}

func (s *Store) read() (Cursor, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Cursor{}, nil
		}
		return Cursor{}, fmt.Errorf("failed to read state file: %w", err)
	}

	if len(data) == 0 {
		return Cursor{}, nil
	}

	var cursor Cursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return Cursor{}, fmt.Errorf("failed to parse state file: %w", err)
	}
	cursor.index()

	slog.Debug("Sync state loaded", "path", s.path, "known_ids", cursor.Len(), "last_sync", cursor.LastSync)

	return cursor, nil
}

// Save replaces the persisted cursor. The file is written to a temporary
// path and renamed, so a crash leaves either the old or the new cursor.
func (s *Store) Save(cursor Cursor) error {
	if cursor.KnownIDs == nil {
		cursor.KnownIDs = []string{}
	}

	data, err := json.MarshalIndent(cursor, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := writeSynced(tmpPath, data); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp state file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp state file: %w", err)
	}

	return nil
}

func writeSynced(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
